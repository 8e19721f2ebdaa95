// Package adapter defines the capability interfaces the servicing core
// calls into for every external utility (mdadm, cryptsetup, systemd-repart,
// efibootmgr, losetup, mount, mkfs, blkid, udev, the TPM, pcrlock). External
// command execution is hidden behind a small capability interface; the core
// depends only on these interfaces, never on exec.Command directly.
package adapter

import "context"

// Runner is the minimal capability every external-command adapter exposes.
type Runner interface {
	// RunAndCheck executes a command, returning an error if it exits
	// non-zero.
	RunAndCheck(ctx context.Context, name string, args ...string) error
	// OutputAndCheck executes a command and returns its captured stdout,
	// or an error if it exits non-zero.
	OutputAndCheck(ctx context.Context, name string, args ...string) (string, error)
}

// RepartEntry describes one row of a systemd-repart configuration file.
type RepartEntry struct {
	Label string
	MinBytes uint64 // 0 means unset
	MaxBytes uint64 // 0 means "grow"/unset
	Type string
	ExistingPartition bool
}

// RepartResult is the set of partitions systemd-repart reports it created or
// matched, in disk order.
type RepartResult struct {
	Partitions []RepartResultEntry
}

// RepartResultEntry is one partition systemd-repart produced or matched.
type RepartResultEntry struct {
	Label string
	Path string
	PartUUID string
	SizeBytes uint64
	Number int
}

// RepartRunner drives systemd-repart.
type RepartRunner interface {
	// Repart invokes systemd-repart against diskPath with entries, in
	// either "force-empty-table" or "require-existing-table" mode
	// depending on existingTable, and returns the resulting geometry.
	Repart(ctx context.Context, diskPath string, entries []RepartEntry, existingTable bool) (*RepartResult, error)
}

// BlkidRunner reads the existing partition table of a disk.
type BlkidRunner interface {
	ReadPartitionTable(ctx context.Context, diskPath string) ([]ExistingPartitionRow, error)
}

// ExistingPartitionRow is one row blkid/lsblk reports for an existing
// partition.
type ExistingPartitionRow struct {
	Number int
	UUID string
	Label string
	Path string
	SizeBytes uint64
}

// UdevRunner waits for udev to settle and for expected device symlinks to
// appear.
type UdevRunner interface {
	Settle(ctx context.Context) error
	WaitForPath(ctx context.Context, path string) error
}

// RaidRunner assembles, creates, and stops RAID arrays.
type RaidRunner interface {
	Create(ctx context.Context, name string, level string, members []string, metadataVersion string) error
	Stop(ctx context.Context, name string) error
	ExistingArraysOn(ctx context.Context, diskPaths []string) ([]string, error)
}

// CryptsetupRunner drives LUKS2 format/reencrypt/open/close and TPM
// enrollment
type CryptsetupRunner interface {
	Format(ctx context.Context, devicePath, keyFilePath string) error
	Reencrypt(ctx context.Context, devicePath, keyFilePath string) error
	EnrollTPM(ctx context.Context, devicePath string, pcrs []uint8, pcrlockPolicyPath string) error
	Open(ctx context.Context, devicePath, mappedName, keyFilePath string) error
	Close(ctx context.Context, mappedName string) error
	WipeSlot(ctx context.Context, devicePath string, slot int) error
}

// Tpm2Runner probes and clears the TPM.
type Tpm2Runner interface {
	PCRRead(ctx context.Context, pcr uint8) error
	Clear(ctx context.Context) error
}

// PcrlockRunner generates and removes pcrlock policies.
type PcrlockRunner interface {
	RemovePolicy(ctx context.Context) error
	GeneratePolicy(ctx context.Context, pcrs []uint8, ukiPaths, bootloaderPaths []string) error
}

// MkfsRunner creates filesystems.
type MkfsRunner interface {
	Mkfs(ctx context.Context, fsType, devicePath string) error
}

// LoopRunner attaches/detaches loopback devices, used by extension-image
// processing.
type LoopRunner interface {
	Attach(ctx context.Context, imagePath string) (loopDevice string, err error)
	Detach(ctx context.Context, loopDevice string) error
}

// MountRunner mounts and unmounts filesystems.
type MountRunner interface {
	Mount(ctx context.Context, devicePath, target, fsType string) error
	Unmount(ctx context.Context, target string) error
}

// EfibootmgrRunner drives UEFI boot-variable manipulation
type EfibootmgrRunner interface {
	List(ctx context.Context) (string, error)
	Create(ctx context.Context, label, diskPath, loaderPath string, partitionNumber int) error
	SetBootNext(ctx context.Context, id string) error
	DeleteBootNext(ctx context.Context) error
	ModifyBootOrder(ctx context.Context, order []string) error
	DeleteEntry(ctx context.Context, id string) error
}
