// Package adaptertest provides scripted fakes for every adapter interface,
// for unit tests that need to substitute a fake external-command runner
// rather than shelling out
package adaptertest

import (
	"context"
	"fmt"
	"strings"

	"github.com/microsoft/trident/internal/adapter"
)

// FakeBlkid is a scripted adapter.BlkidRunner.
type FakeBlkid struct {
	Tables map[string][]adapter.ExistingPartitionRow
}

func (f *FakeBlkid) ReadPartitionTable(_ context.Context, diskPath string) ([]adapter.ExistingPartitionRow, error) {
	rows, ok := f.Tables[diskPath]
	if !ok {
		return nil, fmt.Errorf("no partition table scripted for %s", diskPath)
	}
	return rows, nil
}

// FakeRepart is a scripted adapter.RepartRunner that echoes back
// deterministic geometry for every requested entry.
type FakeRepart struct {
	NextPartitionNumber int
	Calls []FakeRepartCall
}

// FakeRepartCall records one invocation for assertions in tests.
type FakeRepartCall struct {
	DiskPath string
	Entries []adapter.RepartEntry
	ExistingTable bool
}

func (f *FakeRepart) Repart(_ context.Context, diskPath string, entries []adapter.RepartEntry, existingTable bool) (*adapter.RepartResult, error) {
	f.Calls = append(f.Calls, FakeRepartCall{DiskPath: diskPath, Entries: entries, ExistingTable: existingTable})
	result := &adapter.RepartResult{}
	for i, e := range entries {
		f.NextPartitionNumber++
		size := e.MaxBytes
		if size == 0 {
			size = e.MinBytes
		}
		result.Partitions = append(result.Partitions, adapter.RepartResultEntry{
				Label: e.Label,
				Path: fmt.Sprintf("%sp%d", diskPath, f.NextPartitionNumber),
				PartUUID: fmt.Sprintf("partuuid-%d", f.NextPartitionNumber),
				SizeBytes: size,
				Number: i + 1,
		})
	}
	return result, nil
}

// FakeUdev is a no-op adapter.UdevRunner.
type FakeUdev struct{}

func (FakeUdev) Settle(context.Context) error { return nil }
func (FakeUdev) WaitForPath(context.Context, string) error { return nil }

// FakeTPM is a scripted adapter.Tpm2Runner.
type FakeTPM struct {
	Unreachable bool
	Cleared bool
}

func (f *FakeTPM) PCRRead(context.Context, uint8) error {
	if f.Unreachable {
		return fmt.Errorf("tpm2 device not accessible")
	}
	return nil
}

func (f *FakeTPM) Clear(context.Context) error {
	f.Cleared = true
	return nil
}

// FakePcrlock is a scripted adapter.PcrlockRunner.
type FakePcrlock struct {
	Removed bool
	Generated []FakeGeneratePolicyCall
}

// FakeGeneratePolicyCall records one GeneratePolicy invocation.
type FakeGeneratePolicyCall struct {
	PCRs []uint8
	UKIPaths []string
	BootloaderPaths []string
}

func (f *FakePcrlock) RemovePolicy(context.Context) error {
	f.Removed = true
	return nil
}

func (f *FakePcrlock) GeneratePolicy(_ context.Context, pcrs []uint8, ukiPaths, bootloaderPaths []string) error {
	f.Generated = append(f.Generated, FakeGeneratePolicyCall{PCRs: pcrs, UKIPaths: ukiPaths, BootloaderPaths: bootloaderPaths})
	return nil
}

// FakeCryptsetup is a scripted adapter.CryptsetupRunner.
type FakeCryptsetup struct {
	Formatted map[string]bool
	Reencrypted map[string]bool
	Enrolled map[string]bool
	Opened map[string]string
	Closed []string
	WipedSlots map[string][]int
}

func newFakeCryptsetup() *FakeCryptsetup {
	return &FakeCryptsetup{
		Formatted: map[string]bool{}, Reencrypted: map[string]bool{},
		Enrolled: map[string]bool{}, Opened: map[string]string{},
		WipedSlots: map[string][]int{},
	}
}

// NewFakeCryptsetup builds a ready-to-use FakeCryptsetup.
func NewFakeCryptsetup() *FakeCryptsetup { return newFakeCryptsetup() }

func (f *FakeCryptsetup) Format(_ context.Context, devicePath, _ string) error {
	f.Formatted[devicePath] = true
	return nil
}

func (f *FakeCryptsetup) Reencrypt(_ context.Context, devicePath, _ string) error {
	f.Reencrypted[devicePath] = true
	return nil
}

func (f *FakeCryptsetup) EnrollTPM(_ context.Context, devicePath string, _ []uint8, _ string) error {
	f.Enrolled[devicePath] = true
	return nil
}

func (f *FakeCryptsetup) Open(_ context.Context, devicePath, mappedName, _ string) error {
	f.Opened[devicePath] = mappedName
	return nil
}

func (f *FakeCryptsetup) Close(_ context.Context, mappedName string) error {
	f.Closed = append(f.Closed, mappedName)
	return nil
}

func (f *FakeCryptsetup) WipeSlot(_ context.Context, devicePath string, slot int) error {
	f.WipedSlots[devicePath] = append(f.WipedSlots[devicePath], slot)
	return nil
}

// FakeEfibootmgr is a scripted adapter.EfibootmgrRunner backed by an
// in-memory table, so tests can assert on the resulting {bootNext,
// bootCurrent, bootOrder, entries} state.
type FakeEfibootmgr struct {
	BootNext string
	BootCurrent string
	BootOrder []string
	Entries map[string]string // id -> label
	nextID int
}

// NewFakeEfibootmgr builds a FakeEfibootmgr with the given current state.
func NewFakeEfibootmgr(bootCurrent string, order []string, entries map[string]string) *FakeEfibootmgr {
	if entries == nil {
		entries = map[string]string{}
	}
	return &FakeEfibootmgr{BootCurrent: bootCurrent, BootOrder: order, Entries: entries}
}

func (f *FakeEfibootmgr) List(context.Context) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "BootCurrent: %s\n", f.BootCurrent)
	fmt.Fprintf(&b, "BootNext: %s\n", f.BootNext)
	fmt.Fprintf(&b, "BootOrder: %s\n", strings.Join(f.BootOrder, ","))
	// Entries is a map, so emit in BootOrder order first, then whatever is
	// left over, to keep output deterministic across calls.
	emitted := map[string]bool{}
	for _, id := range f.BootOrder {
		if label, ok := f.Entries[id]; ok {
			fmt.Fprintf(&b, "Boot%s* %s\n", id, label)
			emitted[id] = true
		}
	}
	for id, label := range f.Entries {
		if !emitted[id] {
			fmt.Fprintf(&b, "Boot%s* %s\n", id, label)
		}
	}
	return b.String(), nil
}

func (f *FakeEfibootmgr) Create(_ context.Context, label, _, _ string, _ int) error {
	for _, l := range f.Entries {
		if l == label {
			return fmt.Errorf("boot entry with label '%s' already exists", label)
		}
	}
	var id string
	for {
		f.nextID++
		id = fmt.Sprintf("%04X", f.nextID)
		if _, taken := f.Entries[id]; !taken {
			break
		}
	}
	f.Entries[id] = label
	f.BootOrder = append(f.BootOrder, id)
	return nil
}

func (f *FakeEfibootmgr) SetBootNext(_ context.Context, id string) error {
	f.BootNext = id
	return nil
}

func (f *FakeEfibootmgr) DeleteBootNext(context.Context) error {
	f.BootNext = ""
	return nil
}

func (f *FakeEfibootmgr) ModifyBootOrder(_ context.Context, order []string) error {
	f.BootOrder = order
	return nil
}

func (f *FakeEfibootmgr) DeleteEntry(_ context.Context, id string) error {
	delete(f.Entries, id)
	for i, o := range f.BootOrder {
		if o == id {
			f.BootOrder = append(f.BootOrder[:i], f.BootOrder[i+1:]...)
			break
		}
	}
	return nil
}
