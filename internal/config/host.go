// Package config defines the declarative Host Configuration: the desired
// state Trident drives the host towards. The schema mirrors
// trident_api/src/config in the Rust source; field names use lowerCamelCase
// YAML tags to match the wire format consumed by the (out-of-scope) CLI and
// orchestrator.
package config

// HostConfiguration is the root of the declared desired state.
type HostConfiguration struct {
	Storage Storage `yaml:"storage" json:"storage"`
	Encryption *Encryption `yaml:"encryption,omitempty" json:"encryption,omitempty"`
	Scripts *Scripts `yaml:"scripts,omitempty" json:"scripts,omitempty"`
	OS *OSConfig `yaml:"os,omitempty" json:"os,omitempty"`
	Extensions []Extension `yaml:"extensions,omitempty" json:"extensions,omitempty"`
	Trident TridentConfig `yaml:"trident,omitempty" json:"trident,omitempty"`
	InternalParams InternalParams `yaml:"internalParams,omitempty" json:"internalParams,omitempty"`
}

// TridentConfig carries the agent's own external collaborator endpoints.
// These are consumed only by the out-of-scope orchestrator adapter; the core
// reads them opaquely.
type TridentConfig struct {
	PhoneHome string `yaml:"phonehome,omitempty" json:"phonehome,omitempty"`
	Logstream string `yaml:"logstream,omitempty" json:"logstream,omitempty"`
}

// Storage is the set of declared block devices and filesystems.
type Storage struct {
	Disks []Disk `yaml:"disks,omitempty" json:"disks,omitempty"`
	RaidArrays []RaidArray `yaml:"raid,omitempty" json:"raid,omitempty"`
	ABVolumes []ABVolumePair `yaml:"abUpdate,omitempty" json:"abUpdate,omitempty"`
	Verity []VerityDevice `yaml:"verity,omitempty" json:"verity,omitempty"`
	FileSystems []FileSystem `yaml:"filesystems,omitempty" json:"filesystems,omitempty"`
}

// Disk declares one physical or virtual disk and its partition layout.
type Disk struct {
	ID BlockDeviceID `yaml:"id" json:"id"`
	Device string `yaml:"device" json:"device"`
	PartitionTableType PartitionTableType `yaml:"partitionTableType" json:"partitionTableType"`
	Partitions []Partition `yaml:"partitions,omitempty" json:"partitions,omitempty"`
	AdoptedPartitions []AdoptedPartition `yaml:"adoptedPartitions,omitempty" json:"adoptedPartitions,omitempty"`
}

// Partition declares one new partition to be created on a Disk.
type Partition struct {
	ID BlockDeviceID `yaml:"id" json:"id"`
	PartitionType PartitionType `yaml:"type" json:"type"`
	// Size is either "grow" or a fixed size such as "512M", "4G".
	Size string `yaml:"size" json:"size"`
}

// AdoptedPartition matches an existing partition on disk by exactly one of
// Label or UUID, preserving (not overwriting) it.
type AdoptedPartition struct {
	ID BlockDeviceID `yaml:"id" json:"id"`
	MatchLabel string `yaml:"matchLabel,omitempty" json:"matchLabel,omitempty"`
	MatchUUID string `yaml:"matchUuid,omitempty" json:"matchUuid,omitempty"`
}

// RaidArray declares a software RAID array over a set of Partition members.
type RaidArray struct {
	ID BlockDeviceID `yaml:"id" json:"id"`
	Level string `yaml:"level" json:"level"`
	Members []BlockDeviceID `yaml:"devices" json:"devices"`
	MetadataVersion string `yaml:"metadataVersion,omitempty" json:"metadataVersion,omitempty"`
}

// ABVolumePair declares two block devices used as the A and B halves of an
// atomically-switched volume.
type ABVolumePair struct {
	ID BlockDeviceID `yaml:"id" json:"id"`
	VolumeAID BlockDeviceID `yaml:"volumeAId" json:"volumeAId"`
	VolumeBID BlockDeviceID `yaml:"volumeBId" json:"volumeBId"`
}

// VerityDevice declares a dm-verity device pairing a data target with a hash
// target.
type VerityDevice struct {
	ID BlockDeviceID `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	DataTarget BlockDeviceID `yaml:"dataDeviceId" json:"dataDeviceId"`
	HashTarget BlockDeviceID `yaml:"hashDeviceId" json:"hashDeviceId"`
}

// FileSystem declares a filesystem to be created or adopted on a block
// device, and where (if anywhere) it is mounted.
type FileSystem struct {
	DeviceID BlockDeviceID `yaml:"deviceId" json:"deviceId"`
	Source FileSystemSource `yaml:"source" json:"source"`
	MountPoint string `yaml:"mountPoint,omitempty" json:"mountPoint,omitempty"`
	Image *ImageSource `yaml:"image,omitempty" json:"image,omitempty"`
}

// ImageSource identifies the filesystem image to place onto a device whose
// Source is "image".
type ImageSource struct {
	URL string `yaml:"url" json:"url"`
	Sha384 string `yaml:"sha384,omitempty" json:"sha384,omitempty"`
}

// Encryption declares the encrypted-volume subsystem configuration. It is
// nil when the host configuration does not use encryption.
type Encryption struct {
	RecoveryKeyURL string `yaml:"recoveryKeyUrl,omitempty" json:"recoveryKeyUrl,omitempty"`
	ClearTPMOnInstall bool `yaml:"clearTpmOnInstall,omitempty" json:"clearTpmOnInstall,omitempty"`
	PCRs []uint8 `yaml:"pcrs,omitempty" json:"pcrs,omitempty"`
	Volumes []EncryptedVolume `yaml:"volumes" json:"volumes"`
}

// EncryptedVolume declares one LUKS2-backed mapped device.
type EncryptedVolume struct {
	ID BlockDeviceID `yaml:"id" json:"id"`
	DeviceID BlockDeviceID `yaml:"deviceId" json:"deviceId"`
	MappedName string `yaml:"mappedName" json:"mappedName"`
}

// Scripts declares pre/post-servicing hook scripts. Execution is delegated
// entirely to an external collaborator; the core only carries the
// declaration through validation.
type Scripts struct {
	PostProvision []string `yaml:"postProvision,omitempty" json:"postProvision,omitempty"`
	PostConfigure []string `yaml:"postConfigure,omitempty" json:"postConfigure,omitempty"`
}

// OSConfig carries OS tuning knobs opaque to the core (hostname, users,
// kernel command line, etc). Unknown fields are preserved as raw YAML by the
// (out-of-scope) parser; the core never reads into them.
type OSConfig struct {
	Raw map[string]any `yaml:",inline" json:"-"`
}

// Extension declares a sysext/confext image. The core validates only
// placement (must sit on an A/B volume when A/B is configured); the
// download/hashing pipeline is out of scope.
type Extension struct {
	ID BlockDeviceID `yaml:"id" json:"id"`
	ImagePath string `yaml:"imagePath" json:"imagePath"`
}

// DatastorePath returns the configured path of the persisted HostStatus log,
// and the BlockDeviceID of the volume it lives on, when present in
// InternalParams. The core validates (in internal/graph) that this volume is
// not an A/B volume.
func (h *HostConfiguration) DatastorePath() (path string, deviceID BlockDeviceID, ok bool) {
	p, okPath := h.InternalParams.GetString("datastorePath")
	d, okDevice := h.InternalParams.GetString("datastoreDeviceId")
	if !okPath || !okDevice {
		return "", "", false
	}
	return p, BlockDeviceID(d), true
}
