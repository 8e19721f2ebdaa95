package graph

import (
	"strings"
	"testing"

	"github.com/microsoft/trident/internal/config"
)

func diskWithPartitions(diskID config.BlockDeviceID, parts ...config.Partition) config.Disk {
	return config.Disk{
		ID:                 diskID,
		Device:             "/dev/sda",
		PartitionTableType: config.PartitionTableTypeGPT,
		Partitions:         parts,
	}
}

func baseConfig() *config.HostConfiguration {
	return &config.HostConfiguration{
		Storage: config.Storage{
			Disks: []config.Disk{
				diskWithPartitions("disk1",
					config.Partition{ID: "esp", PartitionType: config.PartitionTypeESP, Size: "512M"},
					config.Partition{ID: "root", PartitionType: config.PartitionTypeRoot, Size: "4G"},
				),
			},
			FileSystems: []config.FileSystem{
				{DeviceID: "root", Source: config.FileSystemSourceNew, MountPoint: "/"},
				{DeviceID: "esp", Source: config.FileSystemSourceNew, MountPoint: "/boot/efi"},
			},
		},
	}
}

func TestBuild_Valid(t *testing.T) {
	g, err := Build(baseConfig())
	if err != nil {
		t.Fatalf("expected valid config to build, got error: %v", err)
	}
	if g.Node("disk1") == nil {
		t.Fatal("expected disk1 node to exist")
	}
	if g.Node("root").Kind != KindPartition {
		t.Fatalf("expected root to be a partition node, got %s", g.Node("root").Kind)
	}
}

func TestBuild_DuplicateID(t *testing.T) {
	hc := baseConfig()
	hc.Storage.RaidArrays = append(hc.Storage.RaidArrays, config.RaidArray{ID: "root", Level: "1"})
	_, err := Build(hc)
	if err == nil || !strings.Contains(err.Error(), "duplicate block device id") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestBuild_UnknownReference(t *testing.T) {
	hc := baseConfig()
	hc.Storage.RaidArrays = append(hc.Storage.RaidArrays, config.RaidArray{
		ID: "md0", Level: "1", Members: []config.BlockDeviceID{"nope"},
	})
	_, err := Build(hc)
	if err == nil || !strings.Contains(err.Error(), "unknown block device") {
		t.Fatalf("expected unknown reference error, got %v", err)
	}
}

func TestBuild_RaidMembersMustBeSameSize(t *testing.T) {
	hc := baseConfig()
	hc.Storage.Disks[0].Partitions = append(hc.Storage.Disks[0].Partitions,
		config.Partition{ID: "data1", PartitionType: config.PartitionTypeLinuxGeneric, Size: "1G"},
		config.Partition{ID: "data2", PartitionType: config.PartitionTypeLinuxGeneric, Size: "2G"},
	)
	hc.Storage.RaidArrays = append(hc.Storage.RaidArrays, config.RaidArray{
		ID: "md0", Level: "1", Members: []config.BlockDeviceID{"data1", "data2"},
	})
	_, err := Build(hc)
	if err == nil || !strings.Contains(err.Error(), "not all the same size") {
		t.Fatalf("expected same-size error, got %v", err)
	}
}

func TestBuild_PartitionUsedTwice(t *testing.T) {
	hc := baseConfig()
	hc.Storage.RaidArrays = []config.RaidArray{
		{ID: "md0", Level: "1", Members: []config.BlockDeviceID{"root"}},
	}
	hc.Encryption = &config.Encryption{
		Volumes: []config.EncryptedVolume{{ID: "enc0", DeviceID: "root", MappedName: "root-enc"}},
	}
	_, err := Build(hc)
	if err == nil || !strings.Contains(err.Error(), "more than one consumer") {
		t.Fatalf("expected consumer-uniqueness error, got %v", err)
	}
}

func TestBuild_VerityRejectsTwoRootPartitions(t *testing.T) {
	hc := &config.HostConfiguration{
		Storage: config.Storage{
			Disks: []config.Disk{
				diskWithPartitions("disk1",
					config.Partition{ID: "root-a", PartitionType: config.PartitionTypeRoot, Size: "4G"},
					config.Partition{ID: "root-b", PartitionType: config.PartitionTypeRoot, Size: "4G"},
				),
			},
			Verity: []config.VerityDevice{
				{ID: "verity-root", Name: "root", DataTarget: "root-a", HashTarget: "root-b"},
			},
			FileSystems: []config.FileSystem{
				{DeviceID: "verity-root", Source: config.FileSystemSourceNew, MountPoint: "/"},
			},
		},
	}
	_, err := Build(hc)
	want := "verity device 'verity-root' references multiple partitions of type 'root'"
	if err == nil || !strings.Contains(err.Error(), want) {
		t.Fatalf("expected %q, got %v", want, err)
	}
}

func TestBuild_VerityAcceptsRootAndRootVerity(t *testing.T) {
	hc := &config.HostConfiguration{
		Storage: config.Storage{
			Disks: []config.Disk{
				diskWithPartitions("disk1",
					config.Partition{ID: "root", PartitionType: config.PartitionTypeRoot, Size: "4G"},
					config.Partition{ID: "root-hash", PartitionType: config.PartitionTypeRootVerity, Size: "100M"},
				),
			},
			Verity: []config.VerityDevice{
				{ID: "verity-root", Name: "root", DataTarget: "root", HashTarget: "root-hash"},
			},
			FileSystems: []config.FileSystem{
				{DeviceID: "verity-root", Source: config.FileSystemSourceNew, MountPoint: "/"},
			},
		},
	}
	g, err := Build(hc)
	if err != nil {
		t.Fatalf("expected valid verity config to build, got %v", err)
	}
	if !g.RootFsIsVerity() {
		t.Fatal("expected RootFsIsVerity to be true")
	}
}

func TestBuild_ImageFilesystemRejectsSharedRAID(t *testing.T) {
	hc := baseConfig()
	hc.Storage.Disks[0].Partitions = append(hc.Storage.Disks[0].Partitions,
		config.Partition{ID: "data1", PartitionType: config.PartitionTypeLinuxGeneric, Size: "1G"},
		config.Partition{ID: "data2", PartitionType: config.PartitionTypeLinuxGeneric, Size: "1G"},
	)
	hc.Storage.RaidArrays = []config.RaidArray{
		{ID: "md0", Level: "1", Members: []config.BlockDeviceID{"data1", "data2"}},
	}
	hc.Storage.FileSystems = append(hc.Storage.FileSystems, config.FileSystem{
		DeviceID: "md0", Source: config.FileSystemSourceImage, Image: &config.ImageSource{URL: "http://x/img"},
	})
	_, err := Build(hc)
	if err == nil || !strings.Contains(err.Error(), "shared RAID array") {
		t.Fatalf("expected shared-RAID rejection, got %v", err)
	}
}

func TestBuild_ExactlyOneRootMount(t *testing.T) {
	hc := baseConfig()
	hc.Storage.Disks[0].Partitions = append(hc.Storage.Disks[0].Partitions,
		config.Partition{ID: "extra", PartitionType: config.PartitionTypeLinuxGeneric, Size: "1G"},
	)
	hc.Storage.FileSystems = append(hc.Storage.FileSystems, config.FileSystem{
		DeviceID: "extra", Source: config.FileSystemSourceNew, MountPoint: "/",
	})
	_, err := Build(hc)
	if err == nil || !strings.Contains(err.Error(), "exactly one filesystem mounted") {
		t.Fatalf("expected root-mount-count error, got %v", err)
	}
}

func TestBuild_AdoptedPartitionMatcherExclusive(t *testing.T) {
	hc := baseConfig()
	hc.Storage.Disks[0].AdoptedPartitions = []config.AdoptedPartition{
		{ID: "adopted1", MatchLabel: "data", MatchUUID: "1234"},
	}
	_, err := Build(hc)
	if err == nil || !strings.Contains(err.Error(), "exactly one of matchLabel or matchUuid") {
		t.Fatalf("expected matcher-exclusivity error, got %v", err)
	}
}

func TestBuild_DatastoreMustNotBeABVolume(t *testing.T) {
	hc := baseConfig()
	hc.Storage.Disks[0].Partitions = append(hc.Storage.Disks[0].Partitions,
		config.Partition{ID: "data-a", PartitionType: config.PartitionTypeLinuxGeneric, Size: "1G"},
		config.Partition{ID: "data-b", PartitionType: config.PartitionTypeLinuxGeneric, Size: "1G"},
	)
	hc.Storage.ABVolumes = []config.ABVolumePair{
		{ID: "ab-data", VolumeAID: "data-a", VolumeBID: "data-b"},
	}
	hc.InternalParams = config.InternalParams{
		"datastorePath":     "/var/lib/trident/datastore.db",
		"datastoreDeviceId": "ab-data",
	}
	_, err := Build(hc)
	if err == nil || !strings.Contains(err.Error(), "must not be an A/B volume") {
		t.Fatalf("expected datastore placement error, got %v", err)
	}
}

func TestBuild_HasABCapabilities(t *testing.T) {
	hc := baseConfig()
	hc.Storage.Disks[0].Partitions = append(hc.Storage.Disks[0].Partitions,
		config.Partition{ID: "data-a", PartitionType: config.PartitionTypeLinuxGeneric, Size: "1G"},
		config.Partition{ID: "data-b", PartitionType: config.PartitionTypeLinuxGeneric, Size: "1G"},
	)
	hc.Storage.ABVolumes = []config.ABVolumePair{
		{ID: "ab-data", VolumeAID: "data-a", VolumeBID: "data-b"},
	}
	g, err := Build(hc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !g.HasABCapabilities("ab-data") {
		t.Fatal("expected ab-data to report AB capabilities")
	}
	if g.HasABCapabilities("data-a") {
		t.Fatal("did not expect a bare half to report AB capabilities")
	}
}
