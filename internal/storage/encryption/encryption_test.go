package encryption

import (
	"context"
	"os"
	"testing"

	"github.com/microsoft/trident/internal/adapter/adaptertest"
	"github.com/microsoft/trident/internal/config"
	"github.com/microsoft/trident/internal/graph"
	"github.com/microsoft/trident/internal/status"
)

func baseHostConfig() *config.HostConfiguration {
	return &config.HostConfiguration{
		Storage: config.Storage{
			Disks: []config.Disk{{
				ID:     "disk1",
				Device: "/dev/sda",
				Partitions: []config.Partition{
					{ID: "root", PartitionType: config.PartitionTypeRoot, Size: "2G"},
					{ID: "data", PartitionType: config.PartitionTypeLinuxGeneric, Size: "1G"},
				},
			}},
			FileSystems: []config.FileSystem{
				{DeviceID: "root", Source: config.FileSystemSourceNew, MountPoint: "/"},
			},
		},
		Encryption: &config.Encryption{
			PCRs: []uint8{7},
			Volumes: []config.EncryptedVolume{
				{ID: "enc-data", DeviceID: "data", MappedName: "cryptdata"},
			},
		},
		InternalParams: config.InternalParams{},
	}
}

func graphFor(t *testing.T, hc *config.HostConfiguration) *graph.Graph {
	t.Helper()
	g, err := graph.Build(hc)
	if err != nil {
		t.Fatalf("unexpected graph build error: %v", err)
	}
	return g
}

func fixedTempFile(t *testing.T) func() (string, func(), error) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "key-*")
	if err != nil {
		t.Fatal(err)
	}
	path := f.Name()
	f.Close()
	return func() (string, func(), error) {
		return path, func() {}, nil
	}
}

func TestProvision_GrubModeFormatsAndOpens(t *testing.T) {
	hc := baseHostConfig()
	g := graphFor(t, hc)

	hs := &status.HostStatus{BlockDevicePaths: map[config.BlockDeviceID]status.BlockDevicePath{
		"data": {Path: "/dev/sda2", SizeBytes: 1 << 30, Initialization: status.InitializationUnknown},
	}}

	fakeCrypt := adaptertest.NewFakeCryptsetup()
	fakeTPM := &adaptertest.FakeTPM{}
	fakePcr := &adaptertest.FakePcrlock{}

	p := NewProvisioner(fakeTPM, fakeCrypt, fakePcr, false)
	p.CreateTempFile = fixedTempFile(t)

	if err := p.Provision(context.Background(), g, hc, hs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !fakeCrypt.Formatted["/dev/sda2"] {
		t.Fatal("expected backing device to be formatted")
	}
	if fakeCrypt.Opened["/dev/sda2"] != "cryptdata" {
		t.Fatal("expected backing device to be opened under the mapped name")
	}
	if fakePcr.Generated != nil {
		t.Fatal("grub mode must not generate a pcrlock policy")
	}
	mapped, ok := hs.BlockDevicePaths["enc-data"]
	if !ok || mapped.Path != "/dev/mapper/cryptdata" {
		t.Fatalf("expected mapped device path recorded, got %+v", mapped)
	}
}

func TestProvision_UKIModeGeneratesBootstrapPolicy(t *testing.T) {
	hc := baseHostConfig()
	g := graphFor(t, hc)

	hs := &status.HostStatus{BlockDevicePaths: map[config.BlockDeviceID]status.BlockDevicePath{
		"data": {Path: "/dev/sda2", SizeBytes: 1 << 30},
	}}

	fakeCrypt := adaptertest.NewFakeCryptsetup()
	fakeTPM := &adaptertest.FakeTPM{}
	fakePcr := &adaptertest.FakePcrlock{}

	p := NewProvisioner(fakeTPM, fakeCrypt, fakePcr, true)
	p.CreateTempFile = fixedTempFile(t)

	if err := p.Provision(context.Background(), g, hc, hs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !fakePcr.Removed {
		t.Fatal("expected pre-existing pcrlock policy to be removed in UKI mode")
	}
	if len(fakePcr.Generated) != 1 {
		t.Fatalf("expected one bootstrap policy generation, got %d", len(fakePcr.Generated))
	}
}

func TestProvision_TPMUnreachableIsFatal(t *testing.T) {
	hc := baseHostConfig()
	g := graphFor(t, hc)
	hs := &status.HostStatus{BlockDevicePaths: map[config.BlockDeviceID]status.BlockDevicePath{
		"data": {Path: "/dev/sda2", SizeBytes: 1 << 30},
	}}

	fakeCrypt := adaptertest.NewFakeCryptsetup()
	fakeTPM := &adaptertest.FakeTPM{Unreachable: true}
	fakePcr := &adaptertest.FakePcrlock{}

	p := NewProvisioner(fakeTPM, fakeCrypt, fakePcr, false)
	p.CreateTempFile = fixedTempFile(t)

	if err := p.Provision(context.Background(), g, hc, hs); err == nil {
		t.Fatal("expected TPM-unreachable error")
	}
}

func TestProvision_AutoGeneratedKeyWipesSlot(t *testing.T) {
	hc := baseHostConfig()
	g := graphFor(t, hc)
	hs := &status.HostStatus{BlockDevicePaths: map[config.BlockDeviceID]status.BlockDevicePath{
		"data": {Path: "/dev/sda2", SizeBytes: 1 << 30},
	}}

	fakeCrypt := adaptertest.NewFakeCryptsetup()
	fakeTPM := &adaptertest.FakeTPM{}
	fakePcr := &adaptertest.FakePcrlock{}

	p := NewProvisioner(fakeTPM, fakeCrypt, fakePcr, false)
	p.CreateTempFile = fixedTempFile(t)

	if err := p.Provision(context.Background(), g, hc, hs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if slots, ok := fakeCrypt.WipedSlots["/dev/sda2"]; !ok || len(slots) == 0 {
		t.Fatal("expected password slot to be wiped when the recovery key was auto-generated")
	}
}

func TestProvision_RecoveryKeyURLSkipsAutoGeneration(t *testing.T) {
	hc := baseHostConfig()
	hc.Encryption.RecoveryKeyURL = "file:///etc/trident/recovery.key"
	g := graphFor(t, hc)
	hs := &status.HostStatus{BlockDevicePaths: map[config.BlockDeviceID]status.BlockDevicePath{
		"data": {Path: "/dev/sda2", SizeBytes: 1 << 30},
	}}

	fakeCrypt := adaptertest.NewFakeCryptsetup()
	fakeTPM := &adaptertest.FakeTPM{}
	fakePcr := &adaptertest.FakePcrlock{}

	p := NewProvisioner(fakeTPM, fakeCrypt, fakePcr, false)
	p.CreateTempFile = fixedTempFile(t)

	if err := p.Provision(context.Background(), g, hc, hs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, wiped := fakeCrypt.WipedSlots["/dev/sda2"]; wiped {
		t.Fatal("must not wipe a user-supplied recovery key's slot")
	}
}

func TestProvision_RaidBackedVolumeUsesFirstMember(t *testing.T) {
	hc := &config.HostConfiguration{
		Storage: config.Storage{
			Disks: []config.Disk{{
				ID:     "disk1",
				Device: "/dev/sda",
				Partitions: []config.Partition{
					{ID: "root", PartitionType: config.PartitionTypeRoot, Size: "2G"},
					{ID: "m0", PartitionType: config.PartitionTypeLinuxGeneric, Size: "1G"},
					{ID: "m1", PartitionType: config.PartitionTypeLinuxGeneric, Size: "1G"},
				},
			}},
			RaidArrays: []config.RaidArray{{ID: "md0", Level: "1", Members: []config.BlockDeviceID{"m0", "m1"}}},
			FileSystems: []config.FileSystem{
				{DeviceID: "root", Source: config.FileSystemSourceNew, MountPoint: "/"},
			},
		},
		Encryption: &config.Encryption{
			PCRs:    []uint8{7},
			Volumes: []config.EncryptedVolume{{ID: "enc-md0", DeviceID: "md0", MappedName: "cryptmd0"}},
		},
	}
	g := graphFor(t, hc)

	hs := &status.HostStatus{BlockDevicePaths: map[config.BlockDeviceID]status.BlockDevicePath{
		"root": {Path: "/dev/sda1", SizeBytes: 2 << 30},
		"m0":   {Path: "/dev/sda2", SizeBytes: 1 << 30},
		"m1":   {Path: "/dev/sda3", SizeBytes: 1 << 30},
	}}

	fakeCrypt := adaptertest.NewFakeCryptsetup()
	fakeTPM := &adaptertest.FakeTPM{}
	fakePcr := &adaptertest.FakePcrlock{}

	p := NewProvisioner(fakeTPM, fakeCrypt, fakePcr, false)
	p.CreateTempFile = fixedTempFile(t)

	if err := p.Provision(context.Background(), g, hc, hs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fakeCrypt.Formatted["/dev/sda2"] {
		t.Fatal("expected the first RAID member to back the encrypted volume")
	}
}
