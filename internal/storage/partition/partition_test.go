package partition

import (
	"context"
	"testing"

	"github.com/microsoft/trident/internal/adapter"
	"github.com/microsoft/trident/internal/adapter/adaptertest"
	"github.com/microsoft/trident/internal/config"
	"github.com/microsoft/trident/internal/status"
)

func TestPlanDisk_NewPartitions(t *testing.T) {
	disk := &config.Disk{
		ID:     "disk1",
		Device: "/dev/sda",
		Partitions: []config.Partition{
			{ID: "esp", PartitionType: config.PartitionTypeESP, Size: "512M"},
			{ID: "root", PartitionType: config.PartitionTypeRoot, Size: "grow"},
		},
	}

	p := &Planner{
		Repart:   &adaptertest.FakeRepart{},
		Udev:     adaptertest.FakeUdev{},
		StatPath: func(string) error { return nil },
	}

	hs := &status.HostStatus{}
	if err := p.PlanDisk(context.Background(), nil, disk, hs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if hs.BlockDevicePaths["esp"].Path == "" {
		t.Fatal("expected esp to get a resolved path")
	}
	if hs.BlockDevicePaths["root"].Initialization != status.InitializationUnknown {
		t.Fatalf("expected new partitions to be Unknown, got %s", hs.BlockDevicePaths["root"].Initialization)
	}
}

func TestPlanDisk_AdoptedPartitionsMarkedInitialized(t *testing.T) {
	disk := &config.Disk{
		ID:     "disk1",
		Device: "/dev/sda",
		AdoptedPartitions: []config.AdoptedPartition{
			{ID: "esp", MatchLabel: "esp"},
		},
	}

	blkid := &adaptertest.FakeBlkid{Tables: map[string][]adapter.ExistingPartitionRow{
		"/dev/sda": {{Number: 1, Label: "esp", UUID: "u1", Path: "/dev/sda1", SizeBytes: 512 * 1024 * 1024}},
	}}

	p := &Planner{
		Blkid:    blkid,
		Repart:   &adaptertest.FakeRepart{},
		Udev:     adaptertest.FakeUdev{},
		StatPath: func(string) error { return nil },
	}

	hs := &status.HostStatus{}
	if err := p.PlanDisk(context.Background(), nil, disk, hs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if hs.BlockDevicePaths["esp"].Initialization != status.InitializationInitialized {
		t.Fatalf("expected adopted partition to be Initialized, got %s", hs.BlockDevicePaths["esp"].Initialization)
	}
}

func TestPlanDisk_MissingDiskFails(t *testing.T) {
	disk := &config.Disk{ID: "disk1", Device: "/dev/sda"}
	p := &Planner{
		Repart:   &adaptertest.FakeRepart{},
		Udev:     adaptertest.FakeUdev{},
		StatPath: func(string) error { return context.DeadlineExceeded },
	}
	hs := &status.HostStatus{}
	if err := p.PlanDisk(context.Background(), nil, disk, hs); err == nil {
		t.Fatal("expected missing-disk error")
	}
}
