package raid

import (
	"context"
	"testing"

	"github.com/microsoft/trident/internal/config"
	"github.com/microsoft/trident/internal/status"
)

type fakeRaidRunner struct {
	created  map[string][]string
	stopped  []string
	existing []string
}

func newFakeRaidRunner() *fakeRaidRunner {
	return &fakeRaidRunner{created: map[string][]string{}}
}

func (f *fakeRaidRunner) Create(_ context.Context, name, _ string, members []string, _ string) error {
	f.created[name] = members
	return nil
}

func (f *fakeRaidRunner) Stop(_ context.Context, name string) error {
	f.stopped = append(f.stopped, name)
	return nil
}

func (f *fakeRaidRunner) ExistingArraysOn(context.Context, []string) ([]string, error) {
	return f.existing, nil
}

func TestAssemble_CreatesArrayAndRecordsPath(t *testing.T) {
	runner := newFakeRaidRunner()
	a := NewAssembler(runner)

	hc := &config.HostConfiguration{
		Storage: config.Storage{
			RaidArrays: []config.RaidArray{
				{ID: "md0", Level: "1", Members: []config.BlockDeviceID{"m0", "m1"}},
			},
		},
	}
	hs := &status.HostStatus{
		BlockDevicePaths: map[config.BlockDeviceID]status.BlockDevicePath{
			"m0": {Path: "/dev/sda2", SizeBytes: 1 << 30},
			"m1": {Path: "/dev/sdb2", SizeBytes: 1 << 30},
		},
	}

	if err := a.Assemble(context.Background(), hc, hs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	members := runner.created["md0"]
	if len(members) != 2 || members[0] != "/dev/sda2" || members[1] != "/dev/sdb2" {
		t.Fatalf("unexpected members recorded: %v", members)
	}

	bp, ok := hs.BlockDevicePaths["md0"]
	if !ok || bp.Path != "/dev/md/md0" || bp.SizeBytes != 1<<30 {
		t.Fatalf("unexpected block device path for md0: %+v ok=%v", bp, ok)
	}
}

func TestAssemble_MissingMemberPathIsInternalError(t *testing.T) {
	runner := newFakeRaidRunner()
	a := NewAssembler(runner)

	hc := &config.HostConfiguration{
		Storage: config.Storage{
			RaidArrays: []config.RaidArray{
				{ID: "md0", Level: "1", Members: []config.BlockDeviceID{"m0", "m1"}},
			},
		},
	}
	hs := &status.HostStatus{BlockDevicePaths: map[config.BlockDeviceID]status.BlockDevicePath{
		"m0": {Path: "/dev/sda2"},
	}}

	if err := a.Assemble(context.Background(), hc, hs); err == nil {
		t.Fatal("expected an error for an unresolved member path")
	}
}

func TestStopExisting_StopsEveryReportedArray(t *testing.T) {
	runner := newFakeRaidRunner()
	runner.existing = []string{"md0", "md1"}
	a := NewAssembler(runner)

	if err := a.StopExisting(context.Background(), []string{"/dev/sda"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.stopped) != 2 {
		t.Fatalf("expected 2 arrays stopped, got %v", runner.stopped)
	}
}
