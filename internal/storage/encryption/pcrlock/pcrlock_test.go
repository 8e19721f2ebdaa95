package pcrlock

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/microsoft/trident/internal/status"
)

func TestBuild_NoPCR4OrPCR11_EmptyLists(t *testing.T) {
	res, err := Build(Request{PCRs: []uint8{PCR7}, CurrentEntryFile: "current.efi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.UKIPaths) != 0 || len(res.BootloaderPaths) != 0 {
		t.Fatalf("expected empty lists, got %+v", res)
	}
}

func TestBuild_StagedABUpdate_Scenario6(t *testing.T) {
	res, err := Build(Request{
		PCRs:             []uint8{PCR4, PCR11},
		CurrentEntryFile: "current.efi",
		ActiveVolume:     status.ABVolumeA,
		MountPath:        "/mnt/update",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.UKIPaths) != 2 {
		t.Fatalf("expected 2 UKI paths (current + staged), got %v", res.UKIPaths)
	}
	if len(res.BootloaderPaths) != 4 {
		t.Fatalf("expected 4 bootloader paths (active pair + staged pair), got %v", res.BootloaderPaths)
	}
}

func TestBuild_BootValidation_DerivesOtherVolume(t *testing.T) {
	cases := []struct {
		name         string
		activeVolume status.ABVolumeSelection
		wantInstall  string
	}{
		// None: booting into A for the first time.
		{"none-resolves-to-A", status.ABVolumeNone, "AZL-A"},
		// Stored B: booting into A.
		{"B-resolves-to-A", status.ABVolumeB, "AZL-A"},
		// Stored A: booting into B.
		{"A-resolves-to-B", status.ABVolumeA, "AZL-B"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res, err := Build(Request{
				PCRs:             []uint8{PCR4},
				CurrentEntryFile: "current.efi",
				ActiveVolume:     c.activeVolume,
				IsBootValidation: true,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(res.UKIPaths) != 1 {
				t.Fatalf("expected only the current entry during boot-validation, got %v", res.UKIPaths)
			}
			want := []string{
				filepath.Join(DefaultESPMountPoint, "EFI", c.wantInstall, BootloaderEFIName),
				filepath.Join(DefaultESPMountPoint, "EFI", c.wantInstall, GrubEFIName),
			}
			if !reflect.DeepEqual(res.BootloaderPaths, want) {
				t.Fatalf("expected bootloader paths %v, got %v", want, res.BootloaderPaths)
			}
		})
	}
}

func TestBuild_MissingPathsReported(t *testing.T) {
	_, err := Build(Request{
		PCRs:             []uint8{PCR4},
		CurrentEntryFile: "current.efi",
		Exists:           func(string) bool { return false },
	})
	if err == nil {
		t.Fatal("expected missing-paths error")
	}
}

func TestBuild_ContainerRuntimePrefixesHostRoot(t *testing.T) {
	res, err := Build(Request{
		PCRs:             []uint8{PCR11},
		CurrentEntryFile: "current.efi",
		Runtime:          RuntimeTypeContainer,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.UKIPaths) != 1 {
		t.Fatalf("expected 1 UKI path, got %v", res.UKIPaths)
	}
	want := "/host/boot/efi/boot/EFI/Linux/current.efi"
	if res.UKIPaths[0] != want {
		t.Fatalf("expected %q, got %q", want, res.UKIPaths[0])
	}
}
