// Package pcrlock implements the PCR-Lock Policy Builder:
// resolving the UKI and bootloader binary paths a pcrlock policy should
// measure, for both the currently-booted state and a staged update.
package pcrlock

import (
	"fmt"
	"path/filepath"

	"github.com/microsoft/trident/internal/status"
)

// ESP-relative filesystem layout constants.
const (
	DefaultESPMountPoint = "/boot/efi"
	UKIDirectory = "boot/EFI/Linux"
	BootloaderEFIName = "bootx64.efi"
	GrubEFIName = "grubx64.efi"

	// TmpUKIName is the name the staged-update UKI is written under before
	// it becomes the default boot entry.
	TmpUKIName = "tmp-update.efi"
)

// PCR bit positions consulted by the selector, matching sysdefs::tpm2::Pcr.
const (
	PCR0 uint8 = 0
	PCR4 uint8 = 4
	PCR7 uint8 = 7
	PCR11 uint8 = 11
)

// RuntimeType selects how the ESP root is resolved: directly on the host,
// or prefixed with a host-root mount when running inside a container.
type RuntimeType string

const (
	RuntimeTypeHost RuntimeType = "host"
	RuntimeTypeContainer RuntimeType = "container"
)

// ResolveESPRoot returns the ESP mount point, prefixed with the host root
// when running inside a container
func (rt RuntimeType) ResolveESPRoot(espMountPoint string) string {
	if espMountPoint == "" {
		espMountPoint = DefaultESPMountPoint
	}
	if rt == RuntimeTypeContainer {
		return filepath.Join("/host", espMountPoint)
	}
	return espMountPoint
}

// Request carries everything the builder needs to compute paths for one
// call, covering both a staged update and boot-validation (when MountPath is
// empty).
type Request struct {
	PCRs []uint8
	Runtime RuntimeType
	ESPMountPoint string // defaults to DefaultESPMountPoint
	CurrentEntryFile string // e.g. "current.efi", under UKIDirectory
	ActiveVolume status.ABVolumeSelection
	// MountPath is the root of the staged update's mounted filesystem, set
	// only while staging an update; empty during boot-validation.
	MountPath string
	// IsBootValidation selects the boot-validation behavior: only the
	// current entry is included in the UKI list, and the bootloader paths
	// use the other side of ActiveVolume (volume A when ActiveVolume is
	// unset).
	IsBootValidation bool
	// Exists reports whether a path exists on disk; injected for testing.
	Exists func(path string) bool
}

// Result is the set of paths the pcrlock policy should measure.
type Result struct {
	UKIPaths []string
	BootloaderPaths []string
}

// bootValidationVolume derives which half of the A/B pair a boot-validation
// measurement targets: always the opposite of the stored active volume,
// with no recorded active volume treated the same as VolumeB so it
// resolves to VolumeA (booting into A for the first time).
func bootValidationVolume(v status.ABVolumeSelection) status.ABVolumeSelection {
	if v == status.ABVolumeA {
		return status.ABVolumeB
	}
	return status.ABVolumeA
}

func hasPCR(pcrs []uint8, want uint8) bool {
	for _, p := range pcrs {
		if p == want {
			return true
		}
	}
	return false
}

// Build computes the UKI and bootloader path lists
// Returns an error citing every missing path if any computed path does not
// exist.
func Build(req Request) (*Result, error) {
	if !hasPCR(req.PCRs, PCR4) && !hasPCR(req.PCRs, PCR11) {
		return &Result{}, nil
	}

	espRoot := req.Runtime.ResolveESPRoot(req.ESPMountPoint)

	result := &Result{}

	currentUKI := filepath.Join(espRoot, UKIDirectory, req.CurrentEntryFile)
	result.UKIPaths = append(result.UKIPaths, currentUKI)
	if !req.IsBootValidation && req.MountPath != "" {
		result.UKIPaths = append(result.UKIPaths, filepath.Join(espRoot, UKIDirectory, TmpUKIName))
	}

	if hasPCR(req.PCRs, PCR4) {
		activeVolume := req.ActiveVolume
		if req.IsBootValidation {
			activeVolume = bootValidationVolume(activeVolume)
		}
		active := InstallNameFor(activeVolume)
		result.BootloaderPaths = append(result.BootloaderPaths,
			filepath.Join(espRoot, "EFI", active, BootloaderEFIName),
			filepath.Join(espRoot, "EFI", active, GrubEFIName),
		)

		if !req.IsBootValidation && req.MountPath != "" {
			staged := InstallNameFor(activeVolume.Other())
			result.BootloaderPaths = append(result.BootloaderPaths,
				filepath.Join(req.MountPath, "EFI", staged, BootloaderEFIName),
				filepath.Join(req.MountPath, "EFI", staged, GrubEFIName),
			)
		}
	}

	if req.Exists != nil {
		var missing []string
		for _, p := range append(append([]string{}, result.UKIPaths...), result.BootloaderPaths...) {
			if !req.Exists(p) {
				missing = append(missing, p)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("pcrlock policy paths do not exist: %v", missing)
		}
	}

	return result, nil
}

// InstallNameFor maps an active-volume selection to the per-install
// directory name used under EFI/ ("AZL-A"/"AZL-B").
func InstallNameFor(v status.ABVolumeSelection) string {
	switch v {
	case status.ABVolumeB:
		return "AZL-B"
	default:
		return "AZL-A"
	}
}
