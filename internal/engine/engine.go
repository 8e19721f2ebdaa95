// Package engine implements the Servicing FSM: the top-level Install,
// Update, Commit, and Rollback operations that drive a HostStatus through
// its servicing states, wiring together the storage graph, the partition
// planner, the RAID assembler, the encryption provisioner, the boot-entry
// manager, and the rollback-history analyzer around the datastore's
// append-only log.
package engine

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/go-cmp/cmp"
	log "github.com/sirupsen/logrus"

	"github.com/microsoft/trident/internal/boot"
	"github.com/microsoft/trident/internal/config"
	"github.com/microsoft/trident/internal/datastore"
	trerrors "github.com/microsoft/trident/internal/errors"
	"github.com/microsoft/trident/internal/graph"
	"github.com/microsoft/trident/internal/rollback"
	"github.com/microsoft/trident/internal/status"
	"github.com/microsoft/trident/internal/storage/encryption"
	"github.com/microsoft/trident/internal/storage/encryption/pcrlock"
	"github.com/microsoft/trident/internal/storage/partition"
	"github.com/microsoft/trident/internal/storage/raid"
)

// AllowedOps gates which half of a stage/finalize operation a caller may
// run in one invocation; a caller that only wants to stage (leaving
// finalize for after a reboot window, say) sets Finalize to false.
type AllowedOps struct {
	Stage    bool
	Finalize bool
}

// AllOps permits both halves of every operation.
var AllOps = AllowedOps{Stage: true, Finalize: true}

// DefaultVersion is stamped into HostStatus.TridentVersion when an Engine's
// Version field is left unset.
const DefaultVersion = "1.2.0"

func (e *Engine) effectiveVersion() string {
	if e.Version == "" {
		return DefaultVersion
	}
	return e.Version
}

// ExitKind reports what the caller must do after an operation returns.
type ExitKind string

const (
	ExitDone        ExitKind = "done"
	ExitNeedsReboot ExitKind = "needs-reboot"
)

// Engine wires every storage-graph component into the four public
// servicing operations. Encryption may be nil; staging a host configuration
// that declares encryption then fails with an Internal error.
type Engine struct {
	Datastore  *datastore.Datastore
	Partition  *partition.Planner
	Raid       *raid.Assembler
	Encryption *encryption.Provisioner
	Boot       *boot.Manager

	IsUKI   bool
	ESPRoot string

	// Version is this build's own servicing-core version, stamped into
	// every HostStatus record it writes; the rollback-history analyzer adds
	// no rollback point for a Provisioned record written by a Version older
	// than rollback.MinimumRollbackVersion. Defaults to DefaultVersion.
	Version string

	// PhoneHome, if set, is invoked with the HostStatus and error (nil on
	// success) whenever withErrorRecording finishes a public operation.
	PhoneHome func(status.HostStatus, error)

	// BootValidate and HealthCheck, if set, are run in order by Commit.
	// A BootValidate error fails the commit without advancing state; a
	// HealthCheck error fails it after appending AbUpdateHealthCheckFailed.
	BootValidate func(ctx context.Context) error
	HealthCheck  func(ctx context.Context) error
}

// withErrorRecording clears LastError before running fn, except when the
// HostStatus fn is about to operate on is AbUpdateHealthCheckFailed: then
// the error it carried is kept, both when fn succeeds and when fn fails
// again (the new failure does not overwrite it), so the original
// diagnostic stays visible after the host leaves that state. Otherwise a
// failure of fn records its own error. PhoneHome, if set, is invoked
// with the resulting HostStatus and the operation's error (nil on success).
func (e *Engine) withErrorRecording(ctx context.Context, fn func(ctx context.Context) (ExitKind, error)) (ExitKind, error) {
	current, err := e.Datastore.HostStatus()
	if err != nil {
		return "", err
	}

	var preserve *string
	if current.ServicingState == status.ServicingStateAbUpdateHealthCheckFailed {
		preserve = current.LastError
	}

	if err := e.Datastore.WithHostStatus(func(hs *status.HostStatus) error {
		hs.LastError = preserve
		return nil
	}); err != nil {
		return "", err
	}

	exit, opErr := fn(ctx)

	if opErr != nil {
		reason := opErr.Error()
		if preserve != nil {
			reason = *preserve
		}
		if recErr := e.Datastore.WithHostStatus(func(hs *status.HostStatus) error {
			hs.LastError = &reason
			return nil
		}); recErr != nil {
			log.WithError(recErr).Error("failed to record operation error in host status")
		}
	}

	latest, histErr := e.Datastore.HostStatus()
	if histErr != nil {
		if opErr == nil {
			return "", histErr
		}
		log.WithError(histErr).Warn("failed to read host status while recording an operation error")
	}

	if e.PhoneHome != nil {
		e.PhoneHome(latest, opErr)
	}

	return exit, opErr
}

// Install runs (or resumes) a clean install, valid from NotProvisioned, or
// from Provisioned when multiboot is true (in which case the caller is
// expected to have pointed Datastore at a fresh temporary store before
// calling Install). From CleanInstallStaged with the same spec only the
// finalize step runs; from CleanInstallFinalized with the same spec the
// install is already done and Install returns ExitNeedsReboot without
// appending a new phase.
func (e *Engine) Install(ctx context.Context, hc *config.HostConfiguration, allowed AllowedOps, multiboot bool) (ExitKind, error) {
	return e.withErrorRecording(ctx, func(ctx context.Context) (ExitKind, error) {
		current, err := e.Datastore.HostStatus()
		if err != nil {
			return "", err
		}

		switch current.ServicingState {
		case status.ServicingStateNotProvisioned:
			// proceed below
		case status.ServicingStateCleanInstallStaged:
			if specEqual(current.Spec, *hc) {
				if !allowed.Finalize {
					return ExitDone, nil
				}
				return e.finalizeCleanInstall(ctx)
			}
		case status.ServicingStateCleanInstallFinalized:
			if !specEqual(current.Spec, *hc) {
				return "", trerrors.InvalidInput(fmt.Sprintf(
					"Install is not valid from servicing state '%s' with a different host configuration", current.ServicingState))
			}
			return ExitNeedsReboot, nil
		case status.ServicingStateProvisioned:
			if !multiboot {
				return "", trerrors.InvalidInput(
					"refusing Install: host is already provisioned and multiboot was not requested")
			}
		default:
			return "", trerrors.InvalidInput(fmt.Sprintf(
				"Install is not valid from servicing state '%s'", current.ServicingState))
		}

		if !allowed.Stage {
			return ExitDone, nil
		}
		if err := e.stageCleanInstall(ctx, hc); err != nil {
			return "", err
		}
		if !allowed.Finalize {
			return ExitDone, nil
		}
		return e.finalizeCleanInstall(ctx)
	})
}

func (e *Engine) stageCleanInstall(ctx context.Context, hc *config.HostConfiguration) error {
	g, err := graph.Build(hc)
	if err != nil {
		return err
	}

	return e.Datastore.WithHostStatus(func(hs *status.HostStatus) error {
		hs.TridentVersion = e.effectiveVersion()
		hs.Spec = *hc

		for i := range hc.Storage.Disks {
			if err := e.Partition.PlanDisk(ctx, g, &hc.Storage.Disks[i], hs); err != nil {
				return err
			}
		}

		if len(hc.Storage.RaidArrays) > 0 {
			if err := e.Raid.Assemble(ctx, hc, hs); err != nil {
				return err
			}
		}

		if hc.Encryption != nil {
			if e.Encryption == nil {
				return trerrors.Internal("host configuration declares encryption but no Provisioner is wired")
			}
			if err := e.Encryption.Provision(ctx, g, hc, hs); err != nil {
				return err
			}
		}

		hs.ServicingState = status.ServicingStateCleanInstallStaged
		hs.ServicingType = status.ServicingTypeCleanInstall
		hs.AbActiveVolume = status.ABVolumeA
		return nil
	})
}

func (e *Engine) finalizeCleanInstall(ctx context.Context) (ExitKind, error) {
	current, err := e.Datastore.HostStatus()
	if err != nil {
		return "", err
	}

	if err := e.createBootEntry(ctx, &current); err != nil {
		return "", err
	}

	if err := e.Datastore.WithHostStatus(func(hs *status.HostStatus) error {
		hs.TridentVersion = e.effectiveVersion()
		hs.ServicingState = status.ServicingStateCleanInstallFinalized
		return nil
	}); err != nil {
		return "", err
	}

	return ExitNeedsReboot, nil
}

// Commit runs boot-validation (and, on success, a post-boot health check)
// against the most recently finalized servicing operation. On success the
// HostStatus advances to Provisioned; on health-check failure it advances
// to AbUpdateHealthCheckFailed instead and returns a HealthCheck error.
func (e *Engine) Commit(ctx context.Context) (ExitKind, error) {
	return e.withErrorRecording(ctx, func(ctx context.Context) (ExitKind, error) {
		current, err := e.Datastore.HostStatus()
		if err != nil {
			return "", err
		}

		switch current.ServicingState {
		case status.ServicingStateCleanInstallFinalized,
			status.ServicingStateAbUpdateFinalized,
			status.ServicingStateAbUpdateHealthCheckFailed,
			status.ServicingStateManualRollbackFinalized:
			// valid
		default:
			return "", trerrors.InvalidInput(fmt.Sprintf(
				"Commit is not valid from servicing state '%s'", current.ServicingState))
		}

		if e.BootValidate != nil {
			if err := e.BootValidate(ctx); err != nil {
				return "", trerrors.BootValidation(err.Error())
			}
		}

		if e.HealthCheck != nil {
			if err := e.HealthCheck(ctx); err != nil {
				if recErr := e.Datastore.WithHostStatus(func(hs *status.HostStatus) error {
					hs.TridentVersion = e.effectiveVersion()
					hs.ServicingState = status.ServicingStateAbUpdateHealthCheckFailed
					return nil
				}); recErr != nil {
					return "", recErr
				}
				return "", trerrors.HealthCheck(err.Error())
			}
		}

		if err := e.Datastore.WithHostStatus(func(hs *status.HostStatus) error {
			hs.TridentVersion = e.effectiveVersion()
			hs.ServicingState = status.ServicingStateProvisioned
			return nil
		}); err != nil {
			return "", err
		}

		return ExitDone, nil
	})
}

// Update runs (or resumes) an A/B or runtime update, valid from
// Provisioned, or from {AbUpdateStaged, RuntimeUpdateStaged} to resume a
// previously staged, not-yet-finalized update with the same spec.
func (e *Engine) Update(ctx context.Context, hc *config.HostConfiguration, allowed AllowedOps) (ExitKind, error) {
	return e.withErrorRecording(ctx, func(ctx context.Context) (ExitKind, error) {
		current, err := e.Datastore.HostStatus()
		if err != nil {
			return "", err
		}

		isAbUpdate := len(hc.Storage.ABVolumes) > 0

		switch current.ServicingState {
		case status.ServicingStateProvisioned:
			// proceed below
		case status.ServicingStateAbUpdateStaged, status.ServicingStateRuntimeUpdateStaged:
			if specEqual(current.Spec, *hc) {
				if !allowed.Finalize {
					return ExitDone, nil
				}
				return e.finalizeUpdate(ctx, isAbUpdate)
			}
		default:
			return "", trerrors.InvalidInput(fmt.Sprintf(
				"Update is not valid from servicing state '%s'", current.ServicingState))
		}

		if !allowed.Stage {
			return ExitDone, nil
		}
		if err := e.stageUpdate(ctx, hc, isAbUpdate); err != nil {
			return "", err
		}
		if !allowed.Finalize {
			return ExitDone, nil
		}
		return e.finalizeUpdate(ctx, isAbUpdate)
	})
}

func (e *Engine) stageUpdate(ctx context.Context, hc *config.HostConfiguration, isAbUpdate bool) error {
	g, err := graph.Build(hc)
	if err != nil {
		return err
	}

	return e.Datastore.WithHostStatus(func(hs *status.HostStatus) error {
		hs.TridentVersion = e.effectiveVersion()
		previous := hs.Spec
		hs.SpecOld = &previous
		hs.Spec = *hc

		for i := range hc.Storage.Disks {
			if err := e.Partition.PlanDisk(ctx, g, &hc.Storage.Disks[i], hs); err != nil {
				return err
			}
		}

		if hc.Encryption != nil {
			if e.Encryption == nil {
				return trerrors.Internal("host configuration declares encryption but no Provisioner is wired")
			}
			if err := e.Encryption.Provision(ctx, g, hc, hs); err != nil {
				return err
			}
		}

		if isAbUpdate {
			hs.ServicingState = status.ServicingStateAbUpdateStaged
			hs.ServicingType = status.ServicingTypeAbUpdate
			hs.AbActiveVolume = hs.AbActiveVolume.Other()
		} else {
			hs.ServicingState = status.ServicingStateRuntimeUpdateStaged
			hs.ServicingType = status.ServicingTypeRuntimeUpdate
		}
		return nil
	})
}

func (e *Engine) finalizeUpdate(ctx context.Context, isAbUpdate bool) (ExitKind, error) {
	if !isAbUpdate {
		if err := e.Datastore.WithHostStatus(func(hs *status.HostStatus) error {
			hs.TridentVersion = e.effectiveVersion()
			hs.ServicingState = status.ServicingStateProvisioned
			return nil
		}); err != nil {
			return "", err
		}
		return ExitDone, nil
	}

	current, err := e.Datastore.HostStatus()
	if err != nil {
		return "", err
	}

	if err := e.createBootEntry(ctx, &current); err != nil {
		return "", err
	}

	if err := e.Datastore.WithHostStatus(func(hs *status.HostStatus) error {
		hs.TridentVersion = e.effectiveVersion()
		hs.ServicingState = status.ServicingStateAbUpdateFinalized
		return nil
	}); err != nil {
		return "", err
	}

	return ExitNeedsReboot, nil
}

// Rollback undoes the most recent available servicing operation, selected
// via the rollback-history analyzer against the caller's expectation of
// which kind of update it undoes.
func (e *Engine) Rollback(ctx context.Context, expectRuntime, expectAb bool, allowed AllowedOps) (ExitKind, error) {
	return e.withErrorRecording(ctx, func(ctx context.Context) (ExitKind, error) {
		current, err := e.Datastore.HostStatus()
		if err != nil {
			return "", err
		}

		switch current.ServicingState {
		case status.ServicingStateProvisioned,
			status.ServicingStateManualRollbackStaged,
			status.ServicingStateManualRollbackFinalized:
			// valid
		default:
			return "", trerrors.InvalidInput(fmt.Sprintf(
				"Rollback is not valid from servicing state '%s'", current.ServicingState))
		}

		histories, err := e.Datastore.GetHostStatuses()
		if err != nil {
			return "", err
		}
		analyzer, err := rollback.NewContext(histories)
		if err != nil {
			return "", err
		}
		chain := analyzer.GetRollbackChain()

		idx, kind, err := rollback.GetRequestedRollback(chain, expectRuntime, expectAb)
		if err != nil {
			return "", err
		}
		if idx == nil {
			return "", trerrors.InvalidInput("no rollback is available")
		}
		target := chain[*idx]
		requiresReboot := kind == "ab"

		if current.ServicingState == status.ServicingStateProvisioned {
			if !allowed.Stage {
				return ExitDone, nil
			}
			if err := e.Datastore.WithHostStatus(func(hs *status.HostStatus) error {
				hs.TridentVersion = e.effectiveVersion()
				hs.SpecOld = &hs.Spec
				hs.Spec = target.HostStatus.Spec
				hs.ServicingState = status.ServicingStateManualRollbackStaged
				hs.ServicingType = status.ServicingTypeManualRollback
				if requiresReboot {
					hs.AbActiveVolume = target.HostStatus.AbActiveVolume
				}
				return nil
			}); err != nil {
				return "", err
			}
		}

		if !allowed.Finalize {
			return ExitDone, nil
		}
		return e.finalizeRollback(ctx, requiresReboot)
	})
}

func (e *Engine) finalizeRollback(ctx context.Context, requiresReboot bool) (ExitKind, error) {
	if !requiresReboot {
		if err := e.Datastore.WithHostStatus(func(hs *status.HostStatus) error {
			hs.TridentVersion = e.effectiveVersion()
			hs.ServicingState = status.ServicingStateProvisioned
			return nil
		}); err != nil {
			return "", err
		}
		return ExitDone, nil
	}

	current, err := e.Datastore.HostStatus()
	if err != nil {
		return "", err
	}

	if e.IsUKI {
		if err := e.rotateLoaderEntries(ctx, current.AbActiveVolume); err != nil {
			return "", err
		}
	} else {
		if err := e.createBootEntry(ctx, &current); err != nil {
			return "", err
		}
	}

	if err := e.Datastore.WithHostStatus(func(hs *status.HostStatus) error {
		hs.TridentVersion = e.effectiveVersion()
		hs.ServicingState = status.ServicingStateManualRollbackFinalized
		return nil
	}); err != nil {
		return "", err
	}

	return ExitNeedsReboot, nil
}

func (e *Engine) rotateLoaderEntries(ctx context.Context, rolledBackTo status.ABVolumeSelection) error {
	installName := pcrlock.InstallNameFor(rolledBackTo)
	raw, err := e.Boot.ReadLoaderEntriesFile(ctx)
	if err != nil {
		return err
	}
	entries, err := boot.DecodeLoaderEntries(raw)
	if err != nil {
		return err
	}
	rotated := entries.SetDefaultToPrevious(installName)
	encoded, err := rotated.Encode()
	if err != nil {
		return err
	}
	return e.Boot.WriteLoaderEntriesFile(ctx, encoded)
}

// createBootEntry creates (or replaces) the boot entry for hs's currently
// active A/B volume, pointing at that volume's ESP install directory.
func (e *Engine) createBootEntry(ctx context.Context, hs *status.HostStatus) error {
	diskPath, partitionNumber, err := e.findESP(hs)
	if err != nil {
		return err
	}

	installName := pcrlock.InstallNameFor(hs.AbActiveVolume)
	label := installName
	loaderRelPath := fmt.Sprintf("EFI/%s/%s", installName, pcrlock.BootloaderEFIName)

	if err := e.Boot.DeleteEntriesWithLabel(ctx, label); err != nil {
		return err
	}
	return e.Boot.Create(ctx, label, diskPath, e.ESPRoot, loaderRelPath, partitionNumber)
}

var trailingDigits = regexp.MustCompile(`p?([0-9]+)$`)

// findESP locates the configured ESP partition's backing disk and
// partition number from the most recently recorded block device paths.
func (e *Engine) findESP(hs *status.HostStatus) (diskPath string, partitionNumber int, err error) {
	for _, disk := range hs.Spec.Storage.Disks {
		for _, part := range disk.Partitions {
			if part.PartitionType != config.PartitionTypeESP {
				continue
			}
			bp, ok := hs.BlockDevicePaths[part.ID]
			if !ok {
				return "", 0, trerrors.Internal(fmt.Sprintf(
					"ESP partition '%s' has no resolved block device path", part.ID))
			}
			num, err := partitionNumberOf(bp.Path)
			if err != nil {
				return "", 0, err
			}
			return disk.Device, num, nil
		}
	}
	return "", 0, trerrors.InvalidInput("no ESP partition declared in host configuration")
}

func partitionNumberOf(path string) (int, error) {
	m := trailingDigits.FindStringSubmatch(path)
	if m == nil {
		return 0, trerrors.Internal(fmt.Sprintf("could not parse a partition number out of '%s'", path))
	}
	var n int
	if _, err := fmt.Sscanf(m[1], "%d", &n); err != nil {
		return 0, trerrors.Internal(fmt.Sprintf("could not parse a partition number out of '%s'", path))
	}
	return n, nil
}

// specEqual reports whether two host configurations are deeply equal,
// deciding whether a re-issued Install/Update is a true no-op resume
// rather than a request to re-stage with new content.
func specEqual(a, b config.HostConfiguration) bool {
	return cmp.Equal(a, b)
}
