// Package raid assembles the software RAID arrays declared in a
// HostConfiguration, between partitioning and the Encrypted-Volume
// Provisioner in the Storage Graph's partial order.
package raid

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/microsoft/trident/internal/adapter"
	"github.com/microsoft/trident/internal/config"
	trerrors "github.com/microsoft/trident/internal/errors"
	"github.com/microsoft/trident/internal/status"
)

// Assembler drives mdadm-shaped array creation through adapter.RaidRunner.
type Assembler struct {
	Runner adapter.RaidRunner
}

// NewAssembler builds an Assembler over runner.
func NewAssembler(runner adapter.RaidRunner) *Assembler {
	return &Assembler{Runner: runner}
}

// Assemble creates every declared RaidArray from its members' resolved
// block device paths in hs, recording the resulting /dev/md path back into
// hs.BlockDevicePaths. A member with no resolved path is an Internal error.
func (a *Assembler) Assemble(ctx context.Context, hc *config.HostConfiguration, hs *status.HostStatus) error {
	for _, arr := range hc.Storage.RaidArrays {
		members := make([]string, 0, len(arr.Members))
		var memberSize uint64
		haveSize := false
		for _, memberID := range arr.Members {
			bp, ok := hs.BlockDevicePaths[memberID]
			if !ok {
				return trerrors.Internal(fmt.Sprintf(
						"RAID array '%s' member '%s' has no resolved block device path", arr.ID, memberID))
			}
			members = append(members, bp.Path)
			if !haveSize {
				memberSize = bp.SizeBytes
				haveSize = true
			}
		}

		log.WithFields(log.Fields{
				"array": arr.ID,
				"level": arr.Level,
				"members": members,
		}).Debug("assembling raid array")

		if err := a.Runner.Create(ctx, string(arr.ID), arr.Level, members, arr.MetadataVersion); err != nil {
			return trerrors.Servicing(fmt.Sprintf("failed to create raid array '%s'", arr.ID), err)
		}

		if hs.BlockDevicePaths == nil {
			hs.BlockDevicePaths = map[config.BlockDeviceID]status.BlockDevicePath{}
		}
		hs.BlockDevicePaths[arr.ID] = status.BlockDevicePath{
			Path: "/dev/md/" + string(arr.ID),
			SizeBytes: memberSize,
			Initialization: status.InitializationUnknown,
		}
	}
	return nil
}

// StopExisting stops every pre-existing raid array reported on the given
// disk paths, so they don't interfere with repartitioning.
func (a *Assembler) StopExisting(ctx context.Context, diskPaths []string) error {
	existing, err := a.Runner.ExistingArraysOn(ctx, diskPaths)
	if err != nil {
		return trerrors.Servicing("failed to enumerate existing raid arrays", err)
	}
	for _, name := range existing {
		log.WithField("array", name).Debug("stopping pre-existing raid array")
		if err := a.Runner.Stop(ctx, name); err != nil {
			return trerrors.Servicing(fmt.Sprintf("failed to stop existing raid array '%s'", name), err)
		}
	}
	return nil
}
