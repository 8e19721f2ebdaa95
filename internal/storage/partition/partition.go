// Package partition implements the Partition Planner:
// translating a disk's declared layout into a systemd-repart invocation and
// recording the resulting geometry into a HostStatus.
package partition

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/microsoft/trident/internal/adapter"
	"github.com/microsoft/trident/internal/config"
	trerrors "github.com/microsoft/trident/internal/errors"
	"github.com/microsoft/trident/internal/graph"
	"github.com/microsoft/trident/internal/status"
	"github.com/microsoft/trident/internal/storage/adopt"
)

// emptySentinelLabel is the label external sysupdate tooling uses to treat a
// freshly-created A/B half as "old" step 4.
const emptySentinelLabel = "_empty"

// Planner drives repart for every declared disk.
type Planner struct {
	Blkid adapter.BlkidRunner
	Repart adapter.RepartRunner
	Udev adapter.UdevRunner

	// StatPath is overridable for tests; defaults to os.Stat.
	StatPath func(path string) error
}

// NewPlanner builds a Planner with the real os.Stat existence check.
func NewPlanner(blkid adapter.BlkidRunner, repart adapter.RepartRunner, udev adapter.UdevRunner) *Planner {
	return &Planner{
		Blkid: blkid,
		Repart: repart,
		Udev: udev,
		StatPath: func(path string) error {
			_, err := os.Stat(path)
			return err
		},
	}
}

// PlanDisk runs the partition-planning algorithm for one disk and writes the
// resulting block-device paths into status' BlockDevicePaths map.
func (p *Planner) PlanDisk(ctx context.Context, g *graph.Graph, disk *config.Disk, hs *status.HostStatus) error {
	if err := p.StatPath(disk.Device); err != nil {
		return trerrors.ExecutionEnvironment(fmt.Sprintf("disk device '%s' is not present", disk.Device), err)
	}

	existingRows, err := p.readExistingTable(ctx, disk)
	if err != nil {
		return err
	}

	adoptResult, err := adopt.Adopt(toAdoptExisting(existingRows), disk.AdoptedPartitions)
	if err != nil {
		return err
	}
	existingTable := len(disk.AdoptedPartitions) > 0

	entries := p.buildRepartEntries(g, disk, adoptResult)

	log.WithFields(log.Fields{
			"disk": disk.Device,
			"entryCount": len(entries),
			"adoptionCount": len(disk.AdoptedPartitions),
			"existingTable": existingTable,
	}).Debug("invoking repart")

	result, err := p.Repart.Repart(ctx, disk.Device, entries, existingTable)
	if err != nil {
		return trerrors.Servicing(fmt.Sprintf("repart failed for disk '%s'", disk.Device), err)
	}

	return p.recordResult(ctx, disk, adoptResult, result, hs)
}

func (p *Planner) readExistingTable(ctx context.Context, disk *config.Disk) ([]adapter.ExistingPartitionRow, error) {
	if len(disk.AdoptedPartitions) == 0 {
		return nil, nil
	}
	rows, err := p.Blkid.ReadPartitionTable(ctx, disk.Device)
	if err != nil {
		return nil, trerrors.Servicing(fmt.Sprintf("failed to read partition table of '%s'", disk.Device), err)
	}
	return rows, nil
}

func toAdoptExisting(rows []adapter.ExistingPartitionRow) []adopt.ExistingPartition {
	out := make([]adopt.ExistingPartition, 0, len(rows))
	for _, r := range rows {
		out = append(out, adopt.ExistingPartition{Number: r.Number, UUID: r.UUID, Label: r.Label, Path: r.Path})
	}
	return out
}

func (p *Planner) buildRepartEntries(g *graph.Graph, disk *config.Disk, adoptResult *adopt.Result) []adapter.RepartEntry {
	var entries []adapter.RepartEntry

	// Adopted entries first, pinned to their observed size.
	for _, a := range disk.AdoptedPartitions {
		existing := adoptResult.Matched[a.ID]
		entries = append(entries, adapter.RepartEntry{
				Label: existing.Label,
				MinBytes: 0, // filled by the adapter from the observed size
				MaxBytes: 0,
				ExistingPartition: true,
		})
	}

	for _, decl := range disk.Partitions {
		label := string(decl.ID)
		if g != nil && isABHalf(g, decl.ID) {
			label = emptySentinelLabel
		}
		entry := adapter.RepartEntry{Label: label, Type: string(decl.PartitionType)}
		if graphIsGrow(decl.Size) {
			entry.MaxBytes = 0
		} else if sz, err := graphParseSize(decl.Size); err == nil {
			entry.MinBytes, entry.MaxBytes = sz, sz
		}
		entries = append(entries, entry)
	}

	return entries
}

func isABHalf(g *graph.Graph, id config.BlockDeviceID) bool {
	for _, dependent := range g.Dependents(id) {
		if dependent.Kind == graph.KindABVolume {
			return true
		}
	}
	return false
}

func (p *Planner) recordResult(ctx context.Context, disk *config.Disk, adoptResult *adopt.Result, result *adapter.RepartResult, hs *status.HostStatus) error {
	if hs.BlockDevicePaths == nil {
		hs.BlockDevicePaths = map[config.BlockDeviceID]status.BlockDevicePath{}
	}

	adoptedByLabel := map[string]config.BlockDeviceID{}
	for id, existing := range adoptResult.Matched {
		adoptedByLabel[existing.Label] = id
	}

	newIdx := 0
	for _, entry := range result.Partitions {
		if err := p.Udev.WaitForPath(ctx, entry.Path); err != nil {
			return trerrors.Servicing(fmt.Sprintf("partition '%s' never appeared", entry.Path), err)
		}

		if adoptedID, ok := adoptedByLabel[entry.Label]; ok {
			hs.BlockDevicePaths[adoptedID] = status.BlockDevicePath{
				Path: entry.Path, SizeBytes: entry.SizeBytes, Initialization: status.InitializationInitialized,
			}
			continue
		}

		if newIdx >= len(disk.Partitions) {
			continue
		}
		declID := disk.Partitions[newIdx].ID
		newIdx++
		hs.BlockDevicePaths[declID] = status.BlockDevicePath{
			Path: entry.Path, SizeBytes: entry.SizeBytes, Initialization: status.InitializationUnknown,
		}
	}

	return p.Udev.Settle(ctx)
}

// graphIsGrow/graphParseSize indirect through the graph package's helpers to
// avoid duplicating the "grow" sentinel and humanize-backed size parser.
func graphIsGrow(size string) bool { return graph.IsGrow(size) }

func graphParseSize(size string) (uint64, error) { return graph.ParseSize(size) }
