// Package adopt implements the Partition Adopter: matching
// existing partitions on a disk to the declared AdoptedPartition entries,
// and determining which of the remaining existing partitions should be
// deleted.
package adopt

import (
	"fmt"

	"github.com/microsoft/trident/internal/config"
	trerrors "github.com/microsoft/trident/internal/errors"
)

// ExistingPartition is one row of the partition table read off a disk by
// the (out-of-scope) blkid/lsblk adapter.
type ExistingPartition struct {
	Number int // 1-based partition number, i.e. logical order on the disk
	UUID string // PARTUUID
	Label string // partition name / label
	Path string
}

// Result is the outcome of matching a disk's existing partition table
// against its declared adoptions.
type Result struct {
	// Matched maps a declared adopted-partition ID to the existing
	// partition row it was matched to.
	Matched map[config.BlockDeviceID]ExistingPartition
	// ToDelete lists every existing partition that was not claimed by any
	// adoption, in logical (partition-number) order.
	ToDelete []ExistingPartition
}

// Adopt runs the matching algorithm over one disk's existing partition
// table and its declared adoptions.
func Adopt(existing []ExistingPartition, adoptions []config.AdoptedPartition) (*Result, error) {
	if len(adoptions) > 0 && len(existing) == 0 {
		return nil, trerrors.InvalidInput("partition table is missing or empty but adoptions were declared")
	}

	// Ordered map keyed by partition number (logical order), tracking
	// availability.
	available := make(map[int]ExistingPartition, len(existing))
	order := make([]int, 0, len(existing))
	for _, p := range existing {
		available[p.Number] = p
		order = append(order, p.Number)
	}

	result := &Result{Matched: map[config.BlockDeviceID]ExistingPartition{}}

	for _, a := range adoptions {
		hasLabel := a.MatchLabel != ""
		hasUUID := a.MatchUUID != ""
		if hasLabel == hasUUID {
			return nil, trerrors.InvalidInputf(
				"adopted partition '%s' must set exactly one of matchLabel or matchUuid", a.ID)
		}

		var match *ExistingPartition
		if hasLabel {
			var candidates []int
			for _, n := range order {
				p, ok := available[n]
				if !ok {
					continue
				}
				if p.Label == a.MatchLabel {
					candidates = append(candidates, n)
				}
			}
			switch len(candidates) {
			case 0:
				return nil, trerrors.InvalidInputf(
					"expected exactly one partition with label '%s', found 0", a.MatchLabel)
			case 1:
				p := available[candidates[0]]
				match = &p
			default:
				return nil, trerrors.InvalidInputf(
					"expected exactly one partition with label '%s', found %d", a.MatchLabel, len(candidates))
			}
		} else {
			for _, n := range order {
				p, ok := available[n]
				if !ok {
					continue
				}
				if p.UUID == a.MatchUUID {
					found := p
					match = &found
					break
				}
			}
			if match == nil {
				return nil, trerrors.InvalidInputf(
					"no partition found with uuid '%s' for adopted partition '%s'", a.MatchUUID, a.ID)
			}
		}

		delete(available, match.Number)
		result.Matched[a.ID] = *match
	}

	for _, n := range order {
		if p, ok := available[n]; ok {
			result.ToDelete = append(result.ToDelete, p)
		}
	}

	return result, nil
}

func (r *Result) String() string {
	return fmt.Sprintf("matched=%d toDelete=%d", len(r.Matched), len(r.ToDelete))
}
