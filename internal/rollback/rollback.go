// Package rollback replays the full HostStatus log to determine which
// prior states are still available as manual rollback targets for each
// half of an A/B pair, and which action (runtime or A/B) undoing the most
// recent one would perform. Ported from manual_rollback_utils::ManualRollbackContext.
package rollback

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
	log "github.com/sirupsen/logrus"

	trerrors "github.com/microsoft/trident/internal/errors"
	"github.com/microsoft/trident/internal/status"
)

// MinimumRollbackVersion is the oldest Trident version whose HostStatus
// records carry enough information to compute a manual rollback. A
// Provisioned record written by an older (or unversioned) agent adds no
// rollback point for the Provisioned state before it.
const MinimumRollbackVersion = "0.21.0"

// Context is the replayed manual-rollback state derived from a HostStatus
// log: for each half of an A/B pair, the chain of previously-Provisioned
// states still available to roll back to.
type Context struct {
	volumeAAvailableRollbacks []status.RollbackDetail
	volumeBAvailableRollbacks []status.RollbackDetail
	activeVolume status.ABVolumeSelection
	rollbackAction status.ServicingType
	rollbackVolume status.ABVolumeSelection
}

// NewContext replays hostStatuses (oldest first, as returned by
// datastore.GetHostStatuses) into a Context.
func NewContext(hostStatuses []status.HostStatus) (*Context, error) {
	minimumVersion, err := semver.NewVersion(MinimumRollbackVersion)
	if err != nil {
		return nil, trerrors.Internal(fmt.Sprintf(
				"failed to parse minimum rollback Trident version '%s': %v", MinimumRollbackVersion, err))
	}

	ctx := &Context{}

	// Offline-initialize hosts can start with several (anecdotally three)
	// consecutive Provisioned records before any servicing has run. The
	// first of those never represents a rollback opportunity, but none of
	// the leading run does either: there is nothing to roll back to yet.
	lastInitialConsecutiveProvisioned := -1
	for i, hs := range hostStatuses {
		if hs.ServicingState != status.ServicingStateProvisioned {
			break
		}
		lastInitialConsecutiveProvisioned = i
	}

	var (
		autoRollback bool
		lastProvisioned bool
		rollback bool
		needsReboot bool
		activeIndex = -1
	)

	for i, hs := range hostStatuses {
		tridentIsTooOld, err := isVersionTooOld(hs.TridentVersion, minimumVersion)
		if err != nil {
			return nil, err
		}

		log.WithFields(log.Fields{
				"index": i,
				"servicingState": hs.ServicingState,
				"activeVolume": hs.AbActiveVolume,
				"tooOld": tridentIsTooOld,
		}).Trace("replaying host status")

		// If the inactive volume is about to be overwritten by an A/B
		// update, its available rollbacks no longer apply.
		if hs.ServicingState == status.ServicingStateAbUpdateStaged {
			switch hs.AbActiveVolume {
			case status.ABVolumeA:
				ctx.volumeBAvailableRollbacks = nil
			case status.ABVolumeB:
				ctx.volumeAAvailableRollbacks = nil
			}
		}

		if hs.ServicingState == status.ServicingStateProvisioned {
			// Ignoring the very first Provisioned state (there is nothing
			// to roll back to yet), update the available rollbacks
			// depending on what produced this Provisioned state.
			if !lastProvisioned && activeIndex != -1 {
				previous := status.RollbackDetail{
					HostStatus: hostStatuses[activeIndex],
					Index: activeIndex,
					RequiresReboot: needsReboot,
				}

				switch {
				case autoRollback:
					// Automatic rollback consumes no manual rollback slot.

				case rollback:
					activeVolumeChanged := hs.AbActiveVolume != ctx.activeVolume
					if activeVolumeChanged {
						// The previously active volume's whole chain is
						// gone, and the newly active volume consumed its
						// first available rollback to get here.
						switch ctx.activeVolume {
						case status.ABVolumeA:
							ctx.volumeAAvailableRollbacks = nil
						case status.ABVolumeB:
							ctx.volumeBAvailableRollbacks = nil
						}
						switch hs.AbActiveVolume {
						case status.ABVolumeA:
							ctx.volumeAAvailableRollbacks = popFront(ctx.volumeAAvailableRollbacks)
						case status.ABVolumeB:
							ctx.volumeBAvailableRollbacks = popFront(ctx.volumeBAvailableRollbacks)
						}
					} else {
						// A runtime rollback was performed: the active
						// volume consumed its first available rollback.
						switch ctx.activeVolume {
						case status.ABVolumeA:
							ctx.volumeAAvailableRollbacks = popFront(ctx.volumeAAvailableRollbacks)
						case status.ABVolumeB:
							ctx.volumeBAvailableRollbacks = popFront(ctx.volumeBAvailableRollbacks)
						}
					}

				case previous.Index >= lastInitialConsecutiveProvisioned:
					lastErrorExists := hs.LastError != nil
					encryptionConfigured := hs.Spec.Encryption != nil
					activeVolumeChanged := hs.AbActiveVolume != ctx.activeVolume
					// FOR NOW: manual rollback of an A/B update that also
					// changed the active volume is not supported when
					// encryption is configured.
					encryptionWithVolumeChange := encryptionConfigured && activeVolumeChanged

					switch {
					case !lastErrorExists && !tridentIsTooOld && !encryptionWithVolumeChange && ctx.activeVolume == status.ABVolumeA:
						ctx.volumeAAvailableRollbacks = append([]status.RollbackDetail{previous}, ctx.volumeAAvailableRollbacks...)
					case !lastErrorExists && !tridentIsTooOld && !encryptionWithVolumeChange && ctx.activeVolume == status.ABVolumeB:
						ctx.volumeBAvailableRollbacks = append([]status.RollbackDetail{previous}, ctx.volumeBAvailableRollbacks...)
					}
				}
			}

			ctx.activeVolume = hs.AbActiveVolume
			activeIndex = i
			needsReboot = false
			rollback = false
			autoRollback = false
			lastProvisioned = true
		} else {
			rollback = hs.ServicingState == status.ServicingStateManualRollbackStaged ||
			hs.ServicingState == status.ServicingStateManualRollbackFinalized
			needsReboot = hs.ServicingState == status.ServicingStateAbUpdateFinalized
			if hs.ServicingState == status.ServicingStateAbUpdateHealthCheckFailed {
				autoRollback = true
			}
			lastProvisioned = false
		}
	}

	if idx, vol, ok := ctx.GetFirstRollback(); ok {
		ctx.rollbackVolume = vol
		ctx.rollbackAction = ""
		if idx != -1 {
			switch hostStatuses[idx+1].ServicingState {
			case status.ServicingStateAbUpdateStaged, status.ServicingStateAbUpdateFinalized:
				ctx.rollbackAction = status.ServicingTypeAbUpdate
			case status.ServicingStateRuntimeUpdateStaged:
				ctx.rollbackAction = status.ServicingTypeRuntimeUpdate
			}
		}
	}

	return ctx, nil
}

// GetFirstRollback returns the index and volume of the most recent available
// rollback across both halves, preferring whichever has the higher (more
// recent) index. The second return value is false when no rollback is
// available.
func (c *Context) GetFirstRollback() (int, status.ABVolumeSelection, bool) {
	rollbackA, rollbackB := -1, -1
	if len(c.volumeAAvailableRollbacks) > 0 {
		rollbackA = c.volumeAAvailableRollbacks[0].Index
	}
	if len(c.volumeBAvailableRollbacks) > 0 {
		rollbackB = c.volumeBAvailableRollbacks[0].Index
	}
	if rollbackA > rollbackB {
		return rollbackA, status.ABVolumeA, true
	}
	if rollbackB != -1 {
		return rollbackB, status.ABVolumeB, true
	}
	return -1, status.ABVolumeNone, false
}

// RequiresReboot reports whether undoing the most recent available rollback
// would perform an A/B update rollback (reboot required) rather than a
// runtime update rollback.
func (c *Context) RequiresReboot() bool {
	return c.rollbackAction == status.ServicingTypeAbUpdate
}

// GetRollbackChain returns every available rollback across both volumes,
// most recent first.
func (c *Context) GetRollbackChain() []status.RollbackDetail {
	chain := make([]status.RollbackDetail, 0, len(c.volumeAAvailableRollbacks)+len(c.volumeBAvailableRollbacks))
	chain = append(chain, c.volumeAAvailableRollbacks...)
	chain = append(chain, c.volumeBAvailableRollbacks...)
	sort.Slice(chain, func(i, j int) bool { return chain[i].Index > chain[j].Index })
	log.WithField("count", len(chain)).Debug("computed available rollback chain")
	return chain
}

// GetRequestedRollback resolves which entry of availableRollbacks (as
// returned by GetRollbackChain) an operator-requested rollback should apply,
// given their expectation of what kind of update it undoes. Expecting
// neither kind selects the first available rollback; expecting both
// simultaneously is rejected as contradictory.
func GetRequestedRollback(availableRollbacks []status.RollbackDetail, expectRuntime, expectAb bool) (*int, string, error) {
	if len(availableRollbacks) == 0 {
		return nil, "none", nil
	}

	var rollbackIndex int
	switch {
	case !expectRuntime && !expectAb:
		rollbackIndex = 0

	case expectRuntime && !expectAb:
		if availableRollbacks[0].RequiresReboot {
			return nil, "", trerrors.InvalidInput(
				"expected to undo a runtime update but rollback will undo an A/B update")
		}
		rollbackIndex = 0

	case !expectRuntime && expectAb:
		found := -1
		for i, r := range availableRollbacks {
			if r.RequiresReboot {
				found = i
				break
			}
		}
		if found == -1 {
			return nil, "", trerrors.InvalidInput(
				"expected to undo an A/B update but no A/B rollback is available")
		}
		rollbackIndex = found

	default:
		return nil, "", trerrors.InvalidInput(
			"conflicting expectations: cannot expect to undo both a runtime update and an A/B update")
	}

	kind := "runtime"
	if availableRollbacks[rollbackIndex].RequiresReboot {
		kind = "ab"
	}
	idx := rollbackIndex
	return &idx, kind, nil
}

func popFront(details []status.RollbackDetail) []status.RollbackDetail {
	if len(details) == 0 {
		return details
	}
	return details[1:]
}

func isVersionTooOld(version string, minimum *semver.Version) (bool, error) {
	if version == "" {
		return true, nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, trerrors.InvalidInputf("failed to parse host status Trident version '%s': %v", version, err)
	}
	return v.LessThan(minimum), nil
}
