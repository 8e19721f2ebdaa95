// Package status defines the persisted HostStatus record: the actual state
// of the host after each successfully completed servicing phase. Records
// are immutable once appended; see internal/datastore for the append-only
// log that stores them.
package status

import (
	"github.com/microsoft/trident/internal/config"
)

// ServicingState is the fine-grained state of a HostStatus record, tracking
// exactly where a multi-phase operation left off.
type ServicingState string

const (
	ServicingStateNotProvisioned ServicingState = "not-provisioned"
	ServicingStateCleanInstallStaged ServicingState = "clean-install-staged"
	ServicingStateCleanInstallFinalized ServicingState = "clean-install-finalized"
	ServicingStateProvisioned ServicingState = "provisioned"
	ServicingStateAbUpdateStaged ServicingState = "ab-update-staged"
	ServicingStateAbUpdateFinalized ServicingState = "ab-update-finalized"
	ServicingStateAbUpdateHealthCheckFailed ServicingState = "ab-update-health-check-failed"
	ServicingStateRuntimeUpdateStaged ServicingState = "runtime-update-staged"
	ServicingStateManualRollbackStaged ServicingState = "manual-rollback-staged"
	ServicingStateManualRollbackFinalized ServicingState = "manual-rollback-finalized"
)

// ServicingType identifies the kind of servicing operation that produced (or
// is in flight for) a HostStatus record.
type ServicingType string

const (
	ServicingTypeCleanInstall ServicingType = "clean-install"
	ServicingTypeAbUpdate ServicingType = "ab-update"
	ServicingTypeRuntimeUpdate ServicingType = "runtime-update"
	ServicingTypeManualRollback ServicingType = "manual-rollback"
	ServicingTypeNoActiveService ServicingType = "no-active-servicing"
)

// ABVolumeSelection identifies which half of an A/B pair is currently (or
// was most recently) active.
type ABVolumeSelection string

const (
	ABVolumeNone ABVolumeSelection = ""
	ABVolumeA ABVolumeSelection = "A"
	ABVolumeB ABVolumeSelection = "B"
)

// Other returns the opposite half of an A/B pair; it returns ABVolumeNone
// when called on ABVolumeNone.
func (v ABVolumeSelection) Other() ABVolumeSelection {
	switch v {
	case ABVolumeA:
		return ABVolumeB
	case ABVolumeB:
		return ABVolumeA
	default:
		return ABVolumeNone
	}
}

// BlockDevicePath records where a declared block device ended up on disk,
// and whether it has been initialized with content yet.
type BlockDevicePath struct {
	Path string `json:"path"`
	SizeBytes uint64 `json:"sizeBytes"`
	Initialization InitializationState `json:"initialization"`
}

// InitializationState tracks whether a block device's content is known-good.
type InitializationState string

const (
	InitializationUnknown InitializationState = "unknown"
	InitializationInitialized InitializationState = "initialized"
)

// HostStatus is the persisted actual state of the host after a successful
// servicing phase. Records are never mutated in place; each append is a new
// record in the datastore log.
type HostStatus struct {
	Spec    config.HostConfiguration  `json:"spec"`
	SpecOld *config.HostConfiguration `json:"specOld,omitempty"`

	ServicingState ServicingState    `json:"servicingState"`
	ServicingType  ServicingType     `json:"servicingType"`
	AbActiveVolume ABVolumeSelection `json:"abActiveVolume"`
	InstallIndex   uint64            `json:"installIndex"`

	BlockDevicePaths map[config.BlockDeviceID]BlockDevicePath `json:"blockDevicePaths,omitempty"`
	DiskUUIDs        map[config.BlockDeviceID]string          `json:"diskUuids,omitempty"`

	TridentVersion string  `json:"tridentVersion"`
	LastError      *string `json:"lastError,omitempty"`
}

// RollbackDetail is one entry in the rollback-history analyzer's available
// rollback list: the HostStatus a rollback would restore, and whether
// applying it requires a reboot. Mirrors manual_rollback_utils::RollbackDetail.
type RollbackDetail struct {
	RequiresReboot bool       `json:"requiresReboot"`
	HostStatus     HostStatus `json:"hostStatus"`

	// Index is the record's position in the datastore log this detail was
	// computed from. Not serialized externally (mirrors the Rust source's
	// #[serde(skip)] host_status_index), but exposed to Go callers that need
	// to truncate/replay against the log.
	Index int `json:"-"`
}

// Clone returns a deep-enough copy of a HostStatus suitable for staging
// mutation: the caller may freely modify the returned value and then hand it
// to datastore.WithHostStatus without aliasing the stored record.
func (h HostStatus) Clone() HostStatus {
	clone := h
	if h.SpecOld != nil {
		specOld := *h.SpecOld
		clone.SpecOld = &specOld
	}
	if h.LastError != nil {
		errCopy := *h.LastError
		clone.LastError = &errCopy
	}
	if h.BlockDevicePaths != nil {
		clone.BlockDevicePaths = make(map[config.BlockDeviceID]BlockDevicePath, len(h.BlockDevicePaths))
		for k, v := range h.BlockDevicePaths {
			clone.BlockDevicePaths[k] = v
		}
	}
	if h.DiskUUIDs != nil {
		clone.DiskUUIDs = make(map[config.BlockDeviceID]string, len(h.DiskUUIDs))
		for k, v := range h.DiskUUIDs {
			clone.DiskUUIDs[k] = v
		}
	}
	return clone
}
