// Package display defines the display-facing domain model shared by the
// VRR controller and the present statistics aggregator: power and brightness
// modes, the display status used as a statistics key, present profiles and
// records, and per-configuration VRR parameters.
package display

import (
	"fmt"
	"sort"
)

// ConfigID is the handle of a VRR display configuration.
type ConfigID int32

// InvalidConfigID marks an unset or unknown configuration handle.
const InvalidConfigID ConfigID = -1

// UnmeasuredVsync is the NumVsync sentinel for "not yet measured". It is also
// the canonical NumVsync for the off-equivalence class, since presents while
// the panel is off carry no meaningful cadence.
const UnmeasuredVsync = -1

// PowerMode is the panel power mode. Values follow the HWC power mode order.
type PowerMode int32

const (
	PowerOff PowerMode = iota
	PowerDoze
	PowerNormal
	PowerDozeSuspend
)

func (m PowerMode) String() string {
	switch m {
	case PowerOff:
		return "off"
	case PowerDoze:
		return "doze"
	case PowerNormal:
		return "normal"
	case PowerDozeSuspend:
		return "doze_suspend"
	default:
		return fmt.Sprintf("power(%d)", int32(m))
	}
}

// BrightnessMode is the coarse panel brightness classification.
type BrightnessMode int32

const (
	BrightnessLow BrightnessMode = iota
	BrightnessNormal
	BrightnessHigh
	BrightnessInvalid
)

func (m BrightnessMode) String() string {
	switch m {
	case BrightnessLow:
		return "low"
	case BrightnessNormal:
		return "normal"
	case BrightnessHigh:
		return "high"
	case BrightnessInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("brightness(%d)", int32(m))
	}
}

// Status is the intrinsic part of the statistics key: the display
// configuration under which presents were observed.
type Status struct {
	ActiveConfigID ConfigID       `json:"active_config_id"`
	PowerMode      PowerMode      `json:"power_mode"`
	BrightnessMode BrightnessMode `json:"brightness_mode"`
}

// IsOff reports whether the panel is effectively off. Off and doze-suspend
// collapse into one equivalence class for statistics keying.
func (s Status) IsOff() bool {
	return s.PowerMode == PowerOff || s.PowerMode == PowerDozeSuspend
}

// Equal compares two statuses under off-equivalence: if either side is off,
// they are equal iff both are off; otherwise field-wise.
func (s Status) Equal(o Status) bool {
	if s.IsOff() || o.IsOff() {
		return s.IsOff() == o.IsOff()
	}
	return s.ActiveConfigID == o.ActiveConfigID &&
		s.PowerMode == o.PowerMode &&
		s.BrightnessMode == o.BrightnessMode
}

// Less is the total preorder used for ordered snapshots. Two off statuses are
// never ordered relative to each other; otherwise the order is lexicographic
// on (power mode, active config, brightness mode).
func (s Status) Less(o Status) bool {
	if s.IsOff() || o.IsOff() {
		if s.IsOff() == o.IsOff() {
			return false
		}
	}
	if s.PowerMode != o.PowerMode {
		return s.PowerMode < o.PowerMode
	}
	if s.ActiveConfigID != o.ActiveConfigID {
		return s.ActiveConfigID < o.ActiveConfigID
	}
	return s.BrightnessMode < o.BrightnessMode
}

func (s Status) String() string {
	return fmt.Sprintf("id = %d, power mode = %s, brightness = %s",
		s.ActiveConfigID, s.PowerMode, s.BrightnessMode)
}

// PresentProfile is the full statistics key: a display status plus the
// observed present interval expressed in vsync counts at the active TE
// frequency.
type PresentProfile struct {
	Status   Status `json:"status"`
	NumVsync int    `json:"num_vsync"`
}

// IsOff reports whether the profile belongs to the off-equivalence class.
func (p PresentProfile) IsOff() bool { return p.Status.IsOff() }

// Equal compares profiles; off-equivalence propagates, so any two off
// profiles compare equal regardless of NumVsync.
func (p PresentProfile) Equal(o PresentProfile) bool {
	if p.IsOff() || o.IsOff() {
		return p.IsOff() == o.IsOff()
	}
	return p.Status.Equal(o.Status) && p.NumVsync == o.NumVsync
}

// Less orders profiles for snapshots, mirroring Equal's equivalence classes.
func (p PresentProfile) Less(o PresentProfile) bool {
	if p.IsOff() || o.IsOff() {
		if p.IsOff() == o.IsOff() {
			return false
		}
	}
	if !p.Status.Equal(o.Status) {
		return p.Status.Less(o.Status)
	}
	return p.NumVsync < o.NumVsync
}

// Canonical collapses the profile into its equivalence-class representative
// so that it can serve as a Go map key. All off profiles map to a single
// representative.
func (p PresentProfile) Canonical() PresentProfile {
	if p.IsOff() {
		return PresentProfile{
			Status: Status{
				ActiveConfigID: InvalidConfigID,
				PowerMode:      PowerOff,
				BrightnessMode: BrightnessInvalid,
			},
			NumVsync: UnmeasuredVsync,
		}
	}
	return p
}

// PresentRecord is the statistics value: how many presents were observed
// under a profile and when the latest one happened.
type PresentRecord struct {
	Count           uint64 `json:"count"`
	LastTimestampNs int64  `json:"last_timestamp_ns"`
	Updated         bool   `json:"updated"`
}

// Merge folds another record in: counts add, timestamps take the max, and
// the updated flag is set.
func (r *PresentRecord) Merge(o PresentRecord) {
	r.Count += o.Count
	if o.LastTimestampNs > r.LastTimestampNs {
		r.LastTimestampNs = o.LastTimestampNs
	}
	r.Updated = true
}

// PresentStatistics maps canonical present profiles to their records.
type PresentStatistics map[PresentProfile]PresentRecord

// StatEntry is one statistics map entry in exchange form, used for sorted
// snapshots, the HTTP API and the snapshot store.
type StatEntry struct {
	Profile PresentProfile `json:"profile"`
	Record  PresentRecord  `json:"record"`
}

// SortedEntries flattens a statistics map into a slice ordered by the
// profile preorder, so dumps and snapshots are stable.
func SortedEntries(m PresentStatistics) []StatEntry {
	entries := make([]StatEntry, 0, len(m))
	for p, r := range m {
		entries = append(entries, StatEntry{Profile: p, Record: r})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Profile.Less(entries[j].Profile)
	})
	return entries
}

// ExpectedPresentConfig carries the rendering-to-hibernation grace period of
// a VRR configuration.
type ExpectedPresentConfig struct {
	TimeoutNs int64 `json:"timeout_ns"`
}

// VrrConfig holds the per-configuration parameters the controller needs.
type VrrConfig struct {
	MinFrameIntervalNs          int64                 `json:"min_frame_interval_ns"`
	NotifyExpectedPresentConfig ExpectedPresentConfig `json:"notify_expected_present_config"`
}

// ExpectedPresent describes one expected or pending present.
type ExpectedPresent struct {
	ConfigID        ConfigID `json:"config_id"`
	TimeNs          int64    `json:"time_ns"`
	FrameIntervalNs int64    `json:"frame_interval_ns"`
}
