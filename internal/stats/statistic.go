// Package stats aggregates observed present intervals per display
// configuration and estimates the realised refresh rate, for power and
// performance telemetry.
package stats

import (
	"math"
	"sync"
	"time"

	"github.com/panelworks/vrrd/internal/clock"
	"github.com/panelworks/vrrd/internal/display"
	"github.com/panelworks/vrrd/internal/infra/metrics"
	"github.com/panelworks/vrrd/internal/vrr"
)

// EventPoster schedules callback events on a timer substrate, shared with
// the controller or independent.
type EventPoster interface {
	Post(kind vrr.EventKind, whenNs int64, fn func())
}

// Provider exposes statistics snapshots to telemetry consumers.
type Provider interface {
	GetStatistics() display.PresentStatistics
	GetUpdatedStatistics() display.PresentStatistics
}

// maxPresentIntervalNs caps the interval attributed to a vsync bucket.
// Longer gaps restart interval timing instead of producing a sample.
const maxPresentIntervalNs = int64(time.Second)

// FrameRateWhenPresentAtLpMode is the expected present cadence in doze; such
// samples land in the matching vsync bucket without special-casing.
const FrameRateWhenPresentAtLpMode = 30

// Statistic tallies present intervals under (display status, num_vsync)
// keys. It implements display.PowerModeListener and keeps its cached status
// fresh through a self-scheduled periodic update.
type Statistic struct {
	provider display.ContextProvider
	events   EventPoster
	clock    clock.Clock

	maxFrameRate       int
	maxTeFrequency     int
	minFrameIntervalNs int64
	updatePeriodNs     int64

	mu                sync.Mutex
	teFrequency       int
	teIntervalNs      int64
	lastPresentTimeNs int64
	statistics        display.PresentStatistics
	profile           display.PresentProfile
	started           bool
}

var _ display.PowerModeListener = (*Statistic)(nil)
var _ Provider = (*Statistic)(nil)

// NewStatistic creates an aggregator. Start arms the periodic status update.
func NewStatistic(provider display.ContextProvider, events EventPoster, clk clock.Clock,
	maxFrameRate, maxTeFrequency int, updatePeriodNs int64) *Statistic {
	s := &Statistic{
		provider:           provider,
		events:             events,
		clock:              clk,
		maxFrameRate:       maxFrameRate,
		maxTeFrequency:     maxTeFrequency,
		minFrameIntervalNs: int64(time.Second) / int64(maxFrameRate),
		updatePeriodNs:     updatePeriodNs,
		teFrequency:        maxTeFrequency,
		teIntervalNs:       int64(time.Second) / int64(maxTeFrequency),
		lastPresentTimeNs:  -1,
		statistics:         make(display.PresentStatistics),
		profile:            display.PresentProfile{NumVsync: display.UnmeasuredVsync},
	}
	s.updateCurrentDisplayStatusLocked()
	return s
}

// Start arms the periodic status update. Safe to call once.
func (s *Statistic) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	s.scheduleUpdate()
}

// SetActiveVrrConfiguration records the active configuration and the TE
// frequency that defines the vsync bucket unit.
func (s *Statistic) SetActiveVrrConfiguration(id display.ConfigID, teFrequency int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile.Status.ActiveConfigID = id
	s.teFrequency = teFrequency
	s.teIntervalNs = int64(time.Second) / int64(teFrequency)
}

// OnPowerStateChange refreshes the cached power mode. Subsequent samples may
// collapse into the off-equivalence bucket.
func (s *Statistic) OnPowerStateChange(from, to display.PowerMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile.Status.PowerMode = to
}

// OnPresent accounts one present. Gaps longer than one second restart
// interval timing without emitting a bucket. The flag argument is reserved.
func (s *Statistic) OnPresent(presentTimeNs int64, flag int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// While the panel is off the interval carries no cadence; every present
	// lands in the single off bucket without interval gating.
	if s.profile.Status.IsOff() {
		key := display.PresentProfile{Status: s.profile.Status}.Canonical()
		record := s.statistics[key]
		record.Merge(display.PresentRecord{Count: 1, LastTimestampNs: presentTimeNs})
		s.statistics[key] = record
		s.lastPresentTimeNs = presentTimeNs
		metrics.StatisticsEntries.Set(float64(len(s.statistics)))
		return
	}

	if s.lastPresentTimeNs < 0 || presentTimeNs-s.lastPresentTimeNs > maxPresentIntervalNs {
		s.lastPresentTimeNs = presentTimeNs
		return
	}
	delta := presentTimeNs - s.lastPresentTimeNs
	numVsync := int(math.Round(float64(delta) / float64(s.teIntervalNs)))
	if numVsync < 1 {
		numVsync = 1
	}
	if numVsync > s.teFrequency {
		numVsync = s.teFrequency
	}

	key := display.PresentProfile{Status: s.profile.Status, NumVsync: numVsync}.Canonical()
	record := s.statistics[key]
	record.Merge(display.PresentRecord{Count: 1, LastTimestampNs: presentTimeNs})
	s.statistics[key] = record
	s.lastPresentTimeNs = presentTimeNs

	metrics.PresentIntervalVsyncs.Observe(float64(numVsync))
	metrics.StatisticsEntries.Set(float64(len(s.statistics)))
}

// GetStatistics returns a copy of the full statistics map.
func (s *Statistic) GetStatistics() display.PresentStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(display.PresentStatistics, len(s.statistics))
	for k, v := range s.statistics {
		out[k] = v
	}
	return out
}

// GetUpdatedStatistics returns the entries touched since the previous call
// and clears every entry's updated flag.
func (s *Statistic) GetUpdatedStatistics() display.PresentStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(display.PresentStatistics)
	for k, v := range s.statistics {
		if !v.Updated {
			continue
		}
		out[k] = v
		v.Updated = false
		s.statistics[k] = v
	}
	return out
}

func (s *Statistic) scheduleUpdate() {
	s.events.Post(vrr.EventStatisticsUpdate, s.clock.NowNs()+s.updatePeriodNs, s.onUpdate)
}

// onUpdate runs from the event facility. It re-reads the display context so
// the live status keys reality even when no presents arrive, then reposts.
func (s *Statistic) onUpdate() {
	s.mu.Lock()
	s.updateCurrentDisplayStatusLocked()
	s.mu.Unlock()
	s.scheduleUpdate()
}

func (s *Statistic) updateCurrentDisplayStatusLocked() {
	s.profile.Status.PowerMode = s.provider.PowerMode()
	s.profile.Status.BrightnessMode = s.provider.BrightnessMode()
	s.profile.Status.ActiveConfigID = s.provider.ActiveConfigID()
}
