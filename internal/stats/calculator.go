package stats

import (
	"math"
	"sync"
	"time"

	"github.com/panelworks/vrrd/internal/clock"
	"github.com/panelworks/vrrd/internal/vrr"
)

// CalculatorType selects how a measurement window is reduced to one rate.
type CalculatorType int

const (
	// CalculatorAverage derives the rate from the mean present interval.
	CalculatorAverage CalculatorType = iota
	// CalculatorMajor derives the rate from the most common interval.
	CalculatorMajor
)

// InvalidRefreshRate is reported while no confident estimate exists.
const InvalidRefreshRate = -1

// CalculatorParams tune the period refresh-rate calculator.
type CalculatorParams struct {
	Type CalculatorType
	// MeasurePeriodNs is the window length; each window yields one estimate.
	MeasurePeriodNs int64
	// ConfidencePercentage is the minimum share of the window covered by
	// observed presents for the estimate to be valid.
	ConfidencePercentage int
	// AlwaysCallback fires the callback every window, not only on change.
	AlwaysCallback bool
}

// DefaultCalculatorParams mirrors the production tuning: average over 500 ms
// windows, valid at 50% coverage.
func DefaultCalculatorParams() CalculatorParams {
	return CalculatorParams{
		Type:                 CalculatorAverage,
		MeasurePeriodNs:      int64(500 * time.Millisecond),
		ConfidencePercentage: 50,
	}
}

// Calculator estimates the realised refresh rate from the present timeline
// over fixed measurement windows, self-scheduled on the event facility.
type Calculator struct {
	events EventPoster
	clock  clock.Clock
	params CalculatorParams

	mu                sync.Mutex
	teFrequency       int
	teIntervalNs      int64
	window            map[int]int // numVsync -> presents observed
	lastPresentTimeNs int64
	lastRefreshRate   int
	onChange          func(rate int)
	started           bool
}

// NewCalculator creates a calculator bucketing at teFrequency.
func NewCalculator(events EventPoster, clk clock.Clock, teFrequency int, params CalculatorParams) *Calculator {
	return &Calculator{
		events:            events,
		clock:             clk,
		params:            params,
		teFrequency:       teFrequency,
		teIntervalNs:      int64(time.Second) / int64(teFrequency),
		window:            make(map[int]int),
		lastPresentTimeNs: -1,
		lastRefreshRate:   InvalidRefreshRate,
	}
}

// SetCallback registers the rate-change callback. It runs from the event
// facility goroutine.
func (c *Calculator) SetCallback(fn func(rate int)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Start arms the periodic window measurement. Safe to call once.
func (c *Calculator) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()
	c.scheduleMeasure()
}

// OnPresent feeds one present into the current window.
func (c *Calculator) OnPresent(presentTimeNs int64, flag int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastPresentTimeNs < 0 || presentTimeNs-c.lastPresentTimeNs > maxPresentIntervalNs {
		c.lastPresentTimeNs = presentTimeNs
		return
	}
	delta := presentTimeNs - c.lastPresentTimeNs
	numVsync := int(math.Round(float64(delta) / float64(c.teIntervalNs)))
	if numVsync < 1 {
		numVsync = 1
	}
	if numVsync > c.teFrequency {
		numVsync = c.teFrequency
	}
	c.window[numVsync]++
	c.lastPresentTimeNs = presentTimeNs
}

// RefreshRate returns the last computed estimate, or InvalidRefreshRate.
func (c *Calculator) RefreshRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRefreshRate
}

// Reset clears the current window and the last estimate.
func (c *Calculator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = make(map[int]int)
	c.lastPresentTimeNs = -1
	c.lastRefreshRate = InvalidRefreshRate
}

func (c *Calculator) scheduleMeasure() {
	c.events.Post(vrr.EventRefreshRateMeasure, c.clock.NowNs()+c.params.MeasurePeriodNs, c.onMeasure)
}

// onMeasure closes the current window: reduces it to a rate if coverage
// reaches the confidence threshold, notifies, and opens the next window.
func (c *Calculator) onMeasure() {
	c.mu.Lock()
	rate := c.measureLocked()
	changed := rate != c.lastRefreshRate
	c.lastRefreshRate = rate
	c.window = make(map[int]int)
	callback := c.onChange
	c.mu.Unlock()

	if callback != nil && (changed || c.params.AlwaysCallback) {
		callback(rate)
	}
	c.scheduleMeasure()
}

func (c *Calculator) measureLocked() int {
	vsyncsPerWindow := int64(c.teFrequency) * c.params.MeasurePeriodNs / int64(time.Second)
	if vsyncsPerWindow <= 0 {
		return InvalidRefreshRate
	}
	var covered int64
	var presents int64
	major, majorCount := 0, 0
	for numVsync, count := range c.window {
		covered += int64(numVsync) * int64(count)
		presents += int64(count)
		if count > majorCount {
			major, majorCount = numVsync, count
		}
	}
	if presents == 0 || covered*100 < vsyncsPerWindow*int64(c.params.ConfidencePercentage) {
		return InvalidRefreshRate
	}
	switch c.params.Type {
	case CalculatorMajor:
		return c.teFrequency / major
	default:
		avg := float64(covered) / float64(presents)
		return int(math.Round(float64(c.teFrequency) / avg))
	}
}
