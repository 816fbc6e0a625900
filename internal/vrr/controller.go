package vrr

import (
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/panelworks/vrrd/internal/clock"
	"github.com/panelworks/vrrd/internal/display"
	"github.com/panelworks/vrrd/internal/infra/metrics"
	"github.com/panelworks/vrrd/internal/panel"
)

// State is the controller state. Exactly one holds at any time.
type State int

const (
	StateDisable State = iota
	StateRendering
	StateHibernate
)

func (s State) String() string {
	switch s {
	case StateDisable:
		return "Disable"
	case StateRendering:
		return "Rendering"
	case StateHibernate:
		return "Hibernate"
	default:
		return "Unknown"
	}
}

// DefaultWakeUpInPowerSavingNs is how long the panel may stay hibernated
// before the next keep-alive pass.
const DefaultWakeUpInPowerSavingNs = int64(500 * time.Millisecond)

// framesToInsertOnHibernate is the keep-alive burst size on hibernation entry.
const framesToInsertOnHibernate = 2

// Controller drives one VRR panel. Compositor-facing entry points mutate
// state under the controller mutex and wake the worker; the worker drains the
// timed event queue and dispatches on (state, event kind).
type Controller struct {
	clock  clock.Clock
	writer panel.CommandWriter
	signal chan struct{}
	done   chan struct{}

	mu                    sync.Mutex
	queue                 *EventQueue
	ring                  *PresentRing
	configs               map[display.ConfigID]display.VrrConfig
	activeConfig          display.ConfigID
	state                 State
	enabled               bool
	stopRequested         bool
	started               bool
	pendingFramesToInsert int
	nextExpectedPresent   *display.ExpectedPresent
	pendingPresent        *display.ExpectedPresent
}

// NewController creates a controller for the panel reachable through writer.
// The worker does not run until Start.
func NewController(clk clock.Clock, writer panel.CommandWriter) *Controller {
	return &Controller{
		clock:        clk,
		writer:       writer,
		signal:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		queue:        NewEventQueue(),
		ring:         NewPresentRing(),
		configs:      make(map[display.ConfigID]display.VrrConfig),
		activeConfig: display.InvalidConfigID,
		state:        StateDisable,
	}
}

// Start launches the dedicated worker. Safe to call once.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()
	go c.worker()
}

// Done is closed when the worker has exited after Stop.
func (c *Controller) Done() <-chan struct{} { return c.done }

// ─── Compositor-facing entry points ──────────────────────────────────────────

// SetVrrConfigurations replaces the entire per-config parameter table.
func (c *Controller) SetVrrConfigurations(configs map[display.ConfigID]display.VrrConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs = make(map[display.ConfigID]display.VrrConfig, len(configs))
	for id, cfg := range configs {
		c.configs[id] = cfg
	}
}

// SetActiveVrrConfiguration switches to a known configuration, enters
// Rendering, and rearms the rendering timeout. An unknown id is logged and
// ignored.
func (c *Controller) SetActiveVrrConfiguration(id display.ConfigID) {
	c.mu.Lock()
	cfg, ok := c.configs[id]
	if !ok {
		log.Printf("[vrr] set an undefined active configuration %d", id)
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateRendering)
	c.activeConfig = id
	c.queue.DropByKind(EventRenderingTimeout)
	c.postEventLocked(EventRenderingTimeout,
		c.clock.NowNs()+cfg.NotifyExpectedPresentConfig.TimeoutNs)
	c.mu.Unlock()
	c.wake()
}

// SetEnable toggles worker dispatch. Disabling drops all queued events.
func (c *Controller) SetEnable(enabled bool) {
	c.mu.Lock()
	if c.enabled == enabled {
		c.mu.Unlock()
		return
	}
	c.enabled = enabled
	if !enabled {
		c.queue.DropAll()
		metrics.EventQueueDepth.Set(0)
	}
	c.mu.Unlock()
	c.wake()
}

// NotifyExpectedPresent records the upstream cadence hint and schedules its
// handling immediately.
func (c *Controller) NotifyExpectedPresent(timestampNs, frameIntervalNs int64) {
	c.mu.Lock()
	c.nextExpectedPresent = &display.ExpectedPresent{
		ConfigID:        c.activeConfig,
		TimeNs:          timestampNs,
		FrameIntervalNs: frameIntervalNs,
	}
	c.postEventLocked(EventNotifyExpectedPresentConfig, c.clock.NowNs())
	c.mu.Unlock()
	c.wake()
}

// SetExpectedPresentTime stores the descriptor the next OnPresent consumes.
func (c *Controller) SetExpectedPresentTime(timestampNs, frameIntervalNs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingPresent = &display.ExpectedPresent{
		ConfigID:        c.activeConfig,
		TimeNs:          timestampNs,
		FrameIntervalNs: frameIntervalNs,
	}
}

// OnPresent consumes the pending present descriptor, leaves hibernation if
// needed, and rearms the rendering timeout.
func (c *Controller) OnPresent() {
	c.mu.Lock()
	if c.pendingPresent == nil {
		log.Printf("[vrr] present without expected present time information")
		c.mu.Unlock()
		return
	}
	c.ring.Append(*c.pendingPresent)
	c.pendingPresent = nil
	metrics.PresentsTotal.Inc()

	if c.state == StateHibernate {
		log.Printf("[vrr] present during hibernation without prior notifyExpectedPresent")
		c.setStateLocked(StateRendering)
		c.queue.DropByKind(EventHibernateTimeout)
	}
	c.queue.DropByKind(EventRenderingTimeout)
	c.queue.DropByKind(EventNextFrameInsertion)
	if cfg, ok := c.configs[c.activeConfig]; ok {
		c.postEventLocked(EventRenderingTimeout,
			c.clock.NowNs()+cfg.NotifyExpectedPresentConfig.TimeoutNs)
	} else {
		log.Printf("[vrr] no active configuration %d, rendering timeout not armed", c.activeConfig)
	}
	c.mu.Unlock()
	c.wake()
}

// OnVsync is part of the compositor contract but has no role in this core.
func (c *Controller) OnVsync(timestampNs int64, vsyncPeriodNs int32) {}

// Reset drops all queued events, the present ring, and pending descriptors.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.DropAll()
	c.ring.Clear()
	c.pendingPresent = nil
	c.nextExpectedPresent = nil
	metrics.EventQueueDepth.Set(0)
}

// Stop requests worker termination. The worker exits at its next wake.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopRequested = true
	c.enabled = false
	c.setStateLocked(StateDisable)
	c.mu.Unlock()
	c.wake()
}

// ─── Introspection ───────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of the controller for diagnostics.
type Snapshot struct {
	State          string                    `json:"state"`
	Enabled        bool                      `json:"enabled"`
	ActiveConfigID display.ConfigID          `json:"active_config_id"`
	PendingFrames  int                       `json:"pending_frames_to_insert"`
	QueueLen       int                       `json:"queue_len"`
	EventQueue     string                    `json:"event_queue"`
	PresentHistory []display.ExpectedPresent `json:"present_history"`
}

// Status returns the current snapshot.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:          c.state.String(),
		Enabled:        c.enabled,
		ActiveConfigID: c.activeConfig,
		PendingFrames:  c.pendingFramesToInsert,
		QueueLen:       c.queue.Len(),
		EventQueue:     c.queue.Dump(),
		PresentHistory: c.ring.Snapshot(),
	}
}

// Dump renders the snapshot as text.
func (c *Controller) Dump() string {
	s := c.Status()
	out := fmt.Sprintf("state = %s, enabled = %v, active config = %d, pending frames = %d\n",
		s.State, s.Enabled, s.ActiveConfigID, s.PendingFrames)
	if s.EventQueue != "" {
		out += "event queue:\n" + s.EventQueue
	}
	for _, p := range s.PresentHistory {
		out += fmt.Sprintf("present: time = %d, interval = %d\n", p.TimeNs, p.FrameIntervalNs)
	}
	return out
}

// ─── Worker ──────────────────────────────────────────────────────────────────

// wake nudges the worker. The buffered channel coalesces repeated wakes.
func (c *Controller) wake() {
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// worker is the dedicated control loop. It parks while disabled or idle,
// sleeps until the earliest deadline otherwise, and re-evaluates on every
// wake so that earlier postings preempt a pending wait.
func (c *Controller) worker() {
	defer close(c.done)
	runtime.LockOSThread()
	if err := setRealtimePriority(); err != nil {
		log.Printf("[vrr] unable to set real-time scheduling: %v", err)
	}
	for {
		c.mu.Lock()
		if c.stopRequested {
			c.mu.Unlock()
			return
		}
		if !c.enabled || c.queue.Len() == 0 {
			c.mu.Unlock()
			<-c.signal
			continue
		}
		next, _ := c.queue.PeekEarliest()
		now := c.clock.NowNs()
		if next.WhenNs > now {
			c.mu.Unlock()
			timer := time.NewTimer(time.Duration(next.WhenNs - now))
			select {
			case <-c.signal:
				timer.Stop()
			case <-timer.C:
				// A wake racing the deadline wins, mirroring the
				// condition-variable semantics of a timed wait.
				select {
				case c.signal <- struct{}{}:
				default:
				}
			}
			continue
		}
		event, ok := c.queue.PopEarliest()
		if !ok {
			// Defensive; unreachable since peek and pop share the lock.
			log.Printf("[vrr] event queue should not be empty")
			c.mu.Unlock()
			return
		}
		metrics.EventQueueDepth.Set(float64(c.queue.Len()))
		c.dispatchLocked(event)
		c.mu.Unlock()
	}
}

func (c *Controller) dispatchLocked(e Event) {
	log.Printf("[vrr] handle event %s in state %s", e.Kind, c.state)
	metrics.EventsDispatched.WithLabelValues(e.Kind.String()).Inc()
	switch c.state {
	case StateRendering:
		switch e.Kind {
		case EventRenderingTimeout:
			c.handleHibernateLocked()
			c.setStateLocked(StateHibernate)
		case EventNotifyExpectedPresentConfig:
			c.handleCadenceChangeLocked()
		case EventHibernateTimeout:
			log.Printf("[vrr] hibernate timeout event while in the rendering state")
		}
	case StateHibernate:
		switch e.Kind {
		case EventHibernateTimeout:
			c.handleStayHibernateLocked()
		case EventNotifyExpectedPresentConfig:
			c.handleResumeLocked()
			c.setStateLocked(StateRendering)
		case EventNextFrameInsertion:
			c.doFrameInsertionLocked()
		case EventRenderingTimeout:
			log.Printf("[vrr] rendering timeout event while in the hibernate state")
		}
	default:
		log.Printf("[vrr] event %s dispatched in state %s", e.Kind, c.state)
	}
}

// ─── Handlers (run under the controller lock) ────────────────────────────────

// handleCadenceChangeLocked consumes the expected-present hint. Frame rate
// change handling happens upstream; the core only acknowledges the hint.
func (c *Controller) handleCadenceChangeLocked() {
	if c.nextExpectedPresent == nil {
		log.Printf("[vrr] cadence change without expected present timing information")
		return
	}
	c.nextExpectedPresent = nil
}

// handleResumeLocked consumes the hint that ends hibernation.
func (c *Controller) handleResumeLocked() {
	if c.nextExpectedPresent == nil {
		log.Printf("[vrr] resume without expected present timing information")
		return
	}
	c.nextExpectedPresent = nil
}

// handleHibernateLocked enters hibernation: starts the keep-alive insertion
// burst and schedules the periodic hibernate wake-up.
func (c *Controller) handleHibernateLocked() {
	c.pendingFramesToInsert = framesToInsertOnHibernate
	c.doFrameInsertionLocked()
	c.postEventLocked(EventHibernateTimeout, c.clock.NowNs()+DefaultWakeUpInPowerSavingNs)
}

// handleStayHibernateLocked keeps the panel hibernated until the next pass.
func (c *Controller) handleStayHibernateLocked() {
	c.postEventLocked(EventHibernateTimeout, c.clock.NowNs()+DefaultWakeUpInPowerSavingNs)
}

// doFrameInsertionLocked emits one keep-alive frame and schedules the next
// one while the burst counter is positive. A failed write is logged and
// still consumes the counter; there is no retry.
func (c *Controller) doFrameInsertionLocked() {
	if c.pendingFramesToInsert <= 0 {
		log.Printf("[vrr] frame insertion requested with %d pending frames", c.pendingFramesToInsert)
		return
	}
	if c.writer.WriteCommand(panel.RefreshCtrlNode, panel.RefreshCtrlFrameInsert) {
		metrics.FramesInserted.Inc()
	} else {
		log.Printf("[vrr] write frame insertion command to file node failed")
		metrics.FrameInsertionFailures.Inc()
	}
	c.pendingFramesToInsert--
	if c.pendingFramesToInsert > 0 {
		cfg, ok := c.configs[c.activeConfig]
		if !ok {
			log.Printf("[vrr] no active configuration %d, aborting insertion burst", c.activeConfig)
			c.pendingFramesToInsert = 0
			return
		}
		c.postEventLocked(EventNextFrameInsertion, c.clock.NowNs()+cfg.MinFrameIntervalNs)
	}
}

func (c *Controller) setStateLocked(s State) {
	c.state = s
	metrics.ControllerState.Set(float64(s))
}

func (c *Controller) postEventLocked(kind EventKind, whenNs int64) {
	c.queue.Post(kind, whenNs)
	metrics.EventQueueDepth.Set(float64(c.queue.Len()))
}
