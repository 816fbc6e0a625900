package vrr

import (
	"log"
	"sync"
	"time"

	"github.com/panelworks/vrrd/internal/clock"
)

// Looper services callback events on the same timed-queue substrate as the
// controller. The statistics aggregator and the refresh-rate calculator use
// it to self-schedule periodic work.
type Looper struct {
	clock  clock.Clock
	signal chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	queue   *EventQueue
	started bool
	stopped bool
}

// NewLooper creates a looper; Start launches its servicing goroutine.
func NewLooper(clk clock.Clock) *Looper {
	return &Looper{
		clock:  clk,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		queue:  NewEventQueue(),
	}
}

// Post schedules fn to run at whenNs. Callbacks run on the looper goroutine
// without any looper lock held, so they may post again.
func (l *Looper) Post(kind EventKind, whenNs int64, fn func()) {
	l.mu.Lock()
	l.queue.PostCallback(kind, whenNs, fn)
	l.mu.Unlock()
	l.wake()
}

// DropByKind removes pending events of one kind.
func (l *Looper) DropByKind(kind EventKind) {
	l.mu.Lock()
	l.queue.DropByKind(kind)
	l.mu.Unlock()
}

// Start launches the servicing goroutine. Safe to call once.
func (l *Looper) Start() {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()
	go l.run()
}

// Stop terminates the servicing goroutine at its next wake.
func (l *Looper) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.wake()
}

// Done is closed when the servicing goroutine has exited.
func (l *Looper) Done() <-chan struct{} { return l.done }

func (l *Looper) wake() {
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *Looper) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		if l.stopped {
			l.mu.Unlock()
			return
		}
		if l.queue.Len() == 0 {
			l.mu.Unlock()
			<-l.signal
			continue
		}
		next, _ := l.queue.PeekEarliest()
		now := l.clock.NowNs()
		if next.WhenNs > now {
			l.mu.Unlock()
			timer := time.NewTimer(time.Duration(next.WhenNs - now))
			select {
			case <-l.signal:
				timer.Stop()
			case <-timer.C:
			}
			continue
		}
		event, _ := l.queue.PopEarliest()
		l.mu.Unlock()
		if event.Callback == nil {
			log.Printf("[vrr] looper event %s without callback", event.Kind)
			continue
		}
		event.Callback()
	}
}
