// Package vrr implements the variable-refresh-rate control core: a timed
// event queue, a present history ring, the controller state machine with its
// dedicated worker, and a shared looper for self-scheduled periodic work.
package vrr

import (
	"container/heap"
	"fmt"
	"strings"
)

// EventKind identifies what a timed event means to its dispatcher.
type EventKind int

const (
	EventRenderingTimeout EventKind = iota
	EventHibernateTimeout
	EventNextFrameInsertion
	EventNotifyExpectedPresentConfig
	EventStatisticsUpdate
	EventRefreshRateMeasure
)

func (k EventKind) String() string {
	switch k {
	case EventRenderingTimeout:
		return "RenderingTimeout"
	case EventHibernateTimeout:
		return "HibernateTimeout"
	case EventNextFrameInsertion:
		return "NextFrameInsertion"
	case EventNotifyExpectedPresentConfig:
		return "NotifyExpectedPresentConfig"
	case EventStatisticsUpdate:
		return "StatisticsUpdate"
	case EventRefreshRateMeasure:
		return "RefreshRateMeasure"
	default:
		return fmt.Sprintf("Event(%d)", int(k))
	}
}

// Event is a timed queue entry. Callback is set only for events posted
// through the Looper; the controller dispatches on Kind alone.
type Event struct {
	WhenNs   int64
	Kind     EventKind
	Callback func()

	seq uint64
}

func (e Event) String() string {
	return fmt.Sprintf("%s when=%d", e.Kind, e.WhenNs)
}

// eventHeap orders events by WhenNs ascending; ties keep insertion order.
type eventHeap []Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].WhenNs != h[j].WhenNs {
		return h[i].WhenNs < h[j].WhenNs
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(Event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// EventQueue is a min-priority queue of timed events. It is not
// goroutine-safe; owners serialize access under their own lock.
type EventQueue struct {
	heap eventHeap
	seq  uint64
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

// Post inserts an event at whenNs.
func (q *EventQueue) Post(kind EventKind, whenNs int64) {
	q.post(Event{WhenNs: whenNs, Kind: kind})
}

// PostCallback inserts an event carrying a callback.
func (q *EventQueue) PostCallback(kind EventKind, whenNs int64, fn func()) {
	q.post(Event{WhenNs: whenNs, Kind: kind, Callback: fn})
}

func (q *EventQueue) post(e Event) {
	e.seq = q.seq
	q.seq++
	heap.Push(&q.heap, e)
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int { return len(q.heap) }

// PeekEarliest returns the earliest event without removing it.
func (q *EventQueue) PeekEarliest() (Event, bool) {
	if len(q.heap) == 0 {
		return Event{}, false
	}
	return q.heap[0], true
}

// PopEarliest removes and returns the earliest event.
func (q *EventQueue) PopEarliest() (Event, bool) {
	if len(q.heap) == 0 {
		return Event{}, false
	}
	return heap.Pop(&q.heap).(Event), true
}

// DropAll clears the queue.
func (q *EventQueue) DropAll() {
	q.heap = q.heap[:0]
}

// DropByKind removes every event of the given kind.
func (q *EventQueue) DropByKind(kind EventKind) {
	kept := q.heap[:0]
	for _, e := range q.heap {
		if e.Kind != kind {
			kept = append(kept, e)
		}
	}
	q.heap = kept
	heap.Init(&q.heap)
}

// CountByKind returns how many events of the given kind are queued.
func (q *EventQueue) CountByKind(kind EventKind) int {
	n := 0
	for _, e := range q.heap {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Dump renders the queued events in dispatch order without draining the
// queue. For diagnostics only.
func (q *EventQueue) Dump() string {
	if len(q.heap) == 0 {
		return ""
	}
	ordered := make(eventHeap, len(q.heap))
	copy(ordered, q.heap)
	var sb strings.Builder
	for ordered.Len() > 0 {
		e := heap.Pop(&ordered).(Event)
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
