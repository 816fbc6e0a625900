package vrr

import (
	"sync"
	"testing"
	"time"

	"github.com/panelworks/vrrd/internal/clock"
)

func TestLooper_RunsCallbacksInDeadlineOrder(t *testing.T) {
	clk := clock.NewMonotonic()
	l := NewLooper(clk)
	l.Start()
	defer l.Stop()

	var mu sync.Mutex
	var order []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	now := clk.NowNs()
	l.Post(EventStatisticsUpdate, now+(20*time.Millisecond).Nanoseconds(), record("late"))
	l.Post(EventRefreshRateMeasure, now+(5*time.Millisecond).Nanoseconds(), record("early"))

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, "both callbacks to run")

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "early" || order[1] != "late" {
		t.Errorf("order = %v, want [early late]", order)
	}
}

func TestLooper_CallbackMayRepost(t *testing.T) {
	clk := clock.NewMonotonic()
	l := NewLooper(clk)
	l.Start()
	defer l.Stop()

	var mu sync.Mutex
	runs := 0
	var tick func()
	tick = func() {
		mu.Lock()
		runs++
		again := runs < 3
		mu.Unlock()
		if again {
			l.Post(EventStatisticsUpdate, clk.NowNs()+time.Millisecond.Nanoseconds(), tick)
		}
	}
	l.Post(EventStatisticsUpdate, clk.NowNs(), tick)

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs == 3
	}, "self-reposting callback to run three times")
}

func TestLooper_DropByKind(t *testing.T) {
	clk := clock.NewMonotonic()
	l := NewLooper(clk)

	var mu sync.Mutex
	fired := false
	l.Post(EventStatisticsUpdate, clk.NowNs()+(10*time.Millisecond).Nanoseconds(), func() {
		mu.Lock()
		fired = true
		mu.Unlock()
	})
	l.DropByKind(EventStatisticsUpdate)
	l.Start()
	defer l.Stop()

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if fired {
		t.Error("dropped callback must not fire")
	}
}

func TestLooper_StopClosesDone(t *testing.T) {
	l := NewLooper(clock.NewMonotonic())
	l.Start()
	l.Stop()
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("looper did not exit after Stop")
	}
}
