package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/panelworks/vrrd/internal/clock"
	"github.com/panelworks/vrrd/internal/display"
	"github.com/panelworks/vrrd/internal/vrr"
)

type postedEvent struct {
	kind   vrr.EventKind
	whenNs int64
	fn     func()
}

// fakePoster records scheduled events instead of running them, so tests can
// fire callbacks deterministically.
type fakePoster struct {
	mu    sync.Mutex
	posts []postedEvent
}

func (p *fakePoster) Post(kind vrr.EventKind, whenNs int64, fn func()) {
	p.mu.Lock()
	p.posts = append(p.posts, postedEvent{kind, whenNs, fn})
	p.mu.Unlock()
}

func (p *fakePoster) take() []postedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.posts
	p.posts = nil
	return out
}

const (
	testTe           = 120
	testTeIntervalNs = int64(time.Second) / testTe
)

func newTestStatistic(t *testing.T) (*Statistic, *display.StaticProvider, *fakePoster) {
	t.Helper()
	p := display.NewStaticProvider("")
	p.SetActiveConfigID(1)
	poster := &fakePoster{}
	s := NewStatistic(p, poster, clock.NewManual(0), testTe, testTe, int64(time.Minute))
	return s, p, poster
}

func onKey(numVsync int) display.PresentProfile {
	return display.PresentProfile{
		Status: display.Status{
			ActiveConfigID: 1,
			PowerMode:      display.PowerNormal,
			BrightnessMode: display.BrightnessNormal,
		},
		NumVsync: numVsync,
	}
}

func TestOnPresent_FirstSampleOnlyPrimesTiming(t *testing.T) {
	s, _, _ := newTestStatistic(t)
	s.OnPresent(1_000_000, 0)
	if got := s.GetStatistics(); len(got) != 0 {
		t.Errorf("statistics = %d entries after one present, want 0", len(got))
	}
}

func TestOnPresent_BucketsByRoundedVsyncs(t *testing.T) {
	s, _, _ := newTestStatistic(t)
	base := int64(1_000_000)
	s.OnPresent(base, 0)
	s.OnPresent(base+2*testTeIntervalNs+1, 0) // rounds to 2 vsyncs
	s.OnPresent(base+3*testTeIntervalNs+1, 0) // one more te interval

	got := s.GetStatistics()
	if len(got) != 2 {
		t.Fatalf("statistics = %d entries, want 2: %+v", len(got), got)
	}
	if rec := got[onKey(2)]; rec.Count != 1 {
		t.Errorf("bucket 2 count = %d, want 1", rec.Count)
	}
	if rec := got[onKey(1)]; rec.Count != 1 {
		t.Errorf("bucket 1 count = %d, want 1", rec.Count)
	}
}

func TestOnPresent_ClampsToTeFrequency(t *testing.T) {
	s, _, _ := newTestStatistic(t)
	s.OnPresent(0, 0)
	// Exactly one second: kept, not dropped, and clamps to the te frequency.
	s.OnPresent(maxPresentIntervalNs, 0)

	got := s.GetStatistics()
	rec, ok := got[onKey(testTe)]
	if !ok || rec.Count != 1 {
		t.Fatalf("bucket %d = %+v, want count 1", testTe, rec)
	}
}

func TestOnPresent_LongGapRestartsTiming(t *testing.T) {
	s, _, _ := newTestStatistic(t)
	s.OnPresent(0, 0)
	s.OnPresent(maxPresentIntervalNs+1, 0) // gap too long, no sample
	if got := s.GetStatistics(); len(got) != 0 {
		t.Fatalf("statistics = %d entries after a long gap, want 0", len(got))
	}

	// Timing restarted from the gap present, so the next delta counts.
	s.OnPresent(maxPresentIntervalNs+1+2*testTeIntervalNs, 0)
	got := s.GetStatistics()
	if rec := got[onKey(2)]; rec.Count != 1 {
		t.Errorf("bucket 2 count = %d, want 1", rec.Count)
	}
}

func TestOnPresent_OffModesShareOneBucket(t *testing.T) {
	s, _, _ := newTestStatistic(t)
	s.OnPowerStateChange(display.PowerNormal, display.PowerOff)
	s.OnPresent(0, 0)
	s.OnPresent(2*testTeIntervalNs, 0)

	s.OnPowerStateChange(display.PowerOff, display.PowerDozeSuspend)
	s.OnPresent(10*testTeIntervalNs, 0)

	got := s.GetStatistics()
	if len(got) != 1 {
		t.Fatalf("statistics = %d entries, want 1 coalesced off bucket", len(got))
	}
	offKey := display.PresentProfile{Status: display.Status{PowerMode: display.PowerOff}}.Canonical()
	rec, ok := got[offKey]
	if !ok {
		t.Fatalf("missing canonical off bucket, got %+v", got)
	}
	if rec.Count != 3 {
		t.Errorf("off bucket count = %d, want 3", rec.Count)
	}
	if rec.LastTimestampNs != 10*testTeIntervalNs {
		t.Errorf("off bucket last timestamp = %d, want %d", rec.LastTimestampNs, 10*testTeIntervalNs)
	}
}

func TestOnPresent_OffPresentsCountWithoutIntervalGating(t *testing.T) {
	s, _, _ := newTestStatistic(t)
	s.OnPowerStateChange(display.PowerNormal, display.PowerOff)

	// Every off present counts, including the very first one.
	spacing := (33 * time.Millisecond).Nanoseconds()
	for i := int64(0); i < 5; i++ {
		s.OnPresent(i*spacing, 0)
	}

	offKey := display.PresentProfile{Status: display.Status{PowerMode: display.PowerOff}}.Canonical()
	rec := s.GetStatistics()[offKey]
	if rec.Count != 5 {
		t.Errorf("off bucket count = %d, want 5", rec.Count)
	}
	if rec.LastTimestampNs != 4*spacing {
		t.Errorf("off bucket last timestamp = %d, want %d", rec.LastTimestampNs, 4*spacing)
	}

	// Gaps beyond the interval cap do not suppress off samples either.
	s.OnPresent(4*spacing+2*maxPresentIntervalNs, 0)
	if rec := s.GetStatistics()[offKey]; rec.Count != 6 {
		t.Errorf("off bucket count = %d after a long gap, want 6", rec.Count)
	}
}

func TestGetUpdatedStatistics_SnapshotsOnce(t *testing.T) {
	s, _, _ := newTestStatistic(t)
	s.OnPresent(0, 0)
	s.OnPresent(testTeIntervalNs, 0)

	first := s.GetUpdatedStatistics()
	if len(first) != 1 {
		t.Fatalf("first updated snapshot = %d entries, want 1", len(first))
	}
	second := s.GetUpdatedStatistics()
	if len(second) != 0 {
		t.Errorf("second updated snapshot = %d entries, want 0", len(second))
	}

	// A fresh present marks the bucket updated again.
	s.OnPresent(2*testTeIntervalNs, 0)
	third := s.GetUpdatedStatistics()
	if len(third) != 1 {
		t.Errorf("third updated snapshot = %d entries, want 1", len(third))
	}
}

func TestGetStatistics_ReturnsACopy(t *testing.T) {
	s, _, _ := newTestStatistic(t)
	s.OnPresent(0, 0)
	s.OnPresent(testTeIntervalNs, 0)

	got := s.GetStatistics()
	for k := range got {
		delete(got, k)
	}
	if len(s.GetStatistics()) != 1 {
		t.Error("mutating a returned snapshot must not affect the aggregator")
	}
}

func TestSetActiveVrrConfiguration_ChangesBucketUnit(t *testing.T) {
	s, _, _ := newTestStatistic(t)
	s.SetActiveVrrConfiguration(1, 60)
	teInterval := int64(time.Second) / 60

	s.OnPresent(0, 0)
	s.OnPresent(teInterval, 0)

	got := s.GetStatistics()
	if rec := got[onKey(1)]; rec.Count != 1 {
		t.Errorf("bucket 1 count = %d at te 60, want 1: %+v", rec.Count, got)
	}
}

func TestPeriodicUpdate_RefreshesStatusAndReposts(t *testing.T) {
	s, p, poster := newTestStatistic(t)
	s.Start()

	posts := poster.take()
	if len(posts) != 1 || posts[0].kind != vrr.EventStatisticsUpdate {
		t.Fatalf("posts after Start = %+v, want one statistics update", posts)
	}
	if posts[0].whenNs != int64(time.Minute) {
		t.Errorf("update deadline = %d, want one period out", posts[0].whenNs)
	}

	// The provider changes underneath; the periodic update picks it up.
	p.SetPowerMode(display.PowerOff)
	posts[0].fn()

	if again := poster.take(); len(again) != 1 {
		t.Fatalf("update did not repost itself: %+v", again)
	}

	s.OnPresent(0, 0)
	s.OnPresent(2*testTeIntervalNs, 0)
	offKey := display.PresentProfile{Status: display.Status{PowerMode: display.PowerOff}}.Canonical()
	if rec := s.GetStatistics()[offKey]; rec.Count != 2 {
		t.Errorf("off bucket count = %d after refreshed status, want 2", rec.Count)
	}
}

func TestStart_Idempotent(t *testing.T) {
	s, _, poster := newTestStatistic(t)
	s.Start()
	s.Start()
	if posts := poster.take(); len(posts) != 1 {
		t.Errorf("posts after double Start = %d, want 1", len(posts))
	}
}
