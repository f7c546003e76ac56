package daemon

import (
	"context"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gitmarks/gitmarks/internal/bookmark"
	gmsync "github.com/gitmarks/gitmarks/internal/sync"
)

// fakeSyncer counts syncs and returns queued statuses, then StatusOK.
type fakeSyncer struct {
	mu         sync.Mutex
	calls      []time.Time
	statuses   []gmsync.Status
	suppressed atomic.Bool
}

func (f *fakeSyncer) Sync(ctx context.Context) *gmsync.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, time.Now())
	status := gmsync.StatusOK
	if len(f.statuses) > 0 {
		status, f.statuses = f.statuses[0], f.statuses[1:]
	}
	return &gmsync.Result{Status: status}
}

func (f *fakeSyncer) Suppressed() bool {
	return f.suppressed.Load()
}

func (f *fakeSyncer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSyncer) callTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.calls...)
}

func testConfig() *Config {
	return &Config{
		Debounce:     50 * time.Millisecond,
		MaxWait:      500 * time.Millisecond,
		TickInterval: 5 * time.Millisecond,
		Logger:       log.New(io.Discard, "", 0),
	}
}

// startDaemon runs d until the test ends.
func startDaemon(t *testing.T, d *Daemon) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start() returned error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("daemon did not stop")
		}
	})
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestNew(t *testing.T) {
	events := make(chan bookmark.ChangeEvent)
	syncer := &fakeSyncer{}

	tests := []struct {
		name    string
		syncer  Syncer
		events  <-chan bookmark.ChangeEvent
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", syncer: syncer, events: events},
		{name: "nil syncer", events: events, wantErr: true},
		{name: "zero debounce", syncer: syncer, events: events, mutate: func(c *Config) { c.Debounce = 0 }, wantErr: true},
		{name: "max wait below debounce", syncer: syncer, events: events, mutate: func(c *Config) { c.MaxWait = c.Debounce / 2 }, wantErr: true},
		{name: "no trigger source", syncer: syncer, wantErr: true},
		{name: "poll only", syncer: syncer, mutate: func(c *Config) { c.PollInterval = time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			_, err := New(tt.syncer, tt.events, cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSyncOnStart(t *testing.T) {
	syncer := &fakeSyncer{}
	cfg := testConfig()
	cfg.SyncOnStart = true

	d, err := New(syncer, make(chan bookmark.ChangeEvent), cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	startDaemon(t, d)

	if !waitFor(t, time.Second, func() bool { return syncer.count() == 1 }) {
		t.Fatalf("expected startup sync, got %d", syncer.count())
	}
}

func TestDebounceCoalescesBursts(t *testing.T) {
	syncer := &fakeSyncer{}
	events := make(chan bookmark.ChangeEvent, 10)

	d, err := New(syncer, events, testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	startDaemon(t, d)

	for i := 0; i < 5; i++ {
		events <- bookmark.ChangeEvent{Op: bookmark.OpCreated, ID: "x"}
		time.Sleep(5 * time.Millisecond)
	}

	if !waitFor(t, time.Second, func() bool { return syncer.count() >= 1 }) {
		t.Fatal("no sync after burst")
	}
	time.Sleep(150 * time.Millisecond)
	if got := syncer.count(); got != 1 {
		t.Errorf("expected burst to coalesce into 1 sync, got %d", got)
	}
	if d.Pending() {
		t.Error("events still pending after sync")
	}
}

func TestMaxWaitBoundsDeferral(t *testing.T) {
	syncer := &fakeSyncer{}
	events := make(chan bookmark.ChangeEvent, 100)
	cfg := testConfig()
	cfg.Debounce = 100 * time.Millisecond
	cfg.MaxWait = 200 * time.Millisecond

	d, err := New(syncer, events, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	startDaemon(t, d)

	// Events every 20ms never leave a 100ms quiet period.
	start := time.Now()
	for time.Since(start) < 600*time.Millisecond {
		events <- bookmark.ChangeEvent{Op: bookmark.OpChanged}
		time.Sleep(20 * time.Millisecond)
	}
	streamEnd := time.Now()

	calls := syncer.callTimes()
	if len(calls) == 0 {
		t.Fatal("continuous activity starved sync")
	}
	if !calls[0].Before(streamEnd) {
		t.Errorf("first sync at %v, not before the stream ended at %v", calls[0], streamEnd)
	}
}

func TestSuppressedEventsIgnored(t *testing.T) {
	syncer := &fakeSyncer{}
	syncer.suppressed.Store(true)
	events := make(chan bookmark.ChangeEvent, 10)

	d, err := New(syncer, events, testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	startDaemon(t, d)

	events <- bookmark.ChangeEvent{Op: bookmark.OpCreated}
	events <- bookmark.ChangeEvent{Op: bookmark.OpRemoved}
	time.Sleep(150 * time.Millisecond)
	if got := syncer.count(); got != 0 {
		t.Fatalf("suppressed events triggered %d syncs", got)
	}

	syncer.suppressed.Store(false)
	events <- bookmark.ChangeEvent{Op: bookmark.OpCreated}
	if !waitFor(t, time.Second, func() bool { return syncer.count() == 1 }) {
		t.Errorf("event after suppression ended did not sync, got %d", syncer.count())
	}
}

func TestInProgressIsRetried(t *testing.T) {
	syncer := &fakeSyncer{statuses: []gmsync.Status{gmsync.StatusInProgress}}
	events := make(chan bookmark.ChangeEvent, 10)

	d, err := New(syncer, events, testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	startDaemon(t, d)

	events <- bookmark.ChangeEvent{Op: bookmark.OpMoved}
	if !waitFor(t, time.Second, func() bool { return syncer.count() == 2 }) {
		t.Errorf("expected a retry after in_progress, got %d syncs", syncer.count())
	}
}

func TestPollWithoutEvents(t *testing.T) {
	syncer := &fakeSyncer{}
	cfg := testConfig()
	cfg.PollInterval = 20 * time.Millisecond

	d, err := New(syncer, nil, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	startDaemon(t, d)

	if !waitFor(t, time.Second, func() bool { return syncer.count() >= 3 }) {
		t.Errorf("expected periodic syncs, got %d", syncer.count())
	}
}

func TestClosedEventStream(t *testing.T) {
	syncer := &fakeSyncer{}
	events := make(chan bookmark.ChangeEvent)
	close(events)

	d, err := New(syncer, events, testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("daemon did not stop after the event stream closed")
	}
	if syncer.count() != 0 {
		t.Errorf("closed stream triggered %d syncs", syncer.count())
	}
}

func TestDue(t *testing.T) {
	d, err := New(&fakeSyncer{}, make(chan bookmark.ChangeEvent), &Config{
		Debounce: 5 * time.Second,
		MaxWait:  60 * time.Second,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if _, ok := d.due(t0); ok {
		t.Fatal("nothing pending must not be due")
	}

	d.pending, d.firstEventAt, d.lastEventAt = true, t0, t0.Add(58*time.Second)
	if _, ok := d.due(t0.Add(59 * time.Second)); ok {
		t.Error("recent event and young first event must not be due")
	}
	if reason, ok := d.due(t0.Add(60 * time.Second)); !ok || reason != ReasonMaxWait {
		t.Errorf("due() = %q, %v; want max_wait", reason, ok)
	}
	if d.pending {
		t.Error("due() must claim pending events")
	}

	d.pending, d.firstEventAt, d.lastEventAt = true, t0, t0
	if reason, ok := d.due(t0.Add(5 * time.Second)); !ok || reason != ReasonDebounce {
		t.Errorf("due() = %q, %v; want debounce", reason, ok)
	}
}
