// Package daemon runs sync automatically in response to host changes.
//
// The daemon:
//  1. Optionally syncs once at startup
//  2. Collects host change events, ignoring those that arrive while the
//     syncer reports suppression (echoes of its own writes)
//  3. Syncs after a quiet period with no new events (debounce), or once the
//     oldest pending event is MaxWait old, whichever comes first
//  4. Optionally syncs on a fixed poll interval to pick up remote changes
//  5. Shuts down gracefully when its context is cancelled
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/gitmarks/gitmarks/internal/bookmark"
	"github.com/gitmarks/gitmarks/internal/logging"
	"github.com/gitmarks/gitmarks/internal/metrics"
	gmsync "github.com/gitmarks/gitmarks/internal/sync"
)

// Syncer is the part of the orchestrator the daemon drives.
type Syncer interface {
	Sync(ctx context.Context) *gmsync.Result
	Suppressed() bool
}

// Trigger reasons, also used as metric labels.
const (
	ReasonStartup  = "startup"
	ReasonDebounce = "debounce"
	ReasonMaxWait  = "max_wait"
	ReasonPoll     = "poll"
)

// Config holds configuration for the daemon.
type Config struct {
	// Debounce is the quiet period after the last event before syncing.
	Debounce time.Duration

	// MaxWait bounds how long a pending event can be deferred by newer ones.
	MaxWait time.Duration

	// PollInterval syncs periodically when positive.
	PollInterval time.Duration

	// SyncOnStart runs one sync before waiting for events.
	SyncOnStart bool

	// TickInterval is how often pending events are checked.
	TickInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce:     5 * time.Second,
		MaxWait:      60 * time.Second,
		SyncOnStart:  true,
		TickInterval: 250 * time.Millisecond,
	}
}

// Daemon schedules syncs from host events.
type Daemon struct {
	syncer Syncer
	events <-chan bookmark.ChangeEvent
	config Config
	logger *log.Logger

	pendingMu    sync.Mutex
	pending      bool
	firstEventAt time.Time
	lastEventAt  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon. events may be nil when the host publishes no
// change notifications; the daemon then only polls.
func New(syncer Syncer, events <-chan bookmark.ChangeEvent, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	c := *config
	if c.Debounce <= 0 {
		return nil, fmt.Errorf("debounce must be positive, got %v", c.Debounce)
	}
	if c.MaxWait < c.Debounce {
		return nil, fmt.Errorf("max wait %v is shorter than debounce %v", c.MaxWait, c.Debounce)
	}
	if events == nil && c.PollInterval <= 0 {
		return nil, fmt.Errorf("no change events and no poll interval: nothing would trigger a sync")
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultConfig().TickInterval
	}
	logger := c.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		syncer: syncer,
		events: events,
		config: c,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start runs the daemon. It blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Printf("Starting daemon (debounce=%v, max wait=%v, poll=%v)",
		d.config.Debounce, d.config.MaxWait, d.config.PollInterval)

	if d.config.SyncOnStart {
		d.runSync(ReasonStartup)
	}

	if d.events != nil {
		d.wg.Add(1)
		go d.watchEvents()
	}
	d.wg.Add(1)
	go d.processPending()
	if d.config.PollInterval > 0 {
		d.wg.Add(1)
		go d.poll()
	}

	select {
	case <-ctx.Done():
		d.logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon, waiting for a running sync to end.
func (d *Daemon) Stop() error {
	d.logger.Println("Stopping daemon")
	d.cancel()
	d.wg.Wait()
	d.logger.Println("Daemon stopped")
	return nil
}

// Pending reports whether events are waiting for a sync.
func (d *Daemon) Pending() bool {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	return d.pending
}

// watchEvents queues host changes.
func (d *Daemon) watchEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case _, ok := <-d.events:
			if !ok {
				d.logger.Println("Host event stream closed")
				return
			}
			if d.syncer.Suppressed() {
				metrics.RecordSuppressed()
				continue
			}
			d.markPending()
		}
	}
}

// markPending records an event; the first one starts the max-wait clock.
func (d *Daemon) markPending() {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	now := time.Now()
	if !d.pending {
		d.pending = true
		d.firstEventAt = now
	}
	d.lastEventAt = now
}

// processPending fires a sync once pending events are due.
func (d *Daemon) processPending() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if reason, due := d.due(time.Now()); due {
				d.runSync(reason)
			}
		}
	}
}

// due reports whether pending events should be synced now, and claims them
// if so.
func (d *Daemon) due(now time.Time) (string, bool) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	if !d.pending {
		return "", false
	}
	var reason string
	switch {
	case now.Sub(d.lastEventAt) >= d.config.Debounce:
		reason = ReasonDebounce
	case now.Sub(d.firstEventAt) >= d.config.MaxWait:
		reason = ReasonMaxWait
	default:
		return "", false
	}
	d.pending = false
	return reason, true
}

// poll syncs on a fixed interval.
func (d *Daemon) poll() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.runSync(ReasonPoll)
		}
	}
}

func (d *Daemon) runSync(reason string) {
	metrics.RecordTrigger(reason)
	res := d.syncer.Sync(d.ctx)

	switch res.Status {
	case gmsync.StatusInProgress:
		// Another sync is running and may have read the host before the
		// change. Try again after another quiet period.
		if reason != ReasonPoll && reason != ReasonStartup {
			d.markPending()
		}
	case gmsync.StatusError:
		logging.Errorf(d.logger, "Sync (%s): %s", reason, res.Message)
	case gmsync.StatusConflict, gmsync.StatusFirstSyncConflict:
		logging.Warnf(d.logger, "Sync (%s) needs attention: %s", reason, res.Message)
	}
}
