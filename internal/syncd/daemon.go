package syncd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	stdsync "sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fairwaylabs/caddie/internal/course"
	"github.com/fairwaylabs/caddie/internal/dashboard"
	"github.com/fairwaylabs/caddie/internal/live"
	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/store"
	"github.com/fairwaylabs/caddie/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// DrainInterval is how often the pending queue is drained.
	DrainInterval time.Duration

	// RetrySweepInterval is how often failed queue items are returned
	// to pending.
	RetrySweepInterval time.Duration

	// StatusInterval is how often queue counts are published.
	StatusInterval time.Duration

	// CatalogDebounce is how long a changed course file sits before it
	// is re-imported. This batches rapid editor saves together.
	CatalogDebounce time.Duration

	// CatalogDir enables course catalog watching when set.
	CatalogDir string

	// RelayURL enables the live update consumer when set.
	RelayURL string

	// Events receives queue counts and push outcomes for the local
	// dashboard. Optional.
	Events *dashboard.Handler

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DrainInterval:      30 * time.Second,
		RetrySweepInterval: 5 * time.Minute,
		StatusInterval:     15 * time.Second,
		CatalogDebounce:    500 * time.Millisecond,
		Logger:             log.New(os.Stderr, "[syncd] ", log.LstdFlags),
	}
}

// NewRotatingLogger returns a logger writing to a size-rotated file.
func NewRotatingLogger(path string) *log.Logger {
	return log.New(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}, "[syncd] ", log.LstdFlags)
}

// Daemon keeps the local store reconciled with the remote while it
// runs: it drains the sync queue on an interval, returns failed items
// to pending, publishes queue counts, re-imports changed course files,
// and applies relay updates from other devices.
type Daemon struct {
	db      *store.DB
	syncer  sync.Syncer
	dataDir string
	config  *Config

	journal *Journal
	lock    *FileLock

	importer *course.Importer
	watcher  *course.Watcher
	consumer *live.Consumer

	// lastCounts is touched only by the status loop.
	lastCounts model.QueueCounts
	haveCounts bool

	started  atomic.Bool
	stopOnce stdsync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// New creates a daemon for the store in dataDir. The daemon keeps its
// lock file and journal in dataDir, next to the database.
//
// Use Start() to begin draining.
func New(db *store.DB, syncer sync.Syncer, dataDir string) (*Daemon, error) {
	return NewWithConfig(db, syncer, dataDir, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration. Zero
// intervals and a nil logger fall back to defaults.
func NewWithConfig(db *store.DB, syncer sync.Syncer, dataDir string, config *Config) (*Daemon, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if dataDir == "" {
		return nil, fmt.Errorf("dataDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.DrainInterval <= 0 {
		config.DrainInterval = defaults.DrainInterval
	}
	if config.RetrySweepInterval <= 0 {
		config.RetrySweepInterval = defaults.RetrySweepInterval
	}
	if config.StatusInterval <= 0 {
		config.StatusInterval = defaults.StatusInterval
	}
	if config.CatalogDebounce <= 0 {
		config.CatalogDebounce = defaults.CatalogDebounce
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	journal, err := OpenJournal(JournalPath(dataDir))
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		db:      db,
		syncer:  syncer,
		dataDir: dataDir,
		config:  config,
		journal: journal,
		lock:    NewFileLock(LockPath(dataDir)),
	}

	if config.CatalogDir != "" {
		d.importer = course.NewImporter(db, config.Logger)
		watcher, err := course.NewWatcher(d.importer, config.CatalogDir, config.CatalogDebounce, config.Logger)
		if err != nil {
			journal.Close()
			return nil, fmt.Errorf("failed to create catalog watcher: %w", err)
		}
		d.watcher = watcher
	}

	if config.RelayURL != "" {
		// A nil *Handler must stay a nil Publisher.
		var pub live.Publisher
		if config.Events != nil {
			pub = config.Events
		}
		consumer, err := live.New(db, config.RelayURL, pub, config.Logger)
		if err != nil {
			if d.watcher != nil {
				d.watcher.Stop()
			}
			journal.Close()
			return nil, fmt.Errorf("failed to create live consumer: %w", err)
		}
		d.consumer = consumer
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Take the single-instance lock for the data directory
// 2. Import the course catalog and start watching it for changes
// 3. Drain anything previous runs left queued
// 4. Keep draining, sweeping retries, and publishing queue counts
//
// This blocks until ctx is cancelled or an error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.lock.Acquire(); err != nil {
		return err
	}
	d.started.Store(true)

	d.config.Logger.Printf("Starting sync daemon (drain every %s)", d.config.DrainInterval)
	d.record(Entry{Op: OpStart})

	if d.watcher != nil {
		// Course files present before the daemon started import once
		// up front; the watcher only sees changes from here on.
		if _, err := d.importer.ImportDir(d.ctx, d.config.CatalogDir); err != nil {
			d.lock.Release()
			return fmt.Errorf("initial catalog import failed: %w", err)
		}
		if err := d.watcher.Start(); err != nil {
			d.lock.Release()
			return fmt.Errorf("failed to start catalog watcher: %w", err)
		}
		d.config.Logger.Printf("Watching catalog: %s", d.config.CatalogDir)
	}

	if d.consumer != nil {
		d.consumer.Start()
	}

	// Start background loops
	d.wg.Add(3)
	go d.drainLoop()
	go d.sweepLoop()
	go d.statusLoop()

	// Push whatever previous runs left queued.
	d.drainOnce("startup")

	// Wait for shutdown
	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. It is safe to call more than
// once and is called automatically when the context passed to Start is
// cancelled.
func (d *Daemon) Stop() error {
	var err error
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping sync daemon")

		// Signal shutdown and wait for the loops
		d.cancel()
		d.wg.Wait()

		if d.watcher != nil {
			if werr := d.watcher.Stop(); werr != nil {
				d.config.Logger.Printf("Error stopping catalog watcher: %v", werr)
			}
		}
		if d.consumer != nil {
			d.consumer.Stop()
		}

		if d.started.Load() {
			d.record(Entry{Op: OpStop})
		}
		if cerr := d.journal.Close(); cerr != nil {
			d.config.Logger.Printf("Error closing journal: %v", cerr)
		}

		err = d.lock.Release()
		d.config.Logger.Println("Sync daemon stopped")
	})
	return err
}

// drainLoop drains the pending queue on an interval.
func (d *Daemon) drainLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.drainOnce("interval")
		}
	}
}

// drainOnce runs one queue drain and records the outcome. Idle drains
// are not journalled.
func (d *Daemon) drainOnce(trigger string) {
	start := time.Now()
	res, err := d.syncer.SyncPendingChanges(d.ctx)
	if errors.Is(err, sync.ErrSyncBusy) {
		// A CLI-invoked drain holds the guard; the next tick retries.
		return
	}
	if d.ctx.Err() != nil {
		return // shutting down
	}
	duration := time.Since(start)

	var synced, failed int
	if res != nil {
		synced = res.Synced
		failed = len(res.Errors)
	}

	if err != nil {
		d.config.Logger.Printf("Drain failed (%s): %v", trigger, err)
	} else if synced > 0 || failed > 0 {
		d.config.Logger.Printf("Drained %d items, %d failed (%s, %s)",
			synced, failed, trigger, duration.Round(time.Millisecond))
	}

	if err == nil && synced == 0 && failed == 0 {
		return
	}

	d.record(Entry{Op: OpDrain, Trigger: trigger, Synced: synced, Failed: failed, Error: errText(err)})
	if d.config.Events != nil {
		d.config.Events.OnSyncResult(trigger, synced, failed, duration, err)
	}
}

// sweepLoop returns failed queue items to pending on an interval.
func (d *Daemon) sweepLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.RetrySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.sweepOnce()
		}
	}
}

func (d *Daemon) sweepOnce() {
	n, err := d.syncer.RetrySweep(d.ctx)
	if d.ctx.Err() != nil {
		return
	}
	if err != nil {
		d.config.Logger.Printf("Retry sweep failed: %v", err)
		d.record(Entry{Op: OpSweep, Error: err.Error()})
		return
	}
	if n > 0 {
		d.config.Logger.Printf("Returned %d failed items to pending", n)
		d.record(Entry{Op: OpSweep, Swept: n})
	}
}

// statusLoop publishes queue counts on an interval.
func (d *Daemon) statusLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.statusOnce()
		}
	}
}

func (d *Daemon) statusOnce() {
	counts, err := d.syncer.QueueStatus(d.ctx)
	if err != nil {
		if d.ctx.Err() == nil {
			d.config.Logger.Printf("Queue status failed: %v", err)
		}
		return
	}

	if d.config.Events != nil {
		d.config.Events.OnQueueStatus(counts)
	}

	// Log only transitions, not every tick.
	if !d.haveCounts || counts != d.lastCounts {
		d.config.Logger.Printf("Queue: %d pending, %d failed", counts.Pending, counts.Failed)
		d.lastCounts = counts
		d.haveCounts = true
	}
}

// record appends a journal entry, logging instead of failing when the
// journal is unwritable.
func (d *Daemon) record(e Entry) {
	if err := d.journal.Append(e); err != nil {
		d.config.Logger.Printf("Warning: journal write failed: %v", err)
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
