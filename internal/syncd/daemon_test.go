package syncd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/fairwaylabs/caddie/internal/dashboard"
	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/store"
	"github.com/fairwaylabs/caddie/internal/sync"
)

const catalogCourse = `
name = "Pacific Dunes"
location = "Bandon, OR"
pars = [4, 4, 3, 4, 5, 4, 3, 4, 4, 4, 5, 3, 4, 4, 5, 3, 4, 4]
stroke_indexes = [5, 9, 17, 1, 11, 3, 15, 7, 13, 6, 10, 18, 2, 12, 4, 16, 8, 14]

[[tees]]
name = "Black"
rating = 73.0
slope = 142
`

// fakeSyncer implements the syncer methods the daemon drives. The
// embedded interface panics on anything the daemon should not call.
type fakeSyncer struct {
	sync.Syncer

	mu       stdsync.Mutex
	drains   int
	sweeps   int
	statuses int

	result   *sync.Result
	drainErr error
	swept    int64
	counts   model.QueueCounts
}

func (f *fakeSyncer) SyncPendingChanges(ctx context.Context) (*sync.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
	if f.drainErr != nil {
		return nil, f.drainErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &sync.Result{Success: true, Timestamp: time.Now()}, nil
}

func (f *fakeSyncer) RetrySweep(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return f.swept, nil
}

func (f *fakeSyncer) QueueStatus(ctx context.Context) (model.QueueCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses++
	return f.counts, nil
}

func (f *fakeSyncer) drainCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drains
}

func (f *fakeSyncer) sweepCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps
}

func writeFile(dir, name, contents string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644)
}

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "caddie.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func silentConfig() *Config {
	config := DefaultConfig()
	config.Logger = log.New(io.Discard, "", 0)
	return config
}

// startDaemon runs Start in the background and gives it a moment to
// initialize.
func startDaemon(t *testing.T, d *Daemon) (context.CancelFunc, chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	return cancel, errCh
}

func waitStopped(t *testing.T, cancel context.CancelFunc, errCh chan error) {
	t.Helper()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("daemon shutdown error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("daemon did not shut down within timeout")
	}
}

func waitFor(t *testing.T, what string, check func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew(t *testing.T) {
	db := openTestDB(t)
	dataDir := t.TempDir()

	tests := []struct {
		name    string
		db      *store.DB
		syncer  sync.Syncer
		dataDir string
		wantErr bool
	}{
		{
			name:    "valid configuration",
			db:      db,
			syncer:  &fakeSyncer{},
			dataDir: dataDir,
			wantErr: false,
		},
		{
			name:    "nil database",
			db:      nil,
			syncer:  &fakeSyncer{},
			dataDir: dataDir,
			wantErr: true,
		},
		{
			name:    "nil syncer",
			db:      db,
			syncer:  nil,
			dataDir: dataDir,
			wantErr: true,
		},
		{
			name:    "empty data dir",
			db:      db,
			syncer:  &fakeSyncer{},
			dataDir: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			daemon, err := NewWithConfig(tt.db, tt.syncer, tt.dataDir, silentConfig())
			if (err != nil) != tt.wantErr {
				t.Errorf("NewWithConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if daemon != nil {
				defer daemon.Stop()
			}
		})
	}
}

func TestDaemonStartupDrain(t *testing.T) {
	syncer := &fakeSyncer{}
	config := silentConfig()
	config.DrainInterval = time.Minute // only the startup drain fires

	daemon, err := NewWithConfig(openTestDB(t), syncer, t.TempDir(), config)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}

	cancel, errCh := startDaemon(t, daemon)

	waitFor(t, "startup drain", func() bool {
		return syncer.drainCount() >= 1
	})

	waitStopped(t, cancel, errCh)
}

func TestDaemonDrainLoop(t *testing.T) {
	syncer := &fakeSyncer{
		result: &sync.Result{Success: true, Synced: 2, Timestamp: time.Now()},
	}
	config := silentConfig()
	config.DrainInterval = 50 * time.Millisecond

	dataDir := t.TempDir()
	daemon, err := NewWithConfig(openTestDB(t), syncer, dataDir, config)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}

	cancel, errCh := startDaemon(t, daemon)

	waitFor(t, "interval drains", func() bool {
		return syncer.drainCount() >= 3
	})

	waitStopped(t, cancel, errCh)

	entries, err := Tail(JournalPath(dataDir), 0)
	if err != nil {
		t.Fatalf("failed to read journal: %v", err)
	}
	if len(entries) < 3 {
		t.Fatalf("expected start, drains, and stop in journal, got %d entries", len(entries))
	}
	if entries[0].Op != OpStart {
		t.Errorf("expected first entry %s, got %s", OpStart, entries[0].Op)
	}
	if entries[len(entries)-1].Op != OpStop {
		t.Errorf("expected last entry %s, got %s", OpStop, entries[len(entries)-1].Op)
	}

	var startupDrain bool
	for _, e := range entries {
		if e.Op == OpDrain {
			if e.Synced != 2 {
				t.Errorf("expected drain entry with 2 synced, got %+v", e)
			}
			if e.Trigger == "startup" {
				startupDrain = true
			}
		}
	}
	if !startupDrain {
		t.Error("expected a journalled startup drain")
	}
}

func TestDaemonSweepLoop(t *testing.T) {
	syncer := &fakeSyncer{swept: 3}
	config := silentConfig()
	config.RetrySweepInterval = 50 * time.Millisecond

	dataDir := t.TempDir()
	daemon, err := NewWithConfig(openTestDB(t), syncer, dataDir, config)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}

	cancel, errCh := startDaemon(t, daemon)

	waitFor(t, "retry sweep", func() bool {
		return syncer.sweepCount() >= 1
	})

	waitStopped(t, cancel, errCh)

	entries, err := Tail(JournalPath(dataDir), 0)
	if err != nil {
		t.Fatalf("failed to read journal: %v", err)
	}
	var found bool
	for _, e := range entries {
		if e.Op == OpSweep && e.Swept == 3 {
			found = true
		}
	}
	if !found {
		t.Error("expected a journalled sweep with 3 items")
	}
}

func TestDaemonBusyDrainSkipsQuietly(t *testing.T) {
	syncer := &fakeSyncer{drainErr: sync.ErrSyncBusy}
	config := silentConfig()
	config.DrainInterval = 50 * time.Millisecond

	dataDir := t.TempDir()
	daemon, err := NewWithConfig(openTestDB(t), syncer, dataDir, config)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}

	cancel, errCh := startDaemon(t, daemon)

	waitFor(t, "busy drains", func() bool {
		return syncer.drainCount() >= 3
	})

	waitStopped(t, cancel, errCh)

	// A drain skipped for a concurrent CLI sync is not an outcome.
	entries, err := Tail(JournalPath(dataDir), 0)
	if err != nil {
		t.Fatalf("failed to read journal: %v", err)
	}
	for _, e := range entries {
		if e.Op == OpDrain {
			t.Errorf("expected no drain entries while busy, got %+v", e)
		}
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	db := openTestDB(t)
	dataDir := t.TempDir()

	first, err := NewWithConfig(db, &fakeSyncer{}, dataDir, silentConfig())
	if err != nil {
		t.Fatalf("failed to create first daemon: %v", err)
	}
	cancel, errCh := startDaemon(t, first)

	second, err := NewWithConfig(db, &fakeSyncer{}, dataDir, silentConfig())
	if err != nil {
		t.Fatalf("failed to create second daemon: %v", err)
	}
	defer second.Stop()

	startCtx, startCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer startCancel()
	if err := second.Start(startCtx); !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked from second daemon, got %v", err)
	}

	waitStopped(t, cancel, errCh)

	// With the first daemon gone the lock is free again.
	third, err := NewWithConfig(db, &fakeSyncer{}, dataDir, silentConfig())
	if err != nil {
		t.Fatalf("failed to create third daemon: %v", err)
	}
	cancel, errCh = startDaemon(t, third)
	waitStopped(t, cancel, errCh)
}

func TestDaemonGracefulShutdown(t *testing.T) {
	daemon, err := NewWithConfig(openTestDB(t), &fakeSyncer{}, t.TempDir(), silentConfig())
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- daemon.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("daemon shutdown error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("daemon did not shut down within timeout")
	}
}

func TestDaemonImportsCatalogOnStart(t *testing.T) {
	db := openTestDB(t)
	catalogDir := t.TempDir()
	if err := writeFile(catalogDir, "pacific.toml", catalogCourse); err != nil {
		t.Fatalf("failed to write course file: %v", err)
	}

	config := silentConfig()
	config.CatalogDir = catalogDir

	daemon, err := NewWithConfig(db, &fakeSyncer{}, t.TempDir(), config)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}

	cancel, errCh := startDaemon(t, daemon)

	ctx := context.Background()
	waitFor(t, "catalog import", func() bool {
		_, err := db.GetCourse(ctx, "pacific-dunes")
		return err == nil
	})

	waitStopped(t, cancel, errCh)
}

func TestDaemonMissingCatalogFailsStart(t *testing.T) {
	config := silentConfig()
	config.CatalogDir = filepath.Join(t.TempDir(), "absent")

	daemon, err := NewWithConfig(openTestDB(t), &fakeSyncer{}, t.TempDir(), config)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	defer daemon.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := daemon.Start(ctx); err == nil {
		t.Error("expected Start to fail for a missing catalog directory")
	}
}

func TestDaemonPublishesQueueStatus(t *testing.T) {
	dashCfg := dashboard.DefaultConfig()
	dashCfg.Port = 0
	dashCfg.Logger = log.New(io.Discard, "", 0)
	server := dashboard.NewServer(dashCfg)
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start dashboard: %v", err)
	}
	defer server.Stop()
	time.Sleep(100 * time.Millisecond)

	syncer := &fakeSyncer{counts: model.QueueCounts{Pending: 2, Failed: 1, Total: 3}}
	config := silentConfig()
	config.StatusInterval = 50 * time.Millisecond
	config.Events = dashboard.NewHandler(server, log.New(io.Discard, "", 0))

	daemon, err := NewWithConfig(openTestDB(t), syncer, t.TempDir(), config)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}

	ctx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("failed to dial dashboard: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	cancel, errCh := startDaemon(t, daemon)
	defer waitStopped(t, cancel, errCh)

	// Read until a queue_status message arrives.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("failed to read broadcast: %v", err)
		}
		var msg dashboard.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("failed to decode message: %v", err)
		}
		if msg.Type != dashboard.MessageTypeQueueStatus {
			continue
		}
		var status dashboard.QueueStatusData
		if err := json.Unmarshal(msg.Data, &status); err != nil {
			t.Fatalf("failed to decode status: %v", err)
		}
		if status.Pending != 2 || status.Failed != 1 || status.Total != 3 {
			t.Errorf("expected counts 2/1/3, got %d/%d/%d", status.Pending, status.Failed, status.Total)
		}
		return
	}
}
