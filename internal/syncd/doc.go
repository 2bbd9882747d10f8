// Package syncd provides the background daemon that keeps the local
// trip store reconciled with the remote.
//
// The daemon owns the periodic work the CLI only does on demand: it
// drains the sync queue on an interval, returns failed queue items to
// pending, publishes queue counts to the local dashboard, re-imports
// changed course catalog files, and applies relay updates pushed by
// other devices.
//
// # Architecture
//
// The daemon consists of several components:
//
//   - Daemon: Orchestrates the drain, retry sweep, and status loops
//   - Journal: Append-only JSONL record of drain and sweep outcomes
//   - FileLock: Advisory flock keeping one daemon per data directory
//   - course.Watcher: Debounced re-import of changed catalog files
//   - live.Consumer: Applies relay updates from other devices
//
// # Usage
//
//	config := syncd.DefaultConfig()
//	config.CatalogDir = "/home/mo/.caddie/courses"
//	config.RelayURL = "wss://relay.example.com/ws"
//
//	daemon, err := syncd.NewWithConfig(db, syncer, dataDir, config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//
//	if err := daemon.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Start blocks until the context is cancelled, then shuts down
// gracefully: loops finish their current pass, the watcher and
// consumer stop, the journal is closed, and the lock is released.
//
// # Single Instance
//
// Two daemons draining one store would race each other's pushes, so
// Start takes an exclusive flock on a lock file next to the database
// and fails fast with ErrLocked when another daemon holds it. The
// kernel drops the lock when the holding process exits, so a crashed
// daemon never blocks the next one.
//
// # Journal
//
// Outcomes of note are appended to caddied.journal as JSON lines:
// daemon start and stop, drains that pushed or failed anything, and
// sweeps that returned items to pending. Idle passes are not recorded.
// Readers open the file independently of the running daemon:
//
//	entries, err := syncd.Tail(syncd.JournalPath(dataDir), 20)
//
// ReadFrom returns a resume offset alongside the entries, so a status
// command can poll for new entries without rereading the file.
//
// # Interaction With CLI Syncs
//
// The drain guard is shared with CLI-invoked syncs through the syncer,
// so a daemon tick that lands while `caddie sync now` is running skips
// quietly and the next tick picks up whatever remains.
package syncd
