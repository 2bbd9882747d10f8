package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fairwaylabs/caddie/internal/config"
	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/remote"
	"github.com/fairwaylabs/caddie/internal/store"
	"github.com/fairwaylabs/caddie/internal/sync"
	"github.com/fairwaylabs/caddie/internal/ui"
)

// version is stamped by the release build.
var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "caddie",
	Short: "Offline-first scorekeeping for golf trip match play",
	Long: `caddie keeps a golf trip's matches scored from the course, with or
without signal.

Every change lands in a local SQLite database first; a sync queue
records what still needs to reach the shared remote store. Score holes
all round, then sync from the clubhouse wifi, or run the daemon and let
it drain the queue whenever the remote is reachable.

A typical trip:
  caddie trip create --name "Cabot Trip" --start 2026-05-14 --end 2026-05-17
  caddie roster add-team "Cabot Trip" --name Red --color red
  caddie roster add-player "Cabot Trip" --name Sam --handicap 8.4
  caddie session add "Cabot Trip" --name "Round 1" --format fourball
  caddie match add "Cabot Trip" --session "Round 1" --team-a Red --team-b Blue
  caddie score record <match> 1 red
  caddie sync now`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
			ui.DisableColor()
		}
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "trip", Title: "Trip Setup:"},
		&cobra.Group{ID: "scoring", Title: "Scoring:"},
		&cobra.Group{ID: "sync", Title: "Sync & Sharing:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	rootCmd.PersistentFlags().String("config", "", "config file (default ~/.config/caddie/config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "local database path")
	rootCmd.PersistentFlags().String("remote-url", "", "remote libSQL database URL")
	rootCmd.PersistentFlags().String("relay-url", "", "live update relay websocket URL")
	rootCmd.PersistentFlags().String("catalog-dir", "", "course catalog directory")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
}

// loadConfig resolves configuration for a command: flags beat CADDIE_*
// environment variables beat the config file.
func loadConfig(cmd *cobra.Command) *config.Config {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openStore opens the local database, creating and migrating it on
// first use.
func openStore(cfg *config.Config) *store.DB {
	database, err := store.Open(cfg.StorePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening local store: %v\n", err)
		os.Exit(1)
	}
	return database
}

// connectRemote opens the configured remote store. Commands that cannot
// do their job without one call this; offline-tolerant commands go
// through syncerFor instead.
func connectRemote(ctx context.Context, cfg *config.Config) *remote.Client {
	if cfg.RemoteURL == "" {
		fmt.Fprintf(os.Stderr, "Error: no remote store configured\n")
		fmt.Fprintf(os.Stderr, "Set remote.url in %s or pass --remote-url\n", cfg.Path)
		os.Exit(1)
	}
	client, err := remote.Connect(ctx, cfg.RemoteURL, cfg.AuthToken)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to remote: %v\n", err)
		os.Exit(1)
	}
	return client
}

// offlineRemote stands in when no remote is configured or the remote is
// unreachable. Pushes fail soft into the sync queue; pulls report the
// remote unavailable.
type offlineRemote struct{}

func (offlineRemote) Upsert(ctx context.Context, kind model.EntityKind, row remote.Row) error {
	return remote.ErrUnavailable
}

func (offlineRemote) Delete(ctx context.Context, kind model.EntityKind, id string) error {
	return remote.ErrUnavailable
}

func (offlineRemote) PullTrip(ctx context.Context, shareCode string) (*remote.TripBundle, error) {
	return nil, remote.ErrUnavailable
}

func (offlineRemote) CheckClientVersion(ctx context.Context, clientVersion string) error {
	return remote.ErrUnavailable
}

// syncerFor builds a syncer for commands that keep working offline. An
// unset or unreachable remote degrades to the offline stand-in, so
// local mutations proceed and their pushes wait in the queue. The
// returned func closes the remote connection, if one was made.
func syncerFor(ctx context.Context, cfg *config.Config, database *store.DB) (sync.Syncer, func()) {
	if cfg.RemoteURL == "" {
		return sync.New(database, offlineRemote{}, version, nil), func() {}
	}
	client, err := remote.Connect(ctx, cfg.RemoteURL, cfg.AuthToken)
	if err != nil {
		if !remote.IsUnavailable(err) {
			fmt.Fprintf(os.Stderr, "Error connecting to remote: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "%s Remote unreachable, working offline\n", ui.RenderWarn("⚠"))
		return sync.New(database, offlineRemote{}, version, nil), func() {}
	}
	return sync.New(database, client, version, nil), func() { client.Close() }
}

// queueChange records a pending remote mutation without touching the
// remote; a later drain pushes it.
func queueChange(ctx context.Context, database *store.DB, kind model.EntityKind, entityID string, op model.Operation, tripID string) {
	syncer := sync.New(database, offlineRemote{}, version, nil)
	if err := syncer.QueueChange(ctx, kind, entityID, op, tripID); err != nil {
		fmt.Fprintf(os.Stderr, "Error queueing sync: %v\n", err)
		os.Exit(1)
	}
}

// findTrip resolves a trip argument: exact id, then unique name or id
// prefix, then share code.
func findTrip(ctx context.Context, database *store.DB, arg string) *model.Trip {
	trip, err := database.GetTrip(ctx, arg)
	if err == nil {
		return trip
	}
	if !errors.Is(err, store.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "Error looking up trip: %v\n", err)
		os.Exit(1)
	}

	trips, err := database.ListTrips(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing trips: %v\n", err)
		os.Exit(1)
	}
	var matched []*model.Trip
	for _, t := range trips {
		if strings.EqualFold(t.Name, arg) || strings.HasPrefix(t.ID, arg) {
			matched = append(matched, t)
		}
	}
	if len(matched) == 1 {
		return matched[0]
	}
	if len(matched) > 1 {
		fmt.Fprintf(os.Stderr, "Error: %q matches %d trips, use the id\n", arg, len(matched))
		os.Exit(1)
	}

	if code := model.NormalizeShareCode(arg); model.ValidateShareCode(code) == nil {
		if trip, err := database.GetTripByShareCode(ctx, code); err == nil {
			return trip
		}
	}

	fmt.Fprintf(os.Stderr, "Error: no trip matches %q\n", arg)
	fmt.Fprintf(os.Stderr, "List trips with 'caddie trip list'\n")
	os.Exit(1)
	return nil
}

// shortID abbreviates an id for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
