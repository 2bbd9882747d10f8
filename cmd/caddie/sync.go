package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/remote"
	"github.com/fairwaylabs/caddie/internal/sync"
	"github.com/fairwaylabs/caddie/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push queued changes to the remote store",
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Drain the sync queue",
	Long: `Push every queued change to the remote store.

Failed items from earlier attempts are swept back in first, so a manual
sync retries everything. Each item is materialized from the current
local row at push time; rows deleted since queueing are dropped as
inert rather than resurrected.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		client := connectRemote(ctx, cfg)
		defer client.Close()

		syncer := sync.New(database, client, version, nil)

		swept, err := syncer.RetrySweep(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error sweeping failed items: %v\n", err)
			os.Exit(1)
		}
		if swept > 0 {
			fmt.Printf("%s Retrying %d previously failed items\n", ui.RenderAccent("🔄"), swept)
		}

		start := time.Now()
		result, err := syncer.SyncPendingChanges(ctx)
		if err != nil {
			if errors.Is(err, sync.ErrSyncBusy) {
				fmt.Fprintf(os.Stderr, "Error: another sync is already running\n")
				os.Exit(1)
			}
			if errors.Is(err, remote.ErrClientTooOld) {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				fmt.Fprintf(os.Stderr, "Upgrade caddie before syncing\n")
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Error syncing: %v\n", err)
			os.Exit(1)
		}
		elapsed := time.Since(start)

		if !result.Success {
			fmt.Printf("%s Pushed %d, %d failed in %v\n",
				ui.RenderWarn("⚠"), result.Synced, len(result.Errors), elapsed.Round(time.Millisecond))
			for _, e := range result.Errors {
				fmt.Printf("   %s\n", e)
			}
			fmt.Println("   Failures stay queued; run 'caddie sync now' again to retry")
			os.Exit(1)
		}
		if result.Synced == 0 && swept == 0 {
			fmt.Printf("%s Nothing to sync\n", ui.RenderPass("✓"))
			return
		}
		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), elapsed.Round(time.Millisecond))
		fmt.Printf("   Pushed: %d\n", result.Synced)
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync queue",
	Long: `Show how much local work still needs to reach the remote store.

With --verify, also check every trip-scoped queue item against the
local store and report items whose trip has since been deleted. Those
should not exist; trip deletion purges its queue in the same
transaction as the cascade.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		counts, err := database.SyncQueueStatus(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading queue: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\n%s Sync Queue\n\n", ui.RenderAccent("📊"))
		fmt.Printf("   Pending: %d\n", counts.Pending)
		fmt.Printf("   Failed:  %d\n", counts.Failed)
		fmt.Printf("   Total:   %d\n", counts.Total)

		trips, err := database.ListTrips(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing trips: %v\n", err)
			os.Exit(1)
		}
		if len(trips) > 0 {
			fmt.Println()
			for _, trip := range trips {
				bm, err := database.GetSyncBookmark(ctx, trip.ID)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error reading sync bookmark: %v\n", err)
					os.Exit(1)
				}
				last := "never"
				if bm.LastPushAt != nil {
					last = bm.LastPushAt.Local().Format("Jan _2 15:04")
				}
				fmt.Printf("   %s: last push %s\n", trip.Name, last)
			}
		}

		if counts.Failed > 0 {
			items, err := database.ListQueue(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error listing queue: %v\n", err)
				os.Exit(1)
			}
			fmt.Println()
			for _, item := range items {
				if item.Status != model.SyncFailed {
					continue
				}
				fmt.Printf("   %s %s %s %s, %d retries\n",
					ui.RenderWarn("⚠"), item.Op, item.Entity, shortID(item.EntityID), item.RetryCount)
				if item.LastError != "" {
					fmt.Printf("      %s\n", ui.RenderMuted(item.LastError))
				}
			}
			fmt.Println("\n   'caddie sync now' retries failed items")
		}

		verify, _ := cmd.Flags().GetBool("verify")
		if !verify {
			return
		}

		items, err := database.ListQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing queue: %v\n", err)
			os.Exit(1)
		}
		orphans := make(map[string]int)
		for _, item := range items {
			if item.TripID == "" {
				continue
			}
			exists, err := database.TripExists(ctx, item.TripID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error checking trip %s: %v\n", item.TripID, err)
				os.Exit(1)
			}
			if !exists {
				orphans[item.TripID]++
			}
		}

		fmt.Println()
		if len(orphans) == 0 {
			fmt.Printf("%s No orphaned queue items\n", ui.RenderPass("✓"))
			return
		}
		for tripID, n := range orphans {
			fmt.Printf("%s %d queue items reference deleted trip %s\n", ui.RenderWarn("⚠"), n, tripID)
			fmt.Printf("   Purge them with 'caddie sync purge %s'\n", tripID)
		}
		os.Exit(1)
	},
}

var syncPurgeCmd = &cobra.Command{
	Use:   "purge <trip-id>",
	Short: "Drop every queue item scoped to a trip",
	Long: `Remove all queued sync work for one trip without pushing it.

Meant for repair, mostly for items orphaned by a trip that no longer
exists ('caddie sync status --verify' finds those). Deleting a trip
purges its queue on its own.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		// The trip may be long gone; resolve the id when it still
		// exists and otherwise take the argument as given.
		tripID := args[0]
		if trip, err := database.GetTrip(ctx, tripID); err == nil {
			tripID = trip.ID
		}

		syncer := sync.New(database, offlineRemote{}, version, nil)
		purged, err := syncer.PurgeTripQueue(ctx, tripID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error purging queue: %v\n", err)
			os.Exit(1)
		}
		if purged == 0 {
			fmt.Printf("No queue items for trip %s\n", tripID)
			return
		}
		fmt.Printf("%s Purged %d queue items for trip %s\n", ui.RenderPass("✓"), purged, tripID)
	},
}

func init() {
	syncStatusCmd.Flags().Bool("verify", false, "check queue items against the local store")

	syncCmd.AddCommand(syncNowCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncPurgeCmd)
	rootCmd.AddCommand(syncCmd)
}
