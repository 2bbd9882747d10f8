package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fairwaylabs/caddie/internal/loadtest"
	"github.com/fairwaylabs/caddie/internal/store"
)

var loadtestCmd = &cobra.Command{
	Use:    "loadtest",
	Hidden: true,
	Short:  "Measure local store and sync queue throughput",
	Long: `Seed a synthetic workload through the real scoring and sync paths
and report latency percentiles for writes, cascades, and drains.

The workload runs against a scratch database in a temp directory,
never the configured store. A stand-in remote absorbs pushes; --delay
adds latency to each push to model a network.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		dir, err := os.MkdirTemp("", "caddie-loadtest-")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating scratch directory: %v\n", err)
			os.Exit(1)
		}
		defer os.RemoveAll(dir)

		database, err := store.Open(filepath.Join(dir, "loadtest.db"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening scratch store: %v\n", err)
			os.Exit(1)
		}
		defer database.Close()

		trips, _ := cmd.Flags().GetInt("trips")
		sessions, _ := cmd.Flags().GetInt("sessions")
		matches, _ := cmd.Flags().GetInt("matches")
		holes, _ := cmd.Flags().GetInt("holes")
		seed, _ := cmd.Flags().GetInt64("seed")
		delay, _ := cmd.Flags().GetDuration("delay")

		result, err := loadtest.Run(ctx, database, &loadtest.Options{
			Trips:             trips,
			SessionsPerTrip:   sessions,
			MatchesPerSession: matches,
			HolesPerMatch:     holes,
			Seed:              seed,
			RemoteDelay:       delay,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error running loadtest: %v\n", err)
			os.Exit(1)
		}

		fmt.Println()
		result.Report(os.Stdout)
	},
}

func init() {
	loadtestCmd.Flags().Int("trips", 2, "trips to seed")
	loadtestCmd.Flags().Int("sessions", 3, "sessions per trip")
	loadtestCmd.Flags().Int("matches", 4, "matches per session")
	loadtestCmd.Flags().Int("holes", 9, "holes to score per match")
	loadtestCmd.Flags().Int64("seed", 42, "random seed")
	loadtestCmd.Flags().Duration("delay", 0, "artificial latency per remote push")

	rootCmd.AddCommand(loadtestCmd)
}
