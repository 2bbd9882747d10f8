package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fairwaylabs/caddie/internal/archive"
	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/remote"
	"github.com/fairwaylabs/caddie/internal/sync"
	"github.com/fairwaylabs/caddie/internal/ui"
)

var tripCmd = &cobra.Command{
	Use:     "trip",
	GroupID: "trip",
	Short:   "Create, share, and manage trips",
	Long: `Manage trips, the root of everything caddie tracks.

A trip owns its roster, sessions, matches, and scores. Deleting a trip
removes all of that plus any sync work still queued for it, locally and
(when reachable) on the remote.`,
}

var tripCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new trip",
	Long: `Create a trip on this device.

The trip gets a share code other devices use to join it once it has
been pushed to the remote with 'caddie trip share'.

Example:
  caddie trip create --name "Cabot Trip" --start 2026-05-14 --end 2026-05-17`,
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			fmt.Fprintf(os.Stderr, "Error: --name is required\n")
			os.Exit(1)
		}
		location, _ := cmd.Flags().GetString("location")
		start, _ := cmd.Flags().GetString("start")
		if start == "" {
			start = time.Now().Format(model.DateFormat)
		}
		end, _ := cmd.Flags().GetString("end")
		if end == "" {
			end = start
		}

		trip := model.NewTrip(name, location, start, end)
		if err := trip.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		if err := database.UpsertTrip(ctx, trip); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving trip: %v\n", err)
			os.Exit(1)
		}
		queueChange(ctx, database, model.EntityTrip, trip.ID, model.OpCreate, trip.ID)

		fmt.Printf("%s Created trip %q\n", ui.RenderPass("✓"), trip.Name)
		fmt.Printf("   Dates: %s to %s (%d days)\n", trip.StartDate, trip.EndDate, trip.Days())
		fmt.Printf("   Share code: %s\n", trip.ShareCode)
		fmt.Printf("   ID: %s\n", trip.ID)
	},
}

var tripListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trips on this device",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		trips, err := database.ListTrips(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing trips: %v\n", err)
			os.Exit(1)
		}
		if len(trips) == 0 {
			fmt.Println("No trips yet. Create one with 'caddie trip create' or join one with 'caddie trip join'.")
			return
		}

		fmt.Printf("%-26s %-24s %-8s %s\n", "NAME", "DATES", "SHARE", "ID")
		for _, t := range trips {
			fmt.Printf("%-26s %-24s %-8s %s\n",
				t.Name,
				fmt.Sprintf("%s to %s", t.StartDate, t.EndDate),
				t.ShareCode,
				shortID(t.ID),
			)
		}
	},
}

var tripShowCmd = &cobra.Command{
	Use:   "show <trip>",
	Short: "Show a trip's roster, sessions, and match standings",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		trip := findTrip(ctx, database, args[0])

		fmt.Printf("\n%s %s\n", ui.RenderAccent("⛳"), trip.Name)
		fmt.Printf("   Dates: %s to %s (%d days)\n", trip.StartDate, trip.EndDate, trip.Days())
		if trip.Location != "" {
			fmt.Printf("   Location: %s\n", trip.Location)
		}
		fmt.Printf("   Share code: %s\n", trip.ShareCode)
		fmt.Printf("   ID: %s\n", shortID(trip.ID))

		players, err := database.ListPlayersByTrip(ctx, trip.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing players: %v\n", err)
			os.Exit(1)
		}
		teams, err := database.ListTeamsByTrip(ctx, trip.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing teams: %v\n", err)
			os.Exit(1)
		}
		members, err := database.ListTeamMembersByTrip(ctx, trip.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing team members: %v\n", err)
			os.Exit(1)
		}

		teamOf := make(map[string]string, len(members))
		for _, m := range members {
			teamOf[m.PlayerID] = m.TeamID
		}

		if len(players) > 0 {
			fmt.Printf("\nRoster:\n")
			for _, team := range teams {
				fmt.Printf("   %s:", team.Name)
				first := true
				for _, p := range players {
					if teamOf[p.ID] != team.ID {
						continue
					}
					if !first {
						fmt.Print(",")
					}
					fmt.Printf(" %s (%g)", p.Name, p.Handicap)
					first = false
				}
				if first {
					fmt.Print(" (empty)")
				}
				fmt.Println()
			}
			first := true
			for _, p := range players {
				if teamOf[p.ID] != "" {
					continue
				}
				if first {
					fmt.Print("   Unassigned:")
					first = false
				} else {
					fmt.Print(",")
				}
				fmt.Printf(" %s (%g)", p.Name, p.Handicap)
			}
			if !first {
				fmt.Println()
			}
		}

		sessions, err := database.ListSessionsByTrip(ctx, trip.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing sessions: %v\n", err)
			os.Exit(1)
		}
		teamName := make(map[string]string, len(teams))
		for _, t := range teams {
			teamName[t.ID] = t.Name
		}

		for _, session := range sessions {
			line := fmt.Sprintf("%s (%s)", session.Name, session.Format)
			if session.TeeTime != nil {
				line += ", " + session.TeeTime.Format("Mon Jan 2 3:04 PM")
			}
			if session.CourseID != "" {
				if course, err := database.GetCourse(ctx, session.CourseID); err == nil {
					line += " at " + course.Name
				}
			}
			fmt.Printf("\n%s:\n", line)

			matches, err := database.ListMatchesBySession(ctx, session.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error listing matches: %v\n", err)
				os.Exit(1)
			}
			if len(matches) == 0 {
				fmt.Println("   (no matches)")
				continue
			}
			for _, match := range matches {
				results, err := database.ListHoleResultsByMatch(ctx, match.ID)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error listing hole results: %v\n", err)
					os.Exit(1)
				}
				holes := make([]model.HoleResult, len(results))
				for i, r := range results {
					holes[i] = *r
				}
				standing := model.ComputeStanding(holes)

				a, b := teamName[match.TeamAID], teamName[match.TeamBID]
				score := scoreText(standing, a, b)
				switch {
				case match.Status == model.MatchFinal:
					score = "Final: " + score
				case standing.Thru > 0:
					score = fmt.Sprintf("%s thru %d", score, standing.Thru)
					if standing.Dormie {
						score += " (dormie)"
					}
				default:
					score = "not started"
				}
				fmt.Printf("   %-9s %s vs %s   %s\n", shortID(match.ID), a, b, score)
			}
		}
		fmt.Println()
	},
}

var tripDeleteCmd = &cobra.Command{
	Use:   "delete <trip>",
	Short: "Delete a trip and everything in it",
	Long: `Delete a trip locally and, when the remote is reachable, remotely.

The local cascade removes the roster, sessions, matches, hole results,
scoring events, dues, payments, and every sync queue item scoped to the
trip, all in one transaction. Nothing left in the queue can bring the
trip back on a later sync.

If the remote cannot be reached the local delete still goes through;
the remote copy stays behind for a connected device to delete.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		trip := findTrip(ctx, database, args[0])

		force, _ := cmd.Flags().GetBool("force")
		if !force {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				fmt.Fprintf(os.Stderr, "Error: refusing to delete without --force when stdin is not a terminal\n")
				os.Exit(1)
			}
			var confirmed bool
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Delete %q?", trip.Name)).
					Description("Roster, matches, scores, and queued sync work all go with it.").
					Affirmative("Delete").
					Negative("Keep").
					Value(&confirmed),
			))
			if err := form.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if !confirmed {
				fmt.Println("Kept.")
				return
			}
		}

		syncer, closeRemote := syncerFor(ctx, cfg, database)
		defer closeRemote()

		res, err := syncer.DeleteTrip(ctx, trip.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting trip: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Deleted trip %q\n", ui.RenderPass("✓"), trip.Name)
		fmt.Printf("   Rows removed: %d\n", res.Rows())
		fmt.Printf("   Scoring events: %d\n", res.Events)
		fmt.Printf("   Queue items purged: %d\n", res.QueuePurged)
	},
}

var tripShareCmd = &cobra.Command{
	Use:   "share <trip>",
	Short: "Push a trip to the remote and print its share code",
	Long: `Push a whole trip to the remote store so other devices can join it.

Rows go up in dependency order; individual failures stay queued for a
later sync rather than aborting the push.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		trip := findTrip(ctx, database, args[0])
		fmt.Printf("Share code: %s\n", ui.RenderAccent(trip.ShareCode))

		client := connectRemote(ctx, cfg)
		defer client.Close()
		syncer := sync.New(database, client, version, nil)

		start := time.Now()
		res, err := syncer.SyncTripToCloud(ctx, trip.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error syncing trip: %v\n", err)
			os.Exit(1)
		}
		if !res.Success {
			fmt.Printf("%s Pushed %d rows, %d failed:\n", ui.RenderWarn("⚠"), res.Synced, len(res.Errors))
			for _, e := range res.Errors {
				fmt.Printf("   %s\n", e)
			}
			fmt.Printf("The failures stay queued; run 'caddie sync now' to retry.\n")
			os.Exit(1)
		}

		fmt.Printf("%s Pushed %d rows in %v\n", ui.RenderPass("✓"), res.Synced, time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Friends join with: caddie trip join %s\n", trip.ShareCode)
	},
}

var tripJoinCmd = &cobra.Command{
	Use:   "join <share-code>",
	Short: "Pull a shared trip from the remote",
	Long: `Join a trip another device shared, by its share code.

The trip and everything in it is pulled from the remote and written to
the local store. Joining again later refreshes the local copy.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		client := connectRemote(ctx, cfg)
		defer client.Close()
		syncer := sync.New(database, client, version, nil)

		code := model.NormalizeShareCode(args[0])
		trip, err := syncer.JoinTripByShareCode(ctx, code)
		if remote.IsNotFound(err) {
			fmt.Fprintf(os.Stderr, "Error: no trip with share code %s\n", code)
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error joining trip: %v\n", err)
			os.Exit(1)
		}

		players, _ := database.ListPlayersByTrip(ctx, trip.ID)
		sessions, _ := database.ListSessionsByTrip(ctx, trip.ID)

		fmt.Printf("%s Joined %q\n", ui.RenderPass("✓"), trip.Name)
		fmt.Printf("   Dates: %s to %s\n", trip.StartDate, trip.EndDate)
		fmt.Printf("   %d players, %d sessions\n", len(players), len(sessions))
		fmt.Printf("   See it with: caddie trip show %s\n", shortID(trip.ID))
	},
}

var tripExportCmd = &cobra.Command{
	Use:   "export <trip> [file]",
	Short: "Export a trip as a JSONL archive",
	Long: `Write a trip and everything in it to a JSONL archive.

With a file argument the write is atomic; without one the archive goes
to stdout. The archive imports on any device with 'caddie trip import',
no remote required.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		trip := findTrip(ctx, database, args[0])

		if len(args) == 2 {
			rows, err := archive.ExportFile(ctx, database, trip.ID, args[1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error exporting trip: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Exported %d rows to %s\n", ui.RenderPass("✓"), rows, args[1])
			return
		}

		rows, err := archive.Export(ctx, database, trip.ID, os.Stdout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error exporting trip: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Exported %d rows\n", rows)
	},
}

var tripImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a trip from a JSONL archive",
	Long: `Import a trip archive written by 'caddie trip export'.

All rows apply in one transaction; a bad archive changes nothing.
Importing over an existing copy of the trip overwrites it. Imported
rows are local only until pushed with 'caddie trip share'.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		var rows int
		var err error
		if len(args) == 1 {
			rows, err = archive.ImportFile(ctx, database, args[0])
		} else {
			rows, err = archive.Import(ctx, database, os.Stdin)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error importing trip: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Imported %d rows\n", ui.RenderPass("✓"), rows)
		fmt.Printf("   Push it to the remote with 'caddie trip share'\n")
	},
}

func init() {
	tripCreateCmd.Flags().String("name", "", "trip name (required)")
	tripCreateCmd.Flags().String("location", "", "where the trip is played")
	tripCreateCmd.Flags().String("start", "", "first day, YYYY-MM-DD (default today)")
	tripCreateCmd.Flags().String("end", "", "last day, YYYY-MM-DD (default same as start)")

	tripDeleteCmd.Flags().BoolP("force", "f", false, "skip the confirmation prompt")

	tripCmd.AddCommand(tripCreateCmd)
	tripCmd.AddCommand(tripListCmd)
	tripCmd.AddCommand(tripShowCmd)
	tripCmd.AddCommand(tripDeleteCmd)
	tripCmd.AddCommand(tripShareCmd)
	tripCmd.AddCommand(tripJoinCmd)
	tripCmd.AddCommand(tripExportCmd)
	tripCmd.AddCommand(tripImportCmd)
	rootCmd.AddCommand(tripCmd)
}
