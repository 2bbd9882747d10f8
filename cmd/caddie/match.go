package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/store"
	"github.com/fairwaylabs/caddie/internal/ui"
)

var matchCmd = &cobra.Command{
	Use:     "match",
	GroupID: "scoring",
	Short:   "Matches within a session",
}

var matchAddCmd = &cobra.Command{
	Use:   "add <trip>",
	Short: "Add a match between two teams",
	Long: `Add a match to a session.

Example:
  caddie match add "Cabot Trip" --session "Round 1" --team-a Red --team-b Blue`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sessionArg, _ := cmd.Flags().GetString("session")
		teamAArg, _ := cmd.Flags().GetString("team-a")
		teamBArg, _ := cmd.Flags().GetString("team-b")
		if sessionArg == "" || teamAArg == "" || teamBArg == "" {
			fmt.Fprintf(os.Stderr, "Error: --session, --team-a, and --team-b are required\n")
			os.Exit(1)
		}

		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		trip := findTrip(ctx, database, args[0])
		session := findSession(ctx, database, trip.ID, sessionArg)
		teamA := findTeam(ctx, database, trip.ID, teamAArg)
		teamB := findTeam(ctx, database, trip.ID, teamBArg)
		if teamA.ID == teamB.ID {
			fmt.Fprintf(os.Stderr, "Error: a team cannot play itself\n")
			os.Exit(1)
		}

		now := time.Now().UTC()
		match := &model.Match{
			ID: model.NewID(), SessionID: session.ID, TripID: trip.ID,
			TeamAID: teamA.ID, TeamBID: teamB.ID,
			Status: model.MatchScheduled, HolesRemaining: model.HolesPerRound,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := match.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := database.UpsertMatch(ctx, match); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving match: %v\n", err)
			os.Exit(1)
		}
		queueChange(ctx, database, model.EntityMatch, match.ID, model.OpCreate, trip.ID)

		fmt.Printf("%s Match %s: %s vs %s in %q\n", ui.RenderPass("✓"),
			shortID(match.ID), teamA.Name, teamB.Name, session.Name)
		fmt.Printf("   Score it with: caddie score record %s <hole> <winner>\n", shortID(match.ID))
	},
}

var matchShowCmd = &cobra.Command{
	Use:   "show <match>",
	Short: "Show a match's hole-by-hole scorecard",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		match := findMatch(ctx, database, args[0])

		teamA, err := database.GetTeam(ctx, match.TeamAID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading team: %v\n", err)
			os.Exit(1)
		}
		teamB, err := database.GetTeam(ctx, match.TeamBID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading team: %v\n", err)
			os.Exit(1)
		}
		session, err := database.GetSession(ctx, match.SessionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading session: %v\n", err)
			os.Exit(1)
		}

		results, err := database.ListHoleResultsByMatch(ctx, match.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing hole results: %v\n", err)
			os.Exit(1)
		}
		holes := make([]model.HoleResult, len(results))
		byHole := make(map[int]model.HoleWinner, len(results))
		for i, r := range results {
			holes[i] = *r
			byHole[r.HoleNumber] = r.Winner
		}
		standing := model.ComputeStanding(holes)

		fmt.Printf("\n%s %s (A) vs %s (B), %q (%s)\n", ui.RenderAccent("⛳"),
			teamA.Name, teamB.Name, session.Name, session.Format)
		switch {
		case match.Status == model.MatchFinal:
			fmt.Printf("   %s Final: %s\n", ui.RenderPass("✓"), scoreText(standing, teamA.Name, teamB.Name))
		case standing.Thru > 0:
			line := fmt.Sprintf("%s thru %d", scoreText(standing, teamA.Name, teamB.Name), standing.Thru)
			if standing.Dormie {
				line += " (dormie)"
			}
			fmt.Printf("   %s\n", line)
		default:
			fmt.Printf("   Not started\n")
		}

		fmt.Printf("\n   Hole ")
		for h := 1; h <= model.HolesPerRound; h++ {
			fmt.Printf("%3d", h)
		}
		fmt.Printf("\n   Won  ")
		for h := 1; h <= model.HolesPerRound; h++ {
			mark := "-"
			switch byHole[h] {
			case model.HoleTeamA:
				mark = "A"
			case model.HoleTeamB:
				mark = "B"
			case model.HoleHalved:
				mark = "="
			}
			fmt.Printf("%3s", mark)
		}
		fmt.Println()

		events, err := database.ListEventsByMatch(ctx, match.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing events: %v\n", err)
			os.Exit(1)
		}
		unsynced := 0
		for _, e := range events {
			if !e.Synced {
				unsynced++
			}
		}
		fmt.Printf("\n   %d scoring events", len(events))
		if unsynced > 0 {
			fmt.Printf(", %s", ui.RenderWarn(fmt.Sprintf("%d not yet synced", unsynced)))
		}
		fmt.Println()
	},
}

var matchDeleteCmd = &cobra.Command{
	Use:   "delete <match>",
	Short: "Delete a match and its scores",
	Long: `Delete a match locally, with its hole results and scoring events.

The remote delete is queued; by default it is also attempted right
away. With --no-sync the delete waits for the next queue drain.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		match := findMatch(ctx, database, args[0])
		noSync, _ := cmd.Flags().GetBool("no-sync")

		syncer, closeRemote := syncerFor(ctx, cfg, database)
		defer closeRemote()

		if err := syncer.DeleteMatch(ctx, match.ID, !noSync); err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting match: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Deleted match %s\n", ui.RenderPass("✓"), shortID(match.ID))
		if noSync {
			fmt.Printf("   Remote delete queued for the next sync\n")
		}
	},
}

// findSession resolves a session by name (case-insensitive) or id
// within a trip.
func findSession(ctx context.Context, database *store.DB, tripID, arg string) *model.Session {
	sessions, err := database.ListSessionsByTrip(ctx, tripID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing sessions: %v\n", err)
		os.Exit(1)
	}
	for _, s := range sessions {
		if s.ID == arg || strings.EqualFold(s.Name, arg) {
			return s
		}
	}
	fmt.Fprintf(os.Stderr, "Error: no session %q on this trip\n", arg)
	os.Exit(1)
	return nil
}

// findMatch resolves a match by id or unique id prefix across all
// trips.
func findMatch(ctx context.Context, database *store.DB, arg string) *model.Match {
	match, err := database.GetMatch(ctx, arg)
	if err == nil {
		return match
	}
	if !errors.Is(err, store.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "Error looking up match: %v\n", err)
		os.Exit(1)
	}

	trips, err := database.ListTrips(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing trips: %v\n", err)
		os.Exit(1)
	}
	var matched []*model.Match
	for _, trip := range trips {
		matches, err := database.ListMatchesByTrip(ctx, trip.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing matches: %v\n", err)
			os.Exit(1)
		}
		for _, m := range matches {
			if strings.HasPrefix(m.ID, arg) {
				matched = append(matched, m)
			}
		}
	}
	if len(matched) == 1 {
		return matched[0]
	}
	if len(matched) > 1 {
		fmt.Fprintf(os.Stderr, "Error: %q matches %d matches, use more of the id\n", arg, len(matched))
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Error: no match %q\n", arg)
	fmt.Fprintf(os.Stderr, "Match ids are listed by 'caddie trip show'\n")
	os.Exit(1)
	return nil
}

// scoreText renders a standing with team names in place of the A and B
// sides.
func scoreText(s model.Standing, teamA, teamB string) string {
	t := s.Text()
	if strings.HasPrefix(t, "A ") {
		return teamA + strings.TrimPrefix(t, "A")
	}
	if strings.HasPrefix(t, "B ") {
		return teamB + strings.TrimPrefix(t, "B")
	}
	return t
}

func init() {
	matchAddCmd.Flags().String("session", "", "session name or id (required)")
	matchAddCmd.Flags().String("team-a", "", "first team (required)")
	matchAddCmd.Flags().String("team-b", "", "second team (required)")

	matchDeleteCmd.Flags().Bool("no-sync", false, "queue the remote delete instead of pushing now")

	matchCmd.AddCommand(matchAddCmd)
	matchCmd.AddCommand(matchShowCmd)
	matchCmd.AddCommand(matchDeleteCmd)
	rootCmd.AddCommand(matchCmd)
}
