package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/ui"
)

var scoreCmd = &cobra.Command{
	Use:     "score",
	GroupID: "scoring",
	Short:   "Record and review hole results",
}

var scoreRecordCmd = &cobra.Command{
	Use:   "record <match> <hole> <winner>",
	Short: "Record who won a hole",
	Long: `Record a hole result. The winner is a team name, "a" or "b" for the
match sides, or "halved".

The result is durable locally before anything touches the network. The
push to the remote happens right away when it can; otherwise the change
waits in the sync queue and the command still succeeds.

Recording a hole that was already scored amends it; the event log keeps
both entries.

Examples:
  caddie score record 4f2a9c3d 12 red
  caddie score record 4f2a9c3d 12 halved --by Sam`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		hole, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: hole must be a number (got %q)\n", args[1])
			os.Exit(1)
		}

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

		winner, err := parseWinner(args[2], teamA, teamB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		recordedBy, _ := cmd.Flags().GetString("by")

		now := time.Now().UTC()
		hr := &model.HoleResult{
			ID: model.NewID(), MatchID: match.ID, TripID: match.TripID,
			HoleNumber: hole, Winner: winner, RecordedBy: recordedBy,
			CreatedAt: now, UpdatedAt: now,
		}

		before := match.Status
		event, err := database.RecordHoleResult(ctx, hr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error recording hole: %v\n", err)
			os.Exit(1)
		}

		updated, err := database.GetMatch(ctx, match.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reloading match: %v\n", err)
			os.Exit(1)
		}
		if updated.Status != before {
			statusEvent, err := model.NewMatchStatusEvent(match.TripID, match.ID, model.MatchStatusPayload{
				Old: before, New: updated.Status, Result: updated.Result,
			})
			if err == nil {
				err = database.AppendScoringEvent(ctx, statusEvent)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error logging status change: %v\n", err)
				os.Exit(1)
			}
		}

		outcome := "halved"
		if winner != model.HoleHalved {
			outcome = "to " + winnerText(winner, teamA.Name, teamB.Name)
		}
		verb := "Hole"
		if event.Type == model.EventHoleAmended {
			verb = "Amended hole"
		}
		fmt.Printf("%s %s %d %s\n", ui.RenderPass("✓"), verb, hole, outcome)

		results, err := database.ListHoleResultsByMatch(ctx, match.ID)
		if err == nil {
			holes := make([]model.HoleResult, len(results))
			for i, r := range results {
				holes[i] = *r
			}
			standing := model.ComputeStanding(holes)
			if updated.Status == model.MatchFinal {
				fmt.Printf("   Final: %s\n", scoreText(standing, teamA.Name, teamB.Name))
			} else {
				line := fmt.Sprintf("%s thru %d", scoreText(standing, teamA.Name, teamB.Name), standing.Thru)
				if standing.Dormie {
					line += " (dormie)"
				}
				fmt.Printf("   %s\n", line)
			}
		}

		// Local state is durable at this point; the push is best effort.
		syncer, closeRemote := syncerFor(ctx, cfg, database)
		defer closeRemote()
		if err := syncer.PushHoleResult(ctx, hr.ID); err != nil {
			fmt.Printf("   %s Push deferred, queued for the next sync\n", ui.RenderWarn("⚠"))
			return
		}
		fmt.Printf("   Synced to the remote\n")
	},
}

var scoreLogCmd = &cobra.Command{
	Use:   "log <match>",
	Short: "Show a match's scoring event log",
	Long: `Print the append-only event log for a match: every hole scored,
every amendment, and every status change, in the order this device
recorded them.`,
	Args: cobra.ExactArgs(1),
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

		events, err := database.ListEventsByMatch(ctx, match.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing events: %v\n", err)
			os.Exit(1)
		}
		if len(events) == 0 {
			fmt.Println("No scoring events yet.")
			return
		}

		for _, e := range events {
			var text string
			switch e.Type {
			case model.EventHoleScored, model.EventHoleAmended:
				p, err := e.HoleScored()
				if err != nil {
					text = fmt.Sprintf("unreadable %s event", e.Type)
					break
				}
				outcome := "halved"
				if p.Winner != model.HoleHalved {
					outcome = "to " + winnerText(p.Winner, teamA.Name, teamB.Name)
				}
				if e.Type == model.EventHoleAmended {
					text = fmt.Sprintf("hole %d amended, %s", p.HoleNumber, outcome)
				} else {
					text = fmt.Sprintf("hole %d %s", p.HoleNumber, outcome)
				}
				if p.RecordedBy != "" {
					text += fmt.Sprintf(" (by %s)", p.RecordedBy)
				}
			case model.EventMatchStatusChanged:
				p, err := e.MatchStatus()
				if err != nil {
					text = "unreadable status event"
					break
				}
				text = fmt.Sprintf("match %s", p.New)
				if p.Result != "" {
					text += fmt.Sprintf(": %s", scoreTextLabel(p.Result, teamA.Name, teamB.Name))
				}
			default:
				text = fmt.Sprintf("unknown event type %s", e.Type)
			}

			synced := ""
			if e.Synced {
				synced = "  " + ui.RenderMuted("synced")
			}
			fmt.Printf("#%-3d %s  %s%s\n", e.Seq, e.Timestamp.Local().Format("Jan _2 15:04"), text, synced)
		}
	},
}

// parseWinner maps a winner argument to a hole outcome.
func parseWinner(arg string, teamA, teamB *model.Team) (model.HoleWinner, error) {
	switch strings.ToLower(arg) {
	case "a":
		return model.HoleTeamA, nil
	case "b":
		return model.HoleTeamB, nil
	case "halved", "half", "as", "push":
		return model.HoleHalved, nil
	}
	if strings.EqualFold(arg, teamA.Name) {
		return model.HoleTeamA, nil
	}
	if strings.EqualFold(arg, teamB.Name) {
		return model.HoleTeamB, nil
	}
	return "", fmt.Errorf("winner must be %q, %q, or halved", teamA.Name, teamB.Name)
}

// winnerText names the side that won a hole.
func winnerText(w model.HoleWinner, teamA, teamB string) string {
	switch w {
	case model.HoleTeamA:
		return teamA
	case model.HoleTeamB:
		return teamB
	}
	return "halved"
}

// scoreTextLabel swaps the A/B side markers in a stored result string
// ("A 3&2") for team names.
func scoreTextLabel(result, teamA, teamB string) string {
	if strings.HasPrefix(result, "A ") {
		return teamA + strings.TrimPrefix(result, "A")
	}
	if strings.HasPrefix(result, "B ") {
		return teamB + strings.TrimPrefix(result, "B")
	}
	return result
}

func init() {
	scoreRecordCmd.Flags().String("by", "", "who recorded the result")

	scoreCmd.AddCommand(scoreRecordCmd)
	scoreCmd.AddCommand(scoreLogCmd)
	rootCmd.AddCommand(scoreCmd)
}
