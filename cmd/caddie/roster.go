package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/store"
	"github.com/fairwaylabs/caddie/internal/ui"
)

var rosterCmd = &cobra.Command{
	Use:     "roster",
	GroupID: "trip",
	Short:   "Players, teams, and who plays for whom",
}

var rosterAddPlayerCmd = &cobra.Command{
	Use:   "add-player <trip>",
	Short: "Add a player to a trip",
	Long: `Add a player to a trip's roster.

Example:
  caddie roster add-player "Cabot Trip" --name Sam --handicap 8.4 --team Red`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			fmt.Fprintf(os.Stderr, "Error: --name is required\n")
			os.Exit(1)
		}
		email, _ := cmd.Flags().GetString("email")
		handicap, _ := cmd.Flags().GetFloat64("handicap")

		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		trip := findTrip(ctx, database, args[0])

		now := time.Now().UTC()
		player := &model.Player{
			ID: model.NewID(), TripID: trip.ID, Name: name, Email: email,
			Handicap: handicap, CreatedAt: now, UpdatedAt: now,
		}
		if err := player.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := database.UpsertPlayer(ctx, player); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving player: %v\n", err)
			os.Exit(1)
		}
		queueChange(ctx, database, model.EntityPlayer, player.ID, model.OpCreate, trip.ID)

		fmt.Printf("%s Added %s (handicap %g) to %q\n", ui.RenderPass("✓"), player.Name, player.Handicap, trip.Name)

		if teamArg, _ := cmd.Flags().GetString("team"); teamArg != "" {
			team := findTeam(ctx, database, trip.ID, teamArg)
			assignPlayer(ctx, database, trip, player, team)
		}
	},
}

var rosterAddTeamCmd = &cobra.Command{
	Use:   "add-team <trip>",
	Short: "Add a team to a trip",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			fmt.Fprintf(os.Stderr, "Error: --name is required\n")
			os.Exit(1)
		}
		color, _ := cmd.Flags().GetString("color")

		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		trip := findTrip(ctx, database, args[0])

		now := time.Now().UTC()
		team := &model.Team{
			ID: model.NewID(), TripID: trip.ID, Name: name, Color: color,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := team.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := database.UpsertTeam(ctx, team); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving team: %v\n", err)
			os.Exit(1)
		}
		queueChange(ctx, database, model.EntityTeam, team.ID, model.OpCreate, trip.ID)

		fmt.Printf("%s Added team %s to %q\n", ui.RenderPass("✓"), team.Name, trip.Name)
	},
}

var rosterAssignCmd = &cobra.Command{
	Use:   "assign <trip>",
	Short: "Put a player on a team",
	Long: `Assign a player to a team for the trip.

A player plays for one team per trip; assigning an already assigned
player is an error.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		playerArg, _ := cmd.Flags().GetString("player")
		teamArg, _ := cmd.Flags().GetString("team")
		if playerArg == "" || teamArg == "" {
			fmt.Fprintf(os.Stderr, "Error: --player and --team are required\n")
			os.Exit(1)
		}

		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		trip := findTrip(ctx, database, args[0])
		player := findPlayer(ctx, database, trip.ID, playerArg)
		team := findTeam(ctx, database, trip.ID, teamArg)

		assignPlayer(ctx, database, trip, player, team)
	},
}

// assignPlayer records a team membership and queues it for sync.
func assignPlayer(ctx context.Context, database *store.DB, trip *model.Trip, player *model.Player, team *model.Team) {
	members, err := database.ListTeamMembersByTrip(ctx, trip.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing team members: %v\n", err)
		os.Exit(1)
	}
	for _, m := range members {
		if m.PlayerID != player.ID {
			continue
		}
		if m.TeamID == team.ID {
			fmt.Printf("%s is already on %s\n", player.Name, team.Name)
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %s is already on another team\n", player.Name)
		os.Exit(1)
	}

	member := &model.TeamMember{
		ID: model.NewID(), TeamID: team.ID, PlayerID: player.ID, TripID: trip.ID,
		CreatedAt: time.Now().UTC(),
	}
	if err := database.UpsertTeamMember(ctx, member); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving team member: %v\n", err)
		os.Exit(1)
	}
	queueChange(ctx, database, model.EntityTeamMember, member.ID, model.OpCreate, trip.ID)

	fmt.Printf("%s %s plays for %s\n", ui.RenderPass("✓"), player.Name, team.Name)
}

// findPlayer resolves a player by name (case-insensitive) or id within
// a trip.
func findPlayer(ctx context.Context, database *store.DB, tripID, arg string) *model.Player {
	players, err := database.ListPlayersByTrip(ctx, tripID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing players: %v\n", err)
		os.Exit(1)
	}
	for _, p := range players {
		if p.ID == arg || strings.EqualFold(p.Name, arg) {
			return p
		}
	}
	fmt.Fprintf(os.Stderr, "Error: no player %q on this trip\n", arg)
	os.Exit(1)
	return nil
}

// findTeam resolves a team by name (case-insensitive) or id within a
// trip.
func findTeam(ctx context.Context, database *store.DB, tripID, arg string) *model.Team {
	teams, err := database.ListTeamsByTrip(ctx, tripID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing teams: %v\n", err)
		os.Exit(1)
	}
	for _, t := range teams {
		if t.ID == arg || strings.EqualFold(t.Name, arg) {
			return t
		}
	}
	fmt.Fprintf(os.Stderr, "Error: no team %q on this trip\n", arg)
	os.Exit(1)
	return nil
}

func init() {
	rosterAddPlayerCmd.Flags().String("name", "", "player name (required)")
	rosterAddPlayerCmd.Flags().String("email", "", "player email")
	rosterAddPlayerCmd.Flags().Float64P("handicap", "H", 0, "course handicap for the trip")
	rosterAddPlayerCmd.Flags().String("team", "", "assign to this team right away")

	rosterAddTeamCmd.Flags().String("name", "", "team name (required)")
	rosterAddTeamCmd.Flags().String("color", "", "team color")

	rosterAssignCmd.Flags().String("player", "", "player name or id (required)")
	rosterAssignCmd.Flags().String("team", "", "team name or id (required)")

	rosterCmd.AddCommand(rosterAddPlayerCmd)
	rosterCmd.AddCommand(rosterAddTeamCmd)
	rosterCmd.AddCommand(rosterAssignCmd)
	rootCmd.AddCommand(rosterCmd)
}
