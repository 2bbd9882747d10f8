package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/recap"
	"github.com/fairwaylabs/caddie/internal/ui"
)

var recapCmd = &cobra.Command{
	Use:     "recap <trip>",
	GroupID: "scoring",
	Short:   "Write a day's recap for the group chat",
	Long: `Digest a day of scoring and have a language model write the short
version: who is up, who closed their match out, anything dramatic.

Needs an Anthropic API key in ANTHROPIC_API_KEY. Without --date the
recap covers the whole trip so far.

Examples:
  caddie recap "Cliffside Trip"
  caddie recap "Cliffside Trip" --date 2026-05-15`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		trip := findTrip(ctx, database, args[0])

		date, _ := cmd.Flags().GetString("date")
		if date != "" {
			if _, err := time.Parse(model.DateFormat, date); err != nil {
				fmt.Fprintf(os.Stderr, "Error: --date must look like 2026-05-15\n")
				os.Exit(1)
			}
		}

		modelName := cfg.RecapModel
		if cmd.Flags().Changed("model") {
			modelName, _ = cmd.Flags().GetString("model")
		}

		gen, err := recap.New(database, &recap.Config{Model: modelName})
		if err != nil {
			if errors.Is(err, recap.ErrNoAPIKey) {
				fmt.Fprintf(os.Stderr, "Error: no Anthropic API key\n")
				fmt.Fprintf(os.Stderr, "Set ANTHROPIC_API_KEY and try again\n")
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		text, err := gen.Generate(ctx, trip.ID, date)
		if err != nil {
			if errors.Is(err, recap.ErrNoActivity) {
				fmt.Printf("Nothing to recap yet. Score some holes first.\n")
				return
			}
			fmt.Fprintf(os.Stderr, "Error generating recap: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\n%s %s\n\n", ui.RenderAccent("⛳"), trip.Name)
		fmt.Println(text)
	},
}

func init() {
	recapCmd.Flags().String("date", "", "day to recap (2026-05-15); empty covers the trip")
	recapCmd.Flags().String("model", "", "override the recap model")

	rootCmd.AddCommand(recapCmd)
}
