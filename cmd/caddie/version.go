package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fairwaylabs/caddie/internal/remote"
	"github.com/fairwaylabs/caddie/internal/ui"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the caddie version",
	Long: `Print the caddie version. With --check, compare it against the
minimum the remote store accepts; a remote bumps that after schema
changes old clients would corrupt.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("caddie version %s\n", version)

		check, _ := cmd.Flags().GetBool("check")
		if !check {
			return
		}

		ctx := context.Background()
		cfg := loadConfig(cmd)
		client := connectRemote(ctx, cfg)
		defer client.Close()

		if err := client.CheckClientVersion(ctx, version); err != nil {
			if errors.Is(err, remote.ErrClientTooOld) {
				fmt.Printf("%s %v\n", ui.RenderWarn("⚠"), err)
				fmt.Println("   Upgrade caddie before syncing")
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Error checking version: %v\n", err)
			os.Exit(1)
		}

		min, err := client.MinClientVersion(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading remote version: %v\n", err)
			os.Exit(1)
		}
		if min == "" {
			fmt.Printf("%s Remote declares no minimum client version\n", ui.RenderPass("✓"))
			return
		}
		fmt.Printf("%s Compatible with the remote (requires %s or newer)\n", ui.RenderPass("✓"), min)
	},
}

func init() {
	versionCmd.Flags().Bool("check", false, "check compatibility against the remote store")
	rootCmd.AddCommand(versionCmd)
}
