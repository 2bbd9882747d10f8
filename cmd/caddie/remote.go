package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fairwaylabs/caddie/internal/config"
	"github.com/fairwaylabs/caddie/internal/remote"
	"github.com/fairwaylabs/caddie/internal/ui"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	GroupID: "sync",
	Short:   "Remote store connection",
}

var remoteLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save the remote store's auth token",
	Long: `Prompt for the remote store's auth token and save it in the config
file.

The token is read without echo when stdin is a terminal; otherwise the
first line of stdin is taken, so piping a token in works in scripts.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig(cmd)

		if cfg.RemoteURL == "" {
			fmt.Fprintf(os.Stderr, "Error: no remote store configured\n")
			fmt.Fprintf(os.Stderr, "Set remote.url in %s or pass --remote-url\n", cfg.Path)
			os.Exit(1)
		}

		var token string
		if term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintf(os.Stderr, "Auth token for %s: ", cfg.RemoteURL)
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading token: %v\n", err)
				os.Exit(1)
			}
			token = strings.TrimSpace(string(raw))
		} else {
			raw, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && raw == "" {
				fmt.Fprintf(os.Stderr, "Error reading token from stdin: %v\n", err)
				os.Exit(1)
			}
			token = strings.TrimSpace(raw)
		}
		if token == "" {
			fmt.Fprintf(os.Stderr, "Error: empty token\n")
			os.Exit(1)
		}

		if err := config.SaveAuthToken(cfg.Path, token); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving token: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Token saved to %s\n", ui.RenderPass("✓"), cfg.Path)

		// Verify the token works. The save stands either way; a remote
		// that is merely unreachable right now is not a bad token.
		client, err := remote.Connect(ctx, cfg.RemoteURL, token)
		if err != nil {
			fmt.Printf("%s Could not verify against %s: %v\n", ui.RenderWarn("⚠"), cfg.RemoteURL, err)
			return
		}
		defer client.Close()
		fmt.Printf("%s Verified against %s\n", ui.RenderPass("✓"), cfg.RemoteURL)
	},
}

var remoteBootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the remote store's schema",
	Long: `Create the remote store's tables and seed its metadata. Run once
against a fresh database before the first sync; running it again is
harmless.

With --min-client-version, also declare the oldest client version the
remote accepts. Older clients refuse to sync against it. Use after a
schema change that old clients would corrupt.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig(cmd)

		client := connectRemote(ctx, cfg)
		defer client.Close()

		if err := client.Bootstrap(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error bootstrapping remote: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Remote schema ready at %s\n", ui.RenderPass("✓"), client.URL())

		if minVersion, _ := cmd.Flags().GetString("min-client-version"); minVersion != "" {
			if err := client.SetMinClientVersion(ctx, minVersion); err != nil {
				fmt.Fprintf(os.Stderr, "Error setting min client version: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("   Clients older than %s will refuse to sync\n", minVersion)
		}
	},
}

func init() {
	remoteBootstrapCmd.Flags().String("min-client-version", "", "oldest client version the remote accepts")

	remoteCmd.AddCommand(remoteLoginCmd)
	remoteCmd.AddCommand(remoteBootstrapCmd)
	rootCmd.AddCommand(remoteCmd)
}
