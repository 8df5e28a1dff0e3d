package cmd

import (
	"fmt"
	"os"

	"github.com/iksnae/copilot-session/internal"
	"github.com/spf13/cobra"
)

var (
	verbose   bool
	stateDir  string
	baseURL   string
	transport string
	version   string = "dev"
	commit    string = "unknown"
	date      string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "copilot-session",
	Short: "Chat with a copilot backend from the terminal",
	Long: `A command-line client for a copilot chat backend.

It keeps you logged in between runs, manages your chat sessions and
streams assistant replies as they are generated.

Features:
  • Log in once, the token is kept in a local state database
  • Create, rename, delete and browse chat sessions
  • Streamed replies over SSE or WebSocket, Ctrl-C cancels
  • Task modes (code explain, optimize, test...) and knowledge base answers
  • Export transcripts as JSONL, Markdown, YAML or JSON
  • Offline replay of cached sessions

Quick Start:
  copilot-session login -u alice           # Log in
  copilot-session chat "hello"             # Stream a reply
  copilot-session sessions                 # List your sessions
  copilot-session history <session-id>     # Show a transcript`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetVerbose(verbose)
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		internal.PrintError(err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "Directory for the state database and config.yaml (default: OS config dir)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Backend base URL (overrides config and COPILOT_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "", "Stream transport: sse or ws")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
