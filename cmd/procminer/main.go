package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/procminer/internal/cli"
	"github.com/cloo-solutions/procminer/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "procminer",
		Short: "Process Miner CLI - turn recorded work into SOPs",
		Long: `Process Miner CLI uploads evidence to a Process Miner server and browses
the SOPs it files.

Environment variables:
  PROCMINER_API_URL   API base URL (default: http://localhost:8000)`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.AnalyzeCmd())
	rootCmd.AddCommand(client.DocsCmd())
	rootCmd.AddCommand(client.ConfigCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
