package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/procminer/internal/cli"
	"github.com/cloo-solutions/procminer/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "procminerd",
		Short: "Process Miner daemon",
		Long:  "Process Miner daemon for running the API server and maintaining its scratch space",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.SweepCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
