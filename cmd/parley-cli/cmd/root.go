package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parley-cli",
	Short: "Parley CLI tool",
	Long: `Parley CLI is a command-line interface for operating a Parley chat server.

Available commands:
  seed    Load users, rooms and messages from a fixture file into the database

Use "parley-cli [command] --help" for more information about a specific command.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
