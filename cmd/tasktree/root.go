package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "tasktree",
	Short: "Project and task management backend for MCP clients",
	Long: `tasktree is a project and task management backend exposed over the
Model Context Protocol. It stores a forest of projects and tasks with
ordering, typed dependencies, and a full undo/redo history in a local
SQLite database.

Examples:
  tasktree init              # Create the database
  tasktree serve             # Serve MCP over stdio
  TASKTREE_DATABASE_PATH=/tmp/t.db tasktree serve`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "path to the SQLite database (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
