package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkropat/tasktree/internal/config"
	"github.com/mkropat/tasktree/internal/storage/sqlite"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database and schema",
	Long: `Create the database file and initialize the schema. Running init
against an existing database is harmless; the schema is applied
idempotently.

Examples:
  tasktree init
  tasktree init --db /tmp/tasks.db`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	dbPath, err := databasePath(cmd, cfg)
	if err != nil {
		return err
	}

	store, err := sqlite.New(cmd.Context(), dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() { _ = store.Close() }()

	fmt.Printf("Initialized database at %s\n", dbPath)
	return nil
}
