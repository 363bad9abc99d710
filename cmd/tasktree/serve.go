package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/mkropat/tasktree/internal/config"
	"github.com/mkropat/tasktree/internal/engine"
	"github.com/mkropat/tasktree/internal/events"
	"github.com/mkropat/tasktree/internal/logging"
	"github.com/mkropat/tasktree/internal/mcpserver"
	"github.com/mkropat/tasktree/internal/storage/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the task tree over MCP on stdio",
	Long: `Serve the task tree over the Model Context Protocol on stdio.

The process takes an advisory lock next to the database so two servers
never share one file. Logs go to stderr, or to the configured log file;
stdout belongs to the protocol.

Examples:
  tasktree serve
  tasktree serve --db /tmp/tasks.db`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	dbPath, err := databasePath(cmd, cfg)
	if err != nil {
		return err
	}

	log := logging.New(cfg.Log)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One server per database file. The lock lives beside the db so
	// it disappears with it.
	lock := flock.New(dbPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire database lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("database %s is already served by another process", dbPath)
	}
	defer func() { _ = lock.Unlock() }()

	store, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	bus := events.NewBus()
	eng := engine.New(store, bus, log)
	srv := mcpserver.New(eng, log).MCPServer(version)

	log.Info("serving MCP on stdio", "database", dbPath, "version", version)
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	log.Info("server shut down")
	return nil
}

// databasePath resolves the database location: --db flag first, then
// the configured path.
func databasePath(cmd *cobra.Command, cfg *config.Config) (string, error) {
	if flagPath, err := cmd.Flags().GetString("db"); err == nil && flagPath != "" {
		return flagPath, nil
	}
	return cfg.DatabasePath()
}
