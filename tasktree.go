// Package tasktree provides a minimal public API for embedding the
// task tree in other Go programs.
//
// Most clients should talk to the MCP server instead. This package
// exports only the essential types and constructors needed for
// programs that want to drive the storage and mutation layers
// directly.
package tasktree

import (
	"context"
	"log/slog"

	"github.com/mkropat/tasktree/internal/engine"
	"github.com/mkropat/tasktree/internal/events"
	"github.com/mkropat/tasktree/internal/storage"
	"github.com/mkropat/tasktree/internal/storage/sqlite"
	"github.com/mkropat/tasktree/internal/types"
)

// Store is the interface for work-item storage operations.
type Store = storage.Store

// Tx provides atomic multi-operation support within a database
// transaction. Use Store.InTransaction() to obtain one.
type Tx = storage.Tx

// Engine applies mutations transactionally and records undo history.
type Engine = engine.Engine

// EventBus fans out mutation notifications to subscribers.
type EventBus = events.Bus

// NewSQLiteStore opens (creating if necessary) a SQLite store at the
// given path. Pass ":memory:" for an ephemeral database.
func NewSQLiteStore(ctx context.Context, dbPath string) (Store, error) {
	return sqlite.New(ctx, dbPath)
}

// NewEngine builds a mutation engine over a store. The bus and logger
// may be nil.
func NewEngine(store Store, bus *EventBus, log *slog.Logger) *Engine {
	return engine.New(store, bus, log)
}

// NewEventBus returns an empty event bus.
func NewEventBus() *EventBus {
	return events.NewBus()
}

// Core types from internal/types
type (
	WorkItem       = types.WorkItem
	Dependency     = types.Dependency
	DependencyType = types.DependencyType
	Status         = types.Status
	Priority       = types.Priority
	Action         = types.Action
	ActionType     = types.ActionType
	TreeNode       = types.TreeNode
	ItemFilter     = types.ItemFilter
	HistoryFilter  = types.HistoryFilter
)

// Status constants
const (
	StatusTodo       = types.StatusTodo
	StatusInProgress = types.StatusInProgress
	StatusReview     = types.StatusReview
	StatusDone       = types.StatusDone
)

// Priority constants
const (
	PriorityHigh   = types.PriorityHigh
	PriorityMedium = types.PriorityMedium
	PriorityLow    = types.PriorityLow
)

// DependencyType constants
const (
	DepFinishToStart = types.DepFinishToStart
	DepLinked        = types.DepLinked
)
