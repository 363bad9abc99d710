// Package storage defines the interface for work item storage
// backends.
package storage

import (
	"context"
	"time"

	"github.com/mkropat/tasktree/internal/types"
)

// TimeFormat is the canonical encoding for timestamps in the
// database and in undo-step snapshots. It is fixed-width UTC so that
// lexicographic order matches chronological order, which the order
// and due-date queries rely on.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// EncodeTime renders a timestamp in the canonical storage encoding.
func EncodeTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// DecodeTime parses a canonical storage timestamp. It also accepts
// plain RFC3339 for values that round-tripped through JSON.
func DecodeTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeFormat, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Reader is the read-only query surface. Reads run against the
// connection pool; inside a transaction the same methods observe the
// transaction's own writes.
type Reader interface {
	// GetWorkItem returns one item, or nil when absent. With
	// activeOnly set, soft-deleted items read as absent.
	GetWorkItem(ctx context.Context, id string, activeOnly bool) (*types.WorkItem, error)

	// ListChildren returns the child items of parentID (roots when
	// nil), ordered by (order_key, created_at).
	ListChildren(ctx context.Context, parentID *string, activeOnly bool, status *types.Status) ([]*types.WorkItem, error)

	// ListWorkItems applies an ItemFilter; ordering matches
	// ListChildren.
	ListWorkItems(ctx context.Context, f types.ItemFilter) ([]*types.WorkItem, error)

	// ListDescendants returns the transitive children of id,
	// regardless of active state. The item itself is not included.
	ListDescendants(ctx context.Context, id string) ([]*types.WorkItem, error)

	// ListSiblings returns the items sharing parentID, excluding id,
	// ordered by (order_key, created_at).
	ListSiblings(ctx context.Context, id string, parentID *string, activeOnly bool) ([]*types.WorkItem, error)

	// ListDependencies returns the outgoing edges of id;
	// ListDependents the incoming ones.
	ListDependencies(ctx context.Context, id string, f types.DependencyFilter) ([]*types.Dependency, error)
	ListDependents(ctx context.Context, id string, f types.DependencyFilter) ([]*types.Dependency, error)

	// ListDependenciesTouching returns every edge, active or not,
	// with either endpoint in ids. Used by the soft-delete cascade.
	ListDependenciesTouching(ctx context.Context, ids []string, activeOnly bool) ([]*types.Dependency, error)

	// GetDependency returns one edge regardless of active state, or
	// nil when absent.
	GetDependency(ctx context.Context, key types.DependencyKey) (*types.Dependency, error)

	// SiblingEdgeOrderKey returns the extreme (first or last) order
	// key among the active children of parentID, or nil when there
	// are none.
	SiblingEdgeOrderKey(ctx context.Context, parentID *string, last bool) (*string, error)

	// NeighbourOrderKeys returns the (before, after) key pair
	// bracketing the slot adjacent to refID, on the given side.
	NeighbourOrderKeys(ctx context.Context, parentID *string, refID string, after bool) (*string, *string, error)

	// NextTask returns the best actionable todo item under the
	// scheduling rules, or nil when none qualifies. A non-nil scopeID
	// restricts candidates to that item's subtree including itself.
	NextTask(ctx context.Context, scopeID *string) (*types.WorkItem, error)

	// ListActions returns history entries, newest first.
	ListActions(ctx context.Context, f types.HistoryFilter) ([]*types.Action, error)

	// GetAction returns one action, or nil when absent.
	GetAction(ctx context.Context, id int64) (*types.Action, error)
}

// Tx is the surface available inside one database transaction. All
// writes require a Tx; a mutation's data change, action insert, undo
// steps, and redo-tail invalidation commit or roll back atomically.
type Tx interface {
	Reader

	InsertWorkItem(ctx context.Context, item *types.WorkItem) error

	// UpdateWorkItemFields updates the named columns of one active
	// item. Returns types.ErrNotFound when no active row matched.
	UpdateWorkItemFields(ctx context.Context, id string, fields map[string]any) error

	// SoftDeleteItems flips is_active off for the given items.
	SoftDeleteItems(ctx context.Context, ids []string) error

	// UpsertDependency inserts the edge or, on conflict, reactivates
	// it and updates its type.
	UpsertDependency(ctx context.Context, dep *types.Dependency) error

	// DeactivateDependencies flips is_active off for the given edges.
	DeactivateDependencies(ctx context.Context, keys []types.DependencyKey) error

	// InsertAction appends one history entry and returns its id.
	InsertAction(ctx context.Context, a *types.Action) (int64, error)

	// InsertUndoStep appends one step; (ActionID, StepOrder) must be
	// unique.
	InsertUndoStep(ctx context.Context, s *types.UndoStep) error

	// ListUndoSteps returns an action's steps in ascending StepOrder.
	ListUndoSteps(ctx context.Context, actionID int64) ([]*types.UndoStep, error)

	// LatestUndoableAction returns the newest non-meta action that is
	// not undone, or nil.
	LatestUndoableAction(ctx context.Context) (*types.Action, error)

	// LatestRedoableAction returns the most recently undone non-meta
	// action whose undo has not been invalidated, or nil.
	LatestRedoableAction(ctx context.Context) (*types.Action, error)

	// MarkActionUndone flags the action undone by the given
	// meta-action.
	MarkActionUndone(ctx context.Context, id, metaActionID int64) error

	// MarkActionRedone clears the undone flag and the meta pointer.
	MarkActionRedone(ctx context.Context, id int64) error

	// InvalidateRedoTail repoints undone-but-not-invalidated actions
	// older than currentActionID at currentActionID, removing them
	// from redo eligibility.
	InvalidateRedoTail(ctx context.Context, currentActionID int64) error

	// WriteRow applies a column snapshot to the addressed row:
	// UPDATE by primary key, or INSERT when the row does not exist
	// and the snapshot carries a full row. Table names are resolved
	// against a fixed registry; unknown tables are rejected.
	WriteRow(ctx context.Context, table, recordID string, data map[string]any) error

	// DeleteRow removes the addressed row by primary key.
	DeleteRow(ctx context.Context, table, recordID string) error
}

// Store is a storage backend. Readers take a pooled connection per
// call; InTransaction runs fn inside one exclusive transaction,
// committing on nil and rolling back on error or panic.
type Store interface {
	Reader
	InTransaction(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
