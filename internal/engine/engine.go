// Package engine implements the mutation engine: every write runs in
// one transaction covering the data change, its action record, the
// undo steps, and the redo-tail invalidation.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mkropat/tasktree/internal/events"
	"github.com/mkropat/tasktree/internal/storage"
	"github.com/mkropat/tasktree/internal/types"
)

const (
	maxNameLength        = 255
	maxDescriptionLength = 1024
)

// Engine coordinates validation, storage writes, history recording,
// and post-commit event publication.
type Engine struct {
	store storage.Store
	bus   *events.Bus
	log   *slog.Logger

	now   func() time.Time
	newID func() string
}

// New builds an engine. The bus may be nil when no subscriber cares
// about mutation events.
func New(store storage.Store, bus *events.Bus, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store: store,
		bus:   bus,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// publish emits a post-commit event. Pre-commit notification is
// forbidden; callers invoke this only after InTransaction returned
// nil.
func (e *Engine) publish(actionID int64, actionType types.ActionType, workItemID string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.Event{
		ActionID:   actionID,
		ActionType: string(actionType),
		WorkItemID: workItemID,
		OccurredAt: e.now(),
	})
}

// requireActiveItem loads one item and fails with the canonical
// validation error when it is missing or soft-deleted.
func requireActiveItem(ctx context.Context, r storage.Reader, what, id string) (*types.WorkItem, error) {
	item, err := r.GetWorkItem(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, types.NotFoundOrInactive(what, id)
	}
	return item, nil
}

func validateName(name string) error {
	if len(name) == 0 || len(name) > maxNameLength {
		return types.Validationf("name must be between 1 and %d characters", maxNameLength)
	}
	return nil
}

func validateDescription(desc *string) error {
	if desc != nil && len(*desc) > maxDescriptionLength {
		return types.Validationf("description must be at most %d characters", maxDescriptionLength)
	}
	return nil
}

// itemRow renders a work item as a full column snapshot for undo
// steps. Values are JSON-safe.
func itemRow(item *types.WorkItem) map[string]any {
	row := map[string]any{
		"id":         item.ID,
		"name":       item.Name,
		"status":     string(item.Status),
		"priority":   string(item.Priority),
		"order_key":  item.OrderKey,
		"is_active":  item.IsActive,
		"created_at": storage.EncodeTime(item.CreatedAt),
		"updated_at": storage.EncodeTime(item.UpdatedAt),
	}
	if item.ParentID != nil {
		row["parent_id"] = *item.ParentID
	} else {
		row["parent_id"] = nil
	}
	if item.Description != nil {
		row["description"] = *item.Description
	} else {
		row["description"] = nil
	}
	if item.DueAt != nil {
		row["due_at"] = storage.EncodeTime(*item.DueAt)
	} else {
		row["due_at"] = nil
	}
	return row
}

// depRow renders a dependency edge as a full column snapshot.
func depRow(dep *types.Dependency) map[string]any {
	return map[string]any{
		"work_item_id":  dep.WorkItemID,
		"depends_on_id": dep.DependsOnID,
		"dep_type":      string(dep.Type),
		"is_active":     dep.IsActive,
		"created_at":    storage.EncodeTime(dep.CreatedAt),
		"updated_at":    storage.EncodeTime(dep.UpdatedAt),
	}
}
