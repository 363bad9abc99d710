package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mkropat/tasktree/internal/history"
	"github.com/mkropat/tasktree/internal/storage"
	"github.com/mkropat/tasktree/internal/types"
)

// FieldChanges carries a partial update. The Set flags distinguish
// "leave alone" from "set to null" for the nullable columns.
type FieldChanges struct {
	Name *string

	Description    *string
	SetDescription bool

	Status   *types.Status
	Priority *types.Priority

	DueDate    *time.Time
	SetDueDate bool
}

// UpdateItem applies the changed fields to one active item. When no
// column would change, the current item is returned and no action is
// recorded.
func (e *Engine) UpdateItem(ctx context.Context, id string, changes FieldChanges) (*types.WorkItem, error) {
	var result *types.WorkItem
	var actionID int64
	noop := false

	err := e.store.InTransaction(ctx, func(tx storage.Tx) error {
		item, err := requireActiveItem(ctx, tx, "work item", id)
		if err != nil {
			return err
		}

		old, updated, err := diffFields(item, changes)
		if err != nil {
			return err
		}
		if len(updated) == 0 {
			result = item
			noop = true
			return nil
		}

		now := e.now()
		old["updated_at"] = storage.EncodeTime(item.UpdatedAt)
		updated["updated_at"] = storage.EncodeTime(now)

		fields := make(map[string]any, len(updated))
		for col, v := range updated {
			fields[col] = v
		}
		if err := tx.UpdateWorkItemFields(ctx, id, fields); err != nil {
			return err
		}

		actionID, err = history.Record(ctx, tx, &types.Action{
			Type:        types.ActionUpdateFields,
			Description: fmt.Sprintf("Updated %s of %q", changedColumns(updated), item.Name),
			WorkItemID:  &id,
			CreatedAt:   now,
		}, []history.Step{history.Update("work_items", id, old, updated)})
		if err != nil {
			return err
		}

		result, err = tx.GetWorkItem(ctx, id, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !noop {
		e.publish(actionID, types.ActionUpdateFields, id)
	}
	return result, nil
}

// diffFields computes the (old, new) column snapshots for the columns
// the changes would actually alter.
func diffFields(item *types.WorkItem, changes FieldChanges) (map[string]any, map[string]any, error) {
	old := map[string]any{}
	updated := map[string]any{}

	if changes.Name != nil {
		if err := validateName(*changes.Name); err != nil {
			return nil, nil, err
		}
		if *changes.Name != item.Name {
			old["name"] = item.Name
			updated["name"] = *changes.Name
		}
	}

	if changes.SetDescription {
		if err := validateDescription(changes.Description); err != nil {
			return nil, nil, err
		}
		if !equalStringPtr(changes.Description, item.Description) {
			old["description"] = nullableString(item.Description)
			updated["description"] = nullableString(changes.Description)
		}
	}

	if changes.Status != nil {
		if !types.ValidStatus(*changes.Status) {
			return nil, nil, types.Validationf("invalid status %q", *changes.Status)
		}
		if *changes.Status != item.Status {
			old["status"] = string(item.Status)
			updated["status"] = string(*changes.Status)
		}
	}

	if changes.Priority != nil {
		if !types.ValidPriority(*changes.Priority) {
			return nil, nil, types.Validationf("invalid priority %q", *changes.Priority)
		}
		if *changes.Priority != item.Priority {
			old["priority"] = string(item.Priority)
			updated["priority"] = string(*changes.Priority)
		}
	}

	if changes.SetDueDate {
		if !equalTimePtr(changes.DueDate, item.DueAt) {
			old["due_at"] = nullableTime(item.DueAt)
			updated["due_at"] = nullableTime(changes.DueDate)
		}
	}

	return old, updated, nil
}

// changedColumns names the changed columns for the action description,
// updated_at excluded.
func changedColumns(updated map[string]any) string {
	cols := make([]string, 0, len(updated))
	for col := range updated {
		if col == "updated_at" {
			continue
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return strings.Join(cols, ", ")
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return storage.EncodeTime(*t)
}
