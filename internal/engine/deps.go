package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkropat/tasktree/internal/history"
	"github.com/mkropat/tasktree/internal/storage"
	"github.com/mkropat/tasktree/internal/types"
)

const depTable = "work_item_dependencies"

// upsertDependencyEdge validates and applies one dependency upsert,
// returning its undo step. A brand-new row gets an is_active:false
// inversion; a reactivated row gets its pre-reactivation values.
func (e *Engine) upsertDependencyEdge(ctx context.Context, tx storage.Tx, workItemID string, spec types.DependencySpec) (history.Step, error) {
	if spec.DependsOnID == workItemID {
		return history.Step{}, types.Validationf("item %s cannot depend on itself", workItemID)
	}
	depType := spec.Type
	if depType == "" {
		depType = types.DepFinishToStart
	} else if !types.ValidDependencyType(depType) {
		return history.Step{}, types.Validationf("invalid dependency type %q", spec.Type)
	}
	if _, err := requireActiveItem(ctx, tx, "dependency target", spec.DependsOnID); err != nil {
		return history.Step{}, err
	}

	key := types.DependencyKey{WorkItemID: workItemID, DependsOnID: spec.DependsOnID}
	existing, err := tx.GetDependency(ctx, key)
	if err != nil {
		return history.Step{}, err
	}

	now := e.now()
	dep := &types.Dependency{
		WorkItemID:  workItemID,
		DependsOnID: spec.DependsOnID,
		Type:        depType,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing != nil {
		dep.CreatedAt = existing.CreatedAt
	}
	if err := tx.UpsertDependency(ctx, dep); err != nil {
		return history.Step{}, err
	}

	if existing == nil {
		return history.Update(depTable, key.RecordID(),
			map[string]any{"is_active": false}, depRow(dep)), nil
	}
	old := map[string]any{
		"dep_type":   string(existing.Type),
		"is_active":  existing.IsActive,
		"updated_at": storage.EncodeTime(existing.UpdatedAt),
	}
	updated := map[string]any{
		"dep_type":   string(dep.Type),
		"is_active":  dep.IsActive,
		"updated_at": storage.EncodeTime(dep.UpdatedAt),
	}
	return history.Update(depTable, key.RecordID(), old, updated), nil
}

// AddDependencies upserts a set of dependency edges for one item in a
// single transaction and action.
func (e *Engine) AddDependencies(ctx context.Context, workItemID string, specs []types.DependencySpec) (*types.WorkItem, error) {
	if len(specs) == 0 {
		return nil, types.Validationf("dependencies must not be empty")
	}

	var item *types.WorkItem
	var actionID int64
	err := e.store.InTransaction(ctx, func(tx storage.Tx) error {
		var err error
		item, err = requireActiveItem(ctx, tx, "work item", workItemID)
		if err != nil {
			return err
		}

		steps := make([]history.Step, 0, len(specs))
		names := make([]string, 0, len(specs))
		for _, spec := range specs {
			step, err := e.upsertDependencyEdge(ctx, tx, workItemID, spec)
			if err != nil {
				return err
			}
			steps = append(steps, step)
			names = append(names, spec.DependsOnID)
		}

		actionID, err = history.Record(ctx, tx, &types.Action{
			Type:        types.ActionAddDependencies,
			Description: fmt.Sprintf("Added dependencies of %q on %s", item.Name, strings.Join(names, ", ")),
			WorkItemID:  &workItemID,
			CreatedAt:   e.now(),
		}, steps)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.publish(actionID, types.ActionAddDependencies, workItemID)
	return item, nil
}

// DeleteDependencies deactivates the named edges in a single
// transaction and action.
func (e *Engine) DeleteDependencies(ctx context.Context, workItemID string, dependsOnIDs []string) (*types.WorkItem, error) {
	if len(dependsOnIDs) == 0 {
		return nil, types.Validationf("depends_on_work_item_ids must not be empty")
	}

	var item *types.WorkItem
	var actionID int64
	err := e.store.InTransaction(ctx, func(tx storage.Tx) error {
		var err error
		item, err = requireActiveItem(ctx, tx, "work item", workItemID)
		if err != nil {
			return err
		}

		var steps []history.Step
		var keys []types.DependencyKey
		for _, target := range dependsOnIDs {
			key := types.DependencyKey{WorkItemID: workItemID, DependsOnID: target}
			existing, err := tx.GetDependency(ctx, key)
			if err != nil {
				return err
			}
			if existing == nil || !existing.IsActive {
				return types.NotFoundOrInactive("dependency", key.RecordID())
			}
			keys = append(keys, key)
			steps = append(steps, history.Update(depTable, key.RecordID(),
				map[string]any{"is_active": true}, map[string]any{"is_active": false}))
		}
		if err := tx.DeactivateDependencies(ctx, keys); err != nil {
			return err
		}

		actionID, err = history.Record(ctx, tx, &types.Action{
			Type:        types.ActionDeleteDependencies,
			Description: fmt.Sprintf("Removed dependencies of %q on %s", item.Name, strings.Join(dependsOnIDs, ", ")),
			WorkItemID:  &workItemID,
			CreatedAt:   e.now(),
		}, steps)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.publish(actionID, types.ActionDeleteDependencies, workItemID)
	return item, nil
}
