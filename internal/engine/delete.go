package engine

import (
	"context"
	"fmt"

	"github.com/mkropat/tasktree/internal/history"
	"github.com/mkropat/tasktree/internal/storage"
	"github.com/mkropat/tasktree/internal/types"
)

// DeleteSummary reports the outcome of a soft-delete cascade.
type DeleteSummary struct {
	DeletedCount int `json:"deleted_count"`
}

// DeleteProject soft-deletes one root project and its entire subtree.
func (e *Engine) DeleteProject(ctx context.Context, projectID string) (*DeleteSummary, error) {
	return e.deleteSubtrees(ctx, types.ActionDeleteSubtree, func(ctx context.Context, tx storage.Tx) ([]string, string, error) {
		item, err := requireActiveItem(ctx, tx, "project", projectID)
		if err != nil {
			return nil, "", err
		}
		if !item.IsRoot() {
			return nil, "", types.Validationf("item %s is not a project", projectID)
		}
		return []string{projectID}, fmt.Sprintf("Deleted project %q", item.Name), nil
	})
}

// DeleteTasks soft-deletes the given tasks and their subtrees. Root
// projects are rejected; delete_project is the verb for those.
func (e *Engine) DeleteTasks(ctx context.Context, workItemIDs []string) (*DeleteSummary, error) {
	if len(workItemIDs) == 0 {
		return nil, types.Validationf("work_item_ids must not be empty")
	}
	return e.deleteSubtrees(ctx, types.ActionDeleteSubtree, func(ctx context.Context, tx storage.Tx) ([]string, string, error) {
		for _, id := range workItemIDs {
			item, err := requireActiveItem(ctx, tx, "work item", id)
			if err != nil {
				return nil, "", err
			}
			if item.IsRoot() {
				return nil, "", types.Conflictf("item %s is a root project; use delete_project", id)
			}
		}
		return workItemIDs, fmt.Sprintf("Deleted %d tasks", len(workItemIDs)), nil
	})
}

// DeleteChildTasks soft-deletes children of one parent: either the
// named ones or, with deleteAll, every active child. Exactly one of
// the two selectors must be used.
func (e *Engine) DeleteChildTasks(ctx context.Context, parentID string, childIDs []string, deleteAll bool) (*DeleteSummary, error) {
	if deleteAll == (len(childIDs) > 0) {
		return nil, types.Validationf("exactly one of child_task_ids and delete_all_children must select work")
	}
	return e.deleteSubtrees(ctx, types.ActionDeleteSubtree, func(ctx context.Context, tx storage.Tx) ([]string, string, error) {
		parent, err := requireActiveItem(ctx, tx, "parent item", parentID)
		if err != nil {
			return nil, "", err
		}

		var roots []string
		if deleteAll {
			children, err := tx.ListChildren(ctx, &parentID, true, nil)
			if err != nil {
				return nil, "", err
			}
			for _, child := range children {
				roots = append(roots, child.ID)
			}
		} else {
			for _, id := range childIDs {
				child, err := requireActiveItem(ctx, tx, "child item", id)
				if err != nil {
					return nil, "", err
				}
				if child.ParentID == nil || *child.ParentID != parentID {
					return nil, "", types.Validationf("item %s is not a child of %s", id, parentID)
				}
				roots = append(roots, id)
			}
		}
		return roots, fmt.Sprintf("Deleted children of %q", parent.Name), nil
	})
}

// deleteSubtrees runs the soft-delete cascade for the root set the
// selector resolves: every descendant is deactivated along with every
// dependency edge touching the set, one undo step per affected row.
func (e *Engine) deleteSubtrees(ctx context.Context, actionType types.ActionType, resolve func(ctx context.Context, tx storage.Tx) ([]string, string, error)) (*DeleteSummary, error) {
	var summary DeleteSummary
	var actionID int64
	var firstID string

	err := e.store.InTransaction(ctx, func(tx storage.Tx) error {
		roots, description, err := resolve(ctx, tx)
		if err != nil {
			return err
		}
		if len(roots) == 0 {
			return types.Validationf("nothing to delete")
		}
		firstID = roots[0]

		// Resolve the affected set: the roots plus every descendant
		// that is still active. Already-inactive rows get no step so
		// undo restores exactly what this delete changed.
		seen := map[string]bool{}
		var affected []string
		for _, rootID := range roots {
			if !seen[rootID] {
				seen[rootID] = true
				affected = append(affected, rootID)
			}
			descendants, err := tx.ListDescendants(ctx, rootID)
			if err != nil {
				return err
			}
			for _, d := range descendants {
				if d.IsActive && !seen[d.ID] {
					seen[d.ID] = true
					affected = append(affected, d.ID)
				}
			}
		}

		var steps []history.Step
		for _, id := range affected {
			steps = append(steps, history.Update("work_items", id,
				map[string]any{"is_active": true}, map[string]any{"is_active": false}))
		}

		edges, err := tx.ListDependenciesTouching(ctx, affected, true)
		if err != nil {
			return err
		}
		var keys []types.DependencyKey
		for _, edge := range edges {
			key := types.DependencyKey{WorkItemID: edge.WorkItemID, DependsOnID: edge.DependsOnID}
			keys = append(keys, key)
			steps = append(steps, history.Update(depTable, key.RecordID(),
				map[string]any{"is_active": true}, map[string]any{"is_active": false}))
		}

		if err := tx.SoftDeleteItems(ctx, affected); err != nil {
			return err
		}
		if err := tx.DeactivateDependencies(ctx, keys); err != nil {
			return err
		}

		actionID, err = history.Record(ctx, tx, &types.Action{
			Type:        actionType,
			Description: description,
			WorkItemID:  &firstID,
			CreatedAt:   e.now(),
		}, steps)
		if err != nil {
			return err
		}
		summary.DeletedCount = len(affected)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(actionID, actionType, firstID)
	return &summary, nil
}
