package engine

import (
	"context"
	"fmt"

	"github.com/mkropat/tasktree/internal/history"
	"github.com/mkropat/tasktree/internal/orderkey"
	"github.com/mkropat/tasktree/internal/storage"
	"github.com/mkropat/tasktree/internal/types"
)

// MoveItemToStart moves an item to the front of its sibling list.
func (e *Engine) MoveItemToStart(ctx context.Context, id string) (*types.WorkItem, error) {
	return e.moveItem(ctx, id, Placement{At: "start"})
}

// MoveItemToEnd moves an item to the back of its sibling list.
func (e *Engine) MoveItemToEnd(ctx context.Context, id string) (*types.WorkItem, error) {
	return e.moveItem(ctx, id, Placement{At: "end"})
}

// MoveItemAfter places an item directly after a sibling.
func (e *Engine) MoveItemAfter(ctx context.Context, id, targetSiblingID string) (*types.WorkItem, error) {
	return e.moveItem(ctx, id, Placement{AfterID: targetSiblingID})
}

// MoveItemBefore places an item directly before a sibling.
func (e *Engine) MoveItemBefore(ctx context.Context, id, targetSiblingID string) (*types.WorkItem, error) {
	return e.moveItem(ctx, id, Placement{BeforeID: targetSiblingID})
}

// moveItem recomputes the item's order key for the requested slot.
// When the recomputed key equals the current one the move is a no-op
// and no action is recorded.
func (e *Engine) moveItem(ctx context.Context, id string, p Placement) (*types.WorkItem, error) {
	refID := p.AfterID + p.BeforeID
	if refID == id {
		return nil, types.Validationf("item %s cannot move relative to itself", id)
	}

	var result *types.WorkItem
	var actionID int64
	noop := false

	err := e.store.InTransaction(ctx, func(tx storage.Tx) error {
		item, err := requireActiveItem(ctx, tx, "work item", id)
		if err != nil {
			return err
		}

		before, after, err := e.moveNeighbours(ctx, tx, item, p)
		if err != nil {
			return err
		}
		newKey, err := orderkey.Calculate(before, after)
		if err != nil {
			return err
		}
		if newKey == item.OrderKey {
			result = item
			noop = true
			return nil
		}

		now := e.now()
		old := map[string]any{
			"order_key":  item.OrderKey,
			"updated_at": storage.EncodeTime(item.UpdatedAt),
		}
		updated := map[string]any{
			"order_key":  newKey,
			"updated_at": storage.EncodeTime(now),
		}
		if err := tx.UpdateWorkItemFields(ctx, id, updated); err != nil {
			return err
		}

		actionID, err = history.Record(ctx, tx, &types.Action{
			Type:        types.ActionMove,
			Description: fmt.Sprintf("Moved %q", item.Name),
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
		e.publish(actionID, types.ActionMove, id)
	}
	return result, nil
}

// moveNeighbours resolves the destination slot among the item's
// active siblings, the item itself excluded since its old position is
// vacated by the move.
func (e *Engine) moveNeighbours(ctx context.Context, tx storage.Tx, item *types.WorkItem, p Placement) (*string, *string, error) {
	siblings, err := tx.ListSiblings(ctx, item.ID, item.ParentID, true)
	if err != nil {
		return nil, nil, err
	}

	if p.AfterID != "" || p.BeforeID != "" {
		after := p.AfterID != ""
		refID := p.AfterID
		if !after {
			refID = p.BeforeID
		}
		idx := -1
		for i, sib := range siblings {
			if sib.ID == refID {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, nil, types.Validationf("reference item %s is not an active sibling of %s", refID, item.ID)
		}
		if after {
			beforeKey := siblings[idx].OrderKey
			var afterKey *string
			if idx+1 < len(siblings) {
				afterKey = &siblings[idx+1].OrderKey
			}
			return &beforeKey, afterKey, nil
		}
		afterKey := siblings[idx].OrderKey
		var beforeKey *string
		if idx > 0 {
			beforeKey = &siblings[idx-1].OrderKey
		}
		return beforeKey, &afterKey, nil
	}

	if len(siblings) == 0 {
		return nil, nil, nil
	}
	if p.At == "start" {
		return nil, &siblings[0].OrderKey, nil
	}
	return &siblings[len(siblings)-1].OrderKey, nil, nil
}

// PromoteToProject detaches a task from its parent and makes it a
// root project at the end of the root list, leaving a linked
// dependency from the original parent behind for tree projection.
func (e *Engine) PromoteToProject(ctx context.Context, id string) (*types.WorkItem, error) {
	var result *types.WorkItem
	var actionID int64

	err := e.store.InTransaction(ctx, func(tx storage.Tx) error {
		item, err := requireActiveItem(ctx, tx, "work item", id)
		if err != nil {
			return err
		}
		if item.IsRoot() {
			return types.Validationf("item %s is already a project", id)
		}
		originalParent := *item.ParentID

		lastRootKey, err := tx.SiblingEdgeOrderKey(ctx, nil, true)
		if err != nil {
			return err
		}
		newKey, err := orderkey.Calculate(lastRootKey, nil)
		if err != nil {
			return err
		}

		now := e.now()
		old := map[string]any{
			"parent_id":  originalParent,
			"order_key":  item.OrderKey,
			"updated_at": storage.EncodeTime(item.UpdatedAt),
		}
		updated := map[string]any{
			"parent_id":  nil,
			"order_key":  newKey,
			"updated_at": storage.EncodeTime(now),
		}
		if err := tx.UpdateWorkItemFields(ctx, id, updated); err != nil {
			return err
		}
		steps := []history.Step{history.Update("work_items", id, old, updated)}

		depStep, err := e.upsertDependencyEdge(ctx, tx, originalParent, types.DependencySpec{
			DependsOnID: id,
			Type:        types.DepLinked,
		})
		if err != nil {
			return err
		}
		steps = append(steps, depStep)

		actionID, err = history.Record(ctx, tx, &types.Action{
			Type:        types.ActionPromote,
			Description: fmt.Sprintf("Promoted %q to a project", item.Name),
			WorkItemID:  &id,
			CreatedAt:   now,
		}, steps)
		if err != nil {
			return err
		}

		result, err = tx.GetWorkItem(ctx, id, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.publish(actionID, types.ActionPromote, id)
	return result, nil
}
