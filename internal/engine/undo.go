package engine

import (
	"context"
	"fmt"

	"github.com/mkropat/tasktree/internal/history"
	"github.com/mkropat/tasktree/internal/storage"
	"github.com/mkropat/tasktree/internal/types"
)

// UndoLastAction reverts the most recent non-undone mutation and
// returns it, or nil when history holds nothing to undo. The scan for
// the target and the flag update share one transaction so concurrent
// undos serialize on the database.
func (e *Engine) UndoLastAction(ctx context.Context) (*types.Action, error) {
	var reverted *types.Action
	var metaID int64

	err := e.store.InTransaction(ctx, func(tx storage.Tx) error {
		target, err := tx.LatestUndoableAction(ctx)
		if err != nil {
			return err
		}
		if target == nil {
			return nil
		}

		if err := history.Undo(ctx, tx, target.ID); err != nil {
			return err
		}

		metaID, err = history.Record(ctx, tx, &types.Action{
			Type:        types.ActionUndo,
			Description: fmt.Sprintf("Undid action %d (%s)", target.ID, target.Type),
			WorkItemID:  target.WorkItemID,
			CreatedAt:   e.now(),
		}, nil)
		if err != nil {
			return err
		}
		if err := tx.MarkActionUndone(ctx, target.ID, metaID); err != nil {
			return err
		}

		reverted, err = tx.GetAction(ctx, target.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if reverted != nil {
		workItemID := ""
		if reverted.WorkItemID != nil {
			workItemID = *reverted.WorkItemID
		}
		e.publish(metaID, types.ActionUndo, workItemID)
	}
	return reverted, nil
}

// RedoLastAction re-applies the most recently undone action whose undo
// was not invalidated by a later mutation, or returns nil when none
// qualifies.
func (e *Engine) RedoLastAction(ctx context.Context) (*types.Action, error) {
	var reapplied *types.Action
	var metaID int64

	err := e.store.InTransaction(ctx, func(tx storage.Tx) error {
		target, err := tx.LatestRedoableAction(ctx)
		if err != nil {
			return err
		}
		if target == nil {
			return nil
		}

		if err := history.Redo(ctx, tx, target.ID); err != nil {
			return err
		}

		metaID, err = history.Record(ctx, tx, &types.Action{
			Type:        types.ActionRedo,
			Description: fmt.Sprintf("Redid action %d (%s)", target.ID, target.Type),
			WorkItemID:  target.WorkItemID,
			CreatedAt:   e.now(),
		}, nil)
		if err != nil {
			return err
		}
		if err := tx.MarkActionRedone(ctx, target.ID); err != nil {
			return err
		}

		reapplied, err = tx.GetAction(ctx, target.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if reapplied != nil {
		workItemID := ""
		if reapplied.WorkItemID != nil {
			workItemID = *reapplied.WorkItemID
		}
		e.publish(metaID, types.ActionRedo, workItemID)
	}
	return reapplied, nil
}
