// Package history records mutations in the action log and builds the
// row-level undo steps that make them reversible.
package history

import (
	"context"
	"fmt"

	"github.com/mkropat/tasktree/internal/storage"
	"github.com/mkropat/tasktree/internal/types"
)

// Step is one pending undo step; Record assigns the action id and the
// step order.
type Step struct {
	Type      types.StepType
	TableName string
	RecordID  string
	OldData   map[string]any
	NewData   map[string]any
}

// Update builds an UPDATE step for the addressed row.
func Update(table, recordID string, oldData, newData map[string]any) Step {
	return Step{Type: types.StepUpdate, TableName: table, RecordID: recordID, OldData: oldData, NewData: newData}
}

// Insert builds an INSERT step; undoing it deletes the row.
func Insert(table, recordID string, newData map[string]any) Step {
	return Step{Type: types.StepInsert, TableName: table, RecordID: recordID, NewData: newData}
}

// Delete builds a DELETE step; undoing it reinserts the row.
func Delete(table, recordID string, oldData map[string]any) Step {
	return Step{Type: types.StepDelete, TableName: table, RecordID: recordID, OldData: oldData}
}

// Record appends one action with its steps inside the caller's
// transaction and returns the action id. Ordinary mutations also
// invalidate the redo tail; UNDO_ACTION/REDO_ACTION meta entries do
// not, and carry no steps of their own.
func Record(ctx context.Context, tx storage.Tx, action *types.Action, steps []Step) (int64, error) {
	id, err := tx.InsertAction(ctx, action)
	if err != nil {
		return 0, err
	}

	if action.Type.IsMeta() {
		if len(steps) > 0 {
			return 0, fmt.Errorf("meta action %s cannot carry steps", action.Type)
		}
		return id, nil
	}

	for i, step := range steps {
		err := tx.InsertUndoStep(ctx, &types.UndoStep{
			ActionID:  id,
			StepOrder: i + 1,
			Type:      step.Type,
			TableName: step.TableName,
			RecordID:  step.RecordID,
			OldData:   step.OldData,
			NewData:   step.NewData,
		})
		if err != nil {
			return 0, err
		}
	}

	if err := tx.InvalidateRedoTail(ctx, id); err != nil {
		return 0, err
	}
	return id, nil
}

// Undo replays an action's steps in reverse order. UPDATE steps
// restore old_data, INSERT steps delete the row, DELETE steps
// reinsert the row from new_data.
func Undo(ctx context.Context, tx storage.Tx, actionID int64) error {
	steps, err := tx.ListUndoSteps(ctx, actionID)
	if err != nil {
		return err
	}
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		switch step.Type {
		case types.StepUpdate:
			err = tx.WriteRow(ctx, step.TableName, step.RecordID, step.OldData)
		case types.StepInsert:
			err = tx.DeleteRow(ctx, step.TableName, step.RecordID)
		case types.StepDelete:
			err = tx.WriteRow(ctx, step.TableName, step.RecordID, step.NewData)
		default:
			err = fmt.Errorf("unknown step type %q", step.Type)
		}
		if err != nil {
			return fmt.Errorf("failed to undo step %d of action %d: %w", step.StepOrder, actionID, err)
		}
	}
	return nil
}

// Redo replays an action's steps in forward order, writing each
// step's new state.
func Redo(ctx context.Context, tx storage.Tx, actionID int64) error {
	steps, err := tx.ListUndoSteps(ctx, actionID)
	if err != nil {
		return err
	}
	for _, step := range steps {
		switch step.Type {
		case types.StepUpdate, types.StepInsert:
			err = tx.WriteRow(ctx, step.TableName, step.RecordID, step.NewData)
		case types.StepDelete:
			err = tx.DeleteRow(ctx, step.TableName, step.RecordID)
		default:
			err = fmt.Errorf("unknown step type %q", step.Type)
		}
		if err != nil {
			return fmt.Errorf("failed to redo step %d of action %d: %w", step.StepOrder, actionID, err)
		}
	}
	return nil
}
