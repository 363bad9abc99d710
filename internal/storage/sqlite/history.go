package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mkropat/tasktree/internal/storage"
	"github.com/mkropat/tasktree/internal/types"
)

const actionColumns = "id, action_type, description, work_item_id, created_at, is_undone, undone_at_action_id"

func scanAction(row interface{ Scan(...any) error }) (*types.Action, error) {
	var a types.Action
	var workItemID sql.NullString
	var createdAt string
	var isUndone int
	var undoneAt sql.NullInt64

	err := row.Scan(&a.ID, &a.Type, &a.Description, &workItemID, &createdAt, &isUndone, &undoneAt)
	if err != nil {
		return nil, err
	}
	if workItemID.Valid {
		a.WorkItemID = &workItemID.String
	}
	a.IsUndone = isUndone != 0
	if undoneAt.Valid {
		a.UndoneAtActionID = &undoneAt.Int64
	}
	if a.CreatedAt, err = storage.DecodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return &a, nil
}

// InsertAction appends one history entry and returns its id. The
// AUTOINCREMENT id is the global history order.
func (s *queries) InsertAction(ctx context.Context, a *types.Action) (int64, error) {
	var workItemID any
	if a.WorkItemID != nil {
		workItemID = *a.WorkItemID
	}
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO action_history (action_type, description, work_item_id, created_at, is_undone, undone_at_action_id)
		VALUES (?, ?, ?, ?, 0, NULL)
	`, a.Type, a.Description, workItemID, storage.EncodeTime(a.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert action: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get action id: %w", err)
	}
	return id, nil
}

// InsertUndoStep appends one step to its action.
func (s *queries) InsertUndoStep(ctx context.Context, step *types.UndoStep) error {
	oldData, err := encodeStepData(step.OldData)
	if err != nil {
		return fmt.Errorf("failed to encode old data: %w", err)
	}
	newData, err := encodeStepData(step.NewData)
	if err != nil {
		return fmt.Errorf("failed to encode new data: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO undo_steps (action_id, step_order, step_type, table_name, record_id, old_data, new_data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, step.ActionID, step.StepOrder, step.Type, step.TableName, step.RecordID, oldData, newData)
	if err != nil {
		return fmt.Errorf("failed to insert undo step: %w", err)
	}
	return nil
}

func encodeStepData(data map[string]any) (any, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeStepData(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(s.String), &data); err != nil {
		return nil, err
	}
	return data, nil
}

// ListUndoSteps returns an action's steps in ascending StepOrder.
func (s *queries) ListUndoSteps(ctx context.Context, actionID int64) ([]*types.UndoStep, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, action_id, step_order, step_type, table_name, record_id, old_data, new_data
		FROM undo_steps WHERE action_id = ? ORDER BY step_order ASC
	`, actionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list undo steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var steps []*types.UndoStep
	for rows.Next() {
		var step types.UndoStep
		var oldData, newData sql.NullString
		err := rows.Scan(&step.ID, &step.ActionID, &step.StepOrder, &step.Type,
			&step.TableName, &step.RecordID, &oldData, &newData)
		if err != nil {
			return nil, fmt.Errorf("failed to scan undo step: %w", err)
		}
		if step.OldData, err = decodeStepData(oldData); err != nil {
			return nil, fmt.Errorf("failed to decode old data: %w", err)
		}
		if step.NewData, err = decodeStepData(newData); err != nil {
			return nil, fmt.Errorf("failed to decode new data: %w", err)
		}
		steps = append(steps, &step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate undo steps: %w", err)
	}
	return steps, nil
}

// metaTypes filters UNDO_ACTION/REDO_ACTION entries out of the
// undo/redo candidate queries.
const metaTypes = "('" + string(types.ActionUndo) + "', '" + string(types.ActionRedo) + "')"

// LatestUndoableAction returns the newest non-meta action that is not
// undone, or nil.
func (s *queries) LatestUndoableAction(ctx context.Context) (*types.Action, error) {
	query := "SELECT " + actionColumns + ` FROM action_history
		WHERE is_undone = 0 AND action_type NOT IN ` + metaTypes + `
		ORDER BY id DESC LIMIT 1`
	a, err := scanAction(s.q.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get undoable action: %w", err)
	}
	return a, nil
}

// LatestRedoableAction returns the most recently undone action whose
// undo has not been invalidated. Eligibility means undone_at_action_id
// still points at an UNDO_ACTION row; invalidation repoints it at an
// ordinary mutation. Most recently undone wins, so ordering follows
// the undoing action's id, not the candidate's own.
func (s *queries) LatestRedoableAction(ctx context.Context) (*types.Action, error) {
	query := "SELECT " + actionColumns + ` FROM action_history
		WHERE is_undone = 1
		  AND action_type NOT IN ` + metaTypes + `
		  AND undone_at_action_id IN (
			SELECT id FROM action_history WHERE action_type = '` + string(types.ActionUndo) + `'
		  )
		ORDER BY undone_at_action_id DESC LIMIT 1`
	a, err := scanAction(s.q.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get redoable action: %w", err)
	}
	return a, nil
}

// MarkActionUndone flags the action undone by the given meta-action.
func (s *queries) MarkActionUndone(ctx context.Context, id, metaActionID int64) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE action_history SET is_undone = 1, undone_at_action_id = ? WHERE id = ?",
		metaActionID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark action undone: %w", err)
	}
	return nil
}

// MarkActionRedone clears the undone flag and the meta pointer.
func (s *queries) MarkActionRedone(ctx context.Context, id int64) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE action_history SET is_undone = 0, undone_at_action_id = NULL WHERE id = ?",
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark action redone: %w", err)
	}
	return nil
}

// InvalidateRedoTail removes redo eligibility from every action undone
// before currentActionID by repointing its undone pointer at the new
// mutation. The rows stay undone; they just no longer qualify for
// redo.
func (s *queries) InvalidateRedoTail(ctx context.Context, currentActionID int64) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE action_history SET undone_at_action_id = ?
		WHERE id < ? AND is_undone = 1 AND undone_at_action_id IN (
			SELECT id FROM action_history WHERE action_type = '`+string(types.ActionUndo)+`'
		)
	`, currentActionID, currentActionID)
	if err != nil {
		return fmt.Errorf("failed to invalidate redo tail: %w", err)
	}
	return nil
}

// ListActions returns history entries, newest first.
func (s *queries) ListActions(ctx context.Context, f types.HistoryFilter) ([]*types.Action, error) {
	var where []string
	var args []any
	if f.StartDate != nil {
		where = append(where, "created_at >= ?")
		args = append(args, storage.EncodeTime(*f.StartDate))
	}
	if f.EndDate != nil {
		where = append(where, "created_at <= ?")
		args = append(args, storage.EncodeTime(*f.EndDate))
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}
	limitSQL := ""
	if f.Limit > 0 {
		limitSQL = " LIMIT ?"
		args = append(args, f.Limit)
	}

	// #nosec G201 - clauses are fixed strings
	query := fmt.Sprintf("SELECT %s FROM action_history%s ORDER BY id DESC%s", actionColumns, whereSQL, limitSQL)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var actions []*types.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate actions: %w", err)
	}
	return actions, nil
}

// GetAction returns one action, or nil when absent.
func (s *queries) GetAction(ctx context.Context, id int64) (*types.Action, error) {
	query := "SELECT " + actionColumns + " FROM action_history WHERE id = ?"
	a, err := scanAction(s.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get action: %w", err)
	}
	return a, nil
}
