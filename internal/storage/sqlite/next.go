package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mkropat/tasktree/internal/types"
)

// NextTask returns the best actionable todo item, or nil when none
// qualifies. A candidate is an active todo item, restricted to the
// scope subtree (including the scope item itself) when scopeID is
// non-nil, and not blocked by any active finish-to-start dependency
// whose target is not done. Linked dependencies never block.
//
// Ordering: due date ascending with nulls last, then priority rank,
// then order_key, then created_at.
func (s *queries) NextTask(ctx context.Context, scopeID *string) (*types.WorkItem, error) {
	var scopeSQL string
	var args []any
	if scopeID != nil {
		scopeSQL = `
			AND w.id IN (
				WITH RECURSIVE scope(id) AS (
					SELECT id FROM work_items WHERE id = ?
					UNION ALL
					SELECT c.id FROM work_items c JOIN scope ON c.parent_id = scope.id
				)
				SELECT id FROM scope
			)`
		args = append(args, *scopeID)
	}

	query := `
		SELECT ` + prefixed("w", itemColumns) + `
		FROM work_items w
		WHERE w.is_active = 1
		  AND w.status = 'todo'` + scopeSQL + `
		  AND NOT EXISTS (
			SELECT 1 FROM work_item_dependencies d
			JOIN work_items t ON t.id = d.depends_on_id
			WHERE d.work_item_id = w.id
			  AND d.is_active = 1
			  AND d.dep_type = 'finish-to-start'
			  AND t.status != 'done'
		  )
		ORDER BY
		  w.due_at IS NULL ASC,
		  w.due_at ASC,
		  CASE w.priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END ASC,
		  w.order_key ASC,
		  w.created_at ASC
		LIMIT 1`

	item, err := scanItem(s.q.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get next task: %w", err)
	}
	return item, nil
}

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ", ")
	for i, col := range cols {
		cols[i] = alias + "." + col
	}
	return strings.Join(cols, ", ")
}
