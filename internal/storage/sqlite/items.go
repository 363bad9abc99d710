package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/mkropat/tasktree/internal/storage"
	"github.com/mkropat/tasktree/internal/types"
)

const itemColumns = "id, parent_id, name, description, status, priority, due_at, order_key, is_active, created_at, updated_at"

// scanItem reads one work item row; the column order must match
// itemColumns.
func scanItem(row interface{ Scan(...any) error }) (*types.WorkItem, error) {
	var item types.WorkItem
	var parentID, description, dueAt sql.NullString
	var isActive int
	var createdAt, updatedAt string

	err := row.Scan(
		&item.ID, &parentID, &item.Name, &description, &item.Status,
		&item.Priority, &dueAt, &item.OrderKey, &isActive, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		item.ParentID = &parentID.String
	}
	if description.Valid {
		item.Description = &description.String
	}
	if dueAt.Valid {
		t, err := storage.DecodeTime(dueAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse due_at: %w", err)
		}
		item.DueAt = &t
	}
	item.IsActive = isActive != 0

	if item.CreatedAt, err = storage.DecodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if item.UpdatedAt, err = storage.DecodeTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &item, nil
}

func (s *queries) scanItems(rows *sql.Rows) ([]*types.WorkItem, error) {
	defer func() { _ = rows.Close() }()
	var items []*types.WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate work items: %w", err)
	}
	return items, nil
}

// GetWorkItem returns one item, or nil when absent (or soft-deleted,
// with activeOnly set).
func (s *queries) GetWorkItem(ctx context.Context, id string, activeOnly bool) (*types.WorkItem, error) {
	query := "SELECT " + itemColumns + " FROM work_items WHERE id = ?"
	if activeOnly {
		query += " AND is_active = 1"
	}
	item, err := scanItem(s.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work item: %w", err)
	}
	return item, nil
}

// parentClause builds the parent predicate; a nil parent means roots.
func parentClause(parentID *string, args *[]any) string {
	if parentID == nil {
		return "parent_id IS NULL"
	}
	*args = append(*args, *parentID)
	return "parent_id = ?"
}

// ListChildren returns the children of parentID (roots when nil),
// ordered by (order_key, created_at).
func (s *queries) ListChildren(ctx context.Context, parentID *string, activeOnly bool, status *types.Status) ([]*types.WorkItem, error) {
	var args []any
	where := []string{parentClause(parentID, &args)}
	if activeOnly {
		where = append(where, "is_active = 1")
	}
	if status != nil {
		where = append(where, "status = ?")
		args = append(args, *status)
	}

	// #nosec G201 - clauses are fixed strings
	query := fmt.Sprintf(
		"SELECT %s FROM work_items WHERE %s ORDER BY order_key ASC, created_at ASC",
		itemColumns, strings.Join(where, " AND "),
	)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	return s.scanItems(rows)
}

// ListWorkItems applies an ItemFilter; active defaults to unfiltered
// when IsActive is nil.
func (s *queries) ListWorkItems(ctx context.Context, f types.ItemFilter) ([]*types.WorkItem, error) {
	var args []any
	var where []string
	if f.RootsOnly {
		where = append(where, "parent_id IS NULL")
	} else if f.ParentID != nil {
		where = append(where, "parent_id = ?")
		args = append(args, *f.ParentID)
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *f.Status)
	}
	if f.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, boolToInt(*f.IsActive))
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}
	// #nosec G201 - clauses are fixed strings
	query := fmt.Sprintf(
		"SELECT %s FROM work_items%s ORDER BY order_key ASC, created_at ASC",
		itemColumns, whereSQL,
	)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}
	return s.scanItems(rows)
}

// ListDescendants returns the transitive children of id regardless of
// active state, ordered by (order_key, created_at) within the whole
// set. The item itself is not included.
func (s *queries) ListDescendants(ctx context.Context, id string) ([]*types.WorkItem, error) {
	query := `
		WITH RECURSIVE sub(id) AS (
			SELECT id FROM work_items WHERE parent_id = ?
			UNION ALL
			SELECT w.id FROM work_items w JOIN sub ON w.parent_id = sub.id
		)
		SELECT ` + itemColumns + ` FROM work_items
		WHERE id IN (SELECT id FROM sub)
		ORDER BY order_key ASC, created_at ASC
	`
	rows, err := s.q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list descendants: %w", err)
	}
	return s.scanItems(rows)
}

// ListSiblings returns the items sharing parentID, excluding id.
func (s *queries) ListSiblings(ctx context.Context, id string, parentID *string, activeOnly bool) ([]*types.WorkItem, error) {
	args := []any{id}
	where := []string{"id != ?", ""}
	where[1] = parentClause(parentID, &args)
	if activeOnly {
		where = append(where, "is_active = 1")
	}
	// #nosec G201 - clauses are fixed strings
	query := fmt.Sprintf(
		"SELECT %s FROM work_items WHERE %s ORDER BY order_key ASC, created_at ASC",
		itemColumns, strings.Join(where, " AND "),
	)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list siblings: %w", err)
	}
	return s.scanItems(rows)
}

// SiblingEdgeOrderKey returns the extreme order key among the active
// children of parentID, or nil when there are none.
func (s *queries) SiblingEdgeOrderKey(ctx context.Context, parentID *string, last bool) (*string, error) {
	agg := "MIN"
	if last {
		agg = "MAX"
	}
	var args []any
	parent := parentClause(parentID, &args)
	// #nosec G201 - clauses are fixed strings
	query := fmt.Sprintf(
		"SELECT %s(order_key) FROM work_items WHERE %s AND is_active = 1",
		agg, parent,
	)
	var key sql.NullString
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&key); err != nil {
		return nil, fmt.Errorf("failed to get edge order key: %w", err)
	}
	if !key.Valid {
		return nil, nil
	}
	return &key.String, nil
}

// NeighbourOrderKeys returns the (before, after) key pair bracketing
// the slot adjacent to refID on the given side. The reference item's
// own key is one side of the pair; the nearest active sibling key on
// the other side is nil when no such sibling exists.
func (s *queries) NeighbourOrderKeys(ctx context.Context, parentID *string, refID string, after bool) (*string, *string, error) {
	var refKey string
	err := s.q.QueryRowContext(ctx, "SELECT order_key FROM work_items WHERE id = ?", refID).Scan(&refKey)
	if err == sql.ErrNoRows {
		return nil, nil, types.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get reference order key: %w", err)
	}

	var args []any
	parent := parentClause(parentID, &args)
	cmp, agg := "<", "MAX"
	if after {
		cmp, agg = ">", "MIN"
	}
	// #nosec G201 - clauses are fixed strings
	query := fmt.Sprintf(
		"SELECT %s(order_key) FROM work_items WHERE %s AND is_active = 1 AND id != ? AND order_key %s ?",
		agg, parent, cmp,
	)
	args = append(args, refID, refKey)
	var neighbour sql.NullString
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&neighbour); err != nil {
		return nil, nil, fmt.Errorf("failed to get neighbour order key: %w", err)
	}

	var other *string
	if neighbour.Valid {
		other = &neighbour.String
	}
	if after {
		return &refKey, other, nil
	}
	return other, &refKey, nil
}

// InsertWorkItem inserts one item.
func (s *queries) InsertWorkItem(ctx context.Context, item *types.WorkItem) error {
	var parentID, description, dueAt any
	if item.ParentID != nil {
		parentID = *item.ParentID
	}
	if item.Description != nil {
		description = *item.Description
	}
	if item.DueAt != nil {
		dueAt = storage.EncodeTime(*item.DueAt)
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO work_items (id, parent_id, name, description, status, priority, due_at, order_key, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID, parentID, item.Name, description, item.Status, item.Priority,
		dueAt, item.OrderKey, boolToInt(item.IsActive),
		storage.EncodeTime(item.CreatedAt), storage.EncodeTime(item.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert work item: %w", err)
	}
	return nil
}

// UpdateWorkItemFields updates the named columns of one active item.
func (s *queries) UpdateWorkItemFields(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	cols := make([]string, 0, len(fields))
	for col := range fields {
		if !workItemColumn(col) || col == "id" {
			return fmt.Errorf("invalid work item column %q", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets[i] = col + " = ?"
		args = append(args, encodeValue(fields[col]))
	}
	args = append(args, id)

	// #nosec G201 - column names validated against the registry
	query := fmt.Sprintf("UPDATE work_items SET %s WHERE id = ? AND is_active = 1", strings.Join(sets, ", "))
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update work item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// SoftDeleteItems flips is_active off for the given items. The rows'
// other columns are untouched so undo restores them exactly.
func (s *queries) SoftDeleteItems(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	// #nosec G201 - placeholders only
	query := fmt.Sprintf("UPDATE work_items SET is_active = 0 WHERE id IN (%s)", strings.Join(placeholders, ","))
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to soft delete work items: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
