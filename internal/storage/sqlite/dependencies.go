package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mkropat/tasktree/internal/storage"
	"github.com/mkropat/tasktree/internal/types"
)

const depColumns = "work_item_id, depends_on_id, dep_type, is_active, created_at, updated_at"

func scanDependency(row interface{ Scan(...any) error }) (*types.Dependency, error) {
	var dep types.Dependency
	var isActive int
	var createdAt, updatedAt string

	err := row.Scan(&dep.WorkItemID, &dep.DependsOnID, &dep.Type, &isActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	dep.IsActive = isActive != 0
	if dep.CreatedAt, err = storage.DecodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if dep.UpdatedAt, err = storage.DecodeTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &dep, nil
}

func (s *queries) scanDependencies(rows *sql.Rows) ([]*types.Dependency, error) {
	defer func() { _ = rows.Close() }()
	var deps []*types.Dependency
	for rows.Next() {
		dep, err := scanDependency(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		deps = append(deps, dep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dependencies: %w", err)
	}
	return deps, nil
}

// listEdges lists edges where idColumn = id, applying the filter. The
// OtherActive predicate joins against the work item at the far end of
// the edge.
func (s *queries) listEdges(ctx context.Context, idColumn, otherColumn, id string, f types.DependencyFilter) ([]*types.Dependency, error) {
	where := []string{"d." + idColumn + " = ?"}
	args := []any{id}
	if f.Active != nil {
		where = append(where, "d.is_active = ?")
		args = append(args, boolToInt(*f.Active))
	}
	if f.Type != nil {
		where = append(where, "d.dep_type = ?")
		args = append(args, *f.Type)
	}
	joins := ""
	if f.OtherActive != nil {
		joins = " JOIN work_items w ON w.id = d." + otherColumn
		where = append(where, "w.is_active = ?")
		args = append(args, boolToInt(*f.OtherActive))
	}

	cols := "d.work_item_id, d.depends_on_id, d.dep_type, d.is_active, d.created_at, d.updated_at"
	// #nosec G201 - clauses are fixed strings
	query := fmt.Sprintf(
		"SELECT %s FROM work_item_dependencies d%s WHERE %s ORDER BY d.created_at ASC",
		cols, joins, strings.Join(where, " AND "),
	)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}
	return s.scanDependencies(rows)
}

// ListDependencies returns the outgoing edges of id.
func (s *queries) ListDependencies(ctx context.Context, id string, f types.DependencyFilter) ([]*types.Dependency, error) {
	return s.listEdges(ctx, "work_item_id", "depends_on_id", id, f)
}

// ListDependents returns the incoming edges of id.
func (s *queries) ListDependents(ctx context.Context, id string, f types.DependencyFilter) ([]*types.Dependency, error) {
	return s.listEdges(ctx, "depends_on_id", "work_item_id", id, f)
}

// ListDependenciesTouching returns every edge with either endpoint in
// ids.
func (s *queries) ListDependenciesTouching(ctx context.Context, ids []string, activeOnly bool) ([]*types.Dependency, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)*2)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	in := strings.Join(placeholders, ",")
	for _, id := range ids {
		args = append(args, id)
	}

	active := ""
	if activeOnly {
		active = " AND is_active = 1"
	}
	// #nosec G201 - placeholders only
	query := fmt.Sprintf(
		"SELECT %s FROM work_item_dependencies WHERE (work_item_id IN (%s) OR depends_on_id IN (%s))%s ORDER BY created_at ASC",
		depColumns, in, in, active,
	)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list touching dependencies: %w", err)
	}
	return s.scanDependencies(rows)
}

// GetDependency returns one edge regardless of active state, or nil
// when absent.
func (s *queries) GetDependency(ctx context.Context, key types.DependencyKey) (*types.Dependency, error) {
	query := "SELECT " + depColumns + " FROM work_item_dependencies WHERE work_item_id = ? AND depends_on_id = ?"
	dep, err := scanDependency(s.q.QueryRowContext(ctx, query, key.WorkItemID, key.DependsOnID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dependency: %w", err)
	}
	return dep, nil
}

// UpsertDependency inserts the edge or, on conflict, reactivates it
// and updates its type and updated_at.
func (s *queries) UpsertDependency(ctx context.Context, dep *types.Dependency) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO work_item_dependencies (work_item_id, depends_on_id, dep_type, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(work_item_id, depends_on_id) DO UPDATE SET
			dep_type = excluded.dep_type,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`,
		dep.WorkItemID, dep.DependsOnID, dep.Type, boolToInt(dep.IsActive),
		storage.EncodeTime(dep.CreatedAt), storage.EncodeTime(dep.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert dependency: %w", err)
	}
	return nil
}

// DeactivateDependencies flips is_active off for the given edges.
func (s *queries) DeactivateDependencies(ctx context.Context, keys []types.DependencyKey) error {
	for _, key := range keys {
		_, err := s.q.ExecContext(ctx,
			"UPDATE work_item_dependencies SET is_active = 0 WHERE work_item_id = ? AND depends_on_id = ?",
			key.WorkItemID, key.DependsOnID,
		)
		if err != nil {
			return fmt.Errorf("failed to deactivate dependency %s: %w", key.RecordID(), err)
		}
	}
	return nil
}
