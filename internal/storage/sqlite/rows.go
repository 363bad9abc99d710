package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mkropat/tasktree/internal/storage"
)

// tableInfo describes how undo-step replay addresses a table. Composite
// record ids are ':'-delimited in primary-key column order.
type tableInfo struct {
	pk      []string
	columns map[string]bool
}

var tableRegistry = map[string]tableInfo{
	"work_items": {
		pk: []string{"id"},
		columns: set("id", "parent_id", "name", "description", "status",
			"priority", "due_at", "order_key", "is_active", "created_at", "updated_at"),
	},
	"work_item_dependencies": {
		pk: []string{"work_item_id", "depends_on_id"},
		columns: set("work_item_id", "depends_on_id", "dep_type",
			"is_active", "created_at", "updated_at"),
	},
}

func set(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

func workItemColumn(col string) bool {
	return tableRegistry["work_items"].columns[col]
}

// encodeValue converts Go values to their SQLite representation:
// booleans become 0/1, timestamps the canonical text encoding.
// JSON-decoded numbers pass through as float64; SQLite stores them
// losslessly for the integer ranges in play here.
func encodeValue(v any) any {
	switch val := v.(type) {
	case bool:
		return boolToInt(val)
	case time.Time:
		return storage.EncodeTime(val)
	case *time.Time:
		if val == nil {
			return nil
		}
		return storage.EncodeTime(*val)
	case *string:
		if val == nil {
			return nil
		}
		return *val
	default:
		return v
	}
}

// splitRecordID splits a composite record id against the table's
// primary-key columns.
func splitRecordID(info tableInfo, recordID string) ([]string, error) {
	parts := strings.Split(recordID, ":")
	if len(parts) != len(info.pk) {
		return nil, fmt.Errorf("record id %q does not match primary key %v", recordID, info.pk)
	}
	return parts, nil
}

// WriteRow applies a column snapshot to the addressed row. Existing
// rows get an UPDATE of the snapshot's columns; missing rows get an
// INSERT with the primary key filled in from recordID when the
// snapshot omits it.
func (s *queries) WriteRow(ctx context.Context, table, recordID string, data map[string]any) error {
	info, ok := tableRegistry[table]
	if !ok {
		return fmt.Errorf("unknown table %q", table)
	}
	pkValues, err := splitRecordID(info, recordID)
	if err != nil {
		return err
	}

	cols := make([]string, 0, len(data))
	for col := range data {
		if !info.columns[col] {
			return fmt.Errorf("unknown column %q in table %q", col, table)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	pkSet := set(info.pk...)
	sets := make([]string, 0, len(cols))
	setArgs := make([]any, 0, len(cols)+len(info.pk))
	for _, col := range cols {
		if pkSet[col] {
			continue
		}
		sets = append(sets, col+" = ?")
		setArgs = append(setArgs, encodeValue(data[col]))
	}

	whereParts := make([]string, len(info.pk))
	for i, col := range info.pk {
		whereParts[i] = col + " = ?"
		setArgs = append(setArgs, pkValues[i])
	}
	where := strings.Join(whereParts, " AND ")

	if len(sets) > 0 {
		// #nosec G201 - column names validated against the registry
		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), where)
		res, err := s.q.ExecContext(ctx, query, setArgs...)
		if err != nil {
			return fmt.Errorf("failed to write row %s/%s: %w", table, recordID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n > 0 {
			return nil
		}
	}

	// Row absent: insert the snapshot, filling primary-key columns
	// from the record id where the snapshot omits them.
	insert := make(map[string]any, len(data)+len(info.pk))
	for col, v := range data {
		insert[col] = encodeValue(v)
	}
	for i, col := range info.pk {
		if _, ok := insert[col]; !ok {
			insert[col] = pkValues[i]
		}
	}

	insertCols := make([]string, 0, len(insert))
	for col := range insert {
		insertCols = append(insertCols, col)
	}
	sort.Strings(insertCols)

	placeholders := make([]string, len(insertCols))
	insertArgs := make([]any, len(insertCols))
	for i, col := range insertCols {
		placeholders[i] = "?"
		insertArgs[i] = insert[col]
	}
	// #nosec G201 - column names validated against the registry
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(insertCols, ", "), strings.Join(placeholders, ", "))
	if _, err := s.q.ExecContext(ctx, query, insertArgs...); err != nil {
		return fmt.Errorf("failed to insert row %s/%s: %w", table, recordID, err)
	}
	return nil
}

// DeleteRow removes the addressed row by primary key.
func (s *queries) DeleteRow(ctx context.Context, table, recordID string) error {
	info, ok := tableRegistry[table]
	if !ok {
		return fmt.Errorf("unknown table %q", table)
	}
	pkValues, err := splitRecordID(info, recordID)
	if err != nil {
		return err
	}

	whereParts := make([]string, len(info.pk))
	args := make([]any, len(info.pk))
	for i, col := range info.pk {
		whereParts[i] = col + " = ?"
		args[i] = pkValues[i]
	}
	// #nosec G201 - column names validated against the registry
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", table, strings.Join(whereParts, " AND "))
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete row %s/%s: %w", table, recordID, err)
	}
	return nil
}
