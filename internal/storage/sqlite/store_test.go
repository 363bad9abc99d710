package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mkropat/tasktree/internal/storage"
	"github.com/mkropat/tasktree/internal/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var testClock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makeItem(id string, parentID *string, orderKey string) *types.WorkItem {
	return &types.WorkItem{
		ID:        id,
		ParentID:  parentID,
		Name:      "item " + id,
		Status:    types.StatusTodo,
		Priority:  types.PriorityMedium,
		OrderKey:  orderKey,
		IsActive:  true,
		CreatedAt: testClock,
		UpdatedAt: testClock,
	}
}

func insertItem(t *testing.T, s *SQLiteStore, item *types.WorkItem) {
	t.Helper()
	err := s.InTransaction(context.Background(), func(tx storage.Tx) error {
		return tx.InsertWorkItem(context.Background(), item)
	})
	if err != nil {
		t.Fatalf("failed to insert %s: %v", item.ID, err)
	}
}

func TestGetWorkItem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := makeItem("p1", nil, "V")
	desc := "details"
	item.Description = &desc
	due := time.Date(2026, 4, 1, 9, 30, 0, 123456789, time.UTC)
	item.DueAt = &due
	insertItem(t, s, item)

	got, err := s.GetWorkItem(ctx, "p1", true)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected item, got nil")
	}
	if got.Name != "item p1" || got.Description == nil || *got.Description != "details" {
		t.Errorf("unexpected fields: %+v", got)
	}
	if got.DueAt == nil || !got.DueAt.Equal(due) {
		t.Errorf("due date did not round-trip: %v", got.DueAt)
	}
	if !got.CreatedAt.Equal(testClock) {
		t.Errorf("created_at did not round-trip: %v", got.CreatedAt)
	}

	missing, err := s.GetWorkItem(ctx, "nope", true)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing item, got %+v", missing)
	}
}

func TestGetWorkItemActiveOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := makeItem("p1", nil, "V")
	item.IsActive = false
	insertItem(t, s, item)

	got, err := s.GetWorkItem(ctx, "p1", true)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Errorf("activeOnly should hide inactive item, got %+v", got)
	}

	got, err = s.GetWorkItem(ctx, "p1", false)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil || got.IsActive {
		t.Errorf("expected inactive item, got %+v", got)
	}
}

func TestListChildrenOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertItem(t, s, makeItem("p", nil, "V"))
	parent := "p"
	insertItem(t, s, makeItem("c2", &parent, "W"))
	insertItem(t, s, makeItem("c1", &parent, "M"))
	insertItem(t, s, makeItem("c3", &parent, "X"))

	children, err := s.ListChildren(ctx, &parent, true, nil)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	want := []string{"c1", "c2", "c3"}
	if len(children) != len(want) {
		t.Fatalf("expected %d children, got %d", len(want), len(children))
	}
	for i, id := range want {
		if children[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, children[i].ID)
		}
	}

	roots, err := s.ListChildren(ctx, nil, true, nil)
	if err != nil {
		t.Fatalf("list roots failed: %v", err)
	}
	if len(roots) != 1 || roots[0].ID != "p" {
		t.Errorf("expected single root p, got %+v", roots)
	}
}

func TestListDescendants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertItem(t, s, makeItem("p", nil, "V"))
	p := "p"
	insertItem(t, s, makeItem("a", &p, "V"))
	a := "a"
	insertItem(t, s, makeItem("a1", &a, "V"))
	inactive := makeItem("a2", &a, "W")
	inactive.IsActive = false
	insertItem(t, s, inactive)
	insertItem(t, s, makeItem("other", nil, "W"))

	got, err := s.ListDescendants(ctx, "p")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	ids := map[string]bool{}
	for _, item := range got {
		ids[item.ID] = true
	}
	if len(got) != 3 || !ids["a"] || !ids["a1"] || !ids["a2"] {
		t.Errorf("expected a, a1, a2, got %v", ids)
	}
}

func TestUpdateWorkItemFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertItem(t, s, makeItem("p", nil, "V"))

	err := s.InTransaction(ctx, func(tx storage.Tx) error {
		return tx.UpdateWorkItemFields(ctx, "p", map[string]any{
			"name":       "renamed",
			"status":     string(types.StatusDone),
			"updated_at": testClock.Add(time.Hour),
		})
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, _ := s.GetWorkItem(ctx, "p", true)
	if got.Name != "renamed" || got.Status != types.StatusDone {
		t.Errorf("update not applied: %+v", got)
	}
	if !got.UpdatedAt.Equal(testClock.Add(time.Hour)) {
		t.Errorf("updated_at not applied: %v", got.UpdatedAt)
	}

	err = s.InTransaction(ctx, func(tx storage.Tx) error {
		return tx.UpdateWorkItemFields(ctx, "missing", map[string]any{"name": "x"})
	})
	if err != types.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSoftDeleteItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertItem(t, s, makeItem("a", nil, "V"))
	insertItem(t, s, makeItem("b", nil, "W"))

	err := s.InTransaction(ctx, func(tx storage.Tx) error {
		return tx.SoftDeleteItems(ctx, []string{"a"})
	})
	if err != nil {
		t.Fatalf("soft delete failed: %v", err)
	}

	a, _ := s.GetWorkItem(ctx, "a", false)
	if a.IsActive {
		t.Error("a should be inactive")
	}
	if !a.UpdatedAt.Equal(testClock) {
		t.Errorf("soft delete must not touch updated_at, got %v", a.UpdatedAt)
	}
	b, _ := s.GetWorkItem(ctx, "b", true)
	if b == nil {
		t.Error("b should still be active")
	}
}

func TestSiblingAndNeighbourKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertItem(t, s, makeItem("p", nil, "V"))
	p := "p"
	insertItem(t, s, makeItem("a", &p, "V"))
	insertItem(t, s, makeItem("b", &p, "W"))
	insertItem(t, s, makeItem("c", &p, "X"))

	first, err := s.SiblingEdgeOrderKey(ctx, &p, false)
	if err != nil || first == nil || *first != "V" {
		t.Errorf("expected first key V, got %v (%v)", first, err)
	}
	last, err := s.SiblingEdgeOrderKey(ctx, &p, true)
	if err != nil || last == nil || *last != "X" {
		t.Errorf("expected last key X, got %v (%v)", last, err)
	}

	empty := "a"
	none, err := s.SiblingEdgeOrderKey(ctx, &empty, true)
	if err != nil || none != nil {
		t.Errorf("expected nil for childless parent, got %v (%v)", none, err)
	}

	// Slot after b sits between b and c.
	before, after, err := s.NeighbourOrderKeys(ctx, &p, "b", true)
	if err != nil {
		t.Fatalf("neighbour keys failed: %v", err)
	}
	if before == nil || *before != "W" || after == nil || *after != "X" {
		t.Errorf("expected (W, X), got (%v, %v)", before, after)
	}

	// Slot before a has nothing on the left.
	before, after, err = s.NeighbourOrderKeys(ctx, &p, "a", false)
	if err != nil {
		t.Fatalf("neighbour keys failed: %v", err)
	}
	if before != nil || after == nil || *after != "V" {
		t.Errorf("expected (nil, V), got (%v, %v)", before, after)
	}

	_, _, err = s.NeighbourOrderKeys(ctx, &p, "missing", true)
	if err != types.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListSiblingsExcludesSelf(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertItem(t, s, makeItem("p", nil, "V"))
	p := "p"
	insertItem(t, s, makeItem("a", &p, "V"))
	insertItem(t, s, makeItem("b", &p, "W"))

	sibs, err := s.ListSiblings(ctx, "a", &p, true)
	if err != nil {
		t.Fatalf("list siblings failed: %v", err)
	}
	if len(sibs) != 1 || sibs[0].ID != "b" {
		t.Errorf("expected only b, got %+v", sibs)
	}
}

func TestDependencyUpsertAndReactivate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertItem(t, s, makeItem("a", nil, "V"))
	insertItem(t, s, makeItem("b", nil, "W"))

	dep := &types.Dependency{
		WorkItemID:  "a",
		DependsOnID: "b",
		Type:        types.DepFinishToStart,
		IsActive:    true,
		CreatedAt:   testClock,
		UpdatedAt:   testClock,
	}
	err := s.InTransaction(ctx, func(tx storage.Tx) error {
		return tx.UpsertDependency(ctx, dep)
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	key := types.DependencyKey{WorkItemID: "a", DependsOnID: "b"}
	err = s.InTransaction(ctx, func(tx storage.Tx) error {
		return tx.DeactivateDependencies(ctx, []types.DependencyKey{key})
	})
	if err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	got, _ := s.GetDependency(ctx, key)
	if got == nil || got.IsActive {
		t.Fatalf("expected inactive edge, got %+v", got)
	}

	// Re-adding flips it back on and may change the type.
	dep.Type = types.DepLinked
	dep.UpdatedAt = testClock.Add(time.Hour)
	err = s.InTransaction(ctx, func(tx storage.Tx) error {
		return tx.UpsertDependency(ctx, dep)
	})
	if err != nil {
		t.Fatalf("re-upsert failed: %v", err)
	}
	got, _ = s.GetDependency(ctx, key)
	if !got.IsActive || got.Type != types.DepLinked {
		t.Errorf("expected reactivated linked edge, got %+v", got)
	}
	if !got.CreatedAt.Equal(testClock) {
		t.Errorf("created_at must survive reactivation, got %v", got.CreatedAt)
	}
}

func TestListDependenciesTouching(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		insertItem(t, s, makeItem(id, nil, "V"+id))
	}
	edges := []types.DependencyKey{
		{WorkItemID: "a", DependsOnID: "b"},
		{WorkItemID: "c", DependsOnID: "a"},
		{WorkItemID: "b", DependsOnID: "c"},
	}
	err := s.InTransaction(ctx, func(tx storage.Tx) error {
		for _, key := range edges {
			dep := &types.Dependency{
				WorkItemID:  key.WorkItemID,
				DependsOnID: key.DependsOnID,
				Type:        types.DepFinishToStart,
				IsActive:    true,
				CreatedAt:   testClock,
				UpdatedAt:   testClock,
			}
			if err := tx.UpsertDependency(ctx, dep); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	touching, err := s.ListDependenciesTouching(ctx, []string{"a"}, true)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(touching) != 2 {
		t.Fatalf("expected 2 edges touching a, got %d", len(touching))
	}
}

func TestDependencyFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertItem(t, s, makeItem("a", nil, "V"))
	insertItem(t, s, makeItem("b", nil, "W"))
	gone := makeItem("c", nil, "X")
	gone.IsActive = false
	insertItem(t, s, gone)

	err := s.InTransaction(ctx, func(tx storage.Tx) error {
		for _, target := range []string{"b", "c"} {
			dep := &types.Dependency{
				WorkItemID:  "a",
				DependsOnID: target,
				Type:        types.DepFinishToStart,
				IsActive:    true,
				CreatedAt:   testClock,
				UpdatedAt:   testClock,
			}
			if err := tx.UpsertDependency(ctx, dep); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	active := true
	deps, err := s.ListDependencies(ctx, "a", types.DependencyFilter{Active: &active, OtherActive: &active})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(deps) != 1 || deps[0].DependsOnID != "b" {
		t.Errorf("OtherActive should drop the edge to c, got %+v", deps)
	}

	dependents, err := s.ListDependents(ctx, "b", types.DependencyFilter{Active: &active})
	if err != nil {
		t.Fatalf("list dependents failed: %v", err)
	}
	if len(dependents) != 1 || dependents[0].WorkItemID != "a" {
		t.Errorf("expected a as dependent of b, got %+v", dependents)
	}
}

func TestNextTaskOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertItem(t, s, makeItem("p", nil, "V"))
	p := "p"

	a1 := makeItem("a1", &p, "V")
	insertItem(t, s, a1)

	a2 := makeItem("a2", &p, "W")
	a2.Priority = types.PriorityHigh
	insertItem(t, s, a2)

	a3 := makeItem("a3", &p, "X")
	due3 := testClock.Add(time.Hour)
	a3.DueAt = &due3
	insertItem(t, s, a3)

	a6 := makeItem("a6", &p, "Y")
	a6.Priority = types.PriorityHigh
	due6 := testClock.Add(30 * time.Minute)
	a6.DueAt = &due6
	insertItem(t, s, a6)

	// a6 is blocked on a1.
	err := s.InTransaction(ctx, func(tx storage.Tx) error {
		return tx.UpsertDependency(ctx, &types.Dependency{
			WorkItemID:  "a6",
			DependsOnID: "a1",
			Type:        types.DepFinishToStart,
			IsActive:    true,
			CreatedAt:   testClock,
			UpdatedAt:   testClock,
		})
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	next, err := s.NextTask(ctx, nil)
	if err != nil {
		t.Fatalf("next task failed: %v", err)
	}
	if next == nil || next.ID != "a3" {
		t.Fatalf("expected a3 (a6 blocked, due beats priority), got %+v", next)
	}

	// Completing a1 unblocks a6, whose earlier due date wins.
	err = s.InTransaction(ctx, func(tx storage.Tx) error {
		return tx.UpdateWorkItemFields(ctx, "a1", map[string]any{"status": string(types.StatusDone)})
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	next, err = s.NextTask(ctx, nil)
	if err != nil {
		t.Fatalf("next task failed: %v", err)
	}
	if next == nil || next.ID != "a6" {
		t.Fatalf("expected a6 after unblock, got %+v", next)
	}
}

func TestNextTaskScopeAndLinked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertItem(t, s, makeItem("p", nil, "V"))
	insertItem(t, s, makeItem("q", nil, "W"))
	p, q := "p", "q"
	insertItem(t, s, makeItem("pa", &p, "V"))
	insertItem(t, s, makeItem("qa", &q, "V"))

	// Linked edges never block.
	err := s.InTransaction(ctx, func(tx storage.Tx) error {
		return tx.UpsertDependency(ctx, &types.Dependency{
			WorkItemID:  "pa",
			DependsOnID: "qa",
			Type:        types.DepLinked,
			IsActive:    true,
			CreatedAt:   testClock,
			UpdatedAt:   testClock,
		})
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	next, err := s.NextTask(ctx, &p)
	if err != nil {
		t.Fatalf("next task failed: %v", err)
	}
	if next == nil || next.ID != "pa" {
		t.Fatalf("expected pa within scope p, got %+v", next)
	}

	// The scope item itself is a candidate.
	pa := "pa"
	next, err = s.NextTask(ctx, &pa)
	if err != nil {
		t.Fatalf("next task failed: %v", err)
	}
	if next == nil || next.ID != "pa" {
		t.Fatalf("expected scope item itself, got %+v", next)
	}

	missing := "missing"
	next, err = s.NextTask(ctx, &missing)
	if err != nil {
		t.Fatalf("next task failed: %v", err)
	}
	if next != nil {
		t.Fatalf("expected nil for non-existent scope, got %+v", next)
	}
}

func TestActionHistoryAndUndoCandidates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var id1, id2 int64
	err := s.InTransaction(ctx, func(tx storage.Tx) error {
		var err error
		id1, err = tx.InsertAction(ctx, &types.Action{Type: types.ActionAdd, Description: "first", CreatedAt: testClock})
		if err != nil {
			return err
		}
		id2, err = tx.InsertAction(ctx, &types.Action{Type: types.ActionUpdateFields, Description: "second", CreatedAt: testClock})
		return err
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if id2 <= id1 {
		t.Fatalf("action ids must increase: %d, %d", id1, id2)
	}

	err = s.InTransaction(ctx, func(tx storage.Tx) error {
		latest, err := tx.LatestUndoableAction(ctx)
		if err != nil {
			return err
		}
		if latest == nil || latest.ID != id2 {
			t.Fatalf("expected latest undoable %d, got %+v", id2, latest)
		}

		// Undo id2 via a meta-action.
		metaID, err := tx.InsertAction(ctx, &types.Action{Type: types.ActionUndo, Description: "undo", CreatedAt: testClock})
		if err != nil {
			return err
		}
		if err := tx.MarkActionUndone(ctx, id2, metaID); err != nil {
			return err
		}

		latest, err = tx.LatestUndoableAction(ctx)
		if err != nil {
			return err
		}
		if latest == nil || latest.ID != id1 {
			t.Fatalf("expected %d after undo, got %+v", id1, latest)
		}

		redo, err := tx.LatestRedoableAction(ctx)
		if err != nil {
			return err
		}
		if redo == nil || redo.ID != id2 {
			t.Fatalf("expected redoable %d, got %+v", id2, redo)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func TestInvalidateRedoTail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.InTransaction(ctx, func(tx storage.Tx) error {
		id1, err := tx.InsertAction(ctx, &types.Action{Type: types.ActionAdd, CreatedAt: testClock})
		if err != nil {
			return err
		}
		metaID, err := tx.InsertAction(ctx, &types.Action{Type: types.ActionUndo, CreatedAt: testClock})
		if err != nil {
			return err
		}
		if err := tx.MarkActionUndone(ctx, id1, metaID); err != nil {
			return err
		}

		// A fresh mutation invalidates the redo tail.
		id3, err := tx.InsertAction(ctx, &types.Action{Type: types.ActionUpdateFields, CreatedAt: testClock})
		if err != nil {
			return err
		}
		if err := tx.InvalidateRedoTail(ctx, id3); err != nil {
			return err
		}

		redo, err := tx.LatestRedoableAction(ctx)
		if err != nil {
			return err
		}
		if redo != nil {
			t.Fatalf("expected no redoable action, got %+v", redo)
		}

		// The action stays undone, its pointer now names the mutation.
		a, err := tx.GetAction(ctx, id1)
		if err != nil {
			return err
		}
		if !a.IsUndone || a.UndoneAtActionID == nil || *a.UndoneAtActionID != id3 {
			t.Fatalf("expected invalidated pointer %d, got %+v", id3, a)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func TestUndoStepsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.InTransaction(ctx, func(tx storage.Tx) error {
		id, err := tx.InsertAction(ctx, &types.Action{Type: types.ActionAdd, CreatedAt: testClock})
		if err != nil {
			return err
		}
		steps := []*types.UndoStep{
			{ActionID: id, StepOrder: 1, Type: types.StepUpdate, TableName: "work_items", RecordID: "a",
				OldData: map[string]any{"is_active": false},
				NewData: map[string]any{"id": "a", "name": "task", "is_active": true}},
			{ActionID: id, StepOrder: 2, Type: types.StepUpdate, TableName: "work_item_dependencies", RecordID: "a:b",
				OldData: map[string]any{"is_active": true},
				NewData: map[string]any{"is_active": false}},
		}
		for _, step := range steps {
			if err := tx.InsertUndoStep(ctx, step); err != nil {
				return err
			}
		}

		got, err := tx.ListUndoSteps(ctx, id)
		if err != nil {
			return err
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 steps, got %d", len(got))
		}
		if got[0].StepOrder != 1 || got[1].StepOrder != 2 {
			t.Fatalf("steps out of order: %+v", got)
		}
		if got[0].NewData["name"] != "task" {
			t.Errorf("new data did not round-trip: %+v", got[0].NewData)
		}
		if got[1].RecordID != "a:b" {
			t.Errorf("composite record id did not round-trip: %q", got[1].RecordID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func TestWriteRowUpdateAndInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertItem(t, s, makeItem("a", nil, "V"))

	// UPDATE path.
	err := s.InTransaction(ctx, func(tx storage.Tx) error {
		return tx.WriteRow(ctx, "work_items", "a", map[string]any{"name": "rewritten", "is_active": false})
	})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	got, _ := s.GetWorkItem(ctx, "a", false)
	if got.Name != "rewritten" || got.IsActive {
		t.Errorf("update not applied: %+v", got)
	}

	// INSERT path: the row does not exist, the snapshot is a full row.
	err = s.InTransaction(ctx, func(tx storage.Tx) error {
		return tx.WriteRow(ctx, "work_items", "b", map[string]any{
			"id": "b", "name": "restored", "status": "todo", "priority": "low",
			"order_key": "W", "is_active": true,
			"created_at": storage.EncodeTime(testClock),
			"updated_at": storage.EncodeTime(testClock),
		})
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	got, _ = s.GetWorkItem(ctx, "b", true)
	if got == nil || got.Name != "restored" || got.Priority != types.PriorityLow {
		t.Errorf("insert not applied: %+v", got)
	}

	err = s.InTransaction(ctx, func(tx storage.Tx) error {
		return tx.WriteRow(ctx, "no_such_table", "x", map[string]any{"a": 1})
	})
	if err == nil {
		t.Error("expected error for unknown table")
	}
}

func TestDeleteRowCompositeKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertItem(t, s, makeItem("a", nil, "V"))
	insertItem(t, s, makeItem("b", nil, "W"))
	err := s.InTransaction(ctx, func(tx storage.Tx) error {
		return tx.UpsertDependency(ctx, &types.Dependency{
			WorkItemID: "a", DependsOnID: "b", Type: types.DepFinishToStart,
			IsActive: true, CreatedAt: testClock, UpdatedAt: testClock,
		})
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	err = s.InTransaction(ctx, func(tx storage.Tx) error {
		return tx.DeleteRow(ctx, "work_item_dependencies", "a:b")
	})
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	dep, _ := s.GetDependency(ctx, types.DependencyKey{WorkItemID: "a", DependsOnID: "b"})
	if dep != nil {
		t.Errorf("expected edge gone, got %+v", dep)
	}
}

func TestTransactionRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wantErr := context.DeadlineExceeded
	err := s.InTransaction(ctx, func(tx storage.Tx) error {
		if err := tx.InsertWorkItem(ctx, makeItem("a", nil, "V")); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected fn error back, got %v", err)
	}

	got, err := s.GetWorkItem(ctx, "a", false)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Errorf("rollback should discard the insert, got %+v", got)
	}
}

func TestListActionsFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	times := []time.Time{
		testClock,
		testClock.Add(time.Hour),
		testClock.Add(2 * time.Hour),
	}
	err := s.InTransaction(ctx, func(tx storage.Tx) error {
		for _, at := range times {
			if _, err := tx.InsertAction(ctx, &types.Action{Type: types.ActionAdd, CreatedAt: at}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	all, err := s.ListActions(ctx, types.HistoryFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 3 || all[0].ID < all[2].ID {
		t.Fatalf("expected 3 actions newest first, got %+v", all)
	}

	start := testClock.Add(30 * time.Minute)
	filtered, err := s.ListActions(ctx, types.HistoryFilter{StartDate: &start, Limit: 1})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(filtered) != 1 || !filtered[0].CreatedAt.Equal(times[2]) {
		t.Fatalf("expected newest post-start action, got %+v", filtered)
	}
}

func TestSchemaVersionGate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "versioned.db")

	s, err := New(ctx, path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		t.Fatalf("failed to read user_version: %v", err)
	}
	if v != schemaVersion {
		t.Fatalf("user_version = %d, want %d", v, schemaVersion)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Reopening an up-to-date database works.
	s, err = New(ctx, path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion+1)); err != nil {
		t.Fatalf("failed to bump user_version: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// A database written by a newer build is refused.
	if _, err := New(ctx, path); err == nil {
		t.Fatal("expected an error for a newer schema version")
	}
}
