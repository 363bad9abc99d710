package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mkropat/tasktree/internal/history"
	"github.com/mkropat/tasktree/internal/orderkey"
	"github.com/mkropat/tasktree/internal/storage"
	"github.com/mkropat/tasktree/internal/types"
)

// Placement selects where a new or moved item lands in its sibling
// list. At most one directive may be set; the default is the end.
type Placement struct {
	At       string // "start" or "end"
	AfterID  string
	BeforeID string
}

func (p Placement) validate() error {
	set := 0
	if p.At != "" {
		if p.At != "start" && p.At != "end" {
			return types.Validationf("invalid insertAt value %q", p.At)
		}
		set++
	}
	if p.AfterID != "" {
		set++
	}
	if p.BeforeID != "" {
		set++
	}
	if set > 1 {
		return types.Validationf("insertAt, insertAfter and insertBefore are mutually exclusive")
	}
	return nil
}

// AddItemParams describes one work item to create. A nil ParentID
// creates a root project.
type AddItemParams struct {
	ParentID     *string
	Name         string
	Description  *string
	Status       types.Status
	Priority     types.Priority
	DueDate      *time.Time
	Dependencies []types.DependencySpec
	Placement    Placement
}

// ChildSpec describes one node of a child-task tree for AddChildTasks.
type ChildSpec struct {
	Name        string
	Description *string
	Status      types.Status
	Priority    types.Priority
	DueDate     *time.Time
	Children    []ChildSpec
}

// CreateProject creates a new root project at the end of the root
// list.
func (e *Engine) CreateProject(ctx context.Context, name string, description *string) (*types.WorkItem, error) {
	return e.AddWorkItem(ctx, AddItemParams{Name: name, Description: description})
}

// AddWorkItem creates one item, optionally with dependencies, in one
// transaction and one action.
func (e *Engine) AddWorkItem(ctx context.Context, p AddItemParams) (*types.WorkItem, error) {
	if err := p.Placement.validate(); err != nil {
		return nil, err
	}

	var created *types.WorkItem
	var actionID int64
	err := e.store.InTransaction(ctx, func(tx storage.Tx) error {
		item, steps, err := e.buildItem(ctx, tx, p)
		if err != nil {
			return err
		}

		for _, spec := range p.Dependencies {
			step, err := e.upsertDependencyEdge(ctx, tx, item.ID, spec)
			if err != nil {
				return err
			}
			steps = append(steps, step)
		}

		kind := "task"
		if item.IsRoot() {
			kind = "project"
		}
		actionID, err = history.Record(ctx, tx, &types.Action{
			Type:        types.ActionAdd,
			Description: fmt.Sprintf("Added %s %q", kind, item.Name),
			WorkItemID:  &item.ID,
			CreatedAt:   e.now(),
		}, steps)
		if err != nil {
			return err
		}
		created = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(actionID, types.ActionAdd, created.ID)
	return created, nil
}

// AddChildTasks creates a tree of tasks under one parent in a single
// transaction and action, returning the created items in depth-first
// order.
func (e *Engine) AddChildTasks(ctx context.Context, parentID string, children []ChildSpec) ([]*types.WorkItem, error) {
	if len(children) == 0 {
		return nil, types.Validationf("child_tasks_tree must not be empty")
	}
	if err := validateChildTree(children); err != nil {
		return nil, err
	}

	var created []*types.WorkItem
	var actionID int64
	err := e.store.InTransaction(ctx, func(tx storage.Tx) error {
		parent, err := requireActiveItem(ctx, tx, "parent item", parentID)
		if err != nil {
			return err
		}
		if parent.Status == types.StatusDone {
			return types.Validationf("cannot add children to item %s because its status is done", parentID)
		}

		var steps []history.Step
		created, steps, err = e.insertChildTree(ctx, tx, parent.ID, children)
		if err != nil {
			return err
		}

		actionID, err = history.Record(ctx, tx, &types.Action{
			Type:        types.ActionAdd,
			Description: fmt.Sprintf("Added %d tasks under %q", len(created), parent.Name),
			WorkItemID:  &parent.ID,
			CreatedAt:   e.now(),
		}, steps)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.publish(actionID, types.ActionAdd, parentID)
	return created, nil
}

// validateChildTree rejects nested nodes that arrive done yet carry
// children. A done item cannot take children, whether it exists
// already or is created by the same call.
func validateChildTree(specs []ChildSpec) error {
	for _, spec := range specs {
		if spec.Status == types.StatusDone && len(spec.Children) > 0 {
			return types.Validationf("cannot add children to item %q because its status is done", spec.Name)
		}
		if err := validateChildTree(spec.Children); err != nil {
			return err
		}
	}
	return nil
}

// insertChildTree inserts specs depth-first under parentID, appending
// each level after the parent's current last child.
func (e *Engine) insertChildTree(ctx context.Context, tx storage.Tx, parentID string, specs []ChildSpec) ([]*types.WorkItem, []history.Step, error) {
	lastKey, err := tx.SiblingEdgeOrderKey(ctx, &parentID, true)
	if err != nil {
		return nil, nil, err
	}

	var created []*types.WorkItem
	var steps []history.Step
	for _, spec := range specs {
		item, err := e.newItem(&parentID, spec.Name, spec.Description, spec.Status, spec.Priority, spec.DueDate)
		if err != nil {
			return nil, nil, err
		}
		item.OrderKey, err = orderkey.Calculate(lastKey, nil)
		if err != nil {
			return nil, nil, err
		}
		lastKey = &item.OrderKey

		if err := tx.InsertWorkItem(ctx, item); err != nil {
			return nil, nil, err
		}
		created = append(created, item)
		steps = append(steps, history.Update("work_items", item.ID,
			map[string]any{"is_active": false}, itemRow(item)))

		childItems, childSteps, err := e.insertChildTree(ctx, tx, item.ID, spec.Children)
		if err != nil {
			return nil, nil, err
		}
		created = append(created, childItems...)
		steps = append(steps, childSteps...)
	}
	return created, steps, nil
}

// buildItem validates, positions, and inserts one item, returning it
// with its creation step.
func (e *Engine) buildItem(ctx context.Context, tx storage.Tx, p AddItemParams) (*types.WorkItem, []history.Step, error) {
	if p.ParentID != nil {
		parent, err := requireActiveItem(ctx, tx, "parent item", *p.ParentID)
		if err != nil {
			return nil, nil, err
		}
		if parent.Status == types.StatusDone {
			return nil, nil, types.Validationf("cannot add a child to item %s because its status is done", parent.ID)
		}
	}

	item, err := e.newItem(p.ParentID, p.Name, p.Description, p.Status, p.Priority, p.DueDate)
	if err != nil {
		return nil, nil, err
	}

	before, after, err := e.insertionNeighbours(ctx, tx, p.ParentID, p.Placement)
	if err != nil {
		return nil, nil, err
	}
	item.OrderKey, err = orderkey.Calculate(before, after)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.InsertWorkItem(ctx, item); err != nil {
		return nil, nil, err
	}
	steps := []history.Step{history.Update("work_items", item.ID,
		map[string]any{"is_active": false}, itemRow(item))}
	return item, steps, nil
}

// newItem builds an in-memory item with defaults applied.
func (e *Engine) newItem(parentID *string, name string, description *string, status types.Status, priority types.Priority, dueDate *time.Time) (*types.WorkItem, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateDescription(description); err != nil {
		return nil, err
	}
	if status == "" {
		status = types.StatusTodo
	} else if !types.ValidStatus(status) {
		return nil, types.Validationf("invalid status %q", status)
	}
	if priority == "" {
		priority = types.PriorityMedium
	} else if !types.ValidPriority(priority) {
		return nil, types.Validationf("invalid priority %q", priority)
	}

	now := e.now()
	return &types.WorkItem{
		ID:          e.newID(),
		ParentID:    parentID,
		Name:        name,
		Description: description,
		Status:      status,
		Priority:    priority,
		DueAt:       dueDate,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// insertionNeighbours resolves a placement directive to the order-key
// pair bracketing the insertion slot.
func (e *Engine) insertionNeighbours(ctx context.Context, tx storage.Tx, parentID *string, p Placement) (*string, *string, error) {
	switch {
	case p.AfterID != "" || p.BeforeID != "":
		after := p.AfterID != ""
		refID := p.AfterID
		if !after {
			refID = p.BeforeID
		}
		ref, err := requireActiveItem(ctx, tx, "reference item", refID)
		if err != nil {
			return nil, nil, err
		}
		if !sameParent(ref.ParentID, parentID) {
			return nil, nil, types.Validationf("reference item %s is not a sibling", refID)
		}
		return tx.NeighbourOrderKeys(ctx, parentID, refID, after)
	case p.At == "start":
		first, err := tx.SiblingEdgeOrderKey(ctx, parentID, false)
		if err != nil {
			return nil, nil, err
		}
		return nil, first, nil
	default:
		last, err := tx.SiblingEdgeOrderKey(ctx, parentID, true)
		if err != nil {
			return nil, nil, err
		}
		return last, nil, nil
	}
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
