// Package types defines the core data structures for tasktree:
// work items, dependencies, actions, and undo steps.
package types

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a work item.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
)

// ValidStatus checks if a status value is valid.
func ValidStatus(s Status) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusReview, StatusDone:
		return true
	}
	return false
}

// Priority represents work item priority.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ValidPriority checks if a priority value is valid.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank returns the scheduling rank of a priority; lower sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// DependencyType represents the type of a dependency edge.
type DependencyType string

const (
	// DepFinishToStart blocks scheduling of the dependent item until
	// the target is done.
	DepFinishToStart DependencyType = "finish-to-start"
	// DepLinked is an informational cross-reference; it never blocks
	// scheduling. Promotion leaves one behind from the original
	// parent to the promoted item.
	DepLinked DependencyType = "linked"
)

// ValidDependencyType checks if a dependency type value is valid.
func ValidDependencyType(t DependencyType) bool {
	return t == DepFinishToStart || t == DepLinked
}

// WorkItem is the single node type, used for both projects (roots)
// and tasks (non-roots). An item with a nil ParentID is a root
// project.
type WorkItem struct {
	ID          string     `json:"work_item_id"`
	ParentID    *string    `json:"parent_work_item_id"`
	Name        string     `json:"name"`
	Description *string    `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	DueAt       *time.Time `json:"due_date"`
	OrderKey    string     `json:"order_key"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsRoot reports whether the item is a root project.
func (w *WorkItem) IsRoot() bool {
	return w.ParentID == nil
}

// Dependency is a typed directed edge between two work items.
// WorkItemID depends on DependsOnID.
type Dependency struct {
	WorkItemID  string         `json:"work_item_id"`
	DependsOnID string         `json:"depends_on_work_item_id"`
	Type        DependencyType `json:"dependency_type"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// DependencyKey identifies one dependency edge.
type DependencyKey struct {
	WorkItemID  string
	DependsOnID string
}

// RecordID returns the delimited composite key used by undo steps
// for dependency rows.
func (k DependencyKey) RecordID() string {
	return k.WorkItemID + ":" + k.DependsOnID
}

// ActionType identifies the kind of a user-initiated mutation.
type ActionType string

const (
	ActionAdd                ActionType = "ADD"
	ActionUpdateFields       ActionType = "UPDATE_FIELDS"
	ActionDeleteSubtree      ActionType = "DELETE_SUBTREE"
	ActionMove               ActionType = "MOVE"
	ActionPromote            ActionType = "PROMOTE"
	ActionAddDependencies    ActionType = "ADD_DEPENDENCIES"
	ActionDeleteDependencies ActionType = "DELETE_DEPENDENCIES"
	ActionUndo               ActionType = "UNDO_ACTION"
	ActionRedo               ActionType = "REDO_ACTION"
)

// IsMeta reports whether the action type is an undo/redo meta-action.
// Meta-actions carry no undo steps and never invalidate the redo tail.
func (t ActionType) IsMeta() bool {
	return t == ActionUndo || t == ActionRedo
}

// Action is one recorded mutation. IsUndone means the action's effect
// is currently reverted. UndoneAtActionID points at the meta-action
// that last reverted it, or at the mutation that invalidated it for
// redo.
type Action struct {
	ID               int64      `json:"action_id"`
	Type             ActionType `json:"action_type"`
	Description      string     `json:"description"`
	WorkItemID       *string    `json:"work_item_id"`
	CreatedAt        time.Time  `json:"created_at"`
	IsUndone         bool       `json:"is_undone"`
	UndoneAtActionID *int64     `json:"undone_at_action_id"`
}

// StepType describes the forward operation an undo step recorded.
// Undo applies the inverse; redo re-applies the forward direction.
type StepType string

const (
	StepUpdate StepType = "UPDATE"
	StepInsert StepType = "INSERT"
	StepDelete StepType = "DELETE"
)

// UndoStep is one row-level inverse fragment within an action.
// OldData and NewData are column-name keyed snapshots; during undo
// steps are applied in reverse StepOrder.
type UndoStep struct {
	ID        int64          `json:"id"`
	ActionID  int64          `json:"action_id"`
	StepOrder int            `json:"step_order"`
	Type      StepType       `json:"step_type"`
	TableName string         `json:"table_name"`
	RecordID  string         `json:"record_id"`
	OldData   map[string]any `json:"old_data"`
	NewData   map[string]any `json:"new_data"`
}

// TreeNode is one node of an assembled project tree. Children are
// ordered; linked-projection nodes carry the " (L)" name suffix.
type TreeNode struct {
	WorkItem
	Dependencies []*Dependency `json:"dependencies"`
	Dependents   []*Dependency `json:"dependents"`
	Children     []*TreeNode   `json:"children"`
}

// ItemFilter narrows list queries over work items.
type ItemFilter struct {
	ParentID  *string
	RootsOnly bool
	Status    *Status
	IsActive  *bool
}

// DependencyFilter narrows dependency edge queries.
type DependencyFilter struct {
	Active *bool
	Type   *DependencyType
	// OtherActive additionally requires the far endpoint (target for
	// dependencies, source for dependents) to be active.
	OtherActive *bool
}

// HistoryFilter narrows action history queries.
type HistoryFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
}

// DependencySpec names one dependency to add.
type DependencySpec struct {
	DependsOnID string
	Type        DependencyType
}

func (d DependencySpec) String() string {
	return fmt.Sprintf("%s (%s)", d.DependsOnID, d.Type)
}
