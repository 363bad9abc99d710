package mcpserver

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mkropat/tasktree/internal/engine"
	"github.com/mkropat/tasktree/internal/timeparsing"
	"github.com/mkropat/tasktree/internal/types"
)

type dependencyIn struct {
	DependsOnWorkItemID string `json:"depends_on_work_item_id" jsonschema:"Id of the work item to depend on"`
	DependencyType      string `json:"dependency_type,omitempty" jsonschema:"finish-to-start (default) or linked"`
}

func toDependencySpecs(in []dependencyIn) []types.DependencySpec {
	specs := make([]types.DependencySpec, 0, len(in))
	for _, dep := range in {
		specs = append(specs, types.DependencySpec{
			DependsOnID: dep.DependsOnWorkItemID,
			Type:        types.DependencyType(dep.DependencyType),
		})
	}
	return specs
}

// parseDueDate maps the wire value to an optional timestamp. An empty
// string means no due date.
func (s *Server) parseDueDate(raw string) (*time.Time, error) {
	t, err := timeparsing.ParseDueDate(raw, s.now())
	if err != nil {
		return nil, types.Validationf("invalid due date %q", raw)
	}
	return t, nil
}

type createProjectIn struct {
	Name        string `json:"name" jsonschema:"Project name"`
	Description string `json:"description,omitempty" jsonschema:"Optional project description"`
}

func (s *Server) handleCreateProject(ctx context.Context, req *mcp.CallToolRequest, in createProjectIn) (*mcp.CallToolResult, any, error) {
	var description *string
	if in.Description != "" {
		description = &in.Description
	}
	item, err := s.engine.CreateProject(ctx, in.Name, description)
	if err != nil {
		return s.fail(err)
	}
	return s.result(item)
}

type addTaskIn struct {
	ParentWorkItemID string         `json:"parent_work_item_id" jsonschema:"Id of the parent work item"`
	Name             string         `json:"name" jsonschema:"Task name"`
	Description      string         `json:"description,omitempty" jsonschema:"Optional description"`
	Status           string         `json:"status,omitempty" jsonschema:"todo (default), in-progress, review or done"`
	Priority         string         `json:"priority,omitempty" jsonschema:"high, medium (default) or low"`
	DueDate          string         `json:"due_date,omitempty" jsonschema:"Optional due date; timestamp, date, compact duration (+2d) or natural language"`
	Dependencies     []dependencyIn `json:"dependencies,omitempty" jsonschema:"Optional dependencies to create with the task"`
	InsertAt         string         `json:"insertAt,omitempty" jsonschema:"start or end; mutually exclusive with insertAfter/insertBefore"`
	InsertAfter      string         `json:"insertAfter,omitempty" jsonschema:"Id of the sibling to insert after"`
	InsertBefore     string         `json:"insertBefore,omitempty" jsonschema:"Id of the sibling to insert before"`
}

func (s *Server) handleAddTask(ctx context.Context, req *mcp.CallToolRequest, in addTaskIn) (*mcp.CallToolResult, any, error) {
	if in.ParentWorkItemID == "" {
		return s.fail(types.Validationf("parent_work_item_id is required"))
	}
	dueDate, err := s.parseDueDate(in.DueDate)
	if err != nil {
		return s.fail(err)
	}
	var description *string
	if in.Description != "" {
		description = &in.Description
	}

	item, err := s.engine.AddWorkItem(ctx, engine.AddItemParams{
		ParentID:     &in.ParentWorkItemID,
		Name:         in.Name,
		Description:  description,
		Status:       types.Status(in.Status),
		Priority:     types.Priority(in.Priority),
		DueDate:      dueDate,
		Dependencies: toDependencySpecs(in.Dependencies),
		Placement: engine.Placement{
			At:       in.InsertAt,
			AfterID:  in.InsertAfter,
			BeforeID: in.InsertBefore,
		},
	})
	if err != nil {
		return s.fail(err)
	}
	return s.result(item)
}

type childTaskIn struct {
	Name        string        `json:"name" jsonschema:"Task name"`
	Description string        `json:"description,omitempty" jsonschema:"Optional description"`
	Status      string        `json:"status,omitempty" jsonschema:"todo (default), in-progress, review or done"`
	Priority    string        `json:"priority,omitempty" jsonschema:"high, medium (default) or low"`
	DueDate     string        `json:"due_date,omitempty" jsonschema:"Optional due date"`
	Children    []childTaskIn `json:"children,omitempty" jsonschema:"Nested child tasks"`
}

type addChildTasksIn struct {
	ParentWorkItemID string        `json:"parent_work_item_id" jsonschema:"Id of the parent work item"`
	ChildTasksTree   []childTaskIn `json:"child_tasks_tree" jsonschema:"Tree of tasks to create depth-first"`
}

func (s *Server) toChildSpecs(in []childTaskIn) ([]engine.ChildSpec, error) {
	specs := make([]engine.ChildSpec, 0, len(in))
	for _, node := range in {
		dueDate, err := s.parseDueDate(node.DueDate)
		if err != nil {
			return nil, err
		}
		var description *string
		if node.Description != "" {
			description = &node.Description
		}
		children, err := s.toChildSpecs(node.Children)
		if err != nil {
			return nil, err
		}
		specs = append(specs, engine.ChildSpec{
			Name:        node.Name,
			Description: description,
			Status:      types.Status(node.Status),
			Priority:    types.Priority(node.Priority),
			DueDate:     dueDate,
			Children:    children,
		})
	}
	return specs, nil
}

func (s *Server) handleAddChildTasks(ctx context.Context, req *mcp.CallToolRequest, in addChildTasksIn) (*mcp.CallToolResult, any, error) {
	specs, err := s.toChildSpecs(in.ChildTasksTree)
	if err != nil {
		return s.fail(err)
	}
	items, err := s.engine.AddChildTasks(ctx, in.ParentWorkItemID, specs)
	if err != nil {
		return s.fail(err)
	}
	return s.result(items)
}

type deleteProjectIn struct {
	ProjectID string `json:"project_id" jsonschema:"Id of the root project to delete"`
}

func (s *Server) handleDeleteProject(ctx context.Context, req *mcp.CallToolRequest, in deleteProjectIn) (*mcp.CallToolResult, any, error) {
	summary, err := s.engine.DeleteProject(ctx, in.ProjectID)
	if err != nil {
		return s.fail(err)
	}
	return s.result(summary)
}

type deleteTaskIn struct {
	WorkItemIDs []string `json:"work_item_ids" jsonschema:"Ids of the tasks to delete"`
}

func (s *Server) handleDeleteTask(ctx context.Context, req *mcp.CallToolRequest, in deleteTaskIn) (*mcp.CallToolResult, any, error) {
	summary, err := s.engine.DeleteTasks(ctx, in.WorkItemIDs)
	if err != nil {
		return s.fail(err)
	}
	return s.result(summary)
}

type deleteChildTasksIn struct {
	ParentWorkItemID  string   `json:"parent_work_item_id" jsonschema:"Id of the parent work item"`
	ChildTaskIDs      []string `json:"child_task_ids,omitempty" jsonschema:"Ids of the children to delete; mutually exclusive with delete_all_children"`
	DeleteAllChildren bool     `json:"delete_all_children,omitempty" jsonschema:"Delete every active child"`
}

func (s *Server) handleDeleteChildTasks(ctx context.Context, req *mcp.CallToolRequest, in deleteChildTasksIn) (*mcp.CallToolResult, any, error) {
	summary, err := s.engine.DeleteChildTasks(ctx, in.ParentWorkItemID, in.ChildTaskIDs, in.DeleteAllChildren)
	if err != nil {
		return s.fail(err)
	}
	return s.result(summary)
}

type setNameIn struct {
	WorkItemID string `json:"work_item_id" jsonschema:"Id of the work item"`
	Name       string `json:"name" jsonschema:"New name"`
}

func (s *Server) handleSetName(ctx context.Context, req *mcp.CallToolRequest, in setNameIn) (*mcp.CallToolResult, any, error) {
	item, err := s.engine.UpdateItem(ctx, in.WorkItemID, engine.FieldChanges{Name: &in.Name})
	if err != nil {
		return s.fail(err)
	}
	return s.result(item)
}

type setDescriptionIn struct {
	WorkItemID  string `json:"work_item_id" jsonschema:"Id of the work item"`
	Description string `json:"description" jsonschema:"New description; empty clears it"`
}

func (s *Server) handleSetDescription(ctx context.Context, req *mcp.CallToolRequest, in setDescriptionIn) (*mcp.CallToolResult, any, error) {
	changes := engine.FieldChanges{SetDescription: true}
	if in.Description != "" {
		changes.Description = &in.Description
	}
	item, err := s.engine.UpdateItem(ctx, in.WorkItemID, changes)
	if err != nil {
		return s.fail(err)
	}
	return s.result(item)
}

type setStatusIn struct {
	WorkItemID string `json:"work_item_id" jsonschema:"Id of the work item"`
	Status     string `json:"status" jsonschema:"todo, in-progress, review or done"`
}

func (s *Server) handleSetStatus(ctx context.Context, req *mcp.CallToolRequest, in setStatusIn) (*mcp.CallToolResult, any, error) {
	status := types.Status(in.Status)
	item, err := s.engine.UpdateItem(ctx, in.WorkItemID, engine.FieldChanges{Status: &status})
	if err != nil {
		return s.fail(err)
	}
	return s.result(item)
}

type setPriorityIn struct {
	WorkItemID string `json:"work_item_id" jsonschema:"Id of the work item"`
	Priority   string `json:"priority" jsonschema:"high, medium or low"`
}

func (s *Server) handleSetPriority(ctx context.Context, req *mcp.CallToolRequest, in setPriorityIn) (*mcp.CallToolResult, any, error) {
	priority := types.Priority(in.Priority)
	item, err := s.engine.UpdateItem(ctx, in.WorkItemID, engine.FieldChanges{Priority: &priority})
	if err != nil {
		return s.fail(err)
	}
	return s.result(item)
}

type setDueDateIn struct {
	WorkItemID string `json:"work_item_id" jsonschema:"Id of the work item"`
	DueDate    string `json:"due_date" jsonschema:"New due date; empty clears it"`
}

func (s *Server) handleSetDueDate(ctx context.Context, req *mcp.CallToolRequest, in setDueDateIn) (*mcp.CallToolResult, any, error) {
	dueDate, err := s.parseDueDate(in.DueDate)
	if err != nil {
		return s.fail(err)
	}
	item, err := s.engine.UpdateItem(ctx, in.WorkItemID, engine.FieldChanges{DueDate: dueDate, SetDueDate: true})
	if err != nil {
		return s.fail(err)
	}
	return s.result(item)
}

type updateTaskIn struct {
	WorkItemID  string  `json:"work_item_id" jsonschema:"Id of the work item"`
	Name        *string `json:"name,omitempty" jsonschema:"New name"`
	Description *string `json:"description,omitempty" jsonschema:"New description; empty clears it"`
	Status      *string `json:"status,omitempty" jsonschema:"New status"`
	Priority    *string `json:"priority,omitempty" jsonschema:"New priority"`
	DueDate     *string `json:"due_date,omitempty" jsonschema:"New due date; empty clears it"`
}

func (s *Server) handleUpdateTask(ctx context.Context, req *mcp.CallToolRequest, in updateTaskIn) (*mcp.CallToolResult, any, error) {
	changes := engine.FieldChanges{Name: in.Name}
	if in.Description != nil {
		changes.SetDescription = true
		if *in.Description != "" {
			changes.Description = in.Description
		}
	}
	if in.Status != nil {
		status := types.Status(*in.Status)
		changes.Status = &status
	}
	if in.Priority != nil {
		priority := types.Priority(*in.Priority)
		changes.Priority = &priority
	}
	if in.DueDate != nil {
		dueDate, err := s.parseDueDate(*in.DueDate)
		if err != nil {
			return s.fail(err)
		}
		changes.DueDate = dueDate
		changes.SetDueDate = true
	}

	item, err := s.engine.UpdateItem(ctx, in.WorkItemID, changes)
	if err != nil {
		return s.fail(err)
	}
	return s.result(item)
}

type addDependenciesIn struct {
	WorkItemID   string         `json:"work_item_id" jsonschema:"Id of the dependent work item"`
	Dependencies []dependencyIn `json:"dependencies" jsonschema:"Edges to add"`
}

func (s *Server) handleAddDependencies(ctx context.Context, req *mcp.CallToolRequest, in addDependenciesIn) (*mcp.CallToolResult, any, error) {
	item, err := s.engine.AddDependencies(ctx, in.WorkItemID, toDependencySpecs(in.Dependencies))
	if err != nil {
		return s.fail(err)
	}
	return s.result(item)
}

type deleteDependenciesIn struct {
	WorkItemID           string   `json:"work_item_id" jsonschema:"Id of the dependent work item"`
	DependsOnWorkItemIDs []string `json:"depends_on_work_item_ids" jsonschema:"Targets of the edges to remove"`
}

func (s *Server) handleDeleteDependencies(ctx context.Context, req *mcp.CallToolRequest, in deleteDependenciesIn) (*mcp.CallToolResult, any, error) {
	item, err := s.engine.DeleteDependencies(ctx, in.WorkItemID, in.DependsOnWorkItemIDs)
	if err != nil {
		return s.fail(err)
	}
	return s.result(item)
}

type promoteToProjectIn struct {
	WorkItemID string `json:"work_item_id" jsonschema:"Id of the task to promote"`
}

func (s *Server) handlePromoteToProject(ctx context.Context, req *mcp.CallToolRequest, in promoteToProjectIn) (*mcp.CallToolResult, any, error) {
	item, err := s.engine.PromoteToProject(ctx, in.WorkItemID)
	if err != nil {
		return s.fail(err)
	}
	return s.result(item)
}

type moveItemIn struct {
	WorkItemID string `json:"work_item_id" jsonschema:"Id of the work item to move"`
}

func (s *Server) handleMoveItemToStart(ctx context.Context, req *mcp.CallToolRequest, in moveItemIn) (*mcp.CallToolResult, any, error) {
	item, err := s.engine.MoveItemToStart(ctx, in.WorkItemID)
	if err != nil {
		return s.fail(err)
	}
	return s.result(item)
}

func (s *Server) handleMoveItemToEnd(ctx context.Context, req *mcp.CallToolRequest, in moveItemIn) (*mcp.CallToolResult, any, error) {
	item, err := s.engine.MoveItemToEnd(ctx, in.WorkItemID)
	if err != nil {
		return s.fail(err)
	}
	return s.result(item)
}

type moveItemRelativeIn struct {
	WorkItemID      string `json:"work_item_id" jsonschema:"Id of the work item to move"`
	TargetSiblingID string `json:"target_sibling_id" jsonschema:"Id of the sibling to move relative to"`
}

func (s *Server) handleMoveItemAfter(ctx context.Context, req *mcp.CallToolRequest, in moveItemRelativeIn) (*mcp.CallToolResult, any, error) {
	item, err := s.engine.MoveItemAfter(ctx, in.WorkItemID, in.TargetSiblingID)
	if err != nil {
		return s.fail(err)
	}
	return s.result(item)
}

func (s *Server) handleMoveItemBefore(ctx context.Context, req *mcp.CallToolRequest, in moveItemRelativeIn) (*mcp.CallToolResult, any, error) {
	item, err := s.engine.MoveItemBefore(ctx, in.WorkItemID, in.TargetSiblingID)
	if err != nil {
		return s.fail(err)
	}
	return s.result(item)
}
