// Package mcpserver exposes the task tree over the Model Context
// Protocol. Each tool is a thin verb-to-engine mapping; validation
// and conflict errors come back as tool errors with their exact
// message, everything else surfaces as a protocol error.
package mcpserver

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mkropat/tasktree/internal/engine"
	"github.com/mkropat/tasktree/internal/types"
)

// Server wires the mutation engine to the MCP tool surface.
type Server struct {
	engine *engine.Engine
	log    *slog.Logger
	now    func() time.Time
}

// New builds the tool surface around an engine.
func New(eng *engine.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: eng, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// MCPServer registers every tool on a fresh protocol server.
func (s *Server) MCPServer(version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "tasktree", Version: version}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_project",
		Description: "Create a new root project",
	}, s.handleCreateProject)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add_task",
		Description: "Add a task under a parent work item, optionally positioned and with dependencies",
	}, s.handleAddTask)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add_child_tasks",
		Description: "Add a tree of tasks under a parent in one step",
	}, s.handleAddChildTasks)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_project",
		Description: "Soft-delete a root project and its whole subtree",
	}, s.handleDeleteProject)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_task",
		Description: "Soft-delete tasks and their subtrees (roots are rejected)",
	}, s.handleDeleteTask)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_child_tasks",
		Description: "Soft-delete selected or all children of a parent",
	}, s.handleDeleteChildTasks)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_details",
		Description: "Get one work item with its dependencies, dependents and children",
	}, s.handleGetDetails)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_work_items",
		Description: "List work items filtered by parent, root-ness, status or active flag",
	}, s.handleListWorkItems)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_full_tree",
		Description: "Get the full tree of a work item, with promoted branches projected back in",
	}, s.handleGetFullTree)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_history",
		Description: "List action history, newest first",
	}, s.handleListHistory)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_next_task",
		Description: "Get the next actionable task under dependency, status and priority rules",
	}, s.handleGetNextTask)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "set_name",
		Description: "Rename a work item",
	}, s.handleSetName)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "set_description",
		Description: "Set or clear a work item's description",
	}, s.handleSetDescription)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "set_status",
		Description: "Set a work item's status (todo, in-progress, review, done)",
	}, s.handleSetStatus)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "set_priority",
		Description: "Set a work item's priority (high, medium, low)",
	}, s.handleSetPriority)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "set_due_date",
		Description: "Set or clear a work item's due date; accepts timestamps, dates, compact durations like +2d, or natural language",
	}, s.handleSetDueDate)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "update_task",
		Description: "Update several fields of a work item at once (deprecated; prefer the set_* tools)",
	}, s.handleUpdateTask)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add_dependencies",
		Description: "Add dependency edges from one work item to others",
	}, s.handleAddDependencies)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_dependencies",
		Description: "Remove dependency edges from one work item",
	}, s.handleDeleteDependencies)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "promote_to_project",
		Description: "Promote a task to a root project, leaving a linked reference behind",
	}, s.handlePromoteToProject)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "move_item_to_start",
		Description: "Move a work item to the front of its sibling list",
	}, s.handleMoveItemToStart)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "move_item_to_end",
		Description: "Move a work item to the back of its sibling list",
	}, s.handleMoveItemToEnd)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "move_item_after",
		Description: "Move a work item directly after a sibling",
	}, s.handleMoveItemAfter)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "move_item_before",
		Description: "Move a work item directly before a sibling",
	}, s.handleMoveItemBefore)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "undo_last_action",
		Description: "Undo the most recent mutation",
	}, s.handleUndoLastAction)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "redo_last_action",
		Description: "Redo the most recently undone mutation",
	}, s.handleRedoLastAction)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "export_project",
		Description: "Export a project and its descendants as a portable JSON tree",
	}, s.handleExportProject)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "import_project",
		Description: "Create a project from an exported JSON tree",
	}, s.handleImportProject)

	return srv
}

// result renders v as the tool's text content and structured output.
func (s *Server) result(v any) (*mcp.CallToolResult, any, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}}}, v, nil
}

// fail maps user errors to tool errors carrying the exact message;
// anything else propagates as an internal error.
func (s *Server) fail(err error) (*mcp.CallToolResult, any, error) {
	if types.IsUserError(err) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
			IsError: true,
		}, nil, nil
	}
	s.log.Error("tool call failed", "error", err)
	return nil, nil, err
}
