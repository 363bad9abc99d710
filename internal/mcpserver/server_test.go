package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mkropat/tasktree/internal/engine"
	"github.com/mkropat/tasktree/internal/storage/sqlite"
	"github.com/mkropat/tasktree/internal/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := sqlite.New(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(engine.New(store, nil, nil), nil)
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return text.Text
}

func TestCreateProjectTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, out, err := s.handleCreateProject(ctx, nil, createProjectIn{Name: "Pub Crawl"})
	if err != nil {
		t.Fatalf("tool failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", textOf(t, res))
	}
	item, ok := out.(*types.WorkItem)
	if !ok || item.Name != "Pub Crawl" {
		t.Fatalf("unexpected structured output: %+v", out)
	}
	if !strings.Contains(textOf(t, res), "Pub Crawl") {
		t.Errorf("text content missing item: %s", textOf(t, res))
	}
}

func TestAddTaskToolErrors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, _, err := s.handleAddTask(ctx, nil, addTaskIn{ParentWorkItemID: "ghost", Name: "T"})
	if err != nil {
		t.Fatalf("user errors must not become protocol errors: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected tool error for missing parent")
	}
	if !strings.Contains(textOf(t, res), types.MsgNotFoundOrInactive) {
		t.Errorf("expected %q in message, got %s", types.MsgNotFoundOrInactive, textOf(t, res))
	}
}

func TestAddTaskDoneParentMessage(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleCreateProject(ctx, nil, createProjectIn{Name: "P"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	project := out.(*types.WorkItem)

	if res, _, err := s.handleSetStatus(ctx, nil, setStatusIn{WorkItemID: project.ID, Status: "done"}); err != nil || res.IsError {
		t.Fatalf("set status failed: %v %v", err, res)
	}

	res, _, err := s.handleAddTask(ctx, nil, addTaskIn{ParentWorkItemID: project.ID, Name: "child"})
	if err != nil {
		t.Fatalf("tool failed: %v", err)
	}
	if !res.IsError || !strings.Contains(textOf(t, res), "done") {
		t.Errorf("expected done-parent error, got %v: %s", res.IsError, textOf(t, res))
	}
}

func TestSetDueDateToolParsesExpressions(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleCreateProject(ctx, nil, createProjectIn{Name: "P"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	project := out.(*types.WorkItem)

	res, out, err := s.handleSetDueDate(ctx, nil, setDueDateIn{WorkItemID: project.ID, DueDate: "+2d"})
	if err != nil || res.IsError {
		t.Fatalf("set due date failed: %v %v", err, res)
	}
	if out.(*types.WorkItem).DueAt == nil {
		t.Fatal("due date not set")
	}

	res, out, err = s.handleSetDueDate(ctx, nil, setDueDateIn{WorkItemID: project.ID, DueDate: ""})
	if err != nil || res.IsError {
		t.Fatalf("clear failed: %v %v", err, res)
	}
	if out.(*types.WorkItem).DueAt != nil {
		t.Fatal("due date not cleared")
	}

	res, _, err = s.handleSetDueDate(ctx, nil, setDueDateIn{WorkItemID: project.ID, DueDate: "not a date"})
	if err != nil {
		t.Fatalf("tool failed: %v", err)
	}
	if !res.IsError {
		t.Error("expected tool error for unparseable date")
	}
}

func TestUndoRedoTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	// Nothing to undo yet.
	res, out, err := s.handleUndoLastAction(ctx, nil, emptyIn{})
	if err != nil || res.IsError {
		t.Fatalf("undo failed: %v %v", err, res)
	}
	if out.(*types.Action) != nil {
		t.Fatalf("expected null action, got %+v", out)
	}

	if _, _, err := s.handleCreateProject(ctx, nil, createProjectIn{Name: "P"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	res, out, err = s.handleUndoLastAction(ctx, nil, emptyIn{})
	if err != nil || res.IsError {
		t.Fatalf("undo failed: %v %v", err, res)
	}
	if action := out.(*types.Action); action == nil || !action.IsUndone {
		t.Fatalf("expected undone action, got %+v", out)
	}

	res, out, err = s.handleRedoLastAction(ctx, nil, emptyIn{})
	if err != nil || res.IsError {
		t.Fatalf("redo failed: %v %v", err, res)
	}
	if action := out.(*types.Action); action == nil || action.IsUndone {
		t.Fatalf("expected redone action, got %+v", out)
	}
}

func TestGetNextTaskToolNull(t *testing.T) {
	s := newTestServer(t)

	res, _, err := s.handleGetNextTask(context.Background(), nil, getNextTaskIn{})
	if err != nil || res.IsError {
		t.Fatalf("tool failed: %v %v", err, res)
	}
	if textOf(t, res) != "null" {
		t.Errorf("expected null text for no candidate, got %s", textOf(t, res))
	}
}

func TestToolRegistration(t *testing.T) {
	s := newTestServer(t)
	srv := s.MCPServer("test")
	if srv == nil {
		t.Fatal("expected a server")
	}
}
