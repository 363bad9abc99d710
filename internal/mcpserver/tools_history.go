package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mkropat/tasktree/internal/engine"
)

type emptyIn struct{}

func (s *Server) handleUndoLastAction(ctx context.Context, req *mcp.CallToolRequest, in emptyIn) (*mcp.CallToolResult, any, error) {
	action, err := s.engine.UndoLastAction(ctx)
	if err != nil {
		return s.fail(err)
	}
	return s.result(action)
}

func (s *Server) handleRedoLastAction(ctx context.Context, req *mcp.CallToolRequest, in emptyIn) (*mcp.CallToolResult, any, error) {
	action, err := s.engine.RedoLastAction(ctx)
	if err != nil {
		return s.fail(err)
	}
	return s.result(action)
}

type exportProjectIn struct {
	ProjectID string `json:"project_id" jsonschema:"Id of the project to export"`
}

func (s *Server) handleExportProject(ctx context.Context, req *mcp.CallToolRequest, in exportProjectIn) (*mcp.CallToolResult, any, error) {
	tree, err := s.engine.ExportProject(ctx, in.ProjectID)
	if err != nil {
		return s.fail(err)
	}
	return s.result(tree)
}

type importProjectIn struct {
	ProjectTree *engine.ExportNode `json:"project_tree" jsonschema:"Exported project tree to recreate"`
}

func (s *Server) handleImportProject(ctx context.Context, req *mcp.CallToolRequest, in importProjectIn) (*mcp.CallToolResult, any, error) {
	items, err := s.engine.ImportProject(ctx, in.ProjectTree)
	if err != nil {
		return s.fail(err)
	}
	return s.result(items)
}
