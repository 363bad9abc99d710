package mcpserver

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mkropat/tasktree/internal/engine"
	"github.com/mkropat/tasktree/internal/types"
)

// parseHistoryDate accepts RFC3339 timestamps or plain dates.
func parseHistoryDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t, nil
	}
	return nil, types.Validationf("invalid date %q", raw)
}

type getDetailsIn struct {
	WorkItemID string `json:"work_item_id" jsonschema:"Id of the work item"`
}

func (s *Server) handleGetDetails(ctx context.Context, req *mcp.CallToolRequest, in getDetailsIn) (*mcp.CallToolResult, any, error) {
	details, err := s.engine.GetDetails(ctx, in.WorkItemID)
	if err != nil {
		return s.fail(err)
	}
	return s.result(details)
}

type listWorkItemsIn struct {
	ParentWorkItemID string `json:"parent_work_item_id,omitempty" jsonschema:"Restrict to children of this item"`
	RootsOnly        bool   `json:"roots_only,omitempty" jsonschema:"Restrict to root projects"`
	Status           string `json:"status,omitempty" jsonschema:"Restrict to one status"`
	IsActive         *bool  `json:"is_active,omitempty" jsonschema:"Restrict to active (true) or deleted (false) items"`
}

func (s *Server) handleListWorkItems(ctx context.Context, req *mcp.CallToolRequest, in listWorkItemsIn) (*mcp.CallToolResult, any, error) {
	filter := types.ItemFilter{RootsOnly: in.RootsOnly, IsActive: in.IsActive}
	if in.ParentWorkItemID != "" {
		filter.ParentID = &in.ParentWorkItemID
	}
	if in.Status != "" {
		status := types.Status(in.Status)
		if !types.ValidStatus(status) {
			return s.fail(types.Validationf("invalid status %q", in.Status))
		}
		filter.Status = &status
	}

	items, err := s.engine.ListWorkItems(ctx, filter)
	if err != nil {
		return s.fail(err)
	}
	if items == nil {
		items = []*types.WorkItem{}
	}
	return s.result(items)
}

type getFullTreeIn struct {
	WorkItemID                  string `json:"work_item_id" jsonschema:"Id of the tree root"`
	IncludeInactiveItems        bool   `json:"include_inactive_items,omitempty" jsonschema:"Include soft-deleted items"`
	IncludeInactiveDependencies bool   `json:"include_inactive_dependencies,omitempty" jsonschema:"Include soft-deleted dependency edges"`
	MaxDepth                    int    `json:"max_depth,omitempty" jsonschema:"Recursion bound; default 10"`
}

func (s *Server) handleGetFullTree(ctx context.Context, req *mcp.CallToolRequest, in getFullTreeIn) (*mcp.CallToolResult, any, error) {
	tree, err := s.engine.FullTree(ctx, in.WorkItemID, engine.TreeOptions{
		IncludeInactiveItems:        in.IncludeInactiveItems,
		IncludeInactiveDependencies: in.IncludeInactiveDependencies,
		MaxDepth:                    in.MaxDepth,
	})
	if err != nil {
		return s.fail(err)
	}
	return s.result(tree)
}

type listHistoryIn struct {
	StartDate string `json:"start_date,omitempty" jsonschema:"Oldest entry to include; RFC3339 or YYYY-MM-DD"`
	EndDate   string `json:"end_date,omitempty" jsonschema:"Newest entry to include; RFC3339 or YYYY-MM-DD"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Return at most N entries"`
}

func (s *Server) handleListHistory(ctx context.Context, req *mcp.CallToolRequest, in listHistoryIn) (*mcp.CallToolResult, any, error) {
	start, err := parseHistoryDate(in.StartDate)
	if err != nil {
		return s.fail(err)
	}
	end, err := parseHistoryDate(in.EndDate)
	if err != nil {
		return s.fail(err)
	}

	actions, err := s.engine.History(ctx, types.HistoryFilter{StartDate: start, EndDate: end, Limit: in.Limit})
	if err != nil {
		return s.fail(err)
	}
	if actions == nil {
		actions = []*types.Action{}
	}
	return s.result(actions)
}

type getNextTaskIn struct {
	ScopeItemID string   `json:"scope_item_id,omitempty" jsonschema:"Restrict candidates to this item's subtree"`
	IncludeTags []string `json:"include_tags,omitempty" jsonschema:"Accepted for compatibility; tags are not persisted, so this filter is ignored"`
	ExcludeTags []string `json:"exclude_tags,omitempty" jsonschema:"Accepted for compatibility; tags are not persisted, so this filter is ignored"`
}

func (s *Server) handleGetNextTask(ctx context.Context, req *mcp.CallToolRequest, in getNextTaskIn) (*mcp.CallToolResult, any, error) {
	var scopeID *string
	if in.ScopeItemID != "" {
		scopeID = &in.ScopeItemID
	}
	item, err := s.engine.NextTask(ctx, scopeID, in.IncludeTags, in.ExcludeTags)
	if err != nil {
		return s.fail(err)
	}
	return s.result(item)
}
