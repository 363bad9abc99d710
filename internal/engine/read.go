package engine

import (
	"context"
	"sort"

	"github.com/mkropat/tasktree/internal/types"
)

// Details is the get_details response: one item with its edges and
// direct children.
type Details struct {
	Item         *types.WorkItem     `json:"item"`
	Dependencies []*types.Dependency `json:"dependencies"`
	Dependents   []*types.Dependency `json:"dependents"`
	Children     []*types.WorkItem   `json:"children"`
}

// TreeOptions tunes get_full_tree traversal.
type TreeOptions struct {
	IncludeInactiveItems        bool
	IncludeInactiveDependencies bool
	// MaxDepth bounds recursion; nodes past it come back with empty
	// children. Zero means the default of 10.
	MaxDepth int
}

const defaultMaxDepth = 10

// GetDetails returns one active item with its active dependency
// edges (both directions) and its active children.
func (e *Engine) GetDetails(ctx context.Context, id string) (*Details, error) {
	item, err := requireActiveItem(ctx, e.store, "work item", id)
	if err != nil {
		return nil, err
	}

	active := true
	deps, err := e.store.ListDependencies(ctx, id, types.DependencyFilter{Active: &active, OtherActive: &active})
	if err != nil {
		return nil, err
	}
	dependents, err := e.store.ListDependents(ctx, id, types.DependencyFilter{Active: &active, OtherActive: &active})
	if err != nil {
		return nil, err
	}
	children, err := e.store.ListChildren(ctx, &id, true, nil)
	if err != nil {
		return nil, err
	}

	return &Details{Item: item, Dependencies: deps, Dependents: dependents, Children: children}, nil
}

// ListWorkItems returns items matching the filter.
func (e *Engine) ListWorkItems(ctx context.Context, f types.ItemFilter) ([]*types.WorkItem, error) {
	return e.store.ListWorkItems(ctx, f)
}

// History returns action history entries, newest first.
func (e *Engine) History(ctx context.Context, f types.HistoryFilter) ([]*types.Action, error) {
	return e.store.ListActions(ctx, f)
}

// NextTask returns the best actionable todo item, or nil when none
// qualifies. The tag filters are accepted for interface compatibility
// but ignored: the data model does not persist tags.
func (e *Engine) NextTask(ctx context.Context, scopeID *string, includeTags, excludeTags []string) (*types.WorkItem, error) {
	_ = includeTags
	_ = excludeTags
	return e.store.NextTask(ctx, scopeID)
}

// FullTree assembles the project tree rooted at id. Promoted branches
// reachable through linked dependencies are projected back in as
// children with every name suffixed " (L)".
func (e *Engine) FullTree(ctx context.Context, id string, opts TreeOptions) (*types.TreeNode, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaultMaxDepth
	}

	activeOnly := !opts.IncludeInactiveItems
	root, err := e.store.GetWorkItem(ctx, id, activeOnly)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, types.NotFoundOrInactive("work item", id)
	}

	visited := map[string]bool{root.ID: true}
	return e.buildTreeNode(ctx, root, opts, 1, false, visited)
}

// treeChild pairs a child item with the projection flag its subtree
// inherits.
type treeChild struct {
	item   *types.WorkItem
	linked bool
}

func (e *Engine) buildTreeNode(ctx context.Context, item *types.WorkItem, opts TreeOptions, depth int, linked bool, visited map[string]bool) (*types.TreeNode, error) {
	node := &types.TreeNode{WorkItem: *item}
	if linked {
		node.Name += " (L)"
	}

	depFilter := types.DependencyFilter{}
	if !opts.IncludeInactiveDependencies {
		active := true
		depFilter.Active = &active
	}
	deps, err := e.store.ListDependencies(ctx, item.ID, depFilter)
	if err != nil {
		return nil, err
	}
	dependents, err := e.store.ListDependents(ctx, item.ID, depFilter)
	if err != nil {
		return nil, err
	}
	node.Dependencies = deps
	node.Dependents = dependents
	node.Children = []*types.TreeNode{}

	if depth > opts.MaxDepth {
		return node, nil
	}

	activeOnly := !opts.IncludeInactiveItems
	children, err := e.store.ListChildren(ctx, &item.ID, activeOnly, nil)
	if err != nil {
		return nil, err
	}

	directIDs := map[string]bool{}
	combined := make([]treeChild, 0, len(children))
	for _, child := range children {
		directIDs[child.ID] = true
		combined = append(combined, treeChild{item: child, linked: linked})
	}

	// Linked targets project back in as children. An inactive or
	// missing target is skipped; a target already present as a direct
	// child is not re-emitted.
	for _, dep := range deps {
		if dep.Type != types.DepLinked || !dep.IsActive {
			continue
		}
		if directIDs[dep.DependsOnID] || visited[dep.DependsOnID] {
			continue
		}
		target, err := e.store.GetWorkItem(ctx, dep.DependsOnID, true)
		if err != nil {
			return nil, err
		}
		if target == nil {
			continue
		}
		combined = append(combined, treeChild{item: target, linked: true})
	}

	sort.SliceStable(combined, func(i, j int) bool {
		if combined[i].item.OrderKey != combined[j].item.OrderKey {
			return combined[i].item.OrderKey < combined[j].item.OrderKey
		}
		return combined[i].item.Name < combined[j].item.Name
	})

	for _, child := range combined {
		if visited[child.item.ID] {
			continue
		}
		visited[child.item.ID] = true
		childNode, err := e.buildTreeNode(ctx, child.item, opts, depth+1, child.linked, visited)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, childNode)
	}
	return node, nil
}
