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

// ExportNode is the tree-shaped JSON encoding of a project subtree.
type ExportNode struct {
	Name        string        `json:"name"`
	Description *string       `json:"description,omitempty"`
	Status      string        `json:"status"`
	Priority    string        `json:"priority"`
	DueDate     *time.Time    `json:"due_date,omitempty"`
	Children    []*ExportNode `json:"children"`
}

// ExportProject renders an active project and its descendants as a
// portable tree. Identifiers, order keys, and dependencies are not
// exported; import rebuilds positions from the child order.
func (e *Engine) ExportProject(ctx context.Context, projectID string) (*ExportNode, error) {
	item, err := requireActiveItem(ctx, e.store, "project", projectID)
	if err != nil {
		return nil, err
	}
	return e.exportSubtree(ctx, item)
}

func (e *Engine) exportSubtree(ctx context.Context, item *types.WorkItem) (*ExportNode, error) {
	node := &ExportNode{
		Name:        item.Name,
		Description: item.Description,
		Status:      string(item.Status),
		Priority:    string(item.Priority),
		DueDate:     item.DueAt,
		Children:    []*ExportNode{},
	}
	children, err := e.store.ListChildren(ctx, &item.ID, true, nil)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		childNode, err := e.exportSubtree(ctx, child)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, childNode)
	}
	return node, nil
}

// ImportProject creates a new root project from an exported tree in
// one transaction and action, returning the created items in
// depth-first order. The tree is recreated exactly as exported, so a
// done item keeps the children it was exported with; nothing survives
// when any part of the tree fails validation.
func (e *Engine) ImportProject(ctx context.Context, tree *ExportNode) ([]*types.WorkItem, error) {
	if tree == nil {
		return nil, types.Validationf("project tree must not be empty")
	}

	var created []*types.WorkItem
	var actionID int64
	err := e.store.InTransaction(ctx, func(tx storage.Tx) error {
		root, err := e.newItem(nil, tree.Name, tree.Description, types.Status(tree.Status), types.Priority(tree.Priority), tree.DueDate)
		if err != nil {
			return err
		}
		lastKey, err := tx.SiblingEdgeOrderKey(ctx, nil, true)
		if err != nil {
			return err
		}
		root.OrderKey, err = orderkey.Calculate(lastKey, nil)
		if err != nil {
			return err
		}
		if err := tx.InsertWorkItem(ctx, root); err != nil {
			return err
		}
		steps := []history.Step{history.Update("work_items", root.ID,
			map[string]any{"is_active": false}, itemRow(root))}

		children, childSteps, err := e.insertChildTree(ctx, tx, root.ID, exportChildren(tree.Children))
		if err != nil {
			return err
		}
		created = append([]*types.WorkItem{root}, children...)
		steps = append(steps, childSteps...)

		actionID, err = history.Record(ctx, tx, &types.Action{
			Type:        types.ActionAdd,
			Description: fmt.Sprintf("Imported project %q", root.Name),
			WorkItemID:  &root.ID,
			CreatedAt:   e.now(),
		}, steps)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.publish(actionID, types.ActionAdd, created[0].ID)
	return created, nil
}

func exportChildren(nodes []*ExportNode) []ChildSpec {
	specs := make([]ChildSpec, 0, len(nodes))
	for _, node := range nodes {
		specs = append(specs, ChildSpec{
			Name:        node.Name,
			Description: node.Description,
			Status:      types.Status(node.Status),
			Priority:    types.Priority(node.Priority),
			DueDate:     node.DueDate,
			Children:    exportChildren(node.Children),
		})
	}
	return specs
}
