package mcp

import (
	"context"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/tasklattice/tasklattice/internal/lists"
	"github.com/tasklattice/tasklattice/internal/types"
)

func (s *Server) registerLists() {
	s.add(mcpgo.NewTool("create_list",
		mcpgo.WithDescription("Create a task list, optionally nested under a parent list"),
		mcpgo.WithString("name", mcpgo.Required(), mcpgo.Description("List name, at most 200 characters")),
		mcpgo.WithString("description", mcpgo.Description("Free-form description")),
		mcpgo.WithNumber("parent_id", mcpgo.Description("Parent list id")),
	), s.createList)

	s.add(mcpgo.NewTool("get_list",
		mcpgo.WithDescription("Get a list with its path and depth"),
		idParam("id", "List id"),
		readOnly(),
	), s.getList)

	s.add(mcpgo.NewTool("update_list",
		mcpgo.WithDescription("Update a list. Changing the parent is rejected when it would create a cycle"),
		idParam("id", "List id"),
		mcpgo.WithString("name", mcpgo.Description("New name")),
		mcpgo.WithString("description", mcpgo.Description("New description")),
		mcpgo.WithNumber("parent_id", mcpgo.Description("New parent list id")),
		mcpgo.WithBoolean("clear_parent", mcpgo.Description("Make the list a root")),
	), s.updateList)

	s.add(mcpgo.NewTool("delete_list",
		mcpgo.WithDescription("Delete a list. Without cascade the list must have no children and no tasks; with cascade descendants are deleted and their tasks keep existing without a list"),
		idParam("id", "List id"),
		mcpgo.WithBoolean("cascade", mcpgo.Description("Delete descendant lists and detach their tasks")),
		mcpgo.WithDestructiveHintAnnotation(true),
	), s.deleteList)

	s.add(mcpgo.NewTool("list_all_lists",
		mcpgo.WithDescription("List every live list, flat or as a forest of roots with children"),
		mcpgo.WithBoolean("hierarchical", mcpgo.Description("Nest children under their parents")),
		readOnly(),
	), s.listAll)

	s.add(mcpgo.NewTool("move_task",
		mcpgo.WithDescription("Move a task to another list, or out of any list when target_list_id is omitted"),
		idParam("task_id", "Task id"),
		mcpgo.WithNumber("target_list_id", mcpgo.Description("Destination list id")),
	), s.moveTask)
}

func (s *Server) createList(ctx context.Context, a args) (any, error) {
	name, err := a.requireStr("name")
	if err != nil {
		return nil, err
	}
	desc, err := a.str("description")
	if err != nil {
		return nil, err
	}
	parent, err := a.optID("parent_id")
	if err != nil {
		return nil, err
	}
	return s.app.Lists.CreateList(ctx, lists.ListInput{Name: name, Description: desc, ParentID: parent})
}

func (s *Server) getList(ctx context.Context, a args) (any, error) {
	id, err := a.id("id")
	if err != nil {
		return nil, err
	}
	return s.app.Lists.GetList(ctx, id)
}

func (s *Server) updateList(ctx context.Context, a args) (any, error) {
	id, err := a.id("id")
	if err != nil {
		return nil, err
	}
	var p lists.ListPatch
	if p.Name, err = a.optStr("name"); err != nil {
		return nil, err
	}
	if p.Description, err = a.optStr("description"); err != nil {
		return nil, err
	}
	if p.ParentID, err = a.optID("parent_id"); err != nil {
		return nil, err
	}
	if p.ClearParent, err = a.boolean("clear_parent"); err != nil {
		return nil, err
	}
	if p.ClearParent && p.ParentID != nil {
		return nil, types.Validationf("parent_id and clear_parent are exclusive")
	}
	return s.app.Lists.UpdateList(ctx, id, p)
}

func (s *Server) deleteList(ctx context.Context, a args) (any, error) {
	id, err := a.id("id")
	if err != nil {
		return nil, err
	}
	cascade, err := a.boolean("cascade")
	if err != nil {
		return nil, err
	}
	deleted, err := s.app.Lists.DeleteList(ctx, id, cascade)
	if err != nil {
		return nil, err
	}
	return ok("deleted", deleted), nil
}

func (s *Server) listAll(ctx context.Context, a args) (any, error) {
	hierarchical, err := a.boolean("hierarchical")
	if err != nil {
		return nil, err
	}
	out, err := s.app.Lists.ListAll(ctx, hierarchical)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*types.TaskList{}
	}
	return out, nil
}

func (s *Server) moveTask(ctx context.Context, a args) (any, error) {
	taskID, err := a.id("task_id")
	if err != nil {
		return nil, err
	}
	target, err := a.optID("target_list_id")
	if err != nil {
		return nil, err
	}
	moved, err := s.app.Lists.MoveTask(ctx, taskID, target)
	if err != nil {
		return nil, err
	}
	return ok("moved", moved), nil
}
