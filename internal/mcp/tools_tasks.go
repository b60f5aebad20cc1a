package mcp

import (
	"context"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/tasklattice/tasklattice/internal/tasks"
	"github.com/tasklattice/tasklattice/internal/types"
)

const (
	statusDesc   = "pending, in_progress, completed, cancelled or blocked"
	priorityDesc = "low, normal, high or critical"
	dateDesc     = "ISO date or a phrase such as 'tomorrow' or 'next friday 5pm'"
)

func (s *Server) registerTasks() {
	s.add(mcpgo.NewTool("create_task",
		mcpgo.WithDescription("Create a task in a list. Starting it in_progress pauses the list's other active task"),
		mcpgo.WithString("title", mcpgo.Required(), mcpgo.Description("Task title")),
		idParam("list_id", "Owning list id"),
		mcpgo.WithString("description", mcpgo.Description("Free-form description")),
		mcpgo.WithString("notes", mcpgo.Description("Working notes")),
		mcpgo.WithString("status", mcpgo.Description(statusDesc)),
		mcpgo.WithString("priority", mcpgo.Description(priorityDesc)),
		mcpgo.WithString("due_date", mcpgo.Description(dateDesc)),
		mcpgo.WithNumber("estimated_hours", mcpgo.Description("Estimated effort in hours")),
	), s.createTask)

	s.add(mcpgo.NewTool("get_task",
		mcpgo.WithDescription("Get a task"),
		idParam("id", "Task id"),
		readOnly(),
	), s.getTask)

	s.add(mcpgo.NewTool("update_task",
		mcpgo.WithDescription("Update task fields. Omitted fields are unchanged"),
		idParam("id", "Task id"),
		mcpgo.WithString("title", mcpgo.Description("New title")),
		mcpgo.WithString("description", mcpgo.Description("New description")),
		mcpgo.WithString("notes", mcpgo.Description("New notes")),
		mcpgo.WithString("status", mcpgo.Description(statusDesc)),
		mcpgo.WithString("priority", mcpgo.Description(priorityDesc)),
		mcpgo.WithNumber("list_id", mcpgo.Description("New owning list id")),
		mcpgo.WithBoolean("clear_list", mcpgo.Description("Detach the task from its list")),
		mcpgo.WithString("due_date", mcpgo.Description(dateDesc)),
		mcpgo.WithBoolean("clear_due_date", mcpgo.Description("Remove the due date")),
		mcpgo.WithNumber("estimated_hours", mcpgo.Description("New estimate in hours")),
		mcpgo.WithBoolean("clear_estimate", mcpgo.Description("Remove the estimate")),
	), s.updateTask)

	transitions := []struct {
		name, desc string
		fn         func(context.Context, int64) (*types.Task, error)
	}{
		{"start_task", "Set a task in_progress, pausing any other active task in its list", s.app.Tasks.StartTask},
		{"complete_task", "Mark a task completed", s.app.Tasks.CompleteTask},
		{"pause_task", "Move a task back to pending", s.app.Tasks.PauseTask},
		{"block_task", "Mark a task blocked", s.app.Tasks.BlockTask},
		{"cancel_task", "Mark a task cancelled", s.app.Tasks.CancelTask},
	}
	for _, tr := range transitions {
		fn := tr.fn
		s.add(mcpgo.NewTool(tr.name,
			mcpgo.WithDescription(tr.desc),
			idParam("id", "Task id"),
		), func(ctx context.Context, a args) (any, error) {
			id, err := a.id("id")
			if err != nil {
				return nil, err
			}
			return fn(ctx, id)
		})
	}

	s.add(mcpgo.NewTool("delete_task",
		mcpgo.WithDescription("Soft-delete a task. Returns deleted=false for missing or already deleted tasks"),
		idParam("id", "Task id"),
		mcpgo.WithDestructiveHintAnnotation(true),
	), s.deleteTask)

	s.add(mcpgo.NewTool("list_tasks",
		mcpgo.WithDescription("List live tasks, newest first"),
		mcpgo.WithNumber("list_id", mcpgo.Description("Only tasks in this list")),
		mcpgo.WithString("status", mcpgo.Description(statusDesc)),
		mcpgo.WithNumber("limit", mcpgo.Description("Maximum number of tasks")),
		mcpgo.WithNumber("offset", mcpgo.Description("Tasks to skip")),
		readOnly(),
	), s.listTasks)
}

func (s *Server) createTask(ctx context.Context, a args) (any, error) {
	var (
		in  tasks.TaskInput
		err error
	)
	if in.Title, err = a.requireStr("title"); err != nil {
		return nil, err
	}
	listID, err := a.id("list_id")
	if err != nil {
		return nil, err
	}
	in.ListID = &listID
	if in.Description, err = a.str("description"); err != nil {
		return nil, err
	}
	if in.Notes, err = a.str("notes"); err != nil {
		return nil, err
	}
	st, err := a.status("status")
	if err != nil {
		return nil, err
	}
	if st != nil {
		in.Status = *st
	}
	pr, err := a.priority("priority")
	if err != nil {
		return nil, err
	}
	if pr != nil {
		in.Priority = *pr
	}
	if in.DueDate, err = a.time("due_date"); err != nil {
		return nil, err
	}
	if in.EstimatedHours, err = a.optFloat("estimated_hours"); err != nil {
		return nil, err
	}
	return s.app.Tasks.CreateTask(ctx, in)
}

func (s *Server) getTask(ctx context.Context, a args) (any, error) {
	id, err := a.id("id")
	if err != nil {
		return nil, err
	}
	return s.app.Tasks.GetTask(ctx, id)
}

func (s *Server) updateTask(ctx context.Context, a args) (any, error) {
	id, err := a.id("id")
	if err != nil {
		return nil, err
	}
	var p tasks.TaskPatch
	if p.Title, err = a.optStr("title"); err != nil {
		return nil, err
	}
	if p.Description, err = a.optStr("description"); err != nil {
		return nil, err
	}
	if p.Notes, err = a.optStr("notes"); err != nil {
		return nil, err
	}
	if p.Status, err = a.status("status"); err != nil {
		return nil, err
	}
	if p.Priority, err = a.priority("priority"); err != nil {
		return nil, err
	}
	if p.ListID, err = a.optID("list_id"); err != nil {
		return nil, err
	}
	if p.ClearList, err = a.boolean("clear_list"); err != nil {
		return nil, err
	}
	if p.DueDate, err = a.time("due_date"); err != nil {
		return nil, err
	}
	if p.ClearDueDate, err = a.boolean("clear_due_date"); err != nil {
		return nil, err
	}
	if p.EstimatedHours, err = a.optFloat("estimated_hours"); err != nil {
		return nil, err
	}
	if p.ClearEstimate, err = a.boolean("clear_estimate"); err != nil {
		return nil, err
	}
	return s.app.Tasks.UpdateTask(ctx, id, p)
}

func (s *Server) deleteTask(ctx context.Context, a args) (any, error) {
	id, err := a.id("id")
	if err != nil {
		return nil, err
	}
	deleted, err := s.app.Tasks.DeleteTask(ctx, id)
	if err != nil {
		return nil, err
	}
	return ok("deleted", deleted), nil
}

func (s *Server) listTasks(ctx context.Context, a args) (any, error) {
	var (
		q   tasks.TaskQuery
		err error
	)
	if q.ListID, err = a.optID("list_id"); err != nil {
		return nil, err
	}
	if q.Status, err = a.status("status"); err != nil {
		return nil, err
	}
	if q.Limit, err = a.limit("limit", s.app.Config.Search.DefaultLimit); err != nil {
		return nil, err
	}
	if q.Offset, err = a.limit("offset", 0); err != nil {
		return nil, err
	}
	out, err := s.app.Tasks.ListTasks(ctx, q)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*types.Task{}
	}
	return out, nil
}
