package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tasklattice/tasklattice/internal/tasks"
	"github.com/tasklattice/tasklattice/internal/types"
	"github.com/tasklattice/tasklattice/internal/ui"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "tasks",
	Short:   "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add [TITLE]",
	Short: "Create a task",
	Long: `Create a task.

Due dates accept ISO forms or phrases such as "tomorrow", "next friday 5pm"
or "in 3 days". With --interactive the fields are prompted for.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := taskInputFromFlags(cmd, args)
		if err != nil {
			return err
		}
		if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
			if err := promptTask(&in); err != nil {
				return err
			}
		}
		t, err := application.Tasks.CreateTask(cmd.Context(), in)
		if err != nil {
			return err
		}
		return out.Emit(t, func(w io.Writer) {
			fmt.Fprintf(w, "%s Created task %d %s\n", ui.RenderPass("✓"), t.ID, ui.RenderAccent(t.Title))
		})
	},
}

func taskInputFromFlags(cmd *cobra.Command, args []string) (tasks.TaskInput, error) {
	var in tasks.TaskInput
	if len(args) > 0 {
		in.Title = args[0]
	}
	var err error
	if in.ListID, err = optionalID(cmd, "list"); err != nil {
		return in, err
	}
	in.Description, _ = cmd.Flags().GetString("description")
	in.Notes, _ = cmd.Flags().GetString("notes")
	if s, _ := cmd.Flags().GetString("status"); s != "" {
		if in.Status, err = types.ParseStatus(s); err != nil {
			return in, err
		}
	}
	p, _ := cmd.Flags().GetString("priority")
	if in.Priority, err = types.ParsePriority(p); err != nil {
		return in, err
	}
	due, _ := cmd.Flags().GetString("due")
	if in.DueDate, err = application.Dates.ParseOptional(due); err != nil {
		return in, err
	}
	if cmd.Flags().Changed("estimate") {
		h, _ := cmd.Flags().GetFloat64("estimate")
		in.EstimatedHours = &h
	}
	return in, nil
}

// promptTask fills in on a terminal form, starting from the flag values.
func promptTask(in *tasks.TaskInput) error {
	priority := string(in.Priority)
	due := ""
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Value(&in.Title).
				Validate(func(s string) error {
					return types.ValidateName("title", s, types.MaxTaskTitleLength)
				}),
			huh.NewSelect[string]().
				Title("Priority").
				Options(huh.NewOptions("low", "normal", "high", "critical")...).
				Value(&priority),
			huh.NewInput().
				Title("Due").
				Placeholder("tomorrow, 2026-05-01, next friday 5pm").
				Value(&due).
				Validate(func(s string) error {
					_, err := application.Dates.ParseOptional(s)
					return err
				}),
			huh.NewText().
				Title("Description").
				Value(&in.Description),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("task form: %w", err)
	}
	in.Priority = types.Priority(priority)
	if due != "" {
		d, err := application.Dates.ParseOptional(due)
		if err != nil {
			return err
		}
		in.DueDate = d
	}
	return nil
}

var taskShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a task with its tags and attributes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("task id", args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		t, err := application.Tasks.GetTask(ctx, id)
		if err != nil {
			return err
		}
		tagList, err := application.Tags.TagsForTask(ctx, id)
		if err != nil {
			return err
		}
		values, err := application.Attributes.GetTaskAttributes(ctx, id)
		if err != nil {
			return err
		}
		view := struct {
			*types.Task
			Tags       []*types.Tag            `json:"tags"`
			Attributes []*types.AttributeValue `json:"attributes"`
		}{t, tagList, values}
		return out.Emit(view, func(w io.Writer) {
			fmt.Fprintf(w, "%s %s\n", ui.RenderAccent(t.Title), ui.RenderMuted("#"+strconv.FormatInt(t.ID, 10)))
			fmt.Fprintf(w, "  status:   %s\n", ui.RenderStatus(t.Status))
			fmt.Fprintf(w, "  priority: %s\n", ui.RenderPriority(t.Priority))
			fmt.Fprintf(w, "  list:     %s\n", deref(t.ListID))
			if t.DueDate != nil {
				fmt.Fprintf(w, "  due:      %s\n", t.DueDate.Local().Format("2006-01-02 15:04"))
			}
			if t.EstimatedHours != nil {
				fmt.Fprintf(w, "  estimate: %gh\n", *t.EstimatedHours)
			}
			if len(tagList) > 0 {
				names := make([]string, len(tagList))
				for i, tg := range tagList {
					names[i] = strings.Join(tg.Path, "/")
				}
				fmt.Fprintf(w, "  tags:     %s\n", strings.Join(names, ", "))
			}
			for _, v := range values {
				fmt.Fprintf(w, "  %s: %s\n", v.Name, v.Value)
			}
			if t.Description != "" {
				fmt.Fprintf(w, "\n%s\n", t.Description)
			}
			if t.Notes != "" {
				fmt.Fprintf(w, "\n%s\n%s\n", ui.RenderMuted("Notes:"), t.Notes)
			}
		})
	},
}

var taskLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List tasks, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		listID, err := optionalID(cmd, "list")
		if err != nil {
			return err
		}
		q := tasksQuery(listID)
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			st, err := types.ParseStatus(s)
			if err != nil {
				return err
			}
			q.Status = &st
		}
		if cmd.Flags().Changed("limit") {
			q.Limit, _ = cmd.Flags().GetInt("limit")
		}
		q.Offset, _ = cmd.Flags().GetInt("offset")
		ts, err := application.Tasks.ListTasks(cmd.Context(), q)
		if err != nil {
			return err
		}
		return out.Emit(ts, func(io.Writer) { printTasks(ts) })
	},
}

func tasksQuery(listID *int64) tasks.TaskQuery {
	return tasks.TaskQuery{ListID: listID, Limit: application.Config.Search.DefaultLimit}
}

func printTasks(ts []*types.Task) {
	if len(ts) == 0 {
		fmt.Fprintln(out.Out, ui.RenderMuted("No tasks"))
		return
	}
	rows := make([][]string, 0, len(ts))
	for _, t := range ts {
		due := ""
		if t.DueDate != nil {
			due = t.DueDate.Local().Format("2006-01-02")
		}
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			t.Title,
			ui.RenderStatus(t.Status),
			ui.RenderPriority(t.Priority),
			deref(t.ListID),
			due,
		})
	}
	out.Table([]string{"ID", "TITLE", "STATUS", "PRIORITY", "LIST", "DUE"}, rows)
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Change task fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("task id", args[0])
		if err != nil {
			return err
		}
		p := tasks.TaskPatch{
			Title:       optionalString(cmd, "title"),
			Description: optionalString(cmd, "description"),
			Notes:       optionalString(cmd, "notes"),
		}
		if s := optionalString(cmd, "status"); s != nil {
			st, err := types.ParseStatus(*s)
			if err != nil {
				return err
			}
			p.Status = &st
		}
		if s := optionalString(cmd, "priority"); s != nil {
			pr, err := types.ParsePriority(*s)
			if err != nil {
				return err
			}
			p.Priority = &pr
		}
		if p.ListID, err = optionalID(cmd, "list"); err != nil {
			return err
		}
		p.ClearList, _ = cmd.Flags().GetBool("no-list")
		if s := optionalString(cmd, "due"); s != nil {
			if p.DueDate, err = application.Dates.ParseOptional(*s); err != nil {
				return err
			}
			p.ClearDueDate = p.DueDate == nil
		}
		if cmd.Flags().Changed("estimate") {
			h, _ := cmd.Flags().GetFloat64("estimate")
			p.EstimatedHours = &h
		}
		p.ClearEstimate, _ = cmd.Flags().GetBool("no-estimate")

		t, err := application.Tasks.UpdateTask(cmd.Context(), id, p)
		if err != nil {
			return err
		}
		return out.Emit(t, func(w io.Writer) {
			fmt.Fprintf(w, "%s Updated task %d %s [%s]\n", ui.RenderPass("✓"), t.ID, t.Title, ui.RenderStatus(t.Status))
		})
	},
}

// transitionCmd builds one of the status shortcut commands.
func transitionCmd(use, short string, fn func(*cobra.Command, int64) (*types.Task, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("task id", args[0])
			if err != nil {
				return err
			}
			t, err := fn(cmd, id)
			if err != nil {
				return err
			}
			return out.Emit(t, func(w io.Writer) {
				fmt.Fprintf(w, "%s Task %d is %s\n", ui.RenderPass("✓"), t.ID, ui.RenderStatus(t.Status))
			})
		},
	}
}

var taskMoveCmd = &cobra.Command{
	Use:   "move ID",
	Short: "Move a task to another list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("task id", args[0])
		if err != nil {
			return err
		}
		target, err := optionalID(cmd, "to")
		if err != nil {
			return err
		}
		if none, _ := cmd.Flags().GetBool("no-list"); target == nil && !none {
			return types.Validationf("either --to or --no-list is required")
		}
		moved, err := application.Lists.MoveTask(cmd.Context(), id, target)
		if err != nil {
			return err
		}
		return out.Emit(map[string]bool{"moved": moved}, func(w io.Writer) {
			if moved {
				fmt.Fprintf(w, "%s Moved task %d to list %s\n", ui.RenderPass("✓"), id, deref(target))
			} else {
				fmt.Fprintf(w, "%s Task %d is already in list %s\n", ui.RenderWarn("⚠"), id, deref(target))
			}
		})
	},
}

var taskRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("task id", args[0])
		if err != nil {
			return err
		}
		deleted, err := application.Tasks.DeleteTask(cmd.Context(), id)
		if err != nil {
			return err
		}
		return out.Emit(map[string]bool{"deleted": deleted}, func(w io.Writer) {
			if deleted {
				fmt.Fprintf(w, "%s Deleted task %d\n", ui.RenderPass("✓"), id)
			} else {
				fmt.Fprintf(w, "%s Task %d was already gone\n", ui.RenderWarn("⚠"), id)
			}
		})
	},
}

func init() {
	f := taskAddCmd.Flags()
	f.Int64P("list", "l", 0, "owning list id")
	f.StringP("description", "d", "", "description")
	f.String("notes", "", "working notes")
	f.StringP("status", "s", "", "initial status (default pending)")
	f.StringP("priority", "p", "", "low, normal, high or critical")
	f.String("due", "", "due date")
	f.Float64("estimate", 0, "estimated hours")
	f.BoolP("interactive", "i", false, "prompt for the fields")

	f = taskUpdateCmd.Flags()
	f.String("title", "", "new title")
	f.StringP("description", "d", "", "new description")
	f.String("notes", "", "new notes")
	f.StringP("status", "s", "", "new status")
	f.StringP("priority", "p", "", "new priority")
	f.Int64P("list", "l", 0, "new owning list id")
	f.Bool("no-list", false, "detach from its list")
	f.String("due", "", "new due date, empty to clear")
	f.Float64("estimate", 0, "new estimate in hours")
	f.Bool("no-estimate", false, "remove the estimate")
	taskUpdateCmd.MarkFlagsMutuallyExclusive("list", "no-list")
	taskUpdateCmd.MarkFlagsMutuallyExclusive("estimate", "no-estimate")

	f = taskLsCmd.Flags()
	f.Int64P("list", "l", 0, "only tasks of this list")
	f.StringP("status", "s", "", "only tasks with this status")
	f.Int("limit", 0, "maximum rows (default search.default_limit)")
	f.Int("offset", 0, "rows to skip")

	taskMoveCmd.Flags().Int64("to", 0, "target list id")
	taskMoveCmd.Flags().Bool("no-list", false, "detach from its list")
	taskMoveCmd.MarkFlagsMutuallyExclusive("to", "no-list")

	taskCmd.AddCommand(taskAddCmd, taskShowCmd, taskLsCmd, taskUpdateCmd, taskMoveCmd, taskRmCmd,
		transitionCmd("start", "Start a task, pausing the list's active task", func(c *cobra.Command, id int64) (*types.Task, error) {
			return application.Tasks.StartTask(c.Context(), id)
		}),
		transitionCmd("done", "Complete a task", func(c *cobra.Command, id int64) (*types.Task, error) {
			return application.Tasks.CompleteTask(c.Context(), id)
		}),
		transitionCmd("pause", "Move a task back to pending", func(c *cobra.Command, id int64) (*types.Task, error) {
			return application.Tasks.PauseTask(c.Context(), id)
		}),
		transitionCmd("block", "Mark a task blocked", func(c *cobra.Command, id int64) (*types.Task, error) {
			return application.Tasks.BlockTask(c.Context(), id)
		}),
		transitionCmd("cancel", "Cancel a task", func(c *cobra.Command, id int64) (*types.Task, error) {
			return application.Tasks.CancelTask(c.Context(), id)
		}),
	)
	rootCmd.AddCommand(taskCmd)
}
