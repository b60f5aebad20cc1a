package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tasklattice/tasklattice/internal/lists"
	"github.com/tasklattice/tasklattice/internal/types"
	"github.com/tasklattice/tasklattice/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "tasks",
	Short:   "Manage task lists",
}

var listAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, err := optionalID(cmd, "parent")
		if err != nil {
			return err
		}
		desc, _ := cmd.Flags().GetString("description")
		l, err := application.Lists.CreateList(cmd.Context(), lists.ListInput{Name: args[0], Description: desc, ParentID: parent})
		if err != nil {
			return err
		}
		return out.Emit(l, func(w io.Writer) {
			fmt.Fprintf(w, "%s Created list %d %s\n", ui.RenderPass("✓"), l.ID, ui.RenderAccent(strings.Join(l.Path, " / ")))
		})
	},
}

var listShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a list and its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("list id", args[0])
		if err != nil {
			return err
		}
		l, err := application.Lists.GetList(cmd.Context(), id)
		if err != nil {
			return err
		}
		ts, err := application.Tasks.ListTasks(cmd.Context(), tasksQuery(&id))
		if err != nil {
			return err
		}
		view := struct {
			*types.TaskList
			Tasks []*types.Task `json:"tasks"`
		}{l, ts}
		return out.Emit(view, func(w io.Writer) {
			fmt.Fprintf(w, "%s %s\n", ui.RenderAccent(strings.Join(l.Path, " / ")), ui.RenderMuted("#"+strconv.FormatInt(l.ID, 10)))
			if l.Description != "" {
				fmt.Fprintln(w, l.Description)
			}
			fmt.Fprintln(w)
			printTasks(ts)
		})
	},
}

var listLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List every list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, _ := cmd.Flags().GetBool("tree")
		all, err := application.Lists.ListAll(cmd.Context(), tree)
		if err != nil {
			return err
		}
		return out.Emit(all, func(io.Writer) {
			if tree {
				var lines []ui.TreeLine
				var walk func([]*types.TaskList)
				walk = func(ls []*types.TaskList) {
					for _, l := range ls {
						lines = append(lines, ui.TreeLine{Depth: l.Depth, Text: fmt.Sprintf("%s %s", l.Name, ui.RenderMuted("#"+strconv.FormatInt(l.ID, 10)))})
						walk(l.Children)
					}
				}
				walk(all)
				out.Tree(lines)
				return
			}
			rows := make([][]string, 0, len(all))
			for _, l := range all {
				rows = append(rows, []string{strconv.FormatInt(l.ID, 10), strings.Join(l.Path, " / "), deref(l.ParentID)})
			}
			out.Table([]string{"ID", "PATH", "PARENT"}, rows)
		})
	},
}

var listUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Rename, describe or move a list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("list id", args[0])
		if err != nil {
			return err
		}
		p := lists.ListPatch{
			Name:        optionalString(cmd, "name"),
			Description: optionalString(cmd, "description"),
		}
		if p.ParentID, err = optionalID(cmd, "parent"); err != nil {
			return err
		}
		p.ClearParent, _ = cmd.Flags().GetBool("root")
		l, err := application.Lists.UpdateList(cmd.Context(), id, p)
		if err != nil {
			return err
		}
		return out.Emit(l, func(w io.Writer) {
			fmt.Fprintf(w, "%s Updated list %d %s\n", ui.RenderPass("✓"), l.ID, strings.Join(l.Path, " / "))
		})
	},
}

var listRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a list",
	Long: `Delete a list.

Without --cascade the list must have no child lists and no tasks. With
--cascade every descendant list is deleted too and their tasks are kept
without a list.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("list id", args[0])
		if err != nil {
			return err
		}
		cascade, _ := cmd.Flags().GetBool("cascade")
		deleted, err := application.Lists.DeleteList(cmd.Context(), id, cascade)
		if err != nil {
			return err
		}
		return out.Emit(map[string]bool{"deleted": deleted}, func(w io.Writer) {
			if deleted {
				fmt.Fprintf(w, "%s Deleted list %d\n", ui.RenderPass("✓"), id)
			} else {
				fmt.Fprintf(w, "%s List %d was already gone\n", ui.RenderWarn("⚠"), id)
			}
		})
	},
}

func init() {
	listAddCmd.Flags().Int64("parent", 0, "parent list id")
	listAddCmd.Flags().StringP("description", "d", "", "description")
	listLsCmd.Flags().Bool("tree", false, "show the hierarchy")
	listUpdateCmd.Flags().String("name", "", "new name")
	listUpdateCmd.Flags().StringP("description", "d", "", "new description")
	listUpdateCmd.Flags().Int64("parent", 0, "new parent list id")
	listUpdateCmd.Flags().Bool("root", false, "make the list a root")
	listUpdateCmd.MarkFlagsMutuallyExclusive("parent", "root")
	listRmCmd.Flags().Bool("cascade", false, "delete descendants and detach their tasks")

	listCmd.AddCommand(listAddCmd, listShowCmd, listLsCmd, listUpdateCmd, listRmCmd)
	rootCmd.AddCommand(listCmd)
}
