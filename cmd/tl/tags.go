package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tasklattice/tasklattice/internal/tags"
	"github.com/tasklattice/tasklattice/internal/types"
	"github.com/tasklattice/tasklattice/internal/ui"
)

var tagCmd = &cobra.Command{
	Use:     "tag",
	GroupID: "organize",
	Short:   "Manage tags and tag tasks or lists",
}

var tagAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := tags.TagInput{Name: args[0]}
		in.Color, _ = cmd.Flags().GetString("color")
		var err error
		if in.ParentID, err = optionalID(cmd, "parent"); err != nil {
			return err
		}
		tg, err := application.Tags.CreateTag(cmd.Context(), in)
		if err != nil {
			return err
		}
		return out.Emit(tg, func(w io.Writer) {
			fmt.Fprintf(w, "%s Created tag %d %s\n", ui.RenderPass("✓"), tg.ID, ui.RenderAccent(strings.Join(tg.Path, "/")))
		})
	},
}

var tagUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Rename, recolor or move a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("tag id", args[0])
		if err != nil {
			return err
		}
		p := tags.TagPatch{
			Name:  optionalString(cmd, "name"),
			Color: optionalString(cmd, "color"),
		}
		if p.ParentID, err = optionalID(cmd, "parent"); err != nil {
			return err
		}
		p.ClearParent, _ = cmd.Flags().GetBool("root")
		tg, err := application.Tags.UpdateTag(cmd.Context(), id, p)
		if err != nil {
			return err
		}
		return out.Emit(tg, func(w io.Writer) {
			fmt.Fprintf(w, "%s Updated tag %d %s\n", ui.RenderPass("✓"), tg.ID, strings.Join(tg.Path, "/"))
		})
	},
}

var tagShowCmd = &cobra.Command{
	Use:   "show ID|NAME",
	Short: "Show a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tg, err := resolveTag(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return out.Emit(tg, func(w io.Writer) {
			fmt.Fprintf(w, "%s %s\n", ui.RenderAccent(strings.Join(tg.Path, "/")), ui.RenderMuted("#"+strconv.FormatInt(tg.ID, 10)))
			fmt.Fprintf(w, "  depth: %d\n", tg.Depth)
			if tg.Color != "" {
				fmt.Fprintf(w, "  color: %s\n", tg.Color)
			}
		})
	},
}

var tagLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List tags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, err := application.Tags.ListTags(cmd.Context())
		if err != nil {
			return err
		}
		return out.Emit(all, func(io.Writer) { printTags(all) })
	},
}

func printTags(all []*types.Tag) {
	if len(all) == 0 {
		fmt.Fprintln(out.Out, ui.RenderMuted("No tags"))
		return
	}
	rows := make([][]string, 0, len(all))
	for _, tg := range all {
		rows = append(rows, []string{strconv.FormatInt(tg.ID, 10), strings.Join(tg.Path, "/"), tg.Color})
	}
	out.Table([]string{"ID", "PATH", "COLOR"}, rows)
}

var tagRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a tag and its associations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("tag id", args[0])
		if err != nil {
			return err
		}
		deleted, err := application.Tags.DeleteTag(cmd.Context(), id)
		if err != nil {
			return err
		}
		return out.Emit(map[string]bool{"deleted": deleted}, func(w io.Writer) {
			if deleted {
				fmt.Fprintf(w, "%s Deleted tag %d\n", ui.RenderPass("✓"), id)
			} else {
				fmt.Fprintf(w, "%s Tag %d was already gone\n", ui.RenderWarn("⚠"), id)
			}
		})
	},
}

var tagAttachCmd = &cobra.Command{
	Use:   "attach task|list ID TAG...",
	Short: "Tag a task or list",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeTags(cmd, args, application.Tags.Add, "Tagged")
	},
}

var tagDetachCmd = &cobra.Command{
	Use:   "detach task|list ID TAG...",
	Short: "Remove tags from a task or list",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeTags(cmd, args, application.Tags.Remove, "Untagged")
	},
}

var tagOfCmd = &cobra.Command{
	Use:   "of task|list ID",
	Short: "Show the tags of a task or list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, id, err := tagTarget(args[0], args[1])
		if err != nil {
			return err
		}
		all, err := application.Tags.For(cmd.Context(), target, id)
		if err != nil {
			return err
		}
		return out.Emit(all, func(io.Writer) { printTags(all) })
	},
}

func changeTags(cmd *cobra.Command, args []string, fn func(context.Context, tags.Target, int64, int64) (bool, error), verb string) error {
	target, id, err := tagTarget(args[0], args[1])
	if err != nil {
		return err
	}
	result := make(map[string]bool, len(args)-2)
	for _, ref := range args[2:] {
		tg, err := resolveTag(cmd.Context(), ref)
		if err != nil {
			return err
		}
		changed, err := fn(cmd.Context(), target, id, tg.ID)
		if err != nil {
			return err
		}
		result[tg.Name] = changed
	}
	return out.Emit(result, func(w io.Writer) {
		for _, ref := range args[2:] {
			fmt.Fprintf(w, "%s %s %s %d with %s\n", ui.RenderPass("✓"), verb, args[0], id, ref)
		}
	})
}

func tagTarget(kind, id string) (tags.Target, int64, error) {
	n, err := parseID(kind+" id", id)
	if err != nil {
		return tags.Target{}, 0, err
	}
	switch kind {
	case "task":
		return tags.TaskTarget, n, nil
	case "list":
		return tags.ListTarget, n, nil
	}
	return tags.Target{}, 0, types.Validationf("target %q must be task or list", kind)
}

// resolveTag accepts a numeric id or a tag name.
func resolveTag(ctx context.Context, ref string) (*types.Tag, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return application.Tags.GetTag(ctx, id)
	}
	return application.Tags.GetTagByName(ctx, ref)
}

func init() {
	tagAddCmd.Flags().String("color", "", "display color as #RRGGBB")
	tagAddCmd.Flags().Int64("parent", 0, "parent tag id")
	tagUpdateCmd.Flags().String("name", "", "new name")
	tagUpdateCmd.Flags().String("color", "", "new color, empty to clear")
	tagUpdateCmd.Flags().Int64("parent", 0, "new parent tag id")
	tagUpdateCmd.Flags().Bool("root", false, "make the tag a root")
	tagUpdateCmd.MarkFlagsMutuallyExclusive("parent", "root")

	tagCmd.AddCommand(tagAddCmd, tagUpdateCmd, tagShowCmd, tagLsCmd, tagRmCmd, tagAttachCmd, tagDetachCmd, tagOfCmd)
	rootCmd.AddCommand(tagCmd)
}
