package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tasklattice/tasklattice/internal/templates"
	"github.com/tasklattice/tasklattice/internal/types"
	"github.com/tasklattice/tasklattice/internal/ui"
)

var templateCmd = &cobra.Command{
	Use:     "template",
	Aliases: []string{"tpl"},
	GroupID: "organize",
	Short:   "Manage list templates",
	Long: `Manage list templates.

Task titles and descriptions may contain {{name}} placeholders that are
filled when the template is applied with --param name=value. Template
files are TOML, YAML or JSON, chosen by extension.`,
}

var templateCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a template from task titles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := templates.TemplateInput{Name: args[0]}
		in.Description, _ = cmd.Flags().GetString("description")
		in.Category, _ = cmd.Flags().GetString("category")
		in.Version, _ = cmd.Flags().GetString("version")
		titles, _ := cmd.Flags().GetStringArray("task")
		for _, title := range titles {
			in.Tasks = append(in.Tasks, types.TemplateTask{Title: title, Priority: types.PriorityNormal})
		}
		tpl, err := application.Templates.CreateTemplate(cmd.Context(), in)
		if err != nil {
			return err
		}
		return out.Emit(tpl, func(w io.Writer) {
			fmt.Fprintf(w, "%s Created template %d %s with %d tasks\n", ui.RenderPass("✓"), tpl.ID, ui.RenderAccent(tpl.Name), len(tpl.Tasks))
		})
	},
}

var templateFromListCmd = &cobra.Command{
	Use:   "from-list LIST_ID NAME",
	Short: "Capture a list's tasks as a template",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		listID, err := parseID("list id", args[0])
		if err != nil {
			return err
		}
		desc, _ := cmd.Flags().GetString("description")
		category, _ := cmd.Flags().GetString("category")
		tpl, err := application.Templates.CreateTemplateFromList(cmd.Context(), listID, args[1], desc, category)
		if err != nil {
			return err
		}
		return out.Emit(tpl, func(w io.Writer) {
			fmt.Fprintf(w, "%s Created template %d %s with %d tasks\n", ui.RenderPass("✓"), tpl.ID, ui.RenderAccent(tpl.Name), len(tpl.Tasks))
		})
	},
}

var templateAddTaskCmd = &cobra.Command{
	Use:   "add-task TEMPLATE_ID TITLE",
	Short: "Append a task to a template",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("template id", args[0])
		if err != nil {
			return err
		}
		tt := types.TemplateTask{Title: args[1]}
		tt.Description, _ = cmd.Flags().GetString("description")
		p, _ := cmd.Flags().GetString("priority")
		if tt.Priority, err = types.ParsePriority(p); err != nil {
			return err
		}
		if cmd.Flags().Changed("estimate") {
			h, _ := cmd.Flags().GetFloat64("estimate")
			tt.EstimatedHours = &h
		}
		added, err := application.Templates.AddTemplateTask(cmd.Context(), id, tt)
		if err != nil {
			return err
		}
		return out.Emit(added, func(w io.Writer) {
			fmt.Fprintf(w, "%s Added %q at position %d\n", ui.RenderPass("✓"), added.Title, added.OrderIndex)
		})
	},
}

var templateShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a template and its placeholders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("template id", args[0])
		if err != nil {
			return err
		}
		tpl, err := application.Templates.GetTemplate(cmd.Context(), id)
		if err != nil {
			return err
		}
		var texts []string
		for _, tt := range tpl.Tasks {
			texts = append(texts, tt.Title, tt.Description)
		}
		tokens := templates.Placeholders(texts...)
		view := struct {
			*types.Template
			Placeholders []string `json:"placeholders"`
		}{tpl, tokens}
		return out.Emit(view, func(w io.Writer) {
			fmt.Fprintf(w, "%s %s v%s\n", ui.RenderAccent(tpl.Name), ui.RenderMuted("#"+strconv.FormatInt(tpl.ID, 10)), tpl.Version)
			if tpl.Category != "" {
				fmt.Fprintf(w, "  category: %s\n", tpl.Category)
			}
			if len(tokens) > 0 {
				fmt.Fprintf(w, "  placeholders: %s\n", strings.Join(tokens, ", "))
			}
			fmt.Fprintln(w)
			rows := make([][]string, 0, len(tpl.Tasks))
			for _, tt := range tpl.Tasks {
				est := ""
				if tt.EstimatedHours != nil {
					est = strconv.FormatFloat(*tt.EstimatedHours, 'g', -1, 64)
				}
				rows = append(rows, []string{strconv.Itoa(tt.OrderIndex), tt.Title, ui.RenderPriority(tt.Priority), est})
			}
			out.Table([]string{"#", "TITLE", "PRIORITY", "HOURS"}, rows)
		})
	},
}

var templateLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		all, err := application.Templates.ListTemplates(cmd.Context(), category)
		if err != nil {
			return err
		}
		return out.Emit(all, func(w io.Writer) {
			if len(all) == 0 {
				fmt.Fprintln(w, ui.RenderMuted("No templates"))
				return
			}
			rows := make([][]string, 0, len(all))
			for _, tpl := range all {
				rows = append(rows, []string{strconv.FormatInt(tpl.ID, 10), tpl.Name, tpl.Category, tpl.Version, strconv.Itoa(len(tpl.Tasks))})
			}
			out.Table([]string{"ID", "NAME", "CATEGORY", "VERSION", "TASKS"}, rows)
		})
	},
}

var templateApplyCmd = &cobra.Command{
	Use:   "apply ID LIST_NAME",
	Short: "Create a new list from a template",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("template id", args[0])
		if err != nil {
			return err
		}
		opts := templates.ApplyOptions{ListName: args[1]}
		opts.ListDescription, _ = cmd.Flags().GetString("description")
		if opts.ParentID, err = optionalID(cmd, "parent"); err != nil {
			return err
		}
		params, _ := cmd.Flags().GetStringToString("param")
		opts.Params = params
		l, err := application.Templates.ApplyTemplate(cmd.Context(), id, opts)
		if err != nil {
			return err
		}
		return out.Emit(l, func(w io.Writer) {
			fmt.Fprintf(w, "%s Created list %d %s\n", ui.RenderPass("✓"), l.ID, ui.RenderAccent(strings.Join(l.Path, " / ")))
		})
	},
}

var templateRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("template id", args[0])
		if err != nil {
			return err
		}
		deleted, err := application.Templates.DeleteTemplate(cmd.Context(), id)
		if err != nil {
			return err
		}
		return out.Emit(map[string]bool{"deleted": deleted}, func(w io.Writer) {
			if deleted {
				fmt.Fprintf(w, "%s Deleted template %d\n", ui.RenderPass("✓"), id)
			} else {
				fmt.Fprintf(w, "%s Template %d was already gone\n", ui.RenderWarn("⚠"), id)
			}
		})
	},
}

var templateImportCmd = &cobra.Command{
	Use:   "import FILE...",
	Short: "Import template files, replacing templates with the same name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var imported []*types.Template
		for _, path := range args {
			tpl, err := application.Templates.ImportFile(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			imported = append(imported, tpl)
		}
		return out.Emit(imported, func(w io.Writer) {
			for i, tpl := range imported {
				fmt.Fprintf(w, "%s %s -> template %d %s\n", ui.RenderPass("✓"), args[i], tpl.ID, tpl.Name)
			}
		})
	},
}

var templateExportCmd = &cobra.Command{
	Use:   "export ID FILE",
	Short: "Write a template to a TOML, YAML or JSON file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("template id", args[0])
		if err != nil {
			return err
		}
		if err := application.Templates.ExportFile(cmd.Context(), id, args[1]); err != nil {
			return err
		}
		return out.Emit(map[string]string{"path": args[1]}, func(w io.Writer) {
			fmt.Fprintf(w, "%s Wrote %s\n", ui.RenderPass("✓"), args[1])
		})
	},
}

var templateWatchCmd = &cobra.Command{
	Use:   "watch [DIR]",
	Short: "Import template files as they are written",
	Long: `Import every template file in DIR (default templates.dir), then keep
importing files as they are created or changed until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := application.Config.Templates.Dir
		if len(args) > 0 {
			dir = args[0]
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		fmt.Fprintf(os.Stderr, "Watching %s (Ctrl+C to stop)\n", dir)
		return watchTemplates(ctx, dir)
	},
}

// watchTemplates imports what dir holds and then follows changes until ctx
// is cancelled.
func watchTemplates(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create template directory: %w", err)
	}
	w, err := templates.NewWatcher(application.Templates, dir, templates.DefaultDebounce)
	if err != nil {
		return err
	}
	for _, r := range w.ImportExisting(ctx) {
		reportImport(r)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range w.Results() {
			reportImport(r)
		}
	}()
	err = w.Run(ctx)
	<-done
	return err
}

func reportImport(r templates.ImportResult) {
	if r.Err != nil {
		application.Log.WithError(r.Err).WithField("path", r.Path).Warn("template import failed")
		fmt.Fprintf(os.Stderr, "%s %s: %s\n", ui.RenderFail("✗"), r.Path, describe(r.Err))
		return
	}
	application.Log.WithFields(logrus.Fields{"path": r.Path, "template_id": r.Template.ID}).Info("template imported")
	fmt.Fprintf(os.Stderr, "%s %s -> template %d %s\n", ui.RenderPass("✓"), r.Path, r.Template.ID, r.Template.Name)
}

func init() {
	templateCreateCmd.Flags().StringP("description", "d", "", "description")
	templateCreateCmd.Flags().StringP("category", "c", "", "category")
	templateCreateCmd.Flags().String("version", "", "semantic version (default 1.0.0)")
	templateCreateCmd.Flags().StringArrayP("task", "t", nil, "task title, repeatable")
	templateFromListCmd.Flags().StringP("description", "d", "", "description")
	templateFromListCmd.Flags().StringP("category", "c", "", "category")
	templateAddTaskCmd.Flags().StringP("description", "d", "", "task description")
	templateAddTaskCmd.Flags().StringP("priority", "p", "", "task priority")
	templateAddTaskCmd.Flags().Float64("estimate", 0, "estimated hours")
	templateLsCmd.Flags().StringP("category", "c", "", "only this category")
	templateApplyCmd.Flags().StringP("description", "d", "", "description of the new list")
	templateApplyCmd.Flags().Int64("parent", 0, "parent list id")
	templateApplyCmd.Flags().StringToString("param", nil, "placeholder value as name=value, repeatable")

	templateCmd.AddCommand(templateCreateCmd, templateFromListCmd, templateAddTaskCmd, templateShowCmd,
		templateLsCmd, templateApplyCmd, templateRmCmd, templateImportCmd, templateExportCmd, templateWatchCmd)
	rootCmd.AddCommand(templateCmd)
}
