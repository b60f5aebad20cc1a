package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tasklattice/tasklattice/internal/migrate"
	"github.com/tasklattice/tasklattice/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export [FILE]",
	GroupID: "data",
	Short:   "Export everything as JSONL",
	Long: `Write every live list, task, tag, template, attribute definition,
association and attribute value as one JSON record per line. Without FILE
the records go to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			_, err := migrate.Export(cmd.Context(), application.Migration(), os.Stdout)
			return err
		}
		res, err := migrate.ExportFile(cmd.Context(), application.Migration(), args[0])
		if err != nil {
			return err
		}
		return out.Emit(res, func(w io.Writer) {
			fmt.Fprintf(w, "%s Exported to %s\n", ui.RenderPass("✓"), args[0])
			printResult(w, res)
		})
	},
}

var importCmd = &cobra.Command{
	Use:     "import FILE",
	GroupID: "data",
	Short:   "Import a JSONL export",
	Long: `Import a JSONL export. Ids are remapped, so the file can be loaded into
a store that already holds data. Records that fail are reported and
skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := migrate.ImportFile(cmd.Context(), application.Migration(), args[0])
		if err != nil {
			return err
		}
		return out.Emit(res, func(w io.Writer) {
			fmt.Fprintf(w, "%s Imported %s\n", ui.RenderPass("✓"), args[0])
			printResult(w, res)
		})
	},
}

func printResult(w io.Writer, r *migrate.Result) {
	fmt.Fprintf(w, "  lists: %d  tasks: %d  tags: %d  templates: %d\n", r.Lists, r.Tasks, r.Tags, r.Templates)
	fmt.Fprintf(w, "  attributes: %d  associations: %d  values: %d\n", r.Attributes, r.Associations, r.Values)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s %s\n", ui.RenderWarn("⚠"), e)
	}
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
}
