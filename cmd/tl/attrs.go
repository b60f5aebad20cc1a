package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tasklattice/tasklattice/internal/attributes"
	"github.com/tasklattice/tasklattice/internal/types"
	"github.com/tasklattice/tasklattice/internal/ui"
)

var attrCmd = &cobra.Command{
	Use:     "attr",
	GroupID: "organize",
	Short:   "Define custom attributes and set their values",
	Long: `Define custom attributes and set their values on tasks and lists.

Types: text, integer, decimal, date, datetime, boolean, single_choice,
multiple_choice, url, file_reference. Validation rules are a JSON object,
for example '{"min": 1, "max": 5}' or '{"choices": ["S", "M", "L"]}'.`,
}

var attrDefineCmd = &cobra.Command{
	Use:   "define NAME TYPE",
	Short: "Create an attribute definition",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := types.ParseAttributeType(args[1])
		if err != nil {
			return err
		}
		in := attributes.DefinitionInput{Name: args[0], Type: typ}
		in.IsRequired, _ = cmd.Flags().GetBool("required")
		in.DefaultValue, _ = cmd.Flags().GetString("default")
		if rules, _ := cmd.Flags().GetString("rules"); rules != "" {
			if !json.Valid([]byte(rules)) {
				return types.Validationf("--rules must be a JSON object")
			}
			in.ValidationRules = json.RawMessage(rules)
		}
		d, err := application.Attributes.CreateAttributeDefinition(cmd.Context(), in)
		if err != nil {
			return err
		}
		return out.Emit(d, func(w io.Writer) {
			fmt.Fprintf(w, "%s Defined attribute %d %s (%s)\n", ui.RenderPass("✓"), d.ID, ui.RenderAccent(d.Name), d.Type)
		})
	},
}

var attrShowCmd = &cobra.Command{
	Use:   "show ID|NAME",
	Short: "Show an attribute definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := resolveDefinition(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return out.Emit(d, func(w io.Writer) {
			fmt.Fprintf(w, "%s %s\n", ui.RenderAccent(d.Name), ui.RenderMuted("#"+strconv.FormatInt(d.ID, 10)))
			fmt.Fprintf(w, "  type:     %s\n", d.Type)
			fmt.Fprintf(w, "  required: %t\n", d.IsRequired)
			if d.DefaultValue != "" {
				fmt.Fprintf(w, "  default:  %s\n", d.DefaultValue)
			}
			if len(d.ValidationRules) > 0 {
				fmt.Fprintf(w, "  rules:    %s\n", d.ValidationRules)
			}
		})
	},
}

var attrLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List attribute definitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		defs, err := application.Attributes.ListDefinitions(cmd.Context())
		if err != nil {
			return err
		}
		return out.Emit(defs, func(w io.Writer) {
			if len(defs) == 0 {
				fmt.Fprintln(w, ui.RenderMuted("No attributes"))
				return
			}
			rows := make([][]string, 0, len(defs))
			for _, d := range defs {
				rows = append(rows, []string{strconv.FormatInt(d.ID, 10), d.Name, string(d.Type), strconv.FormatBool(d.IsRequired), d.DefaultValue})
			}
			out.Table([]string{"ID", "NAME", "TYPE", "REQUIRED", "DEFAULT"}, rows)
		})
	},
}

var attrRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a definition and all its values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("attribute id", args[0])
		if err != nil {
			return err
		}
		deleted, err := application.Attributes.DeleteAttributeDefinition(cmd.Context(), id)
		if err != nil {
			return err
		}
		return out.Emit(map[string]bool{"deleted": deleted}, func(w io.Writer) {
			if deleted {
				fmt.Fprintf(w, "%s Deleted attribute %d\n", ui.RenderPass("✓"), id)
			} else {
				fmt.Fprintf(w, "%s Attribute %d was already gone\n", ui.RenderWarn("⚠"), id)
			}
		})
	},
}

var attrSetCmd = &cobra.Command{
	Use:   "set task|list ID ATTR VALUE",
	Short: "Set an attribute value",
	Long: `Set an attribute value. An empty VALUE is rejected for a required
attribute. For an optional one it applies the default, or clears the value
when there is no default.`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, id, err := attrTarget(args[0], args[1])
		if err != nil {
			return err
		}
		d, err := resolveDefinition(cmd.Context(), args[2])
		if err != nil {
			return err
		}
		v, err := application.Attributes.Set(cmd.Context(), target, id, d.ID, args[3])
		if err != nil {
			return err
		}
		return out.Emit(map[string]any{"value": v}, func(w io.Writer) {
			if v == nil {
				fmt.Fprintf(w, "%s Cleared %s on %s %d\n", ui.RenderPass("✓"), d.Name, args[0], id)
				return
			}
			fmt.Fprintf(w, "%s %s %d: %s = %s\n", ui.RenderPass("✓"), args[0], id, d.Name, v.Value)
		})
	},
}

var attrUnsetCmd = &cobra.Command{
	Use:   "unset task|list ID ATTR",
	Short: "Remove an attribute value",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, id, err := attrTarget(args[0], args[1])
		if err != nil {
			return err
		}
		d, err := resolveDefinition(cmd.Context(), args[2])
		if err != nil {
			return err
		}
		removed, err := application.Attributes.Remove(cmd.Context(), target, id, d.ID)
		if err != nil {
			return err
		}
		return out.Emit(map[string]bool{"removed": removed}, func(w io.Writer) {
			if removed {
				fmt.Fprintf(w, "%s Removed %s from %s %d\n", ui.RenderPass("✓"), d.Name, args[0], id)
			} else {
				fmt.Fprintf(w, "%s %s %d has no %s\n", ui.RenderWarn("⚠"), args[0], id, d.Name)
			}
		})
	},
}

var attrValuesCmd = &cobra.Command{
	Use:   "values task|list ID",
	Short: "Show the attribute values of a task or list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, id, err := attrTarget(args[0], args[1])
		if err != nil {
			return err
		}
		values, err := application.Attributes.Values(cmd.Context(), target, id)
		if err != nil {
			return err
		}
		return out.Emit(values, func(w io.Writer) {
			if len(values) == 0 {
				fmt.Fprintln(w, ui.RenderMuted("No attributes"))
				return
			}
			rows := make([][]string, 0, len(values))
			for _, v := range values {
				rows = append(rows, []string{v.Name, string(v.Type), v.Value})
			}
			out.Table([]string{"NAME", "TYPE", "VALUE"}, rows)
		})
	},
}

func attrTarget(kind, id string) (attributes.Target, int64, error) {
	n, err := parseID(kind+" id", id)
	if err != nil {
		return attributes.Target{}, 0, err
	}
	switch kind {
	case "task":
		return attributes.TaskTarget, n, nil
	case "list":
		return attributes.ListTarget, n, nil
	}
	return attributes.Target{}, 0, types.Validationf("target %q must be task or list", kind)
}

// resolveDefinition accepts a numeric id or a definition name.
func resolveDefinition(ctx context.Context, ref string) (*types.AttributeDefinition, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return application.Attributes.GetDefinition(ctx, id)
	}
	return application.Attributes.GetDefinitionByName(ctx, ref)
}

func init() {
	attrDefineCmd.Flags().Bool("required", false, "values may not be empty")
	attrDefineCmd.Flags().String("default", "", "value used when none is given")
	attrDefineCmd.Flags().String("rules", "", "validation rules as JSON")

	attrCmd.AddCommand(attrDefineCmd, attrShowCmd, attrLsCmd, attrRmCmd, attrSetCmd, attrUnsetCmd, attrValuesCmd)
	rootCmd.AddCommand(attrCmd)
}
