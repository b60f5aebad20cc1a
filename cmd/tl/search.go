package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tasklattice/tasklattice/internal/search"
	"github.com/tasklattice/tasklattice/internal/types"
	"github.com/tasklattice/tasklattice/internal/ui"
)

var searchCmd = &cobra.Command{
	Use:     "search",
	GroupID: "data",
	Short:   "Search tasks and lists",
}

var searchTasksCmd = &cobra.Command{
	Use:   "tasks [QUERY]",
	Short: "Search tasks by text, status, priority, tags, attributes and dates",
	Long: `Search tasks.

Repeated values of one flag are alternatives; different flags must all
match. Completed and cancelled tasks are left out unless --all is given or
--status names them. Date bounds accept the same forms as due dates.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var f search.SearchFilter
		if len(args) > 0 {
			f.Text = args[0]
		}
		statuses, _ := cmd.Flags().GetStringSlice("status")
		for _, s := range statuses {
			st, err := types.ParseStatus(s)
			if err != nil {
				return err
			}
			f.Statuses = append(f.Statuses, st)
		}
		priorities, _ := cmd.Flags().GetStringSlice("priority")
		for _, s := range priorities {
			p, err := types.ParsePriority(s)
			if err != nil {
				return err
			}
			f.Priorities = append(f.Priorities, p)
		}
		f.ListIDs, _ = cmd.Flags().GetInt64Slice("list")
		f.Tags, _ = cmd.Flags().GetStringSlice("tag")
		var err error
		if f.Attributes, err = attributeFilters(cmd); err != nil {
			return err
		}
		if f.Due, err = rangeFlags(cmd, "due"); err != nil {
			return err
		}
		if f.Created, err = rangeFlags(cmd, "created"); err != nil {
			return err
		}
		if f.Completed, err = rangeFlags(cmd, "completed"); err != nil {
			return err
		}
		all, _ := cmd.Flags().GetBool("all")
		f.IncludeCompleted, f.IncludeCancelled = all, all
		if f.SortBy, f.SortDir, err = sortFlags(cmd); err != nil {
			return err
		}
		f.Limit = limitFlag(cmd)

		ts, err := application.Search.SearchTasks(cmd.Context(), f)
		if err != nil {
			return err
		}
		return out.Emit(ts, func(io.Writer) { printTasks(ts) })
	},
}

var searchListsCmd = &cobra.Command{
	Use:   "lists [QUERY]",
	Short: "Search lists by text, parent, tags and attributes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var f search.ListSearchFilter
		if len(args) > 0 {
			f.Text = args[0]
		}
		var err error
		if f.ParentID, err = optionalID(cmd, "parent"); err != nil {
			return err
		}
		f.RootsOnly, _ = cmd.Flags().GetBool("roots")
		f.Tags, _ = cmd.Flags().GetStringSlice("tag")
		if f.Attributes, err = attributeFilters(cmd); err != nil {
			return err
		}
		if f.Created, err = rangeFlags(cmd, "created"); err != nil {
			return err
		}
		if f.Updated, err = rangeFlags(cmd, "updated"); err != nil {
			return err
		}
		if f.SortBy, f.SortDir, err = sortFlags(cmd); err != nil {
			return err
		}
		f.Limit = limitFlag(cmd)

		found, err := application.Search.SearchLists(cmd.Context(), f)
		if err != nil {
			return err
		}
		return out.Emit(found, func(w io.Writer) {
			if len(found) == 0 {
				fmt.Fprintln(w, ui.RenderMuted("No lists"))
				return
			}
			rows := make([][]string, 0, len(found))
			for _, l := range found {
				rows = append(rows, []string{strconv.FormatInt(l.ID, 10), strings.Join(l.Path, " / "), deref(l.ParentID)})
			}
			out.Table([]string{"ID", "PATH", "PARENT"}, rows)
		})
	},
}

var searchSuggestCmd = &cobra.Command{
	Use:   "suggest PARTIAL",
	Short: "Suggest task titles, list names and tag names",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit := application.Config.Search.SuggestionLimit
		if cmd.Flags().Changed("limit") {
			limit, _ = cmd.Flags().GetInt("limit")
		}
		got, err := application.Search.GetSearchSuggestions(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		return out.Emit(got, func(w io.Writer) {
			for _, s := range got {
				fmt.Fprintln(w, s)
			}
		})
	},
}

var searchStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count tasks by status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		listID, err := optionalID(cmd, "list")
		if err != nil {
			return err
		}
		counts, err := application.Search.GetTaskCountByStatus(cmd.Context(), listID)
		if err != nil {
			return err
		}
		return out.Emit(counts, func(io.Writer) {
			rows := make([][]string, 0, len(types.AllStatuses))
			for _, s := range types.AllStatuses {
				rows = append(rows, []string{ui.RenderStatus(s), strconv.Itoa(counts[s])})
			}
			out.Table([]string{"STATUS", "TASKS"}, rows)
		})
	},
}

var searchTopTagsCmd = &cobra.Command{
	Use:   "top-tags",
	Short: "Show the most used tags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		usage, err := application.Search.GetMostUsedTags(cmd.Context(), limit)
		if err != nil {
			return err
		}
		return out.Emit(usage, func(w io.Writer) {
			if len(usage) == 0 {
				fmt.Fprintln(w, ui.RenderMuted("No tags in use"))
				return
			}
			rows := make([][]string, 0, len(usage))
			for _, u := range usage {
				rows = append(rows, []string{u.Tag.Name, strconv.Itoa(u.Count)})
			}
			out.Table([]string{"TAG", "USES"}, rows)
		})
	},
}

// attributeFilters parses repeated --attr name=value flags. A bare name
// matches any stored value.
func attributeFilters(cmd *cobra.Command) ([]search.AttributeFilter, error) {
	raw, _ := cmd.Flags().GetStringArray("attr")
	filters := make([]search.AttributeFilter, 0, len(raw))
	for _, r := range raw {
		name, value, _ := strings.Cut(r, "=")
		if strings.TrimSpace(name) == "" {
			return nil, types.Validationf("--attr %q has no name", r)
		}
		filters = append(filters, search.AttributeFilter{Name: strings.TrimSpace(name), Value: value})
	}
	return filters, nil
}

// rangeFlags reads --<prefix>-after and --<prefix>-before.
func rangeFlags(cmd *cobra.Command, prefix string) (search.Range, error) {
	var r search.Range
	var err error
	parse := func(flag string) (*time.Time, error) {
		s, _ := cmd.Flags().GetString(flag)
		t, err := application.Dates.ParseOptional(s)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", flag, err)
		}
		return t, nil
	}
	if r.After, err = parse(prefix + "-after"); err != nil {
		return r, err
	}
	r.Before, err = parse(prefix + "-before")
	return r, err
}

func sortFlags(cmd *cobra.Command) (search.SortField, search.Direction, error) {
	by, _ := cmd.Flags().GetString("sort")
	dir, _ := cmd.Flags().GetString("dir")
	field, err := search.ParseSort(by)
	if err != nil {
		return "", "", err
	}
	d, err := search.ParseDirection(dir)
	return field, d, err
}

func limitFlag(cmd *cobra.Command) int {
	if cmd.Flags().Changed("limit") {
		n, _ := cmd.Flags().GetInt("limit")
		return n
	}
	return application.Config.Search.DefaultLimit
}

func addRangeFlags(cmd *cobra.Command, prefixes ...string) {
	for _, p := range prefixes {
		cmd.Flags().String(p+"-after", "", p+" on or after this date")
		cmd.Flags().String(p+"-before", "", p+" before this date")
	}
}

func init() {
	f := searchTasksCmd.Flags()
	f.StringSliceP("status", "s", nil, "status, repeatable")
	f.StringSliceP("priority", "p", nil, "priority, repeatable")
	f.Int64SliceP("list", "l", nil, "list id, repeatable")
	f.StringSliceP("tag", "t", nil, "tag name, repeatable")
	f.StringArray("attr", nil, "attribute as name=value, repeatable")
	f.BoolP("all", "a", false, "include completed and cancelled tasks")
	f.String("sort", "", "created, due, priority, title, updated or relevance")
	f.String("dir", "", "asc or desc")
	f.Int("limit", 0, "maximum results (default search.default_limit)")
	addRangeFlags(searchTasksCmd, "due", "created", "completed")

	f = searchListsCmd.Flags()
	f.Int64("parent", 0, "only children of this list")
	f.Bool("roots", false, "only root lists")
	f.StringSliceP("tag", "t", nil, "tag name, repeatable")
	f.StringArray("attr", nil, "attribute as name=value, repeatable")
	f.String("sort", "", "created, title, updated or relevance")
	f.String("dir", "", "asc or desc")
	f.Int("limit", 0, "maximum results (default search.default_limit)")
	addRangeFlags(searchListsCmd, "created", "updated")
	searchListsCmd.MarkFlagsMutuallyExclusive("parent", "roots")

	searchSuggestCmd.Flags().Int("limit", 0, "maximum suggestions (default search.suggestion_limit)")
	searchStatsCmd.Flags().Int64P("list", "l", 0, "only this list")
	searchTopTagsCmd.Flags().Int("limit", search.DefaultTopTagsLimit, "maximum tags")

	searchCmd.AddCommand(searchTasksCmd, searchListsCmd, searchSuggestCmd, searchStatsCmd, searchTopTagsCmd)
	rootCmd.AddCommand(searchCmd)
}
