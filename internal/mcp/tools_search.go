package mcp

import (
	"context"
	"sort"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/tasklattice/tasklattice/internal/search"
	"github.com/tasklattice/tasklattice/internal/types"
)

const sortDesc = "created, due, priority, title, updated or relevance (default, same as updated)"

func (s *Server) registerSearch() {
	s.add(mcpgo.NewTool("search_tasks",
		mcpgo.WithDescription("Search tasks. Groups combine with AND; text and tag values are alternatives. Completed and cancelled tasks are excluded unless included or named in statuses"),
		mcpgo.WithString("query", mcpgo.Description("Substring of title, description or notes")),
		stringList("statuses", statusDesc),
		stringList("priorities", priorityDesc),
		mcpgo.WithArray("list_ids", mcpgo.Description("Owning list ids"), mcpgo.Items(map[string]any{"type": "number"})),
		stringList("tags", "Tag names, any of which must be attached"),
		mcpgo.WithObject("attributes", mcpgo.Description("Attribute name to value substring; an empty value matches any value")),
		mcpgo.WithString("due_after", mcpgo.Description("Inclusive lower bound, "+dateDesc)),
		mcpgo.WithString("due_before", mcpgo.Description("Exclusive upper bound")),
		mcpgo.WithString("created_after", mcpgo.Description("Inclusive lower bound")),
		mcpgo.WithString("created_before", mcpgo.Description("Exclusive upper bound")),
		mcpgo.WithString("completed_after", mcpgo.Description("Inclusive lower bound")),
		mcpgo.WithString("completed_before", mcpgo.Description("Exclusive upper bound")),
		mcpgo.WithBoolean("include_completed", mcpgo.Description("Include completed tasks")),
		mcpgo.WithBoolean("include_cancelled", mcpgo.Description("Include cancelled tasks")),
		mcpgo.WithString("sort_by", mcpgo.Description(sortDesc)),
		mcpgo.WithString("sort_direction", mcpgo.Description("asc or desc (default)")),
		mcpgo.WithNumber("limit", mcpgo.Description("Maximum results, 0 for no limit")),
		readOnly(),
	), s.searchTasks)

	s.add(mcpgo.NewTool("search_lists",
		mcpgo.WithDescription("Search lists by name, parent, tags, attributes and dates"),
		mcpgo.WithString("query", mcpgo.Description("Substring of name or description")),
		mcpgo.WithNumber("parent_id", mcpgo.Description("Only direct children of this list")),
		mcpgo.WithBoolean("roots_only", mcpgo.Description("Only lists without a parent")),
		stringList("tags", "Tag names, any of which must be attached"),
		mcpgo.WithObject("attributes", mcpgo.Description("Attribute name to value substring")),
		mcpgo.WithString("created_after", mcpgo.Description("Inclusive lower bound")),
		mcpgo.WithString("created_before", mcpgo.Description("Exclusive upper bound")),
		mcpgo.WithString("updated_after", mcpgo.Description("Inclusive lower bound")),
		mcpgo.WithString("updated_before", mcpgo.Description("Exclusive upper bound")),
		mcpgo.WithString("sort_by", mcpgo.Description("created, title, updated or relevance")),
		mcpgo.WithString("sort_direction", mcpgo.Description("asc or desc (default)")),
		mcpgo.WithNumber("limit", mcpgo.Description("Maximum results, 0 for no limit")),
		readOnly(),
	), s.searchLists)

	s.add(mcpgo.NewTool("get_search_suggestions",
		mcpgo.WithDescription("Distinct task titles, list names and tag names containing the query, alphabetical"),
		mcpgo.WithString("query", mcpgo.Required(), mcpgo.Description("Partial text")),
		mcpgo.WithNumber("limit", mcpgo.Description("Maximum suggestions")),
		readOnly(),
	), s.suggestions)

	s.add(mcpgo.NewTool("get_task_count_by_status",
		mcpgo.WithDescription("Count live tasks per status"),
		mcpgo.WithNumber("list_id", mcpgo.Description("Only tasks in this list")),
		readOnly(),
	), s.countByStatus)

	s.add(mcpgo.NewTool("get_most_used_tags",
		mcpgo.WithDescription("Tags ordered by how many live tasks and lists carry them"),
		mcpgo.WithNumber("limit", mcpgo.Description("Maximum tags")),
		readOnly(),
	), s.mostUsedTags)
}

func (a args) rng(prefix string) (search.Range, error) {
	var (
		r   search.Range
		err error
	)
	if r.After, err = a.time(prefix + "_after"); err != nil {
		return r, err
	}
	r.Before, err = a.time(prefix + "_before")
	return r, err
}

// attrFilters accepts {"name":"value"} or [{"name":..,"value":..}].
func (a args) attrFilters(key string) ([]search.AttributeFilter, error) {
	if !a.has(key) {
		return nil, nil
	}
	if list, isList := a.m[key].([]any); isList {
		out := make([]search.AttributeFilter, 0, len(list))
		for i, item := range list {
			obj, isObj := item.(map[string]any)
			if !isObj {
				return nil, types.Validationf("%s[%d] must be an object", key, i)
			}
			sub := args{m: obj}
			name, err := sub.requireStr("name")
			if err != nil {
				return nil, types.Validationf("%s[%d]: %s", key, i, types.MessageOf(err))
			}
			value, err := sub.str("value")
			if err != nil {
				return nil, err
			}
			out = append(out, search.AttributeFilter{Name: name, Value: value})
		}
		return out, nil
	}
	m, err := a.strMap(key)
	if err != nil {
		return nil, err
	}
	out := make([]search.AttributeFilter, 0, len(m))
	for name, value := range m {
		out = append(out, search.AttributeFilter{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (a args) ordering() (search.SortField, search.Direction, error) {
	by, err := a.str("sort_by")
	if err != nil {
		return "", "", err
	}
	field, err := search.ParseSort(by)
	if err != nil {
		return "", "", err
	}
	dir, err := a.str("sort_direction")
	if err != nil {
		return "", "", err
	}
	d, err := search.ParseDirection(dir)
	return field, d, err
}

func (s *Server) searchTasks(ctx context.Context, a args) (any, error) {
	var (
		f   search.SearchFilter
		err error
	)
	if f.Text, err = a.str("query"); err != nil {
		return nil, err
	}
	statuses, err := a.strs("statuses")
	if err != nil {
		return nil, err
	}
	for _, v := range statuses {
		st, err := types.ParseStatus(v)
		if err != nil {
			return nil, err
		}
		f.Statuses = append(f.Statuses, st)
	}
	priorities, err := a.strs("priorities")
	if err != nil {
		return nil, err
	}
	for _, v := range priorities {
		p, err := types.ParsePriority(v)
		if err != nil {
			return nil, err
		}
		f.Priorities = append(f.Priorities, p)
	}
	if f.ListIDs, err = a.ids("list_ids"); err != nil {
		return nil, err
	}
	if f.Tags, err = a.strs("tags"); err != nil {
		return nil, err
	}
	if f.Attributes, err = a.attrFilters("attributes"); err != nil {
		return nil, err
	}
	if f.Due, err = a.rng("due"); err != nil {
		return nil, err
	}
	if f.Created, err = a.rng("created"); err != nil {
		return nil, err
	}
	if f.Completed, err = a.rng("completed"); err != nil {
		return nil, err
	}
	if f.IncludeCompleted, err = a.boolean("include_completed"); err != nil {
		return nil, err
	}
	if f.IncludeCancelled, err = a.boolean("include_cancelled"); err != nil {
		return nil, err
	}
	if f.SortBy, f.SortDir, err = a.ordering(); err != nil {
		return nil, err
	}
	if f.Limit, err = a.limit("limit", s.app.Config.Search.DefaultLimit); err != nil {
		return nil, err
	}
	out, err := s.app.Search.SearchTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*types.Task{}
	}
	return out, nil
}

func (s *Server) searchLists(ctx context.Context, a args) (any, error) {
	var (
		f   search.ListSearchFilter
		err error
	)
	if f.Text, err = a.str("query"); err != nil {
		return nil, err
	}
	if f.ParentID, err = a.optID("parent_id"); err != nil {
		return nil, err
	}
	if f.RootsOnly, err = a.boolean("roots_only"); err != nil {
		return nil, err
	}
	if f.Tags, err = a.strs("tags"); err != nil {
		return nil, err
	}
	if f.Attributes, err = a.attrFilters("attributes"); err != nil {
		return nil, err
	}
	if f.Created, err = a.rng("created"); err != nil {
		return nil, err
	}
	if f.Updated, err = a.rng("updated"); err != nil {
		return nil, err
	}
	if f.SortBy, f.SortDir, err = a.ordering(); err != nil {
		return nil, err
	}
	if f.Limit, err = a.limit("limit", s.app.Config.Search.DefaultLimit); err != nil {
		return nil, err
	}
	out, err := s.app.Search.SearchLists(ctx, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*types.TaskList{}
	}
	return out, nil
}

func (s *Server) suggestions(ctx context.Context, a args) (any, error) {
	q, err := a.requireStr("query")
	if err != nil {
		return nil, err
	}
	limit, err := a.limit("limit", s.app.Config.Search.SuggestionLimit)
	if err != nil {
		return nil, err
	}
	out, err := s.app.Search.GetSearchSuggestions(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (s *Server) countByStatus(ctx context.Context, a args) (any, error) {
	listID, err := a.optID("list_id")
	if err != nil {
		return nil, err
	}
	return s.app.Search.GetTaskCountByStatus(ctx, listID)
}

func (s *Server) mostUsedTags(ctx context.Context, a args) (any, error) {
	limit, err := a.limit("limit", search.DefaultTopTagsLimit)
	if err != nil {
		return nil, err
	}
	out, err := s.app.Search.GetMostUsedTags(ctx, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []types.TagUsage{}
	}
	return out, nil
}
