// Package search composes filtered, sorted queries over tasks and lists and
// serves the aggregate read paths used for suggestions and analytics.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tasklattice/tasklattice/internal/hierarchy"
	"github.com/tasklattice/tasklattice/internal/lists"
	"github.com/tasklattice/tasklattice/internal/logging"
	"github.com/tasklattice/tasklattice/internal/metrics"
	"github.com/tasklattice/tasklattice/internal/storage"
	"github.com/tasklattice/tasklattice/internal/tags"
	"github.com/tasklattice/tasklattice/internal/tasks"
	"github.com/tasklattice/tasklattice/internal/types"
)

// Default caps for the read paths that always limit.
const (
	DefaultSuggestionLimit = 10
	DefaultTopTagsLimit    = 10
)

// Composer runs searches. It holds no state beyond its gateway.
type Composer struct {
	gw  storage.Gateway
	log logrus.FieldLogger
}

// NewComposer creates a composer.
func NewComposer(gw storage.Gateway, log logrus.FieldLogger) *Composer {
	return &Composer{gw: gw, log: logging.OrNop(log)}
}

// entity describes the table a search runs over.
type entity struct {
	alias   string
	tagRel  string
	attrRel string
	column  string
}

var (
	taskEntity = entity{alias: "t", tagRel: "task_tags", attrRel: "task_attributes", column: "task_id"}
	listEntity = entity{alias: "l", tagRel: "list_tags", attrRel: "list_attributes", column: "list_id"}
)

// SearchTasks returns the live tasks matching f.
func (c *Composer) SearchTasks(ctx context.Context, f SearchFilter) (out []*types.Task, err error) {
	defer metrics.Observe("search_tasks", time.Now(), &err)
	if err := f.validate(); err != nil {
		return nil, err
	}

	b := newBuilder("tasks t")
	b.where("t.deleted_at IS NULL")
	addText(b, f.Text, "t.title", "t.description", "t.notes")

	if len(f.Statuses) > 0 {
		vals := make([]any, len(f.Statuses))
		for i, s := range f.Statuses {
			vals[i] = string(s)
		}
		b.whereIn("t.status", vals)
	} else {
		if !f.IncludeCompleted {
			b.where("t.status != ?", string(types.StatusCompleted))
		}
		if !f.IncludeCancelled {
			b.where("t.status != ?", string(types.StatusCancelled))
		}
	}
	if len(f.Priorities) > 0 {
		vals := make([]any, len(f.Priorities))
		for i, p := range f.Priorities {
			vals[i] = string(p)
		}
		b.whereIn("t.priority", vals)
	}
	if len(f.ListIDs) > 0 {
		vals := make([]any, len(f.ListIDs))
		for i, id := range f.ListIDs {
			vals[i] = id
		}
		b.whereIn("t.list_id", vals)
	}

	addTags(b, taskEntity, f.Tags)
	addAttributes(b, taskEntity, f.Attributes)
	addRange(b, "t.due_date", f.Due)
	addRange(b, "t.created_at", f.Created)
	addRange(b, "t.completed_at", f.Completed)

	sortBy, _ := ParseSort(string(f.SortBy))
	dir, _ := ParseDirection(string(f.SortDir))
	d := strings.ToUpper(string(dir))
	switch sortBy {
	case SortCreated:
		b.order("t.created_at " + d)
	case SortDue:
		b.order("t.due_date IS NULL", "t.due_date "+d)
	case SortPriority:
		b.order(priorityRank("t.priority") + " " + d)
	case SortTitle:
		b.order("t.title COLLATE NOCASE " + d)
	default:
		b.order("t.updated_at " + d)
	}
	b.order("t.id " + d)
	b.limit = f.Limit

	query, args := b.build(tasks.Columns)
	err = storage.WithScope(ctx, c.gw, func(sc storage.Scope) error {
		rows, err := sc.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to search tasks: %w", err)
		}
		out, err = tasks.ScanAll(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{"op": "search_tasks", "results": len(out), "sort": sortBy}).Debug("task search")
	return out, nil
}

// SearchLists returns the live lists matching f, with depth and path set.
func (c *Composer) SearchLists(ctx context.Context, f ListSearchFilter) (out []*types.TaskList, err error) {
	defer metrics.Observe("search_lists", time.Now(), &err)
	if err := f.validate(); err != nil {
		return nil, err
	}

	b := newBuilder("lists l")
	b.where("l.deleted_at IS NULL")
	addText(b, f.Text, "l.name", "l.description")
	switch {
	case f.RootsOnly:
		b.where("l.parent_id IS NULL")
	case f.ParentID != nil:
		b.where("l.parent_id = ?", *f.ParentID)
	}
	addTags(b, listEntity, f.Tags)
	addAttributes(b, listEntity, f.Attributes)
	addRange(b, "l.created_at", f.Created)
	addRange(b, "l.updated_at", f.Updated)

	sortBy, _ := ParseSort(string(f.SortBy))
	dir, _ := ParseDirection(string(f.SortDir))
	d := strings.ToUpper(string(dir))
	switch sortBy {
	case SortCreated:
		b.order("l.created_at " + d)
	case SortTitle:
		b.order("l.name COLLATE NOCASE " + d)
	default:
		b.order("l.updated_at " + d)
	}
	b.order("l.id " + d)
	b.limit = f.Limit

	query, args := b.build(lists.Columns)
	err = storage.WithScope(ctx, c.gw, func(sc storage.Scope) error {
		rows, err := sc.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to search lists: %w", err)
		}
		if out, err = lists.ScanAll(rows); err != nil {
			return err
		}
		lookup := hierarchy.ScopeLookup(sc, "lists", true)
		for _, l := range out {
			chain, err := hierarchy.Chain(ctx, "list", l.ID, lookup)
			if err != nil {
				return err
			}
			l.Depth = hierarchy.Depth(chain)
			l.Path = hierarchy.Path(chain)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetSearchSuggestions returns distinct task titles, list names and tag
// names containing partial, alphabetically. limit <= 0 uses the default cap.
func (c *Composer) GetSearchSuggestions(ctx context.Context, partial string, limit int) (out []string, err error) {
	defer metrics.Observe("search_suggestions", time.Now(), &err)
	partial = strings.TrimSpace(partial)
	if partial == "" {
		return []string{}, nil
	}
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	pattern := storage.Contains(partial)
	err = storage.WithScope(ctx, c.gw, func(sc storage.Scope) error {
		rows, err := sc.Query(ctx, `
			SELECT title FROM tasks WHERE deleted_at IS NULL AND title LIKE ? ESCAPE '\'
			UNION
			SELECT name FROM lists WHERE deleted_at IS NULL AND name LIKE ? ESCAPE '\'
			UNION
			SELECT name FROM tags WHERE name LIKE ? ESCAPE '\'
			ORDER BY 1 COLLATE NOCASE
			LIMIT ?
		`, pattern, pattern, pattern, limit)
		if err != nil {
			return fmt.Errorf("failed to read suggestions: %w", err)
		}
		defer rows.Close()
		out = []string{}
		for rows.Next() {
			var s string
			if err := rows.Scan(&s); err != nil {
				return fmt.Errorf("failed to scan suggestion: %w", err)
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	return out, err
}

// GetTaskCountByStatus counts live tasks per status, optionally within one
// list. Every status is present in the result.
func (c *Composer) GetTaskCountByStatus(ctx context.Context, listID *int64) (out map[types.Status]int, err error) {
	defer metrics.Observe("task_count_by_status", time.Now(), &err)
	b := newBuilder("tasks t")
	b.where("t.deleted_at IS NULL")
	if listID != nil {
		b.where("t.list_id = ?", *listID)
	}
	b.groupBy = "t.status"
	query, args := b.build("t.status, COUNT(*)")

	out = make(map[types.Status]int, len(types.AllStatuses))
	for _, s := range types.AllStatuses {
		out[s] = 0
	}
	err = storage.WithScope(ctx, c.gw, func(sc storage.Scope) error {
		rows, err := sc.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to count tasks: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				status string
				n      int
			)
			if err := rows.Scan(&status, &n); err != nil {
				return fmt.Errorf("failed to scan task count: %w", err)
			}
			out[types.Status(status)] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetMostUsedTags ranks tags by their associations with live tasks and
// lists. Unused tags are omitted. limit <= 0 uses the default cap.
func (c *Composer) GetMostUsedTags(ctx context.Context, limit int) (out []types.TagUsage, err error) {
	defer metrics.Observe("most_used_tags", time.Now(), &err)
	if limit <= 0 {
		limit = DefaultTopTagsLimit
	}
	err = storage.WithScope(ctx, c.gw, func(sc storage.Scope) error {
		rows, err := sc.Query(ctx, `
			SELECT `+tags.Columns+`, COUNT(*) AS uses
			FROM tags g
			JOIN (
				SELECT tt.tag_id FROM task_tags tt JOIN tasks t ON t.id = tt.task_id WHERE t.deleted_at IS NULL
				UNION ALL
				SELECT lt.tag_id FROM list_tags lt JOIN lists l ON l.id = lt.list_id WHERE l.deleted_at IS NULL
			) u ON u.tag_id = g.id
			GROUP BY g.id
			ORDER BY uses DESC, g.name COLLATE NOCASE
			LIMIT ?
		`, limit)
		if err != nil {
			return fmt.Errorf("failed to rank tags: %w", err)
		}
		defer rows.Close()
		out = []types.TagUsage{}
		for rows.Next() {
			var n int
			g, err := tags.Scan(withExtra{Row: rows, extra: []any{&n}})
			if err != nil {
				return fmt.Errorf("failed to scan tag usage: %w", err)
			}
			out = append(out, types.TagUsage{Tag: *g, Count: n})
		}
		return rows.Err()
	})
	return out, err
}

// withExtra scans trailing columns after the ones a Scan helper reads.
type withExtra struct {
	storage.Row
	extra []any
}

func (r withExtra) Scan(dest ...any) error {
	return r.Row.Scan(append(dest, r.extra...)...)
}

func addText(b *builder, text string, columns ...string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	pattern := storage.Contains(text)
	terms := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		terms[i] = col + ` LIKE ? ESCAPE '\'`
		args[i] = pattern
	}
	b.whereAny(terms, args)
}

// addTags joins the tag association once and matches any of names. Rows
// are grouped by id so an entity carrying several matching tags appears once.
func addTags(b *builder, e entity, names []string) {
	names = tags.NormalizeNames(names)
	if len(names) == 0 {
		return
	}
	b.join(fmt.Sprintf(`JOIN %s tgr ON tgr.%s = %s.id JOIN tags tg ON tg.id = tgr.tag_id`, e.tagRel, e.column, e.alias))
	terms := make([]string, len(names))
	args := make([]any, len(names))
	for i, n := range names {
		terms[i] = "tg.name = ? COLLATE NOCASE"
		args[i] = n
	}
	b.whereAny(terms, args)
	b.groupBy = e.alias + ".id"
}

// addAttributes adds one join pair per filter so that every filter must
// match its own attribute row.
func addAttributes(b *builder, e entity, filters []AttributeFilter) {
	for _, f := range filters {
		v := b.alias("av")
		d := b.alias("ad")
		b.join(fmt.Sprintf(`JOIN %[1]s %[2]s ON %[2]s.%[3]s = %[4]s.id JOIN attribute_definitions %[5]s ON %[5]s.id = %[2]s.attribute_definition_id AND %[5]s.name = ? COLLATE NOCASE`,
			e.attrRel, v, e.column, e.alias, d), strings.TrimSpace(f.Name))
		if value := strings.TrimSpace(f.Value); value != "" {
			b.where(v+`.value LIKE ? ESCAPE '\'`, storage.Contains(value))
		}
	}
}

func addRange(b *builder, column string, r Range) {
	if r.After != nil {
		b.where(column+" >= ?", storage.FormatTime(*r.After))
	}
	if r.Before != nil {
		b.where(column+" < ?", storage.FormatTime(*r.Before))
	}
}

// priorityRank maps priority names to their sort weight.
func priorityRank(column string) string {
	var sb strings.Builder
	sb.WriteString("CASE ")
	sb.WriteString(column)
	for _, p := range []types.Priority{types.PriorityLow, types.PriorityNormal, types.PriorityHigh, types.PriorityCritical} {
		fmt.Fprintf(&sb, " WHEN '%s' THEN %d", p, p.Rank())
	}
	sb.WriteString(" END")
	return sb.String()
}
