// Package tags manages the hierarchical tag forest and its associations with
// tasks and lists.
//
// Tag names are unique ignoring case. Deleting a tag is a hard delete: its
// associations go with it and its children become roots.
package tags

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tasklattice/tasklattice/internal/events"
	"github.com/tasklattice/tasklattice/internal/hierarchy"
	"github.com/tasklattice/tasklattice/internal/logging"
	"github.com/tasklattice/tasklattice/internal/metrics"
	"github.com/tasklattice/tasklattice/internal/storage"
	"github.com/tasklattice/tasklattice/internal/types"
)

// Manager owns tag rows and tag associations.
type Manager struct {
	gw     storage.Gateway
	log    logrus.FieldLogger
	notify events.Notifier
	now    func() time.Time
}

// NewManager creates a tag manager.
func NewManager(gw storage.Gateway, log logrus.FieldLogger, notify events.Notifier) *Manager {
	if notify == nil {
		notify = events.Nop
	}
	return &Manager{gw: gw, log: logging.OrNop(log), notify: notify, now: func() time.Time { return time.Now().UTC() }}
}

// TagInput holds the fields of a new tag.
type TagInput struct {
	Name     string
	Color    string
	ParentID *int64
}

// TagPatch holds the fields to change. ClearParent makes the tag a root.
type TagPatch struct {
	Name        *string
	Color       *string
	ParentID    *int64
	ClearParent bool
}

// Target identifies the association table for one entity kind.
type Target struct {
	entity string
	table  string
	assoc  string
	column string
}

var (
	// TaskTarget associates tags with tasks.
	TaskTarget = Target{entity: "task", table: "tasks", assoc: "task_tags", column: "task_id"}
	// ListTarget associates tags with lists.
	ListTarget = Target{entity: "list", table: "lists", assoc: "list_tags", column: "list_id"}
)

// Columns is the tag column list for queries aliasing tags as g.
const Columns = `g.id, g.name, g.color, g.parent_id, g.created_at`

// Scan reads one row selected with Columns.
func Scan(row storage.Row) (*types.Tag, error) {
	var (
		g       types.Tag
		parent  sql.NullInt64
		created string
	)
	if err := row.Scan(&g.ID, &g.Name, &g.Color, &parent, &created); err != nil {
		return nil, err
	}
	g.ParentID = storage.NullToID(parent)
	g.CreatedAt = storage.ParseTime(created)
	return &g, nil
}

func scanAll(rows storage.Rows) ([]*types.Tag, error) {
	defer rows.Close()
	var out []*types.Tag
	for rows.Next() {
		g, err := Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tags: %w", err)
	}
	return out, nil
}

// CreateTag validates and inserts a tag.
func (m *Manager) CreateTag(ctx context.Context, in TagInput) (tag *types.Tag, err error) {
	defer metrics.Observe("create_tag", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		g := &types.Tag{Name: strings.TrimSpace(in.Name), Color: strings.TrimSpace(in.Color), ParentID: in.ParentID, CreatedAt: m.now()}
		if err := g.Validate(); err != nil {
			return err
		}
		if err := requireUniqueName(ctx, sc, g.Name, 0); err != nil {
			return err
		}
		if g.ParentID != nil {
			if _, err := getTx(ctx, sc, *g.ParentID); err != nil {
				return err
			}
		}

		res, err := sc.Exec(ctx, `INSERT INTO tags (name, color, parent_id, created_at) VALUES (?, ?, ?, ?)`,
			g.Name, g.Color, storage.IDToNull(g.ParentID), storage.FormatTime(g.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert tag: %w", err)
		}
		g.ID = res.LastInsertID
		tag, err = withPath(ctx, sc, g)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.notify.Notify(events.Event{Entity: events.EntityTag, Action: events.ActionCreated, ID: tag.ID, At: m.now(), Payload: tag})
	return tag, nil
}

// UpdateTag applies a patch. Reparenting is refused when the tag would
// become its own ancestor.
func (m *Manager) UpdateTag(ctx context.Context, id int64, p TagPatch) (tag *types.Tag, err error) {
	defer metrics.Observe("update_tag", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		cur, err := getTx(ctx, sc, id)
		if err != nil {
			return err
		}
		next := *cur
		if p.Name != nil {
			next.Name = strings.TrimSpace(*p.Name)
		}
		if p.Color != nil {
			next.Color = strings.TrimSpace(*p.Color)
		}
		switch {
		case p.ClearParent:
			next.ParentID = nil
		case p.ParentID != nil:
			v := *p.ParentID
			next.ParentID = &v
		}
		if err := next.Validate(); err != nil {
			return err
		}
		if !strings.EqualFold(next.Name, cur.Name) {
			if err := requireUniqueName(ctx, sc, next.Name, id); err != nil {
				return err
			}
		}
		if next.ParentID != nil {
			if _, err := getTx(ctx, sc, *next.ParentID); err != nil {
				return err
			}
			if err := hierarchy.CheckParent(ctx, "tag", id, *next.ParentID, hierarchy.ScopeLookup(sc, "tags", false)); err != nil {
				return err
			}
		}

		if _, err := sc.Exec(ctx, `UPDATE tags SET name = ?, color = ?, parent_id = ? WHERE id = ?`,
			next.Name, next.Color, storage.IDToNull(next.ParentID), id); err != nil {
			return fmt.Errorf("failed to update tag: %w", err)
		}
		tag, err = withPath(ctx, sc, &next)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.notify.Notify(events.Event{Entity: events.EntityTag, Action: events.ActionUpdated, ID: id, At: m.now(), Payload: tag})
	return tag, nil
}

// GetTag returns a tag with its depth and path.
func (m *Manager) GetTag(ctx context.Context, id int64) (tag *types.Tag, err error) {
	defer metrics.Observe("get_tag", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		g, err := getTx(ctx, sc, id)
		if err != nil {
			return err
		}
		tag, err = withPath(ctx, sc, g)
		return err
	})
	return tag, err
}

// GetTagByName returns a tag by name, ignoring case.
func (m *Manager) GetTagByName(ctx context.Context, name string) (tag *types.Tag, err error) {
	defer metrics.Observe("get_tag", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		g, err := Scan(sc.QueryRow(ctx, `SELECT `+Columns+` FROM tags g WHERE g.name = ? COLLATE NOCASE`, strings.TrimSpace(name)))
		if errors.Is(err, sql.ErrNoRows) {
			return types.NotFoundf("tag %q not found", name)
		}
		if err != nil {
			return fmt.Errorf("failed to get tag: %w", err)
		}
		tag, err = withPath(ctx, sc, g)
		return err
	})
	return tag, err
}

// GetPath returns the tag names from the root down to id.
func (m *Manager) GetPath(ctx context.Context, id int64) ([]string, error) {
	tag, err := m.GetTag(ctx, id)
	if err != nil {
		return nil, err
	}
	return tag.Path, nil
}

// GetDepth returns the number of ancestors of id.
func (m *Manager) GetDepth(ctx context.Context, id int64) (int, error) {
	tag, err := m.GetTag(ctx, id)
	if err != nil {
		return 0, err
	}
	return tag.Depth, nil
}

// ListTags returns every tag ordered by name, with depth and path set.
func (m *Manager) ListTags(ctx context.Context) (out []*types.Tag, err error) {
	defer metrics.Observe("list_tags", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		rows, err := sc.Query(ctx, `SELECT `+Columns+` FROM tags g ORDER BY g.name COLLATE NOCASE, g.id`)
		if err != nil {
			return fmt.Errorf("failed to list tags: %w", err)
		}
		out, err = scanAll(rows)
		return err
	})
	if err != nil {
		return nil, err
	}

	nodes := make(map[int64]hierarchy.Node, len(out))
	for _, g := range out {
		nodes[g.ID] = hierarchy.Node{ID: g.ID, Name: g.Name, ParentID: g.ParentID}
	}
	for _, g := range out {
		chain, err := hierarchy.Chain(ctx, "tag", g.ID, hierarchy.MapLookup(nodes))
		if err != nil {
			return nil, err
		}
		g.Depth = hierarchy.Depth(chain)
		g.Path = hierarchy.Path(chain)
	}
	return out, nil
}

// DeleteTag removes a tag and its associations and promotes its children to
// roots. It returns false when the tag does not exist.
func (m *Manager) DeleteTag(ctx context.Context, id int64) (deleted bool, err error) {
	defer metrics.Observe("delete_tag", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		for _, stmt := range []string{
			`DELETE FROM task_tags WHERE tag_id = ?`,
			`DELETE FROM list_tags WHERE tag_id = ?`,
			`UPDATE tags SET parent_id = NULL WHERE parent_id = ?`,
		} {
			if _, err := sc.Exec(ctx, stmt, id); err != nil {
				return fmt.Errorf("failed to detach tag: %w", err)
			}
		}
		res, err := sc.Exec(ctx, `DELETE FROM tags WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete tag: %w", err)
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if deleted {
		m.notify.Notify(events.Event{Entity: events.EntityTag, Action: events.ActionDeleted, ID: id, At: m.now()})
	}
	return deleted, nil
}

// AddTagToTask associates a tag with a task. Adding an existing association
// is a no-op that still returns true.
func (m *Manager) AddTagToTask(ctx context.Context, taskID, tagID int64) (bool, error) {
	return m.Add(ctx, TaskTarget, taskID, tagID)
}

// AddTagToList associates a tag with a list.
func (m *Manager) AddTagToList(ctx context.Context, listID, tagID int64) (bool, error) {
	return m.Add(ctx, ListTarget, listID, tagID)
}

// RemoveTagFromTask removes an association. It returns false when there was
// none.
func (m *Manager) RemoveTagFromTask(ctx context.Context, taskID, tagID int64) (bool, error) {
	return m.Remove(ctx, TaskTarget, taskID, tagID)
}

// RemoveTagFromList removes an association.
func (m *Manager) RemoveTagFromList(ctx context.Context, listID, tagID int64) (bool, error) {
	return m.Remove(ctx, ListTarget, listID, tagID)
}

// TagsForTask returns the tags of a live task ordered by name.
func (m *Manager) TagsForTask(ctx context.Context, taskID int64) ([]*types.Tag, error) {
	return m.For(ctx, TaskTarget, taskID)
}

// TagsForList returns the tags of a live list ordered by name.
func (m *Manager) TagsForList(ctx context.Context, listID int64) ([]*types.Tag, error) {
	return m.For(ctx, ListTarget, listID)
}

// Add associates tagID with the entity. The entity must be live.
func (m *Manager) Add(ctx context.Context, t Target, entityID, tagID int64) (ok bool, err error) {
	defer metrics.Observe("add_tag", time.Now(), &err)
	var added bool
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		if _, err := getTx(ctx, sc, tagID); err != nil {
			return err
		}
		if err := requireEntity(ctx, sc, t, entityID); err != nil {
			return err
		}
		res, err := sc.Exec(ctx, fmt.Sprintf(`INSERT OR IGNORE INTO %s (%s, tag_id, created_at) VALUES (?, ?, ?)`, t.assoc, t.column),
			entityID, tagID, storage.FormatTime(m.now()))
		if err != nil {
			return fmt.Errorf("failed to tag %s: %w", t.entity, err)
		}
		added = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if added {
		m.notify.Notify(events.Event{Entity: events.Entity(t.entity), Action: events.ActionTagged, ID: entityID, At: m.now(), Payload: map[string]int64{"tag_id": tagID}})
	}
	return true, nil
}

// Remove deletes the association between tagID and the entity.
func (m *Manager) Remove(ctx context.Context, t Target, entityID, tagID int64) (removed bool, err error) {
	defer metrics.Observe("remove_tag", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		res, err := sc.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = ? AND tag_id = ?`, t.assoc, t.column), entityID, tagID)
		if err != nil {
			return fmt.Errorf("failed to untag %s: %w", t.entity, err)
		}
		removed = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if removed {
		m.notify.Notify(events.Event{Entity: events.Entity(t.entity), Action: events.ActionUntagged, ID: entityID, At: m.now(), Payload: map[string]int64{"tag_id": tagID}})
	}
	return removed, nil
}

// For returns the tags of a live entity ordered by name.
func (m *Manager) For(ctx context.Context, t Target, entityID int64) (out []*types.Tag, err error) {
	defer metrics.Observe("entity_tags", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		if err := requireEntity(ctx, sc, t, entityID); err != nil {
			return err
		}
		rows, err := sc.Query(ctx, fmt.Sprintf(`
			SELECT `+Columns+` FROM tags g
			JOIN %s a ON a.tag_id = g.id
			WHERE a.%s = ?
			ORDER BY g.name COLLATE NOCASE, g.id
		`, t.assoc, t.column), entityID)
		if err != nil {
			return fmt.Errorf("failed to read %s tags: %w", t.entity, err)
		}
		out, err = scanAll(rows)
		return err
	})
	return out, err
}

// NormalizeNames trims, drops empty names and removes case-insensitive
// duplicates, keeping first spellings in order.
func NormalizeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}

func getTx(ctx context.Context, sc storage.Scope, id int64) (*types.Tag, error) {
	g, err := Scan(sc.QueryRow(ctx, `SELECT `+Columns+` FROM tags g WHERE g.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("tag", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return g, nil
}

func withPath(ctx context.Context, sc storage.Scope, g *types.Tag) (*types.Tag, error) {
	chain, err := hierarchy.Chain(ctx, "tag", g.ID, hierarchy.ScopeLookup(sc, "tags", false))
	if err != nil {
		return nil, err
	}
	g.Depth = hierarchy.Depth(chain)
	g.Path = hierarchy.Path(chain)
	return g, nil
}

func requireUniqueName(ctx context.Context, sc storage.Scope, name string, except int64) error {
	var id int64
	err := sc.QueryRow(ctx, `SELECT id FROM tags WHERE name = ? COLLATE NOCASE AND id != ?`, name, except).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check tag name: %w", err)
	}
	return types.Conflictf("tag %q already exists (tag %d)", name, id)
}

// requireEntity checks that the tagged entity exists and is live.
func requireEntity(ctx context.Context, sc storage.Scope, t Target, id int64) error {
	exists, deleted, err := storage.RowState(ctx, sc, t.table, id)
	if err != nil {
		return err
	}
	if !exists {
		return types.NotFound(t.entity, id)
	}
	if deleted {
		return types.Deleted(t.entity, id)
	}
	return nil
}
