// Package lists implements the list hierarchy manager.
//
// Lists form a forest over parent_id. Every reparent walks the ancestors of
// the proposed parent on the live hierarchy and refuses a move that would
// make a list its own ancestor. Deleting a list either fails while it still
// has live children or tasks, or cascades: descendants are soft-deleted
// children first, the subtree's tasks are orphaned (list_id = NULL), then
// the list itself is soft-deleted, all in one transaction.
//
// A soft-deleted list is gone: reads and updates report not found, and
// deleting it again returns false.
package lists

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tasklattice/tasklattice/internal/events"
	"github.com/tasklattice/tasklattice/internal/hierarchy"
	"github.com/tasklattice/tasklattice/internal/logging"
	"github.com/tasklattice/tasklattice/internal/metrics"
	"github.com/tasklattice/tasklattice/internal/storage"
	"github.com/tasklattice/tasklattice/internal/tasks"
	"github.com/tasklattice/tasklattice/internal/types"
)

// Manager owns list rows.
type Manager struct {
	gw     storage.Gateway
	tasks  *tasks.Manager
	log    logrus.FieldLogger
	notify events.Notifier
	now    func() time.Time
}

// NewManager creates a list manager. Task moves are delegated to tm.
func NewManager(gw storage.Gateway, tm *tasks.Manager, log logrus.FieldLogger, notify events.Notifier) *Manager {
	if notify == nil {
		notify = events.Nop
	}
	return &Manager{gw: gw, tasks: tm, log: logging.OrNop(log), notify: notify, now: func() time.Time { return time.Now().UTC() }}
}

// ListInput holds the fields of a new list.
type ListInput struct {
	Name        string
	Description string
	ParentID    *int64
}

// ListPatch holds the fields to change. ClearParent makes the list a root.
type ListPatch struct {
	Name        *string
	Description *string
	ParentID    *int64
	ClearParent bool
}

// Columns is the list column list for queries aliasing lists as l.
const Columns = `l.id, l.name, l.description, l.parent_id, l.created_at, l.updated_at, l.deleted_at`

// Scan reads one row selected with Columns.
func Scan(row storage.Row) (*types.TaskList, error) {
	var (
		l                types.TaskList
		parent           sql.NullInt64
		created, updated string
		deleted          sql.NullString
	)
	if err := row.Scan(&l.ID, &l.Name, &l.Description, &parent, &created, &updated, &deleted); err != nil {
		return nil, err
	}
	l.ParentID = storage.NullToID(parent)
	l.CreatedAt = storage.ParseTime(created)
	l.UpdatedAt = storage.ParseTime(updated)
	l.DeletedAt = storage.NullToTime(deleted)
	return &l, nil
}

// ScanAll drains rows selected with Columns.
func ScanAll(rows storage.Rows) ([]*types.TaskList, error) {
	defer rows.Close()
	var out []*types.TaskList
	for rows.Next() {
		l, err := Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan list: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lists: %w", err)
	}
	return out, nil
}

// CreateList validates and inserts a list.
func (m *Manager) CreateList(ctx context.Context, in ListInput) (list *types.TaskList, err error) {
	defer metrics.Observe("create_list", time.Now(), &err)
	var buf events.Buffer
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		list, err = m.CreateTx(ctx, sc, in, &buf)
		return err
	})
	if err != nil {
		return nil, err
	}
	buf.Flush(m.notify)
	return list, nil
}

// CreateTx inserts a list inside an existing scope.
func (m *Manager) CreateTx(ctx context.Context, sc storage.Scope, in ListInput, buf *events.Buffer) (*types.TaskList, error) {
	now := m.now()
	l := &types.TaskList{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		ParentID:    in.ParentID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}

	var parentChain []hierarchy.Node
	if l.ParentID != nil {
		lookup := hierarchy.ScopeLookup(sc, "lists", true)
		if err := requireLive(ctx, sc, *l.ParentID); err != nil {
			return nil, err
		}
		if err := hierarchy.CheckParent(ctx, "list", 0, *l.ParentID, lookup); err != nil {
			return nil, err
		}
		chain, err := hierarchy.Chain(ctx, "list", *l.ParentID, lookup)
		if err != nil {
			return nil, err
		}
		parentChain = chain
	}

	res, err := sc.Exec(ctx, `
		INSERT INTO lists (name, description, parent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, l.Name, l.Description, storage.IDToNull(l.ParentID), storage.FormatTime(now), storage.FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to insert list: %w", err)
	}
	l.ID = res.LastInsertID

	chain := append([]hierarchy.Node{{ID: l.ID, Name: l.Name, ParentID: l.ParentID}}, parentChain...)
	l.Depth = hierarchy.Depth(chain)
	l.Path = hierarchy.Path(chain)

	buf.Add(events.EntityList, events.ActionCreated, l.ID, l)
	m.log.WithFields(logrus.Fields{"op": "create_list", "list_id": l.ID, "depth": l.Depth}).Debug("list created")
	return l, nil
}

// GetList returns a live list with its depth and path.
func (m *Manager) GetList(ctx context.Context, id int64) (list *types.TaskList, err error) {
	defer metrics.Observe("get_list", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		list, err = GetTx(ctx, sc, id)
		return err
	})
	return list, err
}

// GetTx returns a live list with its depth and path inside an existing scope.
func GetTx(ctx context.Context, sc storage.Scope, id int64) (*types.TaskList, error) {
	l, err := Scan(sc.QueryRow(ctx, `SELECT `+Columns+` FROM lists l WHERE l.id = ? AND l.deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("list", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get list: %w", err)
	}
	chain, err := hierarchy.Chain(ctx, "list", id, hierarchy.ScopeLookup(sc, "lists", true))
	if err != nil {
		return nil, err
	}
	l.Depth = hierarchy.Depth(chain)
	l.Path = hierarchy.Path(chain)
	return l, nil
}

// UpdateList applies a patch. Reparenting is refused when the list would
// become its own ancestor.
func (m *Manager) UpdateList(ctx context.Context, id int64, p ListPatch) (list *types.TaskList, err error) {
	defer metrics.Observe("update_list", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		exists, deleted, err := storage.RowState(ctx, sc, "lists", id)
		if err != nil {
			return err
		}
		if !exists {
			return types.NotFound("list", id)
		}
		if deleted {
			return types.Deleted("list", id)
		}

		cur, err := GetTx(ctx, sc, id)
		if err != nil {
			return err
		}
		next := *cur
		if p.Name != nil {
			next.Name = strings.TrimSpace(*p.Name)
		}
		if p.Description != nil {
			next.Description = *p.Description
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

		if next.ParentID != nil && !sameID(cur.ParentID, next.ParentID) {
			if err := requireLive(ctx, sc, *next.ParentID); err != nil {
				return err
			}
			if err := hierarchy.CheckParent(ctx, "list", id, *next.ParentID, hierarchy.ScopeLookup(sc, "lists", true)); err != nil {
				return err
			}
		}

		_, err = sc.Exec(ctx, `UPDATE lists SET name = ?, description = ?, parent_id = ?, updated_at = ? WHERE id = ?`,
			next.Name, next.Description, storage.IDToNull(next.ParentID), storage.FormatTime(m.now()), id)
		if err != nil {
			return fmt.Errorf("failed to update list: %w", err)
		}

		list, err = GetTx(ctx, sc, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.notify.Notify(events.Event{Entity: events.EntityList, Action: events.ActionUpdated, ID: id, At: m.now(), Payload: list})
	return list, nil
}

// DeleteList soft-deletes a list. Without cascade it fails while the list
// has live children or tasks. It returns false when the id is missing or
// already deleted.
func (m *Manager) DeleteList(ctx context.Context, id int64, cascade bool) (deleted bool, err error) {
	defer metrics.Observe("delete_list", time.Now(), &err)
	var buf events.Buffer
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		live, err := storage.IsLive(ctx, sc, "lists", id)
		if err != nil || !live {
			return err
		}

		children, err := childIDs(ctx, sc, id)
		if err != nil {
			return err
		}
		var taskCount int
		if err := sc.QueryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE list_id = ? AND deleted_at IS NULL`, id).Scan(&taskCount); err != nil {
			return fmt.Errorf("failed to count tasks: %w", err)
		}
		if !cascade && (len(children) > 0 || taskCount > 0) {
			return types.Integrityf("list %d has %d child lists and %d tasks; delete with cascade to remove them", id, len(children), taskCount)
		}

		subtree, err := descendants(ctx, sc, id)
		if err != nil {
			return err
		}
		now := storage.FormatTime(m.now())

		for _, d := range subtree {
			if _, err := sc.Exec(ctx, `UPDATE lists SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, d); err != nil {
				return fmt.Errorf("failed to delete list %d: %w", d, err)
			}
			buf.Add(events.EntityList, events.ActionDeleted, d, nil)
		}

		owners := append([]int64{id}, subtree...)
		orphaned, err := orphanTasks(ctx, sc, owners, now)
		if err != nil {
			return err
		}
		for _, t := range orphaned {
			buf.Add(events.EntityTask, events.ActionOrphaned, t, nil)
		}

		if _, err := sc.Exec(ctx, `UPDATE lists SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, id); err != nil {
			return fmt.Errorf("failed to delete list: %w", err)
		}
		buf.Add(events.EntityList, events.ActionDeleted, id, nil)

		metrics.CascadeDeleted.Add(float64(len(subtree)))
		metrics.Orphaned.Add(float64(len(orphaned)))
		m.log.WithFields(logrus.Fields{
			"op": "delete_list", "list_id": id, "cascade": cascade,
			"descendants": len(subtree), "orphaned_tasks": len(orphaned),
		}).Info("list deleted")
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	buf.Flush(m.notify)
	return deleted, nil
}

// childIDs returns the live children of id.
func childIDs(ctx context.Context, sc storage.Scope, id int64) ([]int64, error) {
	rows, err := sc.Query(ctx, `SELECT id FROM lists WHERE parent_id = ? AND deleted_at IS NULL ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read child lists: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var c int64
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan child list: %w", err)
		}
		ids = append(ids, c)
	}
	return ids, rows.Err()
}

// descendants returns the live descendants of root, every list ahead of its
// parent. root itself is not included.
func descendants(ctx context.Context, sc storage.Scope, root int64) ([]int64, error) {
	visited := map[int64]bool{root: true}
	var preorder []int64
	stack := []int64{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := childIDs(ctx, sc, cur)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if visited[c] {
				return nil, types.Integrityf("list hierarchy contains a cycle at list %d", c)
			}
			visited[c] = true
			preorder = append(preorder, c)
			stack = append(stack, c)
		}
	}

	out := make([]int64, len(preorder))
	for i, id := range preorder {
		out[len(preorder)-1-i] = id
	}
	return out, nil
}

// orphanTasks clears the list of every live task owned by owners.
func orphanTasks(ctx context.Context, sc storage.Scope, owners []int64, now string) ([]int64, error) {
	args := make([]any, len(owners))
	for i, o := range owners {
		args[i] = o
	}
	in := storage.Placeholders(len(owners))

	rows, err := sc.Query(ctx, `SELECT id FROM tasks WHERE deleted_at IS NULL AND list_id IN (`+in+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read owned tasks: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan owned task: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate owned tasks: %w", err)
	}
	rows.Close()
	if len(ids) == 0 {
		return nil, nil
	}

	_, err = sc.Exec(ctx, `UPDATE tasks SET list_id = NULL, updated_at = ? WHERE deleted_at IS NULL AND list_id IN (`+in+`)`,
		append([]any{now}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to orphan tasks: %w", err)
	}
	return ids, nil
}

// ListAll returns every live list ordered by (root id, name, id), with depth
// and path set. With hierarchical it returns only the roots, each carrying
// its children.
func (m *Manager) ListAll(ctx context.Context, hierarchical bool) (out []*types.TaskList, err error) {
	defer metrics.Observe("list_lists", time.Now(), &err)
	var flat []*types.TaskList
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		rows, err := sc.Query(ctx, `SELECT `+Columns+` FROM lists l WHERE l.deleted_at IS NULL ORDER BY l.id`)
		if err != nil {
			return fmt.Errorf("failed to list lists: %w", err)
		}
		flat, err = ScanAll(rows)
		return err
	})
	if err != nil {
		return nil, err
	}

	nodes := make(map[int64]hierarchy.Node, len(flat))
	for _, l := range flat {
		nodes[l.ID] = hierarchy.Node{ID: l.ID, Name: l.Name, ParentID: l.ParentID}
	}
	lookup := hierarchy.MapLookup(nodes)
	rootOf := make(map[int64]int64, len(flat))
	for _, l := range flat {
		chain, err := hierarchy.Chain(ctx, "list", l.ID, lookup)
		if err != nil {
			return nil, err
		}
		l.Depth = hierarchy.Depth(chain)
		l.Path = hierarchy.Path(chain)
		rootOf[l.ID] = chain[len(chain)-1].ID
	}

	sort.SliceStable(flat, func(i, j int) bool {
		a, b := flat[i], flat[j]
		if rootOf[a.ID] != rootOf[b.ID] {
			return rootOf[a.ID] < rootOf[b.ID]
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})

	if !hierarchical {
		return flat, nil
	}
	return Assemble(flat), nil
}

// Assemble groups lists under their parents in one pass and returns the
// roots. Lists whose parent is absent from the input are treated as roots.
// Children keep the input order.
func Assemble(flat []*types.TaskList) []*types.TaskList {
	byID := make(map[int64]*types.TaskList, len(flat))
	for _, l := range flat {
		l.Children = nil
		byID[l.ID] = l
	}
	var roots []*types.TaskList
	for _, l := range flat {
		if l.ParentID != nil {
			if parent, ok := byID[*l.ParentID]; ok {
				parent.Children = append(parent.Children, l)
				continue
			}
		}
		roots = append(roots, l)
	}
	return roots
}

// MoveTask reassigns a task to target, or to no list when target is nil.
func (m *Manager) MoveTask(ctx context.Context, taskID int64, target *int64) (moved bool, err error) {
	defer metrics.Observe("move_task", time.Now(), &err)
	var buf events.Buffer
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		_, err := m.tasks.MoveTx(ctx, sc, taskID, target, &buf)
		return err
	})
	if err != nil {
		return false, err
	}
	buf.Flush(m.notify)
	return true, nil
}

func requireLive(ctx context.Context, sc storage.Scope, id int64) error {
	live, err := storage.IsLive(ctx, sc, "lists", id)
	if err != nil {
		return err
	}
	if !live {
		return types.NotFound("list", id)
	}
	return nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
