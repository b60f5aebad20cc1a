// Package tasks implements the task state machine.
//
// Status changes follow the lifecycle in types.IsCanonicalTransition, but an
// explicit status-setting call may move a task anywhere; leaving completed or
// cancelled that way is logged as a reopen.
//
// Within one list at most one live task is in_progress. Starting a task
// (or moving an in_progress task into a list) pauses every other
// in_progress task of that list back to pending inside the same transaction.
// The pause is a side effect, not an error; it is logged and counted.
//
// A soft-deleted task is gone: reads and changes (update, status shortcuts,
// move) report not found, and deleting it again returns false.
package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tasklattice/tasklattice/internal/events"
	"github.com/tasklattice/tasklattice/internal/logging"
	"github.com/tasklattice/tasklattice/internal/metrics"
	"github.com/tasklattice/tasklattice/internal/storage"
	"github.com/tasklattice/tasklattice/internal/types"
)

// Manager owns task rows.
type Manager struct {
	gw     storage.Gateway
	log    logrus.FieldLogger
	notify events.Notifier
	now    func() time.Time
}

// NewManager creates a task manager. A nil logger discards output and a nil
// notifier drops events.
func NewManager(gw storage.Gateway, log logrus.FieldLogger, notify events.Notifier) *Manager {
	if notify == nil {
		notify = events.Nop
	}
	return &Manager{gw: gw, log: logging.OrNop(log), notify: notify, now: func() time.Time { return time.Now().UTC() }}
}

// TaskInput holds the fields of a new task.
type TaskInput struct {
	Title          string
	Description    string
	Notes          string
	ListID         *int64
	Status         types.Status
	Priority       types.Priority
	DueDate        *time.Time
	EstimatedHours *float64
}

// TaskPatch holds the fields to change. Nil fields are left alone; the Clear
// flags set the matching nullable column to NULL.
type TaskPatch struct {
	Title          *string
	Description    *string
	Notes          *string
	Status         *types.Status
	Priority       *types.Priority
	ListID         *int64
	ClearList      bool
	DueDate        *time.Time
	ClearDueDate   bool
	EstimatedHours *float64
	ClearEstimate  bool
}

// TaskQuery filters ListTasks. All filters are optional and conjunctive.
type TaskQuery struct {
	ListID *int64
	Status *types.Status
	Limit  int
	Offset int

	// OldestFirst orders by creation ascending instead of newest first.
	OldestFirst bool
}

// Columns is the task column list for queries aliasing tasks as t.
const Columns = `t.id, t.title, t.description, t.notes, t.status, t.priority, t.list_id,
	t.due_date, t.estimated_hours, t.completed_at, t.created_at, t.updated_at, t.deleted_at`

// Scan reads one row selected with Columns.
func Scan(row storage.Row) (*types.Task, error) {
	var (
		t                       types.Task
		status, priority        string
		listID                  sql.NullInt64
		due, completed, deleted sql.NullString
		created, updated        string
		estimate                sql.NullFloat64
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Notes, &status, &priority, &listID,
		&due, &estimate, &completed, &created, &updated, &deleted); err != nil {
		return nil, err
	}
	t.Status = types.Status(status)
	t.Priority = types.Priority(priority)
	t.ListID = storage.NullToID(listID)
	t.DueDate = storage.NullToTime(due)
	t.EstimatedHours = storage.NullToFloat(estimate)
	t.CompletedAt = storage.NullToTime(completed)
	t.CreatedAt = storage.ParseTime(created)
	t.UpdatedAt = storage.ParseTime(updated)
	t.DeletedAt = storage.NullToTime(deleted)
	return &t, nil
}

// ScanAll drains rows selected with Columns.
func ScanAll(rows storage.Rows) ([]*types.Task, error) {
	defer rows.Close()
	var out []*types.Task
	for rows.Next() {
		t, err := Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return out, nil
}

// CreateTask validates and inserts a task. The list is required.
func (m *Manager) CreateTask(ctx context.Context, in TaskInput) (task *types.Task, err error) {
	defer metrics.Observe("create_task", time.Now(), &err)
	if in.ListID == nil {
		return nil, types.Validationf("list_id is required")
	}
	return m.create(ctx, in)
}

// Restore recreates an exported task. Unlike CreateTask it accepts a nil
// list, for tasks that were orphaned before the export.
func (m *Manager) Restore(ctx context.Context, in TaskInput) (task *types.Task, err error) {
	defer metrics.Observe("restore_task", time.Now(), &err)
	return m.create(ctx, in)
}

func (m *Manager) create(ctx context.Context, in TaskInput) (*types.Task, error) {
	var buf events.Buffer
	var task *types.Task
	err := storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		var err error
		task, err = m.CreateTx(ctx, sc, in, &buf)
		return err
	})
	if err != nil {
		return nil, err
	}
	buf.Flush(m.notify)
	return task, nil
}

// CreateTx inserts a task inside an existing scope.
func (m *Manager) CreateTx(ctx context.Context, sc storage.Scope, in TaskInput, buf *events.Buffer) (*types.Task, error) {
	now := m.now()
	if in.Status == "" {
		in.Status = types.StatusPending
	}
	if in.Priority == "" {
		in.Priority = types.PriorityNormal
	}
	t := &types.Task{
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Notes:          in.Notes,
		Status:         in.Status,
		Priority:       in.Priority,
		ListID:         in.ListID,
		DueDate:        in.DueDate,
		EstimatedHours: in.EstimatedHours,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.ListID != nil {
		if err := requireLiveList(ctx, sc, *t.ListID); err != nil {
			return nil, err
		}
	}
	if t.Status == types.StatusCompleted {
		t.CompletedAt = &now
	}
	if t.Status == types.StatusInProgress && t.ListID != nil {
		if _, err := m.enforceSingleActive(ctx, sc, *t.ListID, 0, buf); err != nil {
			return nil, err
		}
	}

	res, err := sc.Exec(ctx, `
		INSERT INTO tasks (title, description, notes, status, priority, list_id, due_date,
			estimated_hours, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.Title, t.Description, t.Notes, string(t.Status), string(t.Priority), storage.IDToNull(t.ListID),
		storage.TimeToNull(t.DueDate), storage.FloatToNull(t.EstimatedHours), storage.TimeToNull(t.CompletedAt),
		storage.FormatTime(t.CreatedAt), storage.FormatTime(t.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	t.ID = res.LastInsertID

	buf.Add(events.EntityTask, events.ActionCreated, t.ID, t)
	m.log.WithFields(logrus.Fields{"op": "create_task", "task_id": t.ID, "status": t.Status}).Debug("task created")
	return t, nil
}

// GetTask returns a live task.
func (m *Manager) GetTask(ctx context.Context, id int64) (task *types.Task, err error) {
	defer metrics.Observe("get_task", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		task, err = GetTx(ctx, sc, id)
		return err
	})
	return task, err
}

// GetTx returns a live task inside an existing scope. Missing and
// soft-deleted ids both yield a not-found error.
func GetTx(ctx context.Context, sc storage.Scope, id int64) (*types.Task, error) {
	t, err := Scan(sc.QueryRow(ctx, `SELECT `+Columns+` FROM tasks t WHERE t.id = ? AND t.deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("task", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// getForUpdate returns a live task about to be changed. Unknown and
// soft-deleted ids are both not found, with distinct messages.
func getForUpdate(ctx context.Context, sc storage.Scope, id int64) (*types.Task, error) {
	exists, deleted, err := storage.RowState(ctx, sc, "tasks", id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, types.NotFound("task", id)
	}
	if deleted {
		return nil, types.Deleted("task", id)
	}
	return GetTx(ctx, sc, id)
}

// UpdateTask applies a patch.
func (m *Manager) UpdateTask(ctx context.Context, id int64, p TaskPatch) (task *types.Task, err error) {
	defer metrics.Observe("update_task", time.Now(), &err)
	var buf events.Buffer
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		task, err = m.UpdateTx(ctx, sc, id, p, &buf)
		return err
	})
	if err != nil {
		return nil, err
	}
	buf.Flush(m.notify)
	return task, nil
}

// UpdateTx applies a patch inside an existing scope.
func (m *Manager) UpdateTx(ctx context.Context, sc storage.Scope, id int64, p TaskPatch, buf *events.Buffer) (*types.Task, error) {
	cur, err := getForUpdate(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	next := *cur

	if p.Title != nil {
		next.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.Notes != nil {
		next.Notes = *p.Notes
	}
	if p.Status != nil {
		next.Status = *p.Status
	}
	if p.Priority != nil {
		next.Priority = *p.Priority
	}
	switch {
	case p.ClearList:
		next.ListID = nil
	case p.ListID != nil:
		v := *p.ListID
		next.ListID = &v
	}
	switch {
	case p.ClearDueDate:
		next.DueDate = nil
	case p.DueDate != nil:
		v := *p.DueDate
		next.DueDate = &v
	}
	switch {
	case p.ClearEstimate:
		next.EstimatedHours = nil
	case p.EstimatedHours != nil:
		v := *p.EstimatedHours
		next.EstimatedHours = &v
	}

	if err := next.Validate(); err != nil {
		return nil, err
	}

	listChanged := !sameID(cur.ListID, next.ListID)
	if listChanged && next.ListID != nil {
		if err := requireLiveList(ctx, sc, *next.ListID); err != nil {
			return nil, err
		}
	}
	return m.write(ctx, sc, cur, &next, listChanged, buf)
}

// write persists next over cur, applying the status side effects.
func (m *Manager) write(ctx context.Context, sc storage.Scope, cur, next *types.Task, listChanged bool, buf *events.Buffer) (*types.Task, error) {
	now := m.now()
	statusChanged := cur.Status != next.Status
	logger := m.log.WithFields(logrus.Fields{"task_id": cur.ID, "from": cur.Status, "to": next.Status})

	if statusChanged {
		if cur.Status.IsTerminal() && !next.Status.IsTerminal() {
			logger.Info("task reopened by explicit status change")
		} else if !types.IsCanonicalTransition(cur.Status, next.Status) {
			logger.Debug("non-canonical status change")
		}
		if next.Status == types.StatusCompleted {
			next.CompletedAt = &now
		} else {
			next.CompletedAt = nil
		}
	}

	if next.Status == types.StatusInProgress && (statusChanged || listChanged) && next.ListID != nil {
		if _, err := m.enforceSingleActive(ctx, sc, *next.ListID, cur.ID, buf); err != nil {
			return nil, err
		}
	}

	next.UpdatedAt = now
	_, err := sc.Exec(ctx, `
		UPDATE tasks SET title = ?, description = ?, notes = ?, status = ?, priority = ?, list_id = ?,
			due_date = ?, estimated_hours = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`, next.Title, next.Description, next.Notes, string(next.Status), string(next.Priority),
		storage.IDToNull(next.ListID), storage.TimeToNull(next.DueDate), storage.FloatToNull(next.EstimatedHours),
		storage.TimeToNull(next.CompletedAt), storage.FormatTime(next.UpdatedAt), cur.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	action := events.ActionUpdated
	if listChanged {
		action = events.ActionMoved
	}
	buf.Add(events.EntityTask, action, next.ID, next)
	return next, nil
}

// enforceSingleActive pauses every live in_progress task of listID except
// keep. It returns the number of paused tasks.
func (m *Manager) enforceSingleActive(ctx context.Context, sc storage.Scope, listID, keep int64, buf *events.Buffer) (int, error) {
	rows, err := sc.Query(ctx, `
		SELECT id FROM tasks
		WHERE list_id = ? AND status = 'in_progress' AND deleted_at IS NULL AND id != ?
	`, listID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to find active tasks: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan active task: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("failed to iterate active tasks: %w", err)
	}
	rows.Close()
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, storage.FormatTime(m.now()))
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := sc.Exec(ctx, `UPDATE tasks SET status = 'pending', updated_at = ? WHERE id IN (`+storage.Placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to pause active tasks: %w", err)
	}

	n := int(res.RowsAffected)
	for _, id := range ids {
		buf.Add(events.EntityTask, events.ActionAutoPaused, id, map[string]int64{"list_id": listID, "started_task_id": keep})
	}
	metrics.AutoPaused.Add(float64(n))
	m.log.WithFields(logrus.Fields{"op": "enforce_single_active", "list_id": listID, "task_id": keep, "paused": n}).
		Info("paused in-progress tasks")
	return n, nil
}

// StartTask sets the task in_progress, pausing the active task of its list.
func (m *Manager) StartTask(ctx context.Context, id int64) (*types.Task, error) {
	return m.setStatus(ctx, id, types.StatusInProgress)
}

// CompleteTask sets the task completed.
func (m *Manager) CompleteTask(ctx context.Context, id int64) (*types.Task, error) {
	return m.setStatus(ctx, id, types.StatusCompleted)
}

// PauseTask returns the task to pending.
func (m *Manager) PauseTask(ctx context.Context, id int64) (*types.Task, error) {
	return m.setStatus(ctx, id, types.StatusPending)
}

// BlockTask sets the task blocked.
func (m *Manager) BlockTask(ctx context.Context, id int64) (*types.Task, error) {
	return m.setStatus(ctx, id, types.StatusBlocked)
}

// CancelTask sets the task cancelled.
func (m *Manager) CancelTask(ctx context.Context, id int64) (*types.Task, error) {
	return m.setStatus(ctx, id, types.StatusCancelled)
}

func (m *Manager) setStatus(ctx context.Context, id int64, s types.Status) (*types.Task, error) {
	return m.UpdateTask(ctx, id, TaskPatch{Status: &s})
}

// DeleteTask soft-deletes a task. It returns false when the id is missing or
// already deleted.
func (m *Manager) DeleteTask(ctx context.Context, id int64) (deleted bool, err error) {
	defer metrics.Observe("delete_task", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		now := storage.FormatTime(m.now())
		res, err := sc.Exec(ctx, `UPDATE tasks SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, now, now, id)
		if err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if deleted {
		m.notify.Notify(events.Event{Entity: events.EntityTask, Action: events.ActionDeleted, ID: id, At: m.now()})
	}
	return deleted, nil
}

// ListTasks returns live tasks, newest first.
func (m *Manager) ListTasks(ctx context.Context, q TaskQuery) (out []*types.Task, err error) {
	defer metrics.Observe("list_tasks", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		out, err = ListTx(ctx, sc, q)
		return err
	})
	return out, err
}

// ListTx lists live tasks inside an existing scope.
func ListTx(ctx context.Context, sc storage.Scope, q TaskQuery) ([]*types.Task, error) {
	if q.Limit < 0 || q.Offset < 0 {
		return nil, types.Validationf("limit and offset must not be negative")
	}
	if q.Status != nil && !q.Status.IsValid() {
		return nil, types.Validationf("status %q is invalid", *q.Status)
	}

	conditions := []string{"t.deleted_at IS NULL"}
	var args []any
	if q.ListID != nil {
		conditions = append(conditions, "t.list_id = ?")
		args = append(args, *q.ListID)
	}
	if q.Status != nil {
		conditions = append(conditions, "t.status = ?")
		args = append(args, string(*q.Status))
	}

	order := "t.created_at DESC, t.id DESC"
	if q.OldestFirst {
		order = "t.created_at ASC, t.id ASC"
	}
	query := `SELECT ` + Columns + ` FROM tasks t WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY ` + order
	if q.Limit > 0 || q.Offset > 0 {
		limit := q.Limit
		if limit == 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, q.Offset)
	}

	rows, err := sc.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return ScanAll(rows)
}

// MoveTx reassigns a task to target (nil for no list) inside an existing
// scope. Moving an in_progress task into a list pauses that list's active
// task.
func (m *Manager) MoveTx(ctx context.Context, sc storage.Scope, taskID int64, target *int64, buf *events.Buffer) (*types.Task, error) {
	cur, err := getForUpdate(ctx, sc, taskID)
	if err != nil {
		return nil, err
	}
	if target != nil {
		if err := requireLiveList(ctx, sc, *target); err != nil {
			return nil, err
		}
	}
	if sameID(cur.ListID, target) {
		return cur, nil
	}
	next := *cur
	next.ListID = target
	return m.write(ctx, sc, cur, &next, true, buf)
}

func requireLiveList(ctx context.Context, sc storage.Scope, id int64) error {
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
