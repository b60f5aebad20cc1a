// Package templates derives reusable templates from lists and instantiates
// new lists from them.
//
// A template carries only structure: task titles, descriptions, priorities
// and estimates in order. Deriving a template drops status, dates, tags and
// attributes; applying one always creates pending tasks. Templates and the
// lists created from them share nothing after creation.
package templates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tasklattice/tasklattice/internal/events"
	"github.com/tasklattice/tasklattice/internal/lists"
	"github.com/tasklattice/tasklattice/internal/logging"
	"github.com/tasklattice/tasklattice/internal/metrics"
	"github.com/tasklattice/tasklattice/internal/storage"
	"github.com/tasklattice/tasklattice/internal/tasks"
	"github.com/tasklattice/tasklattice/internal/types"
)

// Engine owns template rows and instantiation.
type Engine struct {
	gw     storage.Gateway
	lists  *lists.Manager
	tasks  *tasks.Manager
	log    logrus.FieldLogger
	notify events.Notifier
	now    func() time.Time
}

// NewEngine creates a template engine. Instantiation goes through lm and tm
// so that new lists and tasks get the same validation as direct creation.
func NewEngine(gw storage.Gateway, lm *lists.Manager, tm *tasks.Manager, log logrus.FieldLogger, notify events.Notifier) *Engine {
	if notify == nil {
		notify = events.Nop
	}
	return &Engine{gw: gw, lists: lm, tasks: tm, log: logging.OrNop(log), notify: notify, now: func() time.Time { return time.Now().UTC() }}
}

// TemplateInput holds the fields of a new template.
type TemplateInput struct {
	Name        string
	Description string
	Category    string
	Version     string
	Tasks       []types.TemplateTask
}

// ApplyOptions describes the list created by ApplyTemplate.
type ApplyOptions struct {
	ListName        string
	ListDescription string
	ParentID        *int64

	// Params fills {{ token }} placeholders in task titles and descriptions.
	Params map[string]string
}

const templateColumns = `id, name, description, category, version, created_at, updated_at, deleted_at`

func scanTemplate(row storage.Row) (*types.Template, error) {
	var (
		t                types.Template
		created, updated string
		deleted          sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Category, &t.Version, &created, &updated, &deleted); err != nil {
		return nil, err
	}
	t.CreatedAt = storage.ParseTime(created)
	t.UpdatedAt = storage.ParseTime(updated)
	t.DeletedAt = storage.NullToTime(deleted)
	return &t, nil
}

// CreateTemplate creates a template, optionally with tasks.
func (e *Engine) CreateTemplate(ctx context.Context, in TemplateInput) (tpl *types.Template, err error) {
	defer metrics.Observe("create_template", time.Now(), &err)
	err = storage.WithScope(ctx, e.gw, func(sc storage.Scope) error {
		tpl, err = e.createTx(ctx, sc, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.notify.Notify(events.Event{Entity: events.EntityTemplate, Action: events.ActionCreated, ID: tpl.ID, At: e.now(), Payload: tpl})
	return tpl, nil
}

func (e *Engine) createTx(ctx context.Context, sc storage.Scope, in TemplateInput) (*types.Template, error) {
	name := strings.TrimSpace(in.Name)
	if err := types.ValidateName("name", name, types.MaxTemplateNameLength); err != nil {
		return nil, err
	}
	version, err := NormalizeVersion(in.Version)
	if err != nil {
		return nil, err
	}

	now := e.now()
	tpl := &types.Template{
		Name:        name,
		Description: in.Description,
		Category:    strings.TrimSpace(in.Category),
		Version:     version,
		CreatedAt:   now,
		UpdatedAt:   now,
		Tasks:       []types.TemplateTask{},
	}
	res, err := sc.Exec(ctx, `
		INSERT INTO templates (name, description, category, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tpl.Name, tpl.Description, tpl.Category, tpl.Version, storage.FormatTime(now), storage.FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to insert template: %w", err)
	}
	tpl.ID = res.LastInsertID

	for _, tt := range in.Tasks {
		added, err := appendTaskTx(ctx, sc, tpl.ID, len(tpl.Tasks), tt)
		if err != nil {
			return nil, err
		}
		tpl.Tasks = append(tpl.Tasks, *added)
	}
	return tpl, nil
}

func appendTaskTx(ctx context.Context, sc storage.Scope, templateID int64, index int, tt types.TemplateTask) (*types.TemplateTask, error) {
	tt.Title = strings.TrimSpace(tt.Title)
	if tt.Priority == "" {
		tt.Priority = types.PriorityNormal
	}
	if err := tt.Validate(); err != nil {
		return nil, err
	}
	tt.TemplateID = templateID
	tt.OrderIndex = index
	res, err := sc.Exec(ctx, `
		INSERT INTO template_tasks (template_id, title, description, order_index, estimated_hours, priority)
		VALUES (?, ?, ?, ?, ?, ?)
	`, templateID, tt.Title, tt.Description, tt.OrderIndex, storage.FloatToNull(tt.EstimatedHours), string(tt.Priority))
	if err != nil {
		return nil, fmt.Errorf("failed to insert template task: %w", err)
	}
	tt.ID = res.LastInsertID
	return &tt, nil
}

// CreateTemplateFromList copies the live tasks of a list, in creation order,
// into a new template. Only title, description, priority and estimate are
// kept.
func (e *Engine) CreateTemplateFromList(ctx context.Context, listID int64, name, description, category string) (tpl *types.Template, err error) {
	defer metrics.Observe("create_template_from_list", time.Now(), &err)
	err = storage.WithScope(ctx, e.gw, func(sc storage.Scope) error {
		if _, err := lists.GetTx(ctx, sc, listID); err != nil {
			return err
		}
		source, err := tasks.ListTx(ctx, sc, tasks.TaskQuery{ListID: &listID, OldestFirst: true})
		if err != nil {
			return err
		}

		in := TemplateInput{Name: name, Description: description, Category: category}
		for _, t := range source {
			in.Tasks = append(in.Tasks, types.TemplateTask{
				Title:          t.Title,
				Description:    t.Description,
				Priority:       t.Priority,
				EstimatedHours: t.EstimatedHours,
			})
		}
		tpl, err = e.createTx(ctx, sc, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"op": "create_template_from_list", "list_id": listID, "template_id": tpl.ID, "tasks": len(tpl.Tasks)}).
		Info("template derived from list")
	e.notify.Notify(events.Event{Entity: events.EntityTemplate, Action: events.ActionCreated, ID: tpl.ID, At: e.now(), Payload: tpl})
	return tpl, nil
}

// AddTemplateTask appends a task at the next order index.
func (e *Engine) AddTemplateTask(ctx context.Context, templateID int64, tt types.TemplateTask) (added *types.TemplateTask, err error) {
	defer metrics.Observe("add_template_task", time.Now(), &err)
	err = storage.WithScope(ctx, e.gw, func(sc storage.Scope) error {
		exists, deleted, err := storage.RowState(ctx, sc, "templates", templateID)
		if err != nil {
			return err
		}
		if !exists {
			return types.NotFound("template", templateID)
		}
		if deleted {
			return types.Deleted("template", templateID)
		}

		var next int
		if err := sc.QueryRow(ctx, `SELECT COALESCE(MAX(order_index) + 1, 0) FROM template_tasks WHERE template_id = ?`, templateID).Scan(&next); err != nil {
			return fmt.Errorf("failed to read template order: %w", err)
		}
		added, err = appendTaskTx(ctx, sc, templateID, next, tt)
		if err != nil {
			return err
		}
		_, err = sc.Exec(ctx, `UPDATE templates SET updated_at = ? WHERE id = ?`, storage.FormatTime(e.now()), templateID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.notify.Notify(events.Event{Entity: events.EntityTemplate, Action: events.ActionUpdated, ID: templateID, At: e.now()})
	return added, nil
}

// GetTemplate returns a live template with its tasks in order.
func (e *Engine) GetTemplate(ctx context.Context, id int64) (tpl *types.Template, err error) {
	defer metrics.Observe("get_template", time.Now(), &err)
	err = storage.WithScope(ctx, e.gw, func(sc storage.Scope) error {
		tpl, err = getTx(ctx, sc, id)
		return err
	})
	return tpl, err
}

func getTx(ctx context.Context, sc storage.Scope, id int64) (*types.Template, error) {
	tpl, err := scanTemplate(sc.QueryRow(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ? AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("template", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	rows, err := sc.Query(ctx, `
		SELECT id, template_id, title, description, order_index, estimated_hours, priority
		FROM template_tasks WHERE template_id = ? ORDER BY order_index
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read template tasks: %w", err)
	}
	defer rows.Close()

	tpl.Tasks = []types.TemplateTask{}
	for rows.Next() {
		var (
			tt       types.TemplateTask
			estimate sql.NullFloat64
			priority string
		)
		if err := rows.Scan(&tt.ID, &tt.TemplateID, &tt.Title, &tt.Description, &tt.OrderIndex, &estimate, &priority); err != nil {
			return nil, fmt.Errorf("failed to scan template task: %w", err)
		}
		tt.EstimatedHours = storage.NullToFloat(estimate)
		tt.Priority = types.Priority(priority)
		tpl.Tasks = append(tpl.Tasks, tt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate template tasks: %w", err)
	}
	return tpl, nil
}

// ListTemplates returns live templates ordered by name, optionally limited
// to one category. Tasks are not loaded.
func (e *Engine) ListTemplates(ctx context.Context, category string) (out []*types.Template, err error) {
	defer metrics.Observe("list_templates", time.Now(), &err)
	err = storage.WithScope(ctx, e.gw, func(sc storage.Scope) error {
		query := `SELECT ` + templateColumns + ` FROM templates WHERE deleted_at IS NULL`
		var args []any
		if c := strings.TrimSpace(category); c != "" {
			query += ` AND category = ?`
			args = append(args, c)
		}
		query += ` ORDER BY name, id`

		rows, err := sc.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to list templates: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			tpl, err := scanTemplate(rows)
			if err != nil {
				return fmt.Errorf("failed to scan template: %w", err)
			}
			out = append(out, tpl)
		}
		return rows.Err()
	})
	return out, err
}

// ApplyTemplate creates a new list and one pending task per template task,
// in order, substituting placeholders from opts.Params.
func (e *Engine) ApplyTemplate(ctx context.Context, templateID int64, opts ApplyOptions) (list *types.TaskList, err error) {
	defer metrics.Observe("apply_template", time.Now(), &err)
	var buf events.Buffer
	err = storage.WithScope(ctx, e.gw, func(sc storage.Scope) error {
		tpl, err := getTx(ctx, sc, templateID)
		if err != nil {
			return err
		}

		list, err = e.lists.CreateTx(ctx, sc, lists.ListInput{
			Name:        opts.ListName,
			Description: opts.ListDescription,
			ParentID:    opts.ParentID,
		}, &buf)
		if err != nil {
			return err
		}

		for _, tt := range tpl.Tasks {
			if _, err := e.tasks.CreateTx(ctx, sc, tasks.TaskInput{
				Title:          Substitute(tt.Title, opts.Params),
				Description:    Substitute(tt.Description, opts.Params),
				ListID:         &list.ID,
				Status:         types.StatusPending,
				Priority:       tt.Priority,
				EstimatedHours: tt.EstimatedHours,
			}, &buf); err != nil {
				return fmt.Errorf("template task %d: %w", tt.OrderIndex, err)
			}
		}
		buf.Add(events.EntityTemplate, events.ActionApplied, tpl.ID, map[string]int64{"list_id": list.ID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"op": "apply_template", "template_id": templateID, "list_id": list.ID}).Info("template applied")
	buf.Flush(e.notify)
	return list, nil
}

// DeleteTemplate soft-deletes a template. Lists created from it are not
// touched. It returns false when the id is missing or already deleted.
func (e *Engine) DeleteTemplate(ctx context.Context, id int64) (deleted bool, err error) {
	defer metrics.Observe("delete_template", time.Now(), &err)
	err = storage.WithScope(ctx, e.gw, func(sc storage.Scope) error {
		deleted, err = deleteTx(ctx, sc, id, e.now())
		return err
	})
	if err != nil {
		return false, err
	}
	if deleted {
		e.notify.Notify(events.Event{Entity: events.EntityTemplate, Action: events.ActionDeleted, ID: id, At: e.now()})
	}
	return deleted, nil
}

func deleteTx(ctx context.Context, sc storage.Scope, id int64, at time.Time) (bool, error) {
	now := storage.FormatTime(at)
	res, err := sc.Exec(ctx, `UPDATE templates SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, now, now, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete template: %w", err)
	}
	return res.RowsAffected > 0, nil
}

// ReplaceTemplate creates a template and soft-deletes every live template
// with the same name ignoring case, in one transaction. Replacing a template
// with an older version is a conflict.
func (e *Engine) ReplaceTemplate(ctx context.Context, in TemplateInput) (tpl *types.Template, replaced int, err error) {
	defer metrics.Observe("replace_template", time.Now(), &err)
	err = storage.WithScope(ctx, e.gw, func(sc storage.Scope) error {
		version, err := NormalizeVersion(in.Version)
		if err != nil {
			return err
		}
		rows, err := sc.Query(ctx, `SELECT id, version FROM templates WHERE deleted_at IS NULL AND name = ? COLLATE NOCASE`, strings.TrimSpace(in.Name))
		if err != nil {
			return fmt.Errorf("failed to find templates by name: %w", err)
		}
		var old []int64
		for rows.Next() {
			var id int64
			var live string
			if err := rows.Scan(&id, &live); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan template id: %w", err)
			}
			if Newer(live, version) {
				rows.Close()
				return types.Conflictf("template %d %q is at %s, newer than %s", id, in.Name, live, version)
			}
			old = append(old, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, id := range old {
			if _, err := deleteTx(ctx, sc, id, e.now()); err != nil {
				return err
			}
		}
		replaced = len(old)
		tpl, err = e.createTx(ctx, sc, in)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	e.notify.Notify(events.Event{Entity: events.EntityTemplate, Action: events.ActionCreated, ID: tpl.ID, At: e.now(), Payload: tpl})
	return tpl, replaced, nil
}
