// Package attributes manages typed custom attribute definitions and their
// values on tasks and lists.
package attributes

import (
	"context"
	"database/sql"
	"encoding/json"
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

// Manager owns attribute definitions and values.
type Manager struct {
	gw     storage.Gateway
	log    logrus.FieldLogger
	notify events.Notifier
	now    func() time.Time
}

// NewManager creates an attribute manager.
func NewManager(gw storage.Gateway, log logrus.FieldLogger, notify events.Notifier) *Manager {
	if notify == nil {
		notify = events.Nop
	}
	return &Manager{gw: gw, log: logging.OrNop(log), notify: notify, now: func() time.Time { return time.Now().UTC() }}
}

// DefinitionInput holds the fields of a new attribute definition.
type DefinitionInput struct {
	Name            string
	Type            types.AttributeType
	IsRequired      bool
	DefaultValue    string
	ValidationRules json.RawMessage
}

// Target identifies the value table for one entity kind.
type Target struct {
	entity string
	table  string
	values string
	column string
}

var (
	// TaskTarget stores values on tasks.
	TaskTarget = Target{entity: "task", table: "tasks", values: "task_attributes", column: "task_id"}
	// ListTarget stores values on lists.
	ListTarget = Target{entity: "list", table: "lists", values: "list_attributes", column: "list_id"}
)

const definitionColumns = `d.id, d.name, d.type, d.is_required, d.default_value, d.validation_rules, d.created_at`

func scanDefinition(row storage.Row) (*types.AttributeDefinition, error) {
	var (
		d       types.AttributeDefinition
		typ     string
		rules   string
		created string
	)
	if err := row.Scan(&d.ID, &d.Name, &typ, &d.IsRequired, &d.DefaultValue, &rules, &created); err != nil {
		return nil, err
	}
	d.Type = types.AttributeType(typ)
	if rules != "" {
		d.ValidationRules = json.RawMessage(rules)
	}
	d.CreatedAt = storage.ParseTime(created)
	return &d, nil
}

// CreateAttributeDefinition validates and stores a definition. The default
// value, when present, must itself pass validation.
func (m *Manager) CreateAttributeDefinition(ctx context.Context, in DefinitionInput) (def *types.AttributeDefinition, err error) {
	defer metrics.Observe("create_attribute_definition", time.Now(), &err)

	name := strings.TrimSpace(in.Name)
	if err := types.ValidateName("name", name, types.MaxAttributeNameLength); err != nil {
		return nil, err
	}
	if !in.Type.IsValid() {
		return nil, types.Validationf("attribute type %q is unknown", in.Type)
	}
	rules, err := NormalizeRules(in.ValidationRules)
	if err != nil {
		return nil, err
	}
	check, err := Compile(in.Type, rules)
	if err != nil {
		return nil, err
	}
	if in.DefaultValue != "" {
		if err := check(in.DefaultValue); err != nil {
			return nil, types.Validationf("default value: %s", types.MessageOf(err))
		}
	}

	d := &types.AttributeDefinition{
		Name:            name,
		Type:            in.Type,
		IsRequired:      in.IsRequired,
		DefaultValue:    in.DefaultValue,
		ValidationRules: rules,
		CreatedAt:       m.now(),
	}
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		var existing int64
		err := sc.QueryRow(ctx, `SELECT id FROM attribute_definitions WHERE name = ? COLLATE NOCASE`, name).Scan(&existing)
		if err == nil {
			return types.Conflictf("attribute %q already exists (attribute %d)", name, existing)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check attribute name: %w", err)
		}

		res, err := sc.Exec(ctx, `
			INSERT INTO attribute_definitions (name, type, is_required, default_value, validation_rules, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, d.Name, string(d.Type), d.IsRequired, d.DefaultValue, string(d.ValidationRules), storage.FormatTime(d.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert attribute definition: %w", err)
		}
		d.ID = res.LastInsertID
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.WithFields(logrus.Fields{"op": "create_attribute_definition", "attribute_id": d.ID, "attribute": describe(d)}).Debug("attribute defined")
	m.notify.Notify(events.Event{Entity: events.EntityAttribute, Action: events.ActionCreated, ID: d.ID, At: m.now(), Payload: d})
	return d, nil
}

// GetDefinition returns a definition by id.
func (m *Manager) GetDefinition(ctx context.Context, id int64) (def *types.AttributeDefinition, err error) {
	defer metrics.Observe("get_attribute_definition", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		def, err = getDefinitionTx(ctx, sc, id)
		return err
	})
	return def, err
}

// GetDefinitionByName returns a definition by name, ignoring case.
func (m *Manager) GetDefinitionByName(ctx context.Context, name string) (def *types.AttributeDefinition, err error) {
	defer metrics.Observe("get_attribute_definition", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		def, err = scanDefinition(sc.QueryRow(ctx, `SELECT `+definitionColumns+` FROM attribute_definitions d WHERE d.name = ? COLLATE NOCASE`, strings.TrimSpace(name)))
		if errors.Is(err, sql.ErrNoRows) {
			return types.NotFoundf("attribute %q not found", name)
		}
		if err != nil {
			return fmt.Errorf("failed to get attribute definition: %w", err)
		}
		return nil
	})
	return def, err
}

// ListDefinitions returns every definition ordered by name.
func (m *Manager) ListDefinitions(ctx context.Context) (out []*types.AttributeDefinition, err error) {
	defer metrics.Observe("list_attribute_definitions", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		rows, err := sc.Query(ctx, `SELECT `+definitionColumns+` FROM attribute_definitions d ORDER BY d.name COLLATE NOCASE, d.id`)
		if err != nil {
			return fmt.Errorf("failed to list attribute definitions: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			d, err := scanDefinition(rows)
			if err != nil {
				return fmt.Errorf("failed to scan attribute definition: %w", err)
			}
			out = append(out, d)
		}
		return rows.Err()
	})
	return out, err
}

// DeleteAttributeDefinition removes every value of the definition and then
// the definition itself. It returns false when the definition does not exist.
func (m *Manager) DeleteAttributeDefinition(ctx context.Context, id int64) (deleted bool, err error) {
	defer metrics.Observe("delete_attribute_definition", time.Now(), &err)
	var removed int64
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		for _, t := range []Target{TaskTarget, ListTarget} {
			res, err := sc.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE attribute_definition_id = ?`, t.values), id)
			if err != nil {
				return fmt.Errorf("failed to delete %s attribute values: %w", t.entity, err)
			}
			removed += res.RowsAffected
		}
		res, err := sc.Exec(ctx, `DELETE FROM attribute_definitions WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete attribute definition: %w", err)
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if deleted {
		m.log.WithFields(logrus.Fields{"op": "delete_attribute_definition", "attribute_id": id, "values": removed}).Info("attribute definition deleted")
		m.notify.Notify(events.Event{Entity: events.EntityAttribute, Action: events.ActionDeleted, ID: id, At: m.now()})
	}
	return deleted, nil
}

// SetTaskAttribute stores a value on a task.
func (m *Manager) SetTaskAttribute(ctx context.Context, taskID, defID int64, value string) (*types.AttributeValue, error) {
	return m.Set(ctx, TaskTarget, taskID, defID, value)
}

// SetListAttribute stores a value on a list.
func (m *Manager) SetListAttribute(ctx context.Context, listID, defID int64, value string) (*types.AttributeValue, error) {
	return m.Set(ctx, ListTarget, listID, defID, value)
}

// GetTaskAttributes returns the values stored on a live task.
func (m *Manager) GetTaskAttributes(ctx context.Context, taskID int64) ([]*types.AttributeValue, error) {
	return m.Values(ctx, TaskTarget, taskID)
}

// GetListAttributes returns the values stored on a live list.
func (m *Manager) GetListAttributes(ctx context.Context, listID int64) ([]*types.AttributeValue, error) {
	return m.Values(ctx, ListTarget, listID)
}

// RemoveTaskAttribute deletes a value. It returns false when none was set.
func (m *Manager) RemoveTaskAttribute(ctx context.Context, taskID, defID int64) (bool, error) {
	return m.Remove(ctx, TaskTarget, taskID, defID)
}

// RemoveListAttribute deletes a value.
func (m *Manager) RemoveListAttribute(ctx context.Context, listID, defID int64) (bool, error) {
	return m.Remove(ctx, ListTarget, listID, defID)
}

// Set validates value against the definition and upserts it. An empty value
// is rejected for a required attribute. For an optional attribute it takes
// the definition's default, and if that is empty too the stored value is
// removed and Set returns nil.
func (m *Manager) Set(ctx context.Context, t Target, entityID, defID int64, value string) (val *types.AttributeValue, err error) {
	defer metrics.Observe("set_attribute", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		d, err := getDefinitionTx(ctx, sc, defID)
		if err != nil {
			return err
		}
		if err := requireEntity(ctx, sc, t, entityID); err != nil {
			return err
		}

		v := strings.TrimSpace(value)
		if v == "" && d.IsRequired {
			return types.Validationf("attribute %q is required", d.Name)
		}
		if v == "" {
			v = d.DefaultValue
		}
		if v == "" {
			if _, err := sc.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = ? AND attribute_definition_id = ?`, t.values, t.column), entityID, defID); err != nil {
				return fmt.Errorf("failed to clear attribute value: %w", err)
			}
			return nil
		}

		check, err := Compile(d.Type, d.ValidationRules)
		if err != nil {
			return err
		}
		if err := check(v); err != nil {
			return types.Validationf("attribute %q: %s", d.Name, types.MessageOf(err))
		}

		now := storage.FormatTime(m.now())
		if _, err := sc.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %[1]s (%[2]s, attribute_definition_id, value, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(%[2]s, attribute_definition_id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, t.values, t.column), entityID, defID, v, now, now); err != nil {
			return fmt.Errorf("failed to store attribute value: %w", err)
		}
		val, err = readValue(ctx, sc, t, entityID, defID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if val != nil {
		m.notify.Notify(events.Event{Entity: events.Entity(t.entity), Action: events.ActionUpdated, ID: entityID, At: m.now(), Payload: val})
	}
	return val, nil
}

// Values returns the attribute values of a live entity ordered by name.
func (m *Manager) Values(ctx context.Context, t Target, entityID int64) (out []*types.AttributeValue, err error) {
	defer metrics.Observe("get_attributes", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		if err := requireEntity(ctx, sc, t, entityID); err != nil {
			return err
		}
		rows, err := sc.Query(ctx, valueQuery(t)+` WHERE v.`+t.column+` = ? ORDER BY d.name COLLATE NOCASE`, entityID)
		if err != nil {
			return fmt.Errorf("failed to read %s attributes: %w", t.entity, err)
		}
		defer rows.Close()
		for rows.Next() {
			v, err := scanValue(rows)
			if err != nil {
				return fmt.Errorf("failed to scan attribute value: %w", err)
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	return out, err
}

// Remove deletes one value of an entity.
func (m *Manager) Remove(ctx context.Context, t Target, entityID, defID int64) (removed bool, err error) {
	defer metrics.Observe("remove_attribute", time.Now(), &err)
	err = storage.WithScope(ctx, m.gw, func(sc storage.Scope) error {
		res, err := sc.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = ? AND attribute_definition_id = ?`, t.values, t.column), entityID, defID)
		if err != nil {
			return fmt.Errorf("failed to remove attribute value: %w", err)
		}
		removed = res.RowsAffected > 0
		return nil
	})
	return removed, err
}

func valueQuery(t Target) string {
	return fmt.Sprintf(`
		SELECT v.%[2]s, v.attribute_definition_id, d.name, d.type, v.value, v.created_at, v.updated_at
		FROM %[1]s v
		JOIN attribute_definitions d ON d.id = v.attribute_definition_id
	`, t.values, t.column)
}

func scanValue(row storage.Row) (*types.AttributeValue, error) {
	var (
		v                types.AttributeValue
		typ              string
		created, updated string
	)
	if err := row.Scan(&v.EntityID, &v.DefinitionID, &v.Name, &typ, &v.Value, &created, &updated); err != nil {
		return nil, err
	}
	v.Type = types.AttributeType(typ)
	v.CreatedAt = storage.ParseTime(created)
	v.UpdatedAt = storage.ParseTime(updated)
	return &v, nil
}

func readValue(ctx context.Context, sc storage.Scope, t Target, entityID, defID int64) (*types.AttributeValue, error) {
	v, err := scanValue(sc.QueryRow(ctx, valueQuery(t)+` WHERE v.`+t.column+` = ? AND v.attribute_definition_id = ?`, entityID, defID))
	if err != nil {
		return nil, fmt.Errorf("failed to read attribute value: %w", err)
	}
	return v, nil
}

func getDefinitionTx(ctx context.Context, sc storage.Scope, id int64) (*types.AttributeDefinition, error) {
	d, err := scanDefinition(sc.QueryRow(ctx, `SELECT `+definitionColumns+` FROM attribute_definitions d WHERE d.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("attribute", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attribute definition: %w", err)
	}
	return d, nil
}

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
