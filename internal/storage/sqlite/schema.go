package sqlite

import (
	"context"
	"fmt"
)

// SchemaVersion is recorded in PRAGMA user_version after InitSchema.
const SchemaVersion = 1

// Timestamps are TEXT in storage.TimeLayout so that lexical order is
// chronological. Declaring them DATETIME would make the driver hand back
// time.Time values.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS lists (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	parent_id   INTEGER REFERENCES lists(id),
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	deleted_at  TEXT
);

CREATE TABLE IF NOT EXISTS tasks (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	notes           TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'pending'
	                CHECK (status IN ('pending', 'in_progress', 'completed', 'cancelled', 'blocked')),
	priority        TEXT NOT NULL DEFAULT 'normal'
	                CHECK (priority IN ('normal', 'low', 'high', 'critical')),
	list_id         INTEGER REFERENCES lists(id),
	due_date        TEXT,
	estimated_hours REAL CHECK (estimated_hours IS NULL OR estimated_hours >= 0),
	completed_at    TEXT,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL,
	deleted_at      TEXT
);

CREATE TABLE IF NOT EXISTS templates (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	version     TEXT NOT NULL DEFAULT 'v1.0.0',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	deleted_at  TEXT
);

CREATE TABLE IF NOT EXISTS template_tasks (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	template_id     INTEGER NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	order_index     INTEGER NOT NULL,
	estimated_hours REAL CHECK (estimated_hours IS NULL OR estimated_hours >= 0),
	priority        TEXT NOT NULL DEFAULT 'normal'
	                CHECK (priority IN ('normal', 'low', 'high', 'critical')),
	UNIQUE (template_id, order_index)
);

CREATE TABLE IF NOT EXISTS tags (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE COLLATE NOCASE,
	color      TEXT NOT NULL DEFAULT '',
	parent_id  INTEGER REFERENCES tags(id) ON DELETE SET NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS task_tags (
	task_id    INTEGER NOT NULL REFERENCES tasks(id),
	tag_id     INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	created_at TEXT NOT NULL,
	PRIMARY KEY (task_id, tag_id)
);

CREATE TABLE IF NOT EXISTS list_tags (
	list_id    INTEGER NOT NULL REFERENCES lists(id),
	tag_id     INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	created_at TEXT NOT NULL,
	PRIMARY KEY (list_id, tag_id)
);

CREATE TABLE IF NOT EXISTS attribute_definitions (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL UNIQUE COLLATE NOCASE,
	type             TEXT NOT NULL,
	is_required      INTEGER NOT NULL DEFAULT 0,
	default_value    TEXT NOT NULL DEFAULT '',
	validation_rules TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS task_attributes (
	task_id                 INTEGER NOT NULL REFERENCES tasks(id),
	attribute_definition_id INTEGER NOT NULL REFERENCES attribute_definitions(id) ON DELETE CASCADE,
	value                   TEXT NOT NULL,
	created_at              TEXT NOT NULL,
	updated_at              TEXT NOT NULL,
	PRIMARY KEY (task_id, attribute_definition_id)
);

CREATE TABLE IF NOT EXISTS list_attributes (
	list_id                 INTEGER NOT NULL REFERENCES lists(id),
	attribute_definition_id INTEGER NOT NULL REFERENCES attribute_definitions(id) ON DELETE CASCADE,
	value                   TEXT NOT NULL,
	created_at              TEXT NOT NULL,
	updated_at              TEXT NOT NULL,
	PRIMARY KEY (list_id, attribute_definition_id)
);

CREATE INDEX IF NOT EXISTS idx_lists_parent ON lists(parent_id) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_tasks_list_status ON tasks(list_id, status) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date);
CREATE INDEX IF NOT EXISTS idx_templates_category ON templates(category);
CREATE INDEX IF NOT EXISTS idx_template_tasks_template ON template_tasks(template_id, order_index);
CREATE INDEX IF NOT EXISTS idx_tags_parent ON tags(parent_id);
CREATE INDEX IF NOT EXISTS idx_task_tags_tag ON task_tags(tag_id);
CREATE INDEX IF NOT EXISTS idx_list_tags_tag ON list_tags(tag_id);
CREATE INDEX IF NOT EXISTS idx_task_attributes_def ON task_attributes(attribute_definition_id);
CREATE INDEX IF NOT EXISTS idx_list_attributes_def ON list_attributes(attribute_definition_id);
`

// InitSchema creates the database schema.
// Safe to call multiple times (uses IF NOT EXISTS).
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := s.conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

// UserVersion returns the schema version recorded in the database file.
func (s *Store) UserVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}
