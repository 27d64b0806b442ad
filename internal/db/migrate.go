package db

import (
	"context"
	"fmt"
)

var schema = map[string][]string{
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS tasks (
  id BIGSERIAL PRIMARY KEY,
  title VARCHAR(200) NOT NULL,
  description VARCHAR(2000),
  priority VARCHAR(16) NOT NULL DEFAULT 'medium',
  status VARCHAR(16) NOT NULL DEFAULT 'todo',
  due_date TIMESTAMP WITHOUT TIME ZONE,
  created_at TIMESTAMP WITHOUT TIME ZONE NOT NULL,
  updated_at TIMESTAMP WITHOUT TIME ZONE NOT NULL,
  CONSTRAINT tasks_priority_check CHECK (priority IN ('low', 'medium', 'high')),
  CONSTRAINT tasks_status_check CHECK (status IN ('todo', 'in_progress', 'done', 'cancelled'))
)`,
		`CREATE INDEX IF NOT EXISTS ix_tasks_title ON tasks (title)`,
		`CREATE INDEX IF NOT EXISTS ix_tasks_status ON tasks (status)`,
		`CREATE INDEX IF NOT EXISTS ix_tasks_priority ON tasks (priority)`,
	},
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS tasks (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT NOT NULL,
  description TEXT,
  priority TEXT NOT NULL DEFAULT 'medium' CHECK (priority IN ('low', 'medium', 'high')),
  status TEXT NOT NULL DEFAULT 'todo' CHECK (status IN ('todo', 'in_progress', 'done', 'cancelled')),
  due_date TIMESTAMP,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS ix_tasks_title ON tasks (title)`,
		`CREATE INDEX IF NOT EXISTS ix_tasks_status ON tasks (status)`,
		`CREATE INDEX IF NOT EXISTS ix_tasks_priority ON tasks (priority)`,
	},
}

// Migrate creates the tasks table and its indexes if they do not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	stmts, ok := schema[d.Driver]
	if !ok {
		return fmt.Errorf("migrate: unsupported driver %q", d.Driver)
	}
	return d.WithTx(ctx, func(tx DBTX) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		return nil
	})
}
