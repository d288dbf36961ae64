package sqlite

import (
	"database/sql"
	"fmt"
)

// The full revision is stored as JSON in data; the other columns exist for
// lookups and ordering.
const schema = `
CREATE TABLE IF NOT EXISTS revisions (
	id TEXT PRIMARY KEY,
	node_id TEXT NOT NULL,
	number INTEGER NOT NULL,
	kind TEXT NOT NULL,
	owner TEXT NOT NULL,
	actor TEXT NOT NULL,
	operation_id TEXT,
	created_at TEXT NOT NULL,
	data TEXT NOT NULL,
	UNIQUE (node_id, number)
);

CREATE INDEX IF NOT EXISTS idx_revisions_owner_kind ON revisions(owner, kind);
CREATE INDEX IF NOT EXISTS idx_revisions_operation ON revisions(operation_id);
`

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize revision schema: %w", err)
	}
	return nil
}
