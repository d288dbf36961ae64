// Package sqlite implements audit.Log on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/dittotree/internal/logger"
	"github.com/marmos91/dittotree/pkg/audit"
	"github.com/marmos91/dittotree/pkg/tree"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteLog implements audit.Log on a SQLite database. It is convenient
// when the revision history should be queryable with ordinary SQL tools.
type SQLiteLog struct {
	db *sql.DB
}

// SQLiteLogConfig configures a SQLiteLog.
type SQLiteLogConfig struct {
	// Path is the database file; ":memory:" keeps it in memory
	Path string `mapstructure:"path"`
}

// NewSQLiteLog opens the database, enabling WAL mode for file databases, and
// creates the schema if needed.
func NewSQLiteLog(ctx context.Context, config SQLiteLogConfig) (*SQLiteLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dsn := config.Path
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn += "?_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database at %s: %w", config.Path, err)
	}

	// One connection: appends read the head number and insert in the same
	// transaction, and an in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("SQLiteLog opened: path=%s", config.Path)
	return &SQLiteLog{db: db}, nil
}

func (l *SQLiteLog) Append(ctx context.Context, entry audit.Entry) (*audit.Revision, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var head uint64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(number), 0) FROM revisions WHERE node_id = ?`,
		entry.NodeID.String(),
	).Scan(&head)
	if err != nil {
		return nil, fmt.Errorf("failed to read revision head: %w", err)
	}

	rev := audit.Build(entry, head+1)
	data, err := json.Marshal(rev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode revision: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO revisions (id, node_id, number, kind, owner, actor, operation_id, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rev.ID, rev.NodeID.String(), rev.Number, string(rev.Kind),
		string(rev.Snapshot.Node.Owner), string(rev.Actor), rev.OperationID,
		rev.Timestamp.Format(time.RFC3339Nano), string(data),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit revision: %w", err)
	}
	return rev, nil
}

func (l *SQLiteLog) History(ctx context.Context, id tree.NodeID) ([]*audit.Revision, error) {
	return l.query(ctx,
		`SELECT data FROM revisions WHERE node_id = ? ORDER BY number`,
		id.String(),
	)
}

func (l *SQLiteLog) Get(ctx context.Context, id tree.NodeID, number uint64) (*audit.Revision, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT data FROM revisions WHERE node_id = ? AND number = ?`,
		id.String(), number,
	)
	rev, err := scanRevision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, audit.RevisionNotFound(id, number)
	}
	return rev, err
}

func (l *SQLiteLog) Latest(ctx context.Context, id tree.NodeID) (*audit.Revision, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT data FROM revisions WHERE node_id = ? ORDER BY number DESC LIMIT 1`,
		id.String(),
	)
	rev, err := scanRevision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, audit.RevisionNotFound(id, 0)
	}
	return rev, err
}

func (l *SQLiteLog) DeletedByOwner(ctx context.Context, owner tree.UserID) ([]*audit.Revision, error) {
	return l.query(ctx, `
		SELECT r.data FROM revisions r
		JOIN (SELECT node_id, MAX(number) AS number FROM revisions GROUP BY node_id) head
		  ON r.node_id = head.node_id AND r.number = head.number
		WHERE r.kind = ? AND r.owner = ?
		ORDER BY r.id`,
		string(audit.ChangeDelete), string(owner),
	)
}

func (l *SQLiteLog) Since(ctx context.Context, afterID string, limit int) ([]*audit.Revision, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	return l.query(ctx,
		`SELECT data FROM revisions WHERE id > ? ORDER BY id LIMIT ?`,
		afterID, limit,
	)
}

func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

func (l *SQLiteLog) query(ctx context.Context, query string, args ...any) ([]*audit.Revision, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*audit.Revision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRevision(row scanner) (*audit.Revision, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		return nil, err
	}

	var rev audit.Revision
	if err := json.Unmarshal([]byte(data), &rev); err != nil {
		return nil, fmt.Errorf("failed to decode revision: %w", err)
	}
	return &rev, nil
}
