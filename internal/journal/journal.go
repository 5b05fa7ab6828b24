// Package journal records storage-affecting operations in an
// append-only SQLite log.
//
// The journal is advisory: it exists so an operator can answer "what
// touched this document and when". Callers log after the fact and treat
// a journal failure as a warning; a commit that succeeded is never
// rolled back because its journal row could not be written.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Recognized operation kinds. The column is free-form; these are the
// values this module writes.
const (
	OpCommit  = "commit"
	OpBackup  = "backup"
	OpRestore = "restore"
	OpRepair  = "repair"
	OpApply   = "apply"
)

// Event is one journal row.
type Event struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Op     string `json:"op"`
	Detail string `json:"detail"`
	TS     string `json:"ts"`
}

// Journal is an append-only operations log backed by SQLite.
// WAL mode allows history reads while another process appends.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithClock replaces the wall clock used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// Open creates or opens the journal database at path. Idempotent; safe
// to call from every short-lived worker process.
//
// The database is configured with:
//   - WAL mode so history reads do not block appends
//   - NORMAL synchronous mode
//   - 5-second busy timeout for cross-process contention
//   - a single connection, since SQLite allows one writer at a time
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure journal: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}

	j := &Journal{db: db, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append records one event and returns it with its generated id and
// timestamp filled in. Duplicate ids are silently ignored, so replaying
// an append after a crash is harmless.
func (j *Journal) Append(ctx context.Context, name, op, detail string) (*Event, error) {
	ev := &Event{
		ID:     uuid.Must(uuid.NewV7()).String(),
		Name:   name,
		Op:     op,
		Detail: detail,
		TS:     j.now().UTC().Format(time.RFC3339),
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO events (id, name, op, detail, ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ev.ID, ev.Name, ev.Op, ev.Detail, ev.TS)
	if err != nil {
		return nil, fmt.Errorf("append journal event: %w", err)
	}
	return ev, nil
}

// History returns the events for one document, newest first. A limit of
// zero or less means no limit. UUIDv7 ids are time-ordered, so they
// break ties between events sharing a second-resolution timestamp.
func (j *Journal) History(ctx context.Context, name string, limit int) ([]Event, error) {
	q := `
		SELECT id, name, op, detail, ts FROM events
		WHERE name = ?
		ORDER BY ts DESC, id DESC
	`
	args := []any{name}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("read journal history: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Recent returns the newest events across all documents.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, name, op, detail, ts FROM events
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.Op, &ev.Detail, &ev.TS); err != nil {
			return nil, fmt.Errorf("scan journal event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal events: %w", err)
	}
	return events, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
