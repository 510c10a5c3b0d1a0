package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchemaVersion = 1

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
	user_id      TEXT    NOT NULL,
	project_key  TEXT    NOT NULL,
	sprint_key   TEXT    NOT NULL,
	sprint_id    INTEGER,
	issue_count  INTEGER NOT NULL DEFAULT 0,
	payload      TEXT    NOT NULL,
	captured_at  INTEGER NOT NULL,
	PRIMARY KEY (user_id, project_key, sprint_key)
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_user ON %[1]s(user_id, captured_at);
`

// SQLiteStore keeps snapshots in a local SQLite database.
type SQLiteStore struct {
	db    *sql.DB
	table string
	opts  options
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database file and applies the schema.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	connStr := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	o := newOptions(opts)
	s := &SQLiteStore{db: db, table: o.prefix + "sprint_cache", opts: o}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// init creates this store's table on every open, since several prefixes can
// share one file. user_version only tracks migrations.
func (s *SQLiteStore) init() error {
	if _, err := s.db.Exec(fmt.Sprintf(sqliteSchema, s.table)); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version >= sqliteSchemaVersion {
		return nil
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID, projectKey string, sprintID *int, maxAge time.Duration) (*Snapshot, error) {
	q := fmt.Sprintf(`SELECT payload, captured_at FROM %s WHERE user_id = ? AND project_key = ? AND sprint_key = ?`, s.table)

	var body string
	var captured int64
	err := s.db.QueryRowContext(ctx, q, userID, projectKey, sprintKey(sprintID)).Scan(&body, &captured)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	capturedAt := time.Unix(0, captured).UTC()
	if expired(s.opts.now(), capturedAt, maxAge) {
		return nil, nil
	}

	var p payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	snap := p.snapshot(userID, projectKey, cloneInt(sprintID), capturedAt)
	return &snap, nil
}

func (s *SQLiteStore) GetAll(ctx context.Context, userID, projectKey string, maxAge time.Duration) ([]Snapshot, error) {
	q := fmt.Sprintf(`SELECT sprint_key, payload, captured_at FROM %s WHERE user_id = ? AND project_key = ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, userID, projectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	now := s.opts.now()
	var out []Snapshot
	for rows.Next() {
		var key, body string
		var captured int64
		if err := rows.Scan(&key, &body, &captured); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		capturedAt := time.Unix(0, captured).UTC()
		if expired(now, capturedAt, maxAge) {
			continue
		}
		var p payload
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		out = append(out, p.snapshot(userID, projectKey, parseSprintKey(key), capturedAt))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortSnapshots(out)
	return out, nil
}

func (s *SQLiteStore) Put(ctx context.Context, snap Snapshot) error {
	if err := validateKey(snap.UserID, snap.ProjectKey); err != nil {
		return err
	}

	body, err := json.Marshal(payloadOf(snap))
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	var sprintID sql.NullInt64
	if snap.SprintID != nil {
		sprintID = sql.NullInt64{Int64: int64(*snap.SprintID), Valid: true}
	}

	q := fmt.Sprintf(`
		INSERT INTO %[1]s (user_id, project_key, sprint_key, sprint_id, issue_count, payload, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, project_key, sprint_key) DO UPDATE SET
			sprint_id = excluded.sprint_id,
			issue_count = excluded.issue_count,
			payload = excluded.payload,
			captured_at = MAX(excluded.captured_at, %[1]s.captured_at)`, s.table)

	captured := stamp(s.opts.now(), nil).UnixNano()
	if _, err := s.db.ExecContext(ctx, q, snap.UserID, snap.ProjectKey, sprintKey(snap.SprintID), sprintID, len(snap.Issues), string(body), captured); err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID, projectKey string) error {
	var err error
	if projectKey == "" {
		_, err = s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = ?`, s.table), userID)
	} else {
		_, err = s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = ? AND project_key = ?`, s.table), userID, projectKey)
	}
	if err != nil {
		return fmt.Errorf("failed to delete cache: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, userID string) ([]Entry, error) {
	q := fmt.Sprintf(`SELECT project_key, sprint_key, issue_count, payload, captured_at FROM %s WHERE user_id = ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var project, key, body string
		var count int
		var captured int64
		if err := rows.Scan(&project, &key, &count, &body, &captured); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		var p payload
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		entry := entryOf(p.snapshot(userID, project, parseSprintKey(key), time.Unix(0, captured).UTC()))
		entry.IssueCount = count
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
