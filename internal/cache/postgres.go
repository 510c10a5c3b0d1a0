package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
	user_id      TEXT        NOT NULL,
	project_key  TEXT        NOT NULL,
	sprint_key   TEXT        NOT NULL,
	sprint_id    INTEGER,
	issue_count  INTEGER     NOT NULL DEFAULT 0,
	payload      JSONB       NOT NULL,
	captured_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, project_key, sprint_key)
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_user ON %[1]s(user_id, captured_at);
`

// PostgresStore keeps snapshots in a Postgres table with a JSONB payload.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
	opts  options
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects, pings and ensures the table exists.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}

	o := newOptions(opts)
	s := &PostgresStore{pool: pool, table: o.prefix + "sprint_cache", opts: o}
	if _, err := pool.Exec(ctx, fmt.Sprintf(postgresSchema, s.table)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID, projectKey string, sprintID *int, maxAge time.Duration) (*Snapshot, error) {
	q := fmt.Sprintf(`SELECT payload, captured_at FROM %s WHERE user_id = $1 AND project_key = $2 AND sprint_key = $3`, s.table)

	var body []byte
	var capturedAt time.Time
	err := s.pool.QueryRow(ctx, q, userID, projectKey, sprintKey(sprintID)).Scan(&body, &capturedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if expired(s.opts.now(), capturedAt, maxAge) {
		return nil, nil
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	snap := p.snapshot(userID, projectKey, cloneInt(sprintID), capturedAt.UTC())
	return &snap, nil
}

func (s *PostgresStore) GetAll(ctx context.Context, userID, projectKey string, maxAge time.Duration) ([]Snapshot, error) {
	q := fmt.Sprintf(`SELECT sprint_key, payload, captured_at FROM %s WHERE user_id = $1 AND project_key = $2`, s.table)
	rows, err := s.pool.Query(ctx, q, userID, projectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	now := s.opts.now()
	var out []Snapshot
	for rows.Next() {
		var key string
		var body []byte
		var capturedAt time.Time
		if err := rows.Scan(&key, &body, &capturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if expired(now, capturedAt, maxAge) {
			continue
		}
		var p payload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		out = append(out, p.snapshot(userID, projectKey, parseSprintKey(key), capturedAt.UTC()))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortSnapshots(out)
	return out, nil
}

func (s *PostgresStore) Put(ctx context.Context, snap Snapshot) error {
	if err := validateKey(snap.UserID, snap.ProjectKey); err != nil {
		return err
	}

	body, err := json.Marshal(payloadOf(snap))
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	q := fmt.Sprintf(`
		INSERT INTO %[1]s (user_id, project_key, sprint_key, sprint_id, issue_count, payload, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, project_key, sprint_key) DO UPDATE SET
			sprint_id = EXCLUDED.sprint_id,
			issue_count = EXCLUDED.issue_count,
			payload = EXCLUDED.payload,
			captured_at = GREATEST(EXCLUDED.captured_at, %[1]s.captured_at)`, s.table)

	_, err = s.pool.Exec(ctx, q, snap.UserID, snap.ProjectKey, sprintKey(snap.SprintID), snap.SprintID,
		len(snap.Issues), body, stamp(s.opts.now(), nil))
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID, projectKey string) error {
	var err error
	if projectKey == "" {
		_, err = s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, s.table), userID)
	} else {
		_, err = s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1 AND project_key = $2`, s.table), userID, projectKey)
	}
	if err != nil {
		return fmt.Errorf("failed to delete cache: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, userID string) ([]Entry, error) {
	q := fmt.Sprintf(`SELECT project_key, sprint_key, issue_count, payload - 'issues', captured_at FROM %s WHERE user_id = $1`, s.table)
	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var project, key string
		var count int
		var body []byte
		var capturedAt time.Time
		if err := rows.Scan(&project, &key, &count, &body, &capturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		var p payload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		entry := entryOf(p.snapshot(userID, project, parseSprintKey(key), capturedAt.UTC()))
		entry.IssueCount = count
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
