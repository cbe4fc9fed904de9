// Package db persists request history and test results for reqly in SQLite.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id           TEXT PRIMARY KEY,
	request_id   TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	method       TEXT NOT NULL,
	url          TEXT NOT NULL,
	status       INTEGER NOT NULL,
	time_ms      INTEGER NOT NULL,
	size         INTEGER NOT NULL,
	request      TEXT NOT NULL,
	response     TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_created ON history (created_at);

CREATE TABLE IF NOT EXISTS results (
	id           TEXT PRIMARY KEY,
	request_id   TEXT NOT NULL,
	test_name    TEXT NOT NULL,
	passed       INTEGER NOT NULL,
	message      TEXT NOT NULL DEFAULT '',
	duration_ms  INTEGER NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_request ON results (request_id);
`

// Store is a SQLite-backed history and result store.
type Store struct {
	db           *sql.DB
	dataSource   string
	queryTimeout time.Duration
}

// Open opens (creating if needed) the store at connectionString.
// Supported forms: sqlite://path, sqlite:path, a bare file path or :memory:.
func Open(connectionString string) (*Store, error) {
	dsn, err := parseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases alive and serializes writes.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{
		db:           db,
		dataSource:   dsn,
		queryTimeout: 30 * time.Second,
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// AppendHistory stores one dispatched request.
func (s *Store) AppendHistory(ctx context.Context, entry model.HistoryEntry) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	reqJSON, err := json.Marshal(entry.Request)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	respJSON, err := json.Marshal(entry.Response)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO history (id, request_id, name, method, url, status, time_ms, size, request, response, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Request.ID, entry.Request.Name, strings.ToUpper(entry.Request.Method), entry.Request.URL,
		entry.Response.Status, entry.Response.Time, entry.Response.Size,
		string(reqJSON), string(respJSON), entry.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

// History returns up to limit entries, newest first. A limit of zero or
// less returns everything.
func (s *Store) History(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT id, request, response, created_at FROM history ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	entries := make([]model.HistoryEntry, 0)
	for rows.Next() {
		var (
			entry             model.HistoryEntry
			reqJSON, respJSON string
			createdAt         int64
		)
		if err := rows.Scan(&entry.ID, &reqJSON, &respJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(reqJSON), &entry.Request); err != nil {
			return nil, fmt.Errorf("failed to decode request of %s: %w", entry.ID, err)
		}
		if err := json.Unmarshal([]byte(respJSON), &entry.Response); err != nil {
			return nil, fmt.Errorf("failed to decode response of %s: %w", entry.ID, err)
		}
		entry.Timestamp = time.UnixMilli(createdAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// ClearHistory removes every history entry.
func (s *Store) ClearHistory(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// SaveResults stores test results in a single transaction.
func (s *Store) SaveResults(ctx context.Context, results []model.TestResult) error {
	if len(results) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO results (id, request_id, test_name, passed, message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, r.ID, r.RequestID, r.TestName, r.Passed, r.Message, r.Duration, r.Timestamp.UnixMilli()); err != nil {
			return fmt.Errorf("failed to insert result %q: %w", r.TestName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit results: %w", err)
	}
	return nil
}

// Results returns the stored results for one request id in insertion order.
func (s *Store) Results(ctx context.Context, requestID string) ([]model.TestResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, test_name, passed, message, duration_ms, created_at
		FROM results WHERE request_id = ? ORDER BY rowid`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	results := make([]model.TestResult, 0)
	for rows.Next() {
		var (
			r         model.TestResult
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.RequestID, &r.TestName, &r.Passed, &r.Message, &r.Duration, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Timestamp = time.UnixMilli(createdAt)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return results, nil
}

// parseConnectionString maps the accepted forms onto a go-sqlite3 DSN.
// Supported formats:
// - sqlite://path/to/history.db
// - sqlite:./history.db
// - ./history.db
// - :memory:
func parseConnectionString(connStr string) (string, error) {
	connStr = strings.TrimSpace(connStr)
	switch {
	case connStr == "":
		return "", fmt.Errorf("empty connection string")
	case strings.HasPrefix(connStr, "sqlite://"):
		connStr = strings.TrimPrefix(connStr, "sqlite://")
	case strings.HasPrefix(connStr, "sqlite:"):
		connStr = strings.TrimPrefix(connStr, "sqlite:")
	case strings.Contains(connStr, "://"):
		scheme, _, _ := strings.Cut(connStr, "://")
		return "", fmt.Errorf("unsupported database scheme: %s", scheme)
	}
	if connStr == "" {
		return "", fmt.Errorf("missing database path")
	}
	return connStr, nil
}
