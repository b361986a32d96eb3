// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package journal keeps a SQLite history of stream status transitions.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/remoto/internal/metrics"
	"github.com/ManuGH/remoto/internal/persistence/sqlite"
	"github.com/ManuGH/remoto/internal/stream"
)

const schemaVersion = 1

// MaxRecent caps Recent.
const MaxRecent = 1000

// Entry is one recorded transition.
type Entry struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"sessionId"`
	URL        string    `json:"url"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Reason     string    `json:"reason"`
	Message    string    `json:"message,omitempty"`
	RetryCount int       `json:"retryCount"`
	At         time.Time `json:"at"`
}

// Store is the SQLite-backed journal.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the journal at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &Store{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		url TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		reason TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transitions_at ON transitions(at_ms);
	CREATE INDEX IF NOT EXISTS idx_transitions_session ON transitions(session_id);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Record appends one transition.
func (s *Store) Record(ctx context.Context, t stream.Transition) error {
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO transitions (session_id, url, from_status, to_status, reason, message, retry_count, at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Snapshot.SessionID, t.Snapshot.URL, string(t.From), string(t.To), t.Reason,
		t.Snapshot.ErrorMessage, t.Snapshot.RetryCount, t.At.UnixMilli(),
	)
	metrics.IncJournalWrite(err == nil)
	if err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, errors.New("journal: limit must be positive")
	}
	if limit > MaxRecent {
		limit = MaxRecent
	}

	rows, err := s.DB.QueryContext(ctx, `
	SELECT id, session_id, url, from_status, to_status, reason, message, retry_count, at_ms
	FROM transitions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			atMS int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.URL, &e.From, &e.To, &e.Reason, &e.Message, &e.RetryCount, &atMS); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.At = time.UnixMilli(atMS).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes entries recorded before olderThan and returns how many went.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, "DELETE FROM transitions WHERE at_ms < ?", olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("journal: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	metrics.AddJournalPruned(n)
	return n, nil
}

// Check runs a quick integrity check. The daemon registers it as a health probe.
func (s *Store) Check(ctx context.Context) error {
	issues, err := sqlite.VerifyIntegrity(ctx, s.DB, "quick")
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("journal: integrity check failed: %v", issues)
	}
	return nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}
