// Package store persists warnings and the poll horizon in SQLite.
// Warnings are keyed by upstream event ID, which makes insertion
// idempotent: reprocessing the same events is a no-op.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/crimson-sun/sentinel/internal/model"
)

const horizonCursor = "last_processed_event_id"

// Store wraps the SQLite database holding warnings and cursors.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// A single connection sidesteps SQLITE_BUSY between the poll loop and
	// the HTTP handlers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the necessary tables.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS warnings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			warning_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			root_cause TEXT,
			impact TEXT,
			next_steps TEXT,
			has_been_processed INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cursors (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_warnings_created ON warnings(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertWarnings inserts the batch keyed by event ID and returns only the
// rows actually accepted (event IDs not seen before), with their assigned
// warning IDs. Already-present events are skipped silently.
func (s *Store) UpsertWarnings(ctx context.Context, batch []model.FlaggedEvent) ([]model.Warning, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO warnings (event_id, warning_type, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	accepted := make([]model.Warning, 0, len(batch))
	for _, fe := range batch {
		payload, err := json.Marshal(fe.Event)
		if err != nil {
			return nil, fmt.Errorf("store: marshal event %s: %w", fe.Event.ID, err)
		}
		res, err := stmt.ExecContext(ctx, fe.Event.ID, fe.Category, string(payload), now)
		if err != nil {
			return nil, fmt.Errorf("store: upsert event %s: %w", fe.Event.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue // conflict: already persisted by an earlier cycle
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		accepted = append(accepted, model.Warning{
			ID:        id,
			EventID:   fe.Event.ID,
			Category:  fe.Category,
			Payload:   fe.Event,
			CreatedAt: now,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return accepted, nil
}

// Query returns warnings created after since, newest first. A zero since
// returns everything.
func (s *Store) Query(ctx context.Context, since time.Time) ([]model.Warning, error) {
	query := `
		SELECT id, event_id, warning_type, payload, root_cause, impact, next_steps,
		       has_been_processed, created_at
		FROM warnings
	`
	args := []any{}
	if !since.IsZero() {
		query += " WHERE created_at > ?"
		args = append(args, since.UTC())
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Warning
	for rows.Next() {
		var (
			w         model.Warning
			payload   string
			rootCause sql.NullString
			impact    sql.NullString
			nextSteps sql.NullString
		)
		if err := rows.Scan(&w.ID, &w.EventID, &w.Category, &payload,
			&rootCause, &impact, &nextSteps, &w.Processed, &w.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &w.Payload); err != nil {
			return nil, fmt.Errorf("store: decode payload for warning %d: %w", w.ID, err)
		}
		if rootCause.Valid || impact.Valid || nextSteps.Valid {
			w.Analysis = &model.Analysis{
				RootCause: decodeStrings(rootCause.String),
				Impact:    decodeStrings(impact.String),
				NextSteps: decodeStrings(nextSteps.String),
			}
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// UpdateAnalysis records the enrichment result and marks the warning processed.
func (s *Store) UpdateAnalysis(ctx context.Context, warningID int64, a model.Analysis) error {
	rootCause, err := json.Marshal(a.RootCause)
	if err != nil {
		return err
	}
	impact, err := json.Marshal(a.Impact)
	if err != nil {
		return err
	}
	nextSteps, err := json.Marshal(a.NextSteps)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE warnings
		SET root_cause = ?, impact = ?, next_steps = ?, has_been_processed = 1
		WHERE id = ?
	`, string(rootCause), string(impact), string(nextSteps), warningID)
	return err
}

// Horizon returns the stored horizon event ID, or "" when no cycle has
// completed yet.
func (s *Store) Horizon(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM cursors WHERE name = ?`, horizonCursor).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetHorizon stores the horizon event ID.
func (s *Store) SetHorizon(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`, horizonCursor, id)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
