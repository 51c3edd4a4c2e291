// Package sqlite provides a durable EventStore backed by a local SQLite
// database. Writes are transactional per event and concurrency is controlled
// with a version column compare-and-swap, so multiple processes sharing the
// same database file observe the optimistic-versioning contract of core.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hupe1980/agentcal/core"
	_ "github.com/mattn/go-sqlite3"
)

// Store is a SQLite backed core.EventStore.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (creating if necessary) the database at path and runs the schema
// migration.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// WithClock injects a time source for tests and returns the store.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			event_id         TEXT PRIMARY KEY,
			owner_id         TEXT NOT NULL,
			counterparty_id  TEXT NOT NULL,
			start_time       TEXT NOT NULL,
			duration_seconds INTEGER NOT NULL,
			status           TEXT NOT NULL,
			origin           TEXT NOT NULL,
			title            TEXT NOT NULL DEFAULT '',
			note             TEXT NOT NULL DEFAULT '',
			idempotency_key  TEXT NOT NULL DEFAULT '',
			version          INTEGER NOT NULL,
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_owner_status ON events(owner_id, status);
		CREATE INDEX IF NOT EXISTS idx_events_owner_start ON events(owner_id, start_time);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_events_idempotency
			ON events(owner_id, idempotency_key) WHERE idempotency_key != '';

		CREATE TABLE IF NOT EXISTS preferences (
			owner_id             TEXT PRIMARY KEY,
			working_hours_json   TEXT NOT NULL,
			min_buffer_seconds   INTEGER NOT NULL,
			auto_accept_json     TEXT NOT NULL,
			blocked_json         TEXT NOT NULL,
			max_meetings_per_day INTEGER NOT NULL,
			updated_at           TEXT NOT NULL
		);
	`)
	return err
}

// PutEvent inserts (version 0) or compare-and-swaps (version n) an event
// inside a transaction, returning the stored copy with version bumped and
// timestamps maintained.
func (s *Store) PutEvent(ctx context.Context, event *core.Event) (*core.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, core.NewStoreUnavailable(err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	stored := event.Clone()
	stored.UpdatedAt = now

	if event.Version == 0 {
		stored.Version = 1
		stored.CreatedAt = now
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (event_id, owner_id, counterparty_id, start_time, duration_seconds,
				status, origin, title, note, idempotency_key, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			stored.ID, stored.Owner, stored.Counterparty, formatTime(stored.Start),
			int64(stored.Duration/time.Second), string(stored.Status), string(stored.Origin),
			stored.Title, stored.Note, stored.IdempotencyKey, stored.Version,
			formatTime(stored.CreatedAt), formatTime(stored.UpdatedAt))
		if err != nil {
			if isConstraintViolation(err) {
				if current, verr := s.currentVersion(ctx, tx, stored.ID); verr == nil {
					return nil, core.NewVersionConflict(current)
				}
				// A duplicate owner+idempotency-key insert hits the unique
				// partial index; report the existing row's version.
				if stored.IdempotencyKey != "" {
					var current int64
					verr := tx.QueryRowContext(ctx,
						`SELECT version FROM events WHERE owner_id = ? AND idempotency_key = ?`,
						stored.Owner, stored.IdempotencyKey).Scan(&current)
					if verr == nil {
						return nil, core.NewVersionConflict(current)
					}
				}
			}
			return nil, core.NewStoreUnavailable(err)
		}
	} else {
		stored.Version = event.Version + 1
		res, err := tx.ExecContext(ctx, `
			UPDATE events SET counterparty_id = ?, start_time = ?, duration_seconds = ?,
				status = ?, origin = ?, title = ?, note = ?, version = ?, updated_at = ?
			WHERE event_id = ? AND version = ?`,
			stored.Counterparty, formatTime(stored.Start), int64(stored.Duration/time.Second),
			string(stored.Status), string(stored.Origin), stored.Title, stored.Note,
			stored.Version, formatTime(stored.UpdatedAt), stored.ID, event.Version)
		if err != nil {
			return nil, core.NewStoreUnavailable(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, core.NewStoreUnavailable(err)
		}
		if affected == 0 {
			current, verr := s.currentVersion(ctx, tx, stored.ID)
			if verr != nil {
				return nil, core.ErrEventNotFound
			}
			return nil, core.NewVersionConflict(current)
		}
		var createdAt string
		if err := tx.QueryRowContext(ctx,
			`SELECT created_at FROM events WHERE event_id = ?`, stored.ID).Scan(&createdAt); err == nil {
			stored.CreatedAt, _ = parseTime(createdAt)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, core.NewStoreUnavailable(err)
	}
	return stored, nil
}

func (s *Store) currentVersion(ctx context.Context, tx *sql.Tx, id string) (int64, error) {
	var version int64
	err := tx.QueryRowContext(ctx, `SELECT version FROM events WHERE event_id = ?`, id).Scan(&version)
	return version, err
}

// GetEvent returns the event with the given id.
func (s *Store) GetEvent(ctx context.Context, id string) (*core.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_id, owner_id, counterparty_id, start_time, duration_seconds,
			status, origin, title, note, idempotency_key, version, created_at, updated_at
		FROM events WHERE event_id = ?`, id)
	return scanEvent(row)
}

// ListEvents returns the owner's events matching the filter as a single
// snapshot read, ordered by start time.
func (s *Store) ListEvents(ctx context.Context, owner string, filter core.EventFilter) ([]*core.Event, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT event_id, owner_id, counterparty_id, start_time, duration_seconds,
			status, origin, title, note, idempotency_key, version, created_at, updated_at
		FROM events WHERE owner_id = ?`)
	args := []any{owner}

	if len(filter.Status) > 0 {
		query.WriteString(` AND status IN (?` + strings.Repeat(", ?", len(filter.Status)-1) + `)`)
		for _, status := range filter.Status {
			args = append(args, string(status))
		}
	}
	if filter.Counterparty != "" {
		query.WriteString(` AND counterparty_id = ?`)
		args = append(args, filter.Counterparty)
	}
	query.WriteString(` ORDER BY start_time`)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, core.NewStoreUnavailable(err)
	}
	defer rows.Close()

	var events []*core.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		// Time-window narrowing happens here; pushing interval overlap into
		// SQL over text timestamps is not worth the obscurity.
		if filter.Matches(event) {
			events = append(events, event)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStoreUnavailable(err)
	}
	return events, nil
}

// FindByIdempotencyKey returns the event previously created with the given
// caller-supplied token.
func (s *Store) FindByIdempotencyKey(ctx context.Context, owner, key string) (*core.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_id, owner_id, counterparty_id, start_time, duration_seconds,
			status, origin, title, note, idempotency_key, version, created_at, updated_at
		FROM events WHERE owner_id = ? AND idempotency_key = ?`, owner, key)
	return scanEvent(row)
}

// GetPreferences returns the owner's preferences, creating and persisting
// defaults on first use.
func (s *Store) GetPreferences(ctx context.Context, owner string) (*core.BookingPreferences, error) {
	var (
		workingHours string
		bufferSecs   int64
		autoAccept   string
		blocked      string
		maxPerDay    int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT working_hours_json, min_buffer_seconds, auto_accept_json, blocked_json, max_meetings_per_day
		FROM preferences WHERE owner_id = ?`, owner).
		Scan(&workingHours, &bufferSecs, &autoAccept, &blocked, &maxPerDay)
	if errors.Is(err, sql.ErrNoRows) {
		prefs := core.DefaultPreferences()
		if err := s.PutPreferences(ctx, owner, prefs); err != nil {
			return nil, err
		}
		return prefs, nil
	}
	if err != nil {
		return nil, core.NewStoreUnavailable(err)
	}

	prefs := &core.BookingPreferences{
		MinBuffer:         time.Duration(bufferSecs) * time.Second,
		MaxMeetingsPerDay: maxPerDay,
	}
	if err := json.Unmarshal([]byte(workingHours), &prefs.WorkingHours); err != nil {
		return nil, core.NewStoreUnavailable(fmt.Errorf("corrupt working hours for %s: %w", owner, err))
	}
	if err := json.Unmarshal([]byte(autoAccept), &prefs.AutoAccept); err != nil {
		return nil, core.NewStoreUnavailable(fmt.Errorf("corrupt auto-accept rule for %s: %w", owner, err))
	}
	if blocked != "" {
		if err := json.Unmarshal([]byte(blocked), &prefs.BlockedCounterparties); err != nil {
			return nil, core.NewStoreUnavailable(fmt.Errorf("corrupt blocked list for %s: %w", owner, err))
		}
	}
	return prefs, nil
}

// PutPreferences upserts the owner's preferences row.
func (s *Store) PutPreferences(ctx context.Context, owner string, prefs *core.BookingPreferences) error {
	workingHours, err := json.Marshal(prefs.WorkingHours)
	if err != nil {
		return core.NewStoreUnavailable(err)
	}
	autoAccept, err := json.Marshal(prefs.AutoAccept)
	if err != nil {
		return core.NewStoreUnavailable(err)
	}
	blocked, err := json.Marshal(prefs.BlockedCounterparties)
	if err != nil {
		return core.NewStoreUnavailable(err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO preferences (owner_id, working_hours_json, min_buffer_seconds, auto_accept_json,
			blocked_json, max_meetings_per_day, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			working_hours_json = excluded.working_hours_json,
			min_buffer_seconds = excluded.min_buffer_seconds,
			auto_accept_json = excluded.auto_accept_json,
			blocked_json = excluded.blocked_json,
			max_meetings_per_day = excluded.max_meetings_per_day,
			updated_at = excluded.updated_at`,
		owner, string(workingHours), int64(prefs.MinBuffer/time.Second), string(autoAccept),
		string(blocked), prefs.MaxMeetingsPerDay, formatTime(s.now().UTC()))
	if err != nil {
		return core.NewStoreUnavailable(err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*core.Event, error) {
	var (
		event                       core.Event
		start, createdAt, updatedAt string
		durationSecs                int64
		status, origin              string
	)
	err := row.Scan(&event.ID, &event.Owner, &event.Counterparty, &start, &durationSecs,
		&status, &origin, &event.Title, &event.Note, &event.IdempotencyKey,
		&event.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrEventNotFound
	}
	if err != nil {
		return nil, core.NewStoreUnavailable(err)
	}
	event.Duration = time.Duration(durationSecs) * time.Second
	event.Status = core.EventStatus(status)
	event.Origin = core.Origin(origin)
	if event.Start, err = parseTime(start); err != nil {
		return nil, core.NewStoreUnavailable(err)
	}
	if event.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, core.NewStoreUnavailable(err)
	}
	if event.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, core.NewStoreUnavailable(err)
	}
	return &event, nil
}

// formatTime stores instants as RFC3339 UTC text. Callers re-sort in memory,
// so lexicographic order in SQL only needs to be approximately chronological.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func isConstraintViolation(err error) bool {
	// The sqlite3 driver exposes typed errors, but matching on the message
	// avoids linking driver internals into error handling.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
