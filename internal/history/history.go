// Package history persists a rolling record of event triggers so operators
// can ask the daemon what fired and when after the fact.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"emp/internal/config"
)

// Entry is one recorded event trigger.
type Entry struct {
	ID        int64
	EventID   string
	EventName string
	Producer  string
	Alerts    int
	FiredAt   time.Time
}

// Store records event triggers in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database and applies
// migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.HistoryPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append records a trigger of the given event and how many alerts it
// reached.
func (s *Store) Append(ctx context.Context, eventID, eventName, producer string, alerts int) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO event_history (event_id, event_name, producer, alerts, fired_at)
         VALUES (?, ?, ?, ?, ?)`,
		eventID,
		eventName,
		producer,
		alerts,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, event_id, event_name, producer, alerts, fired_at
         FROM event_history ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			firedRaw string
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.EventName, &e.Producer, &e.Alerts, &firedRaw); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, firedRaw); err == nil {
			e.FiredAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByEvent returns trigger counts grouped by event id.
func (s *Store) CountByEvent(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event_id, COUNT(1) FROM event_history GROUP BY event_id`)
	if err != nil {
		return nil, fmt.Errorf("history counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			id    string
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

// Prune trims the table down to the newest keep entries.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM event_history
         WHERE id NOT IN (SELECT id FROM event_history ORDER BY id DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}
