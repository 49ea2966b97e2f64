package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"periscope/internal/config"
)

// EventKind labels one session event.
type EventKind string

const (
	EventConnected     EventKind = "connected"
	EventRegistered    EventKind = "registered"
	EventRejected      EventKind = "rejected"
	EventClaimGranted  EventKind = "claim_granted"
	EventClaimRejected EventKind = "claim_rejected"
	EventReleased      EventKind = "released"
	EventDisconnected  EventKind = "disconnected"
)

// Event is one recorded session event.
type Event struct {
	ID       int64
	At       time.Time
	PeerID   string
	PeerName string
	Role     string
	Kind     EventKind
	Detail   string
}

// Store manages journal persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database and applies the
// schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.JournalPath()
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
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the backing database path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) applySchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS session_events (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    at        TEXT NOT NULL,
    peer_id   TEXT NOT NULL,
    peer_name TEXT NOT NULL DEFAULT '',
    role      TEXT NOT NULL DEFAULT '',
    kind      TEXT NOT NULL,
    detail    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_session_events_at ON session_events(at);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply journal schema: %w", err)
	}
	return nil
}

// Record appends one event. A zero At is stamped with the current time.
func (s *Store) Record(ctx context.Context, event Event) error {
	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_events (at, peer_id, peer_name, role, kind, detail)
         VALUES (?, ?, ?, ?, ?, ?)`,
		at.UTC().Format(time.RFC3339Nano),
		event.PeerID,
		event.PeerName,
		event.Role,
		string(event.Kind),
		event.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}
	return nil
}

// Recent returns the newest events, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, peer_id, peer_name, role, kind, detail
         FROM session_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var at, kind string
		if err := rows.Scan(&event.ID, &at, &event.PeerID, &event.PeerName, &event.Role, &kind, &event.Detail); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		event.Kind = EventKind(kind)
		if parsed, parseErr := time.Parse(time.RFC3339Nano, at); parseErr == nil {
			event.At = parsed
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Prune deletes events older than the cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM session_events WHERE at < ?`,
		olderThan.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune session events: %w", err)
	}
	return res.RowsAffected()
}
