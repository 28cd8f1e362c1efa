// Package audit persists a journal of sessions and the commands they
// issued. The journal is append-only from the server's point of view;
// nothing in the serving path ever reads it back. The replay command
// reads it offline.
package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store is a SQLite-backed audit journal. It implements
// session.Recorder so it can be handed straight to the server.
//
// Thread-safety: the connection pool is capped at one open connection,
// so concurrent sessions serialize their writes inside database/sql.
type Store struct {
	db *sql.DB
}

// SessionRecord is one row of the sessions table.
type SessionRecord struct {
	SessionID  string
	ClientID   string
	StartedAt  time.Time
	DurationMS int64
	Ended      bool
}

// CommandRecord is one row of the commands table.
type CommandRecord struct {
	Seq   int64
	Line  string
	Reply string
}

// Open creates or opens the journal database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SessionOpened inserts the session row. Called once per connection,
// before any command is handled.
func (s *Store) SessionOpened(sessionID string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (session_id, started_at)
		VALUES (?, ?)
		ON CONFLICT(session_id) DO NOTHING
	`, sessionID, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record session open: %w", err)
	}
	return nil
}

// SessionClosed finalizes the session row with the client identity and
// the elapsed conversation time. The client ID may be empty when the
// peer never completed the handshake.
func (s *Store) SessionClosed(sessionID, clientID string, elapsed time.Duration) error {
	_, err := s.db.Exec(`
		UPDATE sessions
		SET client_id = ?, duration_ms = ?, ended_at = ?
		WHERE session_id = ?
	`, clientID, elapsed.Milliseconds(), time.Now().UTC().Format(time.RFC3339Nano), sessionID)
	if err != nil {
		return fmt.Errorf("record session close: %w", err)
	}
	return nil
}

// CommandHandled appends one request/reply pair to the transcript.
// Duplicate (session, seq) pairs are silently ignored.
func (s *Store) CommandHandled(sessionID string, seq int64, line, reply string) error {
	_, err := s.db.Exec(`
		INSERT INTO commands (session_id, seq, line, reply, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`, sessionID, seq, line, reply, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record command: %w", err)
	}
	return nil
}

// Sessions returns every recorded session, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, client_id, started_at, duration_ms, ended_at
		FROM sessions
		ORDER BY started_at, session_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var (
			rec      SessionRecord
			started  string
			duration sql.NullInt64
			ended    sql.NullString
		)
		if err := rows.Scan(&rec.SessionID, &rec.ClientID, &started, &duration, &ended); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.StartedAt, err = time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("parse session start time: %w", err)
		}
		rec.DurationMS = duration.Int64
		rec.Ended = ended.Valid
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// Transcript returns the recorded command/reply pairs for one session
// in the order they were handled.
func (s *Store) Transcript(ctx context.Context, sessionID string) ([]CommandRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, line, reply
		FROM commands
		WHERE session_id = ?
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	defer rows.Close()

	var out []CommandRecord
	for rows.Next() {
		var rec CommandRecord
		if err := rows.Scan(&rec.Seq, &rec.Line, &rec.Reply); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	return out, nil
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
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}
