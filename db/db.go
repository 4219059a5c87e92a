// Package db records sandbox sessions to SQLite: session metadata, sampled
// grid snapshots as compressed blobs, and the command log. The schema is
// managed by embedded migrations.
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gritlab/sandtable/internal/terrain"
)

type DB struct {
	*sql.DB
}

// OpenDB opens the SQLite database at path without touching the schema.
// Call MigrateUp before using the recording methods.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// modernc sqlite serializes access per connection; a single connection
	// with a busy timeout avoids SQLITE_BUSY under concurrent recorders.
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec(`PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON;`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	return &DB{sqlDB}, nil
}

// NewDB opens the database and applies all pending migrations. This is the
// entry point the server uses.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Session is one recorded run of the sandbox.
type Session struct {
	ID         string     `json:"id"`
	GridWidth  int        `json:"grid_width"`
	GridHeight int        `json:"grid_height"`
	TickRate   int        `json:"tick_rate"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// BeginSession inserts a new session row and returns it.
func (db *DB) BeginSession(gridWidth, gridHeight, tickRate int) (*Session, error) {
	s := &Session{
		ID:         uuid.NewString(),
		GridWidth:  gridWidth,
		GridHeight: gridHeight,
		TickRate:   tickRate,
		StartedAt:  time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, grid_width, grid_height, tick_rate, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.GridWidth, s.GridHeight, s.TickRate, s.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return s, nil
}

// EndSession stamps the session's end time.
func (db *DB) EndSession(sessionID string) error {
	res, err := db.Exec(
		`UPDATE sessions SET ended_at = ? WHERE session_id = ?`,
		time.Now().UTC(), sessionID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no session with id %s", sessionID)
	}
	return nil
}

// Sessions returns recorded sessions, newest first.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query(
		`SELECT session_id, grid_width, grid_height, tick_rate, started_at, ended_at
		 FROM sessions ORDER BY started_at DESC LIMIT 100`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.GridWidth, &s.GridHeight, &s.TickRate, &s.StartedAt, &s.EndedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// RecordSnapshot stores one sampled grid snapshot for the session.
func (db *DB) RecordSnapshot(sessionID string, snap *terrain.Snapshot) error {
	blob, err := encodeSnapshotBlob(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	_, err = db.Exec(
		`INSERT INTO snapshots (session_id, tick, blob) VALUES (?, ?, ?)`,
		sessionID, int64(snap.Tick), blob,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot fetches the snapshot recorded at the exact tick.
func (db *DB) LoadSnapshot(sessionID string, tick uint64) (*terrain.Snapshot, error) {
	var blob []byte
	err := db.QueryRow(
		`SELECT blob FROM snapshots WHERE session_id = ? AND tick = ?`,
		sessionID, int64(tick),
	).Scan(&blob)
	if err != nil {
		return nil, err
	}
	return decodeSnapshotBlob(blob)
}

// LoadLatestSnapshot fetches the most recent snapshot of the session.
func (db *DB) LoadLatestSnapshot(sessionID string) (*terrain.Snapshot, error) {
	var blob []byte
	err := db.QueryRow(
		`SELECT blob FROM snapshots WHERE session_id = ? ORDER BY tick DESC LIMIT 1`,
		sessionID,
	).Scan(&blob)
	if err != nil {
		return nil, err
	}
	return decodeSnapshotBlob(blob)
}

// SnapshotTicks lists the ticks with a recorded snapshot, ascending.
func (db *DB) SnapshotTicks(sessionID string) ([]uint64, error) {
	rows, err := db.Query(
		`SELECT tick FROM snapshots WHERE session_id = ? ORDER BY tick ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []uint64
	for rows.Next() {
		var tick int64
		if err := rows.Scan(&tick); err != nil {
			return nil, err
		}
		ticks = append(ticks, uint64(tick))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ticks, nil
}

// LoggedCommand is one command recorded for a session.
type LoggedCommand struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordCommand appends one command to the session's log. The payload is
// the wire-format JSON so a session can be replayed later.
func (db *DB) RecordCommand(sessionID, commandType string, payload []byte) error {
	_, err := db.Exec(
		`INSERT INTO command_log (session_id, command_type, payload) VALUES (?, ?, ?)`,
		sessionID, commandType, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert command: %w", err)
	}
	return nil
}

// Commands returns the session's command log in insertion order.
func (db *DB) Commands(sessionID string) ([]LoggedCommand, error) {
	rows, err := db.Query(
		`SELECT command_id, session_id, command_type, payload, timestamp
		 FROM command_log WHERE session_id = ? ORDER BY command_id ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []LoggedCommand
	for rows.Next() {
		var c LoggedCommand
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Type, &c.Payload, &c.Timestamp); err != nil {
			return nil, err
		}
		cmds = append(cmds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cmds, nil
}
