package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentloom/agentloom/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id       TEXT PRIMARY KEY,
	state    TEXT NOT NULL DEFAULT '{}',
	metadata TEXT NOT NULL DEFAULT '{}',
	created  TIMESTAMP NOT NULL,
	updated  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created    TIMESTAMP NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(id)
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, seq);
`

// SQLiteStore is a durable SessionStore backed by a SQLite database. Events
// are stored as JSON rows in append order, so the log-driven resolution
// machinery sees exactly the same history across process restarts.
//
// A single writer lock serializes mutations; reads run concurrently.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// modernc.org/sqlite serializes writes internally but a single
	// connection avoids SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Create inserts a fresh session row, replacing any existing one.
func (s *SQLiteStore) Create(sessionID string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM events WHERE session_id = ?`, sessionID); err != nil {
		return nil, fmt.Errorf("create session %s: %w", sessionID, err)
	}
	_, err = tx.Exec(
		`INSERT OR REPLACE INTO sessions (id, state, metadata, created, updated) VALUES (?, '{}', '{}', ?, ?)`,
		sessionID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create session %s: %w", sessionID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	sess := core.NewSession(sessionID)
	return sess, nil
}

// Get loads a session with its full event history, creating it lazily when
// it does not exist yet.
func (s *SQLiteStore) Get(sessionID string) (*core.Session, error) {
	var (
		stateJSON, metaJSON string
		created, updated    time.Time
	)
	err := s.db.QueryRow(
		`SELECT state, metadata, created, updated FROM sessions WHERE id = ?`, sessionID,
	).Scan(&stateJSON, &metaJSON, &created, &updated)
	if err == sql.ErrNoRows {
		return s.Create(sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	sess := core.NewSession(sessionID)
	sess.Created = created
	sess.Updated = updated
	if err := json.Unmarshal([]byte(stateJSON), &sess.State); err != nil {
		return nil, fmt.Errorf("decode session state %s: %w", sessionID, err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &sess.Metadata); err != nil {
		return nil, fmt.Errorf("decode session metadata %s: %w", sessionID, err)
	}

	rows, err := s.db.Query(
		`SELECT payload FROM events WHERE session_id = ? ORDER BY seq ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load events %s: %w", sessionID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev core.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event in session %s: %w", sessionID, err)
		}
		sess.AddEvent(ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sess, nil
}

// AppendEvent serializes the event as JSON and appends it to the session's
// log row set.
func (s *SQLiteStore) AppendEvent(sessionID string, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureSessionLocked(sessionID); err != nil {
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	now := time.Now().UTC()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(
		`INSERT INTO events (session_id, payload, created) VALUES (?, ?, ?)`,
		sessionID, string(payload), now,
	); err != nil {
		return fmt.Errorf("append event to %s: %w", sessionID, err)
	}
	if _, err := tx.Exec(`UPDATE sessions SET updated = ? WHERE id = ?`, now, sessionID); err != nil {
		return fmt.Errorf("touch session %s: %w", sessionID, err)
	}
	return tx.Commit()
}

// ApplyDelta merges a key/value delta into the persisted session state.
func (s *SQLiteStore) ApplyDelta(sessionID string, delta map[string]any) error {
	if len(delta) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureSessionLocked(sessionID); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var stateJSON string
	if err := tx.QueryRow(`SELECT state FROM sessions WHERE id = ?`, sessionID).Scan(&stateJSON); err != nil {
		return fmt.Errorf("load state %s: %w", sessionID, err)
	}
	state := map[string]any{}
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return fmt.Errorf("decode state %s: %w", sessionID, err)
	}
	for k, v := range delta {
		state[k] = v
	}
	merged, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", sessionID, err)
	}
	if _, err := tx.Exec(
		`UPDATE sessions SET state = ?, updated = ? WHERE id = ?`,
		string(merged), time.Now().UTC(), sessionID,
	); err != nil {
		return fmt.Errorf("store state %s: %w", sessionID, err)
	}
	return tx.Commit()
}

// ensureSessionLocked creates the session row when missing; caller must hold
// the writer lock.
func (s *SQLiteStore) ensureSessionLocked(sessionID string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, state, metadata, created, updated) VALUES (?, '{}', '{}', ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		sessionID, now, now,
	)
	return err
}
