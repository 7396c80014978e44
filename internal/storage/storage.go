// Package storage persists sessions, messages and settings in SQLite so a
// restart picks up where the operator left off.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/zhouzirui/roundtable/backend/internal/model/chat"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	is_group     INTEGER NOT NULL,
	participants TEXT NOT NULL,
	created_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL,
	session_id TEXT NOT NULL,
	sender_id  TEXT NOT NULL,
	content    TEXT NOT NULL,
	is_system  INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store wraps the SQLite handle. Message rows carry a monotonically growing
// seq column, so load order always equals append order.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and parent directory) if needed and
// applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc.org/sqlite serializes at the connection level; a single
	// connection avoids SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession inserts a newly created session.
func (s *Store) SaveSession(ctx context.Context, session chat.Session) error {
	participants, err := json.Marshal(session.ParticipantIDs)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, name, is_group, participants, created_at) VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.Name, boolToInt(session.IsGroup), string(participants),
		session.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// DeleteSession removes a session and its messages.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// SaveMessage appends one message row.
func (s *Store) SaveMessage(ctx context.Context, message chat.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, sender_id, content, is_system, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		message.ID, message.SessionID, message.SenderID, message.Content,
		boolToInt(message.IsSystem), message.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// LoadSessions returns every persisted session with its full transcript in
// append order.
func (s *Store) LoadSessions(ctx context.Context) ([]chat.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, is_group, participants, created_at FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*chat.Session)
	var order []string
	for rows.Next() {
		var (
			sess         chat.Session
			isGroup      int
			participants string
			createdAt    string
		)
		if err := rows.Scan(&sess.ID, &sess.Name, &isGroup, &participants, &createdAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.IsGroup = isGroup != 0
		if err := json.Unmarshal([]byte(participants), &sess.ParticipantIDs); err != nil {
			return nil, fmt.Errorf("decode participants for %s: %w", sess.ID, err)
		}
		if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("decode created_at for %s: %w", sess.ID, err)
		}
		sess.LastMessageAt = sess.CreatedAt
		byID[sess.ID] = &sess
		order = append(order, sess.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	if err := s.loadMessages(ctx, byID); err != nil {
		return nil, err
	}

	out := make([]chat.Session, 0, len(order))
	for _, id := range order {
		sess := byID[id]
		if n := len(sess.Messages); n > 0 {
			sess.LastMessageAt = sess.Messages[n-1].CreatedAt
		}
		out = append(out, *sess)
	}
	return out, nil
}

func (s *Store) loadMessages(ctx context.Context, byID map[string]*chat.Session) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, sender_id, content, is_system, created_at FROM messages ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg       chat.Message
			isSystem  int
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.SenderID, &msg.Content, &isSystem, &createdAt); err != nil {
			return fmt.Errorf("scan message: %w", err)
		}
		msg.IsSystem = isSystem != 0
		if msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return fmt.Errorf("decode created_at for message %s: %w", msg.ID, err)
		}
		// Rows for sessions deleted mid-write would be orphans; skip them.
		if sess, ok := byID[msg.SessionID]; ok {
			sess.Messages = append(sess.Messages, msg)
		}
	}
	return rows.Err()
}

// SetSetting upserts one settings key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}

// GetSetting reads one settings key; the second return reports presence.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, true, nil
}

// ResetAll irreversibly wipes every persisted table. Confirmation is the
// caller's responsibility.
func (s *Store) ResetAll(ctx context.Context) error {
	for _, table := range []string{"messages", "sessions", "settings"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
