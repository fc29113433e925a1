// Package backend is the conversational HTTP service the relay talks to:
// a gin API in front of Gemini with sqlite-backed chat history.
package backend

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Message is one stored chat turn.
type Message struct {
	ID        string
	UserID    string
	Role      string // user or assistant
	Content   string
	Timestamp time.Time
}

// HistoryStore persists conversation history per user so the model gets
// context beyond a single message.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore opens (or creates) the history database at path.
func NewHistoryStore(path string) (*HistoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS chats (
		user_id TEXT PRIMARY KEY,
		last_message_time TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		role TEXT,
		content TEXT,
		timestamp TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES chats (user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_user_time ON messages (user_id, timestamp);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

func (s *HistoryStore) ensureChat(userID string, ts time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO chats (user_id, last_message_time) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET last_message_time = excluded.last_message_time`,
		userID, ts)
	return err
}

// SaveMessage appends one turn to a user's conversation.
func (s *HistoryStore) SaveMessage(userID, role, content string) error {
	now := time.Now().UTC()
	if err := s.ensureChat(userID, now); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO messages (id, user_id, role, content, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, role, content, now)
	return err
}

// RecentMessages returns up to limit turns for a user in chronological
// order, oldest first.
func (s *HistoryStore) RecentMessages(userID string, limit int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, role, content, timestamp
		FROM messages
		WHERE user_id = ?
		ORDER BY timestamp DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Flip from newest-first query order to conversation order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *HistoryStore) Close() error {
	return s.db.Close()
}
