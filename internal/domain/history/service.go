// Package history persists chat and debate transcripts in SQLite: sessions
// and their ordered messages. Sessions list pinned-first, then most recently
// touched; deleting a session cascades to its messages at the schema level.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no session has the requested id.
var ErrNotFound = errors.New("history: session not found")

// Session is one conversation, with messages loaded on demand.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ProviderID   string    `json:"provider_id,omitempty"`
	Model        string    `json:"model,omitempty"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Pinned       bool      `json:"is_pinned"`
	CreatedAt    int64     `json:"created_at"`
	UpdatedAt    int64     `json:"updated_at"`
	Messages     []Message `json:"messages,omitempty"`
}

// Message is one stored turn. ParticipantName and Color are set for debate
// transcripts and empty for plain chats.
type Message struct {
	ID              string `json:"id"`
	Role            string `json:"role"`
	Content         string `json:"content"`
	Thinking        string `json:"thinking,omitempty"`
	ParticipantName string `json:"participant_name,omitempty"`
	Color           string `json:"color,omitempty"`
	CreatedAt       int64  `json:"created_at"`
}

// SessionUpdate is a partial session update; nil fields stay untouched.
type SessionUpdate struct {
	Title        *string `json:"title"`
	Model        *string `json:"model"`
	SystemPrompt *string `json:"system_prompt"`
}

// Store reads and writes sessions through a migrated SQLite handle.
type Store struct {
	db  *sql.DB
	now func() int64
}

// NewStore wraps an already-migrated database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() int64 { return time.Now().Unix() }}
}

// ListSessions returns session summaries (no messages), pinned first, then
// most recently updated.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, provider_id, model, system_prompt, is_pinned, created_at, updated_at
		FROM chat_sessions
		ORDER BY is_pinned DESC, updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("history: list sessions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		var pinned int
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.ProviderID, &sess.Model,
			&sess.SystemPrompt, &pinned, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("history: scan session: %w", err)
		}
		sess.Pinned = pinned != 0
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// CreateSession starts a new session. Empty titles default to "New Chat".
func (s *Store) CreateSession(ctx context.Context, providerID, model, title string) (Session, error) {
	if title == "" {
		title = "New Chat"
	}
	sess := Session{
		ID: uuid.NewString(), Title: title, ProviderID: providerID, Model: model,
		CreatedAt: s.now(), UpdatedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, title, provider_id, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.Title, sess.ProviderID, sess.Model, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("history: create session: %w", err)
	}
	return sess, nil
}

// GetSession loads one session with its messages in chronological order.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	var pinned int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, provider_id, model, system_prompt, is_pinned, created_at, updated_at
		FROM chat_sessions WHERE id = ?
	`, id).Scan(&sess.ID, &sess.Title, &sess.ProviderID, &sess.Model,
		&sess.SystemPrompt, &pinned, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("history: get session: %w", err)
	}
	sess.Pinned = pinned != 0

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, thinking, participant_name, color, created_at
		FROM chat_messages WHERE session_id = ? ORDER BY created_at, id
	`, id)
	if err != nil {
		return Session{}, fmt.Errorf("history: load messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.Thinking,
			&m.ParticipantName, &m.Color, &m.CreatedAt); err != nil {
			return Session{}, fmt.Errorf("history: scan message: %w", err)
		}
		sess.Messages = append(sess.Messages, m)
	}
	return sess, rows.Err()
}

// AddMessage appends a message and touches the session's updated_at.
func (s *Store) AddMessage(ctx context.Context, sessionID string, m Message) (Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = s.now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, thinking, participant_name, color, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, sessionID, m.Role, m.Content, m.Thinking, m.ParticipantName, m.Color, m.CreatedAt); err != nil {
		return Message{}, fmt.Errorf("history: insert message: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, s.now(), sessionID)
	if err != nil {
		return Message{}, fmt.Errorf("history: touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Message{}, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("history: commit: %w", err)
	}
	return m, nil
}

// UpdateSession applies a partial update and touches updated_at.
func (s *Store) UpdateSession(ctx context.Context, id string, upd SessionUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{s.now()}
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Model != nil {
		sets = append(sets, "model = ?")
		args = append(args, *upd.Model)
	}
	if upd.SystemPrompt != nil {
		sets = append(sets, "system_prompt = ?")
		args = append(args, *upd.SystemPrompt)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE chat_sessions SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("history: update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TogglePin flips the pinned flag and returns the new state. It deliberately
// does not touch updated_at, so unpinning does not jump the session to the
// top of the recency order.
func (s *Store) TogglePin(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET is_pinned = 1 - is_pinned WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("history: toggle pin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, ErrNotFound
	}
	var pinned int
	if err := s.db.QueryRowContext(ctx,
		`SELECT is_pinned FROM chat_sessions WHERE id = ?`, id).Scan(&pinned); err != nil {
		return false, fmt.Errorf("history: read pin: %w", err)
	}
	return pinned != 0, nil
}

// DeleteSession removes a session; messages go with it via cascade.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("history: delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSessions removes a batch of sessions and reports how many existed.
func (s *Store) DeleteSessions(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM chat_sessions WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("history: delete sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteAll wipes the entire history and reports how many sessions went.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions`)
	if err != nil {
		return 0, fmt.Errorf("history: delete all: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
