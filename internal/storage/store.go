// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/channelchat/internal/llm"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when a turn id does not exist.
	ErrNotFound = errors.New("turn not found")

	// ErrDatabaseError wraps driver failures.
	ErrDatabaseError = errors.New("database error")
)

// MemoryPath opens a private in-memory database.
const MemoryPath = "file::memory:"

// =============================================================================
// TURN RECORD
// =============================================================================

// Status is the lifecycle state of an assistant turn.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// ToolCall is one executed tool call as shown to the user.
type ToolCall struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Args       map[string]any `json:"args,omitempty"`
	Result     map[string]any `json:"result"`
	Failed     bool           `json:"failed,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// Extras is the structured output attached to a turn.
type Extras struct {
	Charts    []map[string]any `json:"charts,omitempty"`
	Cards     []map[string]any `json:"cards,omitempty"`
	ToolCalls []ToolCall       `json:"tool_calls,omitempty"`
	Images    []llm.Image      `json:"images,omitempty"`
	Parts     []llm.Part       `json:"parts,omitempty"`
	Grounding *llm.Grounding   `json:"grounding,omitempty"`
}

// Turn is the assistant record of one user turn.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Mode      string    `json:"mode"`
	Prompt    string    `json:"prompt"`
	Content   string    `json:"content"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Extras
}

// Clone returns a copy whose slices can be read while t keeps changing.
func (t *Turn) Clone() *Turn {
	c := *t
	c.Charts = append([]map[string]any(nil), t.Charts...)
	c.Cards = append([]map[string]any(nil), t.Cards...)
	c.ToolCalls = append([]ToolCall(nil), t.ToolCalls...)
	c.Images = append([]llm.Image(nil), t.Images...)
	c.Parts = append([]llm.Part(nil), t.Parts...)
	return &c
}

// =============================================================================
// TURN STORE
// =============================================================================

// Store persists assistant turns in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the store at path. Use MemoryPath for a
// throwaway database.
func Open(path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, and an in-memory database
	// lives exactly as long as its single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTurn inserts t, assigning an id and timestamps when unset.
func (s *Store) CreateTurn(ctx context.Context, t *Turn) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	extras, err := json.Marshal(t.Extras)
	if err != nil {
		return fmt.Errorf("encode extras: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO turns (id, session_id, mode, prompt, content, status, extras, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SessionID, t.Mode, t.Prompt, t.Content, string(t.Status), string(extras),
		t.CreatedAt.UnixNano(), t.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: insert turn: %v", ErrDatabaseError, err)
	}
	return nil
}

// UpdateTurn overwrites the mutable fields of an existing turn.
func (s *Store) UpdateTurn(ctx context.Context, t *Turn) error {
	t.UpdatedAt = s.now()

	extras, err := json.Marshal(t.Extras)
	if err != nil {
		return fmt.Errorf("encode extras: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE turns SET mode = ?, content = ?, status = ?, extras = ?, updated_at = ?
		WHERE id = ?`,
		t.Mode, t.Content, string(t.Status), string(extras), t.UpdatedAt.UnixNano(), t.ID)
	if err != nil {
		return fmt.Errorf("%w: update turn: %v", ErrDatabaseError, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTurn loads one turn.
func (s *Store) GetTurn(ctx context.Context, id string) (*Turn, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, mode, prompt, content, status, extras, created_at, updated_at
		FROM turns WHERE id = ?`, id)
	t, err := scanTurn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// ListTurns returns a session's turns in creation order.
func (s *Store) ListTurns(ctx context.Context, sessionID string) ([]*Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, mode, prompt, content, status, extras, created_at, updated_at
		FROM turns WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: list turns: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return turns, nil
}

// DeleteSession removes every turn of a session and returns how many.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete turns: %v", ErrDatabaseError, err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTurn(sc scanner) (*Turn, error) {
	var (
		t                Turn
		status, extras   string
		created, updated int64
	)
	if err := sc.Scan(&t.ID, &t.SessionID, &t.Mode, &t.Prompt, &t.Content, &status, &extras, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: scan turn: %v", ErrDatabaseError, err)
	}
	t.Status = Status(status)
	t.CreatedAt = time.Unix(0, created)
	t.UpdatedAt = time.Unix(0, updated)
	if err := json.Unmarshal([]byte(extras), &t.Extras); err != nil {
		return nil, fmt.Errorf("decode extras of %s: %w", t.ID, err)
	}
	return &t, nil
}
