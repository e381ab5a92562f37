// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned for an unknown or evicted session id.
	ErrNotFound = errors.New("session not found")

	// ErrTurnInProgress is returned when a turn starts while another one
	// for the same session is still running.
	ErrTurnInProgress = errors.New("a turn is already in progress for this session")
)

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Manager owns every live session and evicts idle ones.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	timeout    time.Duration
	maxHistory int
	now        func() time.Time
	logger     *zap.Logger
}

// Config holds configuration for the session manager.
type Config struct {
	// IdleTimeout is how long a session may sit unused before eviction (default: 60 minutes)
	IdleTimeout time.Duration

	// MaxHistory caps the messages kept per session (default: 50)
	MaxHistory int
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		IdleTimeout: 60 * time.Minute,
		MaxHistory:  50,
	}
}

// NewManager creates a new session manager.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	def := DefaultConfig()
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = def.MaxHistory
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions:   make(map[string]*Session),
		timeout:    cfg.IdleTimeout,
		maxHistory: cfg.MaxHistory,
		now:        time.Now,
		logger:     logger,
	}
}

// Create starts a new session. userName may be empty.
func (m *Manager) Create(userName string) *Session {
	now := m.now()
	s := &Session{
		id:           uuid.NewString(),
		userName:     userName,
		created:      now,
		lastActivity: now,
		maxHistory:   m.maxHistory,
		now:          m.now,
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Debug("SESSION_CREATED", zap.String("session", s.id))
	return s
}

// Get returns a live session and records activity on it.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch()
	return s, nil
}

// Delete removes a session. Deleting an unknown id is not an error.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// =============================================================================
// EVICTION
// =============================================================================

// EvictIdle removes sessions idle for at least the timeout. Sessions with a
// turn in progress are kept. Returns the number evicted.
func (m *Manager) EvictIdle() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, s := range m.sessions {
		if s.Busy() || now.Sub(s.LastActivity()) < m.timeout {
			continue
		}
		delete(m.sessions, id)
		evicted++
	}
	if evicted > 0 {
		m.logger.Info("SESSIONS_EVICTED",
			zap.Int("evicted", evicted),
			zap.Int("remaining", len(m.sessions)))
	}
	return evicted
}

// Run evicts idle sessions periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	interval := max(m.timeout/4, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.EvictIdle()
		}
	}
}

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status is a point-in-time view of a session.
type Status struct {
	ID           string        `json:"id"`
	UserName     string        `json:"user_name,omitempty"`
	Created      time.Time     `json:"created"`
	IdleTime     time.Duration `json:"idle_ns"`
	RecordSet    string        `json:"record_dataset,omitempty"`
	TabularSet   string        `json:"tabular_dataset,omitempty"`
	HistoryLen   int           `json:"history_len"`
	TurnInFlight bool          `json:"turn_in_progress"`
}
