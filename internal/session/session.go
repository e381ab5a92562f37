// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/channelchat/internal/dataset"
	"github.com/jeranaias/channelchat/internal/llm"
)

// Session is the per-conversation context: the attached datasets, the
// pending image attachments and the conversation history. Datasets are
// replaced wholesale on upload, never mutated.
type Session struct {
	id         string
	userName   string
	created    time.Time
	maxHistory int
	now        func() time.Time

	mu           sync.Mutex
	lastActivity time.Time
	records      *dataset.Dataset
	tabular      *dataset.Dataset
	recordsFresh bool
	tabularFresh bool
	images       []llm.Image
	history      []llm.Message

	busy atomic.Bool
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// UserName returns the display name given at creation, if any.
func (s *Session) UserName() string { return s.userName }

// LastActivity returns when the session was last used.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Busy reports whether a turn is in progress.
func (s *Session) Busy() bool { return s.busy.Load() }

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = s.now()
	s.mu.Unlock()
}

// Attach stores ds in the slot for its kind, replacing any earlier dataset
// of that kind, and marks it fresh for the next turn.
func (s *Session) Attach(ds *dataset.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.now()

	switch ds.Kind() {
	case dataset.KindRecords:
		s.records = ds
		s.recordsFresh = true
	case dataset.KindTabular:
		s.tabular = ds
		s.tabularFresh = true
	}
}

// AttachImage queues an image for the next turn.
func (s *Session) AttachImage(img llm.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.now()
	s.images = append(s.images, img)
}

// History returns a copy of the conversation so far.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.history...)
}

// Status returns a snapshot for display.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		ID:           s.id,
		UserName:     s.userName,
		Created:      s.created,
		IdleTime:     s.now().Sub(s.lastActivity),
		HistoryLen:   len(s.history),
		TurnInFlight: s.busy.Load(),
	}
	if s.records != nil {
		st.RecordSet = s.records.Name()
	}
	if s.tabular != nil {
		st.TabularSet = s.tabular.Name()
	}
	return st
}

// =============================================================================
// TURNS
// =============================================================================

// Turn is the session state captured when a turn begins. At most one Turn
// per session is open at a time.
type Turn struct {
	session *Session
	done    atomic.Bool

	UserName     string
	Records      *dataset.Dataset
	Tabular      *dataset.Dataset
	RecordsFresh bool
	TabularFresh bool
	Images       []llm.Image
	History      []llm.Message
}

// BeginTurn locks the session for one turn and snapshots its context.
// Pending images move to the turn; Abort returns them.
func (s *Session) BeginTurn() (*Turn, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrTurnInProgress
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.now()

	t := &Turn{
		session:      s,
		UserName:     s.userName,
		Records:      s.records,
		Tabular:      s.tabular,
		RecordsFresh: s.recordsFresh,
		TabularFresh: s.tabularFresh,
		Images:       s.images,
		History:      append([]llm.Message(nil), s.history...),
	}
	s.images = nil
	return t, nil
}

// Finish appends the exchange to the history, clears the fresh flags of the
// datasets this turn saw and releases the session. Messages with no text
// are not recorded. Calling Finish twice is a no-op.
func (t *Turn) Finish(user, assistant llm.Message) {
	if !t.done.CompareAndSwap(false, true) {
		return
	}
	s := t.session

	s.mu.Lock()
	for _, m := range []llm.Message{user, assistant} {
		if m.Text != "" {
			s.history = append(s.history, llm.Message{Role: m.Role, Text: m.Text})
		}
	}
	if over := len(s.history) - s.maxHistory; over > 0 {
		s.history = append([]llm.Message(nil), s.history[over:]...)
	}
	// A dataset attached while the turn ran is still fresh.
	if s.records == t.Records {
		s.recordsFresh = false
	}
	if s.tabular == t.Tabular {
		s.tabularFresh = false
	}
	s.lastActivity = s.now()
	s.mu.Unlock()

	s.busy.Store(false)
}

// Abort releases the session without recording anything. Images the turn
// took are put back ahead of any attached since BeginTurn.
func (t *Turn) Abort() {
	if !t.done.CompareAndSwap(false, true) {
		return
	}
	s := t.session
	if len(t.Images) > 0 {
		s.mu.Lock()
		s.images = append(slices.Clone(t.Images), s.images...)
		s.mu.Unlock()
	}
	s.busy.Store(false)
}
