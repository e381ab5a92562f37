// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jeranaias/channelchat/internal/dataset"
	"github.com/jeranaias/channelchat/internal/llm"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(cfg Config) (*Manager, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewManager(cfg, nil)
	m.now = clock.Now
	return m, clock
}

func mustLoad(t *testing.T, name, raw string, kind dataset.Kind) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.Load(name, raw, kind)
	if err != nil {
		t.Fatalf("Load(%s) error = %v", name, err)
	}
	return ds
}

// =============================================================================
// MANAGER TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.IdleTimeout != 60*time.Minute {
		t.Errorf("Default IdleTimeout = %v, want 60m", cfg.IdleTimeout)
	}
	if cfg.MaxHistory != 50 {
		t.Errorf("Default MaxHistory = %d, want 50", cfg.MaxHistory)
	}
}

func TestManager_CreateGetDelete(t *testing.T) {
	m, _ := newTestManager(Config{})

	s := m.Create("Ada")
	if s.ID() == "" {
		t.Fatal("session id should not be empty")
	}
	if s.UserName() != "Ada" {
		t.Errorf("UserName() = %q, want Ada", s.UserName())
	}

	got, err := m.Get(s.ID())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != s {
		t.Error("Get() returned a different session")
	}

	if _, err := m.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}

	m.Delete(s.ID())
	if m.Len() != 0 {
		t.Errorf("Len() = %d after delete, want 0", m.Len())
	}
	if _, err := m.Get(s.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestManager_EvictIdle(t *testing.T) {
	m, clock := newTestManager(Config{IdleTimeout: 10 * time.Minute})

	idle := m.Create("")
	busy := m.Create("")
	if _, err := busy.BeginTurn(); err != nil {
		t.Fatal(err)
	}

	clock.Advance(5 * time.Minute)
	fresh := m.Create("")

	if n := m.EvictIdle(); n != 0 {
		t.Errorf("EvictIdle() = %d before timeout, want 0", n)
	}

	clock.Advance(6 * time.Minute)
	if n := m.EvictIdle(); n != 1 {
		t.Errorf("EvictIdle() = %d, want 1", n)
	}

	if _, err := m.Get(idle.ID()); !errors.Is(err, ErrNotFound) {
		t.Error("idle session should be evicted")
	}
	if _, err := m.Get(busy.ID()); err != nil {
		t.Error("session with a turn in progress must not be evicted")
	}
	if _, err := m.Get(fresh.ID()); err != nil {
		t.Error("recently created session must not be evicted")
	}
}

func TestManager_GetRecordsActivity(t *testing.T) {
	m, clock := newTestManager(Config{IdleTimeout: 10 * time.Minute})
	s := m.Create("")

	clock.Advance(9 * time.Minute)
	if _, err := m.Get(s.ID()); err != nil {
		t.Fatal(err)
	}
	clock.Advance(9 * time.Minute)

	if n := m.EvictIdle(); n != 0 {
		t.Errorf("EvictIdle() = %d, want 0 after recent Get", n)
	}
}

func TestManager_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(Config{IdleTimeout: time.Second}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestSession_AttachSlots(t *testing.T) {
	m, _ := newTestManager(Config{})
	s := m.Create("")

	recs := mustLoad(t, "channel.json", `[{"title":"a","view_count":1}]`, dataset.KindRecords)
	csv := mustLoad(t, "sales.csv", "month,revenue\njan,10\n", dataset.KindTabular)

	s.Attach(recs)
	s.Attach(csv)

	turn, err := s.BeginTurn()
	if err != nil {
		t.Fatal(err)
	}
	if turn.Records != recs || turn.Tabular != csv {
		t.Error("turn should see both datasets")
	}
	if !turn.RecordsFresh || !turn.TabularFresh {
		t.Error("datasets attached before the turn should be fresh")
	}
	turn.Finish(llm.Message{Role: llm.RoleUser, Text: "hi"}, llm.Message{Role: llm.RoleModel, Text: "hello"})

	turn, err = s.BeginTurn()
	if err != nil {
		t.Fatal(err)
	}
	defer turn.Abort()
	if turn.RecordsFresh || turn.TabularFresh {
		t.Error("datasets should not be fresh on the following turn")
	}
	if turn.Records == nil {
		t.Error("record dataset should stay attached for the rest of the session")
	}

	st := s.Status()
	if st.RecordSet != "channel.json" || st.TabularSet != "sales.csv" {
		t.Errorf("Status() datasets = %q, %q", st.RecordSet, st.TabularSet)
	}
	if !st.TurnInFlight {
		t.Error("Status() should report the open turn")
	}
}

func TestSession_AttachDuringTurnStaysFresh(t *testing.T) {
	m, _ := newTestManager(Config{})
	s := m.Create("")
	s.Attach(mustLoad(t, "a.csv", "x\n1\n", dataset.KindTabular))

	turn, err := s.BeginTurn()
	if err != nil {
		t.Fatal(err)
	}
	replacement := mustLoad(t, "b.csv", "y\n2\n", dataset.KindTabular)
	s.Attach(replacement)
	turn.Finish(llm.Message{}, llm.Message{})

	next, err := s.BeginTurn()
	if err != nil {
		t.Fatal(err)
	}
	defer next.Abort()
	if next.Tabular != replacement || !next.TabularFresh {
		t.Error("dataset attached mid-turn should be fresh for the next turn")
	}
}

func TestSession_ImagesConsumedByTurn(t *testing.T) {
	m, _ := newTestManager(Config{})
	s := m.Create("")
	s.AttachImage(llm.Image{MIMEType: "image/png", Data: []byte{1}})

	turn, _ := s.BeginTurn()
	if len(turn.Images) != 1 {
		t.Fatalf("turn images = %d, want 1", len(turn.Images))
	}
	turn.Finish(llm.Message{}, llm.Message{})

	turn, _ = s.BeginTurn()
	defer turn.Abort()
	if len(turn.Images) != 0 {
		t.Errorf("images should be consumed, got %d", len(turn.Images))
	}
}

func TestSession_AbortRestoresImages(t *testing.T) {
	m, _ := newTestManager(Config{})
	s := m.Create("")
	s.AttachImage(llm.Image{MIMEType: "image/png", Data: []byte{1}})

	turn, _ := s.BeginTurn()
	s.AttachImage(llm.Image{MIMEType: "image/jpeg", Data: []byte{2}})
	turn.Abort()
	turn.Abort()

	turn, _ = s.BeginTurn()
	defer turn.Abort()
	if len(turn.Images) != 2 {
		t.Fatalf("turn images = %d, want 2", len(turn.Images))
	}
	if turn.Images[0].MIMEType != "image/png" || turn.Images[1].MIMEType != "image/jpeg" {
		t.Errorf("images out of order: %s, %s", turn.Images[0].MIMEType, turn.Images[1].MIMEType)
	}
}

func TestSession_TurnExclusive(t *testing.T) {
	m, _ := newTestManager(Config{})
	s := m.Create("")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.BeginTurn(); err == nil {
				wins.Add(1)
			} else if !errors.Is(err, ErrTurnInProgress) {
				t.Errorf("BeginTurn() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("%d turns began concurrently, want exactly 1", wins.Load())
	}
}

func TestSession_FinishTwiceIsNoop(t *testing.T) {
	m, _ := newTestManager(Config{})
	s := m.Create("")

	turn, _ := s.BeginTurn()
	turn.Finish(llm.Message{Role: llm.RoleUser, Text: "q"}, llm.Message{Role: llm.RoleModel, Text: "a"})

	other, err := s.BeginTurn()
	if err != nil {
		t.Fatal(err)
	}
	turn.Finish(llm.Message{Role: llm.RoleUser, Text: "again"}, llm.Message{})
	if !s.Busy() {
		t.Error("a stale Finish must not release another turn")
	}
	other.Abort()

	if got := len(s.History()); got != 2 {
		t.Errorf("History() len = %d, want 2", got)
	}
}

func TestSession_HistoryCap(t *testing.T) {
	m, _ := newTestManager(Config{MaxHistory: 4})
	s := m.Create("")

	for i := 0; i < 5; i++ {
		turn, err := s.BeginTurn()
		if err != nil {
			t.Fatal(err)
		}
		turn.Finish(
			llm.Message{Role: llm.RoleUser, Text: fmt.Sprintf("q%d", i)},
			llm.Message{Role: llm.RoleModel, Text: fmt.Sprintf("a%d", i)},
		)
	}

	h := s.History()
	if len(h) != 4 {
		t.Fatalf("History() len = %d, want 4", len(h))
	}
	if h[0].Text != "q3" || h[3].Text != "a4" {
		t.Errorf("History() = %v, want the most recent messages", h)
	}
}
