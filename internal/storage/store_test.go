// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/channelchat/internal/llm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetTurn(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	turn := &Turn{SessionID: "s1", Mode: "generation", Prompt: "hello"}
	require.NoError(t, s.CreateTurn(ctx, turn))

	assert.NotEmpty(t, turn.ID, "id assigned before any work")
	assert.Equal(t, StatusPending, turn.Status)
	assert.False(t, turn.CreatedAt.IsZero())

	got, err := s.GetTurn(ctx, turn.ID)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "hello", got.Prompt)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, turn.CreatedAt.UnixNano(), got.CreatedAt.UnixNano())
}

func TestUpdateTurnExtras(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	turn := &Turn{SessionID: "s1", Mode: "json_tools", Prompt: "most viewed?"}
	require.NoError(t, s.CreateTurn(ctx, turn))

	turn.Content = "Video C has the most views."
	turn.Status = StatusComplete
	turn.Cards = []map[string]any{{"card_type": "video", "title": "c"}}
	turn.ToolCalls = []ToolCall{{
		ID:     "call-1",
		Name:   "lookup_record",
		Args:   map[string]any{"query": "most viewed"},
		Result: map[string]any{"title": "c"},
	}}
	turn.Images = []llm.Image{{MIMEType: "image/png", Data: []byte{0x89, 0x50}}}
	turn.Grounding = &llm.Grounding{Queries: []string{"q"}}
	require.NoError(t, s.UpdateTurn(ctx, turn))

	got, err := s.GetTurn(ctx, turn.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, turn.Content, got.Content)
	require.Len(t, got.Cards, 1)
	assert.Equal(t, "video", got.Cards[0]["card_type"])
	require.Len(t, got.ToolCalls, 1)
	assert.Equal(t, "lookup_record", got.ToolCalls[0].Name)
	require.Len(t, got.Images, 1)
	assert.Equal(t, []byte{0x89, 0x50}, got.Images[0].Data)
	require.NotNil(t, got.Grounding)
	assert.Equal(t, []string{"q"}, got.Grounding.Queries)
}

func TestUpdateUnknownTurn(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateTurn(context.Background(), &Turn{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetTurn(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListTurnsOrderAndScope(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Identical timestamps must still list in insertion order.
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	for _, prompt := range []string{"one", "two", "three"} {
		require.NoError(t, s.CreateTurn(ctx, &Turn{SessionID: "a", Mode: "generation", Prompt: prompt}))
	}
	require.NoError(t, s.CreateTurn(ctx, &Turn{SessionID: "b", Mode: "generation", Prompt: "other"}))

	turns, err := s.ListTurns(ctx, "a")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "one", turns[0].Prompt)
	assert.Equal(t, "two", turns[1].Prompt)
	assert.Equal(t, "three", turns[2].Prompt)

	n, err := s.DeleteSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	turns, err = s.ListTurns(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestOpenFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "turns.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateTurn(context.Background(), &Turn{SessionID: "s", Mode: "generation"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	turns, err := s.ListTurns(context.Background(), "s")
	require.NoError(t, err)
	assert.Len(t, turns, 1, "turns survive reopen")
}

func TestClone(t *testing.T) {
	orig := &Turn{ID: "x", Extras: Extras{Parts: []llm.Part{{Kind: llm.PartText, Text: "a"}}}}
	c := orig.Clone()
	orig.Parts[0].Text = "changed"
	orig.Parts = append(orig.Parts, llm.Part{})

	assert.Equal(t, "a", c.Parts[0].Text)
	assert.Len(t, c.Parts, 1)
}
