// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists assistant turn records in SQLite.
//
// Each user turn produces exactly one Turn row. The row is created before
// any model or tool work starts so later updates can target its id, and
// it is updated in place as the answer completes.
//
// # Key Types
//
//   - Store: SQLite-backed turn store (modernc.org/sqlite, no cgo)
//   - Turn: one assistant record with its structured Extras
//   - Status: pending, streaming, complete, error
//
// # Usage
//
//	store, err := storage.Open(path)
//	turn := &storage.Turn{SessionID: id, Mode: "generation"}
//	err = store.CreateTurn(ctx, turn)
//	turn.Content, turn.Status = answer, storage.StatusComplete
//	err = store.UpdateTurn(ctx, turn)
//
// # Storage Location
//
// Turns are stored in ~/.channelchat/turns.db unless configured otherwise.
package storage
