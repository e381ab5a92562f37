// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds per-conversation chat context.
//
// Each Session owns the datasets attached to it (one record-oriented and one
// tabular slot), images waiting for the next turn, and the text history of
// the conversation. Only one turn may run per session at a time.
//
// # Key Types
//
//   - Manager: session registry with idle eviction
//   - Session: datasets, pending images, history
//   - Turn: snapshot taken when a turn begins; Finish or Abort releases it
//
// # Usage
//
//	mgr := session.NewManager(session.DefaultConfig(), logger)
//	go mgr.Run(ctx)
//
//	s := mgr.Create("Ada")
//	s.Attach(ds)
//
//	turn, err := s.BeginTurn()
//	if errors.Is(err, session.ErrTurnInProgress) {
//	    // reject
//	}
//	defer turn.Abort()
//	...
//	turn.Finish(userMsg, assistantMsg)
package session
