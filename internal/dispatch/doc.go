// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch runs one user turn end to end.
//
// A turn is classified into exactly one router.Mode, a turn record is
// created, and the mode's protocol runs:
//
//   - json_tools: tool-calling loop over the record dataset, plus image
//     generation when a request_image call or image vocabulary surfaces
//   - csv_tools: tool-calling loop over the tabular dataset (stats, plot)
//   - code_execution: streamed generation with code execution enabled
//   - image_generation: one image generation call
//   - generation: streamed generation, optionally search grounded
//
// Failures from the model collaborators are folded into the answer as
// "Error: <message>"; tool results applied before the failure stay on the
// record.
//
// # Key Types
//
//   - Dispatcher: mode selection and protocol driver
//   - Request: the user text plus the session.Turn snapshot
//   - Sink: receives record snapshots as the answer grows
//   - Outcome: final record and the messages to append to history
//
// # Usage
//
//	d := dispatch.New(rtr, gen, store, dispatch.WithImageGenerator(gen))
//	out, err := d.Dispatch(ctx, dispatch.Request{SessionID: id, Text: text, Turn: turn}, sink)
//	if err != nil {
//	    turn.Abort()
//	    return err
//	}
//	turn.Finish(out.User, out.Assistant)
package dispatch
