// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package progress implements the one-way event stream between a
// long-running job and exactly one remote consumer.
//
// Events are text records "data: <json>" followed by a blank line
// (text/event-stream). Writer frames and flushes each event as it is sent so
// the transport preserves emission order. Reader is the consumer-side framer:
// it buffers bytes, splits on newline and yields every complete line that
// starts with the marker; a partial trailing line is never yielded.
//
// # Usage
//
//	w, err := progress.NewHTTPWriter(rw)
//	_ = w.Send(event)
//
//	for ev, err := range progress.Events[ingest.Event](resp.Body) {
//	    ...
//	}
package progress
