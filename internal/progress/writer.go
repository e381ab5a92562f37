// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Marker prefixes every event line.
const Marker = "data: "

var (
	// ErrStreamingUnsupported is returned when the response cannot be flushed.
	ErrStreamingUnsupported = errors.New("streaming not supported")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("progress channel closed")
)

// =============================================================================
// WRITER
// =============================================================================

// Writer frames events onto an underlying stream. Send is safe for
// concurrent use; events are written whole and in call order.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	closed  bool
	err     error
}

// NewWriter wraps w. If w implements http.Flusher it is flushed after every event.
func NewWriter(w io.Writer) *Writer {
	fw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.flusher = f
	}
	return fw
}

// NewHTTPWriter sets the event-stream headers on rw and wraps it.
func NewHTTPWriter(rw http.ResponseWriter) (*Writer, error) {
	if _, ok := rw.(http.Flusher); !ok {
		return nil, ErrStreamingUnsupported
	}
	h := rw.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	rw.WriteHeader(http.StatusOK)
	return NewWriter(rw), nil
}

// Send encodes v as JSON and writes it as one event. A write failure usually
// means the consumer went away; it is sticky and returned by every later Send.
func (w *Writer) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("progress: encode event: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}

	frame := make([]byte, 0, len(Marker)+len(data)+2)
	frame = append(frame, Marker...)
	frame = append(frame, data...)
	frame = append(frame, '\n', '\n')
	if _, err := w.w.Write(frame); err != nil {
		w.err = fmt.Errorf("progress: write event: %w", err)
		return w.err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// Close marks the channel closed. It does not close the underlying writer.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}
