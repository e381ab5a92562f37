// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package progress

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
)

const maxLineBytes = 16 * 1024 * 1024

// ErrLineTooLong is returned by Reader.Next for a line over the size limit.
var ErrLineTooLong = fmt.Errorf("progress: event line exceeds %d bytes", maxLineBytes)

// =============================================================================
// READER
// =============================================================================

// Reader splits an event stream into event payloads.
type Reader struct {
	br    *bufio.Reader
	line  []byte
	limit int
}

// NewReader creates a framer over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024), limit: maxLineBytes}
}

// Next returns the payload of the next complete event line. It returns
// io.EOF when the stream ends; an unterminated trailing line is discarded.
// The payload is only valid until the next call.
func (r *Reader) Next() ([]byte, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		line = bytes.TrimRight(line, "\r\n")
		payload, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue
		}
		return bytes.TrimPrefix(payload, []byte(" ")), nil
	}
}

// readLine returns the next newline-terminated line. Memory use is bounded
// by the line limit; a longer line fails with ErrLineTooLong.
func (r *Reader) readLine() ([]byte, error) {
	r.line = r.line[:0]
	for {
		chunk, err := r.br.ReadSlice('\n')
		if len(r.line)+len(chunk) > r.limit {
			return nil, ErrLineTooLong
		}
		r.line = append(r.line, chunk...)
		switch {
		case err == nil:
			return r.line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return nil, err
		}
	}
}

// Events decodes every event of r into T, in stream order. The sequence is
// finite and not restartable; it ends at EOF or after yielding a read error.
// A payload that does not decode is yielded as an error and skipped.
func Events[T any](r io.Reader) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		rd := NewReader(r)
		for {
			payload, err := rd.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}

			var v T
			if err := json.Unmarshal(payload, &v); err != nil {
				if !yield(v, fmt.Errorf("progress: decode event: %w", err)) {
					return
				}
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}
