// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import "fmt"

// ============================================================================
// MODE TYPE
// ============================================================================

// Mode is the single execution path chosen for one user turn.
type Mode int

const (
	// ModeGeneration streams plain (optionally grounded) generation.
	ModeGeneration Mode = iota
	// ModeJSONTools runs the tool loop over a record-oriented dataset.
	ModeJSONTools
	// ModeCSVTools runs the tool loop over a tabular dataset.
	ModeCSVTools
	// ModeCodeExecution streams generation with code execution enabled.
	ModeCodeExecution
	// ModeImageGeneration makes a single image generation call.
	ModeImageGeneration
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeGeneration:
		return "generation"
	case ModeJSONTools:
		return "json_tools"
	case ModeCSVTools:
		return "csv_tools"
	case ModeCodeExecution:
		return "code_execution"
	case ModeImageGeneration:
		return "image_generation"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UsesTools returns true if the mode runs the tool-calling loop.
func (m Mode) UsesTools() bool {
	return m == ModeJSONTools || m == ModeCSVTools
}

// Streams returns true if the mode streams incremental generation output.
func (m Mode) Streams() bool {
	return m == ModeGeneration || m == ModeCodeExecution
}

// ============================================================================
// CLASSIFICATION INPUT / OUTPUT
// ============================================================================

// Input holds the facts about a turn that classification looks at.
type Input struct {
	// Text is the raw user text.
	Text string
	// HasRecordDataset is true if a record dataset is attached now or was earlier in the session.
	HasRecordDataset bool
	// HasTabularDataset is true if a tabular dataset is attached to the session.
	HasTabularDataset bool
	// TabularFresh is true if the tabular dataset arrived with this turn.
	TabularFresh bool
	// HasImage is true if the turn carries an image attachment.
	HasImage bool
}

// Signals records which vocabulary tables matched, by pattern name.
type Signals struct {
	Plot  string `json:"plot,omitempty"`
	Code  string `json:"code,omitempty"`
	Image string `json:"image,omitempty"`
}

// Decision is the outcome of classifying one turn.
type Decision struct {
	Mode    Mode    `json:"mode"`
	Signals Signals `json:"signals"`
	// EmbedRaw is true if the raw tabular upload should be embedded for code execution.
	EmbedRaw bool `json:"embed_raw"`
	// WantsImage is true if image vocabulary matched, regardless of mode.
	WantsImage bool   `json:"wants_image"`
	Reason     string `json:"reason"`
}
