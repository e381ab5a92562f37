// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"errors"
	"iter"
)

var (
	ErrUnauthorized = errors.New("llm unauthorized")
	ErrUnavailable  = errors.New("llm unavailable")
	ErrRateLimited  = errors.New("llm rate limited")
	ErrBlocked      = errors.New("llm response blocked")
)

// =============================================================================
// MESSAGES
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Image is an inline image attachment or generated image.
type Image struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResponse carries a tool's structured result back to the model.
type ToolResponse struct {
	ID      string         `json:"id,omitempty"`
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
}

// Message is one entry of a conversation sent to the model. A model message
// may carry tool calls; the following user message carries their responses.
type Message struct {
	Role      Role           `json:"role"`
	Text      string         `json:"text,omitempty"`
	Images    []Image        `json:"images,omitempty"`
	Calls     []ToolCall     `json:"calls,omitempty"`
	Responses []ToolResponse `json:"responses,omitempty"`
}

// =============================================================================
// FUNCTION CALLING
// =============================================================================

// Param describes one argument of a callable function.
type Param struct {
	Name        string
	Type        string // "string", "number", "integer", "boolean"
	Description string
	Required    bool
	Enum        []string
}

// FunctionSpec declares a function the model may call.
type FunctionSpec struct {
	Name        string
	Description string
	Params      []Param
}

// ToolReply is the model's answer to a function-calling request: either
// calls to execute or final text.
type ToolReply struct {
	Text  string
	Calls []ToolCall
}

// =============================================================================
// STREAMING
// =============================================================================

// StreamRequest is a plain generation request.
type StreamRequest struct {
	History     []Message
	Prompt      string
	Images      []Image
	ExecuteCode bool
	Ground      bool
}

// PartKind distinguishes the parts of a code-execution response.
type PartKind int

const (
	PartText PartKind = iota
	PartCode
	PartCodeResult
	PartImage
)

// String returns the wire name of the part kind.
func (k PartKind) String() string {
	switch k {
	case PartText:
		return "text"
	case PartCode:
		return "code"
	case PartCodeResult:
		return "code_result"
	case PartImage:
		return "image"
	default:
		return "unknown"
	}
}

// Part is one element of a structured response.
type Part struct {
	Kind     PartKind `json:"kind"`
	Text     string   `json:"text,omitempty"`
	Code     string   `json:"code,omitempty"`
	Language string   `json:"language,omitempty"`
	Outcome  string   `json:"outcome,omitempty"`
	Output   string   `json:"output,omitempty"`
	Image    *Image   `json:"image,omitempty"`
}

// GroundingSource is one cited web source.
type GroundingSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Grounding is the citation metadata attached to a grounded answer.
type Grounding struct {
	Sources []GroundingSource `json:"sources,omitempty"`
	Queries []string          `json:"queries,omitempty"`
}

// Chunk is one increment of a streamed response. Text chunks append to the
// running answer; a chunk with Parts replaces it with the structured response.
type Chunk struct {
	Text      string
	Parts     []Part
	Grounding *Grounding
}

// ImageResult is the outcome of an image generation call.
type ImageResult struct {
	Text   string
	Images []Image
}

// =============================================================================
// PROVIDER CONTRACT
// =============================================================================

// Generator is a text model supporting function calling and streaming.
type Generator interface {
	CallTools(ctx context.Context, history []Message, fns []FunctionSpec) (ToolReply, error)
	Stream(ctx context.Context, req StreamRequest) iter.Seq2[Chunk, error]
}

// ImageGenerator produces images from a prompt, optionally anchored on an
// input image to edit.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, anchor *Image) (ImageResult, error)
}
