// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llmtest provides scripted llm.Generator and llm.ImageGenerator
// implementations for tests.
package llmtest

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/jeranaias/channelchat/internal/llm"
)

// ErrScriptExhausted is returned when CallTools runs out of scripted replies.
var ErrScriptExhausted = errors.New("llmtest: no scripted reply left")

// Generator replays scripted replies and records what it was asked.
type Generator struct {
	mu sync.Mutex

	// Replies are returned by CallTools in order.
	Replies []llm.ToolReply
	// ToolErr, when set, is returned by every CallTools call.
	ToolErr error
	// Chunks are yielded by Stream in order.
	Chunks []llm.Chunk
	// StreamErr, when set, is yielded after Chunks.
	StreamErr error

	toolHistories [][]llm.Message
	streams       []llm.StreamRequest
}

// CallTools implements llm.Generator.
func (g *Generator) CallTools(ctx context.Context, history []llm.Message, _ []llm.FunctionSpec) (llm.ToolReply, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.toolHistories = append(g.toolHistories, append([]llm.Message(nil), history...))
	if err := ctx.Err(); err != nil {
		return llm.ToolReply{}, err
	}
	if g.ToolErr != nil {
		return llm.ToolReply{}, g.ToolErr
	}
	if len(g.Replies) == 0 {
		return llm.ToolReply{}, ErrScriptExhausted
	}
	reply := g.Replies[0]
	g.Replies = g.Replies[1:]
	return reply, nil
}

// Stream implements llm.Generator.
func (g *Generator) Stream(ctx context.Context, req llm.StreamRequest) iter.Seq2[llm.Chunk, error] {
	g.mu.Lock()
	g.streams = append(g.streams, req)
	chunks := append([]llm.Chunk(nil), g.Chunks...)
	streamErr := g.StreamErr
	g.mu.Unlock()

	return func(yield func(llm.Chunk, error) bool) {
		for _, c := range chunks {
			if err := ctx.Err(); err != nil {
				yield(llm.Chunk{}, err)
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if streamErr != nil {
			yield(llm.Chunk{}, streamErr)
		}
	}
}

// ToolHistories returns the message histories passed to CallTools.
func (g *Generator) ToolHistories() [][]llm.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]llm.Message(nil), g.toolHistories...)
}

// StreamRequests returns the requests passed to Stream.
func (g *Generator) StreamRequests() []llm.StreamRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.StreamRequest(nil), g.streams...)
}

// ImageGenerator returns a fixed result and records prompts.
type ImageGenerator struct {
	mu sync.Mutex

	Result llm.ImageResult
	Err    error

	prompts []string
	anchors []*llm.Image
}

// GenerateImage implements llm.ImageGenerator.
func (g *ImageGenerator) GenerateImage(ctx context.Context, prompt string, anchor *llm.Image) (llm.ImageResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prompts = append(g.prompts, prompt)
	g.anchors = append(g.anchors, anchor)
	if err := ctx.Err(); err != nil {
		return llm.ImageResult{}, err
	}
	if g.Err != nil {
		return llm.ImageResult{}, g.Err
	}
	return g.Result, nil
}

// Prompts returns the prompts passed to GenerateImage.
func (g *ImageGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// Anchors returns the anchor images passed to GenerateImage.
func (g *ImageGenerator) Anchors() []*llm.Image {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*llm.Image(nil), g.anchors...)
}
