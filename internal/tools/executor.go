// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeranaias/channelchat/internal/dataset"
	"github.com/jeranaias/channelchat/internal/llm"
)

// ErrUnknownTool is reported when the model calls a tool outside the catalog.
var ErrUnknownTool = errors.New("unknown tool")

// =============================================================================
// INVOCATION
// =============================================================================

// Invocation is one executed tool call. It is created once and never mutated.
type Invocation struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	RawArgs  map[string]any `json:"args"`
	Args     Args           `json:"-"`
	Result   Result         `json:"-"`
	Duration time.Duration  `json:"duration"`
}

// Response converts the invocation to the message fed back to the model.
func (inv Invocation) Response() llm.ToolResponse {
	return llm.ToolResponse{ID: inv.ID, Name: inv.Name, Payload: inv.Result.Payload()}
}

// =============================================================================
// EXECUTOR
// =============================================================================

// Executor resolves a model tool call against a catalog, validates its
// arguments and runs it against a dataset.
type Executor struct {
	registry *Registry
	logger   *zap.Logger
}

// NewExecutor creates a new tool executor with the given registry.
func NewExecutor(registry *Registry, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{registry: registry, logger: logger}
}

// Registry returns the tool registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs one tool call. Unknown tools, invalid arguments and a missing
// dataset produce an ErrorResult; Execute never fails.
func (e *Executor) Execute(ds *dataset.Dataset, call llm.ToolCall) Invocation {
	start := time.Now()
	inv := Invocation{
		ID:      call.ID,
		Name:    call.Name,
		RawArgs: call.Args,
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}

	inv.Args, inv.Result = e.run(ds, call)
	inv.Duration = time.Since(start)

	if er, ok := inv.Result.(ErrorResult); ok {
		e.logger.Debug("TOOL_ERROR",
			zap.String("tool", call.Name),
			zap.String("message", er.Message))
	} else {
		e.logger.Debug("TOOL_OK",
			zap.String("tool", call.Name),
			zap.Duration("duration", inv.Duration))
	}
	return inv
}

func (e *Executor) run(ds *dataset.Dataset, call llm.ToolCall) (Args, Result) {
	tool := e.registry.Get(call.Name)
	if tool == nil {
		return nil, ErrorResult{Message: fmt.Sprintf("%v: %s", ErrUnknownTool, call.Name)}
	}

	args, err := ParseArgs(tool, call.Args)
	if err != nil {
		return nil, ErrorResult{Message: fmt.Sprintf("parameter validation failed for %s: %v", call.Name, err)}
	}

	if ds == nil && tool.Name != NameRequestImage {
		return args, ErrorResult{Message: "no dataset is attached to this session"}
	}
	return args, tool.Executor.Execute(ds, args)
}
