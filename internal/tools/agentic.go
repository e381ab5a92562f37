// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/channelchat/internal/dataset"
	"github.com/jeranaias/channelchat/internal/llm"
)

// ChatFunc asks the model for the next step of the conversation, given the
// functions it may call.
type ChatFunc func(ctx context.Context, history []llm.Message, fns []llm.FunctionSpec) (llm.ToolReply, error)

// =============================================================================
// AGENTIC LOOP
// =============================================================================

// DefaultMaxRounds is the default maximum number of model rounds per turn.
const DefaultMaxRounds = 8

// DefaultMaxConsecutiveErrors is the default number of rounds in which every
// tool call failed before the loop gives up.
const DefaultMaxConsecutiveErrors = 3

// ErrMaxRounds is returned when the model keeps calling tools past the limit.
var ErrMaxRounds = errors.New("maximum tool rounds reached")

// ErrConsecutiveToolFailures is returned when too many rounds fail entirely.
var ErrConsecutiveToolFailures = errors.New("too many consecutive tool failures")

// Loop drives the iterative tool-calling protocol for one user turn. Tool
// calls within a round run sequentially in the order the model issued them.
type Loop struct {
	executor           *Executor
	maxRounds          int
	maxConsecutiveErrs int
	onInvocation       func(Invocation)
}

// Outcome is what one loop run produced. On error it still carries every
// invocation that completed before the failure.
type Outcome struct {
	Text        string
	Invocations []Invocation
	Rounds      int
}

// NewLoop creates a loop over the executor's catalog.
// If maxRounds is 0 or negative, DefaultMaxRounds is used.
func NewLoop(executor *Executor, maxRounds int) *Loop {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &Loop{
		executor:           executor,
		maxRounds:          maxRounds,
		maxConsecutiveErrs: DefaultMaxConsecutiveErrors,
	}
}

// OnInvocation registers a callback fired after each tool call completes.
func (l *Loop) OnInvocation(fn func(Invocation)) {
	l.onInvocation = fn
}

// SetMaxConsecutiveErrors sets the maximum all-failed rounds before stopping.
func (l *Loop) SetMaxConsecutiveErrors(max int) {
	if max > 0 {
		l.maxConsecutiveErrs = max
	}
}

// Run executes the loop.
//
// Each round:
//  1. Calls chat with the current conversation and the catalog
//  2. If no tool calls are returned, the reply text is the answer (done)
//  3. Executes each tool call against ds
//  4. Feeds the results back as one user message
func (l *Loop) Run(ctx context.Context, ds *dataset.Dataset, history []llm.Message, chat ChatFunc) (Outcome, error) {
	var out Outcome
	conversation := append([]llm.Message(nil), history...)
	specs := l.executor.Registry().Specs()
	consecutiveErrs := 0

	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		out.Rounds++
		if out.Rounds > l.maxRounds {
			out.Rounds = l.maxRounds
			return out, fmt.Errorf("%w: %d", ErrMaxRounds, l.maxRounds)
		}

		reply, err := chat(ctx, conversation, specs)
		if err != nil {
			return out, fmt.Errorf("tool round %d: %w", out.Rounds, err)
		}

		if len(reply.Calls) == 0 {
			out.Text = reply.Text
			return out, nil
		}

		conversation = append(conversation, llm.Message{
			Role:  llm.RoleModel,
			Text:  reply.Text,
			Calls: reply.Calls,
		})

		allFailed := true
		responses := make([]llm.ToolResponse, 0, len(reply.Calls))
		for _, call := range reply.Calls {
			if err := ctx.Err(); err != nil {
				return out, err
			}

			inv := l.executor.Execute(ds, call)
			out.Invocations = append(out.Invocations, inv)
			if !IsError(inv.Result) {
				allFailed = false
			}
			if l.onInvocation != nil {
				l.onInvocation(inv)
			}
			responses = append(responses, inv.Response())
		}

		conversation = append(conversation, llm.Message{
			Role:      llm.RoleUser,
			Responses: responses,
		})

		if allFailed {
			consecutiveErrs++
		} else {
			consecutiveErrs = 0
		}
		if consecutiveErrs >= l.maxConsecutiveErrs {
			return out, fmt.Errorf("%w: %d consecutive failures", ErrConsecutiveToolFailures, consecutiveErrs)
		}
	}
}
