// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/channelchat/internal/dataset"
	"github.com/jeranaias/channelchat/internal/llm"
	"github.com/jeranaias/channelchat/internal/router"
	"github.com/jeranaias/channelchat/internal/session"
	"github.com/jeranaias/channelchat/internal/storage"
	"github.com/jeranaias/channelchat/internal/tools"
)

// ErrEmptyTurn is returned for a turn with no text and nothing attached.
var ErrEmptyTurn = errors.New("turn has no text and no attachments")

// ErrImageGenerationDisabled is reported inline when no image generator is configured.
var ErrImageGenerationDisabled = errors.New("image generation is not configured")

// Recorder persists assistant turn records.
type Recorder interface {
	CreateTurn(ctx context.Context, t *storage.Turn) error
	UpdateTurn(ctx context.Context, t *storage.Turn) error
}

// Sink receives a snapshot of the turn record after every visible change.
// It is called from the dispatching goroutine, in order.
type Sink func(*storage.Turn)

// Request is one user turn.
type Request struct {
	SessionID string
	Text      string
	Turn      *session.Turn
}

// Empty reports whether the request has no text and nothing attached.
func (r Request) Empty() bool {
	t := r.Turn
	return strings.TrimSpace(r.Text) == "" && len(t.Images) == 0 && !t.RecordsFresh && !t.TabularFresh
}

// Outcome is what a dispatched turn produced.
type Outcome struct {
	Decision router.Decision
	Record   *storage.Turn
	// User and Assistant are the messages to append to the session history.
	User      llm.Message
	Assistant llm.Message
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher selects a mode for each turn and drives its protocol.
type Dispatcher struct {
	router    *router.Router
	gen       llm.Generator
	images    llm.ImageGenerator
	recorder  Recorder
	maxRounds int
	ground    bool
	logger    *zap.Logger

	recordTools  *tools.Executor
	tabularTools *tools.Executor
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithImageGenerator enables image generation.
func WithImageGenerator(g llm.ImageGenerator) Option {
	return func(d *Dispatcher) { d.images = g }
}

// WithMaxToolRounds bounds the tool-calling loop.
func WithMaxToolRounds(n int) Option {
	return func(d *Dispatcher) { d.maxRounds = n }
}

// WithGrounding enables search grounding in generation mode.
func WithGrounding(on bool) Option {
	return func(d *Dispatcher) { d.ground = on }
}

// New creates a Dispatcher.
func New(r *router.Router, gen llm.Generator, recorder Recorder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		router:    r,
		gen:       gen,
		recorder:  recorder,
		maxRounds: tools.DefaultMaxRounds,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.recordTools = tools.NewExecutor(tools.RecordCatalog(), d.logger)
	d.tabularTools = tools.NewExecutor(tools.TabularCatalog(), d.logger)
	return d
}

// Classify returns the mode a request would run in without running it.
func (d *Dispatcher) Classify(req Request) router.Decision {
	return d.router.Classify(classifyInput(req))
}

func classifyInput(req Request) router.Input {
	return router.Input{
		Text:              req.Text,
		HasRecordDataset:  req.Turn.Records != nil,
		HasTabularDataset: req.Turn.Tabular != nil,
		TabularFresh:      req.Turn.TabularFresh,
		HasImage:          len(req.Turn.Images) > 0,
	}
}

// Dispatch runs one turn. The turn record is created before any model or
// tool work so every sink update carries its id. Collaborator failures
// become an "Error: ..." answer rather than a returned error; Dispatch only
// fails when the turn is empty or the record cannot be persisted.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, sink Sink) (*Outcome, error) {
	if req.Empty() {
		return nil, ErrEmptyTurn
	}
	text := strings.TrimSpace(req.Text)
	turn := req.Turn
	req.Text = text
	if sink == nil {
		sink = func(*storage.Turn) {}
	}

	start := time.Now()
	decision := d.router.Classify(classifyInput(req))

	rec := &storage.Turn{
		SessionID: req.SessionID,
		Mode:      decision.Mode.String(),
		Prompt:    UserContent(text, turn),
		Status:    storage.StatusPending,
	}
	if err := d.recorder.CreateTurn(ctx, rec); err != nil {
		return nil, fmt.Errorf("create turn record: %w", err)
	}
	sink(rec.Clone())

	run := &turnRun{
		d:        d,
		ctx:      ctx,
		req:      req,
		decision: decision,
		prompt:   BuildPrompt(text, turn, decision),
		rec:      rec,
		sink:     sink,
	}

	var err error
	switch decision.Mode {
	case router.ModeJSONTools:
		err = run.tools(d.recordTools, turn.Records, true)
	case router.ModeCSVTools:
		err = run.tools(d.tabularTools, turn.Tabular, false)
	case router.ModeCodeExecution:
		err = run.stream(true)
	case router.ModeImageGeneration:
		run.imageOnly()
	default:
		err = run.stream(false)
	}

	if err != nil {
		rec.Content = "Error: " + err.Error()
		rec.Status = storage.StatusError
		d.logger.Warn("TURN_FAILED",
			zap.String("session", req.SessionID),
			zap.String("turn", rec.ID),
			zap.Stringer("mode", decision.Mode),
			zap.Error(err))
	} else {
		rec.Status = storage.StatusComplete
	}
	if len(rec.Parts) > 0 && err == nil {
		rec.Content = textParts(rec.Parts)
	}

	// The record must be finalized even when the caller has gone away.
	if uerr := d.recorder.UpdateTurn(context.WithoutCancel(ctx), rec); uerr != nil {
		d.logger.Error("TURN_PERSIST_FAILED", zap.String("turn", rec.ID), zap.Error(uerr))
	}
	sink(rec.Clone())

	d.logger.Info("TURN_COMPLETE",
		zap.String("session", req.SessionID),
		zap.String("turn", rec.ID),
		zap.Stringer("mode", decision.Mode),
		zap.String("status", string(rec.Status)),
		zap.Int("tool_calls", len(rec.ToolCalls)),
		zap.Duration("duration", time.Since(start)))

	return &Outcome{
		Decision:  decision,
		Record:    rec,
		User:      llm.Message{Role: llm.RoleUser, Text: rec.Prompt},
		Assistant: llm.Message{Role: llm.RoleModel, Text: rec.Content},
	}, nil
}

// =============================================================================
// TURN RUN
// =============================================================================

// turnRun carries the state of one dispatch.
type turnRun struct {
	d        *Dispatcher
	ctx      context.Context
	req      Request
	decision router.Decision
	prompt   string
	rec      *storage.Turn
	sink     Sink
}

func (r *turnRun) emit() { r.sink(r.rec.Clone()) }

// tools runs the tool-calling loop against ds. Each completed invocation is
// applied to the record immediately, so a later failure leaves it visible.
func (r *turnRun) tools(exec *tools.Executor, ds *dataset.Dataset, withImages bool) error {
	history := append(slices.Clone(r.req.Turn.History), llm.Message{
		Role:   llm.RoleUser,
		Text:   r.prompt,
		Images: r.req.Turn.Images,
	})

	var imageReq *tools.ImageRequest
	loop := tools.NewLoop(exec, r.d.maxRounds)
	loop.OnInvocation(func(inv tools.Invocation) {
		r.applyInvocation(inv)
		if ir, ok := inv.Result.(tools.ImageRequest); ok && imageReq == nil {
			imageReq = &ir
		}
		r.emit()
	})

	out, err := loop.Run(r.ctx, ds, history, r.d.gen.CallTools)
	if err != nil {
		return err
	}
	r.rec.Content = out.Text

	if !withImages {
		return nil
	}
	switch {
	case imageReq != nil:
		res, err := r.generateImage(imageReq.Prompt)
		if err != nil {
			r.rec.Content += fmt.Sprintf("\n\n(Image generation failed: %v)", err)
			break
		}
		if res.Text != "" {
			r.rec.Content = res.Text + "\n\n" + r.rec.Content
		}
	case r.decision.WantsImage:
		res, err := r.generateImage(r.req.Text)
		if err != nil {
			r.rec.Content += fmt.Sprintf("\n\n(Image generation failed: %v)", err)
			break
		}
		if res.Text != "" {
			r.rec.Content = res.Text
		}
	}
	return nil
}

func (r *turnRun) applyInvocation(inv tools.Invocation) {
	payload := inv.Result.Payload()
	r.rec.ToolCalls = append(r.rec.ToolCalls, storage.ToolCall{
		ID:         inv.ID,
		Name:       inv.Name,
		Args:       inv.RawArgs,
		Result:     payload,
		Failed:     tools.IsError(inv.Result),
		DurationMs: inv.Duration.Milliseconds(),
	})
	switch inv.Result.(type) {
	case tools.ChartResult:
		r.rec.Charts = append(r.rec.Charts, payload)
	case tools.CardResult:
		r.rec.Cards = append(r.rec.Cards, payload)
	}
}

// imageOnly makes a single image generation call. Failure is an inline
// message, not a turn error.
func (r *turnRun) imageOnly() {
	res, err := r.generateImage(r.req.Text)
	if err != nil {
		r.rec.Content = fmt.Sprintf("Image generation failed: %v", err)
		return
	}
	r.rec.Content = res.Text
	if r.rec.Content == "" {
		r.rec.Content = DefaultImageAnswer
	}
}

// generateImage calls the image collaborator anchored on the first image
// attached to the turn, and stores whatever images come back.
func (r *turnRun) generateImage(prompt string) (llm.ImageResult, error) {
	if r.d.images == nil {
		return llm.ImageResult{}, ErrImageGenerationDisabled
	}
	var anchor *llm.Image
	if imgs := r.req.Turn.Images; len(imgs) > 0 {
		anchor = &imgs[0]
	}

	res, err := r.d.images.GenerateImage(r.ctx, prompt, anchor)
	if err != nil {
		return res, err
	}
	r.rec.Images = append(r.rec.Images, res.Images...)
	return res, nil
}

// stream forwards streamed generation into the record as it arrives.
func (r *turnRun) stream(executeCode bool) error {
	req := llm.StreamRequest{
		History:     r.req.Turn.History,
		Prompt:      r.prompt,
		Images:      r.req.Turn.Images,
		ExecuteCode: executeCode,
		Ground:      r.d.ground && !executeCode,
	}

	r.rec.Status = storage.StatusStreaming
	for chunk, err := range r.d.gen.Stream(r.ctx, req) {
		if err != nil {
			return err
		}
		switch {
		case len(chunk.Parts) > 0:
			r.rec.Parts = chunk.Parts
			r.rec.Content = ""
		case chunk.Text != "":
			r.rec.Content += chunk.Text
		}
		if chunk.Grounding != nil {
			r.rec.Grounding = chunk.Grounding
		}
		r.emit()
	}
	return nil
}

func textParts(parts []llm.Part) string {
	var texts []string
	for _, p := range parts {
		if p.Kind == llm.PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}
