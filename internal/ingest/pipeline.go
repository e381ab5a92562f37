// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/channelchat/internal/util"
)

var (
	channelIDPattern = regexp.MustCompile(`/channel/(UC[\w-]+)`)
	handlePattern    = regexp.MustCompile(`@([\w.-]+)`)
)

// Progress milestones.
const (
	pctResolving    = 5
	pctListing      = 10
	pctDetails      = 20
	pctArtifacts    = 40
	pctArtifactSpan = 50
	pctDone         = 100
)

// EmitFunc delivers one event to the consumer. A non-nil error means the
// consumer is gone and the job is cancelled.
type EmitFunc func(Event) error

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline runs ingestion jobs against a Source. A Pipeline holds no
// per-job state; distinct jobs may run concurrently.
type Pipeline struct {
	source       Source
	logger       *zap.Logger
	pageSize     int
	batchSize    int
	artifactRate rate.Limit
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPageSize caps each listing request (at most MaxPageSize).
func WithPageSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.pageSize = min(n, MaxPageSize)
		}
	}
}

// WithBatchSize caps each detail request (at most DetailBatchSize).
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = min(n, DetailBatchSize)
		}
	}
}

// WithArtifactRate limits artifact fetches per second within one job.
// Every Run gets its own limiter. The default is rate.Inf.
func WithArtifactRate(limit rate.Limit) Option {
	return func(p *Pipeline) {
		if limit > 0 {
			p.artifactRate = limit
		}
	}
}

// NewPipeline creates a pipeline over src.
func NewPipeline(src Source, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:       src,
		logger:       zap.NewNop(),
		pageSize:     MaxPageSize,
		batchSize:    DetailBatchSize,
		artifactRate: rate.Inf,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run is the per-job execution context.
type run struct {
	*Pipeline
	ctx       context.Context
	cancel    context.CancelFunc
	job       *Job
	emit      EmitFunc
	log       *zap.Logger
	limiter   *rate.Limiter
	uploadsID string
}

// Run executes one job to a terminal state and returns it. The returned
// error is nil only for Complete. On Failed a terminal error event has been
// emitted; on Cancelled nothing further was emitted.
func (p *Pipeline) Run(ctx context.Context, req Request, emit EmitFunc) (*Job, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	job := &Job{
		ID:        uuid.NewString(),
		Reference: req.Reference,
		Limit:     ClampLimit(req.Limit),
		State:     StateResolving,
	}
	r := &run{
		Pipeline: p,
		ctx:      ctx,
		cancel:   cancel,
		job:      job,
		emit:     emit,
		log:      p.logger.With(zap.String("job", job.ID)),
		limiter:  rate.NewLimiter(p.artifactRate, 1),
	}
	r.log.Info("INGEST_START", zap.String("reference", req.Reference), zap.Int("limit", job.Limit))

	stages := []struct {
		state State
		fn    func() error
	}{
		{StateResolving, r.resolve},
		{StateListing, r.list},
		{StateFetchingDetails, r.fetchDetails},
		{StateFetchingArtifacts, r.fetchArtifacts},
	}
	for _, st := range stages {
		if job.State != st.state {
			if err := job.transition(st.state); err != nil {
				return job, err
			}
		}
		if err := r.ctx.Err(); err != nil {
			return job, r.cancelled(err)
		}
		if err := st.fn(); err != nil {
			if r.ctx.Err() != nil || errors.Is(err, ErrConsumerGone) {
				return job, r.cancelled(err)
			}
			return job, r.fail(st.state, err)
		}
	}

	if err := r.progress(pctDone, "Done!"); err != nil {
		return job, r.cancelled(err)
	}
	if err := job.transition(StateComplete); err != nil {
		return job, err
	}
	items := job.Items
	if items == nil {
		items = []Item{}
	}
	if err := r.send(Event{Type: EventComplete, ChannelTitle: job.ChannelTitle, Data: items}); err != nil {
		// Complete is already the terminal state; the consumer simply missed it.
		r.log.Warn("INGEST_COMPLETE_UNDELIVERED", zap.Error(err))
		return job, err
	}
	r.log.Info("INGEST_COMPLETE",
		zap.String("channel", job.ChannelTitle),
		zap.Int("items", len(job.Items)))
	return job, nil
}

// =============================================================================
// STAGES
// =============================================================================

func (r *run) resolve() error {
	if err := r.progress(pctResolving, "Resolving channel..."); err != nil {
		return err
	}

	id, err := r.resolveID()
	if err != nil {
		return err
	}
	if err := r.ctx.Err(); err != nil {
		return err
	}
	coll, err := r.source.Collection(r.ctx, id)
	if err != nil {
		return err
	}
	if coll == nil {
		return ErrChannelNotFound
	}
	r.job.ChannelID = coll.ID
	r.job.ChannelTitle = coll.Title
	if coll.UploadsID == "" {
		return fmt.Errorf("%w: no uploads listing", ErrChannelNotFound)
	}
	r.uploadsID = coll.UploadsID
	return nil
}

func (r *run) resolveID() (string, error) {
	ref := r.job.Reference
	if m := channelIDPattern.FindStringSubmatch(ref); m != nil {
		return m[1], nil
	}
	m := handlePattern.FindStringSubmatch(ref)
	if m == nil {
		return "", ErrInvalidReference
	}
	handle := m[1]

	id, err := r.source.ResolveHandle(r.ctx, handle)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	if err := r.ctx.Err(); err != nil {
		return "", err
	}
	r.log.Debug("INGEST_HANDLE_FALLBACK", zap.String("handle", handle))
	id, err = r.source.Search(r.ctx, handle)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", ErrChannelNotFound
	}
	return id, nil
}

func (r *run) list() error {
	if err := r.progress(pctListing, "Getting channel uploads..."); err != nil {
		return err
	}

	token := ""
	for len(r.job.ItemIDs) < r.job.Limit {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		want := min(r.pageSize, r.job.Limit-len(r.job.ItemIDs))
		page, err := r.source.ListItems(r.ctx, r.uploadsID, token, want)
		if err != nil {
			return err
		}
		remaining := r.job.Limit - len(r.job.ItemIDs)
		r.job.ItemIDs = append(r.job.ItemIDs, page.IDs[:min(len(page.IDs), remaining)]...)
		if page.NextPageToken == "" || len(page.IDs) == 0 {
			break
		}
		token = page.NextPageToken
	}
	r.log.Debug("INGEST_STAGE", zap.Stringer("stage", StateListing), zap.Int("ids", len(r.job.ItemIDs)))
	return nil
}

func (r *run) fetchDetails() error {
	msg := fmt.Sprintf("Found %d videos, fetching details...", len(r.job.ItemIDs))
	if err := r.progress(pctDetails, msg); err != nil {
		return err
	}

	items := make([]Item, 0, len(r.job.ItemIDs))
	for batch := range slices.Chunk(r.job.ItemIDs, r.batchSize) {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		raws, err := r.source.ItemDetails(r.ctx, batch)
		if err != nil {
			return err
		}
		byID := make(map[string]RawItem, len(raws))
		for _, raw := range raws {
			byID[raw.ID] = raw
		}
		// Request order, not response order; ids the source dropped are skipped.
		for _, id := range batch {
			if raw, ok := byID[id]; ok {
				items = append(items, Normalize(raw))
			}
		}
	}
	r.job.Items = items
	r.log.Debug("INGEST_STAGE", zap.Stringer("stage", StateFetchingDetails), zap.Int("items", len(items)))
	return nil
}

func (r *run) fetchArtifacts() error {
	if err := r.progress(pctArtifacts, "Fetching transcripts..."); err != nil {
		return err
	}

	n := len(r.job.Items)
	for i := range r.job.Items {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		item := &r.job.Items[i]
		pct := pctArtifacts + int(math.Round(float64(i)/float64(n)*pctArtifactSpan))
		msg := fmt.Sprintf("Processing video %d/%d: %s...", i+1, n, util.TruncateRunesNoEllipsis(item.Title, 50))
		if err := r.progress(pct, msg); err != nil {
			return err
		}

		if err := r.limiter.Wait(r.ctx); err != nil {
			return err
		}
		text, err := r.source.Artifact(r.ctx, item.ID)
		if err != nil {
			item.Artifact = Artifact{Err: &ArtifactError{ItemID: item.ID, Err: err}}
			r.log.Debug("INGEST_ARTIFACT_FAILED", zap.String("item", item.ID), zap.Error(err))
			continue
		}
		item.Artifact = Artifact{Text: text}
	}
	return nil
}

// =============================================================================
// EVENTS AND TERMINAL STATES
// =============================================================================

func (r *run) progress(pct int, msg string) error {
	return r.send(Event{Type: EventProgress, Message: msg, Percent: &pct})
}

func (r *run) send(ev Event) error {
	if err := r.emit(ev); err != nil {
		r.cancel()
		return fmt.Errorf("%w: %v", ErrConsumerGone, err)
	}
	return nil
}

func (r *run) cancelled(cause error) error {
	from := r.job.State
	_ = r.job.transition(StateCancelled)
	r.job.Err = cause
	r.log.Info("INGEST_CANCELLED", zap.Stringer("stage", from), zap.Error(cause))
	if errors.Is(cause, ErrConsumerGone) {
		return cause
	}
	return fmt.Errorf("ingest cancelled: %w", cause)
}

func (r *run) fail(stage State, cause error) error {
	err := &StageError{Stage: stage, Err: cause}
	_ = r.job.transition(StateFailed)
	r.job.Err = err
	r.log.Warn("INGEST_FAILED", zap.Stringer("stage", stage), zap.Error(cause))
	if sendErr := r.emit(Event{Type: EventError, Message: UserMessage(cause)}); sendErr != nil {
		r.log.Debug("INGEST_ERROR_UNDELIVERED", zap.Error(sendErr))
	}
	return err
}
