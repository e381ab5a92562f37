// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const channelURL = "https://www.youtube.com/@builder/videos"

func TestRun_ListsExactlyLimit(t *testing.T) {
	src := newPagingSource(30, 5)
	rec := &recorder{}

	job, err := NewPipeline(src).Run(context.Background(), Request{Reference: channelURL, Limit: 10}, rec.emit)
	require.NoError(t, err)

	assert.Equal(t, []int{10, 5}, src.listCalls, "two listing calls, never asking for more than remain")
	assert.Len(t, job.ItemIDs, 10)
	assert.Len(t, job.Items, 10)
	assert.Equal(t, StateComplete, job.State)
	assert.Equal(t, "Builder Bob", job.ChannelTitle)
}

func TestRun_EventSequence(t *testing.T) {
	src := newPagingSource(4, 50)
	rec := &recorder{}

	_, err := NewPipeline(src).Run(context.Background(), Request{Reference: channelURL, Limit: 4}, rec.emit)
	require.NoError(t, err)

	events := rec.all()
	require.NotEmpty(t, events)

	var msgs []string
	last := -1
	for _, ev := range events[:len(events)-1] {
		require.Equal(t, EventProgress, ev.Type)
		require.NotNil(t, ev.Percent)
		assert.GreaterOrEqual(t, *ev.Percent, last, "percent never decreases")
		last = *ev.Percent
		msgs = append(msgs, ev.Message)
	}
	assert.Equal(t, []string{
		"Resolving channel...",
		"Getting channel uploads...",
		"Found 4 videos, fetching details...",
		"Fetching transcripts...",
		"Processing video 1/4: Title v1...",
		"Processing video 2/4: Title v2...",
		"Processing video 3/4: Title v3...",
		"Processing video 4/4: Title v4...",
		"Done!",
	}, msgs)
	assert.Equal(t, 100, last)

	final := events[len(events)-1]
	assert.Equal(t, EventComplete, final.Type)
	assert.Equal(t, "Builder Bob", final.ChannelTitle)
	require.Len(t, final.Data, 4)
	assert.Equal(t, "v1", final.Data[0].ID)
}

func TestRun_ArtifactFailureIsolation(t *testing.T) {
	src := newPagingSource(5, 50)
	src.artifactErr["v3"] = errors.New("transcripts disabled")
	rec := &recorder{}

	job, err := NewPipeline(src).Run(context.Background(), Request{Reference: channelURL, Limit: 5}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, job.State)

	for i, item := range job.Items {
		if i == 2 {
			require.False(t, item.Artifact.OK())
			var ae *ArtifactError
			require.ErrorAs(t, item.Artifact.Err, &ae)
			assert.Equal(t, "v3", ae.ItemID)
			continue
		}
		assert.True(t, item.Artifact.OK(), "item %d", i+1)
		assert.Equal(t, "transcript of "+item.ID, item.Artifact.Text)
	}
	assert.Len(t, src.artifactCalls, 5)

	final := rec.all()[len(rec.all())-1]
	raw, err := json.Marshal(final.Data)
	require.NoError(t, err)
	var wire []map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Nil(t, wire[2]["transcript"])
	assert.Equal(t, "transcript of v4", wire[3]["transcript"])
}

func TestRun_ConsumerClosesMidArtifacts(t *testing.T) {
	src := newPagingSource(5, 50)
	rec := &recorder{refuse: func(ev Event) bool {
		return strings.HasPrefix(ev.Message, "Processing video 3/5")
	}}

	job, err := NewPipeline(src).Run(context.Background(), Request{Reference: channelURL, Limit: 5}, rec.emit)
	require.ErrorIs(t, err, ErrConsumerGone)
	assert.Equal(t, StateCancelled, job.State)
	assert.Equal(t, []string{"v1", "v2"}, src.artifactCalls, "no artifact fetch after the consumer left")

	events := rec.all()
	assert.Equal(t, "Processing video 2/5: Title v2...", events[len(events)-1].Message)
	for _, ev := range events {
		assert.False(t, ev.Terminal())
	}
}

func TestRun_ArtifactRateIsPerJob(t *testing.T) {
	// One token per hour: a limiter shared between jobs would block the second.
	p := NewPipeline(newPagingSource(1, 50), WithArtifactRate(rate.Every(time.Hour)))

	for i := range 2 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		job, err := p.Run(ctx, Request{Reference: channelURL, Limit: 1}, (&recorder{}).emit)
		cancel()
		require.NoError(t, err, "job %d", i+1)
		assert.Equal(t, StateComplete, job.State)
		assert.True(t, job.Items[0].Artifact.OK())
	}
}

func TestRun_ContextCancelledDuringArtifact(t *testing.T) {
	src := newPagingSource(5, 50)
	ctx, cancel := context.WithCancel(context.Background())
	src.onArtifact = func(id string) {
		if id == "v2" {
			cancel()
		}
	}
	rec := &recorder{}

	job, err := NewPipeline(src).Run(ctx, Request{Reference: channelURL, Limit: 5}, rec.emit)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, job.State)
	assert.Equal(t, []string{"v1", "v2"}, src.artifactCalls)

	events := rec.all()
	assert.Equal(t, "Processing video 2/5: Title v2...", events[len(events)-1].Message,
		"nothing emitted after cancellation")
}

func TestRun_Resolution(t *testing.T) {
	tests := []struct {
		name      string
		ref       string
		setup     func(*pagingSource)
		wantErr   error
		wantMsg   string
		searchHit bool
	}{
		{name: "channel id", ref: "https://youtube.com/channel/UCbuilder"},
		{name: "handle", ref: "youtube.com/@builder"},
		{
			name:      "handle via search",
			ref:       "@Builder.Bob",
			setup:     func(s *pagingSource) { s.searches["Builder.Bob"] = "UCbuilder" },
			searchHit: true,
		},
		{name: "unknown handle", ref: "@nobody", wantErr: ErrChannelNotFound, wantMsg: "Channel not found", searchHit: true},
		{name: "no pattern", ref: "https://example.com/videos", wantErr: ErrInvalidReference, wantMsg: "Invalid YouTube channel URL"},
		{name: "unknown id", ref: "/channel/UCghost", wantErr: ErrChannelNotFound, wantMsg: "Channel not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newPagingSource(2, 50)
			if tt.setup != nil {
				tt.setup(src)
			}
			rec := &recorder{}
			job, err := NewPipeline(src).Run(context.Background(), Request{Reference: tt.ref, Limit: 2}, rec.emit)

			assert.Equal(t, tt.searchHit, len(src.searchCalls) > 0)
			events := rec.all()
			final := events[len(events)-1]
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, EventComplete, final.Type)
				return
			}

			require.ErrorIs(t, err, tt.wantErr)
			var se *StageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, StateResolving, se.Stage)
			assert.Equal(t, StateFailed, job.State)
			assert.Equal(t, EventError, final.Type)
			assert.Contains(t, final.Message, tt.wantMsg)
			assert.Empty(t, src.listCalls, "no listing after a failed resolution")
		})
	}
}

func TestRun_ListingFailure(t *testing.T) {
	src := newPagingSource(5, 50)
	src.listErr = errors.New("quota exceeded")
	rec := &recorder{}

	job, err := NewPipeline(src).Run(context.Background(), Request{Reference: channelURL, Limit: 5}, rec.emit)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StateListing, se.Stage)
	assert.Equal(t, StateFailed, job.State)

	events := rec.all()
	assert.Equal(t, Event{Type: EventError, Message: "quota exceeded"}, events[len(events)-1])
	assert.Empty(t, src.detailCalls)
}

func TestRun_DetailBatchesPreserveOrder(t *testing.T) {
	src := newPagingSource(120, 50)
	src.dropped["v7"] = true
	rec := &recorder{}

	job, err := NewPipeline(src).Run(context.Background(), Request{Reference: channelURL, Limit: 500}, rec.emit)
	require.NoError(t, err)

	assert.Equal(t, 100, job.Limit, "limit is clamped")
	assert.Equal(t, []int{50, 50}, src.listCalls)
	require.Len(t, src.detailCalls, 2)
	assert.Len(t, src.detailCalls[0], 50)
	assert.Len(t, src.detailCalls[1], 50)

	require.Len(t, job.Items, 99, "dropped ids are skipped")
	assert.Equal(t, "v6", job.Items[5].ID)
	assert.Equal(t, "v8", job.Items[6].ID)
	assert.Equal(t, "v100", job.Items[98].ID)
}

func TestRun_SmallPagesAndBatches(t *testing.T) {
	src := newPagingSource(7, 50)
	rec := &recorder{}
	p := NewPipeline(src, WithPageSize(3), WithBatchSize(2))

	job, err := p.Run(context.Background(), Request{Reference: channelURL, Limit: 7}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, src.listCalls)
	assert.Len(t, src.detailCalls, 4)
	assert.Len(t, job.Items, 7)
}

func TestRun_ShortChannelStopsWhenNoNextPage(t *testing.T) {
	src := newPagingSource(3, 50)
	rec := &recorder{}

	job, err := NewPipeline(src).Run(context.Background(), Request{Reference: channelURL, Limit: 10}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, []int{10}, src.listCalls)
	assert.Len(t, job.Items, 3)
}

func TestRun_NormalizesItems(t *testing.T) {
	src := newPagingSource(1, 50)
	rec := &recorder{}

	job, err := NewPipeline(src).Run(context.Background(), Request{Reference: channelURL, Limit: 1}, rec.emit)
	require.NoError(t, err)
	item := job.Items[0]
	assert.Equal(t, 60, item.Duration)
	assert.Equal(t, "PT1M", item.DurationISO)
	assert.Equal(t, "2024-01-02", item.ReleaseDate)
	assert.Equal(t, int64(10), item.ViewCount)
	assert.Equal(t, int64(0), item.LikeCount)
	assert.Equal(t, "https://www.youtube.com/watch?v=v1", item.URL)
	assert.Equal(t, "https://i.ytimg.com/v1/hq.jpg", item.Thumbnail)
}
