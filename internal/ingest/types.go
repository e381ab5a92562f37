// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Limits on a single job.
const (
	DefaultLimit    = 10
	MaxLimit        = 100
	MaxPageSize     = 50
	DetailBatchSize = 50
)

var (
	// ErrChannelNotFound is returned when a reference resolves to nothing.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrInvalidReference is returned when a reference has no recognizable id or handle.
	ErrInvalidReference = errors.New("invalid channel reference")
	// ErrArtifactUnavailable marks an item whose artifact was never fetched.
	ErrArtifactUnavailable = errors.New("artifact unavailable")
	// ErrConsumerGone is returned when the progress consumer stopped accepting events.
	ErrConsumerGone = errors.New("progress consumer gone")
)

// =============================================================================
// STATE MACHINE
// =============================================================================

// State is the lifecycle stage of a Job.
type State int

const (
	StateResolving State = iota
	StateListing
	StateFetchingDetails
	StateFetchingArtifacts
	StateComplete
	StateFailed
	StateCancelled
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateResolving:
		return "Resolving"
	case StateListing:
		return "Listing"
	case StateFetchingDetails:
		return "FetchingDetails"
	case StateFetchingArtifacts:
		return "FetchingArtifacts"
	case StateComplete:
		return "Complete"
	case StateFailed:
		return "Failed"
	case StateCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Terminal returns true for Complete, Failed and Cancelled.
func (s State) Terminal() bool {
	return s >= StateComplete
}

// CanTransition reports whether s may move to next: one step forward along
// the linear path, or to Failed/Cancelled from any non-terminal state.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed || next == StateCancelled {
		return true
	}
	return next == s+1
}

// =============================================================================
// REQUEST
// =============================================================================

// Request starts one ingestion job.
type Request struct {
	Reference string `json:"url"`
	Limit     int    `json:"maxVideos"`
}

// ClampLimit maps 0 to DefaultLimit and clamps everything else to [1, MaxLimit].
func ClampLimit(n int) int {
	if n == 0 {
		return DefaultLimit
	}
	return max(1, min(n, MaxLimit))
}

// ParseLimit converts a loosely-typed limit (JSON number, numeric string,
// absent) into a clamped limit. Unparseable input yields DefaultLimit.
func ParseLimit(v any) int {
	switch t := v.(type) {
	case int:
		return ClampLimit(t)
	case int64:
		return ClampLimit(int(max(min(t, math.MaxInt32), math.MinInt32)))
	case float64:
		if math.IsNaN(t) {
			return DefaultLimit
		}
		return ClampLimit(int(max(min(t, math.MaxInt32), math.MinInt32)))
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return ParseLimit(n)
		}
		if f, err := t.Float64(); err == nil {
			return ParseLimit(f)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return ClampLimit(n)
		}
	}
	return DefaultLimit
}

// =============================================================================
// SOURCE
// =============================================================================

// Collection describes a resolved channel.
type Collection struct {
	ID        string
	Title     string
	UploadsID string
}

// Page is one page of a collection listing.
type Page struct {
	IDs           []string
	NextPageToken string
}

// RawItem is item metadata as the source reports it, before normalization.
type RawItem struct {
	ID           string
	Title        string
	Description  string
	PublishedAt  string
	Duration     string
	ViewCount    string
	LikeCount    string
	CommentCount string
	// Thumbnails maps resolution name (default, medium, high, standard, maxres) to URL.
	Thumbnails map[string]string
}

// Source is the collection source collaborator. Every method is a
// suspension point and must honour ctx.
type Source interface {
	// ResolveHandle returns the channel id for a handle, or "" if unknown.
	ResolveHandle(ctx context.Context, handle string) (string, error)
	// Search returns the first channel id matching a free-text query, or "".
	Search(ctx context.Context, query string) (string, error)
	// Collection returns channel details, or nil if the id is unknown.
	Collection(ctx context.Context, id string) (*Collection, error)
	// ListItems returns up to max item ids from an uploads listing.
	ListItems(ctx context.Context, listID, pageToken string, max int) (Page, error)
	// ItemDetails returns metadata for at most DetailBatchSize ids.
	ItemDetails(ctx context.Context, ids []string) ([]RawItem, error)
	// Artifact returns the side artifact (transcript) of one item.
	Artifact(ctx context.Context, id string) (string, error)
}

// =============================================================================
// ITEM
// =============================================================================

// Artifact is the best-effort side payload of an item: text on success,
// Err on failure. Exactly one is meaningful.
type Artifact struct {
	Text string
	Err  error
}

// OK reports whether the artifact was fetched.
func (a Artifact) OK() bool { return a.Err == nil }

// ArtifactError records why one item's artifact could not be fetched.
type ArtifactError struct {
	ItemID string
	Err    error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("artifact for %s: %v", e.ItemID, e.Err)
}

func (e *ArtifactError) Unwrap() error { return e.Err }

// Item is one harvested video, normalized.
type Item struct {
	ID           string
	Title        string
	Description  string
	Artifact     Artifact
	Duration     int
	DurationISO  string
	ReleaseDate  string
	ViewCount    int64
	LikeCount    int64
	CommentCount int64
	URL          string
	Thumbnail    string
}

// wireItem fixes the JSON field order; the record dataset takes its field
// list from the first element.
type wireItem struct {
	VideoID      string  `json:"video_id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Transcript   *string `json:"transcript"`
	Duration     int     `json:"duration"`
	DurationISO  string  `json:"duration_iso"`
	ReleaseDate  string  `json:"release_date"`
	ViewCount    int64   `json:"view_count"`
	LikeCount    int64   `json:"like_count"`
	CommentCount int64   `json:"comment_count"`
	VideoURL     string  `json:"video_url"`
	Thumbnail    string  `json:"thumbnail"`
}

// MarshalJSON implements json.Marshaler. A failed artifact is null.
func (it Item) MarshalJSON() ([]byte, error) {
	w := wireItem{
		VideoID:      it.ID,
		Title:        it.Title,
		Description:  it.Description,
		Duration:     it.Duration,
		DurationISO:  it.DurationISO,
		ReleaseDate:  it.ReleaseDate,
		ViewCount:    it.ViewCount,
		LikeCount:    it.LikeCount,
		CommentCount: it.CommentCount,
		VideoURL:     it.URL,
		Thumbnail:    it.Thumbnail,
	}
	if it.Artifact.OK() {
		text := it.Artifact.Text
		w.Transcript = &text
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. A null transcript becomes an
// Artifact with ErrArtifactUnavailable.
func (it *Item) UnmarshalJSON(data []byte) error {
	var w wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*it = Item{
		ID:           w.VideoID,
		Title:        w.Title,
		Description:  w.Description,
		Duration:     w.Duration,
		DurationISO:  w.DurationISO,
		ReleaseDate:  w.ReleaseDate,
		ViewCount:    w.ViewCount,
		LikeCount:    w.LikeCount,
		CommentCount: w.CommentCount,
		URL:          w.VideoURL,
		Thumbnail:    w.Thumbnail,
	}
	if w.Transcript != nil {
		it.Artifact.Text = *w.Transcript
	} else {
		it.Artifact.Err = ErrArtifactUnavailable
	}
	return nil
}

// =============================================================================
// JOB
// =============================================================================

// Job is one run of the pipeline. It is owned by the goroutine running it;
// read it only after Run returns.
type Job struct {
	ID           string
	Reference    string
	Limit        int
	State        State
	ChannelID    string
	ChannelTitle string
	ItemIDs      []string
	Items        []Item
	Err          error
}

// transition moves the job to next, enforcing monotonic progress.
func (j *Job) transition(next State) error {
	if !j.State.CanTransition(next) {
		return fmt.Errorf("ingest: illegal transition %s -> %s", j.State, next)
	}
	j.State = next
	return nil
}

// StageError is a fatal failure of one pipeline stage.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", strings.ToLower(e.Stage.String()), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// =============================================================================
// EVENTS
// =============================================================================

// EventType tags a progress-channel event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one progress-channel record.
type Event struct {
	Type         EventType `json:"type"`
	Message      string    `json:"message,omitempty"`
	Percent      *int      `json:"percent,omitempty"`
	ChannelTitle string    `json:"channelTitle,omitempty"`
	Data         []Item    `json:"data,omitzero"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// PercentValue returns the progress percentage, or 0 if unset.
func (e Event) PercentValue() int {
	if e.Percent == nil {
		return 0
	}
	return *e.Percent
}

// UserMessage renders err as the text shown to the consumer.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrChannelNotFound):
		return "Channel not found"
	case errors.Is(err, ErrInvalidReference):
		return "Invalid YouTube channel URL. Use format: youtube.com/@handle or youtube.com/channel/ID"
	default:
		return err.Error()
	}
}
