// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	ytdl "github.com/kkdai/youtube/v2"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"github.com/jeranaias/channelchat/internal/ingest"
)

const (
	// DefaultTranscriptLang is the caption track requested when none is configured.
	DefaultTranscriptLang = "en"

	// DefaultArtifactRate is the per-job transcript rate to pass to
	// ingest.WithArtifactRate. Scraping is not covered by the Data API quota
	// and is throttled aggressively upstream.
	DefaultArtifactRate = rate.Limit(4)

	// DefaultTimeout bounds a single Data API request.
	DefaultTimeout = 30 * time.Second
)

// ErrNoAPIKey is returned by New when no Data API key is configured.
var ErrNoAPIKey = errors.New("youtube: api key not configured")

// TranscriptFetcher fetches the transcript text of one video.
type TranscriptFetcher interface {
	Transcript(ctx context.Context, videoID string) (string, error)
}

// TranscriptFunc adapts a function to TranscriptFetcher.
type TranscriptFunc func(ctx context.Context, videoID string) (string, error)

// Transcript implements TranscriptFetcher.
func (f TranscriptFunc) Transcript(ctx context.Context, videoID string) (string, error) {
	return f(ctx, videoID)
}

// Options configures a Source.
type Options struct {
	APIKey         string
	TranscriptLang string

	// Endpoint overrides the Data API base URL (tests).
	Endpoint string
	// HTTPClient is used for Data API calls; nil means a client with DefaultTimeout.
	HTTPClient *http.Client
	// Transcripts replaces the default kkdai transcript client.
	Transcripts TranscriptFetcher
}

// Source lists channel uploads through the Data API.
type Source struct {
	api         *ytapi.Service
	transcripts TranscriptFetcher
}

var _ ingest.Source = (*Source)(nil)

// New creates a Source.
func New(ctx context.Context, opts Options) (*Source, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrNoAPIKey
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	// option.WithHTTPClient bypasses the key option, so the key goes on every call instead.
	clientOpts := []option.ClientOption{option.WithHTTPClient(&http.Client{
		Transport: keyTransport{key: opts.APIKey, base: httpClient.Transport},
		Timeout:   httpClient.Timeout,
	})}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	api, err := ytapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("youtube: create service: %w", err)
	}

	transcripts := opts.Transcripts
	if transcripts == nil {
		lang := opts.TranscriptLang
		if lang == "" {
			lang = DefaultTranscriptLang
		}
		transcripts = &scraper{client: &ytdl.Client{}, lang: lang}
	}

	return &Source{
		api:         api,
		transcripts: transcripts,
	}, nil
}

// =============================================================================
// RESOLUTION
// =============================================================================

// ResolveHandle implements ingest.Source.
func (s *Source) ResolveHandle(ctx context.Context, handle string) (string, error) {
	resp, err := s.api.Channels.List([]string{"id"}).
		ForHandle(handle).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("channels.list forHandle=%s: %w", handle, err)
	}
	if len(resp.Items) == 0 {
		return "", nil
	}
	return resp.Items[0].Id, nil
}

// Search implements ingest.Source.
func (s *Source) Search(ctx context.Context, query string) (string, error) {
	resp, err := s.api.Search.List([]string{"snippet"}).
		Q(query).
		Type("channel").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("search.list q=%s: %w", query, err)
	}
	for _, hit := range resp.Items {
		if hit.Id != nil && hit.Id.ChannelId != "" {
			return hit.Id.ChannelId, nil
		}
		if hit.Snippet != nil && hit.Snippet.ChannelId != "" {
			return hit.Snippet.ChannelId, nil
		}
	}
	return "", nil
}

// Collection implements ingest.Source.
func (s *Source) Collection(ctx context.Context, id string) (*ingest.Collection, error) {
	resp, err := s.api.Channels.List([]string{"snippet", "contentDetails"}).
		Id(id).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("channels.list id=%s: %w", id, err)
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}

	ch := resp.Items[0]
	c := &ingest.Collection{ID: ch.Id}
	if ch.Snippet != nil {
		c.Title = ch.Snippet.Title
	}
	if ch.ContentDetails != nil && ch.ContentDetails.RelatedPlaylists != nil {
		c.UploadsID = ch.ContentDetails.RelatedPlaylists.Uploads
	}
	return c, nil
}

// =============================================================================
// LISTING
// =============================================================================

// ListItems implements ingest.Source.
func (s *Source) ListItems(ctx context.Context, listID, pageToken string, max int) (ingest.Page, error) {
	call := s.api.PlaylistItems.List([]string{"contentDetails"}).
		PlaylistId(listID).
		MaxResults(int64(min(max, ingest.MaxPageSize))).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return ingest.Page{}, fmt.Errorf("playlistItems.list %s: %w", listID, err)
	}

	page := ingest.Page{NextPageToken: resp.NextPageToken}
	for _, it := range resp.Items {
		if it.ContentDetails == nil || it.ContentDetails.VideoId == "" {
			continue
		}
		page.IDs = append(page.IDs, it.ContentDetails.VideoId)
	}
	return page, nil
}

// ItemDetails implements ingest.Source.
func (s *Source) ItemDetails(ctx context.Context, ids []string) ([]ingest.RawItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > ingest.DetailBatchSize {
		return nil, fmt.Errorf("videos.list: batch of %d exceeds %d", len(ids), ingest.DetailBatchSize)
	}

	resp, err := s.api.Videos.List([]string{"snippet", "contentDetails", "statistics"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("videos.list: %w", err)
	}

	items := make([]ingest.RawItem, 0, len(resp.Items))
	for _, v := range resp.Items {
		items = append(items, rawItem(v))
	}
	return items, nil
}

func rawItem(v *ytapi.Video) ingest.RawItem {
	raw := ingest.RawItem{ID: v.Id}
	if sn := v.Snippet; sn != nil {
		raw.Title = sn.Title
		raw.Description = sn.Description
		raw.PublishedAt = sn.PublishedAt
		raw.Thumbnails = thumbnails(sn.Thumbnails)
	}
	if cd := v.ContentDetails; cd != nil {
		raw.Duration = cd.Duration
	}
	// Hidden counters are omitted by the API; they stay "" and normalize to 0.
	if st := v.Statistics; st != nil {
		raw.ViewCount = count(st.ViewCount)
		raw.LikeCount = count(st.LikeCount)
		raw.CommentCount = count(st.CommentCount)
	}
	return raw
}

func count(n uint64) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(n, 10)
}

func thumbnails(d *ytapi.ThumbnailDetails) map[string]string {
	if d == nil {
		return nil
	}
	out := make(map[string]string, 5)
	set := func(name string, t *ytapi.Thumbnail) {
		if t != nil && t.Url != "" {
			out[name] = t.Url
		}
	}
	set("default", d.Default)
	set("medium", d.Medium)
	set("high", d.High)
	set("standard", d.Standard)
	set("maxres", d.Maxres)
	return out
}

// =============================================================================
// ARTIFACTS
// =============================================================================

// Artifact implements ingest.Source. A cancelled ctx returns before any
// request is made.
func (s *Source) Artifact(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.transcripts.Transcript(ctx, id)
}

type scraper struct {
	client *ytdl.Client
	lang   string
}

func (s *scraper) Transcript(ctx context.Context, videoID string) (string, error) {
	video, err := s.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return "", fmt.Errorf("video %s: %w", videoID, err)
	}
	segments, err := s.client.GetTranscriptCtx(ctx, video, s.lang)
	if err != nil {
		return "", fmt.Errorf("transcript %s: %w", videoID, err)
	}

	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}

// keyTransport appends the API key to every outgoing request.
type keyTransport struct {
	key  string
	base http.RoundTripper
}

func (t keyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	r := req.Clone(req.Context())
	q := r.URL.Query()
	q.Set("key", t.key)
	r.URL.RawQuery = q.Encode()
	return base.RoundTrip(r)
}
