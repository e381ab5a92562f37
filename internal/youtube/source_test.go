// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/channelchat/internal/ingest"
)

// fakeAPI serves canned Data API responses and records query strings.
type fakeAPI struct {
	mu      sync.Mutex
	queries map[string][]string
}

func (f *fakeAPI) record(endpoint string, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries[endpoint] = append(f.queries[endpoint], r.URL.RawQuery)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("key") != "test-key" {
		http.Error(w, `{"error":{"code":403,"message":"bad key"}}`, http.StatusForbidden)
		return
	}

	var body any
	switch {
	case strings.HasSuffix(r.URL.Path, "/channels"):
		f.record("channels", r)
		switch {
		case q.Get("forHandle") == "known":
			body = map[string]any{"items": []any{map[string]any{"id": "UCknown"}}}
		case q.Get("forHandle") != "":
			body = map[string]any{"items": []any{}}
		case q.Get("id") == "UCknown":
			body = map[string]any{"items": []any{map[string]any{
				"id":             "UCknown",
				"snippet":        map[string]any{"title": "Known Channel"},
				"contentDetails": map[string]any{"relatedPlaylists": map[string]any{"uploads": "UUknown"}},
			}}}
		default:
			body = map[string]any{"items": []any{}}
		}
	case strings.HasSuffix(r.URL.Path, "/search"):
		f.record("search", r)
		body = map[string]any{"items": []any{map[string]any{
			"id": map[string]any{"kind": "youtube#channel", "channelId": "UCsearched"},
		}}}
	case strings.HasSuffix(r.URL.Path, "/playlistItems"):
		f.record("playlistItems", r)
		if q.Get("pageToken") == "" {
			body = map[string]any{
				"nextPageToken": "p2",
				"items": []any{
					map[string]any{"contentDetails": map[string]any{"videoId": "v1"}},
					map[string]any{"contentDetails": map[string]any{}},
					map[string]any{"contentDetails": map[string]any{"videoId": "v2"}},
				},
			}
		} else {
			body = map[string]any{"items": []any{
				map[string]any{"contentDetails": map[string]any{"videoId": "v3"}},
			}}
		}
	case strings.HasSuffix(r.URL.Path, "/videos"):
		f.record("videos", r)
		body = map[string]any{"items": []any{map[string]any{
			"id": "v1",
			"snippet": map[string]any{
				"title":       "First",
				"description": "desc",
				"publishedAt": "2024-03-01T12:00:00Z",
				"thumbnails": map[string]any{
					"default": map[string]any{"url": "https://img/default.jpg"},
					"high":    map[string]any{"url": "https://img/high.jpg"},
				},
			},
			"contentDetails": map[string]any{"duration": "PT4M5S"},
			"statistics":     map[string]any{"viewCount": "1200", "likeCount": "34"},
		}}}
	default:
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func newTestSource(t *testing.T, transcripts TranscriptFetcher) (*Source, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{queries: map[string][]string{}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	src, err := New(context.Background(), Options{
		APIKey:      "test-key",
		Endpoint:    srv.URL + "/",
		HTTPClient:  srv.Client(),
		Transcripts: transcripts,
	})
	require.NoError(t, err)
	return src, api
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), Options{APIKey: "  "})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestResolveHandle(t *testing.T) {
	src, _ := newTestSource(t, nil)
	ctx := context.Background()

	id, err := src.ResolveHandle(ctx, "known")
	require.NoError(t, err)
	assert.Equal(t, "UCknown", id)

	id, err = src.ResolveHandle(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestSearch(t *testing.T) {
	src, api := newTestSource(t, nil)

	id, err := src.Search(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, "UCsearched", id)

	require.Len(t, api.queries["search"], 1)
	assert.Contains(t, api.queries["search"][0], "type=channel")
	assert.Contains(t, api.queries["search"][0], "maxResults=1")
}

func TestCollection(t *testing.T) {
	src, _ := newTestSource(t, nil)
	ctx := context.Background()

	c, err := src.Collection(ctx, "UCknown")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, ingest.Collection{ID: "UCknown", Title: "Known Channel", UploadsID: "UUknown"}, *c)

	c, err = src.Collection(ctx, "UCmissing")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestListItems(t *testing.T) {
	src, api := newTestSource(t, nil)
	ctx := context.Background()

	page, err := src.ListItems(ctx, "UUknown", "", 80)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, page.IDs)
	assert.Equal(t, "p2", page.NextPageToken)

	page, err = src.ListItems(ctx, "UUknown", page.NextPageToken, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"v3"}, page.IDs)
	assert.Empty(t, page.NextPageToken)

	calls := api.queries["playlistItems"]
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0], "maxResults=50", "page size is capped")
	assert.Contains(t, calls[1], "maxResults=1")
	assert.Contains(t, calls[1], "pageToken=p2")
}

func TestItemDetails(t *testing.T) {
	src, _ := newTestSource(t, nil)

	items, err := src.ItemDetails(context.Background(), []string{"v1"})
	require.NoError(t, err)
	require.Len(t, items, 1)

	raw := items[0]
	assert.Equal(t, "First", raw.Title)
	assert.Equal(t, "PT4M5S", raw.Duration)
	assert.Equal(t, "1200", raw.ViewCount)
	assert.Equal(t, "34", raw.LikeCount)
	assert.Empty(t, raw.CommentCount)
	assert.Equal(t, "https://img/high.jpg", ingest.BestThumbnail(raw.Thumbnails))

	item := ingest.Normalize(raw)
	assert.Equal(t, 245, item.Duration)
	assert.Equal(t, "2024-03-01", item.ReleaseDate)
	assert.Equal(t, int64(0), item.CommentCount)
}

func TestItemDetailsRejectsOversizedBatch(t *testing.T) {
	src, _ := newTestSource(t, nil)
	ids := make([]string, ingest.DetailBatchSize+1)
	_, err := src.ItemDetails(context.Background(), ids)
	assert.Error(t, err)
}

func TestArtifact(t *testing.T) {
	boom := errors.New("captions disabled")
	src, _ := newTestSource(t, TranscriptFunc(func(_ context.Context, id string) (string, error) {
		if id == "bad" {
			return "", boom
		}
		return "transcript of " + id, nil
	}))
	ctx := context.Background()

	text, err := src.Artifact(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "transcript of v1", text)

	_, err = src.Artifact(ctx, "bad")
	assert.ErrorIs(t, err, boom)
}

func TestArtifactCancelledBeforeFetch(t *testing.T) {
	called := false
	src, _ := newTestSource(t, TranscriptFunc(func(context.Context, string) (string, error) {
		called = true
		return "", nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.Artifact(ctx, "v1")
	assert.Error(t, err)
	assert.False(t, called)
}

func TestAPIErrorIsWrapped(t *testing.T) {
	api := &fakeAPI{queries: map[string][]string{}}
	srv := httptest.NewServer(api)
	defer srv.Close()

	src, err := New(context.Background(), Options{
		APIKey:     "wrong",
		Endpoint:   srv.URL + "/",
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	_, err = src.Collection(context.Background(), "UCknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channels.list")
}
