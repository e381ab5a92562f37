// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"regexp"
	"strconv"
	"strings"
)

// WatchURLPrefix is prepended to an item id to form its public URL.
const WatchURLPrefix = "https://www.youtube.com/watch?v="

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)(?:\.\d+)?S)?)?$`)

// Thumbnail resolutions, best first.
var thumbnailPreference = []string{"maxres", "standard", "high", "medium", "default"}

// ParseDuration converts an ISO-8601 duration such as PT1H2M3S into whole
// seconds. Every component is optional; anything unparseable is 0.
func ParseDuration(s string) int {
	m := isoDuration.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil {
		return 0
	}
	days := atoi(m[1])
	hours := atoi(m[2])
	minutes := atoi(m[3])
	seconds := atoi(m[4])
	return ((days*24+hours)*60+minutes)*60 + seconds
}

// ParseCount parses a non-negative counter; absent or malformed is 0.
func ParseCount(s string) int64 {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 63)
	if err != nil {
		return 0
	}
	return int64(n)
}

// BestThumbnail picks the highest-resolution thumbnail URL, or "".
func BestThumbnail(thumbs map[string]string) string {
	for _, res := range thumbnailPreference {
		if u := thumbs[res]; u != "" {
			return u
		}
	}
	return ""
}

// DateOnly truncates an RFC 3339 timestamp to its YYYY-MM-DD prefix.
func DateOnly(ts string) string {
	if date, _, ok := strings.Cut(ts, "T"); ok {
		return date
	}
	return ts
}

// Normalize converts source metadata into an Item without an artifact.
func Normalize(raw RawItem) Item {
	return Item{
		ID:           raw.ID,
		Title:        raw.Title,
		Description:  raw.Description,
		Artifact:     Artifact{Err: ErrArtifactUnavailable},
		Duration:     ParseDuration(raw.Duration),
		DurationISO:  raw.Duration,
		ReleaseDate:  DateOnly(raw.PublishedAt),
		ViewCount:    ParseCount(raw.ViewCount),
		LikeCount:    ParseCount(raw.LikeCount),
		CommentCount: ParseCount(raw.CommentCount),
		URL:          WatchURLPrefix + raw.ID,
		Thumbnail:    BestThumbnail(raw.Thumbnails),
	}
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
