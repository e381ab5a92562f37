// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package youtube implements ingest.Source on top of the YouTube Data API
// and the public transcript endpoint.
//
// Listing and metadata go through google.golang.org/api/youtube/v3;
// transcripts are scraped with github.com/kkdai/youtube/v2 because the Data
// API only exposes captions to the channel owner.
//
// # Key Types
//
//   - Source: the ingest.Source implementation
//   - Options: API key, transcript language, endpoint override
//   - TranscriptFetcher: artifact fetch seam (kkdai client by default)
//
// # Usage
//
//	src, err := youtube.New(ctx, youtube.Options{APIKey: key})
//	if err != nil {
//	    return err
//	}
//	job, err := ingest.NewPipeline(src).Run(ctx, req, emit)
package youtube
