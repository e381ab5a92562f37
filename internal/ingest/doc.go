// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ingest harvests a video channel into an ordered item collection
// while streaming progress to one consumer.
//
// A Job moves through a linear state machine:
//
//	Resolving -> Listing -> FetchingDetails -> FetchingArtifacts -> Complete
//
// with an early exit to Failed (resolution, listing or detail failure) or
// Cancelled (the consumer went away or the context ended) from any
// non-terminal state. Per-item artifact (transcript) failures never fail the
// job; they are recorded on the item as an Artifact with Err set.
//
// Cancellation is cooperative: the pipeline checks its context before every
// outbound call and stops scheduling calls once it is done. No event is sent
// after cancellation.
//
// # Usage
//
//	p := ingest.NewPipeline(source, ingest.WithLogger(logger))
//	job, err := p.Run(ctx, ingest.Request{Reference: url, Limit: 25}, func(ev ingest.Event) error {
//	    return sse.Send(ev)
//	})
package ingest
