// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools provides the analytics tool system the chat model calls
// against an attached dataset.
//
// Every tool is a pure function of (dataset, arguments): no hidden state,
// safe to retry. Arguments are validated against the tool's schema and
// converted to a typed Args variant before execution; results are a tagged
// Result union rather than an open map.
//
// # Key Types
//
//   - Tool: name, description, parameter schema and executor
//   - Registry: an ordered tool catalog (RecordCatalog, TabularCatalog)
//   - Args: StatsArgs, PlotArgs, LookupArgs, ImageArgs
//   - Result: ErrorResult, StatsResult, ChartResult, CardResult, ImageRequest
//   - Executor: resolves, validates and runs one model tool call
//   - Loop: the iterative tool-calling protocol for one user turn
//
// # Available Tools
//
//   - compute_stats: count, mean, median, population std, min, max of a field
//   - plot_metric_vs_time: date-sorted series of a numeric field
//   - lookup_record: one record by ordinal, superlative or fuzzy title
//   - request_image: passthrough marker for the image generator
package tools
