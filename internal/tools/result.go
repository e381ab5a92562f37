// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"github.com/jeranaias/channelchat/internal/dataset"
)

// Chart and card kinds.
const (
	ChartMetricVsTime = "metric_vs_time"
	CardVideo         = "video"
	CardRecord        = "record"
)

// =============================================================================
// RESULT UNION
// =============================================================================

// Result is the tagged outcome of one tool call. Exactly one of ErrorResult,
// StatsResult, ChartResult, CardResult or ImageRequest.
type Result interface {
	// Payload is the structured response handed back to the model.
	Payload() map[string]any
	isResult()
}

// ErrorResult reports a resolution failure (unknown field, no matching
// record). It is folded into the answer, never raised.
type ErrorResult struct {
	Message string `json:"message"`
}

// StatsResult holds descriptive statistics, rounded to four decimals.
type StatsResult struct {
	Field  string  `json:"field"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Point is one chart sample.
type Point struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// ChartResult is a date-ordered series for the chart widget.
type ChartResult struct {
	Kind   string  `json:"kind"`
	Metric string  `json:"metric"`
	Title  string  `json:"title"`
	Series []Point `json:"series"`
}

// CardResult is a single resolved record for the card widget.
type CardResult struct {
	Kind   string         `json:"kind"`
	Index  int            `json:"index"`
	Record dataset.Record `json:"record"`
}

// ImageRequest carries a prompt for the image generator.
type ImageRequest struct {
	Prompt string `json:"prompt"`
}

func (ErrorResult) isResult()  {}
func (StatsResult) isResult()  {}
func (ChartResult) isResult()  {}
func (CardResult) isResult()   {}
func (ImageRequest) isResult() {}

// Payload implements Result.
func (r ErrorResult) Payload() map[string]any {
	return map[string]any{"error": r.Message}
}

// Payload implements Result.
func (r StatsResult) Payload() map[string]any {
	return map[string]any{
		"field":  r.Field,
		"count":  r.Count,
		"mean":   r.Mean,
		"median": r.Median,
		"std":    r.Std,
		"min":    r.Min,
		"max":    r.Max,
	}
}

// Payload implements Result.
func (r ChartResult) Payload() map[string]any {
	data := make([]any, len(r.Series))
	for i, p := range r.Series {
		data[i] = map[string]any{"date": p.Date, "value": p.Value, "label": p.Label}
	}
	return map[string]any{
		"chart_type": r.Kind,
		"metric":     r.Metric,
		"title":      r.Title,
		"data":       data,
	}
}

// Payload implements Result.
func (r CardResult) Payload() map[string]any {
	out := make(map[string]any, len(r.Record)+2)
	for k, v := range r.Record {
		out[k] = v
	}
	out["card_type"] = r.Kind
	out["index"] = r.Index
	return out
}

// Payload implements Result.
func (r ImageRequest) Payload() map[string]any {
	return map[string]any{"image_requested": true, "prompt": r.Prompt}
}

// IsError reports whether r is an ErrorResult.
func IsError(r Result) bool {
	_, ok := r.(ErrorResult)
	return ok
}
