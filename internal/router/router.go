// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/jeranaias/channelchat/internal/util"
)

// Router classifies turns. It is safe for concurrent use; the vocabulary
// can be swapped while classifications are in flight.
type Router struct {
	vocab  atomic.Pointer[Vocabulary]
	logger *zap.Logger
}

// New creates a router. A nil vocabulary means DefaultVocabulary.
func New(v *Vocabulary, logger *zap.Logger) *Router {
	if v == nil {
		v = DefaultVocabulary()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{logger: logger}
	r.vocab.Store(v)
	return r
}

// SetVocabulary atomically replaces the pattern tables.
func (r *Router) SetVocabulary(v *Vocabulary) {
	if v != nil {
		r.vocab.Store(v)
	}
}

// Vocabulary returns the tables currently in use.
func (r *Router) Vocabulary() *Vocabulary {
	return r.vocab.Load()
}

// Classify selects exactly one mode for the turn.
func (r *Router) Classify(in Input) Decision {
	d := Classify(r.vocab.Load(), in)
	r.logger.Debug("MODE_SELECTED",
		zap.Stringer("mode", d.Mode),
		zap.String("reason", d.Reason),
		zap.String("text", util.TruncateRunes(in.Text, 80)))
	return d
}

// Classify evaluates the decision rules against v in priority order.
func Classify(v *Vocabulary, in Input) Decision {
	hasDataset := in.HasRecordDataset || in.HasTabularDataset

	var d Decision
	d.Signals.Plot = v.Plot.Match(in.Text)
	if !hasDataset {
		d.Signals.Code = v.Code.Match(in.Text)
	}
	d.Signals.Image = v.Image.Match(in.Text)
	if d.Signals.Image == "" && in.HasImage {
		d.Signals.Image = v.ImageEdit.Match(in.Text)
	}
	d.WantsImage = d.Signals.Image != ""

	analysis := d.Signals.Plot != "" || d.Signals.Code != ""

	switch {
	case in.HasRecordDataset && !analysis:
		d.Mode = ModeJSONTools
		d.Reason = "record dataset attached"
	case in.HasTabularDataset && !in.TabularFresh && !analysis:
		d.Mode = ModeCSVTools
		d.Reason = "tabular dataset attached"
	case analysis:
		d.Mode = ModeCodeExecution
		d.Reason = "plot vocabulary: " + d.Signals.Plot
		if d.Signals.Plot == "" {
			d.Reason = "code vocabulary: " + d.Signals.Code
		}
		d.EmbedRaw = in.HasTabularDataset && in.TabularFresh && d.Signals.Plot != ""
	case d.WantsImage:
		d.Mode = ModeImageGeneration
		d.Reason = "image vocabulary: " + d.Signals.Image
	default:
		d.Mode = ModeGeneration
		d.Reason = "default"
	}
	return d
}
