// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ============================================================================
// PATTERN TABLES
// ============================================================================

// Pattern is one named entry of a vocabulary table.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

// Table is an ordered pattern list; the first match wins.
type Table []Pattern

// Match returns the name of the first pattern matching s, or "".
func (t Table) Match(s string) string {
	for _, p := range t {
		if p.Re.MatchString(s) {
			return p.Name
		}
	}
	return ""
}

// Vocabulary groups the tables classification consults.
type Vocabulary struct {
	// Plot is the numeric/statistical-plot vocabulary.
	Plot Table
	// Code is the broader "needs executable analysis code" vocabulary.
	Code Table
	// Image is the image-generation vocabulary.
	Image Table
	// ImageEdit are verbs that request image generation when an image is attached.
	ImageEdit Table
}

// Spec is the uncompiled form of a Vocabulary, as read from configuration.
// Empty tables fall back to the defaults.
type Spec struct {
	Plot      []string `toml:"plot_patterns" json:"plot_patterns"`
	Code      []string `toml:"code_patterns" json:"code_patterns"`
	Image     []string `toml:"image_patterns" json:"image_patterns"`
	ImageEdit []string `toml:"image_edit_patterns" json:"image_edit_patterns"`
}

// DefaultSpec returns the built-in pattern tables.
func DefaultSpec() Spec {
	return Spec{
		Plot: []string{
			`\bregression\b`,
			`\bscatter\b`,
			`\bhistogram\b`,
			`\bseaborn\b`,
			`\bmatplotlib\b`,
			`\bnumpy\b`,
			`\btime.?series\b`,
			`\bheatmap\b`,
			`\bbox.?plot\b`,
			`\bviolin\b`,
			`\bdistribut\w*`,
			`\blinear.?model\b`,
			`\blogistic\b`,
			`\bforecast\w*`,
			`\btrend.?line\b`,
		},
		Code: []string{
			`\bpython\b`,
			`\b(write|run|execute)\s+(some\s+)?code\b`,
			`\bscript\b`,
			`\bpandas\b`,
			`\bdataframe\b`,
			`\bcalculat\w*`,
			`\bcomput\w*`,
			`\bsimulat\w*`,
			`\bsolve\b`,
		},
		Image: []string{
			`\b(generate|create|make)\s+(an?\s+)?(image|picture)\b`,
			`\bdraw\b`,
		},
		ImageEdit: []string{
			`\b(generate|create|make|edit|transform|modify)\b`,
		},
	}
}

// DefaultVocabulary compiles DefaultSpec.
func DefaultVocabulary() *Vocabulary {
	v, err := Compile(DefaultSpec())
	if err != nil {
		panic(fmt.Sprintf("router: default vocabulary: %v", err))
	}
	return v
}

// Compile turns a Spec into a Vocabulary. Matching is case-insensitive.
// All invalid patterns are reported together.
func Compile(spec Spec) (*Vocabulary, error) {
	def := DefaultSpec()
	var errs []error
	build := func(table string, patterns, fallback []string) Table {
		if len(patterns) == 0 {
			patterns = fallback
		}
		out := make(Table, 0, len(patterns))
		for i, src := range patterns {
			re, err := regexp.Compile("(?i)" + src)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s[%d]: %w", table, i, err))
				continue
			}
			out = append(out, Pattern{Name: patternName(src), Re: re})
		}
		return out
	}

	v := &Vocabulary{
		Plot:      build("plot_patterns", spec.Plot, def.Plot),
		Code:      build("code_patterns", spec.Code, def.Code),
		Image:     build("image_patterns", spec.Image, def.Image),
		ImageEdit: build("image_edit_patterns", spec.ImageEdit, def.ImageEdit),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return v, nil
}

// patternName strips word-boundary noise so decisions read cleanly in logs.
func patternName(src string) string {
	return strings.ReplaceAll(src, `\b`, "")
}
