// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		in       Input
		want     Mode
		embedRaw bool
	}{
		{"plain text, no dataset", Input{Text: "what's a good video length?"}, ModeGeneration, false},
		{"record dataset, plain question", Input{Text: "which video did best?", HasRecordDataset: true}, ModeJSONTools, false},
		{"record dataset, code words ignored", Input{Text: "calculate the average views", HasRecordDataset: true}, ModeJSONTools, false},
		{"record dataset, plot vocabulary", Input{Text: "show a histogram of views", HasRecordDataset: true}, ModeCodeExecution, false},
		{"record dataset, image request", Input{Text: "generate an image of a thumbnail", HasRecordDataset: true}, ModeJSONTools, false},
		{"record wins over tabular", Input{Text: "stats please", HasRecordDataset: true, HasTabularDataset: true}, ModeJSONTools, false},
		{"tabular from earlier turn", Input{Text: "average of column b?", HasTabularDataset: true}, ModeCSVTools, false},
		{"fresh tabular, plain", Input{Text: "what's in here?", HasTabularDataset: true, TabularFresh: true}, ModeGeneration, false},
		{"fresh tabular, plot", Input{Text: "fit a linear regression", HasTabularDataset: true, TabularFresh: true}, ModeCodeExecution, true},
		{"tabular, plot", Input{Text: "draw a scatter of x vs y", HasTabularDataset: true}, ModeCodeExecution, false},
		{"code, no dataset", Input{Text: "write a Python script for primes"}, ModeCodeExecution, false},
		{"image vocabulary", Input{Text: "Create an image of a red fox"}, ModeImageGeneration, false},
		{"draw", Input{Text: "draw me a cat"}, ModeImageGeneration, false},
		{"attached image, edit verb", Input{Text: "make it look like winter", HasImage: true}, ModeImageGeneration, false},
		{"attached image, question", Input{Text: "what is this?", HasImage: true}, ModeGeneration, false},
		{"edit verb without image", Input{Text: "make it look like winter"}, ModeGeneration, false},
		{"distribution matches stem", Input{Text: "view distribution"}, ModeCodeExecution, false},
	}
	v := DefaultVocabulary()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Classify(v, tt.in)
			assert.Equal(t, tt.want, d.Mode, "reason: %s", d.Reason)
			assert.Equal(t, tt.embedRaw, d.EmbedRaw)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestClassify_WantsImageInsideToolMode(t *testing.T) {
	d := Classify(DefaultVocabulary(), Input{Text: "generate an image for the top video", HasRecordDataset: true})
	assert.Equal(t, ModeJSONTools, d.Mode)
	assert.True(t, d.WantsImage)
}

func TestModeString(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{ModeGeneration, "generation"},
		{ModeJSONTools, "json_tools"},
		{ModeCSVTools, "csv_tools"},
		{ModeCodeExecution, "code_execution"},
		{ModeImageGeneration, "image_generation"},
		{Mode(99), "Mode(99)"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("Mode(%d).String() = %q, want %q", tt.mode, got, tt.want)
		}
	}
	assert.True(t, ModeCSVTools.UsesTools())
	assert.False(t, ModeImageGeneration.Streams())
}

func TestCompile(t *testing.T) {
	v, err := Compile(Spec{Plot: []string{`\bsparkline\b`}})
	require.NoError(t, err)
	assert.Len(t, v.Plot, 1)
	assert.Equal(t, "sparkline", v.Plot.Match("Add a SPARKLINE"))
	assert.Equal(t, "", v.Plot.Match("histogram"), "custom table replaces the default")
	assert.NotEmpty(t, v.Code, "empty tables fall back to defaults")

	_, err = Compile(Spec{Plot: []string{"("}, Image: []string{"[a-"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plot_patterns[0]")
	assert.Contains(t, err.Error(), "image_patterns[0]")
}

func TestRouter_SetVocabulary(t *testing.T) {
	r := New(nil, nil)
	in := Input{Text: "sparkline of views"}
	assert.Equal(t, ModeGeneration, r.Classify(in).Mode)

	custom, err := Compile(Spec{Plot: []string{`sparkline`}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Classify(in)
		}()
	}
	r.SetVocabulary(custom)
	wg.Wait()

	assert.Equal(t, ModeCodeExecution, r.Classify(in).Mode)
	assert.Same(t, custom, r.Vocabulary())
}
