// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/channelchat/internal/llm"
)

func TestRegistryCatalogs(t *testing.T) {
	assert.Equal(t, []string{NameComputeStats, NamePlot, NameLookup, NameRequestImage}, RecordCatalog().Names())
	assert.Equal(t, []string{NameComputeStats, NamePlot}, TabularCatalog().Names())

	specs := RecordCatalog().Specs()
	require.Len(t, specs, 4)
	assert.Equal(t, "field", specs[0].Params[0].Name)
	assert.True(t, specs[0].Params[0].Required)
	assert.False(t, specs[1].Params[1].Required, "plot title is optional")
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		tool    *Tool
		raw     map[string]any
		want    Args
		wantErr string
	}{
		{"stats", ComputeStatsTool, map[string]any{"field": "views"}, StatsArgs{Field: "views"}, ""},
		{"plot with title", PlotTool, map[string]any{"metric": "m", "title": "T"}, PlotArgs{Metric: "m", Title: "T"}, ""},
		{"plot without title", PlotTool, map[string]any{"metric": "m"}, PlotArgs{Metric: "m"}, ""},
		{"lookup", LookupTool, map[string]any{"query": "first"}, LookupArgs{Query: "first"}, ""},
		{"image", RequestImageTool, map[string]any{"prompt": "a cat"}, ImageArgs{Prompt: "a cat"}, ""},
		{"missing", ComputeStatsTool, map[string]any{}, nil, "field: missing required argument"},
		{"wrong type", ComputeStatsTool, map[string]any{"field": 3.0}, nil, "field: expected string type"},
		{"empty", LookupTool, map[string]any{"query": ""}, nil, "query: must not be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArgs(tt.tool, tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.wantErr, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.tool.Name, got.ToolName())
		})
	}
}

func TestValidateToolArgs_Enum(t *testing.T) {
	schema := &Schema{Parameters: []Parameter{{Name: "unit", Type: "string", Enum: []string{"s", "m"}}}}
	assert.NoError(t, ValidateToolArgs(schema, map[string]any{"unit": "s"}))
	assert.Error(t, ValidateToolArgs(schema, map[string]any{"unit": "h"}))

	num := &Schema{Parameters: []Parameter{{Name: "n", Type: "number"}}}
	assert.NoError(t, ValidateToolArgs(num, map[string]any{"n": json.Number("4")}))
	assert.Error(t, ValidateToolArgs(num, map[string]any{"n": "4"}))
}

func TestExecutor_Execute(t *testing.T) {
	ds := loadChannel(t)
	e := NewExecutor(RecordCatalog(), nil)

	inv := e.Execute(ds, llm.ToolCall{ID: "c1", Name: NameLookup, Args: map[string]any{"query": "first"}})
	assert.Equal(t, "c1", inv.ID)
	assert.Equal(t, LookupArgs{Query: "first"}, inv.Args)
	card, ok := inv.Result.(CardResult)
	require.True(t, ok)
	assert.Equal(t, 0, card.Index)

	resp := inv.Response()
	assert.Equal(t, "c1", resp.ID)
	assert.Equal(t, NameLookup, resp.Name)
	assert.Equal(t, "a", resp.Payload["video_id"])
}

func TestExecutor_Failures(t *testing.T) {
	ds := loadChannel(t)
	e := NewExecutor(TabularCatalog(), nil)

	tests := []struct {
		name string
		call llm.ToolCall
		want string
	}{
		{"unknown tool", llm.ToolCall{Name: "rm_rf"}, "unknown tool: rm_rf"},
		{"outside catalog", llm.ToolCall{Name: NameRequestImage, Args: map[string]any{"prompt": "x"}}, "unknown tool: request_image"},
		{"bad args", llm.ToolCall{Name: NameComputeStats, Args: map[string]any{}}, "parameter validation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := e.Execute(ds, tt.call)
			er, ok := inv.Result.(ErrorResult)
			require.True(t, ok)
			assert.Contains(t, er.Message, tt.want)
			assert.NotEmpty(t, inv.ID, "missing ids are generated")
		})
	}
}

func TestExecutor_NoDataset(t *testing.T) {
	e := NewExecutor(RecordCatalog(), nil)

	inv := e.Execute(nil, llm.ToolCall{Name: NameComputeStats, Args: map[string]any{"field": "x"}})
	assert.True(t, IsError(inv.Result))

	inv = e.Execute(nil, llm.ToolCall{Name: NameRequestImage, Args: map[string]any{"prompt": "a boat"}})
	assert.Equal(t, ImageRequest{Prompt: "a boat"}, inv.Result)
}
