// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"strings"

	"github.com/jeranaias/channelchat/internal/dataset"
	"github.com/jeranaias/channelchat/internal/llm"
)

// Tool names.
const (
	NameComputeStats = "compute_stats"
	NamePlot         = "plot_metric_vs_time"
	NameLookup       = "lookup_record"
	NameRequestImage = "request_image"
)

// =============================================================================
// TOOL DEFINITION
// =============================================================================

// Tool represents an executable tool.
type Tool struct {
	// Name is the identifier the model calls.
	Name string

	// Description explains when the model should call the tool.
	Description string

	// Schema defines the tool's parameters
	Schema Schema

	// Executor handles the actual execution
	Executor ToolExecutor
}

// Schema defines a tool's parameters.
type Schema struct {
	Parameters []Parameter
}

// Parameter defines a single tool parameter.
type Parameter struct {
	// Name of the parameter
	Name string

	// Type is the parameter type ("string", "number", "boolean")
	Type string

	// Required indicates if the parameter must be provided
	Required bool

	// Description explains the parameter
	Description string

	// Enum contains allowed values for string type (optional)
	Enum []string
}

// Spec converts the tool to the provider-neutral function declaration.
func (t *Tool) Spec() llm.FunctionSpec {
	params := make([]llm.Param, 0, len(t.Schema.Parameters))
	for _, p := range t.Schema.Parameters {
		params = append(params, llm.Param{
			Name:        p.Name,
			Type:        p.Type,
			Description: p.Description,
			Required:    p.Required,
			Enum:        p.Enum,
		})
	}
	return llm.FunctionSpec{
		Name:        t.Name,
		Description: t.Description,
		Params:      params,
	}
}

// =============================================================================
// TOOL EXECUTOR INTERFACE
// =============================================================================

// ToolExecutor is the interface for individual tool execution. Executors
// receive already-validated, typed arguments and never return a Go error:
// resolution failures are ErrorResult values.
type ToolExecutor interface {
	Execute(ds *dataset.Dataset, args Args) Result
}

// ExecutorFunc adapts a plain function to ToolExecutor.
type ExecutorFunc func(ds *dataset.Dataset, args Args) Result

// Execute calls f.
func (f ExecutorFunc) Execute(ds *dataset.Dataset, args Args) Result { return f(ds, args) }

// =============================================================================
// TOOL REGISTRY
// =============================================================================

// Registry is an ordered tool catalog.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// NewRegistry creates a registry holding the given tools in order.
func NewRegistry(tools ...*Tool) *Registry {
	r := &Registry{tools: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// RecordCatalog is the catalog exposed for record-oriented datasets.
func RecordCatalog() *Registry {
	return NewRegistry(ComputeStatsTool, PlotTool, LookupTool, RequestImageTool)
}

// TabularCatalog is the catalog exposed for tabular datasets: statistics and
// plotting only, no image generation.
func TabularCatalog() *Registry {
	return NewRegistry(ComputeStatsTool, PlotTool)
}

// Register adds a tool to the registry, replacing any tool of the same name.
func (r *Registry) Register(tool *Tool) {
	if _, exists := r.tools[tool.Name]; !exists {
		r.order = append(r.order, tool.Name)
	}
	r.tools[tool.Name] = tool
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// All returns all registered tools in registration order.
func (r *Registry) All() []*Tool {
	result := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.tools[name])
	}
	return result
}

// Names returns the registered tool names in order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Specs returns the function declarations for every registered tool.
func (r *Registry) Specs() []llm.FunctionSpec {
	specs := make([]llm.FunctionSpec, 0, len(r.order))
	for _, t := range r.All() {
		specs = append(specs, t.Spec())
	}
	return specs
}

// =============================================================================
// BUILT-IN TOOL DEFINITIONS
// =============================================================================

const fieldNote = "Use the exact field name from the dataset synopsis (e.g. view_count, like_count, comment_count, duration)."

// ComputeStatsTool computes descriptive statistics for a numeric field.
var ComputeStatsTool = &Tool{
	Name: NameComputeStats,
	Description: strings.Join([]string{
		"Compute descriptive statistics (count, mean, median, std, min, max) for a numeric field of the attached dataset.",
		"Call this when the user asks for statistics, an average, a distribution or a summary of a numeric field.",
		fieldNote,
	}, " "),
	Schema: Schema{
		Parameters: []Parameter{
			{
				Name:        "field",
				Type:        "string",
				Required:    true,
				Description: "Numeric field name from the dataset.",
			},
		},
	},
	Executor: ExecutorFunc(func(ds *dataset.Dataset, args Args) Result {
		return ComputeStats(ds, args.(StatsArgs))
	}),
}

// PlotTool extracts a date-sorted series for charting.
var PlotTool = &Tool{
	Name: NamePlot,
	Description: strings.Join([]string{
		"Plot a numeric field (views, likes, comments, duration, etc.) against release date.",
		"Produces a time-series chart shown in the chat.",
		fieldNote,
	}, " "),
	Schema: Schema{
		Parameters: []Parameter{
			{
				Name:        "metric",
				Type:        "string",
				Required:    true,
				Description: "Field name to plot on the Y axis.",
			},
			{
				Name:        "title",
				Type:        "string",
				Description: `Chart title (e.g. "Views Over Time").`,
			},
		},
	},
	Executor: ExecutorFunc(func(ds *dataset.Dataset, args Args) Result {
		return PlotMetricVsTime(ds, args.(PlotArgs))
	}),
}

// LookupTool resolves one record and returns it as a card.
var LookupTool = &Tool{
	Name: NameLookup,
	Description: strings.Join([]string{
		"Find one video in the attached data and show it as a clickable card.",
		`The user may name it by partial title ("play the asbestos video"), ordinal ("the first video", "last")`,
		`or by metric ("most viewed", "least liked", "longest", "newest").`,
	}, " "),
	Schema: Schema{
		Parameters: []Parameter{
			{
				Name:        "query",
				Type:        "string",
				Required:    true,
				Description: `Partial title, ordinal like "first"/"third"/"last", or metric phrase like "most viewed".`,
			},
		},
	},
	Executor: ExecutorFunc(func(ds *dataset.Dataset, args Args) Result {
		return LookupRecord(ds, args.(LookupArgs))
	}),
}

// RequestImageTool asks the image generator for a picture.
var RequestImageTool = &Tool{
	Name: NameRequestImage,
	Description: strings.Join([]string{
		"Generate an image from a text prompt, optionally editing the image the user attached.",
		"Use this only when the user explicitly asks to generate, create, make or edit an image.",
	}, " "),
	Schema: Schema{
		Parameters: []Parameter{
			{
				Name:        "prompt",
				Type:        "string",
				Required:    true,
				Description: "Detailed description of the image to generate or of how to modify the attached image.",
			},
		},
	},
	Executor: ExecutorFunc(func(_ *dataset.Dataset, args Args) Result {
		return ImageRequest{Prompt: args.(ImageArgs).Prompt}
	}),
}
