// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"encoding/json"
	"fmt"
)

// maxStringLength bounds any single string argument.
const maxStringLength = 64 * 1024

// =============================================================================
// TYPED ARGUMENTS
// =============================================================================

// Args is the typed argument set of one tool call. The concrete type is
// determined by the tool name.
type Args interface {
	ToolName() string
}

// StatsArgs are the arguments of compute_stats.
type StatsArgs struct {
	Field string
}

// PlotArgs are the arguments of plot_metric_vs_time.
type PlotArgs struct {
	Metric string
	Title  string
}

// LookupArgs are the arguments of lookup_record.
type LookupArgs struct {
	Query string
}

// ImageArgs are the arguments of request_image.
type ImageArgs struct {
	Prompt string
}

func (StatsArgs) ToolName() string  { return NameComputeStats }
func (PlotArgs) ToolName() string   { return NamePlot }
func (LookupArgs) ToolName() string { return NameLookup }
func (ImageArgs) ToolName() string  { return NameRequestImage }

// ParseArgs validates raw model-supplied arguments against the tool's schema
// and converts them to the tool's typed Args variant.
func ParseArgs(tool *Tool, raw map[string]any) (Args, error) {
	if err := ValidateToolArgs(&tool.Schema, raw); err != nil {
		return nil, err
	}
	str := func(name string) string {
		s, _ := raw[name].(string)
		return s
	}
	switch tool.Name {
	case NameComputeStats:
		return StatsArgs{Field: str("field")}, nil
	case NamePlot:
		return PlotArgs{Metric: str("metric"), Title: str("title")}, nil
	case NameLookup:
		return LookupArgs{Query: str("query")}, nil
	case NameRequestImage:
		return ImageArgs{Prompt: str("prompt")}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, tool.Name)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a parameter validation error.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Param + ": " + e.Message
}

// ValidateToolArgs validates tool arguments against a schema before execution.
// It checks required parameters, types, enum membership and string length.
func ValidateToolArgs(schema *Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}

	for _, param := range schema.Parameters {
		val, exists := args[param.Name]

		if param.Required && (!exists || val == nil) {
			return &ValidationError{
				Param:   param.Name,
				Message: "missing required argument",
			}
		}

		// Skip validation for optional parameters that aren't provided
		if !exists || val == nil {
			continue
		}

		if err := validateArgType(param, val); err != nil {
			return err
		}

		if s, ok := val.(string); ok {
			if param.Required && s == "" {
				return &ValidationError{
					Param:   param.Name,
					Message: "must not be empty",
				}
			}
			if len(s) > maxStringLength {
				return &ValidationError{
					Param:   param.Name,
					Message: "string value exceeds maximum length",
				}
			}
			if len(param.Enum) > 0 && !contains(param.Enum, s) {
				return &ValidationError{
					Param:   param.Name,
					Message: fmt.Sprintf("must be one of %v", param.Enum),
				}
			}
		}
	}

	return nil
}

// validateArgType validates the type of an argument.
func validateArgType(param Parameter, val any) error {
	switch param.Type {
	case "string":
		if _, ok := val.(string); !ok {
			return &ValidationError{
				Param:   param.Name,
				Message: "expected string type",
			}
		}
	case "number", "integer":
		switch val.(type) {
		case int, int64, int32, float64, float32, json.Number:
			// OK
		default:
			return &ValidationError{
				Param:   param.Name,
				Message: "expected number type",
			}
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return &ValidationError{
				Param:   param.Name,
				Message: "expected boolean type",
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
