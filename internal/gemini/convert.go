// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"strings"

	"google.golang.org/genai"

	"github.com/jeranaias/channelchat/internal/llm"
)

// =============================================================================
// REQUEST CONVERSION
// =============================================================================

func contents(msgs []llm.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		c := &genai.Content{Role: string(m.Role)}
		if m.Text != "" {
			c.Parts = append(c.Parts, &genai.Part{Text: m.Text})
		}
		for _, img := range m.Images {
			c.Parts = append(c.Parts, &genai.Part{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}})
		}
		for _, call := range m.Calls {
			c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
				ID:   call.ID,
				Name: call.Name,
				Args: call.Args,
			}})
		}
		for _, r := range m.Responses {
			c.Parts = append(c.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       r.ID,
				Name:     r.Name,
				Response: r.Payload,
			}})
		}
		if len(c.Parts) == 0 {
			continue
		}
		out = append(out, c)
	}
	return out
}

func declarations(fns []llm.FunctionSpec) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(fns))
	for _, fn := range fns {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(fn.Params)),
		}
		for _, p := range fn.Params {
			schema.Properties[p.Name] = &genai.Schema{
				Type:        schemaType(p.Type),
				Description: p.Description,
				Enum:        p.Enum,
			}
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		out = append(out, &genai.FunctionDeclaration{
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  schema,
		})
	}
	return out
}

func schemaType(t string) genai.Type {
	switch t {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// =============================================================================
// RESPONSE CONVERSION
// =============================================================================

// candidateParts returns the parts of the first candidate, skipping thoughts.
func candidateParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var out []*genai.Part
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		out = append(out, p)
	}
	return out
}

func text(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, p := range candidateParts(resp) {
		b.WriteString(p.Text)
	}
	return b.String()
}

func toolReply(resp *genai.GenerateContentResponse) llm.ToolReply {
	var reply llm.ToolReply
	var b strings.Builder
	for _, p := range candidateParts(resp) {
		if p.FunctionCall != nil {
			reply.Calls = append(reply.Calls, llm.ToolCall{
				ID:   p.FunctionCall.ID,
				Name: p.FunctionCall.Name,
				Args: p.FunctionCall.Args,
			})
			continue
		}
		b.WriteString(p.Text)
	}
	reply.Text = b.String()
	return reply
}

func parts(resp *genai.GenerateContentResponse) []llm.Part {
	var out []llm.Part
	for _, p := range candidateParts(resp) {
		switch {
		case p.ExecutableCode != nil:
			out = append(out, llm.Part{
				Kind:     llm.PartCode,
				Code:     p.ExecutableCode.Code,
				Language: string(p.ExecutableCode.Language),
			})
		case p.CodeExecutionResult != nil:
			out = append(out, llm.Part{
				Kind:    llm.PartCodeResult,
				Outcome: string(p.CodeExecutionResult.Outcome),
				Output:  p.CodeExecutionResult.Output,
			})
		case p.InlineData != nil:
			out = append(out, llm.Part{
				Kind:  llm.PartImage,
				Image: &llm.Image{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data},
			})
		case p.Text != "":
			out = append(out, llm.Part{Kind: llm.PartText, Text: p.Text})
		}
	}
	return out
}

// appendParts adds streamed parts, merging consecutive text deltas into one part.
func appendParts(acc, next []llm.Part) []llm.Part {
	for _, p := range next {
		if n := len(acc); n > 0 && p.Kind == llm.PartText && acc[n-1].Kind == llm.PartText {
			acc[n-1].Text += p.Text
			continue
		}
		acc = append(acc, p)
	}
	return acc
}

func grounding(resp *genai.GenerateContentResponse) *llm.Grounding {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	md := resp.Candidates[0].GroundingMetadata

	g := &llm.Grounding{Queries: md.WebSearchQueries}
	for _, ch := range md.GroundingChunks {
		if ch == nil || ch.Web == nil {
			continue
		}
		g.Sources = append(g.Sources, llm.GroundingSource{URI: ch.Web.URI, Title: ch.Web.Title})
	}
	if len(g.Sources) == 0 && len(g.Queries) == 0 {
		return nil
	}
	return g
}

func imageResult(resp *genai.GenerateContentResponse) llm.ImageResult {
	var result llm.ImageResult
	var texts []string
	for _, p := range candidateParts(resp) {
		if p.InlineData != nil {
			result.Images = append(result.Images, llm.Image{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data})
			continue
		}
		if t := strings.TrimSpace(p.Text); t != "" {
			texts = append(texts, t)
		}
	}
	result.Text = strings.Join(texts, "\n")
	return result
}
