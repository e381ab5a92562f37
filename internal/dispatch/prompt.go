// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/jeranaias/channelchat/internal/dataset"
	"github.com/jeranaias/channelchat/internal/router"
	"github.com/jeranaias/channelchat/internal/session"
)

// Default prompts for turns that carry only attachments.
const (
	DefaultImagePrompt   = "What do you see in this image?"
	DefaultRecordsPrompt = "I have uploaded channel data as JSON. What can you tell me about it?"
	DefaultTabularPrompt = "Please analyze this CSV data."

	// DefaultImageAnswer is the answer when image generation returns no text.
	DefaultImageAnswer = "Here is the generated image:"
)

// Placeholders stored as the user's visible content for attachment-only turns.
const (
	imagePlaceholder   = "(Image)"
	recordsPlaceholder = "(JSON attached)"
	tabularPlaceholder = "(CSV attached)"
)

const sectionBreak = "\n\n---\n\n"

// UserContent is the user's message as shown in the transcript.
func UserContent(text string, turn *session.Turn) string {
	if text != "" {
		return text
	}
	switch {
	case len(turn.Images) > 0:
		return imagePlaceholder
	case turn.RecordsFresh:
		return recordsPlaceholder
	default:
		return tabularPlaceholder
	}
}

// BuildPrompt assembles the prompt for the model. The parts always appear
// in this order: user tag, record synopsis, tabular synopsis, user text.
// Field names in the synopses are the ones tool calls resolve against.
func BuildPrompt(text string, turn *session.Turn, d router.Decision) string {
	var b strings.Builder

	if turn.UserName != "" {
		fmt.Fprintf(&b, "[User: %s]\n", turn.UserName)
	}

	if ds := turn.Records; ds != nil {
		fmt.Fprintf(&b, "[JSON Data: %d records | Fields: %s]\n\n%s%s",
			ds.Len(), strings.Join(ds.Fields(), ", "), dataset.Summarize(ds), sectionBreak)
	}

	if ds := turn.Tabular; ds != nil {
		if turn.TabularFresh {
			fmt.Fprintf(&b, "[CSV File: %q | %d rows | Columns: %s]\n\n%s",
				ds.Name(), ds.Len(), strings.Join(ds.Fields(), ", "), dataset.Summarize(ds))
			if d.EmbedRaw {
				b.WriteString(pandasSnippet(ds))
			}
			b.WriteString(sectionBreak)
		} else {
			fmt.Fprintf(&b, "[CSV columns: %s]\n\n%s%s",
				strings.Join(ds.Fields(), ", "), dataset.Summarize(ds), sectionBreak)
		}
	}

	b.WriteString(promptText(text, turn))
	return b.String()
}

func promptText(text string, turn *session.Turn) string {
	if text != "" {
		return text
	}
	switch {
	case len(turn.Images) > 0:
		return DefaultImagePrompt
	case turn.RecordsFresh:
		return DefaultRecordsPrompt
	default:
		return DefaultTabularPrompt
	}
}

// pandasSnippet embeds the raw upload so executed code can load every row.
func pandasSnippet(ds *dataset.Dataset) string {
	raw, truncated := ds.Raw()
	note := ""
	if truncated {
		note = fmt.Sprintf(" (first %d bytes)", dataset.MaxRawBytes)
	}
	return fmt.Sprintf("\n\nTo load the full data%s in Python use this exact pattern:\n"+
		"```python\nimport pandas as pd, io, base64\n"+
		"df = pd.read_csv(io.BytesIO(base64.b64decode(\"%s\")))\n```",
		note, base64.StdEncoding.EncodeToString([]byte(raw)))
}
