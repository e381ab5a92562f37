// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jeranaias/channelchat/internal/util"
)

const (
	sampleTitleCount = 5
	sampleTitleRunes = 60
)

// Round4 rounds x to four decimal places.
func Round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}

// FormatNumber renders x rounded to four decimals without trailing zeros.
func FormatNumber(x float64) string {
	return strconv.FormatFloat(Round4(x), 'f', -1, 64)
}

// Summarize renders a deterministic synopsis of the dataset: record count,
// field names, per-numeric-field mean/min/max/count and a few sample titles.
// The same dataset always yields the same text.
func Summarize(d *Dataset) string {
	var b strings.Builder

	unit := "records"
	if d.kind == KindTabular {
		unit = "rows"
	}
	fmt.Fprintf(&b, "**Dataset %q: %d %s**\n", d.name, d.Len(), unit)
	fmt.Fprintf(&b, "**Fields:** %s\n", strings.Join(d.fields, ", "))

	if len(d.numeric) > 0 {
		b.WriteString("\n**Numeric fields** (use these exact names in tool calls):\n")
		for _, f := range d.numeric {
			vals := d.NumericValues(f)
			lo, hi, sum := vals[0], vals[0], 0.0
			for _, v := range vals {
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
				sum += v
			}
			fmt.Fprintf(&b, "  • %q: mean=%s, min=%s, max=%s, n=%d\n",
				f, FormatNumber(sum/float64(len(vals))), FormatNumber(lo), FormatNumber(hi), len(vals))
		}
	}

	if titleField := ResolveField(d.fields, "title"); d.HasField(titleField) {
		var samples []string
		for _, r := range d.records {
			if len(samples) == sampleTitleCount {
				break
			}
			if s, ok := r[titleField].(string); ok && s != "" {
				samples = append(samples, strconv.Quote(util.TruncateRunesNoEllipsis(s, sampleTitleRunes)))
			}
		}
		if len(samples) > 0 {
			more := ""
			if d.Len() > len(samples) {
				more = "..."
			}
			fmt.Fprintf(&b, "\n**Sample titles:** %s%s\n", strings.Join(samples, ", "), more)
		}
	}

	return b.String()
}
