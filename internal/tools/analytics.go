// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/jeranaias/channelchat/internal/dataset"
	"github.com/jeranaias/channelchat/internal/util"
)

const (
	chartLabelRunes   = 40
	sampleTitleCount  = 5
	defaultTitleField = "title"
)

// Date fields tried in order when building a time series.
var dateFields = []string{"release_date", "date", "published_at"}

// =============================================================================
// COMPUTE STATS
// =============================================================================

// ComputeStats returns descriptive statistics for the numeric values of a field.
func ComputeStats(ds *dataset.Dataset, args StatsArgs) Result {
	fields := ds.Fields()
	field := dataset.ResolveField(fields, args.Field)
	vals := ds.NumericValues(field)
	if len(vals) == 0 {
		return ErrorResult{Message: fmt.Sprintf("No numeric values found for field %q. Available fields: %s",
			field, strings.Join(fields, ", "))}
	}

	sorted := slices.Clone(vals)
	slices.Sort(sorted)
	n := len(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range sorted {
		sq += (v - mean) * (v - mean)
	}

	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return StatsResult{
		Field:  field,
		Count:  n,
		Mean:   dataset.Round4(mean),
		Median: dataset.Round4(median),
		Std:    dataset.Round4(math.Sqrt(sq / float64(n))),
		Min:    dataset.Round4(sorted[0]),
		Max:    dataset.Round4(sorted[n-1]),
	}
}

// =============================================================================
// PLOT METRIC VS TIME
// =============================================================================

// PlotMetricVsTime builds a series of (date, value, label) points sorted
// ascending by date. Dates compare lexicographically (ISO YYYY-MM-DD).
func PlotMetricVsTime(ds *dataset.Dataset, args PlotArgs) Result {
	fields := ds.Fields()
	metric := dataset.ResolveField(fields, args.Metric)
	dateField := firstField(ds, dateFields...)
	titleField := dataset.ResolveField(fields, defaultTitleField)

	var series []Point
	if dateField != "" {
		for _, rec := range ds.Records() {
			date, _ := rec[dateField].(string)
			if date == "" {
				continue
			}
			v, ok := dataset.ParseNumber(rec[metric])
			if !ok {
				continue
			}
			label, _ := rec[titleField].(string)
			series = append(series, Point{
				Date:  date,
				Value: v,
				Label: util.TruncateRunesNoEllipsis(label, chartLabelRunes),
			})
		}
	}
	if len(series) == 0 {
		return ErrorResult{Message: fmt.Sprintf("No data found for metric %q with release dates. Available fields: %s",
			metric, strings.Join(fields, ", "))}
	}

	sort.SliceStable(series, func(i, j int) bool { return series[i].Date < series[j].Date })

	title := args.Title
	if title == "" {
		title = metric + " Over Time"
	}
	return ChartResult{
		Kind:   ChartMetricVsTime,
		Metric: metric,
		Title:  title,
		Series: series,
	}
}

// =============================================================================
// LOOKUP RECORD
// =============================================================================

var ordinals = []struct {
	word  string
	index int
}{
	{"first", 0}, {"second", 1}, {"third", 2}, {"fourth", 3}, {"fifth", 4},
	{"sixth", 5}, {"seventh", 6}, {"eighth", 7}, {"ninth", 8}, {"tenth", 9},
	{"last", -1},
}

// superlative maps a phrase onto a full sort of the records by one field.
type superlative struct {
	pattern *regexp.Regexp
	field   string
	desc    bool
	date    bool
}

// Evaluated in order; first match wins.
var superlatives = []superlative{
	{regexp.MustCompile(`most (viewed|views|popular)|highest view`), "view_count", true, false},
	{regexp.MustCompile(`least (viewed|views|popular)|lowest view|fewest views`), "view_count", false, false},
	{regexp.MustCompile(`most liked|most likes|highest like`), "like_count", true, false},
	{regexp.MustCompile(`least liked|fewest likes|lowest like`), "like_count", false, false},
	{regexp.MustCompile(`most comment|most discussed`), "comment_count", true, false},
	{regexp.MustCompile(`least comment|fewest comment|least discussed`), "comment_count", false, false},
	{regexp.MustCompile(`longest`), "duration", true, false},
	{regexp.MustCompile(`shortest`), "duration", false, false},
	{regexp.MustCompile(`latest|newest|recent`), "release_date", true, true},
	{regexp.MustCompile(`oldest|earliest`), "release_date", false, true},
}

var (
	leadingVerb  = regexp.MustCompile(`^(play|open|watch|show)\s+(the\s+)?`)
	trailingNoun = regexp.MustCompile(`\s+video$`)
)

// LookupRecord resolves a single record by ordinal word, superlative phrase
// or fuzzy title match, in that priority.
func LookupRecord(ds *dataset.Dataset, args LookupArgs) Result {
	recs := ds.Records()
	q := strings.ToLower(strings.TrimSpace(args.Query))

	idx, matched := lookupOrdinal(q, len(recs))
	if !matched {
		idx, matched = lookupSuperlative(ds, q)
	}
	if !matched {
		idx, matched = lookupTitle(ds, q)
	}
	if !matched || idx < 0 || idx >= len(recs) {
		return ErrorResult{Message: fmt.Sprintf("Could not find a record matching %q. Available titles: %s...",
			args.Query, strings.Join(sampleTitles(ds), ", "))}
	}

	kind := CardRecord
	if ds.HasField("video_id") || ds.HasField("video_url") {
		kind = CardVideo
	}
	return CardResult{Kind: kind, Index: idx, Record: recs[idx]}
}

// lookupOrdinal matches whole ordinal words. A matched ordinal past the end
// yields index -1 with matched=true so later rules are not consulted.
func lookupOrdinal(q string, n int) (int, bool) {
	words := strings.FieldsFunc(q, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	for _, o := range ordinals {
		if !slices.Contains(words, o.word) {
			continue
		}
		if o.index == -1 {
			return n - 1, true
		}
		if o.index >= n {
			return -1, true
		}
		return o.index, true
	}
	return -1, false
}

func lookupSuperlative(ds *dataset.Dataset, q string) (int, bool) {
	recs := ds.Records()
	if len(recs) == 0 {
		return -1, false
	}
	for _, s := range superlatives {
		if !s.pattern.MatchString(q) {
			continue
		}
		field := dataset.ResolveField(ds.Fields(), s.field)
		if !ds.HasField(field) {
			continue
		}

		order := make([]int, len(recs))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			ra, rb := recs[order[a]][field], recs[order[b]][field]
			if s.date {
				da, _ := ra.(string)
				db, _ := rb.(string)
				if s.desc {
					return da > db
				}
				return da < db
			}
			va, _ := dataset.ParseNumber(ra)
			vb, _ := dataset.ParseNumber(rb)
			if s.desc {
				return va > vb
			}
			return va < vb
		})
		return order[0], true
	}
	return -1, false
}

func lookupTitle(ds *dataset.Dataset, q string) (int, bool) {
	q = leadingVerb.ReplaceAllString(q, "")
	q = strings.TrimSpace(trailingNoun.ReplaceAllString(q, ""))
	words := strings.Fields(q)
	if len(words) == 0 {
		return -1, false
	}

	titleField := dataset.ResolveField(ds.Fields(), defaultTitleField)
	best, bestScore := -1, 0
	for i, rec := range ds.Records() {
		title, _ := rec[titleField].(string)
		title = strings.ToLower(title)
		score := 0
		for _, w := range words {
			if strings.Contains(title, w) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, best >= 0
}

// =============================================================================
// HELPERS
// =============================================================================

func firstField(ds *dataset.Dataset, candidates ...string) string {
	fields := ds.Fields()
	for _, c := range candidates {
		if f := dataset.ResolveField(fields, c); ds.HasField(f) {
			return f
		}
	}
	return ""
}

func sampleTitles(ds *dataset.Dataset) []string {
	titleField := dataset.ResolveField(ds.Fields(), defaultTitleField)
	var out []string
	for _, rec := range ds.Records() {
		if len(out) == sampleTitleCount {
			break
		}
		if t, ok := rec[titleField].(string); ok && t != "" {
			out = append(out, t)
		}
	}
	return out
}
