// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dataset

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `date,"views",Like Count
2024-01-01,100,5
2024-01-02,"2,000",7

2024-01-03,300
`

func TestLoadTabular(t *testing.T) {
	ds, err := Load("stats.csv", sampleCSV, KindTabular)
	require.NoError(t, err)

	assert.Equal(t, KindTabular, ds.Kind())
	assert.Equal(t, []string{"date", "views", "Like Count"}, ds.Fields())
	require.Equal(t, 3, ds.Len())

	recs := ds.Records()
	assert.Equal(t, "2,000", recs[1]["views"])
	assert.Nil(t, recs[2]["Like Count"], "short rows are padded with nil")
	for _, r := range recs {
		assert.Len(t, r, len(ds.Fields()))
	}

	raw, truncated := ds.Raw()
	assert.Equal(t, sampleCSV, raw)
	assert.False(t, truncated)
}

func TestLoadTabular_FieldCountMatchesHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   []string
	}{
		{"plain", "a,b,c", []string{"a", "b", "c"}},
		{"duplicates", "a,a,a", []string{"a", "a_2", "a_3"}},
		{"blank", "a,,c", []string{"a", "column_2", "c"}},
		{"quoted", `"x", "y"`, []string{"x", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := Load("t.csv", tt.header+"\n1,2,3\n", KindTabular)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ds.Fields())
			assert.Len(t, ds.Fields(), strings.Count(tt.header, ",")+1)
		})
	}
}

func TestLoadTabular_Empty(t *testing.T) {
	_, err := Load("empty.csv", "\n \n", KindTabular)
	assert.ErrorIs(t, err, ErrParseFailure)
}

func TestLoadTabular_RawTruncated(t *testing.T) {
	raw := "a\n" + strings.Repeat("1\n", MaxRawBytes)
	ds, err := Load("big.csv", raw, KindTabular)
	require.NoError(t, err)
	got, truncated := ds.Raw()
	assert.True(t, truncated)
	assert.Len(t, got, MaxRawBytes)
}

func TestLoadRecords(t *testing.T) {
	raw := `[
		{"title": "A", "view_count": 10, "release_date": "2024-01-01"},
		{"title": "B", "view_count": "20", "extra": true},
		{"view_count": null}
	]`
	ds, err := Load("channel.json", raw, KindRecords)
	require.NoError(t, err)

	assert.Equal(t, []string{"title", "view_count", "release_date"}, ds.Fields(), "fields follow the first record's key order")
	require.Equal(t, 3, ds.Len())

	assert.Equal(t, json.Number("10"), ds.Records()[0]["view_count"])
	assert.NotContains(t, ds.Records()[1], "extra")
	assert.Nil(t, ds.Records()[2]["title"])
	assert.Equal(t, []string{"view_count"}, ds.NumericFields())

	raw2, _ := ds.Raw()
	assert.Empty(t, raw2)
}

func TestLoadRecords_SingleObject(t *testing.T) {
	ds, err := Load("one.json", `{"b": 1, "a": 2}`, KindRecords)
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())
	assert.Equal(t, []string{"b", "a"}, ds.Fields())
}

func TestLoadRecords_Malformed(t *testing.T) {
	for _, raw := range []string{"", "[]", "42", `"text"`, "[1,2]", "{not json", `[{"a":1}, 5]`} {
		_, err := Load("bad.json", raw, KindRecords)
		assert.ErrorIs(t, err, ErrParseFailure, "input %q", raw)
	}
}

func TestLoad_StripsBOM(t *testing.T) {
	tests := []struct {
		name string
		file string
		raw  string
		kind Kind
	}{
		{"records", "v.json", "\ufeff[{\"title\":\"a\",\"view_count\":1}]", KindRecords},
		{"tabular", "v.csv", "\ufeffview_count,title\n1,a\n", KindTabular},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := Load(tt.file, tt.raw, tt.kind)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"title", "view_count"}, ds.Fields())

			field := ResolveField(ds.Fields(), "View Count")
			assert.Equal(t, "view_count", field)
			n, ok := ParseNumber(ds.Records()[0][field])
			require.True(t, ok)
			assert.Equal(t, 1.0, n)
		})
	}
}

func TestNumericClassification(t *testing.T) {
	raw := "n,half,mostly_text\n1,1,x\n2,,y\n3,3,z\n4,,4\n"
	ds, err := Load("n.csv", raw, KindTabular)
	require.NoError(t, err)
	assert.Equal(t, []string{"n", "half"}, ds.NumericFields())
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{1.5, 1.5, true},
		{int64(7), 7, true},
		{json.Number("12"), 12, true},
		{" 3.25 ", 3.25, true},
		{"", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{nil, 0, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseNumber(%#v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDetectKind(t *testing.T) {
	k, ok := DetectKind("Data.CSV", "")
	assert.True(t, ok)
	assert.Equal(t, KindTabular, k)

	k, ok = DetectKind("blob", "application/json")
	assert.True(t, ok)
	assert.Equal(t, KindRecords, k)

	_, ok = DetectKind("photo.png", "image/png")
	assert.False(t, ok)
}

func TestResolveField(t *testing.T) {
	fields := []string{"view_count", "Release Date", "title"}
	tests := []struct {
		in, want string
	}{
		{"view_count", "view_count"},
		{"viewCount", "view_count"},
		{"VIEW-COUNT", "view_count"},
		{"release_date", "Release Date"},
		{"releasedate", "Release Date"},
		{"unknown", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveField(fields, tt.in), "ResolveField(%q)", tt.in)
	}
}

func TestSummarize(t *testing.T) {
	raw := `[{"title":"First video","view_count":1},{"title":"Second","view_count":2},{"title":"Third","view_count":4}]`
	ds, err := Load("ch.json", raw, KindRecords)
	require.NoError(t, err)

	got := Summarize(ds)
	assert.Contains(t, got, `**Dataset "ch.json": 3 records**`)
	assert.Contains(t, got, "**Fields:** title, view_count")
	assert.Contains(t, got, `"view_count": mean=2.3333, min=1, max=4, n=3`)
	assert.Contains(t, got, `**Sample titles:** "First video", "Second", "Third"`)
	assert.Equal(t, got, Summarize(ds), "summary is deterministic")
}

func TestSummarize_TabularNoTitles(t *testing.T) {
	ds, err := Load("s.csv", "a,b\nx,1\n", KindTabular)
	require.NoError(t, err)
	got := Summarize(ds)
	assert.Contains(t, got, "1 rows")
	assert.NotContains(t, got, "Sample titles")
}

func TestRound4(t *testing.T) {
	assert.Equal(t, 1.118, Round4(1.11803398875))
	assert.Equal(t, "2.5", FormatNumber(2.5))
	assert.Equal(t, "3", FormatNumber(3.00001))
}
