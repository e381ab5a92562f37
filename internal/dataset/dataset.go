// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrParseFailure is returned when an uploaded file cannot be turned into a
// Dataset. It is user-facing and recoverable: the dataset is simply not attached.
var ErrParseFailure = errors.New("dataset parse failure")

// MaxRawBytes bounds how much of a tabular upload is kept for embedding into
// code-execution prompts.
const MaxRawBytes = 500000

// =============================================================================
// KIND
// =============================================================================

// Kind identifies the shape of an uploaded dataset.
type Kind int

const (
	// KindTabular is delimited text with a header line.
	KindTabular Kind = iota
	// KindRecords is a JSON array of objects (or a single object).
	KindRecords
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindTabular:
		return "tabular"
	case KindRecords:
		return "records"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// DetectKind infers the dataset kind from an uploaded file's name or MIME type.
func DetectKind(filename, mimeType string) (Kind, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".csv" || mimeType == "text/csv":
		return KindTabular, true
	case ext == ".json" || mimeType == "application/json":
		return KindRecords, true
	default:
		return 0, false
	}
}

// =============================================================================
// DATASET
// =============================================================================

// Record is one row or object. Missing values are nil, never absent keys.
type Record map[string]any

// Dataset is an immutable, ordered collection of records sharing one field set.
type Dataset struct {
	name      string
	kind      Kind
	fields    []string
	records   []Record
	raw       string
	truncated bool
	numeric   []string
}

// Load parses raw upload text into a Dataset. A leading UTF-8 byte order
// mark is dropped.
func Load(name, raw string, kind Kind) (*Dataset, error) {
	raw = strings.TrimPrefix(raw, "\ufeff")

	var (
		fields  []string
		records []Record
		err     error
	)
	switch kind {
	case KindTabular:
		fields, records, err = parseTabular(raw)
	case KindRecords:
		fields, records, err = parseRecords(raw)
	default:
		err = fmt.Errorf("%w: unknown kind %s", ErrParseFailure, kind)
	}
	if err != nil {
		return nil, err
	}

	d := &Dataset{
		name:    name,
		kind:    kind,
		fields:  fields,
		records: records,
	}
	if kind == KindTabular {
		d.raw = raw
		if len(raw) > MaxRawBytes {
			d.raw = raw[:MaxRawBytes]
			d.truncated = true
		}
	}
	d.numeric = d.classifyNumeric()
	return d, nil
}

// Name returns the uploaded file name.
func (d *Dataset) Name() string { return d.name }

// Kind returns the dataset kind.
func (d *Dataset) Kind() Kind { return d.kind }

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.records) }

// Fields returns a copy of the ordered field names.
func (d *Dataset) Fields() []string {
	out := make([]string, len(d.fields))
	copy(out, d.fields)
	return out
}

// Records returns the ordered records. Callers must not modify them.
func (d *Dataset) Records() []Record { return d.records }

// NumericFields returns the fields where at least half the records parse as a number.
func (d *Dataset) NumericFields() []string {
	out := make([]string, len(d.numeric))
	copy(out, d.numeric)
	return out
}

// Raw returns the tabular source text (possibly truncated to MaxRawBytes) and
// whether it was truncated. Record datasets return "".
func (d *Dataset) Raw() (string, bool) { return d.raw, d.truncated }

// HasField reports whether name is one of the dataset's fields.
func (d *Dataset) HasField(name string) bool {
	for _, f := range d.fields {
		if f == name {
			return true
		}
	}
	return false
}

// NumericValues collects every value of field that parses as a number, in record order.
func (d *Dataset) NumericValues(field string) []float64 {
	vals := make([]float64, 0, len(d.records))
	for _, r := range d.records {
		if v, ok := ParseNumber(r[field]); ok {
			vals = append(vals, v)
		}
	}
	return vals
}

func (d *Dataset) classifyNumeric() []string {
	var numeric []string
	for _, f := range d.fields {
		n := 0
		for _, r := range d.records {
			if _, ok := ParseNumber(r[f]); ok {
				n++
			}
		}
		if n > 0 && n*2 >= len(d.records) {
			numeric = append(numeric, f)
		}
	}
	return numeric
}

// ParseNumber converts a scalar record value to a float. Strings are trimmed
// before parsing; NaN and infinities are rejected.
func ParseNumber(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// =============================================================================
// TABULAR PARSING
// =============================================================================

func parseTabular(raw string) ([]string, []Record, error) {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, nil, fmt.Errorf("%w: empty tabular input", ErrParseFailure)
	}

	fields := uniqueFields(splitHeader(lines[0]))
	records := make([]Record, 0, len(lines)-1)
	for _, line := range lines[1:] {
		cells := splitRow(line)
		rec := make(Record, len(fields))
		for i, f := range fields {
			if i < len(cells) {
				rec[f] = cells[i]
			} else {
				rec[f] = nil
			}
		}
		records = append(records, rec)
	}
	return fields, records, nil
}

// splitHeader splits the header on commas and strips wrapping quotes.
func splitHeader(line string) []string {
	cells := strings.Split(line, ",")
	for i, c := range cells {
		c = strings.TrimSpace(c)
		c = strings.TrimPrefix(c, `"`)
		c = strings.TrimSuffix(c, `"`)
		cells[i] = c
	}
	return cells
}

// splitRow parses one data line, honouring quoted cells when the line is
// well-formed CSV and falling back to a plain comma split otherwise.
func splitRow(line string) []string {
	r := csv.NewReader(strings.NewReader(line))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	cells, err := r.Read()
	if err != nil {
		cells = strings.Split(line, ",")
	}
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

// uniqueFields keeps header order and length, renaming blanks and duplicates.
func uniqueFields(header []string) []string {
	taken := make(map[string]bool, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		if h == "" {
			h = "column_" + strconv.Itoa(i+1)
		}
		name := h
		for n := 2; taken[name]; n++ {
			name = h + "_" + strconv.Itoa(n)
		}
		taken[name] = true
		out[i] = name
	}
	return out
}

// =============================================================================
// RECORD PARSING
// =============================================================================

func parseRecords(raw string) ([]string, []Record, error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 {
		return nil, nil, fmt.Errorf("%w: empty JSON input", ErrParseFailure)
	}

	var elems []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
		}
	case '{':
		if !json.Valid(trimmed) {
			return nil, nil, fmt.Errorf("%w: invalid JSON object", ErrParseFailure)
		}
		elems = []json.RawMessage{json.RawMessage(trimmed)}
	default:
		return nil, nil, fmt.Errorf("%w: top-level JSON value must be an object or array", ErrParseFailure)
	}
	if len(elems) == 0 {
		return nil, nil, fmt.Errorf("%w: empty JSON array", ErrParseFailure)
	}

	fields, err := objectKeys(elems[0])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: first element: %v", ErrParseFailure, err)
	}

	records := make([]Record, 0, len(elems))
	for i, elem := range elems {
		dec := json.NewDecoder(bytes.NewReader(elem))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil || obj == nil {
			return nil, nil, fmt.Errorf("%w: element %d is not an object", ErrParseFailure, i)
		}
		rec := make(Record, len(fields))
		for _, f := range fields {
			rec[f] = obj[f]
		}
		records = append(records, rec)
	}
	return fields, records, nil
}

// objectKeys returns the keys of a JSON object in document order.
func objectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("not an object")
	}

	var keys []string
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.New("malformed object key")
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return keys, nil
}
