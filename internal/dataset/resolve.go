// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dataset

import (
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var fieldSeparators = regexp.MustCompile(`[\s_-]+`)

// NormalizeFieldName folds case, applies NFKC and drops whitespace,
// underscores and hyphens, so "View Count", "view_count" and "viewcount"
// all compare equal.
func NormalizeFieldName(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return fieldSeparators.ReplaceAllString(s, "")
}

// ResolveField maps a user- or model-supplied field name onto one of fields.
// An exact match wins; otherwise the first normalized match is returned.
// If nothing matches, name is returned unchanged.
func ResolveField(fields []string, name string) string {
	for _, f := range fields {
		if f == name {
			return f
		}
	}
	want := NormalizeFieldName(name)
	for _, f := range fields {
		if NormalizeFieldName(f) == want {
			return f
		}
	}
	return name
}
