// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dataset holds the in-memory structured data a chat session is
// grounded on.
//
// A Dataset is loaded once from one uploaded file, either tabular (CSV text)
// or record-oriented (JSON), and is immutable afterwards. A new upload
// produces a new Dataset; the old one is replaced, never edited.
//
// # Key Types
//
//   - Dataset: ordered fields plus ordered records, numeric fields cached at load
//   - Record: field name to scalar (or nil) mapping; every record has every field
//   - Kind: KindTabular or KindRecords
//
// # Usage
//
//	ds, err := dataset.Load("channel.json", raw, dataset.KindRecords)
//	if errors.Is(err, dataset.ErrParseFailure) {
//	    // tell the user, leave the session without a dataset
//	}
//	synopsis := dataset.Summarize(ds)
package dataset
