// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router selects the execution mode for one user turn.
//
// Classification is rule-based: ordered regular-expression tables are matched
// against the turn text and combined with session state (which datasets are
// attached, whether the tabular one arrived with this turn, whether an image
// is attached). The first matching rule wins:
//
//  1. record dataset attached, no plot/code vocabulary -> ModeJSONTools
//  2. tabular dataset attached earlier, no plot/code vocabulary -> ModeCSVTools
//  3. plot or code vocabulary -> ModeCodeExecution
//  4. image vocabulary (or attached image plus edit verb) -> ModeImageGeneration
//  5. otherwise -> ModeGeneration
//
// Code vocabulary only counts when no dataset is attached; with a dataset the
// tool loop is the analysis path.
//
// # Key Types
//
//   - Router: classifier with a hot-swappable Vocabulary
//   - Vocabulary: the Plot, Code, Image and ImageEdit pattern tables
//   - Input: the turn facts classification looks at
//   - Decision: the chosen Mode plus the signals that drove it
//
// # Usage
//
//	r := router.New(router.DefaultVocabulary(), logger)
//	d := r.Classify(router.Input{Text: text, HasRecordDataset: sess.HasJSON()})
//	switch d.Mode {
//	case router.ModeJSONTools:
//	    // run the tool loop with the record catalog
//	}
package router
