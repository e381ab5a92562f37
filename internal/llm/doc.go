// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm defines the provider-neutral model contract used by the chat
// core: messages, function-calling exchanges, streamed chunks and image
// generation.
//
// Concrete providers (see package gemini) implement Generator and
// ImageGenerator; tests use the scripted fakes in llmtest.
package llm
