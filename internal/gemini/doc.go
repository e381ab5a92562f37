// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini implements llm.Generator and llm.ImageGenerator with the
// Google Gen AI SDK.
//
// # Key Types
//
//   - Client: function calling, streaming (with optional code execution or
//     search grounding) and image generation against one API key
//   - Options: models, system prompt, temperature
//
// # Usage
//
//	c, err := gemini.New(ctx, gemini.Options{APIKey: key})
//	if err != nil {
//	    return err
//	}
//	for chunk, err := range c.Stream(ctx, llm.StreamRequest{Prompt: "hi"}) {
//	    ...
//	}
package gemini
