// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading, validation and hot reload
// for channelchat.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServerConfig: HTTP address, rate limiting, CORS, turn timeout
//   - GeminiConfig / YouTubeConfig: collaborator credentials and limits
//   - ValidateErrors: every validation problem found in one pass
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (GEMINI_API_KEY, YOUTUBE_API_KEY, CHANNELCHAT_*)
//   - ~/.channelchat/config.toml, or the file given with --config
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    return err
//	}
//	go config.Watch(ctx, path, func(next *config.Config, err error) {
//	    if err == nil {
//	        vocab, _ := next.Vocabulary()
//	        rtr.SetVocabulary(vocab)
//	    }
//	})
package config
