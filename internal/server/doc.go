// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the channelchat HTTP API.
//
// Endpoints:
//   - POST   /api/youtube/channel-data      - Harvest a channel (event stream)
//   - POST   /api/sessions                  - Create a chat session
//   - GET    /api/sessions/{id}             - Session status
//   - DELETE /api/sessions/{id}             - Drop a session and its turns
//   - POST   /api/sessions/{id}/attachments - Attach a dataset or image
//   - POST   /api/sessions/{id}/turns       - Run a turn (event stream)
//   - GET    /api/sessions/{id}/turns       - Stored turn records
//   - GET    /health                        - Health check
//
// Event streams use the progress package framing: one "data: <json>" line
// per event followed by a blank line. Errors outside a stream use the body
// {"error": {"message": ..., "code": ...}}.
//
// # Middleware
//
// Requests pass through panic recovery, zap request logging, security
// headers, CORS and, when configured, a per-client token bucket limiter.
//
// # Usage
//
//	srv := server.New(cfg.Server, server.Deps{
//	    Sessions:   sessions,
//	    Turns:      store,
//	    Dispatcher: dispatcher,
//	    Pipeline:   pipeline,
//	}, logger)
//	err := srv.Run(ctx)
package server
