// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the channelchat command line.
//
// # Commands
//
//   - serve: run the HTTP server (chat sessions and channel ingestion)
//   - harvest: collect a channel's videos in-process or on a server
//   - ask: send one chat turn to a running server
//   - config init|show|path: manage the TOML config file
//
// Output adapts to the terminal. On a TTY harvest shows a progress bar and
// ask renders markdown; piped output gets raw event frames and plain text.
// NO_COLOR and FORCE_COLOR are honoured.
//
// # Usage
//
//	func main() {
//	    os.Exit(cli.Execute())
//	}
package cli
