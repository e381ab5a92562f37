// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across channelchat.
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis (prompt excerpts, progress messages)
//   - TruncateRunesNoEllipsis: UTF-8 safe hard cut (chart labels)
//   - TruncateWidth: display-width truncation for terminal output
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync (harvest exports)
package util
