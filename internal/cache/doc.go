// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

// Package cache stages cells that do not fit in memory into a disk-backed
// store and hands them back on demand. Writes are gated by a dirty check, a
// duplicate check and a byte budget; reads are destructive.
package cache
