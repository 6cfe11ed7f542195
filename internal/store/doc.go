// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package store provides the embedded key/value engine that staged cells are
// written to. Each named cache maps to one table; writes are staged in memory
// and become durable on Commit.
package store
