// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package log

import (
	"bytes"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomHandler(t *testing.T) {
	var buf bytes.Buffer
	h := NewCustomHandler(&buf)

	e := &log.Entry{
		Level:     log.WarnLevel,
		Message:   "disk full",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Fields:    log.Fields{"index": 2, "cache": "A"},
	}
	require.NoError(t, h.HandleLog(e))

	assert.Equal(t, "2026-01-02 03:04:05 W disk full cache=A index=2\n", buf.String())
}

func TestInitLogger(t *testing.T) {
	t.Setenv("CELLCACHE_LOG", "debug")
	InitLogger()
	l, ok := log.Log.(*log.Logger)
	require.True(t, ok)
	assert.Equal(t, log.DebugLevel, l.Level)

	t.Setenv("CELLCACHE_LOG", "")
	InitLogger()
	assert.Equal(t, log.ErrorLevel, l.Level)

	t.Setenv("CELLCACHE_LOG", "chatty")
	InitLogger()
	assert.Equal(t, log.ErrorLevel, l.Level)
}
