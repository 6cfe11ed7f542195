// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cacheutil

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
)

// Unbounded is the budget used when no byte limit has been configured.
const Unbounded = int64(math.MaxInt64)

// Dir resolves the base directory that backing stores are created beneath.
// Precedence:
//  1. CELLCACHE_DIR, if set and non-empty
//  2. os.TempDir()/cellcache
func Dir() string {
	if c, ok := os.LookupEnv("CELLCACHE_DIR"); ok && c != "" {
		return c
	}
	return filepath.Join(os.TempDir(), "cellcache")
}

// Enabled returns true unless CELLCACHE_CACHE explicitly disables it ("0"/"false").
func Enabled() bool {
	enabled, _ := os.LookupEnv("CELLCACHE_CACHE")
	return enabled == "" || (enabled != "0" && enabled != "false")
}

// EnsureBaseDir creates the base directory if it does not already exist and
// returns its path.
func EnsureBaseDir() (string, error) {
	base := Dir()
	if err := os.MkdirAll(base, 0o755); err != nil { //nolint:mnd
		return base, fmt.Errorf("failed to create cache base directory: %w", err)
	}
	return base, nil
}

// EncodeKey hashes k with MD5 and returns the hex string.
func EncodeKey(k string) string {
	h := md5.New()
	_, _ = h.Write([]byte(k))
	return hex.EncodeToString(h.Sum(nil))
}

// ParseBytes converts a humanized size ("250", "64MiB", "2 GB") into a byte
// count. The empty string, "0" and "unbounded" all mean no limit.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "0", "unbounded", "max":
		return Unbounded, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	if n > math.MaxInt64 {
		log.Debugf("byte size %s clamped to unbounded", s)
		return Unbounded, nil
	}
	return int64(n), nil
}

// FormatBytes renders n in IEC units, or "unbounded" for the default budget.
func FormatBytes(n int64) string {
	if n == Unbounded {
		return "unbounded"
	}
	if n < 0 {
		return fmt.Sprintf("%d B", n)
	}
	return humanize.IBytes(uint64(n))
}
