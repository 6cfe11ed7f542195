// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"fmt"
	"io"
	"os"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/cellcachego/internal/cache"
	"github.com/staranto/cellcachego/internal/cacheutil"
	"github.com/staranto/cellcachego/internal/cell"
	"github.com/staranto/cellcachego/internal/meta"
	"github.com/staranto/cellcachego/internal/output"
)

// ShortCircuitExamples prints the command's examples when --examples is set
// and returns true so the caller can exit early.
func ShortCircuitExamples(cmd *cli.Command, examples [][2]string) bool {
	if cmd.Bool("examples") {
		output.DumpExamples(Writer(cmd), examples)
		return true
	}
	return false
}

// GetMeta returns the meta.Meta stored in the command's Metadata. If missing
// or of an unexpected type, it returns the zero value.
func GetMeta(cmd *cli.Command) meta.Meta {
	if cmd == nil || cmd.Metadata == nil {
		return meta.Meta{}
	}
	if m, ok := cmd.Metadata["meta"].(meta.Meta); ok {
		return m
	}
	return meta.Meta{}
}

// Writer returns where command output goes: the root command's Writer, or
// stdout when none is set.
func Writer(cmd *cli.Command) io.Writer {
	if root := cmd.Root(); root != nil && root.Writer != nil {
		return root.Writer
	}
	return os.Stdout
}

// serviceSettings are the effective service flags after config and env
// sources have been applied.
type serviceSettings struct {
	dir      string
	budget   int64
	enabled  bool
	cacheAll bool
}

func readServiceSettings(cmd *cli.Command) (serviceSettings, error) {
	budget, err := cacheutil.ParseBytes(cmd.String("budget"))
	if err != nil {
		return serviceSettings{}, fmt.Errorf("invalid --budget: %w", err)
	}

	s := serviceSettings{
		dir:      cmd.String("dir"),
		budget:   budget,
		enabled:  cmd.Bool("enabled"),
		cacheAll: cmd.Bool("cache-all"),
	}
	if s.dir == "" {
		s.dir = GetMeta(cmd).StoreDir
	}
	return s, nil
}

// OpenService opens a cell cache service configured from the command's
// service flags. The caller owns the returned service and must Dispose it.
func OpenService(cmd *cli.Command) (*cache.Service, error) {
	s, err := readServiceSettings(cmd)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store dir %s: %w", s.dir, err)
	}

	svc, err := cache.Open(cell.Blank,
		cache.WithDir(s.dir),
		cache.WithMaxBytesOnDisk(s.budget),
		cache.WithEnabled(s.enabled),
		cache.WithCacheAll(s.cacheAll),
		cache.WithRetryPause(cmd.Duration("retry-pause")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache service: %w", err)
	}

	log.WithFields(log.Fields{
		"dir":     s.dir,
		"budget":  cacheutil.FormatBytes(s.budget),
		"enabled": s.enabled,
		"all":     s.cacheAll,
	}).Debug("service opened")
	return svc, nil
}
