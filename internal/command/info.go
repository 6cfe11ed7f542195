// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

package command

import (
	"context"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/cellcachego/internal/cacheutil"
	"github.com/staranto/cellcachego/internal/meta"
	"github.com/staranto/cellcachego/internal/output"
)

var infoExamples = [][2]string{
	{"cellcache info", "show the effective service settings"},
	{"cellcache info --budget 2GiB -o yaml", "check how a budget flag resolves"},
	{"cellcache info -q '#(setting==\"budget\").value'", "print a single setting"},
}

// InfoCommandAction is the action handler for the "info" subcommand. It
// reports the service settings a command would run with once flags, env vars
// and the config file have been applied.
func InfoCommandAction(ctx context.Context, cmd *cli.Command) error {
	m := GetMeta(cmd)
	log.Debugf("Executing action for %v", m.Args[1:])

	if ShortCircuitExamples(cmd, infoExamples) {
		return nil
	}

	s, err := readServiceSettings(cmd)
	if err != nil {
		return err
	}

	configFile := m.Config.Source
	if configFile == "" {
		configFile = "-"
	}

	ds := output.Dataset{
		Columns: []string{"setting", "value"},
		Rows: []map[string]interface{}{
			{"setting": "config", "value": configFile},
			{"setting": "dir", "value": s.dir},
			{"setting": "budget", "value": cacheutil.FormatBytes(s.budget)},
			{"setting": "enabled", "value": s.enabled},
			{"setting": "cache_all", "value": s.cacheAll},
			{"setting": "retry_pause", "value": cmd.Duration("retry-pause").String()},
		},
	}
	return output.SliceDiceSpit(ds, cmd, Writer(cmd))
}

// InfoCommandBuilder constructs the cli.Command for "info".
func InfoCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	src := meta.Config.Source
	return &cli.Command{
		Name:      "info",
		Usage:     "show effective cache settings",
		UsageText: `cellcache info [options]`,
		Metadata: map[string]any{
			"meta": meta,
		},
		Flags: append(append([]cli.Flag{
			examplesFlag,
		}, NewServiceFlags("info", src)...), NewGlobalFlags("info", src)...),
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := GlobalFlagsValidator(ctx, c); err != nil {
				return err
			}
			return InfoCommandAction(ctx, c)
		},
	}
}
