// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT
package command

import (
	"context"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/staranto/cellcachego/internal/cacheutil"
	"github.com/staranto/cellcachego/internal/config"
	"github.com/staranto/cellcachego/internal/meta"
)

func InitApp(ctx context.Context, args []string) (*cli.Command, error) {
	// The arg[1] immediately following the binary (arg[0]) is the cellcache
	// subcommand and also represents the namespace key to be used when
	// retrieving config values. arg[1] could be -h/--help, so ignore it if it
	// appears to be a flag.
	var ns string
	if len(args) > 1 && !strings.HasPrefix(args[1], "-") {
		ns = args[1]
	}

	// A missing config file is fine; every setting has a default.
	cfg, _ := config.Load()
	cfg.Namespace = ns
	config.Config.Namespace = ns

	storeDir, _ := config.GetString("cache.dir", cacheutil.Dir())

	meta := meta.Meta{
		Args:     args,
		Config:   cfg,
		Context:  ctx,
		StoreDir: storeDir,
	}

	app := &cli.Command{
		Name:  "cellcache",
		Usage: "disk-backed overflow cache for cells",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "version",
				Aliases:     []string{"v"},
				Usage:       "cellcache version info",
				HideDefault: true,
			},
		},
	}

	app.Commands = append(app.Commands,
		CompletionCommandBuilder(app, meta),
		InfoCommandBuilder(app, meta),
		StageCommandBuilder(app, meta),
	)

	// Make sure flags are sorted for the --help text.
	for _, cmd := range app.Commands {
		sort.Slice(cmd.Flags, func(i, j int) bool {
			return cmd.Flags[i].Names()[0] < cmd.Flags[j].Names()[0]
		})
	}

	return app, nil
}
