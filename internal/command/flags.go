// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	altsrc "github.com/urfave/cli-altsrc/v3"
	yaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	"github.com/staranto/cellcachego/internal/cache"
	"github.com/staranto/cellcachego/internal/cacheutil"
)

var examplesFlag *cli.BoolFlag = &cli.BoolFlag{
	Name:        "examples",
	Usage:       "show example usages and exit",
	HideDefault: true,
}

// NewGlobalFlags returns the rendering flags shared by every command. params[0]
// is the command namespace and params[1] the config file.
func NewGlobalFlags(params ...string) (flags []cli.Flag) {
	ns, src := params[0], params[1]

	flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "attrs",
			Aliases: []string{"a"},
			Usage:   "comma-separated list of columns to select, rename or transform",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(ns+"."+"attrs", altsrc.StringSourcer(src)),
			),
		},
		&cli.BoolWithInverseFlag{
			Name:    "color",
			Aliases: []string{"c"},
			Usage:   "enable colored text output",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(ns+"."+"color", altsrc.StringSourcer(src)),
				yaml.YAML("color", altsrc.StringSourcer(src)),
			),
			Value: false,
		},
		&cli.StringFlag{
			Name:    "filter",
			Aliases: []string{"f"},
			Usage:   "comma-separated list of filters to apply to results",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(ns+"."+"output", altsrc.StringSourcer(src)),
				yaml.YAML("output", altsrc.StringSourcer(src)),
			),
			Value: "text",
			Validator: func(value string) error {
				return FlagValidators(value, JammedFlagValidator, OutputValidator)
			},
		},
		&cli.StringFlag{
			Name:    "query",
			Aliases: []string{"q"},
			Usage:   "gjson path applied to the results before rendering",
		},
		&cli.StringFlag{
			Name:    "sort",
			Aliases: []string{"s"},
			Usage:   "comma-separated list of columns to sort the results by",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(ns+"."+"sort", altsrc.StringSourcer(src)),
			),
		},
		&cli.BoolWithInverseFlag{
			Name:    "titles",
			Aliases: []string{"t"},
			Usage:   "show titles with text output",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(ns+"."+"titles", altsrc.StringSourcer(src)),
				yaml.YAML("titles", altsrc.StringSourcer(src)),
			),
			Value: true,
		},
	}

	return
}

// NewServiceFlags returns the flags that configure a cache service. Each one
// can be set per command in the config file, or globally under "cache".
func NewServiceFlags(ns string, src string) []cli.Flag {
	return []cli.Flag{
		NameSpacedValueChainFlagFromConfigFile(ns, src, "cache.max_bytes", &cli.StringFlag{
			Name:    "budget",
			Aliases: []string{"b"},
			Usage:   "bytes the store may hold, e.g. 64MiB, or unbounded",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CELLCACHE_MAX_BYTES")),
			Value:   cacheutil.FormatBytes(cacheutil.Unbounded),
			Validator: func(value string) error {
				return FlagValidators(value, JammedFlagValidator, BytesValidator)
			},
		}),
		NameSpacedValueChainFlagFromConfigFile(ns, src, "cache.dir", &cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Usage:   "directory the temporary store is created in",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CELLCACHE_DIR")),
			Value:   cacheutil.Dir(),
			Validator: func(value string) error {
				return FlagValidators(value, JammedFlagValidator)
			},
		}),
		&cli.BoolWithInverseFlag{
			Name:  "enabled",
			Usage: "accept writes; --no-enabled answers every write with CACHE_DISABLED",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(ns+".enabled", altsrc.StringSourcer(src)),
				yaml.YAML("cache.enabled", altsrc.StringSourcer(src)),
			),
			Value: cacheutil.Enabled(),
		},
		&cli.BoolFlag{
			Name:  "cache-all",
			Usage: "stage cells even when they are not dirty",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(ns+".cache_all", altsrc.StringSourcer(src)),
				yaml.YAML("cache.all", altsrc.StringSourcer(src)),
			),
		},
		&cli.DurationFlag{
			Name:  "retry-pause",
			Usage: "pause between reads retried under memory pressure",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(ns+".retry_pause", altsrc.StringSourcer(src)),
				yaml.YAML("cache.retry_pause", altsrc.StringSourcer(src)),
			),
			Value: cache.DefaultRetryPause,
		},
	}
}

// NameSpacedValueChainFlagFromConfigFile appends the namespaced key and then
// the global key from the config file to the flag's Sources chain.
func NameSpacedValueChainFlagFromConfigFile(ns string, path string, global string, flag *cli.StringFlag) *cli.StringFlag {
	src := yaml.YAML(ns+"."+flag.Name, altsrc.StringSourcer(path))
	flag.Sources.Chain = append(flag.Sources.Chain, src)

	src = yaml.YAML(global, altsrc.StringSourcer(path))
	flag.Sources.Chain = append(flag.Sources.Chain, src)

	return flag
}
