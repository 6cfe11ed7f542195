// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

package command

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/google/uuid"
	altsrc "github.com/urfave/cli-altsrc/v3"
	yaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/staranto/cellcachego/internal/cache"
	"github.com/staranto/cellcachego/internal/cacheutil"
	"github.com/staranto/cellcachego/internal/cell"
	"github.com/staranto/cellcachego/internal/meta"
	"github.com/staranto/cellcachego/internal/output"
)

// ErrMismatch is returned by stage --retrieve when a cell read back from the
// store differs from the one that was staged.
var ErrMismatch = errors.New("retrieved cell differs from staged cell")

var stageExamples = [][2]string{
	{"cellcache stage --count 100 --size 4KiB", "stage 100 dirty 4KiB cells into an unbounded store"},
	{"cellcache stage --count 10 --size 100B --budget 250B", "watch the budget turn writes into DISK_FULL"},
	{"cellcache stage --clean --cache-all", "stage unmodified cells anyway"},
	{"cellcache stage --retrieve --stats -o json", "round trip every staged cell and report service counters"},
	{"cellcache stage -f count>0 -s -count", "only outcomes that occurred, most frequent first"},
	{"cellcache stage -a '!cache,outcome:result:l'", "hide the cache id and lower-case the outcome column"},
}

// stageRun is the outcome of a single stage invocation.
type stageRun struct {
	cacheID   string
	size      int64
	results   []cache.Result
	retrieved int
	stats     cache.Stats
	onDisk    int64
}

// StageCommandAction is the action handler for the "stage" subcommand. It
// stages synthetic cells through a fresh service and reports the outcomes.
func StageCommandAction(ctx context.Context, cmd *cli.Command) error {
	m := GetMeta(cmd)
	log.Debugf("Executing action for %v", m.Args[1:])

	// Bail out early if we're just dumping examples.
	if ShortCircuitExamples(cmd, stageExamples) {
		return nil
	}

	size, err := cacheutil.ParseBytes(cmd.String("size"))
	if err != nil {
		return fmt.Errorf("invalid --size: %w", err)
	}
	if size == cacheutil.Unbounded {
		return errors.New("--size must be a finite byte size")
	}

	cacheID := cmd.String("cache-id")
	if cacheID == "" {
		cacheID = uuid.NewString()
	}

	svc, err := OpenService(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Dispose(); err != nil {
			log.WithError(err).Error("failed to dispose cache service")
		}
	}()

	run, err := stage(ctx, svc, stageParams{
		cacheID:  cacheID,
		count:    int(cmd.Int("count")),
		size:     size,
		workers:  int(cmd.Int("workers")),
		clean:    cmd.Bool("clean"),
		retrieve: cmd.Bool("retrieve"),
	})
	if err != nil {
		return err
	}

	w := Writer(cmd)
	if err := output.SliceDiceSpit(outcomeDataset(run), cmd, w); err != nil {
		return err
	}
	if cmd.Bool("stats") {
		return output.SliceDiceSpit(statsDataset(run), cmd, w)
	}
	return nil
}

type stageParams struct {
	cacheID  string
	count    int
	size     int64
	workers  int
	clean    bool
	retrieve bool
}

// stage registers p.cacheID and stages p.count synthetic cells from
// p.workers goroutines. With p.retrieve set, every successfully staged cell
// is read back and compared.
func stage(ctx context.Context, svc *cache.Service, p stageParams) (stageRun, error) {
	if err := svc.AddCache(p.cacheID); err != nil {
		return stageRun{}, err
	}

	run := stageRun{
		cacheID: p.cacheID,
		size:    p.size,
		results: make([]cache.Result, p.count),
	}
	staged := make([]*cell.Cell, p.count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.workers, 1))
	for i := 0; i < p.count; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			c := syntheticCell(i, p.size, p.clean)
			res, err := svc.Cache(p.cacheID, i, c)
			if err != nil {
				return fmt.Errorf("cell %d: %w", i, err)
			}
			run.results[i] = res
			staged[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stageRun{}, err
	}
	if err := ctx.Err(); err != nil {
		return stageRun{}, err
	}

	if p.retrieve {
		n, err := verify(ctx, svc, p, run.results, staged)
		if err != nil {
			return stageRun{}, err
		}
		run.retrieved = n
	}

	run.stats = svc.Stats()
	onDisk, err := svc.SizeOnDisk()
	if err != nil {
		return stageRun{}, err
	}
	run.onDisk = onDisk
	return run, nil
}

// verify reads back every cell whose write succeeded and checks it against
// what was staged. It returns how many cells came back.
func verify(ctx context.Context, svc *cache.Service, p stageParams, results []cache.Result, staged []*cell.Cell) (int, error) {
	var (
		mu        sync.Mutex
		retrieved int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.workers, 1))
	for i, res := range results {
		if res != cache.Success {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			got, err := svc.RetrieveNoRecache(p.cacheID, i)
			if err != nil {
				return fmt.Errorf("cell %d: %w", i, err)
			}
			if got == nil {
				return fmt.Errorf("cell %d: %w: missing", i, ErrMismatch)
			}
			if !staged[i].Equal(got) {
				return fmt.Errorf("cell %d: %w", i, ErrMismatch)
			}
			mu.Lock()
			retrieved++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return retrieved, err
	}
	return retrieved, nil
}

// syntheticCell returns a one dimensional cell of size bytes. Unless clean is
// set the payload is overwritten after construction, leaving the cell dirty.
func syntheticCell(index int, size int64, clean bool) *cell.Cell {
	c := cell.New([]int{int(size)}, make([]byte, size))
	if clean || size == 0 {
		return c
	}

	data := c.Data()
	for j := range data {
		data[j] = byte(index + j + 1)
	}
	// An all-zero pattern would leave the cell clean.
	data[0] |= 0x80
	c.Update()
	return c
}

// outcomeDataset tallies the write results, one row per result.
func outcomeDataset(run stageRun) output.Dataset {
	counts := make(map[cache.Result]int64)
	for _, r := range run.results {
		counts[r]++
	}

	ds := output.Dataset{Columns: []string{"cache", "outcome", "count", "bytes"}}
	for _, r := range cache.Results {
		ds.Rows = append(ds.Rows, map[string]interface{}{
			"cache":   run.cacheID,
			"outcome": r.String(),
			"count":   counts[r],
			"bytes":   cacheutil.FormatBytes(counts[r] * run.size),
		})
	}
	return ds
}

// statsDataset reports the service counters after the run.
func statsDataset(run stageRun) output.Dataset {
	s := run.stats
	return output.Dataset{
		Columns: []string{"stat", "value"},
		Rows: []map[string]interface{}{
			{"stat": "hits", "value": s.Hits},
			{"stat": "misses", "value": s.Misses},
			{"stat": "retries", "value": s.Retries},
			{"stat": "retrieved", "value": int64(run.retrieved)},
			{"stat": "bytes_staged", "value": cacheutil.FormatBytes(s.BytesStaged)},
			{"stat": "bytes_retrieved", "value": cacheutil.FormatBytes(s.BytesRetrieved)},
			{"stat": "size_on_disk", "value": cacheutil.FormatBytes(run.onDisk)},
		},
	}
}

// StageCommandBuilder constructs the cli.Command for "stage", wiring metadata,
// flags, and action/validator handlers.
func StageCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	src := meta.Config.Source
	return &cli.Command{
		Name:      "stage",
		Usage:     "stage synthetic cells through a cache service",
		UsageText: `cellcache stage [options]`,
		Metadata: map[string]any{
			"meta": meta,
		},
		Flags: append(append([]cli.Flag{
			&cli.StringFlag{
				Name:  "cache-id",
				Usage: "cache id to register; a random uuid when empty",
			},
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "number of cells to stage",
				Sources: cli.NewValueSourceChain(
					yaml.YAML("stage.count", altsrc.StringSourcer(src)),
				),
				Value: 10,
				Validator: func(v int) error {
					return FlagValidators(v, NonNegativeValidator)
				},
			},
			&cli.StringFlag{
				Name:  "size",
				Usage: "bytes per cell, e.g. 4KiB",
				Sources: cli.NewValueSourceChain(
					yaml.YAML("stage.size", altsrc.StringSourcer(src)),
				),
				Value: "1KiB",
				Validator: func(value string) error {
					return FlagValidators(value, JammedFlagValidator, BytesValidator)
				},
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "goroutines staging cells concurrently",
				Sources: cli.NewValueSourceChain(
					yaml.YAML("stage.workers", altsrc.StringSourcer(src)),
				),
				Value: 4,
				Validator: func(v int) error {
					return FlagValidators(v, PositiveValidator)
				},
			},
			&cli.BoolFlag{
				Name:  "clean",
				Usage: "leave cells unmodified so they are not dirty",
			},
			&cli.BoolFlag{
				Name:    "retrieve",
				Aliases: []string{"r"},
				Usage:   "read every staged cell back and verify it",
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "also report service counters",
			},
			examplesFlag,
		}, NewServiceFlags("stage", src)...), NewGlobalFlags("stage", src)...),
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := StageCommandValidator(ctx, c); err != nil {
				return err
			}
			return StageCommandAction(ctx, c)
		},
	}
}

// StageCommandValidator performs validation for "stage" and delegates to
// GlobalFlagsValidator.
func StageCommandValidator(ctx context.Context, cmd *cli.Command) error {
	return GlobalFlagsValidator(ctx, cmd)
}
