// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package command

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staranto/cellcachego/internal/cache"
	"github.com/staranto/cellcachego/internal/cell"
	"github.com/staranto/cellcachego/internal/config"
)

// runApp builds the app the way main does and runs args against it. cfgPath
// may name a file in testdata; an empty cfgPath runs without a config file.
func runApp(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()

	if cfgPath == "" {
		cfgPath = filepath.Join(t.TempDir(), "missing.yaml")
	} else {
		abs, err := filepath.Abs(cfgPath)
		require.NoError(t, err)
		cfgPath = abs
	}
	t.Setenv("CELLCACHE_CFG", cfgPath)
	t.Setenv("CELLCACHE_DIR", t.TempDir())
	t.Setenv("CELLCACHE_CACHE", "")
	t.Cleanup(func() { config.Config = config.Type{} })

	argv := append([]string{"cellcache"}, args...)
	app, err := InitApp(context.Background(), argv)
	require.NoError(t, err)

	var buf bytes.Buffer
	app.Writer = &buf
	app.ErrWriter = io.Discard

	err = app.Run(context.Background(), argv)
	return buf.String(), err
}

// outcomes runs stage with -o json and returns the count per outcome.
func outcomes(t *testing.T, args ...string) map[string]int {
	t.Helper()

	out, err := runApp(t, "", append([]string{"stage", "-o", "json"}, args...)...)
	require.NoError(t, err)

	var rows []struct {
		Outcome string `json:"outcome"`
		Count   int    `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))

	got := make(map[string]int)
	for _, r := range rows {
		got[r.Outcome] = r.Count
	}
	return got
}

func TestStage_Outcomes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want map[string]int
	}{
		{
			name: "unbounded",
			args: []string{"-n", "5", "--size", "64B"},
			want: map[string]int{"SUCCESS": 5},
		},
		{
			name: "budget fills",
			args: []string{"-n", "10", "--size", "100B", "--budget", "250B", "-w", "1"},
			want: map[string]int{"SUCCESS": 2, "DISK_FULL": 8},
		},
		{
			name: "clean cells are skipped",
			args: []string{"-n", "4", "--clean"},
			want: map[string]int{"NOT_DIRTY": 4},
		},
		{
			name: "cache all stages clean cells",
			args: []string{"-n", "4", "--clean", "--cache-all"},
			want: map[string]int{"SUCCESS": 4},
		},
		{
			name: "disabled",
			args: []string{"-n", "3", "--no-enabled"},
			want: map[string]int{"CACHE_DISABLED": 3},
		},
		{
			name: "nothing to stage",
			args: []string{"-n", "0"},
			want: map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := outcomes(t, tt.args...)
			require.Len(t, got, len(cache.Results), "every outcome gets a row")
			for _, r := range cache.Results {
				assert.Equal(t, tt.want[r.String()], got[r.String()], r.String())
			}
		})
	}
}

func TestStage_Query(t *testing.T) {
	out, err := runApp(t, "", "stage", "-n", "10", "--size", "100B", "--budget", "250B", "-w", "1",
		"--query", `#(outcome=="DISK_FULL").count`)
	require.NoError(t, err)
	assert.Equal(t, "8\n", out)
}

func TestStage_FilterAndText(t *testing.T) {
	out, err := runApp(t, "", "stage", "-n", "2", "--cache-id", "probe", "-f", "count>0")
	require.NoError(t, err)

	assert.Contains(t, out, "probe")
	assert.Contains(t, out, "SUCCESS")
	assert.NotContains(t, out, "DISK_FULL")
}

func TestStage_Attrs(t *testing.T) {
	out, err := runApp(t, "", "stage", "-n", "2", "-o", "json", "-f", "count>0",
		"-a", "!cache,outcome:result:l,!bytes")
	require.NoError(t, err)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Equal(t, []map[string]interface{}{{"result": "success", "count": float64(2)}}, rows)
}

func TestStage_ConfigDefaults(t *testing.T) {
	out, err := runApp(t, filepath.Join("testdata", "cellcache.yaml"), "stage", "-o", "json",
		"--query", `#(outcome=="SUCCESS")`)
	require.NoError(t, err)

	var row map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &row))
	assert.EqualValues(t, 3, row["count"], "stage.count from config")
	assert.Equal(t, "384 B", row["bytes"], "stage.size from config")
}

func TestStage_Examples(t *testing.T) {
	out, err := runApp(t, "", "stage", "--examples")
	require.NoError(t, err)
	assert.Contains(t, out, "DISK_FULL")
}

func TestStage_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad output", []string{"stage", "-o", "xml"}},
		{"bad size", []string{"stage", "--size", "lots"}},
		{"unbounded size", []string{"stage", "--size", "unbounded"}},
		{"bad budget", []string{"stage", "--budget", "--size"}},
		{"zero workers", []string{"stage", "-w", "0"}},
		{"query with raw", []string{"stage", "-o", "raw", "-q", "#.count"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, "", tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestStage_RetrieveVerifies(t *testing.T) {
	svc, err := cache.Open(cell.Blank, cache.WithDir(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Dispose() })

	run, err := stage(context.Background(), svc, stageParams{
		cacheID:  "verify",
		count:    12,
		size:     256,
		workers:  3,
		retrieve: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 12, run.retrieved)
	assert.Equal(t, int64(12), run.stats.Hits)
	assert.Equal(t, int64(12*256), run.stats.BytesRetrieved)

	n, err := svc.Len("verify")
	require.NoError(t, err)
	assert.Zero(t, n, "retrieval removes cells")
}

func TestStage_SameCacheIDTwice(t *testing.T) {
	svc, err := cache.Open(cell.Blank, cache.WithDir(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Dispose() })

	_, err = stage(context.Background(), svc, stageParams{cacheID: "dup", count: 1, size: 8, workers: 1})
	require.NoError(t, err)

	run, err := stage(context.Background(), svc, stageParams{cacheID: "dup", count: 1, size: 8, workers: 1})
	require.NoError(t, err)
	assert.Equal(t, []cache.Result{cache.DuplicateFound}, run.results)
}

func TestStage_Cancelled(t *testing.T) {
	svc, err := cache.Open(cell.Blank, cache.WithDir(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Dispose() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = stage(ctx, svc, stageParams{cacheID: "gone", count: 100, size: 8, workers: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSyntheticCell(t *testing.T) {
	dirty := syntheticCell(0, 16, false)
	assert.True(t, dirty.Dirty())
	assert.Equal(t, int64(16), dirty.ElementSize())

	clean := syntheticCell(0, 16, true)
	assert.False(t, clean.Dirty())

	assert.False(t, syntheticCell(1, 16, false).Equal(syntheticCell(2, 16, false)))
	assert.True(t, syntheticCell(1, 16, false).Equal(syntheticCell(1, 16, false)))
}

func TestInfo(t *testing.T) {
	out, err := runApp(t, "", "info", "-o", "json", "--budget", "2GiB", "--cache-all")
	require.NoError(t, err)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))

	settings := make(map[string]interface{})
	for _, r := range rows {
		settings[r["setting"].(string)] = r["value"]
	}
	assert.Equal(t, "2.0 GiB", settings["budget"])
	assert.Equal(t, true, settings["cache_all"])
	assert.Equal(t, true, settings["enabled"])
	assert.Equal(t, "5ms", settings["retry_pause"])
	assert.Equal(t, "-", settings["config"])
}

func TestInfo_ConfigFile(t *testing.T) {
	cfgPath := filepath.Join("testdata", "cellcache.yaml")

	// info.output in the config file selects json.
	out, err := runApp(t, cfgPath, "info", "-q", `#(setting=="budget").value`)
	require.NoError(t, err)
	assert.Equal(t, `"64 MiB"`, strings.TrimSpace(out))

	out, err = runApp(t, cfgPath, "info", "-q", `#(setting=="retry_pause").value`)
	require.NoError(t, err)
	assert.Equal(t, `"10ms"`, strings.TrimSpace(out))

	t.Setenv("CELLCACHE_MAX_BYTES", "1KiB")
	out, err = runApp(t, cfgPath, "info", "-q", `#(setting=="budget").value`)
	require.NoError(t, err)
	assert.Equal(t, `"1.0 KiB"`, strings.TrimSpace(out), "env beats the config file")
}

func TestCompletion(t *testing.T) {
	out, err := runApp(t, "", "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "complete -F _cellcache cellcache")

	out, err = runApp(t, "", "completion", "zsh")
	require.NoError(t, err)
	assert.Contains(t, out, "compdef _cellcache cellcache")

	t.Setenv("SHELL", "/bin/fish")
	_, err = runApp(t, "", "completion")
	assert.Error(t, err)
}

func TestInitApp_FlagsSorted(t *testing.T) {
	t.Setenv("CELLCACHE_CFG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Cleanup(func() { config.Config = config.Type{} })

	app, err := InitApp(context.Background(), []string{"cellcache", "stage"})
	require.NoError(t, err)
	assert.Equal(t, "stage", config.Config.Namespace)

	for _, cmd := range app.Commands {
		for i := 1; i < len(cmd.Flags); i++ {
			assert.LessOrEqual(t, cmd.Flags[i-1].Names()[0], cmd.Flags[i].Names()[0], cmd.Name)
		}
	}
}
