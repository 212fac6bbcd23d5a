package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/MeKo-Tech/glasscanvas/internal/codec"
	"github.com/MeKo-Tech/glasscanvas/internal/common"
	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
)

// job is one input file and its planned output path.
type job struct {
	index  int
	input  string
	output string
}

// outcome is a finished job.
type outcome struct {
	index int
	item  Item
}

// outputName returns "<name>_<style-slug>.<ext>" for input.
func outputName(input string, style pipeline.Style, ext string) string {
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return name + "_" + style.Slug() + "." + ext
}

// planJobs assigns every input a distinct output path inside dir. Inputs
// from different directories that share a name get a numeric suffix.
func planJobs(inputs []string, dir string, style pipeline.Style, ext string) []job {
	jobs := make([]job, len(inputs))
	used := make(map[string]bool, len(inputs))
	for i, in := range inputs {
		name := outputName(in, style, ext)
		stem := strings.TrimSuffix(name, "."+ext)
		for n := 2; used[name]; n++ {
			name = stem + "-" + strconv.Itoa(n) + "." + ext
		}
		used[name] = true
		jobs[i] = job{index: i, input: in, output: filepath.Join(dir, name)}
	}
	return jobs
}

// workerCount resolves a non-positive worker setting to one per CPU.
func workerCount(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o750)
}

// processSingleImage loads, renders, encodes and writes one file.
func processSingleImage(ctx context.Context, pl *pipeline.Pipeline, encoders *codec.Registry, j job, cfg *Config) (item Item) {
	item.Input = j.input
	t := common.NewNamedTimer(j.input)
	defer func() { item.Duration = t.Stop() }()

	img, meta, err := codec.LoadImage(j.input)
	if err != nil {
		item.Err = err
		return item
	}

	res, err := pl.Run(ctx, img, cfg.Params)
	if err != nil {
		item.Err = fmt.Errorf("render failed: %w", err)
		return item
	}

	data, _, err := encoders.EncodeBuffer(res.Image, cfg.Format, codec.Options{
		Quality: cfg.JPEGQuality,
		Title:   filepath.Base(j.output),
	})
	if err != nil {
		item.Err = err
		return item
	}
	if err := os.WriteFile(j.output, data, 0o600); err != nil {
		item.Err = fmt.Errorf("failed to write output: %w", err)
		return item
	}

	item.Output = j.output
	item.Width, item.Height = res.Width, res.Height
	item.Bytes = len(data)
	slog.Debug("Batch item rendered",
		"input", j.input,
		"output", j.output,
		"source_format", meta.Format,
		"width", res.Width,
		"height", res.Height)
	return item
}

// processImagesParallel runs jobs on a bounded worker pool. Items come back
// in input order. Without ContinueOnError the first failure cancels the
// remaining work; items that never ran have neither Output nor Err.
func processImagesParallel(ctx context.Context, pl *pipeline.Pipeline, encoders *codec.Registry, jobs []job, cfg *Config) ([]Item, error) {
	workers := min(workerCount(cfg.Workers), len(jobs))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	progress := cfg.Progress
	if progress == nil {
		progress = NoOpProgressCallback{}
	}
	progress.OnStart(len(jobs))
	defer progress.OnComplete()

	queue := make(chan job)
	results := make(chan outcome, workers)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				if runCtx.Err() != nil {
					results <- outcome{index: j.index, item: Item{Input: j.input}}
					continue
				}
				item := processSingleImage(runCtx, pl, encoders, j, cfg)
				if item.Err != nil && errors.Is(item.Err, context.Canceled) && runCtx.Err() != nil {
					item = Item{Input: j.input}
				}
				results <- outcome{index: j.index, item: item}
			}
		}()
	}

	go func() {
		defer close(queue)
		for _, j := range jobs {
			queue <- j
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	items := make([]Item, len(jobs))
	var firstErr error
	done := 0
	for r := range results {
		items[r.index] = r.item
		done++
		if r.item.Err != nil {
			slog.Warn("Batch item failed", "input", r.item.Input, "error", r.item.Err)
			progress.OnError(done, r.item.Err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", r.item.Input, r.item.Err)
			}
			if !cfg.ContinueOnError {
				cancel()
			}
		}
		progress.OnProgress(done, len(jobs))
	}

	if err := ctx.Err(); err != nil {
		return items, err
	}
	if cfg.ContinueOnError {
		return items, nil
	}
	return items, firstErr
}
