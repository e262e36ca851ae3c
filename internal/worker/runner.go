// Package worker fans per-file analysis out across a bounded goroutine pool
// and reassembles the results in declared order.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/katiefenn/warden/internal/model"
	"github.com/katiefenn/warden/internal/progress"
)

// AnalyzeFunc runs the analysis for one staged file path.
type AnalyzeFunc func(ctx context.Context, path string) model.FileResult

type RunOptions struct {
	// MaxParallel bounds concurrent analyses. Zero or less picks a default
	// from the host CPU count.
	MaxParallel int
	Sink        progress.Sink
}

type indexedResult struct {
	idx int
	res model.FileResult
}

// RunAll analyzes every file across a bounded pool. Results come back in
// the order files were given, never completion order, so identical inputs
// produce identical reports. Cancellation stops files that have not
// started; analyses already in flight run to completion so no result is
// half-built.
func RunAll(ctx context.Context, files []string, analyze AnalyzeFunc, opts RunOptions) []model.FileResult {
	if len(files) == 0 || analyze == nil {
		return nil
	}
	if opts.Sink == nil {
		opts.Sink = progress.NoopSink{}
	}
	if opts.MaxParallel < 1 {
		opts.MaxParallel = defaultParallelism()
	}
	if opts.MaxParallel > len(files) {
		opts.MaxParallel = len(files)
	}

	sem := make(chan struct{}, opts.MaxParallel)
	resCh := make(chan indexedResult, len(files))
	var wg sync.WaitGroup

	for idx, path := range files {
		wg.Add(1)
		go func(idx int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			resCh <- indexedResult{idx: idx, res: runOne(ctx, path, analyze, opts.Sink)}
		}(idx, path)
	}

	wg.Wait()
	close(resCh)

	ordered := make([]model.FileResult, len(files))
	for item := range resCh {
		if item.idx < 0 || item.idx >= len(ordered) {
			continue
		}
		ordered[item.idx] = item.res
	}
	return ordered
}

func runOne(ctx context.Context, path string, analyze AnalyzeFunc, sink progress.Sink) model.FileResult {
	if err := ctx.Err(); err != nil {
		res := model.FileResult{
			Path:   path,
			Status: model.FileSkipped,
			Error:  "canceled before analysis started",
		}
		sink.Emit(progress.Event{
			Type:   progress.EventFileFinished,
			At:     time.Now().UTC(),
			File:   res.Path,
			Status: res.Status,
			Error:  res.Error,
		})
		return res
	}

	sink.Emit(progress.Event{
		Type: progress.EventFileStarted,
		At:   time.Now().UTC(),
		File: path,
	})

	// A cancel that lands mid-file must not leave a torn result behind, and
	// a panic on one hostile file must not take down the whole audit.
	res := func() (out model.FileResult) {
		defer func() {
			if r := recover(); r != nil {
				out = model.FileResult{
					Path:   path,
					Status: model.FileSkipped,
					Error:  fmt.Sprintf("analysis panic: %v", r),
				}
			}
		}()
		return analyze(context.WithoutCancel(ctx), path)
	}()

	sink.Emit(progress.Event{
		Type:         progress.EventFileFinished,
		At:           time.Now().UTC(),
		File:         res.Path,
		Status:       res.Status,
		FindingCount: len(res.Findings),
		DurationMS:   res.DurationMS,
		Error:        res.Error,
	})
	return res
}

func defaultParallelism() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	if n > 8 {
		return 8
	}
	return n
}
