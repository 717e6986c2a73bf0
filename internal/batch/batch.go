// Package batch fans a directory of scanned documents out across a fixed
// pool of workers.
package batch

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/scanrouter/internal/models"
	"github.com/Lllllllleong/scanrouter/internal/priority"
)

// Processor handles one work item. Failures are reported in the result's Err.
type Processor interface {
	Process(ctx context.Context, logger *slog.Logger, item models.WorkItem) models.FileResult
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, logger *slog.Logger, item models.WorkItem) models.FileResult

func (f ProcessorFunc) Process(ctx context.Context, logger *slog.Logger, item models.WorkItem) models.FileResult {
	return f(ctx, logger, item)
}

// Orchestrator runs a Processor over every file of a source directory.
type Orchestrator struct {
	processor Processor
	workers   int
	init      func() error
	logger    *slog.Logger
	mode      string
	onResult  func(models.FileResult)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets the pool size. Non-positive values keep the default.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithLogger sets the log sink handed to every worker.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithWorkerInit replaces the hook each worker runs once before taking work.
// A nil hook disables it.
func WithWorkerInit(fn func() error) Option {
	return func(o *Orchestrator) {
		o.init = fn
	}
}

// WithMode labels the run summary with the routing mode.
func WithMode(mode string) Option {
	return func(o *Orchestrator) {
		o.mode = mode
	}
}

// WithResultHook registers a callback invoked for each result as it is drained.
func WithResultHook(fn func(models.FileResult)) Option {
	return func(o *Orchestrator) {
		o.onResult = fn
	}
}

// New returns an Orchestrator with one worker per CPU whose workers lower
// their own scheduling priority at startup.
func New(p Processor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		processor: p,
		workers:   runtime.NumCPU(),
		init:      priority.Lower,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Enumerate lists the files directly inside src. Subdirectories are not
// entered.
func Enumerate(src string) ([]string, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, fmt.Errorf("failed to list source directory %s: %w", src, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(src, e.Name()))
	}
	return paths, nil
}

// NewRunID returns a time-ordered identifier for a batch run.
func NewRunID() string {
	return ulid.MustNew(ulid.Now(), ulid.Monotonic(rand.Reader, 0)).String()
}

// Run processes every file in src into dst and blocks until all of them have
// completed or failed. A failing file never stops the others; only a failure
// to list src is returned as an error. Results arrive in completion order.
func (o *Orchestrator) Run(ctx context.Context, src, dst string) (models.RunSummary, error) {
	summary := models.RunSummary{
		RunID:   NewRunID(),
		Source:  src,
		Dest:    dst,
		Mode:    o.mode,
		Started: time.Now(),
	}
	logCtx := o.logger.With("runId", summary.RunID)

	paths, err := Enumerate(src)
	if err != nil {
		return summary, err
	}
	logCtx.Info("Starting batch.", "source", src, "destination", dst, "files", len(paths), "workers", o.workers)

	work := make(chan models.WorkItem)
	results := make(chan models.FileResult, o.workers)

	var g errgroup.Group
	for id := range o.workers {
		workerLog := logCtx.With("worker", id)
		g.Go(func() error {
			if o.init != nil {
				if err := o.init(); err != nil {
					workerLog.Warn("Worker init hook failed.", "error", err)
				}
			}
			for item := range work {
				results <- o.process(ctx, workerLog, item)
			}
			return nil
		})
	}

	go func() {
		defer close(work)
		for _, p := range paths {
			work <- models.WorkItem{Path: p, DestDir: dst, RunID: summary.RunID}
		}
	}()
	go func() {
		g.Wait()
		close(results)
	}()

	for res := range results {
		summary.Results = append(summary.Results, res)
		if o.onResult != nil {
			o.onResult(res)
		}
	}
	summary.Elapsed = time.Since(summary.Started)

	logCtx.Info("Batch complete.", "processed", len(summary.Results), "failed", len(summary.Failed()), "elapsed", summary.Elapsed)
	return summary, nil
}

// process runs one item and converts a panic into a failed result.
func (o *Orchestrator) process(ctx context.Context, logger *slog.Logger, item models.WorkItem) (res models.FileResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = models.FileResult{
				Item:   item,
				Status: models.StatusFailed,
				Err:    fmt.Errorf("panic: %v", r),
			}
			logger.Error("Worker recovered from panic.", "file", item.Path, "stack", string(debug.Stack()))
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			logger.Error("Processing failed.", "file", item.Path, "error", res.Err)
			return
		}
		logger.Info("Processing complete.", "file", item.Path, "status", res.Status, "outputs", res.Outputs, "duration", res.Duration)
	}()

	res = o.processor.Process(ctx, logger, item)
	res.Item = item
	if res.Err != nil && res.Status == "" {
		res.Status = models.StatusFailed
	}
	return res
}
