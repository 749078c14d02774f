// Package scheduler executes a batch of prepared runs with bounded
// parallelism. Dependency gating happens before submission: a run is only
// handed to a worker slot once every run it depends on has succeeded, and
// a failed dependency fails the dependent without spawning a process.
// Cancellation stops new submissions and terminates running children by
// process group.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/structbio/ddgscan/internal/errdefs"
	"github.com/structbio/ddgscan/internal/run"
)

// Config holds scheduler configuration.
type Config struct {
	// Binary is the external engine executable.
	Binary string
	// Workers bounds the number of concurrently running children.
	Workers int
	// Timeout per child process; zero means none. An exceeded timeout
	// marks the run Failed, it never crashes the scheduler.
	Timeout time.Duration
	// GracePeriod between SIGTERM and SIGKILL on cancellation.
	GracePeriod time.Duration
	// Logger is optional.
	Logger *slog.Logger
}

// Result is the outcome of one run in the batch.
type Result struct {
	Name string
	OK   bool
	Err  error
}

// Scheduler runs batches against one engine configuration.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger
	slots  *semaphore.Weighted
}

// New creates a scheduler. Workers below 1 is treated as 1.
func New(cfg Config) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		cfg:    cfg,
		logger: logger,
		slots:  semaphore.NewWeighted(int64(cfg.Workers)),
	}
}

// Execute runs the batch and returns one Result per input run, in
// completion order. The input must be acyclic (the repair -> mutate ->
// interface chain is by construction). Runs whose dependencies completed
// in an earlier batch are gated on those recorded states.
func (s *Scheduler) Execute(ctx context.Context, runs []run.Runner) []Result {
	if len(runs) == 0 {
		return nil
	}

	inBatch := make(map[*run.Run]bool, len(runs))
	for _, r := range runs {
		inBatch[r.Base()] = true
	}

	// remaining counts unfinished in-batch dependencies; dependents maps
	// a run to the batch members waiting on it.
	remaining := make(map[*run.Run]*atomic.Int32, len(runs))
	dependents := make(map[*run.Run][]run.Runner, len(runs))
	for _, r := range runs {
		count := int32(0)
		for _, dep := range r.Base().Deps() {
			db := dep.Base()
			if inBatch[db] && !db.State().Terminal() {
				count++
				dependents[db] = append(dependents[db], r)
			}
		}
		c := &atomic.Int32{}
		c.Store(count)
		remaining[r.Base()] = c
	}

	ready := make(chan run.Runner, len(runs))
	for _, r := range runs {
		if remaining[r.Base()].Load() == 0 {
			ready <- r
		}
	}

	var (
		mu      sync.Mutex
		results []Result
		wg      sync.WaitGroup
	)
	wg.Add(len(runs))
	go func() {
		wg.Wait()
		close(ready)
	}()

	record := func(r run.Runner) {
		base := r.Base()
		mu.Lock()
		results = append(results, Result{Name: base.Name, OK: base.State() == run.Succeeded, Err: base.Err()})
		mu.Unlock()

		for _, d := range dependents[base] {
			if remaining[d.Base()].Add(-1) == 0 {
				ready <- d
			}
		}
		wg.Done()
	}

	for r := range ready {
		go func(r run.Runner) {
			s.runOne(ctx, r)
			record(r)
		}(r)
	}

	return results
}

// runOne drives a single run to its terminal state.
func (s *Scheduler) runOne(ctx context.Context, r run.Runner) {
	base := r.Base()
	logger := s.logger.With("run", base.Name)

	if dep := failedDep(r); dep != nil {
		logger.Warn("skipping run, dependency failed", "dependency", dep.Name)
		base.MarkFailed(errdefs.RunFailure(fmt.Sprintf("skipped: dependency %s failed", dep.Name), dep.Err()))
		return
	}

	if ctx.Err() != nil {
		logger.Warn("not submitting run, batch canceled")
		base.MarkFailed(errdefs.RunFailure("batch canceled before submission", ctx.Err()))
		return
	}

	// Re-stage so inputs produced by dependencies are linked now.
	if err := r.Prepare(); err != nil {
		logger.Error("staging failed", "error", err)
		base.MarkFailed(err)
		return
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		base.MarkFailed(errdefs.RunFailure("batch canceled while waiting for a worker slot", err))
		return
	}
	defer s.slots.Release(1)

	logger.Debug("spawning engine process", "binary", s.cfg.Binary, "dir", base.Dir)
	start := time.Now()
	err := s.spawn(ctx, r)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		logger.Error("run failed", "error", err, "elapsed", elapsed)
		base.MarkFailed(err)
		return
	}
	logger.Info("run succeeded", "elapsed", elapsed)
	base.MarkSucceeded()
}

// failedDep returns the first failed dependency, if any.
func failedDep(r run.Runner) *run.Run {
	for _, dep := range r.Base().Deps() {
		if dep.Base().State() == run.Failed {
			return dep.Base()
		}
	}
	return nil
}
