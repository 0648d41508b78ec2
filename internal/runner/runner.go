// Package runner orchestrates batch recomputation. The engines themselves
// have no notion of "periodic": this layer enumerates keys, fans them out
// over a bounded worker pool with per-key mutual exclusion, schedules the
// recurring jobs, and owns retry policy for dependency faults.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/oneweather/oneweather/internal/blend"
	"github.com/oneweather/oneweather/internal/config"
	"github.com/oneweather/oneweather/internal/eval"
	"github.com/oneweather/oneweather/internal/metrics"
	"github.com/oneweather/oneweather/internal/models"
	"github.com/oneweather/oneweather/internal/store"
)

type Runner struct {
	store   *store.Store
	eval    *eval.Engine
	blend   *blend.Engine
	cfg     config.Config
	clock   clockwork.Clock
	logger  *slog.Logger
	workers int
	locks   *keyLocks
}

func New(st *store.Store, evalEngine *eval.Engine, blendEngine *blend.Engine, cfg config.Config, clock clockwork.Clock, logger *slog.Logger) *Runner {
	return &Runner{
		store:   st,
		eval:    evalEngine,
		blend:   blendEngine,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		workers: runtime.NumCPU(),
		locks:   newKeyLocks(),
	}
}

// SetWorkers overrides the worker pool size; values below 1 are ignored.
func (r *Runner) SetWorkers(n int) {
	if n >= 1 {
		r.workers = n
	}
}

// BatchStats summarizes one batch run. Skipped counts keys that had nothing
// to compute (insufficient pairs, no sources); Failed counts dependency
// faults.
type BatchStats struct {
	Completed int
	Skipped   int
	Failed    int
}

type task struct {
	key string
	run func(context.Context) error
}

// EvaluateAll recomputes performance profiles for every (source, cell,
// variable) with data in the rolling window, one task per key and horizon
// bucket. Key-level failures never abort the batch; the first dependency
// fault is returned after the batch completes so the scheduler can retry.
func (r *Runner) EvaluateAll(ctx context.Context) (BatchStats, error) {
	start := r.clock.Now()
	windowEnd := start.UTC()
	windowStart := windowEnd.Add(-r.cfg.EvalWindow)

	keys, err := r.store.ListEvaluationKeys(ctx, windowStart, windowEnd)
	if err != nil {
		return BatchStats{}, fmt.Errorf("list evaluation keys: %w", err)
	}

	var tasks []task
	for _, k := range keys {
		for _, bucket := range r.cfg.HorizonBuckets {
			k, bucket := k, bucket
			tasks = append(tasks, task{
				key: fmt.Sprintf("eval/%s/%s/%s/%s", k.Source, k.Cell, bucket.Name, k.Variable),
				run: func(ctx context.Context) error {
					_, err := r.eval.Evaluate(ctx, k.Source, k.Cell, bucket, k.Variable, windowStart, windowEnd)
					return err
				},
			})
		}
	}

	stats, depErr := r.runTasks(ctx, tasks)
	metrics.BatchDuration.WithLabelValues("evaluate").Observe(r.clock.Since(start).Seconds())
	r.logger.Info("evaluation batch done",
		"keys", len(tasks), "completed", stats.Completed, "skipped", stats.Skipped, "failed", stats.Failed)
	return stats, depErr
}

// BlendAll recomputes blended points for every (cell, valid time, variable)
// with forecast data from now out to the longest configured horizon.
func (r *Runner) BlendAll(ctx context.Context) (BatchStats, error) {
	start := r.clock.Now()
	from := start.UTC()
	to := from.Add(r.maxTargetOffset() + time.Hour)

	keys, err := r.store.ListBlendKeys(ctx, from, to)
	if err != nil {
		return BatchStats{}, fmt.Errorf("list blend keys: %w", err)
	}

	var tasks []task
	for _, k := range keys {
		k := k
		tasks = append(tasks, task{
			key: fmt.Sprintf("blend/%s/%d/%s", k.Cell, k.ValidTime.Unix(), k.Variable),
			run: func(ctx context.Context) error {
				_, err := r.blend.Blend(ctx, k.Cell, k.ValidTime, k.Variable)
				return err
			},
		})
	}

	stats, depErr := r.runTasks(ctx, tasks)
	metrics.BatchDuration.WithLabelValues("blend").Observe(r.clock.Since(start).Seconds())
	r.logger.Info("blend batch done",
		"keys", len(tasks), "completed", stats.Completed, "skipped", stats.Skipped, "failed", stats.Failed)
	return stats, depErr
}

// Sweep deletes rows past the retention horizon.
func (r *Runner) Sweep(ctx context.Context) error {
	cutoff := r.clock.Now().UTC().Add(-r.cfg.Retention)
	n, err := r.store.SweepExpired(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	r.logger.Info("retention sweep done", "deleted", n, "cutoff", cutoff)
	return nil
}

// runTasks executes tasks on the worker pool. Each worker checks ctx
// between tasks, so cancellation is cooperative at key granularity; a key
// computation already in progress runs to completion.
func (r *Runner) runTasks(ctx context.Context, tasks []task) (BatchStats, error) {
	jobs := make(chan task)
	var (
		mu     sync.Mutex
		stats  BatchStats
		depErr error
	)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				if ctx.Err() != nil {
					continue
				}
				err := r.runOne(ctx, t)

				mu.Lock()
				switch {
				case err == nil:
					stats.Completed++
				case errors.Is(err, models.ErrInsufficientData) || errors.Is(err, models.ErrNoData):
					stats.Skipped++
				default:
					stats.Failed++
					if depErr == nil && ctx.Err() == nil {
						depErr = err
					}
				}
				mu.Unlock()
			}
		}()
	}

	for _, t := range tasks {
		jobs <- t
	}
	close(jobs)
	wg.Wait()

	if depErr != nil {
		r.logger.Error("batch had dependency failures", "failed", stats.Failed, "error", depErr)
	}
	return stats, depErr
}

func (r *Runner) runOne(ctx context.Context, t task) error {
	r.locks.Lock(t.key)
	defer r.locks.Unlock(t.key)
	return t.run(ctx)
}

func (r *Runner) maxTargetOffset() time.Duration {
	var max time.Duration
	for _, o := range r.cfg.TargetOffsets {
		if o > max {
			max = o
		}
	}
	return max
}

// Start schedules the recurring recomputation and retention jobs and blocks
// until the context is cancelled. Batches that fail on a dependency fault
// are retried with exponential backoff; retry lives here, not in the
// engines.
func (r *Runner) Start(ctx context.Context, recomputeEvery, sweepEvery time.Duration) error {
	c := cron.New()

	_, err := c.AddFunc(fmt.Sprintf("@every %s", recomputeEvery), func() {
		r.withRetry(ctx, "recompute", func() error {
			if _, err := r.EvaluateAll(ctx); err != nil {
				return err
			}
			_, err := r.BlendAll(ctx)
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("schedule recompute: %w", err)
	}

	_, err = c.AddFunc(fmt.Sprintf("@every %s", sweepEvery), func() {
		r.withRetry(ctx, "sweep", func() error { return r.Sweep(ctx) })
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (r *Runner) withRetry(ctx context.Context, job string, op func() error) {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	err := backoff.Retry(func() error {
		err := op()
		if err == nil || errors.Is(err, models.ErrDependency) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	if err != nil {
		r.logger.Error("scheduled job failed", "job", job, "error", err)
	}
}
