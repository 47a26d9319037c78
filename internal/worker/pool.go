package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool runs batches of jobs with bounded concurrency
type Pool struct {
	workers int
}

// NewPool creates a new worker pool with the specified number of workers
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Workers returns the concurrency bound
func (p *Pool) Workers() int {
	return p.workers
}

// Run executes jobs and returns their results in job order, whatever order they
// complete in. A job failure is carried in its Result and never stops the batch.
func (p *Pool) Run(ctx context.Context, jobs []Job) []Result {
	return Map(ctx, p.workers, jobs, func(ctx context.Context, _ int, job Job) Result {
		return job.Execute(ctx)
	})
}

// Map applies fn to every item with at most workers calls in flight. Output index i
// holds fn's result for items[i].
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, i int, item T) R) []R {
	out := make([]R, len(items))
	if len(items) == 0 {
		return out
	}
	if workers <= 0 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			out[i] = fn(ctx, i, item)
			return nil
		})
	}
	_ = g.Wait()

	return out
}
