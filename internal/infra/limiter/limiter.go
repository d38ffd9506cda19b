// Package limiter bounds the number of outstanding remote calls
// system-wide. Discovery and execution share one budget; health probes run
// outside it.
package limiter

import (
	"context"

	"golang.org/x/sync/semaphore"

	"toolmesh/internal/domain"
)

type Limiter struct {
	sem     *semaphore.Weighted
	size    int64
	metrics domain.Metrics
}

func New(size int, metrics domain.Metrics) *Limiter {
	if size <= 0 {
		size = domain.DefaultParallelLimit
	}
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &Limiter{
		sem:     semaphore.NewWeighted(int64(size)),
		size:    int64(size),
		metrics: metrics,
	}
}

func (l *Limiter) Size() int {
	return int(l.size)
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.metrics.IncInflight()
	return nil
}

func (l *Limiter) Release() {
	l.metrics.DecInflight()
	l.sem.Release(1)
}

// Do runs fn while holding one slot.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn(ctx)
}
