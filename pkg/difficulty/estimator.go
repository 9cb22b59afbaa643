package difficulty

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Estimator produces a difficulty estimate for a query. Implementations must
// be safe for concurrent use.
type Estimator interface {
	Estimate(ctx context.Context, query string) (*Estimate, error)
}

// BatchEstimator is implemented by estimators with a native batch path.
// Estimators without one get a sequential pass from Batch.
type BatchEstimator interface {
	EstimateBatch(ctx context.Context, queries []string) ([]*Estimate, error)
}

// Batch estimates every query in order. When the estimator implements
// BatchEstimator its native method is used; otherwise the queries are mapped
// sequentially over Estimate. Output index i always corresponds to input
// index i.
func Batch(ctx context.Context, est Estimator, queries []string) ([]*Estimate, error) {
	if be, ok := est.(BatchEstimator); ok {
		return be.EstimateBatch(ctx, queries)
	}

	out := make([]*Estimate, len(queries))
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, err := est.Estimate(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("estimate query %d: %w", i, err)
		}
		out[i] = e
	}
	return out, nil
}

// Parallel wraps an Estimator with a bounded concurrent batch. Workers stop
// early when the context is cancelled or any estimate fails; outputs stay
// positionally aligned with inputs.
type Parallel struct {
	est   Estimator
	limit int
}

// NewParallel wraps est with a concurrency bound. A limit below 1 is
// treated as 1.
func NewParallel(est Estimator, limit int) *Parallel {
	if limit < 1 {
		limit = 1
	}
	return &Parallel{est: est, limit: limit}
}

// Estimate delegates single queries to the wrapped estimator.
func (p *Parallel) Estimate(ctx context.Context, query string) (*Estimate, error) {
	return p.est.Estimate(ctx, query)
}

// EstimateBatch estimates all queries under the configured bound.
func (p *Parallel) EstimateBatch(ctx context.Context, queries []string) ([]*Estimate, error) {
	out := make([]*Estimate, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)
	for i, q := range queries {
		g.Go(func() error {
			e, err := p.est.Estimate(gctx, q)
			if err != nil {
				return fmt.Errorf("estimate query %d: %w", i, err)
			}
			out[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
