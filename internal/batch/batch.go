// Package batch fans independent subjects out to a bounded worker pool.
//
// Each subject runs to completion on its own; one subject's error is
// recorded in its result and never cancels the others. Cancelling the
// parent context stops subjects that have not started yet.
package batch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one subject.
type Result[T any] struct {
	Subject  string
	Value    T
	Err      error
	Started  bool
	Duration time.Duration
}

// Run calls fn for every subject with at most jobs calls in flight and
// returns results in subject order.
func Run[T any](ctx context.Context, subjects []string, jobs int, fn func(context.Context, string) (T, error)) []Result[T] {
	if jobs < 1 {
		jobs = 1
	}
	results := make([]Result[T], len(subjects))

	var g errgroup.Group
	g.SetLimit(jobs)
	for i, subject := range subjects {
		results[i].Subject = subject
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			start := time.Now()
			value, err := fn(ctx, subject)
			results[i] = Result[T]{
				Subject:  subject,
				Value:    value,
				Err:      err,
				Started:  true,
				Duration: time.Since(start),
			}
			// Errors stay in the result so other subjects keep running.
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Failed counts results with an error.
func Failed[T any](results []Result[T]) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
