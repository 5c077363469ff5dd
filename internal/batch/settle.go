// Package batch runs a function over a slice of items and collects one
// outcome per item. A failing item never cancels its siblings; callers
// decide afterwards what to keep.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of applying a function to the item at Index.
type Result[T any] struct {
	// Index is the position of the input item.
	Index int
	// Value is the output when Err is nil.
	Value T
	// Err is the per-item failure, if any.
	Err error
}

// Settle applies fn to every item with at most limit calls in flight and
// waits for all of them. Results are returned in input order. A limit of
// zero or less means unbounded.
func Settle[In, Out any](ctx context.Context, items []In, limit int, fn func(context.Context, In) (Out, error)) []Result[Out] {
	results := make([]Result[Out], len(items))
	if len(items) == 0 {
		return results
	}

	// The group's context is not used: per-item errors are captured in
	// results and never returned to the group.
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		g.Go(func() error {
			out, err := fn(ctx, item)
			results[i] = Result[Out]{Index: i, Value: out, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// SettleSequential applies fn to each item in order, one at a time.
// It stops early only when ctx is done; remaining items get ctx.Err().
func SettleSequential[In, Out any](ctx context.Context, items []In, fn func(context.Context, In) (Out, error)) []Result[Out] {
	results := make([]Result[Out], len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			results[i] = Result[Out]{Index: i, Err: err}
			continue
		}
		out, err := fn(ctx, item)
		results[i] = Result[Out]{Index: i, Value: out, Err: err}
	}
	return results
}

// Partition splits results into successful values and failures, both in
// input order.
func Partition[T any](results []Result[T]) (ok []T, failed []Result[T]) {
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
			continue
		}
		ok = append(ok, r.Value)
	}
	return ok, failed
}
