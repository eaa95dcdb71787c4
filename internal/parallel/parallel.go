package parallel

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result holds the outcome of one task.
type Result[T any] struct {
	Name    string
	Value   T
	Err     error
	Elapsed time.Duration
}

// OK reports whether the task succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Task is a named unit of work.
type Task[T any] struct {
	Name string
	Fn   func(ctx context.Context) (T, error)
}

// Settle runs tasks concurrently, at most limit at a time, and waits for all
// of them to finish whether they succeed or fail. One failure never cancels
// its siblings. Results come back in submission order. A panicking task is
// recorded as a failure.
func Settle[T any](ctx context.Context, tasks []Task[T], limit int) []Result[T] {
	if limit < 1 {
		limit = 4
	}

	results := make([]Result[T], len(tasks))
	var g errgroup.Group
	g.SetLimit(limit)

	for i, task := range tasks {
		g.Go(func() error {
			start := time.Now()
			results[i] = run(ctx, task)
			results[i].Elapsed = time.Since(start)
			return nil // collected in results, never fails the group
		})
	}

	_ = g.Wait()
	return results
}

func run[T any](ctx context.Context, task Task[T]) (res Result[T]) {
	res.Name = task.Name
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("task %s panicked: %v", task.Name, p)
		}
	}()
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	res.Value, res.Err = task.Fn(ctx)
	return res
}

// Batches splits items into consecutive chunks of at most size.
func Batches[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// Failed returns the results that carry an error.
func Failed[T any](results []Result[T]) []Result[T] {
	var out []Result[T]
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
