// Package pool runs a batch of tasks with a capped number in flight.
// One task's failure is captured as data and never cancels its siblings,
// which is how the pipeline turns item-level errors into partial success
// instead of batch aborts.
package pool

import (
	"context"
	"fmt"
	"sync"
)

// Settled is the outcome of one task. Exactly one of Value or Err is
// meaningful; Err != nil marks the rejected case.
type Settled[R any] struct {
	Value R
	Err   error
}

// Ok reports whether the task fulfilled.
func (s Settled[R]) Ok() bool {
	return s.Err == nil
}

// Map invokes fn for every item with at most limit invocations in flight.
// Results are written back positionally: out[i] always corresponds to
// items[i] no matter which task finished first. Map itself only fails on
// invalid limit; task errors land in the settled slice.
func Map[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T, index int) (R, error)) ([]Settled[R], error) {
	if limit <= 0 {
		return nil, fmt.Errorf("concurrency limit must be positive, got %d", limit)
	}
	out := make([]Settled[R], len(items))
	if len(items) == 0 {
		return out, nil
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i := range items {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					out[i].Err = fmt.Errorf("task %d panicked: %v", i, r)
				}
			}()
			v, err := fn(ctx, items[i], i)
			if err != nil {
				out[i].Err = err
				return
			}
			out[i].Value = v
		}(i)
	}
	wg.Wait()
	return out, nil
}
