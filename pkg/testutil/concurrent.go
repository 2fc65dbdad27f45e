package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"racepass/pkg/platform/sentinel"
)

// ConcurrentResult tracks outcomes of concurrent test operations.
type ConcurrentResult struct {
	Successes   int32
	Errors      int32
	AlreadyUsed int32
	NotFounds   int32
	Expired     int32
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Errors + r.AlreadyUsed + r.NotFounds + r.Expired
}

// Failures returns every non-success outcome. Useful for consume-once
// assertions where the exact failure flavor is racy but the split
// success/failure count is not.
func (r *ConcurrentResult) Failures() int32 {
	return r.Total() - r.Successes
}

// RunConcurrent executes fn in parallel goroutines and collects results.
// The function categorizes errors into success, already_used, not_found,
// expired, or generic error. This helper replaces the common pattern of
// WaitGroup + atomic counters in tests.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var wg sync.WaitGroup
	var successes, errs, alreadyUsed, notFounds, expired atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			err := fn(idx)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				alreadyUsed.Add(1)
			case errors.Is(err, sentinel.ErrNotFound):
				notFounds.Add(1)
			case errors.Is(err, sentinel.ErrExpired):
				expired.Add(1)
			default:
				errs.Add(1)
			}
		}(i)
	}

	wg.Wait()

	return &ConcurrentResult{
		Successes:   successes.Load(),
		Errors:      errs.Load(),
		AlreadyUsed: alreadyUsed.Load(),
		NotFounds:   notFounds.Load(),
		Expired:     expired.Load(),
	}
}

// RunConcurrentCtx executes fn in parallel goroutines with context support.
// Useful for tests that need timeout or cancellation handling.
func RunConcurrentCtx(ctx context.Context, goroutines int, fn func(ctx context.Context, idx int) error) *ConcurrentResult {
	return RunConcurrent(goroutines, func(idx int) error {
		return fn(ctx, idx)
	})
}
