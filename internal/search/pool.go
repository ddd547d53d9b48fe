package search

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// pool runs a batch of tasks on at most limit goroutines. Each task writes
// into its own slot, so callers read results in submission order no matter
// which task finished first.
type pool struct {
	limit int
}

func (p pool) run(ctx context.Context, n int, task func(ctx context.Context, i int)) {
	if n == 0 {
		return
	}
	if p.limit <= 1 || n == 1 {
		for i := 0; i < n; i++ {
			task(ctx, i)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(p.limit)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			task(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

// CallWithTimeout runs fn and stops waiting for it once timeout elapses or
// ctx is done. A function that ignores its context keeps running in the
// background but its result is discarded. A non-positive timeout only waits
// on ctx.
func CallWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, errors.Mark(err, ErrCancelled)
	}

	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(callCtx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return zero, errors.Mark(r.err, ErrNodeTimeout)
		}
		return r.v, r.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, errors.Mark(err, ErrCancelled)
		}
		return zero, errors.Wrapf(ErrNodeTimeout, "no result within %s", timeout)
	}
}
