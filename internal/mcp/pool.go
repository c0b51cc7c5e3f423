package mcp

import (
	"context"
	"fmt"
	"time"

	"ltmc/internal/apperrors"
)

// workerPool bounds concurrent tool executions. The protocol loop
// stays single-flow; blocking work runs here under a deadline.
type workerPool struct {
	slots chan struct{}
}

func newWorkerPool(size int) *workerPool {
	if size <= 0 {
		size = 10
	}
	return &workerPool{slots: make(chan struct{}, size)}
}

// run executes fn under the deadline. The deadline covers both slot
// acquisition and execution. A function still running when the
// deadline fires keeps its context canceled so it aborts at the next
// suspension point; the caller gets a Timeout immediately.
func (p *workerPool) run(ctx context.Context, op string, deadline time.Duration, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, apperrors.New(apperrors.ErrorCodeTimeout,
			fmt.Sprintf("%s timed out waiting for a worker", op), ctx.Err())
	}

	type outcome struct {
		value interface{}
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() { <-p.slots }()
		v, err := fn(ctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		return nil, apperrors.New(apperrors.ErrorCodeTimeout,
			fmt.Sprintf("%s exceeded its %s deadline", op, deadline), ctx.Err())
	}
}
