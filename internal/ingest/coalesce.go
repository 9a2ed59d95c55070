package ingest

import (
	"context"
	"fmt"
	"sync"
)

type call struct {
	done    chan struct{}
	cancel  context.CancelFunc
	waiters int
	res     Result
	err     error

	// abandoned is set once every waiter has left and the execution was cancelled.
	abandoned bool
}

// coalescer runs at most one execution per key. Unlike singleflight the execution is
// cancelled once every waiter has given up. The key stays taken until the cancelled
// execution has returned, a caller arriving in between waits for that and then starts
// a fresh execution instead of joining the cancelled one.
type coalescer struct {
	mu    sync.Mutex
	calls map[string]*call
}

func newCoalescer() *coalescer {
	return &coalescer{calls: map[string]*call{}}
}

func (c *coalescer) do(ctx context.Context, key string, fn func(ctx context.Context) (Result, error)) (Result, error) {
	c.mu.Lock()
	cl, ok := c.calls[key]
	for ok && cl.abandoned {
		c.mu.Unlock()
		select {
		case <-cl.done:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
		c.mu.Lock()
		cl, ok = c.calls[key]
	}
	if !ok {
		// the execution keeps the values (trace) of the caller that started it
		execCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		cl = &call{done: make(chan struct{}), cancel: cancel}
		c.calls[key] = cl
		go c.run(execCtx, key, cl, fn)
	}
	cl.waiters++
	c.mu.Unlock()

	select {
	case <-cl.done:
		return cl.res, cl.err
	case <-ctx.Done():
		c.leave(cl)
		return Result{}, ctx.Err()
	}
}

func (c *coalescer) leave(cl *call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl.waiters--
	if cl.waiters > 0 {
		return
	}
	cl.abandoned = true
	cl.cancel()
}

func (c *coalescer) run(ctx context.Context, key string, cl *call, fn func(ctx context.Context) (Result, error)) {
	defer func() {
		if r := recover(); r != nil {
			cl.res = Result{}
			cl.err = fmt.Errorf("ingest %s panicked: %v", key, r)
		}
		c.mu.Lock()
		delete(c.calls, key)
		c.mu.Unlock()
		cl.cancel()
		close(cl.done)
	}()
	cl.res, cl.err = fn(ctx)
}

// inflight is the number of executions currently running.
func (c *coalescer) inflight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
