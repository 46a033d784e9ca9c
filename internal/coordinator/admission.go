package coordinator

import (
	"context"
	"time"
)

// job is one unit of work for the worker: a generation turn or a control
// operation touching the store or cache belief.
type job struct {
	turn *session
	run  func()
}

// enqueue reserves a queue slot for j, waiting up to maxWait when the queue
// is full.
func (c *Coordinator) enqueue(ctx context.Context, j job) error {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return tooBusy("coordinator is draining")
	}
	c.admitting.Add(1)
	c.mu.Unlock()
	defer c.admitting.Done()

	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case c.jobs <- j:
		queueDepth.Set(float64(len(c.jobs)))
		return nil
	default:
	}

	timer := time.NewTimer(c.maxWait)
	defer timer.Stop()
	select {
	case c.jobs <- j:
		queueDepth.Set(float64(len(c.jobs)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return tooBusy("queue full")
	case <-c.stopping:
		return tooBusy("coordinator is draining")
	}
}

// do runs fn on the worker and waits for its result.
func (c *Coordinator) do(ctx context.Context, fn func() error) error {
	_, err := doValue(ctx, c, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// doValue runs fn on the worker and waits for its result. If ctx ends first
// the operation still runs when its turn comes, and its result is dropped.
func doValue[T any](ctx context.Context, c *Coordinator, fn func() (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	var zero T
	err := c.enqueue(ctx, job{run: func() {
		v, err := fn()
		done <- outcome{v: v, err: err}
	}})
	if err != nil {
		return zero, err
	}
	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
