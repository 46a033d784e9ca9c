package coordinator

import (
	"context"
	"time"
)

// Close drains the coordinator:
//   - rejects new work with TooBusy;
//   - waits up to DrainTimeout for queued and running turns to finish;
//   - cancels whatever is left, stops the worker and closes the engine.
//
// Close is idempotent. If ctx ends before the worker stops, the engine is
// left open and ctx.Err() is returned.
func (c *Coordinator) Close(ctx context.Context) error {
	c.closeOnce.Do(func() { c.closeErr = c.drain(ctx) })
	return c.closeErr
}

func (c *Coordinator) drain(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateDraining
	c.mu.Unlock()
	close(c.stopping)
	c.publish(EventDrainStart, nil, "", nil)
	c.admitting.Wait()

	deadline := time.Now().Add(c.drainTimeout)
	for !c.idle() {
		if time.Now().After(deadline) || ctx.Err() != nil {
			c.publish(EventDrainTimeout, nil, "", map[string]any{"queue": len(c.jobs), "active": len(c.ActiveSessionIDs())})
			c.CancelAll()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	close(c.quit)
	var err error
	select {
	case <-c.workerDone:
		err = c.eng.Close()
	case <-ctx.Done():
		err = ctx.Err()
	}

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	c.publish(EventDrainDone, nil, "", nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("coordinator closed with error")
	} else {
		c.log.Info().Msg("coordinator closed")
	}
	return err
}

func (c *Coordinator) idle() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.jobs) == 0 && !c.inflight
}
