package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dialogd/internal/persist"
)

// ErrNoSink is returned by Persist and Restore when no sink is configured.
var ErrNoSink = errors.New("coordinator: no snapshot sink configured")

// Persist exports every conversation to the configured sink.
func (c *Coordinator) Persist(ctx context.Context) error {
	if c.sink == nil {
		return ErrNoSink
	}
	data, err := c.ExportConversations()
	if err != nil {
		return fmt.Errorf("export conversations: %w", err)
	}
	if err := c.sink.Save(ctx, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	c.log.Debug().Int("bytes", len(data)).Int("conversations", c.store.Len()).Msg("snapshot saved")
	return nil
}

// Restore imports the last saved snapshot. A missing snapshot is not an error.
func (c *Coordinator) Restore(ctx context.Context) (int, error) {
	if c.sink == nil {
		return 0, ErrNoSink
	}
	data, err := c.sink.Load(ctx)
	if errors.Is(err, persist.ErrNoSnapshot) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}
	n, err := c.ImportConversations(ctx, data)
	if err != nil {
		return 0, err
	}
	c.log.Info().Int("conversations", n).Msg("snapshot restored")
	return n, nil
}

// Autosave persists every interval until ctx ends. Failures are logged and
// retried on the next tick.
func (c *Coordinator) Autosave(ctx context.Context, interval time.Duration) error {
	if c.sink == nil || interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := c.Persist(ctx); err != nil && ctx.Err() == nil {
				c.log.Warn().Err(err).Msg("autosave failed")
			}
		}
	}
}
