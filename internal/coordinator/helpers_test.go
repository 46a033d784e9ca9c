package coordinator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dialogd/internal/engine/enginetest"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestCoordinator(t *testing.T, eng *enginetest.Engine, mutate func(*Config)) (*Coordinator, *MemoryPublisher) {
	t.Helper()
	pub := NewMemoryPublisher()
	cfg := Config{Engine: eng, Publisher: pub, MaxWait: time.Second, DrainTimeout: time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c, pub
}

// drain reads every fragment and returns the texts and the terminal error.
func drain(h *Handle) ([]string, error) {
	var texts []string
	var last error
	for f := range h.Fragments() {
		if f.Err != nil {
			last = f.Err
			continue
		}
		texts = append(texts, f.Text)
	}
	return texts, last
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("w ", n))
}

func waitRunning(t *testing.T, c *Coordinator, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		info, ok := c.SessionInfo(id)
		return ok && info.State == "running"
	}, 2*time.Second, 5*time.Millisecond)
}
