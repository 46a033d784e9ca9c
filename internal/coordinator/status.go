package coordinator

import (
	"time"

	"dialogd/pkg/types"
)

// Status builds a detailed status response for /status.
func (c *Coordinator) Status() types.StatusResponse {
	c.mu.RLock()
	resp := types.StatusResponse{
		State:               string(c.state),
		CacheCapacity:       c.win.Capacity(),
		MaxBatchSize:        c.maxBatch,
		CachedConversation:  c.cache.Conversation,
		CachedTokens:        c.cache.Len,
		CurrentConversation: c.current,
		ActiveSessions:      len(c.sessions),
		QueueLen:            len(c.jobs),
		MaxQueueDepth:       cap(c.jobs),
		LastError:           c.lastErr,
		UptimeSeconds:       int64(time.Since(c.startTime).Seconds()),
		ServerTimeUnix:      time.Now().Unix(),
	}
	if c.inflight {
		resp.Inflight = 1
	}
	c.mu.RUnlock()
	resp.Conversations = c.store.Len()
	resp.TurnsTotal = c.turns.Load()
	resp.RejectedTotal = c.rejected.Load()
	resp.CancelledTotal = c.cancelled.Load()
	resp.EvictionsTotal = c.evictions.Load()
	return resp
}
