package coordinator

import (
	"context"
	"sort"
)

// Start validates params and queues a generation turn for prompt. It returns
// as soon as the turn is admitted. An explicit conversationID must exist; an
// empty one resolves, when the turn runs, to the current conversation or to a
// new one. Cancelling ctx cancels the session.
func (c *Coordinator) Start(ctx context.Context, prompt string, params Params, conversationID string) (*Handle, error) {
	p := params.WithDefaults(c.defaults)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if conversationID != "" {
		if _, ok := c.store.Get(conversationID); !ok {
			return nil, conversationNotFound(conversationID)
		}
	}
	s := newSession(prompt, p, conversationID, c.fragmentBuffer)
	s.stopWatch = context.AfterFunc(ctx, func() { c.Cancel(s.id) })

	c.mu.Lock()
	c.sessions[s.id] = s
	active := len(c.sessions)
	c.mu.Unlock()

	if err := c.enqueue(ctx, job{turn: s}); err != nil {
		s.stopWatch()
		c.mu.Lock()
		delete(c.sessions, s.id)
		active = len(c.sessions)
		c.mu.Unlock()
		activeSessions.Set(float64(active))
		return nil, err
	}
	activeSessions.Set(float64(active))
	c.publish(EventTurnQueued, s, conversationID, map[string]any{"max_tokens": p.MaxTokens})
	return &Handle{s: s, c: c}, nil
}

// Cancel requests cancellation of an active session. It is idempotent and
// reports whether the session was known.
func (c *Coordinator) Cancel(sessionID string) bool {
	c.mu.RLock()
	s := c.sessions[sessionID]
	c.mu.RUnlock()
	if s == nil {
		return false
	}
	if s.cancel() {
		cancellationsTotal.Inc()
		c.log.Debug().Str("session_id", sessionID).Msg("session cancelled")
	}
	return true
}

// CancelAll cancels every active session and returns their ids.
func (c *Coordinator) CancelAll() []string {
	ids := c.ActiveSessionIDs()
	for _, id := range ids {
		c.Cancel(id)
	}
	return ids
}

// SessionInfo returns a snapshot of an active session.
func (c *Coordinator) SessionInfo(sessionID string) (SessionInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.sessions[sessionID]
	if s == nil {
		return SessionInfo{}, false
	}
	return infoLocked(s), true
}

// Sessions returns snapshots of every active session ordered by start time.
func (c *Coordinator) Sessions() []SessionInfo {
	c.mu.RLock()
	out := make([]SessionInfo, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, infoLocked(s))
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ActiveSessionIDs lists active session ids ordered by start time.
func (c *Coordinator) ActiveSessionIDs() []string {
	infos := c.Sessions()
	ids := make([]string, len(infos))
	for i, in := range infos {
		ids[i] = in.ID
	}
	return ids
}

func infoLocked(s *session) SessionInfo {
	state := "queued"
	if s.running {
		state = "running"
	}
	return SessionInfo{
		ID:              s.id,
		ConversationID:  s.convID,
		State:           state,
		StartedAt:       s.startedAt,
		GeneratedTokens: int(s.generated.Load()),
		Cancelled:       s.cancelled.Load(),
		Params:          s.params,
	}
}
