package coordinator

// evict removes least recently updated conversations until room more would
// fit under MaxConversations. The current conversation, the one held in the
// cache, those named by active sessions and keep are never evicted. Runs on
// the worker.
func (c *Coordinator) evict(room int, keep ...string) {
	if c.maxConversations <= 0 {
		return
	}
	pinned := c.pinned(keep...)
	for c.store.Len()+room > c.maxConversations {
		id, ok := c.store.Oldest(pinned...)
		if !ok {
			// nothing evictable; allow the store to grow
			return
		}
		c.store.Clear(id)
		c.evictions.Add(1)
		evictionsTotal.Inc()
		c.publish(EventConversationEvicted, nil, id, nil)
	}
}

func (c *Coordinator) pinned(keep ...string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := append([]string(nil), keep...)
	if c.current != "" {
		out = append(out, c.current)
	}
	if !c.cache.Empty() {
		out = append(out, c.cache.Conversation)
	}
	for _, s := range c.sessions {
		if s.convID != "" {
			out = append(out, s.convID)
		}
	}
	return out
}
