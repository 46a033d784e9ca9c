package coordinator

import (
	"context"

	"dialogd/internal/conversation"
)

// StartNewConversation creates an empty conversation and makes it current.
func (c *Coordinator) StartNewConversation(ctx context.Context) (string, error) {
	return c.StartConversation(ctx, "")
}

// StartConversation is StartNewConversation with a title.
func (c *Coordinator) StartConversation(ctx context.Context, title string) (string, error) {
	return doValue(ctx, c, func() (string, error) {
		id := c.createConversation(title)
		c.setCurrent(id)
		return id, nil
	})
}

// ContinueConversation makes an existing conversation current.
func (c *Coordinator) ContinueConversation(ctx context.Context, id string) error {
	return c.do(ctx, func() error {
		if _, ok := c.store.Get(id); !ok {
			return conversationNotFound(id)
		}
		c.setCurrent(id)
		return nil
	})
}

// ClearConversation removes a conversation. If it was current, no conversation
// is current afterwards.
func (c *Coordinator) ClearConversation(ctx context.Context, id string) error {
	return c.do(ctx, func() error {
		if !c.store.Clear(id) {
			return conversationNotFound(id)
		}
		c.mu.Lock()
		if c.current == id {
			c.current = ""
		}
		if c.cache.Conversation == id {
			c.cache = resetPosition
		}
		c.mu.Unlock()
		c.publish(EventConversationCleared, nil, id, nil)
		return nil
	})
}

// ExportConversations serializes the whole store.
func (c *Coordinator) ExportConversations() ([]byte, error) {
	return c.store.ExportAll()
}

// ImportConversations loads an export document, replacing conversations with
// the same id. It returns the number of conversations imported.
func (c *Coordinator) ImportConversations(ctx context.Context, data []byte) (int, error) {
	return doValue(ctx, c, func() (int, error) {
		ids, err := conversation.SnapshotIDs(data)
		if err != nil {
			return 0, newError(KindInvalidSnapshot, "import conversations", err)
		}
		n, err := c.store.ImportAll(data)
		if err != nil {
			return 0, newError(KindInvalidSnapshot, "import conversations", err)
		}
		c.mu.Lock()
		for _, id := range ids {
			if c.cache.Conversation == id {
				c.cache = resetPosition
			}
		}
		c.mu.Unlock()
		c.evict(0, ids...)
		c.publish(EventConversationsImported, nil, "", map[string]any{"count": n})
		return n, nil
	})
}

// ConversationInfo returns a summary of a conversation.
func (c *Coordinator) ConversationInfo(id string) (conversation.Info, bool) {
	return c.store.Get(id)
}

// ConversationMessages returns a copy of a conversation's messages.
func (c *Coordinator) ConversationMessages(id string) ([]conversation.Message, bool) {
	return c.store.Messages(id)
}

// Conversations lists every conversation ordered by creation time.
func (c *Coordinator) Conversations() []conversation.Info {
	return c.store.List()
}

// CurrentConversation returns the current conversation id, or "".
func (c *Coordinator) CurrentConversation() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// createConversation makes room under MaxConversations and creates a
// conversation. Runs on the worker.
func (c *Coordinator) createConversation(title string) string {
	c.evict(1)
	id := c.store.CreateWithTitle(title)
	c.publish(EventConversationCreated, nil, id, nil)
	return id
}
