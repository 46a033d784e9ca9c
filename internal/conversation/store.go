// Package conversation keeps per-conversation message and token history.
//
// Readers (Get, Messages, HistoryTokens, ExportAll) may run concurrently with
// each other. Writers are expected to come from a single serialized path.
package conversation

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dialogd/internal/engine"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAssistant }

// Message is one immutable entry of a conversation.
type Message struct {
	Role      Role
	Content   string
	Tokens    []engine.Token
	CreatedAt time.Time
}

// Conversation is an ordered message history.
type Conversation struct {
	ID          string
	Title       string
	Messages    []Message
	TotalTokens int
	CreatedAt   time.Time
	UpdatedAt   time.Time

	touched uint64
}

// Info is a read-only summary of a conversation.
type Info struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	MessageCount int       `json:"message_count"`
	TotalTokens  int       `json:"total_tokens"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store holds conversations in memory.
type Store struct {
	mu    sync.RWMutex
	convs map[string]*Conversation
	clock uint64
	now   func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{convs: make(map[string]*Conversation), now: time.Now}
}

// Create starts an empty conversation and returns its id.
func (s *Store) Create() string { return s.CreateWithTitle("") }

// CreateWithTitle starts an empty conversation with a title.
func (s *Store) CreateWithTitle(title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	now := s.now()
	s.clock++
	s.convs[id] = &Conversation{ID: id, Title: title, CreatedAt: now, UpdatedAt: now, touched: s.clock}
	return id
}

// Append adds a message. Unknown ids are ignored.
func (s *Store) Append(id string, role Role, text string, tokens []engine.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return
	}
	now := s.now()
	c.Messages = append(c.Messages, Message{
		Role:      role,
		Content:   text,
		Tokens:    append([]engine.Token(nil), tokens...),
		CreatedAt: now,
	})
	c.TotalTokens += len(tokens)
	c.UpdatedAt = now
	s.clock++
	c.touched = s.clock
}

// Get returns a summary of the conversation.
func (s *Store) Get(id string) (Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return Info{}, false
	}
	return infoOf(c), true
}

func infoOf(c *Conversation) Info {
	return Info{
		ID:           c.ID,
		Title:        c.Title,
		MessageCount: len(c.Messages),
		TotalTokens:  c.TotalTokens,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// Messages returns a copy of the message list.
func (s *Store) Messages(id string) ([]Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, false
	}
	out := make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		m.Tokens = append([]engine.Token(nil), m.Tokens...)
		out[i] = m
	}
	return out, true
}

// HistoryTokens concatenates the tokens of every message in order.
func (s *Store) HistoryTokens(id string) ([]engine.Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, false
	}
	out := make([]engine.Token, 0, c.TotalTokens)
	for _, m := range c.Messages {
		out = append(out, m.Tokens...)
	}
	return out, true
}

// Clear removes a conversation and reports whether it existed.
func (s *Store) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[id]; !ok {
		return false
	}
	delete(s.convs, id)
	return true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs)
}

// IDs lists conversation ids ordered by creation time.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.sortedLocked()
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.ID
	}
	return out
}

// List returns summaries ordered by creation time.
func (s *Store) List() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.sortedLocked()
	out := make([]Info, len(list))
	for i, c := range list {
		out[i] = infoOf(c)
	}
	return out
}

// Oldest returns the least recently updated conversation not in exclude.
func (s *Store) Oldest(exclude ...string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	var best *Conversation
	for id, c := range s.convs {
		if _, ok := skip[id]; ok {
			continue
		}
		if best == nil || c.touched < best.touched {
			best = c
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID, true
}

func (s *Store) sortedLocked() []*Conversation {
	list := make([]*Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}
