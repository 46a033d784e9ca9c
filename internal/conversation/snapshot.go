package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dialogd/internal/engine"
)

// SnapshotVersion is the only export format version ImportAll accepts.
const SnapshotVersion = 1

// ErrInvalidSnapshot is wrapped by every ImportAll validation failure.
var ErrInvalidSnapshot = errors.New("invalid conversation snapshot")

type snapshot struct {
	Version       int            `json:"version"`
	ExportedAt    time.Time      `json:"exported_at"`
	Conversations []snapshotConv `json:"conversations"`
}

type snapshotConv struct {
	ID          string        `json:"id"`
	Title       string        `json:"title,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	TotalTokens int           `json:"total_tokens"`
	Messages    []snapshotMsg `json:"messages"`
}

type snapshotMsg struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Tokens    []engine.Token `json:"tokens"`
	CreatedAt time.Time      `json:"created_at"`
}

// ExportAll serializes every conversation.
func (s *Store) ExportAll() ([]byte, error) {
	s.mu.RLock()
	snap := snapshot{Version: SnapshotVersion, ExportedAt: s.now().UTC()}
	for _, c := range s.sortedLocked() {
		sc := snapshotConv{
			ID:          c.ID,
			Title:       c.Title,
			CreatedAt:   c.CreatedAt,
			UpdatedAt:   c.UpdatedAt,
			TotalTokens: c.TotalTokens,
			Messages:    make([]snapshotMsg, len(c.Messages)),
		}
		for i, m := range c.Messages {
			sc.Messages[i] = snapshotMsg{Role: m.Role, Content: m.Content, Tokens: m.Tokens, CreatedAt: m.CreatedAt}
		}
		snap.Conversations = append(snap.Conversations, sc)
	}
	s.mu.RUnlock()
	if snap.Conversations == nil {
		snap.Conversations = []snapshotConv{}
	}
	return json.Marshal(snap)
}

// ImportAll loads conversations from an ExportAll document. Conversations
// with a known id are replaced, new ones inserted and all others kept. On any
// error the store is left unchanged. It returns the number of conversations
// imported.
func (s *Store) ImportAll(data []byte) (int, error) {
	convs, err := decodeSnapshot(data)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range convs {
		s.clock++
		c.touched = s.clock
		s.convs[c.ID] = c
	}
	return len(convs), nil
}

// SnapshotIDs lists the conversation ids contained in an ExportAll document.
func SnapshotIDs(data []byte) ([]string, error) {
	convs, err := decodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}
	return ids, nil
}

// Summaries describes the conversations contained in an ExportAll document.
func Summaries(data []byte) ([]Info, error) {
	convs, err := decodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	out := make([]Info, len(convs))
	for i, c := range convs {
		out[i] = infoOf(c)
	}
	return out, nil
}

func decodeSnapshot(data []byte) ([]*Conversation, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, snap.Version)
	}
	seen := make(map[string]struct{}, len(snap.Conversations))
	out := make([]*Conversation, 0, len(snap.Conversations))
	for i, sc := range snap.Conversations {
		if sc.ID == "" {
			return nil, fmt.Errorf("%w: conversation %d has no id", ErrInvalidSnapshot, i)
		}
		if _, dup := seen[sc.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate conversation %s", ErrInvalidSnapshot, sc.ID)
		}
		seen[sc.ID] = struct{}{}
		if sc.TotalTokens < 0 {
			return nil, fmt.Errorf("%w: conversation %s has negative token count", ErrInvalidSnapshot, sc.ID)
		}
		c := &Conversation{
			ID:          sc.ID,
			Title:       sc.Title,
			TotalTokens: sc.TotalTokens,
			CreatedAt:   sc.CreatedAt,
			UpdatedAt:   sc.UpdatedAt,
			Messages:    make([]Message, len(sc.Messages)),
		}
		for j, m := range sc.Messages {
			if !m.Role.Valid() {
				return nil, fmt.Errorf("%w: conversation %s message %d has role %q", ErrInvalidSnapshot, sc.ID, j, m.Role)
			}
			c.Messages[j] = Message{Role: m.Role, Content: m.Content, Tokens: m.Tokens, CreatedAt: m.CreatedAt}
		}
		out = append(out, c)
	}
	return out, nil
}
