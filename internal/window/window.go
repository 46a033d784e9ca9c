// Package window decides, per prompt, whether the engine cache can be
// extended in place or must be rebuilt, and rejects turns that would not fit.
package window

import "fmt"

// State is the outcome of a window decision.
type State int

const (
	// Fresh starts a conversation with no history from an empty cache.
	Fresh State = iota
	// Continuing appends the prompt after history the cache already holds.
	Continuing
	// Rebuild clears the cache and replays history before the prompt.
	Rebuild
	// Rejected means history plus prompt exceed capacity. Nothing is touched.
	Rejected
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Continuing:
		return "continuing"
	case Rebuild:
		return "rebuild"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CachePosition is the coordinator's belief about what the engine cache holds:
// nothing, or positions [0, Len) of Conversation.
type CachePosition struct {
	Conversation string
	Len          int
}

// Empty reports whether the cache is believed to hold nothing.
func (p CachePosition) Empty() bool { return p.Conversation == "" }

// Holds reports whether the cache holds exactly the first n tokens of conv.
func (p CachePosition) Holds(conv string, n int) bool {
	return !p.Empty() && p.Conversation == conv && p.Len == n
}

// Advance returns the position after n more tokens of the same conversation.
func (p CachePosition) Advance(n int) CachePosition {
	if p.Empty() {
		return p
	}
	p.Len += n
	return p
}

// Decision tells the turn path how to prepare the cache.
type Decision struct {
	State        State
	Conversation string
	// PromptStart is the cache position of the first prompt token.
	PromptStart int
	// HistoryLen is the number of history tokens preceding the prompt.
	HistoryLen int
	// ClearCache asks for the cache to be wiped (including data) first.
	ClearCache bool
	// Replay asks for history tokens to be written at 0..HistoryLen-1.
	Replay bool
	// Reason explains a rejection.
	Reason string
}

// Positions returns the cache positions the prompt occupies.
func (d Decision) Positions(promptLen int) []int {
	if d.State == Rejected {
		return nil
	}
	out := make([]int, promptLen)
	for i := range out {
		out[i] = d.PromptStart + i
	}
	return out
}

// After returns the cache position once the prompt has been written.
func (d Decision) After(promptLen int) CachePosition {
	if d.State == Rejected {
		return CachePosition{}
	}
	return CachePosition{Conversation: d.Conversation, Len: d.PromptStart + promptLen}
}

// Manager evaluates window decisions against a fixed cache capacity.
type Manager struct {
	capacity int
}

// New returns a manager for a cache of the given capacity.
func New(capacity int) *Manager { return &Manager{capacity: capacity} }

func (m *Manager) Capacity() int { return m.capacity }

// Plan decides how to place promptLen new tokens of conv whose stored
// history is historyLen tokens, given the current cache belief cur.
func (m *Manager) Plan(cur CachePosition, conv string, historyLen, promptLen int) Decision {
	d := Decision{Conversation: conv, HistoryLen: historyLen}
	total := historyLen + promptLen
	switch {
	case total > m.capacity:
		d.State = Rejected
		d.Reason = fmt.Sprintf("history %d + prompt %d tokens exceeds context capacity %d", historyLen, promptLen, m.capacity)
	case historyLen == 0:
		d.State = Fresh
		d.ClearCache = true
	case cur.Holds(conv, historyLen):
		d.State = Continuing
		d.PromptStart = historyLen
	default:
		d.State = Rebuild
		d.ClearCache = true
		d.Replay = true
		d.PromptStart = historyLen
	}
	return d
}
