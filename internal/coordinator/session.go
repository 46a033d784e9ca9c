package coordinator

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Finish reasons reported in Result.FinishReason.
const (
	FinishStop        = "stop"
	FinishLength      = "length"
	FinishContextFull = "context_full"
	FinishExhausted   = "exhausted"
	FinishAborted     = "aborted"
	FinishError       = "error"
)

// Fragment is one element of a session's output stream. A non-nil Err is
// always the last element.
type Fragment struct {
	Text string
	Err  error
}

// Result summarizes a finished session.
type Result struct {
	ConversationID  string
	PromptTokens    int
	GeneratedTokens int
	Content         string
	FinishReason    string
	Err             error
}

// SessionInfo is a read-only view of an active session.
type SessionInfo struct {
	ID              string
	ConversationID  string
	State           string
	StartedAt       time.Time
	GeneratedTokens int
	Cancelled       bool
	Params          Params
}

type session struct {
	id        string
	prompt    string
	params    Params
	startedAt time.Time

	// guarded by Coordinator.mu
	convID  string
	running bool

	generated  atomic.Int64
	cancelled  atomic.Bool
	cancelCh   chan struct{}
	cancelOnce sync.Once
	stopWatch  func() bool

	frags  chan Fragment
	done   chan struct{}
	result Result
}

func newSession(prompt string, p Params, convID string, buf int) *session {
	return &session{
		id:        uuid.NewString(),
		prompt:    prompt,
		params:    p,
		startedAt: time.Now(),
		convID:    convID,
		cancelCh:  make(chan struct{}),
		frags:     make(chan Fragment, buf),
		done:      make(chan struct{}),
	}
}

// cancel sets the cancellation flag. It reports whether this call set it.
func (s *session) cancel() bool {
	first := false
	s.cancelOnce.Do(func() {
		first = true
		s.cancelled.Store(true)
		close(s.cancelCh)
	})
	return first
}

// yield hands a fragment to the consumer. It blocks until the consumer takes
// it or the session is cancelled, and reports whether it was delivered.
func (s *session) yield(text string) bool {
	select {
	case <-s.cancelCh:
		return false
	default:
	}
	select {
	case s.frags <- Fragment{Text: text}:
		return true
	case <-s.cancelCh:
		return false
	}
}

// Handle is the caller's side of a generation session. Fragments must be
// consumed by a single reader.
type Handle struct {
	s *session
	c *Coordinator
}

func (h *Handle) SessionID() string { return h.s.id }

// Fragments is closed after the last fragment. The stream cannot be restarted.
func (h *Handle) Fragments() <-chan Fragment { return h.s.frags }

// Done is closed once the session has finished and left the session table.
func (h *Handle) Done() <-chan struct{} { return h.s.done }

// Result blocks until the session finishes. Fragments not read yet are
// discarded, so Result must not run alongside a Fragments reader.
func (h *Handle) Result() Result {
	for range h.s.frags {
	}
	<-h.s.done
	return h.s.result
}

// Cancel requests cooperative cancellation of this session.
func (h *Handle) Cancel() { h.c.Cancel(h.s.id) }

// Collect drains the stream and returns the generated text and terminal error.
func (h *Handle) Collect() (string, error) {
	var sb strings.Builder
	for f := range h.s.frags {
		sb.WriteString(f.Text)
	}
	r := h.Result()
	if r.Err != nil {
		return sb.String(), r.Err
	}
	return r.Content, nil
}
