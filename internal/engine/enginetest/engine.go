// Package enginetest provides a deterministic, scripted engine.Engine for
// tests. It tokenizes on whitespace, replays a fixed sample script and checks
// that batches arrive at contiguous positions within capacity, the way a real
// KV cache would.
package enginetest

import (
	"fmt"
	"strings"
	"sync"

	"dialogd/internal/engine"
)

// Reserved token ids.
const (
	UNK engine.Token = 0
	BOS engine.Token = 1
	EOS engine.Token = 2

	firstWord engine.Token = 100
)

// Engine is a scripted engine. Zero values of the exported knobs disable them.
// Knobs must be set before the engine is handed to a coordinator.
type Engine struct {
	// Script is returned by Sample in order. Once exhausted, Sample returns
	// Endless when it is non-zero, otherwise reports no token.
	Script  []engine.Token
	Endless engine.Token

	TokenizeErr  error
	ExtendErr    error
	ExtendErrAt  int // 1-based ExtendCache call that fails with ExtendErr
	ConfigureErr error

	// OnSample runs before every Sample call with the 1-based call number.
	// It runs without holding the engine lock, so it may block.
	OnSample func(n int)

	mu       sync.Mutex
	capacity int
	maxBatch int
	ids      map[string]engine.Token
	pieces   map[engine.Token]string
	next     engine.Token

	cached     int
	batches    [][]engine.Slot
	extends    int
	samples    int
	clears     int
	configured []engine.SamplingParams
	closed     bool
}

// New returns an engine with the given cache capacity and maximum batch size.
func New(capacity, maxBatch int) *Engine {
	if maxBatch <= 0 || maxBatch > capacity {
		maxBatch = capacity
	}
	return &Engine{
		capacity: capacity,
		maxBatch: maxBatch,
		ids:      make(map[string]engine.Token),
		pieces:   map[engine.Token]string{UNK: "<unk>", BOS: "<s>", EOS: ""},
		next:     firstWord,
	}
}

// SetPiece makes tok detokenize to text.
func (e *Engine) SetPiece(tok engine.Token, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pieces[tok] = text
}

// Word returns the id a word tokenizes to, assigning one if needed.
func (e *Engine) Word(w string) engine.Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.word(w)
}

func (e *Engine) word(w string) engine.Token {
	if id, ok := e.ids[w]; ok {
		return id
	}
	id := e.next
	e.next++
	e.ids[w] = id
	e.pieces[id] = w
	return id
}

func (e *Engine) Tokenize(text string) ([]engine.Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.TokenizeErr != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrTokenization, e.TokenizeErr)
	}
	words := strings.Fields(text)
	out := make([]engine.Token, 0, len(words))
	for _, w := range words {
		out = append(out, e.word(w))
	}
	return out, nil
}

func (e *Engine) Detokenize(tok engine.Token) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.pieces[tok]; ok {
		return s
	}
	return fmt.Sprintf("<%d>", tok)
}

func (e *Engine) ExtendCache(b *engine.Batch) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.extends++
	if e.ExtendErrAt > 0 && e.extends == e.ExtendErrAt {
		return e.ExtendErr
	}
	n := b.Len()
	if n > e.maxBatch {
		return fmt.Errorf("%w: %d tokens exceeds batch size %d", engine.ErrInvalidBatch, n, e.maxBatch)
	}
	if e.cached+n > e.capacity {
		return fmt.Errorf("%w: %d cached + %d new > %d", engine.ErrCacheFull, e.cached, n, e.capacity)
	}
	for i := 0; i < n; i++ {
		if p := b.At(i).Pos; p != e.cached+i {
			return fmt.Errorf("%w: slot %d at position %d, expected %d", engine.ErrInvalidBatch, i, p, e.cached+i)
		}
	}
	e.batches = append(e.batches, b.Slots())
	e.cached += n
	return nil
}

func (e *Engine) Sample() (engine.Token, bool) {
	e.mu.Lock()
	e.samples++
	n := e.samples
	hook := e.OnSample
	e.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	if n <= len(e.Script) {
		return e.Script[n-1], true
	}
	if e.Endless != 0 {
		return e.Endless, true
	}
	return 0, false
}

func (e *Engine) ClearCache(includeData bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clears++
	e.cached = 0
}

func (e *Engine) EOS() engine.Token  { return EOS }
func (e *Engine) CacheCapacity() int { return e.capacity }
func (e *Engine) MaxBatchSize() int  { return e.maxBatch }

func (e *Engine) Configure(p engine.SamplingParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ConfigureErr != nil {
		return e.ConfigureErr
	}
	e.configured = append(e.configured, p)
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Batches returns copies of every accepted batch, in call order.
func (e *Engine) Batches() [][]engine.Slot {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]engine.Slot, len(e.batches))
	copy(out, e.batches)
	return out
}

// Positions flattens the positions of every accepted batch.
func (e *Engine) Positions() []int {
	var out []int
	for _, b := range e.Batches() {
		for _, s := range b {
			out = append(out, s.Pos)
		}
	}
	return out
}

// Cached is the number of positions currently held.
func (e *Engine) Cached() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cached
}

func (e *Engine) ExtendCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.extends
}

func (e *Engine) Samples() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.samples
}

func (e *Engine) Clears() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clears
}

func (e *Engine) Configured() []engine.SamplingParams {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.SamplingParams(nil), e.configured...)
}

func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

var (
	_ engine.Engine  = (*Engine)(nil)
	_ engine.Tunable = (*Engine)(nil)
)
