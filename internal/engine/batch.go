package engine

import "fmt"

// Slot is one staged token.
type Slot struct {
	Token       Token
	Pos         int
	Seq         int
	NeedsOutput bool
}

// Batch is a fixed-capacity staging area for tokens headed to ExtendCache.
// It is allocated once and refilled every turn.
type Batch struct {
	tokens []Token
	pos    []int
	seq    []int
	output []bool
	n      int
}

// NewBatch allocates a batch holding at most capacity tokens.
func NewBatch(capacity int) *Batch {
	if capacity < 1 {
		capacity = 1
	}
	return &Batch{
		tokens: make([]Token, capacity),
		pos:    make([]int, capacity),
		seq:    make([]int, capacity),
		output: make([]bool, capacity),
	}
}

// Clear empties the batch without releasing its storage.
func (b *Batch) Clear() { b.n = 0 }

// Add stages one token. Callers size their writes from the window decision;
// overflowing the batch is a programming error and panics.
func (b *Batch) Add(tok Token, pos, seq int, needsOutput bool) {
	if b.n >= len(b.tokens) {
		panic(fmt.Sprintf("engine: batch overflow (capacity %d)", len(b.tokens)))
	}
	b.tokens[b.n] = tok
	b.pos[b.n] = pos
	b.seq[b.n] = seq
	b.output[b.n] = needsOutput
	b.n++
}

func (b *Batch) Len() int       { return b.n }
func (b *Batch) Cap() int       { return len(b.tokens) }
func (b *Batch) Remaining() int { return len(b.tokens) - b.n }

// At returns slot i. It panics when i is out of range.
func (b *Batch) At(i int) Slot {
	if i < 0 || i >= b.n {
		panic(fmt.Sprintf("engine: batch index %d out of range [0,%d)", i, b.n))
	}
	return Slot{Token: b.tokens[i], Pos: b.pos[i], Seq: b.seq[i], NeedsOutput: b.output[i]}
}

// Slots copies the staged slots.
func (b *Batch) Slots() []Slot {
	out := make([]Slot, b.n)
	for i := 0; i < b.n; i++ {
		out[i] = b.At(i)
	}
	return out
}
