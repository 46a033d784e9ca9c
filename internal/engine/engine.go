// Package engine defines the narrow contract the coordinator uses to drive a
// stateful, single-threaded autoregressive inference engine, together with the
// reusable token batch handed to it.
//
// Build tags:
//
//   - `-tags=llama` compiles the in-process go-llama.cpp adapter (llama.go,
//     llama_cgo.go). It needs libllama at link time.
//   - Without the tag, Open fails with a dependency-unavailable error
//     (llama_stub.go). Production builds never fall back to mocked inference.
//
// Implementations are NOT safe for concurrent use. Exactly one caller (the
// coordinator's turn worker) may be inside any method at a time.
package engine

// Token is a vocabulary id produced by Tokenize and Sample.
type Token int32

// Engine is the inference engine contract consumed by the coordinator.
type Engine interface {
	// Tokenize converts text to tokens. Errors wrap ErrTokenization.
	Tokenize(text string) ([]Token, error)
	// Detokenize converts a single token to its text fragment.
	Detokenize(tok Token) string
	// ExtendCache writes every slot of b into the cache at its position,
	// computing outputs for slots that need them. Errors wrap ErrCacheFull,
	// ErrOutOfMemory or ErrInvalidBatch.
	ExtendCache(b *Batch) error
	// Sample returns the next token from the last computed outputs.
	// ok is false when the engine has nothing more to produce.
	Sample() (tok Token, ok bool)
	// ClearCache forgets every cached position. includeData also wipes the
	// underlying buffers rather than only the bookkeeping.
	ClearCache(includeData bool)
	// EOS is the end-of-sequence token.
	EOS() Token
	// CacheCapacity is the fixed number of positions the cache can hold.
	CacheCapacity() int
	// MaxBatchSize is the largest batch ExtendCache accepts.
	MaxBatchSize() int
	// Close releases the model and context.
	Close() error
}

// SamplingParams are per-turn knobs forwarded to engines that support them.
type SamplingParams struct {
	Temperature     float32
	TopK            int
	TopP            float32
	Seed            int
	Threads         int
	BatchThreads    int
	Embeddings      bool
	CausalAttention bool
}

// Tunable is implemented by engines that accept per-turn sampling params.
type Tunable interface {
	Configure(p SamplingParams) error
}

// Options configure how an engine is opened.
type Options struct {
	ModelPath   string
	ContextSize int
	BatchSize   int
	Threads     int
	GPULayers   int
	Seed        int
}

// DefaultOptions returns options suitable for a small local model.
func DefaultOptions() Options {
	return Options{
		ContextSize: 2048,
		BatchSize:   512,
		Threads:     4,
	}
}

// withDefaults fills unset fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ContextSize <= 0 {
		o.ContextSize = d.ContextSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.BatchSize > o.ContextSize {
		o.BatchSize = o.ContextSize
	}
	if o.Threads <= 0 {
		o.Threads = d.Threads
	}
	return o
}
