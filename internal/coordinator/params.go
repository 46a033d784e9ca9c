package coordinator

import (
	"fmt"

	"dialogd/internal/engine"
)

// Params are the per-session generation knobs. Nil boolean fields take the
// default.
type Params struct {
	Temperature     float32
	TopK            int
	TopP            float32
	Seed            int
	MaxTokens       int
	Threads         int
	BatchThreads    int
	Embeddings      *bool
	CausalAttention *bool
}

// Bool returns a pointer to v for the optional Params fields.
func Bool(v bool) *bool { return &v }

// DefaultParams returns the documented defaults: temperature 0.8, top-k 40,
// top-p 0.95, 256 new tokens at most, causal attention on.
func DefaultParams() Params {
	return Params{
		Temperature:     0.8,
		TopK:            40,
		TopP:            0.95,
		MaxTokens:       256,
		CausalAttention: Bool(true),
	}
}

// WithDefaults fills zero numeric fields and nil boolean fields from def.
func (p Params) WithDefaults(def Params) Params {
	if p.Temperature == 0 {
		p.Temperature = def.Temperature
	}
	if p.TopK == 0 {
		p.TopK = def.TopK
	}
	if p.TopP == 0 {
		p.TopP = def.TopP
	}
	if p.Seed == 0 {
		p.Seed = def.Seed
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = def.MaxTokens
	}
	if p.Threads == 0 {
		p.Threads = def.Threads
	}
	if p.BatchThreads == 0 {
		p.BatchThreads = def.BatchThreads
	}
	if p.Embeddings == nil {
		p.Embeddings = def.Embeddings
	}
	if p.CausalAttention == nil {
		p.CausalAttention = def.CausalAttention
	}
	return p
}

// Validate checks ranges. It is called once when a session starts.
func (p Params) Validate() error {
	bad := func(format string, args ...any) error {
		return newError(KindInvalidParams, fmt.Sprintf(format, args...), nil)
	}
	switch {
	case p.MaxTokens < 1:
		return bad("max_tokens must be >= 1, got %d", p.MaxTokens)
	case p.Temperature < 0:
		return bad("temperature must be >= 0, got %g", p.Temperature)
	case p.TopK < 0:
		return bad("top_k must be >= 0, got %d", p.TopK)
	case p.TopP < 0 || p.TopP > 1:
		return bad("top_p must be within [0,1], got %g", p.TopP)
	case p.Threads < 0 || p.BatchThreads < 0:
		return bad("thread counts must be >= 0")
	}
	return nil
}

func (p Params) sampling() engine.SamplingParams {
	return engine.SamplingParams{
		Temperature:     p.Temperature,
		TopK:            p.TopK,
		TopP:            p.TopP,
		Seed:            p.Seed,
		Threads:         p.Threads,
		BatchThreads:    p.BatchThreads,
		Embeddings:      p.Embeddings != nil && *p.Embeddings,
		CausalAttention: p.CausalAttention != nil && *p.CausalAttention,
	}
}
