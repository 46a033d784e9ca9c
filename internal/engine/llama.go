//go:build llama

package engine

import (
	"errors"
	"fmt"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"
)

// Built reports whether this binary was compiled with in-process llama support.
const Built = true

// go-llama.cpp only exposes a text-level API (Predict with a token callback),
// so the adapter keeps its own piece vocabulary:
//   - a tokenized prompt segment is represented by one token carrying the whole
//     segment text followed by continuation tokens rendering as "", so that the
//     token count matches the real tokenizer;
//   - every generated piece is interned and gets a stable id for the lifetime
//     of the process.
//
// Ids are meaningless across processes. Replaying a restored conversation whose
// tokens were produced by another process fails with ErrInvalidBatch.
const (
	contToken  Token = 0
	eosToken   Token = 1
	firstPiece Token = 2
)

type llamaEngine struct {
	model  *llama.LLama
	opts   Options
	params SamplingParams

	vocab []string
	index map[string]Token

	cached []Token
	pump   *pump
}

// Open loads the model at opts.ModelPath and returns a llama-backed Engine.
func Open(opts Options) (Engine, error) {
	opts = opts.withDefaults()
	path := strings.TrimSpace(opts.ModelPath)
	if path == "" {
		return nil, errors.New("engine: model path is empty")
	}
	mo := []llama.ModelOption{
		llama.SetContext(opts.ContextSize),
		llama.SetNBatch(opts.BatchSize),
	}
	if opts.GPULayers > 0 {
		mo = append(mo, llama.SetGPULayers(opts.GPULayers))
	}
	if opts.Seed != 0 {
		mo = append(mo, llama.SetModelSeed(opts.Seed))
	}
	m, err := llama.New(path, mo...)
	if err != nil {
		return nil, fmt.Errorf("engine: load %s: %w", path, err)
	}
	e := &llamaEngine{
		model:  m,
		opts:   opts,
		params: SamplingParams{CausalAttention: true},
		vocab:  make([]string, firstPiece, 1024),
		index:  make(map[string]Token),
	}
	return e, nil
}

func (e *llamaEngine) Tokenize(text string) ([]Token, error) {
	if e.model == nil {
		return nil, fmt.Errorf("%w: model not loaded", ErrTokenization)
	}
	_, ids, err := e.model.TokenizeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenization, err)
	}
	if len(ids) == 0 {
		if text == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: no tokens for non-empty text", ErrTokenization)
	}
	out := make([]Token, len(ids))
	out[0] = e.intern(text)
	for i := 1; i < len(out); i++ {
		out[i] = contToken
	}
	return out, nil
}

func (e *llamaEngine) Detokenize(tok Token) string {
	if tok < 0 || int(tok) >= len(e.vocab) {
		return ""
	}
	return e.vocab[tok]
}

func (e *llamaEngine) ExtendCache(b *Batch) error {
	n := b.Len()
	if n == 0 {
		return nil
	}
	if n > e.opts.BatchSize {
		return fmt.Errorf("%w: %d tokens exceeds batch size %d", ErrInvalidBatch, n, e.opts.BatchSize)
	}
	if len(e.cached)+n > e.opts.ContextSize {
		return fmt.Errorf("%w: %d cached + %d new > %d", ErrCacheFull, len(e.cached), n, e.opts.ContextSize)
	}
	for i := 0; i < n; i++ {
		s := b.At(i)
		if s.Pos != len(e.cached)+i {
			return fmt.Errorf("%w: slot %d at position %d, expected %d", ErrInvalidBatch, i, s.Pos, len(e.cached)+i)
		}
		if s.Token < 0 || int(s.Token) >= len(e.vocab) {
			return fmt.Errorf("%w: unknown token %d", ErrInvalidBatch, s.Token)
		}
	}
	if p := e.pump; p != nil {
		// Feeding back the token just sampled lets Predict continue.
		if n == 1 && p.awaiting && b.At(0).Token == p.pending {
			e.cached = append(e.cached, p.pending)
			p.resume()
			return nil
		}
		e.stopPump()
	}
	for i := 0; i < n; i++ {
		e.cached = append(e.cached, b.At(i).Token)
	}
	return nil
}

func (e *llamaEngine) Sample() (Token, bool) {
	if e.model == nil {
		return 0, false
	}
	if e.pump == nil {
		e.startPump()
	}
	piece, ok := e.pump.next()
	if !ok {
		err := e.pump.err
		e.pump = nil
		if err != nil {
			return 0, false
		}
		return eosToken, true
	}
	tok := e.intern(piece)
	e.pump.pending = tok
	e.pump.awaiting = true
	return tok, true
}

func (e *llamaEngine) ClearCache(includeData bool) {
	e.stopPump()
	if includeData {
		e.cached = nil
		return
	}
	e.cached = e.cached[:0]
}

func (e *llamaEngine) EOS() Token         { return eosToken }
func (e *llamaEngine) CacheCapacity() int { return e.opts.ContextSize }
func (e *llamaEngine) MaxBatchSize() int  { return e.opts.BatchSize }

func (e *llamaEngine) Configure(p SamplingParams) error {
	if p.Embeddings {
		return errors.New("engine: embeddings mode is not supported for generation")
	}
	e.params = p
	return nil
}

func (e *llamaEngine) Close() error {
	e.stopPump()
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}

func (e *llamaEngine) intern(piece string) Token {
	if tok, ok := e.index[piece]; ok {
		return tok
	}
	tok := Token(len(e.vocab))
	e.vocab = append(e.vocab, piece)
	e.index[piece] = tok
	return tok
}

func (e *llamaEngine) transcript() string {
	var sb strings.Builder
	for _, t := range e.cached {
		sb.WriteString(e.vocab[t])
	}
	return sb.String()
}

func (e *llamaEngine) startPump() {
	p := newPump()
	e.model.SetTokenCallback(p.callback)
	prompt := e.transcript()
	po := e.predictOptions(e.opts.ContextSize - len(e.cached))
	go func() {
		defer close(p.done)
		_, err := e.model.Predict(prompt, po...)
		p.err = err
	}()
	e.pump = p
}

func (e *llamaEngine) stopPump() {
	if e.pump == nil {
		return
	}
	e.pump.stop()
	e.pump = nil
}

// predictOptions converts sampling params into go-llama.cpp options.
func (e *llamaEngine) predictOptions(limit int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(atLeast(1, limit)),
		llama.SetThreads(orInt(e.params.Threads, e.opts.Threads)),
		llama.SetTopK(orInt(e.params.TopK, llama.DefaultOptions.TopK)),
		llama.SetTopP(orFloat(e.params.TopP, llama.DefaultOptions.TopP)),
		llama.SetTemperature(orFloat(e.params.Temperature, llama.DefaultOptions.Temperature)),
	}
	if e.params.Seed != 0 {
		po = append(po, llama.SetSeed(e.params.Seed))
	}
	return po
}

// pump runs one Predict call and hands out its pieces one at a time. The
// token callback blocks after each piece until the piece is fed back through
// ExtendCache (resume) or the pump is stopped.
type pump struct {
	out  chan string
	cont chan bool
	quit chan struct{}
	done chan struct{}
	err  error

	pending  Token
	awaiting bool
}

func newPump() *pump {
	return &pump{
		out:  make(chan string),
		cont: make(chan bool),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (p *pump) callback(piece string) bool {
	select {
	case p.out <- piece:
	case <-p.quit:
		return false
	}
	select {
	case ok := <-p.cont:
		return ok
	case <-p.quit:
		return false
	}
}

func (p *pump) next() (string, bool) {
	select {
	case piece := <-p.out:
		return piece, true
	case <-p.done:
		return "", false
	}
}

func (p *pump) resume() {
	p.awaiting = false
	select {
	case p.cont <- true:
	case <-p.done:
	}
}

func (p *pump) stop() {
	close(p.quit)
	<-p.done
}

func atLeast(lo, v int) int {
	if v < lo {
		return lo
	}
	return v
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orFloat(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}
