package coordinator

import (
	"fmt"
	"strings"

	"dialogd/internal/conversation"
	"dialogd/internal/engine"
	"dialogd/internal/window"
)

// Turn outcomes, used as metric labels.
const (
	outcomeDone      = "done"
	outcomeRejected  = "rejected"
	outcomeError     = "error"
	outcomeCancelled = "cancelled"
)

var resetPosition = window.CachePosition{}

// turn runs one prompt/response exchange. It must only be called by the worker.
func (c *Coordinator) turn(s *session) (Result, string) {
	convID, isNew, err := c.resolveConversation(s)
	if err != nil {
		return Result{Err: err}, outcomeError
	}
	res := Result{ConversationID: convID}
	fail := func(kind Kind, reason string, err error) (Result, string) {
		res.Err = newError(kind, reason, err)
		return res, outcomeError
	}

	prompt, err := c.eng.Tokenize(s.prompt)
	if err != nil {
		return fail(KindTokenizationFailed, "tokenize prompt", err)
	}
	if len(prompt) == 0 {
		return fail(KindTokenizationFailed, "prompt produced no tokens", nil)
	}
	res.PromptTokens = len(prompt)

	var history []engine.Token
	if !isNew {
		history, _ = c.store.HistoryTokens(convID)
	}
	c.mu.RLock()
	cur := c.cache
	c.mu.RUnlock()
	d := c.win.Plan(cur, convID, len(history), len(prompt))
	cacheDecisions.WithLabelValues(d.State.String()).Inc()
	if d.State == window.Rejected {
		res.Err = newError(KindContextPreparationFailed, d.Reason, nil)
		return res, outcomeRejected
	}

	if isNew {
		convID = c.createConversation("")
		c.mu.Lock()
		c.current = convID
		s.convID = convID
		c.mu.Unlock()
		d.Conversation = convID
		res.ConversationID = convID
	}
	c.log.Debug().
		Str("session_id", s.id).
		Str("conversation_id", convID).
		Str("decision", d.State.String()).
		Int("history_tokens", len(history)).
		Int("prompt_tokens", len(prompt)).
		Msg("turn start")

	if t, ok := c.eng.(engine.Tunable); ok {
		if err := t.Configure(s.params.sampling()); err != nil {
			return fail(KindContextPreparationFailed, "configure engine", err)
		}
	}
	if d.ClearCache {
		c.eng.ClearCache(true)
		c.setCache(resetPosition)
	}
	if d.Replay {
		replay := window.Decision{State: window.Fresh, Conversation: d.Conversation}
		if err := c.prefill(history, replay.Positions(len(history)), false); err != nil {
			c.setCache(resetPosition)
			return fail(KindContextPreparationFailed, "replay history", err)
		}
	}
	if err := c.prefill(prompt, d.Positions(len(prompt)), true); err != nil {
		c.setCache(resetPosition)
		return fail(KindContextPreparationFailed, "write prompt", err)
	}
	promptTokensTotal.Add(float64(len(prompt)))

	next := d.After(len(prompt)).Len
	finish := FinishLength
	var (
		generated []engine.Token
		content   strings.Builder
		callErr   error
	)
	for {
		if s.cancelled.Load() {
			finish = FinishAborted
			break
		}
		if len(generated) >= s.params.MaxTokens {
			finish = FinishLength
			break
		}
		if next >= c.win.Capacity() {
			finish = FinishContextFull
			break
		}
		tok, ok := c.eng.Sample()
		if !ok {
			finish = FinishExhausted
			break
		}
		if tok == c.eos {
			finish = FinishStop
			break
		}
		text := c.eng.Detokenize(tok)
		if !s.yield(text) {
			finish = FinishAborted
			break
		}
		generated = append(generated, tok)
		content.WriteString(text)
		s.generated.Add(1)

		c.batch.Clear()
		c.batch.Add(tok, next, 0, true)
		if err := c.eng.ExtendCache(c.batch); err != nil {
			callErr = err
			break
		}
		next++
	}
	generatedTokensTotal.Add(float64(len(generated)))

	c.store.Append(convID, conversation.RoleUser, s.prompt, prompt)
	if len(generated) > 0 {
		c.store.Append(convID, conversation.RoleAssistant, content.String(), generated)
	}
	res.GeneratedTokens = len(generated)
	res.Content = content.String()
	res.FinishReason = finish

	if callErr != nil {
		c.setCache(resetPosition)
		res.Err = newError(KindEngineCallFailed, fmt.Sprintf("feed back token at position %d", next), callErr)
		return res, outcomeError
	}
	c.setCache(window.CachePosition{Conversation: convID, Len: next})
	if finish == FinishAborted {
		return res, outcomeCancelled
	}
	return res, outcomeDone
}

// resolveConversation picks the conversation a turn runs against. isNew means
// none exists yet; it is created only once the turn is accepted.
func (c *Coordinator) resolveConversation(s *session) (id string, isNew bool, err error) {
	c.mu.RLock()
	explicit, cur := s.convID, c.current
	c.mu.RUnlock()
	if explicit != "" {
		if _, ok := c.store.Get(explicit); !ok {
			return "", false, conversationNotFound(explicit)
		}
		return explicit, false, nil
	}
	if cur != "" {
		if _, ok := c.store.Get(cur); ok {
			c.mu.Lock()
			s.convID = cur
			c.mu.Unlock()
			return cur, false, nil
		}
	}
	return "", true, nil
}

// prefill writes toks at the matching positions in chunks of at most
// maxBatch. Only the final token of toks asks for output, and only when
// wantOutput is set.
func (c *Coordinator) prefill(toks []engine.Token, pos []int, wantOutput bool) error {
	if len(toks) == 0 {
		return nil
	}
	for off := 0; off < len(toks); off += c.maxBatch {
		end := off + c.maxBatch
		if end > len(toks) {
			end = len(toks)
		}
		c.batch.Clear()
		for i := off; i < end; i++ {
			c.batch.Add(toks[i], pos[i], 0, wantOutput && i == len(toks)-1)
		}
		if err := c.eng.ExtendCache(c.batch); err != nil {
			return fmt.Errorf("extend cache at position %d: %w", pos[off], err)
		}
	}
	return nil
}
