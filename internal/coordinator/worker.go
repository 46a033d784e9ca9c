package coordinator

import "fmt"

// work is the single writer: every engine call, store write and cache belief
// update happens here, in admission order.
func (c *Coordinator) work() {
	defer close(c.workerDone)
	for {
		select {
		case j := <-c.jobs:
			c.runJob(j)
		case <-c.quit:
			for {
				select {
				case j := <-c.jobs:
					c.runJob(j)
				default:
					return
				}
			}
		}
	}
}

func (c *Coordinator) runJob(j job) {
	queueDepth.Set(float64(len(c.jobs)))
	if j.turn != nil {
		c.runTurn(j.turn)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("control operation panicked")
		}
	}()
	j.run()
}

func (c *Coordinator) runTurn(s *session) {
	if s.cancelled.Load() {
		c.finish(s, Result{ConversationID: c.sessionConversation(s), FinishReason: FinishAborted}, outcomeCancelled)
		return
	}
	c.mu.Lock()
	s.running = true
	c.inflight = true
	c.mu.Unlock()
	c.publish(EventTurnStart, s, c.sessionConversation(s), nil)

	var (
		res     Result
		outcome string
	)
	timer := startTurnTimer()
	func() {
		defer func() {
			if r := recover(); r != nil {
				c.setCache(resetPosition)
				c.log.Error().Str("session_id", s.id).Interface("panic", r).Msg("turn panicked")
				res = Result{
					ConversationID: c.sessionConversation(s),
					FinishReason:   FinishError,
					Err:            newError(KindEngineCallFailed, fmt.Sprintf("turn panicked: %v", r), nil),
				}
				outcome = outcomeError
			}
		}()
		res, outcome = c.turn(s)
	}()
	timer.ObserveDuration()

	c.mu.Lock()
	c.inflight = false
	c.mu.Unlock()
	c.finish(s, res, outcome)
}

func (c *Coordinator) sessionConversation(s *session) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return s.convID
}

// finish delivers the terminal error (if any), closes the stream and removes
// the session from the table.
func (c *Coordinator) finish(s *session, res Result, outcome string) {
	if res.Err != nil {
		res.FinishReason = FinishError
		select {
		case s.frags <- Fragment{Err: res.Err}:
		case <-s.cancelCh:
		}
	}
	close(s.frags)
	s.result = res

	c.mu.Lock()
	delete(c.sessions, s.id)
	active := len(c.sessions)
	if res.Err != nil {
		c.lastErr = res.Err.Error()
	}
	c.mu.Unlock()
	if s.stopWatch != nil {
		s.stopWatch()
	}
	// events and counters are visible before Done fires
	defer close(s.done)

	activeSessions.Set(float64(active))
	turnsTotal.WithLabelValues(outcome).Inc()
	c.turns.Add(1)
	fields := map[string]any{
		"prompt_tokens":    res.PromptTokens,
		"generated_tokens": res.GeneratedTokens,
		"finish_reason":    res.FinishReason,
	}
	switch outcome {
	case outcomeRejected:
		c.rejected.Add(1)
		fields["error"] = res.Err.Error()
		c.publish(EventTurnRejected, s, res.ConversationID, fields)
	case outcomeError:
		fields["error"] = res.Err.Error()
		c.publish(EventTurnError, s, res.ConversationID, fields)
	case outcomeCancelled:
		c.cancelled.Add(1)
		c.publish(EventTurnCancelled, s, res.ConversationID, fields)
	default:
		c.publish(EventTurnDone, s, res.ConversationID, fields)
	}
	c.log.Debug().
		Str("session_id", s.id).
		Str("conversation_id", res.ConversationID).
		Str("outcome", outcome).
		Str("finish_reason", res.FinishReason).
		Int("prompt_tokens", res.PromptTokens).
		Int("generated_tokens", res.GeneratedTokens).
		Msg("turn finished")
}
