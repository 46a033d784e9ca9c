package coordinator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"dialogd/internal/conversation"
	"dialogd/internal/engine"
	"dialogd/internal/engine/enginetest"
)

func TestTurn_TwoTokensThenEOS(t *testing.T) {
	eng := enginetest.New(100, 16)
	eng.Script = []engine.Token{7, 7, enginetest.EOS}
	eng.SetPiece(7, "la")
	c, pub := newTestCoordinator(t, eng, nil)

	h, err := c.Start(testCtx(t), "hello world", Params{}, "")
	require.NoError(t, err)
	texts, streamErr := drain(h)
	require.NoError(t, streamErr)
	require.Equal(t, []string{"la", "la"}, texts)

	res := h.Result()
	require.NoError(t, res.Err)
	require.Equal(t, FinishStop, res.FinishReason)
	require.Equal(t, 2, res.PromptTokens)
	require.Equal(t, 2, res.GeneratedTokens)
	require.Equal(t, "lala", res.Content)

	msgs, ok := c.ConversationMessages(res.ConversationID)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	require.Equal(t, conversation.RoleUser, msgs[0].Role)
	require.Equal(t, "hello world", msgs[0].Content)
	require.Equal(t, conversation.RoleAssistant, msgs[1].Role)
	require.Equal(t, "lala", msgs[1].Content)
	require.Equal(t, []engine.Token{7, 7}, msgs[1].Tokens)

	// prompt at 0..1, generated tokens fed back at 2 and 3
	require.Equal(t, []int{0, 1, 2, 3}, eng.Positions())
	require.Equal(t, res.ConversationID, c.CurrentConversation())
	st := c.Status()
	require.Equal(t, res.ConversationID, st.CachedConversation)
	require.Equal(t, 4, st.CachedTokens)
	require.Contains(t, pub.Names(), EventTurnDone)
	require.Empty(t, c.ActiveSessionIDs())
}

func TestTurn_OnlyLastPromptTokenNeedsOutput(t *testing.T) {
	eng := enginetest.New(100, 2)
	eng.Script = []engine.Token{enginetest.EOS}
	c, _ := newTestCoordinator(t, eng, nil)

	h, err := c.Start(testCtx(t), "a b c d e", Params{}, "")
	require.NoError(t, err)
	_, err = h.Collect()
	require.NoError(t, err)

	batches := eng.Batches()
	require.Len(t, batches, 3, "five prompt tokens in batches of two")
	var outputs []bool
	for _, b := range batches {
		require.LessOrEqual(t, len(b), 2)
		for _, s := range b {
			outputs = append(outputs, s.NeedsOutput)
		}
	}
	require.Equal(t, []bool{false, false, false, false, true}, outputs)
}

func TestTurn_ContinuingPositionsAreContiguous(t *testing.T) {
	eng := enginetest.New(100, 16)
	eng.Script = []engine.Token{5, enginetest.EOS, 6, 6, enginetest.EOS}
	c, pub := newTestCoordinator(t, eng, nil)
	ctx := testCtx(t)

	h1, err := c.Start(ctx, "a b", Params{}, "")
	require.NoError(t, err)
	_, err = h1.Collect()
	require.NoError(t, err)
	conv := h1.Result().ConversationID

	h2, err := c.Start(ctx, "c", Params{}, conv)
	require.NoError(t, err)
	_, err = h2.Collect()
	require.NoError(t, err)

	pos := eng.Positions()
	for i, p := range pos {
		require.Equal(t, i, p)
	}
	require.Len(t, pos, 6, "2 prompt + 1 generated + 1 prompt + 2 generated")
	require.Equal(t, 1, eng.Clears(), "only the fresh turn clears the cache")

	info, _ := c.ConversationInfo(conv)
	require.Equal(t, 6, info.TotalTokens)
	require.Equal(t, 4, info.MessageCount)
	require.Equal(t, 6, c.Status().CachedTokens)
	_ = pub
}

func TestTurn_RebuildReplaysHistory(t *testing.T) {
	eng := enginetest.New(100, 16)
	eng.Script = []engine.Token{5, enginetest.EOS, 6, enginetest.EOS, 7, enginetest.EOS}
	c, _ := newTestCoordinator(t, eng, nil)
	ctx := testCtx(t)

	a, err := c.StartNewConversation(ctx)
	require.NoError(t, err)
	b, err := c.StartNewConversation(ctx)
	require.NoError(t, err)

	for _, conv := range []string{a, b, a} {
		h, err := c.Start(ctx, "x y", Params{}, conv)
		require.NoError(t, err)
		_, err = h.Collect()
		require.NoError(t, err)
	}

	batches := eng.Batches()
	// a: prompt, feedback; b: prompt, feedback; a: replay, prompt, feedback
	require.Len(t, batches, 7)
	replay := batches[4]
	require.Len(t, replay, 3)
	require.Equal(t, 0, replay[0].Pos)
	for _, s := range replay {
		require.False(t, s.NeedsOutput)
	}
	prompt := batches[5]
	require.Equal(t, 3, prompt[0].Pos)
	require.True(t, prompt[len(prompt)-1].NeedsOutput)
	require.Equal(t, 3, eng.Clears())

	info, _ := c.ConversationInfo(a)
	require.Equal(t, 6, info.TotalTokens)
	require.Equal(t, 6, c.Status().CachedTokens)
}

func TestTurn_RejectedLeavesEverythingUnchanged(t *testing.T) {
	eng := enginetest.New(100, 16)
	store := conversation.NewStore()
	conv := store.Create()
	hist := make([]engine.Token, 50)
	for i := range hist {
		hist[i] = engine.Token(100 + i)
	}
	store.Append(conv, conversation.RoleUser, "history", hist)

	c, pub := newTestCoordinator(t, eng, func(cfg *Config) { cfg.Store = store })
	before := c.Status()

	h, err := c.Start(testCtx(t), words(60), Params{}, conv)
	require.NoError(t, err)

	var frags []Fragment
	for f := range h.Fragments() {
		frags = append(frags, f)
	}
	require.Len(t, frags, 1, "the rejection is the sole stream element")
	require.True(t, IsContextPreparationFailed(frags[0].Err), "got %v", frags[0].Err)

	<-h.Done()
	info, _ := c.ConversationInfo(conv)
	require.Equal(t, 50, info.TotalTokens)
	require.Equal(t, 1, info.MessageCount)
	require.Zero(t, eng.ExtendCalls())
	require.Zero(t, eng.Samples())
	require.Zero(t, eng.Clears())
	require.Empty(t, c.ActiveSessionIDs())

	after := c.Status()
	require.Equal(t, before.CachedConversation, after.CachedConversation)
	require.Equal(t, before.CachedTokens, after.CachedTokens)
	require.EqualValues(t, 1, after.RejectedTotal)
	require.Contains(t, pub.Names(), EventTurnRejected)
}

func TestTurn_NewConversationNotCreatedWhenRejected(t *testing.T) {
	eng := enginetest.New(4, 4)
	c, _ := newTestCoordinator(t, eng, nil)

	h, err := c.Start(testCtx(t), words(5), Params{}, "")
	require.NoError(t, err)
	_, err = h.Collect()
	require.True(t, IsContextPreparationFailed(err))
	require.Zero(t, c.Store().Len())
	require.Empty(t, c.CurrentConversation())
}

func TestTurn_TokenizationFailures(t *testing.T) {
	eng := enginetest.New(100, 16)
	c, _ := newTestCoordinator(t, eng, nil)
	ctx := testCtx(t)

	h, err := c.Start(ctx, "   ", Params{}, "")
	require.NoError(t, err)
	_, err = h.Collect()
	require.True(t, IsTokenizationFailed(err), "empty prompt: %v", err)

	eng.TokenizeErr = errors.New("bad bytes")
	h, err = c.Start(ctx, "hello", Params{}, "")
	require.NoError(t, err)
	_, err = h.Collect()
	require.True(t, IsTokenizationFailed(err))
	require.ErrorIs(t, err, engine.ErrTokenization)
	require.Zero(t, eng.ExtendCalls())
}

func TestTurn_PrefillFailureStoresNothing(t *testing.T) {
	eng := enginetest.New(100, 16)
	eng.ExtendErr = engine.ErrOutOfMemory
	eng.ExtendErrAt = 1
	c, _ := newTestCoordinator(t, eng, nil)

	h, err := c.Start(testCtx(t), "a b", Params{}, "")
	require.NoError(t, err)
	_, err = h.Collect()
	require.True(t, IsContextPreparationFailed(err))
	require.ErrorIs(t, err, engine.ErrOutOfMemory)

	res := h.Result()
	info, ok := c.ConversationInfo(res.ConversationID)
	require.True(t, ok)
	require.Zero(t, info.MessageCount)
	require.Empty(t, c.Status().CachedConversation)
}

func TestTurn_EngineFailureKeepsPartialOutput(t *testing.T) {
	eng := enginetest.New(100, 16)
	eng.Script = []engine.Token{7, 8, enginetest.EOS}
	eng.SetPiece(7, "par")
	eng.ExtendErr = engine.ErrCacheFull
	eng.ExtendErrAt = 2 // prompt succeeds, first feed-back fails
	c, pub := newTestCoordinator(t, eng, nil)

	h, err := c.Start(testCtx(t), "a b", Params{}, "")
	require.NoError(t, err)
	texts, streamErr := drain(h)
	require.Equal(t, []string{"par"}, texts)
	require.True(t, IsEngineCallFailed(streamErr))

	res := h.Result()
	require.Equal(t, FinishError, res.FinishReason)
	require.Equal(t, 1, res.GeneratedTokens)
	msgs, _ := c.ConversationMessages(res.ConversationID)
	require.Len(t, msgs, 2)
	require.Equal(t, "par", msgs[1].Content)
	require.Empty(t, c.Status().CachedConversation, "cache belief is reset after an engine failure")
	require.Contains(t, pub.Names(), EventTurnError)
}

func TestTurn_MaxTokensAndContextFull(t *testing.T) {
	t.Run("length", func(t *testing.T) {
		eng := enginetest.New(100, 16)
		eng.Endless = 9
		c, _ := newTestCoordinator(t, eng, nil)
		h, err := c.Start(testCtx(t), "a", Params{MaxTokens: 3}, "")
		require.NoError(t, err)
		_, err = h.Collect()
		require.NoError(t, err)
		require.Equal(t, FinishLength, h.Result().FinishReason)
		require.Equal(t, 3, h.Result().GeneratedTokens)
	})
	t.Run("context_full", func(t *testing.T) {
		eng := enginetest.New(5, 5)
		eng.Endless = 9
		c, _ := newTestCoordinator(t, eng, nil)
		ctx := testCtx(t)
		h, err := c.Start(ctx, "a b", Params{MaxTokens: 100}, "")
		require.NoError(t, err)
		_, err = h.Collect()
		require.NoError(t, err)
		res := h.Result()
		require.Equal(t, FinishContextFull, res.FinishReason)
		require.Equal(t, 3, res.GeneratedTokens)
		require.Equal(t, 5, eng.Cached())

		h, err = c.Start(ctx, "c", Params{}, res.ConversationID)
		require.NoError(t, err)
		_, err = h.Collect()
		require.True(t, IsContextPreparationFailed(err))
	})
}

func TestTurn_ExhaustedEngine(t *testing.T) {
	eng := enginetest.New(100, 16)
	eng.Script = []engine.Token{4}
	c, _ := newTestCoordinator(t, eng, nil)
	h, err := c.Start(testCtx(t), "a", Params{}, "")
	require.NoError(t, err)
	_, err = h.Collect()
	require.NoError(t, err)
	require.Equal(t, FinishExhausted, h.Result().FinishReason)
	require.Equal(t, 1, h.Result().GeneratedTokens)
}

func TestTurn_ConfiguresEngineWithParams(t *testing.T) {
	eng := enginetest.New(100, 16)
	eng.Script = []engine.Token{enginetest.EOS}
	c, _ := newTestCoordinator(t, eng, nil)
	h, err := c.Start(testCtx(t), "a", Params{Temperature: 0.2, TopK: 5, Seed: 3}, "")
	require.NoError(t, err)
	_, err = h.Collect()
	require.NoError(t, err)

	got := eng.Configured()
	require.Len(t, got, 1)
	require.InDelta(t, 0.2, got[0].Temperature, 1e-6)
	require.Equal(t, 5, got[0].TopK)
	require.Equal(t, 3, got[0].Seed)
	require.InDelta(t, 0.95, got[0].TopP, 1e-6, "unset fields take defaults")
}

func TestTurn_CausalAttentionDefaultsOn(t *testing.T) {
	eng := enginetest.New(100, 16)
	eng.Script = []engine.Token{enginetest.EOS, enginetest.EOS}
	c, _ := newTestCoordinator(t, eng, nil)

	h, err := c.Start(testCtx(t), "a b", Params{MaxTokens: 3}, "")
	require.NoError(t, err)
	_, err = h.Collect()
	require.NoError(t, err)

	h, err = c.Start(testCtx(t), "c", Params{MaxTokens: 3, CausalAttention: Bool(false)}, "")
	require.NoError(t, err)
	_, err = h.Collect()
	require.NoError(t, err)

	got := eng.Configured()
	require.Len(t, got, 2)
	require.True(t, got[0].CausalAttention, "unset flag takes the default")
	require.False(t, got[0].Embeddings)
	require.False(t, got[1].CausalAttention, "explicit false is kept")
}

func TestTurn_ConfigureFailure(t *testing.T) {
	eng := enginetest.New(100, 16)
	eng.ConfigureErr = errors.New("unsupported")
	c, _ := newTestCoordinator(t, eng, nil)
	h, err := c.Start(testCtx(t), "a", Params{}, "")
	require.NoError(t, err)
	_, err = h.Collect()
	require.True(t, IsContextPreparationFailed(err))
	require.Zero(t, eng.ExtendCalls())
}
