package coordinator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dialogd/internal/engine"
	"dialogd/internal/engine/enginetest"
)

func TestStart_SynchronousErrors(t *testing.T) {
	eng := enginetest.New(100, 16)
	c, _ := newTestCoordinator(t, eng, nil)
	ctx := testCtx(t)

	_, err := c.Start(ctx, "hi", Params{}, "missing")
	require.True(t, IsConversationNotFound(err))

	_, err = c.Start(ctx, "hi", Params{MaxTokens: -1}, "")
	require.True(t, IsInvalidParams(err))
	_, err = c.Start(ctx, "hi", Params{TopP: 2}, "")
	require.True(t, IsInvalidParams(err))

	require.Empty(t, c.ActiveSessionIDs())
	require.Zero(t, eng.ExtendCalls())
}

func TestCancel_IdempotentAndKeepsPartialOutput(t *testing.T) {
	eng := enginetest.New(1000, 16)
	eng.Endless = 9
	eng.SetPiece(9, "z")
	c, pub := newTestCoordinator(t, eng, func(cfg *Config) { cfg.FragmentBuffer = 1 })

	h, err := c.Start(testCtx(t), "a b", Params{MaxTokens: 500}, "")
	require.NoError(t, err)
	var delivered []string
	for i := 0; i < 2; i++ {
		f := <-h.Fragments()
		require.Equal(t, "z", f.Text)
		delivered = append(delivered, f.Text)
	}
	require.True(t, c.Cancel(h.SessionID()))
	require.True(t, c.Cancel(h.SessionID()) || !sessionActive(c, h.SessionID()))
	h.Cancel()

	texts, err := drain(h)
	require.NoError(t, err, "cancellation is not an error")
	delivered = append(delivered, texts...)
	res := h.Result()
	require.Equal(t, FinishAborted, res.FinishReason)
	require.Equal(t, len(delivered), res.GeneratedTokens, "every delivered fragment is recorded")

	msgs, _ := c.ConversationMessages(res.ConversationID)
	require.Len(t, msgs, 2)
	require.Len(t, msgs[1].Tokens, res.GeneratedTokens)
	require.Equal(t, strings.Join(delivered, ""), msgs[1].Content)
	require.Equal(t, msgs[1].Content, res.Content)
	info, _ := c.ConversationInfo(res.ConversationID)
	require.Equal(t, res.PromptTokens+res.GeneratedTokens, info.TotalTokens)
	require.Equal(t, info.TotalTokens, c.Status().CachedTokens)

	require.False(t, c.Cancel(h.SessionID()), "finished sessions are unknown")
	require.Contains(t, pub.Names(), EventTurnCancelled)
}

func sessionActive(c *Coordinator, id string) bool {
	_, ok := c.SessionInfo(id)
	return ok
}

func TestCancel_BeforeFirstTokenRecordsUserMessageOnly(t *testing.T) {
	release := make(chan struct{})
	eng := enginetest.New(100, 16)
	eng.Script = []engine.Token{7, enginetest.EOS}
	eng.OnSample = func(n int) {
		if n == 1 {
			<-release
		}
	}
	c, _ := newTestCoordinator(t, eng, nil)

	h, err := c.Start(testCtx(t), "a b", Params{}, "")
	require.NoError(t, err)
	waitRunning(t, c, h.SessionID())
	// the worker is inside Sample; cancel before the token is yielded
	require.Eventually(t, func() bool { return eng.Samples() == 1 }, time.Second, time.Millisecond)
	c.Cancel(h.SessionID())
	close(release)

	texts, err := drain(h)
	require.NoError(t, err)
	require.Empty(t, texts)
	res := h.Result()
	require.Equal(t, FinishAborted, res.FinishReason)
	require.Zero(t, res.GeneratedTokens)

	msgs, _ := c.ConversationMessages(res.ConversationID)
	require.Len(t, msgs, 1)
	require.Equal(t, 2, c.Status().CachedTokens, "a lost fragment is not fed back")
}

func TestCancel_WhileQueuedDoesNoEngineWork(t *testing.T) {
	release := make(chan struct{})
	eng := enginetest.New(100, 16)
	eng.Script = []engine.Token{7, enginetest.EOS}
	eng.OnSample = func(n int) {
		if n == 1 {
			<-release
		}
	}
	c, _ := newTestCoordinator(t, eng, nil)
	ctx := testCtx(t)

	first, err := c.Start(ctx, "a", Params{}, "")
	require.NoError(t, err)
	waitRunning(t, c, first.SessionID())

	second, err := c.Start(ctx, "b c", Params{}, "")
	require.NoError(t, err)
	info, ok := c.SessionInfo(second.SessionID())
	require.True(t, ok)
	require.Equal(t, "queued", info.State)
	require.Equal(t, []string{first.SessionID(), second.SessionID()}, c.ActiveSessionIDs())

	c.Cancel(second.SessionID())
	close(release)

	_, err = first.Collect()
	require.NoError(t, err)
	_, err = second.Collect()
	require.NoError(t, err)
	require.Equal(t, FinishAborted, second.Result().FinishReason)
	require.Zero(t, second.Result().PromptTokens)

	require.Equal(t, 2, eng.Samples())
	require.Equal(t, 1, c.Store().Len())
	conv := first.Result().ConversationID
	info2, _ := c.ConversationInfo(conv)
	require.Equal(t, 2, info2.MessageCount)
}

func TestCancel_CallerContext(t *testing.T) {
	eng := enginetest.New(1000, 16)
	eng.Endless = 9
	c, _ := newTestCoordinator(t, eng, func(cfg *Config) { cfg.FragmentBuffer = 1 })

	ctx, cancel := context.WithCancel(context.Background())
	h, err := c.Start(ctx, "a", Params{MaxTokens: 500}, "")
	require.NoError(t, err)
	<-h.Fragments()
	cancel()

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not finish after caller context was cancelled")
	}
	require.Equal(t, FinishAborted, h.Result().FinishReason)
}

func TestCancelAll(t *testing.T) {
	eng := enginetest.New(1000, 16)
	eng.Endless = 9
	c, _ := newTestCoordinator(t, eng, func(cfg *Config) { cfg.FragmentBuffer = 1 })
	ctx := testCtx(t)

	h1, err := c.Start(ctx, "a", Params{MaxTokens: 500}, "")
	require.NoError(t, err)
	h2, err := c.Start(ctx, "b", Params{MaxTokens: 500}, "")
	require.NoError(t, err)
	waitRunning(t, c, h1.SessionID())

	ids := c.CancelAll()
	require.ElementsMatch(t, []string{h1.SessionID(), h2.SessionID()}, ids)
	<-h1.Done()
	<-h2.Done()
	require.Equal(t, FinishAborted, h1.Result().FinishReason)
	require.Equal(t, FinishAborted, h2.Result().FinishReason)
	require.Zero(t, h2.Result().GeneratedTokens)
	require.Empty(t, c.ActiveSessionIDs())
}

func TestStart_TooBusyWhenQueueFull(t *testing.T) {
	release := make(chan struct{})
	eng := enginetest.New(100, 16)
	eng.Script = []engine.Token{enginetest.EOS, enginetest.EOS}
	eng.OnSample = func(n int) {
		if n == 1 {
			<-release
		}
	}
	c, _ := newTestCoordinator(t, eng, func(cfg *Config) {
		cfg.MaxQueueDepth = 1
		cfg.MaxWait = 20 * time.Millisecond
	})
	ctx := testCtx(t)

	running, err := c.Start(ctx, "a", Params{}, "")
	require.NoError(t, err)
	waitRunning(t, c, running.SessionID())
	queued, err := c.Start(ctx, "b", Params{}, "")
	require.NoError(t, err)

	_, err = c.Start(ctx, "c", Params{}, "")
	require.True(t, IsTooBusy(err), "got %v", err)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	require.Equal(t, 429, ce.StatusCode())
	require.Len(t, c.ActiveSessionIDs(), 2)

	close(release)
	_, err = running.Collect()
	require.NoError(t, err)
	_, err = queued.Collect()
	require.NoError(t, err)
}

func TestSessionInfoReportsProgress(t *testing.T) {
	eng := enginetest.New(1000, 16)
	eng.Endless = 9
	c, _ := newTestCoordinator(t, eng, func(cfg *Config) { cfg.FragmentBuffer = 1 })

	h, err := c.Start(testCtx(t), "a", Params{MaxTokens: 500, Seed: 11}, "")
	require.NoError(t, err)
	<-h.Fragments()
	<-h.Fragments()
	require.Eventually(t, func() bool {
		info, ok := c.SessionInfo(h.SessionID())
		return ok && info.GeneratedTokens >= 2
	}, time.Second, time.Millisecond)
	info, _ := c.SessionInfo(h.SessionID())
	require.Equal(t, "running", info.State)
	require.NotEmpty(t, info.ConversationID)
	require.Equal(t, 11, info.Params.Seed)
	require.False(t, info.Cancelled)

	h.Cancel()
	<-h.Done()
	_, ok := c.SessionInfo(h.SessionID())
	require.False(t, ok)
}

func TestResult_DiscardsUnreadFragments(t *testing.T) {
	eng := enginetest.New(100, 16)
	eng.Endless = 9
	eng.SetPiece(9, "z")
	c, _ := newTestCoordinator(t, eng, func(cfg *Config) { cfg.FragmentBuffer = 2 })

	h, err := c.Start(testCtx(t), "a", Params{MaxTokens: 10}, "")
	require.NoError(t, err)
	got := make(chan Result, 1)
	go func() { got <- h.Result() }()
	select {
	case res := <-got:
		require.Equal(t, FinishLength, res.FinishReason)
		require.Equal(t, 10, res.GeneratedTokens)
		require.Equal(t, strings.Repeat("z", 10), res.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("Result blocked on an unread stream")
	}
}
