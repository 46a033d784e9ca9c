package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dialogd/internal/coordinator"
	"dialogd/pkg/types"
)

// sessionHeader carries the session id of a /generate stream.
const sessionHeader = "X-Session-ID"

func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	return true
}

func paramsFromRequest(req types.GenerateRequest) coordinator.Params {
	return coordinator.Params{
		Temperature: float32(req.Temperature),
		TopP:        float32(req.TopP),
		TopK:        req.TopK,
		Seed:        req.Seed,
		MaxTokens:   req.MaxTokens,
		Threads:     req.Threads,
	}
}

// generate godoc
// @Summary      Generate a reply
// @Description  Runs one conversation turn and streams NDJSON: one {"token"} line per fragment, then a done or error line.
// @Tags         generate
// @Accept       json
// @Produce      application/x-ndjson
// @Param        request  body      types.GenerateRequest  true  "Generation request"
// @Success      200      {object}  types.GenerateDone
// @Failure      400      {object}  types.ErrorResponse
// @Failure      404      {object}  types.ErrorResponse
// @Failure      415      {object}  types.ErrorResponse
// @Failure      422      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Router       /generate [post]
func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	lvl := requestLogLevel(r)
	log := reqLog(r)
	start := time.Now()
	end := func(status int, sessionID string, err error) {
		if lvl < LevelInfo && (lvl < LevelError || err == nil) {
			return
		}
		ev := log.Info()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Int("status", status).Str("session_id", sessionID).Dur("dur", time.Since(start)).Msg("generate end")
	}

	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	if generateTimeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, generateTimeout)
		defer tcancel()
	}

	handle, err := h.svc.Start(ctx, req.Prompt, paramsFromRequest(req), req.ConversationID)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		end(writeError(w, err), "", err)
		return
	}
	sid := handle.SessionID()
	if lvl >= LevelInfo {
		log.Info().Str("session_id", sid).Str("conversation_id", req.ConversationID).Msg("generate start")
	}

	// A terminal error before any text is reported with its own status.
	first, ok := <-handle.Fragments()
	if ok && first.Err != nil {
		w.Header().Set(sessionHeader, sid)
		end(writeError(w, first.Err), sid, first.Err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set(sessionHeader, sid)
	w.WriteHeader(http.StatusOK)
	var out io.Writer = w
	if lvl >= LevelDebug {
		out = io.MultiWriter(w, &loggingLineWriter{log: log.With().Str("session_id", sid).Logger()})
	}
	sw := newStreamWriter(out, w)

	if ok {
		if !sw.token(first.Text) {
			end(http.StatusOK, sid, r.Context().Err())
			return
		}
		for f := range handle.Fragments() {
			if f.Err != nil {
				_, body := errorPayload(f.Err)
				sw.line(body)
				end(http.StatusOK, sid, f.Err)
				return
			}
			if !sw.token(f.Text) {
				end(http.StatusOK, sid, r.Context().Err())
				return
			}
		}
	}

	res := handle.Result()
	if res.Err != nil {
		// the error fragment was dropped because the session was cancelled
		_, body := errorPayload(res.Err)
		sw.line(body)
		end(http.StatusOK, sid, res.Err)
		return
	}
	if res.FinishReason == coordinator.FinishAborted && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err := fmt.Errorf("generation exceeded %s: %w", generateTimeout, context.DeadlineExceeded)
		_, body := errorPayload(err)
		sw.line(body)
		end(http.StatusGatewayTimeout, sid, err)
		return
	}
	sw.line(types.GenerateDone{
		Done:           true,
		Content:        res.Content,
		FinishReason:   res.FinishReason,
		ConversationID: res.ConversationID,
		Usage: types.Usage{
			PromptTokens:     res.PromptTokens,
			CompletionTokens: res.GeneratedTokens,
			TotalTokens:      res.PromptTokens + res.GeneratedTokens,
		},
	})
	end(http.StatusOK, sid, nil)
}

// streamWriter encodes NDJSON lines and flushes after each one.
type streamWriter struct {
	enc   *json.Encoder
	flush func()
	err   error
}

func newStreamWriter(out io.Writer, w http.ResponseWriter) *streamWriter {
	sw := &streamWriter{enc: json.NewEncoder(out), flush: func() {}}
	if f, ok := w.(http.Flusher); ok {
		sw.flush = f.Flush
	}
	return sw
}

func (sw *streamWriter) line(v any) bool {
	if sw.err != nil {
		return false
	}
	if sw.err = sw.enc.Encode(v); sw.err != nil {
		return false
	}
	sw.flush()
	return true
}

func (sw *streamWriter) token(text string) bool {
	if !sw.line(types.TokenLine{Token: text}) {
		return false
	}
	streamedFragments.Inc()
	return true
}
