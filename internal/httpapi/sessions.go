package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dialogd/internal/coordinator"
	"dialogd/pkg/types"
)

func sessionView(in coordinator.SessionInfo) types.SessionInfo {
	return types.SessionInfo{
		ID:              in.ID,
		ConversationID:  in.ConversationID,
		State:           in.State,
		StartedUnix:     in.StartedAt.Unix(),
		GeneratedTokens: in.GeneratedTokens,
		Cancelled:       in.Cancelled,
	}
}

// listSessions godoc
// @Summary  List active sessions
// @Tags     sessions
// @Produce  json
// @Success  200  {object}  types.SessionsResponse
// @Router   /sessions [get]
func (h *handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	infos := h.svc.Sessions()
	resp := types.SessionsResponse{Sessions: make([]types.SessionInfo, 0, len(infos))}
	for _, in := range infos {
		resp.Sessions = append(resp.Sessions, sessionView(in))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getSession godoc
// @Summary  Describe an active session
// @Tags     sessions
// @Produce  json
// @Param    id   path      string  true  "Session id"
// @Success  200  {object}  types.SessionInfo
// @Failure  404  {object}  types.ErrorResponse
// @Router   /sessions/{id} [get]
func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	in, ok := h.svc.SessionInfo(chi.URLParam(r, "id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sessionView(in))
}

// cancelSession godoc
// @Summary  Cancel a session
// @Tags     sessions
// @Produce  json
// @Param    id   path      string  true  "Session id"
// @Success  200  {object}  types.CancelResponse
// @Failure  404  {object}  types.ErrorResponse
// @Router   /sessions/{id} [delete]
func (h *handlers) cancelSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.svc.Cancel(id) {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	log := reqLog(r)
	log.Info().Str("session_id", id).Msg("session cancel requested")
	writeJSON(w, http.StatusOK, types.CancelResponse{Cancelled: []string{id}})
}

// cancelAll godoc
// @Summary  Cancel every active session
// @Tags     sessions
// @Produce  json
// @Success  200  {object}  types.CancelResponse
// @Router   /sessions/cancel [post]
func (h *handlers) cancelAll(w http.ResponseWriter, r *http.Request) {
	ids := h.svc.CancelAll()
	if ids == nil {
		ids = []string{}
	}
	log := reqLog(r)
	log.Info().Int("sessions", len(ids)).Msg("cancel all requested")
	writeJSON(w, http.StatusOK, types.CancelResponse{Cancelled: ids})
}
