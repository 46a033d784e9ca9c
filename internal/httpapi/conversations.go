package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dialogd/internal/conversation"
	"dialogd/pkg/types"
)

func conversationView(in conversation.Info, current string) types.ConversationResponse {
	return types.ConversationResponse{
		ID:            in.ID,
		Title:         in.Title,
		MessageCount:  in.MessageCount,
		TotalTokens:   in.TotalTokens,
		CreatedAtUnix: in.CreatedAt.Unix(),
		UpdatedAtUnix: in.UpdatedAt.Unix(),
		Current:       in.ID == current,
	}
}

func messageViews(msgs []conversation.Message) []types.MessageView {
	out := make([]types.MessageView, len(msgs))
	for i, m := range msgs {
		out[i] = types.MessageView{
			Role:          string(m.Role),
			Content:       m.Content,
			TokenCount:    len(m.Tokens),
			CreatedAtUnix: m.CreatedAt.Unix(),
		}
	}
	return out
}

// listConversations godoc
// @Summary  List conversations
// @Tags     conversations
// @Produce  json
// @Success  200  {object}  types.ConversationsResponse
// @Router   /conversations [get]
func (h *handlers) listConversations(w http.ResponseWriter, r *http.Request) {
	current := h.svc.CurrentConversation()
	infos := h.svc.Conversations()
	resp := types.ConversationsResponse{Conversations: make([]types.ConversationResponse, 0, len(infos)), Current: current}
	for _, in := range infos {
		resp.Conversations = append(resp.Conversations, conversationView(in, current))
	}
	writeJSON(w, http.StatusOK, resp)
}

// createConversation godoc
// @Summary  Start a new conversation and make it current
// @Tags     conversations
// @Accept   json
// @Produce  json
// @Param    request  body      types.CreateConversationRequest  false  "Optional title"
// @Success  201      {object}  types.ConversationResponse
// @Router   /conversations [post]
func (h *handlers) createConversation(w http.ResponseWriter, r *http.Request) {
	var req types.CreateConversationRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id, err := h.svc.StartConversation(r.Context(), req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	in, _ := h.svc.ConversationInfo(id)
	writeJSON(w, http.StatusCreated, conversationView(in, id))
}

// getConversation godoc
// @Summary  Describe a conversation
// @Tags     conversations
// @Produce  json
// @Param    id        path      string  true   "Conversation id"
// @Param    messages  query     bool    false  "Include messages"
// @Success  200       {object}  types.ConversationResponse
// @Failure  404       {object}  types.ErrorResponse
// @Router   /conversations/{id} [get]
func (h *handlers) getConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	in, ok := h.svc.ConversationInfo(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	resp := conversationView(in, h.svc.CurrentConversation())
	switch r.URL.Query().Get("messages") {
	case "1", "true":
		if msgs, ok := h.svc.ConversationMessages(id); ok {
			resp.Messages = messageViews(msgs)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// clearConversation godoc
// @Summary  Delete a conversation
// @Tags     conversations
// @Param    id   path  string  true  "Conversation id"
// @Success  204
// @Failure  404  {object}  types.ErrorResponse
// @Router   /conversations/{id} [delete]
func (h *handlers) clearConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// continueConversation godoc
// @Summary  Make a conversation current
// @Tags     conversations
// @Produce  json
// @Param    id   path      string  true  "Conversation id"
// @Success  200  {object}  types.ConversationResponse
// @Failure  404  {object}  types.ErrorResponse
// @Router   /conversations/{id}/continue [post]
func (h *handlers) continueConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.ContinueConversation(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	in, _ := h.svc.ConversationInfo(id)
	writeJSON(w, http.StatusOK, conversationView(in, id))
}

// exportConversations godoc
// @Summary  Export every conversation as a snapshot document
// @Tags     conversations
// @Produce  json
// @Success  200
// @Router   /conversations/export [get]
func (h *handlers) exportConversations(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.ExportConversations()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="conversations.json"`)
	_, _ = w.Write(data)
}

// importConversations godoc
// @Summary  Import a snapshot document
// @Tags     conversations
// @Accept   json
// @Produce  json
// @Success  200  {object}  types.ImportResponse
// @Failure  400  {object}  types.ErrorResponse
// @Router   /conversations/import [post]
func (h *handlers) importConversations(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "snapshot too large")
		return
	}
	n, err := h.svc.ImportConversations(r.Context(), data)
	if err != nil {
		writeError(w, err)
		return
	}
	log := reqLog(r)
	log.Info().Int("conversations", n).Msg("conversations imported")
	writeJSON(w, http.StatusOK, types.ImportResponse{Imported: n})
}
