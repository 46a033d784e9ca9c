package types

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	// Required prompt text for this turn.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Conversation to continue. When empty the current conversation is used,
	// or a new one is started.
	// example: 6f1c2d8e-0a4b-4c1e-9d3f-2b7a5e8c9d10
	ConversationID string `json:"conversation_id,omitempty" example:"6f1c2d8e-0a4b-4c1e-9d3f-2b7a5e8c9d10"`
	// Maximum number of new tokens to generate.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// Random seed for reproducibility; 0 or omitted lets the engine choose.
	// example: 42
	Seed int `json:"seed,omitempty" example:"42"`
	// Threads used for generation; 0 keeps the engine default.
	// example: 4
	Threads int `json:"threads,omitempty" example:"4"`
}

// TokenLine is one streamed fragment of a /generate response.
type TokenLine struct {
	Token string `json:"token"`
}

// Usage reports token counts of a finished turn.
type Usage struct {
	// example: 12
	PromptTokens int `json:"prompt_tokens" example:"12"`
	// example: 64
	CompletionTokens int `json:"completion_tokens" example:"64"`
	// example: 76
	TotalTokens int `json:"total_tokens" example:"76"`
}

// GenerateDone is the final line of a successful /generate stream.
type GenerateDone struct {
	Done bool `json:"done"`
	// Full generated text.
	Content string `json:"content"`
	// One of stop, length, context_full, exhausted, aborted.
	// example: stop
	FinishReason   string `json:"finish_reason" example:"stop"`
	ConversationID string `json:"conversation_id"`
	Usage          Usage  `json:"usage"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
	// Machine-readable error kind, when known.
	// example: CONTEXT_PREPARATION_FAILED
	Kind string `json:"kind,omitempty" example:"CONTEXT_PREPARATION_FAILED"`
}

// SessionInfo describes an active generation session.
type SessionInfo struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id,omitempty"`
	// queued or running.
	// example: running
	State           string `json:"state" example:"running"`
	StartedUnix     int64  `json:"started_unix"`
	GeneratedTokens int    `json:"generated_tokens"`
	Cancelled       bool   `json:"cancelled"`
}

// SessionsResponse is returned by GET /sessions.
type SessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// CancelResponse is returned by the cancel endpoints.
type CancelResponse struct {
	Cancelled []string `json:"cancelled"`
}

// MessageView is one message of a conversation.
type MessageView struct {
	// user or assistant.
	// example: user
	Role          string `json:"role" example:"user"`
	Content       string `json:"content"`
	TokenCount    int    `json:"token_count"`
	CreatedAtUnix int64  `json:"created_at_unix"`
}

// ConversationResponse describes one conversation.
type ConversationResponse struct {
	ID            string        `json:"id"`
	Title         string        `json:"title,omitempty"`
	MessageCount  int           `json:"message_count"`
	TotalTokens   int           `json:"total_tokens"`
	CreatedAtUnix int64         `json:"created_at_unix"`
	UpdatedAtUnix int64         `json:"updated_at_unix"`
	Current       bool          `json:"current"`
	Messages      []MessageView `json:"messages,omitempty"`
}

// ConversationsResponse is returned by GET /conversations.
type ConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
	Current       string                 `json:"current,omitempty"`
}

// CreateConversationRequest is the optional body of POST /conversations.
type CreateConversationRequest struct {
	// example: Trip planning
	Title string `json:"title,omitempty" example:"Trip planning"`
}

// ImportResponse is returned by POST /conversations/import.
type ImportResponse struct {
	// example: 3
	Imported int `json:"imported" example:"3"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// ready, draining or closed.
	// example: ready
	State string `json:"state" example:"ready"`
	// Fixed number of positions the engine cache holds.
	// example: 2048
	CacheCapacity int `json:"cache_capacity" example:"2048"`
	// example: 512
	MaxBatchSize int `json:"max_batch_size" example:"512"`
	// Conversation whose tokens the cache currently holds.
	CachedConversation string `json:"cached_conversation,omitempty"`
	// example: 128
	CachedTokens        int    `json:"cached_tokens" example:"128"`
	CurrentConversation string `json:"current_conversation,omitempty"`
	// example: 3
	Conversations int `json:"conversations" example:"3"`
	// example: 1
	ActiveSessions int `json:"active_sessions" example:"1"`
	// Turns and control operations waiting for the worker.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// example: 42
	TurnsTotal uint64 `json:"turns_total" example:"42"`
	// example: 2
	RejectedTotal uint64 `json:"rejected_total" example:"2"`
	// example: 1
	CancelledTotal uint64 `json:"cancelled_total" example:"1"`
	// example: 0
	EvictionsTotal uint64 `json:"evictions_total" example:"0"`
	// Last terminal error observed by the coordinator (if any).
	LastError string `json:"last_error,omitempty"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
