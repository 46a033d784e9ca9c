package coordinator

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies coordinator failures.
type Kind string

const (
	KindTokenizationFailed       Kind = "TOKENIZATION_FAILED"
	KindContextPreparationFailed Kind = "CONTEXT_PREPARATION_FAILED"
	KindConversationNotFound     Kind = "CONVERSATION_NOT_FOUND"
	KindEngineCallFailed         Kind = "ENGINE_CALL_FAILED"
	KindTooBusy                  Kind = "TOO_BUSY"
	KindInvalidParams            Kind = "INVALID_PARAMS"
	KindInvalidSnapshot          Kind = "INVALID_SNAPSHOT"
)

// Error is returned synchronously by the public API and delivered as the
// terminal element of a fragment stream.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode maps the error kind to an HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindTokenizationFailed, KindInvalidParams, KindInvalidSnapshot:
		return http.StatusBadRequest
	case KindConversationNotFound:
		return http.StatusNotFound
	case KindContextPreparationFailed:
		return http.StatusUnprocessableEntity
	case KindTooBusy:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func conversationNotFound(id string) *Error {
	return newError(KindConversationNotFound, "conversation not found: "+id, nil)
}

func tooBusy(reason string) *Error { return newError(KindTooBusy, reason, nil) }

// KindOf returns the kind of a coordinator error, or "" for other errors.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

func IsTokenizationFailed(err error) bool { return KindOf(err) == KindTokenizationFailed }

func IsContextPreparationFailed(err error) bool {
	return KindOf(err) == KindContextPreparationFailed
}

func IsConversationNotFound(err error) bool { return KindOf(err) == KindConversationNotFound }

func IsEngineCallFailed(err error) bool { return KindOf(err) == KindEngineCallFailed }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool { return KindOf(err) == KindTooBusy }

func IsInvalidParams(err error) bool { return KindOf(err) == KindInvalidParams }

func IsInvalidSnapshot(err error) bool { return KindOf(err) == KindInvalidSnapshot }
