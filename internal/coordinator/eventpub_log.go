package coordinator

import "github.com/rs/zerolog"

// LogPublisher writes events to a zerolog logger. Failure events are logged
// at warn level, everything else at debug.
type LogPublisher struct {
	Logger zerolog.Logger
}

func (p LogPublisher) Publish(e Event) {
	var ev *zerolog.Event
	switch e.Name {
	case EventTurnError, EventTurnRejected, EventDrainTimeout:
		ev = p.Logger.Warn()
	case EventConversationEvicted, EventConversationsImported, EventDrainStart, EventDrainDone:
		ev = p.Logger.Info()
	default:
		ev = p.Logger.Debug()
	}
	if e.SessionID != "" {
		ev = ev.Str("session_id", e.SessionID)
	}
	if e.Conversation != "" {
		ev = ev.Str("conversation_id", e.Conversation)
	}
	ev.Fields(e.Fields).Msg(e.Name)
}
