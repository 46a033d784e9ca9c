package coordinator

// Event is a coordinator lifecycle event: a name, the session and
// conversation it concerns (when any) and free-form fields.
type Event struct {
	Name         string
	SessionID    string
	Conversation string
	Fields       map[string]any
}

// EventPublisher receives events from the coordinator. Implementations should
// be lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// Event names.
const (
	EventTurnQueued            = "turn_queued"
	EventTurnStart             = "turn_start"
	EventTurnRejected          = "turn_rejected"
	EventTurnDone              = "turn_done"
	EventTurnCancelled         = "turn_cancelled"
	EventTurnError             = "turn_error"
	EventConversationCreated   = "conversation_created"
	EventConversationCleared   = "conversation_cleared"
	EventConversationEvicted   = "conversation_evicted"
	EventConversationsImported = "conversations_imported"
	EventDrainStart            = "drain_start"
	EventDrainTimeout          = "drain_timeout"
	EventDrainDone             = "drain_done"
)
