package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventRoomMessage delivers one published message.
	EventRoomMessage EventKind = iota
	// EventHistory delivers the backfill burst right after a join.
	EventHistory
	// EventError notifies the originating client about a failure.
	EventError
)

// Event is queued on a connection's outbox. Events are shared between recipients
// and must not be mutated once enqueued.
type Event struct {
	Kind     EventKind
	Room     string
	Message  Message
	Messages []Message // For EventHistory
	Error    *CoreError
}

// ErrorEvent builds an EventError for the given code.
func ErrorEvent(code, msg string) *Event {
	return &Event{Kind: EventError, Error: NewError(code, msg)}
}
