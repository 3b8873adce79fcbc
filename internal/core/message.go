package core

import "time"

// Identity is the authenticated principal bound to a connection.
type Identity struct {
	UserID string
	Name   string
}

// Message is the domain model for a room event. Payload is opaque to the core.
type Message struct {
	Room      string
	Seq       int64
	Sender    string
	Payload   []byte
	CreatedAt time.Time
}
