package proto

import (
	"encoding/json"

	"github.com/vovakirdan/wiredraw-server/internal/core"
)

// FromMessage converts a core message into its wire form.
func FromMessage(m core.Message) Message {
	return Message{
		RoomID:  m.Room,
		Sender:  m.Sender,
		Payload: json.RawMessage(m.Payload),
		Seq:     m.Seq,
		TS:      m.CreatedAt.UnixMilli(),
	}
}

// FromMessages converts a slice, never returning nil.
func FromMessages(msgs []core.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, FromMessage(m))
	}
	return out
}
