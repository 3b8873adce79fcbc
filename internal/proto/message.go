package proto

import "encoding/json"

const (
	InboundTypeAuth    = "auth"
	InboundTypeJoin    = "join"
	InboundTypeLeave   = "leave"
	InboundTypeMessage = "message"

	OutboundTypeMessage = "message"
	OutboundTypeHistory = "history"
	OutboundTypeError   = "error"
)

// Inbound is a frame coming from the client.
type Inbound struct {
	Type    string          `json:"type"`
	Token   string          `json:"token,omitempty"`
	RoomID  string          `json:"roomId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is a frame sent to the client. Which fields are set depends on Type.
type Outbound struct {
	Type string `json:"type"`

	// message
	RoomID  string          `json:"roomId,omitempty"`
	Sender  string          `json:"sender,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
	TS      int64           `json:"ts,omitempty"`

	// history
	Messages []Message `json:"messages,omitempty"`

	// error
	Reason string `json:"reason,omitempty"`
	Msg    string `json:"msg,omitempty"`
}

// Message is one delivered room message; TS is unix milliseconds.
type Message struct {
	RoomID  string          `json:"roomId"`
	Sender  string          `json:"sender"`
	Payload json.RawMessage `json:"payload"`
	Seq     int64           `json:"seq"`
	TS      int64           `json:"ts"`
}

// HistoryResponse is the body of the out-of-band history endpoint.
type HistoryResponse struct {
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
}
