package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandAuth presents a bearer credential.
	CommandAuth CommandKind = iota
	// CommandJoinRoom subscribes the connection to a room, leaving any previous one.
	CommandJoinRoom
	// CommandLeaveRoom unsubscribes the connection from its current room.
	CommandLeaveRoom
	// CommandPublish sends a payload to the joined room.
	CommandPublish
)

func (k CommandKind) String() string {
	switch k {
	case CommandAuth:
		return "auth"
	case CommandJoinRoom:
		return "join"
	case CommandLeaveRoom:
		return "leave"
	case CommandPublish:
		return "publish"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind    CommandKind
	Token   string
	Room    string
	Payload []byte
}
