package session

import (
	"context"
	"errors"

	"github.com/vovakirdan/wiredraw-server/internal/core"
	"github.com/vovakirdan/wiredraw-server/internal/proto"
)

// ErrMalformed marks a frame that could not be decoded. The transport stays usable.
var ErrMalformed = errors.New("malformed frame")

// CloseReason explains why the server ended a connection.
type CloseReason string

const (
	CloseNormal         CloseReason = "closing"
	CloseAuthFailed     CloseReason = core.ErrCodeAuthFailed
	CloseAuthTimeout    CloseReason = core.ErrCodeAuthTimeout
	CloseSlowConsumer   CloseReason = core.ErrCodeSlowConsumer
	CloseTransportError CloseReason = core.ErrCodeTransportError
	CloseIdleTimeout    CloseReason = "idle_timeout"
	CloseShutdown       CloseReason = "server_shutdown"
)

// Transport is one physical client connection.
//
// Read is only called from a single goroutine and Write from another; Close may be
// called concurrently with both and must unblock them. Read reports a clean peer
// close as io.EOF.
type Transport interface {
	Read(ctx context.Context) (proto.Inbound, error)
	Write(ctx context.Context, frame proto.Outbound) error
	Close(reason CloseReason) error
}

// TokenValidator checks a bearer credential.
type TokenValidator interface {
	Validate(token string) (core.Identity, error)
}
