package core

import "errors"

// Error codes surfaced to clients and used as close reasons.
const (
	ErrCodeAuthFailed        = "auth_failed"
	ErrCodeAuthTimeout       = "auth_timeout"
	ErrCodeMalformedMessage  = "malformed_message"
	ErrCodePersistenceFailed = "persistence_failed"
	ErrCodeSlowConsumer      = "slow_consumer"
	ErrCodeTransportError    = "transport_error"
	ErrCodeNotJoined         = "not_joined"
	ErrCodeBadRequest        = "bad_request"
	ErrCodeRateLimited       = "rate_limited"
)

var (
	ErrPersistenceFailed = errors.New("persistence failed")
	ErrNotJoined         = errors.New("not joined to room")
	ErrEmptyRoom         = errors.New("room id is required")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// NewError builds a CoreError.
func NewError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ErrorFor maps an error returned by the broadcaster onto a client-facing error.
func ErrorFor(err error) *CoreError {
	var ce *CoreError
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrPersistenceFailed):
		return NewError(ErrCodePersistenceFailed, "message could not be stored, retry")
	case errors.Is(err, ErrNotJoined):
		return NewError(ErrCodeNotJoined, "join a room first")
	case errors.Is(err, ErrEmptyRoom):
		return NewError(ErrCodeBadRequest, "roomId is required")
	default:
		return NewError(ErrCodeBadRequest, err.Error())
	}
}
