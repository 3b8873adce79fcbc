package store

import (
	"context"
	"time"
)

// MaxRecent caps how many entries a single Recent call may return.
const MaxRecent = 50

// Entry is one persisted room message with its assigned sequence number.
type Entry struct {
	Room      string
	Seq       int64
	Sender    string
	Payload   []byte
	CreatedAt time.Time
}

// HistoryStore is the append-only per-room log consumed by the broadcaster.
type HistoryStore interface {
	// Append persists an entry. The sequence number is assigned by the caller and
	// must be greater than any sequence already stored for the room.
	Append(ctx context.Context, e Entry) error

	// Recent returns up to limit most recent entries of a room, oldest first.
	Recent(ctx context.Context, room string, limit int) ([]Entry, error)

	// LastSeq returns the highest sequence number stored for a room, or 0.
	LastSeq(ctx context.Context, room string) (int64, error)

	// Close releases underlying resources.
	Close() error
}

// ClampLimit maps a requested history size onto 1..MaxRecent.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxRecent {
		return MaxRecent
	}
	return limit
}
