package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredraw-server/internal/store"
)

// BroadcastOptions tunes fan-out behaviour.
type BroadcastOptions struct {
	// EchoToSender delivers a publish back to the publishing connection as well.
	EchoToSender bool
	// HistoryLimit bounds the backfill burst sent after a join.
	HistoryLimit int
}

// Broadcaster sequences, persists and fans out room messages.
type Broadcaster struct {
	registry *Registry
	history  store.HistoryStore
	opts     BroadcastOptions
	log      *zerolog.Logger
	now      func() time.Time
}

// NewBroadcaster creates a broadcaster over the given registry and history store.
func NewBroadcaster(registry *Registry, history store.HistoryStore, opts BroadcastOptions, logger *zerolog.Logger) *Broadcaster {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	opts.HistoryLimit = store.ClampLimit(opts.HistoryLimit)
	return &Broadcaster{
		registry: registry,
		history:  history,
		opts:     opts,
		log:      logger,
		now:      time.Now,
	}
}

// Registry exposes the underlying room registry.
func (b *Broadcaster) Registry() *Registry { return b.registry }

// Join adds m to roomID and queues the room's recent history on m before any
// message published after the join. It returns false for a duplicate join.
func (b *Broadcaster) Join(ctx context.Context, m Member, roomID string) (bool, error) {
	if roomID == "" {
		return false, ErrEmptyRoom
	}

	joined := b.registry.join(m, roomID, func(rm *room) {
		entries, err := b.history.Recent(ctx, roomID, b.opts.HistoryLimit)
		if err != nil {
			// Membership stands; the client can fetch history out of band.
			b.log.Warn().Err(err).Str("room", roomID).Str("conn_id", m.ID()).Msg("backfill failed")
			entries = nil
		}
		ev := &Event{Kind: EventHistory, Room: roomID, Messages: messagesFromEntries(entries)}
		if !m.Deliver(ev) {
			b.log.Debug().Str("room", roomID).Str("conn_id", m.ID()).Msg("backfill dropped")
		}
	})
	return joined, nil
}

// Leave removes the connection from its room, if any.
func (b *Broadcaster) Leave(connID string) (string, bool) {
	return b.registry.Leave(connID)
}

// Publish assigns the next sequence number of roomID, persists the message and
// fans it out to the room's members. Nothing is delivered if persistence fails.
func (b *Broadcaster) Publish(ctx context.Context, sender Member, roomID string, payload []byte) (int64, error) {
	rm := b.registry.lockExisting(roomID)
	if rm == nil {
		return 0, ErrNotJoined
	}
	defer rm.mu.Unlock()

	if !rm.has(sender.ID()) {
		return 0, ErrNotJoined
	}

	if !rm.seqLoaded {
		last, err := b.history.LastSeq(ctx, roomID)
		if err != nil {
			b.log.Error().Err(err).Str("room", roomID).Msg("load room sequence")
			return 0, fmt.Errorf("%w: load sequence: %w", ErrPersistenceFailed, err)
		}
		rm.seq, rm.seqLoaded = last, true
	}

	body := make([]byte, len(payload))
	copy(body, payload)

	msg := Message{
		Room:      roomID,
		Seq:       rm.seq + 1,
		Sender:    sender.Identity().UserID,
		Payload:   body,
		CreatedAt: b.now(),
	}

	// The counter only advances once the entry is stored, so a failed append leaves no gap.
	if err := b.history.Append(ctx, entryFromMessage(msg)); err != nil {
		b.log.Error().Err(err).Str("room", roomID).Int64("seq", msg.Seq).Msg("append history")
		return 0, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	rm.seq = msg.Seq

	ev := &Event{Kind: EventRoomMessage, Room: roomID, Message: msg}
	for id, m := range rm.members {
		if id == sender.ID() && !b.opts.EchoToSender {
			continue
		}
		if !m.Deliver(ev) {
			b.log.Debug().Str("room", roomID).Str("conn_id", id).Int64("seq", msg.Seq).Msg("delivery dropped")
		}
	}

	return msg.Seq, nil
}

// History returns up to limit recent messages of roomID, oldest first.
func (b *Broadcaster) History(ctx context.Context, roomID string, limit int) ([]Message, error) {
	if roomID == "" {
		return nil, ErrEmptyRoom
	}
	if limit <= 0 || limit > b.opts.HistoryLimit {
		limit = b.opts.HistoryLimit
	}
	entries, err := b.history.Recent(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	return messagesFromEntries(entries), nil
}

func entryFromMessage(m Message) store.Entry {
	return store.Entry{
		Room:      m.Room,
		Seq:       m.Seq,
		Sender:    m.Sender,
		Payload:   m.Payload,
		CreatedAt: m.CreatedAt,
	}
}

func messagesFromEntries(entries []store.Entry) []Message {
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		out = append(out, Message{
			Room:      e.Room,
			Seq:       e.Seq,
			Sender:    e.Sender,
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
