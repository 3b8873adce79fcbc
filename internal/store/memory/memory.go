// Package memory keeps room history in process memory.
// The number of rooms tracked is bounded by an LRU; the least recently touched room
// is forgotten first when the bound is hit.
package memory

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vovakirdan/wiredraw-server/internal/store"
)

type roomLog struct {
	entries []store.Entry
}

// Store implements store.HistoryStore in memory.
type Store struct {
	mu        sync.Mutex
	rooms     *lru.Cache[string, *roomLog]
	retention int
	// lastSeq outlives LRU eviction so a forgotten room never restarts numbering.
	lastSeq map[string]int64
}

// New creates a store remembering up to maxRooms rooms with retention entries each.
func New(maxRooms, retention int) (*Store, error) {
	if retention <= 0 {
		retention = store.MaxRecent
	}
	cache, err := lru.New[string, *roomLog](maxRooms)
	if err != nil {
		return nil, fmt.Errorf("create room cache: %w", err)
	}
	return &Store{rooms: cache, retention: retention, lastSeq: make(map[string]int64)}, nil
}

// Append stores the entry, evicting the oldest ones beyond retention.
func (s *Store) Append(_ context.Context, e store.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.rooms.Get(e.Room)
	if !ok {
		log = &roomLog{}
		s.rooms.Add(e.Room, log)
	}
	if last := s.lastSeq[e.Room]; e.Seq <= last {
		return fmt.Errorf("append room %q: seq %d not after %d", e.Room, e.Seq, last)
	}

	payload := make([]byte, len(e.Payload))
	copy(payload, e.Payload)
	e.Payload = payload

	log.entries = append(log.entries, e)
	if over := len(log.entries) - s.retention; over > 0 {
		log.entries = append(log.entries[:0:0], log.entries[over:]...)
	}
	s.lastSeq[e.Room] = e.Seq
	return nil
}

// Recent returns up to limit newest entries, oldest first.
func (s *Store) Recent(_ context.Context, room string, limit int) ([]store.Entry, error) {
	limit = store.ClampLimit(limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.rooms.Get(room)
	if !ok {
		return []store.Entry{}, nil
	}
	start := len(log.entries) - limit
	if start < 0 {
		start = 0
	}
	out := make([]store.Entry, len(log.entries)-start)
	copy(out, log.entries[start:])
	return out, nil
}

// LastSeq returns the last sequence appended for the room.
func (s *Store) LastSeq(_ context.Context, room string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastSeq[room], nil
}

// Close drops all history.
func (s *Store) Close() error {
	s.mu.Lock()
	s.rooms.Purge()
	s.mu.Unlock()
	return nil
}

var _ store.HistoryStore = (*Store)(nil)
