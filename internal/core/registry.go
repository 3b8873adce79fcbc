package core

import (
	"slices"
	"sync"

	"github.com/rs/zerolog"
)

// Registry maps room ids to their live member sets.
//
// Lock order: a room's mu may be held while taking Registry.mu (to drop an empty
// room), never the other way round. idxMu is a leaf lock.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room

	idxMu sync.RWMutex
	index map[string]string // conn id -> room id

	log *zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		rooms: make(map[string]*room),
		index: make(map[string]string),
		log:   logger,
	}
}

// Join adds m to roomID, leaving its previous room first. Joining the room the
// member is already in is a no-op and returns false.
func (r *Registry) Join(m Member, roomID string) bool {
	return r.join(m, roomID, nil)
}

// join runs onJoined while the room is still locked, so nothing published to the
// room can be ordered before it.
func (r *Registry) join(m Member, roomID string, onJoined func(*room)) bool {
	if current, ok := r.RoomOf(m.ID()); ok {
		if current == roomID {
			return false
		}
		r.Leave(m.ID())
	}

	rm := r.acquire(roomID)
	defer rm.mu.Unlock()

	rm.add(m)
	r.idxMu.Lock()
	r.index[m.ID()] = roomID
	r.idxMu.Unlock()

	if onJoined != nil {
		onJoined(rm)
	}

	r.log.Debug().Str("conn_id", m.ID()).Str("room", roomID).Int("members", len(rm.members)).Msg("member joined")
	return true
}

// Leave removes the connection from whatever room it is in and returns that room.
func (r *Registry) Leave(connID string) (string, bool) {
	roomID, ok := r.RoomOf(connID)
	if !ok {
		return "", false
	}

	if rm := r.lockExisting(roomID); rm != nil {
		rm.remove(connID)
		remaining := len(rm.members)
		if rm.empty() {
			rm.dead = true
			r.mu.Lock()
			if r.rooms[roomID] == rm {
				delete(r.rooms, roomID)
			}
			r.mu.Unlock()
		}
		rm.mu.Unlock()
		r.log.Debug().Str("conn_id", connID).Str("room", roomID).Int("members", remaining).Msg("member left")
	}

	r.idxMu.Lock()
	delete(r.index, connID)
	r.idxMu.Unlock()

	return roomID, true
}

// MembersOf returns a point-in-time snapshot of the connection ids in roomID.
func (r *Registry) MembersOf(roomID string) []string {
	rm := r.lockExisting(roomID)
	if rm == nil {
		return nil
	}
	ids := make([]string, 0, len(rm.members))
	for id := range rm.members {
		ids = append(ids, id)
	}
	rm.mu.Unlock()

	slices.Sort(ids)
	return ids
}

// RoomOf reports the room a connection is currently joined to.
func (r *Registry) RoomOf(connID string) (string, bool) {
	r.idxMu.RLock()
	defer r.idxMu.RUnlock()
	roomID, ok := r.index[connID]
	return roomID, ok
}

// Stats returns the number of live rooms and joined connections.
func (r *Registry) Stats() (rooms, members int) {
	r.mu.Lock()
	rooms = len(r.rooms)
	r.mu.Unlock()

	r.idxMu.RLock()
	members = len(r.index)
	r.idxMu.RUnlock()
	return rooms, members
}

// acquire returns the live room for roomID, creating it if absent, with its lock held.
func (r *Registry) acquire(roomID string) *room {
	for {
		r.mu.Lock()
		rm, ok := r.rooms[roomID]
		if !ok {
			rm = newRoom(roomID)
			r.rooms[roomID] = rm
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if !rm.dead {
			return rm
		}
		rm.mu.Unlock()
	}
}

// lockExisting is acquire without creation; it returns nil if the room is absent.
func (r *Registry) lockExisting(roomID string) *room {
	for {
		r.mu.Lock()
		rm := r.rooms[roomID]
		r.mu.Unlock()
		if rm == nil {
			return nil
		}

		rm.mu.Lock()
		if !rm.dead {
			return rm
		}
		rm.mu.Unlock()
	}
}
