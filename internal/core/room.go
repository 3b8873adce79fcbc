package core

import "sync"

// room groups members subscribed to the same broadcast domain.
// All fields are guarded by mu; seq is the room's linearization point.
type room struct {
	mu      sync.Mutex
	id      string
	members map[string]Member

	seq       int64
	seqLoaded bool

	// dead is set when the room is removed from the registry. A goroutine that
	// raced with the removal and still holds the pointer must look the room up again.
	dead bool
}

func newRoom(id string) *room {
	return &room{
		id:      id,
		members: make(map[string]Member),
	}
}

// add inserts a member. Returns true if newly added.
func (r *room) add(m Member) bool {
	if _, exists := r.members[m.ID()]; exists {
		return false
	}
	r.members[m.ID()] = m
	return true
}

// remove deletes a member. Returns true if removed.
func (r *room) remove(id string) bool {
	if _, exists := r.members[id]; !exists {
		return false
	}
	delete(r.members, id)
	return true
}

func (r *room) has(id string) bool {
	_, ok := r.members[id]
	return ok
}

func (r *room) empty() bool {
	return len(r.members) == 0
}
