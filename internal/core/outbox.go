package core

import (
	"sync"
	"sync/atomic"
	"time"
)

// Member is a connection as seen by the registry and broadcaster.
type Member interface {
	ID() string
	Identity() Identity
	// Deliver enqueues an event without blocking. It reports false when the event was dropped.
	Deliver(ev *Event) bool
}

// Outbox is a bounded per-connection outbound queue. Producers never block on it;
// a queue that stays full for longer than the slow window is reported via Slow.
type Outbox struct {
	ch         chan *Event
	slowWindow time.Duration

	saturatedAt atomic.Int64
	slow        chan struct{}
	slowOnce    sync.Once

	done      chan struct{}
	closeOnce sync.Once
}

// NewOutbox creates an outbox holding up to size events.
func NewOutbox(size int, slowWindow time.Duration) *Outbox {
	if size <= 0 {
		size = 1
	}
	return &Outbox{
		ch:         make(chan *Event, size),
		slowWindow: slowWindow,
		slow:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Offer enqueues ev if there is room and the outbox is still open.
func (o *Outbox) Offer(ev *Event) bool {
	select {
	case <-o.done:
		return false
	default:
	}

	select {
	case o.ch <- ev:
		return true
	default:
	}

	o.markSaturated()
	return false
}

func (o *Outbox) markSaturated() {
	now := time.Now().UnixNano()
	if !o.saturatedAt.CompareAndSwap(0, now) {
		return
	}
	time.AfterFunc(o.slowWindow, func() {
		// Ack resets saturatedAt, so an unchanged stamp means nothing was drained since.
		if o.saturatedAt.Load() == now && len(o.ch) == cap(o.ch) {
			o.slowOnce.Do(func() { close(o.slow) })
			return
		}
		o.saturatedAt.CompareAndSwap(now, 0)
	})
}

// C is the consumer side of the queue.
func (o *Outbox) C() <-chan *Event { return o.ch }

// Ack must be called by the consumer after taking an event from C.
func (o *Outbox) Ack() { o.saturatedAt.Store(0) }

// Slow is closed once the queue has stayed saturated beyond the slow window.
func (o *Outbox) Slow() <-chan struct{} { return o.slow }

// Done is closed once the outbox stops accepting events.
func (o *Outbox) Done() <-chan struct{} { return o.done }

// Close stops accepting new events. Already queued events stay readable from C.
func (o *Outbox) Close() {
	o.closeOnce.Do(func() { close(o.done) })
}

// Len reports the number of queued events.
func (o *Outbox) Len() int { return len(o.ch) }
