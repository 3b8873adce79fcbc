package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wiredraw-server/internal/store"
	"github.com/vovakirdan/wiredraw-server/internal/store/memory"
)

type testMember struct {
	id  string
	box *Outbox
}

func newTestMember(id string) *testMember {
	return &testMember{id: id, box: NewOutbox(256, time.Minute)}
}

func (m *testMember) ID() string             { return m.id }
func (m *testMember) Identity() Identity     { return Identity{UserID: "user-" + m.id} }
func (m *testMember) Deliver(ev *Event) bool { return m.box.Offer(ev) }
func (m *testMember) events() <-chan *Event  { return m.box.C() }

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func expectNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				t.Fatalf("unexpected event: %+v", ev)
			}
		default:
			return
		}
	}
}

// failingStore fails Append while failAppend is set.
type failingStore struct {
	store.HistoryStore
	mu         sync.Mutex
	failAppend bool
}

func (f *failingStore) setFail(v bool) {
	f.mu.Lock()
	f.failAppend = v
	f.mu.Unlock()
}

func (f *failingStore) Append(ctx context.Context, e store.Entry) error {
	f.mu.Lock()
	fail := f.failAppend
	f.mu.Unlock()
	if fail {
		return errors.New("disk unavailable")
	}
	return f.HistoryStore.Append(ctx, e)
}

func newMemoryStore(t *testing.T) store.HistoryStore {
	t.Helper()
	s, err := memory.New(64, 50)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	return s
}

func newTestBroadcaster(t *testing.T, echo bool) (*Broadcaster, *failingStore) {
	t.Helper()
	fs := &failingStore{HistoryStore: newMemoryStore(t)}
	return NewBroadcaster(NewRegistry(nil), fs, BroadcastOptions{EchoToSender: echo}, nil), fs
}
