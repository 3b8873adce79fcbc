package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wiredraw-server/internal/core"
	"github.com/vovakirdan/wiredraw-server/internal/proto"
	"github.com/vovakirdan/wiredraw-server/internal/store"
	"github.com/vovakirdan/wiredraw-server/internal/store/memory"
)

var errTransportClosed = errors.New("transport closed")

type readResult struct {
	in  proto.Inbound
	err error
}

type fakeTransport struct {
	reads  chan readResult
	out    chan proto.Outbound
	stall  bool
	closed chan struct{}

	mu        sync.Mutex
	reason    CloseReason
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		reads:  make(chan readResult, 16),
		out:    make(chan proto.Outbound, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) Read(ctx context.Context) (proto.Inbound, error) {
	select {
	case r := <-f.reads:
		return r.in, r.err
	case <-f.closed:
		return proto.Inbound{}, errTransportClosed
	case <-ctx.Done():
		return proto.Inbound{}, ctx.Err()
	}
}

func (f *fakeTransport) Write(ctx context.Context, frame proto.Outbound) error {
	if f.stall {
		select {
		case <-f.closed:
			return errTransportClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case f.out <- frame:
		return nil
	case <-f.closed:
		return errTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTransport) Close(reason CloseReason) error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.reason = reason
		f.mu.Unlock()
		close(f.closed)
	})
	return nil
}

func (f *fakeTransport) send(in proto.Inbound) {
	f.reads <- readResult{in: in}
}

func (f *fakeTransport) fail(err error) {
	f.reads <- readResult{err: err}
}

func (f *fakeTransport) next(t *testing.T) proto.Outbound {
	t.Helper()
	select {
	case frame := <-f.out:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for outbound frame")
	}
	return proto.Outbound{}
}

func (f *fakeTransport) expectNone(t *testing.T) {
	t.Helper()
	select {
	case frame := <-f.out:
		t.Fatalf("unexpected frame: %+v", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func (f *fakeTransport) closeReason(t *testing.T) CloseReason {
	t.Helper()
	select {
	case <-f.closed:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for close")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason
}

type stubValidator map[string]core.Identity

func (v stubValidator) Validate(token string) (core.Identity, error) {
	id, ok := v[token]
	if !ok {
		return core.Identity{}, errors.New("unknown token")
	}
	return id, nil
}

var testUsers = stubValidator{
	"alice-token": {UserID: "alice", Name: "Alice"},
	"bob-token":   {UserID: "bob", Name: "Bob"},
}

type failingStore struct {
	store.HistoryStore
}

func (failingStore) Append(context.Context, store.Entry) error {
	return errors.New("disk full")
}

type harness struct {
	mgr *Manager
	b   *core.Broadcaster
}

func newHarness(t *testing.T, opts Options, history store.HistoryStore) *harness {
	t.Helper()
	if history == nil {
		mem, err := memory.New(16, store.MaxRecent)
		if err != nil {
			t.Fatalf("memory store: %v", err)
		}
		history = mem
	}
	b := core.NewBroadcaster(core.NewRegistry(nil), history, core.BroadcastOptions{HistoryLimit: store.MaxRecent}, nil)
	h := &harness{b: b, mgr: NewManager(b, testUsers, opts, nil)}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = h.mgr.Shutdown(ctx)
	})
	return h
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.FlushTimeout = 200 * time.Millisecond
	opts.WriteTimeout = 200 * time.Millisecond
	return opts
}

// connect serves a new fake connection and returns it with a channel closed when Serve returns.
func (h *harness) connect(token string) (*fakeTransport, <-chan struct{}) {
	ft := newFakeTransport()
	served := make(chan struct{})
	go func() {
		defer close(served)
		h.mgr.Serve(context.Background(), ft, token)
	}()
	return ft, served
}

// joined connects with a handshake token and joins roomID, consuming the history frame.
func (h *harness) joined(t *testing.T, token, roomID string) (*fakeTransport, <-chan struct{}) {
	t.Helper()
	ft, served := h.connect(token)
	ft.send(proto.Inbound{Type: proto.InboundTypeJoin, RoomID: roomID})
	frame := ft.next(t)
	if frame.Type != proto.OutboundTypeHistory || frame.RoomID != roomID {
		t.Fatalf("expected history frame for %s, got %+v", roomID, frame)
	}
	return ft, served
}

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for connection to finish")
	}
}

func payload(s string) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"text": s})
	return raw
}
