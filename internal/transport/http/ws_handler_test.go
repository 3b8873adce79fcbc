package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wiredraw-server/internal/core"
	"github.com/vovakirdan/wiredraw-server/internal/proto"
	"github.com/vovakirdan/wiredraw-server/internal/session"
)

func dialWithToken(ctx context.Context, t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	var opts *websocket.DialOptions
	if token != "" {
		opts = &websocket.DialOptions{HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}}}
	}
	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func readFrame(ctx context.Context, t *testing.T, conn *websocket.Conn) proto.Outbound {
	t.Helper()
	var outbound proto.Outbound
	if err := wsjson.Read(ctx, conn, &outbound); err != nil {
		t.Fatalf("read outbound: %v", err)
	}
	return outbound
}

func joinRoom(ctx context.Context, t *testing.T, conn *websocket.Conn, roomID string) proto.Outbound {
	t.Helper()
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeJoin, RoomID: roomID}); err != nil {
		t.Fatalf("send join: %v", err)
	}
	frame := readFrame(ctx, t, conn)
	if frame.Type != proto.OutboundTypeHistory {
		t.Fatalf("expected history frame, got %+v", frame)
	}
	return frame
}

func TestHealthEndpoint(t *testing.T) {
	ts := startTestServer(t, session.DefaultOptions())

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body.Status != "ok" || body.Rooms != 0 || body.Connections != 0 {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestWebSocketPublishReachesOtherMembers(t *testing.T) {
	ts := startTestServer(t, session.DefaultOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dialWithToken(ctx, t, ts.wsURL(), makeToken(t, "alice"))
	bob := dialWithToken(ctx, t, ts.wsURL()+"?token="+makeToken(t, "bob"), "")

	if history := joinRoom(ctx, t, alice, "r1"); len(history.Messages) != 0 {
		t.Fatalf("expected empty history, got %+v", history.Messages)
	}
	joinRoom(ctx, t, bob, "r1")

	if err := wsjson.Write(ctx, alice, proto.Inbound{Type: proto.InboundTypeMessage, Payload: json.RawMessage(`{"stroke":[1,2,3]}`)}); err != nil {
		t.Fatalf("send message: %v", err)
	}

	frame := readFrame(ctx, t, bob)
	if frame.Type != proto.OutboundTypeMessage || frame.Sender != "alice" || frame.Seq != 1 || frame.RoomID != "r1" {
		t.Fatalf("unexpected message frame: %+v", frame)
	}
	if string(frame.Payload) != `{"stroke":[1,2,3]}` {
		t.Fatalf("payload not carried verbatim: %s", frame.Payload)
	}

	// A late joiner gets the message as backfill.
	carol := dialWithToken(ctx, t, ts.wsURL(), makeToken(t, "carol"))
	history := joinRoom(ctx, t, carol, "r1")
	if len(history.Messages) != 1 || history.Messages[0].Seq != 1 || history.Messages[0].Sender != "alice" {
		t.Fatalf("unexpected backfill: %+v", history.Messages)
	}
}

func TestWebSocketAuthFrame(t *testing.T) {
	ts := startTestServer(t, session.DefaultOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWithToken(ctx, t, ts.wsURL(), "")
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeAuth, Token: makeToken(t, "alice")}); err != nil {
		t.Fatalf("send auth: %v", err)
	}
	joinRoom(ctx, t, conn, "r1")
}

func TestWebSocketInvalidTokenIsClosed(t *testing.T) {
	ts := startTestServer(t, session.DefaultOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWithToken(ctx, t, ts.wsURL(), "")
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeAuth, Token: "invalid"}); err != nil {
		t.Fatalf("send auth: %v", err)
	}

	frame := readFrame(ctx, t, conn)
	if frame.Type != proto.OutboundTypeError || frame.Reason != core.ErrCodeAuthFailed {
		t.Fatalf("expected auth_failed error, got %+v", frame)
	}

	var outbound proto.Outbound
	err := wsjson.Read(ctx, conn, &outbound)
	if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation close, got %v", err)
	}
	var closeErr websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Reason != core.ErrCodeAuthFailed {
		t.Fatalf("expected close reason %q, got %v", core.ErrCodeAuthFailed, err)
	}
}

func TestWebSocketMalformedFrame(t *testing.T) {
	ts := startTestServer(t, session.DefaultOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWithToken(ctx, t, ts.wsURL(), makeToken(t, "alice"))
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("send garbage: %v", err)
	}
	frame := readFrame(ctx, t, conn)
	if frame.Reason != core.ErrCodeMalformedMessage {
		t.Fatalf("expected malformed_message error, got %+v", frame)
	}

	joinRoom(ctx, t, conn, "r1")
}

func TestWebSocketAuthTimeout(t *testing.T) {
	opts := session.DefaultOptions()
	opts.AuthTimeout = 50 * time.Millisecond
	ts := startTestServer(t, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWithToken(ctx, t, ts.wsURL(), "")
	frame := readFrame(ctx, t, conn)
	if frame.Reason != core.ErrCodeAuthTimeout {
		t.Fatalf("expected auth_timeout error, got %+v", frame)
	}
	_, _, err := conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestCloseStatusMapping(t *testing.T) {
	tests := []struct {
		reason session.CloseReason
		want   websocket.StatusCode
	}{
		{session.CloseNormal, websocket.StatusNormalClosure},
		{session.CloseAuthFailed, websocket.StatusPolicyViolation},
		{session.CloseAuthTimeout, websocket.StatusPolicyViolation},
		{session.CloseSlowConsumer, websocket.StatusTryAgainLater},
		{session.CloseIdleTimeout, websocket.StatusGoingAway},
		{session.CloseShutdown, websocket.StatusGoingAway},
		{session.CloseTransportError, websocket.StatusInternalError},
	}
	for _, tt := range tests {
		if got := closeStatus(tt.reason); got != tt.want {
			t.Errorf("closeStatus(%s) = %v, want %v", tt.reason, got, tt.want)
		}
	}
}
