package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredraw-server/internal/auth"
	"github.com/vovakirdan/wiredraw-server/internal/config"
	"github.com/vovakirdan/wiredraw-server/internal/core"
	"github.com/vovakirdan/wiredraw-server/internal/session"
	"github.com/vovakirdan/wiredraw-server/internal/store"
	"github.com/vovakirdan/wiredraw-server/internal/store/memory"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	broadcaster *core.Broadcaster
	sessions    *session.Manager
}

func startTestServer(t *testing.T, opts session.Options) *testServer {
	t.Helper()

	disabledLogger := zerolog.New(nil)

	cfg := config.Default()
	cfg.JWTSecret = testSecret

	history, err := memory.New(16, store.MaxRecent)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	b := core.NewBroadcaster(core.NewRegistry(&disabledLogger), history, core.BroadcastOptions{HistoryLimit: store.MaxRecent}, &disabledLogger)
	validator := auth.NewValidator(&auth.JWTConfig{Secret: []byte(testSecret)})
	sessions := session.NewManager(b, validator, opts, &disabledLogger)

	server := NewServer(Deps{Broadcaster: b, Sessions: sessions, Validator: validator}, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = sessions.Shutdown(ctx)
		ts.Close()
	})

	return &testServer{Server: ts, broadcaster: b, sessions: sessions}
}

func (ts *testServer) wsURL() string {
	return strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
}

func makeToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(&auth.JWTConfig{Secret: []byte(testSecret), TTL: time.Minute}, userID, userID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}
