package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredraw-server/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.HistoryDriver = config.HistoryDriverMemory
	cfg.ShutdownTimeout = 2 * time.Second
	return &cfg
}

func TestNewServesHealth(t *testing.T) {
	logger := zerolog.Nop()
	application, err := New(testConfig(t), &logger)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer application.cleanup()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	application.Handler().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
	if body["history"] != "closed" {
		t.Fatalf("expected breaker state in health body, got %v", body)
	}
}

func TestNewWithSQLiteHistory(t *testing.T) {
	logger := zerolog.Nop()
	cfg := testConfig(t)
	cfg.HistoryDriver = config.HistoryDriverSQLite
	cfg.DatabasePath = filepath.Join(t.TempDir(), "history.db")
	cfg.BreakerEnabled = false

	application, err := New(cfg, &logger)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	application.cleanup()
}

func TestRunStopsOnCancel(t *testing.T) {
	logger := zerolog.Nop()
	cfg := testConfig(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	cfg.Addr = ln.Addr().String()
	_ = ln.Close()

	application, err := New(cfg, &logger)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- application.Run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + cfg.Addr + "/health")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not start: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}

func TestSessionOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MessagesPerMinute = 30
	opts := SessionOptions(&cfg)
	if opts.AuthTimeout != cfg.AuthTimeout || opts.OutboundQueue != cfg.OutboundQueue || opts.MessagesPerMinute != 30 {
		t.Fatalf("unexpected session options: %+v", opts)
	}
}
