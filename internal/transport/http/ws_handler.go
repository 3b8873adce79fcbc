package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredraw-server/internal/config"
	"github.com/vovakirdan/wiredraw-server/internal/proto"
	"github.com/vovakirdan/wiredraw-server/internal/session"
)

// WSHandler upgrades HTTP connections and hands them to the session manager.
type WSHandler struct {
	sessions *session.Manager
	cfg      *config.Config
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(sessions *session.Manager, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{sessions: sessions, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	opts := &websocket.AcceptOptions{}
	if len(h.cfg.AllowedOrigins) == 0 {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = h.cfg.AllowedOrigins
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	h.sessions.Serve(r.Context(), &wsTransport{conn: conn}, token)
}

// wsTransport adapts a websocket connection to session.Transport.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) (proto.Inbound, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return proto.Inbound{}, io.EOF
		}
		return proto.Inbound{}, err
	}

	var inbound proto.Inbound
	if err := json.Unmarshal(data, &inbound); err != nil {
		return proto.Inbound{}, fmt.Errorf("%w: %w", session.ErrMalformed, err)
	}
	return inbound, nil
}

func (t *wsTransport) Write(ctx context.Context, frame proto.Outbound) error {
	return wsjson.Write(ctx, t.conn, frame)
}

func (t *wsTransport) Close(reason session.CloseReason) error {
	return t.conn.Close(closeStatus(reason), string(reason))
}

func closeStatus(reason session.CloseReason) websocket.StatusCode {
	switch reason {
	case session.CloseNormal:
		return websocket.StatusNormalClosure
	case session.CloseAuthFailed, session.CloseAuthTimeout:
		return websocket.StatusPolicyViolation
	case session.CloseSlowConsumer:
		return websocket.StatusTryAgainLater
	case session.CloseIdleTimeout, session.CloseShutdown:
		return websocket.StatusGoingAway
	default:
		return websocket.StatusInternalError
	}
}
