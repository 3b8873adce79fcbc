package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wiredraw-server/internal/auth"
	"github.com/vovakirdan/wiredraw-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	secret := flag.String("secret", "change-me", "jwt secret used to mint test tokens")
	room := flag.String("room", "general", "room id")
	text := flag.String("text", "hello from smoke test", "text placed in the payload")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	jwtCfg := &auth.JWTConfig{Secret: []byte(*secret), TTL: time.Minute}

	watcher, err := dial(ctx, *addr, jwtCfg, "smoke-watcher")
	if err != nil {
		return err
	}
	defer watcher.Close(websocket.StatusNormalClosure, "bye")

	sender, err := dial(ctx, *addr, jwtCfg, "smoke-sender")
	if err != nil {
		return err
	}
	defer sender.Close(websocket.StatusNormalClosure, "bye")

	for _, conn := range []*websocket.Conn{watcher, sender} {
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeJoin, RoomID: *room}); err != nil {
			return fmt.Errorf("send join: %w", err)
		}
		history, err := expect(ctx, conn, proto.OutboundTypeHistory)
		if err != nil {
			return err
		}
		fmt.Printf("History: room=%s messages=%d\n", history.RoomID, len(history.Messages))
	}

	payload, err := json.Marshal(map[string]string{"text": *text})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := wsjson.Write(ctx, sender, proto.Inbound{Type: proto.InboundTypeMessage, Payload: payload}); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	msg, err := expect(ctx, watcher, proto.OutboundTypeMessage)
	if err != nil {
		return err
	}
	fmt.Printf("Message: room=%s sender=%s seq=%d ts=%d payload=%s\n", msg.RoomID, msg.Sender, msg.Seq, msg.TS, msg.Payload)
	return nil
}

func dial(ctx context.Context, addr string, cfg *auth.JWTConfig, userID string) (*websocket.Conn, error) {
	token, err := auth.GenerateToken(cfg, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}
	conn, _, err := websocket.Dial(ctx, addr, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", userID, err)
	}
	return conn, nil
}

// expect reads frames until one of the wanted type arrives. Error frames abort the run.
func expect(ctx context.Context, conn *websocket.Conn, want string) (proto.Outbound, error) {
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return outbound, fmt.Errorf("read: %w", err)
		}
		switch outbound.Type {
		case want:
			return outbound, nil
		case proto.OutboundTypeError:
			return outbound, fmt.Errorf("server error %s: %s", outbound.Reason, outbound.Msg)
		}
	}
}
