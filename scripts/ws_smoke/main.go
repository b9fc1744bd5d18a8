package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/roomchat-server/internal/proto"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Error   *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("base", "http://localhost:8080", "HTTP base address")
	user := flag.String("user", "smoke-tester", "username to register or log in with")
	password := flag.String("password", "smoke-password", "password for the user")
	room := flag.String("room", "general", "room name")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	token, err := obtainToken(ctx, *base, *user, *password)
	if err != nil {
		return err
	}

	u, err := url.Parse(*base)
	if err != nil {
		return fmt.Errorf("parse base: %w", err)
	}
	u.Scheme = map[string]string{"https": "wss"}[u.Scheme]
	if u.Scheme == "" {
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, conn, proto.InboundTypeJoin, proto.RoomData{RoomID: *room}); err != nil {
		return err
	}
	history, err := await(ctx, conn, proto.OutboundTypeHistory)
	if err != nil {
		return err
	}
	log.Printf("joined %s, history=%s", *room, history.Payload)

	if err := send(ctx, conn, proto.InboundTypeChat, proto.ChatData{Message: *text}); err != nil {
		return err
	}
	echo, err := await(ctx, conn, proto.OutboundTypeMessage)
	if err != nil {
		return err
	}
	var msg proto.Message
	if err := json.Unmarshal(echo.Payload, &msg); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if msg.Text != *text {
		return fmt.Errorf("echo mismatch: got %q", msg.Text)
	}
	log.Printf("echo ok: id=%s sender=%s", msg.ID, msg.Sender.Name)
	return nil
}

// obtainToken registers the user, falling back to login when it already exists.
func obtainToken(ctx context.Context, base, user, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"username": user, "password": password})
	if err != nil {
		return "", err
	}
	for _, path := range []string{"/register", "/login"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("%s: %w", path, err)
		}
		var out struct {
			Token string `json:"token"`
			Error string `json:"error"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if resp.StatusCode == http.StatusConflict {
			continue
		}
		if decodeErr != nil {
			return "", fmt.Errorf("%s: decode response: %w", path, decodeErr)
		}
		if out.Token == "" {
			return "", fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, out.Error)
		}
		return out.Token, nil
	}
	return "", errors.New("could not obtain a token")
}

func send(ctx context.Context, conn *websocket.Conn, typ string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Payload: data}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func await(ctx context.Context, conn *websocket.Conn, typ string) (frame, error) {
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return f, fmt.Errorf("waiting for %s: %w", typ, err)
		}
		if f.Type == proto.OutboundTypeError && f.Error != nil {
			return f, fmt.Errorf("server error %s: %s", f.Error.Code, f.Error.Msg)
		}
		if f.Type == typ {
			return f, nil
		}
	}
}
