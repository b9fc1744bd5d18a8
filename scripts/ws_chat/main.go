package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/roomchat-server/internal/proto"
)

// frame mirrors proto.Outbound with the payload left undecoded.
type frame struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	SenderID string          `json:"senderId"`
	Error    *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", os.Getenv("ROOMCHAT_TOKEN"), "access token from /login")
	room := flag.String("room", "general", "room to join")
	flag.Parse()

	if *token == "" {
		return errors.New("a token is required: pass -token or set ROOMCHAT_TOKEN")
	}

	u, err := url.Parse(*addr)
	if err != nil {
		return fmt.Errorf("parse addr: %w", err)
	}
	q := u.Query()
	q.Set("token", *token)
	u.RawQuery = q.Encode()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, conn, proto.InboundTypeJoin, proto.RoomData{RoomID: *room}); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	fmt.Printf("Connected to %s in room %s\n", *addr, *room)
	fmt.Println("Type messages and press Enter to send. /clear wipes the room. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *room)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, typ string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	return wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Payload: data})
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch status := websocket.CloseStatus(err); status {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			case -1:
				log.Printf("read error: %v", err)
			default:
				log.Printf("connection closed: %d", status)
			}
			return
		}

		switch f.Type {
		case proto.OutboundTypeHistory:
			var messages []proto.Message
			if err := json.Unmarshal(f.Payload, &messages); err != nil {
				log.Printf("unmarshal history: %v", err)
				continue
			}
			fmt.Printf("-- %d earlier messages --\n", len(messages))
			for _, m := range messages {
				printMessage(m)
			}
		case proto.OutboundTypeMessage:
			var m proto.Message
			if err := json.Unmarshal(f.Payload, &m); err != nil {
				log.Printf("unmarshal message: %v", err)
				continue
			}
			printMessage(m)
		case proto.OutboundTypeChatCleared:
			fmt.Println("-- chat cleared --")
		case proto.OutboundTypeUserTyping:
			fmt.Printf("(user %s is typing)\n", f.SenderID)
		case proto.OutboundTypeUserStoppedTyping:
			fmt.Printf("(user %s stopped typing)\n", f.SenderID)
		case proto.OutboundTypeError:
			if f.Error != nil {
				fmt.Printf("error %s: %s\n", f.Error.Code, f.Error.Msg)
			}
		default:
			fmt.Printf("type=%s payload=%s\n", f.Type, f.Payload)
		}
	}
}

func printMessage(m proto.Message) {
	fmt.Printf("[%s] %s: %s\n", m.Timestamp, m.Sender.Name, m.Text)
}

func writeLoop(ctx context.Context, conn *websocket.Conn, room string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			var err error
			if text == "/clear" {
				err = send(ctx, conn, proto.InboundTypeClearChat, proto.RoomData{RoomID: room})
			} else {
				err = send(ctx, conn, proto.InboundTypeChat, proto.ChatData{Message: text})
			}
			if err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
