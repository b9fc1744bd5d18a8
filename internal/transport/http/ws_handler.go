package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat-server/internal/auth"
	"github.com/vovakirdan/roomchat-server/internal/core"
	"github.com/vovakirdan/roomchat-server/internal/proto"
)

// Close codes sent when a connection is refused during authentication.
const (
	StatusMissingCredential websocket.StatusCode = 4001
	StatusInvalidCredential websocket.StatusCode = 4003
)

// Authenticator verifies the token presented on connect.
type Authenticator interface {
	Authenticate(token string) (core.Identity, error)
}

// WSOptions tunes per-connection limits.
type WSOptions struct {
	ReadLimit          int64
	RateLimitPerMinute int
}

// WSHandler upgrades HTTP connections and bridges them to core.Session.
type WSHandler struct {
	relay  *core.Relay
	auth   Authenticator
	accept *websocket.AcceptOptions
	opts   WSOptions
	log    *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(relay *core.Relay, authenticator Authenticator, policy originPolicy, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		relay:  relay,
		auth:   authenticator,
		accept: policy.acceptOptions(),
		opts:   opts,
		log:    logger,
	}
}

// errMalformedFrame marks inbound frames that are not a JSON envelope.
var errMalformedFrame = errors.New("malformed frame")

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	// Authenticate before any per-connection state exists.
	identity, authErr := h.auth.Authenticate(r.URL.Query().Get("token"))

	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		h.log.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("ws accept error")
		return
	}

	if authErr != nil {
		status, reason := StatusInvalidCredential, "invalid credential"
		if errors.Is(authErr, auth.ErrMissingCredential) {
			status, reason = StatusMissingCredential, "missing credential"
		}
		h.log.Info().Err(authErr).Str("remote_addr", r.RemoteAddr).Msg("ws connection refused")
		conn.Close(status, reason)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	session, err := h.relay.Connect(identity)
	if err != nil {
		conn.Close(StatusInvalidCredential, "invalid credential")
		return
	}
	defer h.relay.Disconnect(session)

	if h.opts.ReadLimit > 0 {
		conn.SetReadLimit(h.opts.ReadLimit)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	h.relay.Disconnect(session)
	<-errCh

	status, reason := closeStatus(err)
	if status != websocket.StatusNormalClosure {
		h.log.Warn().Err(err).Str("session_id", session.ID).Msg("ws connection closed with error")
	}
	conn.Close(status, reason)
}

// closeStatus maps the loop error that ended a connection onto a close frame.
func closeStatus(err error) (websocket.StatusCode, string) {
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, core.ErrSessionClosed):
		return websocket.StatusNormalClosure, "closing"
	case errors.Is(err, errMalformedFrame):
		return websocket.StatusInvalidFramePayloadData, "malformed frame"
	}
	switch s := websocket.CloseStatus(err); s {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return websocket.StatusNormalClosure, "closing"
	case websocket.StatusMessageTooBig:
		return websocket.StatusMessageTooBig, "message too big"
	}
	return websocket.StatusInternalError, "internal error"
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	limiter := newRateLimiter(h.opts.RateLimitPerMinute)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			return fmt.Errorf("%w: binary frame", errMalformedFrame)
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.log.Debug().Err(err).Str("session_id", session.ID).Msg("malformed inbound frame")
			return fmt.Errorf("%w: %v", errMalformedFrame, err)
		}

		if !limiter.allow() {
			if err := session.Reply(ctx, errorEvent(core.ErrCodeRateLimited, "too many messages")); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr, err := inboundToCommand(inbound)
		if err != nil {
			h.log.Debug().Err(err).Str("session_id", session.ID).Str("type", inbound.Type).Msg("malformed payload")
			return fmt.Errorf("%w: %v", errMalformedFrame, err)
		}
		if protoErr != nil {
			if err := session.Reply(ctx, errorEvent(protoErr.Code, protoErr.Msg)); err != nil {
				return err
			}
			continue
		}
		if cmd == nil {
			h.log.Debug().Str("session_id", session.ID).Str("type", inbound.Type).Msg("ignore unknown inbound type")
			continue
		}

		if err := h.relay.OnClientEvent(ctx, session, cmd); err != nil {
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	for {
		select {
		case event := <-session.Events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Debug().Err(err).Str("session_id", session.ID).Msg("write ws event")
				return err
			}
		case <-session.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func errorEvent(code, msg string) *core.Event {
	return &core.Event{Kind: core.EventError, Error: &core.CoreError{Code: code, Message: msg}}
}
