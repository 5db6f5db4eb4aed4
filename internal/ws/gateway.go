package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kiran-v/ripplechat/internal/auth"
	"github.com/kiran-v/ripplechat/internal/repository"
	"go.uber.org/zap"
)

// opTimeout bounds the database work done for a single socket event so
// a stalled store can't pin a connection's read loop forever.
const opTimeout = 10 * time.Second

// Gateway is the websocket entry point. It upgrades connections,
// registers them as unauthenticated sessions, and dispatches their
// inbound events through the session machinery.
type Gateway struct {
	registry *Registry
	verifier *auth.Verifier
	chats    repository.ChatRepository
	pipeline *Pipeline
	history  *History
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewGateway(
	registry *Registry,
	verifier *auth.Verifier,
	chats repository.ChatRepository,
	pipeline *Pipeline,
	history *History,
	logger *zap.Logger,
) *Gateway {
	return &Gateway{
		registry: registry,
		verifier: verifier,
		chats:    chats,
		pipeline: pipeline,
		history:  history,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The browser origin is not an auth boundary here: every
			// connection starts unauthenticated and must present a
			// token over the socket before it can do anything.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handle is the gin handler for GET /v1/ws.
func (g *Gateway) Handle(c *gin.Context) {
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connID := uuid.NewString()
	cl := newClient(conn, g.logger)
	sess := g.registry.Register(connID, cl)

	go cl.writePump()
	go cl.readPump(sess, g.dispatch, func() {
		g.registry.Deregister(connID)
	})
}

// dispatch routes one decoded inbound event. It runs on the
// connection's read goroutine, so events from one client are handled
// strictly in the order they arrived.
func (g *Gateway) dispatch(sess *Session, ev Event) {
	switch ev.Name {
	case EventAuthenticate:
		g.handleAuthenticate(sess, ev.Data)
	case EventJoin:
		g.handleJoin(sess, ev.Data)
	case EventSendMessage:
		g.handleSendMessage(sess, ev.Data)
	default:
		g.sendToSession(sess, errorEvent("unknown event: "+ev.Name))
	}
}

// handleAuthenticate verifies the presented token. One failed attempt
// ends the connection: an unauthorized event is flushed and the
// connection is deregistered, with no retry inside the same transport
// session.
func (g *Gateway) handleAuthenticate(sess *Session, data json.RawMessage) {
	var payload AuthenticatePayload
	_ = json.Unmarshal(data, &payload)

	principal, err := g.verifier.Verify(payload.Token)
	if err != nil {
		reason := "Invalid token"
		if errors.Is(err, auth.ErrTokenMissing) {
			reason = "No token provided"
		}
		g.logger.Warn("socket authentication failed",
			zap.String("conn_id", sess.ID()),
			zap.Error(err),
		)
		g.sendToSession(sess, unauthorizedEvent(reason))
		g.registry.Deregister(sess.ID())
		return
	}

	if err := g.registry.Authenticate(sess.ID(), principal); err != nil {
		if errors.Is(err, ErrAlreadyAuthenticated) {
			g.sendToSession(sess, errorEvent("already authenticated"))
		}
		return
	}

	ev, _ := NewEvent(EventAuthenticated, nil)
	g.sendToSession(sess, ev)
}

// handleJoin grants room access after checking the principal is a
// participant of the underlying persisted chat, then replays the
// recent-history window to the joiner only.
func (g *Gateway) handleJoin(sess *Session, data json.RawMessage) {
	var payload JoinPayload
	_ = json.Unmarshal(data, &payload)

	principal := sess.Principal()
	if principal == nil {
		g.sendToSession(sess, errorEvent("authenticate before joining"))
		return
	}
	if payload.ChatID == uuid.Nil {
		g.sendToSession(sess, errorEvent("chat_id is required"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	member, err := g.chats.IsParticipant(ctx, payload.ChatID, principal.UserID)
	if err != nil {
		g.logger.Error("participant check failed",
			zap.String("conn_id", sess.ID()),
			zap.String("chat_id", payload.ChatID.String()),
			zap.Error(err),
		)
		g.sendToSession(sess, errorEvent("unable to verify chat membership"))
		return
	}
	if !member {
		g.sendToSession(sess, errorEvent("not a participant of this chat"))
		return
	}

	if err := g.registry.Join(sess.ID(), payload.ChatID); err != nil {
		g.sendToSession(sess, errorEvent("unable to join chat"))
		return
	}

	// The session enters the room index before the history read, so a
	// message broadcast during the read can arrive live and then show
	// up again inside the snapshot. Clients de-dupe on message id; the
	// reverse ordering would drop such messages instead of duplicating
	// them.
	//
	// Replay goes only to the joiner, tagged as messageHistory so the
	// client treats it as a one-time snapshot rather than live events.
	history, err := g.history.Recent(ctx, payload.ChatID)
	if err != nil {
		// The join itself stands: live delivery works, the snapshot is
		// what's missing.
		g.logger.Error("history replay failed",
			zap.String("chat_id", payload.ChatID.String()),
			zap.Error(err),
		)
		g.sendToSession(sess, errorEvent("message history unavailable"))
		return
	}

	ev, err := NewEvent(EventMessageHistory, history)
	if err != nil {
		g.logger.Error("encode history event", zap.Error(err))
		return
	}
	g.sendToSession(sess, ev)
}

// handleSendMessage runs the ingestion pipeline and reports failures to
// the sender only. Successful delivery needs no reply here: the sender
// receives the canonical copy through the room broadcast.
func (g *Gateway) handleSendMessage(sess *Session, data json.RawMessage) {
	var payload SendMessagePayload
	_ = json.Unmarshal(data, &payload)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := g.pipeline.Ingest(ctx, sess.ID(), payload); err != nil {
		g.sendToSession(sess, errorEvent(ingestReason(err)))
	}
}

// ingestReason maps pipeline errors to the descriptive, client-safe
// reasons surfaced in error events.
func ingestReason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrUnknownSession):
		return "authenticate before sending messages"
	case errors.Is(err, ErrInvalidPayload):
		return "message content and chat_id are required"
	case errors.Is(err, ErrNotJoined):
		return "join the chat before sending messages"
	case errors.Is(err, ErrStoreUnavailable):
		return "message could not be saved, please retry"
	default:
		return "failed to send message"
	}
}

func (g *Gateway) sendToSession(sess *Session, ev Event) {
	if err := sess.Send(ev); err != nil {
		g.logger.Debug("send to session failed",
			zap.String("conn_id", sess.ID()),
			zap.Error(err),
		)
	}
}
