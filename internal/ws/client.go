package ws

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait is the deadline for a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before the read
	// side gives up; pingPeriod keeps pings comfortably inside it.
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// maxMessageSize caps inbound frames. Chat messages are small; a
	// larger frame is a misbehaving client.
	maxMessageSize = 8192

	// sendBufferSize is the per-connection outbound queue. When it
	// fills, the client is treated as dead rather than letting it stall
	// a room's broadcast.
	sendBufferSize = 256
)

// client is the websocket Transport implementation: a gorilla
// connection with buffered, pump-driven writes.
type client struct {
	conn *websocket.Conn

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	logger *zap.Logger
}

func newClient(conn *websocket.Conn, logger *zap.Logger) *client {
	conn.SetReadLimit(maxMessageSize)
	return &client{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
		logger: logger,
	}
}

// Send queues an event for the write pump. It never blocks: a full
// buffer or a closed connection is an error the caller handles by
// deregistering.
func (c *client) Send(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	select {
	case <-c.closed:
		return ErrSessionClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close signals the write pump to flush and close the connection. Safe
// to call multiple times.
func (c *client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

// readPump consumes inbound frames and hands decoded events to the
// dispatcher. It owns the read side of the connection; on exit the
// connection is deregistered, which in turn stops the write pump.
func (c *client) readPump(sess *Session, dispatch func(*Session, Event), deregister func()) {
	defer deregister()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) && !isExpectedCloseError(err) {
				c.logger.Warn("websocket read failed",
					zap.String("conn_id", sess.ID()),
					zap.Error(err),
				)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			// Malformed frame: tell this client, keep the connection.
			if err := c.Send(errorEvent("malformed event")); err != nil {
				return
			}
			continue
		}

		dispatch(sess, ev)
	}
}

// writePump owns all writes to the connection: queued events, keepalive
// pings, and the closing handshake once Close is signalled.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			if !c.write(payload) {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closed:
			// Flush whatever was queued before the close, then say
			// goodbye properly.
			for {
				select {
				case payload := <-c.send:
					if !c.write(payload) {
						return
					}
				default:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (c *client) write(payload []byte) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Debug("websocket write failed", zap.Error(err))
		}
		return false
	}
	return true
}

// isExpectedCloseError matches the errors a connection teardown
// normally produces, so they don't show up as warnings.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
