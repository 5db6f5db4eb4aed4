package ws

import (
	"github.com/google/uuid"
	"github.com/kiran-v/ripplechat/internal/models"
	"go.uber.org/zap"
)

// Broadcaster fans a canonical message out to every connection joined
// to a room. Delivery is best effort per recipient: a failed write
// deregisters that one connection and the loop carries on, so a dead
// or slow client never blocks the rest of the room.
type Broadcaster struct {
	registry *Registry
	logger   *zap.Logger
}

func NewBroadcaster(registry *Registry, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, logger: logger}
}

// Deliver pushes the message to all current members of the room,
// including the sender. The sender's UI updates from the same canonical
// copy as everyone else's, there is no separate echo.
func (b *Broadcaster) Deliver(room uuid.UUID, msg models.OutboundMessage) {
	ev, err := NewEvent(EventMessage, msg)
	if err != nil {
		b.logger.Error("encode message event", zap.Error(err))
		return
	}

	members := b.registry.Members(room)
	for _, sess := range members {
		if err := sess.Send(ev); err != nil {
			// Treat the connection as gone. Deregister is idempotent,
			// so racing the transport's own close path is harmless.
			b.logger.Warn("broadcast delivery failed",
				zap.String("conn_id", sess.ID()),
				zap.String("room", room.String()),
				zap.Error(err),
			)
			b.registry.Deregister(sess.ID())
		}
	}

	b.logger.Debug("message delivered",
		zap.String("room", room.String()),
		zap.Int64("message_id", msg.ID),
		zap.Int("recipients", len(members)),
	)
}
