package ws

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kiran-v/ripplechat/internal/models"
	"github.com/kiran-v/ripplechat/internal/repository"
	"go.uber.org/zap"
)

// roomLockShards bounds the number of room locks. Rooms hash onto
// shards, so two rooms may occasionally share a lock; correctness only
// needs messages of one room serialized, which sharing preserves.
const roomLockShards = 64

// HistoryCache is the recent-window cache consulted before the store on
// history replay and updated after every append. Implemented by
// cache.History over redis; nil-able, and every error is treated as a
// miss.
type HistoryCache interface {
	Push(ctx context.Context, chatID uuid.UUID, msg models.OutboundMessage) error
	Recent(ctx context.Context, chatID uuid.UUID, limit int) ([]models.OutboundMessage, error)
	Replace(ctx context.Context, chatID uuid.UUID, msgs []models.OutboundMessage) error
}

// Pipeline validates, persists, canonicalizes, and broadcasts inbound
// messages. The durable append is the ordering authority: the room's
// lock is held from append through broadcast, so every member observes
// messages in exactly the store's append order.
type Pipeline struct {
	registry    *Registry
	messages    repository.MessageRepository
	cache       HistoryCache
	broadcaster *Broadcaster
	logger      *zap.Logger

	roomLocks [roomLockShards]sync.Mutex
}

func NewPipeline(
	registry *Registry,
	messages repository.MessageRepository,
	cache HistoryCache,
	broadcaster *Broadcaster,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		registry:    registry,
		messages:    messages,
		cache:       cache,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

func (p *Pipeline) roomLock(room uuid.UUID) *sync.Mutex {
	// FNV-1a over the uuid bytes; cheap and stable.
	hash := uint64(14695981039346656037)
	for _, b := range room {
		hash ^= uint64(b)
		hash *= 1099511628211
	}
	return &p.roomLocks[hash%roomLockShards]
}

// Ingest runs the full inbound path for one message and returns the
// canonical outbound copy. Every failure is surfaced only to the
// caller; other connections never see a failed ingest.
func (p *Pipeline) Ingest(ctx context.Context, connID string, in SendMessagePayload) (*models.OutboundMessage, error) {
	sess, ok := p.registry.Get(connID)
	if !ok {
		return nil, ErrUnknownSession
	}

	// The principal check doubles as the state check: it is only set
	// once the session has passed authenticate.
	principal := sess.Principal()
	if principal == nil {
		return nil, ErrUnauthenticated
	}

	if strings.TrimSpace(in.Content) == "" || in.ChatID == uuid.Nil {
		return nil, ErrInvalidPayload
	}

	if !sess.joined(in.ChatID) {
		return nil, ErrNotJoined
	}

	// Serialize append→broadcast per room. Holding the lock across both
	// steps is what turns the store's append order into the delivery
	// order every member sees. The lock only stalls this room (and any
	// room sharing its shard), never other rooms' pipelines.
	lock := p.roomLock(in.ChatID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := p.messages.Create(ctx, in.ChatID, principal.UserID, in.ReceiverID, in.Content)
	if err != nil {
		p.logger.Error("message append failed",
			zap.String("conn_id", connID),
			zap.String("chat_id", in.ChatID.String()),
			zap.Error(err),
		)
		return nil, ErrStoreUnavailable
	}

	out := models.OutboundMessage{
		Message:           *msg,
		SenderDisplayName: principal.DisplayName,
	}

	// Cache update is best effort; a failed push only means the next
	// join reads Postgres.
	if p.cache != nil {
		if err := p.cache.Push(ctx, in.ChatID, out); err != nil {
			p.logger.Warn("history cache push failed",
				zap.String("chat_id", in.ChatID.String()),
				zap.Error(err),
			)
		}
	}

	p.broadcaster.Deliver(in.ChatID, out)
	return &out, nil
}
