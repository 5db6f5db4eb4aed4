package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiran-v/ripplechat/internal/models"
)

// fakeTransport records everything sent to a connection so tests can
// assert on delivery without a real socket.
type fakeTransport struct {
	mu       sync.Mutex
	events   []Event
	failSend bool
	closed   bool
}

func (f *fakeTransport) Send(ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return errors.New("write failed")
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) recorded() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

// deliveredMessages decodes the message events the transport received,
// in delivery order.
func (f *fakeTransport) deliveredMessages() []models.OutboundMessage {
	var out []models.OutboundMessage
	for _, ev := range f.recorded() {
		if ev.Name != EventMessage {
			continue
		}
		var msg models.OutboundMessage
		if err := json.Unmarshal(ev.Data, &msg); err == nil {
			out = append(out, msg)
		}
	}
	return out
}

// fakeMessages is an in-memory MessageRepository. IDs come from one
// counter, matching the bigserial contract: append order is id order.
type fakeMessages struct {
	mu           sync.Mutex
	seq          int64
	byChat       map[uuid.UUID][]models.Message
	displayNames map[uuid.UUID]string
	createErr    error
	recentCalls  int
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{
		byChat:       make(map[uuid.UUID][]models.Message),
		displayNames: make(map[uuid.UUID]string),
	}
}

func (f *fakeMessages) Create(_ context.Context, chatID, senderID uuid.UUID, receiverID *uuid.UUID, content string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.seq++
	msg := models.Message{
		ID:         f.seq,
		ChatID:     chatID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now(),
	}
	f.byChat[chatID] = append(f.byChat[chatID], msg)
	return &msg, nil
}

func (f *fakeMessages) ListByChat(_ context.Context, chatID uuid.UUID, before int64, limit int) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.byChat[chatID]
	out := make([]models.Message, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if before > 0 && all[i].ID >= before {
			continue
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (f *fakeMessages) ListRecent(_ context.Context, chatID uuid.UUID, limit int) ([]models.OutboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recentCalls++
	all := f.byChat[chatID]
	out := make([]models.OutboundMessage, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, models.OutboundMessage{
			Message:           all[i],
			SenderDisplayName: f.displayNames[all[i].SenderID],
		})
	}
	return out, nil
}

// appendOrder returns the ids of a chat's messages in append order.
func (f *fakeMessages) appendOrder(chatID uuid.UUID) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.byChat[chatID]))
	for _, msg := range f.byChat[chatID] {
		ids = append(ids, msg.ID)
	}
	return ids
}

// fakeChats implements the participant check used by join.
type fakeChats struct {
	mu           sync.Mutex
	participants map[uuid.UUID]map[uuid.UUID]bool
	checkErr     error
}

func newFakeChats() *fakeChats {
	return &fakeChats{participants: make(map[uuid.UUID]map[uuid.UUID]bool)}
}

func (f *fakeChats) addParticipant(chatID, userID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.participants[chatID] == nil {
		f.participants[chatID] = make(map[uuid.UUID]bool)
	}
	f.participants[chatID][userID] = true
}

func (f *fakeChats) Create(_ context.Context, participantIDs []uuid.UUID) (*models.Chat, error) {
	chat := &models.Chat{ID: uuid.New(), Participants: participantIDs, CreatedAt: time.Now()}
	for _, userID := range participantIDs {
		f.addParticipant(chat.ID, userID)
	}
	return chat, nil
}

func (f *fakeChats) GetByID(_ context.Context, chatID uuid.UUID) (*models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members, ok := f.participants[chatID]
	if !ok {
		return nil, nil
	}
	chat := &models.Chat{ID: chatID}
	for userID := range members {
		chat.Participants = append(chat.Participants, userID)
	}
	return chat, nil
}

func (f *fakeChats) ListByUser(_ context.Context, _ uuid.UUID) ([]models.Chat, error) {
	return []models.Chat{}, nil
}

func (f *fakeChats) Delete(_ context.Context, chatID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.participants, chatID)
	return nil
}

func (f *fakeChats) IsParticipant(_ context.Context, chatID, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return f.participants[chatID][userID], nil
}

// fakeCache is an in-memory HistoryCache with call counting.
type fakeCache struct {
	mu           sync.Mutex
	windows      map[uuid.UUID][]models.OutboundMessage
	readErr      error
	replaceCalls int
}

func newFakeCache() *fakeCache {
	return &fakeCache{windows: make(map[uuid.UUID][]models.OutboundMessage)}
}

func (f *fakeCache) Push(_ context.Context, chatID uuid.UUID, msg models.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows[chatID] = append([]models.OutboundMessage{msg}, f.windows[chatID]...)
	return nil
}

func (f *fakeCache) Recent(_ context.Context, chatID uuid.UUID, limit int) ([]models.OutboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	window := f.windows[chatID]
	if len(window) > limit {
		window = window[:limit]
	}
	return append([]models.OutboundMessage(nil), window...), nil
}

func (f *fakeCache) Replace(_ context.Context, chatID uuid.UUID, msgs []models.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaceCalls++
	f.windows[chatID] = append([]models.OutboundMessage(nil), msgs...)
	return nil
}
