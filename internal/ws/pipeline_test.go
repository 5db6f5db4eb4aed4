package ws

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/kiran-v/ripplechat/internal/auth"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pipelineFixture struct {
	registry *Registry
	store    *fakeMessages
	pipeline *Pipeline
}

func newPipelineFixture() *pipelineFixture {
	logger := zap.NewNop()
	registry := NewRegistry(logger)
	store := newFakeMessages()
	broadcaster := NewBroadcaster(registry, logger)
	return &pipelineFixture{
		registry: registry,
		store:    store,
		pipeline: NewPipeline(registry, store, nil, broadcaster, logger),
	}
}

// connect registers an authenticated connection joined to the given
// rooms and returns its transport for delivery assertions.
func (f *pipelineFixture) connect(t *testing.T, connID string, principal *auth.Principal, rooms ...uuid.UUID) *fakeTransport {
	t.Helper()
	transport := &fakeTransport{}
	f.registry.Register(connID, transport)
	require.NoError(t, f.registry.Authenticate(connID, principal))
	for _, room := range rooms {
		require.NoError(t, f.registry.Join(connID, room))
	}
	return transport
}

func TestIngestRequiresAuthentication(t *testing.T) {
	req := require.New(t)
	f := newPipelineFixture()
	room := uuid.New()

	transport := &fakeTransport{}
	f.registry.Register("c1", transport)

	_, err := f.pipeline.Ingest(context.Background(), "c1", SendMessagePayload{
		Content: "hi", ChatID: room,
	})
	req.ErrorIs(err, ErrUnauthenticated)
	req.Empty(f.store.appendOrder(room))
	req.Empty(transport.deliveredMessages())
}

func TestIngestUnknownConnection(t *testing.T) {
	f := newPipelineFixture()
	_, err := f.pipeline.Ingest(context.Background(), "ghost", SendMessagePayload{
		Content: "hi", ChatID: uuid.New(),
	})
	require.ErrorIs(t, err, ErrUnknownSession)
}

func TestIngestValidatesPayload(t *testing.T) {
	f := newPipelineFixture()
	room := uuid.New()
	f.connect(t, "c1", testPrincipal("alice"), room)

	cases := []struct {
		name    string
		payload SendMessagePayload
	}{
		{"blank content", SendMessagePayload{Content: "   \t", ChatID: room}},
		{"empty content", SendMessagePayload{Content: "", ChatID: room}},
		{"missing chat id", SendMessagePayload{Content: "hi"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.pipeline.Ingest(context.Background(), "c1", tc.payload)
			require.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
	require.Empty(t, f.store.appendOrder(room))
}

func TestIngestRejectsUnjoinedRoom(t *testing.T) {
	req := require.New(t)
	f := newPipelineFixture()
	joined, other := uuid.New(), uuid.New()
	f.connect(t, "c1", testPrincipal("alice"), joined)

	_, err := f.pipeline.Ingest(context.Background(), "c1", SendMessagePayload{
		Content: "hi", ChatID: other,
	})
	req.ErrorIs(err, ErrNotJoined)
	req.Empty(f.store.appendOrder(other))
}

func TestIngestStoreFailureDoesNotBroadcast(t *testing.T) {
	req := require.New(t)
	f := newPipelineFixture()
	room := uuid.New()
	sender := f.connect(t, "a", testPrincipal("alice"), room)
	peer := f.connect(t, "b", testPrincipal("bob"), room)

	f.store.createErr = errors.New("connection refused")

	_, err := f.pipeline.Ingest(context.Background(), "a", SendMessagePayload{
		Content: "hi", ChatID: room,
	})
	req.ErrorIs(err, ErrStoreUnavailable)
	req.Empty(sender.deliveredMessages())
	req.Empty(peer.deliveredMessages())

	// Both connections stay registered: a store outage is not a
	// transport failure.
	_, ok := f.registry.Get("a")
	req.True(ok)
	_, ok = f.registry.Get("b")
	req.True(ok)
}

func TestIngestDeliversToAllRoomMembersIncludingSender(t *testing.T) {
	req := require.New(t)
	f := newPipelineFixture()
	r1, r2 := uuid.New(), uuid.New()

	alice := testPrincipal("alice")
	sender := f.connect(t, "a", alice, r1)
	peer := f.connect(t, "b", testPrincipal("bob"), r1)
	bystander := f.connect(t, "c", testPrincipal("carol"), r2)

	out, err := f.pipeline.Ingest(context.Background(), "a", SendMessagePayload{
		Content: "hi", ChatID: r1,
	})
	req.NoError(err)
	req.Equal("hi", out.Content)
	req.Equal(alice.UserID, out.SenderID)
	req.Equal("alice", out.SenderDisplayName)
	req.Positive(out.ID)

	// Sender and peer both receive the same canonical copy through the
	// broadcast; there is no separate echo.
	for _, transport := range []*fakeTransport{sender, peer} {
		delivered := transport.deliveredMessages()
		req.Len(delivered, 1)
		req.Equal(out.ID, delivered[0].ID)
		req.Equal("hi", delivered[0].Content)
		req.Equal(alice.UserID, delivered[0].SenderID)
	}

	// A member of a different room sees nothing.
	req.Empty(bystander.deliveredMessages())
}

func TestIngestSenderFromSessionNotPayload(t *testing.T) {
	req := require.New(t)
	f := newPipelineFixture()
	room := uuid.New()
	alice := testPrincipal("alice")
	f.connect(t, "a", alice, room)

	// The payload has no sender field at all; receiver_id is the only
	// identity-adjacent input and it must not affect the sender.
	spoofed := uuid.New()
	out, err := f.pipeline.Ingest(context.Background(), "a", SendMessagePayload{
		Content: "hi", ChatID: room, ReceiverID: &spoofed,
	})
	req.NoError(err)
	req.Equal(alice.UserID, out.SenderID)
	req.Equal(&spoofed, out.ReceiverID)
}

func TestIngestOrderMatchesAppendOrder(t *testing.T) {
	req := require.New(t)
	f := newPipelineFixture()
	room := uuid.New()

	a := f.connect(t, "a", testPrincipal("alice"), room)
	b := f.connect(t, "b", testPrincipal("bob"), room)

	// Two senders race 50 messages each into the same room. Whatever
	// interleaving the store ends up with, every member must observe
	// that exact order.
	const perSender = 50
	var wg sync.WaitGroup
	for _, connID := range []string{"a", "b"} {
		wg.Add(1)
		go func(connID string) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := f.pipeline.Ingest(context.Background(), connID, SendMessagePayload{
					Content: "msg", ChatID: room,
				})
				if err != nil {
					t.Errorf("ingest from %s: %v", connID, err)
					return
				}
			}
		}(connID)
	}
	wg.Wait()

	appendOrder := f.store.appendOrder(room)
	req.Len(appendOrder, 2*perSender)

	for _, transport := range []*fakeTransport{a, b} {
		delivered := transport.deliveredMessages()
		req.Len(delivered, 2*perSender)
		observed := make([]int64, len(delivered))
		for i, msg := range delivered {
			observed[i] = msg.ID
		}
		req.Equal(appendOrder, observed)
	}
}

func TestIngestUpdatesHistoryCache(t *testing.T) {
	req := require.New(t)
	logger := zap.NewNop()
	registry := NewRegistry(logger)
	store := newFakeMessages()
	cache := newFakeCache()
	pipeline := NewPipeline(registry, store, cache, NewBroadcaster(registry, logger), logger)

	room := uuid.New()
	transport := &fakeTransport{}
	registry.Register("a", transport)
	req.NoError(registry.Authenticate("a", testPrincipal("alice")))
	req.NoError(registry.Join("a", room))

	_, err := pipeline.Ingest(context.Background(), "a", SendMessagePayload{
		Content: "hi", ChatID: room,
	})
	req.NoError(err)

	cached, err := cache.Recent(context.Background(), room, 10)
	req.NoError(err)
	req.Len(cached, 1)
	req.Equal("hi", cached[0].Content)
}
