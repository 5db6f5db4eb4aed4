package ws

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// seedMessages appends n messages to the fake store and registers the
// sender's display name for enrichment.
func seedMessages(t *testing.T, store *fakeMessages, chatID uuid.UUID, n int) {
	t.Helper()
	sender := uuid.New()
	store.displayNames[sender] = "alice"
	for i := 0; i < n; i++ {
		_, err := store.Create(context.Background(), chatID, sender, nil, "msg")
		require.NoError(t, err)
	}
}

func TestHistoryRecentFromStoreChronological(t *testing.T) {
	req := require.New(t)
	store := newFakeMessages()
	chatID := uuid.New()
	seedMessages(t, store, chatID, 10)

	history := NewHistory(nil, store, 50, zap.NewNop())
	page, err := history.Recent(context.Background(), chatID)
	req.NoError(err)
	req.Len(page, 10)
	for i := 1; i < len(page); i++ {
		req.Greater(page[i].ID, page[i-1].ID, "history must be oldest first")
	}
	req.Equal("alice", page[0].SenderDisplayName)
}

func TestHistoryRecentBoundedWindow(t *testing.T) {
	req := require.New(t)
	store := newFakeMessages()
	chatID := uuid.New()
	seedMessages(t, store, chatID, 80)

	history := NewHistory(nil, store, 50, zap.NewNop())
	page, err := history.Recent(context.Background(), chatID)
	req.NoError(err)
	req.Len(page, 50)

	// The window holds the newest 50 of the 80: ids 31..80 ascending.
	req.Equal(int64(31), page[0].ID)
	req.Equal(int64(80), page[len(page)-1].ID)
}

func TestHistoryFullCacheWindowSkipsStore(t *testing.T) {
	req := require.New(t)
	store := newFakeMessages()
	cache := newFakeCache()
	chatID := uuid.New()
	seedMessages(t, store, chatID, 5)

	// Populate the cache with a full window via the authoritative path.
	history := NewHistory(cache, store, 5, zap.NewNop())
	_, err := history.Recent(context.Background(), chatID)
	req.NoError(err)
	req.Equal(1, store.recentCalls)
	req.Equal(1, cache.replaceCalls)

	// Second read is served from the cache alone.
	page, err := history.Recent(context.Background(), chatID)
	req.NoError(err)
	req.Len(page, 5)
	req.Equal(1, store.recentCalls)
	for i := 1; i < len(page); i++ {
		req.Greater(page[i].ID, page[i-1].ID)
	}
}

func TestHistoryShortCacheFallsBackToStore(t *testing.T) {
	req := require.New(t)
	store := newFakeMessages()
	cache := newFakeCache()
	chatID := uuid.New()
	seedMessages(t, store, chatID, 10)

	// A partial window is ambiguous, so it must not be trusted.
	history := NewHistory(cache, store, 50, zap.NewNop())
	page, err := history.Recent(context.Background(), chatID)
	req.NoError(err)
	req.Len(page, 10)
	req.Equal(1, store.recentCalls)
	req.Equal(1, cache.replaceCalls)
}

func TestHistoryCacheErrorIsAMiss(t *testing.T) {
	req := require.New(t)
	store := newFakeMessages()
	cache := newFakeCache()
	cache.readErr = errors.New("redis: connection refused")
	chatID := uuid.New()
	seedMessages(t, store, chatID, 3)

	history := NewHistory(cache, store, 50, zap.NewNop())
	page, err := history.Recent(context.Background(), chatID)
	req.NoError(err)
	req.Len(page, 3)
	req.Equal(1, store.recentCalls)
}

func TestHistoryEmptyChat(t *testing.T) {
	req := require.New(t)
	store := newFakeMessages()

	history := NewHistory(nil, store, 50, zap.NewNop())
	page, err := history.Recent(context.Background(), uuid.New())
	req.NoError(err)
	req.Empty(page)
}
