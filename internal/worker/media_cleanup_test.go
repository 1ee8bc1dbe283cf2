package worker

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dumaterial/materials-api/internal/domain"
	"github.com/dumaterial/materials-api/internal/events"
	"github.com/dumaterial/materials-api/internal/media"
)

func putAsset(t *testing.T, store *media.MemoryStore, name string) string {
	t.Helper()
	asset, err := store.Put(context.Background(), media.Upload{
		Field:    domain.AssetNote,
		Filename: name,
		Body:     strings.NewReader(name),
	})
	require.NoError(t, err)
	return asset.PublicID
}

func TestMediaCleanupDeletesOrphanedAssets(t *testing.T) {
	ctx := context.Background()
	store := media.NewMemoryStore()
	keep := putAsset(t, store, "keep.pdf")
	gone1 := putAsset(t, store, "gone1.pdf")
	gone2 := putAsset(t, store, "gone2.pdf")

	dispatcher := events.NewInMemoryDispatcher()
	cleanup := NewMediaCleanup(store, zap.NewNop(), 2, 4)

	var (
		mu       sync.Mutex
		attempts []string
	)
	cleanup.OnDone(func(key string, err error) {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, key)
		assert.NoError(t, err)
	})
	Start(ctx, dispatcher, nil, cleanup)

	require.NoError(t, dispatcher.Publish(ctx, events.New(events.EventMaterialDeleted, "m1",
		events.Actor{Role: domain.RoleAdmin, ID: "a1"},
		events.MaterialPayload{Assets: []string{gone1}})))
	require.NoError(t, dispatcher.Publish(ctx, events.New(events.EventMaterialUpdated, "m2",
		events.Actor{Role: domain.RoleAdmin, ID: "a1"},
		events.MaterialPayload{Assets: []string{gone2}})))
	cleanup.Stop()

	assert.ElementsMatch(t, []string{gone1, gone2}, attempts)
	assert.Equal(t, []string{keep}, store.Keys())
}

func TestMediaCleanupRejectsAfterStop(t *testing.T) {
	ctx := context.Background()
	dispatcher := events.NewInMemoryDispatcher()
	cleanup := NewMediaCleanup(media.NewMemoryStore(), zap.NewNop(), 1, 1)
	Start(ctx, dispatcher, nil, cleanup)
	cleanup.Stop()
	cleanup.Stop()

	err := dispatcher.Publish(ctx, events.New(events.EventMaterialDeleted, "m1", events.Actor{},
		events.MaterialPayload{Assets: []string{"k"}}))
	assert.ErrorIs(t, err, errCleanupStopped)
}

func TestAuditLoggerWritesEvents(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	dispatcher := events.NewInMemoryDispatcher()
	NewAuditLogger(zap.New(core)).Register(dispatcher)

	require.NoError(t, dispatcher.Publish(context.Background(), events.New(events.EventPrincipalRegistered, "u1",
		events.Actor{Role: domain.RoleUser, ID: "u1"},
		events.PrincipalPayload{Email: "u@example.com"})))

	entries := logs.FilterMessage(string(events.EventPrincipalRegistered)).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].ContextMap()["subject_id"])
	assert.Equal(t, "audit", entries[0].LoggerName)
}

func TestMediaCleanupLogsKeysDroppedOnCancel(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	cleanup := NewMediaCleanup(media.NewMemoryStore(), zap.New(core), 1, 1)
	actor := events.Actor{Role: domain.RoleAdmin, ID: "a1"}

	require.NoError(t, cleanup.handle(context.Background(), events.New(events.EventMaterialDeleted, "m1", actor,
		events.MaterialPayload{Assets: []string{"queued"}})))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	event := events.New(events.EventMaterialDeleted, "m2", actor,
		events.MaterialPayload{Assets: []string{"a", "b"}})
	err := cleanup.handle(ctx, event)
	assert.ErrorIs(t, err, context.Canceled)

	entries := logs.FilterMessage("orphaned media not queued").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, []interface{}{"a", "b"}, fields["keys"])
	assert.Equal(t, event.ID, fields["event_id"])
	assert.Equal(t, "media_cleanup", entries[0].LoggerName)
}
