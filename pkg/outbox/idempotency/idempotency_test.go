package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryMarkers struct {
	values map[string]any
	ttls   map[string]time.Duration
	err    error
}

func newMemoryMarkers() *memoryMarkers {
	return &memoryMarkers{values: map[string]any{}, ttls: map[string]time.Duration{}}
}

func (m *memoryMarkers) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryMarkers) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryMarkers) IdempotencyKey(scope, id string) string {
	return "my:idempotency:" + scope + ":" + id
}

func TestNewManagerValidates(t *testing.T) {
	_, err := NewManager(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewManager(newMemoryMarkers(), -time.Second)
	assert.Error(t, err)
}

func TestMarkersAreClaimedOnce(t *testing.T) {
	store := newMemoryMarkers()
	m, err := NewManager(store, 24*time.Hour)
	require.NoError(t, err)
	m.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	ctx := context.Background()
	eventID := uuid.New()

	seen, err := m.CheckAndMarkProcessed(ctx, "notifications-worker", eventID)
	require.NoError(t, err)
	assert.False(t, seen)

	key := "my:idempotency:evt:processed:notifications-worker:" + eventID.String()
	assert.Equal(t, "2026-03-01T09:30:00Z", store.values[key])
	assert.Equal(t, 24*time.Hour, store.ttls[key])

	seen, err = m.CheckAndMarkProcessed(ctx, "notifications-worker", eventID)
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = m.CheckAndMarkProcessed(ctx, "mission-analytics", eventID)
	require.NoError(t, err)
	assert.False(t, seen, "consumers keep separate markers")
}

func TestDeleteReleasesMarker(t *testing.T) {
	m, err := NewManager(newMemoryMarkers(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	_, err = m.CheckAndMarkProcessed(ctx, "notifications-worker", eventID)
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, "notifications-worker", eventID))

	seen, err := m.CheckAndMarkProcessed(ctx, "notifications-worker", eventID)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMarkerErrors(t *testing.T) {
	store := newMemoryMarkers()
	m, err := NewManager(store, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = m.CheckAndMarkProcessed(ctx, "", uuid.New())
	assert.ErrorIs(t, err, ErrConsumerRequired)
	assert.ErrorIs(t, m.Delete(ctx, "notifications-worker", uuid.Nil), ErrEventIDRequired)

	store.err = errors.New("redis down")
	_, err = m.CheckAndMarkProcessed(ctx, "notifications-worker", uuid.New())
	assert.EqualError(t, err, "redis down")
}
