package missions

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/angelmondragon/maiyom-backend/pkg/config"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterStore struct {
	counts map[string]int64
	ttls   map[string]time.Duration
	raw    map[string]string
}

func newCounterStore() *counterStore {
	return &counterStore{counts: map[string]int64{}, ttls: map[string]time.Duration{}, raw: map[string]string{}}
}

func (s *counterStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := s.raw[key]; ok {
		return v, nil
	}
	n, ok := s.counts[key]
	if !ok {
		return "", redis.Nil
	}
	return strconv.FormatInt(n, 10), nil
}

func (s *counterStore) IncrWithTTL(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.counts[key]++
	if _, ok := s.ttls[key]; !ok {
		s.ttls[key] = ttl
	}
	return s.counts[key], nil
}

func (s *counterStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(s.counts, k)
		delete(s.ttls, k)
	}
	return nil
}

func (s *counterStore) OTPAttemptKey(missionID, phase string) string {
	return "otp:" + missionID + ":" + phase
}

func TestAttemptLimiterLocksAfterMaxFailures(t *testing.T) {
	store := newCounterStore()
	limiter, err := NewAttemptLimiter(store, config.OTPConfig{MaxAttempts: 3, LockoutWindow: 15 * time.Minute})
	require.NoError(t, err)

	ctx := context.Background()
	missionID := uuid.New()

	for want := 2; want >= 0; want-- {
		locked, err := limiter.Locked(ctx, missionID, enums.OTPPhasePickup)
		require.NoError(t, err)
		assert.False(t, locked)

		remaining, err := limiter.RecordFailure(ctx, missionID, enums.OTPPhasePickup)
		require.NoError(t, err)
		assert.Equal(t, want, remaining)
	}

	locked, err := limiter.Locked(ctx, missionID, enums.OTPPhasePickup)
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, 15*time.Minute, store.ttls["otp:"+missionID.String()+":pickup"])

	locked, err = limiter.Locked(ctx, missionID, enums.OTPPhaseDelivery)
	require.NoError(t, err)
	assert.False(t, locked, "phases count separately")

	remaining, err := limiter.RecordFailure(ctx, missionID, enums.OTPPhasePickup)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestAttemptLimiterResetClearsCounter(t *testing.T) {
	store := newCounterStore()
	limiter, err := NewAttemptLimiter(store, config.OTPConfig{MaxAttempts: 1, LockoutWindow: time.Minute})
	require.NoError(t, err)

	ctx := context.Background()
	missionID := uuid.New()
	_, err = limiter.RecordFailure(ctx, missionID, enums.OTPPhaseDelivery)
	require.NoError(t, err)

	locked, err := limiter.Locked(ctx, missionID, enums.OTPPhaseDelivery)
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, limiter.Reset(ctx, missionID, enums.OTPPhaseDelivery))
	locked, err = limiter.Locked(ctx, missionID, enums.OTPPhaseDelivery)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestAttemptLimiterRejectsCorruptCounter(t *testing.T) {
	store := newCounterStore()
	missionID := uuid.New()
	store.raw["otp:"+missionID.String()+":pickup"] = "many"

	limiter, err := NewAttemptLimiter(store, config.OTPConfig{MaxAttempts: 5, LockoutWindow: time.Minute})
	require.NoError(t, err)

	_, err = limiter.Locked(context.Background(), missionID, enums.OTPPhasePickup)
	assert.ErrorContains(t, err, "parse otp attempt counter")
}

func TestNewAttemptLimiterValidatesConfig(t *testing.T) {
	store := newCounterStore()
	cases := map[string]struct {
		store attemptStore
		cfg   config.OTPConfig
	}{
		"nil store":   {nil, config.OTPConfig{MaxAttempts: 5, LockoutWindow: time.Minute}},
		"no attempts": {store, config.OTPConfig{LockoutWindow: time.Minute}},
		"no window":   {store, config.OTPConfig{MaxAttempts: 5}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewAttemptLimiter(tc.store, tc.cfg)
			assert.Error(t, err)
		})
	}
}
