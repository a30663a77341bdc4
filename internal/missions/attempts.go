package missions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/angelmondragon/maiyom-backend/pkg/config"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AttemptLimiter tracks failed OTP entries per mission and phase.
type AttemptLimiter interface {
	Locked(ctx context.Context, missionID uuid.UUID, phase enums.OTPPhase) (bool, error)
	// RecordFailure counts one wrong code and returns how many tries remain.
	RecordFailure(ctx context.Context, missionID uuid.UUID, phase enums.OTPPhase) (int, error)
	Reset(ctx context.Context, missionID uuid.UUID, phase enums.OTPPhase) error
}

type attemptStore interface {
	Get(ctx context.Context, key string) (string, error)
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Del(ctx context.Context, keys ...string) error
	OTPAttemptKey(missionID, phase string) string
}

type redisAttemptLimiter struct {
	store  attemptStore
	max    int
	window time.Duration
}

// NewAttemptLimiter returns a Redis backed limiter. The window starts at the
// first failure, so a lockout lifts once it expires.
func NewAttemptLimiter(store attemptStore, cfg config.OTPConfig) (AttemptLimiter, error) {
	if store == nil {
		return nil, fmt.Errorf("attempt store required")
	}
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("otp max attempts must be positive")
	}
	if cfg.LockoutWindow <= 0 {
		return nil, fmt.Errorf("otp lockout window must be positive")
	}
	return &redisAttemptLimiter{store: store, max: cfg.MaxAttempts, window: cfg.LockoutWindow}, nil
}

func (l *redisAttemptLimiter) key(missionID uuid.UUID, phase enums.OTPPhase) string {
	return l.store.OTPAttemptKey(missionID.String(), string(phase))
}

func (l *redisAttemptLimiter) Locked(ctx context.Context, missionID uuid.UUID, phase enums.OTPPhase) (bool, error) {
	raw, err := l.store.Get(ctx, l.key(missionID, phase))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return false, fmt.Errorf("parse otp attempt counter: %w", err)
	}
	return count >= l.max, nil
}

func (l *redisAttemptLimiter) RecordFailure(ctx context.Context, missionID uuid.UUID, phase enums.OTPPhase) (int, error) {
	count, err := l.store.IncrWithTTL(ctx, l.key(missionID, phase), l.window)
	if err != nil {
		return 0, err
	}
	remaining := l.max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (l *redisAttemptLimiter) Reset(ctx context.Context, missionID uuid.UUID, phase enums.OTPPhase) error {
	return l.store.Del(ctx, l.key(missionID, phase))
}
