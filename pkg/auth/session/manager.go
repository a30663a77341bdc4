package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/maiyom-backend/pkg/config"
	redisclient "github.com/angelmondragon/maiyom-backend/pkg/redis"
)

type revocationStore interface {
	RevokeSession(ctx context.Context, tokenID string, ttl time.Duration) error
	IsSessionRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Manager tracks signed-out access tokens by jti. Tokens are issued by the
// identity provider, so the only server-side session state is the deny list.
type Manager struct {
	store revocationStore
	ttl   time.Duration
	skew  time.Duration
	now   func() time.Time
}

// AccessSessionChecker exposes the read-only surface needed by middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// NewManager constructs a session manager backed by Redis.
func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	ttl := cfg.AccessTokenTTL()
	if ttl <= 0 {
		return nil, fmt.Errorf("access token ttl must be positive")
	}
	return &Manager{store: client, ttl: ttl, skew: cfg.ClockSkew, now: time.Now}, nil
}

// HasSession reports whether the access id has not been revoked.
func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, fmt.Errorf("access id is required")
	}
	revoked, err := m.store.IsSessionRevoked(ctx, accessID)
	if err != nil {
		return false, err
	}
	return !revoked, nil
}

// Revoke denies the access id until the token would have expired anyway.
// When expiresAt is zero the configured access token lifetime is used.
func (m *Manager) Revoke(ctx context.Context, accessID string, expiresAt time.Time) error {
	if strings.TrimSpace(accessID) == "" {
		return fmt.Errorf("access id is required")
	}
	ttl := m.ttl
	if !expiresAt.IsZero() {
		ttl = expiresAt.Sub(m.now()) + m.skew
	}
	if ttl <= 0 {
		return nil
	}
	return m.store.RevokeSession(ctx, accessID, ttl)
}
