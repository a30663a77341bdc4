package redis

import (
	"context"
	"time"
)

// RevokeSession marks an access token id as revoked until ttl elapses.
func (c *Client) RevokeSession(ctx context.Context, tokenID string, ttl time.Duration) error {
	return c.Set(ctx, c.RevokedSessionKey(tokenID), "1", ttl)
}

func (c *Client) IsSessionRevoked(ctx context.Context, tokenID string) (bool, error) {
	if c.store == nil {
		return false, errNotInitialized
	}
	n, err := c.store.Exists(ctx, c.RevokedSessionKey(tokenID)).Result()
	return n > 0, err
}
