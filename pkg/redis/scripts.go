package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWindow increments a counter and, on the first hit, sets its expiry in
// the same round trip.
var incrWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// releaseIfOwner deletes KEYS[1] only while it still holds ARGV[1].
var releaseIfOwner = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// IncrWithTTL increments key, starting a ttl window on the first increment.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if c.store == nil {
		return 0, errNotInitialized
	}
	return incrWindow.Run(ctx, c.store, []string{key}, ttl.Milliseconds()).Int64()
}

// CompareAndDelete removes key when its value equals owner and reports
// whether it did.
func (c *Client) CompareAndDelete(ctx context.Context, key, owner string) (bool, error) {
	if c.store == nil {
		return false, errNotInitialized
	}
	n, err := releaseIfOwner.Run(ctx, c.store, []string{key}, owner).Int64()
	return n == 1, err
}
