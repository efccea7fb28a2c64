package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// renewScript extends the key only while it still holds our owner id
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the key only while it still holds our owner id
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker stores leases as expiring redis keys
type RedisLocker struct {
	client redis.UniversalClient
	owner  string
	ttl    time.Duration
	prefix string
}

// NewRedisLocker creates a lease store backed by redis
func NewRedisLocker(client redis.UniversalClient, owner string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, owner: owner, ttl: ttl, prefix: "autoleads:campaign-lease:"}
}

func (l *RedisLocker) key(campaignID int) string {
	return fmt.Sprintf("%s%d", l.prefix, campaignID)
}

func (l *RedisLocker) Acquire(ctx context.Context, campaignID int) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(campaignID), l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire redis lease: %w", err)
	}
	if ok {
		return true, nil
	}
	// Re-entrant: a relaunch in the same process keeps its own lease.
	return l.Renew(ctx, campaignID)
}

func (l *RedisLocker) Renew(ctx context.Context, campaignID int) (bool, error) {
	n, err := renewScript.Run(ctx, l.client, []string{l.key(campaignID)}, l.owner, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to renew redis lease: %w", err)
	}
	return n == 1, nil
}

func (l *RedisLocker) Release(ctx context.Context, campaignID int) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key(campaignID)}, l.owner).Err(); err != nil {
		return fmt.Errorf("failed to release redis lease: %w", err)
	}
	return nil
}

func (l *RedisLocker) Owner() string {
	return l.owner
}
