package signedaction

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NonceLedger records consumed action nonces so a captured signature cannot
// be replayed against the same mutation.
type NonceLedger interface {
	// Consume marks the nonce as used. Returns false if it was already used.
	Consume(ctx context.Context, address, nonce string) (bool, error)
}

// nonceTTL outlives the freshness any honest client would reuse a nonce for.
const nonceTTL = 48 * time.Hour

// RedisNonceLedger backs the ledger with Redis SETNX.
type RedisNonceLedger struct {
	client *redis.Client
}

func NewRedisNonceLedger(client *redis.Client) *RedisNonceLedger {
	return &RedisNonceLedger{client: client}
}

func (l *RedisNonceLedger) Consume(ctx context.Context, address, nonce string) (bool, error) {
	key := "signedaction:nonce:" + strings.ToLower(address) + ":" + nonce
	return l.client.SetNX(ctx, key, "1", nonceTTL).Result()
}

// NoopNonceLedger accepts every nonce. Used when Redis is not configured.
type NoopNonceLedger struct{}

func (NoopNonceLedger) Consume(context.Context, string, string) (bool, error) { return true, nil }
