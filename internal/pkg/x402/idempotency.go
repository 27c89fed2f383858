package x402

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// SettlementGuard deduplicates in-flight settlements for the same payment
// proof, covering the window before blockchain-level nonce protection
// activates. Failed settlements are cleared so legitimate retries proceed.
type SettlementGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSettlementGuard creates a guard. Returns nil when Redis is unavailable;
// callers treat a nil guard as disabled.
func NewSettlementGuard(client *redis.Client, ttl time.Duration) *SettlementGuard {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SettlementGuard{client: client, ttl: ttl}
}

func settlementKey(paymentHeader string) string {
	sum := sha256.Sum256([]byte(paymentHeader))
	return "x402:settle:" + hex.EncodeToString(sum[:])
}

// Begin marks a payment proof as in-flight. Returns false if the same proof
// is already being settled.
func (g *SettlementGuard) Begin(ctx context.Context, paymentHeader string) (bool, error) {
	return g.client.SetNX(ctx, settlementKey(paymentHeader), "in-flight", g.ttl).Result()
}

// Clear removes the in-flight marker after a definite failure, allowing a
// retry with the same proof.
func (g *SettlementGuard) Clear(ctx context.Context, paymentHeader string) error {
	return g.client.Del(ctx, settlementKey(paymentHeader)).Err()
}

// Complete pins the marker for the full TTL after a successful settlement so
// a duplicate of an already-settled proof cannot settle twice.
func (g *SettlementGuard) Complete(ctx context.Context, paymentHeader string) error {
	return g.client.Set(ctx, settlementKey(paymentHeader), "settled", g.ttl).Err()
}
