// Package ratelimit bounds how often one actor may call the mutating
// endpoints. Limits are sliding windows keyed by a hash of the actor.
package ratelimit

import (
	"context"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects one request for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// HashKey derives the storage key for an actor identifier so raw client
// addresses or tokens never reach the backing store.
func HashKey(actor string) string {
	sum := blake2b.Sum256([]byte(actor))
	return hex.EncodeToString(sum[:16])
}
