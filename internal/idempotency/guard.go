package idempotency

import (
	"context"
	"time"
)

// Guard serialises work on a key across replicas. Acquire reports false when
// another holder owns the key.
type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error)
}

// Lease is a held key; Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

func Key(scope, userID, key string) string {
	return "idem:" + scope + ":" + userID + ":" + key
}
