package port

import (
	"context"
	"time"
)

type LockRepository interface {
	// AcquireLock sets key if absent, returns false if it is already held
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// ReleaseLock removes key only if it is still held with token
	ReleaseLock(ctx context.Context, key, token string) error
}
