package port

import "context"

// IdempotencyRepository tracks client-supplied request keys.
type IdempotencyRepository interface {
	// Claim reserves key for a new request. When the key is already held it
	// returns claimed=false and the value stored for it, which is PendingValue
	// while the first request is still in flight.
	Claim(ctx context.Context, key string) (existing string, claimed bool, err error)

	// Complete records the result of the request that claimed key.
	Complete(ctx context.Context, key, value string) error

	// Release drops a claimed key so that the request can be retried.
	Release(ctx context.Context, key string) error
}

const PendingValue = "pending"
