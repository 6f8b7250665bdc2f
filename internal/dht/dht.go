// Package dht defines the narrow contract the messenger core consumes from
// the distributed hash table collaborator, plus an in-memory implementation
// used by tests and single-process runs.
//
// Keys are opaque strings; deriving them (group + day for outbox slots,
// group + version for key packet slots) is the caller's job. A DHT handle is
// bound to one writer identity: Put publishes that writer's value at a key,
// and GetAll returns one value per distinct writer.
package dht

import (
	"context"
	"time"
)

// Callback receives the raw value that was published at a listened key.
// It may fire on a transport-owned goroutine, concurrently with the
// application's own calls into the core.
type Callback func(value []byte)

// Token identifies one active Listen registration.
type Token interface {
	// Key returns the listened key, for diagnostics.
	Key() string
}

// DHT is the storage/transport contract. Implementations must be safe for
// concurrent use.
type DHT interface {
	// Put publishes this handle's value at key with the given time-to-live,
	// replacing any previous value by the same writer.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the most recently published value at key by any writer.
	// It returns common.ErrNotFound when nothing is stored.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetAll returns every writer's current value at key, in no particular
	// order. A key with no values yields an empty slice, not an error.
	GetAll(ctx context.Context, key string) ([][]byte, error)

	// Listen registers cb for values published at key until Cancel is
	// called with the returned token.
	Listen(key string, cb Callback) (Token, error)

	// Cancel releases a Listen registration. Canceling an already-canceled
	// token is a no-op.
	Cancel(token Token)
}
