// Package keyvalue implements support for storing and retrieving key value
// pairs, counters and append-only lists.
package keyvalue

import (
	"context"
	"time"
)

// KeyValue wraps the set of methods for storing and retrieving data identified
// by a given key.
//
// Retrieve returns nil data and a nil error for a key that does not exist (or
// has expired). Implementations are expected to be safe for concurrent use;
// the backing store is the only serialization point.
type KeyValue interface {
	Store(ctx context.Context, key string, data []byte, expiration time.Duration) error
	StoreNew(ctx context.Context, key string, data []byte) (bool, error)
	Retrieve(ctx context.Context, key string) ([]byte, error)

	SetCounter(ctx context.Context, key string, value int64) error
	GetCounter(ctx context.Context, key string) (int64, error)
	IncrementCounter(ctx context.Context, key string) (int64, error)

	Append(ctx context.Context, key string, data []byte) error
	Range(ctx context.Context, key string, start, stop int64) ([][]byte, error)

	Flush(ctx context.Context) error
}
