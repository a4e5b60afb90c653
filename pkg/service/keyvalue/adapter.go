package keyvalue

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/go-redis/redis"
)

// NewRedisAdapter creates a Redis client that supports storing and retrieving
// key value pairs.
func NewRedisAdapter(c *redis.Client) *RedisAdapter {
	if c == nil {
		panic("nil key value client")
	}
	return &RedisAdapter{c: c}
}

// Ensure RedisAdapter implements the KeyValue interface.
var _ KeyValue = (*RedisAdapter)(nil)

// RedisAdapter adapts a Redis client to support the KeyValue interface.
type RedisAdapter struct {
	c *redis.Client
}

// Store stores a key value pair in Redis.
//
// If expiration is set to 0, then the key will never expire. Otherwise the
// value is written together with its expiration in a single SET command, so
// there is no window in which the key exists without a TTL.
func (r *RedisAdapter) Store(ctx context.Context, key string, data []byte, expiration time.Duration) error {
	if len(key) == 0 {
		return errors.New("invalid key")
	}
	client := r.c.WithContext(ctx)
	err := client.Set(key, data, expiration).Err()
	return errors.Wrapf(err, "error storing value for key %q in Redis", key)
}

// StoreNew stores a key value pair only if the key does not already exist.
//
// The returned bool reports whether the value was written.
func (r *RedisAdapter) StoreNew(ctx context.Context, key string, data []byte) (bool, error) {
	if len(key) == 0 {
		return false, errors.New("invalid key")
	}
	client := r.c.WithContext(ctx)
	ok, err := client.SetNX(key, data, 0).Result()
	if err != nil {
		return false, errors.Wrapf(err, "error storing new value for key %q in Redis", key)
	}
	return ok, nil
}

// Retrieve retrieves a value for a given key from Redis.
func (r *RedisAdapter) Retrieve(ctx context.Context, key string) ([]byte, error) {
	if len(key) == 0 {
		return nil, errors.New("invalid key")
	}
	client := r.c.WithContext(ctx)
	v, err := client.Get(key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "unable to retrieve value for key %q from Redis", key)
	}
	return v, nil
}

// SetCounter sets the counter with the given key to value.
func (r *RedisAdapter) SetCounter(ctx context.Context, key string, value int64) error {
	if len(key) == 0 {
		return errors.New("invalid key")
	}
	client := r.c.WithContext(ctx)
	valString := strconv.FormatInt(value, 10)
	err := client.Set(key, valString, 0).Err()
	return errors.Wrapf(err, "failed to set number for key: %q", key)
}

// GetCounter gets the current value of a counter.
//
// A counter that was never incremented reads as 0.
func (r *RedisAdapter) GetCounter(ctx context.Context, key string) (int64, error) {
	if len(key) == 0 {
		return 0, errors.New("invalid key")
	}
	client := r.c.WithContext(ctx)
	current, err := client.Get(key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to get number for key: %q", key)
	}
	v, err := strconv.ParseInt(current, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "unexpected format or not a number for key %q", key)
	}
	return v, nil
}

// IncrementCounter increments the value with the given key and returns the
// new value.
//
// If the key does not exist, it will be initialized to 0 and incremented.
func (r *RedisAdapter) IncrementCounter(ctx context.Context, key string) (int64, error) {
	if len(key) == 0 {
		return 0, errors.New("invalid key")
	}
	client := r.c.WithContext(ctx)
	v, err := client.Incr(key).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to increment value for key %q", key)
	}
	return v, nil
}

// Append pushes data onto the tail of the list stored at key.
func (r *RedisAdapter) Append(ctx context.Context, key string, data []byte) error {
	if len(key) == 0 {
		return errors.New("invalid key")
	}
	client := r.c.WithContext(ctx)
	err := client.RPush(key, data).Err()
	return errors.Wrapf(err, "error pushing to Redis list %q", key)
}

// Range reads the elements of the list at key between start and stop,
// inclusive. Negative indexes count from the tail, so (0, -1) reads the whole
// list. A missing list reads as empty.
func (r *RedisAdapter) Range(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	if len(key) == 0 {
		return nil, errors.New("invalid key")
	}
	client := r.c.WithContext(ctx)
	values, err := client.LRange(key, start, stop).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "error reading from Redis list %q", key)
	}
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out, nil
}

// Flush removes every key from the selected Redis database.
func (r *RedisAdapter) Flush(ctx context.Context) error {
	client := r.c.WithContext(ctx)
	err := client.FlushDB().Err()
	return errors.Wrap(err, "unable to flush Redis database")
}

// Close closes the underlying Redis client.
func (r *RedisAdapter) Close() error {
	return errors.Wrap(r.c.Close(), "unable to close Redis client")
}
