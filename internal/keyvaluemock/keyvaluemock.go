package keyvaluemock

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// KeyValueMock is an in-memory implementation of the keyvalue.KeyValue type.
//
// Expiration is evaluated against Now, which tests may replace to move time
// forward without sleeping. Intended for testing only.
type KeyValueMock struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	mu     sync.Mutex
	values map[string]entry
	lists  map[string][][]byte
}

type entry struct {
	data    []byte
	expires time.Time
}

// New returns a new KeyValueMock.
func New() *KeyValueMock {
	return &KeyValueMock{
		Now:    time.Now,
		values: make(map[string]entry),
		lists:  make(map[string][][]byte),
	}
}

// Advance moves the mock clock forward by d and stops it there.
func (k *KeyValueMock) Advance(d time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := k.Now()
	k.Now = func() time.Time { return now.Add(d) }
}

// get returns the live entry for key. Must be called with mu held.
func (k *KeyValueMock) get(key string) (entry, bool) {
	e, ok := k.values[key]
	if !ok {
		return entry{}, false
	}
	if !e.expires.IsZero() && !k.Now().Before(e.expires) {
		delete(k.values, key)
		return entry{}, false
	}
	return e, true
}

func (k *KeyValueMock) set(key string, data []byte, expiration time.Duration) {
	e := entry{data: append([]byte{}, data...)}
	if expiration > 0 {
		e.expires = k.Now().Add(expiration)
	}
	k.values[key] = e
}

// Store stores bytes into key.
func (k *KeyValueMock) Store(ctx context.Context, key string, data []byte, expiration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.set(key, data, expiration)
	return nil
}

// StoreNew stores bytes into key only if key is not set.
func (k *KeyValueMock) StoreNew(ctx context.Context, key string, data []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.get(key); ok {
		return false, nil
	}
	k.set(key, data, 0)
	return true, nil
}

// Retrieve retrieves the bytes for key, or nil if key is not set.
func (k *KeyValueMock) Retrieve(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.get(key)
	if !ok {
		return nil, nil
	}
	return append([]byte{}, e.data...), nil
}

// SetCounter sets the value of the counter for key.
func (k *KeyValueMock) SetCounter(ctx context.Context, key string, value int64) error {
	return k.Store(ctx, key, []byte(strconv.FormatInt(value, 10)), 0)
}

// GetCounter gets the current value of the counter for key.
func (k *KeyValueMock) GetCounter(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.counter(key)
}

func (k *KeyValueMock) counter(key string) (int64, error) {
	e, ok := k.get(key)
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseInt(string(e.data), 10, 64)
	return v, errors.Wrapf(err, "unexpected format or not a number for key %q", key)
}

// IncrementCounter increments the value of the counter for key.
func (k *KeyValueMock) IncrementCounter(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	v, err := k.counter(key)
	if err != nil {
		return 0, err
	}
	v++
	e, _ := k.get(key)
	e.data = []byte(strconv.FormatInt(v, 10))
	k.values[key] = e
	return v, nil
}

// Append appends data to the list at key.
func (k *KeyValueMock) Append(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.lists[key] = append(k.lists[key], append([]byte(nil), data...))
	return nil
}

// Range returns the elements of the list at key between start and stop,
// inclusive, with the same negative index handling as Redis LRANGE.
func (k *KeyValueMock) Range(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	list := k.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return [][]byte{}, nil
	}
	out := make([][]byte, 0, stop-start+1)
	for _, v := range list[start : stop+1] {
		out = append(out, append([]byte(nil), v...))
	}
	return out, nil
}

// Flush removes all keys.
func (k *KeyValueMock) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.values = make(map[string]entry)
	k.lists = make(map[string][][]byte)
	return nil
}
