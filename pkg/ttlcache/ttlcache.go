// Package ttlcache memoizes remote fetches in a key value store.
//
// Entries expire through the store's own TTL support: a cached result is
// written together with its expiration in one call and the cache never
// checks an entry's age itself.
package ttlcache

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/pkg/errors"

	"github.com/rwool/callcache/pkg/service/keyvalue"
)

// DefaultExpiration is how long a fetched result is cached by default.
const DefaultExpiration = 10 * time.Second

// Fetcher fetches the content of a resource.
type Fetcher interface {
	Fetch(ctx context.Context, resourceID string) (string, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, resourceID string) (string, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, resourceID string) (string, error) {
	return f(ctx, resourceID)
}

// AccessKey returns the key of the access counter for resourceID.
func AccessKey(resourceID string) string { return "count:" + resourceID }

// CacheKey returns the key of the cached result of operation for resourceID.
func CacheKey(operation, resourceID string) string { return operation + ":" + resourceID }

// Config configures a Cache.
type Config struct {
	// Operation identifies the cached fetch and prefixes cache keys.
	Operation string
	// Expiration is how long results are cached. Defaults to
	// DefaultExpiration.
	Expiration time.Duration
	Log        log.Logger
	// Hits and Misses count cache lookups. Default to discarding counters.
	Hits   metrics.Counter
	Misses metrics.Counter
}

// Cache serves fetches from the store while a cached result is live and
// otherwise from the wrapped Fetcher.
type Cache struct {
	kv     keyvalue.KeyValue
	next   Fetcher
	op     string
	ttl    time.Duration
	log    log.Logger
	hits   metrics.Counter
	misses metrics.Counter
}

var _ Fetcher = (*Cache)(nil)

// NewCache returns a Cache in front of next.
func NewCache(kv keyvalue.KeyValue, next Fetcher, conf Config) *Cache {
	if conf.Expiration <= 0 {
		conf.Expiration = DefaultExpiration
	}
	if conf.Log == nil {
		conf.Log = log.NewNopLogger()
	}
	if conf.Hits == nil {
		conf.Hits = discard.NewCounter()
	}
	if conf.Misses == nil {
		conf.Misses = discard.NewCounter()
	}
	return &Cache{
		kv:     kv,
		next:   next,
		op:     conf.Operation,
		ttl:    conf.Expiration,
		log:    conf.Log,
		hits:   conf.Hits,
		misses: conf.Misses,
	}
}

// Fetch returns the cached result for resourceID, fetching and caching it on
// a miss. Fetch failures are returned unchanged and nothing is cached.
func (c *Cache) Fetch(ctx context.Context, resourceID string) (string, error) {
	key := CacheKey(c.op, resourceID)
	cached, err := c.kv.Retrieve(ctx, key)
	if err != nil {
		return "", errors.Wrap(err, "unable to read cached result")
	}
	if cached != nil {
		c.hits.With("operation", c.op).Add(1)
		_ = c.log.Log("LEVEL", "DEBUG", "MESSAGE", "cache hit", "key", key)
		return string(cached), nil
	}
	c.misses.With("operation", c.op).Add(1)
	_ = c.log.Log("LEVEL", "DEBUG", "MESSAGE", "cache miss", "key", key)

	content, err := c.next.Fetch(ctx, resourceID)
	if err != nil {
		return "", err
	}
	if err := c.kv.Store(ctx, key, []byte(content), c.ttl); err != nil {
		return "", errors.Wrap(err, "unable to cache result")
	}
	return content, nil
}

// AccessCounter counts every fetch of a resource before delegating it,
// whether or not the delegate serves it from a cache.
type AccessCounter struct {
	kv   keyvalue.KeyValue
	next Fetcher
}

var _ Fetcher = (*AccessCounter)(nil)

// NewAccessCounter returns an AccessCounter in front of next.
func NewAccessCounter(kv keyvalue.KeyValue, next Fetcher) *AccessCounter {
	return &AccessCounter{kv: kv, next: next}
}

// Fetch increments the access count of resourceID and delegates the fetch.
func (a *AccessCounter) Fetch(ctx context.Context, resourceID string) (string, error) {
	if _, err := a.kv.IncrementCounter(ctx, AccessKey(resourceID)); err != nil {
		return "", errors.Wrapf(err, "unable to count access to %s", resourceID)
	}
	return a.next.Fetch(ctx, resourceID)
}

// Count returns how many times resourceID has been fetched.
func (a *AccessCounter) Count(ctx context.Context, resourceID string) (int64, error) {
	n, err := a.kv.GetCounter(ctx, AccessKey(resourceID))
	return n, errors.Wrapf(err, "unable to read access count of %s", resourceID)
}

// New returns the standard composition: an AccessCounter in front of a Cache
// in front of next.
func New(kv keyvalue.KeyValue, next Fetcher, conf Config) *AccessCounter {
	return NewAccessCounter(kv, NewCache(kv, next, conf))
}
