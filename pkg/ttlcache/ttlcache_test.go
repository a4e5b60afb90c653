package ttlcache_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rwool/callcache/internal/keyvaluemock"
	"github.com/rwool/callcache/pkg/ttlcache"
)

const op = "Pages.Get"

type countingFetcher struct {
	calls int64
	err   error
}

func (f *countingFetcher) Fetch(_ context.Context, url string) (string, error) {
	n := atomic.AddInt64(&f.calls, 1)
	if f.err != nil {
		return "", f.err
	}
	return url + " #" + string(rune('0'+n)), nil
}

func TestCacheWithinWindow(t *testing.T) {
	t.Parallel()
	kv := keyvaluemock.New()
	remote := &countingFetcher{}
	c := ttlcache.New(kv, remote, ttlcache.Config{Operation: op})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		body, err := c.Fetch(ctx, "http://example.com")
		require.NoError(t, err, "Fetch should succeed.")
		assert.Equal(t, "http://example.com #1", body, "Cached content should be returned.")
	}
	assert.Equal(t, int64(1), remote.calls, "Remote should be fetched once within the window.")

	n, err := c.Count(ctx, "http://example.com")
	require.NoError(t, err, "Reading the access count should succeed.")
	assert.Equal(t, int64(3), n, "Every access should be counted.")
}

func TestCacheExpires(t *testing.T) {
	t.Parallel()
	kv := keyvaluemock.New()
	remote := &countingFetcher{}
	c := ttlcache.New(kv, remote, ttlcache.Config{Operation: op})
	ctx := context.Background()

	_, err := c.Fetch(ctx, "u")
	require.NoError(t, err, "Fetch should succeed.")
	kv.Advance(ttlcache.DefaultExpiration - time.Second)
	_, err = c.Fetch(ctx, "u")
	require.NoError(t, err, "Fetch should succeed.")
	assert.Equal(t, int64(1), remote.calls, "Entry should still be live before the window elapses.")

	kv.Advance(2 * time.Second)
	body, err := c.Fetch(ctx, "u")
	require.NoError(t, err, "Fetch should succeed.")
	assert.Equal(t, int64(2), remote.calls, "Expired entry should be fetched again.")
	assert.Equal(t, "u #2", body, "Fresh content should be returned.")
}

func TestCacheCustomExpiration(t *testing.T) {
	t.Parallel()
	kv := keyvaluemock.New()
	remote := &countingFetcher{}
	c := ttlcache.NewCache(kv, remote, ttlcache.Config{Operation: op, Expiration: time.Minute})
	ctx := context.Background()

	_, err := c.Fetch(ctx, "u")
	require.NoError(t, err, "Fetch should succeed.")
	kv.Advance(30 * time.Second)
	_, err = c.Fetch(ctx, "u")
	require.NoError(t, err, "Fetch should succeed.")
	assert.Equal(t, int64(1), remote.calls, "Entry should live for the configured expiration.")

	cached, err := kv.Retrieve(ctx, ttlcache.CacheKey(op, "u"))
	require.NoError(t, err, "Reading the cache key should succeed.")
	assert.Equal(t, "u #1", string(cached), "Result should be cached under the operation key.")
}

func TestCacheFailureNotCached(t *testing.T) {
	t.Parallel()
	kv := keyvaluemock.New()
	errDown := errors.New("down")
	remote := &countingFetcher{err: errDown}
	c := ttlcache.New(kv, remote, ttlcache.Config{Operation: op})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.Fetch(ctx, "u")
		assert.Equal(t, errDown, err, "Remote failure should propagate.")
	}
	assert.Equal(t, int64(2), remote.calls, "Failures should not be cached.")

	n, err := c.Count(ctx, "u")
	require.NoError(t, err, "Reading the access count should succeed.")
	assert.Equal(t, int64(2), n, "Failed accesses should be counted.")
}

func TestAccessCountsIndependent(t *testing.T) {
	t.Parallel()
	kv := keyvaluemock.New()
	c := ttlcache.New(kv, &countingFetcher{}, ttlcache.Config{Operation: op})
	ctx := context.Background()

	_, err := c.Fetch(ctx, "a")
	require.NoError(t, err, "Fetch should succeed.")
	_, err = c.Fetch(ctx, "a")
	require.NoError(t, err, "Fetch should succeed.")
	_, err = c.Fetch(ctx, "b")
	require.NoError(t, err, "Fetch should succeed.")

	// Expiring the cached content does not touch the counters.
	kv.Advance(time.Hour)

	a, err := c.Count(ctx, "a")
	require.NoError(t, err, "Reading the access count should succeed.")
	b, err := c.Count(ctx, "b")
	require.NoError(t, err, "Reading the access count should succeed.")
	assert.Equal(t, int64(2), a, "Counts should be per resource.")
	assert.Equal(t, int64(1), b, "Counts should be per resource.")
}

func TestAccessCountConcurrent(t *testing.T) {
	t.Parallel()
	kv := keyvaluemock.New()
	c := ttlcache.New(kv, &countingFetcher{}, ttlcache.Config{Operation: op})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < 20; i++ {
		group.Go(func() error {
			_, err := c.Fetch(ctx, "u")
			return err
		})
	}
	require.NoError(t, group.Wait(), "Concurrent fetches should succeed.")

	n, err := c.Count(context.Background(), "u")
	require.NoError(t, err, "Reading the access count should succeed.")
	assert.Equal(t, int64(20), n, "Every concurrent access should be counted.")
}

func TestCacheEmptyBody(t *testing.T) {
	t.Parallel()
	kv := keyvaluemock.New()
	var calls int64
	remote := ttlcache.FetcherFunc(func(context.Context, string) (string, error) {
		atomic.AddInt64(&calls, 1)
		return "", nil
	})
	c := ttlcache.New(kv, remote, ttlcache.Config{Operation: op})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		body, err := c.Fetch(ctx, "http://example.com/empty")
		require.NoError(t, err, "Fetch should succeed.")
		assert.Equal(t, "", body, "Empty content should be returned.")
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "Empty content should be cached within the window.")

	kv.Advance(ttlcache.DefaultExpiration + time.Second)
	_, err := c.Fetch(ctx, "http://example.com/empty")
	require.NoError(t, err, "Fetch should succeed.")
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls), "Expired empty content should be fetched again.")
}
