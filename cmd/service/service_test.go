package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwool/callcache/internal/keyvaluemock"
	"github.com/rwool/callcache/pkg/service"
	"github.com/rwool/callcache/pkg/ttlcache"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("REDIS_ADDRESS", "localhost:6379")
	t.Setenv("DEMO_URLS", "http://a.example.com,http://b.example.com")

	c, err := loadConfig()
	require.NoError(t, err, "Configuration should parse.")
	assert.Equal(t, "localhost:6379", c.RedisAddress, "Address should be read from the environment.")
	assert.Equal(t, 10, c.RedisMaxRetries, "Retries should have a default.")
	assert.Equal(t, "0.0.0.0:8080", c.ListenAddress, "Listen address should have a default.")
	assert.Equal(t, 10*time.Second, c.CacheTTL, "TTL should have a default.")
	assert.True(t, c.FlushOnStart, "Flushing should be on by default.")
	assert.Equal(t, []string{"http://a.example.com", "http://b.example.com"}, c.DemoURLs, "URLs should be split.")
}

func TestLoadConfigErrors(t *testing.T) {
	t.Setenv("REDIS_ADDRESS", "")
	_, err := loadConfig()
	assert.Error(t, err, "Redis address is required.")

	t.Setenv("REDIS_ADDRESS", "localhost:6379")
	t.Setenv("CACHE_TTL", "-1s")
	_, err = loadConfig()
	assert.Error(t, err, "TTL must be positive.")
}

func TestDemo(t *testing.T) {
	t.Parallel()
	kv := keyvaluemock.New()
	c := service.NewCacheService(service.CacheConfig{KeyVal: kv, Log: log.NewNopLogger()})
	p := service.NewPageService(service.PageServiceConfig{
		KeyVal: kv,
		Fetcher: ttlcache.FetcherFunc(func(context.Context, string) (string, error) {
			return "hello", nil
		}),
	})

	var buf bytes.Buffer
	err := demo(context.Background(), &buf, c, p, []string{"http://example.com"})
	require.NoError(t, err, "Demo should succeed.")
	assert.Equal(t, "Cache.Store was called 3 times:\n"+
		`Cache.Store(*("foo",)) -> foo`+"\n"+
		`Cache.Store(*("bar",)) -> bar`+"\n"+
		`Cache.Store(*(42,)) -> 42`+"\n"+
		"Content for http://example.com: 5 bytes\n"+
		"Content for http://example.com: 5 bytes\n"+
		"Content for http://example.com: 5 bytes\n"+
		"Access count for http://example.com: 3\n", buf.String(), "Demo output should be stable.")
}
