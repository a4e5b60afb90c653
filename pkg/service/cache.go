// Package service implements the business logic for the instrumented value
// cache and the cached page fetcher.
package service

import (
	"context"
	"io"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/pkg/errors"

	"github.com/rwool/callcache/pkg/callargs"
	"github.com/rwool/callcache/pkg/instrument"
	"github.com/rwool/callcache/pkg/replay"
	"github.com/rwool/callcache/pkg/service/keyvalue"
	"github.com/rwool/callcache/pkg/service/storage"
)

// StoreOperation is the fully-qualified name under which Store calls are
// counted and recorded.
const StoreOperation = "Cache.Store"

// CacheService stores values under generated keys and keeps a replayable
// history of every store.
type CacheService interface {
	Store(ctx context.Context, value interface{}) (string, error)
	Get(ctx context.Context, key string, dec storage.Decoder) (interface{}, error)
	GetStr(ctx context.Context, key string) (string, error)
	GetInt(ctx context.Context, key string) (int64, error)
	Calls(ctx context.Context, operation string) (int64, error)
	Replay(ctx context.Context, operation string) (replay.Report, error)
}

// CacheConfig contains the configuration for a CacheService.
type CacheConfig struct {
	KeyVal keyvalue.KeyValue
	Log    log.Logger
	// IDs generates storage keys. Defaults to random UUIDs.
	IDs storage.IDGenerator
	// Calls and Failures count instrumented calls. Default to discarding
	// counters.
	Calls    metrics.Counter
	Failures metrics.Counter
}

// NewCacheService returns a CacheService.
func NewCacheService(conf CacheConfig) CacheService {
	return newCacheService(conf)
}

type cacheService struct {
	kv      keyvalue.KeyValue
	storage *storage.Storage
	replay  *replay.Engine
	store   endpoint.Endpoint
}

type storeRequest struct {
	Value callargs.Value
}

func (r storeRequest) Arguments() callargs.Tuple { return callargs.Tuple{r.Value} }

type storeResponse struct {
	Key string
}

func (r storeResponse) Result() callargs.Value { return callargs.Text(r.Key) }

func makeStoreEndpoint(s *storage.Storage) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(storeRequest)
		key, err := s.Store(ctx, req.Value)
		if err != nil {
			return nil, err
		}
		return storeResponse{Key: key}, nil
	}
}

func newCacheService(conf CacheConfig) *cacheService {
	if conf.Log == nil {
		conf.Log = log.NewNopLogger()
	}
	if conf.Calls == nil {
		conf.Calls = discard.NewCounter()
	}
	if conf.Failures == nil {
		conf.Failures = discard.NewCounter()
	}
	s := storage.New(conf.KeyVal, conf.IDs)

	// Counting is outermost: the count includes calls whose history could
	// not be recorded.
	store := endpoint.Chain(
		instrument.Counting(conf.KeyVal, StoreOperation),
		instrument.History(conf.KeyVal, StoreOperation),
		instrument.Logging(log.With(conf.Log, "component", "cache"), StoreOperation),
		instrument.Metrics(conf.Calls, conf.Failures, StoreOperation),
	)(makeStoreEndpoint(s))

	return &cacheService{
		kv:      conf.KeyVal,
		storage: s,
		replay:  replay.New(conf.KeyVal, replay.WithResolver(StoreOperation, s)),
		store:   store,
	}
}

// Store stores value and returns the key it was stored under.
//
// value may be a string, []byte, an integer, a float or a callargs.Value of
// one of those kinds.
func (c *cacheService) Store(ctx context.Context, value interface{}) (string, error) {
	v, err := callargs.Of(value)
	if err != nil {
		return "", err
	}
	resp, err := c.store(ctx, storeRequest{Value: v})
	if err != nil {
		return "", err
	}
	return resp.(storeResponse).Key, nil
}

// Get returns the value stored at key, converted by dec. A nil dec returns
// the raw bytes.
func (c *cacheService) Get(ctx context.Context, key string, dec storage.Decoder) (interface{}, error) {
	return c.storage.Retrieve(ctx, key, dec)
}

// GetStr returns the value stored at key as text.
func (c *cacheService) GetStr(ctx context.Context, key string) (string, error) {
	return c.storage.RetrieveText(ctx, key)
}

// GetInt returns the value stored at key as an integer.
func (c *cacheService) GetInt(ctx context.Context, key string) (int64, error) {
	return c.storage.RetrieveInt(ctx, key)
}

// Calls returns how many times operation has been invoked.
func (c *cacheService) Calls(ctx context.Context, operation string) (int64, error) {
	n, err := c.kv.GetCounter(ctx, instrument.CounterKey(operation))
	return n, errors.Wrapf(err, "unable to read call count of %s", operation)
}

// Replay returns the recorded history of operation.
func (c *cacheService) Replay(ctx context.Context, operation string) (replay.Report, error) {
	return c.replay.Replay(ctx, operation)
}

// WriteReplay writes the recorded history of operation to w.
func WriteReplay(ctx context.Context, c CacheService, operation string, w io.Writer) error {
	report, err := c.Replay(ctx, operation)
	if err != nil {
		return err
	}
	_, err = report.WriteTo(w)
	return err
}
