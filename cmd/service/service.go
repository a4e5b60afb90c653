package main

import (
	"context"
	"fmt"
	"io"
	"net"
	gohttp "net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rwool/callcache/pkg/endpoint"
	"github.com/rwool/callcache/pkg/fetch"
	"github.com/rwool/callcache/pkg/http"
	"github.com/rwool/callcache/pkg/service"
	"github.com/rwool/callcache/pkg/service/keyvalue"
)

func getRedisClient(conf Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         conf.RedisAddress,
		Password:     conf.RedisPassword,
		DB:           conf.RedisDB,
		MaxRetries:   conf.RedisMaxRetries,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := client.Ping().Err(); err != nil {
		_ = client.Close()
		return nil, errors.WithStack(err)
	}
	return client, nil
}

func main() {
	l := log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	l = log.With(l, "ts", log.DefaultTimestampUTC)
	if err := run(l); err != nil {
		_ = l.Log("LEVEL", "ERROR", "MESSAGE", err)
		os.Exit(1)
	}
}

func run(l log.Logger) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}

	rc, err := getRedisClient(conf)
	if err != nil {
		return errors.Wrap(err, "unable to connect to Redis")
	}
	kv := keyvalue.NewRedisAdapter(rc)
	defer func() {
		if err := kv.Close(); err != nil {
			_ = l.Log("LEVEL", "WARN", "MESSAGE", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if conf.FlushOnStart {
		if err := kv.Flush(ctx); err != nil {
			return err
		}
		_ = l.Log("LEVEL", "INFO", "MESSAGE", "Flushed Redis database")
	}

	// Metrics.
	fieldKeys := []string{"operation"}
	calls := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "callcache",
		Name:      "calls_total",
		Help:      "Number of instrumented calls.",
	}, fieldKeys)
	failures := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "callcache",
		Name:      "call_failures_total",
		Help:      "Number of instrumented calls that failed.",
	}, fieldKeys)
	hits := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "callcache",
		Name:      "page_cache_hits_total",
		Help:      "Number of page requests served from the cache.",
	}, fieldKeys)
	misses := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "callcache",
		Name:      "page_cache_misses_total",
		Help:      "Number of page requests fetched from the remote.",
	}, fieldKeys)

	// Business logic.
	cacheService := service.NewCacheService(service.CacheConfig{
		KeyVal:   kv,
		Log:      l,
		Calls:    calls,
		Failures: failures,
	})
	pageService := service.NewPageService(service.PageServiceConfig{
		KeyVal:     kv,
		Fetcher:    fetch.New(fetch.Config{Timeout: conf.FetchTimeout}),
		Log:        l,
		Expiration: conf.CacheTTL,
		Hits:       hits,
		Misses:     misses,
	})

	if conf.RunDemo {
		if err := demo(ctx, os.Stdout, cacheService, pageService, conf.DemoURLs); err != nil {
			return errors.Wrap(err, "demo failed")
		}
	}

	// Endpoints.
	endpoints := endpoint.MakeEndpoints(cacheService, pageService)

	// Transports.
	mux := gohttp.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", http.NewHTTPHandler(endpoints, nil))

	server, err := serveHTTP(conf.ListenAddress, mux)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server(ctx, l)
	}()
	_ = l.Log("LEVEL", "INFO", "MESSAGE", fmt.Sprintf("Listening on %s", conf.ListenAddress))
	wg.Wait()
	return nil
}

func serveHTTP(address string, h gohttp.Handler) (func(context.Context, log.Logger), error) {
	// Separate listening and serving to capture listen errors.
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create TCP listener")
	}

	return func(ctx context.Context, logger log.Logger) {
		srv := &gohttp.Server{Handler: h}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				_ = logger.Log("LEVEL", "WARN", "MESSAGE", err)
			}
		}()
		if err := srv.Serve(l); err != nil && err != gohttp.ErrServerClosed {
			_ = logger.Log("LEVEL", "ERROR", "MESSAGE", err)
		}
	}, nil
}

// demo stores a few sample values, prints their history and fetches each
// URL a few times to show the page cache and access counts.
func demo(ctx context.Context, w io.Writer, c service.CacheService, p service.PageService, urls []string) error {
	for _, v := range []interface{}{"foo", "bar", 42} {
		if _, err := c.Store(ctx, v); err != nil {
			return err
		}
	}
	if err := service.WriteReplay(ctx, c, service.StoreOperation, w); err != nil {
		return err
	}

	for _, u := range urls {
		for i := 0; i < 3; i++ {
			content, err := p.GetPage(ctx, u)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(w, "Content for %s: %d bytes\n", u, len(content))
		}
	}
	for _, u := range urls {
		n, err := p.AccessCount(ctx, u)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "Access count for %s: %d\n", u, n)
	}
	return nil
}
