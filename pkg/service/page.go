package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"

	"github.com/rwool/callcache/pkg/service/keyvalue"
	"github.com/rwool/callcache/pkg/ttlcache"
)

// PageOperation identifies cached page fetches and prefixes their cache keys.
const PageOperation = "get_page"

// PageService returns page contents, serving repeated requests for the same
// URL from a short-lived cache.
type PageService interface {
	GetPage(ctx context.Context, url string) (string, error)
	AccessCount(ctx context.Context, url string) (int64, error)
}

// PageServiceConfig contains the configuration for a PageService.
type PageServiceConfig struct {
	KeyVal  keyvalue.KeyValue
	Fetcher ttlcache.Fetcher
	Log     log.Logger
	// Expiration is how long fetched pages are cached. Defaults to
	// ttlcache.DefaultExpiration.
	Expiration time.Duration
	Hits       metrics.Counter
	Misses     metrics.Counter
}

// NewPageService returns a PageService.
func NewPageService(conf PageServiceConfig) PageService {
	return newPageService(conf)
}

type pageService struct {
	l     log.Logger
	pages *ttlcache.AccessCounter
}

func newPageService(conf PageServiceConfig) *pageService {
	if conf.Log == nil {
		conf.Log = log.NewNopLogger()
	}
	l := log.With(conf.Log, "component", "pages")
	return &pageService{
		l: l,
		pages: ttlcache.New(conf.KeyVal, conf.Fetcher, ttlcache.Config{
			Operation:  PageOperation,
			Expiration: conf.Expiration,
			Log:        l,
			Hits:       conf.Hits,
			Misses:     conf.Misses,
		}),
	}
}

// GetPage returns the content of the page at url.
func (p *pageService) GetPage(ctx context.Context, url string) (string, error) {
	content, err := p.pages.Fetch(ctx, url)
	if err != nil {
		_ = p.l.Log("LEVEL", "ERROR", "MESSAGE", fmt.Sprintf("Unable to get page %s", url), "err", err)
		return "", err
	}
	return content, nil
}

// AccessCount returns how many times url has been requested.
func (p *pageService) AccessCount(ctx context.Context, url string) (int64, error) {
	return p.pages.Count(ctx, url)
}
