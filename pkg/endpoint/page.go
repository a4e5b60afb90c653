package endpoint

import (
	"context"

	"github.com/go-kit/kit/endpoint"

	"github.com/rwool/callcache/pkg/service"
)

// GetPageRequest contains the URL of a page.
type GetPageRequest struct {
	URL string
}

// GetPageResponse contains the content of a page.
type GetPageResponse struct {
	Content string
	e       error
}

// Failed indicates if there was a business logic failure.
func (g GetPageResponse) Failed() error {
	return g.e
}

// MakeGetPageEndpoint creates an endpoint for getting pages.
func MakeGetPageEndpoint(p service.PageService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(GetPageRequest)
		content, err := p.GetPage(ctx, req.URL)
		return GetPageResponse{Content: content, e: err}, nil
	}
}

// AccessCountRequest contains the URL of a page.
type AccessCountRequest struct {
	URL string
}

// AccessCountResponse contains how many times a page was requested.
type AccessCountResponse struct {
	URL   string `json:"url"`
	Count int64  `json:"count"`
	e     error
}

// Failed indicates if there was a business logic failure.
func (a AccessCountResponse) Failed() error {
	return a.e
}

// MakeAccessCountEndpoint creates an endpoint for reading page access counts.
func MakeAccessCountEndpoint(p service.PageService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(AccessCountRequest)
		n, err := p.AccessCount(ctx, req.URL)
		return AccessCountResponse{URL: req.URL, Count: n, e: err}, nil
	}
}

// Endpoints collects the endpoints of the cache and page services.
type Endpoints struct {
	Store       endpoint.Endpoint
	Retrieve    endpoint.Endpoint
	Replay      endpoint.Endpoint
	GetPage     endpoint.Endpoint
	AccessCount endpoint.Endpoint
}

// MakeEndpoints creates all endpoints for the given services.
func MakeEndpoints(c service.CacheService, p service.PageService) Endpoints {
	return Endpoints{
		Store:       MakeStoreEndpoint(c),
		Retrieve:    MakeRetrieveEndpoint(c),
		Replay:      MakeReplayEndpoint(c),
		GetPage:     MakeGetPageEndpoint(p),
		AccessCount: MakeAccessCountEndpoint(p),
	}
}
