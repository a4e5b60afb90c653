// Package fetch implements fetching page content over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	gohttp "net/http"
	"net/url"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/transport/http"
	"github.com/pkg/errors"
)

// DefaultMaxBodySize is the largest response body read by default.
const DefaultMaxBodySize = 10 << 20

// RemoteFetchError is returned when a page could not be fetched, either
// because of a transport failure or a non-success response.
type RemoteFetchError struct {
	URL string
	// StatusCode is set only for non-success responses.
	StatusCode int
	Err        error
}

func (e *RemoteFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

// IsRemoteFetchError reports whether the cause of err is a RemoteFetchError.
func IsRemoteFetchError(err error) bool {
	_, ok := errors.Cause(err).(*RemoteFetchError)
	return ok
}

// Config configures a Fetcher.
type Config struct {
	// Client performs requests. Defaults to a client with Timeout.
	Client *gohttp.Client
	// Timeout bounds each request when Client is nil. Zero means no timeout.
	Timeout time.Duration
	// MaxBodySize bounds how much of a response body is read. Defaults to
	// DefaultMaxBodySize.
	MaxBodySize int64
}

// Fetcher fetches page content by URL. It performs no retries.
type Fetcher struct {
	e endpoint.Endpoint
}

// New returns a Fetcher.
func New(conf Config) *Fetcher {
	client := conf.Client
	if client == nil {
		client = &gohttp.Client{Timeout: conf.Timeout}
	}
	max := conf.MaxBodySize
	if max <= 0 {
		max = DefaultMaxBodySize
	}

	// The target is replaced per request by encodeFetchRequest.
	placeholder := &url.URL{Scheme: "http", Host: "localhost"}
	c := http.NewClient(gohttp.MethodGet, placeholder,
		encodeFetchRequest,
		makeDecodeFetchResponse(max),
		http.SetClient(client),
	)
	return &Fetcher{e: c.Endpoint()}
}

// Fetch returns the body of the page at rawURL as text.
//
// Failures are reported as *RemoteFetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	resp, err := f.e(ctx, rawURL)
	if err != nil {
		if IsRemoteFetchError(err) {
			return "", err
		}
		return "", errors.WithStack(&RemoteFetchError{URL: rawURL, Err: err})
	}
	return resp.(string), nil
}

func encodeFetchRequest(_ context.Context, req *gohttp.Request, request interface{}) error {
	rawURL, ok := request.(string)
	if !ok {
		return errors.Errorf("unexpected request type %T", request)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrapf(err, "invalid URL %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	req.URL = u
	req.Host = u.Host
	return nil
}

func makeDecodeFetchResponse(max int64) http.DecodeResponseFunc {
	return func(_ context.Context, resp *gohttp.Response) (interface{}, error) {
		u := resp.Request.URL.String()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			// Drain for connection reuse.
			_, _ = io.Copy(ioutil.Discard, io.LimitReader(resp.Body, max))
			return nil, errors.WithStack(&RemoteFetchError{URL: u, StatusCode: resp.StatusCode})
		}
		body, err := ioutil.ReadAll(io.LimitReader(resp.Body, max))
		if err != nil {
			return nil, errors.WithStack(&RemoteFetchError{URL: u, Err: err})
		}
		return string(body), nil
	}
}
