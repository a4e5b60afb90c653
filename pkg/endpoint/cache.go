package endpoint

import (
	"context"

	"github.com/go-kit/kit/endpoint"
	"github.com/pkg/errors"

	"github.com/rwool/callcache/pkg/replay"
	"github.com/rwool/callcache/pkg/service"
	"github.com/rwool/callcache/pkg/service/storage"
)

// ErrInvalidRequest is the cause of errors for requests that cannot be
// served as given.
var ErrInvalidRequest = errors.New("invalid request")

// StoreRequest contains a value to store.
type StoreRequest struct {
	Value interface{}
}

// StoreResponse contains the key a value was stored under.
type StoreResponse struct {
	Key string `json:"key"`
	e   error
}

// Failed indicates if there was a business logic failure.
func (s StoreResponse) Failed() error {
	return s.e
}

// MakeStoreEndpoint creates an endpoint for storing values.
func MakeStoreEndpoint(c service.CacheService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(StoreRequest)
		key, err := c.Store(ctx, req.Value)
		return StoreResponse{Key: key, e: err}, nil
	}
}

// RetrieveRequest identifies a stored value and how to decode it.
type RetrieveRequest struct {
	Key string
	// Decoder names a standard decoder. Empty means raw bytes.
	Decoder string
}

// RetrieveResponse contains a decoded stored value.
type RetrieveResponse struct {
	Value interface{} `json:"value"`
	e     error
}

// Failed indicates if there was a business logic failure.
func (r RetrieveResponse) Failed() error {
	return r.e
}

// MakeRetrieveEndpoint creates an endpoint for retrieving stored values.
func MakeRetrieveEndpoint(c service.CacheService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(RetrieveRequest)
		dec, ok := storage.DecoderByName(req.Decoder)
		if !ok {
			return RetrieveResponse{e: errors.Wrapf(ErrInvalidRequest, "unknown decoder %q", req.Decoder)}, nil
		}
		v, err := c.Get(ctx, req.Key, dec)
		return RetrieveResponse{Value: v, e: err}, nil
	}
}

// ReplayRequest names the operation to replay.
type ReplayRequest struct {
	Operation string
}

// ReplayResponse contains the recorded history of an operation.
type ReplayResponse struct {
	replay.Report
	e error
}

// Failed indicates if there was a business logic failure.
func (r ReplayResponse) Failed() error {
	return r.e
}

// MakeReplayEndpoint creates an endpoint for replaying call histories.
func MakeReplayEndpoint(c service.CacheService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(ReplayRequest)
		op := req.Operation
		if op == "" {
			op = service.StoreOperation
		}
		report, err := c.Replay(ctx, op)
		return ReplayResponse{Report: report, e: err}, nil
	}
}
