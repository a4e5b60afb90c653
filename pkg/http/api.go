// Package http makes the cache and page services available over HTTP.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	gohttp "net/http"
	"strings"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/transport/http"
	"github.com/pkg/errors"

	"github.com/rwool/callcache/pkg/callargs"
	cacheendpoint "github.com/rwool/callcache/pkg/endpoint"
	"github.com/rwool/callcache/pkg/fetch"
	"github.com/rwool/callcache/pkg/service/storage"
)

// NewHTTPHandler returns a handler that makes the service endpoints
// available via HTTP.
//
// options are keyed by endpoint name: Store, Retrieve, Replay, GetPage and
// AccessCount.
func NewHTTPHandler(e cacheendpoint.Endpoints, options map[string][]http.ServerOption) gohttp.Handler {
	if options == nil {
		options = make(map[string][]http.ServerOption)
	}
	m := gohttp.NewServeMux()
	handle(m, "/store", gohttp.MethodPost, e.Store, decodeStoreRequest, encodeJSONResponse, options["Store"]...)
	handle(m, "/retrieve", gohttp.MethodGet, e.Retrieve, decodeRetrieveRequest, encodeJSONResponse, options["Retrieve"]...)
	handle(m, "/replay", gohttp.MethodGet, e.Replay, decodeReplayRequest, encodeReplayResponse, options["Replay"]...)
	handle(m, "/page", gohttp.MethodGet, e.GetPage, decodeGetPageRequest, encodeGetPageResponse, options["GetPage"]...)
	handle(m, "/count", gohttp.MethodGet, e.AccessCount, decodeAccessCountRequest, encodeJSONResponse, options["AccessCount"]...)
	return m
}

type errorResponse struct {
	Error string
}

// errorStatus maps an error to the HTTP status reported for it.
func errorStatus(err error) int {
	cause := errors.Cause(err)
	switch {
	case cause == storage.ErrNotFound:
		return gohttp.StatusNotFound
	case cause == storage.ErrDecode, cause == callargs.ErrUnsupported, cause == callargs.ErrMalformed,
		cause == cacheendpoint.ErrInvalidRequest:
		return gohttp.StatusBadRequest
	case fetch.IsRemoteFetchError(err):
		return gohttp.StatusBadGateway
	}
	return gohttp.StatusInternalServerError
}

func encodeError(_ context.Context, err error, w gohttp.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errorStatus(err))
	_ = json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

// failed writes the business logic failure of r, if there is one.
func failed(ctx context.Context, w gohttp.ResponseWriter, r interface{}) bool {
	if v, ok := r.(endpoint.Failer); ok && v.Failed() != nil {
		encodeError(ctx, v.Failed(), w)
		return true
	}
	return false
}

func encodeJSONResponse(ctx context.Context, w gohttp.ResponseWriter, r interface{}) error {
	if failed(ctx, w, r) {
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(r)
	return errors.WithStack(err)
}

func encodeReplayResponse(ctx context.Context, w gohttp.ResponseWriter, r interface{}) error {
	if failed(ctx, w, r) {
		return nil
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err := r.(cacheendpoint.ReplayResponse).WriteTo(w)
	return err
}

func encodeGetPageResponse(ctx context.Context, w gohttp.ResponseWriter, r interface{}) error {
	if failed(ctx, w, r) {
		return nil
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err := io.WriteString(w, r.(cacheendpoint.GetPageResponse).Content)
	return errors.WithStack(err)
}

type storeRequest struct {
	Value json.RawMessage `json:"value"`
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(cacheendpoint.ErrInvalidRequest, format, args...)
}

func decodeStoreRequest(_ context.Context, req *gohttp.Request) (i interface{}, e error) {
	decoder := json.NewDecoder(req.Body)
	decoder.DisallowUnknownFields()
	defer func() {
		err := req.Body.Close()
		if e != nil && err != nil {
			e = errors.Wrapf(e, "multiple errors: %s", err)
			return
		}
		if err != nil {
			e = err
		}
	}()
	var sr storeRequest
	if err := decoder.Decode(&sr); err != nil {
		return nil, invalid("unable to read request: %s", err)
	}
	if len(sr.Value) == 0 {
		return nil, invalid("missing value")
	}

	var raw interface{}
	vd := json.NewDecoder(bytes.NewReader(sr.Value))
	vd.UseNumber()
	if err := vd.Decode(&raw); err != nil {
		return nil, invalid("unable to read value: %s", err)
	}
	switch v := raw.(type) {
	case string:
		return cacheendpoint.StoreRequest{Value: v}, nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return cacheendpoint.StoreRequest{Value: n}, nil
		}
		if !strings.ContainsAny(v.String(), ".eE") {
			return nil, invalid("integer %s out of range", v)
		}
		f, err := v.Float64()
		if err != nil {
			return nil, invalid("invalid number %s", v)
		}
		return cacheendpoint.StoreRequest{Value: f}, nil
	}
	return nil, invalid("value must be a string or a number")
}

func decodeRetrieveRequest(_ context.Context, req *gohttp.Request) (interface{}, error) {
	q := req.URL.Query()
	key := q.Get("key")
	if key == "" {
		return nil, invalid("missing key")
	}
	return cacheendpoint.RetrieveRequest{Key: key, Decoder: q.Get("decoder")}, nil
}

func decodeReplayRequest(_ context.Context, req *gohttp.Request) (interface{}, error) {
	return cacheendpoint.ReplayRequest{Operation: req.URL.Query().Get("operation")}, nil
}

func decodeGetPageRequest(_ context.Context, req *gohttp.Request) (interface{}, error) {
	u := req.URL.Query().Get("url")
	if u == "" {
		return nil, invalid("missing url")
	}
	return cacheendpoint.GetPageRequest{URL: u}, nil
}

func decodeAccessCountRequest(_ context.Context, req *gohttp.Request) (interface{}, error) {
	u := req.URL.Query().Get("url")
	if u == "" {
		return nil, invalid("missing url")
	}
	return cacheendpoint.AccessCountRequest{URL: u}, nil
}

func handle(m *gohttp.ServeMux, path, method string, e endpoint.Endpoint,
	dec http.DecodeRequestFunc, enc http.EncodeResponseFunc, options ...http.ServerOption) {
	options = append([]http.ServerOption{http.ServerErrorEncoder(encodeError)}, options...)
	handler := http.NewServer(e, dec, enc, options...)
	hf := func(w gohttp.ResponseWriter, r *gohttp.Request) {
		if r.Method != method {
			w.WriteHeader(gohttp.StatusMethodNotAllowed)
			_, _ = fmt.Fprintf(w, "Invalid request method %s", r.Method)
			return
		}
		handler.ServeHTTP(w, r)
	}
	m.Handle(path, gohttp.HandlerFunc(hf))
}
