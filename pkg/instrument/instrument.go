// Package instrument provides go-kit endpoint middlewares that count and
// record calls to an operation in a key value store.
//
// Counting and history recording are independent middlewares. Chain applies
// them in a fixed order: counting is outermost, so the invocation count
// includes every attempted call, while the history only holds calls that
// reached the recorder. Both record their side effect before invoking the
// wrapped endpoint and never undo it when that endpoint fails.
package instrument

import (
	"context"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/pkg/errors"

	"github.com/rwool/callcache/pkg/callargs"
	"github.com/rwool/callcache/pkg/service/keyvalue"
)

// Arguer is implemented by requests whose arguments can be recorded.
type Arguer interface {
	Arguments() callargs.Tuple
}

// Resulter is implemented by responses whose result can be recorded.
type Resulter interface {
	Result() callargs.Value
}

// CounterKey returns the key holding the invocation count for operation.
func CounterKey(operation string) string { return operation }

// InputsKey returns the key of the list of recorded inputs for operation.
func InputsKey(operation string) string { return operation + ":inputs" }

// OutputsKey returns the key of the list of recorded outputs for operation.
func OutputsKey(operation string) string { return operation + ":outputs" }

// Counting returns a middleware that increments the invocation counter for
// operation before each call.
func Counting(kv keyvalue.KeyValue, operation string) endpoint.Middleware {
	key := CounterKey(operation)
	return func(next endpoint.Endpoint) endpoint.Endpoint {
		return func(ctx context.Context, request interface{}) (interface{}, error) {
			if _, err := kv.IncrementCounter(ctx, key); err != nil {
				return nil, errors.Wrapf(err, "unable to count call to %s", operation)
			}
			return next(ctx, request)
		}
	}
}

// History returns a middleware that appends the arguments of each call to
// the inputs list of operation and, if the call succeeds, its result to the
// outputs list.
//
// Requests must implement Arguer and responses Resulter. A response that
// implements endpoint.Failer and reports a failure is treated as a failed
// call.
func History(kv keyvalue.KeyValue, operation string) endpoint.Middleware {
	inputs, outputs := InputsKey(operation), OutputsKey(operation)
	return func(next endpoint.Endpoint) endpoint.Endpoint {
		return func(ctx context.Context, request interface{}) (interface{}, error) {
			a, ok := request.(Arguer)
			if !ok {
				return nil, errors.Errorf("request %T for %s has no recordable arguments", request, operation)
			}
			in, err := callargs.EncodeTuple(a.Arguments())
			if err != nil {
				return nil, errors.Wrapf(err, "unable to record arguments for %s", operation)
			}
			if err := kv.Append(ctx, inputs, in); err != nil {
				return nil, errors.Wrapf(err, "unable to record arguments for %s", operation)
			}

			response, err := next(ctx, request)
			if err != nil {
				return response, err
			}
			if f, ok := response.(endpoint.Failer); ok && f.Failed() != nil {
				return response, nil
			}

			r, ok := response.(Resulter)
			if !ok {
				return response, errors.Errorf("response %T for %s has no recordable result", response, operation)
			}
			out, err := callargs.EncodeValue(r.Result())
			if err != nil {
				return response, errors.Wrapf(err, "unable to record result for %s", operation)
			}
			if err := kv.Append(ctx, outputs, out); err != nil {
				return response, errors.Wrapf(err, "unable to record result for %s", operation)
			}
			return response, nil
		}
	}
}

// Logging returns a middleware that logs every call to operation.
func Logging(logger log.Logger, operation string) endpoint.Middleware {
	return func(next endpoint.Endpoint) endpoint.Endpoint {
		return func(ctx context.Context, request interface{}) (response interface{}, err error) {
			defer func(begin time.Time) {
				lvl, failure := "DEBUG", err
				if f, ok := response.(endpoint.Failer); ok && failure == nil {
					failure = f.Failed()
				}
				if failure != nil {
					lvl = "ERROR"
				}
				_ = logger.Log("LEVEL", lvl, "MESSAGE", "call finished",
					"operation", operation, "took", time.Since(begin), "err", failure)
			}(time.Now())
			return next(ctx, request)
		}
	}
}

// Metrics returns a middleware that adds one to calls for every call to
// operation and one to failures for every failed call. The counters receive
// an "operation" label.
func Metrics(calls, failures metrics.Counter, operation string) endpoint.Middleware {
	return func(next endpoint.Endpoint) endpoint.Endpoint {
		return func(ctx context.Context, request interface{}) (interface{}, error) {
			calls.With("operation", operation).Add(1)
			response, err := next(ctx, request)
			failed := err != nil
			if f, ok := response.(endpoint.Failer); ok && f.Failed() != nil {
				failed = true
			}
			if failed {
				failures.With("operation", operation).Add(1)
			}
			return response, err
		}
	}
}

// Chain wraps next with counting and then history recording for operation.
func Chain(kv keyvalue.KeyValue, operation string, next endpoint.Endpoint) endpoint.Endpoint {
	return endpoint.Chain(
		Counting(kv, operation),
		History(kv, operation),
	)(next)
}
