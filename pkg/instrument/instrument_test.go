package instrument_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwool/callcache/pkg/callargs"
	"github.com/rwool/callcache/pkg/instrument"
	"github.com/rwool/callcache/internal/keyvaluemock"
)

const op = "Test.Echo"

type echoRequest struct{ args callargs.Tuple }

func (r echoRequest) Arguments() callargs.Tuple { return r.args }

type echoResponse struct {
	v callargs.Value
	e error
}

func (r echoResponse) Result() callargs.Value { return r.v }
func (r echoResponse) Failed() error          { return r.e }

var errBoom = errors.New("boom")

func echo(_ context.Context, request interface{}) (interface{}, error) {
	args := request.(echoRequest).args
	if len(args) == 0 {
		return nil, errBoom
	}
	return echoResponse{v: args[0]}, nil
}

func TestCounting(t *testing.T) {
	t.Parallel()
	kv := keyvaluemock.New()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	e := instrument.Counting(kv, op)(echo)
	for i := 0; i < 5; i++ {
		_, err := e(ctx, echoRequest{args: callargs.Tuple{callargs.Int(int64(i))}})
		require.NoError(t, err, "Call should succeed.")
	}
	n, err := kv.GetCounter(ctx, instrument.CounterKey(op))
	require.NoError(t, err, "Reading the counter should succeed.")
	assert.Equal(t, int64(5), n, "Every call should be counted.")

	_, err = e(ctx, echoRequest{})
	assert.Equal(t, errBoom, err, "Failure should propagate unchanged.")
	n, err = kv.GetCounter(ctx, instrument.CounterKey(op))
	require.NoError(t, err, "Reading the counter should succeed.")
	assert.Equal(t, int64(6), n, "Failed calls should still be counted.")
}

func TestHistory(t *testing.T) {
	t.Parallel()
	kv := keyvaluemock.New()
	ctx := context.Background()

	e := instrument.History(kv, op)(echo)
	calls := []callargs.Tuple{
		{callargs.Text("a")},
		{callargs.Int(2), callargs.Bool(true)},
		{callargs.List(callargs.Float(1.5))},
	}
	for _, args := range calls {
		_, err := e(ctx, echoRequest{args: args})
		require.NoError(t, err, "Call should succeed.")
	}

	inputs, err := kv.Range(ctx, instrument.InputsKey(op), 0, -1)
	require.NoError(t, err, "Reading inputs should succeed.")
	outputs, err := kv.Range(ctx, instrument.OutputsKey(op), 0, -1)
	require.NoError(t, err, "Reading outputs should succeed.")
	require.Len(t, inputs, 3, "Every call should record its input.")
	require.Len(t, outputs, 3, "Every call should record its output.")

	for i, args := range calls {
		in, err := callargs.DecodeTuple(inputs[i])
		require.NoError(t, err, "Recorded input should decode.")
		assert.Equal(t, args, in, "Recorded input should match the call.")

		out, err := callargs.DecodeValue(outputs[i])
		require.NoError(t, err, "Recorded output should decode.")
		assert.Equal(t, args[0], out, "Recorded output should be at the same index.")
	}
}

func TestHistoryFailureLeavesInputOnly(t *testing.T) {
	t.Parallel()
	kv := keyvaluemock.New()
	ctx := context.Background()

	e := instrument.History(kv, op)(echo)
	_, err := e(ctx, echoRequest{args: callargs.Tuple{}})
	assert.Equal(t, errBoom, err, "Failure should propagate unchanged.")

	failer := instrument.History(kv, op)(func(context.Context, interface{}) (interface{}, error) {
		return echoResponse{e: errBoom}, nil
	})
	resp, err := failer(ctx, echoRequest{args: callargs.Tuple{callargs.Int(1)}})
	require.NoError(t, err, "Business failures are carried in the response.")
	assert.Equal(t, errBoom, resp.(echoResponse).Failed(), "Response should be returned unchanged.")

	inputs, err := kv.Range(ctx, instrument.InputsKey(op), 0, -1)
	require.NoError(t, err, "Reading inputs should succeed.")
	outputs, err := kv.Range(ctx, instrument.OutputsKey(op), 0, -1)
	require.NoError(t, err, "Reading outputs should succeed.")
	assert.Len(t, inputs, 2, "Failed calls should record their input.")
	assert.Empty(t, outputs, "Failed calls should not record an output.")
}

func TestHistoryRequiresArguments(t *testing.T) {
	t.Parallel()
	e := instrument.History(keyvaluemock.New(), op)(echo)
	_, err := e(context.Background(), "not recordable")
	assert.Error(t, err, "Requests without arguments cannot be recorded.")
}

func TestChainCountsOutsideHistory(t *testing.T) {
	t.Parallel()
	kv := keyvaluemock.New()
	ctx := context.Background()

	e := instrument.Chain(kv, op, echo)
	_, err := e(ctx, echoRequest{args: callargs.Tuple{callargs.Text("x")}})
	require.NoError(t, err, "Call should succeed.")

	// The recorder rejects this request, after the counter has run.
	_, err = e(ctx, 42)
	assert.Error(t, err, "Unrecordable request should fail.")

	n, err := kv.GetCounter(ctx, instrument.CounterKey(op))
	require.NoError(t, err, "Reading the counter should succeed.")
	assert.Equal(t, int64(2), n, "Count should include calls rejected by the recorder.")

	inputs, err := kv.Range(ctx, instrument.InputsKey(op), 0, -1)
	require.NoError(t, err, "Reading inputs should succeed.")
	assert.Len(t, inputs, 1, "History should only hold calls that reached it.")
}

// counter records the total added across all label values.
type counter struct {
	total  *float64
	labels []string
}

func newCounter() counter { return counter{total: new(float64)} }

func (c counter) With(labelValues ...string) metrics.Counter {
	return counter{total: c.total, labels: append(append([]string(nil), c.labels...), labelValues...)}
}

func (c counter) Add(delta float64) { *c.total += delta }

func TestMetrics(t *testing.T) {
	t.Parallel()
	calls, failures := newCounter(), newCounter()
	e := instrument.Metrics(calls, failures, op)(echo)

	_, _ = e(context.Background(), echoRequest{args: callargs.Tuple{callargs.Int(1)}})
	_, _ = e(context.Background(), echoRequest{})

	assert.Equal(t, 2.0, *calls.total, "Every call should be counted.")
	assert.Equal(t, 1.0, *failures.total, "Failed calls should be counted.")
}

func TestLogging(t *testing.T) {
	t.Parallel()
	var entries [][]interface{}
	logger := log.LoggerFunc(func(keyvals ...interface{}) error {
		entries = append(entries, keyvals)
		return nil
	})
	e := instrument.Logging(logger, op)(echo)

	_, err := e(context.Background(), echoRequest{args: callargs.Tuple{callargs.Int(1)}})
	require.NoError(t, err, "Call should succeed.")
	_, err = e(context.Background(), echoRequest{})
	assert.Equal(t, errBoom, err, "Logging should not change the error.")

	require.Len(t, entries, 2, "Every call should be logged.")
	assert.Equal(t, "DEBUG", entries[0][1], "Successful calls log at debug.")
	assert.Equal(t, "ERROR", entries[1][1], "Failed calls log at error.")
}
