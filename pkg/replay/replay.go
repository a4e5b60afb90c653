// Package replay reconstructs the recorded call history of an operation.
package replay

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/rwool/callcache/pkg/callargs"
	"github.com/rwool/callcache/pkg/instrument"
	"github.com/rwool/callcache/pkg/service/keyvalue"
)

// Resolver renders the recorded output of a call for display.
type Resolver interface {
	Resolve(ctx context.Context, args callargs.Tuple, output callargs.Value) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, args callargs.Tuple, output callargs.Value) (string, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, args callargs.Tuple, output callargs.Value) (string, error) {
	return f(ctx, args, output)
}

// displayResolver renders outputs as recorded.
var displayResolver = ResolverFunc(func(_ context.Context, _ callargs.Tuple, output callargs.Value) (string, error) {
	return output.Display(), nil
})

// Call is one recorded call.
type Call struct {
	Operation string
	Args      callargs.Tuple
	Output    callargs.Value
	// Display is the resolved rendering of Output.
	Display string
}

// String renders the call as "<operation>(*<args>) -> <output>".
func (c Call) String() string {
	return fmt.Sprintf("%s(*%s) -> %s", c.Operation, c.Args, c.Display)
}

// Report is the reconstructed history of an operation.
type Report struct {
	Operation string
	// Inputs is the number of recorded inputs, including calls that never
	// recorded an output.
	Inputs int
	// Calls holds the paired calls in call order.
	Calls []Call
}

// Lines returns one rendered line per paired call.
func (r Report) Lines() []string {
	out := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		out[i] = c.String()
	}
	return out
}

// WriteTo writes a header line followed by one line per call.
func (r Report) WriteTo(w io.Writer) (int64, error) {
	var total int64
	n, err := fmt.Fprintf(w, "%s was called %d times:\n", r.Operation, r.Inputs)
	total += int64(n)
	if err != nil {
		return total, errors.WithStack(err)
	}
	for _, c := range r.Calls {
		n, err = fmt.Fprintln(w, c.String())
		total += int64(n)
		if err != nil {
			return total, errors.WithStack(err)
		}
	}
	return total, nil
}

// Engine reads recorded histories.
type Engine struct {
	kv        keyvalue.KeyValue
	resolvers map[string]Resolver
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolver renders outputs of operation with r.
func WithResolver(operation string, r Resolver) Option {
	return func(e *Engine) {
		e.resolvers[operation] = r
	}
}

// New returns an Engine reading histories from kv.
func New(kv keyvalue.KeyValue, opts ...Option) *Engine {
	e := &Engine{
		kv:        kv,
		resolvers: make(map[string]Resolver),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Replay reads the history of operation.
//
// Inputs and outputs are paired by index. When fewer outputs than inputs were
// recorded, as happens when calls fail, only the first min(inputs, outputs)
// pairs are reported.
func (e *Engine) Replay(ctx context.Context, operation string) (Report, error) {
	inputs, err := e.kv.Range(ctx, instrument.InputsKey(operation), 0, -1)
	if err != nil {
		return Report{}, errors.Wrapf(err, "unable to read inputs of %s", operation)
	}
	outputs, err := e.kv.Range(ctx, instrument.OutputsKey(operation), 0, -1)
	if err != nil {
		return Report{}, errors.Wrapf(err, "unable to read outputs of %s", operation)
	}

	n := len(inputs)
	if len(outputs) < n {
		n = len(outputs)
	}

	resolver, ok := e.resolvers[operation]
	if !ok {
		resolver = displayResolver
	}

	report := Report{
		Operation: operation,
		Inputs:    len(inputs),
		Calls:     make([]Call, 0, n),
	}
	for i := 0; i < n; i++ {
		args, err := callargs.DecodeTuple(inputs[i])
		if err != nil {
			return Report{}, errors.Wrapf(err, "input %d of %s", i, operation)
		}
		output, err := callargs.DecodeValue(outputs[i])
		if err != nil {
			return Report{}, errors.Wrapf(err, "output %d of %s", i, operation)
		}
		display, err := resolver.Resolve(ctx, args, output)
		if err != nil {
			return Report{}, errors.Wrapf(err, "unable to resolve output %d of %s", i, operation)
		}
		report.Calls = append(report.Calls, Call{
			Operation: operation,
			Args:      args,
			Output:    output,
			Display:   display,
		})
	}
	return report, nil
}
