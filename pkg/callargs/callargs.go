// Package callargs implements a tagged encoding for recorded call arguments
// and results.
//
// Records are read back from shared storage, so decoding treats them as
// untrusted input: only the value kinds defined here can be reconstructed and
// anything else is rejected with ErrMalformed. Nothing in a record is ever
// evaluated.
package callargs

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind identifies the type of a Value.
type Kind string

// Supported value kinds.
const (
	KindText  Kind = "text"
	KindBytes Kind = "bytes"
	KindInt   Kind = "int"
	KindFloat Kind = "float"
	KindBool  Kind = "bool"
	KindList  Kind = "list"
)

// MaxDepth is the deepest list nesting accepted when decoding.
const MaxDepth = 32

var (
	// ErrUnsupported is returned when a Go value has no Value representation.
	ErrUnsupported = errors.New("unsupported argument type")
	// ErrMalformed is returned when a record cannot be decoded.
	ErrMalformed = errors.New("malformed argument record")
)

// Value is a single tagged argument or result.
//
// Exactly one payload field is meaningful, selected by Kind.
type Value struct {
	Kind  Kind     `json:"k"`
	Text  *string  `json:"s,omitempty"`
	Bytes []byte   `json:"b,omitempty"`
	Int   *int64   `json:"i,omitempty"`
	Float *float64 `json:"f,omitempty"`
	Bool  *bool    `json:"t,omitempty"`
	List  []Value  `json:"l,omitempty"`
}

// Text returns a text Value.
func Text(s string) Value { return Value{Kind: KindText, Text: &s} }

// Bytes returns a raw bytes Value.
func Bytes(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{Kind: KindBytes, Bytes: b}
}

// Int returns an integer Value.
func Int(i int64) Value { return Value{Kind: KindInt, Int: &i} }

// Float returns a floating point Value.
func Float(f float64) Value { return Value{Kind: KindFloat, Float: &f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: &b} }

// List returns a list Value holding vs.
func List(vs ...Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{Kind: KindList, List: vs}
}

// Of converts a Go value to a Value.
//
// Strings, byte slices, integers, floats, booleans and slices of those are
// supported. A Value is returned unchanged.
func Of(v interface{}) (Value, error) {
	switch t := v.(type) {
	case Value:
		return t, nil
	case string:
		return Text(t), nil
	case []byte:
		return Bytes(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint:
		if uint64(t) > math.MaxInt64 {
			return Value{}, errors.Wrapf(ErrUnsupported, "integer %d overflows int64", t)
		}
		return Int(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return Value{}, errors.Wrapf(ErrUnsupported, "integer %d overflows int64", t)
		}
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]Value, rv.Len())
		for i := range out {
			e, err := Of(rv.Index(i).Interface())
			if err != nil {
				return Value{}, err
			}
			out[i] = e
		}
		return List(out...), nil
	}
	return Value{}, errors.Wrapf(ErrUnsupported, "%T", v)
}

// Interface returns the Go value held by v: string, []byte, int64, float64,
// bool or []interface{}.
func (v Value) Interface() interface{} {
	switch v.Kind {
	case KindText:
		return *v.Text
	case KindBytes:
		return v.Bytes
	case KindInt:
		return *v.Int
	case KindFloat:
		return *v.Float
	case KindBool:
		return *v.Bool
	case KindList:
		out := make([]interface{}, len(v.List))
		for i, e := range v.List {
			out[i] = e.Interface()
		}
		return out
	}
	return nil
}

// String renders v as a literal: text and bytes are quoted, lists are
// bracketed.
func (v Value) String() string {
	switch v.Kind {
	case KindText:
		return strconv.Quote(*v.Text)
	case KindBytes:
		return "b" + strconv.Quote(string(v.Bytes))
	case KindInt:
		return strconv.FormatInt(*v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(*v.Float, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(*v.Bool)
	case KindList:
		parts := make([]string, len(v.List))
		for i, e := range v.List {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "<invalid>"
}

// Display renders v for human output. It is String except that text is not
// quoted.
func (v Value) Display() string {
	if v.Kind == KindText && v.Text != nil {
		return *v.Text
	}
	return v.String()
}

// Validate reports whether v is well formed: its payload matches its kind and
// lists are not nested deeper than MaxDepth.
func (v Value) Validate() error {
	return v.validate(0)
}

func (v Value) validate(depth int) error {
	if depth > MaxDepth {
		return errors.Wrapf(ErrMalformed, "nesting deeper than %d", MaxDepth)
	}
	set := 0
	if v.Text != nil {
		set++
	}
	if v.Bytes != nil {
		set++
	}
	if v.Int != nil {
		set++
	}
	if v.Float != nil {
		set++
	}
	if v.Bool != nil {
		set++
	}
	if v.List != nil {
		set++
	}

	var ok bool
	switch v.Kind {
	case KindText:
		ok = v.Text != nil
	case KindBytes:
		ok = v.Bytes != nil || set == 0
	case KindInt:
		ok = v.Int != nil
	case KindFloat:
		ok = v.Float != nil
	case KindBool:
		ok = v.Bool != nil
	case KindList:
		ok = v.List != nil || set == 0
		for _, e := range v.List {
			if err := e.validate(depth + 1); err != nil {
				return err
			}
		}
	default:
		return errors.Wrapf(ErrMalformed, "unknown kind %q", v.Kind)
	}
	if !ok || set > 1 {
		return errors.Wrapf(ErrMalformed, "payload does not match kind %q", v.Kind)
	}
	return nil
}

// normalize fills in empty payloads dropped by omitempty.
func (v *Value) normalize() {
	switch v.Kind {
	case KindBytes:
		if v.Bytes == nil {
			v.Bytes = []byte{}
		}
	case KindList:
		if v.List == nil {
			v.List = []Value{}
		}
		for i := range v.List {
			v.List[i].normalize()
		}
	}
}

// Tuple is an ordered list of call arguments.
type Tuple []Value

// TupleOf converts each of args with Of.
func TupleOf(args ...interface{}) (Tuple, error) {
	t := make(Tuple, len(args))
	for i, a := range args {
		v, err := Of(a)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i)
		}
		t[i] = v
	}
	return t, nil
}

// String renders t as a parenthesized tuple. A single element keeps its
// trailing comma, e.g. ("foo",).
func (t Tuple) String() string {
	parts := make([]string, len(t))
	for i, v := range t {
		parts[i] = v.String()
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// EncodeValue encodes v.
func EncodeValue(v Value) ([]byte, error) {
	if err := v.validate(0); err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	return b, errors.Wrap(err, "unable to encode value")
}

// DecodeValue decodes a record written by EncodeValue.
func DecodeValue(b []byte) (Value, error) {
	var v Value
	if err := strictDecode(b, &v); err != nil {
		return Value{}, err
	}
	if err := v.validate(0); err != nil {
		return Value{}, err
	}
	v.normalize()
	return v, nil
}

// EncodeTuple encodes t.
func EncodeTuple(t Tuple) ([]byte, error) {
	if t == nil {
		t = Tuple{}
	}
	for i, v := range t {
		if err := v.validate(1); err != nil {
			return nil, errors.Wrapf(err, "argument %d", i)
		}
	}
	b, err := json.Marshal(t)
	return b, errors.Wrap(err, "unable to encode arguments")
}

// DecodeTuple decodes a record written by EncodeTuple.
func DecodeTuple(b []byte) (Tuple, error) {
	var t Tuple
	if err := strictDecode(b, &t); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.Wrap(ErrMalformed, "arguments are not a list")
	}
	for i := range t {
		if err := t[i].validate(1); err != nil {
			return nil, errors.Wrapf(err, "argument %d", i)
		}
		t[i].normalize()
	}
	return t, nil
}

func strictDecode(b []byte, into interface{}) error {
	decoder := json.NewDecoder(bytes.NewReader(b))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return errors.Wrap(ErrMalformed, err.Error())
	}
	if _, err := decoder.Token(); err != io.EOF {
		return errors.Wrap(ErrMalformed, "trailing data after record")
	}
	return nil
}

