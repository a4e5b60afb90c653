package storage

import (
	"encoding/binary"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/rwool/callcache/pkg/callargs"
)

// Decoder converts the raw bytes read for a key.
//
// A Decoder is handed whatever the store returned, including nil for an
// absent key. It must either handle absence or fail with ErrNotFound, and
// must fail with ErrDecode for bytes it cannot convert.
type Decoder func(data []byte) (interface{}, error)

// IntSize is the length of an encoded integer.
const IntSize = 8

// Raw returns the stored bytes unmodified.
func Raw(data []byte) (interface{}, error) {
	if data == nil {
		return nil, ErrNotFound
	}
	return data, nil
}

// Text decodes UTF-8 text.
func Text(data []byte) (interface{}, error) {
	if data == nil {
		return nil, ErrNotFound
	}
	if !utf8.Valid(data) {
		return nil, errors.Wrap(ErrDecode, "invalid UTF-8")
	}
	return string(data), nil
}

// Int decodes an int64 written as 8 bytes in big-endian (network) byte
// order, two's complement.
func Int(data []byte) (interface{}, error) {
	if data == nil {
		return nil, ErrNotFound
	}
	if len(data) != IntSize {
		return nil, errors.Wrapf(ErrDecode, "integer must be %d bytes, got %d", IntSize, len(data))
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

// Float decodes a float64 written as decimal text.
func Float(data []byte) (interface{}, error) {
	if data == nil {
		return nil, ErrNotFound
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return nil, errors.Wrap(ErrDecode, err.Error())
	}
	return f, nil
}

// DecoderByName returns the standard decoder called name: raw, text, int or
// float. The empty name selects Raw.
func DecoderByName(name string) (Decoder, bool) {
	switch name {
	case "", "raw":
		return Raw, true
	case "text":
		return Text, true
	case "int":
		return Int, true
	case "float":
		return Float, true
	}
	return nil, false
}

// decoderFor returns the decoder that reverses encode for values of kind k.
func decoderFor(k callargs.Kind) Decoder {
	switch k {
	case callargs.KindText:
		return Text
	case callargs.KindInt:
		return Int
	case callargs.KindFloat:
		return Float
	}
	return Raw
}

// encode converts v to the bytes written to the store.
func encode(v callargs.Value) ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	switch v.Kind {
	case callargs.KindText:
		return []byte(*v.Text), nil
	case callargs.KindBytes:
		return v.Bytes, nil
	case callargs.KindInt:
		b := make([]byte, IntSize)
		binary.BigEndian.PutUint64(b, uint64(*v.Int))
		return b, nil
	case callargs.KindFloat:
		if math.IsNaN(*v.Float) || math.IsInf(*v.Float, 0) {
			return nil, errors.Wrapf(callargs.ErrUnsupported, "float %v", *v.Float)
		}
		return []byte(strconv.FormatFloat(*v.Float, 'g', -1, 64)), nil
	}
	return nil, errors.Wrapf(callargs.ErrUnsupported, "cannot store %s values", v.Kind)
}
