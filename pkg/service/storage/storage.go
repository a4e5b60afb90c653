// Package storage implements storing arbitrary values under generated keys
// and reading them back with typed decoders.
package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rwool/callcache/pkg/callargs"
	"github.com/rwool/callcache/pkg/service/keyvalue"
)

var (
	// ErrNotFound is returned when a key has no stored value.
	ErrNotFound = errors.New("key not found")
	// ErrDecode is returned when stored bytes cannot be decoded.
	ErrDecode = errors.New("unable to decode stored value")
	// ErrCollision is returned when no unused key could be generated.
	ErrCollision = errors.New("generated key already in use")
)

// maxKeyAttempts bounds how many keys Store generates before giving up.
const maxKeyAttempts = 3

// IDGenerator produces identifiers for newly stored values.
type IDGenerator interface {
	NewID() string
}

// IDGeneratorFunc adapts a function to the IDGenerator interface.
type IDGeneratorFunc func() string

// NewID calls f.
func (f IDGeneratorFunc) NewID() string { return f() }

// UUIDGenerator generates random (version 4) UUIDs.
type UUIDGenerator struct{}

// NewID returns a new random UUID string.
func (UUIDGenerator) NewID() string { return uuid.New().String() }

// Storage stores values under generated keys.
type Storage struct {
	kv  keyvalue.KeyValue
	gen IDGenerator
}

// New returns a Storage backed by kv. A nil gen uses UUIDGenerator.
func New(kv keyvalue.KeyValue, gen IDGenerator) *Storage {
	if gen == nil {
		gen = UUIDGenerator{}
	}
	return &Storage{kv: kv, gen: gen}
}

// Store writes v under a fresh key and returns the key.
//
// Text, bytes, int and float values can be stored. Keys are written only if
// unused; a generated key that already exists is discarded and a new one is
// tried.
func (s *Storage) Store(ctx context.Context, v callargs.Value) (string, error) {
	data, err := encode(v)
	if err != nil {
		return "", err
	}
	for i := 0; i < maxKeyAttempts; i++ {
		key := s.gen.NewID()
		ok, err := s.kv.StoreNew(ctx, key, data)
		if err != nil {
			return "", errors.Wrap(err, "unable to store value")
		}
		if ok {
			return key, nil
		}
	}
	return "", errors.Wrapf(ErrCollision, "after %d attempts", maxKeyAttempts)
}

// Retrieve reads the value stored at key.
//
// With a nil decoder the raw bytes are returned and an absent key fails with
// ErrNotFound. Otherwise the result of dec is returned.
func (s *Storage) Retrieve(ctx context.Context, key string, dec Decoder) (interface{}, error) {
	data, err := s.kv.Retrieve(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "unable to retrieve value")
	}
	if dec == nil {
		dec = Raw
	}
	v, err := dec(data)
	return v, errors.Wrapf(err, "key %q", key)
}

// RetrieveText reads the value at key as UTF-8 text.
func (s *Storage) RetrieveText(ctx context.Context, key string) (string, error) {
	v, err := s.Retrieve(ctx, key, Text)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// RetrieveInt reads the value at key as an integer.
func (s *Storage) RetrieveInt(ctx context.Context, key string) (int64, error) {
	v, err := s.Retrieve(ctx, key, Int)
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// RetrieveFloat reads the value at key as a float.
func (s *Storage) RetrieveFloat(ctx context.Context, key string) (float64, error) {
	v, err := s.Retrieve(ctx, key, Float)
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// Resolve renders the output of a recorded Store call.
//
// The output is the key the value was stored under; the value is read back
// and decoded according to the kind of the stored argument. Outputs that are
// not text, and calls without exactly one argument, render as recorded.
func (s *Storage) Resolve(ctx context.Context, args callargs.Tuple, output callargs.Value) (string, error) {
	if output.Kind != callargs.KindText || len(args) != 1 {
		return output.Display(), nil
	}
	v, err := s.Retrieve(ctx, *output.Text, decoderFor(args[0].Kind))
	if err != nil {
		return "", err
	}
	switch t := v.(type) {
	case []byte:
		return callargs.Bytes(t).String(), nil
	case string:
		return t, nil
	}
	dv, err := callargs.Of(v)
	if err != nil {
		return "", err
	}
	return dv.Display(), nil
}
