// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Value is the result of reading a [Reader]: a possibly-absent T. Ok is
// false when the underlying source had nothing to offer, as distinct
// from the source failing outright, which a Reader reports as an error
// instead.
type Value[T any] struct {
	V  T
	Ok bool
}

// ValueOf wraps v as a present Value.
func ValueOf[T any](v T) Value[T] {
	return Value[T]{V: v, Ok: true}
}

// Reader reads a single configuration value of type T.
type Reader[T any] interface {
	Read(context.Context) (Value[T], error)
}

// ReaderFunc is a func type implementation of [Reader].
type ReaderFunc[T any] func(context.Context) (Value[T], error)

// Read implements the [Reader] interface.
func (f ReaderFunc[T]) Read(ctx context.Context) (Value[T], error) {
	return f(ctx)
}

// EmptyReader returns a [Reader] that never has a value to offer.
func EmptyReader[T any]() Reader[T] {
	return ReaderFunc[T](func(context.Context) (Value[T], error) {
		return Value[T]{}, nil
	})
}

// Env reads an environment variable. The Value is absent if the
// variable is unset.
func Env(key string) Reader[string] {
	return ReaderFunc[string](func(context.Context) (Value[string], error) {
		v, ok := os.LookupEnv(key)
		if !ok {
			return Value[string]{}, nil
		}
		return ValueOf(v), nil
	})
}

// ReaderOf reads the entirety of r into memory as a single Value.
func ReaderOf(r io.Reader) Reader[[]byte] {
	return ReaderFunc[[]byte](func(context.Context) (Value[[]byte], error) {
		b, err := io.ReadAll(r)
		if err != nil {
			return Value[[]byte]{}, err
		}
		return ValueOf(b), nil
	})
}

// Default wraps r so that an absent Value is replaced with fallback.
func Default[T any](fallback T, r Reader[T]) Reader[T] {
	return ReaderFunc[T](func(ctx context.Context) (Value[T], error) {
		v, err := r.Read(ctx)
		if err != nil {
			return Value[T]{}, err
		}
		if !v.Ok {
			return ValueOf(fallback), nil
		}
		return v, nil
	})
}

// Map transforms the value produced by r with f. An absent or erroring
// r short-circuits without calling f.
func Map[A, B any](r Reader[A], f func(context.Context, A) (B, error)) Reader[B] {
	return ReaderFunc[B](func(ctx context.Context) (Value[B], error) {
		v, err := r.Read(ctx)
		if err != nil {
			return Value[B]{}, err
		}
		if !v.Ok {
			return Value[B]{}, nil
		}
		b, err := f(ctx, v.V)
		if err != nil {
			return Value[B]{}, err
		}
		return ValueOf(b), nil
	})
}

// Read reads r and unwraps its Value, returning T's zero value if r has
// nothing to offer. Callers that need to distinguish absence from the
// zero value should call r.Read directly.
func Read[T any](ctx context.Context, r Reader[T]) (T, error) {
	v, err := r.Read(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return v.V, nil
}

// Must reads r and panics if it errors or has no value to offer. Use
// for configuration with no sensible default.
func Must[T any](ctx context.Context, r Reader[T]) T {
	v, err := r.Read(ctx)
	if err != nil {
		panic(err)
	}
	if !v.Ok {
		panic("config: required value not set")
	}
	return v.V
}

// MustOr reads r and panics if it errors, returning fallback if r has
// nothing to offer.
func MustOr[T any](ctx context.Context, fallback T, r Reader[T]) T {
	v, err := r.Read(ctx)
	if err != nil {
		panic(err)
	}
	if !v.Ok {
		return fallback
	}
	return v.V
}

// Int64FromString parses r's string as a base-10 int64.
func Int64FromString(r Reader[string]) Reader[int64] {
	return Map(r, func(_ context.Context, s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	})
}

// Int64FromBytes decodes r's bytes as a fixed-width int64 using order.
func Int64FromBytes(order binary.ByteOrder, r Reader[[]byte]) Reader[int64] {
	return Map(r, func(_ context.Context, b []byte) (int64, error) {
		return int64(order.Uint64(b)), nil
	})
}

// UnmarshalJSON decodes r's bytes as JSON into T.
func UnmarshalJSON[T any](r Reader[[]byte]) Reader[T] {
	return Map(r, func(_ context.Context, b []byte) (T, error) {
		var v T
		err := json.Unmarshal(b, &v)
		return v, err
	})
}

// UnmarshalYAML decodes r's bytes as YAML into T.
func UnmarshalYAML[T any](r Reader[[]byte]) Reader[T] {
	return Map(r, func(_ context.Context, b []byte) (T, error) {
		var v T
		err := yaml.Unmarshal(b, &v)
		return v, err
	})
}
