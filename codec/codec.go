// Package codec converts stream values to and from their data payloads and
// defines the payload shape used to carry a serialized error.
package codec

import (
	"encoding/json"
)

// Codec serializes values of type T into a data payload and back.
type Codec[T any] interface {
	Serialize(v T) ([]byte, error)
	Deserialize(data []byte) (T, error)
}

// JSON returns a Codec backed by encoding/json.
func JSON[T any]() Codec[T] { return jsonCodec[T]{} }

type jsonCodec[T any] struct{}

func (jsonCodec[T]) Serialize(v T) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec[T]) Deserialize(data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

// Funcs adapts a serialize/deserialize function pair to a Codec.
func Funcs[T any](ser func(T) ([]byte, error), de func([]byte) (T, error)) Codec[T] {
	return funcCodec[T]{ser: ser, de: de}
}

type funcCodec[T any] struct {
	ser func(T) ([]byte, error)
	de  func([]byte) (T, error)
}

func (c funcCodec[T]) Serialize(v T) ([]byte, error)      { return c.ser(v) }
func (c funcCodec[T]) Deserialize(data []byte) (T, error) { return c.de(data) }
