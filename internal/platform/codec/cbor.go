// Package codec encodes state values and metadata for durable storage.
//
// Encoding uses CBOR Core Deterministic Encoding, so equal values always produce
// identical bytes. Decoded maps are map[string]any, matching what JSON decoding
// produces for values that enter through the CLI.
package codec

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// DecodeValue decodes data into a generic value. Empty input decodes to nil.
func DecodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var value any
	if err := decMode.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return value, nil
}

// DecodeMap decodes data into a string-keyed map. Empty input decodes to nil.
func DecodeMap(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := decMode.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}
	return out, nil
}

// Equal reports whether a and b have the same deterministic encoding. Values that
// cannot be encoded are never equal.
func Equal(a, b any) bool {
	left, err := encMode.Marshal(a)
	if err != nil {
		return false
	}
	right, err := encMode.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}
