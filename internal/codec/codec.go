// Package codec is the single JSON entry point for the module. The default
// build uses goccy/go-json; `-tags sonic` switches to bytedance/sonic.
package codec

import (
	stdjson "encoding/json"
	"io"
)

// Number is what decoders produce for JSON numbers once UseNumber is set.
// Both backends decode into the standard library type.
type Number = stdjson.Number

// Decoder is the subset of a streaming decoder the module relies on
type Decoder interface {
	Decode(v any) error
	UseNumber()
}

// DecodeNumbers decodes data into v keeping numbers as Number so that no
// precision is lost before fingerprinting.
func DecodeNumbers(r io.Reader, v any) error {
	dec := NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(v)
}
