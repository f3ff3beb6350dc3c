//go:build !sonic

package codec

import (
	"io"

	"github.com/goccy/go-json"
)

var (
	Marshal   = json.Marshal
	Unmarshal = json.Unmarshal
)

func MarshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

func NewDecoder(r io.Reader) Decoder {
	return json.NewDecoder(r)
}
