//go:build sonic

package codec

import (
	"io"

	"github.com/bytedance/sonic"
)

// ConfigStd sorts map keys and escapes HTML like encoding/json does, so
// persisted objects are byte-identical across both builds.
var api = sonic.ConfigStd

var (
	Marshal   = api.Marshal
	Unmarshal = api.Unmarshal
)

func MarshalIndent(v any) ([]byte, error) {
	return api.MarshalIndent(v, "", "  ")
}

func NewDecoder(r io.Reader) Decoder {
	return api.NewDecoder(r)
}
