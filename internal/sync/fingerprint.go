package sync

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/fomcagent/datasync/internal/codec"
)

const fingerprintLen = 16

// Fingerprint digests the canonical form of a decoded JSON value. Equal
// logical content yields the same fingerprint whatever the key order.
func Fingerprint(v any) (string, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return hashBytes(canonical), nil
}

// hashBytes is the truncated sha256 hex digest used for content_hash
func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// Canonicalize writes v as compact JSON with object keys sorted at every
// level. Numbers decoded as codec.Number keep their literal text.
func Canonicalize(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case codec.Number:
		buf.WriteString(t.String())
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("canonicalize: unsupported number %v", t)
		}
		buf.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case int:
		buf.WriteString(strconv.Itoa(t))
	case int64:
		buf.WriteString(strconv.FormatInt(t, 10))
	case string:
		return writeString(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		// typed values go through a JSON round trip so only the generic shapes remain
		data, err := codec.Marshal(t)
		if err != nil {
			return fmt.Errorf("canonicalize: %w", err)
		}
		var generic any
		if err := codec.DecodeNumbers(bytes.NewReader(data), &generic); err != nil {
			return fmt.Errorf("canonicalize: %w", err)
		}
		return writeCanonical(buf, generic)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	data, err := codec.Marshal(s)
	if err != nil {
		return fmt.Errorf("canonicalize: %w", err)
	}
	buf.Write(data)
	return nil
}
