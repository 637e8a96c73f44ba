// Package codec converts binary payloads to and from the base64 text form
// used by every persistence path.
package codec

import (
	"encoding/base64"
	"strings"

	"github.com/kermanimohammad/SensorPlus-Client/internal/twinerr"
)

// ChunkSize is the number of input bytes encoded per step. It is a multiple
// of 3 so chunk boundaries never introduce padding and the output equals a
// one-shot encoding of the whole buffer.
const ChunkSize = 0x8000 / 3 * 3

// Encode returns the standard base64 encoding of b.
func Encode(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(base64.StdEncoding.EncodedLen(len(b)))
	buf := make([]byte, base64.StdEncoding.EncodedLen(ChunkSize))
	for i := 0; i < len(b); i += ChunkSize {
		end := i + ChunkSize
		if end > len(b) {
			end = len(b)
		}
		n := base64.StdEncoding.EncodedLen(end - i)
		base64.StdEncoding.Encode(buf[:n], b[i:end])
		sb.Write(buf[:n])
	}
	return sb.String()
}

// Decode is the inverse of Encode. Whitespace (line breaks from editors)
// is ignored; anything else outside the base64 alphabet yields a
// *twinerr.FormatError.
func Decode(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &twinerr.FormatError{What: "base64 payload", Err: err}
	}
	return out, nil
}
