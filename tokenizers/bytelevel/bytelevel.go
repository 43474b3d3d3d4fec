// Package bytelevel implements the GPT-2 byte-to-unicode mapping, used to show byte tokens as printable
// text: every byte maps to one printable rune, so any byte sequence (even invalid UTF-8) renders as a
// readable string that can be parsed back exactly.
package bytelevel

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	byteToRune [256]rune
	runeToByte map[rune]byte
)

func init() {
	runeToByte = make(map[rune]byte, 256)

	// Printable bytes map to themselves, the others are shifted past 255 in byte order.
	n := 0
	for b := range 256 {
		if (b >= '!' && b <= '~') || (b >= 0xa1 && b <= 0xac) || (b >= 0xae && b <= 0xff) {
			byteToRune[b] = rune(b)
		} else {
			byteToRune[b] = rune(256 + n)
			n++
		}
		runeToByte[byteToRune[b]] = byte(b)
	}
}

// Rune returns the printable rune representing b.
func Rune(b byte) rune {
	return byteToRune[b]
}

// Render returns the printable representation of data: one rune per byte.
func Render(data []byte) string {
	var sb strings.Builder
	sb.Grow(2 * len(data))
	for _, b := range data {
		sb.WriteRune(byteToRune[b])
	}
	return sb.String()
}

// Parse reverses Render. It fails if s contains a rune that doesn't represent a byte.
func Parse(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i, r := range s {
		b, ok := runeToByte[r]
		if !ok {
			return nil, errors.Errorf("rune %q at byte %d of %q doesn't represent a byte", r, i, s)
		}
		out = append(out, b)
	}
	return out, nil
}
