// Package random generates lobby codes and signing secrets.
package random

import "crypto/rand"

// Random produces the unpredictable values the server hands out
type Random interface {
	// String returns length characters drawn uniformly from alphabet
	String(length int, alphabet string) string
	// Secret returns n random bytes for keying signatures
	Secret(n int) []byte
}

// CryptoRandom draws from crypto/rand
type CryptoRandom struct{}

// New creates a new CryptoRandom
func New() *CryptoRandom {
	return &CryptoRandom{}
}

// String samples bytes and discards those above the largest multiple of the
// alphabet size, so every character is equally likely.
func (r *CryptoRandom) String(length int, alphabet string) string {
	if length <= 0 || len(alphabet) == 0 || len(alphabet) > 256 {
		return ""
	}
	limit := 256 - 256%len(alphabet)

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		_, _ = rand.Read(buf)
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out)
}

// Secret returns n bytes from crypto/rand
func (r *CryptoRandom) Secret(n int) []byte {
	if n <= 0 {
		return nil
	}
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}
