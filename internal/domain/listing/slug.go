package listing

import (
	"crypto/rand"
	"fmt"
)

// slugAlphabet is URL-safe and unambiguous (no 0/O, 1/l/I).
const slugAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"

const slugLength = 10

// newSlug generates a random URL-safe listing identifier.
func newSlug() (string, error) {
	buf := make([]byte, slugLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("slug generation: %w", err)
	}
	for i, b := range buf {
		buf[i] = slugAlphabet[int(b)%len(slugAlphabet)]
	}
	return string(buf), nil
}
