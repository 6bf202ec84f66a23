package assemblyline

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Sha256 is the lowercase hex sha256 of a file, as used by the API to
// address submitted content.
type Sha256 string

// ParseSha256 validates s as a sha256 hex digest. Surrounding whitespace is
// ignored and the result is normalised to lowercase.
func ParseSha256(s string) (Sha256, error) {
	digest := strings.ToLower(strings.TrimSpace(s))
	if len(digest) != 64 {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
	}
	return Sha256(digest), nil
}

// String returns the hex digest
func (h Sha256) String() string {
	return string(h)
}
