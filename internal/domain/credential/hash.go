package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// TokenPrefixLength is the number of leading token characters retained
// for display. The prefix is the only fragment of the raw token ever kept.
const TokenPrefixLength = 8

// HashToken computes the storage digest of a raw bearer token.
// SHA-256 hex; the digest is the indexed lookup key, so it must be
// deterministic across processes.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns the display-only prefix of a raw token.
func DisplayPrefix(token string) string {
	if len(token) <= TokenPrefixLength {
		return token
	}
	return token[:TokenPrefixLength]
}

// ParseBearer extracts the token from an Authorization header value.
// Returns empty string when the scheme is missing or not Bearer.
func ParseBearer(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
