package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
)

const DefaultTokenBytes = 32

// GenerateToken returns nBytes of crypto/rand output, base64url encoded
// without padding.
func GenerateToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = DefaultTokenBytes
	}
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken is the hex SHA-256 of a raw token. Only this value is persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenHashEqual compares two token hashes in constant time.
func TokenHashEqual(a, b string) bool {
	return SecureCompare(a, b)
}

// SecureCompare reports whether a and b are equal without leaking where
// they differ. Empty values never match.
func SecureCompare(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

var shareTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{24,64}$`)

// ValidShareToken checks the public format of a share token before any lookup.
func ValidShareToken(token string) bool {
	return shareTokenPattern.MatchString(token)
}
