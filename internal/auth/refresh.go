package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// TokenGenerator produces opaque refresh token values. The plain value goes to
// the client; only the hash is stored.
type TokenGenerator interface {
	New() (token string, hash string, err error)
}

// DefaultTokenGenerator generates 32 random bytes, base64url-encoded.
type DefaultTokenGenerator struct{}

// New returns a fresh token value and its storage hash.
func (DefaultTokenGenerator) New() (string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	return token, HashToken(token), nil
}

// HashToken returns the hex SHA-256 of a token value, the form under which
// refresh tokens are persisted and looked up.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
