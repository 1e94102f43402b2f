package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is a stored, single-use refresh credential. Only the SHA-256 hash
// of the opaque token value is persisted.
type RefreshToken struct {
	TokenHash string    `json:"-"`
	UserID    uuid.UUID `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
