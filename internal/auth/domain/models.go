// Package domain defines bearer-token authentication for the API.
package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrInvalidToken = errors.New("invalid_access_token")

// AccessToken maps a hashed bearer token to a user. Only the SHA-256 of
// the raw token is stored.
type AccessToken struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    snowflake.ID `gorm:"not null;index:ix_tokens_user"`
	TokenHash string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_tokens_hash"`
	ExpiresAt *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

func (AccessToken) TableName() string { return "access_tokens" }

// HashToken hashes a raw bearer token with the same strategy used at
// token issuance.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Verifier resolves a raw bearer token to the owning user.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (snowflake.ID, error)
}
