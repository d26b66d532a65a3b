// Package refreshtokens provides the session record store: one record per
// issued refresh token, kept until the cleanup sweep removes it.
package refreshtokens

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/mkravchenko/authd/internal/server/models"
)

// HashToken returns the hex-encoded SHA-256 digest of an opaque refresh
// token. Only digests reach durable storage; lookups hash the presented
// token the same way.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Repository defines operations for issuing, retrieving, and revoking
// refresh token records.
type Repository interface {
	// Create stores a new session record. TokenHash must already carry the
	// digest of the opaque token, see HashToken.
	Create(ctx context.Context, token *models.RefreshToken) error

	// GetByToken looks up the record for the opaque token presented by a
	// client. An absent record yields common.ErrorNotFound.
	GetByToken(ctx context.Context, token string) (*models.RefreshToken, error)

	// ListActiveByUser returns the user's unexpired, unrevoked records in
	// creation order.
	ListActiveByUser(ctx context.Context, userID string) ([]*models.RefreshToken, error)

	// Revoke stamps the record for the opaque token as revoked iff no
	// revocation timestamp is present yet, and reports whether this call
	// performed the transition. A missing record reports false.
	Revoke(ctx context.Context, token string) (bool, error)

	// RevokeAllForUser stamps every live record of the user and returns how
	// many records it transitioned.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpiredOrRevoked removes records that are past their expiry or
	// carry a revocation timestamp, returning how many were dropped.
	DeleteExpiredOrRevoked(ctx context.Context) (int64, error)
}
