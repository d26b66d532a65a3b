package models

import "time"

// RefreshToken is a durable session record. The opaque token string handed
// to the client is never persisted; only its SHA-256 digest is stored.
//
// RevokedAt is set exactly once, at revocation, and never cleared.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// Redeemable reports whether the record can still be exchanged for a new
// token pair: it has not been revoked and has not expired as of now.
func (t *RefreshToken) Redeemable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
