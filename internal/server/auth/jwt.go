// Package auth holds the stateless authentication pieces: the signed
// access-token codec, password hashing, and the role capability map.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mkravchenko/authd/internal/common"
)

// Claims is the access-token payload. The registered claims carry the
// identity id (sub) and the two lifetime timestamps (iat, exp); username and
// role ride along so the gate can authorize without a store lookup.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
}

// SigningMethod resolves a configured algorithm name to a JWT signing
// method. Only the symmetric HMAC family is supported.
func SigningMethod(name string) (jwt.SigningMethod, error) {
	switch name {
	case "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	}
	return nil, fmt.Errorf("unsupported signing algorithm %q", name)
}

// GenerateToken mints a signed access token for the identity.
func GenerateToken(userID, username, role string, secret []byte, method jwt.SigningMethod, validity time.Duration) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(method, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		Username: username,
		Role:     role,
	})

	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}

	return tokenString, nil
}

// ParseToken verifies the signature and lifetime of an access token and
// returns its claims. An expired token yields common.ErrTokenExpired; any
// other defect (bad signature, malformed structure, unexpected algorithm)
// yields common.ErrInvalidToken. No clock-skew leeway is applied, so a token
// whose exp equals the current instant is already expired.
func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
