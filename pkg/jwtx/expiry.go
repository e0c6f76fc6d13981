package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UnverifiedExpiry reads the "exp" claim of a JWT access token without
// checking its signature. Bluebeam access tokens are opaque to the client, so
// this is only used as a hint when the token endpoint omits expires_in.
// ok is false when raw is not a JWT or carries no expiry.
func UnverifiedExpiry(raw string) (exp time.Time, ok bool) {
	var claims jwt.RegisteredClaims

	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, false
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}

	return claims.ExpiresAt.Time, true
}
