package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded claim set of a verified token. Payload holds every
// claim other than iss, iat and exp.
type Claims struct {
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Payload   map[string]any
}

func newClaims(raw jwt.MapClaims) Claims {
	issuer, _ := raw.GetIssuer()
	claims := Claims{
		Issuer:  issuer,
		Payload: make(map[string]any, len(raw)),
	}
	if issuedAt, err := raw.GetIssuedAt(); err == nil && issuedAt != nil {
		claims.IssuedAt = issuedAt.Time
	}
	if expiresAt, err := raw.GetExpirationTime(); err == nil && expiresAt != nil {
		claims.ExpiresAt = expiresAt.Time
	}
	for name, value := range raw {
		switch name {
		case claimIssuer, claimIssuedAt, claimExpiresAt:
			continue
		}
		claims.Payload[name] = value
	}
	return claims
}

// Subject returns the sub claim.
func (c Claims) Subject() string {
	return c.String(claimSubject)
}

// TokenID returns the jti claim.
func (c Claims) TokenID() string {
	return c.String(claimTokenID)
}

// String returns a string valued claim or "" when absent or of another type.
func (c Claims) String(name string) string {
	value, _ := c.Payload[name].(string)
	return value
}

// Bool returns a boolean claim or false when absent or of another type.
func (c Claims) Bool(name string) bool {
	value, _ := c.Payload[name].(bool)
	return value
}
