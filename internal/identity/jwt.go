package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier is the reference Verifier the core ships by default: it
// checks a bearer token as an HMAC-signed JWT against SESSION_SECRET
// and reads the subject claim as the owner id. A real deployment normally
// replaces this with a Verifier backed by the identity collaborator's own
// session store; the core never needs to know the difference.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier builds a Verifier around the configured SESSION_SECRET.
func NewJWTVerifier(sessionSecret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(sessionSecret)}
}

// Verify parses and validates token, returning the "sub" claim as the owner
// id. It rejects anything but HMAC signing methods to avoid the classic
// "alg: none" / algorithm-confusion downgrade.
func (v *JWTVerifier) Verify(_ context.Context, token string) (string, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("identity: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

var _ Verifier = (*JWTVerifier)(nil)
