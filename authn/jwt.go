// Package authn provides the default "who is the caller?" identity plug-in
// for the HTTP Gateway: an HMAC-signed JWT bearer token carrying the calling
// user and, optionally, an on-behalf-of subject.
package authn

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTIdentity resolves the caller from a "Bearer <token>" Authorization
// header signed with Secret. It implements gateway.Identity.
type JWTIdentity struct {
	Secret []byte
}

// NewJWTIdentity builds a JWTIdentity bound to secret.
func NewJWTIdentity(secret string) *JWTIdentity {
	return &JWTIdentity{Secret: []byte(secret)}
}

// Resolve extracts and verifies the bearer token, returning the "sub" claim
// as the caller and the request's Host as the origin.
func (j *JWTIdentity) Resolve(r *http.Request) (user, host string, err error) {
	header := r.Header.Get("Authorization")
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenStr == "" {
		return "", "", errors.New("missing bearer token")
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.Secret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("parsing bearer token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", errors.New("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", "", errors.New("token missing sub claim")
	}
	return sub, r.Host, nil
}

// Issue mints an HS256 bearer token carrying the caller-supplied claims,
// signed with Secret.
func (j *JWTIdentity) Issue(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}
