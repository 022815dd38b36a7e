package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenCookie is set by the web client after sign-in with the hosted auth provider.
const AccessTokenCookie = "access_token"

var ErrInvalidToken = errors.New("invalid access token")

// Claims issued by the hosted auth provider. Subject is the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type TokenSource int

const (
	SourceNone TokenSource = iota
	SourceCookie
	SourceHeader
)

// ExtractAccessToken prefers the session cookie and falls back to a Bearer header.
func ExtractAccessToken(r *http.Request) (string, TokenSource) {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, SourceCookie
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")), SourceHeader
	}

	return "", SourceNone
}

// Verifier checks HS256 access tokens signed with the provider's shared secret.
type Verifier struct {
	key []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{key: []byte(secret)}
}

// Parse rejects tokens with another algorithm, no expiry, or no subject.
func (v *Verifier) Parse(raw string) (*Claims, error) {
	if len(v.key) == 0 {
		return nil, fmt.Errorf("%w: verifier has no secret", ErrInvalidToken)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims, nil
}
