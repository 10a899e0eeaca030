package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// ErrTokenExpired is returned when the configured JWT is past its exp claim
var ErrTokenExpired = errors.New("bearer token has expired, sign in again")

// TokenStore resolves the bearer token used for every API call. Tokens are
// issued by the backend as JWTs; the store inspects the exp claim (without
// verifying the signature, which only the server can do) so an expired
// token fails fast instead of opening a stream that dies with a 401.
// Opaque non-JWT tokens are passed through untouched.
type TokenStore struct {
	token string
}

// NewStatic wraps a token already in hand
func NewStatic(token string) *TokenStore {
	return &TokenStore{token: strings.TrimSpace(token)}
}

// NewFromFile reads the token from a file, trimming whitespace
func NewFromFile(path string) (*TokenStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return nil, fmt.Errorf("token file %s is empty", path)
	}
	return &TokenStore{token: token}, nil
}

// Token returns the bearer token, refusing expired JWTs
func (t *TokenStore) Token() (string, error) {
	if t.token == "" {
		return "", errors.New("no auth token configured")
	}

	expiry, ok := jwtExpiry(t.token)
	if !ok {
		return t.token, nil
	}
	now := time.Now()
	if now.After(expiry) {
		return "", ErrTokenExpired
	}
	if remaining := expiry.Sub(now); remaining < 5*time.Minute {
		log.Warn().Dur("remaining", remaining).Msg("auth token expires soon")
	}
	return t.token, nil
}

// jwtExpiry extracts the exp claim from a JWT-shaped token. Returns
// ok=false for opaque tokens and JWTs without an exp claim.
func jwtExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
