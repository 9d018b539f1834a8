package session

import (
	"context"
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	jwtIssuer   = "bereal-server"
	jwtAudience = "bereal-api"
	jwtLeeway   = 30 * time.Second
)

// JWTStore issues stateless HS256 session tokens. No server-side state
// is kept, so Revoke cannot invalidate a live token; logout relies on
// the client discarding it and on the expiry.
type JWTStore struct {
	secret []byte
	ttl    time.Duration
}

// NewJWT builds a JWT session store over a shared secret.
func NewJWT(secret string, ttl time.Duration) (*JWTStore, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("jwt session secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &JWTStore{secret: []byte(secret), ttl: ttl}, nil
}

func (s *JWTStore) Issue(_ context.Context, username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", errors.New("session username is required")
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    jwtIssuer,
		Subject:   username,
		Audience:  jwt.ClaimStrings{jwtAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *JWTStore) Resolve(_ context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenInvalid
	}
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(jwtIssuer),
		jwt.WithAudience(jwtAudience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(jwtLeeway),
	)
	if err != nil || !parsed.Valid {
		return "", ErrTokenInvalid
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrTokenInvalid
	}
	return subject, nil
}

func (s *JWTStore) Revoke(context.Context, string) error {
	return nil
}
