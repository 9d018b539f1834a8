// Package session issues and resolves bearer tokens for logged-in users.
package session

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is the default session lifetime.
const DefaultTTL = 24 * time.Hour

// ErrTokenInvalid covers unknown, expired, and malformed tokens.
var ErrTokenInvalid = errors.New("session token invalid")

// Store issues tokens at login and maps them back to usernames on each
// request.
type Store interface {
	// Issue creates a token for the username.
	Issue(ctx context.Context, username string) (string, error)
	// Resolve returns the username behind a token.
	Resolve(ctx context.Context, token string) (string, error)
	// Revoke invalidates a token. Stateless backends may treat this as
	// a no-op and let the token age out.
	Revoke(ctx context.Context, token string) error
}
