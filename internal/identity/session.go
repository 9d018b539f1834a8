// Package identity manages the signed-in user: signup, login, logout,
// the global user directory under "users", and the active session copy
// under "user".
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kullampallep/beRealProject/pkg/auth"
	"github.com/kullampallep/beRealProject/pkg/domain"
	"github.com/kullampallep/beRealProject/pkg/kvstore"
)

var (
	// ErrUsernameTaken is returned by Signup for a duplicate username.
	// Usernames are case-sensitive primary keys.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrInvalidCredentials is returned by Login on a bad username or
	// password; callers get no hint which one.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMissingCredentials is returned when username or password is
	// empty.
	ErrMissingCredentials = errors.New("username and password required")
)

// Session owns the identity records in the store.
type Session struct {
	store kvstore.Store
}

// NewSession builds an identity session over the store.
func NewSession(store kvstore.Store) *Session {
	return &Session{store: store}
}

// Signup registers a new user and makes it the active session, as the
// original shell did. The stored password is a bcrypt hash.
func (s *Session) Signup(ctx context.Context, username, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, ErrMissingCredentials
	}
	users, err := s.directory(ctx)
	if err != nil {
		return domain.User{}, fmt.Errorf("read directory: %w", err)
	}
	for _, u := range users {
		if u.Username == username {
			return domain.User{}, ErrUsernameTaken
		}
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{Username: username, Password: hash}
	users = append(users, user)
	if err := s.writeRecord(ctx, domain.KeyUsers, users); err != nil {
		return domain.User{}, fmt.Errorf("save directory: %w", err)
	}
	if err := s.writeRecord(ctx, domain.KeyActiveUser, user); err != nil {
		return domain.User{}, fmt.Errorf("save active user: %w", err)
	}
	return user, nil
}

// Login validates credentials and persists the active session copy.
func (s *Session) Login(ctx context.Context, username, password string) (domain.User, error) {
	if username == "" || password == "" {
		return domain.User{}, ErrMissingCredentials
	}
	users, err := s.directory(ctx)
	if err != nil {
		return domain.User{}, fmt.Errorf("read directory: %w", err)
	}
	for _, u := range users {
		if u.Username == username && auth.CheckPassword(password, u.Password) {
			if err := s.writeRecord(ctx, domain.KeyActiveUser, u); err != nil {
				return domain.User{}, fmt.Errorf("save active user: %w", err)
			}
			return u, nil
		}
	}
	return domain.User{}, ErrInvalidCredentials
}

// Logout clears the active session copy.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.store.Remove(ctx, domain.KeyActiveUser); err != nil {
		return fmt.Errorf("clear active user: %w", err)
	}
	return nil
}

// CurrentUser returns the persisted active session copy, if any.
func (s *Session) CurrentUser(ctx context.Context) (domain.User, bool, error) {
	raw, found, err := s.store.Get(ctx, domain.KeyActiveUser)
	if err != nil {
		return domain.User{}, false, err
	}
	if !found {
		return domain.User{}, false, nil
	}
	user, err := domain.DecodeUser(raw)
	if err != nil {
		return domain.User{}, false, err
	}
	return user, true, nil
}

// Lookup finds a user in the directory by exact username.
func (s *Session) Lookup(ctx context.Context, username string) (domain.User, bool, error) {
	users, err := s.directory(ctx)
	if err != nil {
		return domain.User{}, false, err
	}
	for _, u := range users {
		if u.Username == username {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *Session) directory(ctx context.Context) ([]domain.User, error) {
	raw, found, err := s.store.Get(ctx, domain.KeyUsers)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return domain.DecodeUsers(raw)
}

func (s *Session) writeRecord(ctx context.Context, key string, v any) error {
	raw, err := domain.Encode(v)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, key, raw)
}
