package identity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kullampallep/beRealProject/pkg/domain"
	"github.com/kullampallep/beRealProject/pkg/kvstore"
)

func TestSignupPersistsDirectoryAndActiveUser(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	s := NewSession(store)

	user, err := s.Signup(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("username = %q", user.Username)
	}
	if user.Password == "s3cret" {
		t.Fatalf("password stored unhashed")
	}

	current, found, err := s.CurrentUser(ctx)
	if err != nil || !found {
		t.Fatalf("current user: found=%v err=%v", found, err)
	}
	if current.Username != "alice" {
		t.Fatalf("active user = %q", current.Username)
	}

	raw, found, _ := store.Get(ctx, domain.KeyUsers)
	if !found || !strings.Contains(raw, `"alice"`) {
		t.Fatalf("directory not persisted: %q", raw)
	}
}

func TestSignupRejectsDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	s := NewSession(kvstore.NewMemory())
	if _, err := s.Signup(ctx, "alice", "pw"); err != nil {
		t.Fatalf("first signup: %v", err)
	}
	if _, err := s.Signup(ctx, "alice", "other"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	// Usernames are case-sensitive, so this is a different user.
	if _, err := s.Signup(ctx, "Alice", "pw"); err != nil {
		t.Fatalf("case-sensitive signup: %v", err)
	}
}

func TestSignupRequiresCredentials(t *testing.T) {
	ctx := context.Background()
	s := NewSession(kvstore.NewMemory())
	if _, err := s.Signup(ctx, "", "pw"); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("empty username: %v", err)
	}
	if _, err := s.Signup(ctx, "alice", ""); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("empty password: %v", err)
	}
}

func TestLoginAndLogout(t *testing.T) {
	ctx := context.Background()
	s := NewSession(kvstore.NewMemory())
	if _, err := s.Signup(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if err := s.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, found, _ := s.CurrentUser(ctx); found {
		t.Fatalf("active user should be cleared")
	}

	if _, err := s.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := s.Login(ctx, "nobody", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: %v", err)
	}

	user, err := s.Login(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("login user = %q", user.Username)
	}
	if _, found, _ := s.CurrentUser(ctx); !found {
		t.Fatalf("active session copy should be restored")
	}
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	s := NewSession(kvstore.NewMemory())
	if _, err := s.Signup(ctx, "alice", "pw"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, found, err := s.Lookup(ctx, "alice"); err != nil || !found {
		t.Fatalf("lookup alice: found=%v err=%v", found, err)
	}
	if _, found, _ := s.Lookup(ctx, "ALICE"); found {
		t.Fatalf("lookup is case-sensitive")
	}
}
