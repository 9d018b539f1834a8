package social

import (
	"context"
	"strings"

	"github.com/kullampallep/beRealProject/internal/util"
	"github.com/kullampallep/beRealProject/pkg/domain"
	"github.com/kullampallep/beRealProject/pkg/kvstore"
)

// Directory searches the global user list. It reads the directory
// read-only; user records are owned by the identity session.
type Directory struct {
	store kvstore.Store
}

// NewDirectory builds a directory search over the store.
func NewDirectory(store kvstore.Store) *Directory {
	return &Directory{store: store}
}

// SearchUsers returns users whose username contains term
// case-insensitively, excluding self. Only usernames leave this
// boundary, never passwords. Errors are logged and yield an empty
// result; minimum-length policy is the caller's concern.
func (d *Directory) SearchUsers(ctx context.Context, self, term string) []domain.PublicUser {
	raw, found, err := d.store.Get(ctx, domain.KeyUsers)
	if err != nil {
		util.LoggerFromContext(ctx).Error("search users: read directory", "err", err)
		return nil
	}
	if !found {
		return nil
	}
	users, err := domain.DecodeUsers(raw)
	if err != nil {
		util.LoggerFromContext(ctx).Error("search users: decode directory", "err", err)
		return nil
	}

	needle := strings.ToLower(term)
	matches := make([]domain.PublicUser, 0, len(users))
	for _, u := range users {
		if u.Username == self {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), needle) {
			matches = append(matches, domain.PublicUser{Username: u.Username})
		}
	}
	return matches
}
