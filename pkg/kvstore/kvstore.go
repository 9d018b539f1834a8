// Package kvstore provides the asynchronous string-keyed persistent
// store the app is built on. A single Set is the only atomic unit;
// there is no multi-key atomicity, locking, or versioning. Ownership of
// a key is purely by naming convention.
package kvstore

import "context"

// Store is the persistence contract. Get reports false when the key is
// absent; callers treat absent keys as empty collections.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
