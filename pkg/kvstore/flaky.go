package kvstore

import (
	"context"
	"errors"
	"sync"
)

// ErrInjected is returned by a Flaky store once its write budget is
// spent.
var ErrInjected = errors.New("injected storage failure")

// Flaky wraps a Store and fails every write after the first N succeed.
// Multi-key mutations are sequences of independent writes with no
// rollback; Flaky makes the resulting partial states reproducible in
// tests instead of leaving them implicit.
type Flaky struct {
	inner  Store
	mu     sync.Mutex
	budget int
}

// NewFlaky allows the first budget writes through, then fails the rest.
// Reads always pass through.
func NewFlaky(inner Store, budget int) *Flaky {
	return &Flaky{inner: inner, budget: budget}
}

func (f *Flaky) Get(ctx context.Context, key string) (string, bool, error) {
	return f.inner.Get(ctx, key)
}

func (f *Flaky) Set(ctx context.Context, key, value string) error {
	if !f.spend() {
		return ErrInjected
	}
	return f.inner.Set(ctx, key, value)
}

func (f *Flaky) Remove(ctx context.Context, key string) error {
	if !f.spend() {
		return ErrInjected
	}
	return f.inner.Remove(ctx, key)
}

func (f *Flaky) spend() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.budget <= 0 {
		return false
	}
	f.budget--
	return true
}
