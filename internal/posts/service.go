// Package posts appends captured photos to the global post collection.
// The collection is append-only: records are never mutated after
// creation, and every feed is computed from it on demand.
package posts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kullampallep/beRealProject/pkg/domain"
	"github.com/kullampallep/beRealProject/pkg/kvstore"
	"github.com/kullampallep/beRealProject/pkg/objstore"
)

// ErrBothAnglesRequired is returned when a capture is missing the front
// or the back photo. A new post always carries both.
var ErrBothAnglesRequired = errors.New("both front and back photos required")

// Capture is the raw material of a new post.
type Capture struct {
	Front       io.Reader
	FrontSize   int64
	Back        io.Reader
	BackSize    int64
	ContentType string
}

// Service owns the global photo collection and its blobs.
type Service struct {
	store kvstore.Store
	blobs objstore.Store
}

// NewService builds a post service over the stores.
func NewService(store kvstore.Store, blobs objstore.Store) *Service {
	return &Service{store: store, blobs: blobs}
}

// Create uploads both angles and appends the post record. The two
// uploads run concurrently; the record write is a read-modify-write on
// the single photos key with no locking, like every other mutation in
// the system.
func (s *Service) Create(ctx context.Context, author string, capture Capture) (domain.Post, error) {
	if capture.Front == nil || capture.Back == nil {
		return domain.Post{}, ErrBothAnglesRequired
	}
	contentType := capture.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}

	id := uuid.NewString()
	frontKey := fmt.Sprintf("posts/%s/front.jpg", id)
	backKey := fmt.Sprintf("posts/%s/back.jpg", id)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.blobs.Put(gctx, frontKey, capture.Front, capture.FrontSize, contentType)
	})
	g.Go(func() error {
		return s.blobs.Put(gctx, backKey, capture.Back, capture.BackSize, contentType)
	})
	if err := g.Wait(); err != nil {
		return domain.Post{}, fmt.Errorf("upload photos: %w", err)
	}

	post := domain.Post{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		User:      &domain.UserRef{Username: author},
		Front:     frontKey,
		Back:      backKey,
	}

	all, err := s.All(ctx)
	if err != nil {
		return domain.Post{}, err
	}
	all = append(all, post)
	raw, err := domain.Encode(all)
	if err != nil {
		return domain.Post{}, err
	}
	if err := s.store.Set(ctx, domain.KeyPhotos, raw); err != nil {
		return domain.Post{}, fmt.Errorf("save photos: %w", err)
	}
	return post, nil
}

// All returns every stored post. A missing key is an empty collection;
// malformed data surfaces as a corrupt-record error.
func (s *Service) All(ctx context.Context) ([]domain.Post, error) {
	raw, found, err := s.store.Get(ctx, domain.KeyPhotos)
	if err != nil {
		return nil, fmt.Errorf("read photos: %w", err)
	}
	if !found {
		return nil, nil
	}
	return domain.DecodePosts(raw)
}

// BlobURL resolves an object key to a fetchable URL.
func (s *Service) BlobURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if key == "" {
		return "", nil
	}
	return s.blobs.URL(ctx, key, expiry)
}

// Stats summarizes a user's posting history for the profile surface.
type Stats struct {
	Total    int `json:"total"`
	ThisWeek int `json:"thisWeek"`
}

// StatsFor counts a user's posts overall and within the seven days
// before ref.
func (s *Service) StatsFor(ctx context.Context, username string, ref time.Time) (Stats, error) {
	all, err := s.All(ctx)
	if err != nil {
		return Stats{}, err
	}
	weekAgo := ref.AddDate(0, 0, -7)
	var stats Stats
	for _, p := range all {
		if p.Author() != username {
			continue
		}
		stats.Total++
		if p.CreatedAt.After(weekAgo) && !p.CreatedAt.After(ref) {
			stats.ThisWeek++
		}
	}
	return stats, nil
}
