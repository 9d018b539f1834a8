// Package feed derives the visible post set for a user from the global
// photo collection and the friend graph. A feed is a computed view,
// recomputed on every call; nothing here touches storage.
package feed

import (
	"sort"
	"time"

	"github.com/kullampallep/beRealProject/pkg/domain"
)

// Compose returns the viewer's feed for the calendar day of ref: posts
// created on that day whose author is the viewer or one of the friends,
// newest first. The sort is stable, so same-instant posts keep their
// input order.
func Compose(posts []domain.Post, viewer string, friends []domain.Friend, ref time.Time) []domain.Post {
	allowed := make(map[string]struct{}, len(friends)+1)
	allowed[viewer] = struct{}{}
	for _, f := range friends {
		allowed[f.Username] = struct{}{}
	}

	kept := make([]domain.Post, 0, len(posts))
	for _, p := range posts {
		if !sameDay(p.CreatedAt, ref) {
			continue
		}
		if _, ok := allowed[p.Author()]; !ok {
			continue
		}
		kept = append(kept, p)
	}
	sortNewestFirst(kept)
	return kept
}

// ComposeGlobal is the unrestricted browse view: every post from ref's
// calendar day regardless of author, newest first.
func ComposeGlobal(posts []domain.Post, ref time.Time) []domain.Post {
	kept := make([]domain.Post, 0, len(posts))
	for _, p := range posts {
		if sameDay(p.CreatedAt, ref) {
			kept = append(kept, p)
		}
	}
	sortNewestFirst(kept)
	return kept
}

func sortNewestFirst(posts []domain.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}

// sameDay compares calendar dates in ref's location. "Today" is a
// calendar-day window, not a rolling 24 hours.
func sameDay(t, ref time.Time) bool {
	t = t.In(ref.Location())
	y1, m1, d1 := t.Date()
	y2, m2, d2 := ref.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
