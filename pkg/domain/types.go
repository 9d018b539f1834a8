package domain

import "time"

// RequestStatus tracks the lifecycle of a friend request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestRejected RequestStatus = "rejected"
)

// User is an entry in the global user directory. Password holds the
// bcrypt hash, never the raw credential.
type User struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// PublicUser is the shape handed out by search and profile surfaces.
// Passwords never cross this boundary.
type PublicUser struct {
	Username string `json:"username"`
}

// Friend is one edge of a symmetric friendship. If Friend{B} appears in
// A's list, Friend{A} must appear in B's list; the store does not
// enforce this atomically.
type Friend struct {
	Username string    `json:"username"`
	AddedAt  time.Time `json:"addedAt"`
}

// FriendRequest is one half of a logical request. The sender keeps a
// copy in their outgoing list and the recipient keeps a mirrored copy
// in their incoming list; the two are mutated by separate writes.
type FriendRequest struct {
	Username string        `json:"username"`
	SentAt   time.Time     `json:"sentAt"`
	Status   RequestStatus `json:"status"`
}

// UserRef identifies a post author.
type UserRef struct {
	Username string `json:"username"`
}

// MediaKind says which camera angles a post carries.
type MediaKind string

const (
	MediaFrontOnly MediaKind = "front"
	MediaBackOnly  MediaKind = "back"
	MediaBoth      MediaKind = "both"
)

// Post is an append-only entry in the global photo collection. Front
// and Back are object-storage keys; stored records carry at least one,
// new captures require both.
type Post struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	User      *UserRef  `json:"user"`
	Front     string    `json:"front,omitempty"`
	Back      string    `json:"back,omitempty"`
}

// Media reports which angles the post carries. The second return is
// false when the record has neither, which decode rejects.
func (p Post) Media() (MediaKind, bool) {
	switch {
	case p.Front != "" && p.Back != "":
		return MediaBoth, true
	case p.Front != "":
		return MediaFrontOnly, true
	case p.Back != "":
		return MediaBackOnly, true
	default:
		return "", false
	}
}

// Author returns the author username, or "" for authorless demo
// records.
func (p Post) Author() string {
	if p.User == nil {
		return ""
	}
	return p.User.Username
}
