package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCorruptRecord marks stored JSON that fails to decode or validate.
// Loaders surface it instead of silently treating bad data as empty.
var ErrCorruptRecord = errors.New("corrupt record")

// Encode serializes a value for storage.
func Encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	return string(data), nil
}

// DecodeUsers parses the global user directory.
func DecodeUsers(raw string) ([]User, error) {
	var users []User
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		return nil, fmt.Errorf("%w: users: %v", ErrCorruptRecord, err)
	}
	for i, u := range users {
		if u.Username == "" {
			return nil, fmt.Errorf("%w: users[%d]: missing username", ErrCorruptRecord, i)
		}
	}
	return users, nil
}

// DecodeUser parses a single user record (the active session copy).
func DecodeUser(raw string) (User, error) {
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return User{}, fmt.Errorf("%w: user: %v", ErrCorruptRecord, err)
	}
	if u.Username == "" {
		return User{}, fmt.Errorf("%w: user: missing username", ErrCorruptRecord)
	}
	return u, nil
}

// DecodeFriends parses a friend list.
func DecodeFriends(raw string) ([]Friend, error) {
	var friends []Friend
	if err := json.Unmarshal([]byte(raw), &friends); err != nil {
		return nil, fmt.Errorf("%w: friends: %v", ErrCorruptRecord, err)
	}
	for i, f := range friends {
		if f.Username == "" {
			return nil, fmt.Errorf("%w: friends[%d]: missing username", ErrCorruptRecord, i)
		}
	}
	return friends, nil
}

// DecodeRequests parses an incoming or outgoing request list.
func DecodeRequests(raw string) ([]FriendRequest, error) {
	var reqs []FriendRequest
	if err := json.Unmarshal([]byte(raw), &reqs); err != nil {
		return nil, fmt.Errorf("%w: requests: %v", ErrCorruptRecord, err)
	}
	for i, r := range reqs {
		if r.Username == "" {
			return nil, fmt.Errorf("%w: requests[%d]: missing username", ErrCorruptRecord, i)
		}
		switch r.Status {
		case RequestPending, RequestRejected:
		default:
			return nil, fmt.Errorf("%w: requests[%d]: unknown status %q", ErrCorruptRecord, i, r.Status)
		}
	}
	return reqs, nil
}

// DecodePosts parses the global photo collection.
func DecodePosts(raw string) ([]Post, error) {
	var posts []Post
	if err := json.Unmarshal([]byte(raw), &posts); err != nil {
		return nil, fmt.Errorf("%w: photos: %v", ErrCorruptRecord, err)
	}
	for i, p := range posts {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: photos[%d]: missing id", ErrCorruptRecord, i)
		}
		if _, ok := p.Media(); !ok {
			return nil, fmt.Errorf("%w: photos[%d]: no media", ErrCorruptRecord, i)
		}
	}
	return posts, nil
}
