package domain

// Storage key layout. Ownership of a key is purely by this naming
// convention; the store never enforces it.
const (
	KeyUsers      = "users"  // array of User
	KeyActiveUser = "user"   // single User, active session copy
	KeyPhotos     = "photos" // array of Post
)

// FriendsKey holds a user's friend list.
func FriendsKey(username string) string {
	return "friends_" + username
}

// IncomingRequestsKey holds requests other users sent to username.
func IncomingRequestsKey(username string) string {
	return "friend_requests_" + username
}

// OutgoingRequestsKey holds requests username sent to other users.
func OutgoingRequestsKey(username string) string {
	return "sent_requests_" + username
}
