// Package social owns the friend-relationship graph: request
// lifecycle, symmetric friendship maintenance, and user search.
//
// Friendship facts are stored redundantly under both users' keys and
// mutated by separate writes with no multi-key atomicity. Partial
// writes and races between concurrent mutations can leave the graph
// asymmetric; that is an accepted property of the storage model, not
// something this package detects or repairs.
package social

import (
	"context"
	"time"

	"github.com/kullampallep/beRealProject/internal/util"
	"github.com/kullampallep/beRealProject/pkg/domain"
	"github.com/kullampallep/beRealProject/pkg/kvstore"
)

// Result is the structured outcome of a graph mutation. Mutators never
// return Go errors to callers; storage failures are logged and folded
// into a failed Result with a generic message.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func ok(msg string) Result   { return Result{Success: true, Message: msg} }
func fail(msg string) Result { return Result{Success: false, Message: msg} }

// Graph is the friend-graph state scoped to one signed-in user. It is
// re-materialized from storage whenever the active identity changes,
// rather than living as ambient global state.
type Graph struct {
	store    kvstore.Store
	username string

	friends  []domain.Friend
	incoming []domain.FriendRequest
	outgoing []domain.FriendRequest
}

// NewGraph builds an empty graph for username. Call Load before using
// the predicates or mutators.
func NewGraph(store kvstore.Store, username string) *Graph {
	return &Graph{store: store, username: username}
}

// Username returns the user this graph is scoped to.
func (g *Graph) Username() string { return g.username }

// Load replaces the in-memory state from storage. Missing keys default
// to empty lists; malformed records surface as domain.ErrCorruptRecord
// instead of being silently dropped. Storage is never mutated.
func (g *Graph) Load(ctx context.Context) error {
	friends, err := readFriends(ctx, g.store, domain.FriendsKey(g.username))
	if err != nil {
		return err
	}
	incoming, err := readRequests(ctx, g.store, domain.IncomingRequestsKey(g.username))
	if err != nil {
		return err
	}
	outgoing, err := readRequests(ctx, g.store, domain.OutgoingRequestsKey(g.username))
	if err != nil {
		return err
	}
	g.friends = friends
	g.incoming = incoming
	g.outgoing = outgoing
	return nil
}

// Friends returns a copy of the loaded friend list.
func (g *Graph) Friends() []domain.Friend {
	return append([]domain.Friend(nil), g.friends...)
}

// IncomingRequests returns a copy of the loaded incoming request list.
func (g *Graph) IncomingRequests() []domain.FriendRequest {
	return append([]domain.FriendRequest(nil), g.incoming...)
}

// OutgoingRequests returns a copy of the loaded outgoing request list,
// rejected history included.
func (g *Graph) OutgoingRequests() []domain.FriendRequest {
	return append([]domain.FriendRequest(nil), g.outgoing...)
}

// IsFriend reports whether username is in the loaded friend list.
func (g *Graph) IsFriend(username string) bool {
	for _, f := range g.friends {
		if f.Username == username {
			return true
		}
	}
	return false
}

// HasSentRequest reports whether a pending outgoing request to
// username exists. Rejected records do not count.
func (g *Graph) HasSentRequest(username string) bool {
	for _, r := range g.outgoing {
		if r.Username == username && r.Status == domain.RequestPending {
			return true
		}
	}
	return false
}

// HasIncomingRequest reports whether any incoming record from username
// exists, regardless of status.
func (g *Graph) HasIncomingRequest(username string) bool {
	for _, r := range g.incoming {
		if r.Username == username {
			return true
		}
	}
	return false
}

func (g *Graph) hasPendingIncoming(username string) bool {
	for _, r := range g.incoming {
		if r.Username == username && r.Status == domain.RequestPending {
			return true
		}
	}
	return false
}

// SendFriendRequest records a pending request from this user to
// target: one record in this user's outgoing list, one mirrored record
// under the target's incoming key. The two writes are sequential and
// independent; a failure between them leaves a dangling outgoing-only
// request.
func (g *Graph) SendFriendRequest(ctx context.Context, target string) Result {
	logger := util.LoggerFromContext(ctx)

	if target == "" || target == g.username {
		return fail("Invalid request")
	}
	if g.IsFriend(target) {
		return fail("Already friends with this user")
	}
	// Rejected history records do not block a fresh request; only a
	// live pending one does.
	for _, r := range g.outgoing {
		if r.Username == target && r.Status == domain.RequestPending {
			return fail("Friend request already sent")
		}
	}
	// Mutual-request policy: when the target's request is already
	// sitting in this user's incoming list, refuse the send and point
	// at the accept path instead of creating a crossed pair.
	if g.hasPendingIncoming(target) {
		return fail("This user already sent you a friend request")
	}

	exists, err := userExists(ctx, g.store, target)
	if err != nil {
		logger.Error("send friend request: directory lookup", "user", g.username, "target", target, "err", err)
		return fail("Error sending request")
	}
	if !exists {
		return fail("User not found")
	}

	now := time.Now().UTC()
	fresh := domain.FriendRequest{
		Username: target,
		SentAt:   now,
		Status:   domain.RequestPending,
	}
	outgoing := g.OutgoingRequests()
	replaced := false
	for i, r := range outgoing {
		if r.Username == target {
			// A resend supersedes the rejected record.
			outgoing[i] = fresh
			replaced = true
			break
		}
	}
	if !replaced {
		outgoing = append(outgoing, fresh)
	}
	if err := writeRecord(ctx, g.store, domain.OutgoingRequestsKey(g.username), outgoing); err != nil {
		logger.Error("send friend request: write outgoing", "user", g.username, "target", target, "err", err)
		return fail("Error sending request")
	}
	g.outgoing = outgoing

	targetIncoming, err := readRequests(ctx, g.store, domain.IncomingRequestsKey(target))
	if err != nil {
		logger.Error("send friend request: read target incoming", "user", g.username, "target", target, "err", err)
		return fail("Error sending request")
	}
	targetIncoming = append(targetIncoming, domain.FriendRequest{
		Username: g.username,
		SentAt:   now,
		Status:   domain.RequestPending,
	})
	if err := writeRecord(ctx, g.store, domain.IncomingRequestsKey(target), targetIncoming); err != nil {
		logger.Error("send friend request: write target incoming", "user", g.username, "target", target, "err", err)
		return fail("Error sending request")
	}

	return ok("Friend request sent!")
}

// AcceptFriendRequest turns the request from fromUsername into a
// symmetric friendship: a Friend entry on each side, then removal of
// the matching incoming and outgoing records. Four independent writes,
// no rollback on partial failure.
func (g *Graph) AcceptFriendRequest(ctx context.Context, fromUsername string) Result {
	logger := util.LoggerFromContext(ctx)
	now := time.Now().UTC()

	friends := append(g.Friends(), domain.Friend{Username: fromUsername, AddedAt: now})
	if err := writeRecord(ctx, g.store, domain.FriendsKey(g.username), friends); err != nil {
		logger.Error("accept friend request: write own friends", "user", g.username, "from", fromUsername, "err", err)
		return fail("Error accepting request")
	}
	g.friends = friends

	senderFriends, err := readFriends(ctx, g.store, domain.FriendsKey(fromUsername))
	if err != nil {
		logger.Error("accept friend request: read sender friends", "user", g.username, "from", fromUsername, "err", err)
		return fail("Error accepting request")
	}
	senderFriends = append(senderFriends, domain.Friend{Username: g.username, AddedAt: now})
	if err := writeRecord(ctx, g.store, domain.FriendsKey(fromUsername), senderFriends); err != nil {
		logger.Error("accept friend request: write sender friends", "user", g.username, "from", fromUsername, "err", err)
		return fail("Error accepting request")
	}

	incoming := make([]domain.FriendRequest, 0, len(g.incoming))
	for _, r := range g.incoming {
		if r.Username != fromUsername {
			incoming = append(incoming, r)
		}
	}
	if err := writeRecord(ctx, g.store, domain.IncomingRequestsKey(g.username), incoming); err != nil {
		logger.Error("accept friend request: write own incoming", "user", g.username, "from", fromUsername, "err", err)
		return fail("Error accepting request")
	}
	g.incoming = incoming

	senderOutgoing, err := readRequests(ctx, g.store, domain.OutgoingRequestsKey(fromUsername))
	if err != nil {
		logger.Error("accept friend request: read sender outgoing", "user", g.username, "from", fromUsername, "err", err)
		return fail("Error accepting request")
	}
	kept := make([]domain.FriendRequest, 0, len(senderOutgoing))
	for _, r := range senderOutgoing {
		if r.Username != g.username {
			kept = append(kept, r)
		}
	}
	if err := writeRecord(ctx, g.store, domain.OutgoingRequestsKey(fromUsername), kept); err != nil {
		logger.Error("accept friend request: write sender outgoing", "user", g.username, "from", fromUsername, "err", err)
		return fail("Error accepting request")
	}

	return ok("Friend request accepted!")
}

// RejectFriendRequest removes the matching incoming record and rewrites
// the sender's outgoing record to rejected in place. The record is
// retained as history; it no longer counts as a pending request, so the
// sender may send again.
func (g *Graph) RejectFriendRequest(ctx context.Context, fromUsername string) Result {
	logger := util.LoggerFromContext(ctx)

	incoming := make([]domain.FriendRequest, 0, len(g.incoming))
	for _, r := range g.incoming {
		if r.Username != fromUsername {
			incoming = append(incoming, r)
		}
	}
	if err := writeRecord(ctx, g.store, domain.IncomingRequestsKey(g.username), incoming); err != nil {
		logger.Error("reject friend request: write own incoming", "user", g.username, "from", fromUsername, "err", err)
		return fail("Error rejecting request")
	}
	g.incoming = incoming

	senderOutgoing, err := readRequests(ctx, g.store, domain.OutgoingRequestsKey(fromUsername))
	if err != nil {
		logger.Error("reject friend request: read sender outgoing", "user", g.username, "from", fromUsername, "err", err)
		return fail("Error rejecting request")
	}
	for i, r := range senderOutgoing {
		if r.Username == g.username {
			senderOutgoing[i].Status = domain.RequestRejected
		}
	}
	if err := writeRecord(ctx, g.store, domain.OutgoingRequestsKey(fromUsername), senderOutgoing); err != nil {
		logger.Error("reject friend request: write sender outgoing", "user", g.username, "from", fromUsername, "err", err)
		return fail("Error rejecting request")
	}

	return ok("Friend request rejected")
}

// RemoveFriend deletes the friendship edge from both sides. Two
// independent writes; there is no path back to pending without a fresh
// SendFriendRequest.
func (g *Graph) RemoveFriend(ctx context.Context, target string) Result {
	logger := util.LoggerFromContext(ctx)

	friends := make([]domain.Friend, 0, len(g.friends))
	for _, f := range g.friends {
		if f.Username != target {
			friends = append(friends, f)
		}
	}
	if err := writeRecord(ctx, g.store, domain.FriendsKey(g.username), friends); err != nil {
		logger.Error("remove friend: write own friends", "user", g.username, "target", target, "err", err)
		return fail("Error removing friend")
	}
	g.friends = friends

	targetFriends, err := readFriends(ctx, g.store, domain.FriendsKey(target))
	if err != nil {
		logger.Error("remove friend: read target friends", "user", g.username, "target", target, "err", err)
		return fail("Error removing friend")
	}
	kept := make([]domain.Friend, 0, len(targetFriends))
	for _, f := range targetFriends {
		if f.Username != g.username {
			kept = append(kept, f)
		}
	}
	if err := writeRecord(ctx, g.store, domain.FriendsKey(target), kept); err != nil {
		logger.Error("remove friend: write target friends", "user", g.username, "target", target, "err", err)
		return fail("Error removing friend")
	}

	return ok("Friend removed")
}

func readFriends(ctx context.Context, store kvstore.Store, key string) ([]domain.Friend, error) {
	raw, found, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return domain.DecodeFriends(raw)
}

func readRequests(ctx context.Context, store kvstore.Store, key string) ([]domain.FriendRequest, error) {
	raw, found, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return domain.DecodeRequests(raw)
}

func writeRecord(ctx context.Context, store kvstore.Store, key string, v any) error {
	raw, err := domain.Encode(v)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, raw)
}

func userExists(ctx context.Context, store kvstore.Store, username string) (bool, error) {
	raw, found, err := store.Get(ctx, domain.KeyUsers)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	users, err := domain.DecodeUsers(raw)
	if err != nil {
		return false, err
	}
	for _, u := range users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}
