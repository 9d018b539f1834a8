package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kullampallep/beRealProject/internal/identity"
	"github.com/kullampallep/beRealProject/internal/posts"
	"github.com/kullampallep/beRealProject/pkg/events"
	"github.com/kullampallep/beRealProject/pkg/kvstore"
	"github.com/kullampallep/beRealProject/pkg/objstore"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestApp(t *testing.T) (*App, *recordedEvents) {
	t.Helper()
	objects, err := objstore.NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	recorder := &recordedEvents{}
	a, err := New(Config{
		KVBackend:  "memory",
		Store:      kvstore.NewMemory(),
		JWTSecret:  "test-secret",
		SessionTTL: time.Hour,
		Objects:    objects,
		Events:     recorder,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, recorder
}

func signup(t *testing.T, a *App, username string) string {
	t.Helper()
	_, token, err := a.SignUp(context.Background(), username, "pw-"+username)
	if err != nil {
		t.Fatalf("signup %s: %v", username, err)
	}
	return token
}

func TestSignUpLoginLogout(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	user, token, err := a.SignUp(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if user.Username != "alice" || token == "" {
		t.Fatalf("signup result: %+v token=%q", user, token)
	}

	if resolved, ok := a.UserFromToken(ctx, token); !ok || resolved.Username != "alice" {
		t.Fatalf("token should resolve to alice, got %+v ok=%v", resolved, ok)
	}

	if _, _, err := a.SignUp(ctx, "alice", "other"); !errors.Is(err, identity.ErrUsernameTaken) {
		t.Fatalf("duplicate signup: got %v", err)
	}

	if _, _, err := a.Login(ctx, "alice", "wrong"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("bad login: got %v", err)
	}
	_, loginToken, err := a.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := a.Logout(ctx, loginToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := a.UserFromToken(ctx, "garbage"); ok {
		t.Fatal("garbage token should not resolve")
	}
}

func TestFriendLifecycleThroughApp(t *testing.T) {
	a, recorder := newTestApp(t)
	ctx := context.Background()
	signup(t, a, "alice")
	signup(t, a, "bob")

	if res := a.SendFriendRequest(ctx, "alice", "bob"); !res.Success {
		t.Fatalf("send: %+v", res)
	}
	if res := a.AcceptFriendRequest(ctx, "bob", "alice"); !res.Success {
		t.Fatalf("accept: %+v", res)
	}

	g, err := a.Graph(ctx, "alice")
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if !g.IsFriend("bob") {
		t.Fatal("alice and bob should be friends")
	}

	if res := a.RemoveFriend(ctx, "alice", "bob"); !res.Success {
		t.Fatalf("remove: %+v", res)
	}

	got := strings.Join(recorder.types(), ",")
	for _, want := range []string{events.TypeFriendRequestSent, events.TypeFriendRequestAccepted, events.TypeFriendRemoved} {
		if !strings.Contains(got, want) {
			t.Fatalf("events %q missing %q", got, want)
		}
	}
}

func TestFeedVisibilityThroughApp(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	signup(t, a, "alice")
	signup(t, a, "bob")
	signup(t, a, "carol")

	capture := func() posts.Capture {
		return posts.Capture{
			Front: strings.NewReader("front"), FrontSize: 5,
			Back: strings.NewReader("back"), BackSize: 4,
		}
	}
	if _, err := a.CreatePost(ctx, "bob", capture()); err != nil {
		t.Fatalf("bob post: %v", err)
	}
	if _, err := a.CreatePost(ctx, "carol", capture()); err != nil {
		t.Fatalf("carol post: %v", err)
	}
	if _, err := a.CreatePost(ctx, "alice", capture()); err != nil {
		t.Fatalf("alice post: %v", err)
	}

	a.SendFriendRequest(ctx, "alice", "bob")
	a.AcceptFriendRequest(ctx, "bob", "alice")

	now := time.Now()
	visible, err := a.Feed(ctx, "alice", now)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	authors := make(map[string]bool)
	for _, p := range visible {
		authors[p.Author()] = true
	}
	if !authors["alice"] || !authors["bob"] || authors["carol"] {
		t.Fatalf("alice feed authors = %v, want alice+bob only", authors)
	}

	global, err := a.GlobalFeed(ctx, now)
	if err != nil {
		t.Fatalf("global feed: %v", err)
	}
	if len(global) != 3 {
		t.Fatalf("global feed has %d posts, want 3", len(global))
	}

	stats, err := a.ProfileStats(ctx, "alice", now)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 || stats.ThisWeek != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	if _, err := New(Config{KVBackend: "dynamo", JWTSecret: "s"}); err == nil {
		t.Fatal("unknown kv backend should error")
	}
	if _, err := New(Config{KVBackend: "memory", SessionBackend: "cookie", DataDir: t.TempDir()}); err == nil {
		t.Fatal("unknown session backend should error")
	}
}
