// Package app wires storage, identity, and the social graph into the
// application surface the HTTP server exposes.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kullampallep/beRealProject/internal/feed"
	"github.com/kullampallep/beRealProject/internal/identity"
	"github.com/kullampallep/beRealProject/internal/posts"
	"github.com/kullampallep/beRealProject/internal/social"
	"github.com/kullampallep/beRealProject/internal/util"
	"github.com/kullampallep/beRealProject/pkg/domain"
	"github.com/kullampallep/beRealProject/pkg/events"
	"github.com/kullampallep/beRealProject/pkg/kvstore"
	"github.com/kullampallep/beRealProject/pkg/objstore"
	"github.com/kullampallep/beRealProject/pkg/session"
)

// Config holds runtime configuration for the core application.
type Config struct {
	KVBackend     string
	KVPrefix      string
	RedisAddr     string
	RedisPassword string
	DatabaseURL   string

	SessionBackend string
	SessionTTL     time.Duration
	JWTSecret      string

	StorageBackend string
	DataDir        string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	EventsStream string

	// Injected implementations take precedence over the backend
	// selectors above. Tests use these.
	Store    kvstore.Store
	Sessions session.Store
	Objects  objstore.Store
	Events   events.Publisher
}

// App is the core application service.
type App struct {
	store     kvstore.Store
	sessions  session.Store
	identity  *identity.Session
	directory *social.Directory
	posts     *posts.Service
	events    events.Publisher
}

// New constructs the application from config, falling back through the
// configured backends.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = session.DefaultTTL
	}

	store := cfg.Store
	if store == nil {
		var err error
		store, err = newKVStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	sessions := cfg.Sessions
	if sessions == nil {
		var err error
		sessions, err = newSessionStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = newObjectStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	publisher := cfg.Events
	if publisher == nil {
		if cfg.RedisAddr != "" {
			p, err := events.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.EventsStream, 0)
			if err != nil {
				return nil, fmt.Errorf("init event journal: %w", err)
			}
			publisher = p
		} else {
			publisher = events.Discard{}
		}
	}

	return &App{
		store:     store,
		sessions:  sessions,
		identity:  identity.NewSession(store),
		directory: social.NewDirectory(store),
		posts:     posts.NewService(store, objects),
		events:    publisher,
	}, nil
}

func newKVStore(cfg Config) (kvstore.Store, error) {
	switch cfg.KVBackend {
	case "", "redis":
		if cfg.RedisAddr == "" {
			return nil, errors.New("redisAddr required for redis kv backend")
		}
		store := kvstore.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.KVPrefix)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping kv redis: %w", err)
		}
		return store, nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("databaseURL required for postgres kv backend")
		}
		store, err := kvstore.NewGorm(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres kv store: %w", err)
		}
		return store, nil
	case "memory":
		return kvstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown kv backend %q", cfg.KVBackend)
	}
}

func newSessionStore(cfg Config) (session.Store, error) {
	switch cfg.SessionBackend {
	case "", "jwt":
		return session.NewJWT(cfg.JWTSecret, cfg.SessionTTL)
	case "redis":
		return session.NewRedis(cfg.RedisAddr, cfg.RedisPassword, "", cfg.SessionTTL)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

func newObjectStore(cfg Config) (objstore.Store, error) {
	switch cfg.StorageBackend {
	case "minio":
		return objstore.NewMinio(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	case "", "file":
		dir := cfg.DataDir
		if dir == "" {
			dir = "data"
		}
		return objstore.NewFile(dir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// SignUp registers a user and issues a session token.
func (a *App) SignUp(ctx context.Context, username, password string) (domain.User, string, error) {
	user, err := a.identity.Signup(ctx, username, password)
	if err != nil {
		return domain.User{}, "", err
	}
	token, err := a.sessions.Issue(ctx, user.Username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	a.publish(ctx, events.Event{Type: events.TypeUserSignedUp, Actor: user.Username})
	return user, token, nil
}

// Login validates credentials and issues a session token.
func (a *App) Login(ctx context.Context, username, password string) (domain.User, string, error) {
	user, err := a.identity.Login(ctx, username, password)
	if err != nil {
		return domain.User{}, "", err
	}
	token, err := a.sessions.Issue(ctx, user.Username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Logout revokes the token and clears the persisted active user.
func (a *App) Logout(ctx context.Context, token string) error {
	if err := a.sessions.Revoke(ctx, token); err != nil {
		return err
	}
	return a.identity.Logout(ctx)
}

// UserFromToken resolves a session token to a directory user.
func (a *App) UserFromToken(ctx context.Context, token string) (domain.User, bool) {
	username, err := a.sessions.Resolve(ctx, token)
	if err != nil {
		return domain.User{}, false
	}
	user, found, err := a.identity.Lookup(ctx, username)
	if err != nil || !found {
		return domain.User{}, false
	}
	return user, true
}

// SearchUsers finds directory users matching term, excluding self.
func (a *App) SearchUsers(ctx context.Context, self, term string) []domain.PublicUser {
	return a.directory.SearchUsers(ctx, self, term)
}

// Graph loads a user's social graph from the store.
func (a *App) Graph(ctx context.Context, username string) (*social.Graph, error) {
	g := social.NewGraph(a.store, username)
	if err := g.Load(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// SendFriendRequest sends a request from username to target.
func (a *App) SendFriendRequest(ctx context.Context, username, target string) social.Result {
	g, err := a.Graph(ctx, username)
	if err != nil {
		return graphLoadFailure(ctx, err, "Error sending request")
	}
	res := g.SendFriendRequest(ctx, target)
	if res.Success {
		a.publish(ctx, events.Event{Type: events.TypeFriendRequestSent, Actor: username, Subject: target})
	}
	return res
}

// AcceptFriendRequest accepts a pending request from fromUsername.
func (a *App) AcceptFriendRequest(ctx context.Context, username, fromUsername string) social.Result {
	g, err := a.Graph(ctx, username)
	if err != nil {
		return graphLoadFailure(ctx, err, "Error accepting request")
	}
	res := g.AcceptFriendRequest(ctx, fromUsername)
	if res.Success {
		a.publish(ctx, events.Event{Type: events.TypeFriendRequestAccepted, Actor: username, Subject: fromUsername})
	}
	return res
}

// RejectFriendRequest rejects a pending request from fromUsername.
func (a *App) RejectFriendRequest(ctx context.Context, username, fromUsername string) social.Result {
	g, err := a.Graph(ctx, username)
	if err != nil {
		return graphLoadFailure(ctx, err, "Error rejecting request")
	}
	res := g.RejectFriendRequest(ctx, fromUsername)
	if res.Success {
		a.publish(ctx, events.Event{Type: events.TypeFriendRequestRejected, Actor: username, Subject: fromUsername})
	}
	return res
}

// RemoveFriend removes the friendship on both sides.
func (a *App) RemoveFriend(ctx context.Context, username, target string) social.Result {
	g, err := a.Graph(ctx, username)
	if err != nil {
		return graphLoadFailure(ctx, err, "Error removing friend")
	}
	res := g.RemoveFriend(ctx, target)
	if res.Success {
		a.publish(ctx, events.Event{Type: events.TypeFriendRemoved, Actor: username, Subject: target})
	}
	return res
}

// CreatePost captures a dual-angle post for the user.
func (a *App) CreatePost(ctx context.Context, username string, capture posts.Capture) (domain.Post, error) {
	post, err := a.posts.Create(ctx, username, capture)
	if err != nil {
		return domain.Post{}, err
	}
	a.publish(ctx, events.Event{Type: events.TypePostCreated, Actor: username, Subject: post.ID})
	return post, nil
}

// Feed returns today's posts visible to the viewer, newest first.
func (a *App) Feed(ctx context.Context, viewer string, ref time.Time) ([]domain.Post, error) {
	all, err := a.posts.All(ctx)
	if err != nil {
		return nil, err
	}
	g, err := a.Graph(ctx, viewer)
	if err != nil {
		return nil, err
	}
	return feed.Compose(all, viewer, g.Friends(), ref), nil
}

// GlobalFeed returns today's posts from every user, newest first.
func (a *App) GlobalFeed(ctx context.Context, ref time.Time) ([]domain.Post, error) {
	all, err := a.posts.All(ctx)
	if err != nil {
		return nil, err
	}
	return feed.ComposeGlobal(all, ref), nil
}

// PostURL resolves a stored photo key to a fetchable URL.
func (a *App) PostURL(ctx context.Context, key string) (string, error) {
	return a.posts.BlobURL(ctx, key, time.Hour)
}

// ProfileStats summarizes a user's posting history.
func (a *App) ProfileStats(ctx context.Context, username string, ref time.Time) (posts.Stats, error) {
	return a.posts.StatsFor(ctx, username, ref)
}

// publish journals an event, logging instead of failing the mutation
// when the journal is down.
func (a *App) publish(ctx context.Context, event events.Event) {
	if err := a.events.Publish(ctx, event); err != nil {
		util.LoggerFromContext(ctx).Warn("event journal write failed",
			"type", event.Type, "actor", event.Actor, "err", err)
	}
}

func graphLoadFailure(ctx context.Context, err error, msg string) social.Result {
	util.LoggerFromContext(ctx).Error("load social graph failed", "err", err)
	return social.Result{Success: false, Message: msg}
}
