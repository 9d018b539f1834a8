// Package server exposes the HTTP JSON API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kullampallep/beRealProject/internal/app"
	"github.com/kullampallep/beRealProject/internal/identity"
	"github.com/kullampallep/beRealProject/internal/posts"
	"github.com/kullampallep/beRealProject/internal/ratelimit"
	"github.com/kullampallep/beRealProject/internal/social"
	"github.com/kullampallep/beRealProject/internal/util"
	"github.com/kullampallep/beRealProject/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                      *app.App
	RedisAddr                string
	RedisPassword            string
	SignupRateLimitPerMinute int
	LoginRateLimitPerMinute  int
}

// Server exposes HTTP endpoints for the backend.
type Server struct {
	app           *app.App
	mux           *http.ServeMux
	signupLimiter *ratelimit.FixedWindowLimiter
	loginLimiter  *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires an app")
	}
	signupLimit := cfg.SignupRateLimitPerMinute
	if signupLimit <= 0 {
		signupLimit = 5
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	rateWindow := time.Minute
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		prefix := "bereal:server:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, rateWindow)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	signupLimiter, err := newLimiter("signup", signupLimit)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter("login", loginLimit)
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:           cfg.App,
		mux:           http.NewServeMux(),
		signupLimiter: signupLimiter,
		loginLimiter:  loginLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with middleware applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.Handle("/api/auth/logout", s.authenticated(s.handleLogout))
	s.mux.Handle("/api/users/me", s.authenticated(s.handleMe))
	s.mux.Handle("/api/users/search", s.authenticated(s.handleSearch))

	// friend graph
	s.mux.Handle("/api/friends", s.authenticated(s.handleFriends))
	s.mux.Handle("/api/friends/", s.authenticated(s.handleFriendByName))
	s.mux.Handle("/api/friends/requests", s.authenticated(s.handleRequests))
	s.mux.Handle("/api/friends/requests/", s.authenticated(s.handleRequestByName))

	// feed & posts
	s.mux.Handle("/api/feed", s.authenticated(s.handleFeed))
	s.mux.Handle("/api/feed/global", s.authenticated(s.handleGlobalFeed))
	s.mux.Handle("/api/posts", s.authenticated(s.handlePosts))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "server.authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, ok := s.app.UserFromToken(r.Context(), token)
		if !ok {
			s.audit(r, "server.authorize", "fail", "reason", "invalid_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

// auth handlers

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signupLimiter, "too many signup attempts") {
		s.audit(r, "server.signup", "rate_limited")
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "server.signup", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.SignUp(r.Context(), req.Username, req.Password)
	if err != nil {
		s.audit(r, "server.signup", "fail", "reason", err.Error())
		writeIdentityError(w, err)
		return
	}
	s.audit(r, "server.signup", "success", "username", user.Username)
	writeJSON(w, http.StatusCreated, authResponse{
		Token: token,
		User:  domain.PublicUser{Username: user.Username},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "server.login", "rate_limited")
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "server.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.audit(r, "server.login", "fail", "reason", err.Error())
		writeIdentityError(w, err)
		return
	}
	s.audit(r, "server.login", "success", "username", user.Username)
	writeJSON(w, http.StatusOK, authResponse{
		Token: token,
		User:  domain.PublicUser{Username: user.Username},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, _ := bearerToken(r)
	if err := s.app.Logout(r.Context(), token); err != nil {
		s.audit(r, "server.logout", "fail", "username", user.Username, "reason", err.Error())
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	s.audit(r, "server.logout", "success", "username", user.Username)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.ProfileStats(r.Context(), user.Username, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "profile unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":  domain.PublicUser{Username: user.Username},
		"stats": stats,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	term := r.URL.Query().Get("q")
	results := s.app.SearchUsers(r.Context(), user.Username, term)
	writeJSON(w, http.StatusOK, map[string]any{
		"items": results,
		"count": len(results),
	})
}

// friend graph handlers

func (s *Server) handleFriends(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	g, err := s.app.Graph(r.Context(), user.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "friends unavailable")
		return
	}
	friends := g.Friends()
	writeJSON(w, http.StatusOK, map[string]any{
		"items": friends,
		"count": len(friends),
	})
}

// /api/friends/{username}
func (s *Server) handleFriendByName(w http.ResponseWriter, r *http.Request, user domain.User) {
	target := strings.TrimPrefix(r.URL.Path, "/api/friends/")
	if target == "" || strings.Contains(target, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	res := s.app.RemoveFriend(r.Context(), user.Username, target)
	s.auditResult(r, "server.friend.remove", user.Username, target, res)
	writeResult(w, res)
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		g, err := s.app.Graph(r.Context(), user.Username)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "requests unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"incoming": g.IncomingRequests(),
			"outgoing": g.OutgoingRequests(),
		})
	case http.MethodPost:
		var req friendRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		res := s.app.SendFriendRequest(r.Context(), user.Username, strings.TrimSpace(req.Username))
		s.auditResult(r, "server.request.send", user.Username, req.Username, res)
		writeResult(w, res)
	default:
		methodNotAllowed(w)
	}
}

// /api/friends/requests/{username}/accept or /reject
func (s *Server) handleRequestByName(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/friends/requests/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	from := parts[0]
	switch parts[1] {
	case "accept":
		res := s.app.AcceptFriendRequest(r.Context(), user.Username, from)
		s.auditResult(r, "server.request.accept", user.Username, from, res)
		writeResult(w, res)
	case "reject":
		res := s.app.RejectFriendRequest(r.Context(), user.Username, from)
		s.auditResult(r, "server.request.reject", user.Username, from, res)
		writeResult(w, res)
	default:
		http.NotFound(w, r)
	}
}

// feed & post handlers

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	visible, err := s.app.Feed(r.Context(), user.Username, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "feed unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": visible,
		"count": len(visible),
	})
}

func (s *Server) handleGlobalFeed(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	visible, err := s.app.GlobalFeed(r.Context(), time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "feed unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": visible,
		"count": len(visible),
	})
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 32<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	front, _, frontErr := r.FormFile("front")
	back, _, backErr := r.FormFile("back")
	if frontErr != nil || backErr != nil {
		if front != nil {
			front.Close()
		}
		if back != nil {
			back.Close()
		}
		writeError(w, http.StatusBadRequest, "both front and back photos are required")
		return
	}
	defer front.Close()
	defer back.Close()

	post, err := s.app.CreatePost(r.Context(), user.Username, posts.Capture{
		Front: front, FrontSize: -1,
		Back: back, BackSize: -1,
		ContentType: "image/jpeg",
	})
	if err != nil {
		if errors.Is(err, posts.ErrBothAnglesRequired) {
			writeError(w, http.StatusBadRequest, "both front and back photos are required")
			return
		}
		s.audit(r, "server.post.create", "fail", "username", user.Username, "reason", err.Error())
		writeError(w, http.StatusInternalServerError, "post failed")
		return
	}
	s.audit(r, "server.post.create", "success", "username", user.Username, "post_id", post.ID)
	writeJSON(w, http.StatusCreated, post)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string            `json:"token"`
	User  domain.PublicUser `json:"user"`
}

type friendRequest struct {
	Username string `json:"username"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeResult returns graph mutation outcomes with their exact
// messages; clients branch on the success flag, not the status code.
func writeResult(w http.ResponseWriter, res social.Result) {
	writeJSON(w, http.StatusOK, res)
}

func writeIdentityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrMissingCredentials):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrUsernameTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logger := util.LoggerFromContext(r.Context())
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, nil),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func (s *Server) auditResult(r *http.Request, event, actor, subject string, res social.Result) {
	outcome := "fail"
	if res.Success {
		outcome = "success"
	}
	s.audit(r, event, outcome, "username", actor, "subject", subject, "message", res.Message)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, nil)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}
