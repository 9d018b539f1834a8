package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kullampallep/beRealProject/internal/app"
	"github.com/kullampallep/beRealProject/pkg/events"
	"github.com/kullampallep/beRealProject/pkg/kvstore"
	"github.com/kullampallep/beRealProject/pkg/objstore"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	objects, err := objstore.NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	a, err := app.New(app.Config{
		Store:      kvstore.NewMemory(),
		JWTSecret:  "test-secret",
		SessionTTL: time.Hour,
		Objects:    objects,
		Events:     events.Discard{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := New(Config{
		App:                      a,
		RedisAddr:                mr.Addr(),
		SignupRateLimitPerMinute: 100,
		LoginRateLimitPerMinute:  100,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func getJSON(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func signupUser(t *testing.T, ts *httptest.Server, username string) string {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/auth/signup", "", map[string]string{
		"username": username,
		"password": "pw-" + username,
	})
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("signup %s: status %d body %s", username, resp.StatusCode, body)
	}
	var out struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &out)
	if out.Token == "" {
		t.Fatalf("signup %s: empty token", username)
	}
	return out.Token
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestSignupLoginLogout(t *testing.T) {
	ts := newTestServer(t)
	signupUser(t, ts, "alice")

	// duplicate username
	resp := postJSON(t, ts.URL+"/api/auth/signup", "", map[string]string{"username": "alice", "password": "x"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate signup status %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	// bad credentials
	resp = postJSON(t, ts.URL+"/api/auth/login", "", map[string]string{"username": "alice", "password": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/auth/login", "", map[string]string{"username": "alice", "password": "pw-alice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	var login struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &login)

	resp = postJSON(t, ts.URL+"/api/auth/logout", login.Token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAuthenticatedEndpointsRejectMissingToken(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/users/me", "/api/friends", "/api/feed"} {
		resp := getJSON(t, ts.URL+path, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s status %d, want 401", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestFriendRequestLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	aliceToken := signupUser(t, ts, "alice")
	bobToken := signupUser(t, ts, "bob")

	resp := postJSON(t, ts.URL+"/api/friends/requests", aliceToken, map[string]string{"username": "bob"})
	var sent struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	decodeBody(t, resp, &sent)
	if !sent.Success || sent.Message != "Friend request sent!" {
		t.Fatalf("send result: %+v", sent)
	}

	// bob sees the incoming request
	resp = getJSON(t, ts.URL+"/api/friends/requests", bobToken)
	var requests struct {
		Incoming []struct {
			Username string `json:"username"`
		} `json:"incoming"`
	}
	decodeBody(t, resp, &requests)
	if len(requests.Incoming) != 1 || requests.Incoming[0].Username != "alice" {
		t.Fatalf("bob incoming: %+v", requests.Incoming)
	}

	resp = postJSON(t, ts.URL+"/api/friends/requests/alice/accept", bobToken, nil)
	var accepted struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	decodeBody(t, resp, &accepted)
	if !accepted.Success || accepted.Message != "Friend request accepted!" {
		t.Fatalf("accept result: %+v", accepted)
	}

	// both sides list the friendship
	for name, token := range map[string]string{"alice": aliceToken, "bob": bobToken} {
		resp = getJSON(t, ts.URL+"/api/friends", token)
		var friends struct {
			Count int `json:"count"`
		}
		decodeBody(t, resp, &friends)
		if friends.Count != 1 {
			t.Fatalf("%s friend count %d, want 1", name, friends.Count)
		}
	}

	// remove
	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/friends/bob", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	var removed struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	decodeBody(t, delResp, &removed)
	if !removed.Success || removed.Message != "Friend removed" {
		t.Fatalf("remove result: %+v", removed)
	}
}

func TestSendRequestToUnknownUser(t *testing.T) {
	ts := newTestServer(t)
	token := signupUser(t, ts, "alice")
	resp := postJSON(t, ts.URL+"/api/friends/requests", token, map[string]string{"username": "ghost"})
	var res struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	decodeBody(t, resp, &res)
	if res.Success || res.Message != "User not found" {
		t.Fatalf("result: %+v", res)
	}
}

func TestSearchOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	token := signupUser(t, ts, "alice")
	signupUser(t, ts, "Bob")
	signupUser(t, ts, "carol")

	resp := getJSON(t, ts.URL+"/api/users/search?q=bo", token)
	var out struct {
		Items []struct {
			Username string `json:"username"`
		} `json:"items"`
		Count int `json:"count"`
	}
	decodeBody(t, resp, &out)
	if out.Count != 1 || out.Items[0].Username != "Bob" {
		t.Fatalf("search result: %+v", out)
	}
}

func capturePost(t *testing.T, ts *httptest.Server, token string, includeBack bool) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("front", "front.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fmt.Fprint(fw, "front-bytes")
	if includeBack {
		bw, err := mw.CreateFormFile("back", "back.jpg")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fmt.Fprint(bw, "back-bytes")
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/posts", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func TestPostCaptureAndFeed(t *testing.T) {
	ts := newTestServer(t)
	aliceToken := signupUser(t, ts, "alice")
	bobToken := signupUser(t, ts, "bob")

	resp := capturePost(t, ts, bobToken, true)
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("capture status %d body %s", resp.StatusCode, body)
	}
	resp.Body.Close()

	// front only is rejected
	resp = capturePost(t, ts, bobToken, false)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("front-only capture status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	// without friendship alice sees nothing of bob's
	resp = getJSON(t, ts.URL+"/api/feed", aliceToken)
	var feed struct {
		Count int `json:"count"`
	}
	decodeBody(t, resp, &feed)
	if feed.Count != 0 {
		t.Fatalf("feed count %d, want 0 before friendship", feed.Count)
	}

	postJSON(t, ts.URL+"/api/friends/requests", aliceToken, map[string]string{"username": "bob"}).Body.Close()
	postJSON(t, ts.URL+"/api/friends/requests/alice/accept", bobToken, nil).Body.Close()

	resp = getJSON(t, ts.URL+"/api/feed", aliceToken)
	decodeBody(t, resp, &feed)
	if feed.Count != 1 {
		t.Fatalf("feed count %d, want 1 after friendship", feed.Count)
	}

	// global feed shows it regardless
	resp = getJSON(t, ts.URL+"/api/feed/global", aliceToken)
	decodeBody(t, resp, &feed)
	if feed.Count != 1 {
		t.Fatalf("global feed count %d, want 1", feed.Count)
	}
}

func TestProfileStats(t *testing.T) {
	ts := newTestServer(t)
	token := signupUser(t, ts, "alice")
	capturePost(t, ts, token, true).Body.Close()

	resp := getJSON(t, ts.URL+"/api/users/me", token)
	var me struct {
		User struct {
			Username string `json:"username"`
		} `json:"user"`
		Stats struct {
			Total    int `json:"total"`
			ThisWeek int `json:"thisWeek"`
		} `json:"stats"`
	}
	decodeBody(t, resp, &me)
	if me.User.Username != "alice" || me.Stats.Total != 1 || me.Stats.ThisWeek != 1 {
		t.Fatalf("me response: %+v", me)
	}
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	objects, err := objstore.NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	a, err := app.New(app.Config{
		Store:     kvstore.NewMemory(),
		JWTSecret: "test-secret",
		Objects:   objects,
		Events:    events.Discard{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := New(Config{
		App:                     a,
		RedisAddr:               mr.Addr(),
		LoginRateLimitPerMinute: 2,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	body := map[string]string{"username": "alice", "password": "x"}
	for i := 0; i < 2; i++ {
		resp := postJSON(t, ts.URL+"/api/auth/login", "", body)
		if resp.StatusCode == http.StatusTooManyRequests {
			t.Fatalf("request %d should not be limited", i+1)
		}
		resp.Body.Close()
	}
	resp := postJSON(t, ts.URL+"/api/auth/login", "", body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("third login status %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q", resp.Header.Get("Retry-After"))
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	token := signupUser(t, ts, "alice")
	resp := postJSON(t, ts.URL+"/api/feed", token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status %d, want 405", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		t.Fatalf("content type %q", resp.Header.Get("Content-Type"))
	}
}
