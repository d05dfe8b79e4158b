package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

// MockTime provides a controllable time source for deterministic testing.
// It is safe for concurrent use.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Paths served by TokenServer
const (
	TokenPath      = "/token"
	DevicePath     = "/devicecode"
	RevocationPath = "/revoke"
	AuthorizePath  = "/authorize"
)

// ScriptedResponse is one canned provider answer
type ScriptedResponse struct {
	Status int
	Body   string

	// Release, when set, blocks the response until it is closed
	Release <-chan struct{}
}

// RecordedRequest is a request received by TokenServer
type RecordedRequest struct {
	Path       string
	Form       url.Values
	Header     http.Header
	ReceivedAt time.Time
}

// TokenServer is an httptest server answering token, device authorization
// and revocation requests from per-path scripts, recording every request.
type TokenServer struct {
	*httptest.Server

	t        testing.TB
	mu       sync.Mutex
	scripts  map[string][]ScriptedResponse
	repeat   map[string]ScriptedResponse
	requests []RecordedRequest
}

// NewTokenServer starts a scripted server; it is closed on test cleanup
func NewTokenServer(t testing.TB) *TokenServer {
	t.Helper()
	s := &TokenServer{
		t:       t,
		scripts: make(map[string][]ScriptedResponse),
		repeat:  make(map[string]ScriptedResponse),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Script queues responses for path, answered in order
func (s *TokenServer) Script(path string, responses ...ScriptedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[path] = append(s.scripts[path], responses...)
}

// Always answers every request to path with r once its script is exhausted
func (s *TokenServer) Always(path string, r ScriptedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repeat[path] = r
}

// Count returns how many requests reached path
func (s *TokenServer) Count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

// Requests returns the requests received on path
func (s *TokenServer) Requests(path string) []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RecordedRequest
	for _, r := range s.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// TokenURL returns the token endpoint URL
func (s *TokenServer) TokenURL() string { return s.URL + TokenPath }

// DeviceAuthURL returns the device authorization endpoint URL
func (s *TokenServer) DeviceAuthURL() string { return s.URL + DevicePath }

// RevocationURL returns the revocation endpoint URL
func (s *TokenServer) RevocationURL() string { return s.URL + RevocationPath }

// AuthURL returns the authorization endpoint URL (never served)
func (s *TokenServer) AuthURL() string { return s.URL + AuthorizePath }

func (s *TokenServer) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.t.Errorf("testutil: failed to parse form: %v", err)
	}

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Path:       r.URL.Path,
		Form:       r.PostForm,
		Header:     r.Header.Clone(),
		ReceivedAt: time.Now(),
	})
	resp, ok := s.next(r.URL.Path)
	s.mu.Unlock()

	if !ok {
		s.t.Errorf("testutil: unexpected request to %s", r.URL.Path)
		resp = ErrorResponse(http.StatusInternalServerError, "server_error", "unscripted request")
	}
	if resp.Release != nil {
		select {
		case <-resp.Release:
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(resp.Status)
	_, _ = w.Write([]byte(resp.Body))
}

// next pops the next response for path; callers hold s.mu
func (s *TokenServer) next(path string) (ScriptedResponse, bool) {
	if queue := s.scripts[path]; len(queue) > 0 {
		s.scripts[path] = queue[1:]
		return queue[0], true
	}
	r, ok := s.repeat[path]
	return r, ok
}

// TokenResponse builds a successful token response. An empty refresh token
// or zero lifetime is omitted.
func TokenResponse(accessToken, refreshToken string, expiresIn int) ScriptedResponse {
	body := map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
	}
	if refreshToken != "" {
		body["refresh_token"] = refreshToken
	}
	if expiresIn > 0 {
		body["expires_in"] = expiresIn
	}
	return JSONResponse(http.StatusOK, body)
}

// ErrorResponse builds an OAuth error response
func ErrorResponse(status int, code, description string) ScriptedResponse {
	return JSONResponse(status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

// DeviceAuthorizationResponse builds a device authorization response
func DeviceAuthorizationResponse(deviceCode, userCode string, expiresIn, interval int) ScriptedResponse {
	body := map[string]any{
		"device_code":      deviceCode,
		"user_code":        userCode,
		"verification_uri": "https://example.com/device",
		"expires_in":       expiresIn,
	}
	if interval > 0 {
		body["interval"] = interval
	}
	return JSONResponse(http.StatusOK, body)
}

// JSONResponse marshals body into a scripted response
func JSONResponse(status int, body any) ScriptedResponse {
	b, err := json.Marshal(body)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal response: %v", err))
	}
	return ScriptedResponse{Status: status, Body: string(b)}
}

// GenerateRandomString generates a random base64-encoded string
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// AssertTimeEqual asserts two times are equal within a tolerance
func AssertTimeEqual(t *testing.T, got, want time.Time, tolerance time.Duration) {
	t.Helper()
	diff := got.Sub(want)
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		t.Errorf("time mismatch: got %v, want %v (tolerance: %v, diff: %v)", got, want, tolerance, diff)
	}
}
