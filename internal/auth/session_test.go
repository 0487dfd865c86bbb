package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestManager(t *testing.T, password string, ttl time.Duration) (*SessionManager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	sm := NewSessionManager("analyst", password, ttl)
	sm.now = clock.Now
	return sm, clock
}

func TestLogin(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	tests := []struct {
		name     string
		stored   string
		user     string
		password string
		wantErr  bool
	}{
		{"plain ok", "s3cret", "analyst", "s3cret", false},
		{"plain wrong password", "s3cret", "analyst", "nope", true},
		{"wrong user", "s3cret", "admin", "s3cret", true},
		{"bcrypt ok", hash, "analyst", "s3cret", false},
		{"bcrypt wrong", hash, "analyst", "S3cret", true},
	}

	for _, tt := range tests {
		sm, _ := newTestManager(t, tt.stored, time.Hour)
		s, err := sm.Login(tt.user, tt.password)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Login error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("%s: expected ErrInvalidCredentials, got %v", tt.name, err)
		}
		if err == nil && s.ID == "" {
			t.Errorf("%s: expected a session id", tt.name)
		}
	}
}

func TestSessionExpiry(t *testing.T) {
	sm, clock := newTestManager(t, "pw", time.Hour)

	s, err := sm.Login("analyst", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if s.ExpiresAt.Sub(s.CreatedAt) != time.Hour {
		t.Errorf("TTL = %v, expected 1h", s.ExpiresAt.Sub(s.CreatedAt))
	}

	clock.t = clock.t.Add(59 * time.Minute)
	if _, err := sm.Validate(s.ID); err != nil {
		t.Errorf("Validate before expiry: %v", err)
	}

	clock.t = clock.t.Add(time.Minute)
	if _, err := sm.Validate(s.ID); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Validate at expiry: expected ErrSessionExpired, got %v", err)
	}
	if _, err := sm.Validate(s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Validate after removal: expected ErrSessionNotFound, got %v", err)
	}
}

func TestLogoutAndCount(t *testing.T) {
	sm, clock := newTestManager(t, "pw", time.Hour)

	a, _ := sm.Login("analyst", "pw")
	clock.t = clock.t.Add(30 * time.Minute)
	b, _ := sm.Login("analyst", "pw")
	if a.ID == b.ID {
		t.Fatal("expected unique session ids")
	}
	if n := sm.Count(); n != 2 {
		t.Errorf("Count = %d, expected 2", n)
	}

	sm.Logout(b.ID)
	sm.Logout("unknown")
	if n := sm.Count(); n != 1 {
		t.Errorf("Count after logout = %d, expected 1", n)
	}

	clock.t = clock.t.Add(31 * time.Minute)
	if n := sm.Count(); n != 0 {
		t.Errorf("Count after expiry = %d, expected 0", n)
	}
}

func TestLastResult(t *testing.T) {
	sm, _ := newTestManager(t, "pw", 0)
	s, _ := sm.Login("analyst", "pw")

	if _, ok := sm.LastResult(s.ID); ok {
		t.Error("expected no result before extraction")
	}

	first := &models.ExtractionResult{FileName: "a.xlsm"}
	second := &models.ExtractionResult{FileName: "b.xlsm"}
	sm.SetLastResult(s.ID, first)
	sm.SetLastResult(s.ID, second)

	got, ok := sm.LastResult(s.ID)
	if !ok || got.FileName != "b.xlsm" {
		t.Errorf("LastResult = %+v, %v; expected b.xlsm", got, ok)
	}

	sm.Logout(s.ID)
	if _, ok := sm.LastResult(s.ID); ok {
		t.Error("expected result to be discarded with the session")
	}
}

func TestLastResultWithoutAuth(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	sm := NewSessionManager("", "", time.Hour)
	sm.now = clock.Now

	sm.SetLastResult("client-a", &models.ExtractionResult{FileName: "a.xlsx"})
	sm.SetLastResult("client-b", &models.ExtractionResult{FileName: "b.xlsx"})
	sm.SetLastResult("", &models.ExtractionResult{FileName: "nobody.xlsx"})

	tests := []struct {
		id       string
		expected string
	}{
		{"client-a", "a.xlsx"},
		{"client-b", "b.xlsx"},
		{"client-c", ""},
		{"", ""},
	}

	for _, tt := range tests {
		got, ok := sm.LastResult(tt.id)
		if tt.expected == "" {
			if ok {
				t.Errorf("LastResult(%q) = %+v, expected none", tt.id, got)
			}
			continue
		}
		if !ok || got.FileName != tt.expected {
			t.Errorf("LastResult(%q) = %+v, %v; expected %s", tt.id, got, ok, tt.expected)
		}
	}

	clock.t = clock.t.Add(time.Hour)
	if _, ok := sm.LastResult("client-a"); ok {
		t.Error("expected the anonymous result to expire with the session TTL")
	}
}

func TestMiddleware(t *testing.T) {
	sm, _ := newTestManager(t, "pw", time.Hour)
	s, _ := sm.Login("analyst", "pw")

	var seen string
	handler := sm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name     string
		setup    func(r *http.Request)
		expected int
	}{
		{"no token", func(r *http.Request) {}, http.StatusUnauthorized},
		{"bad cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: "x"}) }, http.StatusUnauthorized},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: s.ID}) }, http.StatusOK},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+s.ID) }, http.StatusOK},
	}

	for _, tt := range tests {
		seen = ""
		req := httptest.NewRequest(http.MethodGet, "/api/extract", nil)
		tt.setup(req)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != tt.expected {
			t.Errorf("%s: status = %d, expected %d", tt.name, rec.Code, tt.expected)
		}
		if tt.expected == http.StatusOK && seen != s.ID {
			t.Errorf("%s: session id in context = %q", tt.name, seen)
		}
	}
}

func TestMiddlewareUnauthorizedBody(t *testing.T) {
	sm, _ := newTestManager(t, "pw", time.Hour)
	handler := sm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without a session")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results/last", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, expected 401", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body %q: %v", rec.Body.String(), err)
	}
	if body["error"] != ErrSessionNotFound.Error() {
		t.Errorf("error = %q, expected %q", body["error"], ErrSessionNotFound.Error())
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	sm := NewSessionManager("", "", 0)
	var seen string
	handler := sm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" {
		t.Fatal("expected an anonymous client id in the context")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName || cookies[0].Value != seen {
		t.Fatalf("expected a client cookie carrying %q, got %v", seen, cookies)
	}

	// A returning client keeps its id and gets no new cookie.
	first := seen
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != first {
		t.Errorf("client id = %q, expected %q", seen, first)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Errorf("unexpected cookies %v", rec.Result().Cookies())
	}
}
