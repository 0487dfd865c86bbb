// Package auth guards the HTTP API with a single shared login and in-memory sessions.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/models"
)

// DefaultSessionTTL is used when no TTL is configured.
const DefaultSessionTTL = 12 * time.Hour

// CookieName is the session cookie set by the login handler.
const CookieName = "exmacro_session"

var (
	// ErrInvalidCredentials is returned by Login for a wrong username or password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrSessionNotFound is returned for unknown or logged-out session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned once a session outlives its TTL.
	ErrSessionExpired = errors.New("session expired")
)

// Session is one logged-in browser or API client.
type Session struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// lastResult is the most recent extraction of this session.
	lastResult *models.ExtractionResult
}

// SessionManager checks the shared credential and tracks sessions.
type SessionManager struct {
	username string
	password string
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	// anonymous holds last results per client cookie while no credential is
	// configured.
	anonymous map[string]*anonymousSlot
}

type anonymousSlot struct {
	result    *models.ExtractionResult
	expiresAt time.Time
}

// NewSessionManager creates a SessionManager. A password beginning with "$2"
// is compared as a bcrypt hash, anything else as plain text. If ttl is zero,
// DefaultSessionTTL is used.
func NewSessionManager(username, password string, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		username: username,
		password: password,
		ttl:      ttl,
		now:       time.Now,
		sessions:  make(map[string]*Session),
		anonymous: make(map[string]*anonymousSlot),
	}
}

// Enabled reports whether a credential is configured. Without one every
// request is allowed.
func (sm *SessionManager) Enabled() bool {
	return sm.username != "" && sm.password != ""
}

// Login verifies the credential and starts a session.
func (sm *SessionManager) Login(username, password string) (*Session, error) {
	if !sm.Enabled() || !sm.verify(username, password) {
		return nil, ErrInvalidCredentials
	}

	now := sm.now()
	s := &Session{
		ID:        uuid.NewString(),
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(sm.ttl),
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.purgeLocked(now)
	sm.sessions[s.ID] = s

	copied := *s
	return &copied, nil
}

func (sm *SessionManager) verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(sm.username)) == 1
	var passOK bool
	if strings.HasPrefix(sm.password, "$2") {
		passOK = bcrypt.CompareHashAndPassword([]byte(sm.password), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(sm.password)) == 1
	}
	return userOK && passOK
}

// Validate returns the session if it exists and has not expired. Expired
// sessions are removed.
func (sm *SessionManager) Validate(id string) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, ok := sm.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !sm.now().Before(s.ExpiresAt) {
		delete(sm.sessions, id)
		return nil, ErrSessionExpired
	}

	copied := *s
	return &copied, nil
}

// Logout ends a session. Unknown ids are ignored.
func (sm *SessionManager) Logout(id string) {
	sm.mu.Lock()
	delete(sm.sessions, id)
	sm.mu.Unlock()
}

// SetLastResult stores the latest extraction of a session, replacing the
// previous one. Without a credential, id is the client cookie issued by
// Middleware and the result expires after the session TTL.
func (sm *SessionManager) SetLastResult(id string, result *models.ExtractionResult) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.Enabled() {
		if id == "" {
			return
		}
		now := sm.now()
		sm.purgeLocked(now)
		sm.anonymous[id] = &anonymousSlot{result: result, expiresAt: now.Add(sm.ttl)}
		return
	}
	if s, ok := sm.sessions[id]; ok {
		s.lastResult = result
	}
}

// LastResult returns the latest extraction of a session.
func (sm *SessionManager) LastResult(id string) (*models.ExtractionResult, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.Enabled() {
		slot, ok := sm.anonymous[id]
		if !ok || !sm.now().Before(slot.expiresAt) {
			return nil, false
		}
		return slot.result, true
	}
	s, ok := sm.sessions[id]
	if !ok || s.lastResult == nil {
		return nil, false
	}
	return s.lastResult, true
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.purgeLocked(sm.now())
	return len(sm.sessions)
}

func (sm *SessionManager) purgeLocked(now time.Time) {
	for id, s := range sm.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(sm.sessions, id)
		}
	}
	for id, slot := range sm.anonymous {
		if !now.Before(slot.expiresAt) {
			delete(sm.anonymous, id)
		}
	}
}

// HashPassword generates a bcrypt hash suitable for the auth.password setting.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type contextKey struct{}

// SessionID returns the session id stored in ctx by Middleware.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// WithSessionID returns a copy of ctx carrying id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// Middleware rejects requests without a valid session cookie or bearer token
// with 401. When no credential is configured it lets every request through,
// issuing an anonymous client cookie so last results stay per client.
func (sm *SessionManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sm.Enabled() {
			id := TokenFromRequest(r)
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), id)))
			return
		}

		id := TokenFromRequest(r)
		if _, err := sm.Validate(id); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), id)))
	})
}

// TokenFromRequest reads the session id from the cookie or an
// "Authorization: Bearer" header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
