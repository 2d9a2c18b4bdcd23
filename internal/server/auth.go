package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const sessionTTL = 24 * time.Hour

// authenticator gates the API behind a single bcrypt-hashed password.
// A successful login yields a bearer token; the query-string form is
// accepted too because EventSource cannot set headers.
type authenticator struct {
	passwordHash string
	mu           sync.RWMutex
	sessions     map[string]time.Time // token -> expiry
}

func newAuthenticator(passwordHash string) *authenticator {
	return &authenticator{
		passwordHash: passwordHash,
		sessions:     make(map[string]time.Time),
	}
}

func (a *authenticator) enabled() bool {
	return a.passwordHash != ""
}

// middleware checks for a valid session token. A no-op when auth is
// not configured.
func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled() {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		var token string
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}

		if token == "" || !a.valid(token) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="tailview"`)
			http.Error(w, "Unauthorized: missing or expired token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *authenticator) valid(token string) bool {
	a.mu.RLock()
	expiry, ok := a.sessions[token]
	a.mu.RUnlock()

	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		a.mu.Lock()
		delete(a.sessions, token)
		a.mu.Unlock()
		return false
	}
	return true
}

func (a *authenticator) newSession() string {
	b := make([]byte, 16)
	rand.Read(b)
	token := hex.EncodeToString(b)

	a.mu.Lock()
	a.sessions[token] = time.Now().Add(sessionTTL)
	a.mu.Unlock()
	return token
}

// handleLogin exchanges the configured password for a session token.
func (s *ViewerServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.auth.enabled() {
		http.Error(w, "Authentication is not enabled", http.StatusBadRequest)
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(s.auth.passwordHash), []byte(req.Password)); err != nil {
		http.Error(w, "Invalid password", http.StatusUnauthorized)
		return
	}

	writeJSON(w, map[string]string{"token": s.auth.newSession()})
}
