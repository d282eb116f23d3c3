package web

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"netglobe/internal/system"
)

const adminCookieName = "netglobe_admin"

// sessions holds in-memory browser login tokens.
type sessions struct {
	mu     sync.Mutex
	ttl    time.Duration
	tokens map[string]time.Time
}

func newSessions(ttl time.Duration) *sessions {
	return &sessions{ttl: ttl, tokens: make(map[string]time.Time)}
}

// issue creates a new session token.
func (s *sessions) issue() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	token := hex.EncodeToString(b)

	s.mu.Lock()
	s.tokens[token] = time.Now()
	s.mu.Unlock()

	return token
}

func (s *sessions) valid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	issued, ok := s.tokens[token]
	if !ok {
		return false
	}
	if time.Since(issued) > s.ttl {
		delete(s.tokens, token)
		return false
	}
	return true
}

func (s *sessions) revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

func (s *Server) isAuthenticated(r *http.Request) bool {
	if c, err := r.Cookie(adminCookieName); err == nil && s.sessions.valid(c.Value) {
		return true
	}
	if _, pwd, ok := r.BasicAuth(); ok {
		return s.isAuthenticatedPassword(pwd)
	}
	return false
}

func (s *Server) isAuthenticatedPassword(pwd string) bool {
	return system.VerifyAdminCredentials(s.opts.DB, pwd) == nil
}

func (s *Server) adminGate(app http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// allow static assets unconditionally
		if strings.HasPrefix(r.URL.Path, "/static/") {
			app.ServeHTTP(w, r)
			return
		}

		if s.opts.DB == nil {
			adminNotConfiguredHandler().ServeHTTP(w, r)
			return
		}
		ok, err := system.AdminPasswordConfigured(s.opts.DB)
		if err != nil {
			s.log.WithError(err).Warn("admin auth lookup failed")
			http.Error(w, "admin auth error", http.StatusInternalServerError)
			return
		}
		if !ok {
			adminNotConfiguredHandler().ServeHTTP(w, r)
			return
		}

		// allow login endpoints without auth
		if r.URL.Path == "/login" ||
			r.URL.Path == "/login/submit" ||
			r.URL.Path == "/logout" {
			app.ServeHTTP(w, r)
			return
		}

		if s.isAuthenticated(r) {
			app.ServeHTTP(w, r)
			return
		}

		if strings.Contains(r.Header.Get("Accept"), "text/html") {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="netglobe"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}
