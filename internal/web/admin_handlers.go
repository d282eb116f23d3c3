package web

import (
	"net/http"
)

func adminLoginPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html, err := staticFS.ReadFile("static/auth.html")
		if err != nil {
			http.Error(w, "failed to load auth page", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(html)
	}
}

func (s *Server) adminLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		pwd := r.FormValue("password")
		if pwd == "" {
			http.Error(w, "missing password", http.StatusBadRequest)
			return
		}

		if s.opts.DB == nil || !s.isAuthenticatedPassword(pwd) {
			s.log.WithField("remote", r.RemoteAddr).Warn("admin login rejected")
			http.Error(w, "invalid password", http.StatusUnauthorized)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     adminCookieName,
			Value:    s.sessions.issue(),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})

		http.Redirect(w, r, "/connections", http.StatusSeeOther)
	}
}

func (s *Server) adminLogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(adminCookieName); err == nil {
			s.sessions.revoke(c.Value)
		}

		// expire cookie in browser
		http.SetCookie(w, &http.Cookie{
			Name:     adminCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})

		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

func adminNotConfiguredHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		html, err := staticFS.ReadFile("static/disabled.html")
		if err != nil {
			http.Error(w, "admin interface disabled", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		w.Write(html)
	}
}
