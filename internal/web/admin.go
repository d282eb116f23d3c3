package web

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"time"

	"netglobe/internal/logging"
	"netglobe/internal/models"

	"github.com/sirupsen/logrus"
)

// DefaultListen keeps the admin endpoint local unless configured otherwise.
const DefaultListen = "127.0.0.1:6060"

// EventSource supplies recently emitted events, newest first.
type EventSource interface {
	Snapshot() []models.EnrichedEvent
}

type Options struct {
	Listen  string
	DB      *sql.DB
	Events  EventSource
	Stats   func() any
	Metrics http.Handler
	Logger  *logrus.Logger
}

// Server is the admin HTTP endpoint.
type Server struct {
	opts     Options
	log      *logrus.Logger
	sessions *sessions
	handler  http.Handler
}

func NewServer(opts Options) *Server {
	if opts.Listen == "" {
		opts.Listen = DefaultListen
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger()
	}

	s := &Server{
		opts:     opts,
		log:      opts.Logger,
		sessions: newSessions(12 * time.Hour),
	}

	app := http.NewServeMux()
	app.Handle("/static/", http.FileServer(http.FS(staticFS)))
	app.HandleFunc("/login", adminLoginPage())
	app.HandleFunc("/login/submit", s.adminLoginHandler())
	app.HandleFunc("/logout", s.adminLogoutHandler())
	app.HandleFunc("/connections", connectionsHTMLHandler())
	app.HandleFunc("/connections/by-dest", connectionsJSONHandler(opts.Events))
	app.HandleFunc("/stats", statsHandler(opts.Stats))
	if opts.Metrics != nil {
		app.Handle("/metrics", opts.Metrics)
	}
	app.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/connections", http.StatusSeeOther)
	})

	s.handler = app
	if RequiresAuth(opts.Listen) {
		s.handler = s.adminGate(app)
	}
	return s
}

// Handler returns the routed, gated handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Addr() string {
	return s.opts.Listen
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.WithFields(logrus.Fields{
		"listen": s.opts.Listen,
		"auth":   RequiresAuth(s.opts.Listen),
	}).Info("admin endpoint listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RequiresAuth reports whether listen binds beyond loopback.
func RequiresAuth(listen string) bool {
	host, _, err := net.SplitHostPort(listen)
	if err != nil {
		host = listen
	}
	switch host {
	case "localhost":
		return false
	case "":
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return true
	}
	return !ip.IsLoopback()
}
