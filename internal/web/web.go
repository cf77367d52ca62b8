// Package web serves the JSON API and the server-rendered month page.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/csrf"

	"evcal/internal/auth"
	"evcal/internal/config"
	appLog "evcal/internal/log"
	"evcal/internal/model"
	"evcal/internal/render"
	"evcal/internal/store"
)

//go:embed templates static
var assets embed.FS

// Server wires the store, the account table and the session table to HTTP.
type Server struct {
	cfg      *config.Config
	store    store.Store
	users    *auth.Users
	sessions *auth.Sessions

	loc      *time.Location
	geometry render.Geometry
	pages    *template.Template
	csrfKey  []byte
	mux      *http.ServeMux

	now func() time.Time
}

// NewServer constructs a Server and registers its routes.
func NewServer(cfg *config.Config, st store.Store, users *auth.Users, sessions *auth.Sessions) (*Server, error) {
	key, err := cfg.CSRFKeyBytes()
	if err != nil {
		return nil, err
	}
	pages, err := template.New("pages").Funcs(templateFuncs).ParseFS(assets, "templates/*.html")
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:      cfg,
		store:    st,
		users:    users,
		sessions: sessions,
		loc:      cfg.Location(),
		geometry: render.DefaultGeometry(cfg.Layout.WeekendWeight),
		pages:    pages,
		csrfKey:  key,
		mux:      http.NewServeMux(),
		now:      time.Now,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	s.mux.Handle("GET /api/auth/user", s.requireUser(s.handleCurrentUser))

	s.mux.Handle("GET /api/events", s.requireUser(s.handleListEvents))
	s.mux.Handle("GET /api/events/{year}/{month}", s.requireUser(s.handleMonthEvents))
	s.mux.Handle("GET /api/events/{id}", s.requireUser(s.handleGetEvent))
	s.mux.Handle("POST /api/events", s.requireAdmin(s.handleCreateEvent))
	s.mux.Handle("PUT /api/events/{id}", s.requireAdmin(s.handleUpdateEvent))
	s.mux.Handle("DELETE /api/events/{id}", s.requireAdmin(s.handleDeleteEvent))

	s.mux.Handle("GET /api/layout/{year}/{month}", s.requireUser(s.handleLayout))
	s.mux.Handle("GET /api/analytics", s.requireAdmin(s.handleAnalytics))
	s.mux.Handle("GET /calendar.ics", s.requireUser(s.handleExport))

	s.mux.Handle("GET /{$}", s.requirePageUser(s.handleCurrentMonthPage))
	s.mux.Handle("GET /month/{year}/{month}", s.requirePageUser(s.handleMonthPage))
	s.mux.HandleFunc("GET /login", s.handleLoginPage)
	s.mux.Handle("GET /static/", s.staticFileServer())
}

// Handler returns the full middleware chain: request log, session lookup,
// optional CSRF protection, routes.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.csrfKey != nil {
		protect := csrf.Protect(s.csrfKey,
			csrf.Secure(s.cfg.Session.Secure),
			csrf.Path("/"),
			csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				appLog.Warn("csrf check failed", "path", r.URL.Path, "reason", csrf.FailureReason(r))
				writeError(w, http.StatusForbidden, "Invalid CSRF token")
			})),
		)
		h = plaintextUnlessTLS(protect(h))
		appLog.Info("CSRF protection enabled")
	}
	return s.logRequests(s.withSession(h))
}

// plaintextUnlessTLS tells the CSRF middleware which scheme the request
// arrived on; it assumes TLS otherwise and insists on a Referer.
func plaintextUnlessTLS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			r = csrf.PlaintextHTTPRequest(r)
		}
		next.ServeHTTP(w, r)
	})
}

// Serve runs the HTTP server on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ListenAndServe binds cfg.Listen and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	appLog.Info("starting HTTP server", "listen", "http://"+ln.Addr().String())
	return s.Serve(ctx, ln)
}

// MintSession starts a session for u and returns its cookie. Used by the
// snapshot command to let a headless browser in.
func (s *Server) MintSession(u model.User) *http.Cookie {
	return s.sessionCookie(s.sessions.Create(u))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// staticFileServer serves the embedded stylesheet.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static files not available", http.StatusServiceUnavailable)
		})
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
