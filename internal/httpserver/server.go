package httpserver

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"pastebox/internal/auth"
	"pastebox/internal/paste"
	"pastebox/internal/storage"
	"pastebox/web"
)

const defaultCookieName = "pastebox_session"

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config captures server configuration.
type Config struct {
	Pastes      *paste.Service
	Auth        *auth.Service
	Health      Pinger
	Metrics     http.Handler
	MaxBytes    int
	ListLimit   int
	RateLimiter *RateLimiter
	TrustProxy  bool
	BaseURL     string
	CookieName  string
	Logger      zerolog.Logger
}

// Server wraps HTTP handling logic.
type Server struct {
	pastes     *paste.Service
	auth       *auth.Service
	health     Pinger
	metrics    http.Handler
	router     chi.Router
	templates  *template.Template
	maxBytes   int
	listLimit  int
	limiter    *RateLimiter
	trustProxy bool
	baseURL    *url.URL
	cookieName string
	logger     zerolog.Logger
}

// New constructs a new Server instance.
func New(cfg Config) (*Server, error) {
	if cfg.Pastes == nil {
		return nil, errors.New("paste service required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("auth service required")
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1_048_576
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = paste.DefaultListLimit
	}
	if cfg.CookieName == "" {
		cfg.CookieName = defaultCookieName
	}
	tmpl, err := template.New("layout").Funcs(template.FuncMap{
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "Never"
			}
			return t.UTC().Format("2006-01-02 15:04")
		},
		"formatSize":    formatSize,
		"languageLabel": languageLabel,
	}).ParseFS(web.Templates, "templates/*.tmpl")
	if err != nil {
		return nil, errors.Wrap(err, "parse templates")
	}

	var parsedBase *url.URL
	if cfg.BaseURL != "" {
		parsedBase, err = url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "invalid base url")
		}
		if parsedBase.Scheme == "" || parsedBase.Host == "" {
			return nil, errors.New("base url must include scheme and host")
		}
		parsedBase.Path = strings.TrimSuffix(parsedBase.Path, "/")
	}

	srv := &Server{
		pastes:     cfg.Pastes,
		auth:       cfg.Auth,
		health:     cfg.Health,
		metrics:    cfg.Metrics,
		router:     chi.NewRouter(),
		templates:  tmpl,
		maxBytes:   cfg.MaxBytes,
		listLimit:  cfg.ListLimit,
		limiter:    cfg.RateLimiter,
		trustProxy: cfg.TrustProxy,
		baseURL:    parsedBase,
		cookieName: cfg.CookieName,
		logger:     cfg.Logger,
	}
	if err := srv.routes(); err != nil {
		return nil, err
	}
	return srv, nil
}

// Handler returns the underlying router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() error {
	r := s.router

	r.Use(middleware.RequestID)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(hlog.NewHandler(s.logger))
	r.Use(AccessLog)
	r.Use(middleware.Recoverer)

	static, err := fs.Sub(web.Static, "static")
	if err != nil {
		return errors.Wrap(err, "static assets")
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware(func(r *http.Request) string {
			return ClientIP(r, s.trustProxy)
		}))
		r.Use(middleware.Compress(5, "text/html", "text/plain"))

		r.Get("/", s.handleIndex)
		r.Post("/", s.handleCreate)

		r.Get("/register", s.handleRegisterPage)
		r.Post("/register", s.handleRegister)
		r.Get("/login", s.handleLoginPage)
		r.Post("/login", s.handleLogin)
		r.Get("/logout", s.handleLogout)
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/public", s.handlePublic)

		r.Route("/{id}", func(pr chi.Router) {
			pr.Get("/", s.handleView)
			pr.Post("/", s.handlePassword)
			pr.Get("/raw", s.handleRaw)
			pr.Get("/qr", s.handleQR)
			pr.Get("/delete", s.handleDelete)
		})
	})
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("health check failed")
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// currentUser resolves the session cookie; anonymous requests yield nil.
func (s *Server) currentUser(r *http.Request) *storage.User {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return nil
	}
	return s.auth.ResolveSession(r.Context(), cookie.Value)
}

func userID(u *storage.User) *int64 {
	if u == nil {
		return nil
	}
	id := u.ID
	return &id
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.isSecureRequest(r),
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.isSecureRequest(r),
	})
}

func (s *Server) isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if s.baseURL != nil && s.baseURL.Scheme == "https" {
		return true
	}
	if s.trustProxy {
		proto := strings.ToLower(r.Header.Get("X-Forwarded-Proto"))
		if proto == "https" {
			return true
		}
	}
	return false
}

func (s *Server) canonicalURL(r *http.Request, id string) string {
	if s.baseURL != nil {
		u := *s.baseURL
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + id
		return u.String()
	}

	scheme := "http"
	if s.isSecureRequest(r) {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, host, id)
}
