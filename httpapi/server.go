package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/ohgun/credgate"
	"github.com/ohgun/credgate/login"
	"github.com/ohgun/credgate/middleware"
)

// RefreshCookieName is the cookie carrying the refresh credential.
const RefreshCookieName = "refreshToken"

// Credentials is the Engine surface the HTTP layer needs. *credgate.Engine
// implements it.
type Credentials interface {
	Refresh(ctx context.Context, refreshToken string) (credgate.Pair, error)
	Logout(ctx context.Context, refreshToken string) error
	RevokeAll(ctx context.Context, ownerID string) (int, error)
	VerifyAccess(token string) (*credgate.Claims, error)
	RefreshTTL() time.Duration
	Ping(ctx context.Context) error
}

// SignIn is the login orchestrator surface. *login.Orchestrator implements it.
type SignIn interface {
	LoginURL(ctx context.Context, provider string) (string, string, error)
	Complete(ctx context.Context, provider, code, state string, meta login.ClientMeta) (login.Result, error)
}

// Config configures a Server.
type Config struct {
	Credentials Credentials
	SignIn      SignIn
	// FrontendURL is the base URL callbacks redirect to.
	FrontendURL string
	// InsecureCookies drops the Secure attribute for plain-HTTP local development.
	InsecureCookies bool
	// Metrics, when set, is served at GET /metrics.
	Metrics http.Handler
	Logger  *log.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	creds       Credentials
	signIn      SignIn
	frontendURL string
	secure      bool
	metrics     http.Handler
	logger      *log.Logger
}

// New validates cfg and returns a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Credentials == nil {
		return nil, errors.New("httpapi: credentials service required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
	}
	return &Server{
		creds:       cfg.Credentials,
		signIn:      cfg.SignIn,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
		secure:      !cfg.InsecureCookies,
		metrics:     cfg.Metrics,
		logger:      logger,
	}, nil
}

// Router returns the configured route tree.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.recoverer, middleware.ClientMeta, middleware.Authenticate(s.creds, s.logger))

	if s.signIn != nil {
		r.HandleFunc("/oauth/{provider}/login-url", s.handleLoginURL).Methods(http.MethodGet)
		r.HandleFunc("/oauth/{provider}/callback", s.handleCallback).Methods(http.MethodGet)
	}

	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	auth.HandleFunc("/verify", s.handleVerify).Methods(http.MethodPost)
	auth.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	auth.Handle("/revoke-all", middleware.RequireIdentity(http.HandlerFunc(s.handleRevokeAll))).Methods(http.MethodPost)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	return r
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in handler", "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.creds.RefreshTTL() / time.Second),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody reads a small optional JSON body into dst. An empty body is not an error.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
