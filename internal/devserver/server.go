// Package devserver is a local stand-in for the identity provider and the
// application backend. It issues HS256 tokens, maintains bcrypt-hashed users
// in memory, and writes the provider session cookie, so the client stack can
// be exercised end-to-end without external infrastructure.
package devserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/deckhaven/sessionkit/internal/core/domain"
)

const defaultTokenTTL = time.Hour

// account is a stored user plus its credential hash.
type account struct {
	user         domain.User
	passwordHash string
	confirmed    bool
}

// Server is the dev backend. Zero value is not usable; construct with New.
type Server struct {
	echo       *echo.Echo
	projectRef string
	jwtSecret  string
	tokenTTL   time.Duration
	log        zerolog.Logger

	// RequireConfirmation makes Register answer with the "registered,
	// pending confirmation" state instead of a session token.
	RequireConfirmation bool

	mu         sync.Mutex
	accounts   map[string]*account // keyed by email
	generation int64               // bumped by RevokeAll; stale tokens get 401
}

// echoprometheus registers with the default registry on creation, which
// panics on a second registration; share one middleware across instances.
var (
	promOnce sync.Once
	promMW   echo.MiddlewareFunc
)

func prometheusMiddleware() echo.MiddlewareFunc {
	promOnce.Do(func() {
		promMW = echoprometheus.NewMiddleware("sessionkit_dev")
	})
	return promMW
}

// New builds the server with all routes registered.
func New(projectRef, jwtSecret string, log zerolog.Logger) *Server {
	s := &Server{
		projectRef: projectRef,
		jwtSecret:  jwtSecret,
		tokenTTL:   defaultTokenTTL,
		log:        log,
		accounts:   make(map[string]*account),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(prometheusMiddleware())
	e.HTTPErrorHandler = newHTTPErrorHandler(log)

	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/health", s.liveness)

	e.POST("/api/auth/login", s.login)
	e.POST("/api/auth/register", s.register)
	e.POST("/api/auth/signout", s.signOut)

	authed := e.Group("/api", s.authMiddleware())
	authed.GET("/auth/me", s.me)
	authed.POST("/auth/change-password", s.changePassword)
	authed.GET("/collections", s.collections)

	s.echo = e
	return s
}

// Handler exposes the echo instance for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start runs the server on addr, blocking until Shutdown.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Seed creates a confirmed account directly, for demos and tests.
func (s *Server) Seed(username, email, password, fullName string, roles ...string) (*domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("devserver: hash password: %w", err)
	}

	user := domain.User{
		ID:       uuid.NewString(),
		Email:    email,
		Username: username,
		FullName: fullName,
		Roles:    roles,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[email]; exists {
		return nil, domain.ErrUserExists
	}
	s.accounts[email] = &account{user: user, passwordHash: string(hash), confirmed: true}
	return &user, nil
}

// RevokeAll invalidates every outstanding token, simulating server-side
// session expiry. Tokens issued afterwards carry the new generation.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

func (s *Server) currentGeneration() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Server) findByEmail(email string) (*account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[email]
	return acc, ok
}

func (s *Server) findByID(id string) (*account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.user.ID == id {
			return acc, true
		}
	}
	return nil, false
}

func (s *Server) liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
