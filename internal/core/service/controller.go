package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/deckhaven/sessionkit/internal/api/metrics"
	"github.com/deckhaven/sessionkit/internal/core/domain"
	"github.com/deckhaven/sessionkit/internal/core/ports"
)

// lifecycleState is the logout latch: Active sessions can log out once,
// repeated calls observe LoggingOut/LoggedOut and no-op.
type lifecycleState int

const (
	stateActive lifecycleState = iota
	stateLoggingOut
	stateLoggedOut
)

const redirectCooldown = 2 * time.Second

const (
	msgInvalidCredentials = "Invalid email or password."
	msgGenericFailure     = "Something went wrong, please try again."
)

// Controller orchestrates the session lifecycle: login, register, logout,
// and rehydration. It owns every one-shot guard the logout and hydration
// paths need, so the guards' lifetimes are explicit and resettable.
type Controller struct {
	store    *Store
	api      ports.IdentityAPI
	vault    ports.Vault
	tokens   ports.TokenSource
	bus      ports.LogoutPublisher
	nav      ports.Navigator
	fetcher  ports.DomainFetcher
	gateway  *Gateway
	landing  string
	validate *validator.Validate
	log      zerolog.Logger

	mu            sync.Mutex
	state         lifecycleState
	redirectHeld  bool
	domainFetched bool
	hydrateDone   chan struct{}
}

// ControllerDeps bundles the controller's collaborators.
type ControllerDeps struct {
	Store        *Store
	API          ports.IdentityAPI
	Vault        ports.Vault
	Tokens       ports.TokenSource
	Bus          ports.LogoutPublisher
	Navigator    ports.Navigator
	Fetcher      ports.DomainFetcher
	Gateway      *Gateway
	LandingRoute string
	Log          zerolog.Logger
}

// NewController wires a controller and binds it as the gateway's invalidator.
func NewController(deps ControllerDeps) *Controller {
	c := &Controller{
		store:    deps.Store,
		api:      deps.API,
		vault:    deps.Vault,
		tokens:   deps.Tokens,
		bus:      deps.Bus,
		nav:      deps.Navigator,
		fetcher:  deps.Fetcher,
		gateway:  deps.Gateway,
		landing:  deps.LandingRoute,
		validate: validator.New(),
		log:      deps.Log,
	}
	if c.gateway != nil {
		c.gateway.BindInvalidator(c)
	}
	return c
}

// Login authenticates against the identity provider, revalidates the fresh
// token against the profile endpoint, and commits user and token in a single
// atomic store mutation. Any failure leaves the store unauthenticated with a
// displayable error; nothing partial is persisted.
func (c *Controller) Login(ctx context.Context, creds domain.Credentials) error {
	c.store.ClearError()

	if err := c.validate.Struct(creds); err != nil {
		c.store.SetError(validationMessage(err))
		return fmt.Errorf("login: %w", domain.ErrInvalidCredentials)
	}

	token, err := c.api.Login(ctx, creds)
	if err != nil {
		c.store.SetError(loginFailureMessage(err))
		return fmt.Errorf("login: %w", err)
	}

	user, err := c.api.Me(ctx, token)
	if err != nil {
		c.store.SetError(loginFailureMessage(err))
		return fmt.Errorf("login: profile fetch: %w", err)
	}

	c.commitSession(ctx, user, token)
	return nil
}

// Register creates an account. When the provider answers with a "registered,
// pending confirmation" state there is no session yet: the store stays
// unauthenticated, no error is recorded, and pending is true.
func (c *Controller) Register(ctx context.Context, reg domain.Registration) (pending bool, err error) {
	c.store.ClearError()

	if err := c.validate.Struct(reg); err != nil {
		c.store.SetError(validationMessage(err))
		return false, fmt.Errorf("register: %w", domain.ErrInvalidCredentials)
	}

	token, err := c.api.Register(ctx, reg)
	if errors.Is(err, domain.ErrPendingConfirmation) {
		return true, nil
	}
	if err != nil {
		c.store.SetError(registerFailureMessage(err))
		return false, fmt.Errorf("register: %w", err)
	}

	user, err := c.api.Me(ctx, token)
	if err != nil {
		c.store.SetError(registerFailureMessage(err))
		return false, fmt.Errorf("register: profile fetch: %w", err)
	}

	c.commitSession(ctx, user, token)
	return false, nil
}

// commitSession performs the atomic login commit and re-arms the logout
// latch for the new session.
func (c *Controller) commitSession(ctx context.Context, user *domain.User, token string) {
	c.store.SetSession(user, token)

	c.mu.Lock()
	c.state = stateActive
	c.domainFetched = false
	c.mu.Unlock()

	if err := c.vault.Save(ctx, &domain.PersistedSession{
		User:            user,
		IsAuthenticated: true,
		AccessToken:     token,
	}); err != nil {
		// Persistence is a cache hint; failing to write it never fails the
		// login itself.
		c.log.Warn().Err(err).Msg("session cache write failed")
	}

	c.fetchDomainOnce(ctx, user)
}

// Logout ends the session. The lifecycle latch makes it idempotent: exactly
// one caller runs the side-effect sequence, every later or concurrent call
// is a no-op. auto marks a forced logout (rejected token) so the UI can
// prompt for re-login instead of silently landing on a logged-out page.
func (c *Controller) Logout(ctx context.Context, auto bool) {
	c.mu.Lock()
	if c.state != stateActive {
		c.mu.Unlock()
		return
	}
	c.state = stateLoggingOut
	c.mu.Unlock()

	token := c.store.AccessToken()

	// Broadcast first so consumers cancel in-flight work before the token
	// disappears from under them.
	c.bus.Publish()

	// External cleanup is best-effort: a dead network must not keep the
	// local state authenticated.
	if token != "" {
		revokeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := c.api.SignOut(revokeCtx, token); err != nil {
			c.log.Warn().Err(err).Msg("provider sign-out failed")
		}
		cancel()
	}
	c.tokens.Clear()

	c.store.Clear(auto)

	if err := c.vault.Clear(context.WithoutCancel(ctx)); err != nil {
		c.log.Warn().Err(err).Msg("session cache clear failed")
	}

	if auto {
		metrics.AutoLogoutsTotal.Inc()
	}

	c.navigateToLanding()

	c.mu.Lock()
	c.state = stateLoggedOut
	c.domainFetched = false
	c.mu.Unlock()

	c.log.Info().Bool("auto", auto).Msg("session ended")
}

// AutoLogout satisfies the gateway's SessionInvalidator.
func (c *Controller) AutoLogout(ctx context.Context) {
	c.Logout(ctx, true)
}

// navigateToLanding performs at most one redirect, guarded by its own latch
// with a short cooldown so SPA-style navigations that briefly revisit the
// landing route do not double-fire.
func (c *Controller) navigateToLanding() {
	if c.nav == nil || c.nav.Route() == c.landing {
		return
	}

	c.mu.Lock()
	if c.redirectHeld {
		c.mu.Unlock()
		return
	}
	c.redirectHeld = true
	c.mu.Unlock()

	c.nav.Navigate(c.landing)

	time.AfterFunc(redirectCooldown, func() {
		c.mu.Lock()
		c.redirectHeld = false
		c.mu.Unlock()
	})
}

// Rehydrate reconciles persisted state with the server. The persisted token
// is a cache hint and is never trusted until the profile endpoint accepts
// it. Rejection clears the session silently with no redirect: a fresh start
// already defaults to logged-out. Hydrating drops to false exactly once per
// cycle regardless of outcome. Concurrent callers share one in-flight cycle;
// force re-runs validation and re-fetches dependent domain data.
func (c *Controller) Rehydrate(ctx context.Context, force bool) error {
	c.mu.Lock()
	if done := c.hydrateDone; done != nil {
		// Another rehydration is in flight; wait for it instead of racing.
		c.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	done := make(chan struct{})
	c.hydrateDone = done
	if force {
		c.domainFetched = false
	}
	c.mu.Unlock()

	c.store.SetHydrating(true)
	start := time.Now()
	result := "empty"

	defer func() {
		metrics.HydrationDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
		c.store.SetHydrating(false)
		c.mu.Lock()
		c.hydrateDone = nil
		c.mu.Unlock()
		close(done)
	}()

	persisted, err := c.vault.Load(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("session cache unreadable")
		result = "error"
		return nil
	}

	token := ""
	if persisted != nil {
		token = persisted.AccessToken
	}
	// The provider owns the cookie; when cookie and cache disagree the
	// cookie wins.
	if fresh, ok := c.tokens.Token(); ok && fresh != token {
		token = fresh
	}
	if token == "" {
		return nil
	}

	user, err := c.api.Me(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			c.log.Info().Msg("persisted token rejected, clearing session")
			c.store.Clear(false)
			if cerr := c.vault.Clear(ctx); cerr != nil {
				c.log.Warn().Err(cerr).Msg("session cache clear failed")
			}
			result = "rejected"
			return nil
		}
		// Transport trouble is not evidence the session is bad; leave the
		// cache in place and stay logged out for now.
		result = "error"
		return fmt.Errorf("rehydrate: %w", err)
	}

	c.store.SetSession(user, token)
	c.mu.Lock()
	c.state = stateActive
	c.mu.Unlock()

	if err := c.vault.Save(ctx, &domain.PersistedSession{
		User:            user,
		IsAuthenticated: true,
		AccessToken:     token,
	}); err != nil {
		c.log.Warn().Err(err).Msg("session cache write failed")
	}

	c.fetchDomainOnce(ctx, user)
	result = "authenticated"
	return nil
}

// fetchDomainOnce loads dependent domain data at most once per hydration
// chain. The flag is set before the fetch runs, so concurrent triggers
// collapse to one attempt; logout resets it.
func (c *Controller) fetchDomainOnce(ctx context.Context, user *domain.User) {
	if c.fetcher == nil {
		return
	}
	c.mu.Lock()
	if c.domainFetched {
		c.mu.Unlock()
		return
	}
	c.domainFetched = true
	c.mu.Unlock()

	if err := c.fetcher.Fetch(ctx, user); err != nil {
		c.log.Warn().Err(err).Msg("dependent domain fetch failed")
	}
}

// ChangePassword issues the authenticated password change through the
// gateway, so an expired session follows the normal invalidation path.
func (c *Controller) ChangePassword(ctx context.Context, apiBaseURL, oldPassword, newPassword string) error {
	c.store.ClearError()

	raw, err := json.Marshal(map[string]string{
		"oldPassword": oldPassword,
		"newPassword": newPassword,
	})
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(apiBaseURL, "/")+"/api/auth/change-password", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.gateway.Do(req)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	defer drainClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusBadRequest:
		c.store.SetError(msgInvalidCredentials)
		return fmt.Errorf("change password: %w", domain.ErrInvalidCredentials)
	default:
		c.store.SetError(msgGenericFailure)
		return fmt.Errorf("change password: %w: status %d", domain.ErrTransport, resp.StatusCode)
	}
}

func loginFailureMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidCredentials) || errors.Is(err, domain.ErrUnauthorized) {
		return msgInvalidCredentials
	}
	return msgGenericFailure
}

func registerFailureMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrUserExists):
		return "An account with that email or username already exists."
	case errors.Is(err, domain.ErrInvalidCredentials):
		return msgInvalidCredentials
	default:
		return msgGenericFailure
	}
}

// validationMessage converts validator errors into one human-readable line.
func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return msgGenericFailure
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fieldError(fe))
	}
	return strings.Join(msgs, "; ")
}

// fieldError converts a single ValidationError into a human-readable message.
func fieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
