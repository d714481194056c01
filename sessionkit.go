// Package sessionkit is the client session and authenticated-request
// subsystem of the Deckhaven web application: it acquires, persists,
// revalidates, and invalidates the user's bearer token, and gates every
// authenticated call through a single retry-and-recover policy.
//
// The package is the public surface; orchestration, token recovery, and
// persistence adapters live under internal/ and are assembled by New.
package sessionkit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/deckhaven/sessionkit/internal/core/domain"
	"github.com/deckhaven/sessionkit/internal/core/ports"
	"github.com/deckhaven/sessionkit/internal/core/service"
	"github.com/deckhaven/sessionkit/internal/infrastructure/api"
	"github.com/deckhaven/sessionkit/internal/infrastructure/cookie"
	"github.com/deckhaven/sessionkit/internal/infrastructure/vault"
	"github.com/deckhaven/sessionkit/internal/notify"
	"github.com/deckhaven/sessionkit/pkg/logger"
)

// Public aliases for the session data model.
type (
	User         = domain.User
	Snapshot     = domain.Snapshot
	Credentials  = domain.Credentials
	Registration = domain.Registration

	// Vault is the durable untrusted session cache.
	Vault = ports.Vault
	// Navigator performs the single post-logout redirect.
	Navigator = ports.Navigator
	// DomainFetcher loads dependent domain data after a session is
	// established.
	DomainFetcher = ports.DomainFetcher
)

// ErrSessionExpired is returned by Do once the retry-then-invalidate policy
// has given up; the session has already been torn down.
var ErrSessionExpired = domain.ErrSessionExpired

// Config identifies the backend, the identity provider, and local behavior.
type Config struct {
	// APIBaseURL is the application backend origin.
	APIBaseURL string
	// ProviderURL is the identity provider origin; ProjectRef derives the
	// provider's session cookie name (sb-<ref>-auth-token).
	ProviderURL string
	ProjectRef  string
	// LandingRoute is where a logout navigates to (default "/").
	LandingRoute string
	// HTTPTimeout bounds each network attempt (default 15s).
	HTTPTimeout time.Duration
}

type options struct {
	vault      ports.Vault
	nav        ports.Navigator
	fetcher    ports.DomainFetcher
	httpClient *http.Client
	log        *zerolog.Logger
}

// Option customises New.
type Option func(*options)

// WithVault overrides the default file-backed session cache.
func WithVault(v Vault) Option { return func(o *options) { o.vault = v } }

// WithNavigator wires the post-logout redirect target.
func WithNavigator(n Navigator) Option { return func(o *options) { o.nav = n } }

// WithDomainFetcher wires the dependent-domain loader run once per
// hydration.
func WithDomainFetcher(f DomainFetcher) Option { return func(o *options) { o.fetcher = f } }

// WithHTTPClient overrides the transport. A cookie jar is attached when the
// client has none, since the provider cookie sync depends on it.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// WithLogger overrides the package-level logger.
func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.log = &l } }

// Client is the assembled session subsystem.
type Client struct {
	cfg        Config
	store      *service.Store
	gateway    *service.Gateway
	controller *service.Controller
	bus        *notify.Bus
}

// New assembles the session subsystem. The returned client starts in the
// hydrating state; call Rehydrate to resolve it.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("sessionkit: APIBaseURL is required")
	}
	if cfg.ProviderURL == "" {
		cfg.ProviderURL = cfg.APIBaseURL
	}
	if cfg.ProjectRef == "" {
		cfg.ProjectRef = "local"
	}
	if cfg.LandingRoute == "" {
		cfg.LandingRoute = "/"
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := logger.Component("sessionkit")
	if o.log != nil {
		log = *o.log
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("sessionkit: cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}

	tokens, err := cookie.NewSource(httpClient.Jar, cfg.ProviderURL, cfg.ProjectRef, log)
	if err != nil {
		return nil, fmt.Errorf("sessionkit: %w", err)
	}

	v := o.vault
	if v == nil {
		v = vault.NewFileVault(vault.StorageKey + ".json")
	}

	store := service.NewStore()
	bus := notify.NewBus()
	apiClient := api.NewClient(cfg.APIBaseURL, httpClient, log)
	gateway := service.NewGateway(store, tokens, httpClient, log)
	controller := service.NewController(service.ControllerDeps{
		Store:        store,
		API:          apiClient,
		Vault:        v,
		Tokens:       tokens,
		Bus:          bus,
		Navigator:    o.nav,
		Fetcher:      o.fetcher,
		Gateway:      gateway,
		LandingRoute: cfg.LandingRoute,
		Log:          log,
	})

	return &Client{
		cfg:        cfg,
		store:      store,
		gateway:    gateway,
		controller: controller,
		bus:        bus,
	}, nil
}

// Login authenticates and atomically commits the session.
func (c *Client) Login(ctx context.Context, creds Credentials) error {
	return c.controller.Login(ctx, creds)
}

// Register creates an account; pending is true when the provider requires
// e-mail confirmation before a session exists.
func (c *Client) Register(ctx context.Context, reg Registration) (pending bool, err error) {
	return c.controller.Register(ctx, reg)
}

// Logout voluntarily ends the session. Idempotent.
func (c *Client) Logout(ctx context.Context) {
	c.controller.Logout(ctx, false)
}

// Rehydrate revalidates persisted state against the server. force re-runs
// validation and re-fetches dependent domain data even when a previous
// hydration already did.
func (c *Client) Rehydrate(ctx context.Context, force bool) error {
	return c.controller.Rehydrate(ctx, force)
}

// ChangePassword updates the password through the authenticated gateway.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return c.controller.ChangePassword(ctx, c.cfg.APIBaseURL, oldPassword, newPassword)
}

// Do issues an authenticated request; see the gateway contract for the 401
// retry-then-invalidate policy.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.gateway.Do(req)
}

// Get is a convenience for authenticated GETs against the API base URL.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(c.cfg.APIBaseURL, "/")+path, nil)
	if err != nil {
		return nil, fmt.Errorf("sessionkit: %w", err)
	}
	return c.gateway.Do(req)
}

// State returns a torn-read-free snapshot of the session.
func (c *Client) State() Snapshot {
	return c.store.Snapshot()
}

// OnChange registers a listener invoked synchronously after every session
// mutation.
func (c *Client) OnChange(fn func(Snapshot)) {
	c.store.Subscribe(fn)
}

// LogoutSignals subscribes to the cross-consumer logout broadcast. Cancel at
// teardown; on receipt, cancel your in-flight work.
func (c *Client) LogoutSignals() (<-chan struct{}, func()) {
	return c.bus.Subscribe()
}
