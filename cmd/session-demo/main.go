// Command session-demo runs the dev backend and drives the full session
// lifecycle against it: register, login, an authenticated call, a simulated
// server-side session revocation, and the resulting automatic logout.
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/deckhaven/sessionkit"
	"github.com/deckhaven/sessionkit/internal/devserver"
	"github.com/deckhaven/sessionkit/internal/infrastructure/vault"
	"github.com/deckhaven/sessionkit/internal/pkg/config"
	"github.com/deckhaven/sessionkit/pkg/logger"
)

const listenAddr = "127.0.0.1:8089"

func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	ctx := context.Background()

	srv := devserver.New(cfg.ProjectRef, "dev-secret-not-for-production", logger.Component("devserver"))
	go func() {
		if err := srv.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("dev backend failed")
		}
	}()
	defer srv.Shutdown(ctx)
	waitReady(log)

	if _, err := srv.Seed("planeswalker", "demo@deckhaven.app", "correct-horse-battery", "Demo User", "user"); err != nil {
		log.Fatal().Err(err).Msg("seed user")
	}

	base := "http://" + listenAddr
	client, err := sessionkit.New(sessionkit.Config{
		APIBaseURL:   base,
		ProviderURL:  base,
		ProjectRef:   cfg.ProjectRef,
		LandingRoute: cfg.LandingRoute,
		HTTPTimeout:  cfg.HTTPTimeout,
	},
		sessionkit.WithVault(openVault(ctx, cfg, log)),
		sessionkit.WithNavigator(&logNavigator{route: "/collections", log: log}),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("assemble client")
	}

	signals, unsubscribe := client.LogoutSignals()
	defer unsubscribe()

	// Startup: resolve the hydrating state from whatever the vault holds.
	if err := client.Rehydrate(ctx, false); err != nil {
		log.Warn().Err(err).Msg("rehydration incomplete")
	}
	log.Info().Bool("authenticated", client.State().IsAuthenticated).Msg("hydration resolved")

	if err := client.Login(ctx, sessionkit.Credentials{
		Email:    "demo@deckhaven.app",
		Password: "correct-horse-battery",
	}); err != nil {
		log.Fatal().Err(err).Msg("login")
	}
	log.Info().Str("user", client.State().User.Username).Msg("logged in")

	fetch(ctx, client, log)

	// Simulate the server expiring every session; the next authenticated
	// call gets a 401, burns its single retry, and auto-logs-out.
	srv.RevokeAll()
	if _, err := client.Get(ctx, "/api/collections"); errors.Is(err, sessionkit.ErrSessionExpired) {
		log.Info().Msg("session invalidated by the gateway, as expected")
	}

	select {
	case <-signals:
		log.Info().Msg("logout broadcast received, dependent work cancelled")
	case <-time.After(time.Second):
		log.Warn().Msg("no logout broadcast received")
	}

	state := client.State()
	log.Info().
		Bool("authenticated", state.IsAuthenticated).
		Bool("auto_logged_out", state.AutoLoggedOut).
		Str("error", state.Error).
		Msg("final session state")
}

func fetch(ctx context.Context, client *sessionkit.Client, log zerolog.Logger) {
	resp, err := client.Get(ctx, "/api/collections")
	if err != nil {
		log.Fatal().Err(err).Msg("authenticated call")
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	log.Info().RawJSON("collections", body).Msg("authenticated call succeeded")
}

// openVault builds the configured vault driver, falling back to the file
// driver when the backing store is unreachable.
func openVault(ctx context.Context, cfg *config.Config, log zerolog.Logger) sessionkit.Vault {
	switch cfg.Vault.Driver {
	case "redis":
		rdb, err := vault.ConnectRedis(ctx, vault.RedisConfig{Addr: cfg.Vault.RedisAddr, DB: cfg.Vault.RedisDB})
		if err == nil {
			return vault.NewRedisVault(rdb)
		}
		log.Warn().Err(err).Msg("redis vault unavailable, using file vault")
	case "mongo":
		_, db, err := vault.ConnectMongo(ctx, vault.MongoConfig{URI: cfg.Vault.MongoURI, Database: cfg.Vault.MongoDatabase})
		if err == nil {
			return vault.NewMongoVault(db)
		}
		log.Warn().Err(err).Msg("mongo vault unavailable, using file vault")
	}
	return vault.NewFileVault(cfg.Vault.Path)
}

func waitReady(log zerolog.Logger) {
	for i := 0; i < 50; i++ {
		resp, err := http.Get("http://" + listenAddr + "/health")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	log.Fatal().Msg("dev backend never became ready")
}

// logNavigator stands in for the SPA router: it records the current route
// and logs redirects.
type logNavigator struct {
	mu    sync.Mutex
	route string
	log   zerolog.Logger
}

func (n *logNavigator) Route() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.route
}

func (n *logNavigator) Navigate(route string) {
	n.mu.Lock()
	n.route = route
	n.mu.Unlock()
	n.log.Info().Str("route", route).Msg("navigated")
}
