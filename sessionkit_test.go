package sessionkit_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/deckhaven/sessionkit"
	"github.com/deckhaven/sessionkit/internal/devserver"
	"github.com/deckhaven/sessionkit/internal/infrastructure/vault"
)

type env struct {
	backend *devserver.Server
	ts      *httptest.Server
	vault   *vault.FileVault
}

func newEnv(t *testing.T) *env {
	t.Helper()
	backend := devserver.New("testref", "test-secret", zerolog.Nop())
	ts := httptest.NewServer(backend.Handler())
	t.Cleanup(ts.Close)
	if _, err := backend.Seed("alice", "a@b.com", "password123", "Alice Liddell", "user"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return &env{
		backend: backend,
		ts:      ts,
		vault:   vault.NewFileVault(filepath.Join(t.TempDir(), "auth-storage.json")),
	}
}

func (e *env) newClient(t *testing.T) *sessionkit.Client {
	t.Helper()
	client, err := sessionkit.New(sessionkit.Config{
		APIBaseURL: e.ts.URL,
		ProjectRef: "testref",
	}, sessionkit.WithVault(e.vault), sessionkit.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func login(t *testing.T, client *sessionkit.Client) {
	t.Helper()
	if err := client.Login(context.Background(), sessionkit.Credentials{
		Email:    "a@b.com",
		Password: "password123",
	}); err != nil {
		t.Fatalf("login: %v", err)
	}
}

func TestClient_LoginAndAuthenticatedCall(t *testing.T) {
	e := newEnv(t)
	client := e.newClient(t)

	login(t, client)

	state := client.State()
	if !state.IsAuthenticated || state.User == nil || state.User.Email != "a@b.com" {
		t.Fatalf("unexpected state after login: %+v", state)
	}
	if state.Error != "" {
		t.Fatalf("expected clean error state, got %q", state.Error)
	}

	resp, err := client.Get(context.Background(), "/api/collections")
	if err != nil {
		t.Fatalf("authenticated call: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestClient_ServerRevocationForcesAutoLogout(t *testing.T) {
	e := newEnv(t)
	client := e.newClient(t)
	login(t, client)

	signals, cancel := client.LogoutSignals()
	defer cancel()

	e.backend.RevokeAll()

	_, err := client.Get(context.Background(), "/api/collections")
	if !errors.Is(err, sessionkit.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	state := client.State()
	if state.IsAuthenticated || state.User != nil {
		t.Fatalf("expected unauthenticated state, got %+v", state)
	}
	if !state.AutoLoggedOut {
		t.Fatalf("forced logout must set AutoLoggedOut")
	}
	if state.Error != "Session expired, please log in again." {
		t.Fatalf("unexpected error message %q", state.Error)
	}

	select {
	case <-signals:
	default:
		t.Fatalf("expected a logout broadcast")
	}
}

func TestClient_RehydrateRestoresSession(t *testing.T) {
	e := newEnv(t)
	first := e.newClient(t)
	login(t, first)

	// A second process starts with the same vault: the persisted token is
	// revalidated, not trusted blindly.
	second := e.newClient(t)
	if second.State().IsAuthenticated {
		t.Fatalf("client must not be authenticated before rehydration")
	}
	if !second.State().Hydrating {
		t.Fatalf("client must start hydrating")
	}

	if err := second.Rehydrate(context.Background(), false); err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}

	state := second.State()
	if !state.IsAuthenticated || state.User == nil || state.User.Username != "alice" {
		t.Fatalf("expected restored session, got %+v", state)
	}
	if state.Hydrating {
		t.Fatalf("hydrating must resolve to false")
	}
}

func TestClient_StalePersistedTokenRejected(t *testing.T) {
	e := newEnv(t)
	first := e.newClient(t)
	login(t, first)

	// Server-side revocation makes the persisted token stale.
	e.backend.RevokeAll()

	second := e.newClient(t)
	if err := second.Rehydrate(context.Background(), false); err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}

	state := second.State()
	if state.IsAuthenticated || state.Hydrating {
		t.Fatalf("stale token must resolve to unauthenticated, got %+v", state)
	}
	if state.AutoLoggedOut {
		t.Fatalf("silent rejection must not look like a forced logout")
	}

	// The stale cache is gone: a third client hydrates to empty.
	if s, err := e.vault.Load(context.Background()); err != nil || s != nil {
		t.Fatalf("stale cache must be cleared, got %+v (err %v)", s, err)
	}
}

func TestClient_VoluntaryLogoutIsIdempotent(t *testing.T) {
	e := newEnv(t)
	client := e.newClient(t)
	login(t, client)

	signals, cancel := client.LogoutSignals()
	defer cancel()

	client.Logout(context.Background())
	client.Logout(context.Background())

	state := client.State()
	if state.IsAuthenticated || state.AutoLoggedOut {
		t.Fatalf("voluntary logout state wrong: %+v", state)
	}

	<-signals
	select {
	case <-signals:
		t.Fatalf("repeated logout must not broadcast twice")
	default:
	}
}
