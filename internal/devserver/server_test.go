package devserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestBackend(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New("testref", "test-secret", zerolog.Nop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func postJSON(t *testing.T, url string, body any, bearer string) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return resp
}

func loginToken(t *testing.T, ts *httptest.Server, email, password string) string {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/auth/login", map[string]string{
		"email": email, "password": password,
	}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if out.AccessToken == "" {
		t.Fatalf("login returned no token")
	}
	return out.AccessToken
}

func TestBackend_RegisterLoginMe(t *testing.T) {
	_, ts := newTestBackend(t)

	resp := postJSON(t, ts.URL+"/api/auth/register", map[string]string{
		"username": "alice", "email": "a@b.com", "password": "password123",
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d", resp.StatusCode)
	}

	token := loginToken(t, ts, "a@b.com", "password123")

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	meResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	defer meResp.Body.Close()
	if meResp.StatusCode != http.StatusOK {
		t.Fatalf("me status %d", meResp.StatusCode)
	}
}

func TestBackend_LoginSetsProviderCookie(t *testing.T) {
	s, ts := newTestBackend(t)
	if _, err := s.Seed("alice", "a@b.com", "password123", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp := postJSON(t, ts.URL+"/api/auth/login", map[string]string{
		"email": "a@b.com", "password": "password123",
	}, "")
	defer resp.Body.Close()

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == "sb-testref-auth-token" && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("login must write the provider session cookie")
	}
}

func TestBackend_RevokeAllInvalidatesTokens(t *testing.T) {
	s, ts := newTestBackend(t)
	if _, err := s.Seed("alice", "a@b.com", "password123", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}
	token := loginToken(t, ts, "a@b.com", "password123")

	s.RevokeAll()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked token must get 401, got %d", resp.StatusCode)
	}
}

func TestBackend_PendingConfirmation(t *testing.T) {
	s, ts := newTestBackend(t)
	s.RequireConfirmation = true

	resp := postJSON(t, ts.URL+"/api/auth/register", map[string]string{
		"username": "bob", "email": "b@b.com", "password": "password123",
	}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 pending, got %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		Pending     bool   `json:"pending_confirmation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.AccessToken != "" || !out.Pending {
		t.Fatalf("pending registration must carry no token: %+v", out)
	}
}

func TestBackend_ChangePassword(t *testing.T) {
	s, ts := newTestBackend(t)
	if _, err := s.Seed("alice", "a@b.com", "password123", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}
	token := loginToken(t, ts, "a@b.com", "password123")

	resp := postJSON(t, ts.URL+"/api/auth/change-password", map[string]string{
		"oldPassword": "password123", "newPassword": "password456",
	}, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("change-password status %d", resp.StatusCode)
	}

	// Old password no longer works, new one does.
	resp = postJSON(t, ts.URL+"/api/auth/login", map[string]string{
		"email": "a@b.com", "password": "password123",
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old password must be rejected, got %d", resp.StatusCode)
	}
	loginToken(t, ts, "a@b.com", "password456")
}

func TestBackend_ProtectedEndpointRequiresToken(t *testing.T) {
	_, ts := newTestBackend(t)

	resp, err := http.Get(ts.URL + "/api/collections")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", resp.StatusCode)
	}
}
