// Package api implements the typed HTTP client for the auth endpoints.
// It owns the mapping from wire-level failures to the domain error taxonomy:
// credential errors, transport errors, and authorization errors are distinct
// conditions with distinct handling upstream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/deckhaven/sessionkit/internal/core/domain"
)

// authResponse is the envelope returned by login and register.
type authResponse struct {
	AccessToken string       `json:"access_token"`
	User        *domain.User `json:"user,omitempty"`
	Pending     bool         `json:"pending_confirmation,omitempty"`
}

// Client talks to the application backend and identity provider endpoints.
// The supplied http.Client must carry the shared cookie jar so the provider's
// session cookie is captured on login.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient returns a client rooted at baseURL.
func NewClient(baseURL string, httpClient *http.Client, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     log,
	}
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (string, error) {
	var out authResponse
	status, err := c.postJSON(ctx, "/api/auth/login", creds, "", &out)
	if err != nil {
		return "", err
	}
	switch {
	case status == http.StatusOK && out.AccessToken != "":
		return out.AccessToken, nil
	case status == http.StatusUnauthorized || status == http.StatusBadRequest:
		return "", domain.ErrInvalidCredentials
	default:
		return "", fmt.Errorf("%w: login status %d", domain.ErrTransport, status)
	}
}

// Register creates an account. A provider response without a token is the
// "registered, pending e-mail confirmation" state.
func (c *Client) Register(ctx context.Context, reg domain.Registration) (string, error) {
	var out authResponse
	status, err := c.postJSON(ctx, "/api/auth/register", reg, "", &out)
	if err != nil {
		return "", err
	}
	switch {
	case (status == http.StatusOK || status == http.StatusCreated) && out.AccessToken != "":
		return out.AccessToken, nil
	case (status == http.StatusOK || status == http.StatusCreated || status == http.StatusAccepted) && out.AccessToken == "":
		return "", domain.ErrPendingConfirmation
	case status == http.StatusConflict:
		return "", domain.ErrUserExists
	case status == http.StatusBadRequest:
		return "", domain.ErrInvalidCredentials
	default:
		return "", fmt.Errorf("%w: register status %d", domain.ErrTransport, status)
	}
}

// Me validates a token against the profile endpoint.
func (c *Client) Me(ctx context.Context, accessToken string) (*domain.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/me", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer drain(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		var user domain.User
		if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
			return nil, fmt.Errorf("%w: decode profile: %v", domain.ErrTransport, err)
		}
		return &user, nil
	case http.StatusUnauthorized:
		return nil, domain.ErrUnauthorized
	default:
		return nil, fmt.Errorf("%w: profile status %d", domain.ErrTransport, resp.StatusCode)
	}
}

// SignOut revokes the provider session. Best-effort: callers swallow errors.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	status, err := c.postJSON(ctx, "/api/auth/signout", struct{}{}, accessToken, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return fmt.Errorf("%w: signout status %d", domain.ErrTransport, status)
	}
	return nil
}

// postJSON sends a JSON body and decodes a JSON response into out (when out
// is non-nil and the body decodes). It returns the HTTP status; only
// transport-level failures surface as errors.
func (c *Client) postJSON(ctx context.Context, path string, body any, bearer string, out any) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("%w: marshal request: %v", domain.ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer drain(resp.Body)

	c.log.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("auth api call")

	if out != nil {
		// Error envelopes decode into a zero authResponse; status drives
		// the outcome, so a decode failure here is not fatal.
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && resp.StatusCode < 300 {
			return resp.StatusCode, fmt.Errorf("%w: decode response: %v", domain.ErrTransport, err)
		}
	}
	return resp.StatusCode, nil
}

// drain consumes and closes a response body so the connection is reusable.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	body.Close()
}
