package service

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deckhaven/sessionkit/internal/api/metrics"
	"github.com/deckhaven/sessionkit/internal/core/domain"
	"github.com/deckhaven/sessionkit/internal/core/ports"
)

// SessionInvalidator ends the session after an unrecoverable authorization
// failure. Implementations must be idempotent under concurrent calls; many
// in-flight requests can hit a 401 at the same time.
type SessionInvalidator interface {
	AutoLogout(ctx context.Context)
}

// Gateway wraps outbound HTTP calls with the current bearer token and applies
// the single-retry-then-invalidate policy on authorization failure. It is a
// drop-in replacement for http.Client.Do for authenticated endpoints.
type Gateway struct {
	store      *Store
	tokens     ports.TokenSource
	http       *http.Client
	invalidate SessionInvalidator
	log        zerolog.Logger
}

// NewGateway builds a gateway over the given store and token source. The
// invalidator is bound separately (BindInvalidator) because the lifecycle
// controller that implements it is constructed after the gateway.
func NewGateway(store *Store, tokens ports.TokenSource, httpClient *http.Client, log zerolog.Logger) *Gateway {
	return &Gateway{
		store:  store,
		tokens: tokens,
		http:   httpClient,
		log:    log,
	}
}

// BindInvalidator wires the logout path. Must be called before the first Do.
func (g *Gateway) BindInvalidator(inv SessionInvalidator) {
	g.invalidate = inv
}

// Do issues req with an Authorization header attached. Non-401 responses pass
// through untouched with no added latency. On a 401 the provider cookie is
// re-read once; if it yields a different token the request is retried exactly
// once. An unrecoverable 401 invalidates the session and returns
// domain.ErrSessionExpired. At most two network attempts per call.
func (g *Gateway) Do(req *http.Request) (*http.Response, error) {
	token := g.store.AccessToken()
	if token == "" {
		if fresh, ok := g.tokens.Token(); ok {
			g.store.SetAccessToken(fresh)
			token = fresh
		}
	}

	resp, err := g.attempt(req, token)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		metrics.RequestsTotal.WithLabelValues("ok").Inc()
		return resp, nil
	}
	drainClose(resp.Body)

	// The provider's background renewal may have refreshed the cookie since
	// this token was read; that is the only recovery worth one retry.
	fresh, ok := g.tokens.Token()
	if ok && fresh != token && replayable(req) {
		g.store.SetAccessToken(fresh)
		metrics.TokenRetriesTotal.Inc()

		retry := req.Clone(req.Context())
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				metrics.RequestsTotal.WithLabelValues("error").Inc()
				return nil, fmt.Errorf("gateway: rewind request body: %w", err)
			}
			retry.Body = body
		}

		resp, err = g.attempt(retry, fresh)
		if err != nil {
			metrics.RequestsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		if resp.StatusCode != http.StatusUnauthorized {
			metrics.RequestsTotal.WithLabelValues("retried_ok").Inc()
			return resp, nil
		}
		drainClose(resp.Body)
	}

	g.log.Warn().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Msg("authorization failed beyond recovery, invalidating session")

	metrics.RequestsTotal.WithLabelValues("expired").Inc()
	g.invalidate.AutoLogout(req.Context())
	g.store.SetError(domain.SessionExpiredMessage)
	return nil, domain.ErrSessionExpired
}

// attempt issues one network attempt with the given token.
func (g *Gateway) attempt(req *http.Request, token string) (*http.Response, error) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Del("Authorization")
	}
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return resp, nil
}

// replayable reports whether the request body can be rewound for a retry.
func replayable(req *http.Request) bool {
	return req.Body == nil || req.GetBody != nil
}

func drainClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	body.Close()
}
