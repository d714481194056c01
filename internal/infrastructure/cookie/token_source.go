// Package cookie extracts the identity provider's access token from the
// session cookie it maintains out-of-band. This is the one integration seam
// with the provider's own renewal machinery: when the in-memory token has
// gone stale the cookie may already hold a fresher one.
package cookie

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/deckhaven/sessionkit/internal/api/metrics"
)

// payload is the JSON structure the provider writes into its cookie.
type payload struct {
	AccessToken string `json:"access_token"`
}

// Source reads the provider session cookie from a shared cookie jar.
// All reads are best-effort: absence, garbage, or an expired token are
// reported as "no token", never as an error.
type Source struct {
	jar        http.CookieJar
	origin     *url.URL
	cookieName string
	log        zerolog.Logger
}

// NewSource builds a Source for the provider at providerURL. The cookie name
// is derived from the provider's project ref as sb-<ref>-auth-token.
func NewSource(jar http.CookieJar, providerURL, projectRef string, log zerolog.Logger) (*Source, error) {
	origin, err := url.Parse(providerURL)
	if err != nil {
		return nil, fmt.Errorf("cookie: parse provider url: %w", err)
	}
	return &Source{
		jar:        jar,
		origin:     origin,
		cookieName: fmt.Sprintf("sb-%s-auth-token", projectRef),
		log:        log,
	}, nil
}

// Token returns the access token currently stored in the provider cookie.
func (s *Source) Token() (string, bool) {
	for _, c := range s.jar.Cookies(s.origin) {
		if c.Name != s.cookieName {
			continue
		}
		if tok, ok := s.decode(c.Value); ok {
			metrics.CookieSyncTotal.WithLabelValues("hit").Inc()
			return tok, true
		}
		break
	}
	metrics.CookieSyncTotal.WithLabelValues("miss").Inc()
	return "", false
}

// Clear overwrites the provider cookie with an expired value. Best-effort:
// the provider may rewrite it, and logout must not depend on the outcome.
func (s *Source) Clear() {
	s.jar.SetCookies(s.origin, []*http.Cookie{{
		Name:    s.cookieName,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	}})
}

func (s *Source) decode(raw string) (string, bool) {
	if unescaped, err := url.QueryUnescape(raw); err == nil {
		raw = unescaped
	}

	// Newer provider versions prefix the cookie with "base64-" and encode
	// the JSON payload as unpadded base64url.
	if rest, found := strings.CutPrefix(raw, "base64-"); found {
		decoded, err := base64.RawURLEncoding.DecodeString(rest)
		if err != nil {
			decoded, err = base64.StdEncoding.DecodeString(rest)
		}
		if err != nil {
			s.log.Debug().Msg("provider cookie base64 payload unreadable")
			return "", false
		}
		raw = string(decoded)
	}

	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil || p.AccessToken == "" {
		s.log.Debug().Msg("provider cookie payload unreadable")
		return "", false
	}

	if expired(p.AccessToken) {
		s.log.Debug().Msg("provider cookie token already expired")
		return "", false
	}
	return p.AccessToken, true
}

// expired does an unverified expiry peek on JWT-shaped tokens. A token that
// does not parse as a JWT is treated as opaque and passed through; handing
// the gateway a token we know is dead would just burn its single retry.
func expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
