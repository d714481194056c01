package ports

import (
	"context"

	"github.com/deckhaven/sessionkit/internal/core/domain"
)

// TokenSource is the narrow seam to the identity provider's externally managed
// token. Read is best-effort and never fails: a missing or unparseable token
// is reported as ok == false, not as an error.
type TokenSource interface {
	// Token returns the provider's current access token, if one can be read.
	Token() (token string, ok bool)
	// Clear best-effort removes the provider token (used on logout).
	Clear()
}

// Vault persists the untrusted session cache across process restarts.
// Load returning (nil, nil) means "nothing persisted".
type Vault interface {
	Load(ctx context.Context) (*domain.PersistedSession, error)
	Save(ctx context.Context, s *domain.PersistedSession) error
	Clear(ctx context.Context) error
}

// IdentityAPI is the client-side view of the auth endpoints.
type IdentityAPI interface {
	// Login exchanges credentials for a token. The profile is fetched
	// separately through Me so both paths share one trust boundary.
	Login(ctx context.Context, creds domain.Credentials) (accessToken string, err error)
	// Register creates an account. When the provider answers with a
	// "registered, pending confirmation" state it returns an empty token and
	// domain.ErrPendingConfirmation.
	Register(ctx context.Context, reg domain.Registration) (accessToken string, err error)
	// Me validates a token against the profile endpoint.
	// Returns domain.ErrUnauthorized when the token is rejected.
	Me(ctx context.Context, accessToken string) (*domain.User, error)
	// SignOut best-effort revokes the provider session.
	SignOut(ctx context.Context, accessToken string) error
}

// LogoutPublisher broadcasts a session end to independent consumers.
type LogoutPublisher interface {
	Publish()
}

// Navigator performs the single post-logout redirect. Route reports the
// current route so the controller can skip redundant navigations.
type Navigator interface {
	Route() string
	Navigate(route string)
}

// DomainFetcher loads dependent domain data (collections, decks) after a
// session is established. Implementations live outside this module; the
// controller only guarantees the at-most-once-per-hydration policy.
type DomainFetcher interface {
	Fetch(ctx context.Context, user *domain.User) error
}
