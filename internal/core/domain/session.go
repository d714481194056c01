package domain

import "errors"

// ErrSessionExpired is returned by the authenticated gateway once the
// retry-then-invalidate policy has given up on a token. Callers must treat the
// request as failed; the session has already been torn down by the time they
// see this error.
var ErrSessionExpired = errors.New("session expired")

// SessionExpiredMessage is the user-displayable message stored on the session
// state when an automatic logout happens.
const SessionExpiredMessage = "Session expired, please log in again."

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserExists          = errors.New("user already exists")
	ErrPendingConfirmation = errors.New("registration pending confirmation")
	ErrTransport           = errors.New("request failed")
	ErrUnauthorized        = errors.New("unauthorized")
)

// User models the authenticated identity as returned by the profile endpoint.
type User struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Username string   `json:"username"`
	FullName string   `json:"full_name,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Snapshot is a point-in-time, torn-read-free copy of the session state.
type Snapshot struct {
	User            *User
	AccessToken     string
	IsAuthenticated bool
	Hydrating       bool
	AutoLoggedOut   bool
	Error           string
}

// PersistedSession is the subset of session state that survives restarts.
// It is a cache hint only: every loaded value must be revalidated against the
// profile endpoint before being trusted as authenticated.
type PersistedSession struct {
	User            *User  `json:"user"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	AccessToken     string `json:"accessToken"`
}

// Credentials is the login input.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// Registration is the sign-up input.
type Registration struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name,omitempty" validate:"omitempty,max=120"`
}
