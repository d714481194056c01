package service

import (
	"sync"

	"github.com/deckhaven/sessionkit/internal/core/domain"
)

// Store is the single writer-of-record for session state. All mutations are
// synchronous; a Snapshot taken after a mutation returns always observes it.
// The store performs no I/O.
type Store struct {
	mu        sync.Mutex
	user      *domain.User
	token     string
	hydrating bool
	autoOut   bool
	lastError string

	listeners []func(domain.Snapshot)
}

// NewStore returns a store in the initial "unknown" state: unauthenticated
// and hydrating until the first rehydration cycle resolves.
func NewStore() *Store {
	return &Store{hydrating: true}
}

// Snapshot returns a consistent copy of the current state.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() domain.Snapshot {
	snap := domain.Snapshot{
		AccessToken:     s.token,
		IsAuthenticated: s.user != nil,
		Hydrating:       s.hydrating,
		AutoLoggedOut:   s.autoOut,
		Error:           s.lastError,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// Subscribe registers a listener invoked after every mutation with the
// resulting snapshot. Listeners run synchronously on the mutating goroutine
// and must not call back into the store.
func (s *Store) Subscribe(fn func(domain.Snapshot)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// finish is called with the lock held; it snapshots the new state, unlocks,
// then fires listeners.
func (s *Store) finish() {
	snap := s.snapshotLocked()
	listeners := s.listeners
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

// SetSession commits user and token in one step so no reader ever observes a
// user without its token or vice versa. A committed session is a resolved
// one, so hydration ends in the same mutation; readers can never see a
// confirmed authenticated state that still claims to be hydrating. Stale
// errors and the auto-logout flag from a previous forced sign-out are
// cleared as well.
func (s *Store) SetSession(user *domain.User, token string) {
	s.mu.Lock()
	u := *user
	s.user = &u
	s.token = token
	s.hydrating = false
	s.autoOut = false
	s.lastError = ""
	s.finish()
}

// SetAccessToken replaces only the bearer token, used when the cookie sync
// recovers a token before the profile has been validated.
func (s *Store) SetAccessToken(token string) {
	s.mu.Lock()
	s.token = token
	s.finish()
}

// AccessToken returns the current bearer token ("" when none).
func (s *Store) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetHydrating flips the hydration flag.
func (s *Store) SetHydrating(v bool) {
	s.mu.Lock()
	s.hydrating = v
	s.finish()
}

// SetError records a user-displayable failure message.
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.finish()
}

// ClearError resets the last-operation error; called at the start of every
// attempted operation.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.lastError = ""
	s.finish()
}

// Clear resets the session to unauthenticated. auto distinguishes a forced
// logout (rejected token) from a voluntary one.
func (s *Store) Clear(auto bool) {
	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.autoOut = auto
	s.finish()
}
