// Package session decides whether a client session may see the notes view.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/starford/notesapp/internal/apperr"
	"github.com/starford/notesapp/internal/models"
	"github.com/starford/notesapp/internal/remote"
)

// Status is the gate position.
type Status int

const (
	Checking Status = iota
	Authenticated
	Unauthenticated
)

func (s Status) String() string {
	switch s {
	case Checking:
		return "checking"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(b []byte) error {
	for _, c := range []Status{Checking, Authenticated, Unauthenticated} {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("session: unknown status %q", b)
}

// Remote operation names used in the errors returned by Check.
const (
	OpCurrentUser = "current user"
	OpLoadProfile = "load profile"
)

// State is a snapshot of the gate. Profile is set only when Authenticated.
type State struct {
	Status  Status          `json:"status"`
	Profile *models.Profile `json:"profile,omitempty"`
}

// Gate starts in Checking and settles once. After that only Admit and
// SignOut move it.
type Gate struct {
	auth     remote.Auth
	profiles remote.Profiles

	mu    sync.Mutex
	state State
}

// NewGate returns a gate in the Checking state.
func NewGate(auth remote.Auth, profiles remote.Profiles) *Gate {
	return &Gate{
		auth:     auth,
		profiles: profiles,
		state:    State{Status: Checking},
	}
}

// Check resolves Checking by asking the store for the current user and
// their profile. It fails closed: on any error the gate becomes
// Unauthenticated and the error is returned alongside the state.
// Once settled, Check returns the current state without remote calls.
func (g *Gate) Check(ctx context.Context) (State, error) {
	g.mu.Lock()
	if g.state.Status != Checking {
		st := g.state
		g.mu.Unlock()
		return st, nil
	}
	g.mu.Unlock()

	profile, err := g.resolve(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	// Admit or SignOut may have settled the gate meanwhile.
	if g.state.Status != Checking {
		return g.state, nil
	}
	if err != nil || profile == nil {
		g.state = State{Status: Unauthenticated}
		return g.state, err
	}
	g.state = State{Status: Authenticated, Profile: profile}
	return g.state, nil
}

func (g *Gate) resolve(ctx context.Context) (*models.Profile, error) {
	user, err := g.auth.CurrentUser(ctx)
	if err != nil {
		return nil, &apperr.RemoteError{Op: OpCurrentUser, Err: err}
	}
	if user == nil {
		return nil, nil
	}
	p, err := g.profiles.ProfileByID(ctx, user.ID)
	if err != nil {
		return nil, &apperr.RemoteError{Op: OpLoadProfile, Err: err}
	}
	return &p, nil
}

// Admit marks the session authenticated after a successful sign-in or
// sign-up.
func (g *Gate) Admit(p models.Profile) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = State{Status: Authenticated, Profile: &p}
}

// SignOut moves the gate to Unauthenticated. It never contacts the store.
func (g *Gate) SignOut() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = State{Status: Unauthenticated}
}

// State returns the current snapshot.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
