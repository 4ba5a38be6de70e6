// Package workspace bundles the state of one client session: the store
// session, the session gate and the note collection.
package workspace

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/starford/notesapp/internal/apperr"
	"github.com/starford/notesapp/internal/forms"
	"github.com/starford/notesapp/internal/models"
	"github.com/starford/notesapp/internal/notes"
	"github.com/starford/notesapp/internal/remote"
	"github.com/starford/notesapp/internal/session"
)

type options struct {
	timeout  time.Duration
	logger   *slog.Logger
	observer func(notes.Event)
}

// Option configures a Workspace.
type Option func(*options)

// WithTimeout bounds every remote call made on behalf of the workspace.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver receives every change applied to the note collection.
func WithObserver(fn func(notes.Event)) Option {
	return func(o *options) { o.observer = fn }
}

// Workspace is the application state of one signed-in (or signing-in) user.
type Workspace struct {
	store   remote.Store
	gate    *session.Gate
	notes   *notes.Manager
	timeout time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	signedOut chan struct{} // closed and replaced on every sign-out
}

// New builds a workspace around a store session.
func New(store remote.Store, opts ...Option) *Workspace {
	o := options{timeout: notes.DefaultTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = notes.DefaultTimeout
	}

	nopts := []notes.Option{notes.WithTimeout(o.timeout), notes.WithLogger(o.logger)}
	if o.observer != nil {
		nopts = append(nopts, notes.WithObserver(o.observer))
	}
	return &Workspace{
		store:   store,
		gate:    session.NewGate(store, store),
		notes:   notes.NewManager(store, nopts...),
		timeout:   o.timeout,
		logger:    o.logger,
		signedOut: make(chan struct{}),
	}
}

// SignedOut returns a channel closed by the next SignOut.
func (w *Workspace) SignedOut() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signedOut
}

// Gate returns the session gate.
func (w *Workspace) Gate() *session.Gate { return w.gate }

// Notes returns the note collection manager.
func (w *Workspace) Notes() *notes.Manager { return w.notes }

// Start resolves the gate and, when authenticated, loads the notes. A failed
// load leaves the session authenticated and returns the load error.
func (w *Workspace) Start(ctx context.Context) (session.State, error) {
	checkCtx, cancel := context.WithTimeout(ctx, w.timeout)
	st, err := w.gate.Check(checkCtx)
	cancel()
	if err != nil {
		w.logger.Info("session check failed", slog.String("error", err.Error()))
		return st, err
	}
	if st.Status != session.Authenticated {
		return st, nil
	}
	return st, w.load(ctx, st.Profile.ID)
}

// SignUp registers an account, stores its profile and opens the session.
func (w *Workspace) SignUp(ctx context.Context, f forms.SignUp) (models.Profile, error) {
	if err := f.Validate(); err != nil {
		return models.Profile{}, err
	}
	email := strings.TrimSpace(f.Email)

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	principal, err := w.store.SignUp(ctx, email, f.Password)
	if err != nil {
		return models.Profile{}, w.remoteErr("sign up", err)
	}
	// Backends that require confirmation return no session from sign-up.
	if principal.AccessToken == "" {
		if principal, err = w.store.SignIn(ctx, email, f.Password); err != nil {
			return models.Profile{}, w.remoteErr("sign in", err)
		}
	}

	profile := models.Profile{
		ID:       principal.ID,
		FullName: f.FullName(),
		Email:    email,
		Phone:    strings.TrimSpace(f.Phone),
	}
	if err := w.store.UpsertProfile(ctx, profile); err != nil {
		_ = w.store.SignOut(ctx)
		return models.Profile{}, w.remoteErr("save profile", err)
	}

	w.gate.Admit(profile)
	w.logger.Info("user signed up", slog.String("user_id", profile.ID))
	return profile, w.load(ctx, profile.ID)
}

// SignIn authenticates with email and password and opens the session. A
// missing profile row keeps the session closed.
func (w *Workspace) SignIn(ctx context.Context, f forms.SignIn) (models.Profile, error) {
	if err := f.Validate(); err != nil {
		return models.Profile{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	principal, err := w.store.SignIn(ctx, strings.TrimSpace(f.Email), f.Password)
	if err != nil {
		return models.Profile{}, w.remoteErr("sign in", err)
	}
	profile, err := w.store.ProfileByID(ctx, principal.ID)
	if err != nil {
		_ = w.store.SignOut(ctx)
		return models.Profile{}, w.remoteErr(session.OpLoadProfile, err)
	}

	w.gate.Admit(profile)
	w.logger.Info("user signed in", slog.String("user_id", profile.ID))
	return profile, w.load(ctx, profile.ID)
}

// SignOut closes the session locally. It never fails because of the store.
func (w *Workspace) SignOut(ctx context.Context) {
	w.gate.SignOut()
	w.notes.Reset()

	w.mu.Lock()
	close(w.signedOut)
	w.signedOut = make(chan struct{})
	w.mu.Unlock()

	if err := w.store.SignOut(ctx); err != nil {
		w.logger.Warn("store sign out failed", slog.String("error", err.Error()))
	}
}

// Reload fetches the notes again for the signed-in user.
func (w *Workspace) Reload(ctx context.Context) error {
	p, err := w.Profile()
	if err != nil {
		return err
	}
	return w.load(ctx, p.ID)
}

// Profile returns the signed-in user's profile.
func (w *Workspace) Profile() (models.Profile, error) {
	st := w.gate.State()
	if st.Status != session.Authenticated || st.Profile == nil {
		return models.Profile{}, apperr.ErrUnauthenticated
	}
	return *st.Profile, nil
}

// Authenticated reports whether the gate is open.
func (w *Workspace) Authenticated() bool {
	return w.gate.State().Status == session.Authenticated
}

func (w *Workspace) load(ctx context.Context, userID string) error {
	err := w.notes.Load(ctx, userID)
	if errors.Is(err, apperr.ErrSuperseded) {
		return nil
	}
	return err
}

func (w *Workspace) remoteErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = errors.Join(apperr.ErrTimeout, err)
	}
	w.logger.Warn("remote call failed", slog.String("op", op), slog.String("error", err.Error()))
	return &apperr.RemoteError{Op: op, Err: err}
}
