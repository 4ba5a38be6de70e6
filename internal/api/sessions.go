package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/starford/notesapp/internal/workspace"
)

// DefaultCookieName names the session cookie when none is configured.
const DefaultCookieName = "notes_session"

// SessionOptions configures the session registry.
type SessionOptions struct {
	CookieName   string
	IdleTTL      time.Duration
	SecureCookie bool
}

// Sessions maps session cookies to workspaces. Workspaces idle longer than
// IdleTTL are evicted and signed out.
type Sessions struct {
	cache *cache.Cache
	newWS func() *workspace.Workspace
	opts  SessionOptions
}

type ctxKey struct{}

// NewSessions creates a registry that builds workspaces with newWS.
func NewSessions(newWS func() *workspace.Workspace, opts SessionOptions) *Sessions {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = time.Hour
	}
	c := cache.New(opts.IdleTTL, opts.IdleTTL/6+time.Second)
	c.OnEvicted(func(_ string, v any) {
		if ws, ok := v.(*workspace.Workspace); ok {
			ws.SignOut(context.Background())
		}
	})
	return &Sessions{cache: c, newWS: newWS, opts: opts}
}

// Count returns the number of live sessions.
func (s *Sessions) Count() int {
	return s.cache.ItemCount()
}

// Middleware attaches the caller's workspace to the request context,
// creating a session and cookie on first contact.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ws := s.lookup(r)
		if ws == nil {
			id, ws = s.create()
			http.SetCookie(w, &http.Cookie{
				Name:     s.opts.CookieName,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				Secure:   s.opts.SecureCookie,
				SameSite: http.SameSiteLaxMode,
			})
		} else {
			// Refresh the idle deadline.
			s.cache.SetDefault(id, ws)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, ws)))
	})
}

func (s *Sessions) lookup(r *http.Request) (string, *workspace.Workspace) {
	c, err := r.Cookie(s.opts.CookieName)
	if err != nil || c.Value == "" {
		return "", nil
	}
	if v, found := s.cache.Get(c.Value); found {
		return c.Value, v.(*workspace.Workspace)
	}
	return "", nil
}

func (s *Sessions) create() (string, *workspace.Workspace) {
	id := uuid.NewString()
	ws := s.newWS()
	s.cache.SetDefault(id, ws)
	return id, ws
}

// WorkspaceFrom returns the workspace attached by Sessions.Middleware.
func WorkspaceFrom(ctx context.Context) *workspace.Workspace {
	ws, _ := ctx.Value(ctxKey{}).(*workspace.Workspace)
	return ws
}
