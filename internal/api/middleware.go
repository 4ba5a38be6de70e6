// Package api implements the notes JSON API using chi.
package api

import (
	"net/http"

	"github.com/starford/notesapp/internal/apperr"
	"github.com/starford/notesapp/internal/workspace"
)

// RequireAuth rejects requests whose session gate is not open.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws := WorkspaceFrom(r.Context())
		if ws == nil || !ws.Authenticated() {
			writeError(w, workspace.OpSession, apperr.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}
