// Package remote defines the contract of the backend-as-a-service that owns
// authentication and note persistence, and a REST/JSON client for it.
package remote

import (
	"context"

	"github.com/starford/notesapp/internal/models"
)

// Auth is the identity half of the store.
type Auth interface {
	SignUp(ctx context.Context, email, password string) (models.Principal, error)
	SignIn(ctx context.Context, email, password string) (models.Principal, error)
	// CurrentUser returns nil without error when no session is held.
	CurrentUser(ctx context.Context) (*models.Principal, error)
	// SignOut forgets the held session locally.
	SignOut(ctx context.Context) error
}

// Profiles is the profiles collection.
type Profiles interface {
	UpsertProfile(ctx context.Context, p models.Profile) error
	ProfileByID(ctx context.Context, id string) (models.Profile, error)
}

// Notes is the notes collection.
type Notes interface {
	// NotesByUser returns the user's notes ordered by created_at descending.
	NotesByUser(ctx context.Context, userID string) ([]models.Note, error)
	InsertNote(ctx context.Context, userID, title, content string) (models.Note, error)
	UpdateNote(ctx context.Context, noteID, title, content string) (models.Note, error)
	DeleteNote(ctx context.Context, noteID string) error
}

// Store is one client session against the backend. Implementations keep the
// access token obtained by SignIn/SignUp and present it on later calls.
type Store interface {
	Auth
	Profiles
	Notes
}

// Factory returns a fresh, signed-out Store.
type Factory func() Store
