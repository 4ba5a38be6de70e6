package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/starford/notesapp/internal/notes"
	"github.com/starford/notesapp/internal/sse"
)

// NewRouter creates a chi router with all API routes mounted. broker, if
// non-nil, serves GET /events.
func NewRouter(sessions *Sessions, broker *sse.Broker) chi.Router {
	h := NewHandler(broker)

	r := chi.NewRouter()
	r.Use(sessions.Middleware)

	// Auth.
	r.Get("/auth/session", h.Session)
	r.Post("/auth/signup", h.SignUp)
	r.Post("/auth/signin", h.SignIn)
	r.Post("/auth/signout", h.SignOut)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)

		r.Get("/profile", h.Profile)

		// Notes.
		r.Get("/notes", h.ListNotes)
		r.Post("/notes", h.CreateNote)
		r.Post("/notes/reload", h.ReloadNotes)
		r.Put("/notes/{id}", h.UpdateNote)
		r.Delete("/notes/{id}", h.DeleteNote)

		// Inline form.
		r.Get("/edit", h.GetEdit)
		r.Delete("/edit", h.CancelEdit)
		r.Patch("/edit", h.SetDraft)
		r.Post("/edit/create", h.BeginCreate)
		r.Post("/edit/notes/{id}", h.BeginEdit)
		r.Post("/edit/submit", h.SubmitEdit)

		if broker != nil {
			r.Get("/events", h.Events)
		}
	})

	return r
}

// PublishTo returns a note observer that forwards applied changes to broker.
func PublishTo(broker *sse.Broker) func(notes.Event) {
	return func(e notes.Event) {
		data := map[string]any{}
		if e.Note.ID != "" {
			data["id"] = e.Note.ID
			if e.Kind != notes.EventDeleted {
				data["note"] = e.Note
			}
		}
		broker.PublishNoteEvent(e.UserID, e.Kind, data)
	}
}
