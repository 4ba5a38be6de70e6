package api

import (
	"github.com/starford/notesapp/internal/models"
	"github.com/starford/notesapp/internal/notes"
	"github.com/starford/notesapp/internal/session"
	"github.com/starford/notesapp/internal/workspace"
)

// SessionResponse describes the gate and, when open, the user's notes.
type SessionResponse struct {
	Status  session.Status    `json:"status"`
	Profile *models.Profile   `json:"profile,omitempty"`
	Notes   []models.Note     `json:"notes,omitempty"`
	Notice  *workspace.Notice `json:"notice,omitempty"`
}

// NoteListResponse is the search view of the collection.
type NoteListResponse struct {
	Notes []models.Note `json:"notes"`
	Total int           `json:"total"`
	Query string        `json:"query,omitempty"`
}

// NoteResponse carries one note and the notice for the action.
type NoteResponse struct {
	Note   models.Note       `json:"note"`
	Notice *workspace.Notice `json:"notice,omitempty"`
}

// NoticeResponse carries only a notice.
type NoticeResponse struct {
	Notice *workspace.Notice `json:"notice,omitempty"`
}

// EditResponse describes the inline form.
type EditResponse struct {
	Mode   string       `json:"mode"`
	NoteID string       `json:"note_id,omitempty"`
	Draft  *notes.Draft `json:"draft,omitempty"`
}

func editResponse(e notes.EditSession) EditResponse {
	switch s := e.(type) {
	case notes.Creating:
		return EditResponse{Mode: "creating", Draft: &s.Draft}
	case notes.Editing:
		return EditResponse{Mode: "editing", NoteID: s.NoteID, Draft: &s.Draft}
	default:
		return EditResponse{Mode: "idle"}
	}
}

func noteList(list []models.Note, q string) NoteListResponse {
	if list == nil {
		list = []models.Note{}
	}
	return NoteListResponse{Notes: list, Total: len(list), Query: q}
}
