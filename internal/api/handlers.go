package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notesapp/internal/forms"
	"github.com/starford/notesapp/internal/models"
	"github.com/starford/notesapp/internal/notes"
	"github.com/starford/notesapp/internal/session"
	"github.com/starford/notesapp/internal/sse"
	"github.com/starford/notesapp/internal/workspace"
)

// Handler holds API route handlers.
type Handler struct {
	broker *sse.Broker
}

// NewHandler creates a new Handler. broker may be nil.
func NewHandler(broker *sse.Broker) *Handler {
	return &Handler{broker: broker}
}

// Session handles GET /api/auth/session. It settles the gate on first call
// and loads the notes of an authenticated user.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	ws := WorkspaceFrom(r.Context())
	st, err := ws.Start(r.Context())
	resp := SessionResponse{Status: st.Status, Profile: st.Profile}
	if st.Status == session.Authenticated {
		resp.Notes = ws.Notes().Notes()
	}
	if err != nil {
		n := workspace.NoticeFor(workspace.OpSession, err)
		resp.Notice = &n
	}
	writeJSON(w, http.StatusOK, resp)
}

// SignUp handles POST /api/auth/signup.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var f forms.SignUp
	if !decodeJSON(w, r, &f) {
		return
	}
	ws := WorkspaceFrom(r.Context())
	p, err := ws.SignUp(r.Context(), f)
	h.authResult(w, ws, workspace.OpSignUp, http.StatusCreated, p, err)
}

// SignIn handles POST /api/auth/signin.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var f forms.SignIn
	if !decodeJSON(w, r, &f) {
		return
	}
	ws := WorkspaceFrom(r.Context())
	p, err := ws.SignIn(r.Context(), f)
	h.authResult(w, ws, workspace.OpSignIn, http.StatusOK, p, err)
}

// authResult writes the outcome of sign-up or sign-in. A failed initial
// load after a successful sign-in still opens the session.
func (h *Handler) authResult(w http.ResponseWriter, ws *workspace.Workspace, op workspace.Op, okStatus int, p models.Profile, err error) {
	if err != nil && !ws.Authenticated() {
		writeError(w, op, err)
		return
	}
	n := workspace.NoticeFor(op, nil)
	if err != nil {
		n = workspace.NoticeFor(workspace.OpLoad, err)
	}
	writeJSON(w, okStatus, SessionResponse{
		Status:  session.Authenticated,
		Profile: &p,
		Notes:   ws.Notes().Notes(),
		Notice:  &n,
	})
}

// SignOut handles POST /api/auth/signout.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	WorkspaceFrom(r.Context()).SignOut(r.Context())
	writeJSON(w, http.StatusOK, NoticeResponse{Notice: noticePtr(workspace.NoticeFor(workspace.OpSignOut, nil))})
}

// Profile handles GET /api/profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	p, err := WorkspaceFrom(r.Context()).Profile()
	if err != nil {
		writeError(w, workspace.OpProfile, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListNotes handles GET /api/notes?q=term.
// The response carries an ETag; a matching If-None-Match yields 304.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	writeJSONTagged(w, r, noteList(WorkspaceFrom(r.Context()).Notes().Search(q), q))
}

// ReloadNotes handles POST /api/notes/reload.
func (h *Handler) ReloadNotes(w http.ResponseWriter, r *http.Request) {
	ws := WorkspaceFrom(r.Context())
	if err := ws.Reload(r.Context()); err != nil {
		writeError(w, workspace.OpLoad, err)
		return
	}
	writeJSON(w, http.StatusOK, noteList(ws.Notes().Notes(), ""))
}

// CreateNote handles POST /api/notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var in forms.NoteInput
	if !decodeJSON(w, r, &in) {
		return
	}
	n, err := WorkspaceFrom(r.Context()).Notes().Create(r.Context(), in.Title, in.Content)
	if err != nil {
		writeError(w, workspace.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, NoteResponse{Note: n, Notice: noticePtr(workspace.NoticeFor(workspace.OpCreate, nil))})
}

// UpdateNote handles PUT /api/notes/{id}. The edit form is opened for id
// when it is not already.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var in forms.NoteInput
	if !decodeJSON(w, r, &in) {
		return
	}
	id := chi.URLParam(r, "id")
	m := WorkspaceFrom(r.Context()).Notes()
	if e, ok := m.Edit().(notes.Editing); !ok || e.NoteID != id {
		if err := m.BeginEdit(id); err != nil {
			writeError(w, workspace.OpUpdate, err)
			return
		}
	}
	n, err := m.Update(r.Context(), id, in.Title, in.Content)
	if err != nil {
		writeError(w, workspace.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, NoteResponse{Note: n, Notice: noticePtr(workspace.NoticeFor(workspace.OpUpdate, nil))})
}

// DeleteNote handles DELETE /api/notes/{id}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := WorkspaceFrom(r.Context()).Notes().Delete(r.Context(), id); err != nil {
		writeError(w, workspace.OpDelete, err)
		return
	}
	writeJSON(w, http.StatusOK, NoticeResponse{Notice: noticePtr(workspace.NoticeFor(workspace.OpDelete, nil))})
}

// GetEdit handles GET /api/edit.
func (h *Handler) GetEdit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, editResponse(WorkspaceFrom(r.Context()).Notes().Edit()))
}

// BeginCreate handles POST /api/edit/create.
func (h *Handler) BeginCreate(w http.ResponseWriter, r *http.Request) {
	m := WorkspaceFrom(r.Context()).Notes()
	m.BeginCreate()
	writeJSON(w, http.StatusOK, editResponse(m.Edit()))
}

// BeginEdit handles POST /api/edit/notes/{id}.
func (h *Handler) BeginEdit(w http.ResponseWriter, r *http.Request) {
	m := WorkspaceFrom(r.Context()).Notes()
	if err := m.BeginEdit(chi.URLParam(r, "id")); err != nil {
		writeError(w, workspace.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, editResponse(m.Edit()))
}

// SetDraft handles PATCH /api/edit.
func (h *Handler) SetDraft(w http.ResponseWriter, r *http.Request) {
	var d notes.Draft
	if !decodeJSON(w, r, &d) {
		return
	}
	m := WorkspaceFrom(r.Context()).Notes()
	if err := m.SetDraft(d); err != nil {
		writeError(w, submitOp(m.Edit()), err)
		return
	}
	writeJSON(w, http.StatusOK, editResponse(m.Edit()))
}

// CancelEdit handles DELETE /api/edit.
func (h *Handler) CancelEdit(w http.ResponseWriter, r *http.Request) {
	m := WorkspaceFrom(r.Context()).Notes()
	m.Cancel()
	writeJSON(w, http.StatusOK, editResponse(m.Edit()))
}

// SubmitEdit handles POST /api/edit/submit.
func (h *Handler) SubmitEdit(w http.ResponseWriter, r *http.Request) {
	m := WorkspaceFrom(r.Context()).Notes()
	op := submitOp(m.Edit())
	n, err := m.Submit(r.Context())
	if err != nil {
		writeError(w, op, err)
		return
	}
	status := http.StatusOK
	if op == workspace.OpCreate {
		status = http.StatusCreated
	}
	writeJSON(w, status, NoteResponse{Note: n, Notice: noticePtr(workspace.NoticeFor(op, nil))})
}

func submitOp(e notes.EditSession) workspace.Op {
	if _, ok := e.(notes.Editing); ok {
		return workspace.OpUpdate
	}
	return workspace.OpCreate
}

// Events handles GET /api/events. The stream ends when the workspace signs
// out, including when an idle session is evicted.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	ws := WorkspaceFrom(r.Context())
	signedOut := ws.SignedOut()
	p, err := ws.Profile()
	if err != nil {
		writeError(w, workspace.OpSession, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-signedOut:
			cancel()
		case <-ctx.Done():
		}
	}()
	h.broker.Serve(w, r.WithContext(ctx), p.ID)
}
