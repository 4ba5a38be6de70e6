package notes

import (
	"errors"
)

// ErrNothingToSubmit is returned by Submit when no form is open.
var ErrNothingToSubmit = errors.New("no open draft to submit")

// ErrNoDraft is returned by SetDraft when no form is open.
var ErrNoDraft = errors.New("no open draft")

// Draft is the unsaved title/content pair of the open form.
type Draft struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// EditSession is the state of the single inline form: Idle, Creating or
// Editing. The interface is sealed; no other implementations exist.
type EditSession interface {
	editSession()
}

// Idle means no form is open.
type Idle struct{}

// Creating holds the draft of a note that does not exist yet.
type Creating struct {
	Draft Draft
}

// Editing holds the draft of an existing note.
type Editing struct {
	NoteID string
	Draft  Draft
}

func (Idle) editSession()     {}
func (Creating) editSession() {}
func (Editing) editSession()  {}

// BeginCreate opens an empty create form, discarding any edit draft.
func (m *Manager) BeginCreate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edit = Creating{}
}

// BeginEdit opens the edit form for id with a copy of the note's fields,
// discarding any create draft.
func (m *Manager) BeginEdit(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(id)
	if i < 0 {
		return notFound(id)
	}
	n := m.notes[i]
	m.edit = Editing{NoteID: id, Draft: Draft{Title: n.Title, Content: n.Content}}
	return nil
}

// SetDraft replaces the draft of the open form. It never touches the collection.
func (m *Manager) SetDraft(d Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch s := m.edit.(type) {
	case Creating:
		s.Draft = d
		m.edit = s
	case Editing:
		s.Draft = d
		m.edit = s
	default:
		return ErrNoDraft
	}
	return nil
}

// Cancel closes the open form without contacting the store.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edit = Idle{}
}

// Edit returns the current edit session.
func (m *Manager) Edit() EditSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.edit
}

// clearEditFor returns to Idle when the open form edits id. Caller holds mu.
func (m *Manager) clearEditFor(id string) {
	if e, ok := m.edit.(Editing); ok && e.NoteID == id {
		m.edit = Idle{}
	}
}
