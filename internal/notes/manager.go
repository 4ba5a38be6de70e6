// Package notes owns the in-memory note collection of one session and keeps
// it consistent with the remote store across create, update and delete.
package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/starford/notesapp/internal/apperr"
	"github.com/starford/notesapp/internal/forms"
	"github.com/starford/notesapp/internal/models"
	"github.com/starford/notesapp/internal/remote"
)

// DefaultTimeout bounds every remote call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// maxLoadAttempts bounds the re-fetches of a load overtaken by writes.
const maxLoadAttempts = 3

// Event kinds reported to observers.
const (
	EventLoaded  = "loaded"
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// Event describes a change that was applied to the collection.
type Event struct {
	Kind   string
	UserID string
	Note   models.Note
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout sets the bound applied to each remote call.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithObserver registers fn to be called after each applied change.
// fn runs outside the manager lock.
func WithObserver(fn func(Event)) Option {
	return func(m *Manager) { m.observer = fn }
}

// Manager holds the canonical ordered note list of the signed-in user.
//
// State is guarded by mu, which is never held across a remote call. Writes
// to the same note are sequenced: a response that arrives after a newer
// request for that note was issued is dropped with apperr.ErrSuperseded.
// Responses that arrive after Reset are dropped the same way, and a load
// never installs a snapshot fetched before a later write was applied.
type Manager struct {
	store    remote.Notes
	timeout  time.Duration
	logger   *slog.Logger
	observer func(Event)

	mu      sync.Mutex
	userID  string
	notes   []models.Note
	edit    EditSession
	seq     map[string]uint64
	loadSeq uint64
	// epoch changes on Reset; writes started in an older epoch are dropped.
	epoch uint64
	// writes counts applied creates, updates and deletes.
	writes uint64
}

// NewManager creates an empty manager backed by store.
func NewManager(store remote.Notes, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		edit:    Idle{},
		seq:     make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load replaces the collection with every note owned by userID, newest
// first. On failure the collection keeps its previous contents. A fetch
// that raced with an applied write is repeated, since its snapshot may
// predate that write.
func (m *Manager) Load(ctx context.Context, userID string) error {
	m.mu.Lock()
	m.loadSeq++
	ticket := m.loadSeq
	m.mu.Unlock()

	for attempt := 1; ; attempt++ {
		m.mu.Lock()
		writes := m.writes
		m.mu.Unlock()

		var fetched []models.Note
		err := m.call(ctx, "load notes", func(ctx context.Context) error {
			var err error
			fetched, err = m.store.NotesByUser(ctx, userID)
			return err
		})
		if err != nil {
			return err
		}

		slices.SortStableFunc(fetched, func(a, b models.Note) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
		fetched = dedupe(fetched)

		m.mu.Lock()
		if ticket != m.loadSeq {
			m.mu.Unlock()
			return apperr.ErrSuperseded
		}
		if writes != m.writes {
			m.mu.Unlock()
			if attempt >= maxLoadAttempts {
				m.logger.Debug("load overtaken by writes", slog.String("user_id", userID))
				return apperr.ErrSuperseded
			}
			continue
		}
		m.userID = userID
		m.notes = fetched
		if e, ok := m.edit.(Editing); ok && m.indexOf(e.NoteID) < 0 {
			m.edit = Idle{}
		}
		m.mu.Unlock()

		m.logger.Debug("notes loaded", slog.String("user_id", userID), slog.Int("count", len(fetched)))
		m.emit(Event{Kind: EventLoaded, UserID: userID})
		return nil
	}
}

// Create validates and inserts a note, then prepends the stored record.
// On failure nothing local changes and an open create draft is kept.
func (m *Manager) Create(ctx context.Context, title, content string) (models.Note, error) {
	if err := (forms.NoteInput{Title: title, Content: content}).Validate(); err != nil {
		return models.Note{}, err
	}

	m.mu.Lock()
	userID := m.userID
	epoch := m.epoch
	m.mu.Unlock()
	if userID == "" {
		return models.Note{}, apperr.ErrUnauthenticated
	}

	var created models.Note
	err := m.call(ctx, "create note", func(ctx context.Context) error {
		var err error
		created, err = m.store.InsertNote(ctx, userID, title, content)
		return err
	})
	if err != nil {
		return models.Note{}, err
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.logger.Debug("create response after reset dropped", slog.String("note_id", created.ID))
		return models.Note{}, apperr.ErrSuperseded
	}
	m.writes++
	if i := m.indexOf(created.ID); i >= 0 {
		m.notes = slices.Delete(m.notes, i, i+1)
	}
	m.notes = slices.Insert(m.notes, 0, created)
	if _, ok := m.edit.(Creating); ok {
		m.edit = Idle{}
	}
	m.mu.Unlock()

	m.logger.Debug("note created", slog.String("note_id", created.ID))
	m.emit(Event{Kind: EventCreated, UserID: userID, Note: created})
	return created, nil
}

// Update saves new title/content for the note open in the edit form and
// replaces it in place. On failure the entry and the draft are kept.
func (m *Manager) Update(ctx context.Context, id, title, content string) (models.Note, error) {
	if err := (forms.NoteInput{Title: title, Content: content}).Validate(); err != nil {
		return models.Note{}, err
	}

	m.mu.Lock()
	e, editing := m.edit.(Editing)
	if !editing || e.NoteID != id || m.indexOf(id) < 0 {
		m.mu.Unlock()
		return models.Note{}, notFound(id)
	}
	ticket := m.nextSeq(id)
	userID := m.userID
	epoch := m.epoch
	m.mu.Unlock()

	var updated models.Note
	err := m.call(ctx, "update note", func(ctx context.Context) error {
		var err error
		updated, err = m.store.UpdateNote(ctx, id, title, content)
		return err
	})

	m.mu.Lock()
	if m.epoch != epoch || m.seq[id] != ticket {
		m.mu.Unlock()
		m.logger.Debug("stale update response dropped", slog.String("note_id", id))
		return models.Note{}, apperr.ErrSuperseded
	}
	if err != nil {
		m.mu.Unlock()
		return models.Note{}, err
	}
	i := m.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return models.Note{}, notFound(id)
	}
	m.writes++
	m.notes[i] = updated
	m.clearEditFor(id)
	m.mu.Unlock()

	m.logger.Debug("note updated", slog.String("note_id", id))
	m.emit(Event{Kind: EventUpdated, UserID: userID, Note: updated})
	return updated, nil
}

// Delete removes the note from the store and then from the collection. An
// open edit form for the note is closed.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	if m.indexOf(id) < 0 {
		m.mu.Unlock()
		return notFound(id)
	}
	// Bumping the sequence drops any update still in flight for id.
	m.nextSeq(id)
	userID := m.userID
	epoch := m.epoch
	m.mu.Unlock()

	err := m.call(ctx, "delete note", func(ctx context.Context) error {
		return m.store.DeleteNote(ctx, id)
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return apperr.ErrSuperseded
	}
	m.writes++
	var removed models.Note
	if i := m.indexOf(id); i >= 0 {
		removed = m.notes[i]
		m.notes = slices.Delete(m.notes, i, i+1)
	}
	m.clearEditFor(id)
	m.mu.Unlock()

	m.logger.Debug("note deleted", slog.String("note_id", id))
	m.emit(Event{Kind: EventDeleted, UserID: userID, Note: removed})
	return nil
}

// Submit commits the open form: Creating becomes Create, Editing becomes Update.
func (m *Manager) Submit(ctx context.Context) (models.Note, error) {
	switch s := m.Edit().(type) {
	case Creating:
		return m.Create(ctx, s.Draft.Title, s.Draft.Content)
	case Editing:
		return m.Update(ctx, s.NoteID, s.Draft.Title, s.Draft.Content)
	default:
		return models.Note{}, ErrNothingToSubmit
	}
}

// Notes returns a copy of the collection in display order.
func (m *Manager) Notes() []models.Note {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.notes)
}

// Get returns the note with id from the collection.
func (m *Manager) Get(id string) (models.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(id)
	if i < 0 {
		return models.Note{}, notFound(id)
	}
	return m.notes[i], nil
}

// Reset forgets the user, the collection and any open form.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userID = ""
	m.notes = nil
	m.edit = Idle{}
	m.seq = make(map[string]uint64)
	m.loadSeq++
	m.epoch++
}

// call runs fn under the configured timeout and converts failures into
// apperr.RemoteError.
func (m *Manager) call(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := fn(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", apperr.ErrTimeout, m.timeout, err)
	}
	m.logger.Warn("remote call failed", slog.String("op", op), slog.String("error", err.Error()))
	return &apperr.RemoteError{Op: op, Err: err}
}

func (m *Manager) emit(e Event) {
	if m.observer != nil {
		m.observer(e)
	}
}

// nextSeq advances the request sequence for id. Caller holds mu.
func (m *Manager) nextSeq(id string) uint64 {
	m.seq[id]++
	return m.seq[id]
}

// indexOf returns the position of id in the collection or -1. Caller holds mu.
func (m *Manager) indexOf(id string) int {
	return slices.IndexFunc(m.notes, func(n models.Note) bool { return n.ID == id })
}

func notFound(id string) error {
	return &apperr.NotFoundError{Kind: "note", ID: id}
}

// dedupe keeps the first occurrence of each id.
func dedupe(in []models.Note) []models.Note {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, n := range in {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}
	return out
}
