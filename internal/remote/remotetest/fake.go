// Package remotetest provides an in-memory remote.Store for tests.
package remotetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/starford/notesapp/internal/apperr"
	"github.com/starford/notesapp/internal/models"
	"github.com/starford/notesapp/internal/remote"
)

type account struct {
	id       string
	email    string
	password string
}

// Backend is the shared state behind any number of Store sessions.
type Backend struct {
	mu       sync.Mutex
	accounts map[string]account // by email
	profiles map[string]models.Profile
	notes    []models.Note // insertion order
	nextID   int
	clock    time.Time

	// Fail, when set, is consulted before every operation; a non-nil
	// result is returned instead of performing it.
	Fail func(op string) error
	// Hook, when set, runs before every note operation outside the lock
	// so tests can block or reorder in-flight calls.
	Hook func(ctx context.Context, op, id string)
}

// NewBackend returns an empty backend whose clock starts at start and
// advances by one second per write.
func NewBackend(start time.Time) *Backend {
	return &Backend{
		accounts: make(map[string]account),
		profiles: make(map[string]models.Profile),
		clock:    start,
	}
}

// NewStore opens a signed-out session against b.
func (b *Backend) NewStore() *Store {
	return &Store{b: b}
}

// Factory adapts NewStore to remote.Factory.
func (b *Backend) Factory() remote.Factory {
	return func() remote.Store { return b.NewStore() }
}

// Notes returns a copy of every stored note in insertion order.
func (b *Backend) Notes() []models.Note {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Note(nil), b.notes...)
}

// SeedNote stores a note with an explicit creation time.
func (b *Backend) SeedNote(userID, title, content string, createdAt time.Time) models.Note {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	n := models.Note{
		ID:        fmt.Sprintf("n%d", b.nextID),
		UserID:    userID,
		Title:     title,
		Content:   content,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	b.notes = append(b.notes, n)
	return n
}

// SeedUser registers an account and its profile directly.
func (b *Backend) SeedUser(email, password string, p models.Profile) models.Principal {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := fmt.Sprintf("u%d", b.nextID)
	b.accounts[email] = account{id: id, email: email, password: password}
	p.ID = id
	b.profiles[id] = p
	return models.Principal{ID: id, Email: email, AccessToken: "token-" + id}
}

func (b *Backend) check(op string) error {
	if b.Fail == nil {
		return nil
	}
	return b.Fail(op)
}

func (b *Backend) tick() time.Time {
	b.clock = b.clock.Add(time.Second)
	return b.clock
}

// Store is one session against a Backend.
type Store struct {
	b *Backend

	mu        sync.Mutex
	principal *models.Principal
}

var _ remote.Store = (*Store)(nil)

func (s *Store) SignUp(_ context.Context, email, password string) (models.Principal, error) {
	if err := s.b.check("sign_up"); err != nil {
		return models.Principal{}, err
	}
	s.b.mu.Lock()
	if _, ok := s.b.accounts[email]; ok {
		s.b.mu.Unlock()
		return models.Principal{}, fmt.Errorf("user already registered: %w", apperr.ErrAlreadyExists)
	}
	s.b.nextID++
	a := account{id: fmt.Sprintf("u%d", s.b.nextID), email: email, password: password}
	s.b.accounts[email] = a
	s.b.mu.Unlock()

	p := models.Principal{ID: a.id, Email: email, AccessToken: "token-" + a.id}
	s.set(&p)
	return p, nil
}

func (s *Store) SignIn(_ context.Context, email, password string) (models.Principal, error) {
	if err := s.b.check("sign_in"); err != nil {
		return models.Principal{}, err
	}
	s.b.mu.Lock()
	a, ok := s.b.accounts[email]
	s.b.mu.Unlock()
	if !ok || a.password != password {
		return models.Principal{}, fmt.Errorf("invalid login credentials: %w", apperr.ErrUnauthenticated)
	}
	p := models.Principal{ID: a.id, Email: email, AccessToken: "token-" + a.id}
	s.set(&p)
	return p, nil
}

func (s *Store) CurrentUser(_ context.Context) (*models.Principal, error) {
	if err := s.b.check("current_user"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principal == nil {
		return nil, nil
	}
	p := *s.principal
	return &p, nil
}

func (s *Store) SignOut(_ context.Context) error {
	s.set(nil)
	return nil
}

// SignInAs installs a session without going through credentials.
func (s *Store) SignInAs(p models.Principal) {
	s.set(&p)
}

func (s *Store) set(p *models.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = p
}

func (s *Store) UpsertProfile(_ context.Context, p models.Profile) error {
	if err := s.b.check("upsert_profile"); err != nil {
		return err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.profiles[p.ID] = p
	return nil
}

func (s *Store) ProfileByID(_ context.Context, id string) (models.Profile, error) {
	if err := s.b.check("profile_by_id"); err != nil {
		return models.Profile{}, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	p, ok := s.b.profiles[id]
	if !ok {
		return models.Profile{}, fmt.Errorf("profile %s: %w", id, apperr.ErrNotFound)
	}
	return p, nil
}

func (s *Store) NotesByUser(ctx context.Context, userID string) ([]models.Note, error) {
	if err := s.before(ctx, "select_notes", userID); err != nil {
		return nil, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	var out []models.Note
	for i := len(s.b.notes) - 1; i >= 0; i-- {
		if s.b.notes[i].UserID == userID {
			out = append(out, s.b.notes[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) InsertNote(ctx context.Context, userID, title, content string) (models.Note, error) {
	if err := s.before(ctx, "insert_note", ""); err != nil {
		return models.Note{}, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.nextID++
	now := s.b.tick()
	n := models.Note{
		ID:        fmt.Sprintf("n%d", s.b.nextID),
		UserID:    userID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.b.notes = append(s.b.notes, n)
	return n, nil
}

func (s *Store) UpdateNote(ctx context.Context, noteID, title, content string) (models.Note, error) {
	if err := s.before(ctx, "update_note", noteID); err != nil {
		return models.Note{}, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	for i := range s.b.notes {
		if s.b.notes[i].ID == noteID {
			s.b.notes[i].Title = title
			s.b.notes[i].Content = content
			s.b.notes[i].UpdatedAt = s.b.tick()
			return s.b.notes[i], nil
		}
	}
	return models.Note{}, fmt.Errorf("note %s: %w", noteID, apperr.ErrNotFound)
}

func (s *Store) DeleteNote(ctx context.Context, noteID string) error {
	if err := s.before(ctx, "delete_note", noteID); err != nil {
		return err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	for i := range s.b.notes {
		if s.b.notes[i].ID == noteID {
			s.b.notes = append(s.b.notes[:i], s.b.notes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("note %s: %w", noteID, apperr.ErrNotFound)
}

func (s *Store) before(ctx context.Context, op, id string) error {
	if s.b.Hook != nil {
		s.b.Hook(ctx, op, id)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.b.check(op)
}
