package notes

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/notesapp/internal/apperr"
	"github.com/starford/notesapp/internal/models"
	"github.com/starford/notesapp/internal/remote"
	"github.com/starford/notesapp/internal/remote/remotetest"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func testManager(t *testing.T, opts ...Option) (*Manager, *remotetest.Backend) {
	t.Helper()
	b := remotetest.NewBackend(epoch)
	m := NewManager(b.NewStore(), opts...)
	if err := m.Load(context.Background(), "u1"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m, b
}

func ids(notes []models.Note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.ID
	}
	return out
}

func titles(notes []models.Note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.Title
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCreateUpdateDeleteScenario(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	a, err := m.Create(ctx, "A", "a1")
	if err != nil {
		t.Fatalf("create A: %v", err)
	}
	b, err := m.Create(ctx, "B", "b1")
	if err != nil {
		t.Fatalf("create B: %v", err)
	}
	if got := titles(m.Notes()); !equal(got, []string{"B", "A"}) {
		t.Fatalf("after creates = %v, want [B A]", got)
	}

	if err := m.BeginEdit(a.ID); err != nil {
		t.Fatalf("BeginEdit: %v", err)
	}
	a2, err := m.Update(ctx, a.ID, "A2", "a2")
	if err != nil {
		t.Fatalf("update A: %v", err)
	}
	if got := titles(m.Notes()); !equal(got, []string{"B", "A2"}) {
		t.Fatalf("after update = %v, want [B A2]", got)
	}
	if !a2.UpdatedAt.After(a.UpdatedAt) {
		t.Errorf("updated_at %v not after %v", a2.UpdatedAt, a.UpdatedAt)
	}
	if a2.ID != a.ID || !a2.CreatedAt.Equal(a.CreatedAt) {
		t.Errorf("identity changed: %+v vs %+v", a2, a)
	}
	if _, ok := m.Edit().(Idle); !ok {
		t.Errorf("edit session = %#v, want Idle", m.Edit())
	}

	if err := m.Delete(ctx, b.ID); err != nil {
		t.Fatalf("delete B: %v", err)
	}
	if got := titles(m.Notes()); !equal(got, []string{"A2"}) {
		t.Fatalf("after delete = %v, want [A2]", got)
	}
}

func TestCreateRejectsBlankInput(t *testing.T) {
	m, b := testManager(t)
	var calls atomic.Int32
	b.Hook = func(context.Context, string, string) { calls.Add(1) }

	for _, in := range [][2]string{{"", "x"}, {"x", ""}, {"", ""}, {"  ", "\t"}} {
		_, err := m.Create(context.Background(), in[0], in[1])
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Create(%q, %q) err = %v, want validation", in[0], in[1], err)
		}
	}
	if len(m.Notes()) != 0 {
		t.Errorf("collection changed: %v", m.Notes())
	}
	if calls.Load() != 0 {
		t.Errorf("store contacted %d times", calls.Load())
	}
}

func TestCreateClearsDraftOnlyOnSuccess(t *testing.T) {
	m, b := testManager(t)
	ctx := context.Background()

	m.BeginCreate()
	_ = m.SetDraft(Draft{Title: "T", Content: "C"})

	b.Fail = func(op string) error {
		if op == "insert_note" {
			return errors.New("connection reset")
		}
		return nil
	}
	_, err := m.Submit(ctx)
	if !errors.Is(err, apperr.ErrRemote) {
		t.Fatalf("err = %v, want remote error", err)
	}
	c, ok := m.Edit().(Creating)
	if !ok || c.Draft.Title != "T" {
		t.Fatalf("draft lost after failure: %#v", m.Edit())
	}
	if len(m.Notes()) != 0 {
		t.Fatalf("collection changed on failure")
	}

	b.Fail = nil
	n, err := m.Submit(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n.ID == "" || n.Title != "T" {
		t.Errorf("created = %+v", n)
	}
	if _, ok := m.Edit().(Idle); !ok {
		t.Errorf("edit session = %#v, want Idle", m.Edit())
	}
}

func TestCreateAssignsUniqueIDs(t *testing.T) {
	m, _ := testManager(t)
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		n, err := m.Create(context.Background(), "t", "c")
		if err != nil {
			t.Fatal(err)
		}
		if seen[n.ID] {
			t.Fatalf("duplicate id %s", n.ID)
		}
		seen[n.ID] = true
	}
	if len(m.Notes()) != 5 {
		t.Errorf("len = %d, want 5", len(m.Notes()))
	}
}

func TestCreateRequiresLoadedUser(t *testing.T) {
	b := remotetest.NewBackend(epoch)
	m := NewManager(b.NewStore())
	if _, err := m.Create(context.Background(), "t", "c"); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestUpdateRequiresOpenEditSession(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()
	a, _ := m.Create(ctx, "A", "a1")
	b, _ := m.Create(ctx, "B", "b1")

	if _, err := m.Update(ctx, a.ID, "x", "y"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("update without edit session = %v, want not found", err)
	}

	_ = m.BeginEdit(b.ID)
	if _, err := m.Update(ctx, a.ID, "x", "y"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("update of other note = %v, want not found", err)
	}
	if got := titles(m.Notes()); !equal(got, []string{"B", "A"}) {
		t.Errorf("collection changed: %v", got)
	}
}

func TestUpdateFailureKeepsEntryAndDraft(t *testing.T) {
	m, b := testManager(t)
	ctx := context.Background()
	a, _ := m.Create(ctx, "A", "a1")
	other, _ := m.Create(ctx, "O", "o1")

	_ = m.BeginEdit(a.ID)
	_ = m.SetDraft(Draft{Title: "A2", Content: "a2"})
	b.Fail = func(op string) error {
		if op == "update_note" {
			return errors.New("503")
		}
		return nil
	}
	if _, err := m.Submit(ctx); !errors.Is(err, apperr.ErrRemote) {
		t.Fatalf("err = %v, want remote", err)
	}
	got, _ := m.Get(a.ID)
	if got.Title != "A" {
		t.Errorf("entry changed: %+v", got)
	}
	e, ok := m.Edit().(Editing)
	if !ok || e.Draft.Title != "A2" {
		t.Errorf("draft lost: %#v", m.Edit())
	}
	o, _ := m.Get(other.ID)
	if o != other {
		t.Errorf("other entry changed: %+v", o)
	}
}

func TestUpdateValidation(t *testing.T) {
	m, _ := testManager(t)
	a, _ := m.Create(context.Background(), "A", "a1")
	_ = m.BeginEdit(a.ID)
	if _, err := m.Update(context.Background(), a.ID, " ", "x"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want validation", err)
	}
	if _, ok := m.Edit().(Editing); !ok {
		t.Error("edit session should stay open after a validation failure")
	}
}

func TestDeleteMissingIsNotFound(t *testing.T) {
	m, b := testManager(t)
	_, _ = m.Create(context.Background(), "A", "a1")
	var calls atomic.Int32
	b.Hook = func(context.Context, string, string) { calls.Add(1) }

	err := m.Delete(context.Background(), "nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
	if len(m.Notes()) != 1 || calls.Load() != 0 {
		t.Errorf("collection %v, store calls %d", m.Notes(), calls.Load())
	}
}

func TestDeleteClearsEditOfSameNote(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()
	a, _ := m.Create(ctx, "A", "a1")
	b, _ := m.Create(ctx, "B", "b1")

	_ = m.BeginEdit(a.ID)
	if err := m.Delete(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if e, ok := m.Edit().(Editing); !ok || e.NoteID != a.ID {
		t.Errorf("deleting another note closed the form: %#v", m.Edit())
	}

	if err := m.Delete(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Edit().(Idle); !ok {
		t.Errorf("edit session = %#v, want Idle", m.Edit())
	}
	if len(m.Notes()) != 0 {
		t.Errorf("collection = %v", m.Notes())
	}
}

func TestDeleteFailureKeepsCollection(t *testing.T) {
	m, b := testManager(t)
	a, _ := m.Create(context.Background(), "A", "a1")
	b.Fail = func(op string) error {
		if op == "delete_note" {
			return errors.New("denied")
		}
		return nil
	}
	if err := m.Delete(context.Background(), a.ID); !errors.Is(err, apperr.ErrRemote) {
		t.Errorf("err = %v, want remote", err)
	}
	if len(m.Notes()) != 1 {
		t.Errorf("collection changed: %v", m.Notes())
	}
}

func TestLoadOrdersNewestFirstAndKeepsTies(t *testing.T) {
	b := remotetest.NewBackend(epoch)
	old := b.SeedNote("u1", "old", "x", epoch)
	tieA := b.SeedNote("u1", "tieA", "x", epoch.Add(time.Hour))
	tieB := b.SeedNote("u1", "tieB", "x", epoch.Add(time.Hour))
	newest := b.SeedNote("u1", "newest", "x", epoch.Add(2*time.Hour))
	b.SeedNote("u2", "foreign", "x", epoch.Add(3*time.Hour))

	store := b.NewStore()
	fetched, _ := store.NotesByUser(context.Background(), "u1")

	m := NewManager(store)
	if err := m.Load(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	got := ids(m.Notes())
	if got[0] != newest.ID || got[3] != old.ID {
		t.Fatalf("order = %v", got)
	}
	// Ties keep the order in which the store returned them.
	var storeTies []string
	for _, n := range fetched {
		if n.ID == tieA.ID || n.ID == tieB.ID {
			storeTies = append(storeTies, n.ID)
		}
	}
	if !equal(got[1:3], storeTies) {
		t.Errorf("ties = %v, store order %v", got[1:3], storeTies)
	}
}

func TestLoadFailureKeepsPreviousState(t *testing.T) {
	m, b := testManager(t)
	_, _ = m.Create(context.Background(), "A", "a1")
	b.Fail = func(op string) error {
		if op == "select_notes" {
			return errors.New("offline")
		}
		return nil
	}
	if err := m.Load(context.Background(), "u1"); !errors.Is(err, apperr.ErrRemote) {
		t.Fatalf("err = %v, want remote", err)
	}
	if len(m.Notes()) != 1 {
		t.Errorf("collection = %v", m.Notes())
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()
	_, _ = m.Create(ctx, "A", "a1")
	_, _ = m.Create(ctx, "B", "b1")

	_ = m.Load(ctx, "u1")
	first := m.Notes()
	_ = m.Load(ctx, "u1")
	if !equal(ids(first), ids(m.Notes())) {
		t.Errorf("second load = %v, first %v", ids(m.Notes()), ids(first))
	}
}

func TestRoundTripThroughStore(t *testing.T) {
	m, b := testManager(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, "A", "a1")
	bn, _ := m.Create(ctx, "B", "b1")
	c, _ := m.Create(ctx, "C", "c1")
	_ = m.BeginEdit(a.ID)
	_, _ = m.Update(ctx, a.ID, "A2", "a2")
	_ = m.Delete(ctx, bn.ID)

	local := m.Notes()

	fresh := NewManager(b.NewStore())
	if err := fresh.Load(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if !equal(ids(fresh.Notes()), ids(local)) || !equal(titles(fresh.Notes()), titles(local)) {
		t.Errorf("reload = %v, local = %v", titles(fresh.Notes()), titles(local))
	}
	if fresh.Notes()[0].ID != c.ID {
		t.Errorf("newest should be first: %v", ids(fresh.Notes()))
	}
}

func TestRemoteTimeout(t *testing.T) {
	m, b := testManager(t, WithTimeout(20*time.Millisecond))
	b.Hook = func(ctx context.Context, op, _ string) {
		if op == "insert_note" {
			<-ctx.Done()
		}
	}
	_, err := m.Create(context.Background(), "A", "a1")
	if !errors.Is(err, apperr.ErrRemote) || !errors.Is(err, apperr.ErrTimeout) {
		t.Fatalf("err = %v, want remote timeout", err)
	}
	if len(m.Notes()) != 0 {
		t.Errorf("collection changed: %v", m.Notes())
	}
}

func TestStaleUpdateResponseIsDropped(t *testing.T) {
	m, b := testManager(t)
	ctx := context.Background()
	a, _ := m.Create(ctx, "A", "a1")

	entered := make(chan struct{})
	release := make(chan struct{})
	var blocked atomic.Bool
	b.Hook = func(_ context.Context, op, _ string) {
		if op == "update_note" && blocked.CompareAndSwap(false, true) {
			close(entered)
			<-release
		}
	}

	_ = m.BeginEdit(a.ID)
	slow := make(chan error, 1)
	go func() {
		_, err := m.Update(ctx, a.ID, "slow", "s")
		slow <- err
	}()
	<-entered

	if _, err := m.Update(ctx, a.ID, "fast", "f"); err != nil {
		t.Fatalf("fast update: %v", err)
	}
	close(release)

	if err := <-slow; !errors.Is(err, apperr.ErrSuperseded) {
		t.Fatalf("slow update err = %v, want superseded", err)
	}
	got, _ := m.Get(a.ID)
	if got.Title != "fast" {
		t.Errorf("title = %q, want fast", got.Title)
	}
}

func TestDeleteSupersedesInFlightUpdate(t *testing.T) {
	m, b := testManager(t)
	ctx := context.Background()
	a, _ := m.Create(ctx, "A", "a1")

	entered := make(chan struct{})
	release := make(chan struct{})
	b.Hook = func(_ context.Context, op, _ string) {
		if op == "update_note" {
			close(entered)
			<-release
		}
	}

	_ = m.BeginEdit(a.ID)
	pending := make(chan error, 1)
	go func() {
		_, err := m.Update(ctx, a.ID, "late", "l")
		pending <- err
	}()
	<-entered

	if err := m.Delete(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	close(release)

	if err := <-pending; !errors.Is(err, apperr.ErrSuperseded) {
		t.Errorf("update err = %v, want superseded", err)
	}
	if len(m.Notes()) != 0 {
		t.Errorf("deleted note resurrected: %v", m.Notes())
	}
}

func TestObserverSeesAppliedChanges(t *testing.T) {
	var kinds []string
	b := remotetest.NewBackend(epoch)
	m := NewManager(b.NewStore(), WithObserver(func(e Event) { kinds = append(kinds, e.Kind) }))
	ctx := context.Background()

	_ = m.Load(ctx, "u1")
	n, _ := m.Create(ctx, "A", "a1")
	_, _ = m.Create(ctx, "", "")
	_ = m.BeginEdit(n.ID)
	_, _ = m.Update(ctx, n.ID, "A2", "a2")
	_ = m.Delete(ctx, n.ID)

	want := []string{EventLoaded, EventCreated, EventUpdated, EventDeleted}
	if !equal(kinds, want) {
		t.Errorf("events = %v, want %v", kinds, want)
	}
}

func TestResetForgetsEverything(t *testing.T) {
	m, _ := testManager(t)
	n, _ := m.Create(context.Background(), "A", "a1")
	_ = m.BeginEdit(n.ID)
	m.Reset()
	if len(m.Notes()) != 0 {
		t.Error("notes survived reset")
	}
	if _, ok := m.Edit().(Idle); !ok {
		t.Error("edit session survived reset")
	}
	if _, err := m.Create(context.Background(), "B", "b"); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Errorf("create after reset = %v", err)
	}
}

func TestCreateAnsweredAfterResetIsDropped(t *testing.T) {
	var created atomic.Int32
	m, b := testManager(t, WithObserver(func(e Event) {
		if e.Kind == EventCreated {
			created.Add(1)
		}
	}))
	ctx := context.Background()

	var blocked atomic.Bool
	entered := make(chan struct{})
	release := make(chan struct{})
	b.Hook = func(_ context.Context, op, _ string) {
		if op == "insert_note" && blocked.CompareAndSwap(false, true) {
			close(entered)
			<-release
		}
	}

	pending := make(chan error, 1)
	go func() {
		_, err := m.Create(ctx, "secret", "s")
		pending <- err
	}()
	<-entered

	// Sign-out, then another user signs in on the same workspace.
	m.Reset()
	if err := m.Load(ctx, "u2"); err != nil {
		t.Fatalf("Load u2: %v", err)
	}
	close(release)

	if err := <-pending; !errors.Is(err, apperr.ErrSuperseded) {
		t.Errorf("create err = %v, want superseded", err)
	}
	if got := m.Notes(); len(got) != 0 {
		t.Errorf("next session sees %v", titles(got))
	}
	if created.Load() != 0 {
		t.Errorf("created events = %d, want 0", created.Load())
	}
}

func TestDeleteAnsweredAfterResetEmitsNothing(t *testing.T) {
	var deleted atomic.Int32
	m, b := testManager(t, WithObserver(func(e Event) {
		if e.Kind == EventDeleted {
			deleted.Add(1)
		}
	}))
	ctx := context.Background()
	n, _ := m.Create(ctx, "A", "a1")

	entered := make(chan struct{})
	release := make(chan struct{})
	b.Hook = func(_ context.Context, op, _ string) {
		if op == "delete_note" {
			close(entered)
			<-release
		}
	}

	pending := make(chan error, 1)
	go func() { pending <- m.Delete(ctx, n.ID) }()
	<-entered
	m.Reset()
	close(release)

	if err := <-pending; !errors.Is(err, apperr.ErrSuperseded) {
		t.Errorf("delete err = %v, want superseded", err)
	}
	if deleted.Load() != 0 {
		t.Errorf("deleted events = %d, want 0", deleted.Load())
	}
}

// pausingNotes holds the first NotesByUser response after it was fetched.
type pausingNotes struct {
	remote.Notes
	paused  atomic.Bool
	fetched chan struct{}
	release chan struct{}
}

func (p *pausingNotes) NotesByUser(ctx context.Context, userID string) ([]models.Note, error) {
	notes, err := p.Notes.NotesByUser(ctx, userID)
	if p.paused.CompareAndSwap(false, true) {
		close(p.fetched)
		<-p.release
	}
	return notes, err
}

func TestLoadOvertakenByWriteRefetches(t *testing.T) {
	b := remotetest.NewBackend(epoch)
	store := &pausingNotes{Notes: b.NewStore(), fetched: make(chan struct{}), release: make(chan struct{})}
	store.paused.Store(true)
	m := NewManager(store)
	ctx := context.Background()

	if err := m.Load(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	gone, _ := m.Create(ctx, "gone", "g")
	kept, _ := m.Create(ctx, "kept", "k")

	store.paused.Store(false)
	loaded := make(chan error, 1)
	go func() { loaded <- m.Load(ctx, "u1") }()
	<-store.fetched

	// The paused snapshot still holds gone.
	if err := m.Delete(ctx, gone.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	close(store.release)

	if err := <-loaded; err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := ids(m.Notes()); !equal(got, []string{kept.ID}) {
		t.Errorf("local = %v, want [%s]", got, kept.ID)
	}
	if got := ids(b.Notes()); len(got) != 1 || got[0] != kept.ID {
		t.Errorf("store = %v", got)
	}
}
