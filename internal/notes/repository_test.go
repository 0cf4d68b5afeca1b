package notes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/index"
	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/sse"
	"github.com/starford/notesync/internal/storage"
	"github.com/starford/notesync/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBackup struct{ n atomic.Int32 }

func (c *countingBackup) Trigger() { c.n.Add(1) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(e sse.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, string(e.Type))
}

func (p *recordingPublisher) PublishNoteEvent(kind, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "note."+kind+":"+id)
}

func (p *recordingPublisher) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type env struct {
	repo    *Repository
	store   *storage.Memory
	tracker *tracker.Tracker
	index   *index.Builder
	backup  *countingBackup
	events  *recordingPublisher
	clock   *time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := storage.NewMemory()
	idx := index.NewBuilder(store, nil)
	tr := tracker.New(store)
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	e := &env{store: store, tracker: tr, index: idx, backup: &countingBackup{}, events: &recordingPublisher{}, clock: &clock}
	seq := 0
	e.repo = New(Options{
		Store:   store,
		Index:   idx,
		Tracker: tr,
		Events:  e.events,
		Backup:  e.backup,
		Now: func() time.Time {
			*e.clock = e.clock.Add(time.Second)
			return *e.clock
		},
		NewID: func() string {
			seq++
			return fmt.Sprintf("n%d", seq)
		},
	})
	return e
}

func (e *env) seed(t *testing.T, notes ...models.Note) {
	t.Helper()
	require.NoError(t, storage.SetJSON(context.Background(), e.store, storage.KeyNotes, notes))
	require.True(t, e.index.Build(context.Background()))
}

func TestGetAllNotes_EmptyAndMalformed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	assert.Empty(t, e.repo.GetAllNotes(ctx))
	require.NoError(t, e.store.Set(ctx, storage.KeyNotes, "{broken"))
	got := e.repo.GetAllNotes(ctx)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSaveNote(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	n, ok := e.repo.SaveNote(ctx, models.NoteDraft{Title: "A", Content: "B"})
	require.True(t, ok)

	all := e.repo.GetAllNotes(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, "A", all[0].Title)
	assert.Equal(t, "B", all[0].Content)
	assert.False(t, all[0].IsFavorite)
	assert.False(t, all[0].IsTrash)
	assert.False(t, all[0].IsArchived)
	assert.NotEmpty(t, all[0].ID)
	assert.Equal(t, n.ID, all[0].ID)
	assert.Equal(t, all[0].CreatedAt, all[0].UpdatedAt)

	_, stamped := e.tracker.LastChange(ctx)
	assert.True(t, stamped, "change tracker should be stamped")
	assert.Contains(t, e.events.all(), "note.created:"+n.ID)
}

func TestSaveNote_PrependsNewest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, _ := e.repo.SaveNote(ctx, models.NoteDraft{Title: "first"})
	second, _ := e.repo.SaveNote(ctx, models.NoteDraft{Title: "second"})

	all := e.repo.GetAllNotes(ctx)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)
}

func TestSaveNote_WriteFailure(t *testing.T) {
	e := newEnv(t)
	e.store.FailSet(storage.KeyNotes, errors.New("disk full"))

	_, ok := e.repo.SaveNote(context.Background(), models.NoteDraft{Title: "A"})
	assert.False(t, ok)
	assert.Zero(t, e.backup.n.Load())
}

func TestSaveNote_IndexFailureStillSucceeds(t *testing.T) {
	e := newEnv(t)
	e.store.FailSet(storage.KeyIndexFavorites, errors.New("disk full"))

	_, ok := e.repo.SaveNote(context.Background(), models.NoteDraft{Title: "A"})
	assert.True(t, ok)
	assert.Len(t, e.repo.GetAllNotes(context.Background()), 1)
}

func TestAutoBackupOnlyWhenEnabled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	n, _ := e.repo.SaveNote(ctx, models.NoteDraft{Title: "A"})
	assert.Zero(t, e.backup.n.Load())

	require.NoError(t, e.tracker.SetAutoBackup(ctx, true))
	_, err := e.repo.UpdateNote(ctx, n.ID, models.NotePatch{Title: models.StringPtr("B")})
	require.NoError(t, err)
	assert.EqualValues(t, 1, e.backup.n.Load())
}

func TestDeleteAndTrashAlwaysBackup(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, models.Note{ID: "1"}, models.Note{ID: "2"})

	_, err := e.repo.MoveToTrash(ctx, "1")
	require.NoError(t, err)
	_, err = e.repo.DeleteNotes(ctx, "2")
	require.NoError(t, err)
	assert.EqualValues(t, 2, e.backup.n.Load())
}

func TestUpdateNote(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e.seed(t, models.Note{ID: "1", Title: "old", Content: "keep", CreatedAt: created, UpdatedAt: created})

	ok, err := e.repo.UpdateNote(ctx, "1", models.NotePatch{Title: models.StringPtr("new")})
	require.NoError(t, err)
	require.True(t, ok)

	n, err := e.repo.GetNote(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "new", n.Title)
	assert.Equal(t, "keep", n.Content)
	assert.Equal(t, created, n.CreatedAt)
	assert.True(t, n.UpdatedAt.After(created))
}

func TestUpdateNote_NotFound(t *testing.T) {
	e := newEnv(t)
	ok, err := e.repo.UpdateNote(context.Background(), "missing", models.NotePatch{Title: models.StringPtr("x")})
	assert.False(t, ok)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteNotes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, models.Note{ID: "1"}, models.Note{ID: "2"}, models.Note{ID: "3"})

	ok, err := e.repo.DeleteNotes(ctx, "1", "3")
	require.NoError(t, err)
	require.True(t, ok)

	all := e.repo.GetAllNotes(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, "2", all[0].ID)

	ok, _ = e.repo.DeleteNotes(ctx)
	assert.False(t, ok, "empty id list")
}

func TestMoveToTrash_Batch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, models.Note{ID: "1"}, models.Note{ID: "2"}, models.Note{ID: "3"})

	ok, err := e.repo.MoveToTrash(ctx, "1", "2")
	require.NoError(t, err)
	require.True(t, ok)

	trashed := e.repo.GetTrashNotes(ctx)
	require.Len(t, trashed, 2)
	for _, n := range trashed {
		assert.True(t, n.IsTrash)
		assert.NotNil(t, n.TrashedAt)
	}
	active := e.repo.GetActiveNotes(ctx)
	require.Len(t, active, 1)
	assert.Equal(t, "3", active[0].ID)
}

func TestMoveToTrash_NoneMatched(t *testing.T) {
	e := newEnv(t)
	e.seed(t, models.Note{ID: "1"})

	ok, err := e.repo.MoveToTrash(context.Background(), "x", "y")
	assert.False(t, ok)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRestoreFromTrash_KeepsTrashedAt(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, models.Note{ID: "1"})

	_, err := e.repo.MoveToTrash(ctx, "1")
	require.NoError(t, err)
	ok, err := e.repo.RestoreFromTrash(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)

	n, _ := e.repo.GetNote(ctx, "1")
	assert.False(t, n.IsTrash)
	assert.NotNil(t, n.TrashedAt, "trashedAt survives restore")
}

func TestToggles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, models.Note{ID: "1"})

	_, err := e.repo.ToggleFavorite(ctx, "1")
	require.NoError(t, err)
	_, err = e.repo.ToggleArchive(ctx, "1")
	require.NoError(t, err)

	n, _ := e.repo.GetNote(ctx, "1")
	assert.True(t, n.IsFavorite)
	assert.True(t, n.IsArchived)
	assert.Len(t, e.repo.GetArchivedNotes(ctx), 1)
	assert.Len(t, e.repo.GetFavoriteNotes(ctx), 1)

	_, err = e.repo.ToggleFavorite(ctx, "1")
	require.NoError(t, err)
	n, _ = e.repo.GetNote(ctx, "1")
	assert.False(t, n.IsFavorite)

	_, err = e.repo.ToggleArchive(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestBatchOperations(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, models.Note{ID: "1"}, models.Note{ID: "2"}, models.Note{ID: "3"})

	_, err := e.repo.BatchToggleFavorite(ctx, []string{"1", "2"}, true)
	require.NoError(t, err)
	_, err = e.repo.BatchToggleArchive(ctx, []string{"3"}, true)
	require.NoError(t, err)
	_, err = e.repo.BatchUpdateCategory(ctx, []string{"1", "3"}, models.StringPtr("Work"))
	require.NoError(t, err)
	_, err = e.repo.BatchUpdateNotes(ctx, []string{"2"}, models.NotePatch{Color: models.StringPtr("#fff")})
	require.NoError(t, err)
	_, err = e.repo.BatchMoveToTrash(ctx, []string{"1", "2"})
	require.NoError(t, err)
	_, err = e.repo.BatchRestoreFromTrash(ctx, []string{"2"})
	require.NoError(t, err)

	byID := map[string]models.Note{}
	for _, n := range e.repo.GetAllNotes(ctx) {
		byID[n.ID] = n
	}
	assert.True(t, byID["1"].IsFavorite)
	assert.True(t, byID["1"].IsTrash)
	assert.Equal(t, "Work", byID["1"].CategoryName())
	assert.Equal(t, "#fff", byID["2"].Color)
	assert.False(t, byID["2"].IsTrash)
	assert.True(t, byID["3"].IsArchived)
	assert.Equal(t, "Work", byID["3"].CategoryName())
}

func TestBatchOperations_EmptyListNoSideEffects(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	calls := []func() (bool, error){
		func() (bool, error) { return e.repo.BatchUpdateNotes(ctx, nil, models.NotePatch{}) },
		func() (bool, error) { return e.repo.BatchToggleFavorite(ctx, nil, true) },
		func() (bool, error) { return e.repo.BatchToggleArchive(ctx, nil, true) },
		func() (bool, error) { return e.repo.BatchMoveToTrash(ctx, nil) },
		func() (bool, error) { return e.repo.BatchRestoreFromTrash(ctx, nil) },
		func() (bool, error) { return e.repo.BatchUpdateCategory(ctx, nil, nil) },
	}
	for i, call := range calls {
		ok, err := call()
		assert.False(t, ok, "call %d", i)
		assert.NoError(t, err, "call %d", i)
	}
	_, ok, _ := e.store.Get(ctx, storage.KeyNotes)
	assert.False(t, ok, "nothing should be written")
	_, stamped := e.tracker.LastChange(ctx)
	assert.False(t, stamped)
}

func TestIndexedReads(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	e.seed(t,
		models.Note{ID: "1", Category: models.StringPtr("Work"), IsFavorite: true, UpdatedAt: jan},
		models.Note{ID: "2", Category: models.StringPtr("Home"), UpdatedAt: mar},
		models.Note{ID: "3", Category: models.StringPtr("Work"), CreatedAt: mar},
	)

	work := e.repo.GetNotesByCategory(ctx, "Work")
	require.Len(t, work, 2)
	assert.Equal(t, "1", work[0].ID)
	assert.Equal(t, "3", work[1].ID)

	favs := e.repo.GetFavoriteNotesIndexed(ctx)
	require.Len(t, favs, 1)
	assert.Equal(t, "1", favs[0].ID)

	got := e.repo.GetNotesByDateRange(ctx, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	assert.Len(t, got, 2)
	assert.Empty(t, e.repo.GetNotesByDateRange(ctx, mar, jan))
}

func TestFavoriteReadsAgreeOnTrash(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t,
		models.Note{ID: "1", IsFavorite: true},
		models.Note{ID: "2", IsFavorite: true},
	)
	_, err := e.repo.MoveToTrash(ctx, "2")
	require.NoError(t, err)

	assert.Contains(t, e.index.FavoriteIDs(ctx), "2", "index still lists every favorite")

	ids := func(notes []models.Note) []string {
		out := []string{}
		for _, n := range notes {
			out = append(out, n.ID)
		}
		return out
	}
	assert.Equal(t, []string{"1"}, ids(e.repo.GetFavoriteNotes(ctx)))
	assert.Equal(t, []string{"1"}, ids(e.repo.GetFavoriteNotesIndexed(ctx)))
}

func TestIndexedReads_AbsentOrStaleIndex(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	assert.Empty(t, e.repo.GetNotesByCategory(ctx, "Work"))
	assert.Empty(t, e.repo.GetFavoriteNotesIndexed(ctx))

	e.seed(t, models.Note{ID: "1", IsFavorite: true})
	// Remove the note behind the index's back.
	require.NoError(t, storage.SetJSON(ctx, e.store, storage.KeyNotes, []models.Note{}))
	assert.Empty(t, e.repo.GetFavoriteNotesIndexed(ctx))
}

func TestIndexConsistencyAfterMutations(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, _ := e.repo.SaveNote(ctx, models.NoteDraft{Title: "a", Category: models.StringPtr("Work")})
	b, _ := e.repo.SaveNote(ctx, models.NoteDraft{Title: "b"})
	_, err := e.repo.ToggleFavorite(ctx, b.ID)
	require.NoError(t, err)

	idx := e.index.Load(ctx)
	assert.Equal(t, []string{a.ID}, idx.Categories["Work"])
	assert.Equal(t, []string{b.ID}, idx.Favorites)
	for _, id := range idx.Favorites {
		n, err := e.repo.GetNote(ctx, id)
		require.NoError(t, err)
		assert.True(t, n.IsFavorite)
	}
}
