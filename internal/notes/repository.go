// Package notes is the sole writer of the local note and category collections.
// Every operation reads the whole collection, mutates it in memory and writes
// it back in one piece.
package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/index"
	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/sse"
	"github.com/starford/notesync/internal/storage"
	"github.com/starford/notesync/internal/tracker"
)

// BackupTrigger starts a background backup. Failures stay inside the trigger.
type BackupTrigger interface {
	Trigger()
}

// Options wires a Repository. Store, Index and Tracker are required.
type Options struct {
	Store   storage.Provider
	Index   *index.Builder
	Tracker *tracker.Tracker
	Events  sse.Publisher
	Backup  BackupTrigger
	// Lock serializes read-modify-write cycles. Share it with anything else
	// that writes the note keys.
	Lock   sync.Locker
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Repository implements the note and category operations.
type Repository struct {
	store   storage.Provider
	index   *index.Builder
	tracker *tracker.Tracker
	events  sse.Publisher
	backup  BackupTrigger
	mu      sync.Locker
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// New builds a Repository from opts, filling defaults for optional fields.
func New(opts Options) *Repository {
	r := &Repository{
		store:   opts.Store,
		index:   opts.Index,
		tracker: opts.Tracker,
		events:  opts.Events,
		backup:  opts.Backup,
		mu:      opts.Lock,
		logger:  opts.Logger,
		now:     opts.Now,
		newID:   opts.NewID,
	}
	if r.events == nil {
		r.events = sse.Nop{}
	}
	if r.mu == nil {
		r.mu = &sync.Mutex{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r
}

// SetBackup attaches the backup trigger after construction.
func (r *Repository) SetBackup(b BackupTrigger) { r.backup = b }

// GetAllNotes returns the stored collection. A missing or malformed value
// yields an empty list.
func (r *Repository) GetAllNotes(ctx context.Context) []models.Note {
	notes, err := r.load(ctx)
	if err != nil {
		r.logger.Warn("notes: load failed", slog.String("error", err.Error()))
		return []models.Note{}
	}
	return notes
}

// GetNote returns one note by id.
func (r *Repository) GetNote(ctx context.Context, id string) (models.Note, error) {
	for _, n := range r.GetAllNotes(ctx) {
		if n.ID == id {
			return n, nil
		}
	}
	return models.Note{}, notFound(id)
}

// load reads the collection. A decode failure is reported with an empty slice
// so callers that tolerate it can carry on.
func (r *Repository) load(ctx context.Context) ([]models.Note, error) {
	var notes []models.Note
	if _, err := storage.GetJSON(ctx, r.store, storage.KeyNotes, &notes); err != nil {
		return []models.Note{}, err
	}
	if notes == nil {
		notes = []models.Note{}
	}
	return notes, nil
}

// loadForWrite treats a malformed collection as empty, matching GetAllNotes,
// but fails on a backend read error so nothing is overwritten blindly.
func (r *Repository) loadForWrite(ctx context.Context) ([]models.Note, error) {
	raw, ok, err := r.store.Get(ctx, storage.KeyNotes)
	if err != nil {
		return nil, err
	}
	var notes []models.Note
	if ok {
		if err := json.Unmarshal([]byte(raw), &notes); err != nil {
			r.logger.Warn("notes: discarding malformed collection", slog.String("error", err.Error()))
			notes = nil
		}
	}
	if notes == nil {
		notes = []models.Note{}
	}
	return notes, nil
}

// mutation describes one read-modify-write cycle over the note collection.
type mutation struct {
	op string
	// apply mutates notes in place or returns a replacement slice, plus the
	// ids it touched. A returned error aborts before anything is written.
	apply func(notes []models.Note, now time.Time) ([]models.Note, []string, error)
	// forceBackup triggers a backup even when auto-backup is off.
	forceBackup bool
	// event is the note event kind published per touched id.
	event string
}

func (r *Repository) mutateNotes(ctx context.Context, m mutation) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	notes, err := r.loadForWrite(ctx)
	if err != nil {
		r.logger.Error("notes: read failed", slog.String("op", m.op), slog.String("error", err.Error()))
		return false, nil
	}
	now := r.now().UTC()
	notes, touched, err := m.apply(notes, now)
	if err != nil {
		return false, err
	}
	if err := storage.SetJSON(ctx, r.store, storage.KeyNotes, notes); err != nil {
		r.logger.Error("notes: write failed", slog.String("op", m.op), slog.String("error", err.Error()))
		return false, nil
	}
	r.afterWrite(ctx, m.op, now, m.forceBackup)
	if m.event != "" {
		for _, id := range touched {
			r.events.PublishNoteEvent(m.event, id)
		}
	}
	return true, nil
}

// afterWrite runs the post-persist side effects. None of them can fail the
// calling operation.
func (r *Repository) afterWrite(ctx context.Context, op string, now time.Time, forceBackup bool) {
	if !r.index.Build(ctx) {
		r.logger.Warn("notes: index rebuild failed", slog.String("op", op))
	}
	if err := r.tracker.Stamp(ctx, now); err != nil {
		r.logger.Warn("notes: change stamp failed", slog.String("op", op), slog.String("error", err.Error()))
	}
	if r.backup == nil {
		return
	}
	if forceBackup || r.tracker.AutoBackupEnabled(ctx) {
		r.backup.Trigger()
	}
}

// SaveNote creates a note from draft and prepends it to the collection.
// ok is false when the collection could not be persisted.
func (r *Repository) SaveNote(ctx context.Context, draft models.NoteDraft) (note models.Note, ok bool) {
	ok, _ = r.mutateNotes(ctx, mutation{
		op:    "save",
		event: "created",
		apply: func(notes []models.Note, now time.Time) ([]models.Note, []string, error) {
			note = models.Note{
				ID:        r.newID(),
				Title:     draft.Title,
				Content:   draft.Content,
				Category:  cloneString(draft.Category),
				Color:     draft.Color,
				Tags:      append([]string(nil), draft.Tags...),
				CreatedAt: now,
				UpdatedAt: now,
			}
			return append([]models.Note{note}, notes...), []string{note.ID}, nil
		},
	})
	return note, ok
}

// UpdateNote merges patch onto the note and bumps UpdatedAt.
func (r *Repository) UpdateNote(ctx context.Context, id string, patch models.NotePatch) (bool, error) {
	return r.mutateNotes(ctx, mutation{
		op:    "update",
		event: "updated",
		apply: func(notes []models.Note, now time.Time) ([]models.Note, []string, error) {
			i := indexOf(notes, id)
			if i < 0 {
				return nil, nil, notFound(id)
			}
			patch.Apply(&notes[i])
			notes[i].UpdatedAt = now
			return notes, []string{id}, nil
		},
	})
}

// DeleteNotes removes every note whose id is listed. It always asks for a
// backup afterwards.
func (r *Repository) DeleteNotes(ctx context.Context, ids ...string) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	want := idSet(ids)
	return r.mutateNotes(ctx, mutation{
		op:          "delete",
		event:       "deleted",
		forceBackup: true,
		apply: func(notes []models.Note, _ time.Time) ([]models.Note, []string, error) {
			kept := notes[:0:0]
			var removed []string
			for _, n := range notes {
				if _, ok := want[n.ID]; ok {
					removed = append(removed, n.ID)
					continue
				}
				kept = append(kept, n)
			}
			return kept, removed, nil
		},
	})
}

// MoveToTrash flags every listed note as trashed. It fails with ErrNotFound
// when none of the ids exist, and always asks for a backup afterwards.
func (r *Repository) MoveToTrash(ctx context.Context, ids ...string) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	return r.mutateNotes(ctx, mutation{
		op:          "trash",
		event:       "updated",
		forceBackup: true,
		apply: eachMatching(ids, func(n *models.Note, now time.Time) {
			t := now
			n.IsTrash = true
			n.TrashedAt = &t
			n.UpdatedAt = now
		}),
	})
}

// RestoreFromTrash clears the trash flag. TrashedAt is kept as a record of
// the last time the note was trashed.
func (r *Repository) RestoreFromTrash(ctx context.Context, id string) (bool, error) {
	return r.BatchRestoreFromTrash(ctx, []string{id})
}

// ToggleFavorite flips IsFavorite.
func (r *Repository) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	return r.mutateNotes(ctx, mutation{
		op:    "toggle_favorite",
		event: "updated",
		apply: eachMatching([]string{id}, func(n *models.Note, now time.Time) {
			n.IsFavorite = !n.IsFavorite
			n.UpdatedAt = now
		}),
	})
}

// ToggleArchive flips IsArchived.
func (r *Repository) ToggleArchive(ctx context.Context, id string) (bool, error) {
	return r.mutateNotes(ctx, mutation{
		op:    "toggle_archive",
		event: "updated",
		apply: eachMatching([]string{id}, func(n *models.Note, now time.Time) {
			n.IsArchived = !n.IsArchived
			n.UpdatedAt = now
		}),
	})
}

// eachMatching applies fn to every note whose id is in ids and fails with
// ErrNotFound if there was none.
func eachMatching(ids []string, fn func(n *models.Note, now time.Time)) func([]models.Note, time.Time) ([]models.Note, []string, error) {
	want := idSet(ids)
	return func(notes []models.Note, now time.Time) ([]models.Note, []string, error) {
		var touched []string
		for i := range notes {
			if _, ok := want[notes[i].ID]; ok {
				fn(&notes[i], now)
				touched = append(touched, notes[i].ID)
			}
		}
		if len(touched) == 0 {
			return nil, nil, notFound(ids...)
		}
		return notes, touched, nil
	}
}

func indexOf(notes []models.Note, id string) int {
	for i := range notes {
		if notes[i].ID == id {
			return i
		}
	}
	return -1
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func notFound(ids ...string) error {
	return fmt.Errorf("%w: note %s", apperr.ErrNotFound, strings.Join(ids, ","))
}
