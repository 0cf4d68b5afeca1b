package notes

import (
	"context"
	"time"

	"github.com/starford/notesync/internal/models"
)

// GetActiveNotes returns notes that are neither archived nor trashed.
func (r *Repository) GetActiveNotes(ctx context.Context) []models.Note {
	return r.filter(ctx, func(n *models.Note) bool { return !n.IsArchived && !n.IsTrash })
}

// GetArchivedNotes returns archived notes that are not in the trash.
func (r *Repository) GetArchivedNotes(ctx context.Context) []models.Note {
	return r.filter(ctx, func(n *models.Note) bool { return n.IsArchived && !n.IsTrash })
}

// GetTrashNotes returns trashed notes.
func (r *Repository) GetTrashNotes(ctx context.Context) []models.Note {
	return r.filter(ctx, func(n *models.Note) bool { return n.IsTrash })
}

// GetFavoriteNotes returns favorites outside the trash by scanning the collection.
func (r *Repository) GetFavoriteNotes(ctx context.Context) []models.Note {
	return r.filter(ctx, func(n *models.Note) bool { return n.IsFavorite && !n.IsTrash })
}

func (r *Repository) filter(ctx context.Context, keep func(*models.Note) bool) []models.Note {
	out := []models.Note{}
	for _, n := range r.GetAllNotes(ctx) {
		if keep(&n) {
			out = append(out, n)
		}
	}
	return out
}

// GetNotesByCategory resolves the category index. An absent or stale index
// only yields fewer results.
func (r *Repository) GetNotesByCategory(ctx context.Context, category string) []models.Note {
	return r.byIDs(ctx, r.index.CategoryIDs(ctx, category))
}

// GetFavoriteNotesIndexed resolves the favorite index. The index lists every
// favorite; trashed ones are dropped here to match GetFavoriteNotes.
func (r *Repository) GetFavoriteNotesIndexed(ctx context.Context) []models.Note {
	out := []models.Note{}
	for _, n := range r.byIDs(ctx, r.index.FavoriteIDs(ctx)) {
		if !n.IsTrash {
			out = append(out, n)
		}
	}
	return out
}

// GetNotesByDateRange walks the month buckets between from and to and keeps
// the notes whose effective date falls inside [from, to].
func (r *Repository) GetNotesByDateRange(ctx context.Context, from, to time.Time) []models.Note {
	from, to = from.UTC(), to.UTC()
	if to.Before(from) {
		return []models.Note{}
	}
	var ids []string
	month := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !month.After(to) {
		ids = append(ids, r.index.DateIDs(ctx, models.DateKey(month))...)
		month = month.AddDate(0, 1, 0)
	}

	out := []models.Note{}
	for _, n := range r.byIDs(ctx, ids) {
		d := n.EffectiveDate()
		if !d.Before(from) && !d.After(to) {
			out = append(out, n)
		}
	}
	return out
}

// byIDs fetches notes in ids order, skipping ids the collection no longer has.
func (r *Repository) byIDs(ctx context.Context, ids []string) []models.Note {
	out := []models.Note{}
	if len(ids) == 0 {
		return out
	}
	byID := make(map[string]models.Note)
	for _, n := range r.GetAllNotes(ctx) {
		byID[n.ID] = n
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if n, ok := byID[id]; ok {
			out = append(out, n)
		}
	}
	return out
}
