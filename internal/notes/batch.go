package notes

import (
	"context"
	"time"

	"github.com/starford/notesync/internal/models"
)

// Batch variants touch every listed id in a single read-modify-write cycle.
// An empty id list returns false without side effects; a list where nothing
// matched fails with ErrNotFound.

// BatchUpdateNotes applies patch to every listed note.
func (r *Repository) BatchUpdateNotes(ctx context.Context, ids []string, patch models.NotePatch) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	return r.mutateNotes(ctx, mutation{
		op:    "batch_update",
		event: "updated",
		apply: eachMatching(ids, func(n *models.Note, now time.Time) {
			patch.Apply(n)
			n.UpdatedAt = now
		}),
	})
}

// BatchToggleFavorite sets IsFavorite to favorite on every listed note.
func (r *Repository) BatchToggleFavorite(ctx context.Context, ids []string, favorite bool) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	return r.mutateNotes(ctx, mutation{
		op:    "batch_favorite",
		event: "updated",
		apply: eachMatching(ids, func(n *models.Note, now time.Time) {
			n.IsFavorite = favorite
			n.UpdatedAt = now
		}),
	})
}

// BatchToggleArchive sets IsArchived to archived on every listed note.
func (r *Repository) BatchToggleArchive(ctx context.Context, ids []string, archived bool) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	return r.mutateNotes(ctx, mutation{
		op:    "batch_archive",
		event: "updated",
		apply: eachMatching(ids, func(n *models.Note, now time.Time) {
			n.IsArchived = archived
			n.UpdatedAt = now
		}),
	})
}

// BatchMoveToTrash is MoveToTrash over a slice.
func (r *Repository) BatchMoveToTrash(ctx context.Context, ids []string) (bool, error) {
	return r.MoveToTrash(ctx, ids...)
}

// BatchRestoreFromTrash clears the trash flag on every listed note.
func (r *Repository) BatchRestoreFromTrash(ctx context.Context, ids []string) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	return r.mutateNotes(ctx, mutation{
		op:    "restore",
		event: "updated",
		apply: eachMatching(ids, func(n *models.Note, now time.Time) {
			n.IsTrash = false
			n.UpdatedAt = now
		}),
	})
}

// BatchUpdateCategory assigns category to every listed note. A nil category
// clears it.
func (r *Repository) BatchUpdateCategory(ctx context.Context, ids []string, category *string) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	return r.mutateNotes(ctx, mutation{
		op:    "batch_category",
		event: "updated",
		apply: eachMatching(ids, func(n *models.Note, now time.Time) {
			n.Category = cloneString(category)
			n.UpdatedAt = now
		}),
	})
}
