package backup

import (
	"slices"
	"sort"

	"github.com/starford/notesync/internal/checksum"
	"github.com/starford/notesync/internal/models"
)

// reducedNote is the part of a note that counts as a change worth uploading.
type reducedNote struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Category   *string `json:"category"`
	IsFavorite bool    `json:"isFavorite"`
	IsArchived bool    `json:"isArchived"`
	IsTrash    bool    `json:"isTrash"`
}

// backupState is what was last uploaded, persisted under KeyBackupState.
type backupState struct {
	Categories []string      `json:"categories"`
	Notes      []reducedNote `json:"notes"`
}

// captureState reduces notes and categories to their comparable form:
// categories sorted and deduplicated, notes reduced and sorted by id.
func captureState(notes []models.Note, categories []string) backupState {
	cats := slices.Clone(categories)
	slices.Sort(cats)
	cats = slices.Compact(cats)
	if cats == nil {
		cats = []string{}
	}

	reduced := make([]reducedNote, 0, len(notes))
	for _, n := range notes {
		reduced = append(reduced, reducedNote{
			ID:         n.ID,
			Title:      n.Title,
			Content:    n.Content,
			Category:   n.Category,
			IsFavorite: n.IsFavorite,
			IsArchived: n.IsArchived,
			IsTrash:    n.IsTrash,
		})
	}
	sort.SliceStable(reduced, func(i, j int) bool { return reduced[i].ID < reduced[j].ID })
	return backupState{Categories: cats, Notes: reduced}
}

// stateChanged compares categories first, then note count, then a SHA-256
// digest of the reduced notes. Any failure counts as a change.
func stateChanged(prev, cur backupState) bool {
	if !slices.Equal(prev.Categories, cur.Categories) {
		return true
	}
	if len(prev.Notes) != len(cur.Notes) {
		return true
	}
	a, err := checksum.SumJSON(prev.Notes)
	if err != nil {
		return true
	}
	b, err := checksum.SumJSON(cur.Notes)
	if err != nil {
		return true
	}
	return a != b
}
