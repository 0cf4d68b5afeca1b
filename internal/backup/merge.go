package backup

import "github.com/starford/notesync/internal/models"

// MergeNotes unions two collections by id. A note from incoming replaces the
// base note with the same id only when its UpdatedAt is strictly later; on a
// tie the base copy wins. Output keeps base order followed by notes only
// incoming had, in incoming order.
func MergeNotes(base, incoming []models.Note) []models.Note {
	out := make([]models.Note, 0, len(base)+len(incoming))
	pos := make(map[string]int, len(base)+len(incoming))

	for _, n := range base {
		if i, dup := pos[n.ID]; dup {
			if n.UpdatedAt.After(out[i].UpdatedAt) {
				out[i] = n
			}
			continue
		}
		pos[n.ID] = len(out)
		out = append(out, n)
	}
	for _, n := range incoming {
		i, ok := pos[n.ID]
		if !ok {
			pos[n.ID] = len(out)
			out = append(out, n)
			continue
		}
		if n.UpdatedAt.After(out[i].UpdatedAt) {
			out[i] = n
		}
	}
	return out
}

// MergeCategories is the set union of a and b, first occurrence order.
func MergeCategories(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, c := range list {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
