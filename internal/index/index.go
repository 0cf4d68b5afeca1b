// Package index derives the category, favorite and month lookups from the note
// collection and persists each under its own key.
package index

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/starford/notesync/internal/checksum"
	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/storage"
)

// Reader is the read side the repository consults for indexed lookups.
type Reader interface {
	CategoryIDs(ctx context.Context, category string) []string
	FavoriteIDs(ctx context.Context) []string
	DateIDs(ctx context.Context, key string) []string
}

// Builder rebuilds and reads the persisted indices.
type Builder struct {
	store  storage.Provider
	logger *slog.Logger

	mu sync.Mutex
	// built is the digest of the notes blob the persisted indices reflect.
	built string
}

// NewBuilder creates a Builder over store.
func NewBuilder(store storage.Provider, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{store: store, logger: logger}
}

// Build reads the full note collection once, computes every index and persists
// them. It returns false on any storage failure.
func (b *Builder) Build(ctx context.Context) bool {
	raw, ok, err := b.store.Get(ctx, storage.KeyNotes)
	if err != nil {
		b.logger.Warn("index: read notes failed", slog.String("error", err.Error()))
		return false
	}
	var notes []models.Note
	if ok {
		if err := json.Unmarshal([]byte(raw), &notes); err != nil {
			b.logger.Warn("index: decode notes failed", slog.String("error", err.Error()))
			return false
		}
	}

	idx := Compute(notes)
	writes := []struct {
		key string
		v   any
	}{
		{storage.KeyIndexCategories, idx.Categories},
		{storage.KeyIndexFavorites, idx.Favorites},
		{storage.KeyIndexDates, idx.Dates},
	}
	for _, w := range writes {
		if err := storage.SetJSON(ctx, b.store, w.key, w.v); err != nil {
			b.logger.Warn("index: write failed", slog.String("key", w.key), slog.String("error", err.Error()))
			return false
		}
	}
	b.mu.Lock()
	b.built = checksum.Sum([]byte(raw))
	b.mu.Unlock()

	b.logger.Debug("index: rebuilt",
		slog.Int("notes", len(notes)),
		slog.Int("categories", len(idx.Categories)),
		slog.Int("favorites", len(idx.Favorites)),
		slog.Int("months", len(idx.Dates)))
	return true
}

// Stale reports whether the stored notes blob differs from the one the
// indices were last built from. Read failures count as stale.
func (b *Builder) Stale(ctx context.Context) bool {
	raw, _, err := b.store.Get(ctx, storage.KeyNotes)
	if err != nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.built == "" || b.built != checksum.Sum([]byte(raw))
}

// Compute builds all three indices in one pass. Id order follows collection order.
func Compute(notes []models.Note) models.Indices {
	idx := models.Indices{
		Categories: make(map[string][]string),
		Favorites:  []string{},
		Dates:      make(map[string][]string),
	}
	for i := range notes {
		n := &notes[i]
		if n.Category != nil {
			idx.Categories[*n.Category] = append(idx.Categories[*n.Category], n.ID)
		}
		if n.IsFavorite {
			idx.Favorites = append(idx.Favorites, n.ID)
		}
		if d := n.EffectiveDate(); !d.IsZero() {
			key := models.DateKey(d)
			idx.Dates[key] = append(idx.Dates[key], n.ID)
		}
	}
	return idx
}

// Load returns the persisted indices. Missing or unreadable entries come back empty.
func (b *Builder) Load(ctx context.Context) models.Indices {
	idx := models.Indices{
		Categories: make(map[string][]string),
		Favorites:  []string{},
		Dates:      make(map[string][]string),
	}
	b.readLenient(ctx, storage.KeyIndexCategories, &idx.Categories)
	b.readLenient(ctx, storage.KeyIndexFavorites, &idx.Favorites)
	b.readLenient(ctx, storage.KeyIndexDates, &idx.Dates)
	return idx
}

// CategoryIDs returns the indexed ids for category.
func (b *Builder) CategoryIDs(ctx context.Context, category string) []string {
	var m map[string][]string
	b.readLenient(ctx, storage.KeyIndexCategories, &m)
	return m[category]
}

// FavoriteIDs returns the indexed favorite ids.
func (b *Builder) FavoriteIDs(ctx context.Context) []string {
	var ids []string
	b.readLenient(ctx, storage.KeyIndexFavorites, &ids)
	return ids
}

// DateIDs returns the indexed ids for a "YYYY-M" month key.
func (b *Builder) DateIDs(ctx context.Context, key string) []string {
	var m map[string][]string
	b.readLenient(ctx, storage.KeyIndexDates, &m)
	return m[key]
}

func (b *Builder) readLenient(ctx context.Context, key string, v any) {
	if _, err := storage.GetJSON(ctx, b.store, key, v); err != nil {
		b.logger.Debug("index: unreadable entry", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// Verify *Builder satisfies Reader at compile time.
var _ Reader = (*Builder)(nil)
