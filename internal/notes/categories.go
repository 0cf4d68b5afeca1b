package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/sse"
	"github.com/starford/notesync/internal/storage"
)

// MaxCategoryLen is the longest accepted category name, in characters.
const MaxCategoryLen = 30

// GetCategories returns the stored category list. Missing or malformed data
// yields an empty list.
func (r *Repository) GetCategories(ctx context.Context) []string {
	var cats []string
	if _, err := storage.GetJSON(ctx, r.store, storage.KeyCategories, &cats); err != nil {
		r.logger.Warn("categories: load failed", slog.String("error", err.Error()))
		return []string{}
	}
	if cats == nil {
		return []string{}
	}
	return cats
}

// loadCategoriesForWrite mirrors loadForWrite: malformed data reads as empty,
// a backend failure aborts the mutation.
func (r *Repository) loadCategoriesForWrite(ctx context.Context) ([]string, error) {
	raw, ok, err := r.store.Get(ctx, storage.KeyCategories)
	if err != nil {
		return nil, err
	}
	var cats []string
	if ok {
		if err := json.Unmarshal([]byte(raw), &cats); err != nil {
			r.logger.Warn("categories: discarding malformed list", slog.String("error", err.Error()))
			cats = nil
		}
	}
	if cats == nil {
		cats = []string{}
	}
	return cats, nil
}

// AddCategory appends name. Uniqueness is case-sensitive here.
func (r *Repository) AddCategory(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, apperr.ErrCategoryEmptyName
	}
	if utf8.RuneCountInString(name) > MaxCategoryLen {
		return false, apperr.ErrCategoryTooLong
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cats, err := r.loadCategoriesForWrite(ctx)
	if err != nil {
		r.logger.Error("categories: read failed", slog.String("op", "add"), slog.String("error", err.Error()))
		return false, nil
	}
	for _, c := range cats {
		if c == name {
			return false, fmt.Errorf("%w: %s", apperr.ErrCategoryAlreadyExists, name)
		}
	}
	cats = append(cats, name)
	if err := storage.SetJSON(ctx, r.store, storage.KeyCategories, cats); err != nil {
		r.logger.Error("categories: write failed", slog.String("op", "add"), slog.String("error", err.Error()))
		return false, nil
	}
	now := r.now().UTC()
	r.afterWrite(ctx, "add_category", now, false)
	r.events.Publish(sse.Event{Type: sse.TopicCategoryAdded, Data: map[string]string{"name": name}})
	return true, nil
}

// UpdateCategory renames oldName to newName and rewrites every note that
// referenced oldName. The collision check ignores case, but renaming a
// category to a case variant of itself is allowed.
func (r *Repository) UpdateCategory(ctx context.Context, oldName, newName string) (bool, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return false, apperr.ErrCategoryEmptyName
	}
	if utf8.RuneCountInString(newName) > MaxCategoryLen {
		return false, apperr.ErrCategoryTooLong
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cats, err := r.loadCategoriesForWrite(ctx)
	if err != nil {
		r.logger.Error("categories: read failed", slog.String("op", "update"), slog.String("error", err.Error()))
		return false, nil
	}
	pos := -1
	for i, c := range cats {
		if c == oldName {
			pos = i
			continue
		}
		if strings.EqualFold(c, newName) {
			return false, fmt.Errorf("%w: %s", apperr.ErrCategoryAlreadyExists, newName)
		}
	}
	if pos < 0 {
		return false, fmt.Errorf("%w: category %s", apperr.ErrNotFound, oldName)
	}
	cats[pos] = newName

	notes, err := r.loadForWrite(ctx)
	if err != nil {
		r.logger.Error("categories: read notes failed", slog.String("error", err.Error()))
		return false, nil
	}
	now := r.now().UTC()
	renamed := relabel(notes, oldName, &newName, now)

	if err := storage.SetJSON(ctx, r.store, storage.KeyCategories, cats); err != nil {
		r.logger.Error("categories: write failed", slog.String("op", "update"), slog.String("error", err.Error()))
		return false, nil
	}
	if renamed > 0 {
		if err := storage.SetJSON(ctx, r.store, storage.KeyNotes, notes); err != nil {
			r.logger.Error("categories: cascade write failed", slog.String("op", "update"), slog.String("error", err.Error()))
			return false, nil
		}
	}
	r.afterWrite(ctx, "update_category", now, false)
	r.events.Publish(sse.Event{Type: sse.TopicCategoryUpdated, Data: map[string]any{
		"old": oldName, "name": newName, "notes": renamed,
	}})
	return true, nil
}

// DeleteCategory removes name and clears it from every note. Deleting an
// absent or unreferenced category succeeds.
func (r *Repository) DeleteCategory(ctx context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cats, err := r.loadCategoriesForWrite(ctx)
	if err != nil {
		r.logger.Error("categories: read failed", slog.String("op", "delete"), slog.String("error", err.Error()))
		return false, nil
	}
	kept := make([]string, 0, len(cats))
	for _, c := range cats {
		if c != name {
			kept = append(kept, c)
		}
	}

	notes, err := r.loadForWrite(ctx)
	if err != nil {
		r.logger.Error("categories: read notes failed", slog.String("error", err.Error()))
		return false, nil
	}
	now := r.now().UTC()
	cleared := relabel(notes, name, nil, now)

	if err := storage.SetJSON(ctx, r.store, storage.KeyCategories, kept); err != nil {
		r.logger.Error("categories: write failed", slog.String("op", "delete"), slog.String("error", err.Error()))
		return false, nil
	}
	if cleared > 0 {
		if err := storage.SetJSON(ctx, r.store, storage.KeyNotes, notes); err != nil {
			r.logger.Error("categories: cascade write failed", slog.String("op", "delete"), slog.String("error", err.Error()))
			return false, nil
		}
	}
	r.afterWrite(ctx, "delete_category", now, false)
	r.events.Publish(sse.Event{Type: sse.TopicCategoryDeleted, Data: map[string]any{
		"name": name, "notes": cleared,
	}})
	return true, nil
}

// relabel points every note in category from at to, returning how many changed.
func relabel(notes []models.Note, from string, to *string, now time.Time) int {
	n := 0
	for i := range notes {
		if !notes[i].HasCategory(from) {
			continue
		}
		notes[i].Category = cloneString(to)
		notes[i].UpdatedAt = now
		n++
	}
	return n
}
