// Package models defines the domain types for notesync.
package models

import (
	"fmt"
	"time"
)

// Note is one user note as stored in the @notes blob.
type Note struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Category   *string    `json:"category"`
	Color      string     `json:"color,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	IsFavorite bool       `json:"isFavorite"`
	IsArchived bool       `json:"isArchived"`
	IsTrash    bool       `json:"isTrash"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	TrashedAt  *time.Time `json:"trashedAt,omitempty"`
}

// CategoryName returns the referenced category or "" when the note has none.
func (n *Note) CategoryName() string {
	if n.Category == nil {
		return ""
	}
	return *n.Category
}

// HasCategory reports whether the note references exactly name.
func (n *Note) HasCategory(name string) bool {
	return n.Category != nil && *n.Category == name
}

// EffectiveDate is UpdatedAt, falling back to CreatedAt for notes that were never touched.
func (n *Note) EffectiveDate() time.Time {
	if n.UpdatedAt.IsZero() {
		return n.CreatedAt
	}
	return n.UpdatedAt
}

// NoteDraft carries the caller-supplied fields of a new note.
type NoteDraft struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category *string  `json:"category,omitempty"`
	Color    string   `json:"color,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// NotePatch is a partial update. Nil fields are left untouched; ID and CreatedAt
// are never patchable.
type NotePatch struct {
	Title         *string    `json:"title,omitempty"`
	Content       *string    `json:"content,omitempty"`
	Category      *string    `json:"category,omitempty"`
	ClearCategory bool       `json:"clearCategory,omitempty"`
	Color         *string    `json:"color,omitempty"`
	Tags          *[]string  `json:"tags,omitempty"`
	IsFavorite    *bool      `json:"isFavorite,omitempty"`
	IsArchived    *bool      `json:"isArchived,omitempty"`
	IsTrash       *bool      `json:"isTrash,omitempty"`
	TrashedAt     *time.Time `json:"trashedAt,omitempty"`
}

// Apply merges p onto n field by field.
func (p NotePatch) Apply(n *Note) {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	switch {
	case p.ClearCategory:
		n.Category = nil
	case p.Category != nil:
		c := *p.Category
		n.Category = &c
	}
	if p.Color != nil {
		n.Color = *p.Color
	}
	if p.Tags != nil {
		n.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.IsFavorite != nil {
		n.IsFavorite = *p.IsFavorite
	}
	if p.IsArchived != nil {
		n.IsArchived = *p.IsArchived
	}
	if p.IsTrash != nil {
		n.IsTrash = *p.IsTrash
	}
	if p.TrashedAt != nil {
		t := *p.TrashedAt
		n.TrashedAt = &t
	}
}

// IsEmpty reports whether the patch changes nothing.
func (p NotePatch) IsEmpty() bool {
	return p == (NotePatch{})
}

// Indices are the derived lookup structures rebuilt from the note collection.
type Indices struct {
	Categories map[string][]string `json:"categories"`
	Favorites  []string            `json:"favorites"`
	Dates      map[string][]string `json:"dates"`
}

// DateKey returns the "YYYY-M" month bucket for t, computed in UTC.
func DateKey(t time.Time) string {
	u := t.UTC()
	return fmt.Sprintf("%d-%d", u.Year(), int(u.Month()))
}

// StringPtr is a convenience for building drafts and patches.
func StringPtr(s string) *string { return &s }

// BoolPtr is a convenience for building patches.
func BoolPtr(b bool) *bool { return &b }
