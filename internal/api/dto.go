package api

import (
	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/noteservice"
)

// CreateNoteRequest is the request body for creating a note. When Markdown is
// set it is parsed (frontmatter included) and the other fields are ignored.
type CreateNoteRequest struct {
	Title    string   `json:"title" example:"Groceries"`
	Content  string   `json:"content" example:"milk, eggs"`
	Category *string  `json:"category,omitempty" example:"Personal"`
	Color    string   `json:"color,omitempty" example:"#ffcc00"`
	Tags     []string `json:"tags,omitempty"`
	Markdown string   `json:"markdown,omitempty" example:"---\ntitle: Hello\n---\nWorld"`
}

// UpdateNoteRequest is the request body for a partial note update.
type UpdateNoteRequest = models.NotePatch

// BatchRequest is the request body for POST /notes/batch.
type BatchRequest = noteservice.BatchRequest

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []models.Note `json:"notes" validate:"required"`
	Total int           `json:"total" example:"42" validate:"required"`
}

// CategoryRequest carries a category name.
type CategoryRequest struct {
	Name string `json:"name" example:"Work" validate:"required"`
}

// CategoryListResponse wraps the category list.
type CategoryListResponse struct {
	Categories []string `json:"categories" validate:"required"`
}

// AutoBackupSetting is the body of the auto-backup settings endpoints.
type AutoBackupSetting struct {
	Enabled bool `json:"enabled"`
}

// RestoreRequest selects a snapshot. An empty Date restores the latest.
type RestoreRequest struct {
	UserID string `json:"userId,omitempty"`
	Date   string `json:"date,omitempty" example:"2024-06-01T12:00:00.000Z"`
}

// BackupRequest optionally names the user to back up as.
type BackupRequest struct {
	UserID string `json:"userId,omitempty"`
}
