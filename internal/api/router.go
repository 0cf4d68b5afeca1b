package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/notesync/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Post("/notes/batch", h.BatchNotes)
	r.Get("/notes/{id}", h.GetNote)
	r.Get("/notes/{id}/markdown", h.ExportMarkdown)
	r.Patch("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)
	r.Post("/notes/{id}/{action:favorite|archive|trash|restore}", h.ApplyAction)

	// Categories.
	r.Get("/categories", h.ListCategories)
	r.Post("/categories", h.AddCategory)
	r.Put("/categories/{name}", h.RenameCategory)
	r.Delete("/categories/{name}", h.DeleteCategory)

	// Settings.
	r.Get("/settings/auto-backup", h.GetAutoBackup)
	r.Put("/settings/auto-backup", h.SetAutoBackup)

	// Backup.
	r.Post("/backup", h.Backup)
	r.Get("/backup/status", h.BackupStatus)
	r.Post("/restore", h.Restore)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
