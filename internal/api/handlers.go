package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/noteservice"
)

const maxBody = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// pathParam returns a URL parameter, decoding escaped characters so category
// names with spaces or slashes survive.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes with optional view, category, date range and pagination
//	@Tags			notes
//	@Produce		json
//	@Param			view		query		string	false	"Collection slice"	Enums(all, active, archived, trash, favorites, favorites-indexed)
//	@Param			category	query		string	false	"Filter by category (indexed)"
//	@Param			from		query		string	false	"Range start, RFC 3339 or YYYY-MM-DD"
//	@Param			to			query		string	false	"Range end, RFC 3339 or YYYY-MM-DD"
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Success		200			{object}	NoteListResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	from, err := parseTime(q.Get("from"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid 'from'"))
		return
	}
	to, err := parseTime(q.Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid 'to'"))
		return
	}

	items, total, err := h.svc.ListNotes(r.Context(), noteservice.ListQuery{
		View:     noteservice.View(q.Get("view")),
		Category: q.Get("category"),
		From:     from,
		To:       to,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	if items == nil {
		items = []models.Note{}
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: total})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note by id
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	NoteDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.GetNote(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	w.Header().Set("ETag", `"`+note.Checksum+`"`)
	writeJSON(w, http.StatusOK, note)
}

// ExportMarkdown handles GET /api/notes/{id}/markdown.
func (h *Handler) ExportMarkdown(w http.ResponseWriter, r *http.Request) {
	md, err := h.svc.ExportMarkdown(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeError(w, "export note", err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(md)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		note *NoteDetail
		err  error
	)
	if req.Markdown != "" {
		note, err = h.svc.CreateFromMarkdown(r.Context(), []byte(req.Markdown), req.Title)
	} else {
		if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Content) == "" {
			writeJSON(w, http.StatusBadRequest, errorBody("title or content is required"))
			return
		}
		note, err = h.svc.CreateNote(r.Context(), models.NoteDraft{
			Title:    req.Title,
			Content:  req.Content,
			Category: req.Category,
			Color:    req.Color,
			Tags:     req.Tags,
		})
	}
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PATCH /api/notes/{id}.
//
//	@Summary		Partially update a note with optimistic concurrency
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string				true	"Note id"
//	@Param			If-Match	header		string				false	"Checksum for optimistic concurrency"
//	@Param			body		body		UpdateNoteRequest	true	"Fields to change"
//	@Success		200			{object}	NoteDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [patch]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var patch UpdateNoteRequest
	if !decodeBody(w, r, &patch) {
		return
	}
	if patch.IsEmpty() {
		writeJSON(w, http.StatusBadRequest, errorBody("no fields to update"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	note, err := h.svc.UpdateNote(r.Context(), pathParam(r, "id"), patch, ifMatch)
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Permanently delete a note
//	@Tags			notes
//	@Param			id	path	string	true	"Note id"
//	@Success		204	"Note deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if _, err := h.svc.GetNote(r.Context(), id); err != nil {
		writeError(w, "delete note", err)
		return
	}
	if err := h.svc.DeleteNotes(r.Context(), id); err != nil {
		writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyAction handles POST /api/notes/{id}/{favorite|archive|trash|restore}.
// favorite and archive toggle the flag.
func (h *Handler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	action := noteservice.Action(chi.URLParam(r, "action"))
	note, err := h.svc.Apply(r.Context(), pathParam(r, "id"), action)
	if err != nil {
		writeError(w, string(action)+" note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// BatchNotes handles POST /api/notes/batch.
//
//	@Summary		Apply one action to many notes in a single write
//	@Tags			notes
//	@Accept			json
//	@Param			body	body	BatchRequest	true	"Action and ids"
//	@Success		204		"Applied"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/batch [post]
func (h *Handler) BatchNotes(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.Batch(r.Context(), req); err != nil {
		writeError(w, "batch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCategories handles GET /api/categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats := h.svc.Categories(r.Context())
	if cats == nil {
		cats = []string{}
	}
	writeJSON(w, http.StatusOK, CategoryListResponse{Categories: cats})
}

// AddCategory handles POST /api/categories.
//
//	@Summary		Add a category
//	@Tags			categories
//	@Accept			json
//	@Param			body	body	CategoryRequest	true	"Category"
//	@Success		201		"Created"
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/categories [post]
func (h *Handler) AddCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.AddCategory(r.Context(), req.Name); err != nil {
		writeError(w, "add category", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// RenameCategory handles PUT /api/categories/{name}. Notes in the category
// follow the new name.
func (h *Handler) RenameCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.RenameCategory(r.Context(), pathParam(r, "name"), req.Name); err != nil {
		writeError(w, "rename category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCategory handles DELETE /api/categories/{name}.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCategory(r.Context(), pathParam(r, "name")); err != nil {
		writeError(w, "delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAutoBackup handles GET /api/settings/auto-backup.
func (h *Handler) GetAutoBackup(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AutoBackupSetting{Enabled: h.svc.AutoBackup(r.Context())})
}

// SetAutoBackup handles PUT /api/settings/auto-backup.
func (h *Handler) SetAutoBackup(w http.ResponseWriter, r *http.Request) {
	var req AutoBackupSetting
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.SetAutoBackup(r.Context(), req.Enabled); err != nil {
		writeError(w, "set auto backup", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Backup handles POST /api/backup.
//
//	@Summary		Back up local notes to the remote store now
//	@Tags			backup
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BackupRequest	false	"Optional user id"
//	@Success		200		{object}	backup.Result
//	@Failure		401		{object}	backup.Result
//	@Failure		500		{object}	backup.Result
//	@Security		BearerAuth
//	@Router			/backup [post]
func (h *Handler) Backup(w http.ResponseWriter, r *http.Request) {
	var req BackupRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	writeResult(w, h.svc.Backup(r.Context(), req.UserID))
}

// Restore handles POST /api/restore.
//
//	@Summary		Restore from the latest snapshot or the one recorded at date
//	@Tags			backup
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RestoreRequest	false	"Optional date and user id"
//	@Success		200		{object}	backup.Result
//	@Failure		404		{object}	backup.Result
//	@Failure		409		{object}	backup.Result
//	@Failure		503		{object}	backup.Result
//	@Security		BearerAuth
//	@Router			/restore [post]
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	var req RestoreRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	writeResult(w, h.svc.Restore(r.Context(), req.UserID, req.Date))
}

// BackupStatus handles GET /api/backup/status.
func (h *Handler) BackupStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.BackupStatus(r.Context()))
}
