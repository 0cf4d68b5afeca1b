// Package noteservice is the application layer shared by the HTTP API, the
// MCP server and the CLI. It wraps the repository and the backup engine with
// error values suited to request handlers.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/backup"
	"github.com/starford/notesync/internal/checksum"
	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/notes"
	"github.com/starford/notesync/internal/parser"
	"github.com/starford/notesync/internal/tracker"
)

// NoteDetail is a note plus its content checksum, used as an ETag.
type NoteDetail struct {
	models.Note
	Checksum string `json:"checksum"`
}

// View selects which slice of the collection ListNotes returns.
type View string

const (
	ViewAll              View = "all"
	ViewActive           View = "active"
	ViewArchived         View = "archived"
	ViewTrash            View = "trash"
	ViewFavorites        View = "favorites"
	ViewFavoritesIndexed View = "favorites-indexed"
)

// ListQuery filters a note listing. Category and the date range use the
// persisted indices; View scans the collection.
type ListQuery struct {
	View     View
	Category string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// Service coordinates the repository, tracker and backup engine.
type Service struct {
	repo    *notes.Repository
	tracker *tracker.Tracker
	engine  *backup.Engine
	logger  *slog.Logger
}

// NewService creates a new note service.
func NewService(repo *notes.Repository, tr *tracker.Tracker, engine *backup.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tracker: tr, engine: engine, logger: logger}
}

// Checksum is the ETag of a note.
func Checksum(n models.Note) string {
	cs, err := checksum.SumJSON(n)
	if err != nil {
		return ""
	}
	return cs
}

func detail(n models.Note) *NoteDetail {
	return &NoteDetail{Note: n, Checksum: Checksum(n)}
}

// GetNote returns one note.
func (s *Service) GetNote(ctx context.Context, id string) (*NoteDetail, error) {
	n, err := s.repo.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	return detail(n), nil
}

// ListNotes returns the selected notes and the total before paging.
func (s *Service) ListNotes(ctx context.Context, q ListQuery) ([]models.Note, int, error) {
	var out []models.Note
	switch {
	case q.Category != "":
		out = s.repo.GetNotesByCategory(ctx, q.Category)
	case !q.From.IsZero() || !q.To.IsZero():
		to := q.To
		if to.IsZero() {
			to = time.Now()
		}
		out = s.repo.GetNotesByDateRange(ctx, q.From, to)
	default:
		switch q.View {
		case "", ViewAll:
			out = s.repo.GetAllNotes(ctx)
		case ViewActive:
			out = s.repo.GetActiveNotes(ctx)
		case ViewArchived:
			out = s.repo.GetArchivedNotes(ctx)
		case ViewTrash:
			out = s.repo.GetTrashNotes(ctx)
		case ViewFavorites:
			out = s.repo.GetFavoriteNotes(ctx)
		case ViewFavoritesIndexed:
			out = s.repo.GetFavoriteNotesIndexed(ctx)
		default:
			return nil, 0, fmt.Errorf("%w: unknown view %q", apperr.ErrInvalid, q.View)
		}
	}

	total := len(out)
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []models.Note{}, total, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, total, nil
}

// CreateNote saves draft. A category the draft names that does not exist
// yet is added first.
func (s *Service) CreateNote(ctx context.Context, draft models.NoteDraft) (*NoteDetail, error) {
	if draft.Category != nil {
		if err := s.ensureCategory(ctx, *draft.Category); err != nil {
			return nil, err
		}
	}
	n, ok := s.repo.SaveNote(ctx, draft)
	if !ok {
		return nil, apperr.ErrStorage
	}
	return detail(n), nil
}

// CreateFromMarkdown parses a Markdown document into a note.
func (s *Service) CreateFromMarkdown(ctx context.Context, data []byte, fallbackTitle string) (*NoteDetail, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	return s.CreateNote(ctx, res.Draft(fallbackTitle))
}

// ExportMarkdown renders a note as Markdown with frontmatter.
func (s *Service) ExportMarkdown(ctx context.Context, id string) ([]byte, error) {
	n, err := s.repo.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	return parser.Render(n)
}

// ImportDir creates a note from every .md file under dir, in path order.
// Files that fail are logged and skipped.
func (s *Service) ImportDir(ctx context.Context, dir string) (int, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("import: walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	imported := 0
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			s.logger.Warn("import: read failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		title := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		if _, err := s.CreateFromMarkdown(ctx, data, title); err != nil {
			s.logger.Warn("import: create failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		imported++
	}
	s.logger.Info("import: done", slog.String("dir", dir), slog.Int("files", len(paths)), slog.Int("imported", imported))
	return imported, nil
}

// UpdateNote applies patch. A non-empty ifMatch must equal the current checksum.
func (s *Service) UpdateNote(ctx context.Context, id string, patch models.NotePatch, ifMatch string) (*NoteDetail, error) {
	if ifMatch != "" {
		cur, err := s.repo.GetNote(ctx, id)
		if err != nil {
			return nil, err
		}
		if Checksum(cur) != ifMatch {
			return nil, apperr.ErrConflict
		}
	}
	if patch.Category != nil {
		if err := s.ensureCategory(ctx, *patch.Category); err != nil {
			return nil, err
		}
	}
	if err := s.check(s.repo.UpdateNote(ctx, id, patch)); err != nil {
		return nil, err
	}
	return s.GetNote(ctx, id)
}

// DeleteNotes hard-deletes ids.
func (s *Service) DeleteNotes(ctx context.Context, ids ...string) error {
	return s.check(s.repo.DeleteNotes(ctx, ids...))
}

// Action is a state transition applied to one or more notes.
type Action string

const (
	ActionDelete   Action = "delete"
	ActionTrash    Action = "trash"
	ActionRestore  Action = "restore"
	ActionFavorite Action = "favorite"
	ActionArchive  Action = "archive"
	ActionCategory Action = "category"
	ActionUpdate   Action = "update"
)

// BatchRequest describes a batch action. Value is used by favorite and
// archive, Category by category (nil clears), Patch by update.
type BatchRequest struct {
	Action   Action            `json:"action"`
	IDs      []string          `json:"ids"`
	Value    bool              `json:"value,omitempty"`
	Category *string           `json:"category,omitempty"`
	Patch    *models.NotePatch `json:"patch,omitempty"`
}

// Batch runs one batch action in a single write.
func (s *Service) Batch(ctx context.Context, req BatchRequest) error {
	if len(req.IDs) == 0 {
		return fmt.Errorf("%w: ids are required", apperr.ErrInvalid)
	}
	switch req.Action {
	case ActionDelete:
		return s.check(s.repo.DeleteNotes(ctx, req.IDs...))
	case ActionTrash:
		return s.check(s.repo.BatchMoveToTrash(ctx, req.IDs))
	case ActionRestore:
		return s.check(s.repo.BatchRestoreFromTrash(ctx, req.IDs))
	case ActionFavorite:
		return s.check(s.repo.BatchToggleFavorite(ctx, req.IDs, req.Value))
	case ActionArchive:
		return s.check(s.repo.BatchToggleArchive(ctx, req.IDs, req.Value))
	case ActionCategory:
		if req.Category != nil {
			if err := s.ensureCategory(ctx, *req.Category); err != nil {
				return err
			}
		}
		return s.check(s.repo.BatchUpdateCategory(ctx, req.IDs, req.Category))
	case ActionUpdate:
		if req.Patch == nil || req.Patch.IsEmpty() {
			return fmt.Errorf("%w: patch is required", apperr.ErrInvalid)
		}
		return s.check(s.repo.BatchUpdateNotes(ctx, req.IDs, *req.Patch))
	default:
		return fmt.Errorf("%w: unknown action %q", apperr.ErrInvalid, req.Action)
	}
}

// Apply runs a single-note transition.
func (s *Service) Apply(ctx context.Context, id string, action Action) (*NoteDetail, error) {
	var err error
	switch action {
	case ActionFavorite:
		err = s.check(s.repo.ToggleFavorite(ctx, id))
	case ActionArchive:
		err = s.check(s.repo.ToggleArchive(ctx, id))
	case ActionTrash:
		err = s.check(s.repo.MoveToTrash(ctx, id))
	case ActionRestore:
		err = s.check(s.repo.RestoreFromTrash(ctx, id))
	default:
		err = fmt.Errorf("%w: unknown action %q", apperr.ErrInvalid, action)
	}
	if err != nil {
		return nil, err
	}
	return s.GetNote(ctx, id)
}

// Categories returns the category list.
func (s *Service) Categories(ctx context.Context) []string {
	return s.repo.GetCategories(ctx)
}

// AddCategory adds name.
func (s *Service) AddCategory(ctx context.Context, name string) error {
	return s.check(s.repo.AddCategory(ctx, name))
}

// RenameCategory renames oldName and cascades to notes.
func (s *Service) RenameCategory(ctx context.Context, oldName, newName string) error {
	return s.check(s.repo.UpdateCategory(ctx, oldName, newName))
}

// DeleteCategory removes name and clears it from notes.
func (s *Service) DeleteCategory(ctx context.Context, name string) error {
	return s.check(s.repo.DeleteCategory(ctx, name))
}

func (s *Service) ensureCategory(ctx context.Context, name string) error {
	for _, c := range s.repo.GetCategories(ctx) {
		if c == name {
			return nil
		}
	}
	_, err := s.repo.AddCategory(ctx, name)
	if errors.Is(err, apperr.ErrCategoryAlreadyExists) {
		return nil
	}
	return err
}

// AutoBackup reports the auto-backup switch.
func (s *Service) AutoBackup(ctx context.Context) bool {
	return s.tracker.AutoBackupEnabled(ctx)
}

// SetAutoBackup flips the auto-backup switch.
func (s *Service) SetAutoBackup(ctx context.Context, on bool) error {
	if err := s.tracker.SetAutoBackup(ctx, on); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrStorage, err)
	}
	return nil
}

// Backup runs a user-initiated backup.
func (s *Service) Backup(ctx context.Context, userID string) backup.Result {
	return s.engine.Backup(ctx, userID)
}

// Restore restores the latest snapshot, or the one recorded at date when set.
func (s *Service) Restore(ctx context.Context, userID, date string) backup.Result {
	if date != "" {
		return s.engine.RestoreFromDate(ctx, userID, date)
	}
	return s.engine.Restore(ctx, userID)
}

// BackupStatus reports backup bookkeeping.
func (s *Service) BackupStatus(ctx context.Context) backup.Status {
	return s.engine.Status(ctx)
}

// check turns the repository's (ok, err) pair into one error.
func (s *Service) check(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrStorage
	}
	return nil
}
