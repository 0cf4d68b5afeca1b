// Package backup replicates the local note store into the remote backups
// table and restores from it. Both directions merge by note id with the most
// recent UpdatedAt winning.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/index"
	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/remote"
	"github.com/starford/notesync/internal/sse"
	"github.com/starford/notesync/internal/storage"
	"github.com/starford/notesync/internal/tracker"
)

// DateLayout is how backup_date is recorded; restore-by-date matches it exactly.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// DefaultRetention is how many snapshots per user survive pruning.
const DefaultRetention = 5

// Skip reasons.
const (
	SkippedOffline   = "offline"
	SkippedUnchanged = "unchanged"
)

// Cipher seals the remote payloads.
type Cipher interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
}

// Result is the outcome of a backup or restore. Failures are reported here
// rather than returned.
type Result struct {
	Success    bool   `json:"success"`
	Skipped    string `json:"skipped,omitempty"`
	BackupDate string `json:"backupDate,omitempty"`
	Error      string `json:"error,omitempty"`
	Err        error  `json:"-"`
}

func failed(err error) Result {
	return Result{Error: err.Error(), Err: err}
}

// Config wires an Engine. Store, Remote, Cipher, Index and Tracker are required.
type Config struct {
	Store        storage.Provider
	Remote       remote.Store
	Cipher       Cipher
	Index        *index.Builder
	Tracker      *tracker.Tracker
	Events       sse.Publisher
	Session      Session
	Connectivity Connectivity
	// Lock is shared with the note repository so restore does not interleave
	// with a local edit.
	Lock       sync.Locker
	Logger     *slog.Logger
	AppVersion string
	Retention  int
	// UserID is used by background runs when set.
	UserID string
	Now    func() time.Time
}

// Engine runs backups and restores.
type Engine struct {
	cfg   Config
	runMu sync.Mutex

	bgMu   sync.Mutex
	bg     sync.WaitGroup
	closed bool
}

// NewEngine fills defaults for the optional parts of cfg.
func NewEngine(cfg Config) *Engine {
	if cfg.Events == nil {
		cfg.Events = sse.Nop{}
	}
	if cfg.Session == nil {
		cfg.Session = StaticSession{UserID: cfg.UserID}
	}
	if cfg.Connectivity == nil {
		cfg.Connectivity = AlwaysOnline{}
	}
	if cfg.Lock == nil {
		cfg.Lock = &sync.Mutex{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{cfg: cfg}
}

// Trigger starts a backup in the background. Its outcome is only logged.
// After Close it does nothing.
func (e *Engine) Trigger() {
	e.bgMu.Lock()
	if e.closed {
		e.bgMu.Unlock()
		e.cfg.Logger.Debug("backup: trigger after close ignored")
		return
	}
	e.bg.Add(1)
	e.bgMu.Unlock()

	go func() {
		defer e.bg.Done()
		res := e.Backup(context.Background(), e.cfg.UserID)
		switch {
		case res.Err != nil:
			e.cfg.Logger.Warn("backup: background run failed", slog.String("error", res.Error))
		case res.Skipped != "":
			e.cfg.Logger.Debug("backup: background run skipped", slog.String("reason", res.Skipped))
		}
	}()
}

// Wait blocks until every background run started by Trigger has finished.
// Callers must not race it with Trigger; use Close on shutdown.
func (e *Engine) Wait() {
	e.bg.Wait()
}

// Close stops accepting triggers and waits for the runs already started.
func (e *Engine) Close() {
	e.bgMu.Lock()
	e.closed = true
	e.bgMu.Unlock()
	e.bg.Wait()
}

// Backup merges local state into the user's remote snapshot.
func (e *Engine) Backup(ctx context.Context, userID string) Result {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	log := e.cfg.Logger.With(slog.String("op", "backup"))

	if !e.cfg.Connectivity.Online(ctx) {
		log.Info("backup: skipped, offline")
		return Result{Skipped: SkippedOffline}
	}

	uid, err := e.resolveUser(ctx, userID)
	if err != nil {
		return failed(err)
	}

	notes, cats, err := e.readLocal(ctx)
	if err != nil {
		log.Error("backup: read local failed", slog.String("error", err.Error()))
		return failed(err)
	}

	cur := captureState(notes, cats)
	if !e.changedSince(ctx, cur) {
		log.Debug("backup: nothing changed")
		// Remote already matches; clear the due flag.
		if err := e.cfg.Tracker.MarkBackedUp(ctx, e.cfg.Now().UTC()); err != nil {
			log.Warn("backup: stamp failed", slog.String("error", err.Error()))
		}
		return Result{Success: true, Skipped: SkippedUnchanged}
	}

	existing, err := e.cfg.Remote.Latest(ctx, uid)
	if err != nil {
		log.Error("backup: fetch remote failed", slog.String("error", err.Error()))
		return failed(err)
	}

	mergedNotes, mergedCats := notes, cats
	if existing != nil {
		mergedNotes = MergeNotes(e.decryptNotes(existing.Data.Notes), notes)
		mergedCats = MergeCategories(e.decryptCategories(existing.Data.Categories), cats)
	}

	now := e.cfg.Now().UTC()
	payload, err := e.seal(mergedNotes, mergedCats, now)
	if err != nil {
		log.Error("backup: encrypt failed", slog.String("error", err.Error()))
		return failed(err)
	}

	if existing != nil {
		err = e.cfg.Remote.Update(ctx, existing.ID, payload)
	} else {
		_, err = e.cfg.Remote.Insert(ctx, uid, payload)
	}
	if err != nil {
		log.Error("backup: upload failed", slog.String("error", err.Error()))
		return failed(err)
	}

	e.prune(ctx, uid)
	e.finishBackup(ctx, cur, now)

	log.Info("backup: completed",
		slog.String("user", uid),
		slog.Int("notes", len(mergedNotes)),
		slog.Int("categories", len(mergedCats)))
	e.cfg.Events.Publish(sse.Event{Type: sse.TopicBackupCompleted, Data: map[string]any{
		"backupDate": payload.BackupDate, "notes": len(mergedNotes),
	}})
	return Result{Success: true, BackupDate: payload.BackupDate}
}

// Restore merges the user's latest remote snapshot into local state.
func (e *Engine) Restore(ctx context.Context, userID string) Result {
	return e.restore(ctx, userID, func(uid string) (*remote.Snapshot, error) {
		snap, err := e.cfg.Remote.Latest(ctx, uid)
		if err != nil {
			return nil, err
		}
		if snap == nil {
			return nil, apperr.ErrNoBackup
		}
		return snap, nil
	})
}

// RestoreFromDate restores the snapshot whose backup_date equals date. Zero
// or several matches are both errors.
func (e *Engine) RestoreFromDate(ctx context.Context, userID, date string) Result {
	return e.restore(ctx, userID, func(uid string) (*remote.Snapshot, error) {
		snaps, err := e.cfg.Remote.ByDate(ctx, uid, date)
		if err != nil {
			return nil, err
		}
		switch len(snaps) {
		case 0:
			return nil, fmt.Errorf("%w for %s", apperr.ErrNoBackup, date)
		case 1:
			return &snaps[0], nil
		default:
			return nil, fmt.Errorf("%w: %d snapshots dated %s", apperr.ErrAmbiguousBackup, len(snaps), date)
		}
	})
}

func (e *Engine) restore(ctx context.Context, userID string, pick func(uid string) (*remote.Snapshot, error)) Result {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	log := e.cfg.Logger.With(slog.String("op", "restore"))

	if !e.cfg.Connectivity.Online(ctx) {
		return failed(apperr.ErrOffline)
	}
	uid, err := e.resolveUser(ctx, userID)
	if err != nil {
		return failed(err)
	}
	snap, err := pick(uid)
	if err != nil {
		log.Warn("restore: no snapshot", slog.String("error", err.Error()))
		return failed(err)
	}

	remoteNotes := e.decryptNotes(snap.Data.Notes)
	remoteCats := e.decryptCategories(snap.Data.Categories)

	e.cfg.Lock.Lock()
	defer e.cfg.Lock.Unlock()

	localNotes, localCats, err := e.readLocal(ctx)
	if err != nil {
		log.Error("restore: read local failed", slog.String("error", err.Error()))
		return failed(err)
	}

	merged := remoteNotes
	if len(localNotes) > 0 {
		merged = MergeNotes(localNotes, remoteNotes)
	}
	cats := MergeCategories(localCats, remoteCats)

	if err := storage.SetJSON(ctx, e.cfg.Store, storage.KeyNotes, merged); err != nil {
		return failed(err)
	}
	if err := storage.SetJSON(ctx, e.cfg.Store, storage.KeyCategories, cats); err != nil {
		return failed(err)
	}
	if !e.cfg.Index.Build(ctx) {
		log.Warn("restore: index rebuild failed")
	}
	e.setRefreshFlags(ctx)

	log.Info("restore: completed",
		slog.String("user", uid),
		slog.String("backup_date", snap.Data.BackupDate),
		slog.Int("notes", len(merged)))
	e.cfg.Events.Publish(sse.Event{Type: sse.TopicNotesRefresh, Data: map[string]any{
		"backupDate": snap.Data.BackupDate, "notes": len(merged),
	}})
	return Result{Success: true, BackupDate: snap.Data.BackupDate}
}

// HasChanges reports whether local state differs from what was last uploaded.
func (e *Engine) HasChanges(ctx context.Context) bool {
	notes, cats, err := e.readLocal(ctx)
	if err != nil {
		return true
	}
	return e.changedSince(ctx, captureState(notes, cats))
}

func (e *Engine) changedSince(ctx context.Context, cur backupState) bool {
	var prev backupState
	ok, err := storage.GetJSON(ctx, e.cfg.Store, storage.KeyBackupState, &prev)
	if err != nil || !ok {
		return true
	}
	return stateChanged(prev, cur)
}

// resolveUser picks the explicit id, then the session user, then the cached
// id, then a session refresh. The winner is cached.
func (e *Engine) resolveUser(ctx context.Context, explicit string) (string, error) {
	uid := explicit
	if uid == "" {
		if u, err := e.cfg.Session.CurrentUser(ctx); err == nil {
			uid = u
		}
	}
	if uid == "" {
		if cached, ok, err := e.cfg.Store.Get(ctx, storage.KeyUserID); err == nil && ok {
			uid = cached
		}
	}
	if uid == "" {
		u, err := e.cfg.Session.Refresh(ctx)
		if err != nil && !errors.Is(err, apperr.ErrNotAuthenticated) {
			return "", fmt.Errorf("%w: %v", apperr.ErrNotAuthenticated, err)
		}
		uid = u
	}
	if uid == "" {
		return "", apperr.ErrNotAuthenticated
	}
	if err := e.cfg.Store.Set(ctx, storage.KeyUserID, uid); err != nil {
		e.cfg.Logger.Debug("backup: cache user id failed", slog.String("error", err.Error()))
	}
	return uid, nil
}

// readLocal loads the local collection and category list. Malformed blobs read
// as empty; backend failures are returned.
func (e *Engine) readLocal(ctx context.Context) ([]models.Note, []string, error) {
	notes, err := readLenient[[]models.Note](ctx, e, storage.KeyNotes)
	if err != nil {
		return nil, nil, err
	}
	cats, err := readLenient[[]string](ctx, e, storage.KeyCategories)
	if err != nil {
		return nil, nil, err
	}
	if notes == nil {
		notes = []models.Note{}
	}
	if cats == nil {
		cats = []string{}
	}
	return notes, cats, nil
}

func readLenient[T any](ctx context.Context, e *Engine, key string) (T, error) {
	var v T
	raw, ok, err := e.cfg.Store.Get(ctx, key)
	if err != nil {
		return v, fmt.Errorf("backup: read %s: %w", key, err)
	}
	if !ok {
		return v, nil
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		e.cfg.Logger.Warn("backup: malformed local data", slog.String("key", key), slog.String("error", err.Error()))
		var zero T
		return zero, nil
	}
	return v, nil
}

func (e *Engine) seal(notes []models.Note, cats []string, now time.Time) (remote.Payload, error) {
	rawNotes, err := json.Marshal(notes)
	if err != nil {
		return remote.Payload{}, err
	}
	rawCats, err := json.Marshal(cats)
	if err != nil {
		return remote.Payload{}, err
	}
	encNotes, err := e.cfg.Cipher.Encrypt(rawNotes)
	if err != nil {
		return remote.Payload{}, fmt.Errorf("%w: notes: %v", apperr.ErrEncryptFailed, err)
	}
	encCats, err := e.cfg.Cipher.Encrypt(rawCats)
	if err != nil {
		return remote.Payload{}, fmt.Errorf("%w: categories: %v", apperr.ErrEncryptFailed, err)
	}
	return remote.Payload{
		Notes:      encNotes,
		Categories: encCats,
		BackupDate: now.Format(DateLayout),
		AppVersion: e.cfg.AppVersion,
	}, nil
}

// decryptNotes treats any failure as an empty snapshot.
func (e *Engine) decryptNotes(ciphertext string) []models.Note {
	notes := []models.Note{}
	if ciphertext == "" {
		return notes
	}
	plain, err := e.cfg.Cipher.Decrypt(ciphertext)
	if err == nil {
		err = json.Unmarshal(plain, &notes)
	}
	if err != nil {
		e.cfg.Logger.Warn("backup: unreadable remote notes", slog.String("error", err.Error()))
		return []models.Note{}
	}
	return notes
}

// decryptCategories treats any failure as an empty list.
func (e *Engine) decryptCategories(ciphertext string) []string {
	cats := []string{}
	if ciphertext == "" {
		return cats
	}
	plain, err := e.cfg.Cipher.Decrypt(ciphertext)
	if err == nil {
		err = json.Unmarshal(plain, &cats)
	}
	if err != nil {
		e.cfg.Logger.Warn("backup: unreadable remote categories", slog.String("error", err.Error()))
		return []string{}
	}
	return cats
}

// prune keeps the newest Retention snapshots. Failures are logged only.
func (e *Engine) prune(ctx context.Context, uid string) {
	ids, err := e.cfg.Remote.IDsByUser(ctx, uid)
	if err != nil {
		e.cfg.Logger.Warn("backup: prune list failed", slog.String("error", err.Error()))
		return
	}
	if len(ids) <= e.cfg.Retention {
		return
	}
	stale := ids[e.cfg.Retention:]
	if err := e.cfg.Remote.DeleteByIDs(ctx, stale); err != nil {
		e.cfg.Logger.Warn("backup: prune delete failed", slog.String("error", err.Error()))
		return
	}
	e.cfg.Logger.Debug("backup: pruned", slog.Int("removed", len(stale)))
}

func (e *Engine) finishBackup(ctx context.Context, cur backupState, now time.Time) {
	if err := storage.SetJSON(ctx, e.cfg.Store, storage.KeyBackupState, cur); err != nil {
		e.cfg.Logger.Warn("backup: save state failed", slog.String("error", err.Error()))
	}
	if err := e.cfg.Tracker.MarkBackedUp(ctx, now); err != nil {
		e.cfg.Logger.Warn("backup: stamp failed", slog.String("error", err.Error()))
	}
	e.setRefreshFlags(ctx)
}

func (e *Engine) setRefreshFlags(ctx context.Context) {
	for _, key := range []string{storage.KeyNotesRefresh, storage.KeyCategoriesRefresh} {
		if err := e.cfg.Store.Set(ctx, key, "true"); err != nil {
			e.cfg.Logger.Warn("backup: set refresh flag failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
}

// Status summarizes the local backup bookkeeping.
type Status struct {
	LastBackup *time.Time `json:"lastBackup,omitempty"`
	LastChange *time.Time `json:"lastChange,omitempty"`
	AutoBackup bool       `json:"autoBackup"`
	Due        bool       `json:"due"`
	HasChanges bool       `json:"hasChanges"`
	AppVersion string     `json:"appVersion,omitempty"`
}

// Status reads the tracker and change-detection state.
func (e *Engine) Status(ctx context.Context) Status {
	s := Status{
		AutoBackup: e.cfg.Tracker.AutoBackupEnabled(ctx),
		Due:        e.cfg.Tracker.BackupDue(ctx),
		HasChanges: e.HasChanges(ctx),
		AppVersion: e.cfg.AppVersion,
	}
	if t, ok := e.cfg.Tracker.LastBackup(ctx); ok {
		s.LastBackup = &t
	}
	if t, ok := e.cfg.Tracker.LastChange(ctx); ok {
		s.LastChange = &t
	}
	return s
}
