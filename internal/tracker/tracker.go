// Package tracker records when the local note store last changed and when it was
// last backed up, and keeps the auto-backup switch.
package tracker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/starford/notesync/internal/storage"
)

// Tracker reads and writes the scalar control keys.
type Tracker struct {
	store storage.Provider
}

// New creates a Tracker over store.
func New(store storage.Provider) *Tracker {
	return &Tracker{store: store}
}

// Stamp records a local change at t.
func (t *Tracker) Stamp(ctx context.Context, at time.Time) error {
	return t.setTime(ctx, storage.KeyLastChange, at)
}

// LastChange returns the last stamped change. ok is false when nothing was stamped.
func (t *Tracker) LastChange(ctx context.Context) (time.Time, bool) {
	return t.getTime(ctx, storage.KeyLastChange)
}

// MarkBackedUp records a successful backup at t.
func (t *Tracker) MarkBackedUp(ctx context.Context, at time.Time) error {
	return t.setTime(ctx, storage.KeyLastBackup, at)
}

// LastBackup returns the last successful backup time.
func (t *Tracker) LastBackup(ctx context.Context) (time.Time, bool) {
	return t.getTime(ctx, storage.KeyLastBackup)
}

// BackupDue reports whether the last local change is newer than the last backup.
// A change with no backup on record is due; no recorded change is not.
func (t *Tracker) BackupDue(ctx context.Context) bool {
	changed, ok := t.LastChange(ctx)
	if !ok {
		return false
	}
	backed, ok := t.LastBackup(ctx)
	if !ok {
		return true
	}
	return changed.After(backed)
}

// AutoBackupEnabled reports the persisted auto-backup switch. Unset means off.
func (t *Tracker) AutoBackupEnabled(ctx context.Context) bool {
	v, ok, err := t.store.Get(ctx, storage.KeyAutoBackup)
	if err != nil || !ok {
		return false
	}
	on, err := strconv.ParseBool(v)
	return err == nil && on
}

// SetAutoBackup persists the auto-backup switch.
func (t *Tracker) SetAutoBackup(ctx context.Context, on bool) error {
	if err := t.store.Set(ctx, storage.KeyAutoBackup, strconv.FormatBool(on)); err != nil {
		return fmt.Errorf("tracker: set auto backup: %w", err)
	}
	return nil
}

func (t *Tracker) setTime(ctx context.Context, key string, at time.Time) error {
	if err := t.store.Set(ctx, key, at.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("tracker: write %s: %w", key, err)
	}
	return nil
}

func (t *Tracker) getTime(ctx context.Context, key string) (time.Time, bool) {
	v, ok, err := t.store.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}
