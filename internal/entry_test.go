package internal

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/storage"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Storage.Path = filepath.Join(dir, "data")
	cfg.Remote.Path = filepath.Join(dir, "backups.db")
	cfg.Backup.Passphrase = "secret"
	cfg.Backup.Iterations = 1000
	cfg.Backup.UserID = "alice"
	return cfg
}

func TestOpen_RequiresConfig(t *testing.T) {
	if _, err := Open(context.Background(), WithLogOutput(io.Discard)); err == nil {
		t.Fatal("Open without config should fail")
	}
}

func TestOpen_WiresBackupRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	app, err := Open(ctx, WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	if _, err := app.Service.CreateNote(ctx, models.NoteDraft{Title: "wired", Category: models.StringPtr("Inbox")}); err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	res := app.Service.Backup(ctx, "")
	if !res.Success || res.BackupDate == "" {
		t.Fatalf("backup = %+v", res)
	}
	snap, err := app.Remote.Latest(ctx, "alice")
	if err != nil || snap == nil {
		t.Fatalf("latest = %v, %v", snap, err)
	}
	if snap.Data.AppVersion != cfg.App.Version {
		t.Errorf("app version = %q", snap.Data.AppVersion)
	}
}

func TestOpen_SeedsAutoBackupOnce(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Backup.AutoEnabled = true

	app, err := Open(ctx, WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	if !app.Tracker.AutoBackupEnabled(ctx) {
		t.Error("auto backup not seeded from config")
	}
	if err := app.Tracker.SetAutoBackup(ctx, false); err != nil {
		t.Fatal(err)
	}
	if err := app.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The persisted switch wins over the config default on the next start.
	app, err = Open(ctx, WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = app.Close() })
	if app.Tracker.AutoBackupEnabled(ctx) {
		t.Error("persisted setting overwritten by config")
	}
}

func TestOpen_BadgerBackend(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Storage.Backend = storage.BackendBadger

	app, err := Open(ctx, WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	if _, err := app.Service.CreateNote(ctx, models.NoteDraft{Title: "in badger"}); err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if got := app.Repo.GetAllNotes(ctx); len(got) != 1 {
		t.Errorf("notes = %d", len(got))
	}
}
