// Package testutil provides shared test helpers for wiring a complete note
// environment: in-memory local store, SQLite remote, real cipher.
package testutil

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/notesync/internal/backup"
	"github.com/starford/notesync/internal/crypto"
	"github.com/starford/notesync/internal/index"
	"github.com/starford/notesync/internal/noteservice"
	"github.com/starford/notesync/internal/notes"
	"github.com/starford/notesync/internal/remote"
	"github.com/starford/notesync/internal/sse"
	"github.com/starford/notesync/internal/storage"
	"github.com/starford/notesync/internal/tracker"
)

// TestUser is the user id every Env backs up as.
const TestUser = "test-user"

// Env is a fully wired service over throwaway stores.
type Env struct {
	Store   *storage.Memory
	Remote  *remote.DB
	Index   *index.Builder
	Tracker *tracker.Tracker
	Repo    *notes.Repository
	Engine  *backup.Engine
	Service *noteservice.Service
}

// TestRemote creates a temporary SQLite remote store that is closed on cleanup.
func TestRemote(t *testing.T) *remote.DB {
	t.Helper()
	db, err := remote.Open(filepath.Join(t.TempDir(), "remote.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary directory with an FS storage provider.
func TestStore(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// NewEnv wires a repository, engine and service. events may be nil.
func NewEnv(t *testing.T, events sse.Publisher) *Env {
	t.Helper()
	if events == nil {
		events = sse.Nop{}
	}
	c, err := crypto.New("test-passphrase", "test-salt", 1000)
	if err != nil {
		t.Fatal(err)
	}

	e := &Env{Store: storage.NewMemory(), Remote: TestRemote(t)}
	e.Index = index.NewBuilder(e.Store, nil)
	e.Tracker = tracker.New(e.Store)
	lock := &sync.Mutex{}
	e.Engine = backup.NewEngine(backup.Config{
		Store:      e.Store,
		Remote:     e.Remote,
		Cipher:     c,
		Index:      e.Index,
		Tracker:    e.Tracker,
		Events:     events,
		Lock:       lock,
		AppVersion: "test",
		UserID:     TestUser,
	})
	e.Repo = notes.New(notes.Options{
		Store:   e.Store,
		Index:   e.Index,
		Tracker: e.Tracker,
		Events:  events,
		Backup:  e.Engine,
		Lock:    lock,
	})
	e.Service = noteservice.NewService(e.Repo, e.Tracker, e.Engine, nil)
	t.Cleanup(e.Engine.Close)
	return e
}
