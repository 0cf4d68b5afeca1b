package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func tempStore(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestSetAndGet(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	if err := s.Set(ctx, KeyNotes, `[{"id":"1"}]`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := s.Get(ctx, KeyNotes)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || got != `[{"id":"1"}]` {
		t.Errorf("Get = %q, %v", got, ok)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := tempStore(t)
	got, ok, err := s.Get(context.Background(), "@missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || got != "" {
		t.Errorf("Get missing = %q, %v; want empty, false", got, ok)
	}
}

func TestRemove(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	_ = s.Set(ctx, "@bye", "x")
	if err := s.Remove(ctx, "@bye"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "@bye"); ok {
		t.Error("key still present after Remove")
	}
	if err := s.Remove(ctx, "@bye"); err != nil {
		t.Errorf("removing a missing key should succeed: %v", err)
	}
}

func TestClearOnlyRemovesKeys(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	_ = s.Set(ctx, "@a", "1")
	_ = s.Set(ctx, "@b", "2")
	_ = os.WriteFile(filepath.Join(s.Root(), "readme.txt"), []byte("keep"), 0o644)

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "@a"); ok {
		t.Error("@a survived Clear")
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "readme.txt")); err != nil {
		t.Error("non-key file should survive Clear")
	}
}

func TestKeysCannotEscapeRoot(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	cases := []string{"../../etc/passwd", "../outside", "/etc/shadow", "a/b"}
	for _, k := range cases {
		if err := s.Set(ctx, k, "x"); err != nil {
			t.Fatalf("Set(%q): %v", k, err)
		}
		matches, _ := filepath.Glob(filepath.Join(filepath.Dir(s.Root()), "*"))
		for _, m := range matches {
			if filepath.Base(m) == "passwd" || filepath.Base(m) == "outside.json" {
				t.Errorf("key %q escaped store root: %s", k, m)
			}
		}
		got, ok, _ := s.Get(ctx, k)
		if !ok || got != "x" {
			t.Errorf("round trip for %q = %q, %v", k, got, ok)
		}
	}
	if err := s.Set(ctx, "", "x"); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	_ = s.Set(ctx, KeyNotes, "original")
	if err := s.Set(ctx, KeyNotes, "updated"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, _, _ := s.Get(ctx, KeyNotes)
	if got != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".notesync-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestFileNameRoundTrip(t *testing.T) {
	for _, k := range []string{KeyNotes, KeyIndexDates, "with space", "a/b"} {
		got, ok := KeyFromFileName(FileName(k))
		if !ok || got != k {
			t.Errorf("KeyFromFileName(FileName(%q)) = %q, %v", k, got, ok)
		}
	}
	if _, ok := KeyFromFileName(".notesync-tmp-123"); ok {
		t.Error("temp files are not keys")
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/notesync-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "notesync-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
