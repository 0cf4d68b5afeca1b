package storage

import (
	"context"
	"errors"
	"testing"
)

// exerciseProvider runs the behaviour every backend must share.
func exerciseProvider(t *testing.T, p Provider) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := p.Get(ctx, KeyCategories); err != nil || ok {
		t.Fatalf("fresh store Get = ok %v, err %v", ok, err)
	}
	if err := p.Set(ctx, KeyCategories, `["Work"]`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := p.Set(ctx, KeyCategories, `["Work","Home"]`); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, ok, err := p.Get(ctx, KeyCategories)
	if err != nil || !ok || got != `["Work","Home"]` {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}
	if err := p.Remove(ctx, KeyCategories); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := p.Get(ctx, KeyCategories); ok {
		t.Error("key present after Remove")
	}
	_ = p.Set(ctx, "@x", "1")
	_ = p.Set(ctx, "@y", "2")
	if err := p.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := p.Get(ctx, "@y"); ok {
		t.Error("key present after Clear")
	}
}

func TestProviders(t *testing.T) {
	t.Run("fs", func(t *testing.T) { exerciseProvider(t, tempStore(t)) })
	t.Run("memory", func(t *testing.T) { exerciseProvider(t, NewMemory()) })
	t.Run("badger", func(t *testing.T) {
		b, err := OpenBadger(BadgerConfig{InMemory: true})
		if err != nil {
			t.Fatalf("OpenBadger: %v", err)
		}
		t.Cleanup(func() { b.Close() })
		exerciseProvider(t, b)
	})
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	b, err := OpenBadger(BadgerConfig{Path: dir, SyncWrites: true})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	_ = b.Set(ctx, KeyNotes, "[]")
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err = OpenBadger(BadgerConfig{Path: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	got, ok, _ := b.Get(ctx, KeyNotes)
	if !ok || got != "[]" {
		t.Errorf("after reopen Get = %q, %v", got, ok)
	}
}

func TestMemoryFailSet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	boom := errors.New("disk full")
	m.FailSet(KeyNotes, boom)
	if err := m.Set(ctx, KeyNotes, "x"); !errors.Is(err, boom) {
		t.Fatalf("Set err = %v, want injected", err)
	}
	m.FailSet(KeyNotes, nil)
	if err := m.Set(ctx, KeyNotes, "x"); err != nil {
		t.Fatalf("Set after clearing fault: %v", err)
	}
}

func TestMemoryFailGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Set(ctx, KeyCategories, `["Work"]`); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("io error")
	m.FailGet(KeyCategories, boom)
	if _, _, err := m.Get(ctx, KeyCategories); !errors.Is(err, boom) {
		t.Fatalf("Get err = %v, want injected", err)
	}
	m.FailGet(KeyCategories, nil)
	if v, ok, err := m.Get(ctx, KeyCategories); err != nil || !ok || v != `["Work"]` {
		t.Fatalf("Get after clearing fault = %q, %v, %v", v, ok, err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, _, err := Open("etcd", t.TempDir(), nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}
