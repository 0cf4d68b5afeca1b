package storage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Open builds the provider named by backend. The returned closer releases any
// underlying handle and is never nil.
func Open(backend, path string, logger *slog.Logger) (Provider, io.Closer, error) {
	switch backend {
	case BackendFS, "":
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, nil, fmt.Errorf("storage: create store dir: %w", err)
		}
		fs, err := NewFS(path)
		if err != nil {
			return nil, nil, err
		}
		return fs, io.NopCloser(nil), nil
	case BackendBadger:
		b, err := OpenBadger(BadgerConfig{Path: path, SyncWrites: true, Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return b, b, nil
	case BackendMemory:
		return NewMemory(), io.NopCloser(nil), nil
	default:
		return nil, nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
}
