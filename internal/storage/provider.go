// Package storage defines the string key-value store the note blobs live in.
package storage

import "context"

// Provider is an asynchronous string-keyed store. Every blob is written whole.
type Provider interface {
	// Get returns the value under key. ok is false when the key was never set.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set replaces the value under key.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// Clear deletes every key.
	Clear(ctx context.Context) error
}

// Backend names accepted by Open.
const (
	BackendFS     = "fs"
	BackendBadger = "badger"
	BackendMemory = "memory"
)
