// Package apperr holds the sentinel errors callers branch on with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrStorage  = errors.New("storage unavailable")
	ErrInvalid  = errors.New("invalid request")

	ErrCategoryEmptyName     = errors.New("category name is empty")
	ErrCategoryTooLong       = errors.New("category name is too long")
	ErrCategoryAlreadyExists = errors.New("category already exists")

	ErrOffline          = errors.New("network unreachable")
	ErrNotAuthenticated = errors.New("no authenticated user")
	ErrNoBackup         = errors.New("no backup found")
	ErrAmbiguousBackup  = errors.New("more than one backup matches")
	ErrEncryptFailed    = errors.New("encryption failed")
)
