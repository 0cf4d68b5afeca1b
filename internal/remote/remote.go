// Package remote is the backups table the merge engine replicates into.
// Each row holds one user's encrypted snapshot.
package remote

import (
	"context"
	"time"
)

// Payload is the JSON document stored in the data column.
// Notes and Categories are ciphertext.
type Payload struct {
	Notes      string `json:"notes"`
	Categories string `json:"categories"`
	BackupDate string `json:"backup_date"`
	AppVersion string `json:"app_version"`
}

// Snapshot is one row of the backups table.
type Snapshot struct {
	ID        int64
	UserID    string
	Data      Payload
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the set of remote operations the engine consumes.
type Store interface {
	// Latest returns the most recently updated snapshot, or nil when the user has none.
	Latest(ctx context.Context, userID string) (*Snapshot, error)
	// ByDate returns every snapshot whose backup_date equals date exactly.
	ByDate(ctx context.Context, userID, date string) ([]Snapshot, error)
	Insert(ctx context.Context, userID string, data Payload) (int64, error)
	Update(ctx context.Context, id int64, data Payload) error
	// IDsByUser lists snapshot ids newest first.
	IDsByUser(ctx context.Context, userID string) ([]int64, error)
	DeleteByIDs(ctx context.Context, ids []int64) error
}
