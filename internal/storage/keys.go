package storage

// Persisted keys.
const (
	KeyNotes      = "@notes"
	KeyCategories = "@categories"

	KeyIndexCategories = "@notes_index_categories"
	KeyIndexFavorites  = "@notes_index_favorites"
	KeyIndexDates      = "@notes_index_dates"

	KeyLastChange = "@lastChangeTimestamp"
	KeyLastBackup = "@last_backup_time"
	KeyAutoBackup = "@auto_backup_enabled"

	KeyUserID            = "@user_id"
	KeyBackupState       = "@last_backup_state"
	KeyNotesRefresh      = "@notes_need_refresh"
	KeyCategoriesRefresh = "@categories_need_refresh"
)
