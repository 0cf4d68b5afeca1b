package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/backup"
)

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrNoBackup):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
	case errors.Is(err, apperr.ErrCategoryAlreadyExists), errors.Is(err, apperr.ErrAmbiguousBackup):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrCategoryEmptyName), errors.Is(err, apperr.ErrCategoryTooLong),
		errors.Is(err, apperr.ErrInvalid):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotAuthenticated):
		writeJSON(w, http.StatusUnauthorized, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrOffline):
		writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// writeResult reports a backup or restore outcome. The body is the Result
// itself so clients see Skipped and BackupDate alongside the error.
func writeResult(w http.ResponseWriter, res backup.Result) {
	if res.Err == nil {
		writeJSON(w, http.StatusOK, res)
		return
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(res.Err, apperr.ErrNoBackup):
		status = http.StatusNotFound
	case errors.Is(res.Err, apperr.ErrAmbiguousBackup):
		status = http.StatusConflict
	case errors.Is(res.Err, apperr.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(res.Err, apperr.ErrOffline):
		status = http.StatusServiceUnavailable
	default:
		slog.Error("backup operation failed", slog.String("error", res.Err.Error()))
	}
	writeJSON(w, status, res)
}
