package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-notify-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// NotificationEnvelope wraps single-notification responses.
type NotificationEnvelope struct {
	Notification *domain.ScheduledNotification `json:"notification,omitempty"`
	Message      string                        `json:"message,omitempty"`
	Error        string                        `json:"error,omitempty"`
}

// PaginatedNotificationsEnvelope wraps cursor-paged notification lists.
type PaginatedNotificationsEnvelope struct {
	Data       []domain.ScheduledNotification `json:"data"`
	NextCursor string                         `json:"next_cursor,omitempty"`
	Error      string                         `json:"error,omitempty"`
}

// AttemptLogsEnvelope wraps attempt-history responses.
type AttemptLogsEnvelope struct {
	Data  []domain.AttemptLog `json:"data"`
	Error string              `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps domain sentinel errors to HTTP statuses.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
