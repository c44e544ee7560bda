package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-notify-api/internal/application/notification"
	"github.com/go-notify-api/internal/domain"
	"github.com/go-notify-api/internal/pkg/validate"
)

// NotificationHandler handles scheduled-notification endpoints.
type NotificationHandler struct {
	svc notification.Service
}

func NewNotificationHandler(svc notification.Service) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, duplicate, err := h.svc.Create(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	if duplicate {
		writeJSON(w, http.StatusConflict, NotificationEnvelope{
			Notification: rec,
			Message:      "identical notification already accepted",
		})
		return
	}
	writeJSON(w, http.StatusCreated, NotificationEnvelope{Notification: rec})
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	cursor := r.URL.Query().Get("cursor")
	items, next, err := h.svc.List(r.Context(), limit, cursor)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PaginatedNotificationsEnvelope{Data: items, NextCursor: next})
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NotificationEnvelope{Notification: rec})
}

func (h *NotificationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	rec, changed, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	msg := "notification canceled"
	if !changed {
		msg = "notification already finalized, no change"
	}
	writeJSON(w, http.StatusOK, NotificationEnvelope{Notification: rec, Message: msg})
}

func (h *NotificationHandler) Logs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.svc.Logs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AttemptLogsEnvelope{Data: logs})
}
