package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/logger"
	notificationService "github.com/nikhil/doussel/internal/service/notifications"
)

type NotificationHandler struct {
	Service *notificationService.NotificationService
	Log     *logger.Logger
}

func NewNotificationHandler(service *notificationService.NotificationService) *NotificationHandler {
	return &NotificationHandler{Service: service, Log: logger.NewLogger("notification-handler")}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"
	res, err := h.Service.List(r.Context(), claims.UserID, unreadOnly, queryInt(r, "page", 1), queryInt(r, "per_page", 20))
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	n, err := h.Service.UnreadCount(r.Context(), claims.UserID)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.Service.MarkRead(r.Context(), claims.UserID, mux.Vars(r)["id"]); err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	n, err := h.Service.MarkAllRead(r.Context(), claims.UserID)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"marked": n})
}
