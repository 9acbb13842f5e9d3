package notificationRoutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/handlers"
	"github.com/nikhil/doussel/internal/middleware"
)

func NotificationRoutes(router *mux.Router, h *handlers.Handlers, mw *middleware.Set) {
	r := router.PathPrefix("/notifications").Subrouter()
	r.Use(mw.Auth, middleware.ResponseWrapperMiddleware)

	r.HandleFunc("", h.Notification.List).Methods(http.MethodGet)
	r.HandleFunc("/unread-count", h.Notification.UnreadCount).Methods(http.MethodGet)
	r.HandleFunc("/read-all", h.Notification.MarkAllRead).Methods(http.MethodPost)
	r.HandleFunc("/{id}/read", h.Notification.MarkRead).Methods(http.MethodPost)
}
