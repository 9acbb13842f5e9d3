package channnelRoutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/handlers"
	"github.com/nikhil/doussel/internal/middleware"
)

// ChannelRoutes serves the owner inbox: one conversation per lease.
func ChannelRoutes(router *mux.Router, h *handlers.Handlers, mw *middleware.Set) {
	protectedRouter := router.PathPrefix("/conversations").Subrouter()
	protectedRouter.Use(mw.Auth, middleware.ResponseWrapperMiddleware)

	protectedRouter.HandleFunc("", h.Message.Conversations).Methods(http.MethodGet)
	protectedRouter.HandleFunc("/{leaseID}/read", h.Message.MarkRead).Methods(http.MethodPost)
}
