package authRoute

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/handlers"
	"github.com/nikhil/doussel/internal/middleware"
)

func RegisterAuthRoutes(router *mux.Router, h *handlers.Handlers, mw *middleware.Set) {
	// Public routes without auth middleware
	publicRouter := router.PathPrefix("/auth").Subrouter()
	publicRouter.Use(middleware.ResponseWrapperMiddleware)
	if mw.RateLimit != nil {
		publicRouter.Use(mw.RateLimit)
	}
	publicRouter.HandleFunc("/signup", h.Auth.Signup).Methods(http.MethodPost)
	publicRouter.HandleFunc("/login", h.Auth.Login).Methods(http.MethodPost)
}
