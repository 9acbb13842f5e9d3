package userRoutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/handlers"
	"github.com/nikhil/doussel/internal/middleware"
)

func UserProfileRoutes(router *mux.Router, h *handlers.Handlers, mw *middleware.Set) {
	// Protected routes requiring authentication
	protectedRouter := router.PathPrefix("/user").Subrouter()
	protectedRouter.Use(mw.Auth, middleware.ResponseWrapperMiddleware)

	protectedRouter.HandleFunc("/profile", h.Profile.GetProfile).Methods(http.MethodGet)
	protectedRouter.HandleFunc("/profile", h.Profile.UpdateProfile).Methods(http.MethodPut)
}
