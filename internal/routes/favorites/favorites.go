package favoriteRoutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/handlers"
	"github.com/nikhil/doussel/internal/middleware"
)

func FavoriteRoutes(router *mux.Router, h *handlers.Handlers, mw *middleware.Set) {
	r := router.PathPrefix("/favorites").Subrouter()
	r.Use(mw.Auth, middleware.ResponseWrapperMiddleware)

	r.HandleFunc("", h.Favorite.List).Methods(http.MethodGet)
	r.HandleFunc("/sync", h.Favorite.Sync).Methods(http.MethodPost)
	r.HandleFunc("/{propertyID}", h.Favorite.Add).Methods(http.MethodPost)
	r.HandleFunc("/{propertyID}", h.Favorite.Remove).Methods(http.MethodDelete)
}
