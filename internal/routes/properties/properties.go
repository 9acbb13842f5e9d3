package propertyRoutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/handlers"
	"github.com/nikhil/doussel/internal/middleware"
)

// PropertyRoutes mixes public catalogue routes with owner routes, so the
// auth middleware is applied per route. "/mine" must stay before "/{id}".
func PropertyRoutes(router *mux.Router, h *handlers.Handlers, mw *middleware.Set) {
	p := h.Property
	auth := func(fn http.HandlerFunc) http.Handler { return mw.Auth(fn) }

	r := router.PathPrefix("/properties").Subrouter()
	r.Use(middleware.ResponseWrapperMiddleware)
	r.Handle("/mine", auth(p.Mine)).Methods(http.MethodGet)
	r.HandleFunc("", p.Search).Methods(http.MethodGet)
	r.Handle("", auth(p.Create)).Methods(http.MethodPost)
	r.Handle("/{id}", mw.OptionalAuth(http.HandlerFunc(p.Get))).Methods(http.MethodGet)
	r.Handle("/{id}", auth(p.Update)).Methods(http.MethodPut)
	r.Handle("/{id}", auth(p.Delete)).Methods(http.MethodDelete)

	router.HandleFunc("/plans", h.Health.Plans).Methods(http.MethodGet)
}
