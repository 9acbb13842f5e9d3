package tenantRoutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/handlers"
	"github.com/nikhil/doussel/internal/middleware"
)

// TenantRoutes serves tenants holding a magic link. Session and verify only
// need the cookie; the rest needs a verified session.
func TenantRoutes(router *mux.Router, h *handlers.Handlers, mw *middleware.Set) {
	t := h.Tenant

	r := router.PathPrefix("/tenant").Subrouter()
	r.Use(middleware.ResponseWrapperMiddleware)
	if mw.RateLimit != nil {
		r.Use(mw.RateLimit)
	}
	r.HandleFunc("/session", t.CreateSession).Methods(http.MethodPost)
	r.HandleFunc("/verify", t.Verify).Methods(http.MethodPost)
	r.HandleFunc("/logout", t.Logout).Methods(http.MethodPost)
	r.Handle("/lease", mw.Tenant(http.HandlerFunc(t.Lease))).Methods(http.MethodGet)
	r.Handle("/messages", mw.Tenant(http.HandlerFunc(t.ListMessages))).Methods(http.MethodGet)
	r.Handle("/messages", mw.Tenant(http.HandlerFunc(t.SendMessage))).Methods(http.MethodPost)
}
