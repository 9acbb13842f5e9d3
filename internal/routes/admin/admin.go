package adminRoutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/handlers"
	"github.com/nikhil/doussel/internal/middleware"
	"github.com/nikhil/doussel/internal/models"
)

// AdminRoutes is limited to back-office roles; finer permissions are
// checked by the services.
func AdminRoutes(router *mux.Router, h *handlers.Handlers, mw *middleware.Set) {
	r := router.PathPrefix("/admin").Subrouter()
	r.Use(mw.Auth, middleware.RequireRole(models.RoleAdmin, models.RoleModerateur, models.RoleSuperAdmin),
		middleware.ResponseWrapperMiddleware)

	r.HandleFunc("/moderation", h.Property.ModerationQueue).Methods(http.MethodGet)
	r.HandleFunc("/moderation/{id}", h.Property.Moderate).Methods(http.MethodPost)
	r.HandleFunc("/stats", h.Admin.Dashboard).Methods(http.MethodGet)
	r.HandleFunc("/roles", h.Admin.ListStaff).Methods(http.MethodGet)
	r.HandleFunc("/roles", h.Admin.GrantRole).Methods(http.MethodPost)
	r.HandleFunc("/roles", h.Admin.RevokeRole).Methods(http.MethodDelete)
}
