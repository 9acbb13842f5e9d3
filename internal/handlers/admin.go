package handlers

import (
	"net/http"

	"github.com/nikhil/doussel/internal/logger"
	adminService "github.com/nikhil/doussel/internal/service/admin"
	profileService "github.com/nikhil/doussel/internal/service/users"
)

type AdminHandler struct {
	Stats    *adminService.AdminService
	Profiles *profileService.ProfileService
	Log      *logger.Logger
}

func NewAdminHandler(stats *adminService.AdminService, profiles *profileService.ProfileService) *AdminHandler {
	return &AdminHandler{Stats: stats, Profiles: profiles, Log: logger.NewLogger("admin-handler")}
}

func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	stats, err := h.Stats.DashboardStats(r.Context(), claims.Roles)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) ListStaff(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	if !profileService.HasPermission(claims.Roles, "admin.roles.view") {
		respondWithError(w, http.StatusForbidden, "Insufficient permissions")
		return
	}
	staff, err := h.Profiles.ListStaff(r.Context())
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, staff)
}

func (h *AdminHandler) GrantRole(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var change profileService.RoleChange
	if !decodeJSON(w, r, &change) {
		return
	}
	if err := h.Profiles.GrantRole(r.Context(), claims.UserID, claims.Roles, change); err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]string{"message": "Role granted"})
}

func (h *AdminHandler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var change profileService.RoleChange
	if !decodeJSON(w, r, &change) {
		return
	}
	if err := h.Profiles.RevokeRole(r.Context(), claims.UserID, claims.Roles, change); err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Role revoked"})
}
