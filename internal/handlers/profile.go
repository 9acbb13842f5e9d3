package handlers

import (
	"net/http"

	"github.com/nikhil/doussel/internal/logger"
	profileService "github.com/nikhil/doussel/internal/service/users"
)

type ProfileHandler struct {
	Service *profileService.ProfileService
	Log     *logger.Logger
}

func NewProfileHandler(service *profileService.ProfileService) *ProfileHandler {
	return &ProfileHandler{Service: service, Log: logger.NewLogger("profile-handler")}
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := h.Service.GetProfile(r.Context(), claims.UserID)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}

func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req profileService.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.Service.UpdateProfile(r.Context(), claims.UserID, req)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}
