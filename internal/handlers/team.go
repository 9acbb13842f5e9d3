package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/logger"
	teamService "github.com/nikhil/doussel/internal/service/team"
)

type TeamHandler struct {
	Service *teamService.TeamService
	Log     *logger.Logger
}

func NewTeamHandler(service *teamService.TeamService) *TeamHandler {
	return &TeamHandler{Service: service, Log: logger.NewLogger("team-handler")}
}

type inviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *TeamHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req teamService.CreateTeamRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	team, err := h.Service.CreateTeam(r.Context(), claims.UserID, req)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, team)
}

func (h *TeamHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	res, err := h.Service.ListUserTeams(r.Context(), claims.UserID, queryInt(r, "page", 1), queryInt(r, "per_page", 20))
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (h *TeamHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	team, err := h.Service.GetTeam(r.Context(), claims.UserID, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, team)
}

func (h *TeamHandler) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req teamService.UpdateTeamRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	team, err := h.Service.UpdateTeam(r.Context(), claims.UserID, mux.Vars(r)["id"], req)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, team)
}

func (h *TeamHandler) InviteMember(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req inviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	invitation, err := h.Service.InviteMember(r.Context(), claims.UserID, mux.Vars(r)["id"], req.Email, req.Role)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, invitation)
}

func (h *TeamHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	member, err := h.Service.AcceptInvitation(r.Context(), mux.Vars(r)["token"], claims.UserID)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, member)
}

func (h *TeamHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	members, err := h.Service.ListMembers(r.Context(), claims.UserID, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, members)
}

func (h *TeamHandler) ChangeMemberRole(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	vars := mux.Vars(r)
	if err := h.Service.ChangeMemberRole(r.Context(), claims.UserID, vars["id"], vars["userID"], req.Role); err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Role updated"})
}

func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	if err := h.Service.RemoveMember(r.Context(), claims.UserID, vars["id"], vars["userID"]); err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TeamHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	entries, err := h.Service.ListAuditLog(r.Context(), claims.UserID, mux.Vars(r)["id"], queryInt(r, "limit", 50))
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}
