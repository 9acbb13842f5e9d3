package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/logger"
	leaseService "github.com/nikhil/doussel/internal/service/leases"
)

type LeaseHandler struct {
	Service *leaseService.LeaseService
	Log     *logger.Logger
}

func NewLeaseHandler(service *leaseService.LeaseService) *LeaseHandler {
	return &LeaseHandler{Service: service, Log: logger.NewLogger("lease-handler")}
}

func (h *LeaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in leaseService.LeaseInput
	if !decodeJSON(w, r, &in) {
		return
	}
	lease, err := h.Service.CreateLease(r.Context(), claims.UserID, in)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, lease)
}

func (h *LeaseHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	leases, err := h.Service.ListLeases(r.Context(), claims.UserID, q.Get("team_id"), q.Get("status"))
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, leases)
}

func (h *LeaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	lease, err := h.Service.GetLease(r.Context(), claims.UserID, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, lease)
}

func (h *LeaseHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in leaseService.LeaseUpdate
	if !decodeJSON(w, r, &in) {
		return
	}
	lease, err := h.Service.UpdateLease(r.Context(), claims.UserID, mux.Vars(r)["id"], in)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, lease)
}

func (h *LeaseHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	lease, err := h.Service.TerminateLease(r.Context(), claims.UserID, mux.Vars(r)["id"], clientInfo(r))
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, lease)
}

func (h *LeaseHandler) GenerateAccessLink(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	link, err := h.Service.GenerateAccessToken(r.Context(), claims.UserID, mux.Vars(r)["id"], clientInfo(r))
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, link)
}

func (h *LeaseHandler) RevokeAccessLink(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.Service.RevokeToken(r.Context(), claims.UserID, mux.Vars(r)["id"], clientInfo(r)); err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LeaseHandler) AccessLogs(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	logs, err := h.Service.ListAccessLogs(r.Context(), claims.UserID, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, logs)
}
