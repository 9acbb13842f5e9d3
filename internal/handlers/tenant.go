package handlers

import (
	"net/http"

	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/middleware"
	leaseService "github.com/nikhil/doussel/internal/service/leases"
	messageService "github.com/nikhil/doussel/internal/service/messages"
)

// TenantHandler serves the magic-link area. Tenants have no account; the
// raw link token lives in an http-only cookie.
type TenantHandler struct {
	Leases       *leaseService.LeaseService
	Messages     *messageService.MessageService
	SecureCookie bool
	Log          *logger.Logger
}

func NewTenantHandler(leases *leaseService.LeaseService, messages *messageService.MessageService, secureCookie bool) *TenantHandler {
	return &TenantHandler{
		Leases:       leases,
		Messages:     messages,
		SecureCookie: secureCookie,
		Log:          logger.NewLogger("tenant-handler"),
	}
}

type tenantSessionRequest struct {
	Token string `json:"token"`
}

type tenantVerifyRequest struct {
	LastName string `json:"last_name"`
}

type messageRequest struct {
	Content string `json:"content"`
}

// CreateSession exchanges the link token for the session cookie. The session
// still needs identity verification before the lease is shown.
func (h *TenantHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req tenantSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		respondWithError(w, http.StatusBadRequest, "token is required")
		return
	}
	session, err := h.Leases.CreateSession(r.Context(), req.Token, clientInfo(r))
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	middleware.SetTenantCookie(w, req.Token, h.SecureCookie)
	respondWithJSON(w, http.StatusOK, session)
}

func (h *TenantHandler) Verify(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.TenantCookieName)
	if err != nil || cookie.Value == "" {
		respondWithError(w, http.StatusUnauthorized, "Tenant session required")
		return
	}
	var req tenantVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := h.Leases.VerifyIdentity(r.Context(), cookie.Value, req.LastName, clientInfo(r))
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, session)
}

func (h *TenantHandler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearTenantCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *TenantHandler) Lease(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Tenant session required")
		return
	}
	dashboard, err := h.Leases.TenantDashboard(r.Context(), session)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, dashboard)
}

func (h *TenantHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Tenant session required")
		return
	}
	messages, err := h.Messages.ListMessages(r.Context(), session.LeaseID)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, messages)
}

func (h *TenantHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.TenantFromContext(r.Context())
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.Messages.SendTenantMessage(r.Context(), session, req.Content)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, msg)
}
