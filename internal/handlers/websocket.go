package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/middleware"
	"github.com/nikhil/doussel/internal/models"
	leaseService "github.com/nikhil/doussel/internal/service/leases"
	teamService "github.com/nikhil/doussel/internal/service/team"
)

// WebSocketHandler upgrades owners and verified tenants to a realtime
// connection. Owners join their user room and the rooms of their leases;
// tenants join the room of their lease only.
type WebSocketHandler struct {
	Hub      *models.Hub
	Leases   *leaseService.LeaseService
	Upgrader websocket.Upgrader
	Log      *logger.Logger
}

// NewWebSocketHandler accepts any origin when allowedOrigin is empty.
func NewWebSocketHandler(hub *models.Hub, leases *leaseService.LeaseService, allowedOrigin string) *WebSocketHandler {
	return &WebSocketHandler{
		Hub:    hub,
		Leases: leases,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || origin == "" || origin == allowedOrigin
			},
		},
		Log: logger.NewLogger("websocket-handler"),
	}
}

// rooms resolves the identity of the caller. It answers the request itself
// and returns ok=false when the caller may not connect.
func (h *WebSocketHandler) rooms(w http.ResponseWriter, r *http.Request) (userID string, rooms []string, ok bool) {
	ctx := r.Context()
	if claims, found := middleware.UserFromContext(ctx); found {
		rooms = []string{models.UserRoom(claims.UserID)}
		if leaseID := r.URL.Query().Get("lease_id"); leaseID != "" {
			lease, err := h.Leases.Authorize(ctx, claims.UserID, leaseID, teamService.PermLeasesView)
			if err != nil {
				respondWithServiceError(w, r, h.Log, err)
				return "", nil, false
			}
			return claims.UserID, append(rooms, models.LeaseRoom(lease.ID)), true
		}
		leases, err := h.Leases.ListLeases(ctx, claims.UserID, "", models.LeaseActive)
		if err != nil {
			respondWithServiceError(w, r, h.Log, err)
			return "", nil, false
		}
		for _, l := range leases {
			rooms = append(rooms, models.LeaseRoom(l.ID))
		}
		return claims.UserID, rooms, true
	}

	cookie, err := r.Cookie(middleware.TenantCookieName)
	if err != nil || cookie.Value == "" {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return "", nil, false
	}
	session, err := h.Leases.ValidateToken(ctx, cookie.Value, clientInfo(r))
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return "", nil, false
	}
	if !session.Verified {
		respondWithError(w, http.StatusForbidden, "Identity verification required")
		return "", nil, false
	}
	return "tenant:" + session.LeaseID, []string{models.LeaseRoom(session.LeaseID)}, true
}

func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, rooms, ok := h.rooms(w, r)
	if !ok {
		return
	}

	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("Error upgrading connection", "error", err)
		return
	}

	client := &models.Client{
		Hub:    h.Hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		UserID: userID,
		Rooms:  rooms,
	}
	h.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
