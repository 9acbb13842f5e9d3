package teamroutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/handlers"
	"github.com/nikhil/doussel/internal/middleware"
)

func TeamRoutes(router *mux.Router, h *handlers.Handlers, mw *middleware.Set) {
	teams := h.Team

	protectedRouter := router.PathPrefix("/team").Subrouter()
	protectedRouter.Use(mw.Auth, middleware.ResponseWrapperMiddleware)
	protectedRouter.HandleFunc("/create", teams.CreateTeam).Methods(http.MethodPost)
	protectedRouter.HandleFunc("/all", teams.ListTeams).Methods(http.MethodGet)
	protectedRouter.HandleFunc("/get/{id}", teams.GetTeam).Methods(http.MethodGet)
	protectedRouter.HandleFunc("/update/{id}", teams.UpdateTeam).Methods(http.MethodPut)

	// Membership
	protectedRouter.HandleFunc("/invitations/{token}/accept", teams.AcceptInvitation).Methods(http.MethodPost)
	protectedRouter.HandleFunc("/{id}/invitations", teams.InviteMember).Methods(http.MethodPost)
	protectedRouter.HandleFunc("/{id}/members", teams.ListMembers).Methods(http.MethodGet)
	protectedRouter.HandleFunc("/{id}/members/{userID}/role", teams.ChangeMemberRole).Methods(http.MethodPut)
	protectedRouter.HandleFunc("/{id}/members/{userID}", teams.RemoveMember).Methods(http.MethodDelete)
	protectedRouter.HandleFunc("/{id}/audit", teams.AuditLog).Methods(http.MethodGet)
}
