package leaseRoutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/handlers"
	"github.com/nikhil/doussel/internal/middleware"
)

// LeaseRoutes covers leases, their magic links, rent transactions and the
// owner side of lease messages.
func LeaseRoutes(router *mux.Router, h *handlers.Handlers, mw *middleware.Set) {
	l := h.Lease

	r := router.PathPrefix("/leases").Subrouter()
	r.Use(mw.Auth, middleware.ResponseWrapperMiddleware)
	r.HandleFunc("", l.Create).Methods(http.MethodPost)
	r.HandleFunc("", l.List).Methods(http.MethodGet)
	r.HandleFunc("/{id}", l.Get).Methods(http.MethodGet)
	r.HandleFunc("/{id}", l.Update).Methods(http.MethodPut)
	r.HandleFunc("/{id}/terminate", l.Terminate).Methods(http.MethodPost)
	r.HandleFunc("/{id}/magic-link", l.GenerateAccessLink).Methods(http.MethodPost)
	r.HandleFunc("/{id}/magic-link", l.RevokeAccessLink).Methods(http.MethodDelete)
	r.HandleFunc("/{id}/access-logs", l.AccessLogs).Methods(http.MethodGet)
	r.HandleFunc("/{id}/transactions", h.Rental.ListTransactions).Methods(http.MethodGet)
	r.HandleFunc("/{id}/messages", h.Message.List).Methods(http.MethodGet)
	r.HandleFunc("/{id}/messages", h.Message.Send).Methods(http.MethodPost)

	finance := router.NewRoute().Subrouter()
	finance.Use(mw.Auth, middleware.ResponseWrapperMiddleware)
	finance.HandleFunc("/transactions/{id}/payments", h.Rental.RecordPayment).Methods(http.MethodPost)
	finance.HandleFunc("/finance/summary", h.Rental.Summary).Methods(http.MethodGet)
}
