package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/logger"
	rentalService "github.com/nikhil/doussel/internal/service/rentals"
)

type RentalHandler struct {
	Service *rentalService.RentalService
	Log     *logger.Logger
}

func NewRentalHandler(service *rentalService.RentalService) *RentalHandler {
	return &RentalHandler{Service: service, Log: logger.NewLogger("rental-handler")}
}

func (h *RentalHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	txs, err := h.Service.ListTransactions(r.Context(), claims.UserID, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, txs)
}

func (h *RentalHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in rentalService.PaymentInput
	if !decodeJSON(w, r, &in) {
		return
	}
	tx, err := h.Service.RecordPayment(r.Context(), claims.UserID, mux.Vars(r)["id"], in)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, tx)
}

// Summary defaults to the current month.
func (h *RentalHandler) Summary(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	now := h.Service.Now()
	year := queryInt(r, "year", now.Year())
	month := queryInt(r, "month", int(now.Month()))
	summary, err := h.Service.FinancialSummary(r.Context(), claims.UserID, r.URL.Query().Get("team_id"), year, month)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}
