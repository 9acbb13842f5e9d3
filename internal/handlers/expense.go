package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/logger"
	expenseService "github.com/nikhil/doussel/internal/service/expenses"
	importService "github.com/nikhil/doussel/internal/service/imports"
)

type ExpenseHandler struct {
	Service *expenseService.ExpenseService
	Imports *importService.ImportService
	Log     *logger.Logger
}

func NewExpenseHandler(service *expenseService.ExpenseService, imports *importService.ImportService) *ExpenseHandler {
	return &ExpenseHandler{Service: service, Imports: imports, Log: logger.NewLogger("expense-handler")}
}

type linkRequest struct {
	LeaseID string `json:"lease_id"`
}

func (h *ExpenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in expenseService.ExpenseInput
	if !decodeJSON(w, r, &in) {
		return
	}
	expense, err := h.Service.CreateExpense(r.Context(), claims.UserID, in)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, expense)
}

func (h *ExpenseHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	expenses, err := h.Service.ListExpenses(r.Context(), claims.UserID, q.Get("team_id"), q.Get("from"), q.Get("to"))
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, expenses)
}

func (h *ExpenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteExpense(r.Context(), claims.UserID, mux.Vars(r)["id"]); err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Link attaches an expense to a lease by hand and records the correction.
func (h *ExpenseHandler) Link(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req linkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	expense, err := h.Imports.LinkExpenseToLease(r.Context(), claims.UserID, mux.Vars(r)["id"], req.LeaseID)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, expense)
}
