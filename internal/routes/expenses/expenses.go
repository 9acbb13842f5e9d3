package expenseRoutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/handlers"
	"github.com/nikhil/doussel/internal/middleware"
)

// ExpenseRoutes also carries the import pipeline that feeds expenses and
// payments.
func ExpenseRoutes(router *mux.Router, h *handlers.Handlers, mw *middleware.Set) {
	r := router.PathPrefix("/expenses").Subrouter()
	r.Use(mw.Auth, middleware.ResponseWrapperMiddleware)
	r.HandleFunc("", h.Expense.Create).Methods(http.MethodPost)
	r.HandleFunc("", h.Expense.List).Methods(http.MethodGet)
	r.HandleFunc("/{id}", h.Expense.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/{id}/link", h.Expense.Link).Methods(http.MethodPost)

	imports := router.PathPrefix("/imports").Subrouter()
	imports.Use(mw.Auth, middleware.ResponseWrapperMiddleware)
	imports.HandleFunc("", h.Import.Stage).Methods(http.MethodPost)
	imports.HandleFunc("/commit", h.Import.Commit).Methods(http.MethodPost)
	imports.HandleFunc("/{id}/standardize", h.Import.Standardize).Methods(http.MethodPost)
	imports.HandleFunc("/{id}/match", h.Import.Match).Methods(http.MethodPost)
}
