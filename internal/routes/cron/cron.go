package cronRoutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/handlers"
	"github.com/nikhil/doussel/internal/middleware"
)

func CronRoutes(router *mux.Router, h *handlers.Handlers, mw *middleware.Set) {
	r := router.PathPrefix("/cron").Subrouter()
	r.Use(mw.Cron, middleware.ResponseWrapperMiddleware)

	r.HandleFunc("/generate-monthly-rentals", h.Cron.GenerateMonthlyRentals).Methods(http.MethodGet)
	r.HandleFunc("/reminders", h.Cron.SendReminders).Methods(http.MethodGet)
	r.HandleFunc("/lease-alerts", h.Cron.LeaseAlerts).Methods(http.MethodGet)
}
