package handlers

import (
	"net/http"
	"time"

	"github.com/nikhil/doussel/internal/logger"
	rentalService "github.com/nikhil/doussel/internal/service/rentals"
)

// CronHandler exposes the scheduled jobs to an external scheduler. Routes
// are protected by CronAuth.
type CronHandler struct {
	Rentals *rentalService.RentalService
	Log     *logger.Logger
}

func NewCronHandler(rentals *rentalService.RentalService) *CronHandler {
	return &CronHandler{Rentals: rentals, Log: logger.NewLogger("cron-handler")}
}

// GenerateMonthlyRentals targets the current month unless ?date=YYYY-MM-DD is given.
func (h *CronHandler) GenerateMonthlyRentals(w http.ResponseWriter, r *http.Request) {
	target := h.Rentals.Now()
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		target = parsed
	}
	res, err := h.Rentals.GenerateMonthly(r.Context(), target)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	h.Log.Info("Monthly rentals generated", "period", res.Period, "created", res.Created, "skipped", res.Skipped)
	respondWithJSON(w, http.StatusOK, res)
}

func (h *CronHandler) SendReminders(w http.ResponseWriter, r *http.Request) {
	res, err := h.Rentals.SendReminders(r.Context(), h.Rentals.Now())
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (h *CronHandler) LeaseAlerts(w http.ResponseWriter, r *http.Request) {
	res, err := h.Rentals.CheckLeaseExpirations(r.Context(), h.Rentals.Now())
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}
