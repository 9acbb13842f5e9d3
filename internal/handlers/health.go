package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nikhil/doussel/internal/plans"
)

type HealthHandler struct {
	DB *sqlx.DB
}

func NewHealthHandler(db *sqlx.DB) *HealthHandler {
	return &HealthHandler{DB: db}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.PingContext(ctx); err != nil {
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "down"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "up"})
}

// Plans lists the subscription catalogue.
func (h *HealthHandler) Plans(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, plans.All())
}
