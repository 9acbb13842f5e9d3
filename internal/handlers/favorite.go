package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/middleware"
	favoriteService "github.com/nikhil/doussel/internal/service/favorites"
)

type FavoriteHandler struct {
	Service *favoriteService.FavoriteService
	Log     *logger.Logger
}

func NewFavoriteHandler(service *favoriteService.FavoriteService) *FavoriteHandler {
	return &FavoriteHandler{Service: service, Log: logger.NewLogger("favorite-handler")}
}

func (h *FavoriteHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	favorites, err := h.Service.ListFavorites(r.Context(), claims.UserID)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, favorites)
}

func (h *FavoriteHandler) Add(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.Service.AddFavorite(r.Context(), claims.UserID, mux.Vars(r)["propertyID"]); err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]string{"message": "Favorite added"})
}

func (h *FavoriteHandler) Remove(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.Service.RemoveFavorite(r.Context(), claims.UserID, mux.Vars(r)["propertyID"]); err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sync merges favorites saved offline into the account.
func (h *FavoriteHandler) Sync(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req favoriteService.SyncRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.IPAddress = middleware.ClientIP(r)
	req.UserAgent = r.UserAgent()

	res, err := h.Service.SyncFavorites(r.Context(), claims.UserID, req)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	if res.RateLimited {
		w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter))
		respondWithJSON(w, http.StatusTooManyRequests, res)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}
