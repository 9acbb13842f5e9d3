package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/middleware"
	propertyService "github.com/nikhil/doussel/internal/service/properties"
)

type PropertyHandler struct {
	Service *propertyService.PropertyService
	Log     *logger.Logger
}

func NewPropertyHandler(service *propertyService.PropertyService) *PropertyHandler {
	return &PropertyHandler{Service: service, Log: logger.NewLogger("property-handler")}
}

type moderationRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// Search serves the public catalogue. Only approved listings are returned.
func (h *PropertyHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.Service.SearchProperties(r.Context(), propertyService.SearchFilter{
		Category:     q.Get("category"),
		PropertyType: q.Get("type"),
		City:         q.Get("city"),
		MinPrice:     parseInt64(q.Get("min_price")),
		MaxPrice:     parseInt64(q.Get("max_price")),
		MinRooms:     queryInt(r, "min_rooms", 0),
		Q:            q.Get("q"),
		Sort:         q.Get("sort"),
		Page:         queryInt(r, "page", 1),
		PerPage:      queryInt(r, "per_page", 20),
	})
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// Get shows approved listings to everyone and unapproved ones to their
// owner and moderators.
func (h *PropertyHandler) Get(w http.ResponseWriter, r *http.Request) {
	var viewerID string
	var roles []string
	if claims, ok := middleware.UserFromContext(r.Context()); ok {
		viewerID, roles = claims.UserID, claims.Roles
	}
	property, err := h.Service.GetProperty(r.Context(), viewerID, roles, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, property)
}

func (h *PropertyHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in propertyService.PropertyInput
	if !decodeJSON(w, r, &in) {
		return
	}
	property, err := h.Service.CreateProperty(r.Context(), claims.UserID, in)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, property)
}

func (h *PropertyHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in propertyService.PropertyInput
	if !decodeJSON(w, r, &in) {
		return
	}
	property, err := h.Service.UpdateProperty(r.Context(), claims.UserID, mux.Vars(r)["id"], in)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, property)
}

func (h *PropertyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteProperty(r.Context(), claims.UserID, claims.Roles, mux.Vars(r)["id"]); err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PropertyHandler) Mine(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	properties, err := h.Service.ListOwnerProperties(r.Context(), claims.UserID)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, properties)
}

func (h *PropertyHandler) ModerationQueue(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	properties, err := h.Service.ListPendingModeration(r.Context(), claims.Roles)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, properties)
}

func (h *PropertyHandler) Moderate(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req moderationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	property, err := h.Service.ModerateProperty(r.Context(), claims.UserID, claims.Roles, mux.Vars(r)["id"], req.Decision, req.Reason)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, property)
}
