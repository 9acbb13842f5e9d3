package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nikhil/doussel/internal/apperrors"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/middleware"
	leaseService "github.com/nikhil/doussel/internal/service/leases"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithServiceError maps a service error to its status code. Internal
// errors are logged and hidden from the client.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	code := apperrors.HTTPStatus(err)
	if code == http.StatusInternalServerError {
		log.WithContext(r.Context()).Error("Request failed", "error", err, "path", r.URL.Path)
	}
	respondWithError(w, code, apperrors.PublicMessage(err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

// currentUser returns the authenticated claims or answers 401.
func currentUser(w http.ResponseWriter, r *http.Request) (*middleware.Claims, bool) {
	claims, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return nil, false
	}
	return claims, true
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

func clientInfo(r *http.Request) leaseService.ClientInfo {
	return leaseService.ClientInfo{IPAddress: middleware.ClientIP(r), UserAgent: r.UserAgent()}
}

// asBadRequest keeps validation errors as they are and turns anything else
// read from the request into a generic validation error.
func asBadRequest(err error) error {
	if errors.Is(err, apperrors.ErrValidation) {
		return err
	}
	return apperrors.Validation("invalid request payload")
}
