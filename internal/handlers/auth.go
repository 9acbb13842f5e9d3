package handlers

import (
	"net/http"

	"github.com/nikhil/doussel/internal/logger"
	services "github.com/nikhil/doussel/internal/service/auth"
)

type AuthHandler struct {
	Service *services.AuthService
	Log     *logger.Logger
}

// NewAuthHandler creates a new instance of AuthHandler
func NewAuthHandler(service *services.AuthService) *AuthHandler {
	return &AuthHandler{Service: service, Log: logger.NewLogger("auth-handler")}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup handles the user registration request
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req services.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, token, err := h.Service.Signup(r.Context(), req)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"message":      "User created successfully",
		"user_details": user,
		"token":        token,
	})
}

// Login handles the user authentication request
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var credentials loginRequest
	if !decodeJSON(w, r, &credentials) {
		return
	}
	token, user, err := h.Service.Login(r.Context(), credentials.Email, credentials.Password)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"token": token, "user_details": user})
}
