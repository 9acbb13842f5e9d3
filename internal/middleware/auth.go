package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nikhil/doussel/internal/models"
)

type ContextKey string

const UserContextKey ContextKey = "currentUser"

// Claims is the JWT payload issued at login.
type Claims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// HasRole reports whether the token carries any of roles.
func (c *Claims) HasRole(roles ...string) bool {
	return models.HasRole(c.Roles, roles...)
}

// TokenManager signs and verifies HS256 tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateJWT creates a JWT token for authentication
func (tm *TokenManager) GenerateJWT(userID, email string, roles []string) (string, error) {
	now := tm.now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// Parse validates tokenStr and returns its claims.
func (tm *TokenManager) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// UserFromContext returns the claims stored by AuthMiddleware.
func UserFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*Claims)
	return claims, ok && claims != nil
}

// WithUser stores claims in ctx. Used by tests and the websocket handshake.
func WithUser(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}

// AuthMiddleware rejects requests without a valid bearer token.
func (tm *TokenManager) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r)
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "Missing auth token")
			return
		}
		claims, err := tm.Parse(tokenStr)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims)))
	})
}

// OptionalAuth attaches claims when a valid token is present and lets
// anonymous requests through.
func (tm *TokenManager) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokenStr := bearerToken(r); tokenStr != "" {
			if claims, err := tm.Parse(tokenStr); err == nil {
				r = r.WithContext(WithUser(r.Context(), claims))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// WebSocketAuthMiddleware accepts the token from the "token" query parameter
// since browsers cannot set headers on websocket upgrades. Requests without
// a token continue anonymously so tenant sessions can connect.
func (tm *TokenManager) WebSocketAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			tokenStr = bearerToken(r)
		}
		if tokenStr != "" {
			claims, err := tm.Parse(tokenStr)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			r = r.WithContext(WithUser(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole only lets through users holding one of roles. It must run
// after AuthMiddleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := UserFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Missing auth token")
				return
			}
			if !claims.HasRole(roles...) {
				writeError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ResponseWrapperMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
