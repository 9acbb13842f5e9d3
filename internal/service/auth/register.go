package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nikhil/doussel/internal/apperrors"
	"github.com/nikhil/doussel/internal/database"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/middleware"
	"github.com/nikhil/doussel/internal/models"
	"github.com/nikhil/doussel/pkg/utils"
)

const minPasswordLength = 8

type AuthService struct {
	DB     *sqlx.DB
	Tokens *middleware.TokenManager
	Log    *logger.Logger
	Now    func() time.Time
	// AdminEmail always receives the admin role.
	AdminEmail string
}

// SignupRequest is the payload of POST /auth/signup.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

// NewAuthService creates a new instance of AuthService
func NewAuthService(db *sqlx.DB, tokens *middleware.TokenManager, adminEmail string) *AuthService {
	return &AuthService{
		DB:         db,
		Tokens:     tokens,
		Log:        logger.NewLogger("auth-service"),
		Now:        time.Now,
		AdminEmail: utils.NormalizeEmail(adminEmail),
	}
}

func (req *SignupRequest) validate() error {
	req.Email = utils.NormalizeEmail(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if !strings.Contains(req.Email, "@") {
		return apperrors.Validation("a valid email is required")
	}
	if len(req.Password) < minPasswordLength {
		return apperrors.Validation("password must be at least %d characters", minPasswordLength)
	}
	if req.FullName == "" {
		return apperrors.Validation("full_name is required")
	}
	return nil
}

// Signup handles user registration and returns the new user with a token.
func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*models.User, string, error) {
	if err := req.validate(); err != nil {
		return nil, "", err
	}

	var existingUserID string
	err := database.Get(ctx, s.DB, &existingUserID, "SELECT id FROM users WHERE LOWER(email) = ?", req.Email)
	if err == nil {
		return nil, "", fmt.Errorf("%w: email already registered", apperrors.ErrConflict)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, "", err
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, "", err
	}

	now := s.Now().UTC()
	user := &models.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		FullName:  req.FullName,
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = database.Exec(ctx, s.DB, `
		INSERT INTO users (id, email, password_hash, full_name, phone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, hashedPassword, user.FullName, user.Phone, now, now)
	if err != nil {
		s.Log.Error("Failed to insert user", "error", err)
		return nil, "", err
	}

	user.Roles = s.effectiveRoles(user.Email, nil)
	token, err := s.Tokens.GenerateJWT(user.ID, user.Email, user.Roles)
	if err != nil {
		return nil, "", err
	}
	s.Log.Info("User registered", "user_id", user.ID)
	return user, token, nil
}

// Login authenticates a user
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	var user models.User
	err := database.Get(ctx, s.DB, &user, `
		SELECT id, email, password_hash, full_name, phone, created_at, updated_at
		FROM users WHERE LOWER(email) = ?`, utils.NormalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, utils.ErrInvalidCredentials)
	}
	if err != nil {
		return "", nil, err
	}
	if err := utils.CheckPassword(user.PasswordHash, password); err != nil {
		s.Log.Warn("Failed login attempt", "user_id", user.ID)
		return "", nil, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}

	roles, err := LoadRoles(ctx, s.DB, user.ID)
	if err != nil {
		return "", nil, err
	}
	user.Roles = s.effectiveRoles(user.Email, roles)

	token, err := s.Tokens.GenerateJWT(user.ID, user.Email, user.Roles)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}

func (s *AuthService) effectiveRoles(email string, roles []string) []string {
	if roles == nil {
		roles = []string{}
	}
	if s.AdminEmail != "" && email == s.AdminEmail && !models.HasRole(roles, models.RoleAdmin) {
		roles = append(roles, models.RoleAdmin)
	}
	return roles
}

// LoadRoles returns the platform roles of a user.
func LoadRoles(ctx context.Context, q sqlx.ExtContext, userID string) ([]string, error) {
	roles := []string{}
	err := database.Select(ctx, q, &roles, "SELECT role FROM user_roles WHERE user_id = ? ORDER BY role", userID)
	return roles, err
}
