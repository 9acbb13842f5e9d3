package profileService

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nikhil/doussel/internal/apperrors"
	"github.com/nikhil/doussel/internal/database"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/models"
	auth "github.com/nikhil/doussel/internal/service/auth"
)

type ProfileService struct {
	DB  *sqlx.DB
	Log *logger.Logger
	Now func() time.Time
}

// UpdateProfileRequest is the payload of PUT /user/profile.
type UpdateProfileRequest struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

// RoleChange is the payload of the admin role endpoints.
type RoleChange struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func NewProfileService(db *sqlx.DB) *ProfileService {
	return &ProfileService{
		DB:  db,
		Log: logger.NewLogger("profile-service"),
		Now: time.Now,
	}
}

// GetProfile returns the user with their platform roles.
func (ps *ProfileService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := database.Get(ctx, ps.DB, &user,
		"SELECT id, email, full_name, phone, created_at, updated_at FROM users WHERE id = ?", userID)
	if err != nil {
		return nil, apperrors.FromSQL(err, "user")
	}
	roles, err := auth.LoadRoles(ctx, ps.DB, userID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles
	return &user, nil
}

// UpdateProfile changes the display name and phone number.
func (ps *ProfileService) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*models.User, error) {
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return nil, apperrors.Validation("full_name is required")
	}
	result, err := database.Exec(ctx, ps.DB,
		"UPDATE users SET full_name = ?, phone = ?, updated_at = ? WHERE id = ?",
		name, strings.TrimSpace(req.Phone), ps.Now().UTC(), userID)
	if err != nil {
		ps.Log.Error("Failed to update profile", "error", err, "user_id", userID)
		return nil, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, apperrors.NotFound("user")
	}
	return ps.GetProfile(ctx, userID)
}

func validPlatformRole(role string) bool {
	for _, r := range models.PlatformRoles {
		if r == role {
			return true
		}
	}
	return false
}

func (ps *ProfileService) checkRoleChange(actorRoles []string, change RoleChange) error {
	if !validPlatformRole(change.Role) {
		return apperrors.Validation("unknown role %q", change.Role)
	}
	if change.UserID == "" {
		return apperrors.Validation("user_id is required")
	}
	if !HasPermission(actorRoles, "admin.roles.manage") {
		return apperrors.Forbidden("only admins can manage roles")
	}
	if change.Role == models.RoleSuperAdmin && !HasPermission(actorRoles, "admin.roles.manage_superadmin") {
		return apperrors.Forbidden("only a superadmin can manage the superadmin role")
	}
	return nil
}

// GrantRole gives a platform role to a user. Granting twice is a no-op.
func (ps *ProfileService) GrantRole(ctx context.Context, actorID string, actorRoles []string, change RoleChange) error {
	if err := ps.checkRoleChange(actorRoles, change); err != nil {
		return err
	}

	var exists int
	if err := database.Get(ctx, ps.DB, &exists, "SELECT COUNT(*) FROM users WHERE id = ?", change.UserID); err != nil {
		return err
	}
	if exists == 0 {
		return apperrors.NotFound("user")
	}

	var has int
	if err := database.Get(ctx, ps.DB, &has,
		"SELECT COUNT(*) FROM user_roles WHERE user_id = ? AND role = ?", change.UserID, change.Role); err != nil {
		return err
	}
	if has > 0 {
		return nil
	}

	if _, err := database.Exec(ctx, ps.DB,
		"INSERT INTO user_roles (user_id, role, granted_by, created_at) VALUES (?, ?, ?, ?)",
		change.UserID, change.Role, actorID, ps.Now().UTC()); err != nil {
		ps.Log.Error("Failed to grant role", "error", err)
		return err
	}
	ps.Log.Audit("Role granted", "user_id", change.UserID, "role", change.Role, "by", actorID)
	return nil
}

// RevokeRole removes a platform role. Users cannot revoke their own admin rights.
func (ps *ProfileService) RevokeRole(ctx context.Context, actorID string, actorRoles []string, change RoleChange) error {
	if err := ps.checkRoleChange(actorRoles, change); err != nil {
		return err
	}
	if change.UserID == actorID && (change.Role == models.RoleAdmin || change.Role == models.RoleSuperAdmin) {
		return apperrors.Forbidden("you cannot revoke your own admin role")
	}
	result, err := database.Exec(ctx, ps.DB,
		"DELETE FROM user_roles WHERE user_id = ? AND role = ?", change.UserID, change.Role)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NotFound("role assignment")
	}
	ps.Log.Audit("Role revoked", "user_id", change.UserID, "role", change.Role, "by", actorID)
	return nil
}

// ListStaff returns every user holding at least one platform role.
func (ps *ProfileService) ListStaff(ctx context.Context) ([]models.User, error) {
	type row struct {
		models.User
		Role string `db:"role"`
	}
	var rows []row
	err := database.Select(ctx, ps.DB, &rows, `
		SELECT u.id, u.email, u.full_name, u.phone, u.created_at, u.updated_at, r.role
		FROM users u JOIN user_roles r ON r.user_id = u.id
		ORDER BY u.email, r.role`)
	if err != nil {
		return nil, err
	}

	users := []models.User{}
	index := map[string]int{}
	for _, r := range rows {
		i, ok := index[r.ID]
		if !ok {
			u := r.User
			u.Roles = []string{}
			users = append(users, u)
			i = len(users) - 1
			index[r.ID] = i
		}
		users[i].Roles = append(users[i].Roles, r.Role)
	}
	return users, nil
}
