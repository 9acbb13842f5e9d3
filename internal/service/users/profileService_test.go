package profileService

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhil/doussel/internal/apperrors"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/models"
)

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*ProfileService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &ProfileService{
		DB:  sqlx.NewDb(db, "postgres"),
		Log: logger.NewNop(),
		Now: func() time.Time { return fixedNow },
	}, mock
}

func TestGetProfile(t *testing.T) {
	ps, mock := newTestService(t)
	mock.ExpectQuery("FROM users WHERE id").WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name"}).AddRow("user-1", "awa@doussel.sn", "Awa Ndiaye"))
	mock.ExpectQuery("SELECT role FROM user_roles").WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("moderateur"))

	user, err := ps.GetProfile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Awa Ndiaye", user.FullName)
	assert.Equal(t, []string{"moderateur"}, user.Roles)
}

func TestGetProfileNotFound(t *testing.T) {
	ps, mock := newTestService(t)
	mock.ExpectQuery("FROM users WHERE id").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := ps.GetProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdateProfileRequiresName(t *testing.T) {
	ps, _ := newTestService(t)
	_, err := ps.UpdateProfile(context.Background(), "user-1", UpdateProfileRequest{FullName: "  "})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestUpdateProfile(t *testing.T) {
	ps, mock := newTestService(t)
	mock.ExpectExec("UPDATE users SET full_name").
		WithArgs("Awa Diop", "+221770000000", fixedNow, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM users WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "phone"}).AddRow("user-1", "Awa Diop", "+221770000000"))
	mock.ExpectQuery("SELECT role FROM user_roles").WillReturnRows(sqlmock.NewRows([]string{"role"}))

	user, err := ps.UpdateProfile(context.Background(), "user-1", UpdateProfileRequest{FullName: " Awa Diop ", Phone: "+221770000000"})
	require.NoError(t, err)
	assert.Equal(t, "Awa Diop", user.FullName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantRoleRequiresAdmin(t *testing.T) {
	ps, _ := newTestService(t)
	err := ps.GrantRole(context.Background(), "mod-1", []string{models.RoleModerateur},
		RoleChange{UserID: "user-2", Role: models.RoleAgent})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestOnlySuperadminGrantsSuperadmin(t *testing.T) {
	ps, _ := newTestService(t)
	err := ps.GrantRole(context.Background(), "admin-1", []string{models.RoleAdmin},
		RoleChange{UserID: "user-2", Role: models.RoleSuperAdmin})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestGrantRoleUnknownRole(t *testing.T) {
	ps, _ := newTestService(t)
	err := ps.GrantRole(context.Background(), "admin-1", []string{models.RoleAdmin},
		RoleChange{UserID: "user-2", Role: "owner"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestGrantRole(t *testing.T) {
	ps, mock := newTestService(t)
	mock.ExpectQuery("SELECT COUNT(.+) FROM users").WithArgs("user-2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT COUNT(.+) FROM user_roles").WithArgs("user-2", "agent").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO user_roles").
		WithArgs("user-2", "agent", "admin-1", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ps.GrantRole(context.Background(), "admin-1", []string{models.RoleAdmin},
		RoleChange{UserID: "user-2", Role: models.RoleAgent})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantRoleTwiceIsNoop(t *testing.T) {
	ps, mock := newTestService(t)
	mock.ExpectQuery("SELECT COUNT(.+) FROM users").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT COUNT(.+) FROM user_roles").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := ps.GrantRole(context.Background(), "admin-1", []string{models.RoleSuperAdmin},
		RoleChange{UserID: "user-2", Role: models.RoleAgent})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeOwnAdminRole(t *testing.T) {
	ps, _ := newTestService(t)
	err := ps.RevokeRole(context.Background(), "admin-1", []string{models.RoleAdmin},
		RoleChange{UserID: "admin-1", Role: models.RoleAdmin})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestRevokeMissingRole(t *testing.T) {
	ps, mock := newTestService(t)
	mock.ExpectExec("DELETE FROM user_roles").WillReturnResult(sqlmock.NewResult(0, 0))

	err := ps.RevokeRole(context.Background(), "admin-1", []string{models.RoleAdmin},
		RoleChange{UserID: "user-2", Role: models.RoleAgent})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListStaffGroupsRoles(t *testing.T) {
	ps, mock := newTestService(t)
	mock.ExpectQuery("FROM users u JOIN user_roles").WillReturnRows(
		sqlmock.NewRows([]string{"id", "email", "role"}).
			AddRow("u1", "a@doussel.sn", "admin").
			AddRow("u1", "a@doussel.sn", "agent").
			AddRow("u2", "b@doussel.sn", "moderateur"))

	users, err := ps.ListStaff(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, []string{"admin", "agent"}, users[0].Roles)
	assert.Equal(t, []string{"moderateur"}, users[1].Roles)
}

func TestHasPermission(t *testing.T) {
	assert.True(t, HasPermission([]string{models.RoleModerateur}, "admin.moderation.approve"))
	assert.False(t, HasPermission([]string{models.RoleAgent}, "admin.moderation.approve"))
	assert.False(t, HasPermission([]string{models.RoleAdmin}, "admin.roles.manage_superadmin"))
	assert.True(t, HasPermission([]string{models.RoleSuperAdmin}, "admin.roles.manage_superadmin"))
	assert.False(t, HasPermission([]string{models.RoleSuperAdmin}, "admin.unknown"))
}
