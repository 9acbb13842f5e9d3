package propertyService

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhil/doussel/internal/apperrors"
	"github.com/nikhil/doussel/internal/cache"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/models"
	notificationService "github.com/nikhil/doussel/internal/service/notifications"
)

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeTeams struct {
	tier      string
	forbidden bool
}

func (f *fakeTeams) Authorize(_ context.Context, teamID, userID, perm string) (string, error) {
	if f.forbidden {
		return "", apperrors.Forbidden("missing permission " + perm)
	}
	return models.TeamRoleOwner, nil
}

func (f *fakeTeams) Load(_ context.Context, teamID string) (*models.Team, error) {
	return &models.Team{ID: teamID, SubscriptionTier: f.tier}, nil
}

type fakeNotifier struct {
	users  []notificationService.Input
	admins []notificationService.Input
}

func (f *fakeNotifier) NotifyUser(_ context.Context, in notificationService.Input) (*models.Notification, error) {
	f.users = append(f.users, in)
	return &models.Notification{UserID: in.UserID}, nil
}

func (f *fakeNotifier) NotifyAdmins(_ context.Context, in notificationService.Input) (int, error) {
	f.admins = append(f.admins, in)
	return 1, nil
}

func newTestService(t *testing.T, c cache.CacheInterface) (*PropertyService, sqlmock.Sqlmock, *fakeNotifier, *fakeTeams) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	if c == nil {
		c = cache.NoopCache{}
	}
	notifier := &fakeNotifier{}
	teams := &fakeTeams{tier: "starter"}
	return &PropertyService{
		DB:       sqlx.NewDb(db, "postgres"),
		Cache:    c,
		CacheTTL: time.Minute,
		Teams:    teams,
		Notifier: notifier,
		Log:      logger.NewNop(),
		Now:      func() time.Time { return fixedNow },
	}, mock, notifier, teams
}

func validInput() PropertyInput {
	return PropertyInput{
		Title:    "Appartement F3 Plateau",
		Category: models.CategoryRent,
		Price:    350000,
		City:     "Dakar",
		District: "Plateau",
		Rooms:    3,
	}
}

func propertyRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "owner_id", "title", "city", "validation_status", "images"})
}

func TestCreatePropertyValidation(t *testing.T) {
	ps, _, _, _ := newTestService(t, nil)
	cases := map[string]func(*PropertyInput){
		"title":    func(in *PropertyInput) { in.Title = " " },
		"price":    func(in *PropertyInput) { in.Price = 0 },
		"city":     func(in *PropertyInput) { in.City = "" },
		"category": func(in *PropertyInput) { in.Category = "viager" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			mutate(&in)
			_, err := ps.CreateProperty(context.Background(), "owner-1", in)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}

func TestCreatePropertyNotifiesAdmins(t *testing.T) {
	ps, mock, notifier, _ := newTestService(t, nil)
	mock.ExpectExec("INSERT INTO properties").
		WithArgs(sqlmock.AnyArg(), "owner-1", nil, "Appartement F3 Plateau", "", "location", "", int64(350000),
			"Dakar", "Plateau", "", 0, 3, 0, "[]", "pending", 0, fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	p, err := ps.CreateProperty(context.Background(), "owner-1", validInput())
	require.NoError(t, err)
	assert.Equal(t, models.ValidationPending, p.ValidationStatus)
	require.Len(t, notifier.admins, 1)
	assert.Equal(t, "Nouvelle annonce à modérer", notifier.admins[0].Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePropertyTeamQuota(t *testing.T) {
	ps, mock, _, _ := newTestService(t, nil)
	mock.ExpectQuery("SELECT COUNT(.+) FROM properties WHERE team_id").WithArgs("team-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(15))

	in := validInput()
	team := "team-1"
	in.TeamID = &team
	_, err := ps.CreateProperty(context.Background(), "owner-1", in)
	assert.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
}

func TestCreatePropertyTeamForbidden(t *testing.T) {
	ps, _, _, teams := newTestService(t, nil)
	teams.forbidden = true

	in := validInput()
	team := "team-1"
	in.TeamID = &team
	_, err := ps.CreateProperty(context.Background(), "accountant-1", in)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestGetPropertyHidesPendingFromPublic(t *testing.T) {
	ps, mock, _, _ := newTestService(t, nil)
	mock.ExpectQuery("FROM properties WHERE id").WithArgs("p1").
		WillReturnRows(propertyRows().AddRow("p1", "owner-1", "Villa", "Saly", "pending", "[]"))

	_, err := ps.GetProperty(context.Background(), "visitor", nil, "p1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetPropertyVisibleToModerator(t *testing.T) {
	ps, mock, _, _ := newTestService(t, nil)
	mock.ExpectQuery("FROM properties WHERE id").
		WillReturnRows(propertyRows().AddRow("p1", "owner-1", "Villa", "Saly", "pending", "[]"))

	p, err := ps.GetProperty(context.Background(), "mod-1", []string{models.RoleModerateur}, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Villa", p.Title)
}

func TestGetPropertyUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c := cache.NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:")
	ps, mock, _, _ := newTestService(t, c)
	mock.ExpectQuery("FROM properties WHERE id").
		WillReturnRows(propertyRows().AddRow("p1", "owner-1", "Villa", "Saly", "approved", "[]"))

	_, err := ps.GetProperty(context.Background(), "", nil, "p1")
	require.NoError(t, err)
	// second read is served from redis; sqlmock would fail on an unexpected query
	p, err := ps.GetProperty(context.Background(), "", nil, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Saly", p.City)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePropertyOwnerOnly(t *testing.T) {
	ps, mock, _, _ := newTestService(t, nil)
	mock.ExpectQuery("FROM properties WHERE id").
		WillReturnRows(propertyRows().AddRow("p1", "owner-1", "Villa", "Saly", "approved", "[]"))

	_, err := ps.UpdateProperty(context.Background(), "intruder", "p1", validInput())
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestUpdatePropertyReentersModeration(t *testing.T) {
	mr := miniredis.RunT(t)
	c := cache.NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:")
	ps, mock, _, _ := newTestService(t, c)
	mock.ExpectQuery("FROM properties WHERE id").
		WillReturnRows(propertyRows().AddRow("p1", "owner-1", "Villa", "Saly", "approved", "[]"))
	mock.ExpectExec("UPDATE properties SET title").WillReturnResult(sqlmock.NewResult(0, 1))

	p, err := ps.UpdateProperty(context.Background(), "owner-1", "p1", validInput())
	require.NoError(t, err)
	assert.Equal(t, models.ValidationPending, p.ValidationStatus)
	assert.False(t, mr.Exists("test:property:p1"))
}

func TestDeletePropertyByAdmin(t *testing.T) {
	ps, mock, _, _ := newTestService(t, nil)
	mock.ExpectQuery("FROM properties WHERE id").
		WillReturnRows(propertyRows().AddRow("p1", "owner-1", "Villa", "Saly", "approved", "[]"))
	mock.ExpectExec("DELETE FROM properties").WithArgs("p1").WillReturnResult(sqlmock.NewResult(0, 1))

	err := ps.DeleteProperty(context.Background(), "admin-1", []string{models.RoleAdmin}, "p1")
	require.NoError(t, err)
}

func TestDeletePropertyForbidden(t *testing.T) {
	ps, mock, _, _ := newTestService(t, nil)
	mock.ExpectQuery("FROM properties WHERE id").
		WillReturnRows(propertyRows().AddRow("p1", "owner-1", "Villa", "Saly", "approved", "[]"))

	err := ps.DeleteProperty(context.Background(), "mod-1", []string{models.RoleModerateur}, "p1")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestSearchProperties(t *testing.T) {
	ps, mock, _, _ := newTestService(t, nil)
	mock.ExpectQuery("SELECT COUNT(.+) FROM properties WHERE validation_status").
		WithArgs("approved", "location", "dakar", int64(100000), 3, "%plateau%", "%plateau%", "%plateau%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("ORDER BY price ASC").
		WithArgs("approved", "location", "dakar", int64(100000), 3, "%plateau%", "%plateau%", "%plateau%", 20, 0).
		WillReturnRows(propertyRows().AddRow("p1", "owner-1", "F3 Plateau", "Dakar", "approved", "[]"))

	res, err := ps.SearchProperties(context.Background(), SearchFilter{
		Category: models.CategoryRent, City: " Dakar ", MinPrice: 100000, MinRooms: 3, Q: "Plateau", Sort: "price_asc",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalCount)
	assert.Len(t, res.Items, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchPropertiesEscapesWildcards(t *testing.T) {
	ps, mock, _, _ := newTestService(t, nil)
	like := "%100!% vue!_mer%"
	mock.ExpectQuery("LOWER\\(title\\) LIKE \\$2 ESCAPE '!' OR LOWER\\(city\\) LIKE \\$3 ESCAPE '!'").
		WithArgs("approved", like, like, like).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("ORDER BY created_at DESC").
		WithArgs("approved", like, like, like, 20, 0).
		WillReturnRows(propertyRows())

	res, err := ps.SearchProperties(context.Background(), SearchFilter{Q: "100% Vue_Mer"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchPropertiesRejectsUnknownSort(t *testing.T) {
	ps, _, _, _ := newTestService(t, nil)
	_, err := ps.SearchProperties(context.Background(), SearchFilter{Sort: "random"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestModerateRejectRequiresReason(t *testing.T) {
	ps, _, _, _ := newTestService(t, nil)
	_, err := ps.ModerateProperty(context.Background(), "mod-1", []string{models.RoleModerateur}, "p1", DecisionReject, " ")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestModerateRequiresModerator(t *testing.T) {
	ps, _, _, _ := newTestService(t, nil)
	_, err := ps.ModerateProperty(context.Background(), "agent-1", []string{models.RoleAgent}, "p1", DecisionApprove, "")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestModerateRejectNotifiesOwner(t *testing.T) {
	ps, mock, notifier, _ := newTestService(t, nil)
	mock.ExpectQuery("FROM properties WHERE id").
		WillReturnRows(propertyRows().AddRow("p1", "owner-1", "Villa", "Saly", "pending", "[]"))
	mock.ExpectExec("UPDATE properties SET validation_status").
		WithArgs("rejected", "Photos floues", fixedNow, "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	p, err := ps.ModerateProperty(context.Background(), "mod-1", []string{models.RoleModerateur}, "p1", DecisionReject, "Photos floues")
	require.NoError(t, err)
	require.NotNil(t, p.RejectionReason)
	require.Len(t, notifier.users, 1)
	assert.Equal(t, "owner-1", notifier.users[0].UserID)
	assert.Equal(t, models.NotifyWarning, notifier.users[0].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPendingModeration(t *testing.T) {
	ps, mock, _, _ := newTestService(t, nil)
	mock.ExpectQuery("WHERE validation_status = \\$1 ORDER BY created_at ASC").WithArgs("pending").
		WillReturnRows(propertyRows().AddRow("p1", "owner-1", "Villa", "Saly", "pending", "[]"))

	items, err := ps.ListPendingModeration(context.Background(), []string{models.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
