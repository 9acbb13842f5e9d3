package notificationService

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

type fakePusher struct {
	events map[string][]models.Event
}

func (f *fakePusher) SendToUser(userID string, event models.Event) bool {
	if f.events == nil {
		f.events = map[string][]models.Event{}
	}
	f.events[userID] = append(f.events[userID], event)
	return true
}

func newTestService(t *testing.T) (*NotificationService, sqlmock.Sqlmock, *fakePusher) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	pusher := &fakePusher{}
	return &NotificationService{
		DB:         sqlx.NewDb(db, "postgres"),
		Hub:        pusher,
		Log:        logger.NewNop(),
		Now:        func() time.Time { return fixedNow },
		AdminEmail: "admin@doussel.sn",
	}, mock, pusher
}

func TestNotifyUserStoresAndPushes(t *testing.T) {
	ns, mock, pusher := newTestService(t)
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(sqlmock.AnyArg(), "owner-1", "payment", "Paiement reçu", "50 000 FCFA", sqlmock.AnyArg(), false, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := ns.NotifyUser(context.Background(), Input{
		UserID: "owner-1", Type: models.NotifyPayment, Title: "Paiement reçu",
		Message: "50 000 FCFA", ResourcePath: "/leases/l1",
	})
	require.NoError(t, err)
	require.NotNil(t, n.ResourcePath)
	assert.Equal(t, "/leases/l1", *n.ResourcePath)
	require.Len(t, pusher.events["owner-1"], 1)
	assert.Equal(t, "notification", pusher.events["owner-1"][0].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifyUserDefaultsToInfo(t *testing.T) {
	ns, mock, _ := newTestService(t)
	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := ns.NotifyUser(context.Background(), Input{UserID: "u1", Title: "Bienvenue"})
	require.NoError(t, err)
	assert.Equal(t, models.NotifyInfo, n.Type)
}

func TestNotifyUserRejectsUnknownType(t *testing.T) {
	ns, _, _ := newTestService(t)
	_, err := ns.NotifyUser(context.Background(), Input{UserID: "u1", Title: "x", Type: "urgent"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestNotifyAdmins(t *testing.T) {
	ns, mock, pusher := newTestService(t)
	mock.ExpectQuery("SELECT DISTINCT user_id FROM user_roles").WithArgs("admin", "superadmin").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("a1").AddRow("a2"))
	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(0, 1))

	sent, err := ns.NotifyAdmins(context.Background(), Input{Title: "Nouvelle annonce à modérer"})
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Len(t, pusher.events, 2)
}

func TestNotifyAdminsFallsBackToAdminEmail(t *testing.T) {
	ns, mock, _ := newTestService(t)
	mock.ExpectQuery("SELECT DISTINCT user_id FROM user_roles").WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	mock.ExpectQuery("SELECT id FROM users").WithArgs("admin@doussel.sn").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("root"))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(sqlmock.AnyArg(), "root", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), false, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sent, err := ns.NotifyAdmins(context.Background(), Input{Title: "Nouvelle annonce à modérer"})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListUnreadOnly(t *testing.T) {
	ns, mock, _ := newTestService(t)
	mock.ExpectQuery("SELECT COUNT(.+) FROM notifications WHERE user_id = \\$1 AND is_read = FALSE").
		WithArgs("u1").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("FROM notifications WHERE user_id").
		WithArgs("u1", 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "type", "title"}).AddRow("n1", "u1", "info", "x"))

	res, err := ns.List(context.Background(), "u1", true, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalCount)
	assert.Equal(t, 1, res.Page)
	assert.Len(t, res.Items, 1)
}

func TestMarkReadNotFound(t *testing.T) {
	ns, mock, _ := newTestService(t)
	mock.ExpectExec("UPDATE notifications SET is_read").WithArgs("n9", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ns.MarkRead(context.Background(), "u1", "n9")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMarkAllRead(t *testing.T) {
	ns, mock, _ := newTestService(t)
	mock.ExpectExec("UPDATE notifications SET is_read").WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := ns.MarkAllRead(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
