package messageService

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhil/doussel/internal/apperrors"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/models"
	notificationService "github.com/nikhil/doussel/internal/service/notifications"
)

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeLeases struct {
	perms []string
	deny  bool
}

func (f *fakeLeases) Authorize(_ context.Context, actorID, leaseID, perm string) (*models.Lease, error) {
	f.perms = append(f.perms, perm)
	if f.deny {
		return nil, apperrors.Forbidden("missing permission " + perm)
	}
	return &models.Lease{ID: leaseID, OwnerID: "owner-1"}, nil
}

type fakeHub struct {
	events map[string][]models.Event
}

func (f *fakeHub) BroadcastToLease(leaseID string, event models.Event) bool {
	if f.events == nil {
		f.events = map[string][]models.Event{}
	}
	f.events[leaseID] = append(f.events[leaseID], event)
	return true
}

type fakeNotifier struct {
	inputs []notificationService.Input
}

func (f *fakeNotifier) NotifyUser(_ context.Context, in notificationService.Input) (*models.Notification, error) {
	f.inputs = append(f.inputs, in)
	return &models.Notification{}, nil
}

func (f *fakeNotifier) NotifyAdmins(context.Context, notificationService.Input) (int, error) {
	return 0, nil
}

func newTestService(t *testing.T) (*MessageService, sqlmock.Sqlmock, *fakeLeases, *fakeHub, *fakeNotifier) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	leases, hub, notifier := &fakeLeases{}, &fakeHub{}, &fakeNotifier{}
	return &MessageService{
		DB:       sqlx.NewDb(db, "postgres"),
		Leases:   leases,
		Hub:      hub,
		Notifier: notifier,
		Log:      logger.NewNop(),
		Now:      func() time.Time { return fixedNow },
	}, mock, leases, hub, notifier
}

func TestSendOwnerMessage(t *testing.T) {
	ms, mock, leases, hub, notifier := newTestService(t)
	mock.ExpectExec("INSERT INTO lease_messages").
		WithArgs(sqlmock.AnyArg(), "lease-1", "owner", "owner-1", "Bonjour, la facture d'eau est arrivée", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	msg, err := ms.SendOwnerMessage(context.Background(), "owner-1", "lease-1", "  Bonjour, la facture d'eau est arrivée ")
	require.NoError(t, err)
	assert.Equal(t, models.SenderOwner, msg.SenderType)
	assert.Equal(t, []string{"messages.send"}, leases.perms)
	require.Len(t, hub.events["lease-1"], 1)
	assert.Equal(t, "message", hub.events["lease-1"][0].Type)
	assert.Empty(t, notifier.inputs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSendOwnerMessageForbidden(t *testing.T) {
	ms, _, leases, hub, _ := newTestService(t)
	leases.deny = true
	_, err := ms.SendOwnerMessage(context.Background(), "agent-9", "lease-1", "hello")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.Empty(t, hub.events)
}

func TestSendMessageValidation(t *testing.T) {
	ms, _, _, _, _ := newTestService(t)
	_, err := ms.SendOwnerMessage(context.Background(), "owner-1", "lease-1", "   ")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = ms.SendTenantMessage(context.Background(), &models.TenantSession{LeaseID: "lease-1"}, strings.Repeat("a", MaxContentLength+1))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = ms.SendTenantMessage(context.Background(), nil, "hello")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestSendTenantMessageNotifiesOwner(t *testing.T) {
	ms, mock, _, hub, notifier := newTestService(t)
	mock.ExpectExec("INSERT INTO lease_messages").
		WithArgs(sqlmock.AnyArg(), "lease-1", "tenant", nil, "La porte du garage est cassée", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	session := &models.TenantSession{LeaseID: "lease-1", OwnerID: "owner-1", TenantName: "Awa Ndiaye"}
	msg, err := ms.SendTenantMessage(context.Background(), session, "La porte du garage est cassée")
	require.NoError(t, err)
	assert.Nil(t, msg.SenderID)
	assert.Len(t, hub.events["lease-1"], 1)
	require.Len(t, notifier.inputs, 1)
	assert.Equal(t, "owner-1", notifier.inputs[0].UserID)
	assert.Equal(t, models.NotifyMessage, notifier.inputs[0].Type)
	assert.Equal(t, "Nouveau message de Awa Ndiaye", notifier.inputs[0].Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListOwnerMessages(t *testing.T) {
	ms, mock, leases, _, _ := newTestService(t)
	mock.ExpectQuery("FROM lease_messages WHERE lease_id").WithArgs("lease-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "lease_id", "sender_type", "sender_id", "content", "read_at", "created_at"}).
			AddRow("m1", "lease-1", "tenant", nil, "Bonjour", nil, fixedNow.Add(-time.Hour)).
			AddRow("m2", "lease-1", "owner", "owner-1", "Bonjour Awa", nil, fixedNow))

	messages, err := ms.ListOwnerMessages(context.Background(), "owner-1", "lease-1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, []string{"leases.view"}, leases.perms)
	require.NoError(t, mock.ExpectationsWereMet())
}
