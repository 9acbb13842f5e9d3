package channelService

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

func newTestService(t *testing.T) (*ChannelService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &ChannelService{
		DB:  sqlx.NewDb(db, "postgres"),
		Log: logger.NewNop(),
		Now: func() time.Time { return fixedNow },
	}, mock
}

func TestListConversations(t *testing.T) {
	cs, mock := newTestService(t)
	mock.ExpectQuery("SELECT COUNT\\(DISTINCT m.lease_id\\)").WithArgs("owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("FROM leases l JOIN lease_messages m").
		WithArgs("tenant", "owner-1", 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"lease_id", "tenant_name", "property_address", "last_message", "last_message_at", "unread_count"}).
			AddRow("lease-2", "Awa Ndiaye", "Sacré-Coeur 3", "Merci !", fixedNow, 2).
			AddRow("lease-1", "Moussa Fall", "Mermoz", "Bien reçu", fixedNow.Add(-24*time.Hour), 0))

	res, err := cs.ListConversations(context.Background(), "owner-1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalCount)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 20, res.PerPage)
	conversations := res.Items.([]models.Conversation)
	require.Len(t, conversations, 2)
	assert.Equal(t, "lease-2", conversations[0].LeaseID)
	assert.Equal(t, 2, conversations[0].UnreadCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkConversationRead(t *testing.T) {
	cs, mock := newTestService(t)
	mock.ExpectQuery("SELECT owner_id FROM leases").WithArgs("lease-1").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow("owner-1"))
	mock.ExpectExec("UPDATE lease_messages SET read_at").
		WithArgs(fixedNow, "lease-1", "tenant").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := cs.MarkConversationRead(context.Background(), "owner-1", "lease-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkConversationReadOtherOwner(t *testing.T) {
	cs, mock := newTestService(t)
	mock.ExpectQuery("SELECT owner_id FROM leases").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow("owner-2"))

	_, err := cs.MarkConversationRead(context.Background(), "owner-1", "lease-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
