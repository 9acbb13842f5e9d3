// Package channelService serves the owner inbox: one conversation per lease.
package channelService

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nikhil/doussel/internal/apperrors"
	"github.com/nikhil/doussel/internal/database"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/models"
)

type ChannelService struct {
	DB  *sqlx.DB
	Log *logger.Logger
	Now func() time.Time
}

func NewChannelService(db *sqlx.DB) *ChannelService {
	return &ChannelService{
		DB:  db,
		Log: logger.NewLogger("channel-service"),
		Now: time.Now,
	}
}

// ListConversations returns the owner's leases that have messages, the most
// recently active first, with the count of unread tenant messages.
func (cs *ChannelService) ListConversations(ctx context.Context, ownerID string, page, perPage int) (*models.PaginationResponse, error) {
	page, perPage, offset := models.Paginate(page, perPage)

	var totalCount int
	if err := database.Get(ctx, cs.DB, &totalCount, `
		SELECT COUNT(DISTINCT m.lease_id)
		FROM lease_messages m
		JOIN leases l ON l.id = m.lease_id
		WHERE l.owner_id = ?`, ownerID); err != nil {
		cs.Log.Error("Failed to count conversations", "error", err)
		return nil, err
	}

	conversations := []models.Conversation{}
	err := database.Select(ctx, cs.DB, &conversations, `
		SELECT l.id AS lease_id, l.tenant_name, l.property_address,
			(SELECT m2.content FROM lease_messages m2 WHERE m2.lease_id = l.id
				ORDER BY m2.created_at DESC LIMIT 1) AS last_message,
			MAX(m.created_at) AS last_message_at,
			SUM(CASE WHEN m.sender_type = ? AND m.read_at IS NULL THEN 1 ELSE 0 END) AS unread_count
		FROM leases l
		JOIN lease_messages m ON m.lease_id = l.id
		WHERE l.owner_id = ?
		GROUP BY l.id, l.tenant_name, l.property_address
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`,
		models.SenderTenant, ownerID, perPage, offset)
	if err != nil {
		cs.Log.Error("Failed to query conversations", "error", err)
		return nil, err
	}

	cs.Log.Debug("Conversations fetched from database", "owner_id", ownerID, "count", len(conversations))
	return &models.PaginationResponse{
		Items:      conversations,
		TotalCount: totalCount,
		Page:       page,
		PerPage:    perPage,
	}, nil
}

// MarkConversationRead stamps read_at on the unread tenant messages of a
// lease owned by ownerID and returns how many were updated.
func (cs *ChannelService) MarkConversationRead(ctx context.Context, ownerID, leaseID string) (int64, error) {
	var owner string
	if err := database.Get(ctx, cs.DB, &owner, "SELECT owner_id FROM leases WHERE id = ?", leaseID); err != nil {
		return 0, apperrors.FromSQL(err, "lease")
	}
	if owner != ownerID {
		cs.Log.Warn("Unauthorized conversation access attempt", "lease_id", leaseID, "user_id", ownerID)
		return 0, apperrors.NotFound("lease")
	}

	res, err := database.Exec(ctx, cs.DB,
		"UPDATE lease_messages SET read_at = ? WHERE lease_id = ? AND sender_type = ? AND read_at IS NULL",
		cs.Now().UTC(), leaseID, models.SenderTenant)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
