package messageService

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nikhil/doussel/internal/apperrors"
	"github.com/nikhil/doussel/internal/database"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/models"
	notificationService "github.com/nikhil/doussel/internal/service/notifications"
	teamService "github.com/nikhil/doussel/internal/service/team"
	"github.com/nikhil/doussel/pkg/utils"
)

// MaxContentLength caps a single message, in characters.
const MaxContentLength = 2000

// LeaseAuthorizer loads a lease the actor may act on.
type LeaseAuthorizer interface {
	Authorize(ctx context.Context, actorID, leaseID, perm string) (*models.Lease, error)
}

// Broadcaster pushes realtime events to the connections of a lease.
type Broadcaster interface {
	BroadcastToLease(leaseID string, event models.Event) bool
}

type MessageService struct {
	DB       *sqlx.DB
	Leases   LeaseAuthorizer
	Hub      Broadcaster
	Notifier notificationService.Notifier
	Log      *logger.Logger
	Now      func() time.Time
}

func NewMessageService(db *sqlx.DB, leases LeaseAuthorizer, hub Broadcaster, notifier notificationService.Notifier) *MessageService {
	return &MessageService{
		DB:       db,
		Leases:   leases,
		Hub:      hub,
		Notifier: notifier,
		Log:      logger.NewLogger("message-service"),
		Now:      time.Now,
	}
}

func cleanContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperrors.Validation("message content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", apperrors.Validation("message is longer than %d characters", MaxContentLength)
	}
	return content, nil
}

// SendOwnerMessage posts a message from the owner side of a lease. Team
// members need the messages.send permission.
func (ms *MessageService) SendOwnerMessage(ctx context.Context, actorID, leaseID, content string) (*models.LeaseMessage, error) {
	content, err := cleanContent(content)
	if err != nil {
		return nil, err
	}
	if _, err := ms.Leases.Authorize(ctx, actorID, leaseID, teamService.PermMessagesSend); err != nil {
		return nil, err
	}
	sender := actorID
	return ms.save(ctx, leaseID, models.SenderOwner, &sender, content)
}

// SendTenantMessage posts a message from a magic-link session and tells the
// owner about it.
func (ms *MessageService) SendTenantMessage(ctx context.Context, session *models.TenantSession, content string) (*models.LeaseMessage, error) {
	if session == nil || session.LeaseID == "" {
		return nil, fmt.Errorf("%w: tenant session required", apperrors.ErrUnauthorized)
	}
	content, err := cleanContent(content)
	if err != nil {
		return nil, err
	}
	msg, err := ms.save(ctx, session.LeaseID, models.SenderTenant, nil, content)
	if err != nil {
		return nil, err
	}

	if session.OwnerID != "" {
		if _, err := ms.Notifier.NotifyUser(ctx, notificationService.Input{
			UserID:       session.OwnerID,
			Type:         models.NotifyMessage,
			Title:        "Nouveau message de " + session.TenantName,
			Message:      utils.Truncate(content, 120),
			ResourcePath: "/messages/" + session.LeaseID,
		}); err != nil {
			ms.Log.Warn("Failed to notify owner of tenant message", "error", err, "lease_id", session.LeaseID)
		}
	}
	return msg, nil
}

func (ms *MessageService) save(ctx context.Context, leaseID, senderType string, senderID *string, content string) (*models.LeaseMessage, error) {
	msg := &models.LeaseMessage{
		ID:         uuid.NewString(),
		LeaseID:    leaseID,
		SenderType: senderType,
		SenderID:   senderID,
		Content:    content,
		CreatedAt:  ms.Now().UTC(),
	}
	if _, err := database.Exec(ctx, ms.DB, `
		INSERT INTO lease_messages (id, lease_id, sender_type, sender_id, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.LeaseID, msg.SenderType, msg.SenderID, msg.Content, msg.CreatedAt); err != nil {
		ms.Log.Error("Failed to insert message", "error", err, "lease_id", leaseID)
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	ms.Hub.BroadcastToLease(leaseID, models.Event{Type: "message", Payload: msg})
	ms.Log.Info("Message sent", "lease_id", leaseID, "sender_type", senderType)
	return msg, nil
}

// ListOwnerMessages returns the thread of a lease for an owner or team member.
func (ms *MessageService) ListOwnerMessages(ctx context.Context, actorID, leaseID string) ([]models.LeaseMessage, error) {
	if _, err := ms.Leases.Authorize(ctx, actorID, leaseID, teamService.PermLeasesView); err != nil {
		return nil, err
	}
	return ms.ListMessages(ctx, leaseID)
}

// ListMessages returns the thread of a lease, oldest first. Callers check access.
func (ms *MessageService) ListMessages(ctx context.Context, leaseID string) ([]models.LeaseMessage, error) {
	messages := []models.LeaseMessage{}
	err := database.Select(ctx, ms.DB, &messages, `
		SELECT id, lease_id, sender_type, sender_id, content, read_at, created_at
		FROM lease_messages WHERE lease_id = ? ORDER BY created_at ASC`, leaseID)
	return messages, err
}
