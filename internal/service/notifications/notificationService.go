package notificationService

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nikhil/doussel/internal/apperrors"
	"github.com/nikhil/doussel/internal/database"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/models"
)

// Pusher delivers realtime events; *models.Hub satisfies it.
type Pusher interface {
	SendToUser(userID string, event models.Event) bool
}

// Notifier is what other services need to alert users.
type Notifier interface {
	NotifyUser(ctx context.Context, n Input) (*models.Notification, error)
	NotifyAdmins(ctx context.Context, n Input) (int, error)
}

type NotificationService struct {
	DB         *sqlx.DB
	Hub        Pusher
	Log        *logger.Logger
	Now        func() time.Time
	AdminEmail string
}

// Input describes a notification to create. UserID is ignored by NotifyAdmins.
type Input struct {
	UserID       string
	Type         string
	Title        string
	Message      string
	ResourcePath string
}

func NewNotificationService(db *sqlx.DB, hub Pusher, adminEmail string) *NotificationService {
	return &NotificationService{
		DB:         db,
		Hub:        hub,
		Log:        logger.NewLogger("notification-service"),
		Now:        time.Now,
		AdminEmail: adminEmail,
	}
}

var validTypes = map[string]bool{
	models.NotifyInfo: true, models.NotifySuccess: true, models.NotifyWarning: true,
	models.NotifyError: true, models.NotifyPayment: true, models.NotifyMessage: true,
}

// NotifyUser stores a notification and pushes it to the user's open sockets.
func (ns *NotificationService) NotifyUser(ctx context.Context, in Input) (*models.Notification, error) {
	if in.UserID == "" || in.Title == "" {
		return nil, apperrors.Validation("notification needs a user and a title")
	}
	if in.Type == "" {
		in.Type = models.NotifyInfo
	}
	if !validTypes[in.Type] {
		return nil, apperrors.Validation("unknown notification type %q", in.Type)
	}

	n := &models.Notification{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Type:      in.Type,
		Title:     in.Title,
		Message:   in.Message,
		CreatedAt: ns.Now().UTC(),
	}
	if in.ResourcePath != "" {
		path := in.ResourcePath
		n.ResourcePath = &path
	}

	_, err := database.Exec(ctx, ns.DB, `
		INSERT INTO notifications (id, user_id, type, title, message, resource_path, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.ResourcePath, false, n.CreatedAt)
	if err != nil {
		ns.Log.Error("Failed to store notification", "error", err, "user_id", in.UserID)
		return nil, err
	}

	if ns.Hub != nil {
		ns.Hub.SendToUser(n.UserID, models.Event{Type: "notification", Payload: n})
	}
	return n, nil
}

// NotifyAdmins notifies every admin and superadmin. When nobody holds those
// roles the account matching the admin email is used instead.
func (ns *NotificationService) NotifyAdmins(ctx context.Context, in Input) (int, error) {
	var adminIDs []string
	err := database.Select(ctx, ns.DB, &adminIDs,
		"SELECT DISTINCT user_id FROM user_roles WHERE role IN (?, ?)",
		models.RoleAdmin, models.RoleSuperAdmin)
	if err != nil {
		return 0, err
	}
	if len(adminIDs) == 0 && ns.AdminEmail != "" {
		err = database.Select(ctx, ns.DB, &adminIDs,
			"SELECT id FROM users WHERE LOWER(email) = LOWER(?)", ns.AdminEmail)
		if err != nil {
			return 0, err
		}
	}
	if len(adminIDs) == 0 {
		ns.Log.Warn("No admin to notify", "title", in.Title)
		return 0, nil
	}

	sent := 0
	for _, id := range adminIDs {
		in.UserID = id
		if _, err := ns.NotifyUser(ctx, in); err != nil {
			ns.Log.Error("Failed to notify admin", "error", err, "admin_id", id)
			continue
		}
		sent++
	}
	return sent, nil
}

// List returns a page of the user's notifications, newest first.
func (ns *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, page, perPage int) (*models.PaginationResponse, error) {
	page, perPage, offset := models.Paginate(page, perPage)

	where := "user_id = ?"
	if unreadOnly {
		where += " AND is_read = FALSE"
	}

	var total int
	if err := database.Get(ctx, ns.DB, &total, "SELECT COUNT(*) FROM notifications WHERE "+where, userID); err != nil {
		return nil, err
	}

	items := []models.Notification{}
	err := database.Select(ctx, ns.DB, &items, `
		SELECT id, user_id, type, title, message, resource_path, is_read, created_at
		FROM notifications WHERE `+where+`
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, userID, perPage, offset)
	if err != nil {
		return nil, err
	}
	return &models.PaginationResponse{Items: items, TotalCount: total, Page: page, PerPage: perPage}, nil
}

// MarkRead marks one of the user's notifications as read.
func (ns *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	result, err := database.Exec(ctx, ns.DB,
		"UPDATE notifications SET is_read = TRUE WHERE id = ? AND user_id = ?", notificationID, userID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NotFound("notification")
	}
	return nil
}

// MarkAllRead returns how many notifications changed.
func (ns *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result, err := database.Exec(ctx, ns.DB,
		"UPDATE notifications SET is_read = TRUE WHERE user_id = ? AND is_read = FALSE", userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (ns *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := database.Get(ctx, ns.DB, &count,
		"SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = FALSE", userID)
	return count, err
}
