package models

import "time"

// Notification types
const (
	NotifyInfo    = "info"
	NotifySuccess = "success"
	NotifyWarning = "warning"
	NotifyError   = "error"
	NotifyPayment = "payment"
	NotifyMessage = "message"
)

type Notification struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	Type         string    `db:"type" json:"type"`
	Title        string    `db:"title" json:"title"`
	Message      string    `db:"message" json:"message"`
	ResourcePath *string   `db:"resource_path" json:"resource_path,omitempty"`
	IsRead       bool      `db:"is_read" json:"is_read"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
