package models

import "time"

// Message senders
const (
	SenderOwner  = "owner"
	SenderTenant = "tenant"
)

// LeaseMessage is one message of the owner/tenant conversation of a lease.
type LeaseMessage struct {
	ID         string     `db:"id" json:"id"`
	LeaseID    string     `db:"lease_id" json:"lease_id"`
	SenderType string     `db:"sender_type" json:"sender_type"`
	SenderID   *string    `db:"sender_id" json:"sender_id,omitempty"`
	Content    string     `db:"content" json:"content"`
	ReadAt     *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}
