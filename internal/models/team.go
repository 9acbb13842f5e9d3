package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Team roles
const (
	TeamRoleOwner      = "owner"
	TeamRoleManager    = "manager"
	TeamRoleAccountant = "accountant"
	TeamRoleAgent      = "agent"
)

// Member statuses
const (
	MemberActive    = "active"
	MemberSuspended = "suspended"
	MemberInvited   = "invited"
	MemberRemoved   = "removed"
	MemberLeft      = "left"
)

// Team represents a team entity
type Team struct {
	ID                string    `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Slug              string    `db:"slug" json:"slug"`
	Description       string    `db:"description" json:"description"`
	SubscriptionTier  string    `db:"subscription_tier" json:"subscription_tier"`
	DefaultBillingDay int       `db:"default_billing_day" json:"default_billing_day"`
	Currency          string    `db:"currency" json:"currency"`
	Status            string    `db:"status" json:"status"`
	CreatedBy         string    `db:"created_by" json:"created_by"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
	// Role of the requesting user, filled by membership queries.
	Role string `db:"role" json:"role,omitempty"`
}

// TeamMember represents a team membership with role
type TeamMember struct {
	ID        string     `db:"id" json:"id"`
	TeamID    string     `db:"team_id" json:"team_id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Role      string     `db:"role" json:"role"`
	Status    string     `db:"status" json:"status"`
	InvitedBy *string    `db:"invited_by" json:"invited_by,omitempty"`
	JoinedAt  *time.Time `db:"joined_at" json:"joined_at,omitempty"`
	Email     string     `db:"email" json:"email,omitempty"`
	FullName  string     `db:"full_name" json:"full_name,omitempty"`
}

// TeamInvitation is a pending offer to join a team.
type TeamInvitation struct {
	ID         string     `db:"id" json:"id"`
	TeamID     string     `db:"team_id" json:"team_id"`
	Email      string     `db:"email" json:"email"`
	Role       string     `db:"role" json:"role"`
	Token      string     `db:"token" json:"token"`
	Status     string     `db:"status" json:"status"`
	InvitedBy  string     `db:"invited_by" json:"invited_by"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	AcceptedAt *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

type AuditLog struct {
	ID           string         `db:"id" json:"id"`
	TeamID       string         `db:"team_id" json:"team_id"`
	UserID       *string        `db:"user_id" json:"user_id,omitempty"`
	Action       string         `db:"action" json:"action"`
	ResourceType *string        `db:"resource_type" json:"resource_type,omitempty"`
	ResourceID   *string        `db:"resource_id" json:"resource_id,omitempty"`
	NewData      types.JSONText `db:"new_data" json:"new_data,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
