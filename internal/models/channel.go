package models

import "time"

// Conversation summarises the message thread of one lease for the owner inbox.
type Conversation struct {
	LeaseID         string     `db:"lease_id" json:"lease_id"`
	TenantName      string     `db:"tenant_name" json:"tenant_name"`
	PropertyAddress string     `db:"property_address" json:"property_address"`
	LastMessage     *string    `db:"last_message" json:"last_message,omitempty"`
	LastMessageAt   *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	UnreadCount     int        `db:"unread_count" json:"unread_count"`
}

type PaginationResponse struct {
	Items      interface{} `json:"items"`
	TotalCount int         `json:"total_count"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
}

// Paginate clamps page/perPage (default 20, max 100) and returns the offset.
func Paginate(page, perPage int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage, (page - 1) * perPage
}
