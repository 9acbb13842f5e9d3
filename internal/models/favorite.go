package models

import "time"

type Favorite struct {
	UserID     string    `db:"user_id" json:"user_id"`
	PropertyID string    `db:"property_id" json:"property_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// SyncResult is returned by a favorites sync.
type SyncResult struct {
	Success     bool `json:"success"`
	Synced      int  `json:"synced"`
	Duplicates  int  `json:"duplicates"`
	Trimmed     int  `json:"trimmed"`
	RateLimited bool `json:"rate_limited"`
	// Seconds until the next sync is accepted, when rate limited.
	RetryAfter int    `json:"retry_after,omitempty"`
	Error      string `json:"error,omitempty"`
}
