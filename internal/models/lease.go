package models

import "time"

// Lease statuses
const (
	LeaseActive     = "active"
	LeasePending    = "pending"
	LeaseTerminated = "terminated"
)

// Tenant access log actions
const (
	AccessTokenGenerated        = "token_generated"
	AccessTokenValidated        = "token_validated"
	AccessTokenValidationFailed = "token_validation_failed"
	AccessIdentityVerified      = "identity_verified"
	AccessIdentityFailed        = "identity_verification_failed"
	AccessTokenRevoked          = "token_revoked"
	AccessSessionCreated        = "session_created"
)

type Lease struct {
	ID                   string     `db:"id" json:"id"`
	TeamID               *string    `db:"team_id" json:"team_id,omitempty"`
	OwnerID              string     `db:"owner_id" json:"owner_id"`
	PropertyID           *string    `db:"property_id" json:"property_id,omitempty"`
	TenantName           string     `db:"tenant_name" json:"tenant_name"`
	TenantEmail          string     `db:"tenant_email" json:"tenant_email"`
	TenantPhone          string     `db:"tenant_phone" json:"tenant_phone"`
	PropertyAddress      string     `db:"property_address" json:"property_address"`
	MonthlyAmount        int64      `db:"monthly_amount" json:"monthly_amount"`
	BillingDay           int        `db:"billing_day" json:"billing_day"`
	StartDate            time.Time  `db:"start_date" json:"start_date"`
	EndDate              *time.Time `db:"end_date" json:"end_date,omitempty"`
	Status               string     `db:"status" json:"status"`
	TenantAccessToken    *string    `db:"tenant_access_token" json:"-"`
	TenantTokenExpiresAt *time.Time `db:"tenant_token_expires_at" json:"tenant_token_expires_at,omitempty"`
	TenantTokenVerified  bool       `db:"tenant_token_verified" json:"tenant_token_verified"`
	TenantLastAccessAt   *time.Time `db:"tenant_last_access_at" json:"tenant_last_access_at,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// LeaseColumns is the select list matching Lease.
const LeaseColumns = `id, team_id, owner_id, property_id, tenant_name, tenant_email, tenant_phone,
	property_address, monthly_amount, billing_day, start_date, end_date, status, tenant_access_token,
	tenant_token_expires_at, tenant_token_verified, tenant_last_access_at, created_at, updated_at`

// EffectiveBillingDay falls back to the 5th when unset.
func (l *Lease) EffectiveBillingDay() int {
	if l.BillingDay < 1 {
		return 5
	}
	return l.BillingDay
}

type TenantAccessLog struct {
	ID            string    `db:"id" json:"id"`
	LeaseID       *string   `db:"lease_id" json:"lease_id,omitempty"`
	Action        string    `db:"action" json:"action"`
	IPAddress     *string   `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent     *string   `db:"user_agent" json:"user_agent,omitempty"`
	FailureReason *string   `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// TenantSession is what a validated magic link grants.
type TenantSession struct {
	LeaseID         string    `json:"lease_id"`
	OwnerID         string    `json:"-"`
	PropertyID      *string   `json:"property_id,omitempty"`
	TenantName      string    `json:"tenant_name"`
	TenantEmail     string    `json:"tenant_email,omitempty"`
	PropertyAddress string    `json:"property_address,omitempty"`
	Verified        bool      `json:"verified"`
	ExpiresAt       time.Time `json:"expires_at"`
}
