package leaseService

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhil/doussel/internal/apperrors"
	"github.com/nikhil/doussel/internal/database"
	"github.com/nikhil/doussel/internal/mailer"
	"github.com/nikhil/doussel/internal/models"
	teamService "github.com/nikhil/doussel/internal/service/team"
	"github.com/nikhil/doussel/pkg/utils"
)

// Magic link settings
const (
	TokenBytes          = 32
	TokenTTL            = 7 * 24 * time.Hour
	MaxIdentityFailures = 3
	maxUserAgentLength  = 500
)

var ErrInvalidToken = fmt.Errorf("%w: invalid or expired access link", apperrors.ErrUnauthorized)

// ClientInfo identifies the caller in tenant access logs.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// MagicLink is returned to the owner after generating an access link.
type MagicLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	Emailed   bool      `json:"emailed"`
}

// TenantDashboard is what a verified tenant sees.
type TenantDashboard struct {
	Lease        *models.Lease              `json:"lease"`
	Transactions []models.RentalTransaction `json:"transactions"`
}

func optional(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// logAccess records a tenant access event. Failures are only logged.
func (ls *LeaseService) logAccess(ctx context.Context, leaseID *string, action string, client ClientInfo, reason string) {
	var agent interface{}
	if client.UserAgent != "" {
		agent = utils.Truncate(client.UserAgent, maxUserAgentLength)
	}
	var lease interface{}
	if leaseID != nil {
		lease = *leaseID
	}
	_, err := database.Exec(ctx, ls.DB, `
		INSERT INTO tenant_access_logs (id, lease_id, action, ip_address, user_agent, failure_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), lease, action, optional(client.IPAddress), agent, optional(reason), ls.Now().UTC())
	if err != nil {
		ls.Log.Warn("Failed to write tenant access log", "error", err, "action", action)
	}
}

// GenerateAccessToken issues a new magic link for the tenant of a lease.
// Any previous link stops working. The raw token only leaves the service
// inside the returned URL and the tenant email.
func (ls *LeaseService) GenerateAccessToken(ctx context.Context, actorID, leaseID string, client ClientInfo) (*MagicLink, error) {
	lease, err := ls.Authorize(ctx, actorID, leaseID, teamService.PermLeasesEdit)
	if err != nil {
		return nil, err
	}
	if lease.Status != models.LeaseActive {
		return nil, apperrors.Validation("access links can only be sent for active leases")
	}

	raw, err := utils.RandomToken(TokenBytes)
	if err != nil {
		return nil, err
	}
	now := ls.Now().UTC()
	expires := now.Add(TokenTTL)
	if _, err := database.Exec(ctx, ls.DB, `
		UPDATE leases SET tenant_access_token = ?, tenant_token_expires_at = ?, tenant_token_verified = ?, updated_at = ?
		WHERE id = ?`, utils.SHA256Hex(raw), expires, false, now, leaseID); err != nil {
		ls.Log.Error("Failed to store tenant token", "error", err, "lease_id", leaseID)
		return nil, err
	}
	ls.logAccess(ctx, &lease.ID, models.AccessTokenGenerated, client, "")

	link := &MagicLink{URL: ls.AppURL + "/locataire?token=" + raw, ExpiresAt: expires}
	if lease.TenantEmail != "" {
		err := ls.Mailer.Send(ctx, mailer.Email{
			To:       lease.TenantEmail,
			Subject:  "Accédez à votre espace locataire",
			Template: "tenant_magic_link",
			Data: map[string]string{
				"tenant_name":      lease.TenantName,
				"property_address": lease.PropertyAddress,
				"link":             link.URL,
				"expires_at":       expires.Format(dateLayout),
			},
		})
		if err != nil {
			ls.Log.Warn("Failed to email magic link", "error", err, "lease_id", leaseID)
		} else {
			link.Emailed = true
		}
	}
	ls.Log.Info("Tenant token generated", "lease_id", leaseID)
	return link, nil
}

// ValidateToken resolves a raw token to a tenant session. The token must
// match an active lease and be unexpired.
func (ls *LeaseService) ValidateToken(ctx context.Context, raw string, client ClientInfo) (*models.TenantSession, error) {
	if raw == "" {
		ls.logAccess(ctx, nil, models.AccessTokenValidationFailed, client, "Token not found")
		return nil, ErrInvalidToken
	}

	var lease models.Lease
	err := database.Get(ctx, ls.DB, &lease,
		"SELECT "+models.LeaseColumns+" FROM leases WHERE tenant_access_token = ?", utils.SHA256Hex(raw))
	reason := ""
	switch {
	case errors.Is(err, sql.ErrNoRows):
		reason = "Token not found"
	case err != nil:
		return nil, err
	case lease.Status != models.LeaseActive:
		reason = "Lease status: " + lease.Status
	case lease.TenantTokenExpiresAt == nil || !lease.TenantTokenExpiresAt.After(ls.Now()):
		reason = "Token expired"
	}
	if reason != "" {
		ls.logAccess(ctx, nil, models.AccessTokenValidationFailed, client, reason)
		ls.Log.Info("Tenant token validation failed", "reason", reason)
		return nil, ErrInvalidToken
	}

	ls.logAccess(ctx, &lease.ID, models.AccessTokenValidated, client, "")
	return &models.TenantSession{
		LeaseID:         lease.ID,
		OwnerID:         lease.OwnerID,
		PropertyID:      lease.PropertyID,
		TenantName:      lease.TenantName,
		TenantEmail:     lease.TenantEmail,
		PropertyAddress: lease.PropertyAddress,
		Verified:        lease.TenantTokenVerified,
		ExpiresAt:       *lease.TenantTokenExpiresAt,
	}, nil
}

// CreateSession validates a token from a magic link before the cookie is set.
func (ls *LeaseService) CreateSession(ctx context.Context, raw string, client ClientInfo) (*models.TenantSession, error) {
	session, err := ls.ValidateToken(ctx, raw, client)
	if err != nil {
		return nil, err
	}
	ls.logAccess(ctx, &session.LeaseID, models.AccessSessionCreated, client, "")
	return session, nil
}

// NameMatches reports whether lastName equals one of the parts of fullName,
// ignoring case and accents.
func NameMatches(fullName, lastName string) bool {
	want := utils.FoldAccents(lastName)
	if want == "" {
		return false
	}
	for _, part := range strings.Fields(utils.FoldAccents(fullName)) {
		if part == want {
			return true
		}
	}
	return false
}

// VerifyIdentity confirms the tenant by last name on first access. After
// MaxIdentityFailures mismatches since the link was generated the token is
// revoked.
func (ls *LeaseService) VerifyIdentity(ctx context.Context, raw, lastName string, client ClientInfo) (*models.TenantSession, error) {
	session, err := ls.ValidateToken(ctx, raw, client)
	if err != nil {
		return nil, err
	}
	if session.Verified {
		return session, nil
	}

	if !NameMatches(session.TenantName, lastName) {
		ls.logAccess(ctx, &session.LeaseID, models.AccessIdentityFailed, client, "Name mismatch")
		failures, err := ls.identityFailures(ctx, session.LeaseID)
		if err != nil {
			return nil, err
		}
		if failures >= MaxIdentityFailures {
			if err := ls.revoke(ctx, session.LeaseID, client); err != nil {
				return nil, err
			}
			ls.Log.Warn("Tenant token revoked after failed identity checks", "lease_id", session.LeaseID)
			return nil, apperrors.Forbidden("too many failed attempts, ask your landlord for a new link")
		}
		return nil, apperrors.Validation("the name does not match the lease (%d attempts left)", MaxIdentityFailures-failures)
	}

	now := ls.Now().UTC()
	if _, err := database.Exec(ctx, ls.DB,
		"UPDATE leases SET tenant_token_verified = ?, tenant_last_access_at = ? WHERE id = ?",
		true, now, session.LeaseID); err != nil {
		return nil, err
	}
	ls.logAccess(ctx, &session.LeaseID, models.AccessIdentityVerified, client, "")
	session.Verified = true
	return session, nil
}

// identityFailures counts failed identity checks since the last token generation.
func (ls *LeaseService) identityFailures(ctx context.Context, leaseID string) (int, error) {
	var since sql.NullTime
	if err := database.Get(ctx, ls.DB, &since,
		"SELECT MAX(created_at) FROM tenant_access_logs WHERE lease_id = ? AND action = ?",
		leaseID, models.AccessTokenGenerated); err != nil {
		return 0, err
	}
	from := time.Time{}
	if since.Valid {
		from = since.Time
	}
	var count int
	err := database.Get(ctx, ls.DB, &count,
		"SELECT COUNT(*) FROM tenant_access_logs WHERE lease_id = ? AND action = ? AND created_at >= ?",
		leaseID, models.AccessIdentityFailed, from)
	return count, err
}

func (ls *LeaseService) revoke(ctx context.Context, leaseID string, client ClientInfo) error {
	if _, err := database.Exec(ctx, ls.DB, `
		UPDATE leases SET tenant_access_token = NULL, tenant_token_expires_at = NULL, tenant_token_verified = ?
		WHERE id = ?`, false, leaseID); err != nil {
		return err
	}
	ls.logAccess(ctx, &leaseID, models.AccessTokenRevoked, client, "")
	return nil
}

// RevokeToken disables the tenant's current magic link.
func (ls *LeaseService) RevokeToken(ctx context.Context, actorID, leaseID string, client ClientInfo) error {
	if _, err := ls.Authorize(ctx, actorID, leaseID, teamService.PermLeasesEdit); err != nil {
		return err
	}
	return ls.revoke(ctx, leaseID, client)
}

// TenantDashboard returns the lease and its payments, newest period first.
func (ls *LeaseService) TenantDashboard(ctx context.Context, session *models.TenantSession) (*TenantDashboard, error) {
	lease, err := ls.Load(ctx, session.LeaseID)
	if err != nil {
		return nil, err
	}
	txs := []models.RentalTransaction{}
	if err := database.Select(ctx, ls.DB, &txs,
		"SELECT "+models.RentalColumns+" FROM rental_transactions WHERE lease_id = ? ORDER BY period_year DESC, period_month DESC",
		lease.ID); err != nil {
		return nil, err
	}
	if _, err := database.Exec(ctx, ls.DB,
		"UPDATE leases SET tenant_last_access_at = ? WHERE id = ?", ls.Now().UTC(), lease.ID); err != nil {
		ls.Log.Warn("Failed to update tenant last access", "error", err)
	}
	return &TenantDashboard{Lease: lease, Transactions: txs}, nil
}

// ListAccessLogs returns the tenant access history of a lease, newest first.
func (ls *LeaseService) ListAccessLogs(ctx context.Context, actorID, leaseID string) ([]models.TenantAccessLog, error) {
	if _, err := ls.Authorize(ctx, actorID, leaseID, teamService.PermLeasesView); err != nil {
		return nil, err
	}
	logs := []models.TenantAccessLog{}
	err := database.Select(ctx, ls.DB, &logs, `
		SELECT id, lease_id, action, ip_address, user_agent, failure_reason, created_at
		FROM tenant_access_logs WHERE lease_id = ? ORDER BY created_at DESC LIMIT 100`, leaseID)
	return logs, err
}
