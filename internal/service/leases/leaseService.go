package leaseService

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nikhil/doussel/internal/apperrors"
	"github.com/nikhil/doussel/internal/cache"
	"github.com/nikhil/doussel/internal/database"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/mailer"
	"github.com/nikhil/doussel/internal/models"
	"github.com/nikhil/doussel/internal/plans"
	rentalService "github.com/nikhil/doussel/internal/service/rentals"
	teamService "github.com/nikhil/doussel/internal/service/team"
	"github.com/nikhil/doussel/pkg/utils"
)

const dateLayout = "2006-01-02"

// TeamAccess is the part of the team service leases depend on.
type TeamAccess interface {
	Authorize(ctx context.Context, teamID, userID, perm string) (string, error)
	Load(ctx context.Context, teamID string) (*models.Team, error)
}

type LeaseService struct {
	DB     *sqlx.DB
	Teams  TeamAccess
	Mailer mailer.Mailer
	Cache  cache.CacheInterface
	Log    *logger.Logger
	Now    func() time.Time
	// AppURL prefixes tenant magic links.
	AppURL string
}

// LeaseInput is the payload of POST /leases.
type LeaseInput struct {
	TeamID          *string `json:"team_id"`
	PropertyID      *string `json:"property_id"`
	TenantName      string  `json:"tenant_name"`
	TenantEmail     string  `json:"tenant_email"`
	TenantPhone     string  `json:"tenant_phone"`
	PropertyAddress string  `json:"property_address"`
	MonthlyAmount   int64   `json:"monthly_amount"`
	BillingDay      int     `json:"billing_day"`
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
}

// LeaseUpdate is the payload of PUT /leases/{id}; nil fields are left as is.
type LeaseUpdate struct {
	TenantName      *string `json:"tenant_name"`
	TenantEmail     *string `json:"tenant_email"`
	TenantPhone     *string `json:"tenant_phone"`
	PropertyAddress *string `json:"property_address"`
	MonthlyAmount   *int64  `json:"monthly_amount"`
	BillingDay      *int    `json:"billing_day"`
	EndDate         *string `json:"end_date"`
}

func NewLeaseService(db *sqlx.DB, teams TeamAccess, m mailer.Mailer, c cache.CacheInterface, appURL string) *LeaseService {
	return &LeaseService{
		DB:     db,
		Teams:  teams,
		Mailer: m,
		Cache:  c,
		Log:    logger.NewLogger("lease-service"),
		Now:    time.Now,
		AppURL: strings.TrimRight(appURL, "/"),
	}
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, apperrors.Validation("%s must be a YYYY-MM-DD date", field)
	}
	return t, nil
}

func validBillingDay(day int) bool { return day >= 1 && day <= 28 }

func (in *LeaseInput) validate() (time.Time, *time.Time, error) {
	in.TenantName = strings.TrimSpace(in.TenantName)
	in.TenantEmail = utils.NormalizeEmail(in.TenantEmail)
	in.TenantPhone = strings.TrimSpace(in.TenantPhone)
	in.PropertyAddress = strings.TrimSpace(in.PropertyAddress)
	if in.TenantName == "" {
		return time.Time{}, nil, apperrors.Validation("tenant_name is required")
	}
	if in.TenantEmail != "" && !strings.Contains(in.TenantEmail, "@") {
		return time.Time{}, nil, apperrors.Validation("tenant_email is invalid")
	}
	if in.MonthlyAmount <= 0 {
		return time.Time{}, nil, apperrors.Validation("monthly_amount must be positive")
	}
	if in.BillingDay != 0 && !validBillingDay(in.BillingDay) {
		return time.Time{}, nil, apperrors.Validation("billing_day must be between 1 and 28")
	}
	start, err := parseDate("start_date", in.StartDate)
	if err != nil {
		return time.Time{}, nil, err
	}
	if strings.TrimSpace(in.EndDate) == "" {
		return start, nil, nil
	}
	end, err := parseDate("end_date", in.EndDate)
	if err != nil {
		return time.Time{}, nil, err
	}
	if !end.After(start) {
		return time.Time{}, nil, apperrors.Validation("end_date must be after start_date")
	}
	return start, &end, nil
}

// checkDuplicateTenant rejects a second live lease of the same owner for one
// tenant email. excludeID skips the lease being edited.
func (ls *LeaseService) checkDuplicateTenant(ctx context.Context, ownerID, email, excludeID string) error {
	query := "SELECT COUNT(*) FROM leases WHERE owner_id = ? AND LOWER(tenant_email) = ? AND status <> ?"
	args := []interface{}{ownerID, email, models.LeaseTerminated}
	if excludeID != "" {
		query += " AND id <> ?"
		args = append(args, excludeID)
	}
	var dup int
	if err := database.Get(ctx, ls.DB, &dup, query, args...); err != nil {
		return err
	}
	if dup > 0 {
		return fmt.Errorf("%w: a lease already exists for %s", apperrors.ErrConflict, email)
	}
	return nil
}

func (ls *LeaseService) invalidateSummaries(ctx context.Context, lease *models.Lease) {
	if err := rentalService.InvalidateSummaries(ctx, ls.Cache, lease.OwnerID, lease.TeamID); err != nil {
		ls.Log.Warn("Failed to invalidate financial summary", "error", err, "lease_id", lease.ID)
	}
}

// CreateLease registers a lease and its first monthly transaction.
func (ls *LeaseService) CreateLease(ctx context.Context, ownerID string, in LeaseInput) (*models.Lease, error) {
	start, end, err := in.validate()
	if err != nil {
		return nil, err
	}

	tier := plans.DefaultTier
	billingDay := in.BillingDay
	countQuery := "SELECT COUNT(*) FROM leases WHERE owner_id = ? AND team_id IS NULL AND status <> ?"
	countArgs := []interface{}{ownerID, models.LeaseTerminated}
	if in.TeamID != nil && *in.TeamID != "" {
		if _, err := ls.Teams.Authorize(ctx, *in.TeamID, ownerID, teamService.PermLeasesCreate); err != nil {
			return nil, err
		}
		team, err := ls.Teams.Load(ctx, *in.TeamID)
		if err != nil {
			return nil, err
		}
		tier = team.SubscriptionTier
		if billingDay == 0 {
			billingDay = team.DefaultBillingDay
		}
		countQuery = "SELECT COUNT(*) FROM leases WHERE team_id = ? AND status <> ?"
		countArgs = []interface{}{*in.TeamID, models.LeaseTerminated}
	} else {
		in.TeamID = nil
	}
	if !validBillingDay(billingDay) {
		billingDay = 5
	}

	if in.TenantEmail != "" {
		if err := ls.checkDuplicateTenant(ctx, ownerID, in.TenantEmail, ""); err != nil {
			return nil, err
		}
	}

	var current int
	if err := database.Get(ctx, ls.DB, &current, countQuery, countArgs...); err != nil {
		return nil, err
	}
	plan := plans.Get(tier)
	if !plans.Allows(plan.MaxLeases, current) {
		return nil, fmt.Errorf("%w: %s plan allows %d leases", apperrors.ErrQuotaExceeded, plan.Name, plan.MaxLeases)
	}

	now := ls.Now().UTC()
	lease := &models.Lease{
		ID:              uuid.NewString(),
		TeamID:          in.TeamID,
		OwnerID:         ownerID,
		PropertyID:      in.PropertyID,
		TenantName:      in.TenantName,
		TenantEmail:     in.TenantEmail,
		TenantPhone:     in.TenantPhone,
		PropertyAddress: in.PropertyAddress,
		MonthlyAmount:   in.MonthlyAmount,
		BillingDay:      billingDay,
		StartDate:       start,
		EndDate:         end,
		Status:          models.LeaseActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// The first period is the current month, or the start month for leases
	// that begin later.
	first := now
	if start.After(now) {
		first = start
	}

	err = database.WithTx(ctx, ls.DB, func(tx *sqlx.Tx) error {
		_, err := database.Exec(ctx, tx, `
			INSERT INTO leases (id, team_id, owner_id, property_id, tenant_name, tenant_email, tenant_phone,
				property_address, monthly_amount, billing_day, start_date, end_date, status,
				tenant_token_verified, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			lease.ID, lease.TeamID, lease.OwnerID, lease.PropertyID, lease.TenantName, lease.TenantEmail,
			lease.TenantPhone, lease.PropertyAddress, lease.MonthlyAmount, lease.BillingDay, lease.StartDate,
			lease.EndDate, lease.Status, false, now, now)
		if err != nil {
			return err
		}

		rent := rentalService.NewTransaction(lease, first.Year(), first.Month(), now)
		if err := rentalService.InsertTransaction(ctx, tx, rent); err != nil {
			return err
		}

		if lease.TeamID != nil {
			return teamService.WriteAudit(ctx, tx, teamService.AuditEntry{
				TeamID: *lease.TeamID, UserID: ownerID, Action: "lease.created",
				ResourceType: "lease", ResourceID: lease.ID,
				Data: map[string]interface{}{"tenant_name": lease.TenantName, "monthly_amount": lease.MonthlyAmount},
			}, now)
		}
		return nil
	})
	if err != nil {
		ls.Log.Error("Failed to create lease", "error", err, "owner_id", ownerID)
		return nil, err
	}

	ls.invalidateSummaries(ctx, lease)
	ls.Log.Info("Lease created", "lease_id", lease.ID, "owner_id", ownerID)
	return lease, nil
}

// Load reads a lease without access checks.
func (ls *LeaseService) Load(ctx context.Context, id string) (*models.Lease, error) {
	var lease models.Lease
	if err := database.Get(ctx, ls.DB, &lease, "SELECT "+models.LeaseColumns+" FROM leases WHERE id = ?", id); err != nil {
		return nil, apperrors.FromSQL(err, "lease")
	}
	return &lease, nil
}

// Authorize loads a lease and checks that actor owns it or holds perm in its team.
func (ls *LeaseService) Authorize(ctx context.Context, actorID, leaseID, perm string) (*models.Lease, error) {
	lease, err := ls.Load(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if lease.OwnerID == actorID {
		return lease, nil
	}
	if lease.TeamID == nil {
		return nil, apperrors.Forbidden("not your lease")
	}
	if _, err := ls.Teams.Authorize(ctx, *lease.TeamID, actorID, perm); err != nil {
		return nil, err
	}
	return lease, nil
}

func (ls *LeaseService) GetLease(ctx context.Context, actorID, id string) (*models.Lease, error) {
	return ls.Authorize(ctx, actorID, id, teamService.PermLeasesView)
}

// ListLeases returns the actor's own leases, or a team's leases when teamID is set.
func (ls *LeaseService) ListLeases(ctx context.Context, actorID, teamID, status string) ([]models.Lease, error) {
	where := "owner_id = ?"
	args := []interface{}{actorID}
	if teamID != "" {
		if _, err := ls.Teams.Authorize(ctx, teamID, actorID, teamService.PermLeasesView); err != nil {
			return nil, err
		}
		where = "team_id = ?"
		args = []interface{}{teamID}
	}
	if status != "" {
		switch status {
		case models.LeaseActive, models.LeasePending, models.LeaseTerminated:
		default:
			return nil, apperrors.Validation("unknown status %q", status)
		}
		where += " AND status = ?"
		args = append(args, status)
	}

	leases := []models.Lease{}
	err := database.Select(ctx, ls.DB, &leases,
		"SELECT "+models.LeaseColumns+" FROM leases WHERE "+where+" ORDER BY created_at DESC", args...)
	return leases, err
}

// UpdateLease edits tenant and billing details of a lease that is not terminated.
func (ls *LeaseService) UpdateLease(ctx context.Context, actorID, id string, in LeaseUpdate) (*models.Lease, error) {
	lease, err := ls.Authorize(ctx, actorID, id, teamService.PermLeasesEdit)
	if err != nil {
		return nil, err
	}
	if lease.Status == models.LeaseTerminated {
		return nil, apperrors.Validation("a terminated lease cannot be edited")
	}

	if in.TenantName != nil {
		name := strings.TrimSpace(*in.TenantName)
		if name == "" {
			return nil, apperrors.Validation("tenant_name is required")
		}
		lease.TenantName = name
	}
	if in.TenantEmail != nil {
		email := utils.NormalizeEmail(*in.TenantEmail)
		if email != "" && !strings.Contains(email, "@") {
			return nil, apperrors.Validation("tenant_email is invalid")
		}
		if email != "" && email != utils.NormalizeEmail(lease.TenantEmail) {
			if err := ls.checkDuplicateTenant(ctx, lease.OwnerID, email, lease.ID); err != nil {
				return nil, err
			}
		}
		lease.TenantEmail = email
	}
	if in.TenantPhone != nil {
		lease.TenantPhone = strings.TrimSpace(*in.TenantPhone)
	}
	if in.PropertyAddress != nil {
		lease.PropertyAddress = strings.TrimSpace(*in.PropertyAddress)
	}
	if in.MonthlyAmount != nil {
		if *in.MonthlyAmount <= 0 {
			return nil, apperrors.Validation("monthly_amount must be positive")
		}
		lease.MonthlyAmount = *in.MonthlyAmount
	}
	if in.BillingDay != nil {
		if !validBillingDay(*in.BillingDay) {
			return nil, apperrors.Validation("billing_day must be between 1 and 28")
		}
		lease.BillingDay = *in.BillingDay
	}
	if in.EndDate != nil {
		if strings.TrimSpace(*in.EndDate) == "" {
			lease.EndDate = nil
		} else {
			end, err := parseDate("end_date", *in.EndDate)
			if err != nil {
				return nil, err
			}
			if !end.After(lease.StartDate) {
				return nil, apperrors.Validation("end_date must be after start_date")
			}
			lease.EndDate = &end
		}
	}

	now := ls.Now().UTC()
	lease.UpdatedAt = now
	_, err = database.Exec(ctx, ls.DB, `
		UPDATE leases SET tenant_name = ?, tenant_email = ?, tenant_phone = ?, property_address = ?,
			monthly_amount = ?, billing_day = ?, end_date = ?, updated_at = ?
		WHERE id = ?`,
		lease.TenantName, lease.TenantEmail, lease.TenantPhone, lease.PropertyAddress,
		lease.MonthlyAmount, lease.BillingDay, lease.EndDate, now, lease.ID)
	if err != nil {
		return nil, err
	}
	if lease.TeamID != nil {
		if err := teamService.WriteAudit(ctx, ls.DB, teamService.AuditEntry{
			TeamID: *lease.TeamID, UserID: actorID, Action: "lease.updated",
			ResourceType: "lease", ResourceID: lease.ID, Data: in,
		}, now); err != nil {
			ls.Log.Warn("Failed to write audit log", "error", err)
		}
	}
	if in.MonthlyAmount != nil || in.BillingDay != nil || in.EndDate != nil {
		ls.invalidateSummaries(ctx, lease)
	}
	return lease, nil
}

// TerminateLease ends a lease and revokes any tenant access.
func (ls *LeaseService) TerminateLease(ctx context.Context, actorID, id string, client ClientInfo) (*models.Lease, error) {
	lease, err := ls.Authorize(ctx, actorID, id, teamService.PermLeasesTerminate)
	if err != nil {
		return nil, err
	}
	if lease.Status == models.LeaseTerminated {
		return lease, nil
	}

	now := ls.Now().UTC()
	err = database.WithTx(ctx, ls.DB, func(tx *sqlx.Tx) error {
		if _, err := database.Exec(ctx, tx, `
			UPDATE leases SET status = ?, tenant_access_token = NULL, tenant_token_expires_at = NULL,
				tenant_token_verified = ?, updated_at = ?
			WHERE id = ?`, models.LeaseTerminated, false, now, id); err != nil {
			return err
		}
		if lease.TeamID != nil {
			return teamService.WriteAudit(ctx, tx, teamService.AuditEntry{
				TeamID: *lease.TeamID, UserID: actorID, Action: "lease.terminated",
				ResourceType: "lease", ResourceID: lease.ID,
			}, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ls.logAccess(ctx, &lease.ID, models.AccessTokenRevoked, client, "")

	lease.Status = models.LeaseTerminated
	lease.TenantAccessToken = nil
	lease.TenantTokenExpiresAt = nil
	lease.TenantTokenVerified = false
	lease.UpdatedAt = now
	ls.invalidateSummaries(ctx, lease)
	ls.Log.Audit("Lease terminated", "lease_id", id, "by", actorID)
	return lease, nil
}
