package adminService

import (
	"context"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nikhil/doussel/internal/apperrors"
	"github.com/nikhil/doussel/internal/database"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/models"
	profileService "github.com/nikhil/doussel/internal/service/users"
)

type AdminService struct {
	DB  *sqlx.DB
	Log *logger.Logger
	Now func() time.Time
}

func NewAdminService(db *sqlx.DB) *AdminService {
	return &AdminService{
		DB:  db,
		Log: logger.NewLogger("admin-service"),
		Now: time.Now,
	}
}

// DashboardStats is the back-office overview.
type DashboardStats struct {
	TotalUsers         int64            `json:"total_users"`
	PropertiesByStatus map[string]int64 `json:"properties_by_status"`
	PendingModeration  int64            `json:"pending_moderation"`
	ActiveLeases       int64            `json:"active_leases"`
	UnpaidTransactions int64            `json:"unpaid_transactions"`
	NewUsersLast30Days int64            `json:"new_users_last_30_days"`
	CollectedThisMonth int64            `json:"collected_this_month"`
	GeneratedAt        time.Time        `json:"generated_at"`
}

// toInt64 reads a COUNT or SUM column, which drivers return as int64,
// []byte or string depending on the database.
func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return int64(f)
	default:
		return 0
	}
}

func (as *AdminService) DashboardStats(ctx context.Context, roles []string) (*DashboardStats, error) {
	if !profileService.HasPermission(roles, "admin.dashboard.view") {
		return nil, apperrors.Forbidden("admin.dashboard.view required")
	}
	now := as.Now().UTC()

	totals, err := database.QueryMap(ctx, as.DB, `
		SELECT
			(SELECT COUNT(*) FROM users) AS total_users,
			(SELECT COUNT(*) FROM users WHERE created_at >= ?) AS new_users,
			(SELECT COUNT(*) FROM leases WHERE status = ?) AS active_leases,
			(SELECT COUNT(*) FROM rental_transactions WHERE status NOT IN (?, ?)) AS unpaid,
			(SELECT COALESCE(SUM(amount_paid), 0) FROM rental_transactions
				WHERE period_year = ? AND period_month = ?) AS collected`,
		now.AddDate(0, 0, -30), models.LeaseActive, models.TxPaid, models.TxCancelled,
		now.Year(), int(now.Month()))
	if err != nil {
		as.Log.Error("Failed to load dashboard totals", "error", err)
		return nil, err
	}

	byStatus, err := database.QueryMaps(ctx, as.DB,
		"SELECT validation_status, COUNT(*) AS total FROM properties GROUP BY validation_status")
	if err != nil {
		as.Log.Error("Failed to count properties", "error", err)
		return nil, err
	}

	stats := &DashboardStats{
		TotalUsers:         toInt64(totals["total_users"]),
		NewUsersLast30Days: toInt64(totals["new_users"]),
		ActiveLeases:       toInt64(totals["active_leases"]),
		UnpaidTransactions: toInt64(totals["unpaid"]),
		CollectedThisMonth: toInt64(totals["collected"]),
		PropertiesByStatus: map[string]int64{
			models.ValidationPending:  0,
			models.ValidationApproved: 0,
			models.ValidationRejected: 0,
		},
		GeneratedAt: now,
	}
	for _, row := range byStatus {
		status, _ := row["validation_status"].(string)
		stats.PropertiesByStatus[status] = toInt64(row["total"])
	}
	stats.PendingModeration = stats.PropertiesByStatus[models.ValidationPending]
	return stats, nil
}
