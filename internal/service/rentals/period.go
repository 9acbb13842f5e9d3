package rentalService

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nikhil/doussel/internal/database"
	"github.com/nikhil/doussel/internal/models"
)

// PeriodBounds returns the first and last day of a billing month in UTC.
func PeriodBounds(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1)
}

// DueDate is the day rent is expected for a period.
func DueDate(year int, month time.Month, billingDay int) time.Time {
	if billingDay < 1 {
		billingDay = 5
	}
	return time.Date(year, month, billingDay, 0, 0, 0, 0, time.UTC)
}

// NewTransaction builds the pending transaction of a lease for one month.
func NewTransaction(lease *models.Lease, year int, month time.Month, now time.Time) *models.RentalTransaction {
	start, end := PeriodBounds(year, month)
	return &models.RentalTransaction{
		ID:          uuid.NewString(),
		LeaseID:     lease.ID,
		TeamID:      lease.TeamID,
		PeriodMonth: int(month),
		PeriodYear:  year,
		PeriodStart: start,
		PeriodEnd:   end,
		AmountDue:   lease.MonthlyAmount,
		Status:      models.TxPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

const insertTransaction = `
	INSERT INTO rental_transactions (id, lease_id, team_id, period_month, period_year, period_start,
		period_end, amount_due, amount_paid, status, reminder_sent, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func transactionArgs(tx *models.RentalTransaction) []interface{} {
	return []interface{}{tx.ID, tx.LeaseID, tx.TeamID, tx.PeriodMonth, tx.PeriodYear, tx.PeriodStart,
		tx.PeriodEnd, tx.AmountDue, tx.AmountPaid, tx.Status, false, tx.CreatedAt, tx.UpdatedAt}
}

// InsertTransaction writes tx using q, which may be a transaction.
func InsertTransaction(ctx context.Context, q sqlx.ExtContext, tx *models.RentalTransaction) error {
	_, err := database.Exec(ctx, q, insertTransaction, transactionArgs(tx)...)
	return err
}

// InsertTransactionIfAbsent writes tx unless its lease already has a
// transaction for the period, and reports whether a row was written.
func InsertTransactionIfAbsent(ctx context.Context, q sqlx.ExtContext, tx *models.RentalTransaction) (bool, error) {
	query := insertTransaction + " ON CONFLICT (lease_id, period_month, period_year) DO NOTHING"
	if q.DriverName() == "mysql" {
		query = strings.Replace(insertTransaction, "INSERT INTO", "INSERT IGNORE INTO", 1)
	}
	res, err := database.Exec(ctx, q, query, transactionArgs(tx)...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
