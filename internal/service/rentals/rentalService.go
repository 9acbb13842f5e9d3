package rentalService

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nikhil/doussel/internal/apperrors"
	"github.com/nikhil/doussel/internal/cache"
	"github.com/nikhil/doussel/internal/database"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/mailer"
	"github.com/nikhil/doussel/internal/metrics"
	"github.com/nikhil/doussel/internal/models"
	notificationService "github.com/nikhil/doussel/internal/service/notifications"
	teamService "github.com/nikhil/doussel/internal/service/team"
)

// LeaseAuthorizer loads a lease the actor may act on.
type LeaseAuthorizer interface {
	Authorize(ctx context.Context, actorID, leaseID, perm string) (*models.Lease, error)
}

// TeamAuthorizer checks team permissions.
type TeamAuthorizer interface {
	Authorize(ctx context.Context, teamID, userID, perm string) (string, error)
}

type RentalService struct {
	DB       *sqlx.DB
	Leases   LeaseAuthorizer
	Teams    TeamAuthorizer
	Notifier notificationService.Notifier
	Mailer   mailer.Mailer
	Cache    cache.CacheInterface
	CacheTTL time.Duration
	Log      *logger.Logger
	Now      func() time.Time
}

func NewRentalService(db *sqlx.DB, leases LeaseAuthorizer, teams TeamAuthorizer, notifier notificationService.Notifier,
	m mailer.Mailer, c cache.CacheInterface, ttl time.Duration) *RentalService {
	return &RentalService{
		DB:       db,
		Leases:   leases,
		Teams:    teams,
		Notifier: notifier,
		Mailer:   m,
		Cache:    c,
		CacheTTL: ttl,
		Log:      logger.NewLogger("rental-service"),
		Now:      time.Now,
	}
}

// GenerationResult reports a monthly generation run.
type GenerationResult struct {
	Processed   int    `json:"processed"`
	Created     int    `json:"created"`
	Skipped     int    `json:"skipped"`
	Period      string `json:"period"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

// GenerateMonthly creates the pending transaction of the target month for
// every active lease that does not have one yet. Running it twice for the
// same month creates nothing the second time.
func (rs *RentalService) GenerateMonthly(ctx context.Context, target time.Time) (res *GenerationResult, err error) {
	defer func() {
		created := 0
		if res != nil {
			created = res.Created
		}
		metrics.RecordJob("generate_rentals", created, err)
	}()

	year, month := target.Year(), target.Month()
	start, end := PeriodBounds(year, month)
	res = &GenerationResult{
		Period:      fmt.Sprintf("%04d-%02d", year, int(month)),
		PeriodStart: start.Format("2006-01-02"),
		PeriodEnd:   end.Format("2006-01-02"),
	}

	leases := []models.Lease{}
	if err := database.Select(ctx, rs.DB, &leases,
		"SELECT "+models.LeaseColumns+" FROM leases WHERE status = ?", models.LeaseActive); err != nil {
		return nil, err
	}
	res.Processed = len(leases)
	if len(leases) == 0 {
		return res, nil
	}

	var existing []string
	if err := database.Select(ctx, rs.DB, &existing,
		"SELECT lease_id FROM rental_transactions WHERE period_month = ? AND period_year = ?",
		int(month), year); err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(existing))
	for _, id := range existing {
		have[id] = true
	}

	now := rs.Now().UTC()
	var touched []*models.Lease
	err = database.WithTx(ctx, rs.DB, func(tx *sqlx.Tx) error {
		for i := range leases {
			if have[leases[i].ID] {
				res.Skipped++
				continue
			}
			// another run may have written the period since the lookup above
			created, err := InsertTransactionIfAbsent(ctx, tx, NewTransaction(&leases[i], year, month, now))
			if err != nil {
				return fmt.Errorf("lease %s: %w", leases[i].ID, err)
			}
			if !created {
				res.Skipped++
				continue
			}
			res.Created++
			touched = append(touched, &leases[i])
		}
		return nil
	})
	if err != nil {
		rs.Log.Error("Monthly rental generation failed", "error", err, "period", res.Period)
		return nil, err
	}
	seen := map[string]bool{}
	for _, l := range touched {
		scope := l.OwnerID
		if l.TeamID != nil {
			scope += "/" + *l.TeamID
		}
		if !seen[scope] {
			seen[scope] = true
			rs.invalidateSummaries(ctx, l.OwnerID, l.TeamID)
		}
	}
	rs.Log.Info("Monthly rentals generated", "period", res.Period, "created", res.Created, "skipped", res.Skipped)
	return res, nil
}

// PaymentInput is the payload of POST /transactions/{id}/payments.
type PaymentInput struct {
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

func checkPayable(tx *models.RentalTransaction) error {
	switch tx.Status {
	case models.TxPaid:
		return fmt.Errorf("%w: transaction already paid", apperrors.ErrConflict)
	case models.TxCancelled:
		return apperrors.Validation("transaction is cancelled")
	}
	return nil
}

// RecordPayment adds a payment to a transaction. The transaction becomes
// paid once the accumulated amount covers what is due. The row is locked
// while the new amount is computed so concurrent payments add up.
func (rs *RentalService) RecordPayment(ctx context.Context, actorID, txID string, in PaymentInput) (*models.RentalTransaction, error) {
	if in.Amount <= 0 {
		return nil, apperrors.Validation("amount must be positive")
	}

	var tx models.RentalTransaction
	if err := database.Get(ctx, rs.DB, &tx,
		"SELECT "+models.RentalColumns+" FROM rental_transactions WHERE id = ?", txID); err != nil {
		return nil, apperrors.FromSQL(err, "transaction")
	}
	lease, err := rs.Leases.Authorize(ctx, actorID, tx.LeaseID, teamService.PermPaymentsRecord)
	if err != nil {
		return nil, err
	}
	if err := checkPayable(&tx); err != nil {
		return nil, err
	}

	now := rs.Now().UTC()
	err = database.WithTx(ctx, rs.DB, func(dbtx *sqlx.Tx) error {
		if err := database.Get(ctx, dbtx, &tx,
			"SELECT "+models.RentalColumns+" FROM rental_transactions WHERE id = ? FOR UPDATE", txID); err != nil {
			return apperrors.FromSQL(err, "transaction")
		}
		if err := checkPayable(&tx); err != nil {
			return err
		}
		tx.AmountPaid += in.Amount
		if tx.AmountPaid >= tx.AmountDue {
			tx.Status = models.TxPaid
			tx.PaidAt = &now
		}
		if m := strings.TrimSpace(in.Method); m != "" {
			tx.PaymentMethod = &m
		}
		if ref := strings.TrimSpace(in.Reference); ref != "" {
			tx.PaymentRef = &ref
		}
		tx.UpdatedAt = now

		if _, err := database.Exec(ctx, dbtx, `
			UPDATE rental_transactions SET amount_paid = ?, status = ?, paid_at = ?, payment_method = ?,
				payment_ref = ?, updated_at = ?
			WHERE id = ?`,
			tx.AmountPaid, tx.Status, tx.PaidAt, tx.PaymentMethod, tx.PaymentRef, now, tx.ID); err != nil {
			return err
		}
		if lease.TeamID != nil {
			return teamService.WriteAudit(ctx, dbtx, teamService.AuditEntry{
				TeamID: *lease.TeamID, UserID: actorID, Action: "payment.confirmed",
				ResourceType: "rental_transaction", ResourceID: tx.ID,
				Data: map[string]interface{}{"amount": in.Amount, "status": tx.Status},
			}, now)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, apperrors.ErrConflict) && !errors.Is(err, apperrors.ErrValidation) {
			rs.Log.Error("Failed to record payment", "error", err, "transaction_id", txID)
		}
		return nil, err
	}
	rs.invalidateSummaries(ctx, lease.OwnerID, lease.TeamID)

	if _, err := rs.Notifier.NotifyUser(ctx, notificationService.Input{
		UserID:       lease.OwnerID,
		Type:         models.NotifyPayment,
		Title:        "Paiement enregistré",
		Message:      fmt.Sprintf("%s : %s FCFA reçus pour %02d/%d", lease.TenantName, FormatAmount(in.Amount), tx.PeriodMonth, tx.PeriodYear),
		ResourcePath: "/leases/" + lease.ID,
	}); err != nil {
		rs.Log.Warn("Failed to notify owner of payment", "error", err)
	}
	rs.Log.Info("Payment recorded", "transaction_id", tx.ID, "amount", in.Amount, "status", tx.Status)
	return &tx, nil
}

// ListTransactions returns the transactions of a lease, newest period first.
func (rs *RentalService) ListTransactions(ctx context.Context, actorID, leaseID string) ([]models.RentalTransaction, error) {
	if _, err := rs.Leases.Authorize(ctx, actorID, leaseID, teamService.PermPaymentsView); err != nil {
		return nil, err
	}
	txs := []models.RentalTransaction{}
	err := database.Select(ctx, rs.DB, &txs,
		"SELECT "+models.RentalColumns+" FROM rental_transactions WHERE lease_id = ? ORDER BY period_year DESC, period_month DESC",
		leaseID)
	return txs, err
}

// Summary is the monthly financial picture of an owner or a team.
type Summary struct {
	Period        string `json:"period"`
	KPIs          KPIs   `json:"kpis"`
	TotalExpenses int64  `json:"total_expenses"`
	NetIncome     int64  `json:"net_income"`
	LeaseCount    int    `json:"lease_count"`
}

// FinancialSummary computes the KPIs of a month for the actor's own
// portfolio, or for a team when teamID is set.
func (rs *RentalService) FinancialSummary(ctx context.Context, actorID, teamID string, year, month int) (*Summary, error) {
	if month < 1 || month > 12 || year < 2000 {
		return nil, apperrors.Validation("invalid period %d-%d", year, month)
	}
	scope, scopeID, column := "owner", actorID, "owner_id"
	if teamID != "" {
		if _, err := rs.Teams.Authorize(ctx, teamID, actorID, teamService.PermFinanceView); err != nil {
			return nil, err
		}
		scope, scopeID, column = "team", teamID, "team_id"
	}

	key := summaryCacheKey(scope, scopeID, summaryGeneration(ctx, rs.Cache, scope, scopeID), year, month)
	if cached, err := rs.Cache.Get(ctx, key); err == nil {
		var s Summary
		if err := json.Unmarshal([]byte(cached), &s); err == nil {
			return &s, nil
		}
	}

	leases := []models.Lease{}
	if err := database.Select(ctx, rs.DB, &leases,
		"SELECT "+models.LeaseColumns+" FROM leases WHERE "+column+" = ?", scopeID); err != nil {
		return nil, err
	}

	txs := []models.RentalTransaction{}
	if len(leases) > 0 {
		ids := make([]string, len(leases))
		for i := range leases {
			ids[i] = leases[i].ID
		}
		query, args, err := database.In(
			"SELECT "+models.RentalColumns+" FROM rental_transactions WHERE period_year = ? AND period_month = ? AND lease_id IN (?)",
			year, month, ids)
		if err != nil {
			return nil, err
		}
		if err := database.Select(ctx, rs.DB, &txs, query, args...); err != nil {
			return nil, err
		}
	}

	start, end := PeriodBounds(year, time.Month(month))
	var expenses int64
	if err := database.Get(ctx, rs.DB, &expenses,
		"SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE "+column+" = ? AND expense_date >= ? AND expense_date <= ?",
		scopeID, start, end); err != nil {
		return nil, err
	}

	kpis := CalculateFinancials(leases, txs, start, rs.Now())
	s := &Summary{
		Period:        fmt.Sprintf("%04d-%02d", year, month),
		KPIs:          kpis,
		TotalExpenses: expenses,
		NetIncome:     kpis.TotalCollected - expenses,
		LeaseCount:    len(leases),
	}
	if data, err := json.Marshal(s); err == nil {
		if err := rs.Cache.Set(ctx, key, string(data), rs.CacheTTL); err != nil {
			rs.Log.Warn("Failed to cache financial summary", "error", err)
		}
	}
	return s, nil
}

// FormatAmount renders an amount with a space every three digits, the way
// FCFA amounts are written.
func FormatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := fmt.Sprintf("%d", amount)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(d)
	}
	return sign + b.String()
}
