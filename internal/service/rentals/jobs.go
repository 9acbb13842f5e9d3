package rentalService

import (
	"context"
	"fmt"
	"time"

	"github.com/nikhil/doussel/internal/database"
	"github.com/nikhil/doussel/internal/mailer"
	"github.com/nikhil/doussel/internal/metrics"
	"github.com/nikhil/doussel/internal/models"
	notificationService "github.com/nikhil/doussel/internal/service/notifications"
)

// ReminderDelay is how many days after the due date a reminder goes out.
const ReminderDelay = 5

// JobResult reports a reminder or alert run.
type JobResult struct {
	Count   int      `json:"count"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

type reminderCandidate struct {
	ID          string  `db:"id"`
	LeaseID     string  `db:"lease_id"`
	AmountDue   int64   `db:"amount_due"`
	PeriodMonth int     `db:"period_month"`
	PeriodYear  int     `db:"period_year"`
	BillingDay  int     `db:"billing_day"`
	TenantName  string  `db:"tenant_name"`
	TenantEmail string  `db:"tenant_email"`
	OwnerID     string  `db:"owner_id"`
	OwnerEmail  *string `db:"owner_email"`
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole days from a to b.
func daysBetween(a, b time.Time) int {
	return int(dateOnly(b).Sub(dateOnly(a)).Hours() / 24)
}

var frenchMonths = [...]string{"janvier", "février", "mars", "avril", "mai", "juin", "juillet",
	"août", "septembre", "octobre", "novembre", "décembre"}

// FormatDate writes a date the French way, e.g. "5 mars 2025".
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), frenchMonths[t.Month()-1], t.Year())
}

// SendReminders emails tenants whose rent is at least ReminderDelay days late
// and has not been reminded yet, with the owner in copy.
func (rs *RentalService) SendReminders(ctx context.Context, now time.Time) (*JobResult, error) {
	var candidates []reminderCandidate
	err := database.Select(ctx, rs.DB, &candidates, `
		SELECT t.id, t.lease_id, t.amount_due, t.period_month, t.period_year,
			l.billing_day, l.tenant_name, l.tenant_email, l.owner_id, u.email AS owner_email
		FROM rental_transactions t
		JOIN leases l ON l.id = t.lease_id
		LEFT JOIN users u ON u.id = l.owner_id
		WHERE t.status NOT IN (?, ?) AND t.reminder_sent = ? AND t.period_year >= ?`,
		models.TxPaid, models.TxCancelled, false, now.Year()-1)
	if err != nil {
		metrics.RecordJob("send_reminders", 0, err)
		return nil, err
	}

	res := &JobResult{}
	for _, c := range candidates {
		due := DueDate(c.PeriodYear, time.Month(c.PeriodMonth), c.BillingDay)
		if daysBetween(due, now) < ReminderDelay || c.TenantEmail == "" {
			continue
		}

		email := mailer.Email{
			To:       c.TenantEmail,
			Subject:  "Rappel : Retard de paiement - Loyer du " + FormatDate(due),
			Template: "rent_reminder",
			Data: map[string]string{
				"tenant_name": c.TenantName,
				"amount":      FormatAmount(c.AmountDue),
				"due_date":    FormatDate(due),
			},
		}
		if c.OwnerEmail != nil && *c.OwnerEmail != "" {
			email.CC = []string{*c.OwnerEmail}
		}
		if err := rs.Mailer.Send(ctx, email); err != nil {
			rs.Log.Error("Failed to send reminder", "error", err, "transaction_id", c.ID)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", c.ID, err))
			continue
		}

		if _, err := database.Exec(ctx, rs.DB,
			"UPDATE rental_transactions SET reminder_sent = ?, status = ?, updated_at = ? WHERE id = ?",
			true, models.TxOverdue, now.UTC(), c.ID); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", c.ID, err))
			continue
		}
		res.Count++

		if _, err := rs.Notifier.NotifyUser(ctx, notificationService.Input{
			UserID:       c.OwnerID,
			Type:         models.NotifyWarning,
			Title:        "Relance envoyée",
			Message:      fmt.Sprintf("%s n'a pas réglé le loyer de %s FCFA dû le %s.", c.TenantName, FormatAmount(c.AmountDue), FormatDate(due)),
			ResourcePath: "/leases/" + c.LeaseID,
		}); err != nil {
			rs.Log.Warn("Failed to notify owner of reminder", "error", err)
		}
	}

	res.Message = fmt.Sprintf("%d relances envoyées avec succès.", res.Count)
	if len(candidates) == 0 {
		res.Message = "Aucun paiement en retard détecté."
	}
	metrics.RecordJob("send_reminders", res.Count, nil)
	rs.Log.Info("Reminders processed", "candidates", len(candidates), "sent", res.Count, "errors", len(res.Errors))
	return res, nil
}

type expiringLease struct {
	ID              string    `db:"id"`
	OwnerID         string    `db:"owner_id"`
	OwnerEmail      *string   `db:"owner_email"`
	TenantName      string    `db:"tenant_name"`
	PropertyAddress string    `db:"property_address"`
	MonthlyAmount   int64     `db:"monthly_amount"`
	EndDate         time.Time `db:"end_date"`
}

// AddMonths adds n months, clamping to the last day of the resulting month.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

// CheckLeaseExpirations alerts owners six and three months before a lease ends.
func (rs *RentalService) CheckLeaseExpirations(ctx context.Context, today time.Time) (*JobResult, error) {
	var leases []expiringLease
	err := database.Select(ctx, rs.DB, &leases, `
		SELECT l.id, l.owner_id, u.email AS owner_email, l.tenant_name, l.property_address, l.monthly_amount, l.end_date
		FROM leases l LEFT JOIN users u ON u.id = l.owner_id
		WHERE l.status = ? AND l.end_date IS NOT NULL`, models.LeaseActive)
	if err != nil {
		metrics.RecordJob("lease_alerts", 0, err)
		return nil, err
	}

	res := &JobResult{}
	for _, l := range leases {
		end := dateOnly(l.EndDate)
		for _, months := range []int{6, 3} {
			if !end.Equal(AddMonths(today, months)) {
				continue
			}
			if err := rs.sendExpirationAlert(ctx, l, months); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", l.ID, err))
				continue
			}
			res.Count++
		}
	}
	res.Message = fmt.Sprintf("%d alerte(s) de fin de bail envoyée(s) avec succès.", res.Count)
	if len(leases) == 0 {
		res.Message = "Aucun bail actif avec date de fin."
	}
	metrics.RecordJob("lease_alerts", res.Count, nil)
	return res, nil
}

func (rs *RentalService) sendExpirationAlert(ctx context.Context, l expiringLease, months int) error {
	title := fmt.Sprintf("Fin de bail dans %d mois", months)
	message := fmt.Sprintf("Le bail de %s (%s) se termine le %s.", l.TenantName, l.PropertyAddress, FormatDate(l.EndDate))
	if months == 6 {
		message += " Dernier moment pour donner congé dans le délai légal."
	} else {
		message += " Pensez à renégocier avant la tacite reconduction."
	}

	if l.OwnerEmail != nil && *l.OwnerEmail != "" {
		err := rs.Mailer.Send(ctx, mailer.Email{
			To:       *l.OwnerEmail,
			Subject:  title,
			Template: "lease_expiration",
			Data: map[string]string{
				"tenant_name":      l.TenantName,
				"property_address": l.PropertyAddress,
				"end_date":         FormatDate(l.EndDate),
				"months":           fmt.Sprint(months),
				"monthly_amount":   FormatAmount(l.MonthlyAmount),
			},
		})
		if err != nil {
			return err
		}
	}
	_, err := rs.Notifier.NotifyUser(ctx, notificationService.Input{
		UserID:       l.OwnerID,
		Type:         models.NotifyWarning,
		Title:        title,
		Message:      message,
		ResourcePath: "/leases/" + l.ID,
	})
	return err
}
