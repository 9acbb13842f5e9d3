package rentalService

import (
	"math"
	"time"

	"github.com/nikhil/doussel/internal/models"
)

// KPIs are the monthly collection indicators of a portfolio.
type KPIs struct {
	TotalExpected  int64 `json:"total_expected"`
	TotalCollected int64 `json:"total_collected"`
	CollectionRate int   `json:"collection_rate"`
	PaidCount      int   `json:"paid_count"`
	PendingCount   int   `json:"pending_count"`
	OverdueCount   int   `json:"overdue_count"`
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// CalculateFinancials computes the KPIs of the target month. Expected rent
// comes from active leases, collected rent from their transaction in txs,
// which must already be restricted to the target month. A lease without a
// transaction counts as unpaid.
func CalculateFinancials(leases []models.Lease, txs []models.RentalTransaction, target, now time.Time) KPIs {
	byLease := make(map[string]*models.RentalTransaction, len(txs))
	for i := range txs {
		if _, ok := byLease[txs[i].LeaseID]; !ok {
			byLease[txs[i].LeaseID] = &txs[i]
		}
	}
	current := sameMonth(target, now)

	var k KPIs
	for i := range leases {
		lease := &leases[i]
		if lease.Status != models.LeaseActive {
			continue
		}
		k.TotalExpected += lease.MonthlyAmount

		tx, ok := byLease[lease.ID]
		if ok {
			paid := tx.AmountPaid
			if tx.Status == models.TxPaid && paid == 0 {
				paid = tx.AmountDue
			}
			k.TotalCollected += paid
		}

		status := models.TxPending
		if ok {
			status = tx.Status
		}
		switch DisplayStatus(status, lease.EffectiveBillingDay(), current, now) {
		case models.TxPaid:
			k.PaidCount++
		case models.TxOverdue:
			k.OverdueCount++
		default:
			k.PendingCount++
		}
	}

	if k.TotalExpected > 0 {
		k.CollectionRate = int(math.Round(float64(k.TotalCollected) / float64(k.TotalExpected) * 100))
	}
	return k
}

// DisplayStatus is the status shown for a transaction: paid, or overdue once
// the billing day of the current month has passed, otherwise pending.
func DisplayStatus(status string, billingDay int, isCurrentMonth bool, now time.Time) string {
	if status == models.TxPaid {
		return models.TxPaid
	}
	if billingDay < 1 {
		billingDay = 5
	}
	if isCurrentMonth && now.Day() > billingDay {
		return models.TxOverdue
	}
	return models.TxPending
}
