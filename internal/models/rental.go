package models

import "time"

// Transaction statuses
const (
	TxPending   = "pending"
	TxPaid      = "paid"
	TxOverdue   = "overdue"
	TxCancelled = "cancelled"
)

type RentalTransaction struct {
	ID            string     `db:"id" json:"id"`
	LeaseID       string     `db:"lease_id" json:"lease_id"`
	TeamID        *string    `db:"team_id" json:"team_id,omitempty"`
	PeriodMonth   int        `db:"period_month" json:"period_month"`
	PeriodYear    int        `db:"period_year" json:"period_year"`
	PeriodStart   time.Time  `db:"period_start" json:"period_start"`
	PeriodEnd     time.Time  `db:"period_end" json:"period_end"`
	AmountDue     int64      `db:"amount_due" json:"amount_due"`
	AmountPaid    int64      `db:"amount_paid" json:"amount_paid"`
	Status        string     `db:"status" json:"status"`
	PaidAt        *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	PaymentMethod *string    `db:"payment_method" json:"payment_method,omitempty"`
	PaymentRef    *string    `db:"payment_ref" json:"payment_ref,omitempty"`
	ReminderSent  bool       `db:"reminder_sent" json:"reminder_sent"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// RentalColumns is the select list matching RentalTransaction.
const RentalColumns = `id, lease_id, team_id, period_month, period_year, period_start, period_end,
	amount_due, amount_paid, status, paid_at, payment_method, payment_ref, reminder_sent, created_at, updated_at`

// Balance is what remains to be paid.
func (t *RentalTransaction) Balance() int64 {
	if t.AmountPaid >= t.AmountDue {
		return 0
	}
	return t.AmountDue - t.AmountPaid
}
