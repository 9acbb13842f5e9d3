package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

const ExpenseCategoryOther = "other"

type Expense struct {
	ID          string         `db:"id" json:"id"`
	TeamID      *string        `db:"team_id" json:"team_id,omitempty"`
	OwnerID     string         `db:"owner_id" json:"owner_id"`
	LeaseID     *string        `db:"lease_id" json:"lease_id,omitempty"`
	PropertyID  *string        `db:"property_id" json:"property_id,omitempty"`
	Amount      int64          `db:"amount" json:"amount"`
	Category    string         `db:"category" json:"category"`
	Description string         `db:"description" json:"description"`
	ExpenseDate time.Time      `db:"expense_date" json:"expense_date"`
	Meta        types.JSONText `db:"meta" json:"meta"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}
