package expenseService

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/nikhil/doussel/internal/apperrors"
	"github.com/nikhil/doussel/internal/cache"
	"github.com/nikhil/doussel/internal/database"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/models"
	rentalService "github.com/nikhil/doussel/internal/service/rentals"
	teamService "github.com/nikhil/doussel/internal/service/team"
)

// Categories lists the accepted expense categories.
var Categories = map[string]bool{
	"maintenance": true,
	"repairs":     true,
	"tax":         true,
	"insurance":   true,
	"utilities":   true,
	"fees":        true,
	"other":       true,
}

const expenseColumns = `id, team_id, owner_id, lease_id, property_id, amount, category, description,
	expense_date, meta, created_at`

// TeamAuthorizer checks team permissions.
type TeamAuthorizer interface {
	Authorize(ctx context.Context, teamID, userID, perm string) (string, error)
}

type ExpenseService struct {
	DB    *sqlx.DB
	Teams TeamAuthorizer
	Cache cache.CacheInterface
	Log   *logger.Logger
	Now   func() time.Time
}

func NewExpenseService(db *sqlx.DB, teams TeamAuthorizer, c cache.CacheInterface) *ExpenseService {
	return &ExpenseService{
		DB:    db,
		Teams: teams,
		Cache: c,
		Log:   logger.NewLogger("expense-service"),
		Now:   time.Now,
	}
}

type ExpenseInput struct {
	TeamID      *string `json:"team_id"`
	LeaseID     *string `json:"lease_id"`
	PropertyID  *string `json:"property_id"`
	Amount      int64   `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	ExpenseDate string  `json:"expense_date"`
}

var scopedTables = map[string]string{"lease": "leases", "property": "properties"}

// CheckInScope returns NotFound unless the lease or property id belongs to
// the team, or to the owner's personal portfolio when teamID is nil.
func CheckInScope(ctx context.Context, q sqlx.ExtContext, resource, id, ownerID string, teamID *string) error {
	where, args := "id = ? AND owner_id = ? AND team_id IS NULL", []interface{}{id, ownerID}
	if teamID != nil {
		where, args = "id = ? AND team_id = ?", []interface{}{id, *teamID}
	}
	var n int
	if err := database.Get(ctx, q, &n, "SELECT COUNT(*) FROM "+scopedTables[resource]+" WHERE "+where, args...); err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFound(resource)
	}
	return nil
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func (es *ExpenseService) invalidateSummaries(ctx context.Context, ownerID string, teamID *string) {
	if err := rentalService.InvalidateSummaries(ctx, es.Cache, ownerID, teamID); err != nil {
		es.Log.Warn("Failed to invalidate financial summary", "error", err, "owner_id", ownerID)
	}
}

func parseDay(s string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(s))
}

func (es *ExpenseService) CreateExpense(ctx context.Context, actorID string, in ExpenseInput) (*models.Expense, error) {
	if in.Amount <= 0 {
		return nil, apperrors.Validation("amount must be positive")
	}
	category := strings.ToLower(strings.TrimSpace(in.Category))
	if category == "" {
		category = models.ExpenseCategoryOther
	}
	if !Categories[category] {
		return nil, apperrors.Validation("unknown category %q", in.Category)
	}

	now := es.Now().UTC()
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if in.ExpenseDate != "" {
		d, err := parseDay(in.ExpenseDate)
		if err != nil {
			return nil, apperrors.Validation("expense_date must be YYYY-MM-DD")
		}
		date = d
	}

	if in.TeamID != nil && *in.TeamID != "" {
		if _, err := es.Teams.Authorize(ctx, *in.TeamID, actorID, teamService.PermExpensesManage); err != nil {
			return nil, err
		}
	} else {
		in.TeamID = nil
	}
	in.LeaseID, in.PropertyID = nonEmpty(in.LeaseID), nonEmpty(in.PropertyID)
	if in.LeaseID != nil {
		if err := CheckInScope(ctx, es.DB, "lease", *in.LeaseID, actorID, in.TeamID); err != nil {
			return nil, err
		}
	}
	if in.PropertyID != nil {
		if err := CheckInScope(ctx, es.DB, "property", *in.PropertyID, actorID, in.TeamID); err != nil {
			return nil, err
		}
	}

	expense := &models.Expense{
		ID:          uuid.NewString(),
		TeamID:      in.TeamID,
		OwnerID:     actorID,
		LeaseID:     in.LeaseID,
		PropertyID:  in.PropertyID,
		Amount:      in.Amount,
		Category:    category,
		Description: strings.TrimSpace(in.Description),
		ExpenseDate: date,
		Meta:        types.JSONText("{}"),
		CreatedAt:   now,
	}
	if err := InsertExpense(ctx, es.DB, expense); err != nil {
		es.Log.Error("Failed to create expense", "error", err)
		return nil, err
	}
	es.invalidateSummaries(ctx, actorID, expense.TeamID)
	es.Log.Info("Expense created", "expense_id", expense.ID, "amount", expense.Amount)
	return expense, nil
}

// InsertExpense writes e using q, which may be a transaction.
func InsertExpense(ctx context.Context, q sqlx.ExtContext, e *models.Expense) error {
	_, err := database.Exec(ctx, q, `
		INSERT INTO expenses (id, team_id, owner_id, lease_id, property_id, amount, category, description,
			expense_date, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TeamID, e.OwnerID, e.LeaseID, e.PropertyID, e.Amount, e.Category, e.Description,
		e.ExpenseDate, e.Meta, e.CreatedAt)
	return err
}

// ListExpenses returns the expenses of a team, or the actor's own when teamID
// is empty, between from and to inclusive. Empty bounds are open.
func (es *ExpenseService) ListExpenses(ctx context.Context, actorID, teamID, from, to string) ([]models.Expense, error) {
	where, args := "owner_id = ? AND team_id IS NULL", []interface{}{actorID}
	if teamID != "" {
		if _, err := es.Teams.Authorize(ctx, teamID, actorID, teamService.PermFinanceView); err != nil {
			return nil, err
		}
		where, args = "team_id = ?", []interface{}{teamID}
	}
	for _, bound := range []struct{ value, op string }{{from, ">="}, {to, "<="}} {
		if bound.value == "" {
			continue
		}
		d, err := parseDay(bound.value)
		if err != nil {
			return nil, apperrors.Validation("dates must be YYYY-MM-DD")
		}
		where += " AND expense_date " + bound.op + " ?"
		args = append(args, d)
	}

	expenses := []models.Expense{}
	err := database.Select(ctx, es.DB, &expenses,
		"SELECT "+expenseColumns+" FROM expenses WHERE "+where+" ORDER BY expense_date DESC", args...)
	return expenses, err
}

// Load returns an expense by id.
func (es *ExpenseService) Load(ctx context.Context, id string) (*models.Expense, error) {
	var e models.Expense
	if err := database.Get(ctx, es.DB, &e, "SELECT "+expenseColumns+" FROM expenses WHERE id = ?", id); err != nil {
		return nil, apperrors.FromSQL(err, "expense")
	}
	return &e, nil
}

// Authorize loads an expense the actor may manage: its owner, or a team
// member with expenses.manage.
func (es *ExpenseService) Authorize(ctx context.Context, actorID, id string) (*models.Expense, error) {
	e, err := es.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.OwnerID == actorID {
		return e, nil
	}
	if e.TeamID == nil {
		return nil, apperrors.NotFound("expense")
	}
	if _, err := es.Teams.Authorize(ctx, *e.TeamID, actorID, teamService.PermExpensesManage); err != nil {
		return nil, err
	}
	return e, nil
}

func (es *ExpenseService) DeleteExpense(ctx context.Context, actorID, id string) error {
	e, err := es.Authorize(ctx, actorID, id)
	if err != nil {
		return err
	}
	if _, err := database.Exec(ctx, es.DB, "DELETE FROM expenses WHERE id = ?", id); err != nil {
		return err
	}
	es.invalidateSummaries(ctx, e.OwnerID, e.TeamID)
	es.Log.Info("Expense deleted", "expense_id", id, "user_id", actorID)
	return nil
}
