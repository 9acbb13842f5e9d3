package importService

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/tidwall/gjson"

	"github.com/nikhil/doussel/internal/apperrors"
	"github.com/nikhil/doussel/internal/cache"
	"github.com/nikhil/doussel/internal/database"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/metrics"
	"github.com/nikhil/doussel/internal/models"
	"github.com/nikhil/doussel/internal/plans"
	expenseService "github.com/nikhil/doussel/internal/service/expenses"
	rentalService "github.com/nikhil/doussel/internal/service/rentals"
	teamService "github.com/nikhil/doussel/internal/service/team"
	"github.com/nikhil/doussel/pkg/utils"
)

// TeamAuthorizer checks team permissions and loads the team for its plan.
type TeamAuthorizer interface {
	Authorize(ctx context.Context, teamID, userID, perm string) (string, error)
	Load(ctx context.Context, teamID string) (*models.Team, error)
}

// LeaseAuthorizer loads a lease the actor may act on.
type LeaseAuthorizer interface {
	Authorize(ctx context.Context, actorID, leaseID, perm string) (*models.Lease, error)
}

type ImportService struct {
	DB     *sqlx.DB
	Teams  TeamAuthorizer
	Leases LeaseAuthorizer
	Cache  cache.CacheInterface
	Log    *logger.Logger
	Now    func() time.Time
}

func NewImportService(db *sqlx.DB, teams TeamAuthorizer, leases LeaseAuthorizer, c cache.CacheInterface) *ImportService {
	return &ImportService{
		DB:     db,
		Teams:  teams,
		Leases: leases,
		Cache:  c,
		Log:    logger.NewLogger("import-service"),
		Now:    time.Now,
	}
}

// ImportHash identifies a row within a team: SHA-256 of its JSON encoding
// followed by the team id. Map keys are sorted by encoding/json, so equal
// rows always hash the same.
func ImportHash(row Row, teamID string) (string, error) {
	_, hash, err := encodeRow(row, teamID)
	return hash, err
}

func encodeRow(row Row, teamID string) ([]byte, string, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, "", err
	}
	return data, utils.SHA256Hex(string(data) + teamID), nil
}

func checkResourceType(resourceType string) error {
	switch resourceType {
	case models.ImportExpense, models.ImportTransaction:
		return nil
	case models.ImportLease:
		return apperrors.Validation("lease imports are not supported")
	default:
		return apperrors.Validation("unknown resource type %q", resourceType)
	}
}

// StageResult reports a staging run.
type StageResult struct {
	Staged  int      `json:"staged"`
	Skipped int      `json:"skipped"`
	IDs     []string `json:"ids"`
}

// StageRows stores rows as pending staging entries. Rows already staged for
// the team, or repeated in the same batch, are skipped.
func (is *ImportService) StageRows(ctx context.Context, actorID, teamID, resourceType string, rows []Row) (*StageResult, error) {
	if err := checkResourceType(resourceType); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.Validation("no rows to import")
	}
	if len(rows) > MaxRows {
		return nil, apperrors.Validation("imports are limited to %d rows", MaxRows)
	}
	if _, err := is.Teams.Authorize(ctx, teamID, actorID, teamService.PermImportsManage); err != nil {
		return nil, err
	}
	team, err := is.Teams.Load(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if plan := plans.Get(team.SubscriptionTier); !plan.HasFeature(plans.FeatureImports) {
		return nil, fmt.Errorf("%w: imports are not included in the %s plan", apperrors.ErrQuotaExceeded, plan.Name)
	}

	hashes := make([]string, len(rows))
	raws := make([][]byte, len(rows))
	for i, row := range rows {
		raw, hash, err := encodeRow(row, teamID)
		if err != nil {
			return nil, apperrors.Validation("row %d: %v", i+1, err)
		}
		raws[i], hashes[i] = raw, hash
	}

	query, args, err := database.In(
		"SELECT import_hash FROM imports_staging WHERE team_id = ? AND import_hash IN (?)", teamID, hashes)
	if err != nil {
		return nil, err
	}
	var existing []string
	if err := database.Select(ctx, is.DB, &existing, query, args...); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing)+len(rows))
	for _, h := range existing {
		seen[h] = true
	}

	res := &StageResult{IDs: []string{}}
	now := is.Now().UTC()
	err = database.WithTx(ctx, is.DB, func(tx *sqlx.Tx) error {
		for i := range rows {
			if seen[hashes[i]] {
				res.Skipped++
				continue
			}
			seen[hashes[i]] = true
			id := uuid.NewString()
			if _, err := database.Exec(ctx, tx, `
				INSERT INTO imports_staging (id, team_id, imported_by, resource_type, raw_data, import_hash,
					status, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, teamID, actorID, resourceType, types.JSONText(raws[i]), hashes[i],
				models.StagingPending, now, now); err != nil {
				return err
			}
			res.IDs = append(res.IDs, id)
			res.Staged++
		}
		return nil
	})
	if err != nil {
		is.Log.Error("Failed to stage import", "error", err, "team_id", teamID)
		return nil, err
	}

	metrics.RecordImportRows(resourceType, "staged", res.Staged)
	metrics.RecordImportRows(resourceType, "duplicate", res.Skipped)
	is.Log.Info("Import staged", "team_id", teamID, "resource_type", resourceType, "staged", res.Staged, "skipped", res.Skipped)
	return res, nil
}

func (is *ImportService) loadStaging(ctx context.Context, actorID, id string) (*models.StagingRow, error) {
	var row models.StagingRow
	if err := database.Get(ctx, is.DB, &row,
		"SELECT "+models.StagingColumns+" FROM imports_staging WHERE id = ?", id); err != nil {
		return nil, apperrors.FromSQL(err, "import row")
	}
	if _, err := is.Teams.Authorize(ctx, row.TeamID, actorID, teamService.PermImportsManage); err != nil {
		return nil, err
	}
	if row.Status == models.StagingCommitted {
		return nil, fmt.Errorf("%w: import row already committed", apperrors.ErrConflict)
	}
	return &row, nil
}

// firstOf returns the first non-empty value among keys.
func firstOf(raw gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := raw.Get(k); v.Exists() && strings.TrimSpace(v.String()) != "" {
			return v
		}
	}
	return gjson.Result{}
}

// parseAmount reads numbers written as 150000, "150 000" or "1 250,50".
func parseAmount(v gjson.Result) (int64, error) {
	if v.Type == gjson.Number {
		return int64(math.Round(v.Float())), nil
	}
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f':
			return -1
		case ',':
			return '.'
		}
		return r
	}, v.String())
	s = strings.TrimSuffix(strings.TrimSuffix(strings.ToUpper(s), "FCFA"), "F")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, apperrors.Validation("invalid amount %q", v.String())
	}
	return int64(math.Round(f)), nil
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006", "2006-01-02T15:04:05Z07:00", "02-01-2006"}

func parseDate(v gjson.Result, fallback time.Time) (time.Time, error) {
	s := strings.TrimSpace(v.String())
	if s == "" {
		return fallback, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, apperrors.Validation("invalid date %q", s)
}

// StandardizedExpense is the normalized form of an expense row.
type StandardizedExpense struct {
	Amount      int64           `json:"amount"`
	Description string          `json:"description"`
	ExpenseDate string          `json:"expense_date"`
	Category    string          `json:"category"`
	TeamID      string          `json:"team_id"`
	LeaseID     string          `json:"lease_id,omitempty"`
	Meta        json.RawMessage `json:"meta"`
}

// StandardizedTransaction is the normalized form of a payment row.
type StandardizedTransaction struct {
	Amount      int64  `json:"amount"`
	PeriodMonth int    `json:"period_month"`
	PeriodYear  int    `json:"period_year"`
	PaidAt      string `json:"paid_at"`
	Method      string `json:"method,omitempty"`
	Reference   string `json:"reference,omitempty"`
	TeamID      string `json:"team_id"`
	LeaseID     string `json:"lease_id,omitempty"`
}

// Standardize maps the raw columns of a staged row onto the target schema
// and marks it validated. Rows that cannot be read are marked error.
func (is *ImportService) Standardize(ctx context.Context, actorID, stagingID string) (*models.StagingRow, error) {
	row, err := is.loadStaging(ctx, actorID, stagingID)
	if err != nil {
		return nil, err
	}

	raw := gjson.ParseBytes(row.RawData)
	today := is.Now().UTC()
	var standardized interface{}
	switch row.ResourceType {
	case models.ImportExpense:
		standardized, err = standardizeExpense(raw, row, today)
	case models.ImportTransaction:
		standardized, err = standardizeTransaction(raw, row, today)
	default:
		err = checkResourceType(row.ResourceType)
	}

	now := is.Now().UTC()
	if err != nil {
		if _, uerr := database.Exec(ctx, is.DB,
			"UPDATE imports_staging SET status = ?, updated_at = ? WHERE id = ?",
			models.StagingError, now, row.ID); uerr != nil {
			is.Log.Warn("Failed to flag import row", "error", uerr, "staging_id", row.ID)
		}
		metrics.RecordImportRows(row.ResourceType, "error", 1)
		return nil, err
	}

	data, err := json.Marshal(standardized)
	if err != nil {
		return nil, err
	}
	if _, err := database.Exec(ctx, is.DB,
		"UPDATE imports_staging SET standardized_data = ?, status = ?, updated_at = ? WHERE id = ?",
		types.JSONText(data), models.StagingValidated, now, row.ID); err != nil {
		return nil, err
	}
	row.StandardizedData = data
	row.Status = models.StagingValidated
	row.UpdatedAt = now
	metrics.RecordImportRows(row.ResourceType, "validated", 1)
	return row, nil
}

func standardizeExpense(raw gjson.Result, row *models.StagingRow, today time.Time) (*StandardizedExpense, error) {
	amount, err := parseAmount(firstOf(raw, "montant", "amount"))
	if err != nil {
		return nil, err
	}
	date, err := parseDate(firstOf(raw, "date"), today)
	if err != nil {
		return nil, err
	}
	description := firstOf(raw, "description", "libelle").String()
	if description == "" {
		description = "Import sans description"
	}
	category := strings.ToLower(firstOf(raw, "categorie", "category").String())
	if !expenseService.Categories[category] {
		category = models.ExpenseCategoryOther
	}
	meta, err := json.Marshal(map[string]interface{}{
		"import_source": "staging",
		"original_data": json.RawMessage(row.RawData),
	})
	if err != nil {
		return nil, err
	}
	return &StandardizedExpense{
		Amount:      amount,
		Description: description,
		ExpenseDate: date.Format("2006-01-02"),
		Category:    category,
		TeamID:      row.TeamID,
		LeaseID:     firstOf(raw, "lease_id").String(),
		Meta:        meta,
	}, nil
}

func standardizeTransaction(raw gjson.Result, row *models.StagingRow, today time.Time) (*StandardizedTransaction, error) {
	amount, err := parseAmount(firstOf(raw, "montant", "amount"))
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, apperrors.Validation("amount must be positive")
	}
	date, err := parseDate(firstOf(raw, "date"), today)
	if err != nil {
		return nil, err
	}
	return &StandardizedTransaction{
		Amount:      amount,
		PeriodMonth: int(date.Month()),
		PeriodYear:  date.Year(),
		PaidAt:      date.Format("2006-01-02"),
		Method:      firstOf(raw, "methode", "method", "mode").String(),
		Reference:   firstOf(raw, "reference", "ref").String(),
		TeamID:      row.TeamID,
		LeaseID:     firstOf(raw, "lease_id").String(),
	}, nil
}

// MatchResult is the lease a row was matched to.
type MatchResult struct {
	StagingID     string  `json:"staging_id"`
	LeaseID       string  `json:"lease_id"`
	TenantName    string  `json:"tenant_name"`
	Score         float64 `json:"score"`
	AutoValidated bool    `json:"auto_validated"`
}

// FuzzyMatch looks for the team lease a row most likely refers to, from its
// description, property_name and tenant_name columns. It returns nil when no
// lease scores at least MinMatchScore. Above AutoMatchScore the row is
// validated and the lease id is written into its standardized data.
func (is *ImportService) FuzzyMatch(ctx context.Context, actorID, stagingID string) (*MatchResult, error) {
	row, err := is.loadStaging(ctx, actorID, stagingID)
	if err != nil {
		return nil, err
	}

	raw := gjson.ParseBytes(row.RawData)
	text := strings.Join([]string{
		raw.Get("description").String(),
		raw.Get("property_name").String(),
		raw.Get("tenant_name").String(),
	}, " ")

	var candidates []Candidate
	if err := database.Select(ctx, is.DB, &candidates,
		"SELECT id, tenant_name, property_address FROM leases WHERE team_id = ?", row.TeamID); err != nil {
		return nil, err
	}
	best, score := BestMatch(text, candidates)
	if best == nil {
		is.Log.Debug("No lease matched import row", "staging_id", row.ID, "best_score", score)
		return nil, nil
	}

	res := &MatchResult{StagingID: row.ID, LeaseID: best.ID, TenantName: best.TenantName, Score: score}
	now := is.Now().UTC()
	if score > AutoMatchScore {
		res.AutoValidated = true
		standardized := row.StandardizedData
		if !isEmptyJSON(standardized) {
			var fields map[string]interface{}
			if err := json.Unmarshal(standardized, &fields); err != nil {
				return nil, err
			}
			fields["lease_id"] = best.ID
			if standardized, err = json.Marshal(fields); err != nil {
				return nil, err
			}
		}
		_, err = database.Exec(ctx, is.DB, `
			UPDATE imports_staging SET match_score = ?, matched_resource_id = ?, status = ?,
				standardized_data = ?, updated_at = ?
			WHERE id = ?`,
			score, best.ID, models.StagingValidated, nullableJSON(standardized), now, row.ID)
	} else {
		_, err = database.Exec(ctx, is.DB,
			"UPDATE imports_staging SET match_score = ?, matched_resource_id = ?, updated_at = ? WHERE id = ?",
			score, best.ID, now, row.ID)
	}
	if err != nil {
		return nil, err
	}
	is.Log.Info("Import row matched", "staging_id", row.ID, "lease_id", best.ID, "score", score, "auto", res.AutoValidated)
	return res, nil
}

// isEmptyJSON is true for NULL columns, which JSONText scans as {}.
func isEmptyJSON(data types.JSONText) bool {
	s := strings.TrimSpace(string(data))
	return s == "" || s == "{}" || s == "null"
}

func nullableJSON(data types.JSONText) interface{} {
	if isEmptyJSON(data) {
		return nil
	}
	return data
}

// CommitResult reports a commit run.
type CommitResult struct {
	Count  int      `json:"count"`
	Failed []string `json:"failed,omitempty"`
}

// Commit moves the validated rows of a team into the production tables in a
// single transaction and marks them committed. Payment rows without a lease
// are flagged error and left out.
func (is *ImportService) Commit(ctx context.Context, actorID, teamID, resourceType string) (*CommitResult, error) {
	if err := checkResourceType(resourceType); err != nil {
		return nil, err
	}
	if _, err := is.Teams.Authorize(ctx, teamID, actorID, teamService.PermImportsManage); err != nil {
		return nil, err
	}

	var rows []models.StagingRow
	if err := database.Select(ctx, is.DB, &rows,
		"SELECT "+models.StagingColumns+" FROM imports_staging WHERE team_id = ? AND resource_type = ? AND status = ?",
		teamID, resourceType, models.StagingValidated); err != nil {
		return nil, err
	}
	res := &CommitResult{}
	if len(rows) == 0 {
		return res, nil
	}

	now := is.Now().UTC()
	owners := map[string]bool{actorID: true}
	err := database.WithTx(ctx, is.DB, func(tx *sqlx.Tx) error {
		for i := range rows {
			row := &rows[i]
			var err error
			if resourceType == models.ImportExpense {
				err = commitExpense(ctx, tx, row, actorID, now)
			} else {
				var ownerID string
				ownerID, err = commitTransaction(ctx, tx, row, now)
				if ownerID != "" {
					owners[ownerID] = true
				}
			}
			status := models.StagingCommitted
			if err != nil {
				if !isRowError(err) {
					return err
				}
				res.Failed = append(res.Failed, fmt.Sprintf("%s: %v", row.ID, err))
				status = models.StagingError
			} else {
				res.Count++
			}
			if _, err := database.Exec(ctx, tx,
				"UPDATE imports_staging SET status = ?, updated_at = ? WHERE id = ?", status, now, row.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		is.Log.Error("Import commit failed", "error", err, "team_id", teamID)
		return nil, err
	}

	if res.Count > 0 {
		for ownerID := range owners {
			is.invalidateSummaries(ctx, ownerID, &teamID)
		}
	}
	metrics.RecordImportRows(resourceType, "committed", res.Count)
	metrics.RecordImportRows(resourceType, "error", len(res.Failed))
	is.Log.Audit("Import committed", "team_id", teamID, "user_id", actorID, "resource_type", resourceType, "count", res.Count)
	return res, nil
}

func isRowError(err error) bool {
	return errors.Is(err, apperrors.ErrValidation) || errors.Is(err, apperrors.ErrNotFound)
}

func commitExpense(ctx context.Context, tx *sqlx.Tx, row *models.StagingRow, actorID string, now time.Time) error {
	var s StandardizedExpense
	if err := json.Unmarshal(row.StandardizedData, &s); err != nil {
		return apperrors.Validation("row was not standardized")
	}
	date, err := time.Parse("2006-01-02", s.ExpenseDate)
	if err != nil {
		return apperrors.Validation("invalid expense_date %q", s.ExpenseDate)
	}
	teamID := row.TeamID
	e := &models.Expense{
		ID:          uuid.NewString(),
		TeamID:      &teamID,
		OwnerID:     actorID,
		Amount:      s.Amount,
		Category:    s.Category,
		Description: s.Description,
		ExpenseDate: date,
		Meta:        types.JSONText(s.Meta),
		CreatedAt:   now,
	}
	if len(e.Meta) == 0 {
		e.Meta = types.JSONText("{}")
	}
	if s.LeaseID != "" {
		if err := expenseService.CheckInScope(ctx, tx, "lease", s.LeaseID, actorID, &teamID); err != nil {
			return err
		}
		e.LeaseID = &s.LeaseID
	}
	return expenseService.InsertExpense(ctx, tx, e)
}

// commitTransaction applies an imported payment to the transaction of its
// period, creating the transaction when the period was never generated. It
// returns the owner of the lease the payment went to.
func commitTransaction(ctx context.Context, tx *sqlx.Tx, row *models.StagingRow, now time.Time) (string, error) {
	var s StandardizedTransaction
	if err := json.Unmarshal(row.StandardizedData, &s); err != nil {
		return "", apperrors.Validation("row was not standardized")
	}
	if s.LeaseID == "" {
		return "", apperrors.Validation("payment is not linked to a lease")
	}
	var lease models.Lease
	if err := database.Get(ctx, tx, &lease,
		"SELECT "+models.LeaseColumns+" FROM leases WHERE id = ? AND team_id = ?", s.LeaseID, row.TeamID); err != nil {
		return "", apperrors.FromSQL(err, "lease")
	}
	paidAt, err := time.Parse("2006-01-02", s.PaidAt)
	if err != nil {
		paidAt = now
	}
	var method, ref *string
	if s.Method != "" {
		method = &s.Method
	}
	if s.Reference != "" {
		ref = &s.Reference
	}

	var existing models.RentalTransaction
	err = database.Get(ctx, tx, &existing,
		"SELECT "+models.RentalColumns+" FROM rental_transactions WHERE lease_id = ? AND period_month = ? AND period_year = ? FOR UPDATE",
		lease.ID, s.PeriodMonth, s.PeriodYear)
	if errors.Is(err, sql.ErrNoRows) {
		t := rentalService.NewTransaction(&lease, s.PeriodYear, time.Month(s.PeriodMonth), now)
		t.AmountPaid = s.Amount
		if t.AmountPaid >= t.AmountDue {
			t.Status = models.TxPaid
		}
		if err := rentalService.InsertTransaction(ctx, tx, t); err != nil {
			return "", err
		}
		_, err = database.Exec(ctx, tx,
			"UPDATE rental_transactions SET paid_at = ?, payment_method = ?, payment_ref = ? WHERE id = ?",
			paidAt, method, ref, t.ID)
		return lease.OwnerID, err
	}
	if err != nil {
		return "", err
	}

	existing.AmountPaid += s.Amount
	if existing.AmountPaid >= existing.AmountDue {
		existing.Status = models.TxPaid
	}
	_, err = database.Exec(ctx, tx, `
		UPDATE rental_transactions SET amount_paid = ?, status = ?, paid_at = ?, payment_method = ?,
			payment_ref = ?, updated_at = ?
		WHERE id = ?`,
		existing.AmountPaid, existing.Status, paidAt, method, ref, now, existing.ID)
	return lease.OwnerID, err
}

func (is *ImportService) invalidateSummaries(ctx context.Context, ownerID string, teamID *string) {
	if err := rentalService.InvalidateSummaries(ctx, is.Cache, ownerID, teamID); err != nil {
		is.Log.Warn("Failed to invalidate financial summary", "error", err, "owner_id", ownerID)
	}
}

// LinkExpenseToLease attaches an expense to a lease by hand and records the
// correction in the expense meta under user_corrections.
func (is *ImportService) LinkExpenseToLease(ctx context.Context, actorID, expenseID, leaseID string) (*models.Expense, error) {
	lease, err := is.Leases.Authorize(ctx, actorID, leaseID, teamService.PermExpensesManage)
	if err != nil {
		return nil, err
	}

	var expense models.Expense
	if err := database.Get(ctx, is.DB, &expense, `
		SELECT id, team_id, owner_id, lease_id, property_id, amount, category, description, expense_date, meta, created_at
		FROM expenses WHERE id = ?`, expenseID); err != nil {
		return nil, apperrors.FromSQL(err, "expense")
	}
	switch {
	case expense.OwnerID == actorID:
	case expense.TeamID != nil:
		if _, err := is.Teams.Authorize(ctx, *expense.TeamID, actorID, teamService.PermExpensesManage); err != nil {
			return nil, err
		}
	default:
		return nil, apperrors.NotFound("expense")
	}

	meta := map[string]interface{}{}
	if len(expense.Meta) > 0 {
		if err := json.Unmarshal(expense.Meta, &meta); err != nil {
			meta = map[string]interface{}{}
		}
	}
	corrections, _ := meta["user_corrections"].([]interface{})
	meta["user_corrections"] = append(corrections, map[string]interface{}{
		"type":      "manual_link",
		"lease_id":  leaseID,
		"user_id":   actorID,
		"timestamp": is.Now().UTC().Format(time.RFC3339),
	})
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}

	if _, err := database.Exec(ctx, is.DB,
		"UPDATE expenses SET lease_id = ?, team_id = ?, meta = ? WHERE id = ?",
		leaseID, lease.TeamID, types.JSONText(data), expenseID); err != nil {
		return nil, err
	}
	is.invalidateSummaries(ctx, expense.OwnerID, expense.TeamID)
	is.invalidateSummaries(ctx, expense.OwnerID, lease.TeamID)
	expense.LeaseID = &leaseID
	expense.TeamID = lease.TeamID
	expense.Meta = data
	is.Log.Info("Expense linked to lease", "expense_id", expenseID, "lease_id", leaseID, "user_id", actorID)
	return &expense, nil
}
