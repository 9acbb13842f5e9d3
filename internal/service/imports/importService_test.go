package importService

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhil/doussel/internal/apperrors"
	"github.com/nikhil/doussel/internal/cache"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/models"
)

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeTeams struct {
	deny bool
	tier string
}

func (f fakeTeams) Authorize(_ context.Context, teamID, userID, perm string) (string, error) {
	if f.deny {
		return "", apperrors.Forbidden("missing permission " + perm)
	}
	return "manager", nil
}

func (f fakeTeams) Load(_ context.Context, teamID string) (*models.Team, error) {
	tier := f.tier
	if tier == "" {
		tier = "pro"
	}
	return &models.Team{ID: teamID, SubscriptionTier: tier}, nil
}

type fakeLeases struct{ deny bool }

func (f fakeLeases) Authorize(_ context.Context, actorID, leaseID, perm string) (*models.Lease, error) {
	if f.deny {
		return nil, apperrors.Forbidden("missing permission " + perm)
	}
	team := "team-1"
	return &models.Lease{ID: leaseID, TeamID: &team, OwnerID: "owner-1"}, nil
}

// captured matches any argument and keeps it for later assertions.
type captured struct{ value driver.Value }

func (c *captured) Match(v driver.Value) bool {
	c.value = v
	return true
}

func newTestService(t *testing.T) (*ImportService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &ImportService{
		DB:     sqlx.NewDb(db, "postgres"),
		Teams:  fakeTeams{},
		Leases: fakeLeases{},
		Cache:  cache.NoopCache{},
		Log:    logger.NewNop(),
		Now:    func() time.Time { return fixedNow },
	}, mock
}

var stagingCols = []string{"id", "team_id", "imported_by", "resource_type", "raw_data", "standardized_data",
	"import_hash", "status", "match_score", "matched_resource_id", "created_at", "updated_at"}

func stagingRow(resourceType, raw, standardized, status string) *sqlmock.Rows {
	var std interface{}
	if standardized != "" {
		std = []byte(standardized)
	}
	return sqlmock.NewRows(stagingCols).
		AddRow("stg-1", "team-1", "user-1", resourceType, []byte(raw), std, "hash", status, nil, nil, fixedNow, fixedNow)
}

func TestParseCSVSemicolon(t *testing.T) {
	input := "\ufeffDate;Libelle;Montant;Categorie\n" +
		"28/02/2025;Réparation fuite;150 000;repairs\n" +
		";;;\n" +
		"01/03/2025;Taxe ordures;12000;\n"
	rows, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"date": "28/02/2025", "libelle": "Réparation fuite", "montant": "150 000", "categorie": "repairs"}, rows[0])
	assert.NotContains(t, rows[1], "categorie")
}

func TestParseCSVComma(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader("amount,description\n5000,\"Peinture, salon\"\n"))
	require.NoError(t, err)
	assert.Equal(t, []Row{{"amount": "5000", "description": "Peinture, salon"}}, rows)
}

func TestParseCSVErrors(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = ParseCSV(strings.NewReader("amount,description\n"))
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestImportHashIsStable(t *testing.T) {
	a, err := ImportHash(Row{"montant": "1000", "date": "2025-03-01"}, "team-1")
	require.NoError(t, err)
	b, err := ImportHash(Row{"date": "2025-03-01", "montant": "1000"}, "team-1")
	require.NoError(t, err)
	c, err := ImportHash(Row{"date": "2025-03-01", "montant": "1000"}, "team-2")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestStageRowsSkipsDuplicates(t *testing.T) {
	is, mock := newTestService(t)
	rows := []Row{{"montant": "1000"}, {"montant": "1000"}, {"montant": "2000"}}
	h1, _ := ImportHash(rows[0], "team-1")
	h3, _ := ImportHash(rows[2], "team-1")

	mock.ExpectQuery("SELECT import_hash FROM imports_staging").
		WithArgs("team-1", h1, h1, h3).
		WillReturnRows(sqlmock.NewRows([]string{"import_hash"}).AddRow(h3))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO imports_staging").
		WithArgs(sqlmock.AnyArg(), "team-1", "user-1", "expense", sqlmock.AnyArg(), h1, "pending", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := is.StageRows(context.Background(), "user-1", "team-1", models.ImportExpense, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Staged)
	assert.Equal(t, 2, res.Skipped)
	assert.Len(t, res.IDs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStageRowsRejects(t *testing.T) {
	is, _ := newTestService(t)
	_, err := is.StageRows(context.Background(), "user-1", "team-1", models.ImportLease, []Row{{"a": "b"}})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = is.StageRows(context.Background(), "user-1", "team-1", models.ImportExpense, nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	is.Teams = fakeTeams{deny: true}
	_, err = is.StageRows(context.Background(), "user-1", "team-1", models.ImportExpense, []Row{{"a": "b"}})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestStageRowsRequiresImportsFeature(t *testing.T) {
	is, mock := newTestService(t)
	is.Teams = fakeTeams{tier: "starter"}
	_, err := is.StageRows(context.Background(), "user-1", "team-1", models.ImportExpense, []Row{{"montant": "1000"}})
	assert.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStandardizeExpense(t *testing.T) {
	is, mock := newTestService(t)
	raw := `{"date":"28/02/2025","libelle":"Réparation fuite","montant":"150 000","categorie":"Repairs"}`
	mock.ExpectQuery("FROM imports_staging WHERE id").WithArgs("stg-1").
		WillReturnRows(stagingRow("expense", raw, "", "pending"))
	std := &captured{}
	mock.ExpectExec("UPDATE imports_staging SET standardized_data").
		WithArgs(std, "validated", fixedNow, "stg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	row, err := is.Standardize(context.Background(), "user-1", "stg-1")
	require.NoError(t, err)
	assert.Equal(t, models.StagingValidated, row.Status)

	var got StandardizedExpense
	require.NoError(t, json.Unmarshal(std.value.([]byte), &got))
	assert.Equal(t, int64(150000), got.Amount)
	assert.Equal(t, "Réparation fuite", got.Description)
	assert.Equal(t, "2025-02-28", got.ExpenseDate)
	assert.Equal(t, "repairs", got.Category)
	assert.Equal(t, "team-1", got.TeamID)
	assert.JSONEq(t, `{"import_source":"staging","original_data":`+raw+`}`, string(got.Meta))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStandardizeExpenseDefaults(t *testing.T) {
	is, mock := newTestService(t)
	mock.ExpectQuery("FROM imports_staging WHERE id").
		WillReturnRows(stagingRow("expense", `{"amount":2500,"category":"voyage"}`, "", "pending"))
	std := &captured{}
	mock.ExpectExec("UPDATE imports_staging SET standardized_data").
		WithArgs(std, "validated", fixedNow, "stg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := is.Standardize(context.Background(), "user-1", "stg-1")
	require.NoError(t, err)
	var got StandardizedExpense
	require.NoError(t, json.Unmarshal(std.value.([]byte), &got))
	assert.Equal(t, int64(2500), got.Amount)
	assert.Equal(t, "Import sans description", got.Description)
	assert.Equal(t, "2025-03-10", got.ExpenseDate)
	assert.Equal(t, "other", got.Category)
}

func TestStandardizeTransaction(t *testing.T) {
	is, mock := newTestService(t)
	mock.ExpectQuery("FROM imports_staging WHERE id").
		WillReturnRows(stagingRow("transaction", `{"date":"2025-02-03","montant":"150000","methode":"wave"}`, "", "pending"))
	std := &captured{}
	mock.ExpectExec("UPDATE imports_staging SET standardized_data").
		WithArgs(std, "validated", fixedNow, "stg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := is.Standardize(context.Background(), "user-1", "stg-1")
	require.NoError(t, err)
	var got StandardizedTransaction
	require.NoError(t, json.Unmarshal(std.value.([]byte), &got))
	assert.Equal(t, StandardizedTransaction{
		Amount: 150000, PeriodMonth: 2, PeriodYear: 2025, PaidAt: "2025-02-03", Method: "wave", TeamID: "team-1",
	}, got)
}

func TestStandardizeFlagsUnreadableRows(t *testing.T) {
	is, mock := newTestService(t)
	mock.ExpectQuery("FROM imports_staging WHERE id").
		WillReturnRows(stagingRow("expense", `{"montant":"beaucoup"}`, "", "pending"))
	mock.ExpectExec("UPDATE imports_staging SET status").
		WithArgs("error", fixedNow, "stg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := is.Standardize(context.Background(), "user-1", "stg-1")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStandardizeCommittedRow(t *testing.T) {
	is, mock := newTestService(t)
	mock.ExpectQuery("FROM imports_staging WHERE id").
		WillReturnRows(stagingRow("expense", `{}`, "", "committed"))
	_, err := is.Standardize(context.Background(), "user-1", "stg-1")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestBestMatch(t *testing.T) {
	candidates := []Candidate{
		{ID: "l1", TenantName: "Moussa Fall", PropertyAddress: "Villa 12, Mermoz"},
		{ID: "l2", TenantName: "Awa Ndiaye", PropertyAddress: "Appartement 3B, Sacré-Cœur 3"},
	}

	best, score := BestMatch("Virement loyer mars MOUSSA FALL", candidates)
	require.NotNil(t, best)
	assert.Equal(t, "l1", best.ID)
	assert.InDelta(t, 1.0, score, 0.001)

	best, _ = BestMatch("Loyer Awa Ndiay", candidates)
	require.NotNil(t, best)
	assert.Equal(t, "l2", best.ID)

	best, score = BestMatch("Facture Senelec", candidates)
	assert.Nil(t, best)
	assert.Less(t, score, MinMatchScore)

	best, _ = BestMatch("anything", nil)
	assert.Nil(t, best)
}

func TestFuzzyMatchAutoValidates(t *testing.T) {
	is, mock := newTestService(t)
	mock.ExpectQuery("FROM imports_staging WHERE id").
		WillReturnRows(stagingRow("transaction", `{"description":"Loyer mars","tenant_name":"Moussa Fall"}`,
			`{"amount":150000,"team_id":"team-1"}`, "validated"))
	mock.ExpectQuery("SELECT id, tenant_name, property_address FROM leases").WithArgs("team-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_name", "property_address"}).
			AddRow("l1", "Moussa Fall", "Villa 12, Mermoz").
			AddRow("l2", "Awa Ndiaye", "Sacré-Cœur 3"))
	std := &captured{}
	mock.ExpectExec("UPDATE imports_staging SET match_score").
		WithArgs(sqlmock.AnyArg(), "l1", "validated", std, fixedNow, "stg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := is.FuzzyMatch(context.Background(), "user-1", "stg-1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.AutoValidated)
	assert.Equal(t, "l1", res.LeaseID)
	assert.JSONEq(t, `{"amount":150000,"team_id":"team-1","lease_id":"l1"}`, string(std.value.([]byte)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFuzzyMatchSuggestsBelowAutoScore(t *testing.T) {
	is, mock := newTestService(t)
	mock.ExpectQuery("FROM imports_staging WHERE id").
		WillReturnRows(stagingRow("transaction", `{"description":"Loyer Awa Ndiay"}`,
			`{"amount":90000,"team_id":"team-1"}`, "validated"))
	mock.ExpectQuery("SELECT id, tenant_name, property_address FROM leases").WithArgs("team-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_name", "property_address"}).
			AddRow("l1", "Moussa Fall", "Villa 12, Mermoz").
			AddRow("l2", "Awa Ndiaye", "Sacré-Cœur 3"))
	score := &captured{}
	mock.ExpectExec("UPDATE imports_staging SET match_score = \\$1, matched_resource_id = \\$2, updated_at = \\$3 WHERE id").
		WithArgs(score, "l2", fixedNow, "stg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := is.FuzzyMatch(context.Background(), "user-1", "stg-1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.AutoValidated)
	assert.Equal(t, "l2", res.LeaseID)
	assert.GreaterOrEqual(t, res.Score, MinMatchScore)
	assert.LessOrEqual(t, res.Score, AutoMatchScore)
	assert.Equal(t, res.Score, score.value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFuzzyMatchNoCandidate(t *testing.T) {
	is, mock := newTestService(t)
	mock.ExpectQuery("FROM imports_staging WHERE id").
		WillReturnRows(stagingRow("expense", `{"description":"Facture Senelec"}`, "", "pending"))
	mock.ExpectQuery("SELECT id, tenant_name, property_address FROM leases").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_name", "property_address"}).
			AddRow("l1", "Moussa Fall", "Villa 12, Mermoz"))

	res, err := is.FuzzyMatch(context.Background(), "user-1", "stg-1")
	require.NoError(t, err)
	assert.Nil(t, res)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitExpenses(t *testing.T) {
	is, mock := newTestService(t)
	mock.ExpectQuery("FROM imports_staging WHERE team_id").WithArgs("team-1", "expense", "validated").
		WillReturnRows(stagingRow("expense", `{}`,
			`{"amount":150000,"description":"Réparation fuite","expense_date":"2025-02-28","category":"repairs","team_id":"team-1","meta":{"import_source":"staging"}}`,
			"validated"))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO expenses").
		WithArgs(sqlmock.AnyArg(), "team-1", "user-1", nil, nil, int64(150000), "repairs", "Réparation fuite",
			time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), sqlmock.AnyArg(), fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE imports_staging SET status").WithArgs("committed", fixedNow, "stg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := is.Commit(context.Background(), "user-1", "team-1", models.ImportExpense)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Empty(t, res.Failed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitExpenseForeignLease(t *testing.T) {
	is, mock := newTestService(t)
	mock.ExpectQuery("FROM imports_staging WHERE team_id").
		WillReturnRows(stagingRow("expense", `{}`,
			`{"amount":1000,"description":"Peinture","expense_date":"2025-02-28","category":"other","team_id":"team-1","lease_id":"lease-of-team-2"}`,
			"validated"))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM leases WHERE id = \\$1 AND team_id = \\$2").
		WithArgs("lease-of-team-2", "team-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("UPDATE imports_staging SET status").WithArgs("error", fixedNow, "stg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := is.Commit(context.Background(), "user-1", "team-1", models.ImportExpense)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	require.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed[0], "lease not found")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitTransactionAddsToExistingPeriod(t *testing.T) {
	is, mock := newTestService(t)
	mr := miniredis.RunT(t)
	is.Cache = cache.NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:")

	mock.ExpectQuery("FROM imports_staging WHERE team_id").WithArgs("team-1", "transaction", "validated").
		WillReturnRows(stagingRow("transaction", `{}`,
			`{"amount":50000,"period_month":2,"period_year":2025,"paid_at":"2025-02-03","method":"wave","team_id":"team-1","lease_id":"l1"}`,
			"validated"))
	mock.ExpectBegin()
	mock.ExpectQuery("FROM leases WHERE id = \\$1 AND team_id = \\$2").WithArgs("l1", "team-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "team_id", "owner_id", "monthly_amount"}).
			AddRow("l1", "team-1", "owner-1", int64(150000)))
	mock.ExpectQuery("FROM rental_transactions WHERE lease_id = \\$1 AND period_month = \\$2 AND period_year = \\$3 FOR UPDATE").
		WithArgs("l1", 2, 2025).
		WillReturnRows(sqlmock.NewRows([]string{"id", "lease_id", "amount_due", "amount_paid", "status"}).
			AddRow("tx-1", "l1", int64(150000), int64(100000), "pending"))
	mock.ExpectExec("UPDATE rental_transactions SET amount_paid").
		WithArgs(int64(150000), "paid", time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), "wave", nil, fixedNow, "tx-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE imports_staging SET status").WithArgs("committed", fixedNow, "stg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := is.Commit(context.Background(), "user-1", "team-1", models.ImportTransaction)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	require.NoError(t, mock.ExpectationsWereMet())

	for _, key := range []string{"owner:owner-1", "owner:user-1", "team:team-1"} {
		assert.True(t, mr.Exists("test:finance:gen:"+key), key)
	}
}

func TestCommitTransactionWithoutLease(t *testing.T) {
	is, mock := newTestService(t)
	mock.ExpectQuery("FROM imports_staging WHERE team_id").
		WillReturnRows(stagingRow("transaction", `{}`, `{"amount":150000,"period_month":2,"period_year":2025}`, "validated"))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE imports_staging SET status").WithArgs("error", fixedNow, "stg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := is.Commit(context.Background(), "user-1", "team-1", models.ImportTransaction)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.Len(t, res.Failed, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitNothingValidated(t *testing.T) {
	is, mock := newTestService(t)
	mock.ExpectQuery("FROM imports_staging WHERE team_id").WillReturnRows(sqlmock.NewRows(stagingCols))
	res, err := is.Commit(context.Background(), "user-1", "team-1", models.ImportExpense)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
}

func TestLinkExpenseToLease(t *testing.T) {
	is, mock := newTestService(t)
	mock.ExpectQuery("FROM expenses WHERE id").WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "team_id", "owner_id", "lease_id", "property_id", "amount",
			"category", "description", "expense_date", "meta", "created_at"}).
			AddRow("e1", nil, "user-1", nil, nil, int64(45000), "repairs", "Plombier", fixedNow,
				[]byte(`{"import_source":"staging","user_corrections":[{"type":"manual_link","lease_id":"old"}]}`), fixedNow))
	meta := &captured{}
	mock.ExpectExec("UPDATE expenses SET lease_id").
		WithArgs("lease-7", "team-1", meta, "e1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	e, err := is.LinkExpenseToLease(context.Background(), "user-1", "e1", "lease-7")
	require.NoError(t, err)
	assert.Equal(t, "lease-7", *e.LeaseID)

	var got struct {
		ImportSource    string                   `json:"import_source"`
		UserCorrections []map[string]interface{} `json:"user_corrections"`
	}
	require.NoError(t, json.Unmarshal(meta.value.([]byte), &got))
	assert.Equal(t, "staging", got.ImportSource)
	require.Len(t, got.UserCorrections, 2)
	assert.Equal(t, "manual_link", got.UserCorrections[1]["type"])
	assert.Equal(t, "lease-7", got.UserCorrections[1]["lease_id"])
	assert.Equal(t, "user-1", got.UserCorrections[1]["user_id"])
	assert.Equal(t, "2025-03-10T09:00:00Z", got.UserCorrections[1]["timestamp"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkExpenseToForeignLease(t *testing.T) {
	is, mock := newTestService(t)
	is.Leases = fakeLeases{deny: true}
	_, err := is.LinkExpenseToLease(context.Background(), "user-1", "e1", "lease-of-team-2")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}
