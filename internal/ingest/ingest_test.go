package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
	"github.com/finpulse/finpulse/internal/persistence"
	"github.com/finpulse/finpulse/internal/persistence/memory"
)

var testDate = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	db := memory.NewStore()
	require.NoError(t, db.Categories().Insert(context.Background(), &domain.Category{
		ID: "c1", UserID: "u1", Name: "Groceries", Type: domain.CategoryNeed,
	}))
	svc := NewService(db, zerolog.Nop()).WithClock(func() time.Time { return testDate })
	return svc, db
}

func TestInsert_NormalizesDefaults(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	tx, err := svc.Insert(ctx, "u1", Input{
		Amount: 42.5, Type: domain.TxExpense, CategoryID: "c1",
		Description: "weekly shop", Date: testDate,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, domain.TxCompleted, tx.Status)
	assert.Equal(t, domain.PayOther, tx.PaymentMethod)
	assert.Equal(t, testDate, tx.CreatedAt)

	stored, err := db.Transactions().GetByID(ctx, "u1", tx.ID)
	require.NoError(t, err)
	assert.Equal(t, 42.5, stored.Amount)
}

func TestInsert_RejectsForeignCategory(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Insert(context.Background(), "u2", Input{
		Amount: 10, Type: domain.TxExpense, CategoryID: "c1",
		Description: "not yours", Date: testDate,
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestInsertBulk_CapAndAtomicity(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	over := make([]Input, MaxBulkSize+1)
	for i := range over {
		over[i] = Input{Amount: 1, Type: domain.TxExpense, CategoryID: "c1", Description: "x", Date: testDate}
	}
	_, err := svc.InsertBulk(ctx, "u1", over)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindValidation))

	// One invalid row fails the whole batch before any insert.
	batch := []Input{
		{Amount: 10, Type: domain.TxExpense, CategoryID: "c1", Description: "ok", Date: testDate},
		{Amount: -5, Type: domain.TxExpense, CategoryID: "c1", Description: "bad amount", Date: testDate},
	}
	_, err = svc.InsertBulk(ctx, "u1", batch)
	require.Error(t, err)

	listed, err := db.Transactions().ListByUser(ctx, "u1", persistence.TimeRange{From: testDate.AddDate(0, 0, -1), To: testDate.AddDate(0, 0, 1)}, 0)
	require.NoError(t, err)
	assert.Empty(t, listed)

	good := []Input{
		{Amount: 10, Type: domain.TxExpense, CategoryID: "c1", Description: "a", Date: testDate},
		{Amount: 20, Type: domain.TxIncome, CategoryID: "c1", Description: "b", Date: testDate},
	}
	txs, err := svc.InsertBulk(ctx, "u1", good)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestDetectMapping_AliasesAndMissing(t *testing.T) {
	mapping, err := DetectMapping([]string{"Posted Date", "Transaction Memo", "Price (USD)", "Payee", "Payment Type", "Notes"})
	require.NoError(t, err)

	assert.Equal(t, "Price (USD)", mapping[FieldAmount])
	assert.Equal(t, "Posted Date", mapping[FieldDate])
	assert.Equal(t, "Transaction Memo", mapping[FieldDescription])
	assert.Equal(t, "Payee", mapping[FieldMerchant])
	assert.Equal(t, "Payment Type", mapping[FieldPayment])
	assert.Equal(t, "Notes", mapping[FieldNotes])

	_, err = DetectMapping([]string{"date", "description"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindValidation))
	assert.Contains(t, err.Error(), "missing")
}

func TestPreviewCSV_ParsesAndReportsBadRows(t *testing.T) {
	svc, _ := newTestService(t)

	csvText := "Date,Description,Amount,Category,Payment\n" +
		"2026-03-02,Coffee,\"-$4.50\",Dining,credit card\n" +
		"2026-03-03,Salary,\"$2,500.00\",,bank transfer\n" +
		"not-a-date,Broken,10,,\n"

	res, err := svc.PreviewCSV(csvText)
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalRows)
	require.Len(t, res.Sample, 2)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 4, res.Errors[0].Line)

	coffee := res.Sample[0]
	assert.Equal(t, 4.5, coffee.Amount)
	assert.Equal(t, domain.TxExpense, coffee.Type, "negative amount means expense")
	assert.Equal(t, domain.PayCredit, coffee.PaymentMethod)
	assert.Equal(t, "Dining", coffee.CategoryName)

	salary := res.Sample[1]
	assert.Equal(t, 2500.0, salary.Amount)
	assert.Equal(t, domain.TxIncome, salary.Type)
	assert.Equal(t, domain.PayBankTransfer, salary.PaymentMethod)
}

func TestImportCSV_ResolvesAndCreatesCategories(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	csvText := "date,description,amount,category\n" +
		"2026-03-02,Shop,-50,groceries\n" + // existing, case-insensitive
		"2026-03-03,Cinema,-12,Entertainment\n" + // created on the fly
		"2026-03-04,Mystery,-7,\n" // fallback category

	res, err := svc.ImportCSV(ctx, "u1", csvText, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, 0, res.Skipped)

	ent, err := db.Categories().GetByName(ctx, "u1", "Entertainment")
	require.NoError(t, err)
	fallback, err := db.Categories().GetByName(ctx, "u1", fallbackCategory)
	require.NoError(t, err)

	txs, err := db.Transactions().ListByUser(ctx, "u1", persistence.TimeRange{
		From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	}, 0)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	byDesc := map[string]domain.Transaction{}
	for _, tx := range txs {
		byDesc[tx.Description] = tx
	}
	assert.Equal(t, "c1", byDesc["Shop"].CategoryID)
	assert.Equal(t, ent.ID, byDesc["Cinema"].CategoryID)
	assert.Equal(t, fallback.ID, byDesc["Mystery"].CategoryID)
}

func TestImportCSV_SkipsBadRowsKeepsGood(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	csvText := "date,description,amount\n" +
		"2026-03-02,Good,-50\n" +
		"2026-03-03,,-50\n" + // empty description
		"2026-03-04,NoAmount,\n"

	res, err := svc.ImportCSV(ctx, "u1", csvText, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 2, res.Skipped)
	assert.Len(t, res.Errors, 2)

	txs, err := db.Transactions().ListByUser(ctx, "u1", persistence.TimeRange{
		From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	}, 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "Good", txs[0].Description)
}

func TestImportCSV_SizeLimit(t *testing.T) {
	svc, _ := newTestService(t)

	big := "date,description,amount\n" + strings.Repeat("x", MaxCSVBytes)
	_, err := svc.ImportCSV(context.Background(), "u1", big, nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindValidation))
}
