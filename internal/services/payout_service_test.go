package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/liquibridge/backend/internal/config"
	"github.com/liquibridge/backend/internal/models"
)

func testLedgerConfig() *config.LedgerConfig {
	return &config.LedgerConfig{
		ClearingAccountID:  "SYS-CLEARING",
		DrainBatchLimit:    100,
		SettlementQueueKey: "settlement_queue",
	}
}

func newTestPayoutService(db *sql.DB) *PayoutService {
	return NewPayoutService(db, NewFXService(db, nil), testLedgerConfig())
}

// expectPayoutExecution covers the shared execute path: entry insert, the
// two postings with their balance deltas, the obligation, and the replay
// metadata update.
func expectPayoutExecution(mock sqlmock.Sqlmock, destBalanceAfter int64) {
	mock.ExpectExec("INSERT INTO journal_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO postings").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE accounts SET balance_minor").
		WillReturnRows(sqlmock.NewRows([]string{"balance_minor"}).AddRow(destBalanceAfter))
	mock.ExpectExec("INSERT INTO postings").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE accounts SET balance_minor").
		WillReturnRows(sqlmock.NewRows([]string{"balance_minor"}).AddRow(20000))
	mock.ExpectExec("INSERT INTO obligations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE journal_entries SET metadata").
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestPayoutService_ProcessPayout(t *testing.T) {
	t.Run("executes when buffer absorbs the payout", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newTestPayoutService(db)

		mock.ExpectQuery("FROM journal_entries WHERE external_id = \\$1").
			WithArgs("k1").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("FROM accounts WHERE id = \\$1").
			WithArgs("pool-gb").
			WillReturnRows(accountRows("pool-gb", models.AccountKindPool, "GB", "GBP", 500000, 1000))
		mock.ExpectQuery("FROM accounts WHERE id = \\$1").
			WithArgs("pool-br").
			WillReturnRows(accountRows("pool-br", models.AccountKindPool, "BR", "BRL", 1000000, 1000))
		mock.ExpectQuery("SELECT usd_per_unit FROM fx_rates").
			WithArgs("BRL").
			WillReturnRows(sqlmock.NewRows([]string{"usd_per_unit"}).AddRow(0.2))
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs("pool-br").
			WillReturnRows(accountRows("pool-br", models.AccountKindPool, "BR", "BRL", 1000000, 1000))
		expectPayoutExecution(mock, 980000)
		mock.ExpectCommit()

		result, err := service.ProcessPayout(context.Background(), PayoutRequest{
			FromPool:       "pool-gb",
			ToPool:         "pool-br",
			AmountMinor:    20000,
			IdempotencyKey: "k1",
		})
		assert.NoError(t, err)
		assert.False(t, result.Queued)
		assert.NotEmpty(t, result.JournalEntryID)
		assert.NotEmpty(t, result.ObligationID)
		assert.Equal(t, int64(4000), result.AmountUSDCents)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replay returns the original result without side effects", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newTestPayoutService(db)

		metadata, _ := json.Marshal(payoutMetadata{
			FromPool:       "pool-gb",
			ToPool:         "pool-br",
			AmountMinor:    20000,
			ObligationID:   "ob-1",
			AmountUSDCents: 4000,
		})
		mock.ExpectQuery("FROM journal_entries WHERE external_id = \\$1").
			WithArgs("k1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "type", "external_id", "metadata", "created_at"}).
				AddRow("entry-1", models.EntryTypePayout, "k1", metadata, time.Now()))

		result, err := service.ProcessPayout(context.Background(), PayoutRequest{
			FromPool:       "pool-gb",
			ToPool:         "pool-br",
			AmountMinor:    20000,
			IdempotencyKey: "k1",
		})
		assert.NoError(t, err)
		assert.Equal(t, "entry-1", result.JournalEntryID)
		assert.Equal(t, "ob-1", result.ObligationID)
		assert.Equal(t, int64(4000), result.AmountUSDCents)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("queues when the buffer would be breached", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newTestPayoutService(db)

		mock.ExpectQuery("FROM journal_entries WHERE external_id = \\$1").
			WithArgs("k2").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("FROM accounts WHERE id = \\$1").
			WithArgs("pool-gb").
			WillReturnRows(accountRows("pool-gb", models.AccountKindPool, "GB", "GBP", 500000, 1000))
		mock.ExpectQuery("FROM accounts WHERE id = \\$1").
			WithArgs("pool-br").
			WillReturnRows(accountRows("pool-br", models.AccountKindPool, "BR", "BRL", 10000, 1000))
		mock.ExpectQuery("SELECT usd_per_unit FROM fx_rates").
			WithArgs("BRL").
			WillReturnRows(sqlmock.NewRows([]string{"usd_per_unit"}).AddRow(0.2))
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs("pool-br").
			WillReturnRows(accountRows("pool-br", models.AccountKindPool, "BR", "BRL", 10000, 1000))
		mock.ExpectRollback()
		mock.ExpectExec("INSERT INTO payout_queue").
			WillReturnResult(sqlmock.NewResult(0, 1))

		result, err := service.ProcessPayout(context.Background(), PayoutRequest{
			FromPool:       "pool-gb",
			ToPool:         "pool-br",
			AmountMinor:    20000,
			IdempotencyKey: "k2",
		})
		assert.NoError(t, err)
		assert.True(t, result.Queued)
		assert.NotEmpty(t, result.PayoutQueueID)
		assert.Empty(t, result.JournalEntryID)
		assert.Empty(t, result.ObligationID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newTestPayoutService(db)

		_, err = service.ProcessPayout(context.Background(), PayoutRequest{
			FromPool: "pool-gb", ToPool: "pool-br", AmountMinor: 0,
		})
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = service.ProcessPayout(context.Background(), PayoutRequest{
			FromPool: "pool-gb", ToPool: "pool-br", AmountMinor: -5,
		})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("rejects same source and destination", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newTestPayoutService(db)

		_, err = service.ProcessPayout(context.Background(), PayoutRequest{
			FromPool: "pool-gb", ToPool: "pool-gb", AmountMinor: 100,
		})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("unknown pool", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newTestPayoutService(db)

		mock.ExpectQuery("FROM accounts WHERE id = \\$1").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err = service.ProcessPayout(context.Background(), PayoutRequest{
			FromPool: "missing", ToPool: "pool-br", AmountMinor: 100,
		})
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("missing FX rate for destination currency", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newTestPayoutService(db)

		mock.ExpectQuery("FROM accounts WHERE id = \\$1").
			WithArgs("pool-gb").
			WillReturnRows(accountRows("pool-gb", models.AccountKindPool, "GB", "GBP", 500000, 1000))
		mock.ExpectQuery("FROM accounts WHERE id = \\$1").
			WithArgs("pool-xy").
			WillReturnRows(accountRows("pool-xy", models.AccountKindPool, "XY", "XYZ", 500000, 1000))
		mock.ExpectQuery("SELECT usd_per_unit FROM fx_rates").
			WithArgs("XYZ").
			WillReturnError(sql.ErrNoRows)

		_, err = service.ProcessPayout(context.Background(), PayoutRequest{
			FromPool: "pool-gb", ToPool: "pool-xy", AmountMinor: 100,
		})
		assert.ErrorIs(t, err, ErrMissingFXRate)
	})
}

func TestPayoutService_ProcessTopup(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := newTestPayoutService(db)

	mock.ExpectQuery("FROM accounts WHERE id = \\$1").
		WithArgs("pool-br").
		WillReturnRows(accountRows("pool-br", models.AccountKindPool, "BR", "BRL", 10000, 1000))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO journal_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO postings").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE accounts SET balance_minor").
		WillReturnRows(sqlmock.NewRows([]string{"balance_minor"}).AddRow(60000))
	mock.ExpectExec("INSERT INTO postings").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE accounts SET balance_minor").
		WillReturnRows(sqlmock.NewRows([]string{"balance_minor"}).AddRow(-50000))
	mock.ExpectCommit()

	entry, err := service.ProcessTopup(context.Background(), "pool-br", 50000)
	assert.NoError(t, err)
	assert.Equal(t, models.EntryTypeTopup, entry.Type)
	assert.Nil(t, entry.ExternalID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func queueRows(items ...models.PayoutQueueItem) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "from_pool", "to_pool", "amount_minor", "status", "created_at"})
	for _, item := range items {
		rows.AddRow(item.ID, item.FromPool, item.ToPool, item.AmountMinor, models.QueueStatusQueued, time.Now())
	}
	return rows
}

func TestPayoutService_DrainQueue(t *testing.T) {
	t.Run("executes queued payouts once the buffer allows", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newTestPayoutService(db)

		mock.ExpectQuery("FROM accounts WHERE id = \\$1").
			WithArgs("pool-br").
			WillReturnRows(accountRows("pool-br", models.AccountKindPool, "BR", "BRL", 1000000, 1000))
		mock.ExpectQuery("FROM payout_queue WHERE to_pool = \\$1").
			WithArgs("pool-br", 100).
			WillReturnRows(queueRows(models.PayoutQueueItem{
				ID: "q1", FromPool: "pool-gb", ToPool: "pool-br", AmountMinor: 20000,
			}))
		mock.ExpectQuery("FROM accounts WHERE id = \\$1").
			WithArgs("pool-br").
			WillReturnRows(accountRows("pool-br", models.AccountKindPool, "BR", "BRL", 1000000, 1000))
		mock.ExpectQuery("SELECT usd_per_unit FROM fx_rates").
			WithArgs("BRL").
			WillReturnRows(sqlmock.NewRows([]string{"usd_per_unit"}).AddRow(0.2))
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs("pool-br").
			WillReturnRows(accountRows("pool-br", models.AccountKindPool, "BR", "BRL", 1000000, 1000))
		expectPayoutExecution(mock, 980000)
		mock.ExpectExec("UPDATE payout_queue SET status = 'EXECUTED'").
			WithArgs("q1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result, err := service.DrainQueue(context.Background(), "pool-br")
		assert.NoError(t, err)
		assert.Equal(t, []string{"q1"}, result.Executed)
		assert.Empty(t, result.Failed)
		assert.Equal(t, 0, result.Remaining)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stops at the first item the buffer cannot absorb", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newTestPayoutService(db)

		mock.ExpectQuery("FROM accounts WHERE id = \\$1").
			WithArgs("pool-br").
			WillReturnRows(accountRows("pool-br", models.AccountKindPool, "BR", "BRL", 10000, 1000))
		mock.ExpectQuery("FROM payout_queue WHERE to_pool = \\$1").
			WithArgs("pool-br", 100).
			WillReturnRows(queueRows(
				models.PayoutQueueItem{ID: "q1", FromPool: "pool-gb", ToPool: "pool-br", AmountMinor: 20000},
				models.PayoutQueueItem{ID: "q2", FromPool: "pool-gb", ToPool: "pool-br", AmountMinor: 30000},
			))
		mock.ExpectQuery("FROM accounts WHERE id = \\$1").
			WithArgs("pool-br").
			WillReturnRows(accountRows("pool-br", models.AccountKindPool, "BR", "BRL", 10000, 1000))
		mock.ExpectQuery("SELECT usd_per_unit FROM fx_rates").
			WithArgs("BRL").
			WillReturnRows(sqlmock.NewRows([]string{"usd_per_unit"}).AddRow(0.2))
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs("pool-br").
			WillReturnRows(accountRows("pool-br", models.AccountKindPool, "BR", "BRL", 10000, 1000))
		mock.ExpectRollback()

		result, err := service.DrainQueue(context.Background(), "pool-br")
		assert.NoError(t, err)
		assert.Empty(t, result.Executed)
		assert.Equal(t, 2, result.Remaining)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("marks items with missing FX rates as failed and continues", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newTestPayoutService(db)

		mock.ExpectQuery("FROM accounts WHERE id = \\$1").
			WithArgs("pool-xy").
			WillReturnRows(accountRows("pool-xy", models.AccountKindPool, "XY", "XYZ", 1000000, 1000))
		mock.ExpectQuery("FROM payout_queue WHERE to_pool = \\$1").
			WithArgs("pool-xy", 100).
			WillReturnRows(queueRows(models.PayoutQueueItem{
				ID: "q1", FromPool: "pool-gb", ToPool: "pool-xy", AmountMinor: 20000,
			}))
		mock.ExpectQuery("FROM accounts WHERE id = \\$1").
			WithArgs("pool-xy").
			WillReturnRows(accountRows("pool-xy", models.AccountKindPool, "XY", "XYZ", 1000000, 1000))
		mock.ExpectQuery("SELECT usd_per_unit FROM fx_rates").
			WithArgs("XYZ").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectExec("UPDATE payout_queue SET status = \\$1").
			WithArgs(models.QueueStatusFailed, "q1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		result, err := service.DrainQueue(context.Background(), "pool-xy")
		assert.NoError(t, err)
		assert.Equal(t, []string{"q1"}, result.Failed)
		assert.Empty(t, result.Executed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPayoutService_PayoutHandler(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := newTestPayoutService(db)

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/payouts", bytes.NewBuffer([]byte("invalid")))
		w := httptest.NewRecorder()

		service.Payout(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing required fields", func(t *testing.T) {
		body, _ := json.Marshal(map[string]interface{}{"from_pool": "pool-gb"})
		r := httptest.NewRequest("POST", "/payouts", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Payout(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response ErrorResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, "Validation failed", response.Error)
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		body := []byte(`{"from_pool":"a","to_pool":"b","amount_minor":1,"extra":true}`)
		r := httptest.NewRequest("POST", "/payouts", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Payout(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
