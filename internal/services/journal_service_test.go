package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/liquibridge/backend/internal/models"
)

func TestJournalService_createEntryTx(t *testing.T) {
	t.Run("balanced entry inserts postings and applies deltas", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewJournalService(db)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO journal_entries").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO postings").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("UPDATE accounts SET balance_minor").
			WillReturnRows(sqlmock.NewRows([]string{"balance_minor"}).AddRow(980000))
		mock.ExpectExec("INSERT INTO postings").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("UPDATE accounts SET balance_minor").
			WillReturnRows(sqlmock.NewRows([]string{"balance_minor"}).AddRow(20000))

		tx, err := db.Begin()
		assert.NoError(t, err)

		key := "payout-1"
		postings := []PostingInput{
			{AccountID: "pool-br", Direction: models.DirectionDebit, AmountMinor: 20000},
			{AccountID: "SYS-CLEARING", Direction: models.DirectionCredit, AmountMinor: 20000},
		}
		entry, err := service.createEntryTx(tx, models.EntryTypePayout, &key, postings, nil)
		assert.NoError(t, err)
		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, models.EntryTypePayout, entry.Type)
		assert.Equal(t, "payout-1", *entry.ExternalID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("imbalanced entry rejected before any insert", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewJournalService(db)

		mock.ExpectBegin()
		tx, err := db.Begin()
		assert.NoError(t, err)

		postings := []PostingInput{
			{AccountID: "pool-br", Direction: models.DirectionDebit, AmountMinor: 20000},
			{AccountID: "SYS-CLEARING", Direction: models.DirectionCredit, AmountMinor: 19999},
		}
		_, err = service.createEntryTx(tx, models.EntryTypePayout, nil, postings, nil)
		assert.ErrorIs(t, err, ErrImbalancedEntry)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("negative posting amount rejected", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewJournalService(db)

		mock.ExpectBegin()
		tx, err := db.Begin()
		assert.NoError(t, err)

		postings := []PostingInput{
			{AccountID: "pool-br", Direction: models.DirectionDebit, AmountMinor: -100},
			{AccountID: "SYS-CLEARING", Direction: models.DirectionDebit, AmountMinor: 100},
		}
		_, err = service.createEntryTx(tx, models.EntryTypePayout, nil, postings, nil)
		assert.ErrorIs(t, err, ErrImbalancedEntry)
	})

	t.Run("empty postings rejected", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewJournalService(db)

		mock.ExpectBegin()
		tx, err := db.Begin()
		assert.NoError(t, err)

		_, err = service.createEntryTx(tx, models.EntryTypePayout, nil, nil, nil)
		assert.ErrorIs(t, err, ErrImbalancedEntry)
	})

	t.Run("unique violation on external_id surfaces as duplicate", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewJournalService(db)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO journal_entries").
			WillReturnError(&pq.Error{Code: "23505"})

		tx, err := db.Begin()
		assert.NoError(t, err)

		key := "payout-1"
		postings := []PostingInput{
			{AccountID: "pool-br", Direction: models.DirectionDebit, AmountMinor: 100},
			{AccountID: "SYS-CLEARING", Direction: models.DirectionCredit, AmountMinor: 100},
		}
		_, err = service.createEntryTx(tx, models.EntryTypePayout, &key, postings, nil)
		assert.ErrorIs(t, err, errDuplicateExternalID)
	})
}

func TestJournalService_GetEntryByExternalID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewJournalService(db)

	t.Run("found", func(t *testing.T) {
		key := "payout-1"
		metadata, _ := json.Marshal(payoutMetadata{ObligationID: "ob-1", AmountUSDCents: 4000})
		mock.ExpectQuery("FROM journal_entries WHERE external_id = \\$1").
			WithArgs(key).
			WillReturnRows(sqlmock.NewRows([]string{"id", "type", "external_id", "metadata", "created_at"}).
				AddRow("entry-1", models.EntryTypePayout, key, metadata, time.Now()))

		entry, err := service.GetEntryByExternalID(context.Background(), key)
		assert.NoError(t, err)
		assert.Equal(t, "entry-1", entry.ID)
		assert.Equal(t, key, *entry.ExternalID)
	})

	t.Run("absent returns nil without error", func(t *testing.T) {
		mock.ExpectQuery("FROM journal_entries WHERE external_id = \\$1").
			WithArgs("unknown").
			WillReturnError(sql.ErrNoRows)

		entry, err := service.GetEntryByExternalID(context.Background(), "unknown")
		assert.NoError(t, err)
		assert.Nil(t, entry)
	})
}

func TestJournalService_EntriesForAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewJournalService(db)

	t.Run("unfiltered", func(t *testing.T) {
		mock.ExpectQuery("JOIN journal_entries e ON e.id = p.entry_id WHERE p.account_id = \\$1").
			WithArgs("pool-br", 100).
			WillReturnRows(sqlmock.NewRows([]string{"id", "id", "type", "direction", "amount_minor", "metadata", "created_at"}).
				AddRow("entry-1", "posting-1", models.EntryTypePayout, models.DirectionDebit, 20000, nil, time.Now()))

		transactions, err := service.EntriesForAccount(context.Background(), "pool-br", "", 100)
		assert.NoError(t, err)
		assert.Len(t, transactions, 1)
		assert.Equal(t, "entry-1", transactions[0].EntryID)
		assert.Equal(t, int64(20000), transactions[0].AmountMinor)
	})

	t.Run("filtered by entry type", func(t *testing.T) {
		mock.ExpectQuery("AND e.type = \\$2").
			WithArgs("pool-br", models.EntryTypeTopup, 50).
			WillReturnRows(sqlmock.NewRows([]string{"id", "id", "type", "direction", "amount_minor", "metadata", "created_at"}))

		transactions, err := service.EntriesForAccount(context.Background(), "pool-br", models.EntryTypeTopup, 50)
		assert.NoError(t, err)
		assert.Empty(t, transactions)
	})
}

func TestJournalService_CountEntriesToday(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewJournalService(db)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM journal_entries").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := service.CountEntriesToday(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(7), count)
}
