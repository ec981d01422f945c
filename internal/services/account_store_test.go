package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/liquibridge/backend/internal/models"
)

func accountRows(id, kind, country, currency string, balance, buffer int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "kind", "country", "currency", "balance_minor", "min_buffer_minor", "updated_at"}).
		AddRow(id, kind, country, currency, balance, buffer, time.Now())
}

func TestAccountStore_GetAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewAccountStore(db)

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, kind, country, currency, balance_minor, min_buffer_minor, updated_at FROM accounts WHERE id = \\$1").
			WithArgs("pool-gb").
			WillReturnRows(accountRows("pool-gb", models.AccountKindPool, "GB", "GBP", 500000, 1000))

		account, err := store.GetAccount(context.Background(), "pool-gb")
		assert.NoError(t, err)
		assert.Equal(t, "pool-gb", account.ID)
		assert.Equal(t, "GBP", account.Currency)
		assert.Equal(t, int64(500000), account.BalanceMinor)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, kind, country, currency, balance_minor, min_buffer_minor, updated_at FROM accounts WHERE id = \\$1").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetAccount(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestAccountStore_ListAccounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewAccountStore(db)

	rows := accountRows("pool-br", models.AccountKindPool, "BR", "BRL", 1000000, 1000).
		AddRow("pool-gb", models.AccountKindPool, "GB", "GBP", 500000, 1000, time.Now())
	mock.ExpectQuery("FROM accounts ORDER BY id").WillReturnRows(rows)

	accounts, err := store.ListAccounts(context.Background())
	assert.NoError(t, err)
	assert.Len(t, accounts, 2)
	assert.Equal(t, "pool-br", accounts[0].ID)
}

func TestAccountStore_applyPostingTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewAccountStore(db)

	t.Run("debit applies negative delta", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts SET balance_minor = balance_minor \\+ \\$1").
			WithArgs(int64(-20000), "pool-br").
			WillReturnRows(sqlmock.NewRows([]string{"balance_minor"}).AddRow(980000))

		tx, err := db.Begin()
		assert.NoError(t, err)

		newBalance, err := store.applyPostingTx(tx, "pool-br", models.DirectionDebit, 20000)
		assert.NoError(t, err)
		assert.Equal(t, int64(980000), newBalance)
	})

	t.Run("credit applies positive delta", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts SET balance_minor = balance_minor \\+ \\$1").
			WithArgs(int64(20000), "SYS-CLEARING").
			WillReturnRows(sqlmock.NewRows([]string{"balance_minor"}).AddRow(20000))

		tx, err := db.Begin()
		assert.NoError(t, err)

		newBalance, err := store.applyPostingTx(tx, "SYS-CLEARING", models.DirectionCredit, 20000)
		assert.NoError(t, err)
		assert.Equal(t, int64(20000), newBalance)
	})
}

func TestAccountStore_lockAccountTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewAccountStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM accounts WHERE id = \\$1 FOR UPDATE").
		WithArgs("pool-br").
		WillReturnRows(accountRows("pool-br", models.AccountKindPool, "BR", "BRL", 1000000, 1000))

	tx, err := db.Begin()
	assert.NoError(t, err)

	account, err := store.lockAccountTx(tx, "pool-br")
	assert.NoError(t, err)
	assert.Equal(t, int64(1000000), account.BalanceMinor)
	assert.Equal(t, int64(1000), account.MinBufferMinor)
}
