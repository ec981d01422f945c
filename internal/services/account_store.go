package services

import (
	"context"
	"database/sql"

	"github.com/liquibridge/backend/internal/models"
)

// AccountStore holds account balances and buffers. Balances are mutated only
// by applying postings inside the transaction that owns the journal entry;
// there is no set-balance operation.
type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	var account models.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, country, currency, balance_minor, min_buffer_minor, updated_at
		FROM accounts
		WHERE id = $1`, accountID).Scan(
		&account.ID, &account.Kind, &account.Country, &account.Currency,
		&account.BalanceMinor, &account.MinBufferMinor, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, NotFoundError(accountID)
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *AccountStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, country, currency, balance_minor, min_buffer_minor, updated_at
		FROM accounts
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var account models.Account
		if err := rows.Scan(
			&account.ID, &account.Kind, &account.Country, &account.Currency,
			&account.BalanceMinor, &account.MinBufferMinor, &account.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// lockAccountTx takes a row-level lock on the account for the lifetime of
// the transaction. Payout buffer checks read through this lock so concurrent
// payouts against the same destination serialize.
func (s *AccountStore) lockAccountTx(tx *sql.Tx, accountID string) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRow(`
		SELECT id, kind, country, currency, balance_minor, min_buffer_minor, updated_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE`, accountID).Scan(
		&account.ID, &account.Kind, &account.Country, &account.Currency,
		&account.BalanceMinor, &account.MinBufferMinor, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, NotFoundError(accountID)
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// applyPostingTx adjusts the account balance by the posting's signed amount
// and returns the new balance. Must run inside the same transaction as the
// owning journal entry's creation.
func (s *AccountStore) applyPostingTx(tx *sql.Tx, accountID, direction string, amountMinor int64) (int64, error) {
	delta := amountMinor
	if direction == models.DirectionDebit {
		delta = -amountMinor
	}

	var newBalance int64
	err := tx.QueryRow(`
		UPDATE accounts
		SET balance_minor = balance_minor + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING balance_minor`, delta, accountID).Scan(&newBalance)
	if err == sql.ErrNoRows {
		return 0, NotFoundError(accountID)
	}
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}
