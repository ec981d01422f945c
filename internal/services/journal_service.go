package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/liquibridge/backend/internal/models"
)

// errDuplicateExternalID is internal only: an insert raced another caller
// holding the same idempotency key. It always resolves to the replay path
// and is never surfaced.
var errDuplicateExternalID = errors.New("duplicate external id")

// PostingInput describes one leg of a journal entry to be created.
type PostingInput struct {
	AccountID   string
	Direction   string
	AmountMinor int64
}

// JournalService is the append-only double-entry record and the single
// source of truth for balance changes. Entries are created with their
// postings and balance deltas in one transaction.
type JournalService struct {
	db       *sql.DB
	accounts *AccountStore
}

func NewJournalService(db *sql.DB) *JournalService {
	return &JournalService{
		db:       db,
		accounts: NewAccountStore(db),
	}
}

// GetEntryByExternalID returns the entry holding the given idempotency key,
// or nil when no such entry exists.
func (s *JournalService) GetEntryByExternalID(ctx context.Context, externalID string) (*models.JournalEntry, error) {
	var entry models.JournalEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, external_id, metadata, created_at
		FROM journal_entries
		WHERE external_id = $1`, externalID).Scan(
		&entry.ID, &entry.Type, &entry.ExternalID, &entry.Metadata, &entry.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// createEntryTx inserts a journal entry, its postings, and applies each
// posting's balance delta. The signed sum of the postings must be zero
// (credit positive, debit negative); anything else is rejected before any
// insert. A unique-index conflict on external_id surfaces as
// errDuplicateExternalID for the caller to resolve into idempotent replay.
func (s *JournalService) createEntryTx(tx *sql.Tx, entryType string, externalID *string, postings []PostingInput, metadata []byte) (*models.JournalEntry, error) {
	var sum int64
	for _, p := range postings {
		if p.AmountMinor < 0 {
			return nil, ErrImbalancedEntry
		}
		if p.Direction == models.DirectionCredit {
			sum += p.AmountMinor
		} else {
			sum -= p.AmountMinor
		}
	}
	if sum != 0 || len(postings) == 0 {
		return nil, ErrImbalancedEntry
	}

	entry := &models.JournalEntry{
		ID:         uuid.New().String(),
		Type:       entryType,
		ExternalID: externalID,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}

	_, err := tx.Exec(`
		INSERT INTO journal_entries (id, type, external_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.Type, entry.ExternalID, entry.Metadata, entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errDuplicateExternalID
		}
		return nil, err
	}

	for _, p := range postings {
		_, err := tx.Exec(`
			INSERT INTO postings (id, entry_id, account_id, direction, amount_minor, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New().String(), entry.ID, p.AccountID, p.Direction, p.AmountMinor, entry.CreatedAt)
		if err != nil {
			return nil, err
		}
		if _, err := s.accounts.applyPostingTx(tx, p.AccountID, p.Direction, p.AmountMinor); err != nil {
			return nil, err
		}
	}

	return entry, nil
}

// updateEntryMetadataTx attaches result metadata computed later in the same
// transaction (e.g. the obligation id created alongside a payout entry).
func (s *JournalService) updateEntryMetadataTx(tx *sql.Tx, entryID string, metadata []byte) error {
	_, err := tx.Exec(`
		UPDATE journal_entries SET metadata = $1 WHERE id = $2`, metadata, entryID)
	return err
}

// AccountTransaction is one posting flattened with its owning entry, for
// per-account transaction listings.
type AccountTransaction struct {
	EntryID     string    `json:"entry_id"`
	PostingID   string    `json:"posting_id"`
	Type        string    `json:"type"`
	Direction   string    `json:"direction"`
	AmountMinor int64     `json:"amount_minor"`
	Metadata    []byte    `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// EntriesForAccount lists an account's postings newest first, optionally
// filtered by entry type.
func (s *JournalService) EntriesForAccount(ctx context.Context, accountID, typeFilter string, limit int) ([]AccountTransaction, error) {
	query := `
		SELECT e.id, p.id, e.type, p.direction, p.amount_minor, e.metadata, e.created_at
		FROM postings p
		JOIN journal_entries e ON e.id = p.entry_id
		WHERE p.account_id = $1`
	args := []interface{}{accountID}
	if typeFilter != "" {
		query += ` AND e.type = $2`
		args = append(args, typeFilter)
	}
	query += fmt.Sprintf(" ORDER BY e.created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []AccountTransaction{}
	for rows.Next() {
		var t AccountTransaction
		if err := rows.Scan(&t.EntryID, &t.PostingID, &t.Type, &t.Direction, &t.AmountMinor, &t.Metadata, &t.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// CountEntriesToday returns the number of journal entries created since UTC
// midnight.
func (s *JournalService) CountEntriesToday(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM journal_entries
		WHERE created_at >= date_trunc('day', NOW() AT TIME ZONE 'utc')`).Scan(&count)
	return count, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
