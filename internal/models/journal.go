package models

import (
	"time"
)

// Journal entry types
const (
	EntryTypePayout     = "payout"
	EntryTypeTopup      = "topup"
	EntryTypeSettlement = "settlement"
)

// Posting directions. A debit reduces the account balance, a credit
// increases it; the signed sum of an entry's postings is always zero.
const (
	DirectionDebit  = "DEBIT"
	DirectionCredit = "CREDIT"
)

// JournalEntry is immutable once created. ExternalID carries the caller's
// idempotency key and is globally unique when present.
type JournalEntry struct {
	ID         string    `json:"id" db:"id"`
	Type       string    `json:"type" db:"type"`
	ExternalID *string   `json:"external_id" db:"external_id"`
	Metadata   []byte    `json:"metadata" db:"metadata"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type Posting struct {
	ID          string    `json:"id" db:"id"`
	EntryID     string    `json:"entry_id" db:"entry_id"`
	AccountID   string    `json:"account_id" db:"account_id"`
	Direction   string    `json:"direction" db:"direction"`
	AmountMinor int64     `json:"amount_minor" db:"amount_minor"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
