package models

import (
	"time"
)

// Obligation statuses
const (
	ObligationOpen    = "OPEN"
	ObligationSettled = "SETTLED"
)

// Obligation is a USD-denominated IOU from one pool to another, created when
// a destination pool fronts liquidity. Settlement is the only writer of
// Status and SettlementBatchID; obligations are never deleted.
type Obligation struct {
	ID                string    `json:"id" db:"id"`
	FromPool          string    `json:"from_pool" db:"from_pool"`
	ToPool            string    `json:"to_pool" db:"to_pool"`
	AmountUSDCents    int64     `json:"amount_usd_cents" db:"amount_usd_cents"`
	Status            string    `json:"status" db:"status"`
	SettlementBatchID *string   `json:"settlement_batch_id" db:"settlement_batch_id"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

type SettlementBatch struct {
	ID        string    `json:"id" db:"id"`
	Notes     string    `json:"notes" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SettlementInstruction is one directional transfer produced by netting a
// pool pair. It is reported to the caller and pushed to the downstream
// settlement queue; it is not persisted on its own.
type SettlementInstruction struct {
	Payer          string `json:"payer"`
	Payee          string `json:"payee"`
	AmountUSDCents int64  `json:"amount_usd_cents"`
}
