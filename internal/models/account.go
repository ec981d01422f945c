package models

import (
	"time"
)

// Account kinds. Pools front local-currency liquidity; company accounts are
// system-side counterparties for payout/topup postings; settlement accounts
// receive inter-pool settlement transfers.
const (
	AccountKindPool       = "pool"
	AccountKindCompany    = "company"
	AccountKindSettlement = "settlement"
)

type Account struct {
	ID             string    `json:"id" db:"id"`
	Kind           string    `json:"kind" db:"kind"`
	Country        string    `json:"country" db:"country"`
	Currency       string    `json:"currency" db:"currency"`
	BalanceMinor   int64     `json:"balance_minor" db:"balance_minor"`
	MinBufferMinor int64     `json:"min_buffer_minor" db:"min_buffer_minor"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// FXRate maps a currency code to its USD conversion rate. Rates are injected
// by operators, never fetched.
type FXRate struct {
	Currency   string  `json:"currency" db:"currency"`
	USDPerUnit float64 `json:"usd_per_unit" db:"usd_per_unit"`
}
