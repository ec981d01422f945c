package database

import (
	"database/sql"
	"log"

	"github.com/spf13/viper"
)

// Schema for the ledger core. The unique index on journal external ids is
// what makes idempotent replay safe against concurrent duplicates.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		country TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL,
		balance_minor BIGINT NOT NULL DEFAULT 0,
		min_buffer_minor BIGINT NOT NULL DEFAULT 0 CHECK (min_buffer_minor >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS fx_rates (
		currency TEXT PRIMARY KEY,
		usd_per_unit DOUBLE PRECISION NOT NULL CHECK (usd_per_unit > 0)
	)`,
	`CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		external_id TEXT UNIQUE,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS postings (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL REFERENCES journal_entries(id),
		account_id TEXT NOT NULL REFERENCES accounts(id),
		direction TEXT NOT NULL CHECK (direction IN ('DEBIT', 'CREDIT')),
		amount_minor BIGINT NOT NULL CHECK (amount_minor >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS obligations (
		id TEXT PRIMARY KEY,
		from_pool TEXT NOT NULL REFERENCES accounts(id),
		to_pool TEXT NOT NULL REFERENCES accounts(id),
		amount_usd_cents BIGINT NOT NULL CHECK (amount_usd_cents > 0),
		status TEXT NOT NULL DEFAULT 'OPEN' CHECK (status IN ('OPEN', 'SETTLED')),
		settlement_batch_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS settlement_batches (
		id TEXT PRIMARY KEY,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS payout_queue (
		id TEXT PRIMARY KEY,
		from_pool TEXT NOT NULL,
		to_pool TEXT NOT NULL,
		amount_minor BIGINT NOT NULL CHECK (amount_minor > 0),
		status TEXT NOT NULL DEFAULT 'QUEUED' CHECK (status IN ('QUEUED', 'EXECUTED', 'FAILED')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_obligations_status ON obligations(status)`,
	`CREATE INDEX IF NOT EXISTS idx_postings_account ON postings(account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_payout_queue_dest ON payout_queue(to_pool, status)`,
}

// ApplySchema creates the ledger tables if they do not exist.
func ApplySchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SeedDemoData loads demo pools, the clearing account and FX rates when the
// accounts table is empty and seeding is enabled. Balances are written
// directly here only because the table is empty; all later mutation goes
// through journal postings.
func SeedDemoData(db *sql.DB) error {
	viper.SetDefault("ledger.seed_demo", false)
	if !viper.GetBool("ledger.seed_demo") {
		return nil
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	accounts := []struct {
		id, kind, country, currency string
		balance, buffer             int64
	}{
		{"pool-gb", "pool", "GB", "GBP", 500000, 1000},
		{"pool-br", "pool", "BR", "BRL", 1000000, 1000},
		{"SYS-CLEARING", "company", "", "USD", 0, 0},
	}
	for _, a := range accounts {
		if _, err := db.Exec(`
			INSERT INTO accounts (id, kind, country, currency, balance_minor, min_buffer_minor)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			a.id, a.kind, a.country, a.currency, a.balance, a.buffer); err != nil {
			return err
		}
	}

	rates := map[string]float64{"GBP": 1.25, "BRL": 0.20, "USD": 1.0}
	for currency, rate := range rates {
		if _, err := db.Exec(`
			INSERT INTO fx_rates (currency, usd_per_unit) VALUES ($1, $2)
			ON CONFLICT (currency) DO NOTHING`, currency, rate); err != nil {
			return err
		}
	}

	log.Println("Seeded demo pools and FX rates")
	return nil
}
