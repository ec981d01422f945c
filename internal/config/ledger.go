package config

import (
	"os"
	"strconv"
)

type LedgerConfig struct {
	// ClearingAccountID is the system-side counterparty for payout and
	// topup postings; it keeps every journal entry balanced.
	ClearingAccountID string
	// DrainBatchLimit caps how many queued payouts one drain call attempts.
	DrainBatchLimit int
	// SettlementQueueKey is the Redis list settlement instructions are
	// pushed to after each batch commits.
	SettlementQueueKey string
}

func LoadLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		ClearingAccountID:  getEnv("LEDGER_CLEARING_ACCOUNT", "SYS-CLEARING"),
		DrainBatchLimit:    getEnvAsInt("LEDGER_DRAIN_BATCH_LIMIT", 100),
		SettlementQueueKey: getEnv("LEDGER_SETTLEMENT_QUEUE_KEY", "settlement_queue"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
