package services

import (
	"errors"
	"fmt"
)

// Error taxonomy for the ledger core. Every mutating operation is
// all-or-nothing: any of these aborts the enclosing transaction and leaves
// state exactly as before the call.
var (
	// ErrAccountNotFound covers unknown pools and accounts (404-equivalent).
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidAmount rejects non-positive or malformed amounts before any
	// mutation.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrMissingFXRate means no rate is configured for a currency involved
	// in a payout; the payout aborts with nothing persisted.
	ErrMissingFXRate = errors.New("missing FX rate")

	// ErrImbalancedEntry is an internal invariant violation: an entry's
	// postings did not net to zero.
	ErrImbalancedEntry = errors.New("journal entry postings do not balance")

	// ErrObligationNotOpen means a settlement tried to settle an obligation
	// that is not currently OPEN. An obligation is settled exactly once.
	ErrObligationNotOpen = errors.New("obligation not open")
)

// NotFoundError wraps ErrAccountNotFound with the offending id.
func NotFoundError(accountID string) error {
	return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
}

// MissingFXRateError wraps ErrMissingFXRate with the currency.
func MissingFXRateError(currency string) error {
	return fmt.Errorf("%w for %s", ErrMissingFXRate, currency)
}
