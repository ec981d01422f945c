package models

import (
	"time"
)

// Payout queue item statuses
const (
	QueueStatusQueued   = "QUEUED"
	QueueStatusExecuted = "EXECUTED"
	QueueStatusFailed   = "FAILED"
)

// PayoutQueueItem records a payout that could not execute because the
// destination pool's buffer would have been breached. Items are drained by
// an explicit operator-triggered drain, never automatically.
type PayoutQueueItem struct {
	ID          string    `json:"id" db:"id"`
	FromPool    string    `json:"from_pool" db:"from_pool"`
	ToPool      string    `json:"to_pool" db:"to_pool"`
	AmountMinor int64     `json:"amount_minor" db:"amount_minor"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
