package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/liquibridge/backend/internal/models"
)

// ObligationService owns obligation rows. Obligations are created atomically
// with the payout's journal entry and mutated only by settlement; they are
// never deleted.
type ObligationService struct {
	db *sql.DB
}

func NewObligationService(db *sql.DB) *ObligationService {
	return &ObligationService{db: db}
}

func (s *ObligationService) ListOpen(ctx context.Context) ([]models.Obligation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_pool, to_pool, amount_usd_cents, status, settlement_batch_id, created_at
		FROM obligations
		WHERE status = 'OPEN'
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObligations(rows)
}

// listOpenForUpdateTx locks all OPEN obligation rows for the transaction,
// giving a settlement run a consistent snapshot and serializing overlapping
// runs.
func (s *ObligationService) listOpenForUpdateTx(tx *sql.Tx) ([]models.Obligation, error) {
	rows, err := tx.Query(`
		SELECT id, from_pool, to_pool, amount_usd_cents, status, settlement_batch_id, created_at
		FROM obligations
		WHERE status = 'OPEN'
		ORDER BY created_at
		FOR UPDATE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObligations(rows)
}

func (s *ObligationService) createObligationTx(tx *sql.Tx, fromPool, toPool string, amountUSDCents int64) (*models.Obligation, error) {
	obligation := &models.Obligation{
		ID:             uuid.New().String(),
		FromPool:       fromPool,
		ToPool:         toPool,
		AmountUSDCents: amountUSDCents,
		Status:         models.ObligationOpen,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := tx.Exec(`
		INSERT INTO obligations (id, from_pool, to_pool, amount_usd_cents, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		obligation.ID, obligation.FromPool, obligation.ToPool,
		obligation.AmountUSDCents, obligation.Status, obligation.CreatedAt)
	if err != nil {
		return nil, err
	}
	return obligation, nil
}

// markSettledTx settles the given obligations under one batch. Fails if any
// id is not currently OPEN: an obligation is settled exactly once.
func (s *ObligationService) markSettledTx(tx *sql.Tx, ids []string, batchID string) error {
	if len(ids) == 0 {
		return nil
	}

	result, err := tx.Exec(`
		UPDATE obligations
		SET status = 'SETTLED', settlement_batch_id = $1
		WHERE id = ANY($2) AND status = 'OPEN'`,
		batchID, pq.Array(ids))
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected != int64(len(ids)) {
		return fmt.Errorf("%w: settled %d of %d", ErrObligationNotOpen, affected, len(ids))
	}
	return nil
}

// GrossOpenUSDCents sums all OPEN obligation amounts.
func (s *ObligationService) GrossOpenUSDCents(ctx context.Context) (int64, error) {
	var gross int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_usd_cents), 0) FROM obligations WHERE status = 'OPEN'`).Scan(&gross)
	return gross, err
}

func scanObligations(rows *sql.Rows) ([]models.Obligation, error) {
	obligations := []models.Obligation{}
	for rows.Next() {
		var o models.Obligation
		if err := rows.Scan(&o.ID, &o.FromPool, &o.ToPool, &o.AmountUSDCents,
			&o.Status, &o.SettlementBatchID, &o.CreatedAt); err != nil {
			return nil, err
		}
		obligations = append(obligations, o)
	}
	return obligations, rows.Err()
}
