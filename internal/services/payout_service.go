package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/liquibridge/backend/internal/config"
	"github.com/liquibridge/backend/internal/models"
)

// PayoutService orchestrates payout requests: idempotency check, buffer
// check, then execute (journal entry + obligation) or enqueue. Every
// executed payout debits the destination pool and credits the system
// clearing account so the journal entry balances.
type PayoutService struct {
	db          *sql.DB
	accounts    *AccountStore
	journal     *JournalService
	obligations *ObligationService
	fx          *FXService
	validator   *ValidationHelper
	cfg         *config.LedgerConfig
}

func NewPayoutService(db *sql.DB, fx *FXService, cfg *config.LedgerConfig) *PayoutService {
	return &PayoutService{
		db:          db,
		accounts:    NewAccountStore(db),
		journal:     NewJournalService(db),
		obligations: NewObligationService(db),
		fx:          fx,
		validator:   NewValidationHelper(),
		cfg:         cfg,
	}
}

type PayoutRequest struct {
	FromPool       string `json:"from_pool" validate:"required"`
	ToPool         string `json:"to_pool" validate:"required"`
	AmountMinor    int64  `json:"amount_minor" validate:"required,gt=0"`
	IdempotencyKey string `json:"idempotency_key"`
}

// PayoutResult is the response for both fresh and replayed requests; a
// replay returns exactly the result of the original execution.
type PayoutResult struct {
	Queued         bool   `json:"queued"`
	JournalEntryID string `json:"journal_entry_id,omitempty"`
	ObligationID   string `json:"obligation_id,omitempty"`
	AmountUSDCents int64  `json:"amount_usd_cents,omitempty"`
	PayoutQueueID  string `json:"payout_queue_id,omitempty"`
}

// payoutMetadata is stored on the journal entry so a replayed request can
// reconstruct the original result without re-deriving anything.
type payoutMetadata struct {
	FromPool       string `json:"from_pool"`
	ToPool         string `json:"to_pool"`
	AmountMinor    int64  `json:"amount_minor"`
	ObligationID   string `json:"obligation_id"`
	AmountUSDCents int64  `json:"amount_usd_cents"`
}

// ProcessPayout executes or queues a payout. At most one financial effect
// happens per idempotency key, regardless of retries or concurrent
// duplicates.
func (s *PayoutService) ProcessPayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	if req.AmountMinor <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.FromPool == req.ToPool {
		return nil, fmt.Errorf("%w: from_pool and to_pool must differ", ErrInvalidAmount)
	}

	if req.IdempotencyKey != "" {
		existing, err := s.journal.GetEntryByExternalID(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return resultFromEntry(existing)
		}
	}

	if _, err := s.accounts.GetAccount(ctx, req.FromPool); err != nil {
		return nil, err
	}
	dest, err := s.accounts.GetAccount(ctx, req.ToPool)
	if err != nil {
		return nil, err
	}

	// USD amount is fixed at execution time from the destination currency
	// and carried forward; it is never re-derived later.
	rate, err := s.fx.Rate(ctx, dest.Currency)
	if err != nil {
		return nil, err
	}
	usdCents := USDCents(req.AmountMinor, rate)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	locked, err := s.accounts.lockAccountTx(tx, req.ToPool)
	if err != nil {
		return nil, err
	}

	if locked.BalanceMinor-req.AmountMinor < locked.MinBufferMinor {
		tx.Rollback()
		return s.enqueuePayout(ctx, req)
	}

	entry, obligation, err := s.executePayoutTx(tx, req.FromPool, req.ToPool, req.AmountMinor, usdCents, externalID(req.IdempotencyKey))
	if err == errDuplicateExternalID {
		// Lost a race with a concurrent request holding the same key.
		tx.Rollback()
		existing, qerr := s.journal.GetEntryByExternalID(ctx, req.IdempotencyKey)
		if qerr != nil {
			return nil, qerr
		}
		if existing == nil {
			return nil, fmt.Errorf("idempotency conflict for key %s but no entry found", req.IdempotencyKey)
		}
		return resultFromEntry(existing)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[PAYOUT] Executed %s -> %s amount_minor=%d usd_cents=%d entry=%s",
		req.FromPool, req.ToPool, req.AmountMinor, usdCents, entry.ID)
	return &PayoutResult{
		JournalEntryID: entry.ID,
		ObligationID:   obligation.ID,
		AmountUSDCents: usdCents,
	}, nil
}

// executePayoutTx creates the payout journal entry (destination debit +
// clearing credit), the OPEN obligation, and the replay metadata, all inside
// the caller's transaction.
func (s *PayoutService) executePayoutTx(tx *sql.Tx, fromPool, toPool string, amountMinor, usdCents int64, extID *string) (*models.JournalEntry, *models.Obligation, error) {
	postings := []PostingInput{
		{AccountID: toPool, Direction: models.DirectionDebit, AmountMinor: amountMinor},
		{AccountID: s.cfg.ClearingAccountID, Direction: models.DirectionCredit, AmountMinor: amountMinor},
	}
	entry, err := s.journal.createEntryTx(tx, models.EntryTypePayout, extID, postings, nil)
	if err != nil {
		return nil, nil, err
	}

	obligation, err := s.obligations.createObligationTx(tx, fromPool, toPool, usdCents)
	if err != nil {
		return nil, nil, err
	}

	metadata, err := json.Marshal(payoutMetadata{
		FromPool:       fromPool,
		ToPool:         toPool,
		AmountMinor:    amountMinor,
		ObligationID:   obligation.ID,
		AmountUSDCents: usdCents,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := s.journal.updateEntryMetadataTx(tx, entry.ID, metadata); err != nil {
		return nil, nil, err
	}
	return entry, obligation, nil
}

// enqueuePayout records a payout the destination buffer could not absorb.
// No journal entry, no obligation, no balance change.
func (s *PayoutService) enqueuePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	queueID := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payout_queue (id, from_pool, to_pool, amount_minor, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		queueID, req.FromPool, req.ToPool, req.AmountMinor, models.QueueStatusQueued, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	log.Printf("[PAYOUT] Queued %s -> %s amount_minor=%d queue_id=%s (insufficient buffer)",
		req.FromPool, req.ToPool, req.AmountMinor, queueID)
	return &PayoutResult{Queued: true, PayoutQueueID: queueID}, nil
}

// ProcessTopup credits an account through the journal. Direct admin action,
// no idempotency key, no obligation.
func (s *PayoutService) ProcessTopup(ctx context.Context, accountID string, amountMinor int64) (*models.JournalEntry, error) {
	if amountMinor <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(map[string]interface{}{
		"account_id":   accountID,
		"amount_minor": amountMinor,
	})
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	postings := []PostingInput{
		{AccountID: accountID, Direction: models.DirectionCredit, AmountMinor: amountMinor},
		{AccountID: s.cfg.ClearingAccountID, Direction: models.DirectionDebit, AmountMinor: amountMinor},
	}
	entry, err := s.journal.createEntryTx(tx, models.EntryTypeTopup, nil, postings, metadata)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[TOPUP] Credited %s amount_minor=%d entry=%s", accountID, amountMinor, entry.ID)
	return entry, nil
}

// DrainResult summarizes one explicit queue drain run.
type DrainResult struct {
	AccountID string   `json:"account_id"`
	Executed  []string `json:"executed_queue_ids"`
	Failed    []string `json:"failed_queue_ids"`
	Remaining int      `json:"remaining"`
}

// DrainQueue re-attempts queued payouts destined for one account, oldest
// first. Draining stops at the first item the buffer still cannot absorb;
// items whose pools or FX rates have since disappeared are marked FAILED.
// Draining is only ever triggered explicitly, never by a topup.
func (s *PayoutService) DrainQueue(ctx context.Context, accountID string) (*DrainResult, error) {
	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	items, err := s.queuedItemsFor(ctx, accountID)
	if err != nil {
		return nil, err
	}

	result := &DrainResult{AccountID: accountID, Executed: []string{}, Failed: []string{}}
	for i, item := range items {
		executed, err := s.drainOne(ctx, item)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrMissingFXRate) {
				if merr := s.markQueueItem(ctx, item.ID, models.QueueStatusFailed); merr != nil {
					return nil, merr
				}
				log.Printf("[DRAIN] Marked queue item %s FAILED: %v", item.ID, err)
				result.Failed = append(result.Failed, item.ID)
				continue
			}
			return nil, err
		}
		if !executed {
			result.Remaining = len(items) - i
			break
		}
		result.Executed = append(result.Executed, item.ID)
	}

	log.Printf("[DRAIN] Account %s: executed=%d failed=%d remaining=%d",
		accountID, len(result.Executed), len(result.Failed), result.Remaining)
	return result, nil
}

// drainOne re-runs one queued payout through the normal execute path.
// Returns false without error when the buffer still cannot absorb it.
func (s *PayoutService) drainOne(ctx context.Context, item models.PayoutQueueItem) (bool, error) {
	dest, err := s.accounts.GetAccount(ctx, item.ToPool)
	if err != nil {
		return false, err
	}
	rate, err := s.fx.Rate(ctx, dest.Currency)
	if err != nil {
		return false, err
	}
	usdCents := USDCents(item.AmountMinor, rate)

	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	locked, err := s.accounts.lockAccountTx(tx, item.ToPool)
	if err != nil {
		return false, err
	}
	if locked.BalanceMinor-item.AmountMinor < locked.MinBufferMinor {
		return false, nil
	}

	if _, _, err := s.executePayoutTx(tx, item.FromPool, item.ToPool, item.AmountMinor, usdCents, nil); err != nil {
		return false, err
	}
	if _, err := tx.Exec(`
		UPDATE payout_queue SET status = 'EXECUTED' WHERE id = $1`, item.ID); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PayoutService) queuedItemsFor(ctx context.Context, accountID string) ([]models.PayoutQueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_pool, to_pool, amount_minor, status, created_at
		FROM payout_queue
		WHERE to_pool = $1 AND status = 'QUEUED'
		ORDER BY created_at
		LIMIT $2`, accountID, s.cfg.DrainBatchLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanQueueItems(rows)
}

// QueuedItems lists all queued payouts, for the state snapshot.
func (s *PayoutService) QueuedItems(ctx context.Context) ([]models.PayoutQueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_pool, to_pool, amount_minor, status, created_at
		FROM payout_queue
		WHERE status = 'QUEUED'
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanQueueItems(rows)
}

// QueuedCount counts items still waiting in the payout queue.
func (s *PayoutService) QueuedCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM payout_queue WHERE status = 'QUEUED'`).Scan(&count)
	return count, err
}

func (s *PayoutService) markQueueItem(ctx context.Context, itemID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE payout_queue SET status = $1 WHERE id = $2`, status, itemID)
	return err
}

func scanQueueItems(rows *sql.Rows) ([]models.PayoutQueueItem, error) {
	items := []models.PayoutQueueItem{}
	for rows.Next() {
		var item models.PayoutQueueItem
		if err := rows.Scan(&item.ID, &item.FromPool, &item.ToPool,
			&item.AmountMinor, &item.Status, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func resultFromEntry(entry *models.JournalEntry) (*PayoutResult, error) {
	var meta payoutMetadata
	if len(entry.Metadata) > 0 {
		if err := json.Unmarshal(entry.Metadata, &meta); err != nil {
			return nil, fmt.Errorf("corrupt metadata on entry %s: %w", entry.ID, err)
		}
	}
	return &PayoutResult{
		JournalEntryID: entry.ID,
		ObligationID:   meta.ObligationID,
		AmountUSDCents: meta.AmountUSDCents,
	}, nil
}

func externalID(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}

// HTTP handlers

// Payout handles payout requests
// @Summary Execute or queue a payout
// @Description Fronts local currency from the destination pool and records a USD obligation, or queues the payout when the pool buffer would be breached. Idempotent per idempotency_key.
// @Tags payouts
// @Accept json
// @Produce json
// @Param payout body PayoutRequest true "Payout request"
// @Success 200 {object} PayoutResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /payouts [post]
func (s *PayoutService) Payout(w http.ResponseWriter, r *http.Request) {
	var req PayoutRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := s.ProcessPayout(r.Context(), req)
	if err != nil {
		log.Printf("[PAYOUT] Failed %s -> %s: %v", req.FromPool, req.ToPool, err)
		SendTypedError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Topup handles admin topups
// @Summary Top up an account
// @Description Credits an account with additional liquidity through a journal entry
// @Tags accounts
// @Accept json
// @Produce json
// @Param topup body object{account_id=string,amount_minor=int64} true "Topup request"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /topups [post]
func (s *PayoutService) Topup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID   string `json:"account_id" validate:"required"`
		AmountMinor int64  `json:"amount_minor" validate:"required,gt=0"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	entry, err := s.ProcessTopup(r.Context(), req.AccountID, req.AmountMinor)
	if err != nil {
		log.Printf("[TOPUP] Failed for %s: %v", req.AccountID, err)
		SendTypedError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"journal_entry_id": entry.ID,
		"account_id":       req.AccountID,
		"amount_minor":     req.AmountMinor,
	})
}

// Drain handles explicit queue drains
// @Summary Drain queued payouts for an account
// @Description Re-attempts queued payouts destined for the account, oldest first, stopping when the buffer cannot absorb the next one
// @Tags payouts
// @Produce json
// @Param accountID path string true "Destination account ID"
// @Success 200 {object} DrainResult
// @Failure 404 {object} ErrorResponse
// @Router /queue/{accountID}/drain [post]
func (s *PayoutService) Drain(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	result, err := s.DrainQueue(r.Context(), accountID)
	if err != nil {
		log.Printf("[DRAIN] Failed for %s: %v", accountID, err)
		SendTypedError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
