package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/liquibridge/backend/internal/config"
	"github.com/liquibridge/backend/internal/models"
)

// SettlementService computes net exposure per pool pair from OPEN
// obligations and compresses it into a minimal set of settlement transfers.
// Each run settles at most one batch; runs serialize on the obligation row
// locks.
type SettlementService struct {
	db          *sql.DB
	redis       *redis.Client
	obligations *ObligationService
	accounts    *AccountStore
	journal     *JournalService
	payouts     *PayoutService
	export      *SettlementExportService
	validator   *ValidationHelper
	fx          *FXService
	cfg         *config.LedgerConfig
}

func NewSettlementService(db *sql.DB, redisClient *redis.Client, fx *FXService, payouts *PayoutService, cfg *config.LedgerConfig) *SettlementService {
	return &SettlementService{
		db:          db,
		redis:       redisClient,
		obligations: NewObligationService(db),
		accounts:    NewAccountStore(db),
		journal:     NewJournalService(db),
		payouts:     payouts,
		export:      NewSettlementExportService(),
		validator:   NewValidationHelper(),
		fx:          fx,
		cfg:         cfg,
	}
}

// SettlementRunResult reports one settlement run. SettlementCount is zero
// and BatchID empty when no pair cleared the threshold.
type SettlementRunResult struct {
	BatchID         string                         `json:"settlement_batch_id,omitempty"`
	SettlementCount int                            `json:"settlement_count"`
	Settlements     []models.SettlementInstruction `json:"settlements"`
}

// Run nets all OPEN obligations per pool pair and settles every pair whose
// absolute net clears the threshold. Obligations of qualifying pairs (both
// directions) are marked SETTLED under one new batch; pairs at or below the
// threshold are left untouched.
func (s *SettlementService) Run(ctx context.Context, thresholdUSDCents int64, operator string) (*SettlementRunResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	open, err := s.obligations.listOpenForUpdateTx(tx)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return &SettlementRunResult{Settlements: []models.SettlementInstruction{}}, nil
	}

	nets, idsPerPair := computeNetPositions(open)

	settlements := []models.SettlementInstruction{}
	settleIDs := []string{}
	for _, pair := range sortedPairs(nets) {
		net := nets[pair]
		if absCents(net) <= thresholdUSDCents {
			continue
		}
		settlements = append(settlements, instructionFor(pair, net))
		settleIDs = append(settleIDs, idsPerPair[pair]...)
	}

	if len(settlements) == 0 {
		return &SettlementRunResult{Settlements: []models.SettlementInstruction{}}, nil
	}

	batchID := uuid.New().String()
	notes := fmt.Sprintf("threshold=%d", thresholdUSDCents)
	if operator != "" {
		notes += " operator=" + operator
	}
	_, err = tx.Exec(`
		INSERT INTO settlement_batches (id, notes, created_at)
		VALUES ($1, $2, $3)`, batchID, notes, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := s.obligations.markSettledTx(tx, settleIDs, batchID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[SETTLEMENT] Batch %s: %d pair(s), %d obligation(s) settled",
		batchID, len(settlements), len(settleIDs))
	s.publishInstructions(ctx, batchID, settlements)

	return &SettlementRunResult{
		BatchID:         batchID,
		SettlementCount: len(settlements),
		Settlements:     settlements,
	}, nil
}

// publishInstructions hands the batch to downstream rails: each instruction
// is pushed to the Redis settlement queue and exported as a pacs.008 credit
// transfer. Both are best-effort after the batch has committed.
func (s *SettlementService) publishInstructions(ctx context.Context, batchID string, settlements []models.SettlementInstruction) {
	for _, inst := range settlements {
		if s.redis != nil {
			payload, err := json.Marshal(map[string]interface{}{
				"batch_id":         batchID,
				"payer":            inst.Payer,
				"payee":            inst.Payee,
				"amount_usd_cents": inst.AmountUSDCents,
			})
			if err == nil {
				if err := s.redis.RPush(ctx, s.cfg.SettlementQueueKey, payload).Err(); err != nil {
					log.Printf("[SETTLEMENT] Failed to queue instruction for batch %s: %v", batchID, err)
				}
			}
		}

		doc, err := s.export.CreatePacs008(batchID, inst)
		if err != nil {
			log.Printf("[SETTLEMENT] Failed to build pacs.008 for batch %s: %v", batchID, err)
			continue
		}
		if err := s.export.SendToSettlement(doc); err != nil {
			log.Printf("[SETTLEMENT] Failed to send pacs.008 for batch %s: %v", batchID, err)
		}
	}
}

// NetPosition is one pool pair's net exposure, for the read-only listing.
type NetPosition struct {
	PoolA       string `json:"pool_a"`
	PoolB       string `json:"pool_b"`
	NetUSDCents int64  `json:"net_usd_cents"`
	AbsUSDCents int64  `json:"abs_usd_cents"`
}

// NetPositions reports net exposure per pair from OPEN obligations without
// mutating anything.
func (s *SettlementService) NetPositions(ctx context.Context) ([]NetPosition, error) {
	open, err := s.obligations.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	nets, _ := computeNetPositions(open)

	positions := []NetPosition{}
	for _, pair := range sortedPairs(nets) {
		net := nets[pair]
		if net == 0 {
			continue
		}
		positions = append(positions, NetPosition{
			PoolA:       pair.A,
			PoolB:       pair.B,
			NetUSDCents: net,
			AbsUSDCents: absCents(net),
		})
	}
	return positions, nil
}

// LedgerState is the read-only snapshot returned by the state endpoint.
type LedgerState struct {
	Accounts        []models.Account         `json:"accounts"`
	OpenObligations []models.Obligation      `json:"open_obligations"`
	QueuedPayouts   []models.PayoutQueueItem `json:"queued_payouts"`
}

func (s *SettlementService) StateSnapshot(ctx context.Context) (*LedgerState, error) {
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	open, err := s.obligations.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	queued, err := s.payouts.QueuedItems(ctx)
	if err != nil {
		return nil, err
	}
	return &LedgerState{Accounts: accounts, OpenObligations: open, QueuedPayouts: queued}, nil
}

// LedgerMetrics surfaces exposure compression to operators.
type LedgerMetrics struct {
	GrossUSDCentsOpen      int64   `json:"gross_usd_cents_open"`
	NetUSDCentsIfSettleNow int64   `json:"net_usd_cents_if_settle_now"`
	CompressionRatio       float64 `json:"compression_ratio"`
	QueuedCount            int64   `json:"queued_count"`
	JournalEntriesToday    int64   `json:"entries_today"`
}

func (s *SettlementService) MetricsSnapshot(ctx context.Context) (*LedgerMetrics, error) {
	gross, err := s.obligations.GrossOpenUSDCents(ctx)
	if err != nil {
		return nil, err
	}
	open, err := s.obligations.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	nets, _ := computeNetPositions(open)
	var net int64
	for _, n := range nets {
		net += absCents(n)
	}

	queued, err := s.payouts.QueuedCount(ctx)
	if err != nil {
		return nil, err
	}
	today, err := s.journal.CountEntriesToday(ctx)
	if err != nil {
		return nil, err
	}

	metrics := &LedgerMetrics{
		GrossUSDCentsOpen:      gross,
		NetUSDCentsIfSettleNow: net,
		QueuedCount:            queued,
		JournalEntriesToday:    today,
	}
	if gross > 0 {
		metrics.CompressionRatio = float64(gross-net) / float64(gross)
	}
	return metrics, nil
}

// HTTP handlers

// Settle handles settlement runs
// @Summary Run settlement
// @Description Nets open obligations per pool pair and settles pairs above the threshold under one batch
// @Tags settlements
// @Accept json
// @Produce json
// @Param settle body object{threshold_usd_cents=int64} true "Settlement parameters"
// @Success 200 {object} SettlementRunResult
// @Failure 400 {object} ErrorResponse
// @Router /settlements/run [post]
func (s *SettlementService) Settle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ThresholdUSDCents int64 `json:"threshold_usd_cents" validate:"gte=0"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil && err != io.EOF {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	operator, _ := r.Context().Value("operatorID").(string)

	result, err := s.Run(r.Context(), req.ThresholdUSDCents, operator)
	if err != nil {
		log.Printf("[SETTLEMENT] Run failed: %v", err)
		SendTypedError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// State handles state snapshots
// @Summary Ledger state
// @Description Read-only snapshot of all accounts, open obligations and queued payouts
// @Tags state
// @Produce json
// @Success 200 {object} LedgerState
// @Router /state [get]
func (s *SettlementService) State(w http.ResponseWriter, r *http.Request) {
	state, err := s.StateSnapshot(r.Context())
	if err != nil {
		log.Printf("[STATE] Snapshot failed: %v", err)
		SendErrorResponse(w, "Failed to fetch state", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

// Metrics handles exposure metrics
// @Summary Ledger metrics
// @Description Gross and net open exposure, compression ratio, queue depth
// @Tags state
// @Produce json
// @Success 200 {object} LedgerMetrics
// @Router /metrics [get]
func (s *SettlementService) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.MetricsSnapshot(r.Context())
	if err != nil {
		log.Printf("[METRICS] Snapshot failed: %v", err)
		SendErrorResponse(w, "Failed to fetch metrics", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(metrics)
}

// NetPositionsHandler handles the pair exposure listing
// @Summary Net positions per pool pair
// @Description Net exposure per pool pair from open obligations, largest first
// @Tags state
// @Produce json
// @Success 200 {array} NetPosition
// @Router /net-positions [get]
func (s *SettlementService) NetPositionsHandler(w http.ResponseWriter, r *http.Request) {
	positions, err := s.NetPositions(r.Context())
	if err != nil {
		log.Printf("[STATE] Net positions failed: %v", err)
		SendErrorResponse(w, "Failed to fetch net positions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(positions)
}

// PoolInfo handles pool detail lookups
// @Summary Pool detail
// @Description Pool balance with its USD valuation and the FX rate used
// @Tags accounts
// @Produce json
// @Param poolID path string true "Pool ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /pools/{poolID} [get]
func (s *SettlementService) PoolInfo(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")

	account, err := s.accounts.GetAccount(r.Context(), poolID)
	if err != nil {
		SendTypedError(w, err)
		return
	}

	rate, err := s.fx.Rate(r.Context(), account.Currency)
	if err != nil {
		SendTypedError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":                account.ID,
		"kind":              account.Kind,
		"country":           account.Country,
		"currency":          account.Currency,
		"balance_minor":     account.BalanceMinor,
		"min_buffer_minor":  account.MinBufferMinor,
		"balance_usd_cents": USDCents(account.BalanceMinor, rate),
		"fx_rate_to_usd":    rate,
	})
}

// AccountTransactions handles per-account journal listings
// @Summary Account transactions
// @Description Journal postings for one account, newest first
// @Tags accounts
// @Produce json
// @Param accountID path string true "Account ID"
// @Param limit query int false "Max rows (default 100)"
// @Param type query string false "Entry type filter (payout|topup|settlement)"
// @Success 200 {array} AccountTransaction
// @Failure 404 {object} ErrorResponse
// @Router /accounts/{accountID}/transactions [get]
func (s *SettlementService) AccountTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	if _, err := s.accounts.GetAccount(r.Context(), accountID); err != nil {
		SendTypedError(w, err)
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}
	typeFilter := r.URL.Query().Get("type")

	transactions, err := s.journal.EntriesForAccount(r.Context(), accountID, typeFilter, limit)
	if err != nil {
		log.Printf("[STATE] Transactions for %s failed: %v", accountID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}
