package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const fxCacheTTL = 5 * time.Minute

// FXService looks up injected currency→USD rates. Rates live in Postgres and
// are served through a Redis read-through cache when Redis is available.
type FXService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *ValidationHelper
}

func NewFXService(db *sql.DB, redisClient *redis.Client) *FXService {
	return &FXService{
		db:        db,
		redis:     redisClient,
		validator: NewValidationHelper(),
	}
}

// Rate returns the USD-per-unit rate for a currency. Returns ErrMissingFXRate
// if no rate has been injected for it.
func (s *FXService) Rate(ctx context.Context, currency string) (float64, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, fxCacheKey(currency)).Result()
		if err == nil {
			if rate, perr := strconv.ParseFloat(cached, 64); perr == nil {
				return rate, nil
			}
		}
	}

	var rate float64
	err := s.db.QueryRowContext(ctx, `
		SELECT usd_per_unit FROM fx_rates WHERE currency = $1`, currency).Scan(&rate)
	if err == sql.ErrNoRows {
		return 0, MissingFXRateError(currency)
	}
	if err != nil {
		return 0, err
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, fxCacheKey(currency), strconv.FormatFloat(rate, 'f', -1, 64), fxCacheTTL).Err(); err != nil {
			log.Printf("[FX] Failed to cache rate for %s: %v", currency, err)
		}
	}
	return rate, nil
}

// UpsertRateValue injects or replaces the rate for a currency and drops the
// cached value so the next lookup sees the new rate.
func (s *FXService) UpsertRateValue(ctx context.Context, currency string, usdPerUnit float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fx_rates (currency, usd_per_unit)
		VALUES ($1, $2)
		ON CONFLICT (currency) DO UPDATE SET usd_per_unit = EXCLUDED.usd_per_unit`,
		currency, usdPerUnit)
	if err != nil {
		return err
	}

	if s.redis != nil {
		if err := s.redis.Del(ctx, fxCacheKey(currency)).Err(); err != nil {
			log.Printf("[FX] Failed to invalidate cached rate for %s: %v", currency, err)
		}
	}
	return nil
}

// USDCents converts an amount in local minor units to USD cents. Both sides
// are scaled by 100, so amount_minor * usd_per_unit yields USD cents
// directly. Rounding is half-to-even, applied exactly once; the result is
// carried forward and never re-derived from stored data.
func USDCents(amountMinor int64, usdPerUnit float64) int64 {
	return int64(math.RoundToEven(float64(amountMinor) * usdPerUnit))
}

func fxCacheKey(currency string) string {
	return "fx_rate:" + currency
}

// UpsertFXRate handles operator FX rate injection
// @Summary Set FX rate
// @Description Inject or replace the USD conversion rate for a currency
// @Tags fx
// @Accept json
// @Produce json
// @Param rate body object{currency=string,usd_per_unit=float64} true "Rate data"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /fx-rates [put]
func (s *FXService) UpsertFXRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Currency   string  `json:"currency" validate:"required,len=3"`
		USDPerUnit float64 `json:"usd_per_unit" validate:"required,gt=0"`
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

	if err := s.UpsertRateValue(r.Context(), req.Currency, req.USDPerUnit); err != nil {
		log.Printf("[FX] Failed to upsert rate %s=%f: %v", req.Currency, req.USDPerUnit, err)
		SendErrorResponse(w, "Failed to store rate", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[FX] Rate set: %s=%f", req.Currency, req.USDPerUnit)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"currency":     req.Currency,
		"usd_per_unit": req.USDPerUnit,
	})
}
