package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Ledger owns per-product stock. Reservations are authoritative in the
// database (conditional decrement); the cache only fast-fails hopeless
// requests and serves reads. Restores are best-effort by contract so cleanup
// paths never cascade a product problem into an order problem.
type Ledger struct {
	store  ProductStore
	cache  StockCache
	logger *zap.Logger
}

// NewLedger creates the inventory ledger. cache may be nil.
func NewLedger(store ProductStore, cache StockCache) *Ledger {
	return &Ledger{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// Reserve atomically decrements stock for a product and returns the new
// level. Fails with models.ErrInsufficientStock or models.ErrNotFound.
func (l *Ledger) Reserve(ctx context.Context, productID int64, qty int) (int, error) {
	ctx, span := util.StartSpan(ctx, "Ledger.Reserve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.StockReserveLatency.Observe(time.Since(start).Seconds())
	}()

	cached := redisclient.StockUnknown
	if l.cache != nil {
		status, err := l.cache.ReserveStock(ctx, productID, qty)
		if err != nil {
			l.logger.Warn("Stock cache precheck failed, using database only",
				zap.Int64("product_id", productID),
				zap.Error(err))
		} else {
			cached = status
		}
		if cached == redisclient.StockInsufficient {
			util.StockReservationsFailed.WithLabelValues("insufficient_stock").Inc()
			return 0, fmt.Errorf("product %d: %w", productID, models.ErrInsufficientStock)
		}
	}

	newStock, err := l.store.ReserveStock(ctx, productID, qty)
	if err != nil {
		// The precheck already decremented the cache; hand the units back.
		if cached == redisclient.StockReserved {
			if cerr := l.cache.RestoreStock(ctx, productID, qty); cerr != nil {
				l.logger.Warn("Failed to roll back cache precheck",
					zap.Int64("product_id", productID),
					zap.Error(cerr))
			}
		}
		switch {
		case errors.Is(err, models.ErrInsufficientStock):
			util.StockReservationsFailed.WithLabelValues("insufficient_stock").Inc()
		case errors.Is(err, models.ErrNotFound):
			util.StockReservationsFailed.WithLabelValues("not_found").Inc()
		default:
			util.StockReservationsFailed.WithLabelValues("error").Inc()
		}
		return 0, err
	}

	if l.cache != nil && cached == redisclient.StockUnknown {
		if cerr := l.cache.PrimeStock(ctx, productID, newStock); cerr != nil {
			l.logger.Warn("Failed to prime stock cache",
				zap.Int64("product_id", productID),
				zap.Error(cerr))
		}
	}

	return newStock, nil
}

// Restore increments stock for a product. Best-effort: a missing product is
// logged and skipped, never surfaced, so a deleted product cannot wedge the
// cancellation flows that call this.
func (l *Ledger) Restore(ctx context.Context, productID int64, qty int) {
	ctx, span := util.StartSpan(ctx, "Ledger.Restore")
	defer span.End()

	newStock, err := l.store.RestoreStock(ctx, productID, qty)
	if err != nil {
		util.StockRestoreFailures.Inc()
		if errors.Is(err, models.ErrNotFound) {
			l.logger.Warn("Skipping stock restore for missing product",
				zap.Int64("product_id", productID),
				zap.Int("qty", qty))
		} else {
			l.logger.Error("Failed to restore stock",
				zap.Int64("product_id", productID),
				zap.Int("qty", qty),
				zap.Error(err))
		}
		return
	}

	if l.cache != nil {
		if cerr := l.cache.RestoreStock(ctx, productID, qty); cerr != nil {
			l.logger.Warn("Failed to restore cached stock",
				zap.Int64("product_id", productID),
				zap.Error(cerr))
		}
	}

	l.logger.Info("Stock restored",
		zap.Int64("product_id", productID),
		zap.Int("qty", qty),
		zap.Int("new_stock", newStock))
}
