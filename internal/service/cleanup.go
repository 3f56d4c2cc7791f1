package service

import (
	"context"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// StockRestorer puts an order's reserved stock back after a forced
// cancellation. Both implementations are idempotent per order because the
// caller only invokes them once per cancellation event, guarded by the
// status compare-and-swap.
type StockRestorer interface {
	RestoreOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
}

// TransactionalRestorer restores all lines of an order in a single database
// transaction. Preferred when the store supports it: the restore is all or
// nothing.
type TransactionalRestorer struct {
	store  ProductStore
	cache  StockCache
	logger *zap.Logger
}

func NewTransactionalRestorer(store ProductStore, cache StockCache) *TransactionalRestorer {
	return &TransactionalRestorer{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

func (r *TransactionalRestorer) RestoreOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	if err := r.store.RestoreStockLines(ctx, items); err != nil {
		return err
	}
	if r.cache != nil {
		for _, item := range items {
			if cerr := r.cache.RestoreStock(ctx, item.ProductID, item.Quantity); cerr != nil {
				r.logger.Warn("Failed to restore cached stock",
					zap.Int64("product_id", item.ProductID),
					zap.Error(cerr))
			}
		}
	}
	return nil
}

// BestEffortRestorer restores line by line through the ledger. A line that
// cannot be restored is logged and skipped; the remaining lines still apply.
// Fallback for deployments without multi-statement transactions.
type BestEffortRestorer struct {
	ledger *Ledger
}

func NewBestEffortRestorer(ledger *Ledger) *BestEffortRestorer {
	return &BestEffortRestorer{ledger: ledger}
}

func (r *BestEffortRestorer) RestoreOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	for _, item := range items {
		r.ledger.Restore(ctx, item.ProductID, item.Quantity)
	}
	return nil
}

const sweepLockKey = "payment-deadline-sweep"

// Sweeper finds orders past their payment deadline with no proof submitted
// and force-cancels them. Each order is handled independently: one failure
// never aborts the rest, and anything skipped is retried on the next run.
type Sweeper struct {
	orders   *OrderService
	source   OrderStore
	restorer StockRestorer
	guard    SweepGuard
	lockTTL  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSweeper creates the deadline sweeper. guard may be nil for
// single-instance deployments.
func NewSweeper(orders *OrderService, source OrderStore, restorer StockRestorer, guard SweepGuard, lockTTL time.Duration) *Sweeper {
	return &Sweeper{
		orders:   orders,
		source:   source,
		restorer: restorer,
		guard:    guard,
		lockTTL:  lockTTL,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// Run executes one sweep and returns how many orders it cancelled
func (sw *Sweeper) Run(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "Sweeper.Run")
	defer span.End()

	util.SweepRunsTotal.Inc()
	start := time.Now()
	defer func() {
		util.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	if sw.guard != nil {
		acquired, err := sw.guard.AcquireLock(ctx, sweepLockKey, sw.lockTTL)
		if err != nil {
			return 0, err
		}
		if !acquired {
			sw.logger.Info("Deadline sweep already running elsewhere, skipping")
			return 0, nil
		}
		defer func() {
			if rerr := sw.guard.ReleaseLock(ctx, sweepLockKey); rerr != nil {
				sw.logger.Warn("Failed to release sweep lock", zap.Error(rerr))
			}
		}()
	}

	expired, err := sw.source.FindExpiredUnpaid(ctx, sw.now())
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	sw.logger.Info("Deadline sweep found expired orders", zap.Int("count", len(expired)))

	cancelled := 0
	for _, order := range expired {
		done, err := sw.orders.ForceCancelExpired(ctx, order.ID, sw.restorer)
		if err != nil {
			sw.logger.Error("Failed to cancel expired order, will retry next run",
				zap.Int64("order_id", order.ID),
				zap.Error(err))
			continue
		}
		if done {
			cancelled++
		}
	}

	util.SweepCancelledTotal.Add(float64(cancelled))
	sw.logger.Info("Deadline sweep finished",
		zap.Int("matched", len(expired)),
		zap.Int("cancelled", cancelled))
	return cancelled, nil
}
