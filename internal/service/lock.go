package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LockService grants exclusive edit leases on products. Acquisition is a
// single test-and-set in the store, so two concurrent acquires cannot both
// win. Expired leases are reclaimed lazily on the next acquire or edit; a
// stale lease only needs to stop being exclusive, not to be cleaned promptly.
type LockService struct {
	store     ProductStore
	audit     ActivityRecorder
	publisher EventPublisher
	cache     StockCache
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewLockService creates the product lock manager
func NewLockService(store ProductStore, audit ActivityRecorder, publisher EventPublisher, cache StockCache, ttl time.Duration) *LockService {
	return &LockService{
		store:     store,
		audit:     audit,
		publisher: publisher,
		cache:     cache,
		ttl:       ttl,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// Acquire grants the edit lease to holderID, refreshing it when the holder
// already owns it. On conflict the returned *models.LockConflictError carries
// the current holder and expiry.
func (ls *LockService) Acquire(ctx context.Context, productID int64, holderID, holderName string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "LockService.Acquire")
	defer span.End()

	now := ls.now()
	product, err := ls.store.AcquireProductLock(ctx, productID, holderID, holderName, now, now.Add(ls.ttl))
	if err != nil {
		if _, ok := err.(*models.LockConflictError); ok {
			util.LockConflictsTotal.Inc()
		}
		return nil, err
	}

	util.LockAcquiredTotal.Inc()
	ls.recordActivity(ctx, holderID, holderName, "product.lock", productID, "edit lock acquired")
	return product, nil
}

// Release clears the lease, holder-checked
func (ls *LockService) Release(ctx context.Context, productID int64, holderID string) error {
	ctx, span := util.StartSpan(ctx, "LockService.Release")
	defer span.End()

	if err := ls.store.ReleaseProductLock(ctx, productID, holderID); err != nil {
		return err
	}

	ls.recordActivity(ctx, holderID, "", "product.unlock", productID, "edit lock released")
	return nil
}

// ProductUpdate carries the editable product fields.
type ProductUpdate struct {
	Title       string
	Description string
	Price       int64
	TotalStock  int
}

// Edit commits a product edit under the caller's lease and releases the lease
// with the same statement. Acquire first, mutate, release on commit: the
// growing and shrinking phases never overlap.
func (ls *LockService) Edit(ctx context.Context, productID int64, holderID, holderName string, update ProductUpdate) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "LockService.Edit")
	defer span.End()

	if update.TotalStock < 0 {
		return nil, fmt.Errorf("total stock cannot be negative")
	}

	product := &models.Product{
		ID:          productID,
		Title:       update.Title,
		Description: update.Description,
		Price:       update.Price,
		TotalStock:  update.TotalStock,
	}
	if err := ls.store.UpdateProductLocked(ctx, product, holderID, ls.now()); err != nil {
		return nil, err
	}

	updated, err := ls.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	if ls.cache != nil {
		if cerr := ls.cache.PrimeStock(ctx, productID, updated.TotalStock); cerr != nil {
			ls.logger.Warn("Failed to prime stock cache after edit",
				zap.Int64("product_id", productID),
				zap.Error(cerr))
		}
	}

	ls.recordActivity(ctx, holderID, holderName, "product.edit", productID,
		fmt.Sprintf("title=%q stock=%d", updated.Title, updated.TotalStock))
	ls.publishProduct(ctx, updated)

	return updated, nil
}

func (ls *LockService) recordActivity(ctx context.Context, actorID, actorName, action string, productID int64, detail string) {
	entry := &models.ActivityLog{
		ActorID:    actorID,
		ActorName:  actorName,
		Action:     action,
		EntityType: "product",
		EntityID:   productID,
		Detail:     detail,
	}
	if err := ls.audit.InsertActivityLog(ctx, entry); err != nil {
		ls.logger.Error("Failed to record activity",
			zap.String("action", action),
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
}

func (ls *LockService) publishProduct(ctx context.Context, product *models.Product) {
	event := &models.ProductEvent{
		EventID:   uuid.New().String(),
		Action:    models.ActionProductUpdated,
		ProductID: product.ID,
		Product:   product,
		Timestamp: ls.now(),
	}
	if err := ls.publisher.PublishProductEvent(ctx, event); err != nil {
		ls.logger.Error("Failed to publish product event",
			zap.Int64("product_id", product.ID),
			zap.Error(err))
	}
}
