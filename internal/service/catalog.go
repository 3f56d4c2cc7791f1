package service

import (
	"context"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CatalogService handles the product mutations that do not go through the
// edit lease: creation and archival. Edits are owned by LockService.
type CatalogService struct {
	store     ProductStore
	audit     ActivityRecorder
	publisher EventPublisher
	cache     StockCache
	logger    *zap.Logger
}

func NewCatalogService(store ProductStore, audit ActivityRecorder, publisher EventPublisher, cache StockCache) *CatalogService {
	return &CatalogService{
		store:     store,
		audit:     audit,
		publisher: publisher,
		cache:     cache,
		logger:    util.GetLogger(),
	}
}

// Create adds a product to the catalog
func (cs *CatalogService) Create(ctx context.Context, actor *models.SessionUser, product *models.Product) error {
	if err := cs.store.CreateProduct(ctx, product); err != nil {
		return err
	}

	if cs.cache != nil {
		if err := cs.cache.PrimeStock(ctx, product.ID, product.TotalStock); err != nil {
			cs.logger.Warn("Failed to prime stock cache for new product",
				zap.Int64("product_id", product.ID),
				zap.Error(err))
		}
	}

	cs.record(ctx, actor, "product.create", product.ID, product.Title)
	cs.publish(ctx, product)
	return nil
}

// List returns catalog products; archived ones only when asked
func (cs *CatalogService) List(ctx context.Context, includeArchived bool) ([]models.Product, error) {
	return cs.store.ListProducts(ctx, includeArchived)
}

// Get returns a single product
func (cs *CatalogService) Get(ctx context.Context, productID int64) (*models.Product, error) {
	return cs.store.GetProductByID(ctx, productID)
}

// SetArchived flips the soft-delete flag. Archived products stop accepting
// reservations but keep their history.
func (cs *CatalogService) SetArchived(ctx context.Context, actor *models.SessionUser, productID int64, archived bool) error {
	if err := cs.store.SetProductArchived(ctx, productID, archived); err != nil {
		return err
	}

	product, err := cs.store.GetProductByID(ctx, productID)
	if err != nil {
		return err
	}

	action := "product.archive"
	if !archived {
		action = "product.unarchive"
	}
	cs.record(ctx, actor, action, productID, product.Title)
	cs.publish(ctx, product)
	return nil
}

func (cs *CatalogService) record(ctx context.Context, actor *models.SessionUser, action string, productID int64, detail string) {
	entry := &models.ActivityLog{
		ActorID:    actorTag(actor),
		ActorName:  actor.Name,
		Action:     action,
		EntityType: "product",
		EntityID:   productID,
		Detail:     detail,
	}
	if err := cs.audit.InsertActivityLog(ctx, entry); err != nil {
		cs.logger.Error("Failed to record activity",
			zap.String("action", action),
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
}

func (cs *CatalogService) publish(ctx context.Context, product *models.Product) {
	event := &models.ProductEvent{
		EventID:   uuid.New().String(),
		Action:    models.ActionProductUpdated,
		ProductID: product.ID,
		Product:   product,
	}
	event.Timestamp = product.UpdatedAt
	if err := cs.publisher.PublishProductEvent(ctx, event); err != nil {
		cs.logger.Error("Failed to publish product event",
			zap.Int64("product_id", product.ID),
			zap.Error(err))
	}
}
