package service

import (
	"context"
	"time"

	"storefront/internal/models"
)

// ProductStore is the product-side persistence surface the services need.
// *store.Store satisfies it; tests use in-memory fakes.
type ProductStore interface {
	CreateProduct(ctx context.Context, product *models.Product) error
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, includeArchived bool) ([]models.Product, error)
	SetProductArchived(ctx context.Context, id int64, archived bool) error
	ReserveStock(ctx context.Context, productID int64, qty int) (int, error)
	RestoreStock(ctx context.Context, productID int64, qty int) (int, error)
	RestoreStockLines(ctx context.Context, lines []models.OrderItem) error
	AcquireProductLock(ctx context.Context, productID int64, holderID, holderName string, now, expiry time.Time) (*models.Product, error)
	ReleaseProductLock(ctx context.Context, productID int64, holderID string) error
	UpdateProductLocked(ctx context.Context, product *models.Product, holderID string, now time.Time) error
}

// OrderStore is the order-side persistence surface.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	ListOrdersByUser(ctx context.Context, userID int64, archived bool) ([]models.Order, error)
	ListOrders(ctx context.Context, archived bool) ([]models.Order, error)
	TransitionStatus(ctx context.Context, orderID int64, from, to models.OrderStatus, now time.Time, confirmation, deadline *time.Time, markPaid bool) (bool, error)
	CancelOrder(ctx context.Context, orderID int64, from models.OrderStatus, reason *string, now time.Time) (bool, error)
	UncancelOrder(ctx context.Context, orderID int64, now time.Time) (bool, error)
	SetPaymentProof(ctx context.Context, orderID int64, proof string, now time.Time) error
	SetOrderArchived(ctx context.Context, orderID int64, archived bool, now time.Time) error
	DeleteOrder(ctx context.Context, orderID int64) error
	FindExpiredUnpaid(ctx context.Context, now time.Time) ([]models.Order, error)
	SalesReport(ctx context.Context, from, to time.Time) (*models.SalesReport, error)
}

// ActivityRecorder appends audit-trail entries.
type ActivityRecorder interface {
	InsertActivityLog(ctx context.Context, entry *models.ActivityLog) error
}

// EventPublisher is the pub/sub seam the order flow publishes realtime events
// through. The services never see the transport behind it.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error
	PublishProductEvent(ctx context.Context, event *models.ProductEvent) error
}

// StockCache is the fast-fail stock precheck kept alongside the authoritative
// database counts.
type StockCache interface {
	ReserveStock(ctx context.Context, productID int64, qty int) (int, error)
	RestoreStock(ctx context.Context, productID int64, qty int) error
	PrimeStock(ctx context.Context, productID int64, stock int) error
}

// DeadlineNotifier mirrors a payment deadline into an external calendar.
// Advisory only: implementations must never propagate failures.
type DeadlineNotifier interface {
	SyncDeadline(ctx context.Context, userID int64, order *models.Order) bool
}

// SweepGuard keeps the deadline sweep single-flight across instances.
type SweepGuard interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}
