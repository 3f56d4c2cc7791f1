package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// transition CAS retry bound; losing more than this many races in a row means
// something else is wrong
const maxTransitionAttempts = 3

// OrderService owns the order state machine and its side effects.
type OrderService struct {
	orders      OrderStore
	products    ProductStore
	ledger      *Ledger
	publisher   EventPublisher
	calendar    DeadlineNotifier
	audit       ActivityRecorder
	gracePeriod time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(
	orders OrderStore,
	products ProductStore,
	ledger *Ledger,
	publisher EventPublisher,
	calendar DeadlineNotifier,
	audit ActivityRecorder,
	gracePeriod time.Duration,
) *OrderService {
	return &OrderService{
		orders:      orders,
		products:    products,
		ledger:      ledger,
		publisher:   publisher,
		calendar:    calendar,
		audit:       audit,
		gracePeriod: gracePeriod,
		logger:      util.GetLogger(),
		now:         time.Now,
	}
}

// CartLine is one requested line at checkout.
type CartLine struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// Create places an order: stock is reserved line by line at creation, and any
// failure hands back everything reserved so far before returning.
func (s *OrderService) Create(ctx context.Context, userID int64, lines []CartLine) (*models.Order, []models.OrderItem, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Create")
	defer span.End()

	items := make([]models.OrderItem, 0, len(lines))
	var total int64

	for i, line := range lines {
		product, err := s.products.GetProductByID(ctx, line.ProductID)
		if err == nil && product.IsArchived {
			err = fmt.Errorf("product %d: %w", line.ProductID, models.ErrNotFound)
		}
		if err == nil {
			_, err = s.ledger.Reserve(ctx, line.ProductID, line.Quantity)
		}
		if err != nil {
			s.releaseLines(ctx, lines[:i])
			util.OrdersFailedTotal.WithLabelValues(failReason(err)).Inc()
			return nil, nil, err
		}

		items = append(items, models.OrderItem{
			ProductID: line.ProductID,
			Title:     product.Title,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
		})
		total += product.Price * int64(line.Quantity)
	}

	order := &models.Order{
		UserID:        userID,
		TotalAmount:   total,
		OrderStatus:   models.StatusPending,
		PaymentStatus: models.PaymentPending,
	}

	if err := s.orders.CreateOrder(ctx, order, items); err != nil {
		s.releaseLines(ctx, lines)
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.Int64("total", total))

	s.publishOrder(ctx, models.ActionNewOrder, order)
	return order, items, nil
}

func (s *OrderService) releaseLines(ctx context.Context, lines []CartLine) {
	for _, line := range lines {
		s.ledger.Restore(ctx, line.ProductID, line.Quantity)
	}
}

func failReason(err error) string {
	switch {
	case errors.Is(err, models.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, models.ErrNotFound):
		return "product_not_found"
	default:
		return "error"
	}
}

// Get retrieves an order with its items
func (s *OrderService) Get(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.orders.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

// List retrieves orders for one user, or for everyone when admin is set
func (s *OrderService) List(ctx context.Context, userID int64, admin, archived bool) ([]models.Order, error) {
	if admin {
		return s.orders.ListOrders(ctx, archived)
	}
	return s.orders.ListOrdersByUser(ctx, userID, archived)
}

// Transition moves an order forward along the linear status chain. The status
// check and the write share one compare-and-swap, so a concurrent admin
// update or sweep cancellation cannot both apply; the loser re-reads and
// reports the error the new state implies.
func (s *OrderService) Transition(ctx context.Context, orderID int64, target models.OrderStatus) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Transition")
	defer span.End()

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		order, err := s.orders.GetOrderByID(ctx, orderID)
		if err != nil {
			return nil, err
		}

		if err := models.ValidateTransition(order.OrderStatus, target); err != nil {
			return nil, err
		}

		now := s.now()
		var confirmation, deadline *time.Time
		markPaid := false
		switch target {
		case models.StatusConfirmed:
			confirmation = &now
			d := now.Add(s.gracePeriod)
			deadline = &d
		case models.StatusPickedUp:
			markPaid = true
		}

		applied, err := s.orders.TransitionStatus(ctx, orderID, order.OrderStatus, target, now, confirmation, deadline, markPaid)
		if err != nil {
			return nil, err
		}
		if !applied {
			continue
		}

		updated, err := s.orders.GetOrderByID(ctx, orderID)
		if err != nil {
			return nil, err
		}

		s.logger.Info("Order status updated",
			zap.Int64("order_id", orderID),
			zap.String("from", string(order.OrderStatus)),
			zap.String("to", string(target)))

		if target == models.StatusConfirmed {
			s.syncDeadlineAsync(updated)
		}

		s.recordActivity(ctx, "system", "order.status", orderID,
			fmt.Sprintf("%s -> %s", order.OrderStatus, target))
		s.publishOrder(ctx, models.ActionOrderUpdated, updated)
		return updated, nil
	}

	return nil, fmt.Errorf("order %d: status changed concurrently, giving up", orderID)
}

// syncDeadlineAsync mirrors the new payment deadline into the user's calendar
// without blocking the response. The notifier swallows its own failures.
func (s *OrderService) syncDeadlineAsync(order *models.Order) {
	if s.calendar == nil {
		return
	}
	snapshot := *order
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.calendar.SyncDeadline(ctx, snapshot.UserID, &snapshot)
	}()
}

// Cancel is the user-initiated cancellation: owner only, and only while the
// order is still pending. No cancellation reason is recorded; that field is
// reserved for sweep-forced cancellations.
func (s *OrderService) Cancel(ctx context.Context, orderID, requesterID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Cancel")
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != requesterID {
		return nil, fmt.Errorf("order %d: %w", orderID, models.ErrUnauthorized)
	}
	if err := cancellable(order); err != nil {
		return nil, err
	}

	applied, err := s.orders.CancelOrder(ctx, orderID, models.StatusPending, nil, s.now())
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost a race with a confirmation or the sweep; report what the
		// order looks like now.
		current, err := s.orders.GetOrderByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if cerr := cancellable(current); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("order %d: status changed concurrently", orderID)
	}

	s.restoreOrderLines(ctx, orderID)

	util.OrdersCancelledTotal.WithLabelValues("user").Inc()
	s.logger.Info("Order cancelled by user",
		zap.Int64("order_id", orderID),
		zap.Int64("user_id", requesterID))

	updated, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, fmt.Sprintf("user:%d", requesterID), "order.cancel", orderID, "cancelled by owner")
	s.publishOrder(ctx, models.ActionOrderCancelled, updated)
	return updated, nil
}

func cancellable(order *models.Order) error {
	if order.OrderStatus == models.StatusCancelled {
		return fmt.Errorf("order %d: %w", order.ID, models.ErrAlreadyCancelled)
	}
	if order.OrderStatus != models.StatusPending {
		return fmt.Errorf("order %d: %w", order.ID, models.ErrNotCancellable)
	}
	return nil
}

// restoreOrderLines hands reserved stock back for every line of an order.
// Best-effort per line; the ledger logs and skips what it cannot restore.
func (s *OrderService) restoreOrderLines(ctx context.Context, orderID int64) {
	items, err := s.orders.GetOrderItems(ctx, orderID)
	if err != nil {
		s.logger.Error("Failed to load order items for stock restore",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return
	}
	for _, item := range items {
		s.ledger.Restore(ctx, item.ProductID, item.Quantity)
	}
}

// ForceCancelExpired is the sweep-initiated cancellation of an order past its
// payment deadline. The cancellation commits first; stock restoration follows
// and its failures are logged, never allowed to keep the order alive. Returns
// true when this call performed the cancellation.
func (s *OrderService) ForceCancelExpired(ctx context.Context, orderID int64, restorer StockRestorer) (bool, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ForceCancelExpired")
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	// Re-check what the match query promised; the order may have moved since.
	if order.OrderStatus == models.StatusCancelled || order.IsArchived {
		return false, nil
	}
	if order.PaymentStatus != models.PaymentPending || order.PaymentProof != nil {
		return false, nil
	}

	reason := models.DeadlineCancellationReason
	applied, err := s.orders.CancelOrder(ctx, orderID, order.OrderStatus, &reason, s.now())
	if err != nil {
		return false, err
	}
	if !applied {
		// Someone else moved the order first; the next sweep re-evaluates.
		return false, nil
	}

	items, err := s.orders.GetOrderItems(ctx, orderID)
	if err != nil {
		s.logger.Error("Cancelled expired order but could not load items for restore",
			zap.Int64("order_id", orderID),
			zap.Error(err))
	} else if err := restorer.RestoreOrder(ctx, order, items); err != nil {
		s.logger.Error("Cancelled expired order but stock restore failed",
			zap.Int64("order_id", orderID),
			zap.Error(err))
	}

	util.OrdersCancelledTotal.WithLabelValues("deadline").Inc()
	s.logger.Info("Order cancelled for missed payment deadline",
		zap.Int64("order_id", orderID),
		zap.Timep("deadline", order.PaymentDeadline))

	updated, err := s.orders.GetOrderByID(ctx, orderID)
	if err == nil {
		s.publishOrder(ctx, models.ActionOrderCancelled, updated)
	}
	s.recordActivity(ctx, "scheduler", "order.expire", orderID, reason)
	return true, nil
}

// AttachPaymentProof stores the uploaded proof reference on the order
func (s *OrderService) AttachPaymentProof(ctx context.Context, orderID, requesterID int64, proofRef string) error {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.UserID != requesterID {
		return fmt.Errorf("order %d: %w", orderID, models.ErrUnauthorized)
	}

	if err := s.orders.SetPaymentProof(ctx, orderID, proofRef, s.now()); err != nil {
		return err
	}

	s.recordActivity(ctx, fmt.Sprintf("user:%d", requesterID), "order.payment-proof", orderID, proofRef)
	return nil
}

// SalesReport aggregates revenue and order counts over a date range
func (s *OrderService) SalesReport(ctx context.Context, from, to time.Time) (*models.SalesReport, error) {
	return s.orders.SalesReport(ctx, from, to)
}

func (s *OrderService) publishOrder(ctx context.Context, action string, order *models.Order) {
	event := &models.OrderEvent{
		EventID:     uuid.New().String(),
		Action:      action,
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      order.OrderStatus,
		StatusLabel: order.OrderStatus.Label(),
		Order:       order,
		Timestamp:   s.now(),
	}
	if err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish order event",
			zap.String("action", action),
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}

func (s *OrderService) recordActivity(ctx context.Context, actor, action string, orderID int64, detail string) {
	entry := &models.ActivityLog{
		ActorID:    actor,
		Action:     action,
		EntityType: "order",
		EntityID:   orderID,
		Detail:     detail,
	}
	if err := s.audit.InsertActivityLog(ctx, entry); err != nil {
		s.logger.Error("Failed to record activity",
			zap.String("action", action),
			zap.Int64("order_id", orderID),
			zap.Error(err))
	}
}
