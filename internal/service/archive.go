package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Archive soft-deletes an order from default listings. Only finished orders
// qualify: picked up, or paid and past the pending/confirmed phase. Admins
// may archive any qualifying order; users only their own.
func (s *OrderService) Archive(ctx context.Context, orderID int64, requester *models.SessionUser) error {
	ctx, span := util.StartSpan(ctx, "OrderService.Archive")
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if !requester.IsAdmin() && order.UserID != requester.UserID {
		return fmt.Errorf("order %d: %w", orderID, models.ErrUnauthorized)
	}
	if order.IsArchived {
		return fmt.Errorf("order %d: %w", orderID, models.ErrAlreadyArchived)
	}
	if !archivable(order) {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotArchivable)
	}

	if err := s.orders.SetOrderArchived(ctx, orderID, true, s.now()); err != nil {
		return err
	}

	s.recordActivity(ctx, actorTag(requester), "order.archive", orderID, "archived")
	return nil
}

func archivable(order *models.Order) bool {
	if order.OrderStatus == models.StatusPickedUp {
		return true
	}
	return order.PaymentStatus == models.PaymentPaid &&
		order.OrderStatus != models.StatusPending &&
		order.OrderStatus != models.StatusConfirmed
}

// Unarchive returns an archived order to the default listings. No status
// restrictions.
func (s *OrderService) Unarchive(ctx context.Context, orderID int64, requester *models.SessionUser) error {
	ctx, span := util.StartSpan(ctx, "OrderService.Unarchive")
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if !requester.IsAdmin() && order.UserID != requester.UserID {
		return fmt.Errorf("order %d: %w", orderID, models.ErrUnauthorized)
	}
	if !order.IsArchived {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotArchived)
	}

	if err := s.orders.SetOrderArchived(ctx, orderID, false, s.now()); err != nil {
		return err
	}

	s.recordActivity(ctx, actorTag(requester), "order.unarchive", orderID, "unarchived")
	return nil
}

// RestoreCancelled returns a cancelled order to pending, re-reserving stock
// for every line first. A line that can no longer be covered fails the whole
// restore: lines already re-reserved are handed back and the error surfaces,
// so the order is never left half-restored.
func (s *OrderService) RestoreCancelled(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.RestoreCancelled")
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.OrderStatus != models.StatusCancelled {
		return nil, fmt.Errorf("order %d: %w", orderID, models.ErrNotCancelled)
	}

	items, err := s.orders.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}

	for i, item := range items {
		if _, err := s.ledger.Reserve(ctx, item.ProductID, item.Quantity); err != nil {
			for _, done := range items[:i] {
				s.ledger.Restore(ctx, done.ProductID, done.Quantity)
			}
			if errors.Is(err, models.ErrInsufficientStock) || errors.Is(err, models.ErrNotFound) {
				return nil, fmt.Errorf("cannot restore order %d: %w", orderID, err)
			}
			return nil, err
		}
	}

	applied, err := s.orders.UncancelOrder(ctx, orderID, s.now())
	if err == nil && !applied {
		err = fmt.Errorf("order %d: %w", orderID, models.ErrNotCancelled)
	}
	if err != nil {
		for _, item := range items {
			s.ledger.Restore(ctx, item.ProductID, item.Quantity)
		}
		return nil, err
	}

	util.OrdersRestoredTotal.Inc()
	s.logger.Info("Cancelled order restored to pending", zap.Int64("order_id", orderID))

	updated, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, "admin", "order.restore", orderID, "restored from cancelled")
	s.publishOrder(ctx, models.ActionOrderUpdated, updated)
	return updated, nil
}

// DeleteCancelled hard-deletes a cancelled order. Stock was already restored
// when the order was cancelled, so deletion has no stock effect.
func (s *OrderService) DeleteCancelled(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.DeleteCancelled")
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.OrderStatus != models.StatusCancelled {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotCancelled)
	}

	if err := s.orders.DeleteOrder(ctx, orderID); err != nil {
		return err
	}

	s.logger.Info("Cancelled order deleted", zap.Int64("order_id", orderID))
	s.recordActivity(ctx, "admin", "order.delete", orderID, "hard deleted")
	return nil
}

func actorTag(user *models.SessionUser) string {
	if user.IsAdmin() {
		return fmt.Sprintf("admin:%d", user.UserID)
	}
	return fmt.Sprintf("user:%d", user.UserID)
}
