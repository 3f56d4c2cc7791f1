package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storefront/internal/models"
)

// CreateOrder inserts the order and its items in one transaction
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (user_id, total_amount, order_status, payment_status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, order_date, order_update_date`

	if err := tx.GetContext(ctx, order, query,
		order.UserID, order.TotalAmount, order.OrderStatus, order.PaymentStatus); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		if err := tx.GetContext(ctx, &items[i].ID, `
			INSERT INTO order_items (order_id, product_id, title, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			items[i].OrderID, items[i].ProductID, items[i].Title, items[i].Quantity, items[i].UnitPrice); err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItems retrieves all items for an order
func (s *Store) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// ListOrdersByUser retrieves a user's orders, filtered on the archive flag
func (s *Store) ListOrdersByUser(ctx context.Context, userID int64, archived bool) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 AND is_archived = $2 ORDER BY order_date DESC",
		userID, archived)
	return orders, err
}

// ListOrders retrieves all orders, filtered on the archive flag (admin view)
func (s *Store) ListOrders(ctx context.Context, archived bool) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE is_archived = $1 ORDER BY order_date DESC", archived)
	return orders, err
}

// TransitionStatus applies a status change with a compare-and-swap on the
// current status. Returns false when the order moved concurrently, in which
// case the caller re-reads and re-validates. confirmation and deadline are
// written only when non-nil, so the payment deadline is set exactly once.
func (s *Store) TransitionStatus(ctx context.Context, orderID int64, from, to models.OrderStatus, now time.Time, confirmation, deadline *time.Time, markPaid bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET order_status = $2,
		    order_update_date = $3,
		    confirmation_date = COALESCE($4, confirmation_date),
		    payment_deadline = COALESCE($5, payment_deadline),
		    payment_status = CASE WHEN $6 THEN 'paid' ELSE payment_status END
		WHERE id = $1 AND order_status = $7`,
		orderID, to, now, confirmation, deadline, markPaid, from)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// CancelOrder moves an order to cancelled, guarded by the expected current
// status so a racing transition or sweep cannot both apply.
func (s *Store) CancelOrder(ctx context.Context, orderID int64, from models.OrderStatus, reason *string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET order_status = $2, cancellation_reason = $3, order_update_date = $4
		WHERE id = $1 AND order_status = $5`,
		orderID, models.StatusCancelled, reason, now, from)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// UncancelOrder returns a cancelled order to pending and clears the fields a
// fresh pending order would not have.
func (s *Store) UncancelOrder(ctx context.Context, orderID int64, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET order_status = $2, cancellation_reason = NULL,
		    confirmation_date = NULL, payment_deadline = NULL,
		    order_update_date = $3
		WHERE id = $1 AND order_status = $4`,
		orderID, models.StatusPending, now, models.StatusCancelled)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// SetPaymentProof attaches a payment proof reference to an order
func (s *Store) SetPaymentProof(ctx context.Context, orderID int64, proof string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_proof = $2, order_update_date = $3 WHERE id = $1",
		orderID, proof, now)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	return nil
}

// SetOrderArchived flips the soft-delete flag on an order
func (s *Store) SetOrderArchived(ctx context.Context, orderID int64, archived bool, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET is_archived = $2, order_update_date = $3 WHERE id = $1",
		orderID, archived, now)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	return nil
}

// DeleteOrder hard-deletes an order and its items
func (s *Store) DeleteOrder(ctx context.Context, orderID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM order_items WHERE order_id = $1", orderID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", orderID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}

	return tx.Commit()
}

// FindExpiredUnpaid returns orders past their payment deadline with no proof
// submitted. Cancelled and archived orders are excluded, which also makes the
// sweep idempotent across runs.
func (s *Store) FindExpiredUnpaid(ctx context.Context, now time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE payment_deadline IS NOT NULL
		  AND payment_deadline < $1
		  AND payment_status = $2
		  AND payment_proof IS NULL
		  AND order_status != $3
		  AND is_archived = FALSE
		ORDER BY payment_deadline`,
		now, models.PaymentPending, models.StatusCancelled)
	return orders, err
}

// InsertActivityLog appends an audit record
func (s *Store) InsertActivityLog(ctx context.Context, entry *models.ActivityLog) error {
	return s.db.GetContext(ctx, &entry.ID, `
		INSERT INTO activity_logs (actor_id, actor_name, action, entity_type, entity_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		entry.ActorID, entry.ActorName, entry.Action, entry.EntityType, entry.EntityID, entry.Detail)
}

// GetCalendarToken returns the user's linked calendar credential, or "" when
// the user has no calendar linked
func (s *Store) GetCalendarToken(ctx context.Context, userID int64) (string, error) {
	var token sql.NullString
	err := s.db.GetContext(ctx, &token,
		"SELECT calendar_token FROM users WHERE id = $1", userID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", nil
	}
	return token.String, nil
}

// SalesReport aggregates order revenue and counts over a date range
func (s *Store) SalesReport(ctx context.Context, from, to time.Time) (*models.SalesReport, error) {
	report := &models.SalesReport{
		From:           from,
		To:             to,
		OrdersByStatus: make(map[string]int),
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT order_status, COUNT(*) AS orders,
		       COALESCE(SUM(total_amount) FILTER (WHERE payment_status = 'paid'), 0) AS revenue,
		       COUNT(*) FILTER (WHERE cancellation_reason IS NOT NULL) AS deadline_cancelled
		FROM orders
		WHERE order_date >= $1 AND order_date < $2
		GROUP BY order_status`,
		from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count, deadlineCancelled int
		var revenue int64
		if err := rows.Scan(&status, &count, &revenue, &deadlineCancelled); err != nil {
			return nil, err
		}
		report.OrdersByStatus[status] = count
		report.TotalOrders += count
		report.TotalRevenue += revenue
		report.CancelledByDeadline += deadlineCancelled
	}

	return report, rows.Err()
}
