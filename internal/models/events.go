package models

import "time"

// Realtime event actions, consumed best-effort by connected clients. Clients
// reconcile through the REST endpoints; these are advisory only.
const (
	ActionNewOrder       = "new-order"
	ActionOrderUpdated   = "order-updated"
	ActionOrderCancelled = "order-cancelled"
	ActionProductUpdated = "product-updated"
)

// OrderEvent is published on every order lifecycle change.
type OrderEvent struct {
	EventID     string      `json:"event_id"`
	Action      string      `json:"action"`
	OrderID     int64       `json:"order_id"`
	UserID      int64       `json:"user_id"`
	Status      OrderStatus `json:"status"`
	StatusLabel string      `json:"status_label"`
	Order       *Order      `json:"order,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// ProductEvent is published when a product snapshot changes.
type ProductEvent struct {
	EventID   string    `json:"event_id"`
	Action    string    `json:"action"`
	ProductID int64     `json:"product_id"`
	Product   *Product  `json:"product,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
