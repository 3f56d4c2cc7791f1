package models

import "time"

// Product represents a catalog item. Stock and the edit-lock lease live on the
// same row so both can be mutated with single conditional updates.
type Product struct {
	ID           int64      `db:"id" json:"id"`
	Title        string     `db:"title" json:"title"`
	Description  string     `db:"description" json:"description"`
	Price        int64      `db:"price" json:"price"`
	TotalStock   int        `db:"total_stock" json:"total_stock"`
	IsArchived   bool       `db:"is_archived" json:"is_archived"`
	IsLocked     bool       `db:"is_locked" json:"is_locked"`
	LockedBy     *string    `db:"locked_by" json:"locked_by,omitempty"`
	LockedByName *string    `db:"locked_by_name" json:"locked_by_name,omitempty"`
	LockedAt     *time.Time `db:"locked_at" json:"locked_at,omitempty"`
	LockExpiry   *time.Time `db:"lock_expiry" json:"lock_expiry,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// LockExpired reports whether the current lease, if any, has passed its expiry.
func (p *Product) LockExpired(now time.Time) bool {
	return p.IsLocked && p.LockExpiry != nil && p.LockExpiry.Before(now)
}

// Order represents a customer order and its lifecycle state.
type Order struct {
	ID                 int64         `db:"id" json:"id"`
	UserID             int64         `db:"user_id" json:"user_id"`
	TotalAmount        int64         `db:"total_amount" json:"total_amount"`
	OrderStatus        OrderStatus   `db:"order_status" json:"order_status"`
	PaymentStatus      PaymentStatus `db:"payment_status" json:"payment_status"`
	PaymentProof       *string       `db:"payment_proof" json:"payment_proof,omitempty"`
	ConfirmationDate   *time.Time    `db:"confirmation_date" json:"confirmation_date,omitempty"`
	PaymentDeadline    *time.Time    `db:"payment_deadline" json:"payment_deadline,omitempty"`
	CancellationReason *string       `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	IsArchived         bool          `db:"is_archived" json:"is_archived"`
	OrderDate          time.Time     `db:"order_date" json:"order_date"`
	OrderUpdateDate    time.Time     `db:"order_update_date" json:"order_update_date"`
}

// OrderItem is a single cart line within an order.
type OrderItem struct {
	ID        int64  `db:"id" json:"id"`
	OrderID   int64  `db:"order_id" json:"order_id"`
	ProductID int64  `db:"product_id" json:"product_id"`
	Title     string `db:"title" json:"title"`
	Quantity  int    `db:"quantity" json:"quantity"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
}

// ActivityLog is an append-only audit record of product and order mutations.
type ActivityLog struct {
	ID         int64     `db:"id" json:"id"`
	ActorID    string    `db:"actor_id" json:"actor_id"`
	ActorName  string    `db:"actor_name" json:"actor_name"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   int64     `db:"entity_id" json:"entity_id"`
	Detail     string    `db:"detail" json:"detail"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// SalesReport aggregates order totals for the admin reporting endpoint.
type SalesReport struct {
	From                time.Time      `json:"from"`
	To                  time.Time      `json:"to"`
	TotalRevenue        int64          `json:"total_revenue"`
	TotalOrders         int            `json:"total_orders"`
	OrdersByStatus      map[string]int `json:"orders_by_status"`
	CancelledByDeadline int            `json:"cancelled_by_deadline"`
}

// SessionUser is the identity resolved from an opaque session cookie.
type SessionUser struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// IsAdmin reports whether the session belongs to an admin or superadmin.
func (u *SessionUser) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleSuperAdmin
}

// User roles
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// DeadlineCancellationReason marks orders cancelled by the payment deadline
// sweep, as opposed to user self-cancellations which carry no reason.
const DeadlineCancellationReason = "Cancelled due to failure to pay"
