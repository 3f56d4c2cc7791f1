package models

// OrderStatus is the order lifecycle state.
type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusReadyForPickup OrderStatus = "readyForPickup"
	StatusPickedUp       OrderStatus = "pickedUp"
	StatusCancelled      OrderStatus = "cancelled"
)

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// statusRank orders the linear progression. cancelled sits outside the linear
// chain and is handled separately.
var statusRank = map[OrderStatus]int{
	StatusPending:        0,
	StatusConfirmed:      1,
	StatusReadyForPickup: 2,
	StatusPickedUp:       3,
}

var statusLabels = map[OrderStatus]string{
	StatusPending:        "Pending",
	StatusConfirmed:      "Confirmed",
	StatusReadyForPickup: "Ready for Pickup",
	StatusPickedUp:       "Picked Up",
	StatusCancelled:      "Cancelled",
}

// Known reports whether s is one of the defined statuses.
func (s OrderStatus) Known() bool {
	_, ok := statusRank[s]
	return ok || s == StatusCancelled
}

// Terminal reports whether no further transitions are permitted from s.
func (s OrderStatus) Terminal() bool {
	return s == StatusPickedUp || s == StatusCancelled
}

// Label returns the human-readable form used in notifications.
func (s OrderStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// ValidateTransition checks an admin status progression along the linear
// chain. The explicit escape to cancelled is not reachable through this path;
// cancellation has its own entry points with their own rules.
func ValidateTransition(from, to OrderStatus) error {
	if from.Terminal() {
		return ErrAlreadyTerminal
	}
	if to == from {
		return ErrNoOpTransition
	}
	toRank, ok := statusRank[to]
	if !ok {
		return ErrUnknownStatus
	}
	if toRank < statusRank[from] {
		return ErrBackwardTransition
	}
	return nil
}
