package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrNotLockHolder      = errors.New("not the lock holder")
	ErrNotLocked          = errors.New("product is not locked")
	ErrUnauthorized       = errors.New("not authorized")
	ErrAlreadyTerminal    = errors.New("order is in a terminal status")
	ErrNoOpTransition     = errors.New("order already has this status")
	ErrBackwardTransition = errors.New("status cannot move backward")
	ErrUnknownStatus      = errors.New("unknown order status")
	ErrNotArchivable      = errors.New("order is not archivable")
	ErrAlreadyArchived    = errors.New("order is already archived")
	ErrNotArchived        = errors.New("order is not archived")
	ErrNotCancellable     = errors.New("order can no longer be cancelled")
	ErrAlreadyCancelled   = errors.New("order is already cancelled")
	ErrNotCancelled       = errors.New("order is not cancelled")
)

// LockConflictError is returned when a product lock acquisition loses to a
// live lease held by someone else. It carries the holder identity and expiry
// so the caller can surface "locked by X until Y".
type LockConflictError struct {
	ProductID  int64
	HolderID   string
	HolderName string
	Expiry     time.Time
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("product %d is locked by %s until %s",
		e.ProductID, e.HolderName, e.Expiry.Format(time.RFC3339))
}
