package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// CalendarEvent is the payload mirrored into the external calendar.
type CalendarEvent struct {
	OrderID     int64
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// RemoteCalendar is the external calendar API surface.
type RemoteCalendar interface {
	// FindEventByOrderID returns the remote event id referencing the order,
	// or "" when none exists.
	FindEventByOrderID(ctx context.Context, token string, orderID int64) (string, error)
	CreateEvent(ctx context.Context, token string, event CalendarEvent) (string, error)
}

// CredentialSource looks up a user's linked calendar credential; "" means the
// user never linked one.
type CredentialSource interface {
	GetCalendarToken(ctx context.Context, userID int64) (string, error)
}

// IdempotencyStore short-circuits repeat syncs for the same order before the
// remote round trip.
type IdempotencyStore interface {
	SetIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	DeleteIdempotencyKey(ctx context.Context, key string) error
}

// CalendarNotifier mirrors payment deadlines into users' calendars. Purely
// advisory: every failure is logged and swallowed, and the existing-event
// check keeps repeated confirmations from producing duplicate events.
type CalendarNotifier struct {
	creds  CredentialSource
	remote RemoteCalendar
	idem   IdempotencyStore
	logger *zap.Logger
}

// NewCalendarNotifier creates the notifier. idem may be nil.
func NewCalendarNotifier(creds CredentialSource, remote RemoteCalendar, idem IdempotencyStore) *CalendarNotifier {
	return &CalendarNotifier{
		creds:  creds,
		remote: remote,
		idem:   idem,
		logger: util.GetLogger(),
	}
}

// SyncDeadline creates a calendar event for the order's payment deadline.
// Returns true only when a new event was created.
func (n *CalendarNotifier) SyncDeadline(ctx context.Context, userID int64, order *models.Order) bool {
	ctx, span := util.StartSpan(ctx, "CalendarNotifier.SyncDeadline")
	defer span.End()

	if order.PaymentDeadline == nil {
		util.CalendarSyncTotal.WithLabelValues("skipped").Inc()
		return false
	}

	token, err := n.creds.GetCalendarToken(ctx, userID)
	if err != nil {
		n.logger.Warn("Calendar credential lookup failed",
			zap.Int64("user_id", userID),
			zap.Error(err))
		util.CalendarSyncTotal.WithLabelValues("error").Inc()
		return false
	}
	if token == "" {
		util.CalendarSyncTotal.WithLabelValues("skipped").Inc()
		return false
	}

	idemKey := fmt.Sprintf("calendar:order:%d", order.ID)
	if n.idem != nil {
		first, err := n.idem.SetIdempotencyKey(ctx, idemKey, 7*24*time.Hour)
		if err != nil {
			n.logger.Warn("Calendar idempotency check failed, relying on remote lookup",
				zap.Int64("order_id", order.ID),
				zap.Error(err))
		} else if !first {
			util.CalendarSyncTotal.WithLabelValues("duplicate").Inc()
			return false
		}
	}

	existing, err := n.remote.FindEventByOrderID(ctx, token, order.ID)
	if err != nil {
		n.logger.Warn("Calendar event lookup failed",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		n.releaseIdempotencyKey(ctx, idemKey)
		util.CalendarSyncTotal.WithLabelValues("error").Inc()
		return false
	}
	if existing != "" {
		util.CalendarSyncTotal.WithLabelValues("duplicate").Inc()
		return false
	}

	deadline := *order.PaymentDeadline
	event := CalendarEvent{
		OrderID: order.ID,
		Summary: fmt.Sprintf("Payment deadline for order #%d", order.ID),
		Description: fmt.Sprintf(
			"Submit payment proof for order #%d before this deadline or the order will be cancelled.",
			order.ID),
		Start: deadline,
		End:   deadline.Add(time.Hour),
	}

	eventID, err := n.remote.CreateEvent(ctx, token, event)
	if err != nil {
		n.logger.Warn("Calendar event creation failed",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		n.releaseIdempotencyKey(ctx, idemKey)
		util.CalendarSyncTotal.WithLabelValues("error").Inc()
		return false
	}

	n.logger.Info("Payment deadline synced to calendar",
		zap.Int64("order_id", order.ID),
		zap.String("event_id", eventID))
	util.CalendarSyncTotal.WithLabelValues("created").Inc()
	return true
}

func (n *CalendarNotifier) releaseIdempotencyKey(ctx context.Context, key string) {
	if n.idem == nil {
		return
	}
	if err := n.idem.DeleteIdempotencyKey(ctx, key); err != nil {
		n.logger.Warn("Failed to release calendar idempotency key",
			zap.String("key", key),
			zap.Error(err))
	}
}
