package broker

import (
	"context"
	"fmt"

	"storefront/internal/models"
)

// EventPublisher pushes realtime order and product events to the message
// topic. Delivery is best-effort: connected clients reconcile through the
// REST endpoints, so the order flow never depends on a publish succeeding.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderEvent publishes an order lifecycle event, keyed per order so
// consumers see each order's events in sequence
func (ep *EventPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishProductEvent publishes a product snapshot event
func (ep *EventPublisher) PublishProductEvent(ctx context.Context, event *models.ProductEvent) error {
	key := fmt.Sprintf("product-%d", event.ProductID)
	return ep.producer.PublishEvent(ctx, key, event)
}
