package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/models"
)

var (
	owner    = &models.SessionUser{UserID: 42, Name: "Alice", Role: models.RoleUser}
	stranger = &models.SessionUser{UserID: 7, Name: "Bob", Role: models.RoleUser}
	admin    = &models.SessionUser{UserID: 1, Name: "Root", Role: models.RoleAdmin}
)

func placeOrder(t *testing.T, svc *OrderService, db *fakeStore, userID int64, qty int) *models.Order {
	t.Helper()
	shirt := db.addProduct("Shirt", 1500, 20)
	order, _, err := svc.Create(context.Background(), userID, []CartLine{{ProductID: shirt.ID, Quantity: qty}})
	require.NoError(t, err)
	return order
}

func progressTo(t *testing.T, svc *OrderService, orderID int64, statuses ...models.OrderStatus) {
	t.Helper()
	for _, status := range statuses {
		_, err := svc.Transition(context.Background(), orderID, status)
		require.NoError(t, err)
	}
}

func TestArchiveRules(t *testing.T) {
	ctx := context.Background()
	db := newFakeStore()
	svc := newTestOrderService(db, &fakePublisher{}, nil)

	order := placeOrder(t, svc, db, owner.UserID, 1)

	err := svc.Archive(ctx, order.ID, owner)
	require.ErrorIs(t, err, models.ErrNotArchivable)

	progressTo(t, svc, order.ID, models.StatusConfirmed, models.StatusReadyForPickup, models.StatusPickedUp)

	err = svc.Archive(ctx, order.ID, stranger)
	require.ErrorIs(t, err, models.ErrUnauthorized)

	err = svc.Archive(ctx, order.ID, owner)
	require.NoError(t, err)

	err = svc.Archive(ctx, order.ID, owner)
	require.ErrorIs(t, err, models.ErrAlreadyArchived)

	updated, err := db.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsArchived)
}

func TestAdminArchivesAnyFinishedOrder(t *testing.T) {
	ctx := context.Background()
	db := newFakeStore()
	svc := newTestOrderService(db, &fakePublisher{}, nil)

	order := placeOrder(t, svc, db, owner.UserID, 1)
	progressTo(t, svc, order.ID, models.StatusConfirmed, models.StatusReadyForPickup, models.StatusPickedUp)

	require.NoError(t, svc.Archive(ctx, order.ID, admin))
}

func TestArchivedOrdersLeaveDefaultListings(t *testing.T) {
	ctx := context.Background()
	db := newFakeStore()
	svc := newTestOrderService(db, &fakePublisher{}, nil)

	order := placeOrder(t, svc, db, owner.UserID, 1)
	progressTo(t, svc, order.ID, models.StatusConfirmed, models.StatusReadyForPickup, models.StatusPickedUp)
	require.NoError(t, svc.Archive(ctx, order.ID, owner))

	active, err := svc.List(ctx, owner.UserID, false, false)
	require.NoError(t, err)
	assert.Empty(t, active)

	archived, err := svc.List(ctx, owner.UserID, false, true)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, order.ID, archived[0].ID)
}

func TestUnarchive(t *testing.T) {
	ctx := context.Background()
	db := newFakeStore()
	svc := newTestOrderService(db, &fakePublisher{}, nil)

	order := placeOrder(t, svc, db, owner.UserID, 1)

	err := svc.Unarchive(ctx, order.ID, owner)
	require.ErrorIs(t, err, models.ErrNotArchived)

	progressTo(t, svc, order.ID, models.StatusConfirmed, models.StatusReadyForPickup, models.StatusPickedUp)
	require.NoError(t, svc.Archive(ctx, order.ID, owner))

	err = svc.Unarchive(ctx, order.ID, stranger)
	require.ErrorIs(t, err, models.ErrUnauthorized)

	require.NoError(t, svc.Unarchive(ctx, order.ID, owner))

	updated, err := db.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, updated.IsArchived)
}

func TestRestoreCancelledRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newFakeStore()
	svc := newTestOrderService(db, &fakePublisher{}, nil)

	shirt := db.addProduct("Shirt", 1500, 5)
	order, _, err := svc.Create(ctx, owner.UserID, []CartLine{{ProductID: shirt.ID, Quantity: 3}})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, order.ID, owner.UserID)
	require.NoError(t, err)
	require.Equal(t, 5, db.stockOf(shirt.ID))

	restored, err := svc.RestoreCancelled(ctx, order.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, restored.OrderStatus)
	assert.Nil(t, restored.CancellationReason)
	assert.Nil(t, restored.PaymentDeadline)
	assert.Equal(t, 2, db.stockOf(shirt.ID))
}

func TestRestoreCancelledNeedsStock(t *testing.T) {
	ctx := context.Background()
	db := newFakeStore()
	svc := newTestOrderService(db, &fakePublisher{}, nil)

	shirt := db.addProduct("Shirt", 1500, 3)
	order, _, err := svc.Create(ctx, owner.UserID, []CartLine{{ProductID: shirt.ID, Quantity: 3}})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, order.ID, owner.UserID)
	require.NoError(t, err)

	// Someone else bought the freed stock in the meantime.
	_, _, err = svc.Create(ctx, stranger.UserID, []CartLine{{ProductID: shirt.ID, Quantity: 2}})
	require.NoError(t, err)

	_, err = svc.RestoreCancelled(ctx, order.ID)
	require.ErrorIs(t, err, models.ErrInsufficientStock)

	// Nothing half-applied: the order stays cancelled and stock untouched.
	updated, err := db.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, updated.OrderStatus)
	assert.Equal(t, 1, db.stockOf(shirt.ID))
}

func TestRestoreCancelledRequiresCancelledStatus(t *testing.T) {
	ctx := context.Background()
	db := newFakeStore()
	svc := newTestOrderService(db, &fakePublisher{}, nil)

	order := placeOrder(t, svc, db, owner.UserID, 1)

	_, err := svc.RestoreCancelled(ctx, order.ID)
	require.ErrorIs(t, err, models.ErrNotCancelled)
}

func TestDeleteCancelled(t *testing.T) {
	ctx := context.Background()
	db := newFakeStore()
	svc := newTestOrderService(db, &fakePublisher{}, nil)

	order := placeOrder(t, svc, db, owner.UserID, 1)

	err := svc.DeleteCancelled(ctx, order.ID)
	require.ErrorIs(t, err, models.ErrNotCancelled)

	_, err = svc.Cancel(ctx, order.ID, owner.UserID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteCancelled(ctx, order.ID))

	_, _, err = svc.Get(ctx, order.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
}
