package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    OrderStatus
		to      OrderStatus
		wantErr error
	}{
		{"pending to confirmed", StatusPending, StatusConfirmed, nil},
		{"confirmed to ready", StatusConfirmed, StatusReadyForPickup, nil},
		{"ready to picked up", StatusReadyForPickup, StatusPickedUp, nil},
		{"skip ahead", StatusPending, StatusReadyForPickup, nil},
		{"backward", StatusConfirmed, StatusPending, ErrBackwardTransition},
		{"backward from ready", StatusReadyForPickup, StatusConfirmed, ErrBackwardTransition},
		{"no-op", StatusConfirmed, StatusConfirmed, ErrNoOpTransition},
		{"from picked up", StatusPickedUp, StatusConfirmed, ErrAlreadyTerminal},
		{"from cancelled", StatusCancelled, StatusPending, ErrAlreadyTerminal},
		{"unknown target", StatusPending, OrderStatus("shipped"), ErrUnknownStatus},
		{"cancel not via progression", StatusPending, StatusCancelled, ErrUnknownStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusPickedUp.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusConfirmed.Terminal())
	assert.False(t, StatusReadyForPickup.Terminal())
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Ready for Pickup", StatusReadyForPickup.Label())
	assert.Equal(t, "Cancelled", StatusCancelled.Label())
	assert.Equal(t, "shipped", OrderStatus("shipped").Label())
}
