package order

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inErrors "github.com/pratama/storefront/internal/errors"
)

func testOrder(status Status, createdAt time.Time) Order {
	return Order{
		ID:        uuid.New(),
		Status:    status,
		Total:     decimal.RequireFromString("38"),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestAdoptVerbatim(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		expected Status
	}{
		{
			name:     "given forward transition should adopt it",
			statuses: []Status{StatusPending, StatusProcessing, StatusShipped},
			expected: StatusShipped,
		},
		{
			name:     "given non-monotonic transition should adopt it verbatim",
			statuses: []Status{StatusShipped, StatusProcessing},
			expected: StatusProcessing,
		},
		{
			name:     "given terminal status should adopt it",
			statuses: []Status{StatusPending, StatusCancelled},
			expected: StatusCancelled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := context.Background()
			tracker := NewTracker()
			o := testOrder(tt.statuses[0], time.Now())
			tracker.Track(c, o)

			for _, status := range tt.statuses[1:] {
				o.Status = status
				tracker.Adopt(c, o)
			}

			got, ok := tracker.Get(o.ID)
			require.True(t, ok)
			assert.Equal(t, tt.expected, got.Status)
		})
	}
}

func TestMarkCancelling(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		err    error
	}{
		{
			name:   "given pending order should mark cancelling",
			status: StatusPending,
		},
		{
			name:   "given processing order should refuse",
			status: StatusProcessing,
			err:    inErrors.ErrOrderNotCancelable,
		},
		{
			name:   "given shipped order should refuse",
			status: StatusShipped,
			err:    inErrors.ErrOrderNotCancelable,
		},
		{
			name:   "given delivered order should refuse",
			status: StatusDelivered,
			err:    inErrors.ErrOrderNotCancelable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := context.Background()
			tracker := NewTracker()
			o := testOrder(tt.status, time.Now())
			tracker.Track(c, o)

			err := tracker.MarkCancelling(c, o.ID)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.False(t, tracker.Cancelling(o.ID))
				return
			}
			require.NoError(t, err)
			assert.True(t, tracker.Cancelling(o.ID))
		})
	}
}

func TestMarkCancellingUnknownOrder(t *testing.T) {
	tracker := NewTracker()
	err := tracker.MarkCancelling(context.Background(), uuid.New())
	assert.ErrorIs(t, err, inErrors.ErrOrderNotFound)
}

// The server's answer wins no matter what was requested: a cancel may come
// back as cancelled, or as shipped when the order progressed in the meantime.
func TestAdoptReconcilesCancellingFlag(t *testing.T) {
	c := context.Background()
	tracker := NewTracker()
	o := testOrder(StatusPending, time.Now())
	tracker.Track(c, o)
	require.NoError(t, tracker.MarkCancelling(c, o.ID))

	o.Status = StatusShipped
	tracker.Adopt(c, o)

	assert.False(t, tracker.Cancelling(o.ID))
	got, _ := tracker.Get(o.ID)
	assert.Equal(t, StatusShipped, got.Status)
}

func TestUnmarkCancelling(t *testing.T) {
	c := context.Background()
	tracker := NewTracker()
	o := testOrder(StatusPending, time.Now())
	tracker.Track(c, o)
	require.NoError(t, tracker.MarkCancelling(c, o.ID))

	tracker.UnmarkCancelling(o.ID)
	assert.False(t, tracker.Cancelling(o.ID))
	got, _ := tracker.Get(o.ID)
	assert.Equal(t, StatusPending, got.Status)
}

func TestOrdersNewestFirst(t *testing.T) {
	c := context.Background()
	tracker := NewTracker()
	older := testOrder(StatusPending, time.Now().Add(-time.Hour))
	newer := testOrder(StatusPending, time.Now())
	tracker.Track(c, older)
	tracker.Track(c, newer)

	orders := tracker.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, newer.ID, orders[0].ID)
	assert.Equal(t, older.ID, orders[1].ID)
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusShipped.Terminal())
}
