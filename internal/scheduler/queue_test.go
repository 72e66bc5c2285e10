package scheduler

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bithumb-trader/internal/models"
)

func request(id string) models.OrderRequest {
	return models.OrderRequest{
		Symbol:        "BTC_KRW",
		Side:          models.OrderSideBuy,
		Type:          models.OrderTypeMarket,
		Quantity:      decimal.NewFromInt(1),
		ClientOrderID: id,
	}
}

func TestQueuePriorityOrdering(t *testing.T) {
	q := newOrderQueue()
	now := time.Now()

	q.Push(request("low"), models.PriorityLow, now)
	q.Push(request("urgent"), models.PriorityUrgent, now)
	q.Push(request("normal"), models.PriorityNormal, now)
	q.Push(request("high"), models.PriorityHigh, now)

	var got []string
	for q.Len() > 0 {
		got = append(got, q.Pop().request.ClientOrderID)
	}
	assert.Equal(t, []string{"urgent", "high", "normal", "low"}, got)
}

func TestQueueFIFOWithinPriorityTier(t *testing.T) {
	q := newOrderQueue()
	now := time.Now()

	for _, id := range []string{"first", "second", "third"} {
		q.Push(request(id), models.PriorityNormal, now)
	}

	assert.Equal(t, "first", q.Pop().request.ClientOrderID)
	assert.Equal(t, "second", q.Pop().request.ClientOrderID)
	assert.Equal(t, "third", q.Pop().request.ClientOrderID)
}

func TestQueueRemove(t *testing.T) {
	q := newOrderQueue()
	now := time.Now()

	q.Push(request("keep"), models.PriorityNormal, now)
	q.Push(request("drop"), models.PriorityNormal, now)

	require.True(t, q.Remove("drop"))
	assert.False(t, q.Remove("drop"), "second removal should miss")
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, "keep", q.Pop().request.ClientOrderID)
}

func TestQueuePopEmpty(t *testing.T) {
	q := newOrderQueue()
	assert.Nil(t, q.Pop())
}
