package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/models"
	"storefront/internal/util"
)

func TestHandleOrderPlacedRecordsSales(t *testing.T) {
	w := NewSalesWorker(nil)
	amla := util.ProductUnitsSoldTotal.WithLabelValues("Dry amla")
	before := testutil.ToFloat64(amla)
	revenue := testutil.ToFloat64(util.RevenueTotal)
	cod := testutil.ToFloat64(util.SalesOrdersTotal.WithLabelValues(string(models.PaymentCashOnDelivery)))

	err := w.HandleOrderPlaced(context.Background(), &models.OrderPlacedEvent{
		OrderID:       1,
		PaymentMethod: models.PaymentCashOnDelivery,
		TotalAmount:   200,
		Items: []models.CartLine{
			{ProductName: "Dry amla", UnitPrice: 100},
			{ProductName: "Dry amla", UnitPrice: 100},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, before+2, testutil.ToFloat64(amla))
	assert.Equal(t, revenue+200, testutil.ToFloat64(util.RevenueTotal))
	assert.Equal(t, cod+1, testutil.ToFloat64(util.SalesOrdersTotal.WithLabelValues(string(models.PaymentCashOnDelivery))))
}

type countingSweeper struct {
	calls   atomic.Int32
	removed int
}

func (c *countingSweeper) Sweep(now time.Time) int {
	c.calls.Add(1)
	return c.removed
}

func TestSweepOnceCountsExpired(t *testing.T) {
	s := NewSessionSweeper(&countingSweeper{removed: 3}, time.Minute)
	before := testutil.ToFloat64(util.SessionsExpiredTotal)

	assert.Equal(t, 3, s.SweepOnce(time.Now()))
	assert.Equal(t, before+3, testutil.ToFloat64(util.SessionsExpiredTotal))
}

func TestSessionSweeperRunsUntilStopped(t *testing.T) {
	sw := &countingSweeper{}
	s := NewSessionSweeper(sw, 5*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	assert.Eventually(t, func() bool { return sw.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.NoError(t, <-done)
}

func TestSessionSweeperStopsOnContext(t *testing.T) {
	s := NewSessionSweeper(&countingSweeper{}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Start(ctx), context.Canceled)
}
