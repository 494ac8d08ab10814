package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"
)

// SalesWorker turns order events into sales metrics.
type SalesWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewSalesWorker creates a new sales worker
func NewSalesWorker(consumer *broker.Consumer) *SalesWorker {
	w := &SalesWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnOrderPlaced(w.HandleOrderPlaced)
	return w
}

// Start blocks consuming order events until ctx is cancelled.
func (w *SalesWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting sales worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SalesWorker) Stop() error {
	w.logger.Info("Stopping sales worker")
	return w.consumer.Close()
}

func (w *SalesWorker) HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	_, span := util.StartSpan(ctx, "SalesWorker.HandleOrderPlaced")
	defer span.End()

	for _, item := range event.Items {
		util.ProductUnitsSoldTotal.WithLabelValues(item.ProductName).Inc()
	}
	util.RevenueTotal.Add(float64(event.TotalAmount))
	util.SalesOrdersTotal.WithLabelValues(string(event.PaymentMethod)).Inc()

	w.logger.Info("Order recorded",
		zap.Int64("order_id", event.OrderID),
		zap.String("payment", string(event.PaymentMethod)),
		zap.Int("items", len(event.Items)),
		zap.Int64("total", event.TotalAmount))
	return nil
}

// Sweeper is implemented by session registries that expire idle sessions.
type Sweeper interface {
	Sweep(now time.Time) int
}

// SessionSweeper periodically drops idle sessions.
type SessionSweeper struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

func NewSessionSweeper(sweeper Sweeper, interval time.Duration) *SessionSweeper {
	return &SessionSweeper{
		sweeper:  sweeper,
		interval: interval,
		logger:   util.GetLogger(),
		stop:     make(chan struct{}),
	}
}

// Start sweeps every interval until ctx is cancelled or Stop is called.
func (s *SessionSweeper) Start(ctx context.Context) error {
	s.logger.Info("Starting session sweeper", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case now := <-ticker.C:
			s.SweepOnce(now)
		}
	}
}

// SweepOnce runs a single pass and returns how many sessions were dropped.
func (s *SessionSweeper) SweepOnce(now time.Time) int {
	n := s.sweeper.Sweep(now)
	if n > 0 {
		util.SessionsExpiredTotal.Add(float64(n))
		util.SessionsEndedTotal.WithLabelValues("expired").Add(float64(n))
		s.logger.Info("Expired idle sessions", zap.Int("count", n))
	}
	return n
}

func (s *SessionSweeper) Stop() error {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping session sweeper")
		close(s.stop)
	})
	return nil
}
