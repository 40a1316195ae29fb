package payout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vaidashi/marketplace-orders/internal/lifecycle"
	"github.com/vaidashi/marketplace-orders/internal/models"
	"github.com/vaidashi/marketplace-orders/internal/repository"
	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

// Store is the order persistence the sweeper needs
type Store interface {
	BeginTx(ctx context.Context) (repository.Tx, error)
	ListDueForPayout(ctx context.Context, now time.Time, limit int) ([]*models.Order, error)
	MarkPayoutCompletedInTx(ctx context.Context, tx repository.Tx, id string, now time.Time) (bool, error)
}

// OutboxWriter enqueues messages inside a transaction
type OutboxWriter interface {
	CreateInTx(ctx context.Context, tx repository.Tx, message *models.OutboxMessage) error
}

// Config holds the sweeper settings
type Config struct {
	Interval  time.Duration
	BatchSize int
	Hold      time.Duration
}

// Sweeper periodically records payouts whose hold has expired
type Sweeper struct {
	orders    Store
	outbox    OutboxWriter
	policy    lifecycle.PayoutPolicy
	interval  time.Duration
	batchSize int
	logger    logger.Logger
	nowFunc   func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewSweeper creates a new Sweeper
func NewSweeper(orders Store, outbox OutboxWriter, config Config, logger logger.Logger) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())

	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}

	return &Sweeper{
		orders:    orders,
		outbox:    outbox,
		policy:    lifecycle.NewPayoutPolicy(config.Hold),
		interval:  config.Interval,
		batchSize: config.BatchSize,
		logger:    logger.With("component", "payout"),
		nowFunc:   func() time.Time { return time.Now().UTC() },
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the sweep loop
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.running = true
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		s.loop()
	}()

	s.logger.Info("Payout sweeper started", "interval", s.interval)
}

// Stop stops the sweeper and waits for the running sweep to finish
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.logger.Info("Payout sweeper stopped")
}

func (s *Sweeper) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(s.ctx); err != nil {
				s.logger.Error("Payout sweep failed", "error", err)
			}
		}
	}
}

// Sweep completes every due payout in one batch and returns how many were
// recorded. An order that fails is logged and left for the next sweep.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.nowFunc()

	due, err := s.orders.ListDueForPayout(ctx, now, s.batchSize)

	if err != nil {
		return 0, fmt.Errorf("failed to list due payouts: %w", err)
	}

	completed := 0
	for _, order := range due {
		// Money that was never collected is not disbursed
		if order.PaymentStatus != models.PaymentStatusPaid {
			s.logger.Warn("Skipping payout of unpaid order", "orderID", order.ID)
			continue
		}

		if view := s.policy.Evaluate(order.Status, order.DeliveredAt, now); view.Status != models.PayoutStatusCompleted {
			continue
		}

		ok, err := s.complete(ctx, order, now)

		if err != nil {
			s.logger.Error("Failed to complete payout", "error", err, "orderID", order.ID)
			continue
		}

		if ok {
			completed++
		}
	}

	if completed > 0 {
		s.logger.Info("Payouts completed", "count", completed)
	}

	return completed, nil
}

func (s *Sweeper) complete(ctx context.Context, order *models.Order, now time.Time) (ok bool, err error) {
	tx, err := s.orders.BeginTx(ctx)

	if err != nil {
		return false, err
	}

	defer func() {
		if err != nil || !ok {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	ok, err = s.orders.MarkPayoutCompletedInTx(ctx, tx, order.ID, now)

	if err != nil || !ok {
		return ok, err
	}

	payoutDate := now
	if order.PayoutDate != nil {
		payoutDate = *order.PayoutDate
	}

	msg, err := models.NewOutboxMessage(models.EventPayoutCompleted, order.ID, models.PayoutCompletion{
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		SellerID:     order.SellerID,
		SellerAmount: order.SellerAmount,
		PayoutDate:   payoutDate,
	}, now)

	if err != nil {
		return false, err
	}

	if err = s.outbox.CreateInTx(ctx, tx, msg); err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}

	return true, nil
}
