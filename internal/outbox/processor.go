package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vaidashi/marketplace-orders/internal/models"
	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

const markTimeout = 5 * time.Second

// MessageHandler defines the interface for handling outbox messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, message *models.OutboxMessage) error
}

// MessageHandlerFunc adapts a function to MessageHandler
type MessageHandlerFunc func(ctx context.Context, message *models.OutboxMessage) error

// HandleMessage calls f
func (f MessageHandlerFunc) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	return f(ctx, message)
}

// Store is the outbox persistence the processor drives
type Store interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error)
	MarkAsCompleted(ctx context.Context, id int64) error
	MarkForRetry(ctx context.Context, id int64, errorMessage string) error
	MarkAsFailed(ctx context.Context, id int64, errorMessage string) error
}

// Processor delivers committed outbox messages to their handlers
type Processor struct {
	store           Store
	handlers        map[string]MessageHandler
	pollingInterval time.Duration
	batchSize       int
	maxRetries      int
	logger          logger.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// ProcessorConfig holds the configuration for the Processor
type ProcessorConfig struct {
	PollingInterval time.Duration
	BatchSize       int
	MaxRetries      int
}

// NewProcessor creates a new Processor
func NewProcessor(store Store, config ProcessorConfig, logger logger.Logger) *Processor {
	ctx, cancel := context.WithCancel(context.Background())

	return &Processor{
		store:           store,
		handlers:        make(map[string]MessageHandler),
		pollingInterval: config.PollingInterval,
		batchSize:       config.BatchSize,
		maxRetries:      config.MaxRetries,
		logger:          logger.With("component", "outbox"),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// RegisterHandler registers a message handler for a specific event type
func (p *Processor) RegisterHandler(eventType string, handler MessageHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.handlers[eventType] = handler
}

// Start starts the outbox processor
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		p.processOutbox()
	}()

	p.logger.Info("Outbox processor started",
		"pollingInterval", p.pollingInterval,
		"batchSize", p.batchSize)
}

// Stop stops the processor and waits for the current batch to finish
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	p.logger.Info("Outbox processor stopped")
}

func (p *Processor) processOutbox() {
	ticker := time.NewTicker(p.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(p.ctx); err != nil {
				p.logger.Error("Failed to process outbox batch", "error", err)
			}
		}
	}
}

// ProcessBatch claims and handles one batch, returning how many messages
// were delivered.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*p.pollingInterval+30*time.Second)
	defer cancel()

	messages, err := p.store.GetPendingMessages(ctx, p.batchSize)

	if err != nil {
		return 0, fmt.Errorf("failed to get pending messages: %w", err)
	}

	if len(messages) == 0 {
		return 0, nil
	}

	p.logger.Debug("Processing batch of outbox messages", "count", len(messages))

	delivered := 0
	for i, msg := range messages {
		if ctx.Err() != nil {
			p.release(ctx, messages[i:])
			break
		}

		if err := p.processMessage(ctx, msg); err != nil {
			p.logger.Warn("Failed to process message",
				"error", err,
				"messageID", msg.ID,
				"aggregateID", msg.AggregateID,
				"eventType", msg.EventType)
			continue
		}
		delivered++
	}

	return delivered, nil
}

// processMessage runs the handlers of an already-claimed message
func (p *Processor) processMessage(ctx context.Context, msg *models.OutboxMessage) error {
	p.mu.Lock()
	handler, exists := p.handlers[msg.EventType]
	p.mu.Unlock()

	if !exists {
		errorMsg := fmt.Sprintf("no handler registered for event type: %s", msg.EventType)

		markCtx, cancel := markContext(ctx)
		defer cancel()

		if err := p.store.MarkAsFailed(markCtx, msg.ID, errorMsg); err != nil {
			p.logger.Error("Failed to mark message as failed", "error", err, "messageID", msg.ID)
		}

		return fmt.Errorf("%s", errorMsg)
	}

	if err := handler.HandleMessage(ctx, msg); err != nil {
		return p.handleFailure(ctx, msg, err)
	}

	markCtx, cancel := markContext(ctx)
	defer cancel()

	if err := p.store.MarkAsCompleted(markCtx, msg.ID); err != nil {
		p.logger.Error("Failed to mark message as completed", "error", err, "messageID", msg.ID)
		return fmt.Errorf("failed to mark message as completed: %w", err)
	}

	p.logger.Info("Successfully processed message",
		"messageID", msg.ID,
		"aggregateID", msg.AggregateID,
		"eventType", msg.EventType)

	return nil
}

func (p *Processor) handleFailure(ctx context.Context, msg *models.OutboxMessage, cause error) error {
	markCtx, cancel := markContext(ctx)
	defer cancel()

	// ProcessingAttempts already counts the current attempt. A failure caused
	// by shutdown does not use up the message's budget.
	if msg.ProcessingAttempts >= p.maxRetries && ctx.Err() == nil {
		errorMsg := fmt.Sprintf("max retries reached: %s", cause.Error())

		p.logger.Error("Giving up on outbox message",
			"error", cause,
			"messageID", msg.ID,
			"eventType", msg.EventType,
			"attempts", msg.ProcessingAttempts)

		if err := p.store.MarkAsFailed(markCtx, msg.ID, errorMsg); err != nil {
			p.logger.Error("Failed to mark message as failed", "error", err, "messageID", msg.ID)
		}

		return fmt.Errorf("message failed after %d attempts: %w", msg.ProcessingAttempts, cause)
	}

	if err := p.store.MarkForRetry(markCtx, msg.ID, cause.Error()); err != nil {
		p.logger.Error("Failed to requeue message", "error", err, "messageID", msg.ID)
	}

	return cause
}

// release hands claimed but unprocessed messages back to the queue
func (p *Processor) release(ctx context.Context, messages []*models.OutboxMessage) {
	markCtx, cancel := markContext(ctx)
	defer cancel()

	for _, msg := range messages {
		if err := p.store.MarkForRetry(markCtx, msg.ID, "processor stopped before delivery"); err != nil {
			p.logger.Error("Failed to release message", "error", err, "messageID", msg.ID)
		}
	}

	p.logger.Info("Released unprocessed outbox messages", "count", len(messages))
}

// markContext outlives cancellation of the batch so a claimed message is
// never left in processing because the processor is stopping.
func markContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
}
