package repository

import (
	"context"
	"sort"
	"time"

	"github.com/vaidashi/marketplace-orders/internal/database"
	"github.com/vaidashi/marketplace-orders/internal/models"
	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

// DefaultClaimLease is how long a claimed message may stay in processing
// before another poll takes it back.
const DefaultClaimLease = 5 * time.Minute

// OutboxRepository handles database operations for outbox messages
type OutboxRepository struct {
	db         *database.Database
	logger     logger.Logger
	claimLease time.Duration
	nowFunc    func() time.Time
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(db *database.Database, logger logger.Logger) *OutboxRepository {
	return &OutboxRepository{
		db:         db,
		logger:     logger,
		claimLease: DefaultClaimLease,
		nowFunc:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClaimLease overrides DefaultClaimLease. It must outlast a batch.
func (r *OutboxRepository) SetClaimLease(lease time.Duration) {
	if lease > 0 {
		r.claimLease = lease
	}
}

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload,
	created_at, processed_at, claimed_at, processing_attempts, last_error, status`

// CreateInTx enqueues a message inside the caller's transaction
func (r *OutboxRepository) CreateInTx(ctx context.Context, tx Tx, message *models.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (
			aggregate_type, aggregate_id, event_type, payload,
			created_at, status
		) VALUES (
			$1, $2, $3, $4, $5, $6
		) RETURNING id
	`

	err := tx.QueryRowxContext(ctx, query,
		message.AggregateType,
		message.AggregateID,
		message.EventType,
		message.Payload,
		message.CreatedAt,
		message.Status,
	).Scan(&message.ID)

	if err != nil {
		r.logger.Error("Failed to create outbox message", "error", err, "eventType", message.EventType)
		return classify(err)
	}

	return nil
}

// GetPendingMessages claims up to limit pending messages, oldest first.
// Messages claimed longer than the lease ago are taken back, so a crashed
// or stopped processor does not strand them. Rows locked by another
// processor instance are skipped.
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	query := `
		UPDATE outbox_messages
		SET status = $1, claimed_at = $2, processing_attempts = processing_attempts + 1
		WHERE id IN (
			SELECT id FROM outbox_messages
			WHERE status = $3
				OR (status = $1 AND claimed_at < $4)
			ORDER BY created_at ASC, id ASC
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + outboxColumns + `
	`

	now := r.nowFunc()

	var messages []*models.OutboxMessage

	err := r.db.DB.SelectContext(ctx, &messages, query,
		models.OutboxStatusProcessing,
		now,
		models.OutboxStatusPending,
		now.Add(-r.claimLease),
		limit,
	)

	if err != nil {
		r.logger.Error("Failed to claim pending outbox messages", "error", err)
		return nil, classify(err)
	}

	// RETURNING does not preserve the subquery order
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })

	return messages, nil
}

// MarkAsCompleted updates the status of an outbox message to completed
func (r *OutboxRepository) MarkAsCompleted(ctx context.Context, id int64) error {
	return r.setStatus(ctx, id, models.OutboxStatusCompleted, nil)
}

// MarkForRetry returns a message to the pending queue with the last error
func (r *OutboxRepository) MarkForRetry(ctx context.Context, id int64, errorMessage string) error {
	return r.setStatus(ctx, id, models.OutboxStatusPending, &errorMessage)
}

// MarkAsFailed parks a message that will not be retried
func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	return r.setStatus(ctx, id, models.OutboxStatusFailed, &errorMessage)
}

func (r *OutboxRepository) setStatus(ctx context.Context, id int64, status models.OutboxStatus, lastError *string) error {
	var processedAt *time.Time
	if status == models.OutboxStatusCompleted {
		now := r.nowFunc()
		processedAt = &now
	}

	query := `
		UPDATE outbox_messages
		SET status = $1, last_error = COALESCE($2, last_error), processed_at = COALESCE($3, processed_at),
			claimed_at = NULL
		WHERE id = $4
	`

	if _, err := r.db.DB.ExecContext(ctx, query, status, lastError, processedAt, id); err != nil {
		r.logger.Error("Failed to update outbox message", "error", err, "messageID", id, "status", status)
		return classify(err)
	}

	return nil
}

// CountByStatus reports queue depth per status
func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[models.OutboxStatus]int, error) {
	rows := []struct {
		Status models.OutboxStatus `db:"status"`
		Count  int                 `db:"count"`
	}{}

	if err := r.db.DB.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM outbox_messages GROUP BY status`); err != nil {
		r.logger.Error("Failed to count outbox messages", "error", err)
		return nil, classify(err)
	}

	counts := make(map[models.OutboxStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return counts, nil
}

// ListFailed returns messages that exhausted their retries, newest first
func (r *OutboxRepository) ListFailed(ctx context.Context, limit, offset int) ([]*models.OutboxMessage, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_messages
		WHERE status = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`

	var messages []*models.OutboxMessage

	if err := r.db.DB.SelectContext(ctx, &messages, query, models.OutboxStatusFailed, limit, offset); err != nil {
		r.logger.Error("Failed to list failed outbox messages", "error", err)
		return nil, classify(err)
	}

	return messages, nil
}

// Requeue moves a failed message back to pending with a fresh attempt budget
func (r *OutboxRepository) Requeue(ctx context.Context, id int64) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, processing_attempts = 0
		WHERE id = $2 AND status = $3
	`

	result, err := r.db.DB.ExecContext(ctx, query, models.OutboxStatusPending, id, models.OutboxStatusFailed)

	if err != nil {
		r.logger.Error("Failed to requeue outbox message", "error", err, "messageID", id)
		return classify(err)
	}

	return requireRow(result)
}
