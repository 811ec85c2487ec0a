package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"realtime-service/internal/models"
)

var (
	ErrBatchNotFound       = errors.New("batch not found")
	ErrBatchStatusConflict = errors.New("batch status changed concurrently")
)

// BatchRepository abstracts notification batch persistence.
type BatchRepository interface {
	CreateBatch(ctx context.Context, batch models.NotificationBatch) (models.NotificationBatch, error)
	GetBatch(ctx context.Context, batchID string) (models.NotificationBatch, error)
	TransitionStatus(ctx context.Context, batchID string, from models.BatchStatus, to models.BatchStatus) error
	CompleteBatch(ctx context.Context, batchID string, result models.BatchResult) error
}

// BatchRepo is a sqlx implementation of BatchRepository.
type BatchRepo struct {
	db *sqlx.DB
}

// NewBatchRepo constructs a BatchRepo.
func NewBatchRepo(db *sqlx.DB) *BatchRepo {
	return &BatchRepo{db: db}
}

const batchColumns = `id, title, body, notification_type, target_user_ids, filter, status, total_recipients,
        sent_count, failed_count, suppressed_count, created_by, scheduled_at, created_at, sent_at`

// CreateBatch stores a new batch in draft (or scheduled when scheduled_at is set).
func (r *BatchRepo) CreateBatch(ctx context.Context, b models.NotificationBatch) (models.NotificationBatch, error) {
	status := models.BatchDraft
	if b.ScheduledAt != nil {
		status = models.BatchScheduled
	}
	if b.Type == "" {
		b.Type = models.NotificationSystem
	}
	if b.TargetUserIDs == nil {
		b.TargetUserIDs = []string{}
	}
	var stored models.NotificationBatch
	err := r.db.GetContext(ctx, &stored,
		`INSERT INTO notification_batches (id, title, body, notification_type, target_user_ids, filter, status, created_by, scheduled_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING `+batchColumns,
		uuid.NewString(), b.Title, b.Body, b.Type, b.TargetUserIDs, b.Filter, status, b.CreatedBy, b.ScheduledAt)
	return stored, err
}

// GetBatch fetches a batch by id.
func (r *BatchRepo) GetBatch(ctx context.Context, batchID string) (models.NotificationBatch, error) {
	var b models.NotificationBatch
	err := r.db.GetContext(ctx, &b, `SELECT `+batchColumns+` FROM notification_batches WHERE id=$1`, batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NotificationBatch{}, ErrBatchNotFound
	}
	return b, err
}

// TransitionStatus moves the batch from one status to another only if it is
// still in the expected status.
func (r *BatchRepo) TransitionStatus(ctx context.Context, batchID string, from models.BatchStatus, to models.BatchStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("batch transition %s -> %s not allowed", from, to)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE notification_batches SET status=$3 WHERE id=$1 AND status=$2`, batchID, from, to)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBatchStatusConflict
	}
	return nil
}

// CompleteBatch writes the final status and counters of a sending batch.
func (r *BatchRepo) CompleteBatch(ctx context.Context, batchID string, res models.BatchResult) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notification_batches
            SET status=$2, total_recipients=$3, sent_count=$4, failed_count=$5, suppressed_count=$6, sent_at=$7
          WHERE id=$1 AND status=$8`,
		batchID, res.Status, res.TotalRecipients, res.SentCount, res.FailedCount, res.SuppressedCount, res.SentAt, models.BatchSending)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrBatchStatusConflict
	}
	return nil
}
