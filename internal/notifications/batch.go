package notifications

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"realtime-service/internal/apperr"
	"realtime-service/internal/models"
	"realtime-service/internal/observability"
	"realtime-service/internal/repositories"
)

// Creator is the part of the dispatcher a batch needs.
type Creator interface {
	Create(ctx context.Context, req Request) (*models.Notification, error)
}

// BatchSender fans an administrator-authored notification out to many users.
type BatchSender struct {
	batches    repositories.BatchRepository
	users      repositories.UserDirectory
	dispatcher Creator
	logger     *zap.Logger
	now        func() time.Time
}

func NewBatchSender(batches repositories.BatchRepository, users repositories.UserDirectory, dispatcher Creator, logger *zap.Logger) *BatchSender {
	return &BatchSender{
		batches:    batches,
		users:      users,
		dispatcher: dispatcher,
		logger:     logger.Named("batches"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateBatch validates and stores a new batch.
func (s *BatchSender) CreateBatch(ctx context.Context, b models.NotificationBatch) (models.NotificationBatch, error) {
	if strings.TrimSpace(b.Title) == "" {
		return models.NotificationBatch{}, apperr.Validation("title is required")
	}
	if b.Type != "" && !b.Type.Valid() {
		return models.NotificationBatch{}, apperr.Validation("unknown notification type")
	}
	stored, err := s.batches.CreateBatch(ctx, b)
	if err != nil {
		return models.NotificationBatch{}, apperr.Internal("could not store batch", err)
	}
	return stored, nil
}

// Send delivers a draft batch. It returns false without side effects when
// the batch is not a draft. Individual failures are counted and do not fail
// the batch; a failure to resolve the audience does.
func (s *BatchSender) Send(ctx context.Context, batchID string) (bool, error) {
	batch, err := s.batches.GetBatch(ctx, batchID)
	if errors.Is(err, repositories.ErrBatchNotFound) {
		return false, apperr.NotFound("batch not found")
	}
	if err != nil {
		return false, apperr.Internal("could not load batch", err)
	}
	if batch.Status != models.BatchDraft {
		return false, apperr.Validation("only draft batches can be sent")
	}

	if err := s.batches.TransitionStatus(ctx, batch.ID, models.BatchDraft, models.BatchSending); err != nil {
		if errors.Is(err, repositories.ErrBatchStatusConflict) {
			return false, apperr.Validation("only draft batches can be sent")
		}
		return false, apperr.Internal("could not start batch", err)
	}
	log := s.logger.With(zap.String("batch_id", batch.ID))

	// the batch is committed to sending; finish bookkeeping even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	targets, err := s.resolveTargets(ctx, batch)
	if err != nil {
		log.Error("resolve batch audience failed", zap.Error(err))
		if cerr := s.batches.CompleteBatch(ctx, batch.ID, models.BatchResult{Status: models.BatchFailed}); cerr != nil {
			log.Error("mark batch failed", zap.Error(cerr))
		}
		return false, apperr.Internal("could not resolve batch audience", err)
	}

	typ := batch.Type
	if typ == "" {
		typ = models.NotificationSystem
	}
	result := models.BatchResult{Status: models.BatchSent, TotalRecipients: len(targets)}
	for _, userID := range targets {
		_, err := s.dispatcher.Create(ctx, Request{
			RecipientID: userID,
			Type:        typ,
			Title:       batch.Title,
			Body:        batch.Body,
			Metadata:    models.Metadata{"batch_id": batch.ID},
		})
		switch {
		case err == nil:
			result.SentCount++
		case IsSuppressed(err):
			result.SuppressedCount++
		default:
			result.FailedCount++
			log.Warn("batch notification failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	sentAt := s.now()
	result.SentAt = &sentAt
	if err := s.batches.CompleteBatch(ctx, batch.ID, result); err != nil {
		return false, apperr.Internal("could not complete batch", err)
	}
	observability.AddBatchRecipients(result.SentCount, result.FailedCount, result.SuppressedCount)
	log.Info("batch sent",
		zap.Int("recipients", result.TotalRecipients),
		zap.Int("sent", result.SentCount),
		zap.Int("failed", result.FailedCount),
		zap.Int("suppressed", result.SuppressedCount))
	return true, nil
}

func (s *BatchSender) resolveTargets(ctx context.Context, batch models.NotificationBatch) ([]string, error) {
	if len(batch.TargetUserIDs) > 0 {
		return dedupe(batch.TargetUserIDs), nil
	}
	ids, err := s.users.FilterUsers(ctx, batch.Filter)
	if err != nil {
		return nil, err
	}
	return dedupe(ids), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
