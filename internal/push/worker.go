package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"realtime-service/internal/observability"
)

// TokenStore is the part of device token persistence the worker needs.
type TokenStore interface {
	DeactivateToken(ctx context.Context, token string) error
	TouchToken(ctx context.Context, token string, at time.Time) error
}

// Worker consumes push jobs and hands them to the gateway.
type Worker struct {
	sender Sender
	tokens TokenStore
	logger *zap.Logger
}

func NewWorker(sender Sender, tokens TokenStore, logger *zap.Logger) *Worker {
	return &Worker{sender: sender, tokens: tokens, logger: logger.Named("push_worker")}
}

// Handle processes one queued job body.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		observability.IncPushJob("deliver", "malformed")
		return fmt.Errorf("decode push job: %w", err)
	}
	if job.Token == "" {
		observability.IncPushJob("deliver", "malformed")
		return errors.New("push job without token")
	}

	err := w.sender.Send(ctx, job)
	switch {
	case errors.Is(err, ErrTokenUnregistered):
		observability.IncPushJob("deliver", "unregistered")
		w.logger.Info("deactivating unregistered token", zap.String("user_id", job.UserID))
		if derr := w.tokens.DeactivateToken(ctx, job.Token); derr != nil {
			w.logger.Error("deactivate token failed", zap.Error(derr))
		}
		return nil
	case err != nil:
		observability.IncPushJob("deliver", "failed")
		w.logger.Warn("push failed", zap.String("notification_id", job.NotificationID), zap.Error(err))
		return err
	}

	observability.IncPushJob("deliver", "sent")
	if err := w.tokens.TouchToken(ctx, job.Token, time.Now().UTC()); err != nil {
		w.logger.Warn("touch token failed", zap.Error(err))
	}
	return nil
}
