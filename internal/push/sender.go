package push

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"realtime-service/internal/models"
)

// ErrTokenUnregistered means the gateway no longer knows the token.
var ErrTokenUnregistered = errors.New("device token is no longer registered")

// Sender delivers one job to a push gateway.
type Sender interface {
	Send(ctx context.Context, job Job) error
}

// FCMSender delivers through Firebase Cloud Messaging.
type FCMSender struct {
	client *messaging.Client
}

// NewFCMSender initialises a Firebase app from a service account file.
func NewFCMSender(ctx context.Context, credentialsPath string) (*FCMSender, error) {
	if credentialsPath == "" {
		return nil, errors.New("firebase credentials path not provided")
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return &FCMSender{client: client}, nil
}

func (s *FCMSender) Send(ctx context.Context, job Job) error {
	_, err := s.client.Send(ctx, buildMessage(job))
	if err != nil && messaging.IsUnregistered(err) {
		return fmt.Errorf("%w: %v", ErrTokenUnregistered, err)
	}
	return err
}

func buildMessage(job Job) *messaging.Message {
	data := map[string]string{"notification_id": job.NotificationID}
	for k, v := range job.Data {
		data[k] = v
	}
	msg := &messaging.Message{
		Token: job.Token,
		Notification: &messaging.Notification{
			Title: job.Title,
			Body:  job.Body,
		},
		Data: data,
	}
	switch job.Platform {
	case models.PlatformAndroid:
		msg.Android = &messaging.AndroidConfig{Priority: "high"}
	case models.PlatformIOS:
		msg.APNS = &messaging.APNSConfig{Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: "default"}}}
	case models.PlatformWeb:
		msg.Webpush = &messaging.WebpushConfig{Notification: &messaging.WebpushNotification{Title: job.Title, Body: job.Body}}
	}
	return msg
}

// LogSender only logs jobs. Used when no gateway credentials are configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger.Named("push")}
}

func (s *LogSender) Send(_ context.Context, job Job) error {
	s.logger.Info("push attempt",
		zap.String("notification_id", job.NotificationID),
		zap.String("user_id", job.UserID),
		zap.String("platform", string(job.Platform)))
	return nil
}
