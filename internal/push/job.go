// Package push moves push attempts from the dispatch pipeline to the gateway.
package push

import (
	"context"

	"realtime-service/internal/models"
)

// RoutingKey is the exchange routing key push jobs are published with.
const RoutingKey = "push.send"

// Job is one push attempt for one device token.
type Job struct {
	NotificationID string            `json:"notification_id"`
	UserID         string            `json:"user_id"`
	Token          string            `json:"token"`
	Platform       models.Platform   `json:"platform"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Data           map[string]string `json:"data,omitempty"`
}

type publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Queue enqueues push jobs on the message bus.
type Queue struct {
	publisher publisher
}

// NewQueue builds a Queue on top of a bus publisher.
func NewQueue(p publisher) *Queue {
	return &Queue{publisher: p}
}

// Enqueue publishes one job. Delivery is at most once; there is no retry.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	return q.publisher.Publish(ctx, RoutingKey, job)
}
