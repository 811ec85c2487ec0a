package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"

	"realtime-service/internal/observability"
)

// Subscriber is a connection the hub can deliver frames to.
type Subscriber interface {
	ID() string
	// Enqueue hands a frame to the connection's writer without blocking.
	// It returns false when the connection is closed or cannot keep up.
	Enqueue(payload []byte) bool
	Close()
}

// Hub maps topics to the connections subscribed to them. It is an in-memory
// index only and starts empty on every process start.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[Subscriber]struct{}
	subs   map[Subscriber]map[string]struct{}
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[Subscriber]struct{}),
		subs:   make(map[Subscriber]map[string]struct{}),
		logger: logger.Named("hub"),
	}
}

// RoomTopic is the topic of a chat room.
func RoomTopic(roomID string) string {
	return "room:" + roomID
}

// UserTopic is the personal notification topic of a user.
func UserTopic(userID string) string {
	return "user:" + userID + ":notifications"
}

// Subscribe registers sub on topic. Subscribing twice is a no-op.
func (h *Hub) Subscribe(topic string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[Subscriber]struct{})
	}
	h.topics[topic][sub] = struct{}{}
	if _, ok := h.subs[sub]; !ok {
		h.subs[sub] = make(map[string]struct{})
	}
	h.subs[sub][topic] = struct{}{}
}

// Unsubscribe removes sub from topic.
func (h *Hub) Unsubscribe(topic string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(topic, sub)
}

func (h *Hub) unsubscribeLocked(topic string, sub Subscriber) {
	if conns, ok := h.topics[topic]; ok {
		delete(conns, sub)
		if len(conns) == 0 {
			delete(h.topics, topic)
		}
	}
	if topics, ok := h.subs[sub]; ok {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(h.subs, sub)
		}
	}
}

// UnsubscribeAll removes sub from every topic and returns the topics it left.
func (h *Hub) UnsubscribeAll(sub Subscriber) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	topics := make([]string, 0, len(h.subs[sub]))
	for topic := range h.subs[sub] {
		topics = append(topics, topic)
	}
	for _, topic := range topics {
		h.unsubscribeLocked(topic, sub)
	}
	return topics
}

// Publish fans payload out to every subscriber of topic and returns how many
// accepted it. A subscriber that refuses the frame is dropped from the hub and
// closed; delivery to the others continues.
func (h *Hub) Publish(topic string, payload []byte) int {
	return h.PublishExcept(topic, payload, "")
}

// PublishExcept is Publish skipping the subscriber with id skipID.
func (h *Hub) PublishExcept(topic string, payload []byte, skipID string) int {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.topics[topic]))
	for sub := range h.topics[topic] {
		if skipID != "" && sub.ID() == skipID {
			continue
		}
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, sub := range targets {
		if sub.Enqueue(payload) {
			delivered++
			continue
		}
		dropped++
		h.drop(sub, topic)
	}
	observability.AddHubDeliveries(topicKind(topic), delivered, dropped)
	return delivered
}

// PublishJSON encodes v and publishes it.
func (h *Hub) PublishJSON(topic string, v any) (int, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return h.Publish(topic, payload), nil
}

// PublishJSONExcept encodes v and publishes it to everyone but skipID.
func (h *Hub) PublishJSONExcept(topic string, v any, skipID string) (int, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return h.PublishExcept(topic, payload, skipID), nil
}

// Subscribers returns the number of connections on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Evict removes every connection userID holds on topic and closes them. Other
// subscriptions of those connections are left to their sessions' cleanup.
func (h *Hub) Evict(topic, userID string) int {
	if userID == "" {
		return 0
	}
	return h.closeWhere(topic, func(sub Subscriber) bool { return subscriberUser(sub) == userID })
}

// CloseTopic removes every connection from topic and closes them.
func (h *Hub) CloseTopic(topic string) int {
	return h.closeWhere(topic, nil)
}

func (h *Hub) closeWhere(topic string, match func(Subscriber) bool) int {
	h.mu.Lock()
	var targets []Subscriber
	for sub := range h.topics[topic] {
		if match == nil || match(sub) {
			targets = append(targets, sub)
		}
	}
	for _, sub := range targets {
		h.unsubscribeLocked(topic, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		sub.Close()
	}
	return len(targets)
}

func subscriberUser(sub Subscriber) string {
	if described, ok := sub.(interface{ Info() ConnInfo }); ok {
		return described.Info().UserID
	}
	return ""
}

// CloseAll closes every registered connection. Sessions clean up on their own
// reader goroutines afterwards.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (h *Hub) drop(sub Subscriber, topic string) {
	h.UnsubscribeAll(sub)
	sub.Close()
	h.logger.Warn("dropping slow or closed subscriber", zap.String("conn_id", sub.ID()), zap.String("topic", topic))

	if described, ok := sub.(interface{ Info() ConnInfo }); ok {
		publishLifecycle(context.Background(), described.Info(), "ws_error", "outbound queue rejected frame")
	}
}

func topicKind(topic string) string {
	kind, _, _ := strings.Cut(topic, ":")
	return kind
}
