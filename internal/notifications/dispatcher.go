// Package notifications decides which events reach a user and delivers them
// in-app and to push devices.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"realtime-service/internal/apperr"
	"realtime-service/internal/models"
	"realtime-service/internal/observability"
	"realtime-service/internal/push"
	"realtime-service/internal/repositories"
	"realtime-service/internal/sourceref"
	"realtime-service/internal/ws"
)

const (
	DefaultDedupWindow = 5 * time.Minute
	DefaultPageSize    = 20
	MaxPageSize        = 100
	MaxPage            = 10000
	UnreadOnConnect    = 10
)

// Publisher fans a frame out to a topic. *ws.Hub satisfies it.
type Publisher interface {
	PublishJSON(topic string, v any) (int, error)
}

// PushQueue accepts push attempts. *push.Queue satisfies it.
type PushQueue interface {
	Enqueue(ctx context.Context, job push.Job) error
}

// Request describes a notification to create.
type Request struct {
	RecipientID string
	ActorID     *string
	Type        models.NotificationType
	Title       string
	Body        string
	Source      *models.SourceRef
	Metadata    models.Metadata
}

// Deps are the collaborators of a Dispatcher. Push may be nil, which turns
// the push channel off.
type Deps struct {
	Store       repositories.NotificationRepository
	Tokens      repositories.DeviceTokenRepository
	Users       repositories.UserDirectory
	Sources     *sourceref.Registry
	Hub         Publisher
	Push        PushQueue
	DedupWindow time.Duration
	Logger      *zap.Logger
}

// Dispatcher runs the notification pipeline.
type Dispatcher struct {
	store       repositories.NotificationRepository
	tokens      repositories.DeviceTokenRepository
	users       repositories.UserDirectory
	sources     *sourceref.Registry
	hub         Publisher
	push        PushQueue
	dedupWindow time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func NewDispatcher(d Deps) *Dispatcher {
	window := d.DedupWindow
	if window <= 0 {
		window = DefaultDedupWindow
	}
	sources := d.Sources
	if sources == nil {
		sources = sourceref.NewRegistry()
	}
	return &Dispatcher{
		store:       d.Store,
		tokens:      d.Tokens,
		users:       d.Users,
		sources:     sources,
		hub:         d.Hub,
		push:        d.Push,
		dedupWindow: window,
		logger:      d.Logger.Named("notifications"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create runs the pipeline for one recipient. It returns a *SuppressedError
// when the recipient's settings filter the notification out, and the
// existing row when an equivalent notification was created recently.
func (d *Dispatcher) Create(ctx context.Context, req Request) (*models.Notification, error) {
	if err := d.validate(req); err != nil {
		return nil, err
	}
	log := d.logger.With(zap.String("recipient_id", req.RecipientID), zap.String("type", string(req.Type)))

	settings, err := d.store.GetOrCreateSettings(ctx, req.RecipientID)
	if err != nil {
		return nil, apperr.Internal("could not load notification settings", err)
	}

	if !CategoryEnabled(settings, req.Type) {
		log.Debug("notification suppressed", zap.String("reason", ReasonCategoryDisabled))
		observability.IncNotification(string(req.Type), ReasonCategoryDisabled)
		return nil, &SuppressedError{Reason: ReasonCategoryDisabled}
	}
	now := d.now()
	if InQuietHours(settings, now) {
		log.Debug("notification suppressed", zap.String("reason", ReasonQuietHours))
		observability.IncNotification(string(req.Type), ReasonQuietHours)
		return nil, &SuppressedError{Reason: ReasonQuietHours}
	}

	if req.Source != nil {
		existing, err := d.store.QueryRecentDuplicate(ctx, repositories.DuplicateQuery{
			RecipientID: req.RecipientID,
			ActorID:     req.ActorID,
			Type:        req.Type,
			Source:      *req.Source,
			Since:       now.Add(-d.dedupWindow),
		})
		if err != nil {
			return nil, apperr.Internal("could not check for duplicates", err)
		}
		if existing != nil {
			log.Debug("duplicate notification collapsed", zap.String("notification_id", existing.ID))
			observability.IncNotification(string(req.Type), "deduplicated")
			return existing, nil
		}
	}

	row := models.Notification{
		RecipientID: req.RecipientID,
		ActorID:     req.ActorID,
		Type:        req.Type,
		Title:       req.Title,
		Body:        req.Body,
		Metadata:    req.Metadata,
	}
	if row.Metadata == nil {
		row.Metadata = models.Metadata{}
	}
	if req.Source != nil {
		kind, id := req.Source.Kind, req.Source.ID
		row.SourceKind, row.SourceID = &kind, &id
	}
	stored, err := d.store.CreateNotification(ctx, row)
	if err != nil {
		return nil, apperr.Internal("could not store notification", err)
	}
	observability.IncNotification(string(req.Type), "created")

	if settings.InAppEnabled {
		d.deliverInApp(ctx, stored)
	}
	if settings.PushEnabled && d.push != nil {
		d.schedulePush(ctx, &stored)
	}
	return &stored, nil
}

func (d *Dispatcher) validate(req Request) error {
	if req.RecipientID == "" {
		return apperr.Validation("recipient is required")
	}
	if !req.Type.Valid() {
		return apperr.Validation("unknown notification type")
	}
	if strings.TrimSpace(req.Title) == "" {
		return apperr.Validation("title is required")
	}
	if req.Type != models.NotificationSystem && req.ActorID != nil && *req.ActorID == req.RecipientID {
		return apperr.Validation("users cannot notify themselves")
	}
	if req.Source != nil {
		if err := d.sources.Validate(*req.Source); err != nil {
			return apperr.Validation(err.Error())
		}
	}
	return nil
}

// deliverInApp pushes the new row and the fresh unread count to the user's
// live connections. Failures only cost the live copy; the row is stored.
func (d *Dispatcher) deliverInApp(ctx context.Context, n models.Notification) {
	topic := ws.UserTopic(n.RecipientID)
	if _, err := d.hub.PublishJSON(topic, models.NotificationEvent{Type: models.EventNewNotification, Notification: n}); err != nil {
		d.logger.Warn("publish notification failed", zap.String("notification_id", n.ID), zap.Error(err))
		return
	}
	d.PublishUnreadCount(ctx, n.RecipientID)
}

// PublishUnreadCount pushes the user's current unread count to every open
// notification connection of that user.
func (d *Dispatcher) PublishUnreadCount(ctx context.Context, userID string) {
	count, err := d.store.UnreadCount(ctx, userID)
	if err != nil {
		d.logger.Warn("unread count failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if _, err := d.hub.PublishJSON(ws.UserTopic(userID), models.UnreadCountEvent{Type: models.EventUnreadCount, Count: count}); err != nil {
		d.logger.Warn("publish unread count failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (d *Dispatcher) schedulePush(ctx context.Context, n *models.Notification) {
	tokens, err := d.tokens.ListActiveDeviceTokens(ctx, n.RecipientID)
	if err != nil {
		d.logger.Warn("list device tokens failed", zap.String("user_id", n.RecipientID), zap.Error(err))
		return
	}
	if len(tokens) == 0 {
		return
	}

	data := map[string]string{
		"notification_id":   n.ID,
		"notification_type": string(n.Type),
	}
	if src := n.Source(); src != nil {
		data["source_kind"] = string(src.Kind)
		data["source_id"] = src.ID
	}

	queued := 0
	for _, t := range tokens {
		job := push.Job{
			NotificationID: n.ID,
			UserID:         n.RecipientID,
			Token:          t.Token,
			Platform:       t.Platform,
			Title:          n.Title,
			Body:           n.Body,
			Data:           data,
		}
		if err := d.push.Enqueue(ctx, job); err != nil {
			observability.IncPushJob("enqueue", "error")
			d.logger.Warn("enqueue push failed", zap.String("notification_id", n.ID), zap.String("platform", string(t.Platform)), zap.Error(err))
			continue
		}
		observability.IncPushJob("enqueue", "ok")
		queued++
	}
	if queued == 0 {
		return
	}
	if err := d.store.MarkSent(ctx, n.ID); err != nil {
		d.logger.Warn("mark sent failed", zap.String("notification_id", n.ID), zap.Error(err))
		return
	}
	n.IsSent = true
}

// MarkRead flags the user's unread notifications as read. Either ids or all
// must be given; rows that are already read are not counted again.
func (d *Dispatcher) MarkRead(ctx context.Context, userID string, ids []string, all bool) (int64, error) {
	if !all && len(ids) == 0 {
		return 0, apperr.Validation("notification_ids or mark_all is required")
	}
	count, err := d.store.MarkRead(ctx, userID, ids, all, d.now())
	if err != nil {
		return 0, apperr.Internal("could not mark notifications read", err)
	}
	return count, nil
}

func (d *Dispatcher) UnreadCount(ctx context.Context, userID string) (int64, error) {
	count, err := d.store.UnreadCount(ctx, userID)
	if err != nil {
		return 0, apperr.Internal("could not count notifications", err)
	}
	return count, nil
}

// ListPage returns one page of the user's notifications, newest first. Pages
// start at 1 and stop at MaxPage.
func (d *Dispatcher) ListPage(ctx context.Context, userID string, page, pageSize int) (models.NotificationPage, error) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		return models.NotificationPage{}, apperr.Validation(fmt.Sprintf("page must be at most %d", MaxPage))
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	total, err := d.store.CountForUser(ctx, userID)
	if err != nil {
		return models.NotificationPage{}, apperr.Internal("could not count notifications", err)
	}
	items, err := d.store.ListForUser(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return models.NotificationPage{}, apperr.Internal("could not list notifications", err)
	}
	if items == nil {
		items = []models.Notification{}
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return models.NotificationPage{
		Notifications: items,
		Page:          page,
		PageSize:      pageSize,
		TotalPages:    totalPages,
		TotalCount:    total,
		HasNext:       page < totalPages,
		HasPrevious:   page > 1,
	}, nil
}

func (d *Dispatcher) ListUnread(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit < 1 {
		limit = UnreadOnConnect
	}
	items, err := d.store.ListUnread(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Internal("could not list notifications", err)
	}
	if items == nil {
		items = []models.Notification{}
	}
	return items, nil
}

// CleanupOld deletes read notifications older than the retention window.
// Unread rows are kept regardless of age.
func (d *Dispatcher) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, apperr.Validation("retention must be at least one day")
	}
	cutoff := d.now().AddDate(0, 0, -retentionDays)
	n, err := d.store.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	d.logger.Info("old notifications deleted", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	return n, nil
}

func (d *Dispatcher) UserStats(ctx context.Context, userID string) (models.NotificationStats, error) {
	total, err := d.store.CountForUser(ctx, userID)
	if err != nil {
		return models.NotificationStats{}, apperr.Internal("could not load stats", err)
	}
	unread, err := d.store.UnreadCount(ctx, userID)
	if err != nil {
		return models.NotificationStats{}, apperr.Internal("could not load stats", err)
	}
	byType, err := d.store.CountByType(ctx, userID)
	if err != nil {
		return models.NotificationStats{}, apperr.Internal("could not load stats", err)
	}
	if byType == nil {
		byType = []models.TypeCount{}
	}
	return models.NotificationStats{Total: total, Unread: unread, ByType: byType}, nil
}

func (d *Dispatcher) Settings(ctx context.Context, userID string) (models.NotificationSettings, error) {
	s, err := d.store.GetOrCreateSettings(ctx, userID)
	if err != nil {
		return models.NotificationSettings{}, apperr.Internal("could not load notification settings", err)
	}
	return s, nil
}

// UpdateSettings stores s for its user. Enabling quiet hours requires both
// bounds.
func (d *Dispatcher) UpdateSettings(ctx context.Context, s models.NotificationSettings) (models.NotificationSettings, error) {
	if s.QuietHoursEnabled && (s.QuietHoursStart == nil || s.QuietHoursEnd == nil) {
		return models.NotificationSettings{}, apperr.Validation("quiet hours need both a start and an end")
	}
	stored, err := d.store.UpdateSettings(ctx, s)
	if err != nil {
		return models.NotificationSettings{}, apperr.Internal("could not store notification settings", err)
	}
	return stored, nil
}

// createQuietly runs Create for side-effect producers: suppression is
// expected and other failures are only logged.
func (d *Dispatcher) createQuietly(ctx context.Context, req Request) {
	_, err := d.Create(ctx, req)
	if err == nil || IsSuppressed(err) {
		return
	}
	if apperr.KindOf(err) == apperr.KindValidation {
		d.logger.Debug("notification rejected", zap.String("recipient_id", req.RecipientID), zap.Error(err))
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	d.logger.Error("create notification failed", zap.String("recipient_id", req.RecipientID), zap.String("type", string(req.Type)), zap.Error(err))
}
