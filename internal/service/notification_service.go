package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/phd-portal-api/internal/forms"
	"github.com/noah-isme/phd-portal-api/internal/models"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
	"github.com/noah-isme/phd-portal-api/pkg/jobs"
)

type notificationStore interface {
	CreateBatch(ctx context.Context, notifications []models.Notification) error
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) error
}

type recipientResolver interface {
	RecipientUserIDs(ctx context.Context, role models.Role, rollNo string) ([]string, error)
}

type dispatchObserver interface {
	ObserveNotification()
}

const jobTypeTransition = "form_transition"

// NotificationService fans out workflow events to in-app notifications.
// Dispatch is asynchronous: the submit path only enqueues, the worker pool
// resolves recipients and persists rows.
type NotificationService struct {
	store     notificationStore
	resolver  recipientResolver
	redis     *redis.Client
	metrics   dispatchObserver
	logger    *zap.Logger
	unreadTTL time.Duration

	queue *jobs.Queue
}

// NewNotificationService constructs the service and its dispatch queue.
// Metrics may be nil in tests. Call Start before serving and Stop on
// shutdown.
func NewNotificationService(store notificationStore, resolver recipientResolver, redisClient *redis.Client, metrics dispatchObserver, logger *zap.Logger, queueCfg jobs.QueueConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		store:     store,
		resolver:  resolver,
		redis:     redisClient,
		metrics:   metrics,
		logger:    logger,
		unreadTTL: time.Minute,
	}
	queueCfg.Logger = logger
	s.queue = jobs.NewQueue("notifications", s.handleJob, queueCfg)
	return s
}

// SetUnreadTTL overrides the unread-count cache TTL.
func (s *NotificationService) SetUnreadTTL(ttl time.Duration) {
	if ttl > 0 {
		s.unreadTTL = ttl
	}
}

// Start begins the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifyTransition enqueues the fan-out for one workflow event. Failures
// are logged, never surfaced: a notification must not fail a submission.
func (s *NotificationService) NotifyTransition(event forms.Event) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobTypeTransition,
		Payload: event,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue transition notification",
			zap.String("form_id", event.FormID), zap.Error(err))
	}
}

func (s *NotificationService) handleJob(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(forms.Event)
	if !ok {
		s.logger.Error("unexpected notification job payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.dispatch(ctx, event)
}

func (s *NotificationService) dispatch(ctx context.Context, event forms.Event) error {
	notifications, err := s.buildNotifications(ctx, event)
	if err != nil {
		return err
	}
	if len(notifications) == 0 {
		return nil
	}
	if err := s.store.CreateBatch(ctx, notifications); err != nil {
		return fmt.Errorf("persist notifications: %w", err)
	}

	for _, n := range notifications {
		if s.metrics != nil {
			s.metrics.ObserveNotification()
		}
		s.invalidateUnread(ctx, n.UserID)
	}
	return nil
}

func (s *NotificationService) buildNotifications(ctx context.Context, event forms.Event) ([]models.Notification, error) {
	def, err := forms.Lookup(event.FormType)
	if err != nil {
		return nil, err
	}
	link := fmt.Sprintf("/forms/%s/%s", event.FormType, event.FormID)

	var body string
	switch event.Kind {
	case forms.EventRejected:
		body = fmt.Sprintf("%s (%s) Rejected the form", event.Actor, event.ActorRole.Title())
	default:
		body = fmt.Sprintf("%s (%s) submitted the form", event.Actor, event.ActorRole.Title())
	}

	var out []models.Notification

	// The next stage's holders get the action prompt; on completion there
	// is no next reviewer.
	if event.NextStage != models.StageComplete {
		recipients, err := s.resolver.RecipientUserIDs(ctx, event.NextStage, event.StudentID)
		if err != nil {
			return nil, fmt.Errorf("resolve recipients: %w", err)
		}
		for _, userID := range recipients {
			out = append(out, models.Notification{
				UserID:   userID,
				Title:    def.Name,
				Body:     body,
				Link:     link,
				Role:     event.NextStage,
				EmailReq: event.Kind == forms.EventRejected,
			})
		}
	}

	// The student always hears where their form went, unless they are the
	// one the form just moved to.
	if event.NextStage != models.RoleStudent {
		studentIDs, err := s.resolver.RecipientUserIDs(ctx, models.RoleStudent, event.StudentID)
		if err != nil {
			return nil, fmt.Errorf("resolve student recipient: %w", err)
		}
		studentBody := fmt.Sprintf("Your Form has moved to %s, %s", event.NextStage.Title(), body)
		if event.Kind == forms.EventCompleted {
			studentBody = "Your form has been approved"
		}
		for _, userID := range studentIDs {
			out = append(out, models.Notification{
				UserID:   userID,
				Title:    def.Name,
				Body:     studentBody,
				Link:     link,
				Role:     models.RoleStudent,
				EmailReq: event.Kind == forms.EventCompleted,
			})
		}
	}

	return out, nil
}

// List pages a user's notifications.
func (s *NotificationService) List(ctx context.Context, userID string, page, pageSize int) ([]models.Notification, *models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	items, total, err := s.store.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	totalPages := (total + pageSize - 1) / pageSize
	return items, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total, TotalPages: totalPages}, nil
}

// UnreadCount returns the badge count, cached briefly in Redis.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	key := unreadKey(userID)
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, key).Result(); err == nil {
			if count, convErr := strconv.Atoi(cached); convErr == nil {
				return count, nil
			}
		}
	}

	count, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	if s.redis != nil {
		if err := s.redis.Set(ctx, key, strconv.Itoa(count), s.unreadTTL).Err(); err != nil {
			s.logger.Warn("failed to cache unread count", zap.Error(err))
		}
	}
	return count, nil
}

// MarkRead stamps one notification read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.store.MarkRead(ctx, id, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	s.invalidateUnread(ctx, userID)
	return nil
}

// MarkAllRead stamps every unread notification read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	if err := s.store.MarkAllRead(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	s.invalidateUnread(ctx, userID)
	return nil
}

func (s *NotificationService) invalidateUnread(ctx context.Context, userID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, unreadKey(userID)).Err(); err != nil {
		s.logger.Warn("failed to invalidate unread cache", zap.String("user_id", userID), zap.Error(err))
	}
}

func unreadKey(userID string) string {
	return "notifications:unread:" + userID
}
