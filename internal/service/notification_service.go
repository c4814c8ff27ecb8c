package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	netmail "net/mail"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/noah-isme/cbhlc-api/internal/models"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
	"github.com/noah-isme/cbhlc-api/pkg/jobs"
	"github.com/noah-isme/cbhlc-api/pkg/mail"
)

// NotificationJobType routes notification deliveries on the job queue.
const NotificationJobType = "notification.deliver"

// NotificationMessage is the content sent to every recipient.
type NotificationMessage struct {
	Type    models.NotificationType
	Title   string
	Message string
	Data    interface{}
}

type notificationRepository interface {
	CreateMany(ctx context.Context, items []models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

type notificationUserDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListActiveByRoles(ctx context.Context, roles ...models.UserRole) ([]models.User, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type notificationDelivery struct {
	Recipients []models.User
	Message    NotificationMessage
}

// NotificationService stores in-app notifications and optionally mails them.
// Deliveries go through the job queue when one is configured.
type NotificationService struct {
	repo    notificationRepository
	users   notificationUserDirectory
	mailer  mail.Mailer
	queue   jobEnqueuer
	metrics *MetricsService
	logger  *zap.Logger
}

// NotificationServiceParams groups constructor dependencies.
type NotificationServiceParams struct {
	Repo    notificationRepository
	Users   notificationUserDirectory
	Mailer  mail.Mailer
	Queue   jobEnqueuer
	Metrics *MetricsService
	Logger  *zap.Logger
}

// NewNotificationService constructs the service. Mailer and Queue are optional.
func NewNotificationService(params NotificationServiceParams) *NotificationService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		repo:    params.Repo,
		users:   params.Users,
		mailer:  params.Mailer,
		queue:   params.Queue,
		metrics: params.Metrics,
		logger:  logger,
	}
}

// RegisterJobs binds the delivery handler to q.
func (s *NotificationService) RegisterJobs(q *jobs.Queue) {
	q.Register(NotificationJobType, s.handleJob)
}

// NotifyUsers sends msg to the given users. Unknown ids are skipped.
func (s *NotificationService) NotifyUsers(ctx context.Context, userIDs []string, msg NotificationMessage) error {
	recipients := make([]models.User, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		user, err := s.users.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return fmt.Errorf("load notification recipient %s: %w", id, err)
		}
		recipients = append(recipients, *user)
	}
	return s.dispatch(ctx, recipients, msg)
}

// NotifyRoles sends msg to every active user holding one of roles.
func (s *NotificationService) NotifyRoles(ctx context.Context, roles []models.UserRole, msg NotificationMessage) error {
	recipients, err := s.users.ListActiveByRoles(ctx, roles...)
	if err != nil {
		return fmt.Errorf("list notification recipients: %w", err)
	}
	return s.dispatch(ctx, recipients, msg)
}

func (s *NotificationService) dispatch(ctx context.Context, recipients []models.User, msg NotificationMessage) error {
	if len(recipients) == 0 {
		return nil
	}
	delivery := notificationDelivery{Recipients: recipients, Message: msg}
	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{Type: NotificationJobType, Payload: delivery})
		if err == nil {
			return nil
		}
		s.logger.Warn("notification queue unavailable, delivering inline", zap.Error(err))
	}
	return s.deliver(ctx, delivery)
}

func (s *NotificationService) handleJob(ctx context.Context, job jobs.Job) error {
	delivery, ok := job.Payload.(notificationDelivery)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	return s.deliver(ctx, delivery)
}

// deliver stores the in-app rows, then mails. Mail failures are logged only so
// a retried job does not duplicate in-app notifications.
func (s *NotificationService) deliver(ctx context.Context, d notificationDelivery) error {
	data := models.NewJSONB(d.Message.Data)
	rows := make([]models.Notification, 0, len(d.Recipients))
	for _, user := range d.Recipients {
		rows = append(rows, models.Notification{
			UserID:  user.ID,
			Type:    d.Message.Type,
			Title:   d.Message.Title,
			Message: d.Message.Message,
			Data:    data,
		})
	}
	err := s.repo.CreateMany(ctx, rows)
	s.metrics.ObserveNotification("in_app", err)
	if err != nil {
		return fmt.Errorf("store notifications: %w", err)
	}

	if s.mailer == nil {
		return nil
	}
	var mailErrs error
	for _, user := range d.Recipients {
		if user.Email == "" {
			continue
		}
		sendErr := s.mailer.Send(ctx, mail.Message{
			To:          []netmail.Address{{Name: user.FullName, Address: user.Email}},
			Subject:     d.Message.Title,
			TextContent: d.Message.Message,
		})
		s.metrics.ObserveNotification("email", sendErr)
		mailErrs = multierr.Append(mailErrs, sendErr)
	}
	if mailErrs != nil {
		s.logger.Warn("notification e-mail failed", zap.String("type", string(d.Message.Type)), zap.Error(mailErrs))
	}
	return nil
}

// List returns the notifications of userID.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// MarkRead marks one of the user's notifications read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

// MarkAllRead marks all of the user's notifications read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return n, nil
}

// UnreadCount returns how many unread notifications the user has.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return n, nil
}
