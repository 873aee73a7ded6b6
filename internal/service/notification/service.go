package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/adilzhm/notification-pipeline/internal/backoff"
	"github.com/adilzhm/notification-pipeline/internal/model"
	"github.com/adilzhm/notification-pipeline/internal/rabbitmq/queue"
)

//go:generate mockgen -source=service.go -destination=../../mocks/service/notification/mock.go -package=mocks

type deliveryPublisher interface {
	Publish(msg queue.DeliveryMessage, strategy retry.Strategy) error
	PublishFailed(msg queue.DeliveryMessage, strategy retry.Strategy) error
}

type notificationRepository interface {
	Create(context.Context, model.Notification) (model.Notification, error)
	GetByID(context.Context, uuid.UUID) (model.Notification, error)
	ClaimProcessing(context.Context, uuid.UUID) error
	MarkDelivered(context.Context, uuid.UUID) error
	UpdateDeliveryState(ctx context.Context, id uuid.UUID, status model.Status, retryCount int, nextRetry *time.Time, lastError string) error
	ListInAppByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Notification, error)
	CountInAppByUser(ctx context.Context, userID uuid.UUID) (int, error)
	ListAwaitingRedelivery(ctx context.Context, now, staleBefore time.Time, limit int) ([]model.Notification, error)
	ReleaseStaleProcessing(ctx context.Context, staleBefore time.Time) (int, error)
	TouchRequeued(ctx context.Context, id uuid.UUID) error
}

type userRepository interface {
	GetByID(context.Context, uuid.UUID) (model.User, error)
}

// Sender performs the channel-specific send and returns a provider message
// id, if the transport has one.
type Sender interface {
	Send(user model.User, n model.Notification) (string, error)
}

type cache interface {
	SetWithRetry(ctx context.Context, strategy retry.Strategy, key string, value interface{}) error
	GetWithRetry(ctx context.Context, strategy retry.Strategy, key string) (string, error)
}

const (
	DefaultPage  = 1
	DefaultLimit = 50
	MaxLimit     = 100

	// maxPage keeps the page*limit offset arithmetic inside int range.
	maxPage = 1 << 30
)

// Pagination describes the window of a ListForUser result.
type Pagination struct {
	Total       int  `json:"total"`
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// Service implements the notification pipeline: intake with preference
// gating, job publishing, pagination queries and the retry-state
// transitions applied by the channel workers.
//
// The persisted notification record is the single owner of retry state.
// The queue is only a delivery trigger: republishing is driven off the
// record's next_retry field by RequeueDue.
type Service struct {
	repo        notificationRepository
	users       userRepository
	queue       deliveryPublisher
	senders     map[model.Channel]Sender
	cache       cache
	maxAttempts int
}

func NewService(
	repo notificationRepository,
	users userRepository,
	queue deliveryPublisher,
	senders map[model.Channel]Sender,
	cache cache,
	maxAttempts int,
) *Service {
	return &Service{
		repo:        repo,
		users:       users,
		queue:       queue,
		senders:     senders,
		cache:       cache,
		maxAttempts: maxAttempts,
	}
}

// Submit validates the recipient, applies the per-channel preference and,
// when the channel is enabled, creates a pending notification record and
// publishes a delivery job for it.
//
// A disabled preference is a silent skip: Submit returns (nil, nil) and no
// record is created. A publish failure is surfaced to the caller; the
// created record stays pending without a job and is reclaimed by the
// redelivery sweep.
func (s *Service) Submit(
	ctx context.Context,
	strategy retry.Strategy,
	userID uuid.UUID,
	channel model.Channel,
	message string,
	metadata model.Metadata,
) (*model.Notification, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if !user.Allows(channel) {
		zlog.Logger.Info().
			Str("user_id", userID.String()).
			Str("channel", channel.String()).
			Msg("notification skipped due to user preferences")
		return nil, nil
	}

	if metadata == nil {
		metadata = model.Metadata{}
	}

	created, err := s.repo.Create(ctx, model.Notification{
		UserID:   userID,
		Channel:  channel,
		Message:  message,
		Metadata: metadata,
		Status:   model.StatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	s.cacheStatus(ctx, strategy, created.ID, created.Status)

	msg := queue.DeliveryMessage{NotificationID: created.ID, Channel: channel}
	if err := s.queue.Publish(msg, strategy); err != nil {
		zlog.Logger.Error().Err(err).Str("id", created.ID.String()).Msg("failed to publish delivery job")
		return nil, fmt.Errorf("publish delivery job: %w", err)
	}

	return &created, nil
}

// ListForUser returns a page of the user's in-app notifications, most
// recent first. Page and limit fall back to their defaults when not
// positive and are clamped to sane maximums.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.Notification, Pagination, error) {
	if page < 1 {
		page = DefaultPage
	}
	if page > maxPage {
		page = maxPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	notifications, err := s.repo.ListInAppByUser(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("list notifications: %w", err)
	}

	total, err := s.repo.CountInAppByUser(ctx, userID)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("count notifications: %w", err)
	}

	totalPages := (total + limit - 1) / limit

	return notifications, Pagination{
		Total:       total,
		Page:        page,
		Limit:       limit,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}, nil
}

// GetByID retrieves a notification record.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (model.Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return model.Notification{}, fmt.Errorf("get notification: %w", err)
	}

	return n, nil
}

// GetUser retrieves the recipient of a notification.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	return s.users.GetByID(ctx, id)
}

// GetStatusByID returns the status of a notification, read through the
// cache.
func (s *Service) GetStatusByID(ctx context.Context, strategy retry.Strategy, id uuid.UUID) (model.Status, error) {
	status, err := s.cache.GetWithRetry(ctx, strategy, id.String())
	if err != nil && !errors.Is(err, redis.Nil) {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to get notification status from cache")
	}

	if err != nil {
		n, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return "", fmt.Errorf("get notification status: %w", err)
		}

		s.cacheStatus(ctx, strategy, id, n.Status)

		return n.Status, nil
	}

	return model.Status(status), nil
}

// Send dispatches the notification through the sender registered for its
// channel and returns the provider message id.
func (s *Service) Send(user model.User, n model.Notification) (string, error) {
	snd, ok := s.senders[n.Channel]
	if !ok {
		return "", fmt.Errorf("%w: %q", model.ErrUnknownChannel, n.Channel)
	}

	providerID, err := snd.Send(user, n)
	if err != nil {
		return "", fmt.Errorf("send notification: %w", err)
	}

	return providerID, nil
}

// ClaimProcessing marks a pending notification as processing so a single
// worker owns the delivery attempt.
func (s *Service) ClaimProcessing(ctx context.Context, strategy retry.Strategy, id uuid.UUID) error {
	if err := s.repo.ClaimProcessing(ctx, id); err != nil {
		return err
	}

	s.cacheStatus(ctx, strategy, id, model.StatusProcessing)

	return nil
}

// MarkDelivered transitions a notification to delivered.
func (s *Service) MarkDelivered(ctx context.Context, strategy retry.Strategy, id uuid.UUID) error {
	if err := s.repo.MarkDelivered(ctx, id); err != nil {
		return fmt.Errorf("mark notification delivered: %w", err)
	}

	s.cacheStatus(ctx, strategy, id, model.StatusDelivered)

	return nil
}

// MarkFailed records the outcome of failed delivery attempt number attempt
// (1-based). While the retry budget lasts the notification returns to
// pending with a next retry computed from the backoff policy; once the
// budget is exhausted it becomes failed with no next retry and the job is
// emitted on the DLQ. Reports whether the failure was terminal.
func (s *Service) MarkFailed(ctx context.Context, strategy retry.Strategy, n model.Notification, attempt int, cause error) (bool, error) {
	var (
		status    = model.StatusPending
		nextRetry *time.Time
	)

	terminal := attempt >= s.maxAttempts
	if terminal {
		status = model.StatusFailed
	} else {
		t := time.Now().Add(backoff.Delay(attempt - 1))
		nextRetry = &t
	}

	err := s.repo.UpdateDeliveryState(ctx, n.ID, status, attempt, nextRetry, cause.Error())
	if err != nil {
		return terminal, fmt.Errorf("mark notification failed: %w", err)
	}

	s.cacheStatus(ctx, strategy, n.ID, status)

	if terminal {
		msg := queue.DeliveryMessage{NotificationID: n.ID, Channel: n.Channel}
		if err := s.queue.PublishFailed(msg, strategy); err != nil {
			zlog.Logger.Error().Err(err).Str("id", n.ID.String()).Msg("failed to publish DLQ event")
		}
	}

	return terminal, nil
}

// RequeueDue republishes delivery jobs for pending notifications whose
// retry is due, reclaims records orphaned by an enqueue failure, and
// releases deliveries stuck in processing past the stale window. Returns
// the number of jobs republished.
func (s *Service) RequeueDue(ctx context.Context, strategy retry.Strategy, staleAfter time.Duration, batch int) (int, error) {
	now := time.Now()
	staleBefore := now.Add(-staleAfter)

	released, err := s.repo.ReleaseStaleProcessing(ctx, staleBefore)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to release stale processing notifications")
	} else if released > 0 {
		zlog.Logger.Warn().Int("count", released).Msg("released notifications stuck in processing")
	}

	due, err := s.repo.ListAwaitingRedelivery(ctx, now, staleBefore, batch)
	if err != nil {
		return 0, fmt.Errorf("list notifications awaiting redelivery: %w", err)
	}

	requeued := 0
	for _, n := range due {
		msg := queue.DeliveryMessage{NotificationID: n.ID, Channel: n.Channel}

		if err := s.queue.Publish(msg, strategy); err != nil {
			zlog.Logger.Error().Err(err).Str("id", n.ID.String()).Msg("failed to republish delivery job")
			continue
		}

		if err := s.repo.TouchRequeued(ctx, n.ID); err != nil {
			zlog.Logger.Error().Err(err).Str("id", n.ID.String()).Msg("failed to touch requeued notification")
		}

		requeued++
	}

	return requeued, nil
}

func (s *Service) cacheStatus(ctx context.Context, strategy retry.Strategy, id uuid.UUID, status model.Status) {
	if err := s.cache.SetWithRetry(ctx, strategy, id.String(), string(status)); err != nil {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to cache notification status")
	}
}
