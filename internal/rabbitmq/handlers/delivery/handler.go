package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/adilzhm/notification-pipeline/internal/model"
	"github.com/adilzhm/notification-pipeline/internal/rabbitmq/queue"
	notifrepo "github.com/adilzhm/notification-pipeline/internal/repository/notification"
)

//go:generate mockgen -source=handler.go -destination=../../../mocks/rabbitmq/handlers/delivery/mock.go -package=mocks
type notificationService interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Notification, error)
	GetUser(ctx context.Context, id uuid.UUID) (model.User, error)
	Send(user model.User, n model.Notification) (string, error)
	ClaimProcessing(ctx context.Context, strategy retry.Strategy, id uuid.UUID) error
	MarkDelivered(ctx context.Context, strategy retry.Strategy, id uuid.UUID) error
	MarkFailed(ctx context.Context, strategy retry.Strategy, n model.Notification, attempt int, cause error) (bool, error)
}

// Handler processes one delivery job: it resolves the notification and its
// recipient, performs the channel-specific send and applies the resulting
// status transition.
type Handler struct {
	service notificationService
}

func NewHandler(svc notificationService) *Handler {
	return &Handler{
		service: svc,
	}
}

// HandleMessage is invoked once per delivered job. The returned error is
// the re-raised delivery failure; the job itself is not retried through the
// queue, redelivery is scheduled off the record's next_retry field.
func (h *Handler) HandleMessage(ctx context.Context, msg queue.DeliveryMessage, strategy retry.Strategy) error {
	id := msg.NotificationID
	zlog.Logger.Info().Str("id", id.String()).Str("channel", msg.Channel.String()).Msg("processing notification")

	n, err := h.service.GetByID(ctx, id)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to resolve notification")
		return err
	}

	// The record owns retry state; a stale or duplicated job must not
	// override it.
	if n.Status.Terminal() {
		zlog.Logger.Info().Str("id", id.String()).Str("status", string(n.Status)).Msg("notification already settled, skipping")
		return nil
	}

	if n.NextRetry != nil && n.NextRetry.After(time.Now()) {
		zlog.Logger.Info().Str("id", id.String()).Time("next_retry", *n.NextRetry).Msg("notification not due yet, skipping")
		return nil
	}

	if err := h.service.ClaimProcessing(ctx, strategy, n.ID); err != nil {
		if errors.Is(err, notifrepo.ErrNotPending) {
			zlog.Logger.Info().Str("id", id.String()).Msg("notification claimed elsewhere, skipping")
			return nil
		}

		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to claim notification")
		return err
	}

	var user model.User
	if n.Channel != model.ChannelInApp {
		user, err = h.service.GetUser(ctx, n.UserID)
		if err != nil {
			return h.fail(ctx, strategy, n, err)
		}
	}

	providerID, err := h.service.Send(user, n)
	if err != nil {
		return h.fail(ctx, strategy, n, err)
	}

	if err := h.service.MarkDelivered(ctx, strategy, n.ID); err != nil {
		// Sent but not recorded: the record stays processing until the
		// stale sweep releases it. At-least-once, not exactly-once.
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to mark notification delivered")
		return err
	}

	zlog.Logger.Info().
		Str("id", id.String()).
		Str("channel", n.Channel.String()).
		Str("provider_id", providerID).
		Msg("notification delivered")

	return nil
}

func (h *Handler) fail(ctx context.Context, strategy retry.Strategy, n model.Notification, cause error) error {
	attempt := n.RetryCount + 1

	terminal, err := h.service.MarkFailed(ctx, strategy, n, attempt, cause)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("id", n.ID.String()).Msg("failed to record delivery failure")
		return cause
	}

	if terminal {
		zlog.Logger.Error().Err(cause).Str("id", n.ID.String()).Int("attempt", attempt).Msg("notification failed permanently")
	} else {
		zlog.Logger.Warn().Err(cause).Str("id", n.ID.String()).Int("attempt", attempt).Msg("delivery attempt failed, retry scheduled")
	}

	return cause
}
