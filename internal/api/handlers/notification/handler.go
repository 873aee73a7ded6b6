package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/adilzhm/notification-pipeline/internal/api/respond"
	"github.com/adilzhm/notification-pipeline/internal/config"
	"github.com/adilzhm/notification-pipeline/internal/model"
	notifrepo "github.com/adilzhm/notification-pipeline/internal/repository/notification"
	"github.com/adilzhm/notification-pipeline/internal/repository/user"
	notifsvc "github.com/adilzhm/notification-pipeline/internal/service/notification"
)

// notificationService defines the interface that the Handler depends on.
//
//go:generate mockgen -source=handler.go -destination=../../../mocks/api/handlers/notification/mock.go -package=mocks
type notificationService interface {
	Submit(ctx context.Context, strategy retry.Strategy, userID uuid.UUID, channel model.Channel, message string, metadata model.Metadata) (*model.Notification, error)
	ListForUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.Notification, notifsvc.Pagination, error)
	GetStatusByID(ctx context.Context, strategy retry.Strategy, id uuid.UUID) (model.Status, error)
}

// Handler handles HTTP requests related to notifications.
type Handler struct {
	service   notificationService
	validator *validator.Validate
	cfg       *config.Config
}

// NewHandler creates a new Handler instance.
func NewHandler(
	s notificationService,
	v *validator.Validate,
	cfg *config.Config,
) *Handler {
	return &Handler{service: s, validator: v, cfg: cfg}
}

// CreateRequest represents the JSON body expected in a notification
// creation request.
type CreateRequest struct {
	UserID   string            `json:"user_id" validate:"required,uuid4"`
	Channel  string            `json:"channel" validate:"required,oneof=email sms in-app"`
	Message  string            `json:"message" validate:"required"`
	Metadata map[string]string `json:"metadata"`
}

// Create handles POST requests to submit a new notification.
//
// It returns the created record, or a null body when the user's channel
// preference silently skipped the notification.
func (h *Handler) Create(c *ginext.Context) {
	var req CreateRequest

	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to decode request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	if err := h.validator.Struct(req); err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to validate request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("user_id", req.UserID).Msg("failed to parse user id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid user id"))
		return
	}

	channel, err := model.ParseChannel(req.Channel)
	if err != nil {
		respond.Fail(c.Writer, http.StatusBadRequest, err)
		return
	}

	notif, err := h.service.Submit(
		c.Request.Context(), h.cfg.Retry,
		userID, channel, req.Message, req.Metadata,
	)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			zlog.Logger.Warn().Str("user_id", req.UserID).Msg("user not found")
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("user not found"))
			return
		}

		zlog.Logger.Error().Err(err).Str("user_id", req.UserID).Msg("failed to submit notification")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	// notif is nil when the user's preference disabled the channel;
	// that is a skip, not an error.
	respond.Created(c.Writer, notif)
}

// ListForUser handles GET requests for a user's in-app notifications.
func (h *Handler) ListForUser(c *ginext.Context) {
	idStr := c.Param("id")
	userID, err := uuid.Parse(idStr)
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("id", idStr).Msg("failed to parse user id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid user id"))
		return
	}

	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	notifications, pagination, err := h.service.ListForUser(c.Request.Context(), userID, page, limit)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to list notifications")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	if notifications == nil {
		notifications = []model.Notification{}
	}

	respond.Paginated(c.Writer, notifications, pagination)
}

// GetStatus handles GET requests for the status of a notification.
func (h *Handler) GetStatus(c *ginext.Context) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("id", idStr).Msg("failed to parse id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid id"))
		return
	}

	status, err := h.service.GetStatusByID(c.Request.Context(), h.cfg.Retry, id)
	if err != nil {
		if errors.Is(err, notifrepo.ErrNotificationNotFound) {
			zlog.Logger.Warn().Str("id", id.String()).Msg("notification not found")
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("notification not found"))
			return
		}

		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to get notification status")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, status)
}
