package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/wb-go/wbf/retry"

	mocks "github.com/adilzhm/notification-pipeline/internal/mocks/rabbitmq/handlers/delivery"
	"github.com/adilzhm/notification-pipeline/internal/model"
	"github.com/adilzhm/notification-pipeline/internal/rabbitmq/queue"
	notifrepo "github.com/adilzhm/notification-pipeline/internal/repository/notification"
)

var strategy = retry.Strategy{Attempts: 1, Delay: time.Millisecond}

func TestHandler_HandleMessage_EmailSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockService := mocks.NewMocknotificationService(ctrl)
	h := NewHandler(mockService)

	userID := uuid.New()
	n := model.Notification{
		ID:      uuid.New(),
		UserID:  userID,
		Channel: model.ChannelEmail,
		Message: "Hello",
		Status:  model.StatusPending,
	}
	u := model.User{ID: userID, Email: "test@example.com", Preferences: model.Preferences{Email: true}}

	mockService.EXPECT().GetByID(gomock.Any(), n.ID).Return(n, nil)
	mockService.EXPECT().ClaimProcessing(gomock.Any(), strategy, n.ID).Return(nil)
	mockService.EXPECT().GetUser(gomock.Any(), userID).Return(u, nil)
	mockService.EXPECT().Send(u, n).Return("msg-id-1", nil)
	mockService.EXPECT().MarkDelivered(gomock.Any(), strategy, n.ID).Return(nil)

	err := h.HandleMessage(context.Background(), queue.DeliveryMessage{NotificationID: n.ID, Channel: n.Channel}, strategy)
	assert.NoError(t, err)
}

func TestHandler_HandleMessage_InAppSkipsUserLookup(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockService := mocks.NewMocknotificationService(ctrl)
	h := NewHandler(mockService)

	n := model.Notification{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		Channel: model.ChannelInApp,
		Message: "Hello",
		Status:  model.StatusPending,
	}

	// In-app delivery is the persisted record itself; no recipient contact
	// details are needed.
	mockService.EXPECT().GetByID(gomock.Any(), n.ID).Return(n, nil)
	mockService.EXPECT().ClaimProcessing(gomock.Any(), strategy, n.ID).Return(nil)
	mockService.EXPECT().Send(model.User{}, n).Return("", nil)
	mockService.EXPECT().MarkDelivered(gomock.Any(), strategy, n.ID).Return(nil)

	err := h.HandleMessage(context.Background(), queue.DeliveryMessage{NotificationID: n.ID, Channel: n.Channel}, strategy)
	assert.NoError(t, err)
}

func TestHandler_HandleMessage_SendFailsSchedulesRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockService := mocks.NewMocknotificationService(ctrl)
	h := NewHandler(mockService)

	userID := uuid.New()
	n := model.Notification{
		ID:      uuid.New(),
		UserID:  userID,
		Channel: model.ChannelSMS,
		Status:  model.StatusPending,
	}
	u := model.User{ID: userID, Preferences: model.Preferences{SMS: true}}
	sendErr := errors.New("user does not have a phone number")

	mockService.EXPECT().GetByID(gomock.Any(), n.ID).Return(n, nil)
	mockService.EXPECT().ClaimProcessing(gomock.Any(), strategy, n.ID).Return(nil)
	mockService.EXPECT().GetUser(gomock.Any(), userID).Return(u, nil)
	mockService.EXPECT().Send(u, n).Return("", sendErr)
	mockService.EXPECT().MarkFailed(gomock.Any(), strategy, n, 1, sendErr).Return(false, nil)

	err := h.HandleMessage(context.Background(), queue.DeliveryMessage{NotificationID: n.ID, Channel: n.Channel}, strategy)
	assert.ErrorIs(t, err, sendErr)
}

func TestHandler_HandleMessage_ThirdFailureIsTerminal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockService := mocks.NewMocknotificationService(ctrl)
	h := NewHandler(mockService)

	userID := uuid.New()
	n := model.Notification{
		ID:         uuid.New(),
		UserID:     userID,
		Channel:    model.ChannelEmail,
		Status:     model.StatusPending,
		RetryCount: 2,
	}
	u := model.User{ID: userID, Email: "test@example.com"}
	sendErr := errors.New("smtp timeout")

	mockService.EXPECT().GetByID(gomock.Any(), n.ID).Return(n, nil)
	mockService.EXPECT().ClaimProcessing(gomock.Any(), strategy, n.ID).Return(nil)
	mockService.EXPECT().GetUser(gomock.Any(), userID).Return(u, nil)
	mockService.EXPECT().Send(u, n).Return("", sendErr)
	mockService.EXPECT().MarkFailed(gomock.Any(), strategy, n, 3, sendErr).Return(true, nil)

	err := h.HandleMessage(context.Background(), queue.DeliveryMessage{NotificationID: n.ID, Channel: n.Channel}, strategy)
	assert.ErrorIs(t, err, sendErr)
}

func TestHandler_HandleMessage_SkipsSettledNotification(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockService := mocks.NewMocknotificationService(ctrl)
	h := NewHandler(mockService)

	n := model.Notification{
		ID:      uuid.New(),
		Channel: model.ChannelEmail,
		Status:  model.StatusDelivered,
	}

	// A duplicated job for an already settled record is dropped without a
	// claim or send.
	mockService.EXPECT().GetByID(gomock.Any(), n.ID).Return(n, nil)

	err := h.HandleMessage(context.Background(), queue.DeliveryMessage{NotificationID: n.ID, Channel: n.Channel}, strategy)
	assert.NoError(t, err)
}

func TestHandler_HandleMessage_SkipsNotDueYet(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockService := mocks.NewMocknotificationService(ctrl)
	h := NewHandler(mockService)

	nextRetry := time.Now().Add(30 * time.Second)
	n := model.Notification{
		ID:         uuid.New(),
		Channel:    model.ChannelEmail,
		Status:     model.StatusPending,
		RetryCount: 1,
		NextRetry:  &nextRetry,
	}

	mockService.EXPECT().GetByID(gomock.Any(), n.ID).Return(n, nil)

	err := h.HandleMessage(context.Background(), queue.DeliveryMessage{NotificationID: n.ID, Channel: n.Channel}, strategy)
	assert.NoError(t, err)
}

func TestHandler_HandleMessage_ClaimLostToAnotherWorker(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockService := mocks.NewMocknotificationService(ctrl)
	h := NewHandler(mockService)

	n := model.Notification{
		ID:      uuid.New(),
		Channel: model.ChannelEmail,
		Status:  model.StatusPending,
	}

	mockService.EXPECT().GetByID(gomock.Any(), n.ID).Return(n, nil)
	mockService.EXPECT().ClaimProcessing(gomock.Any(), strategy, n.ID).Return(notifrepo.ErrNotPending)

	err := h.HandleMessage(context.Background(), queue.DeliveryMessage{NotificationID: n.ID, Channel: n.Channel}, strategy)
	assert.NoError(t, err)
}

func TestHandler_HandleMessage_GetByIDFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockService := mocks.NewMocknotificationService(ctrl)
	h := NewHandler(mockService)

	id := uuid.New()
	repoErr := errors.New("db down")

	mockService.EXPECT().GetByID(gomock.Any(), id).Return(model.Notification{}, repoErr)

	err := h.HandleMessage(context.Background(), queue.DeliveryMessage{NotificationID: id, Channel: model.ChannelEmail}, strategy)
	assert.ErrorIs(t, err, repoErr)
}
