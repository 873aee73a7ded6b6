package notification

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	mocks "github.com/adilzhm/notification-pipeline/internal/mocks/service/notification"
	"github.com/adilzhm/notification-pipeline/internal/model"
	"github.com/adilzhm/notification-pipeline/internal/rabbitmq/queue"
	"github.com/adilzhm/notification-pipeline/internal/repository/user"
)

type serviceMocks struct {
	repo  *mocks.MocknotificationRepository
	users *mocks.MockuserRepository
	queue *mocks.MockdeliveryPublisher
	cache *mocks.Mockcache
}

func setupService(t *testing.T, senders map[model.Channel]Sender) (*Service, serviceMocks) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	m := serviceMocks{
		repo:  mocks.NewMocknotificationRepository(ctrl),
		users: mocks.NewMockuserRepository(ctrl),
		queue: mocks.NewMockdeliveryPublisher(ctrl),
		cache: mocks.NewMockcache(ctrl),
	}

	return NewService(m.repo, m.users, m.queue, senders, m.cache, 3), m
}

var strategy = retry.Strategy{Attempts: 1, Delay: time.Millisecond}

func TestService_Submit_Success(t *testing.T) {
	svc, m := setupService(t, nil)

	userID := uuid.New()
	notifID := uuid.New()

	m.users.EXPECT().GetByID(gomock.Any(), userID).
		Return(model.User{ID: userID, Email: "a@example.com", Preferences: model.Preferences{Email: true}}, nil)

	m.repo.EXPECT().
		Create(gomock.Any(), model.Notification{
			UserID:   userID,
			Channel:  model.ChannelEmail,
			Message:  "Hello",
			Metadata: model.Metadata{},
			Status:   model.StatusPending,
		}).
		DoAndReturn(func(_ context.Context, n model.Notification) (model.Notification, error) {
			n.ID = notifID
			return n, nil
		})

	m.cache.EXPECT().SetWithRetry(gomock.Any(), strategy, notifID.String(), string(model.StatusPending)).Return(nil)
	m.queue.EXPECT().
		Publish(queue.DeliveryMessage{NotificationID: notifID, Channel: model.ChannelEmail}, strategy).
		Return(nil)

	got, err := svc.Submit(context.Background(), strategy, userID, model.ChannelEmail, "Hello", nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, notifID, got.ID)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Nil(t, got.NextRetry)
}

func TestService_Submit_PreferenceDisabledSkips(t *testing.T) {
	svc, m := setupService(t, nil)

	userID := uuid.New()

	m.users.EXPECT().GetByID(gomock.Any(), userID).
		Return(model.User{ID: userID, Preferences: model.Preferences{SMS: false}}, nil)

	// No record is created and no job is published.
	got, err := svc.Submit(context.Background(), strategy, userID, model.ChannelSMS, "Hello", nil)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestService_Submit_UserNotFound(t *testing.T) {
	svc, m := setupService(t, nil)

	userID := uuid.New()

	m.users.EXPECT().GetByID(gomock.Any(), userID).
		Return(model.User{}, user.ErrUserNotFound)

	got, err := svc.Submit(context.Background(), strategy, userID, model.ChannelEmail, "Hello", nil)
	assert.ErrorIs(t, err, user.ErrUserNotFound)
	assert.Nil(t, got)
}

func TestService_Submit_PublishFailure(t *testing.T) {
	svc, m := setupService(t, nil)

	userID := uuid.New()
	notifID := uuid.New()

	m.users.EXPECT().GetByID(gomock.Any(), userID).
		Return(model.User{ID: userID, Preferences: model.Preferences{InApp: true}}, nil)
	m.repo.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n model.Notification) (model.Notification, error) {
			n.ID = notifID
			return n, nil
		})
	m.cache.EXPECT().SetWithRetry(gomock.Any(), strategy, notifID.String(), string(model.StatusPending)).Return(nil)
	m.queue.EXPECT().Publish(gomock.Any(), strategy).Return(errors.New("broker down"))

	// The created record is orphaned but the failure is surfaced; the
	// redelivery sweep picks the record up later.
	got, err := svc.Submit(context.Background(), strategy, userID, model.ChannelInApp, "Hello", nil)
	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestService_ListForUser_Pagination(t *testing.T) {
	svc, m := setupService(t, nil)

	userID := uuid.New()

	page1 := make([]model.Notification, 50)
	m.repo.EXPECT().ListInAppByUser(gomock.Any(), userID, 50, 0).Return(page1, nil)
	m.repo.EXPECT().CountInAppByUser(gomock.Any(), userID).Return(125, nil)

	list, pagination, err := svc.ListForUser(context.Background(), userID, 1, 50)
	require.NoError(t, err)
	assert.Len(t, list, 50)
	assert.Equal(t, 125, pagination.Total)
	assert.Equal(t, 3, pagination.TotalPages)
	assert.True(t, pagination.HasNextPage)
	assert.False(t, pagination.HasPrevPage)

	page3 := make([]model.Notification, 25)
	m.repo.EXPECT().ListInAppByUser(gomock.Any(), userID, 50, 100).Return(page3, nil)
	m.repo.EXPECT().CountInAppByUser(gomock.Any(), userID).Return(125, nil)

	list, pagination, err = svc.ListForUser(context.Background(), userID, 3, 50)
	require.NoError(t, err)
	assert.Len(t, list, 25)
	assert.False(t, pagination.HasNextPage)
	assert.True(t, pagination.HasPrevPage)
}

func TestService_ListForUser_Defaults(t *testing.T) {
	svc, m := setupService(t, nil)

	userID := uuid.New()

	m.repo.EXPECT().ListInAppByUser(gomock.Any(), userID, DefaultLimit, 0).Return(nil, nil)
	m.repo.EXPECT().CountInAppByUser(gomock.Any(), userID).Return(0, nil)

	_, pagination, err := svc.ListForUser(context.Background(), userID, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, DefaultPage, pagination.Page)
	assert.Equal(t, DefaultLimit, pagination.Limit)
	assert.Equal(t, 0, pagination.TotalPages)
}

func TestService_ListForUser_ClampsExtremeValues(t *testing.T) {
	svc, m := setupService(t, nil)

	userID := uuid.New()

	// Absurd query values must not turn into a negative OFFSET.
	m.repo.EXPECT().
		ListInAppByUser(gomock.Any(), userID, MaxLimit, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, limit, offset int) ([]model.Notification, error) {
			assert.Equal(t, MaxLimit, limit)
			assert.GreaterOrEqual(t, offset, 0)
			return nil, nil
		})
	m.repo.EXPECT().CountInAppByUser(gomock.Any(), userID).Return(0, nil)

	_, pagination, err := svc.ListForUser(context.Background(), userID, math.MaxInt, math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, pagination.Limit)
}

func TestService_MarkFailed_SchedulesRetry(t *testing.T) {
	svc, m := setupService(t, nil)

	n := model.Notification{ID: uuid.New(), Channel: model.ChannelSMS}
	cause := errors.New("user does not have a phone number")

	m.repo.EXPECT().
		UpdateDeliveryState(gomock.Any(), n.ID, model.StatusPending, 1, gomock.Any(), cause.Error()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, _ model.Status, _ int, nextRetry *time.Time, _ string) error {
			require.NotNil(t, nextRetry)

			// First retry lands base delay + jitter out: 5-6s.
			delay := time.Until(*nextRetry)
			assert.Greater(t, delay, 4*time.Second)
			assert.Less(t, delay, 6*time.Second)
			return nil
		})
	m.cache.EXPECT().SetWithRetry(gomock.Any(), strategy, n.ID.String(), string(model.StatusPending)).Return(nil)

	terminal, err := svc.MarkFailed(context.Background(), strategy, n, 1, cause)
	assert.NoError(t, err)
	assert.False(t, terminal)
}

func TestService_MarkFailed_ExhaustedBudget(t *testing.T) {
	svc, m := setupService(t, nil)

	n := model.Notification{ID: uuid.New(), Channel: model.ChannelEmail}
	cause := errors.New("smtp timeout")

	var capturedNextRetry *time.Time
	m.repo.EXPECT().
		UpdateDeliveryState(gomock.Any(), n.ID, model.StatusFailed, 3, gomock.Any(), cause.Error()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, _ model.Status, _ int, nextRetry *time.Time, _ string) error {
			capturedNextRetry = nextRetry
			return nil
		})
	m.cache.EXPECT().SetWithRetry(gomock.Any(), strategy, n.ID.String(), string(model.StatusFailed)).Return(nil)
	m.queue.EXPECT().
		PublishFailed(queue.DeliveryMessage{NotificationID: n.ID, Channel: model.ChannelEmail}, strategy).
		Return(nil)

	terminal, err := svc.MarkFailed(context.Background(), strategy, n, 3, cause)
	assert.NoError(t, err)
	assert.True(t, terminal)
	assert.Nil(t, capturedNextRetry)
}

func TestService_Send_UnknownChannel(t *testing.T) {
	svc, _ := setupService(t, map[model.Channel]Sender{})

	_, err := svc.Send(model.User{}, model.Notification{Channel: model.ChannelEmail})
	assert.ErrorIs(t, err, model.ErrUnknownChannel)
}

func TestService_Send_DispatchesByChannel(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	emailSender := mocks.NewMockSender(ctrl)

	svc, _ := setupService(t, map[model.Channel]Sender{model.ChannelEmail: emailSender})

	u := model.User{Email: "a@example.com"}
	n := model.Notification{ID: uuid.New(), Channel: model.ChannelEmail, Message: "Hello"}

	emailSender.EXPECT().Send(u, n).Return("msg-id-1", nil)

	providerID, err := svc.Send(u, n)
	assert.NoError(t, err)
	assert.Equal(t, "msg-id-1", providerID)
}

func TestService_RequeueDue(t *testing.T) {
	svc, m := setupService(t, nil)

	due := []model.Notification{
		{ID: uuid.New(), Channel: model.ChannelEmail},
		{ID: uuid.New(), Channel: model.ChannelSMS},
	}

	m.repo.EXPECT().ReleaseStaleProcessing(gomock.Any(), gomock.Any()).Return(0, nil)
	m.repo.EXPECT().ListAwaitingRedelivery(gomock.Any(), gomock.Any(), gomock.Any(), 100).Return(due, nil)

	for _, n := range due {
		m.queue.EXPECT().
			Publish(queue.DeliveryMessage{NotificationID: n.ID, Channel: n.Channel}, strategy).
			Return(nil)
		m.repo.EXPECT().TouchRequeued(gomock.Any(), n.ID).Return(nil)
	}

	requeued, err := svc.RequeueDue(context.Background(), strategy, 5*time.Minute, 100)
	assert.NoError(t, err)
	assert.Equal(t, 2, requeued)
}

func TestService_RequeueDue_PublishFailureSkipsRecord(t *testing.T) {
	svc, m := setupService(t, nil)

	due := []model.Notification{
		{ID: uuid.New(), Channel: model.ChannelEmail},
		{ID: uuid.New(), Channel: model.ChannelInApp},
	}

	m.repo.EXPECT().ReleaseStaleProcessing(gomock.Any(), gomock.Any()).Return(0, nil)
	m.repo.EXPECT().ListAwaitingRedelivery(gomock.Any(), gomock.Any(), gomock.Any(), 100).Return(due, nil)

	m.queue.EXPECT().
		Publish(queue.DeliveryMessage{NotificationID: due[0].ID, Channel: due[0].Channel}, strategy).
		Return(errors.New("broker down"))
	m.queue.EXPECT().
		Publish(queue.DeliveryMessage{NotificationID: due[1].ID, Channel: due[1].Channel}, strategy).
		Return(nil)
	m.repo.EXPECT().TouchRequeued(gomock.Any(), due[1].ID).Return(nil)

	requeued, err := svc.RequeueDue(context.Background(), strategy, 5*time.Minute, 100)
	assert.NoError(t, err)
	assert.Equal(t, 1, requeued)
}
