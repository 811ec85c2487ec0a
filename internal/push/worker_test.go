package push

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"realtime-service/internal/mocks"
	"realtime-service/internal/models"
)

type stubSender struct {
	err  error
	jobs []Job
}

func (s *stubSender) Send(_ context.Context, job Job) error {
	s.jobs = append(s.jobs, job)
	return s.err
}

func encodeJob(t *testing.T, job Job) []byte {
	t.Helper()
	body, err := json.Marshal(job)
	require.NoError(t, err)
	return body
}

func TestWorkerHandleSuccessTouchesToken(t *testing.T) {
	sender := &stubSender{}
	tokens := new(mocks.DeviceTokenRepositoryMock)
	worker := NewWorker(sender, tokens, zap.NewNop())

	tokens.On("TouchToken", mock.Anything, "tok-1", mock.Anything).Return(nil).Once()

	err := worker.Handle(context.Background(), encodeJob(t, Job{NotificationID: "n1", Token: "tok-1", Platform: models.PlatformAndroid}))
	require.NoError(t, err)
	require.Len(t, sender.jobs, 1)
	assert.Equal(t, "n1", sender.jobs[0].NotificationID)
	tokens.AssertExpectations(t)
}

func TestWorkerHandleUnregisteredDeactivates(t *testing.T) {
	sender := &stubSender{err: fmt.Errorf("%w: gone", ErrTokenUnregistered)}
	tokens := new(mocks.DeviceTokenRepositoryMock)
	worker := NewWorker(sender, tokens, zap.NewNop())

	tokens.On("DeactivateToken", mock.Anything, "tok-2").Return(nil).Once()

	err := worker.Handle(context.Background(), encodeJob(t, Job{Token: "tok-2"}))
	require.NoError(t, err)
	tokens.AssertExpectations(t)
	tokens.AssertNotCalled(t, "TouchToken", mock.Anything, mock.Anything, mock.Anything)
}

func TestWorkerHandleGatewayError(t *testing.T) {
	sender := &stubSender{err: assert.AnError}
	tokens := new(mocks.DeviceTokenRepositoryMock)
	worker := NewWorker(sender, tokens, zap.NewNop())

	err := worker.Handle(context.Background(), encodeJob(t, Job{Token: "tok-3"}))
	assert.ErrorIs(t, err, assert.AnError)
	tokens.AssertNotCalled(t, "TouchToken", mock.Anything, mock.Anything, mock.Anything)
}

func TestWorkerHandleMalformed(t *testing.T) {
	worker := NewWorker(&stubSender{}, new(mocks.DeviceTokenRepositoryMock), zap.NewNop())

	assert.Error(t, worker.Handle(context.Background(), []byte("{")))
	assert.Error(t, worker.Handle(context.Background(), []byte(`{"notification_id":"n1"}`)))
}

func TestQueueEnqueuePublishesOnRoutingKey(t *testing.T) {
	pub := new(mocks.PublisherMock)
	queue := NewQueue(pub)
	job := Job{NotificationID: "n1", Token: "tok"}

	pub.On("Publish", mock.Anything, RoutingKey, job).Return(nil).Once()

	require.NoError(t, queue.Enqueue(context.Background(), job))
	pub.AssertExpectations(t)
}

func TestBuildMessagePerPlatform(t *testing.T) {
	android := buildMessage(Job{NotificationID: "n1", Token: "t", Platform: models.PlatformAndroid, Title: "hi", Data: map[string]string{"room_id": "r1"}})
	require.NotNil(t, android.Android)
	assert.Equal(t, "high", android.Android.Priority)
	assert.Equal(t, "n1", android.Data["notification_id"])
	assert.Equal(t, "r1", android.Data["room_id"])

	ios := buildMessage(Job{Token: "t", Platform: models.PlatformIOS})
	require.NotNil(t, ios.APNS)
	assert.Equal(t, "default", ios.APNS.Payload.Aps.Sound)

	web := buildMessage(Job{Token: "t", Platform: models.PlatformWeb, Title: "hi"})
	require.NotNil(t, web.Webpush)
	assert.Equal(t, "hi", web.Webpush.Notification.Title)
}
