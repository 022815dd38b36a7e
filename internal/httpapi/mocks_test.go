package httpapi

import (
	"context"
	"encoding/json"

	"marketplace-be/internal/checkout"
	"marketplace-be/internal/reservation"

	"github.com/stretchr/testify/mock"
)

type MockFinalizer struct {
	mock.Mock
}

func (m *MockFinalizer) Finalize(ctx context.Context, req checkout.Request) (*checkout.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*checkout.Result)
	return res, args.Error(1)
}

type MockSweeper struct {
	mock.Mock
}

func (m *MockSweeper) Sweep(ctx context.Context) (reservation.SweepResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(reservation.SweepResult), args.Error(1)
}

type MockWebhookRepository struct {
	mock.Mock
}

func (m *MockWebhookRepository) SaveWebhook(
	ctx context.Context,
	provider, eventID, eventType, sessionID string,
	payload json.RawMessage,
) (int64, bool, error) {
	args := m.Called(ctx, provider, eventID, eventType, sessionID, payload)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockWebhookRepository) MarkWebhookProcessed(ctx context.Context, webhookID int64) error {
	return m.Called(ctx, webhookID).Error(0)
}

func (m *MockWebhookRepository) MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error {
	return m.Called(ctx, webhookID, reason).Error(0)
}

type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}
