package httpapi_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/leaguebilling/svc/billing"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) CreateCheckout(ctx context.Context, in billing.CheckoutInput) (*billing.CheckoutResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutResult), args.Error(1)
}

func (m *MockService) GetSubscription(ctx context.Context, id int64) (*billing.SubscriptionView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.SubscriptionView), args.Error(1)
}

func (m *MockService) ListSubscriptions(ctx context.Context, filter billing.SubscriptionFilter) ([]billing.SubscriptionView, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.SubscriptionView), args.Error(1)
}

func (m *MockService) ListTeamChanges(ctx context.Context, subscriptionID int64) ([]billing.TeamChange, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.TeamChange), args.Error(1)
}

func (m *MockService) ChangeTeamLimit(ctx context.Context, req billing.TeamLimitChange) (*billing.Subscription, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *MockService) IncreaseTeamLimitNow(ctx context.Context, req billing.TeamLimitChange) (*billing.ImmediateIncreaseResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ImmediateIncreaseResult), args.Error(1)
}

func (m *MockService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	args := m.Called(ctx, payload, signature)
	return args.Error(0)
}
