package billing

import "context"

// GetSubscription returns one subscription with its league and season names.
func (s *Service) GetSubscription(ctx context.Context, id int64) (*SubscriptionView, error) {
	if id <= 0 {
		return nil, ErrSubscriptionNotFound
	}
	return s.store.GetSubscriptionView(ctx, id)
}

func (s *Service) ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]SubscriptionView, error) {
	return s.store.ListSubscriptions(ctx, filter)
}

// ListTeamChanges returns the audit trail oldest first.
func (s *Service) ListTeamChanges(ctx context.Context, subscriptionID int64) ([]TeamChange, error) {
	if subscriptionID <= 0 {
		return nil, ErrSubscriptionNotFound
	}
	if _, err := s.store.GetSubscription(ctx, subscriptionID); err != nil {
		return nil, err
	}
	return s.store.ListTeamChanges(ctx, subscriptionID)
}
