package billing

import "context"

// Queries is the ledger surface used by the service. Inside WithTx the same
// methods run on the transaction and GetSubscription and both Find methods
// lock the returned row until commit.
type Queries interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	GetSeason(ctx context.Context, id int64) (*LeagueSeason, error)
	GetSeasonProduct(ctx context.Context, seasonID int64) (*SeasonProduct, error)

	GetSubscription(ctx context.Context, id int64) (*Subscription, error)
	FindSubscription(ctx context.Context, userID, seasonID int64) (*Subscription, error)
	FindSubscriptionByRemoteRef(ctx context.Context, remoteRef string) (*Subscription, error)

	// InsertSubscription sets ID. It returns ErrDuplicateSubscription when
	// (user, season) or the remote ref is already taken.
	InsertSubscription(ctx context.Context, sub *Subscription) error
	UpdateSubscription(ctx context.Context, sub *Subscription) error
	InsertTeamChange(ctx context.Context, change *TeamChange) error

	GetSubscriptionView(ctx context.Context, id int64) (*SubscriptionView, error)
	ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]SubscriptionView, error)
	ListTeamChanges(ctx context.Context, subscriptionID int64) ([]TeamChange, error)
	ListSyncPending(ctx context.Context, limit int) ([]Subscription, error)
}

// Store is the transactional ledger. fn's error rolls the transaction back
// and is returned unchanged.
type Store interface {
	Queries
	WithTx(ctx context.Context, fn func(q Queries) error) error
}

// SeasonCatalog resolves a season together with its product. The checkout
// path reads through it so a cache can sit in front of the store.
type SeasonCatalog interface {
	Season(ctx context.Context, seasonID int64) (*LeagueSeason, *SeasonProduct, error)
}

type storeCatalog struct {
	q Queries
}

// NewStoreCatalog reads seasons and products straight from the ledger.
func NewStoreCatalog(q Queries) SeasonCatalog {
	return storeCatalog{q: q}
}

func (c storeCatalog) Season(ctx context.Context, seasonID int64) (*LeagueSeason, *SeasonProduct, error) {
	season, err := c.q.GetSeason(ctx, seasonID)
	if err != nil {
		return nil, nil, err
	}
	product, err := c.q.GetSeasonProduct(ctx, seasonID)
	if err != nil {
		return nil, nil, err
	}
	return season, product, nil
}
