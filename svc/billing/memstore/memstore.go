// Package memstore is an in-memory billing.Store. Transactions are
// serialized and run on a copy of the ledger that replaces it on commit.
// It enforces the same uniqueness rules as the Postgres store.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrymomot/leaguebilling/svc/billing"
)

type Store struct {
	mu   sync.Mutex
	data *ledger
}

var _ billing.Store = (*Store)(nil)

func New() *Store {
	return &Store{data: newLedger()}
}

// AddUser inserts or replaces a user.
func (s *Store) AddUser(u billing.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.users[u.ID] = u
}

// AddSeason inserts or replaces a league season after validating it.
func (s *Store) AddSeason(season billing.LeagueSeason) error {
	if err := season.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.seasons[season.ID] = cloneSeason(season)
	return nil
}

// SetSeasonProduct binds a product to its season, one per season.
func (s *Store) SetSeasonProduct(p billing.SeasonProduct) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.products[p.LeagueSeasonID] = p
}

func (s *Store) WithTx(ctx context.Context, fn func(q billing.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	draft := s.data.clone()
	if err := fn(draft); err != nil {
		return err
	}
	s.data = draft
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*billing.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetUser(ctx, id)
}

func (s *Store) GetSeason(ctx context.Context, id int64) (*billing.LeagueSeason, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetSeason(ctx, id)
}

func (s *Store) GetSeasonProduct(ctx context.Context, seasonID int64) (*billing.SeasonProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetSeasonProduct(ctx, seasonID)
}

func (s *Store) GetSubscription(ctx context.Context, id int64) (*billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetSubscription(ctx, id)
}

func (s *Store) FindSubscription(ctx context.Context, userID, seasonID int64) (*billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindSubscription(ctx, userID, seasonID)
}

func (s *Store) FindSubscriptionByRemoteRef(ctx context.Context, remoteRef string) (*billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindSubscriptionByRemoteRef(ctx, remoteRef)
}

func (s *Store) InsertSubscription(ctx context.Context, sub *billing.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.InsertSubscription(ctx, sub)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *billing.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateSubscription(ctx, sub)
}

func (s *Store) InsertTeamChange(ctx context.Context, change *billing.TeamChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.InsertTeamChange(ctx, change)
}

func (s *Store) GetSubscriptionView(ctx context.Context, id int64) (*billing.SubscriptionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetSubscriptionView(ctx, id)
}

func (s *Store) ListSubscriptions(ctx context.Context, filter billing.SubscriptionFilter) ([]billing.SubscriptionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListSubscriptions(ctx, filter)
}

func (s *Store) ListTeamChanges(ctx context.Context, subscriptionID int64) ([]billing.TeamChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListTeamChanges(ctx, subscriptionID)
}

func (s *Store) ListSyncPending(ctx context.Context, limit int) ([]billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListSyncPending(ctx, limit)
}

// ledger holds the tables. It implements billing.Queries without locking;
// callers hold Store.mu.
type ledger struct {
	users    map[int64]billing.User
	seasons  map[int64]billing.LeagueSeason
	products map[int64]billing.SeasonProduct
	subs     map[int64]billing.Subscription
	changes  []billing.TeamChange

	nextSubID    int64
	nextChangeID int64
}

func newLedger() *ledger {
	return &ledger{
		users:    make(map[int64]billing.User),
		seasons:  make(map[int64]billing.LeagueSeason),
		products: make(map[int64]billing.SeasonProduct),
		subs:     make(map[int64]billing.Subscription),
	}
}

func (l *ledger) clone() *ledger {
	c := &ledger{
		users:        make(map[int64]billing.User, len(l.users)),
		seasons:      make(map[int64]billing.LeagueSeason, len(l.seasons)),
		products:     make(map[int64]billing.SeasonProduct, len(l.products)),
		subs:         make(map[int64]billing.Subscription, len(l.subs)),
		changes:      slices.Clone(l.changes),
		nextSubID:    l.nextSubID,
		nextChangeID: l.nextChangeID,
	}
	for k, v := range l.users {
		c.users[k] = v
	}
	for k, v := range l.seasons {
		c.seasons[k] = v
	}
	for k, v := range l.products {
		c.products[k] = v
	}
	for k, v := range l.subs {
		c.subs[k] = cloneSubscription(v)
	}
	return c
}

func (l *ledger) GetUser(_ context.Context, id int64) (*billing.User, error) {
	u, ok := l.users[id]
	if !ok {
		return nil, billing.ErrUserNotFound
	}
	return &u, nil
}

func (l *ledger) GetSeason(_ context.Context, id int64) (*billing.LeagueSeason, error) {
	season, ok := l.seasons[id]
	if !ok {
		return nil, billing.ErrSeasonNotFound
	}
	season = cloneSeason(season)
	return &season, nil
}

func (l *ledger) GetSeasonProduct(_ context.Context, seasonID int64) (*billing.SeasonProduct, error) {
	p, ok := l.products[seasonID]
	if !ok {
		return nil, billing.ErrSeasonProductMissing
	}
	return &p, nil
}

func (l *ledger) GetSubscription(_ context.Context, id int64) (*billing.Subscription, error) {
	sub, ok := l.subs[id]
	if !ok || sub.DeletedAt != nil {
		return nil, billing.ErrSubscriptionNotFound
	}
	sub = cloneSubscription(sub)
	return &sub, nil
}

func (l *ledger) FindSubscription(_ context.Context, userID, seasonID int64) (*billing.Subscription, error) {
	for _, sub := range l.subs {
		if sub.DeletedAt == nil && sub.UserID == userID && sub.LeagueSeasonID == seasonID {
			sub = cloneSubscription(sub)
			return &sub, nil
		}
	}
	return nil, billing.ErrSubscriptionNotFound
}

func (l *ledger) FindSubscriptionByRemoteRef(_ context.Context, remoteRef string) (*billing.Subscription, error) {
	if remoteRef == "" {
		return nil, billing.ErrSubscriptionNotFound
	}
	for _, sub := range l.subs {
		if sub.DeletedAt == nil && sub.RemoteRef == remoteRef {
			sub = cloneSubscription(sub)
			return &sub, nil
		}
	}
	return nil, billing.ErrSubscriptionNotFound
}

func (l *ledger) InsertSubscription(_ context.Context, sub *billing.Subscription) error {
	if sub.TeamLimit < 1 {
		return billing.ErrInvalidTeamLimit
	}
	if _, ok := l.users[sub.UserID]; !ok {
		return billing.ErrUserNotFound
	}
	if _, ok := l.seasons[sub.LeagueSeasonID]; !ok {
		return billing.ErrSeasonNotFound
	}
	if l.conflicts(0, sub) {
		return billing.ErrDuplicateSubscription
	}

	l.nextSubID++
	sub.ID = l.nextSubID
	l.subs[sub.ID] = cloneSubscription(*sub)
	return nil
}

func (l *ledger) UpdateSubscription(_ context.Context, sub *billing.Subscription) error {
	cur, ok := l.subs[sub.ID]
	if !ok || cur.DeletedAt != nil {
		return billing.ErrSubscriptionNotFound
	}
	if sub.TeamLimit < 1 {
		return billing.ErrInvalidTeamLimit
	}
	if l.conflicts(sub.ID, sub) {
		return billing.ErrDuplicateSubscription
	}
	l.subs[sub.ID] = cloneSubscription(*sub)
	return nil
}

// conflicts reports whether sub collides with a live row other than self.
func (l *ledger) conflicts(self int64, sub *billing.Subscription) bool {
	for id, other := range l.subs {
		if id == self || other.DeletedAt != nil {
			continue
		}
		if other.UserID == sub.UserID && other.LeagueSeasonID == sub.LeagueSeasonID {
			return true
		}
		if sub.RemoteRef != "" && other.RemoteRef == sub.RemoteRef {
			return true
		}
	}
	return false
}

func (l *ledger) InsertTeamChange(_ context.Context, change *billing.TeamChange) error {
	if _, ok := l.subs[change.SubscriptionID]; !ok {
		return billing.ErrSubscriptionNotFound
	}
	l.nextChangeID++
	change.ID = l.nextChangeID
	l.changes = append(l.changes, *change)
	return nil
}

func (l *ledger) GetSubscriptionView(ctx context.Context, id int64) (*billing.SubscriptionView, error) {
	sub, err := l.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	v := l.view(*sub)
	return &v, nil
}

func (l *ledger) ListSubscriptions(_ context.Context, filter billing.SubscriptionFilter) ([]billing.SubscriptionView, error) {
	email := strings.ToLower(strings.TrimSpace(filter.UserEmail))

	out := make([]billing.SubscriptionView, 0)
	for _, sub := range l.subs {
		if sub.DeletedAt != nil {
			continue
		}
		if filter.UserID != 0 && sub.UserID != filter.UserID {
			continue
		}
		if filter.LeagueSeasonID != 0 && sub.LeagueSeasonID != filter.LeagueSeasonID {
			continue
		}
		if email != "" && strings.ToLower(l.users[sub.UserID].Email) != email {
			continue
		}
		out = append(out, l.view(cloneSubscription(sub)))
	}
	slices.SortFunc(out, func(a, b billing.SubscriptionView) int {
		return int(a.ID - b.ID)
	})
	return out, nil
}

func (l *ledger) ListTeamChanges(_ context.Context, subscriptionID int64) ([]billing.TeamChange, error) {
	out := make([]billing.TeamChange, 0)
	for _, c := range l.changes {
		if c.SubscriptionID == subscriptionID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (l *ledger) ListSyncPending(_ context.Context, limit int) ([]billing.Subscription, error) {
	out := make([]billing.Subscription, 0)
	for _, sub := range l.subs {
		if sub.DeletedAt == nil && sub.RemoteSyncPending {
			out = append(out, cloneSubscription(sub))
		}
	}
	slices.SortFunc(out, func(a, b billing.Subscription) int {
		return int(a.ID - b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *ledger) view(sub billing.Subscription) billing.SubscriptionView {
	season := l.seasons[sub.LeagueSeasonID]
	return billing.SubscriptionView{
		Subscription: sub,
		LeagueID:     season.LeagueID,
		LeagueName:   season.LeagueName,
		SeasonName:   season.Name,
	}
}

func cloneSubscription(sub billing.Subscription) billing.Subscription {
	sub.BilledTeamCount = clonePtr(sub.BilledTeamCount)
	sub.BillingStartAt = clonePtr(sub.BillingStartAt)
	sub.CurrentPeriodEnd = clonePtr(sub.CurrentPeriodEnd)
	sub.DeletedAt = clonePtr(sub.DeletedAt)
	return sub
}

func cloneSeason(s billing.LeagueSeason) billing.LeagueSeason {
	s.ChangeDeadline = clonePtr(s.ChangeDeadline)
	return s
}

func clonePtr[T int64 | time.Time](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
