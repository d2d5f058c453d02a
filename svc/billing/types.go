package billing

import "time"

// PricingModel decides what the remote quantity means.
type PricingModel string

const (
	// PricingPerSeat bills one unit per team; remote quantity equals the team limit.
	PricingPerSeat PricingModel = "per_seat"
	// PricingFlat bills a single unit regardless of the team limit.
	PricingFlat PricingModel = "flat"
)

// ChangeMode distinguishes deferred (no proration) from immediate team limit changes.
type ChangeMode string

const (
	ChangeDeferred  ChangeMode = "deferred"
	ChangeImmediate ChangeMode = "immediate"
)

type User struct {
	ID    int64
	Email string
}

// LeagueSeason is one billable period of one league.
type LeagueSeason struct {
	ID                  int64
	LeagueID            int64
	LeagueName          string
	Name                string
	SeasonStart         time.Time
	SeasonEnd           time.Time
	SubscriptionOpenAt  time.Time
	SubscriptionCloseAt time.Time
	ChangeDeadline      *time.Time // last moment the team limit may change for the current season
}

// Validate checks the window and deadline ordering.
func (s LeagueSeason) Validate() error {
	if s.SubscriptionCloseAt.Before(s.SubscriptionOpenAt) {
		return ErrInvalidSeason
	}
	if s.ChangeDeadline != nil && s.ChangeDeadline.Before(s.SubscriptionOpenAt) {
		return ErrInvalidSeason
	}
	return nil
}

// EnrollmentOpen reports whether now lies within the inclusive subscription window.
func (s LeagueSeason) EnrollmentOpen(now time.Time) bool {
	return !now.Before(s.SubscriptionOpenAt) && !now.After(s.SubscriptionCloseAt)
}

// ChangeDeadlinePassed is false when no deadline is set. The deadline instant itself is still allowed.
func (s LeagueSeason) ChangeDeadlinePassed(now time.Time) bool {
	return s.ChangeDeadline != nil && now.After(*s.ChangeDeadline)
}

// SeasonProduct binds a season to its Stripe price.
type SeasonProduct struct {
	ID             int64
	LeagueSeasonID int64
	PriceRef       string
	PricingModel   PricingModel
}

// PerSeat treats an unknown model as per-seat, the default product shape.
func (p *SeasonProduct) PerSeat() bool {
	return p == nil || p.PricingModel != PricingFlat
}

// Subscription is the local mirror of one remote subscription, unique per
// (user, league season).
type Subscription struct {
	ID                int64
	UserID            int64
	LeagueSeasonID    int64
	CustomerRef       string
	RemoteRef         string
	Status            Status
	TeamLimit         int64
	BilledTeamCount   *int64
	BillingStartAt    *time.Time
	CurrentPeriodEnd  *time.Time
	RemoteSyncPending bool       // local team limit not yet confirmed remotely
	RemoteSyncMode    ChangeMode // how the pending limit must be pushed; empty when nothing is pending
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

// markPending flags the local team limit as unconfirmed. A pending
// immediate change stays immediate so its proration is not lost.
func (s *Subscription) markPending(mode ChangeMode) {
	if s.RemoteSyncPending && s.RemoteSyncMode == ChangeImmediate {
		mode = ChangeImmediate
	}
	s.RemoteSyncPending = true
	s.RemoteSyncMode = mode
}

func (s *Subscription) settlePending() {
	s.RemoteSyncPending = false
	s.RemoteSyncMode = ""
}

// TeamChange is one append-only audit record of a team limit mutation.
type TeamChange struct {
	ID             int64
	SubscriptionID int64
	OldLimit       int64
	NewLimit       int64
	Actor          string
	Reason         string
	Mode           ChangeMode
	CreatedAt      time.Time
}

// SubscriptionView is a subscription joined with its league and season names.
type SubscriptionView struct {
	Subscription
	LeagueID   int64
	LeagueName string
	SeasonName string
}

// SubscriptionFilter narrows ListSubscriptions. Zero values are ignored.
type SubscriptionFilter struct {
	UserID         int64
	LeagueSeasonID int64
	UserEmail      string
}
