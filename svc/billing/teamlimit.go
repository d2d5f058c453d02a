package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrymomot/leaguebilling/pkg/logger"
)

const defaultActor = "user"

// TeamLimitChange requests a new team limit for one subscription.
type TeamLimitChange struct {
	SubscriptionID int64
	TeamLimit      int64
	Actor          string // "user", "admin", ...; defaults to "user"
	Reason         string
}

func (c TeamLimitChange) actor() string {
	if a := strings.TrimSpace(c.Actor); a != "" {
		return a
	}
	return defaultActor
}

// ImmediateIncreaseResult is the committed subscription plus the invoice that
// charged the prorated difference.
type ImmediateIncreaseResult struct {
	Subscription *Subscription
	Invoice      *Invoice
}

// ChangeTeamLimit records a deferred team limit change that takes effect on
// the next renewal without proration. The local row and its audit record
// commit first; for per-seat subscriptions the new quantity is then pushed
// to the processor. A failed push leaves the row marked pending and returns
// ErrRemoteSyncFailed together with the cause.
func (s *Service) ChangeTeamLimit(ctx context.Context, req TeamLimitChange) (*Subscription, error) {
	sub, err := s.changeTeamLimit(ctx, req)
	s.metrics.teamLimitChanges.WithLabelValues(string(ChangeDeferred), changeOutcome(err)).Inc()
	return sub, err
}

func (s *Service) changeTeamLimit(ctx context.Context, req TeamLimitChange) (*Subscription, error) {
	if req.SubscriptionID <= 0 {
		return nil, ErrInvalidInput
	}
	if req.TeamLimit < 1 {
		return nil, ErrInvalidTeamLimit
	}

	var sub *Subscription
	err := s.store.WithTx(ctx, func(q Queries) error {
		var err error
		sub, err = q.GetSubscription(ctx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if sub.Status.Terminal() {
			return ErrSubscriptionInactive
		}

		season, err := q.GetSeason(ctx, sub.LeagueSeasonID)
		if err != nil {
			return err
		}
		now := s.now()
		if season.ChangeDeadlinePassed(now) {
			return ErrChangeDeadlinePassed
		}

		if sub.TeamLimit == req.TeamLimit {
			return nil
		}

		product, err := productFor(ctx, q, sub.LeagueSeasonID)
		if err != nil {
			return err
		}

		old := sub.TeamLimit
		sub.TeamLimit = req.TeamLimit
		sub.UpdatedAt = now
		if product.PerSeat() && sub.RemoteRef != "" {
			sub.markPending(ChangeDeferred)
		}
		if err := q.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		return q.InsertTeamChange(ctx, &TeamChange{
			SubscriptionID: sub.ID,
			OldLimit:       old,
			NewLimit:       req.TeamLimit,
			Actor:          req.actor(),
			Reason:         req.Reason,
			Mode:           ChangeDeferred,
			CreatedAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}

	if !sub.RemoteSyncPending {
		return sub, nil
	}

	log := s.log.With(logger.SubscriptionID(sub.ID), logger.RemoteRef(sub.RemoteRef))
	if _, err := s.replay(ctx, sub); err != nil {
		s.metrics.remoteSyncFailures.WithLabelValues("deferred_change").Inc()
		log.ErrorContext(ctx, "team limit saved but remote quantity not confirmed",
			"team_limit", sub.TeamLimit, "sync_mode", sub.RemoteSyncMode, logger.Error(err))
		return sub, errors.Join(ErrRemoteSyncFailed, err)
	}

	log.InfoContext(ctx, "team limit changed", "team_limit", sub.TeamLimit, "mode", ChangeDeferred)
	return sub, nil
}

// IncreaseTeamLimitNow raises the limit of a per-seat subscription right
// away: the prorated difference is invoiced and paid immediately. Decreases
// are never immediate. The season change deadline does not apply.
func (s *Service) IncreaseTeamLimitNow(ctx context.Context, req TeamLimitChange) (*ImmediateIncreaseResult, error) {
	res, err := s.increaseTeamLimitNow(ctx, req)
	s.metrics.teamLimitChanges.WithLabelValues(string(ChangeImmediate), changeOutcome(err)).Inc()
	return res, err
}

func (s *Service) increaseTeamLimitNow(ctx context.Context, req TeamLimitChange) (*ImmediateIncreaseResult, error) {
	if req.SubscriptionID <= 0 {
		return nil, ErrInvalidInput
	}
	if req.TeamLimit < 1 {
		return nil, ErrInvalidTeamLimit
	}

	var sub *Subscription
	err := s.store.WithTx(ctx, func(q Queries) error {
		var err error
		sub, err = q.GetSubscription(ctx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if req.TeamLimit < sub.TeamLimit {
			return ErrImmediateDecrease
		}
		if sub.Status.Terminal() {
			return ErrSubscriptionInactive
		}

		product, err := productFor(ctx, q, sub.LeagueSeasonID)
		if err != nil {
			return err
		}
		if !product.PerSeat() {
			return ErrFlatPricing
		}
		if req.TeamLimit == sub.TeamLimit {
			return ErrNoIncrease
		}
		if sub.RemoteRef == "" {
			return ErrSubscriptionInactive
		}

		now := s.now()
		old := sub.TeamLimit
		sub.TeamLimit = req.TeamLimit
		sub.markPending(ChangeImmediate)
		sub.UpdatedAt = now
		if err := q.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		return q.InsertTeamChange(ctx, &TeamChange{
			SubscriptionID: sub.ID,
			OldLimit:       old,
			NewLimit:       req.TeamLimit,
			Actor:          req.actor(),
			Reason:         req.Reason,
			Mode:           ChangeImmediate,
			CreatedAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}

	log := s.log.With(logger.SubscriptionID(sub.ID), logger.RemoteRef(sub.RemoteRef))
	res := &ImmediateIncreaseResult{Subscription: sub}

	if err := s.pushQuantity(ctx, sub, ProrationCreate); err != nil {
		s.metrics.remoteSyncFailures.WithLabelValues("immediate_increase").Inc()
		log.ErrorContext(ctx, "team limit raised locally but remote quantity not updated",
			"team_limit", sub.TeamLimit, logger.Error(err))
		return res, errors.Join(ErrRemoteSyncFailed, err)
	}
	if err := s.clearPending(ctx, sub); err != nil {
		log.WarnContext(ctx, "remote quantity updated but pending flag not cleared", logger.Error(err))
	}

	if res.Invoice, err = s.collectProration(ctx, sub); err != nil {
		return res, errors.Join(ErrRemoteSyncFailed, err)
	}

	log.InfoContext(ctx, "team limit increased immediately",
		"team_limit", sub.TeamLimit, "invoice_ref", res.Invoice.Ref, "mode", ChangeImmediate)
	return res, nil
}

// pushQuantity writes sub.TeamLimit to the remote subscription item while
// keeping the billing anchor.
func (s *Service) pushQuantity(ctx context.Context, sub *Subscription, proration ProrationBehavior) error {
	remote, err := s.remoteSubscription(ctx, sub.RemoteRef)
	if err != nil {
		return err
	}
	if remote.ItemRef == "" {
		return ErrRemoteItemMissing
	}

	update := QuantityUpdate{
		SubscriptionRef:   sub.RemoteRef,
		ItemRef:           remote.ItemRef,
		Quantity:          sub.TeamLimit,
		Proration:         proration,
		KeepBillingAnchor: true,
	}
	err = s.callGateway(ctx, func(ctx context.Context) error {
		return s.gateway.SetSubscriptionQuantity(ctx, update)
	})
	if err != nil {
		return errors.Join(ErrGateway, err)
	}
	return nil
}

// collectProration invoices and pays the prorations of an immediate
// increase. When it fails the prorations stay on the customer and are billed
// with the next regular invoice.
func (s *Service) collectProration(ctx context.Context, sub *Subscription) (*Invoice, error) {
	var inv *Invoice
	err := s.callGateway(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.gateway.CreateAndPayInvoice(ctx, sub.CustomerRef)
		return err
	})
	if err != nil {
		s.metrics.remoteSyncFailures.WithLabelValues("proration_invoice").Inc()
		s.log.ErrorContext(ctx, "prorated invoice not collected",
			logger.SubscriptionID(sub.ID), logger.RemoteRef(sub.RemoteRef), logger.Error(err))
		return nil, errors.Join(ErrGateway, err)
	}
	return inv, nil
}

// clearPending drops the pending flag unless the limit moved again since
// the push.
func (s *Service) clearPending(ctx context.Context, pushed *Subscription) error {
	return s.store.WithTx(ctx, func(q Queries) error {
		cur, err := q.GetSubscription(ctx, pushed.ID)
		if err != nil {
			return err
		}
		if !cur.RemoteSyncPending || cur.TeamLimit != pushed.TeamLimit {
			return nil
		}
		cur.settlePending()
		cur.UpdatedAt = s.now()
		if err := q.UpdateSubscription(ctx, cur); err != nil {
			return err
		}
		pushed.settlePending()
		pushed.UpdatedAt = cur.UpdatedAt
		return nil
	})
}

func changeOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeApplied
	case errors.Is(err, ErrRemoteSyncFailed):
		return outcomeFailed
	default:
		return outcomeRejected
	}
}
