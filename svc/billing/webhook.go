package billing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/leaguebilling/pkg/logger"
)

// HandleWebhook verifies and applies one raw webhook delivery. Signature and
// decoding failures wrap ErrInvalidWebhook; any other error means the
// delivery should be retried by the processor.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.gateway.ParseWebhook(payload, signature, s.webhookSecret)
	if err != nil {
		return errors.Join(ErrInvalidWebhook, err)
	}
	return s.HandleEvent(ctx, ev)
}

// HandleEvent applies a verified event. Every branch is idempotent and safe
// under concurrent or out-of-order delivery. Unknown event types are
// acknowledged without action.
func (s *Service) HandleEvent(ctx context.Context, ev *Event) error {
	if ev == nil {
		return ErrInvalidWebhook
	}

	start := s.now()
	log := s.log.With(logger.EventID(ev.ID), logger.EventType(string(ev.Type)))

	var (
		outcome string
		err     error
	)
	switch ev.Type {
	case EventCheckoutCompleted:
		outcome, err = s.onCheckoutCompleted(ctx, log, ev.Checkout)
	case EventSubscriptionUpdated:
		outcome, err = s.onSubscriptionUpdated(ctx, log, ev.Subscription)
	case EventSubscriptionDeleted:
		outcome, err = s.onSubscriptionDeleted(ctx, log, ev.Subscription)
	case EventInvoicePaymentSucceeded:
		outcome, err = s.onInvoicePaid(ctx, log, ev.Invoice)
	case EventInvoiceUpcoming:
		outcome, err = s.onInvoiceUpcoming(ctx, log, ev.Invoice)
	default:
		outcome = outcomeIgnored
		log.DebugContext(ctx, "webhook event ignored")
	}

	if err != nil {
		outcome = outcomeFailed
		log.ErrorContext(ctx, "webhook event failed", logger.Error(err))
	}
	s.metrics.observeWebhook(ev.Type, outcome, s.now().Sub(start))
	return err
}

func (s *Service) onCheckoutCompleted(ctx context.Context, log *slog.Logger, c *CheckoutCompleted) (string, error) {
	if c == nil {
		log.WarnContext(ctx, "checkout completed event without session payload")
		return outcomeIgnored, nil
	}

	md, err := parseCheckoutMetadata(c.Metadata, c.ClientReferenceID)
	if err != nil || c.CustomerRef == "" || c.SubscriptionRef == "" {
		log.WarnContext(ctx, "checkout completed without reconciliation data",
			"session_id", c.SessionID, "customer_ref", c.CustomerRef,
			logger.RemoteRef(c.SubscriptionRef), logger.Error(err))
		return outcomeIgnored, nil
	}
	log = log.With(logger.UserID(md.UserID), logger.SeasonID(md.SeasonID), logger.RemoteRef(c.SubscriptionRef))

	if _, err := s.store.GetUser(ctx, md.UserID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			log.WarnContext(ctx, "checkout completed for unknown user")
			return outcomeIgnored, nil
		}
		return "", err
	}
	season, err := s.store.GetSeason(ctx, md.SeasonID)
	if err != nil {
		if errors.Is(err, ErrSeasonNotFound) {
			log.WarnContext(ctx, "checkout completed for unknown league season")
			return outcomeIgnored, nil
		}
		return "", err
	}

	// The checkout payload's quantity may already be stale, so read the
	// subscription itself. No transaction is open during the call.
	remote, err := s.remoteSubscription(ctx, c.SubscriptionRef)
	if err != nil {
		return "", err
	}

	outcome := outcomeApplied
	err = s.store.WithTx(ctx, func(q Queries) error {
		product, err := productFor(ctx, q, season.ID)
		if err != nil {
			return err
		}
		limit := remote.Quantity
		if !product.PerSeat() && md.TeamLimit > 0 {
			limit = md.TeamLimit
		}
		limit = max(limit, 1)
		now := s.now()

		existing, err := q.FindSubscription(ctx, md.UserID, md.SeasonID)
		switch {
		case errors.Is(err, ErrSubscriptionNotFound):
			sub := &Subscription{
				UserID:           md.UserID,
				LeagueSeasonID:   md.SeasonID,
				CustomerRef:      c.CustomerRef,
				RemoteRef:        c.SubscriptionRef,
				Status:           s.creationStatus(ctx, log, remote.Status),
				TeamLimit:        limit,
				BilledTeamCount:  &limit,
				BillingStartAt:   &season.SeasonStart,
				CurrentPeriodEnd: remote.CurrentPeriodEnd,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := q.InsertSubscription(ctx, sub); err != nil {
				return err
			}
			log.InfoContext(ctx, "subscription created from checkout",
				logger.SubscriptionID(sub.ID), "team_limit", limit, "status", sub.Status)
			return nil

		case err != nil:
			return err
		}

		if existing.RemoteRef != "" && existing.RemoteRef != c.SubscriptionRef {
			log.WarnContext(ctx, "checkout completed for a user and season already bound to another remote subscription",
				logger.SubscriptionID(existing.ID), "existing_remote_ref", existing.RemoteRef)
			outcome = outcomeIgnored
			return nil
		}

		changed := false
		if existing.CustomerRef != c.CustomerRef {
			existing.CustomerRef = c.CustomerRef
			changed = true
		}
		if existing.RemoteRef != c.SubscriptionRef {
			existing.RemoteRef = c.SubscriptionRef
			changed = true
		}
		if product.PerSeat() && s.adoptQuantity(ctx, log, existing, limit) {
			changed = true
		}
		if existing.BilledTeamCount == nil || *existing.BilledTeamCount != limit {
			existing.BilledTeamCount = &limit
			changed = true
		}
		if existing.BillingStartAt == nil {
			existing.BillingStartAt = &season.SeasonStart
			changed = true
		}
		if remote.CurrentPeriodEnd != nil && (existing.CurrentPeriodEnd == nil || !existing.CurrentPeriodEnd.Equal(*remote.CurrentPeriodEnd)) {
			existing.CurrentPeriodEnd = remote.CurrentPeriodEnd
			changed = true
		}
		if target, ok := s.reportedStatus(ctx, log, remote.Status); ok {
			if next, ok := syncStatus(ctx, existing.Status, target); ok && next != existing.Status {
				existing.Status = next
				changed = true
			}
		}

		if !changed {
			outcome = outcomeNoop
			return nil
		}
		existing.UpdatedAt = now

		if err := q.UpdateSubscription(ctx, existing); err != nil {
			return err
		}
		log.InfoContext(ctx, "subscription refreshed from checkout",
			logger.SubscriptionID(existing.ID), "team_limit", existing.TeamLimit, "status", existing.Status)
		return nil
	})

	if errors.Is(err, ErrDuplicateSubscription) {
		log.InfoContext(ctx, "concurrent checkout completion already recorded")
		return outcomeDuplicate, nil
	}
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *Service) onSubscriptionUpdated(ctx context.Context, log *slog.Logger, c *SubscriptionChange) (string, error) {
	if c == nil || c.SubscriptionRef == "" {
		log.WarnContext(ctx, "subscription updated event without subscription id")
		return outcomeIgnored, nil
	}
	log = log.With(logger.RemoteRef(c.SubscriptionRef))

	outcome := outcomeApplied
	err := s.store.WithTx(ctx, func(q Queries) error {
		sub, err := q.FindSubscriptionByRemoteRef(ctx, c.SubscriptionRef)
		if errors.Is(err, ErrSubscriptionNotFound) {
			log.DebugContext(ctx, "subscription updated for unknown remote subscription")
			outcome = outcomeIgnored
			return nil
		}
		if err != nil {
			return err
		}

		if sub.Status.Terminal() {
			log.InfoContext(ctx, "stale update for terminated subscription ignored",
				logger.SubscriptionID(sub.ID), "status", sub.Status, "reported_status", c.Status)
			outcome = outcomeIgnored
			return nil
		}

		changed := false
		if c.Status != "" {
			if target, ok := s.reportedStatus(ctx, log, c.Status); ok {
				if next, _ := syncStatus(ctx, sub.Status, target); next != sub.Status {
					sub.Status = next
					changed = true
				}
			}
		}

		if c.Quantity != nil && *c.Quantity >= 1 {
			product, err := productFor(ctx, q, sub.LeagueSeasonID)
			if err != nil {
				return err
			}
			if product.PerSeat() && s.adoptQuantity(ctx, log, sub, *c.Quantity) {
				changed = true
			}
		}

		if c.CurrentPeriodEnd != nil && (sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.Equal(*c.CurrentPeriodEnd)) {
			sub.CurrentPeriodEnd = c.CurrentPeriodEnd
			changed = true
		}

		if !changed {
			outcome = outcomeNoop
			return nil
		}
		sub.UpdatedAt = s.now()
		if err := q.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		log.InfoContext(ctx, "subscription synced from update",
			logger.SubscriptionID(sub.ID), "status", sub.Status, "team_limit", sub.TeamLimit)
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *Service) onSubscriptionDeleted(ctx context.Context, log *slog.Logger, c *SubscriptionChange) (string, error) {
	if c == nil || c.SubscriptionRef == "" {
		log.WarnContext(ctx, "subscription deleted event without subscription id")
		return outcomeIgnored, nil
	}
	log = log.With(logger.RemoteRef(c.SubscriptionRef))

	outcome := outcomeApplied
	err := s.store.WithTx(ctx, func(q Queries) error {
		sub, err := q.FindSubscriptionByRemoteRef(ctx, c.SubscriptionRef)
		if errors.Is(err, ErrSubscriptionNotFound) {
			outcome = outcomeIgnored
			return nil
		}
		if err != nil {
			return err
		}

		next := statusAfterDeletion(ctx, sub.Status)
		if next == sub.Status && !sub.RemoteSyncPending {
			outcome = outcomeNoop
			return nil
		}
		sub.Status = next
		sub.settlePending()
		sub.UpdatedAt = s.now()
		if err := q.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		log.InfoContext(ctx, "subscription canceled", logger.SubscriptionID(sub.ID))
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *Service) onInvoicePaid(ctx context.Context, log *slog.Logger, inv *InvoiceNotice) (string, error) {
	if inv == nil || inv.SubscriptionRef == "" {
		return outcomeIgnored, nil
	}
	log = log.With(logger.RemoteRef(inv.SubscriptionRef))

	outcome := outcomeApplied
	err := s.store.WithTx(ctx, func(q Queries) error {
		sub, err := q.FindSubscriptionByRemoteRef(ctx, inv.SubscriptionRef)
		if errors.Is(err, ErrSubscriptionNotFound) {
			outcome = outcomeIgnored
			return nil
		}
		if err != nil {
			return err
		}

		changed := false
		if sub.BillingStartAt == nil {
			start := inv.Created
			if start.IsZero() {
				start = s.now()
			}
			sub.BillingStartAt = &start
			changed = true
		}
		if next := statusAfterPayment(ctx, sub.Status); next != sub.Status {
			log.InfoContext(ctx, "unpaid subscription recovered", logger.SubscriptionID(sub.ID))
			sub.Status = next
			changed = true
		}

		if !changed {
			outcome = outcomeNoop
			return nil
		}
		sub.UpdatedAt = s.now()
		return q.UpdateSubscription(ctx, sub)
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// onInvoiceUpcoming pushes a pending local team limit before the processor
// drafts the next invoice.
func (s *Service) onInvoiceUpcoming(ctx context.Context, log *slog.Logger, inv *InvoiceNotice) (string, error) {
	if inv == nil || inv.SubscriptionRef == "" {
		return outcomeIgnored, nil
	}

	sub, err := s.store.FindSubscriptionByRemoteRef(ctx, inv.SubscriptionRef)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return outcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}
	if !sub.RemoteSyncPending {
		return outcomeNoop, nil
	}

	repaired, err := s.replay(ctx, sub)
	if err != nil {
		return "", err
	}
	if repaired {
		s.metrics.driftRepairs.Inc()
	}
	log.InfoContext(ctx, "pending team limit pushed before invoicing",
		logger.SubscriptionID(sub.ID), "team_limit", sub.TeamLimit)
	return outcomeApplied, nil
}

// adoptQuantity applies a remote quantity to sub. While a local change is
// pending, only a quantity equal to the pending limit confirms it; any other
// value is stale and the local limit is kept for replay.
func (s *Service) adoptQuantity(ctx context.Context, log *slog.Logger, sub *Subscription, quantity int64) bool {
	switch {
	case sub.RemoteSyncPending && quantity == sub.TeamLimit:
		sub.settlePending()
		return true
	case sub.RemoteSyncPending:
		log.InfoContext(ctx, "remote quantity differs from pending team limit, kept for replay",
			logger.SubscriptionID(sub.ID), "remote_quantity", quantity,
			"team_limit", sub.TeamLimit, "sync_mode", sub.RemoteSyncMode)
		return false
	case quantity != sub.TeamLimit:
		sub.TeamLimit = quantity
		return true
	}
	return false
}

// reportedStatus parses a remote status, logging values outside the enum.
func (s *Service) reportedStatus(ctx context.Context, log *slog.Logger, raw string) (Status, bool) {
	st, ok := ParseStatus(raw)
	if !ok && raw != "" {
		log.WarnContext(ctx, "unrecognized remote subscription status left unchanged", "reported_status", raw)
	}
	return st, ok
}

// creationStatus defaults to ACTIVE when the processor reports nothing.
func (s *Service) creationStatus(ctx context.Context, log *slog.Logger, raw string) Status {
	if raw == "" {
		return StatusActive
	}
	if st, ok := s.reportedStatus(ctx, log, raw); ok {
		return st
	}
	return StatusIncomplete
}
