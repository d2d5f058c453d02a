package billing

import (
	"context"
	"errors"

	"github.com/dmitrymomot/leaguebilling/pkg/logger"
)

const defaultReconcileBatch = 100

// DriftReport summarizes one ReconcileDrift pass.
type DriftReport struct {
	Checked  int `json:"checked"`
	Repaired int `json:"repaired"`
	InSync   int `json:"in_sync"`
	Failed   int `json:"failed"`
}

// ReconcileDrift replays local team limits the processor never confirmed.
// Per-subscription failures are counted and logged; only a failure to load
// the batch is returned.
func (s *Service) ReconcileDrift(ctx context.Context, limit int) (DriftReport, error) {
	var report DriftReport
	if limit <= 0 {
		limit = defaultReconcileBatch
	}

	pending, err := s.store.ListSyncPending(ctx, limit)
	if err != nil {
		return report, err
	}

	for i := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		sub := &pending[i]
		report.Checked++

		repaired, err := s.replay(ctx, sub)
		switch {
		case err != nil:
			report.Failed++
			s.metrics.remoteSyncFailures.WithLabelValues("reconcile").Inc()
			s.log.ErrorContext(ctx, "drift repair failed",
				logger.SubscriptionID(sub.ID), logger.RemoteRef(sub.RemoteRef), logger.Error(err))
		case repaired:
			report.Repaired++
			s.metrics.driftRepairs.Inc()
		default:
			report.InSync++
		}
	}

	if report.Checked > 0 {
		s.log.InfoContext(ctx, "drift reconciliation finished",
			"checked", report.Checked, "repaired", report.Repaired,
			"in_sync", report.InSync, "failed", report.Failed)
	}
	return report, nil
}

// replay pushes a pending team limit the way it was requested: deferred
// changes without proration, immediate ones prorated and invoiced at once.
// The pending flag is cleared once the remote quantity matches. repaired
// reports whether a push was needed.
func (s *Service) replay(ctx context.Context, sub *Subscription) (repaired bool, err error) {
	if sub.RemoteRef == "" {
		return false, s.clearPending(ctx, sub)
	}

	remote, err := s.remoteSubscription(ctx, sub.RemoteRef)
	if err != nil {
		return false, err
	}

	if st, ok := ParseStatus(remote.Status); ok && st.Terminal() {
		return false, s.clearPending(ctx, sub)
	}

	if remote.Quantity == sub.TeamLimit {
		return false, s.clearPending(ctx, sub)
	}
	if remote.ItemRef == "" {
		return false, ErrRemoteItemMissing
	}

	mode := sub.RemoteSyncMode
	proration := ProrationNone
	if mode == ChangeImmediate {
		proration = ProrationCreate
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
		return false, errors.Join(ErrGateway, err)
	}
	s.log.InfoContext(ctx, "remote quantity re-applied",
		logger.SubscriptionID(sub.ID), logger.RemoteRef(sub.RemoteRef),
		"remote_quantity", remote.Quantity, "team_limit", sub.TeamLimit, "sync_mode", mode)

	if err := s.clearPending(ctx, sub); err != nil {
		return true, err
	}
	if mode == ChangeImmediate {
		if _, err := s.collectProration(ctx, sub); err != nil {
			return true, err
		}
	}
	return true, nil
}
