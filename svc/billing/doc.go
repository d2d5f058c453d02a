// Package billing keeps a local ledger of per-season team subscriptions in
// step with a remote payment processor.
//
// A user enrolls in a league season through a hosted checkout session.
// CreateCheckout only validates the request and opens the session; the
// subscription row is written when the processor reports the completed
// checkout through HandleWebhook. Webhook handling is idempotent: repeated,
// concurrent and out-of-order deliveries converge on one row per user and
// season, and terminal statuses (CANCELED, INCOMPLETE_EXPIRED) never revert.
//
// Team limits change in two ways. ChangeTeamLimit applies a deferred change
// billed from the next renewal without proration, rejected once the season's
// change deadline has passed. IncreaseTeamLimitNow raises a per-seat limit
// immediately and collects the prorated difference. Local changes commit
// before the processor is called; unconfirmed ones stay flagged and are
// replayed by ReconcileDrift.
//
// Basic usage:
//
//	svc := billing.NewService(store, gateway, webhookSecret,
//		billing.WithLogger(log),
//		billing.WithMetrics(billing.NewMetrics(prometheus.DefaultRegisterer)),
//	)
//
//	res, err := svc.CreateCheckout(ctx, billing.CheckoutInput{
//		UserID:         7,
//		LeagueSeasonID: 3,
//		TeamLimit:      5,
//	})
//
// Storage lives behind Store (see the pgstore and memstore subpackages) and
// the processor behind Gateway (see stripegw).
package billing
