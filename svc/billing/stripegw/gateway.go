// Package stripegw implements billing.Gateway on top of stripe-go.
//
// Every Gateway owns its own API client; nothing touches stripe.Key or any
// other package-level state, so several accounts can live in one process.
package stripegw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/dmitrymomot/leaguebilling/pkg/logger"
	"github.com/dmitrymomot/leaguebilling/svc/billing"
)

type Gateway struct {
	api *client.API
	log *slog.Logger
}

var _ billing.Gateway = (*Gateway)(nil)

type Option func(*options)

type options struct {
	log        *slog.Logger
	httpClient *http.Client
	apiURL     string
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithAPIURL points the client at another API host, e.g. stripe-mock.
func WithAPIURL(u string) Option {
	return func(o *options) {
		o.apiURL = strings.TrimRight(u, "/")
	}
}

func New(cfg Config, opts ...Option) (*Gateway, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, ErrMissingSecretKey
	}

	o := options{log: logger.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		o.httpClient = &http.Client{Timeout: timeout}
	}
	log := o.log.With(logger.Component("stripe"))

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        o.httpClient,
		LeveledLogger:     slogAdapter{log: log},
		MaxNetworkRetries: stripe.Int64(max(cfg.MaxNetworkRetries, 0)),
	}
	if o.apiURL != "" {
		backendCfg.URL = stripe.String(o.apiURL)
	}

	return &Gateway{
		api: client.New(cfg.SecretKey, stripe.NewBackendsWithConfig(backendCfg)),
		log: log,
	}, nil
}

func (g *Gateway) CreateCheckout(ctx context.Context, p billing.CheckoutParams) (*billing.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceRef),
				Quantity: stripe.Int64(p.Quantity),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: p.Metadata,
		},
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	if p.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(p.ClientReferenceID)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	if session.URL == "" {
		return nil, ErrEmptyCheckoutURL
	}
	return &billing.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (g *Gateway) GetSubscription(ctx context.Context, ref string) (*billing.RemoteSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := g.api.Subscriptions.Get(ref, params)
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", ref, err)
	}
	return remoteSubscription(sub), nil
}

func (g *Gateway) SetSubscriptionQuantity(ctx context.Context, u billing.QuantityUpdate) error {
	if u.ItemRef == "" {
		return errors.Join(billing.ErrRemoteItemMissing, ErrSubscriptionNoItem)
	}
	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:       stripe.String(u.ItemRef),
				Quantity: stripe.Int64(u.Quantity),
			},
		},
	}
	if u.Proration != "" {
		params.ProrationBehavior = stripe.String(string(u.Proration))
	}
	if u.KeepBillingAnchor {
		params.BillingCycleAnchorUnchanged = stripe.Bool(true)
	}
	params.Context = ctx

	if _, err := g.api.Subscriptions.Update(u.SubscriptionRef, params); err != nil {
		return fmt.Errorf("update subscription %s quantity: %w", u.SubscriptionRef, err)
	}
	g.log.DebugContext(ctx, "subscription quantity updated",
		logger.RemoteRef(u.SubscriptionRef), "quantity", u.Quantity, "proration", u.Proration)
	return nil
}

// CreateAndPayInvoice bills the customer's pending items (such as
// prorations) right away instead of on the next renewal.
func (g *Gateway) CreateAndPayInvoice(ctx context.Context, customerRef string) (*billing.Invoice, error) {
	params := &stripe.InvoiceParams{
		Customer:                    stripe.String(customerRef),
		PendingInvoiceItemsBehavior: stripe.String("include"),
		AutoAdvance:                 stripe.Bool(false),
	}
	params.Context = ctx

	inv, err := g.api.Invoices.New(params)
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	finalize := &stripe.InvoiceFinalizeInvoiceParams{}
	finalize.Context = ctx
	if inv, err = g.api.Invoices.FinalizeInvoice(inv.ID, finalize); err != nil {
		return nil, fmt.Errorf("finalize invoice: %w", err)
	}

	if inv.Status != stripe.InvoiceStatusPaid && inv.AmountDue > 0 {
		pay := &stripe.InvoicePayParams{}
		pay.Context = ctx
		if inv, err = g.api.Invoices.Pay(inv.ID, pay); err != nil {
			return nil, fmt.Errorf("pay invoice: %w", err)
		}
	}

	return &billing.Invoice{
		Ref:       inv.ID,
		Status:    string(inv.Status),
		AmountDue: inv.AmountDue,
		Currency:  string(inv.Currency),
	}, nil
}

func remoteSubscription(sub *stripe.Subscription) *billing.RemoteSubscription {
	out := &billing.RemoteSubscription{
		Ref:    sub.ID,
		Status: string(sub.Status),
	}
	if sub.Customer != nil {
		out.CustomerRef = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil {
		item := sub.Items.Data[0]
		out.ItemRef = item.ID
		out.Quantity = item.Quantity
		out.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
	}
	return out
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
