package billing

import (
	"context"
	"time"
)

// Gateway is the payment processor client. Implementations are explicitly
// constructed instances; none may rely on process-wide credentials.
type Gateway interface {
	// CreateCheckout opens a hosted checkout session.
	CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)

	// GetSubscription reads the authoritative remote subscription.
	GetSubscription(ctx context.Context, remoteRef string) (*RemoteSubscription, error)

	// SetSubscriptionQuantity changes the quantity of one subscription item.
	SetSubscriptionQuantity(ctx context.Context, update QuantityUpdate) error

	// CreateAndPayInvoice invoices pending items for the customer, finalizes and pays it.
	CreateAndPayInvoice(ctx context.Context, customerRef string) (*Invoice, error)

	// ParseWebhook verifies the signature header against endpointSecret and
	// decodes the event.
	ParseWebhook(payload []byte, signatureHeader, endpointSecret string) (*Event, error)
}

type CheckoutParams struct {
	PriceRef          string
	Quantity          int64
	CustomerEmail     string
	ClientReferenceID string
	Metadata          map[string]string // copied onto the session and the future subscription
	SuccessURL        string
	CancelURL         string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type RemoteSubscription struct {
	Ref              string
	CustomerRef      string
	Status           string // raw remote value, see ParseStatus
	Quantity         int64
	ItemRef          string
	CurrentPeriodEnd *time.Time
}

// ProrationBehavior mirrors the processor's proration options.
type ProrationBehavior string

const (
	ProrationNone   ProrationBehavior = "none"
	ProrationCreate ProrationBehavior = "create_prorations"
)

type QuantityUpdate struct {
	SubscriptionRef   string
	ItemRef           string
	Quantity          int64
	Proration         ProrationBehavior
	KeepBillingAnchor bool
}

type Invoice struct {
	Ref       string
	Status    string
	AmountDue int64
	Currency  string
}

// EventType is the processor's event name.
type EventType string

const (
	EventCheckoutCompleted       EventType = "checkout.session.completed"
	EventSubscriptionUpdated     EventType = "customer.subscription.updated"
	EventSubscriptionDeleted     EventType = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded EventType = "invoice.payment_succeeded"
	EventInvoiceUpcoming         EventType = "invoice.upcoming"
)

// Event is a verified webhook event. Exactly one payload field is set for
// the event types the reconciler handles; others carry none.
type Event struct {
	ID   string
	Type EventType

	Checkout     *CheckoutCompleted
	Subscription *SubscriptionChange
	Invoice      *InvoiceNotice
}

type CheckoutCompleted struct {
	SessionID         string
	CustomerRef       string
	SubscriptionRef   string
	ClientReferenceID string
	Metadata          map[string]string
}

type SubscriptionChange struct {
	SubscriptionRef  string
	CustomerRef      string
	Status           string
	Quantity         *int64
	ItemRef          string
	CurrentPeriodEnd *time.Time
	Metadata         map[string]string
}

type InvoiceNotice struct {
	InvoiceRef      string
	SubscriptionRef string
	CustomerRef     string
	Created         time.Time
}
