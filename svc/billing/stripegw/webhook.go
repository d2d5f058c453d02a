package stripegw

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/leaguebilling/svc/billing"
)

// ParseWebhook verifies the Stripe-Signature header and decodes the event
// types the billing reconciler understands. Other types come back with no
// payload. Account API version mismatches are tolerated because only a
// handful of stable fields are read.
func (g *Gateway) ParseWebhook(payload []byte, signatureHeader, endpointSecret string) (*billing.Event, error) {
	return ParseEvent(payload, signatureHeader, endpointSecret)
}

// ParseEvent is ParseWebhook without a Gateway.
func ParseEvent(payload []byte, signatureHeader, endpointSecret string) (*billing.Event, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, ErrMissingSignature
	}

	ev, err := webhook.ConstructEventWithOptions(payload, signatureHeader, endpointSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}

	out := &billing.Event{
		ID:   ev.ID,
		Type: billing.EventType(ev.Type),
	}
	if ev.Data == nil {
		return out, nil
	}
	raw := ev.Data.Raw

	switch out.Type {
	case billing.EventCheckoutCompleted:
		var s checkoutSession
		if err := decode(raw, &s); err != nil {
			return nil, err
		}
		out.Checkout = &billing.CheckoutCompleted{
			SessionID:         s.ID,
			CustomerRef:       string(s.Customer),
			SubscriptionRef:   string(s.Subscription),
			ClientReferenceID: s.ClientReferenceID,
			Metadata:          s.Metadata,
		}

	case billing.EventSubscriptionUpdated, billing.EventSubscriptionDeleted:
		var s subscription
		if err := decode(raw, &s); err != nil {
			return nil, err
		}
		out.Subscription = s.change()

	case billing.EventInvoicePaymentSucceeded, billing.EventInvoiceUpcoming:
		var inv invoice
		if err := decode(raw, &inv); err != nil {
			return nil, err
		}
		notice := &billing.InvoiceNotice{
			InvoiceRef:      inv.ID,
			SubscriptionRef: inv.subscriptionRef(),
			CustomerRef:     string(inv.Customer),
		}
		if inv.Created > 0 {
			notice.Created = time.Unix(inv.Created, 0).UTC()
		}
		out.Invoice = notice
	}

	return out, nil
}

func decode(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Join(ErrMalformedEvent, err)
	}
	return nil
}

// objectID accepts both a bare id and an expanded object.
type objectID string

func (id *objectID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*id = ""
		return nil
	case len(b) > 0 && b[0] == '{':
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*id = objectID(obj.ID)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("object id: %w", err)
	}
	*id = objectID(s)
	return nil
}

type checkoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          objectID          `json:"customer"`
	Subscription      objectID          `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type subscription struct {
	ID               string            `json:"id"`
	Customer         objectID          `json:"customer"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
	Items            struct {
		Data []struct {
			ID               string `json:"id"`
			Quantity         *int64 `json:"quantity"`
			CurrentPeriodEnd int64  `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func (s subscription) change() *billing.SubscriptionChange {
	c := &billing.SubscriptionChange{
		SubscriptionRef: s.ID,
		CustomerRef:     string(s.Customer),
		Status:          s.Status,
		Metadata:        s.Metadata,
	}
	periodEnd := s.CurrentPeriodEnd
	if len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		c.ItemRef = item.ID
		c.Quantity = item.Quantity
		if item.CurrentPeriodEnd > 0 {
			periodEnd = item.CurrentPeriodEnd
		}
	}
	c.CurrentPeriodEnd = unixTime(periodEnd)
	return c
}

type invoice struct {
	ID           string   `json:"id"`
	Customer     objectID `json:"customer"`
	Subscription objectID `json:"subscription"`
	Created      int64    `json:"created"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription objectID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// subscriptionRef reads the current parent field first and falls back to
// the pre-2025 top-level field.
func (inv invoice) subscriptionRef() string {
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != "" {
		return string(inv.Parent.SubscriptionDetails.Subscription)
	}
	return string(inv.Subscription)
}
