package billing_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/leaguebilling/svc/billing"
	"github.com/dmitrymomot/leaguebilling/svc/billing/memstore"
)

const (
	testUserID     int64 = 7
	testSeasonID   int64 = 3
	testFlatSeason int64 = 4
	testCustomer         = "cus_coach7"
	testSecret           = "whsec_test"
)

var (
	seasonOpen     = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seasonClose    = time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC)
	seasonStart    = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seasonEnd      = time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	changeDeadline = time.Date(2026, 2, 15, 23, 59, 59, 0, time.UTC)
	fixtureNow     = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fakeGateway keeps remote subscriptions in memory and records every call.
type fakeGateway struct {
	mu sync.Mutex

	subs      map[string]*billing.RemoteSubscription
	checkouts []billing.CheckoutParams
	updates   []billing.QuantityUpdate
	invoiced  []string

	checkoutErr error
	getErr      error
	updateErr   error
	invoiceErr  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{subs: make(map[string]*billing.RemoteSubscription)}
}

func (g *fakeGateway) AddSubscription(ref, status string, quantity int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	end := seasonStart.AddDate(0, 1, 0)
	g.subs[ref] = &billing.RemoteSubscription{
		Ref:              ref,
		CustomerRef:      testCustomer,
		Status:           status,
		Quantity:         quantity,
		ItemRef:          "si_" + ref,
		CurrentPeriodEnd: &end,
	}
}

func (g *fakeGateway) Quantity(ref string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.subs[ref].Quantity
}

func (g *fakeGateway) SetFailures(get, update, invoice error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getErr, g.updateErr, g.invoiceErr = get, update, invoice
}

func (g *fakeGateway) Updates() []billing.QuantityUpdate {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]billing.QuantityUpdate(nil), g.updates...)
}

func (g *fakeGateway) Checkouts() []billing.CheckoutParams {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]billing.CheckoutParams(nil), g.checkouts...)
}

func (g *fakeGateway) Invoiced() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.invoiced...)
}

func (g *fakeGateway) CreateCheckout(_ context.Context, params billing.CheckoutParams) (*billing.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.checkoutErr != nil {
		return nil, g.checkoutErr
	}
	g.checkouts = append(g.checkouts, params)
	id := fmt.Sprintf("cs_test_%d", len(g.checkouts))
	return &billing.CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (g *fakeGateway) GetSubscription(_ context.Context, ref string) (*billing.RemoteSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return nil, g.getErr
	}
	sub, ok := g.subs[ref]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", ref)
	}
	cp := *sub
	return &cp, nil
}

func (g *fakeGateway) SetSubscriptionQuantity(_ context.Context, update billing.QuantityUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.updateErr != nil {
		return g.updateErr
	}
	sub, ok := g.subs[update.SubscriptionRef]
	if !ok || sub.ItemRef != update.ItemRef {
		return errors.New("no such subscription item")
	}
	sub.Quantity = update.Quantity
	g.updates = append(g.updates, update)
	return nil
}

func (g *fakeGateway) CreateAndPayInvoice(_ context.Context, customerRef string) (*billing.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.invoiceErr != nil {
		return nil, g.invoiceErr
	}
	g.invoiced = append(g.invoiced, customerRef)
	return &billing.Invoice{
		Ref:       fmt.Sprintf("in_test_%d", len(g.invoiced)),
		Status:    "paid",
		AmountDue: 2500,
		Currency:  "usd",
	}, nil
}

// ParseWebhook accepts "sig:<secret>" as a valid signature and decodes the
// payload as a billing.Event.
func (g *fakeGateway) ParseWebhook(payload []byte, signature, secret string) (*billing.Event, error) {
	if signature != "sig:"+secret {
		return nil, errors.New("signature mismatch")
	}
	var ev billing.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

type fixture struct {
	svc   *billing.Service
	store *memstore.Store
	gw    *fakeGateway
	clock *testClock
}

// newFixture seeds user 7 and two seasons: 3 (per-seat) and 4 (flat).
func newFixture(t *testing.T, opts ...billing.Option) *fixture {
	t.Helper()

	store := memstore.New()
	store.AddUser(billing.User{ID: testUserID, Email: "coach7@example.com"})
	store.AddUser(billing.User{ID: 8, Email: "coach8@example.com"})

	for _, id := range []int64{testSeasonID, testFlatSeason} {
		deadline := changeDeadline
		require.NoError(t, store.AddSeason(billing.LeagueSeason{
			ID:                  id,
			LeagueID:            1,
			LeagueName:          "Sunday Five-a-side",
			Name:                "Spring " + strconv.FormatInt(id, 10),
			SeasonStart:         seasonStart,
			SeasonEnd:           seasonEnd,
			SubscriptionOpenAt:  seasonOpen,
			SubscriptionCloseAt: seasonClose,
			ChangeDeadline:      &deadline,
		}))
	}
	store.SetSeasonProduct(billing.SeasonProduct{ID: 1, LeagueSeasonID: testSeasonID, PriceRef: "price_seat", PricingModel: billing.PricingPerSeat})
	store.SetSeasonProduct(billing.SeasonProduct{ID: 2, LeagueSeasonID: testFlatSeason, PriceRef: "price_flat", PricingModel: billing.PricingFlat})

	gw := newFakeGateway()
	clock := &testClock{now: fixtureNow}
	opts = append([]billing.Option{billing.WithClock(clock)}, opts...)

	return &fixture{
		svc:   billing.NewService(store, gw, testSecret, opts...),
		store: store,
		gw:    gw,
		clock: clock,
	}
}

// subscribe drives a completed checkout for user 7 through the webhook path.
func (f *fixture) subscribe(t *testing.T, seasonID int64, ref string, seats int64) *billing.Subscription {
	t.Helper()
	quantity := seats
	if seasonID == testFlatSeason {
		quantity = 1
	}
	f.gw.AddSubscription(ref, "active", quantity)
	require.NoError(t, f.svc.HandleEvent(context.Background(), checkoutEvent("evt_co_"+ref, ref, testUserID, seasonID, seats)))

	sub, err := f.store.FindSubscription(context.Background(), testUserID, seasonID)
	require.NoError(t, err)
	return sub
}

func (f *fixture) load(t *testing.T, id int64) *billing.Subscription {
	t.Helper()
	sub, err := f.store.GetSubscription(context.Background(), id)
	require.NoError(t, err)
	return sub
}

func checkoutEvent(id, ref string, userID, seasonID, seats int64) *billing.Event {
	return &billing.Event{
		ID:   id,
		Type: billing.EventCheckoutCompleted,
		Checkout: &billing.CheckoutCompleted{
			SessionID:         "cs_" + id,
			CustomerRef:       testCustomer,
			SubscriptionRef:   ref,
			ClientReferenceID: strconv.FormatInt(userID, 10),
			Metadata: map[string]string{
				billing.MetadataUserID:    strconv.FormatInt(userID, 10),
				billing.MetadataSeasonID:  strconv.FormatInt(seasonID, 10),
				billing.MetadataTeamLimit: strconv.FormatInt(seats, 10),
			},
		},
	}
}

func updatedEvent(id, ref, status string, quantity int64) *billing.Event {
	ev := &billing.Event{
		ID:           id,
		Type:         billing.EventSubscriptionUpdated,
		Subscription: &billing.SubscriptionChange{SubscriptionRef: ref, CustomerRef: testCustomer, Status: status},
	}
	if quantity > 0 {
		ev.Subscription.Quantity = &quantity
	}
	return ev
}

func deletedEvent(id, ref string) *billing.Event {
	return &billing.Event{
		ID:           id,
		Type:         billing.EventSubscriptionDeleted,
		Subscription: &billing.SubscriptionChange{SubscriptionRef: ref, CustomerRef: testCustomer, Status: "canceled"},
	}
}

func paidEvent(id, ref string) *billing.Event {
	return &billing.Event{
		ID:      id,
		Type:    billing.EventInvoicePaymentSucceeded,
		Invoice: &billing.InvoiceNotice{InvoiceRef: "in_" + id, SubscriptionRef: ref, CustomerRef: testCustomer},
	}
}
