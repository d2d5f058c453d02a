package billing

import (
	"context"
	"strings"

	"github.com/dmitrymomot/leaguebilling/pkg/statemachine"
)

// Status mirrors the remote subscription status.
type Status string

const (
	StatusIncomplete        Status = "INCOMPLETE"
	StatusIncompleteExpired Status = "INCOMPLETE_EXPIRED"
	StatusTrialing          Status = "TRIALING"
	StatusActive            Status = "ACTIVE"
	StatusPastDue           Status = "PAST_DUE"
	StatusUnpaid            Status = "UNPAID"
	StatusCanceled          Status = "CANCELED"
)

var (
	liveStatuses     = []Status{StatusIncomplete, StatusTrialing, StatusActive, StatusPastDue, StatusUnpaid}
	terminalStatuses = []Status{StatusCanceled, StatusIncompleteExpired}
)

// ParseStatus maps a remote value such as "past_due" (or a local value such
// as "PAST_DUE") onto the closed enum. ok is false for anything else.
func ParseStatus(v string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	switch s {
	case StatusIncomplete, StatusIncompleteExpired, StatusTrialing, StatusActive,
		StatusPastDue, StatusUnpaid, StatusCanceled:
		return s, true
	}
	return "", false
}

func (s Status) Valid() bool {
	_, ok := ParseStatus(string(s))
	return ok
}

// Terminal statuses are sticky: no later event moves a subscription out of them.
func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusIncompleteExpired
}

type lifecycleKind string

const (
	kindSync             lifecycleKind = "sync"
	kindPaymentSucceeded lifecycleKind = "payment_succeeded"
	kindDeleted          lifecycleKind = "deleted"
)

type lifecycleEvent struct {
	kind   lifecycleKind
	target Status
}

func (e lifecycleEvent) String() string {
	if e.target == "" {
		return string(e.kind)
	}
	return string(e.kind) + ":" + string(e.target)
}

var lifecycle = newLifecycle()

func newLifecycle() *statemachine.Table[Status, lifecycleEvent] {
	all := append(append([]Status{}, liveStatuses...), terminalStatuses...)

	opts := make([]statemachine.Option[Status, lifecycleEvent], 0, len(all)+2)
	for _, target := range all {
		opts = append(opts, statemachine.WithTransitionsFrom(liveStatuses, lifecycleEvent{kind: kindSync, target: target}, target))
	}
	opts = append(opts,
		statemachine.WithTransition(StatusUnpaid, lifecycleEvent{kind: kindPaymentSucceeded}, StatusActive),
		statemachine.WithTransitionsFrom(all, lifecycleEvent{kind: kindDeleted}, StatusCanceled),
	)

	return statemachine.MustNew(opts...)
}

// syncStatus returns the status after the processor reported target.
// ok is false when current is terminal and the report is stale.
func syncStatus(ctx context.Context, current, target Status) (Status, bool) {
	if current == target {
		return current, true
	}
	next, err := lifecycle.Fire(ctx, current, lifecycleEvent{kind: kindSync, target: target})
	if err != nil {
		return current, false
	}
	return next, true
}

// statusAfterPayment promotes UNPAID to ACTIVE and leaves everything else alone.
func statusAfterPayment(ctx context.Context, current Status) Status {
	next, err := lifecycle.Fire(ctx, current, lifecycleEvent{kind: kindPaymentSucceeded})
	if err != nil {
		return current
	}
	return next
}

func statusAfterDeletion(ctx context.Context, current Status) Status {
	next, err := lifecycle.Fire(ctx, current, lifecycleEvent{kind: kindDeleted})
	if err != nil {
		return current
	}
	return next
}
