// Package statemachine provides an immutable, generic transition table for
// finite-state machines whose current state lives somewhere else, typically a
// database row.
//
// A Table maps (from state, event) pairs to a target state. It keeps no
// current state of its own, so one Table built at start-up can drive any
// number of records from any number of goroutines without locking.
//
// # Usage
//
//	type Status string
//	type Event string
//
//	table := statemachine.MustNew(
//		statemachine.WithTransition[Status, Event]("draft", "submit", "in_review"),
//		statemachine.WithTransition[Status, Event]("in_review", "approve", "approved",
//			func(ctx context.Context, from Status, ev Event, to Status) bool {
//				return isReviewer(ctx)
//			}),
//	)
//
//	next, err := table.Fire(ctx, row.Status, "submit")
//	if statemachine.IsNoTransitionAvailableError(err) {
//		// the event is not defined for the current state
//	}
//
// Multiple transitions may be registered for the same (from, event) pair; the
// first one whose guards all pass wins, which allows guard-based branching.
//
// # Errors
//
// Fire returns *ErrNoTransitionAvailable when nothing is registered for the
// pair and *ErrTransitionRejected when every candidate was blocked by a guard.
// Use IsNoTransitionAvailableError and IsTransitionRejectedError to tell them
// apart.
package statemachine
