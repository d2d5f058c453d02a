package statemachine

import "context"

// Guard decides at fire time whether a transition may be taken.
type Guard[S comparable, E comparable] func(ctx context.Context, from S, event E, to S) bool

// Transition is a single edge of the table.
type Transition[S comparable, E comparable] struct {
	From   S
	Event  E
	To     S
	Guards []Guard[S, E] // all must pass
}

// Table is an immutable transition table. Build it once with New or MustNew
// and share it freely.
type Table[S comparable, E comparable] struct {
	edges map[S]map[E][]Transition[S, E]
}

// Fire returns the target state for event in state from.
func (t *Table[S, E]) Fire(ctx context.Context, from S, event E) (S, error) {
	candidates := t.edges[from][event]
	if len(candidates) == 0 {
		return from, NewErrNoTransitionAvailable(from, event)
	}

	for _, tr := range candidates {
		if passes(ctx, tr) {
			return tr.To, nil
		}
	}

	return from, NewErrTransitionRejected(from, event)
}

// CanFire reports whether Fire would succeed.
func (t *Table[S, E]) CanFire(ctx context.Context, from S, event E) bool {
	for _, tr := range t.edges[from][event] {
		if passes(ctx, tr) {
			return true
		}
	}
	return false
}

// Events lists the events defined for state from, in no particular order.
func (t *Table[S, E]) Events(from S) []E {
	events := make([]E, 0, len(t.edges[from]))
	for ev := range t.edges[from] {
		events = append(events, ev)
	}
	return events
}

func (t *Table[S, E]) add(tr Transition[S, E]) {
	if t.edges[tr.From] == nil {
		t.edges[tr.From] = make(map[E][]Transition[S, E])
	}
	t.edges[tr.From][tr.Event] = append(t.edges[tr.From][tr.Event], tr)
}

func passes[S comparable, E comparable](ctx context.Context, tr Transition[S, E]) bool {
	for _, g := range tr.Guards {
		if g != nil && !g(ctx, tr.From, tr.Event, tr.To) {
			return false
		}
	}
	return true
}
