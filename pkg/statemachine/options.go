package statemachine

import "fmt"

// Option registers transitions while a Table is being built.
type Option[S comparable, E comparable] func(*Table[S, E]) error

// New builds a Table from the given options.
func New[S comparable, E comparable](opts ...Option[S, E]) (*Table[S, E], error) {
	t := &Table[S, E]{edges: make(map[S]map[E][]Transition[S, E])}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	if len(t.edges) == 0 {
		return nil, ErrEmptyTable
	}
	return t, nil
}

// MustNew is like New but panics on error. Meant for package-level tables.
func MustNew[S comparable, E comparable](opts ...Option[S, E]) *Table[S, E] {
	t, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("statemachine: %v", err))
	}
	return t
}

// WithTransition registers from --event--> to.
func WithTransition[S comparable, E comparable](from S, event E, to S, guards ...Guard[S, E]) Option[S, E] {
	return func(t *Table[S, E]) error {
		t.add(Transition[S, E]{From: from, Event: event, To: to, Guards: compact(guards)})
		return nil
	}
}

// WithTransitionsFrom registers the same event and target for several source states.
func WithTransitionsFrom[S comparable, E comparable](froms []S, event E, to S, guards ...Guard[S, E]) Option[S, E] {
	return func(t *Table[S, E]) error {
		if len(froms) == 0 {
			return fmt.Errorf("%w: no source states for event %v", ErrInvalidTransition, event)
		}
		gs := compact(guards)
		for _, from := range froms {
			t.add(Transition[S, E]{From: from, Event: event, To: to, Guards: gs})
		}
		return nil
	}
}

// WithTransitions registers a prepared list of transitions.
func WithTransitions[S comparable, E comparable](transitions ...Transition[S, E]) Option[S, E] {
	return func(t *Table[S, E]) error {
		for _, tr := range transitions {
			tr.Guards = compact(tr.Guards)
			t.add(tr)
		}
		return nil
	}
}

func compact[S comparable, E comparable](guards []Guard[S, E]) []Guard[S, E] {
	out := make([]Guard[S, E], 0, len(guards))
	for _, g := range guards {
		if g != nil {
			out = append(out, g)
		}
	}
	return out
}
