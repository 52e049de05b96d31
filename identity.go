package hubbub

// Identity names a handler in diagnostics and cycle reports.
//
// Name is the display name, Kind is a stable key per concrete handler kind.
// When Kind is left empty it defaults to Name. Under WithKindDedup repeated
// subscriptions of the same Kind collapse to a single membership entry per
// channel; by default every subscription is tracked on its own.
type Identity struct {
	Name string
	Kind string
}

func (i Identity) String() string { return i.Name }

func (i Identity) normalize() Identity {
	if i.Kind == "" {
		i.Kind = i.Name
	}
	return i
}
