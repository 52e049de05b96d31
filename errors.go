package hubbub

import (
	"errors"
	"fmt"
	"strings"
)

// Errors in this package describe wiring mistakes, not transient runtime
// conditions. Once a program has subscribed everything it will ever
// subscribe, none of them can occur anymore, so callers outside of tests
// normally treat every one of them as fatal.

// ErrSubscribeInProgress is returned when Subscribe is called while another
// subscription's construction frame is still open.
var ErrSubscribeInProgress = errors.New("hubbub: a subscription is already under construction")

// ErrDispatchDuringSubscribe is returned when a container dispatch is
// attempted while a construction frame is open.
var ErrDispatchDuringSubscribe = errors.New("hubbub: cannot dispatch while a subscription is under construction")

// ErrNotSubscribed is returned when unsubscribing a subscription that was
// already removed.
var ErrNotSubscribed = errors.New("hubbub: subscription already removed")

// DuplicateChannelError reports a channel, slot, or feed name that is
// already taken on this registry. Channels and feeds share one namespace.
type DuplicateChannelError struct {
	Name string
}

func (e *DuplicateChannelError) Error() string {
	return fmt.Sprintf("hubbub: name already declared on this registry: %q", e.Name)
}

// DuplicateDeclarationError reports the same channel being declared twice
// in one construction frame, in the same direction.
type DuplicateDeclarationError struct {
	Channel   string
	Direction string // "listen" or "emit"
}

func (e *DuplicateDeclarationError) Error() string {
	return fmt.Sprintf("hubbub: channel %q already declared as %s in this subscription", e.Channel, e.Direction)
}

// EmptySlotError reports a dispatch on a slot with no registered handler.
// An unpopulated required slot is a structural bug, never a legitimate
// empty state.
type EmptySlotError struct {
	Slot string
}

func (e *EmptySlotError) Error() string {
	return fmt.Sprintf("hubbub: no handler registered in slot %q", e.Slot)
}

// OccupiedSlotError reports a registration into a slot that already holds
// a handler.
type OccupiedSlotError struct {
	Slot string
}

func (e *OccupiedSlotError) Error() string {
	return fmt.Sprintf("hubbub: slot %q already holds a handler", e.Slot)
}

// UnknownFeedError reports a feed declaration against a name the registry
// has never seen. Feeds must be declared before handlers attach to them.
type UnknownFeedError struct {
	Feed string
}

func (e *UnknownFeedError) Error() string {
	return fmt.Sprintf("hubbub: feed %q not declared on this registry", e.Feed)
}

// Hop is one edge of a rejected subscription's cycle, together with the
// handlers whose declarations created it: everything that listens on From
// and emits into To.
type Hop struct {
	From     string
	To       string
	Handlers []string
}

// RecursionError is returned by Subscribe when folding the new handler's
// declarations into the reachability graph would create a cycle. Chain is
// the offending loop without the closing repeat; Hops carries one entry per
// edge of the closed loop, including the contributing handlers.
type RecursionError struct {
	Chain []string
	Hops  []Hop
}

func (e *RecursionError) Error() string {
	var b strings.Builder
	b.WriteString("hubbub: recursion detected during subscription: ")
	for i, hop := range e.Hops {
		if i > 0 {
			b.WriteString(" -> ")
		}
		b.WriteByte('[')
		b.WriteString(strings.Join(hop.Handlers, ","))
		b.WriteByte(']')
		b.WriteString(hop.From)
	}
	b.WriteString(" -> ")
	b.WriteString(e.Chain[0])
	return b.String()
}
