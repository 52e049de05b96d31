package hubbub

import (
	"sort"

	"github.com/casualjim/hubbub/cell"
)

// Channel is the "many" membership container: an ordered list of cells that
// dispatch visits in order. Members are placed by a relative ordering key;
// equal keys resolve deterministically (negative keys go before existing
// equals, others after).
type Channel[T any] struct {
	reg     *Registry
	name    string
	members []channelMember[T]
}

type channelMember[T any] struct {
	key  int
	cell *cell.Cell[T]
}

// NewChannel declares a channel on the registry. The name must be unique
// across the registry's channels and feeds.
func NewChannel[T any](r *Registry, name string) (*Channel[T], error) {
	if _, err := r.declareChannel(name); err != nil {
		return nil, err
	}
	return &Channel[T]{reg: r, name: name}, nil
}

// Name returns the channel's name.
func (c *Channel[T]) Name() string { return c.name }

// Len reports the current number of members.
func (c *Channel[T]) Len() int { return len(c.members) }

// Register declares, on the open construction frame, that the handler in
// cl listens on this channel, and stages its insertion at the given
// ordering key. The cell joins the member list only if the whole
// subscription commits.
func (c *Channel[T]) Register(f *Frame, key int, cl *cell.Cell[T]) error {
	if err := f.listen(c.name); err != nil {
		return err
	}
	f.stage(func(sub *Subscription) {
		c.insert(key, cl)
		sub.removals = append(sub.removals, func() { c.Remove(cl) })
	})
	return nil
}

// Emitter declares, on the open construction frame, that the handler emits
// into this channel, and returns the handle it should keep for dispatching.
func (c *Channel[T]) Emitter(f *Frame) (*Emitter[T], error) {
	if err := f.emit(c.name); err != nil {
		return nil, err
	}
	return &Emitter[T]{ch: c}, nil
}

func (c *Channel[T]) insert(key int, cl *cell.Cell[T]) {
	pos := sort.Search(len(c.members), func(i int) bool {
		if key < 0 {
			return c.members[i].key >= key
		}
		return c.members[i].key > key
	})
	c.members = append(c.members, channelMember[T]{})
	copy(c.members[pos+1:], c.members[pos:])
	c.members[pos] = channelMember[T]{key: key, cell: cl}
}

// Remove drops every member backed by the exact same cell. Pointer
// identity, not payload equality.
func (c *Channel[T]) Remove(cl *cell.Cell[T]) {
	kept := c.members[:0]
	for _, m := range c.members {
		if m.cell != cl {
			kept = append(kept, m)
		}
	}
	c.members = kept
}

// Dispatch applies fn to every member in list order under an exclusive
// hold. Reentrancy is guarded per cell, not per channel: a handler present
// in two channels is still protected by its one cell. The first error
// aborts the pass.
func (c *Channel[T]) Dispatch(fn func(*T, *cell.Suspend) error) error {
	return c.each(func(cl *cell.Cell[T]) error { return cl.Dispatch(fn) })
}

// DispatchRead is the shared-access variant of Dispatch.
func (c *Channel[T]) DispatchRead(fn func(*T, *cell.Suspend) error) error {
	return c.each(func(cl *cell.Cell[T]) error { return cl.DispatchRead(fn) })
}

func (c *Channel[T]) each(visit func(*cell.Cell[T]) error) error {
	if c.reg.frame != nil {
		return ErrDispatchDuringSubscribe
	}
	c.reg.log.Trace().Str("channel", c.name).Msg("dispatching")
	// Snapshot so RemoveIf during the pass cannot perturb iteration.
	members := append([]channelMember[T](nil), c.members...)
	for _, m := range members {
		if err := visit(m.cell); err != nil {
			return err
		}
	}
	return nil
}

// RemoveIf visits members in order under an exclusive hold and removes
// those for which fn returns true. Survivors keep their relative order.
// Used for state transitions: a member decides mid-pass that it is done.
func (c *Channel[T]) RemoveIf(fn func(*T) (bool, error)) error {
	if c.reg.frame != nil {
		return ErrDispatchDuringSubscribe
	}
	kept := make([]channelMember[T], 0, len(c.members))
	for i, m := range c.members {
		drop := false
		err := m.cell.Dispatch(func(v *T, _ *cell.Suspend) error {
			var err error
			drop, err = fn(v)
			return err
		})
		if err != nil {
			// Fail fast; the erroring member and the unvisited tail stay.
			c.members = append(kept, c.members[i:]...)
			return err
		}
		if !drop {
			kept = append(kept, m)
		}
	}
	c.members = kept
	return nil
}

// SortBy reorders members with a comparator over read-borrowed payloads.
// The sort is stable, so equal members keep their insertion order.
func (c *Channel[T]) SortBy(cmp func(a, b *T) int) error {
	var err error
	sort.SliceStable(c.members, func(i, j int) bool {
		if err != nil {
			return false
		}
		less := false
		readErr := c.members[i].cell.DispatchRead(func(a *T, _ *cell.Suspend) error {
			return c.members[j].cell.DispatchRead(func(b *T, _ *cell.Suspend) error {
				less = cmp(a, b) < 0
				return nil
			})
		})
		if readErr != nil && err == nil {
			err = readErr
		}
		return less
	})
	return err
}

// Emitter is the dispatch handle a handler receives for a channel it
// declared an emit on. Dispatching through anything but a declared emitter
// bypasses the cycle check and voids the reentrancy guarantees.
type Emitter[T any] struct {
	ch *Channel[T]
}

// Channel returns the channel name this emitter targets.
func (e *Emitter[T]) Channel() string { return e.ch.name }

// Dispatch delivers to every member of the target channel.
func (e *Emitter[T]) Dispatch(fn func(*T, *cell.Suspend) error) error {
	return e.ch.Dispatch(fn)
}

// DispatchRead delivers with shared access.
func (e *Emitter[T]) DispatchRead(fn func(*T, *cell.Suspend) error) error {
	return e.ch.DispatchRead(fn)
}

// RemoveIf exposes Channel.RemoveIf on the emit side, for transition
// passes driven by an emitting parent.
func (e *Emitter[T]) RemoveIf(fn func(*T) (bool, error)) error {
	return e.ch.RemoveIf(fn)
}
