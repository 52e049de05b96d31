package hubbub

import "github.com/casualjim/hubbub/cell"

// Slot is the "exactly one" membership container. Registering into an
// occupied slot and dispatching an empty one are both wiring errors: a
// required collaborator that is missing signals a structural bug, never a
// legitimate empty state.
type Slot[T any] struct {
	reg    *Registry
	name   string
	member *cell.Cell[T]
}

// NewSlot declares a slot on the registry, in the same namespace as
// channels and feeds.
func NewSlot[T any](r *Registry, name string) (*Slot[T], error) {
	if _, err := r.declareChannel(name); err != nil {
		return nil, err
	}
	return &Slot[T]{reg: r, name: name}, nil
}

// Name returns the slot's name.
func (s *Slot[T]) Name() string { return s.name }

// Occupied reports whether a handler is registered.
func (s *Slot[T]) Occupied() bool { return s.member != nil }

// Register declares the listen on the open frame and stages cl as the
// slot's handler. Fails with *OccupiedSlotError if a handler is already
// registered.
func (s *Slot[T]) Register(f *Frame, cl *cell.Cell[T]) error {
	if s.member != nil {
		return &OccupiedSlotError{Slot: s.name}
	}
	if err := f.listen(s.name); err != nil {
		return err
	}
	f.stage(func(sub *Subscription) {
		s.member = cl
		sub.removals = append(sub.removals, func() {
			if s.member == cl {
				s.member = nil
			}
		})
	})
	return nil
}

// Emitter declares the emit on the open frame and returns the dispatch
// handle for this slot.
func (s *Slot[T]) Emitter(f *Frame) (*SlotEmitter[T], error) {
	if err := f.emit(s.name); err != nil {
		return nil, err
	}
	return &SlotEmitter[T]{slot: s}, nil
}

// Dispatch applies fn to the slot's handler under an exclusive hold.
func (s *Slot[T]) Dispatch(fn func(*T, *cell.Suspend) error) error {
	return s.each(func(cl *cell.Cell[T]) error { return cl.Dispatch(fn) })
}

// DispatchRead applies fn under a shared hold.
func (s *Slot[T]) DispatchRead(fn func(*T, *cell.Suspend) error) error {
	return s.each(func(cl *cell.Cell[T]) error { return cl.DispatchRead(fn) })
}

func (s *Slot[T]) each(visit func(*cell.Cell[T]) error) error {
	if s.reg.frame != nil {
		return ErrDispatchDuringSubscribe
	}
	if s.member == nil {
		return &EmptySlotError{Slot: s.name}
	}
	s.reg.log.Trace().Str("slot", s.name).Msg("dispatching")
	return visit(s.member)
}

// SlotEmitter is the dispatch handle for a declared emit into a slot.
type SlotEmitter[T any] struct {
	slot *Slot[T]
}

// Slot returns the target slot name.
func (e *SlotEmitter[T]) Slot() string { return e.slot.name }

// Dispatch delivers to the slot's handler.
func (e *SlotEmitter[T]) Dispatch(fn func(*T, *cell.Suspend) error) error {
	return e.slot.Dispatch(fn)
}

// DispatchRead delivers with shared access.
func (e *SlotEmitter[T]) DispatchRead(fn func(*T, *cell.Suspend) error) error {
	return e.slot.DispatchRead(fn)
}
