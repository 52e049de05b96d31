// Package cell provides the single-owner access primitive that protects a
// handler's payload during dispatch. A Cell hands out exclusive or shared
// access, refuses overlapping holds, and supports an explicit suspend
// capability: the one auditable point where a handler may release its own
// hold so that a provably safe re-entry can proceed.
//
// The model is single-threaded and cooperative. Nothing here blocks; every
// violation of the access discipline is reported as a typed error and the
// caller is expected to treat it as fatal wiring.
package cell

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Access describes the kind of hold a dispatch takes on a cell.
type Access uint8

const (
	// Exclusive is the mutable hold taken by Dispatch.
	Exclusive Access = iota + 1
	// Shared is the read-only hold taken by DispatchRead.
	Shared
)

func (a Access) String() string {
	switch a {
	case Exclusive:
		return "exclusive"
	case Shared:
		return "shared"
	default:
		return "free"
	}
}

// BorrowError reports a dispatch on a cell that is not in a compatible
// state: an exclusive hold over any live hold, or a shared hold over an
// exclusive one.
type BorrowError struct {
	Cell uint64
	Want Access
	Held Access
}

func (e *BorrowError) Error() string {
	return fmt.Sprintf("cell %d already borrowed: want %s access while %s hold is live", e.Cell, e.Want, e.Held)
}

// ErrNotInContext is returned by Suspend.Do when there is no live dispatch
// to suspend, or when the enclosing dispatch frame is already paused.
var ErrNotInContext = errors.New("suspend outside of a live dispatch context")

// UnexpectedItemError reports a suspend whose capability does not match the
// dispatch frame on top of the stack. Only the innermost dispatch may
// suspend itself.
type UnexpectedItemError struct {
	Cell uint64
	Top  uint64
}

func (e *UnexpectedItemError) Error() string {
	return fmt.Sprintf("suspend target cell %d is not the innermost dispatch (cell %d is)", e.Cell, e.Top)
}

type frame struct {
	cell      uint64
	access    Access
	serial    uint64
	suspended bool
}

// Stack tracks the currently active dispatches. The top entry is the only
// legal suspend target. One Stack is shared by every cell a registry
// creates; it replaces the thread-local stack of lore with an owned object.
type Stack struct {
	frames []frame
	serial uint64
}

// NewStack creates an empty dispatch stack.
func NewStack() *Stack {
	return &Stack{}
}

// Depth reports how many dispatches are currently live.
func (s *Stack) Depth() int { return len(s.frames) }

func (s *Stack) push(cell uint64, access Access) uint64 {
	s.serial++
	s.frames = append(s.frames, frame{cell: cell, access: access, serial: s.serial})
	return s.serial
}

func (s *Stack) pop() {
	s.frames = s.frames[:len(s.frames)-1]
}

func (s *Stack) top() *frame {
	if len(s.frames) == 0 {
		return nil
	}
	return &s.frames[len(s.frames)-1]
}

type mode uint8

const (
	free mode = iota
	exclusive
	shared
)

var cellIDs atomic.Uint64

// Cell wraps one payload behind the access discipline. The zero value is
// not usable; create cells with New.
type Cell[T any] struct {
	id      uint64
	stack   *Stack
	mode    mode
	readers int
	value   T
}

// New creates a cell guarding value on the given dispatch stack.
func New[T any](stack *Stack, value T) *Cell[T] {
	return &Cell[T]{id: cellIDs.Add(1), stack: stack, value: value}
}

// ID is the cell's stable identity, used by the guard and in diagnostics.
func (c *Cell[T]) ID() uint64 { return c.id }

// Dispatch runs fn with exclusive access to the payload. It fails with
// *BorrowError if any hold is live on this cell. The *Suspend handed to fn
// is only valid for the duration of this dispatch.
func (c *Cell[T]) Dispatch(fn func(*T, *Suspend) error) error {
	if c.mode != free {
		return &BorrowError{Cell: c.id, Want: Exclusive, Held: c.held()}
	}
	c.mode = exclusive
	serial := c.stack.push(c.id, Exclusive)
	defer func() {
		c.stack.pop()
		c.mode = free
	}()

	return fn(&c.value, &Suspend{
		stack:   c.stack,
		cell:    c.id,
		serial:  serial,
		release: func() { c.mode = free },
		restore: func() { c.mode = exclusive },
	})
}

// DispatchRead runs fn with shared access to the payload. Shared holds may
// overlap each other but not an exclusive hold. fn must not mutate the
// payload.
func (c *Cell[T]) DispatchRead(fn func(*T, *Suspend) error) error {
	if c.mode == exclusive {
		return &BorrowError{Cell: c.id, Want: Shared, Held: Exclusive}
	}
	c.mode = shared
	c.readers++
	serial := c.stack.push(c.id, Shared)
	defer func() {
		c.stack.pop()
		c.readers--
		if c.readers == 0 {
			c.mode = free
		}
	}()

	return fn(&c.value, &Suspend{
		stack:  c.stack,
		cell:   c.id,
		serial: serial,
		release: func() {
			c.readers--
			if c.readers == 0 {
				c.mode = free
			}
		},
		restore: func() {
			c.mode = shared
			c.readers++
		},
	})
}

func (c *Cell[T]) held() Access {
	if c.mode == exclusive {
		return Exclusive
	}
	return Shared
}

// Suspend is the capability to pause the enclosing dispatch. It is bound to
// one dispatch frame: the cell identity plus a serial that distinguishes
// this dispatch from any later one on the same cell.
type Suspend struct {
	stack   *Stack
	cell    uint64
	serial  uint64
	release func()
	restore func()
}

// Do releases the enclosing dispatch's hold, runs fn, and restores the hold
// when fn returns. While fn runs the cell is free, so a re-entrant dispatch
// on this exact cell is legal; the subscription-time cycle check guarantees
// no other path can reach the cell unguarded.
//
// Do fails with ErrNotInContext when no dispatch is live or the frame is
// already paused, and with *UnexpectedItemError when the capability does
// not belong to the innermost dispatch.
func (s *Suspend) Do(fn func() error) error {
	top := s.stack.top()
	if top == nil {
		return ErrNotInContext
	}
	if top.cell != s.cell || top.serial != s.serial {
		return &UnexpectedItemError{Cell: s.cell, Top: top.cell}
	}
	if top.suspended {
		return ErrNotInContext
	}

	top.suspended = true
	s.release()
	err := fn()
	s.restore()
	// The slice may have been reallocated by nested dispatches.
	s.stack.top().suspended = false
	return err
}
