package hubbub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casualjim/hubbub/cell"
)

type sink struct {
	received []string
}

func TestSlotRegisterAndDispatch(t *testing.T) {
	r := newHub(t)
	slot, err := NewSlot[*sink](r, "logger")
	require.NoError(t, err)
	assert.False(t, slot.Occupied())

	cl := NewCell(r, &sink{})
	_, err = r.Subscribe(Identity{Name: "FileSink"}, func(f *Frame) error {
		return slot.Register(f, cl)
	})
	require.NoError(t, err)
	assert.True(t, slot.Occupied())

	require.NoError(t, slot.Dispatch(func(s **sink, _ *cell.Suspend) error {
		(*s).received = append((*s).received, "hello")
		return nil
	}))
	require.NoError(t, slot.DispatchRead(func(s **sink, _ *cell.Suspend) error {
		assert.Equal(t, []string{"hello"}, (*s).received)
		return nil
	}))
}

func TestSlotEmptyDispatchFails(t *testing.T) {
	r := newHub(t)
	slot, err := NewSlot[*sink](r, "logger")
	require.NoError(t, err)

	err = slot.Dispatch(func(**sink, *cell.Suspend) error { return nil })
	var empty *EmptySlotError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, "logger", empty.Slot)
}

func TestSlotOccupiedRegisterFails(t *testing.T) {
	r := newHub(t)
	slot, err := NewSlot[*sink](r, "logger")
	require.NoError(t, err)

	_, err = r.Subscribe(Identity{Name: "first"}, func(f *Frame) error {
		return slot.Register(f, NewCell(r, &sink{}))
	})
	require.NoError(t, err)

	_, err = r.Subscribe(Identity{Name: "second"}, func(f *Frame) error {
		return slot.Register(f, NewCell(r, &sink{}))
	})
	var occupied *OccupiedSlotError
	require.ErrorAs(t, err, &occupied)
	assert.Equal(t, "logger", occupied.Slot)
}

func TestSlotUnsubscribeEmpties(t *testing.T) {
	r := newHub(t)
	slot, err := NewSlot[*sink](r, "logger")
	require.NoError(t, err)

	sub, err := r.Subscribe(Identity{Name: "FileSink"}, func(f *Frame) error {
		return slot.Register(f, NewCell(r, &sink{}))
	})
	require.NoError(t, err)
	require.True(t, slot.Occupied())

	require.NoError(t, r.Unsubscribe(sub))
	assert.False(t, slot.Occupied())

	// The slot can be filled again afterwards.
	_, err = r.Subscribe(Identity{Name: "StderrSink"}, func(f *Frame) error {
		return slot.Register(f, NewCell(r, &sink{}))
	})
	assert.NoError(t, err)
}

func TestSlotEmitter(t *testing.T) {
	r := newHub(t)
	slot, err := NewSlot[*sink](r, "logger")
	require.NoError(t, err)

	_, err = r.Subscribe(Identity{Name: "FileSink"}, func(f *Frame) error {
		return slot.Register(f, NewCell(r, &sink{}))
	})
	require.NoError(t, err)

	var em *SlotEmitter[*sink]
	_, err = r.Subscribe(Identity{Name: "App"}, func(f *Frame) error {
		em, err = slot.Emitter(f)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, em)
	assert.Equal(t, "logger", em.Slot())

	require.NoError(t, em.Dispatch(func(s **sink, _ *cell.Suspend) error {
		(*s).received = append((*s).received, "via emitter")
		return nil
	}))
}

func TestSlotSharesNamespace(t *testing.T) {
	r := newHub(t)
	_, err := NewSlot[*sink](r, "logger")
	require.NoError(t, err)

	_, err = NewChannel[*sink](r, "logger")
	var dup *DuplicateChannelError
	assert.ErrorAs(t, err, &dup)
}

func TestSlotParticipatesInCycleCheck(t *testing.T) {
	r := newHub(t)
	slot, err := NewSlot[*sink](r, "logger")
	require.NoError(t, err)
	ch, err := NewChannel[*sink](r, "events")
	require.NoError(t, err)

	// logger -> events committed first.
	_, err = r.Subscribe(Identity{Name: "Forwarder"}, func(f *Frame) error {
		if _, err := ch.Emitter(f); err != nil {
			return err
		}
		return slot.Register(f, NewCell(r, &sink{}))
	})
	require.NoError(t, err)

	// events -> logger closes the loop.
	_, err = r.Subscribe(Identity{Name: "Recorder"}, func(f *Frame) error {
		if _, err := slot.Emitter(f); err != nil {
			return err
		}
		return ch.Register(f, 0, NewCell(r, &sink{}))
	})
	var recursion *RecursionError
	require.ErrorAs(t, err, &recursion)
	assert.Equal(t, []string{"events", "logger"}, recursion.Chain)
}
