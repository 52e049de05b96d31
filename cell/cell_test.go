package cell

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchExclusive(t *testing.T) {
	st := NewStack()
	c := New(st, 41)

	err := c.Dispatch(func(v *int, _ *Suspend) error {
		*v++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, st.Depth())

	require.NoError(t, c.DispatchRead(func(v *int, _ *Suspend) error {
		assert.Equal(t, 42, *v)
		return nil
	}))
}

func TestDispatchPropagatesHandlerError(t *testing.T) {
	st := NewStack()
	c := New(st, "payload")
	boom := errors.New("boom")

	err := c.Dispatch(func(*string, *Suspend) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, st.Depth())
}

func TestReentrantDispatchIsRejected(t *testing.T) {
	st := NewStack()
	c := New(st, 0)

	err := c.Dispatch(func(*int, *Suspend) error {
		return c.Dispatch(func(*int, *Suspend) error { return nil })
	})

	var borrow *BorrowError
	require.ErrorAs(t, err, &borrow)
	assert.Equal(t, c.ID(), borrow.Cell)
	assert.Equal(t, Exclusive, borrow.Want)
	assert.Equal(t, Exclusive, borrow.Held)
}

func TestSharedHolds(t *testing.T) {
	st := NewStack()
	c := New(st, 7)

	t.Run("shared may overlap shared", func(t *testing.T) {
		err := c.DispatchRead(func(v *int, _ *Suspend) error {
			return c.DispatchRead(func(w *int, _ *Suspend) error {
				assert.Equal(t, *v, *w)
				return nil
			})
		})
		require.NoError(t, err)
	})

	t.Run("exclusive may not overlap shared", func(t *testing.T) {
		err := c.DispatchRead(func(*int, *Suspend) error {
			return c.Dispatch(func(*int, *Suspend) error { return nil })
		})
		var borrow *BorrowError
		require.ErrorAs(t, err, &borrow)
		assert.Equal(t, Exclusive, borrow.Want)
		assert.Equal(t, Shared, borrow.Held)
	})

	t.Run("shared may not overlap exclusive", func(t *testing.T) {
		err := c.Dispatch(func(*int, *Suspend) error {
			return c.DispatchRead(func(*int, *Suspend) error { return nil })
		})
		var borrow *BorrowError
		require.ErrorAs(t, err, &borrow)
		assert.Equal(t, Shared, borrow.Want)
	})
}

func TestSuspendAllowsReentry(t *testing.T) {
	st := NewStack()
	c := New(st, 0)

	calls := 0
	err := c.Dispatch(func(v *int, s *Suspend) error {
		calls++
		return s.Do(func() error {
			return c.Dispatch(func(w *int, _ *Suspend) error {
				calls++
				*w = 99
				return nil
			})
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, st.Depth())

	require.NoError(t, c.DispatchRead(func(v *int, _ *Suspend) error {
		assert.Equal(t, 99, *v)
		return nil
	}))
}

func TestSuspendRestoresHold(t *testing.T) {
	st := NewStack()
	c := New(st, 0)

	err := c.Dispatch(func(_ *int, s *Suspend) error {
		if err := s.Do(func() error { return nil }); err != nil {
			return err
		}
		// The exclusive hold is back after the bracket closes.
		return c.Dispatch(func(*int, *Suspend) error { return nil })
	})
	var borrow *BorrowError
	require.ErrorAs(t, err, &borrow)
}

func TestSuspendSharedHold(t *testing.T) {
	st := NewStack()
	c := New(st, 3)

	err := c.DispatchRead(func(_ *int, s *Suspend) error {
		return s.Do(func() error {
			return c.Dispatch(func(v *int, _ *Suspend) error {
				*v *= 2
				return nil
			})
		})
	})
	require.NoError(t, err)

	require.NoError(t, c.DispatchRead(func(v *int, _ *Suspend) error {
		assert.Equal(t, 6, *v)
		return nil
	}))
}

func TestSuspendTargeting(t *testing.T) {
	st := NewStack()

	t.Run("empty stack", func(t *testing.T) {
		c := New(st, 0)
		var leaked *Suspend
		require.NoError(t, c.Dispatch(func(_ *int, s *Suspend) error {
			leaked = s
			return nil
		}))

		err := leaked.Do(func() error { return nil })
		assert.ErrorIs(t, err, ErrNotInContext)
	})

	t.Run("top is a different cell", func(t *testing.T) {
		outer := New(st, 0)
		inner := New(st, 0)

		err := outer.Dispatch(func(_ *int, outerSuspend *Suspend) error {
			return outerSuspend.Do(func() error {
				return inner.Dispatch(func(*int, *Suspend) error {
					// outerSuspend's frame is no longer on top.
					return outerSuspend.Do(func() error { return nil })
				})
			})
		})

		var unexpected *UnexpectedItemError
		require.ErrorAs(t, err, &unexpected)
		assert.Equal(t, outer.ID(), unexpected.Cell)
		assert.Equal(t, inner.ID(), unexpected.Top)
	})

	t.Run("stale capability for the same cell", func(t *testing.T) {
		c := New(st, 0)
		var stale *Suspend
		require.NoError(t, c.Dispatch(func(_ *int, s *Suspend) error {
			stale = s
			return nil
		}))

		err := c.Dispatch(func(*int, *Suspend) error {
			return stale.Do(func() error { return nil })
		})
		var unexpected *UnexpectedItemError
		require.ErrorAs(t, err, &unexpected)
	})

	t.Run("double suspend of one frame", func(t *testing.T) {
		c := New(st, 0)
		err := c.Dispatch(func(_ *int, s *Suspend) error {
			return s.Do(func() error {
				return s.Do(func() error { return nil })
			})
		})
		assert.ErrorIs(t, err, ErrNotInContext)
	})
}
