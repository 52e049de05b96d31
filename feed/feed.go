// Package feed provides the backward-delivery escape hatch: a bounded,
// multi-consumer FIFO that lets a bottom handler hand data to its
// ancestors without wiring an emit edge that the cycle detector would have
// to reject. Producers push, every consumer gets its own queue, and
// ancestors poll after dispatching downward.
//
// Feeds share the registry's namespace and show up in diagnostics, but
// their edges never enter the reachability graph; bypassing it is the
// entire point.
package feed

import (
	"github.com/alphadose/haxmap"
	"github.com/fogfish/opts"
	"github.com/google/uuid"

	"github.com/casualjim/hubbub"
)

// Settings configures a feed.
type Settings struct {
	capacity int
}

// WithCapacity bounds every consumer queue to n elements. When a queue is
// full the oldest element is evicted on the next push, so a consumer that
// never polls cannot grow memory without bound. Zero means unbounded.
var WithCapacity = opts.ForName[Settings, int]("capacity")

// Feed is the shared end of the backward channel. Feeders created from it
// push to every live consumer; each Feedee consumes at its own pace.
type Feed[T any] struct {
	name     string
	capacity int
	queues   *haxmap.Map[string, *Feedee[T]]
}

// New declares a feed named name on the registry.
func New[T any](r *hubbub.Registry, name string, options ...opts.Option[Settings]) (*Feed[T], error) {
	var s Settings
	if err := opts.Apply(&s, options); err != nil {
		return nil, err
	}
	if err := r.DeclareFeed(name); err != nil {
		return nil, err
	}
	return &Feed[T]{
		name:     name,
		capacity: s.capacity,
		queues:   haxmap.New[string, *Feedee[T]](),
	}, nil
}

// Name returns the feed's name.
func (f *Feed[T]) Name() string { return f.name }

// Feeder declares, on the open construction frame, that the handler
// produces into this feed and returns the producer handle.
func (f *Feed[T]) Feeder(frame *hubbub.Frame) (*Feeder[T], error) {
	if err := frame.FeedEmit(f.name); err != nil {
		return nil, err
	}
	return &Feeder[T]{feed: f}, nil
}

// Feedee declares that the handler consumes this feed and returns the
// consumer handle with its own queue. The queue goes live only if the
// subscription commits.
func (f *Feed[T]) Feedee(frame *hubbub.Frame) (*Feedee[T], error) {
	if err := frame.FeedListen(f.name); err != nil {
		return nil, err
	}
	fe := &Feedee[T]{
		id:       uuid.Must(uuid.NewV7()).String(),
		feed:     f,
		capacity: f.capacity,
	}
	frame.OnCommit(func() { f.queues.Set(fe.id, fe) })
	return fe, nil
}

// Feeder pushes items to every live consumer of its feed.
type Feeder[T any] struct {
	feed *Feed[T]
}

// Feed appends item to every consumer queue. Items are delivered in push
// order per consumer; consumers do not affect each other.
func (fr *Feeder[T]) Feed(item T) {
	fr.feed.queues.ForEach(func(_ string, fe *Feedee[T]) bool {
		fe.push(item)
		return true
	})
}

// Feedee is one consumer's view of a feed.
type Feedee[T any] struct {
	id       string
	feed     *Feed[T]
	capacity int
	items    []T
	closed   bool
}

func (fe *Feedee[T]) push(item T) {
	if fe.capacity > 0 && len(fe.items) == fe.capacity {
		copy(fe.items, fe.items[1:])
		fe.items[len(fe.items)-1] = item
		return
	}
	fe.items = append(fe.items, item)
}

// Pop removes and returns the oldest queued item.
func (fe *Feedee[T]) Pop() (T, bool) {
	var zero T
	if len(fe.items) == 0 {
		return zero, false
	}
	item := fe.items[0]
	fe.items[0] = zero
	fe.items = fe.items[1:]
	return item, true
}

// Len reports how many items are queued.
func (fe *Feedee[T]) Len() int { return len(fe.items) }

// Close detaches this consumer from the feed. Queued items remain
// poppable; new pushes no longer reach it.
func (fe *Feedee[T]) Close() {
	if fe.closed {
		return
	}
	fe.closed = true
	fe.feed.queues.Del(fe.id)
}
