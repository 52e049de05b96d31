// Package hubbub is an in-process, synchronous publish/subscribe hub built
// around one engineering problem: safe reentrancy. A dispatched handler may
// itself dispatch, and that dispatch may loop back to an object that is
// already being mutated. hubbub prevents the resulting double-exclusive-
// access hazard without taking a lock on every call.
//
// Two mechanisms cooperate:
//
//   - A subscription-time reachability graph with a cycle detector. When a
//     handler subscribes it declares the channels it listens on and emits
//     into; the registry folds the declarations into a persistent graph and
//     rejects the subscription if any wiring could ever re-enter a live
//     handler through an unguarded path. Dispatch never consults the
//     registry; validation cost is paid once, at subscribe time.
//   - A reentrancy guard on every handler: an exclusivity cell plus an
//     explicit suspend capability. Because the graph is acyclic, the only
//     way a cell can be reached twice on one call path is through a
//     voluntary, verifiable suspend on that exact cell.
//
// Everything is single-threaded and fully synchronous: a dispatch call,
// including every transitive dispatch it triggers, completes before it
// returns. The guard is a cooperative discipline enforced by checks, not a
// blocking primitive.
//
// A minimal hub:
//
//	r, _ := hubbub.New()
//	pings, _ := hubbub.NewChannel[Ping](r, "ping")
//	pongs, _ := hubbub.NewChannel[Pong](r, "pong")
//
//	_, err := r.Subscribe(hubbub.Identity{Name: "Player"}, func(f *hubbub.Frame) error {
//		out, err := pongs.Emitter(f)
//		if err != nil {
//			return err
//		}
//		return pings.Register(f, 0, hubbub.NewCell(r, Ping(player{out: out})))
//	})
//
// Wiring errors (duplicate names, cycles, overlapping holds, suspending the
// wrong owner, empty required slots) are structural: they are all
// detectable at startup, returned as typed errors, and meant to be treated
// as fatal.
package hubbub
